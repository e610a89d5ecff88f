package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/llm"
	"github.com/snarg/audiocast/internal/provider"
)

func TestPlan(t *testing.T) {
	t.Run("short_band", func(t *testing.T) {
		b := Plan(150)
		if b.Turns != 4 || b.MinChars != 30 || b.MaxChars != 60 {
			t.Errorf("Plan(150) = %+v", b)
		}
	})

	t.Run("boundaries_inclusive", func(t *testing.T) {
		if Plan(300).Turns != 4 || Plan(301).Turns != 6 {
			t.Errorf("Plan(300)=%d Plan(301)=%d", Plan(300).Turns, Plan(301).Turns)
		}
	})

	t.Run("monotonic_and_capped", func(t *testing.T) {
		prev := 0
		for n := 0; n <= 200_000; n += 97 {
			b := Plan(n)
			if b.Turns < prev {
				t.Fatalf("Plan(%d).Turns = %d, below previous %d", n, b.Turns, prev)
			}
			if b.Turns > MaxTurns {
				t.Fatalf("Plan(%d).Turns = %d exceeds cap", n, b.Turns)
			}
			prev = b.Turns
		}
		if Plan(1_000_000).Turns != MaxTurns {
			t.Errorf("huge input should hit the cap")
		}
	})
}

func TestParseScript(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		turns, dropped, err := ParseScript("```json\n" + `{"segments":[
			{"speaker":"Ana","role":"host","content":"Welcome to the show."},
			{"speaker":"Ben","role":"Guest","content":"Thanks for having me."}]}` + "\n```")
		if err != nil {
			t.Fatalf("ParseScript: %v", err)
		}
		if len(turns) != 2 || dropped != 0 {
			t.Fatalf("turns=%d dropped=%d", len(turns), dropped)
		}
		if turns[1].Role != RoleGuest {
			t.Errorf("role = %q, want guest", turns[1].Role)
		}
	})

	t.Run("drops_invalid_turns", func(t *testing.T) {
		turns, dropped, err := ParseScript(`{"segments":[
			{"speaker":"Ana","role":"host","content":"Hi"},
			{"speaker":"","role":"guest","content":"nameless"},
			{"speaker":"Ben","role":"narrator","content":"wrong role"},
			{"speaker":"Ben","role":"guest","content":"   "},
			{"speaker":"Ben","role":"guest","content":"Hello"}]}`)
		if err != nil {
			t.Fatalf("ParseScript: %v", err)
		}
		if len(turns) != 2 || dropped != 3 {
			t.Errorf("turns=%d dropped=%d, want 2 and 3", len(turns), dropped)
		}
	})

	t.Run("localized_roles", func(t *testing.T) {
		turns, _, err := ParseScript(`{"segments":[{"speaker":"小王","role":"主持人","content":"大家好"},{"speaker":"小李","role":"嘉宾","content":"你好"}]}`)
		if err != nil {
			t.Fatalf("ParseScript: %v", err)
		}
		if turns[0].Role != RoleHost || turns[1].Role != RoleGuest {
			t.Errorf("roles = %q, %q", turns[0].Role, turns[1].Role)
		}
	})

	failures := map[string]string{
		"no_json":        "I cannot do that.",
		"bad_json":       `{"segments": [oops]}`,
		"all_invalid":    `{"segments":[{"speaker":"","role":"host","content":"x"}]}`,
		"empty_segments": `{"segments":[]}`,
		"host_only":      `{"segments":[{"speaker":"Ana","role":"host","content":"a"},{"speaker":"Ana","role":"host","content":"b"}]}`,
		"guest_only":     `{"segments":[{"speaker":"Ben","role":"guest","content":"a"}]}`,
	}
	for name, raw := range failures {
		t.Run(name, func(t *testing.T) {
			if _, _, err := ParseScript(raw); !errors.Is(err, ErrParseFailure) {
				t.Errorf("err = %v, want ErrParseFailure", err)
			}
		})
	}

	t.Run("capped", func(t *testing.T) {
		var parts []string
		for i := 0; i < MaxTurns+6; i++ {
			role := "host"
			if i%2 == 1 {
				role = "guest"
			}
			parts = append(parts, fmt.Sprintf(`{"speaker":"S%d","role":"%s","content":"line %d"}`, i%2, role, i))
		}
		turns, dropped, err := ParseScript(`{"segments":[` + strings.Join(parts, ",") + `]}`)
		if err != nil {
			t.Fatalf("ParseScript: %v", err)
		}
		if len(turns) != MaxTurns || dropped != 6 {
			t.Errorf("turns=%d dropped=%d", len(turns), dropped)
		}
	})

	t.Run("capped_keeps_late_guest", func(t *testing.T) {
		var parts []string
		for i := 0; i < MaxTurns; i++ {
			parts = append(parts, fmt.Sprintf(`{"speaker":"Ann","role":"host","content":"line %d"}`, i))
		}
		parts = append(parts, `{"speaker":"Ben","role":"guest","content":"finally"}`)
		turns, dropped, err := ParseScript(`{"segments":[` + strings.Join(parts, ",") + `]}`)
		if err != nil {
			t.Fatalf("ParseScript: %v", err)
		}
		if len(turns) != MaxTurns || dropped != 1 {
			t.Fatalf("turns=%d dropped=%d", len(turns), dropped)
		}
		last := turns[MaxTurns-1]
		if last.Role != RoleGuest || last.Content != "finally" {
			t.Errorf("last turn = %+v", last)
		}
		if turns[MaxTurns-2].Content != fmt.Sprintf("line %d", MaxTurns-2) {
			t.Errorf("order changed: %+v", turns[MaxTurns-2])
		}
	})
}

type fakeLLM struct {
	text string
	err  error
	last llm.Request
}

func (f *fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text, Usage: llm.Usage{Total: 42}}, nil
}

func TestGenerate(t *testing.T) {
	t.Run("short_source", func(t *testing.T) {
		client := &fakeLLM{text: `{"segments":[
			{"speaker":"Ana","role":"host","content":"Today we talk about bees and why they matter."},
			{"speaker":"Ben","role":"guest","content":"Bees pollinate a third of the crops we eat."},
			{"speaker":"Ana","role":"host","content":"That is a lot. What threatens them most?"},
			{"speaker":"Ben","role":"guest","content":"Habitat loss and pesticides, mostly."}]}`}
		g := NewGenerator(client, zerolog.Nop())

		src := strings.Repeat("b", 150)
		script, err := g.Generate(context.Background(), src, "en")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if script.Band.Turns != 4 || len(script.Turns) != 4 {
			t.Errorf("band=%+v turns=%d", script.Band, len(script.Turns))
		}
		if !strings.Contains(client.last.Prompt, "about 4 turns, each 30 to 60 characters") {
			t.Errorf("prompt missing band: %q", client.last.Prompt)
		}
		if !client.last.JSON {
			t.Error("script generation should request JSON")
		}
		if script.Usage.Total != 42 {
			t.Errorf("Usage = %+v", script.Usage)
		}
	})

	t.Run("empty_source", func(t *testing.T) {
		g := NewGenerator(&fakeLLM{}, zerolog.Nop())
		if _, err := g.Generate(context.Background(), "  ", "en"); !errors.Is(err, ErrEmptySource) {
			t.Errorf("err = %v, want ErrEmptySource", err)
		}
	})

	t.Run("provider_error_unchanged", func(t *testing.T) {
		perr := &provider.Error{Provider: "fake", Category: provider.InvalidCredentials}
		g := NewGenerator(&fakeLLM{err: perr}, zerolog.Nop())
		_, err := g.Generate(context.Background(), "text", "zh")
		if provider.CategoryOf(err) != provider.InvalidCredentials {
			t.Errorf("category = %q", provider.CategoryOf(err))
		}
	})
}

func TestArtifact(t *testing.T) {
	a := &Artifact{Turns: []Turn{
		{Speaker: "Ana", Role: RoleHost, Content: "hi", Audio: []byte{1}},
		{Speaker: "Ben", Role: RoleGuest, Content: "hello"},
	}}

	if err := a.SetMergedAudio([]byte{1, 2}); !errors.Is(err, ErrIncomplete) {
		t.Errorf("SetMergedAudio with missing turn audio: err = %v", err)
	}
	if a.Complete() {
		t.Error("Complete() = true with missing audio")
	}

	a.Turns[1].Audio = []byte{2}
	if err := a.SetMergedAudio([]byte{1, 2}); err != nil {
		t.Fatalf("SetMergedAudio: %v", err)
	}
	if !a.Complete() {
		t.Error("Complete() = false after merge")
	}

	clone := CloneTurns(a.Turns)
	clone[0].Audio[0] = 9
	if a.Turns[0].Audio[0] != 1 {
		t.Error("CloneTurns shares audio buffers")
	}
}

func TestValidateScript(t *testing.T) {
	ok := []Turn{{Speaker: "A", Role: RoleHost, Content: "x"}, {Speaker: "B", Role: RoleGuest, Content: "y"}}
	if err := ValidateScript(ok); err != nil {
		t.Errorf("ValidateScript(valid) = %v", err)
	}
	bad := []Turn{{Speaker: "A", Role: RoleHost, Content: "x"}, {Speaker: "B", Role: "narrator", Content: "y"}}
	if err := ValidateScript(bad); !errors.Is(err, ErrParseFailure) {
		t.Errorf("ValidateScript(bad role) = %v", err)
	}
}
