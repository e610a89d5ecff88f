package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/llm"
	"github.com/snarg/audiocast/internal/provider"
	"github.com/snarg/audiocast/internal/transcript"
)

type fakeLLM struct {
	text  string
	err   error
	calls int
	last  llm.Request
}

func (f *fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text, Model: "fake-1", Usage: llm.Usage{Input: 100, Output: 20, Total: 120}}, nil
}

func TestSummarizeStructured(t *testing.T) {
	client := &fakeLLM{text: "Here you go:\n```json\n" +
		`{"summary":"Two friends greet.","keyPoints":["greeting","recognition"],"topics":["hello"],"actionItems":[],"sentiment":"warm"}` +
		"\n```"}
	s := New(map[string]Route{"en": {Client: client, Family: FamilyStructured}}, zerolog.Nop())

	res, err := s.Summarize(context.Background(), Input{
		FullText: "Hello there General Kenobi",
		Segments: []transcript.Segment{{Start: 1, End: 5, Text: "Hello there"}, {Start: 5, End: 9, Text: "General Kenobi"}},
		Locale:   "en-GB",
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.SummaryText != "Two friends greet." {
		t.Errorf("SummaryText = %q", res.SummaryText)
	}
	kp, ok := res.Fields["keyPoints"].([]string)
	if !ok || len(kp) != 2 {
		t.Errorf("keyPoints = %#v", res.Fields["keyPoints"])
	}
	if items, ok := res.Fields["actionItems"].([]string); !ok || len(items) != 0 {
		t.Errorf("actionItems = %#v", res.Fields["actionItems"])
	}
	if res.Fields["sentiment"] != "warm" {
		t.Errorf("sentiment = %#v", res.Fields["sentiment"])
	}
	if _, ok := res.Fields["summary"]; ok {
		t.Error("summary should not be repeated in fields")
	}
	if res.Usage.Total != 120 || res.Provider != "fake" {
		t.Errorf("usage/provider = %+v / %q", res.Usage, res.Provider)
	}
	if !client.last.JSON {
		t.Error("structured family should request JSON")
	}
	if !strings.Contains(client.last.Prompt, "[00:01-00:05]") {
		t.Error("prompt should include rendered segments")
	}
}

func TestSummarizeStructuredFallback(t *testing.T) {
	raw := strings.Repeat("word ", 200) // 1000 chars, no JSON
	client := &fakeLLM{text: raw}
	s := New(map[string]Route{"en": {Client: client, Family: FamilyStructured}}, zerolog.Nop())

	res, err := s.Summarize(context.Background(), Input{FullText: "some text", Locale: "en"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := raw[:500] + "..."
	if res.SummaryText != want {
		t.Errorf("SummaryText length = %d, want %d", len(res.SummaryText), len(want))
	}
	if len(res.Fields) != 0 {
		t.Errorf("Fields = %v, want empty", res.Fields)
	}
	if !res.Degraded {
		t.Error("Degraded = false")
	}
}

func TestSummarizeObjectWithoutSummaryFallsBack(t *testing.T) {
	client := &fakeLLM{text: `{"keyPoints":["a"]}`}
	s := New(map[string]Route{"en": {Client: client, Family: FamilyStructured}}, zerolog.Nop())

	res, err := s.Summarize(context.Background(), Input{FullText: "x", Locale: "en"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !res.Degraded || res.SummaryText != `{"keyPoints":["a"]}...` {
		t.Errorf("result = %+v", res)
	}
}

func TestSummarizeProse(t *testing.T) {
	client := &fakeLLM{text: "  会议讨论了预算。 "}
	s := New(map[string]Route{"zh": {Client: client, Family: FamilyProse}}, zerolog.Nop())

	res, err := s.Summarize(context.Background(), Input{FullText: "预算讨论", Locale: "zh"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.SummaryText != "会议讨论了预算。" || len(res.Fields) != 0 {
		t.Errorf("result = %+v", res)
	}
	if client.last.JSON {
		t.Error("prose family should not request JSON")
	}
	if !strings.Contains(client.last.System, "会议") {
		t.Error("zh locale should use the zh system prompt")
	}
}

func TestSummarizeInputErrors(t *testing.T) {
	client := &fakeLLM{text: "x"}
	s := New(map[string]Route{"en": {Client: client, Family: FamilyProse}}, zerolog.Nop())

	t.Run("too_long", func(t *testing.T) {
		_, err := s.Summarize(context.Background(), Input{FullText: strings.Repeat("a", MaxInputChars+1), Locale: "en"})
		if !errors.Is(err, ErrInputTooLong) {
			t.Errorf("err = %v, want ErrInputTooLong", err)
		}
	})

	t.Run("exactly_max_is_allowed", func(t *testing.T) {
		if _, err := s.Summarize(context.Background(), Input{FullText: strings.Repeat("a", MaxInputChars), Locale: "en"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := s.Summarize(context.Background(), Input{FullText: "  ", Locale: "en"})
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("err = %v, want ErrEmptyInput", err)
		}
	})

	t.Run("unsupported_locale", func(t *testing.T) {
		_, err := s.Summarize(context.Background(), Input{FullText: "x", Locale: "fr"})
		if !errors.Is(err, ErrUnsupportedLocale) {
			t.Errorf("err = %v, want ErrUnsupportedLocale", err)
		}
	})

	if client.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (only the exactly_max case)", client.calls)
	}
}

func TestSummarizeProviderErrorUnchanged(t *testing.T) {
	perr := &provider.Error{Provider: "fake", Category: provider.RateLimited}
	client := &fakeLLM{err: perr}
	s := New(map[string]Route{"en": {Client: client, Family: FamilyStructured}}, zerolog.Nop())

	_, err := s.Summarize(context.Background(), Input{FullText: "x", Locale: "en"})
	if !errors.Is(err, perr) {
		t.Errorf("err = %v, want the provider error", err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", client.calls)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("你好世界", 2); got != "你好" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 5); got != "abc" {
		t.Errorf("Truncate = %q", got)
	}
}
