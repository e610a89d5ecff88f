package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/llm"
	"github.com/snarg/audiocast/internal/metrics"
)

// MaxSourceChars bounds the text a script can be generated from.
const MaxSourceChars = 50_000

var (
	ErrEmptySource   = errors.New("source text is empty")
	ErrSourceTooLong = fmt.Errorf("source text exceeds %d characters", MaxSourceChars)
)

// Script is a generated dialogue plus provider accounting.
type Script struct {
	Turns    []Turn    `json:"turns"`
	Band     Band      `json:"band"`
	Usage    llm.Usage `json:"usage"`
	Provider string    `json:"provider"`
	Dropped  int       `json:"dropped"`
}

type Generator struct {
	client llm.Client
	log    zerolog.Logger
}

func NewGenerator(client llm.Client, log zerolog.Logger) *Generator {
	return &Generator{client: client, log: log}
}

type rawScript struct {
	Segments []rawTurn `json:"segments"`
}

type rawTurn struct {
	Speaker string `json:"speaker"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate asks the model for a host/guest dialogue sized by Plan. Turns
// missing a speaker, content or a valid role are dropped; the script fails
// with ErrParseFailure when nothing usable remains or a role is missing.
func (g *Generator) Generate(ctx context.Context, text, locale string) (*Script, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptySource
	}
	if utf8.RuneCountInString(text) > MaxSourceChars {
		return nil, ErrSourceTooLong
	}

	band := PlanText(text)
	p := scriptPromptsFor(locale)

	start := time.Now()
	comp, err := g.client.Complete(ctx, llm.Request{
		System:      p.system,
		Prompt:      fmt.Sprintf(p.instruction, band.Turns, band.MinChars, band.MaxChars) + "\n\n" + text,
		Temperature: 0.8,
		MaxTokens:   4096,
		JSON:        true,
	})
	metrics.ObserveProvider(g.client.Name(), "script", start, err)
	if err != nil {
		return nil, err
	}

	turns, dropped, err := ParseScript(comp.Text)
	if err != nil {
		g.log.Warn().Err(err).Str("provider", g.client.Name()).Msg("script parse failed")
		return nil, err
	}

	g.log.Info().
		Str("provider", g.client.Name()).
		Int("source_chars", utf8.RuneCountInString(text)).
		Int("target_turns", band.Turns).
		Int("turns", len(turns)).
		Int("dropped", dropped).
		Dur("elapsed", time.Since(start)).
		Msg("script generated")

	return &Script{
		Turns:    turns,
		Band:     band,
		Usage:    comp.Usage,
		Provider: g.client.Name(),
		Dropped:  dropped,
	}, nil
}

// ParseScript reads {"segments":[{"speaker","role","content"}]} from model
// output, dropping invalid turns and capping the script at MaxTurns.
func ParseScript(raw string) (turns []Turn, dropped int, err error) {
	obj, ok := llm.ExtractObject(raw)
	if !ok {
		return nil, 0, fmt.Errorf("%w: no JSON object in response", ErrParseFailure)
	}
	var rs rawScript
	if err := json.Unmarshal([]byte(obj), &rs); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	for _, rt := range rs.Segments {
		t := Turn{
			Speaker: strings.TrimSpace(rt.Speaker),
			Role:    normalizeRole(rt.Role),
			Content: strings.TrimSpace(rt.Content),
		}
		if t.Speaker == "" || t.Content == "" || !t.Role.Valid() {
			dropped++
			continue
		}
		turns = append(turns, t)
	}
	if err := ValidateScript(turns); err != nil {
		return nil, dropped, err
	}
	if len(turns) > MaxTurns {
		dropped += len(turns) - MaxTurns
		turns = capTurns(turns, MaxTurns)
	}
	return turns, dropped, nil
}

// capTurns keeps the first n turns in order. When a role only appears
// past the cap, its first turn takes the last kept slot.
func capTurns(turns []Turn, n int) []Turn {
	kept := append([]Turn(nil), turns[:n]...)
	for _, role := range []Role{RoleHost, RoleGuest} {
		if hasRole(kept, role) {
			continue
		}
		for _, t := range turns[n:] {
			if t.Role == role {
				kept[n-1] = t
				break
			}
		}
	}
	return kept
}

func hasRole(turns []Turn, role Role) bool {
	for _, t := range turns {
		if t.Role == role {
			return true
		}
	}
	return false
}

func normalizeRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "host", "主持人", "司会", "presentador":
		return RoleHost
	case "guest", "嘉宾", "ゲスト", "invitado":
		return RoleGuest
	}
	return Role(strings.ToLower(strings.TrimSpace(s)))
}
