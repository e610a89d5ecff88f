// Package summarize turns a completed transcript into a summary through a
// locale-selected language model.
package summarize

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
	"github.com/snarg/audiocast/internal/transcript"
)

const (
	// MaxInputChars bounds the transcript text sent to a provider.
	MaxInputChars = 200_000
	// fallbackChars is how much raw output a degraded summary keeps.
	fallbackChars = 500
)

var (
	ErrInputTooLong      = fmt.Errorf("transcript exceeds %d characters", MaxInputChars)
	ErrEmptyInput        = errors.New("transcript is empty")
	ErrUnsupportedLocale = errors.New("no summarization provider for locale")
)

// Family selects how a provider's output is interpreted.
type Family int

const (
	// FamilyStructured providers are asked for a JSON object with a summary
	// and list fields.
	FamilyStructured Family = iota
	// FamilyProse providers return free text used as the summary.
	FamilyProse
)

type Route struct {
	Client llm.Client
	Family Family
}

type Input struct {
	FullText string
	Segments []transcript.Segment
	Locale   string
}

// Result fields hold either a string or a []string.
type Result struct {
	SummaryText string         `json:"summary_text"`
	Fields      map[string]any `json:"structured_fields"`
	Usage       llm.Usage      `json:"usage"`
	Provider    string         `json:"provider"`
	Model       string         `json:"model,omitempty"`
	// Degraded is set when a structured provider's output could not be
	// parsed and the summary fell back to truncated raw text.
	Degraded bool `json:"degraded,omitempty"`
}

type Summarizer struct {
	routes map[string]Route
	log    zerolog.Logger
}

func New(routes map[string]Route, log zerolog.Logger) *Summarizer {
	return &Summarizer{routes: routes, log: log}
}

func (s *Summarizer) route(locale string) (Route, bool) {
	if r, ok := s.routes[locale]; ok {
		return r, true
	}
	r, ok := s.routes[baseLocale(locale)]
	return r, ok
}

// Summarize makes exactly one provider call. Provider errors are returned
// unchanged.
func (s *Summarizer) Summarize(ctx context.Context, in Input) (*Result, error) {
	text := strings.TrimSpace(in.FullText)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if utf8.RuneCountInString(text) > MaxInputChars {
		return nil, ErrInputTooLong
	}
	rt, ok := s.route(in.Locale)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocale, in.Locale)
	}

	p := promptsFor(in.Locale)
	instruction := p.prose
	if rt.Family == FamilyStructured {
		instruction = p.structured
	}

	var prompt strings.Builder
	prompt.WriteString(instruction)
	prompt.WriteString("\n\n")
	if len(in.Segments) > 0 {
		prompt.WriteString(transcript.Render(in.Segments))
	} else {
		prompt.WriteString(text)
	}

	start := time.Now()
	comp, err := rt.Client.Complete(ctx, llm.Request{
		System:      p.system,
		Prompt:      prompt.String(),
		Temperature: 0.3,
		MaxTokens:   2048,
		JSON:        rt.Family == FamilyStructured,
	})
	metrics.ObserveProvider(rt.Client.Name(), "summarize", start, err)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Usage:    comp.Usage,
		Provider: rt.Client.Name(),
		Model:    comp.Model,
		Fields:   map[string]any{},
	}
	if rt.Family == FamilyProse {
		res.SummaryText = strings.TrimSpace(comp.Text)
	} else {
		summary, fields, ok := parseStructured(comp.Text)
		if ok {
			res.SummaryText = summary
			res.Fields = fields
		} else {
			res.SummaryText = Truncate(comp.Text, fallbackChars) + "..."
			res.Degraded = true
			s.log.Warn().Str("provider", res.Provider).Msg("structured summary unparseable, using raw text")
		}
	}

	s.log.Info().
		Str("provider", res.Provider).
		Int("input_chars", utf8.RuneCountInString(text)).
		Int("tokens", comp.Usage.Total).
		Dur("elapsed", time.Since(start)).
		Msg("summary generated")
	return res, nil
}

// parseStructured extracts the first JSON object and splits it into the
// summary text and the remaining fields. ok is false when no object parses
// or it has no summary.
func parseStructured(raw string) (string, map[string]any, bool) {
	obj, ok := llm.ExtractObject(raw)
	if !ok {
		return "", nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return "", nil, false
	}

	var summary string
	for _, key := range []string{"summary", "summaryText", "summary_text"} {
		if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
			summary = strings.TrimSpace(v)
		}
		delete(m, key)
	}
	if summary == "" {
		return "", nil, false
	}

	fields := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case []any:
			list := make([]string, 0, len(val))
			for _, item := range val {
				switch it := item.(type) {
				case string:
					list = append(list, it)
				default:
					b, _ := json.Marshal(it)
					list = append(list, string(b))
				}
			}
			fields[k] = list
		case nil:
		default:
			b, _ := json.Marshal(val)
			fields[k] = string(b)
		}
	}
	return summary, fields, true
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
