package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/metrics"
	"github.com/snarg/audiocast/internal/provider"
)

// SynthesisError reports the turn whose synthesis aborted the run.
type SynthesisError struct {
	Index int
	Total int
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize turn %d of %d: %v", e.Index+1, e.Total, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Orchestrator drives a Synthesizer over a dialogue script.
type Orchestrator struct {
	synth Synthesizer
	log   zerolog.Logger
}

func NewOrchestrator(synth Synthesizer, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{synth: synth, log: log.With().Str("component", "voice").Logger()}
}

func (o *Orchestrator) Provider() string { return o.synth.Name() }

// SynthesizeTurns synthesizes turns one at a time in script order, writing
// VoiceID and Audio into each turn in place and calling onTurn after each
// success. The first failure stops the loop; turns after it are untouched
// and the caller must treat the slice as unusable.
func (o *Orchestrator) SynthesizeTurns(ctx context.Context, turns []dialogue.Turn, policy Policy, onTurn func(i int, t dialogue.Turn)) error {
	// Resolve every voice up front so a bad policy fails before any billing call.
	voices := make([]string, len(turns))
	for i, t := range turns {
		v, err := policy.VoiceFor(t.Role)
		if err != nil {
			return &SynthesisError{Index: i, Total: len(turns), Err: &provider.Error{
				Provider: o.synth.Name(), Operation: "synthesize", Category: provider.InvalidInput, Message: err.Error(),
			}}
		}
		voices[i] = v
	}

	runStart := time.Now()
	var chars int
	for i := range turns {
		if err := ctx.Err(); err != nil {
			return &SynthesisError{Index: i, Total: len(turns), Err: err}
		}

		start := time.Now()
		audio, err := o.synth.Synthesize(ctx, turns[i].Content, voices[i])
		if err == nil && len(audio) == 0 {
			err = &provider.Error{Provider: o.synth.Name(), Operation: "synthesize", Category: provider.Unknown, Message: "empty audio"}
		}
		metrics.ObserveProvider(o.synth.Name(), "synthesize", start, err)
		if err != nil {
			o.log.Warn().Err(err).Int("turn", i).Int("total", len(turns)).Msg("turn synthesis failed, aborting")
			return &SynthesisError{Index: i, Total: len(turns), Err: err}
		}

		turns[i].VoiceID = voices[i]
		turns[i].Audio = audio
		chars += len([]rune(turns[i].Content))

		o.log.Debug().
			Int("turn", i).
			Str("role", string(turns[i].Role)).
			Int("bytes", len(audio)).
			Dur("elapsed", time.Since(start)).
			Msg("turn synthesized")

		if onTurn != nil {
			onTurn(i, turns[i])
		}
	}

	o.log.Info().
		Str("provider", o.synth.Name()).
		Int("turns", len(turns)).
		Int("chars", chars).
		Dur("elapsed", time.Since(runStart)).
		Msg("dialogue synthesized")
	return nil
}
