// Package voice synthesizes dialogue turns into speech, one turn at a time.
package voice

import "context"

// Synthesizer converts text to encoded audio with a provider voice. Output
// must be constant-bitrate MP3 so that clips can be merged byte-wise.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}
