// Package dialogue models two-speaker podcast scripts and generates them
// from free text with a language model.
package dialogue

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

func (r Role) Valid() bool { return r == RoleHost || r == RoleGuest }

// Turn is one utterance of the script. VoiceID and Audio are filled in by
// speech synthesis.
type Turn struct {
	Speaker string `json:"speaker"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	VoiceID string `json:"voice_id,omitempty"`
	Audio   []byte `json:"-"`
}

// Synthesized reports whether the turn carries audio.
func (t Turn) Synthesized() bool { return len(t.Audio) > 0 }

var (
	ErrParseFailure = errors.New("dialogue script could not be parsed")
	ErrIncomplete   = errors.New("not every turn has audio")
)

// ValidateScript checks that turns are usable for synthesis: every turn has
// a speaker, content and a valid role, and both roles appear.
func ValidateScript(turns []Turn) error {
	if len(turns) == 0 {
		return fmt.Errorf("%w: no turns", ErrParseFailure)
	}
	var host, guest bool
	for i, t := range turns {
		if strings.TrimSpace(t.Speaker) == "" || strings.TrimSpace(t.Content) == "" || !t.Role.Valid() {
			return fmt.Errorf("%w: turn %d is incomplete", ErrParseFailure, i)
		}
		host = host || t.Role == RoleHost
		guest = guest || t.Role == RoleGuest
	}
	if !host || !guest {
		return fmt.Errorf("%w: script needs at least one host and one guest turn", ErrParseFailure)
	}
	return nil
}

// Artifact is a finished or in-progress podcast.
type Artifact struct {
	SourceText  string `json:"source_text"`
	Turns       []Turn `json:"turns"`
	MergedAudio []byte `json:"-"`
}

// Complete reports whether every turn has audio and the merged audio is set.
func (a *Artifact) Complete() bool {
	if len(a.MergedAudio) == 0 || len(a.Turns) == 0 {
		return false
	}
	for _, t := range a.Turns {
		if !t.Synthesized() {
			return false
		}
	}
	return true
}

// SetMergedAudio stores the merged audio, refusing while any turn still
// lacks audio.
func (a *Artifact) SetMergedAudio(b []byte) error {
	for i, t := range a.Turns {
		if !t.Synthesized() {
			return fmt.Errorf("%w: turn %d", ErrIncomplete, i)
		}
	}
	if len(a.Turns) == 0 || len(b) == 0 {
		return ErrIncomplete
	}
	a.MergedAudio = b
	return nil
}

// Clips returns the per-turn audio in script order.
func (a *Artifact) Clips() [][]byte {
	out := make([][]byte, len(a.Turns))
	for i, t := range a.Turns {
		out[i] = t.Audio
	}
	return out
}

// CloneTurns deep-copies turns, audio included.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t
		if t.Audio != nil {
			out[i].Audio = append([]byte(nil), t.Audio...)
		}
	}
	return out
}
