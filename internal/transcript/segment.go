// Package transcript holds the speech recognition result model and the
// tolerant parser for provider transcript markup.
package transcript

import (
	"sort"
	"strings"
)

// DefaultSpeaker is assigned when the provider reports no diarization.
const DefaultSpeaker = "Speaker 1"

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Segment is one timed span of recognized speech. Times are seconds from the
// start of the audio.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

// Result is the outcome of a recognition job. Segments and FullText are only
// meaningful when Status is completed.
type Result struct {
	Status   Status    `json:"status"`
	Segments []Segment `json:"segments"`
	FullText string    `json:"full_text"`
	Duration float64   `json:"duration"`
	Provider string    `json:"provider,omitempty"`
}

// Processing returns a placeholder result for a job still running at the provider.
func Processing(provider string) *Result {
	return &Result{Status: StatusProcessing, Segments: []Segment{}, Provider: provider}
}

// Completed normalizes segments and derives FullText. A zero duration is
// replaced by the end of the last segment.
func Completed(segments []Segment, duration float64, provider string) *Result {
	segs := Normalize(segments)
	if duration <= 0 && len(segs) > 0 {
		duration = segs[len(segs)-1].End
	}
	return &Result{
		Status:   StatusCompleted,
		Segments: segs,
		FullText: FullText(segs),
		Duration: duration,
		Provider: provider,
	}
}

// FullText joins segment texts with single spaces, in order.
func FullText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// Normalize returns a new slice with empty segments removed, whitespace
// trimmed, a default speaker filled in, segments stable-sorted by start time
// and each end clamped so that no segment overlaps the next one.
func Normalize(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		if s.Speaker == "" {
			s.Speaker = DefaultSpeaker
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	for i := 0; i+1 < len(out); i++ {
		if out[i].End > out[i+1].Start {
			out[i].End = out[i+1].Start
		}
	}
	return out
}
