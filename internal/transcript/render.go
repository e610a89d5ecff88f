package transcript

import (
	"fmt"
	"strings"
)

// Render formats segments as "[mm:ss-mm:ss] Speaker: text" lines. The output
// is accepted back by Parser.
func Render(segments []Segment) string {
	var b strings.Builder
	for i, s := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := s.Speaker
		if speaker == "" {
			speaker = DefaultSpeaker
		}
		fmt.Fprintf(&b, "[%s-%s] %s: %s", FormatTimestamp(s.Start), FormatTimestamp(s.End), speaker, s.Text)
	}
	return b.String()
}

// FormatTimestamp renders seconds as mm:ss, or hh:mm:ss past one hour.
func FormatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
