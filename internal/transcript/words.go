package transcript

import "strings"

// Word is a timestamped token from a provider that reports word timings.
type Word struct {
	Text    string
	Start   float64
	End     float64
	Speaker string
}

// GroupWords builds segments from consecutive words spoken by the same
// speaker. A new segment also starts when the silence between two words
// exceeds maxGap seconds (0 disables gap splitting).
func GroupWords(words []Word, maxGap float64) []Segment {
	if len(words) == 0 {
		return []Segment{}
	}

	var segs []Segment
	var b strings.Builder
	cur := Segment{Start: words[0].Start, End: words[0].End, Speaker: words[0].Speaker}

	flush := func() {
		cur.Text = strings.Join(strings.Fields(b.String()), " ")
		segs = append(segs, cur)
		b.Reset()
	}

	for i, w := range words {
		if i > 0 {
			gap := w.Start - cur.End
			if w.Speaker != cur.Speaker || (maxGap > 0 && gap > maxGap) {
				flush()
				cur = Segment{Start: w.Start, End: w.End, Speaker: w.Speaker}
			}
		}
		b.WriteString(w.Text)
		if !strings.HasSuffix(w.Text, " ") {
			b.WriteByte(' ')
		}
		if w.End > cur.End {
			cur.End = w.End
		}
	}
	flush()
	return Normalize(segs)
}
