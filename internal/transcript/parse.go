package transcript

import (
	"regexp"
	"strconv"
	"strings"
)

// FallbackSegmentSeconds is the duration given to each line of a transcript
// that carries no timestamp markup at all.
const FallbackSegmentSeconds = 5.0

// LineMatcher recognizes one transcript line. ok reports whether the line
// carries this matcher's markup; the segment text may still be empty, in
// which case the segment is dropped during normalization.
type LineMatcher interface {
	Name() string
	Match(line string) (seg Segment, ok bool)
}

// Parser tries its matchers in order on every line. When no line of a
// document matches, each non-empty line becomes a fixed-duration segment.
type Parser struct {
	Matchers         []LineMatcher
	FallbackDuration float64
}

// NewParser returns a parser with the built-in matchers, richest first.
func NewParser() *Parser {
	return &Parser{
		Matchers: []LineMatcher{
			SpeakerTupleMatcher{},
			SpeakerLabelMatcher{},
			RangeMatcher{},
		},
		FallbackDuration: FallbackSegmentSeconds,
	}
}

// Parse converts provider markup into normalized segments.
func (p *Parser) Parse(markup string) []Segment {
	lines := splitLines(markup)

	var (
		segs    []Segment
		labeled []int
	)
	marked := false
	for _, line := range lines {
		for _, m := range p.Matchers {
			if seg, ok := m.Match(line); ok {
				if _, isLabel := m.(SpeakerLabelMatcher); isLabel {
					labeled = append(labeled, len(segs))
				}
				segs = append(segs, seg)
				marked = true
				break
			}
		}
	}
	if marked {
		shiftZeroBased(segs, labeled)
		return Normalize(segs)
	}
	return Normalize(p.fallback(lines))
}

func (p *Parser) fallback(lines []string) []Segment {
	dur := p.FallbackDuration
	if dur <= 0 {
		dur = FallbackSegmentSeconds
	}
	segs := make([]Segment, 0, len(lines))
	var at float64
	for _, line := range lines {
		segs = append(segs, Segment{Start: at, End: at + dur, Text: line, Speaker: DefaultSpeaker})
		at += dur
	}
	return segs
}

func splitLines(s string) []string {
	raw := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

const tsPattern = `(\d+(?::\d{1,2}){0,2}(?:\.\d+)?)`

var (
	// [0:1.020,0:5.000,0]  text
	speakerTupleRe = regexp.MustCompile(`^\[\s*` + tsPattern + `\s*,\s*` + tsPattern + `\s*,\s*(\d+)\s*\]\s*(.*)$`)
	// [00:01-00:05] Speaker 2: text
	speakerLabelRe = regexp.MustCompile(`^\[\s*` + tsPattern + `\s*-\s*` + tsPattern + `\s*\]\s*(?i:speaker|spk|说话人)\s*(\w+)\s*[:：]\s*(.*)$`)
	// [00:01-00:05] text  or  [0:1.0,0:5.0] text
	rangeRe = regexp.MustCompile(`^\[\s*` + tsPattern + `\s*[-,]\s*` + tsPattern + `\s*\]\s*(.*)$`)
)

// SpeakerTupleMatcher handles "[start,end,speakerIndex] text". Speaker
// indexes are zero-based and reported as "Speaker N+1".
type SpeakerTupleMatcher struct{}

func (SpeakerTupleMatcher) Name() string { return "speaker_tuple" }

func (SpeakerTupleMatcher) Match(line string) (Segment, bool) {
	m := speakerTupleRe.FindStringSubmatch(line)
	if m == nil {
		return Segment{}, false
	}
	start, ok1 := ParseTimestamp(m[1])
	end, ok2 := ParseTimestamp(m[2])
	idx, err := strconv.Atoi(m[3])
	if !ok1 || !ok2 || err != nil {
		return Segment{}, false
	}
	return Segment{Start: start, End: end, Text: m[4], Speaker: "Speaker " + strconv.Itoa(idx+1)}, true
}

// shiftZeroBased renumbers the labeled segments of a document that uses
// "Speaker 0", matching the one-based numbering of SpeakerTupleMatcher.
func shiftZeroBased(segs []Segment, labeled []int) {
	zero := false
	for _, i := range labeled {
		if segs[i].Speaker == "Speaker 0" {
			zero = true
			break
		}
	}
	if !zero {
		return
	}
	for _, i := range labeled {
		if n, err := strconv.Atoi(strings.TrimPrefix(segs[i].Speaker, "Speaker ")); err == nil {
			segs[i].Speaker = "Speaker " + strconv.Itoa(n+1)
		}
	}
}

// SpeakerLabelMatcher handles "[start-end] Speaker X: text". Labels are kept
// as written; Parser renumbers documents whose numeric labels start at 0.
type SpeakerLabelMatcher struct{}

func (SpeakerLabelMatcher) Name() string { return "speaker_label" }

func (SpeakerLabelMatcher) Match(line string) (Segment, bool) {
	m := speakerLabelRe.FindStringSubmatch(line)
	if m == nil {
		return Segment{}, false
	}
	start, ok1 := ParseTimestamp(m[1])
	end, ok2 := ParseTimestamp(m[2])
	if !ok1 || !ok2 {
		return Segment{}, false
	}
	return Segment{Start: start, End: end, Text: m[4], Speaker: "Speaker " + m[3]}, true
}

// RangeMatcher handles "[start-end] text" with no speaker information.
type RangeMatcher struct{}

func (RangeMatcher) Name() string { return "range" }

func (RangeMatcher) Match(line string) (Segment, bool) {
	m := rangeRe.FindStringSubmatch(line)
	if m == nil {
		return Segment{}, false
	}
	start, ok1 := ParseTimestamp(m[1])
	end, ok2 := ParseTimestamp(m[2])
	if !ok1 || !ok2 {
		return Segment{}, false
	}
	return Segment{Start: start, End: end, Text: m[3], Speaker: DefaultSpeaker}, true
}

// ParseTimestamp accepts "ss", "mm:ss" or "hh:mm:ss", each with optional
// fractional seconds, and returns seconds.
func ParseTimestamp(s string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, false
	}
	var total float64
	for i, p := range parts {
		if p == "" {
			return 0, false
		}
		var v float64
		if i == len(parts)-1 {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return 0, false
			}
			v = f
		} else {
			n, err := strconv.Atoi(p)
			if err != nil {
				return 0, false
			}
			v = float64(n)
		}
		total = total*60 + v
	}
	return total, true
}
