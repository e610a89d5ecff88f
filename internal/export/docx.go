// Package export renders stored records as Word documents.
package export

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"

	"github.com/snarg/audiocast/internal/database"
	"github.com/snarg/audiocast/internal/transcript"
)

const (
	fontName = "Calibri"
	fontSize = 11
)

var ErrEmptyRecord = errors.New("record has nothing to export")

// RecordDocx writes rec to outputPath. Summary records get the summary,
// structured fields as bullets and the timestamped transcript; podcast
// records get the source text and the script.
func RecordDocx(rec *database.Record, outputPath string) error {
	if rec.Summary == nil && rec.Transcript == nil && len(rec.Script) == 0 {
		return ErrEmptyRecord
	}

	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("new document: %w", err)
	}

	title := rec.Title
	if title == "" {
		title = "Untitled"
	}
	addRun(doc.AddParagraph(""), title, true, 16)
	addRun(doc.AddParagraph(""), rec.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), false, 9)

	if rec.Summary != nil {
		heading(doc, "Summary")
		for _, para := range paragraphs(rec.Summary.SummaryText) {
			addRun(doc.AddParagraph(""), para, false, fontSize)
		}
		for _, key := range sortedKeys(rec.Summary.Fields) {
			lines := fieldLines(rec.Summary.Fields[key])
			if len(lines) == 0 {
				continue
			}
			heading(doc, Label(key))
			for _, l := range lines {
				addRun(doc.AddParagraph(""), "• "+l, false, fontSize)
			}
		}
	}

	if rec.Transcript != nil && len(rec.Transcript.Segments) > 0 {
		heading(doc, "Transcript")
		for _, line := range strings.Split(transcript.Render(rec.Transcript.Segments), "\n") {
			addRun(doc.AddParagraph(""), line, false, fontSize)
		}
	}

	if len(rec.Script) > 0 {
		if rec.SourceText != "" {
			heading(doc, "Source")
			for _, para := range paragraphs(rec.SourceText) {
				addRun(doc.AddParagraph(""), para, false, fontSize)
			}
		}
		heading(doc, "Script")
		for _, t := range rec.Script {
			p := doc.AddParagraph("")
			p.AddText(t.Speaker+": ").Font(fontName).Size(fontSize).Color("000000").Bold(true)
			p.AddText(t.Content).Font(fontName).Size(fontSize).Color("000000")
		}
	}

	return doc.SaveTo(outputPath)
}

func heading(doc *docx.RootDoc, text string) {
	doc.AddParagraph("")
	addRun(doc.AddParagraph(""), text, true, 13)
}

func addRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(text).Font(fontName).Size(size).Color("000000")
	if bold {
		run.Bold(true)
	}
}

func paragraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fieldLines flattens a structured field. Values decoded from JSON arrive
// as []any rather than []string.
func fieldLines(v any) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch x := v.(type) {
	case string:
		add(x)
	case []string:
		for _, s := range x {
			add(s)
		}
	case []any:
		for _, s := range x {
			add(fmt.Sprint(s))
		}
	case nil:
	default:
		add(fmt.Sprint(x))
	}
	return out
}

// Label turns a field key such as "actionItems" into "Action items".
func Label(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteRune(' ')
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
