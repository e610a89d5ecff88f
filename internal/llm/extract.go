package llm

import "strings"

// ExtractObject returns the first balanced {...} block in text. Braces inside
// JSON string literals are ignored. An opening brace that never closes is
// skipped and the scan resumes at the next one. ok is false when no brace
// has a matching close.
func ExtractObject(text string) (obj string, ok bool) {
	for from := 0; from < len(text); {
		i := strings.IndexByte(text[from:], '{')
		if i < 0 {
			break
		}
		start := from + i
		if end := closeBrace(text, start); end > 0 {
			return text[start : end+1], true
		}
		from = start + 1
	}
	return "", false
}

// closeBrace returns the index of the brace closing text[start], or -1.
func closeBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
