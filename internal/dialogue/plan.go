package dialogue

import "unicode/utf8"

// Band is the target shape of a script for a given source length.
type Band struct {
	MaxSourceChars int // inclusive upper bound, 0 for the last band
	Turns          int
	MinChars       int // per-turn length range
	MaxChars       int
}

// MaxTurns caps script length regardless of input size.
const MaxTurns = 24

// bands must be ordered with non-decreasing Turns.
var bands = []Band{
	{MaxSourceChars: 300, Turns: 4, MinChars: 30, MaxChars: 60},
	{MaxSourceChars: 1000, Turns: 6, MinChars: 50, MaxChars: 100},
	{MaxSourceChars: 3000, Turns: 10, MinChars: 80, MaxChars: 150},
	{MaxSourceChars: 8000, Turns: 16, MinChars: 100, MaxChars: 200},
	{Turns: MaxTurns, MinChars: 120, MaxChars: 250},
}

// Plan picks the band for a source text length in characters.
func Plan(chars int) Band {
	for _, b := range bands {
		if b.MaxSourceChars == 0 || chars <= b.MaxSourceChars {
			return b
		}
	}
	return bands[len(bands)-1]
}

// PlanText is Plan over the rune count of text.
func PlanText(text string) Band {
	return Plan(utf8.RuneCountInString(text))
}
