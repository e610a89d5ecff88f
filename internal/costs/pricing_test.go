package costs

import (
	"testing"

	"github.com/snarg/audiocast/internal/config"
)

func TestSummaryCredits(t *testing.T) {
	p := New(config.PricingConfig{CreditsPerAudioMinute: 2, CreditsPer1KChars: 3, MinimumCharge: 1})

	tests := []struct {
		name     string
		duration float64
		want     int64
	}{
		{"zero_duration_pays_minimum", 0, 1},
		{"partial_minute_rounds_up", 1, 2},
		{"exact_minutes", 120, 4},
		{"just_over", 120.5, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.SummaryCredits(tt.duration); got != tt.want {
				t.Errorf("SummaryCredits(%v) = %d, want %d", tt.duration, got, tt.want)
			}
		})
	}
}

func TestPodcastCredits(t *testing.T) {
	p := New(config.PricingConfig{CreditsPerAudioMinute: 2, CreditsPer1KChars: 3, MinimumCharge: 5})

	tests := []struct {
		name  string
		chars int
		want  int64
	}{
		{"below_minimum", 10, 5},
		{"two_thousand", 2000, 6},
		{"started_thousand", 2001, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.PodcastCredits(tt.chars); got != tt.want {
				t.Errorf("PodcastCredits(%d) = %d, want %d", tt.chars, got, tt.want)
			}
		})
	}
}
