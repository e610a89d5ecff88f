// Package costs converts run usage into ledger credits.
package costs

import (
	"math"

	"github.com/snarg/audiocast/internal/config"
)

// Pricing holds credit rates. Rates come from PRICE_* environment variables
// through config.PricingConfig.
type Pricing struct {
	CreditsPerAudioMinute int64
	CreditsPer1KChars     int64
	MinimumCharge         int64
}

func New(cfg config.PricingConfig) Pricing {
	return Pricing{
		CreditsPerAudioMinute: cfg.CreditsPerAudioMinute,
		CreditsPer1KChars:     cfg.CreditsPer1KChars,
		MinimumCharge:         cfg.MinimumCharge,
	}
}

// SummaryCredits charges per started minute of recognized audio.
func (p Pricing) SummaryCredits(durationSeconds float64) int64 {
	minutes := int64(math.Ceil(durationSeconds / 60.0))
	return p.atLeastMinimum(minutes * p.CreditsPerAudioMinute)
}

// PodcastCredits charges per started 1000 characters of synthesized text.
func (p Pricing) PodcastCredits(chars int) int64 {
	thousands := int64(math.Ceil(float64(chars) / 1000.0))
	return p.atLeastMinimum(thousands * p.CreditsPer1KChars)
}

func (p Pricing) atLeastMinimum(c int64) int64 {
	if c < p.MinimumCharge {
		return p.MinimumCharge
	}
	return c
}
