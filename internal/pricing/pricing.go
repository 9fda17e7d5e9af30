// Package pricing implements the per-character cost model for synthesized speech.
package pricing

import (
	"math"

	"github.com/book-expert/tts-gateway/internal/voice"
)

// Tier is the cost classification of a voice.
type Tier string

// Voice tiers.
const (
	Standard Tier = "standard"
	Premium  Tier = "premium"
)

// Rates in USD per character.
const (
	StandardRatePerChar = 0.000004
	PremiumMultiplier   = 4
	PremiumRatePerChar  = StandardRatePerChar * PremiumMultiplier
	MonthlyFreeChars    = 1_000_000
	charsPerThousand    = 1000
	centsPerDollar      = 100
)

var premiumVoices = map[string]struct{}{
	voice.NeuralFemale:   {},
	voice.NeuralMale:     {},
	voice.NeuralFemaleID: {},
	voice.NeuralMaleID:   {},
}

// TierRates describes the published rates of one tier.
type TierRates struct {
	PerCharacter     float64 `json:"perCharacter"`
	PerThousandChars float64 `json:"perThousandChars"`
}

// Info is the read-only pricing metadata.
type Info struct {
	Standard         TierRates `json:"standard"`
	Premium          TierRates `json:"premium"`
	MonthlyFreeChars int       `json:"monthlyFreeChars"`
	Currency         string    `json:"currency"`
}

// TierOf classifies a voice token or provider id.
func TierOf(token string) Tier {
	if _, ok := premiumVoices[token]; ok {
		return Premium
	}

	return Standard
}

// RatePerChar returns the per-character rate of a tier.
func RatePerChar(tier Tier) float64 {
	if tier == Premium {
		return PremiumRatePerChar
	}

	return StandardRatePerChar
}

// Cost returns the unrounded USD cost of synthesizing characters with a voice.
func Cost(characters int, token string) float64 {
	if characters <= 0 {
		return 0
	}

	return float64(characters) * RatePerChar(TierOf(token))
}

// RoundCents rounds an amount to whole cents for display.
func RoundCents(amount float64) float64 {
	return math.Round(amount*centsPerDollar) / centsPerDollar
}

// GetInfo returns the pricing metadata.
func GetInfo() Info {
	return Info{
		Standard: TierRates{
			PerCharacter:     StandardRatePerChar,
			PerThousandChars: StandardRatePerChar * charsPerThousand,
		},
		Premium: TierRates{
			PerCharacter:     PremiumRatePerChar,
			PerThousandChars: PremiumRatePerChar * charsPerThousand,
		},
		MonthlyFreeChars: MonthlyFreeChars,
		Currency:         "USD",
	}
}
