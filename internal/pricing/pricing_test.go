package pricing_test

import (
	"testing"

	"github.com/book-expert/tts-gateway/internal/pricing"
	"github.com/book-expert/tts-gateway/internal/voice"
	"github.com/stretchr/testify/assert"
)

func TestTierOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, pricing.Standard, pricing.TierOf(voice.Female))
	assert.Equal(t, pricing.Standard, pricing.TierOf(voice.Male))
	assert.Equal(t, pricing.Premium, pricing.TierOf(voice.NeuralFemale))
	assert.Equal(t, pricing.Premium, pricing.TierOf(voice.NeuralMale))
	assert.Equal(t, pricing.Premium, pricing.TierOf(voice.NeuralMaleID))
	assert.Equal(t, pricing.Standard, pricing.TierOf("xyz"))
}

func TestCost_HelloWorld(t *testing.T) {
	t.Parallel()

	cost := pricing.Cost(len("Hello world"), voice.Female)

	assert.InDelta(t, 0.000044, cost, 1e-12)
	assert.InDelta(t, 0.0, pricing.RoundCents(cost), 1e-12)
}

func TestCost_LinearInCharacters(t *testing.T) {
	t.Parallel()

	for _, token := range []string{voice.Female, voice.NeuralMale} {
		previous := 0.0

		for chars := 1; chars <= 1000; chars *= 10 {
			cost := pricing.Cost(chars, token)
			assert.Greater(t, cost, previous)
			assert.InDelta(t, float64(chars)*pricing.Cost(1, token), cost, 1e-12)

			previous = cost
		}
	}
}

func TestCost_PremiumIsFourTimesStandard(t *testing.T) {
	t.Parallel()

	standard := pricing.Cost(1234, voice.Male)
	premium := pricing.Cost(1234, voice.NeuralMale)

	assert.InDelta(t, 4*standard, premium, 1e-12)
}

func TestCost_NonPositive(t *testing.T) {
	t.Parallel()

	assert.Zero(t, pricing.Cost(0, voice.Female))
	assert.Zero(t, pricing.Cost(-5, voice.NeuralFemale))
}

func TestGetInfo(t *testing.T) {
	t.Parallel()

	info := pricing.GetInfo()

	assert.InDelta(t, 0.004, info.Standard.PerThousandChars, 1e-12)
	assert.InDelta(t, 0.016, info.Premium.PerThousandChars, 1e-12)
	assert.Equal(t, 1_000_000, info.MonthlyFreeChars)
	assert.Equal(t, "USD", info.Currency)
}
