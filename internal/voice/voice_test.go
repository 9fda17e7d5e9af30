package voice_test

import (
	"testing"

	"github.com/book-expert/tts-gateway/internal/voice"
	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		token    string
		expected string
	}{
		{name: "female", token: voice.Female, expected: voice.FemaleID},
		{name: "male", token: voice.Male, expected: voice.MaleID},
		{name: "neural female", token: voice.NeuralFemale, expected: voice.NeuralFemaleID},
		{name: "neural male", token: voice.NeuralMale, expected: voice.NeuralMaleID},
		{name: "legacy passthrough", token: "en-GB-Wavenet-B", expected: "en-GB-Wavenet-B"},
		{name: "unknown token", token: "xyz", expected: voice.DefaultID},
		{name: "empty token", token: "", expected: voice.DefaultID},
		{name: "malformed legacy", token: "en-us-standard-c", expected: voice.DefaultID},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, voice.Resolve(testCase.token))
		})
	}
}

func TestSimplify(t *testing.T) {
	t.Parallel()

	for _, token := range voice.Tokens() {
		assert.Equal(t, token, voice.Simplify(voice.Resolve(token)))
	}

	assert.Equal(t, voice.Default, voice.Simplify("en-GB-Wavenet-B"))
	assert.Equal(t, voice.Default, voice.Simplify(""))
}

func TestLanguageOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "en-US", voice.LanguageOf(voice.NeuralMaleID))
	assert.Equal(t, "de-DE", voice.LanguageOf("de-DE-Wavenet-A"))
	assert.Empty(t, voice.LanguageOf("female"))
}
