// Package voice maps caller-facing voice tokens to provider voice identifiers.
package voice

import (
	"regexp"
	"strings"
)

// Canonical voice tokens.
const (
	Female       = "female"
	Male         = "male"
	NeuralFemale = "neural-female"
	NeuralMale   = "neural-male"
)

// Provider voice identifiers backing the canonical tokens.
const (
	FemaleID       = "en-US-Standard-C"
	MaleID         = "en-US-Standard-D"
	NeuralFemaleID = "en-US-Neural2-F"
	NeuralMaleID   = "en-US-Neural2-D"
)

// Default is the token used for unknown input.
const (
	Default   = Female
	DefaultID = FemaleID
)

// legacyPattern matches a provider voice id named directly, e.g. en-US-Wavenet-D.
var legacyPattern = regexp.MustCompile(`^[a-z]{2,3}-[A-Z]{2}-[A-Za-z0-9]+-[A-Z]$`)

var tokenToID = map[string]string{
	Female:       FemaleID,
	Male:         MaleID,
	NeuralFemale: NeuralFemaleID,
	NeuralMale:   NeuralMaleID,
}

var idToToken = map[string]string{
	FemaleID:       Female,
	MaleID:         Male,
	NeuralFemaleID: NeuralFemale,
	NeuralMaleID:   NeuralMale,
}

// Resolve returns the provider voice id for a token. Legacy provider ids pass
// through; anything else resolves to the default voice.
func Resolve(token string) string {
	if id, ok := tokenToID[token]; ok {
		return id
	}

	if IsLegacy(token) {
		return token
	}

	return DefaultID
}

// Simplify returns the canonical token for a provider id, or the default token.
func Simplify(providerID string) string {
	if token, ok := idToToken[providerID]; ok {
		return token
	}

	return Default
}

// IsLegacy reports whether the token directly names a provider voice.
func IsLegacy(token string) bool {
	return legacyPattern.MatchString(token)
}

// Tokens lists the canonical tokens.
func Tokens() []string {
	return []string{Female, Male, NeuralFemale, NeuralMale}
}

// LanguageOf returns the language code prefix of a provider id (en-US for
// en-US-Standard-C), or an empty string if the id has no such prefix.
func LanguageOf(providerID string) string {
	parts := strings.SplitN(providerID, "-", 3)
	if len(parts) < 3 {
		return ""
	}

	return parts[0] + "-" + parts[1]
}
