package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitSentences splits text after each run of terminal punctuation (., !, ?)
// that is followed by whitespace or the end of input. Sentences keep their
// punctuation and are trimmed.
func SplitSentences(input string) []string {
	var (
		sentences []string
		current   strings.Builder
	)

	runes := []rune(input)

	for index, char := range runes {
		current.WriteRune(char)

		if !isTerminal(char) {
			continue
		}

		next := index + 1
		if next < len(runes) && isTerminal(runes[next]) {
			continue
		}

		if next == len(runes) || unicode.IsSpace(runes[next]) {
			sentences = appendTrimmed(sentences, current.String())
			current.Reset()
		}
	}

	return appendTrimmed(sentences, current.String())
}

// Chunk groups sentences into pieces whose UTF-8 length stays within maxBytes.
// A chunk accumulates sentences until the next one would exceed the limit.
// A sentence that alone exceeds the limit is split at word boundaries, and a
// single word that exceeds it is split at rune boundaries.
func Chunk(input string, maxBytes int) []string {
	if maxBytes <= 0 || len(input) <= maxBytes {
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			return nil
		}

		return []string{trimmed}
	}

	var (
		chunks  []string
		current string
	)

	flush := func() {
		chunks = appendTrimmed(chunks, current)
		current = ""
	}

	for _, sentence := range SplitSentences(input) {
		for _, piece := range splitOversized(sentence, maxBytes) {
			if current == "" {
				current = piece

				continue
			}

			if len(current)+1+len(piece) > maxBytes {
				flush()

				current = piece

				continue
			}

			current += " " + piece
		}
	}

	flush()

	return chunks
}

func splitOversized(sentence string, maxBytes int) []string {
	if len(sentence) <= maxBytes {
		return []string{sentence}
	}

	var (
		pieces  []string
		current string
	)

	for _, word := range strings.Fields(sentence) {
		for _, part := range splitRunes(word, maxBytes) {
			switch {
			case current == "":
				current = part
			case len(current)+1+len(part) > maxBytes:
				pieces = append(pieces, current)
				current = part
			default:
				current += " " + part
			}
		}
	}

	if current != "" {
		pieces = append(pieces, current)
	}

	return pieces
}

func splitRunes(word string, maxBytes int) []string {
	if len(word) <= maxBytes {
		return []string{word}
	}

	var parts []string

	for len(word) > maxBytes {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(word[cut]) {
			cut--
		}

		if cut == 0 {
			_, size := utf8.DecodeRuneInString(word)
			cut = size
		}

		parts = append(parts, word[:cut])
		word = word[cut:]
	}

	if word != "" {
		parts = append(parts, word)
	}

	return parts
}

func isTerminal(char rune) bool {
	return char == '.' || char == '!' || char == '?'
}

func appendTrimmed(list []string, value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return list
	}

	return append(list, trimmed)
}
