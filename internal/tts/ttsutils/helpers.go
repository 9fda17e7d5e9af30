// Package ttsutils holds small file helpers shared by the cache and the
// synthesis engine.
package ttsutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultDirPermissions = 0o750
	tagReplacement        = '_'
	durationResolution    = 100 * time.Millisecond
	sizeStep              = 1024
)

var sizeUnits = []string{"KB", "MB", "GB", "TB"}

// audioExtensions are the extensions the cache writes.
var audioExtensions = map[string]struct{}{
	"mp3": {},
	"wav": {},
}

// EnsureDir creates path and its parents if they do not exist.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// FormatDuration renders seconds for logs, rounded to a tenth of a second.
func FormatDuration(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Round(durationResolution).String()
}

// FormatFileSize renders a byte count with a binary unit, e.g. "1.5 MB".
func FormatFileSize(bytes int64) string {
	if bytes < sizeStep {
		return fmt.Sprintf("%d B", bytes)
	}

	value := float64(bytes) / sizeStep
	unit := 0

	for value >= sizeStep && unit < len(sizeUnits)-1 {
		value /= sizeStep
		unit++
	}

	return fmt.Sprintf("%.1f %s", value, sizeUnits[unit])
}

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// IsAudioFile reports whether filename carries an extension the cache writes.
func IsAudioFile(filename string) bool {
	_, ok := audioExtensions[Extension(filename)]

	return ok
}

// SanitizeTag keeps ASCII letters, digits, '-' and '_' and replaces every
// other rune, so a tag can never introduce a dot or path separator into a
// cache filename.
func SanitizeTag(tag string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return tagReplacement
		}
	}, tag)
}
