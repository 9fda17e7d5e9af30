package ttsutils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/tts-gateway/internal/tts/ttsutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache", "nested")

	require.NoError(t, ttsutils.EnsureDir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, ttsutils.EnsureDir(path), "existing directory")
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	require.Error(t, ttsutils.EnsureDir(path))
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	testCases := map[float64]string{
		0:      "0s",
		2:      "2s",
		30.54:  "30.5s",
		90.5:   "1m30.5s",
		3670:   "1h1m10s",
		0.0001: "0s",
	}

	for seconds, expected := range testCases {
		assert.Equal(t, expected, ttsutils.FormatDuration(seconds), "seconds=%v", seconds)
	}
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		bytes    int64
		expected string
	}{
		{bytes: 0, expected: "0 B"},
		{bytes: 500, expected: "500 B"},
		{bytes: 2048, expected: "2.0 KB"},
		{bytes: 1572864, expected: "1.5 MB"},
		{bytes: 1 << 30, expected: "1.0 GB"},
		{bytes: 3 << 40, expected: "3.0 TB"},
		{bytes: 2 << 50, expected: "2048.0 TB"},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, ttsutils.FormatFileSize(testCase.bytes))
	}
}

func TestIsAudioFile(t *testing.T) {
	t.Parallel()

	assert.True(t, ttsutils.IsAudioFile("tts-female-abcdef012345-1.mp3"))
	assert.True(t, ttsutils.IsAudioFile("conversation-abcdef012345-1.WAV"))
	assert.False(t, ttsutils.IsAudioFile(".partial-123"))
	assert.False(t, ttsutils.IsAudioFile("notes.txt"))
	assert.False(t, ttsutils.IsAudioFile("noext"))
}

func TestExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "gz", ttsutils.Extension("archive.tar.gz"))
	assert.Equal(t, "mp3", ttsutils.Extension("clip.MP3"))
	assert.Empty(t, ttsutils.Extension("noext"))
}

func TestSanitizeTag(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "token", input: "neural-male", expected: "neural-male"},
		{name: "legacy voice id", input: "en-US-Wavenet-D", expected: "en-US-Wavenet-D"},
		{name: "separators and dots", input: "a/b\\c.d e", expected: "a_b_c_d_e"},
		{name: "non ascii", input: "stimme-ä", expected: "stimme-_"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, ttsutils.SanitizeTag(testCase.input))
		})
	}
}
