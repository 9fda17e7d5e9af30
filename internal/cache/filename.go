package cache

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/tts-gateway/internal/tts/ttsutils"
)

// Artifact kinds, which are also the first field of a cache filename.
const (
	KindSpeech       = "tts"
	KindConversation = "conversation"
)

// TagConversation is the lookup tag of conversation artifacts.
const TagConversation = "conversation"

const fallbackPrefix = "fallback-"

// FallbackTag returns the tag a fallback rendering of tag is stored under.
// Lookups use the plain tag, so fallback audio is served once and never
// reported as a cache hit.
func FallbackTag(tag string) string {
	return fallbackPrefix + tag
}

const (
	nameSeparator         = "-"
	minSpeechFields       = 4
	minConversationFields = 3
)

// ErrInvalidName is returned for filenames outside the cache grammar.
var ErrInvalidName = errors.New("not a cache filename")

// Name is the parsed form of a cache filename:
// tts-{tag}-{fragment}-{millis}.{ext} or conversation-{fragment}-{millis}.{ext}.
type Name struct {
	Kind      string
	Tag       string
	Fragment  string
	CreatedAt time.Time
	Ext       string
}

// NewName builds the filename of a new artifact.
func NewName(fingerprint Fingerprint, tag, ext string, createdAt time.Time) Name {
	kind := KindSpeech
	if tag == TagConversation {
		kind = KindConversation
	}

	return Name{
		Kind:      kind,
		Tag:       ttsutils.SanitizeTag(tag),
		Fragment:  fingerprint.Fragment(),
		CreatedAt: time.UnixMilli(createdAt.UnixMilli()),
		Ext:       ext,
	}
}

// String renders the filename.
func (n Name) String() string {
	millis := strconv.FormatInt(n.CreatedAt.UnixMilli(), 10)

	fields := []string{n.Kind}
	if n.Kind == KindSpeech {
		fields = append(fields, n.Tag)
	}

	fields = append(fields, n.Fragment, millis)

	return strings.Join(fields, nameSeparator) + "." + n.Ext
}

// LookupTag returns the tag this artifact is found under.
func (n Name) LookupTag() string {
	if n.Kind == KindConversation {
		return TagConversation
	}

	return n.Tag
}

// ParseName parses a cache filename. Voice tags may themselves contain
// dashes, so fields are taken from the right.
func ParseName(filename string) (Name, error) {
	ext := ttsutils.Extension(filename)
	if ext == "" {
		return Name{}, fmt.Errorf("%w: %q has no extension", ErrInvalidName, filename)
	}

	stem := strings.TrimSuffix(filename, "."+ext)
	fields := strings.Split(stem, nameSeparator)

	var name Name

	switch fields[0] {
	case KindSpeech:
		if len(fields) < minSpeechFields {
			return Name{}, fmt.Errorf("%w: %q", ErrInvalidName, filename)
		}

		name.Tag = strings.Join(fields[1:len(fields)-2], nameSeparator)
	case KindConversation:
		if len(fields) != minConversationFields {
			return Name{}, fmt.Errorf("%w: %q", ErrInvalidName, filename)
		}
	default:
		return Name{}, fmt.Errorf("%w: %q has unknown kind", ErrInvalidName, filename)
	}

	millis, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return Name{}, fmt.Errorf("%w: %q has a bad timestamp", ErrInvalidName, filename)
	}

	name.Kind = fields[0]
	name.Fragment = fields[len(fields)-2]
	name.CreatedAt = time.UnixMilli(millis)
	name.Ext = ext

	if len(name.Fragment) != FragmentLength {
		return Name{}, fmt.Errorf("%w: %q has a bad hash fragment", ErrInvalidName, filename)
	}

	return name, nil
}
