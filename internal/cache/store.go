package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/metrics"
	"github.com/book-expert/tts-gateway/internal/tts/ttsutils"
)

const (
	// PublicPath is the URL path under which cache files are served.
	PublicPath = "/tts-cache"

	// DefaultRetention is how long an artifact is kept after it was written.
	DefaultRetention = 7 * 24 * time.Hour

	filePermissions = 0o600
	tempPattern     = ".partial-*"
)

// Static errors.
var (
	ErrDirEmpty     = errors.New("cache directory cannot be empty")
	ErrBaseURLEmpty = errors.New("cache base URL cannot be empty")
)

// Options configures a Store.
type Options struct {
	Dir          string
	BaseURL      string
	Retention    time.Duration
	MaxSizeBytes int64
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Entry describes one stored artifact.
type Entry struct {
	Filename  string    `json:"filename"`
	URI       string    `json:"uri"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stats summarises the cache directory.
type Stats struct {
	Files        int   `json:"files"`
	Bytes        int64 `json:"bytes"`
	MaxSizeBytes int64 `json:"maxSizeBytes"`
	Indexed      int   `json:"indexed"`
}

// EvictReport is the outcome of one retention sweep.
type EvictReport struct {
	Scanned        int
	Deleted        int
	Failed         int
	RemainingFiles int
	RemainingBytes int64
}

// Store is a directory of audio artifacts indexed by fingerprint fragment
// and lookup tag. The index is rebuilt from the directory on Open and kept
// current by Put and Evict.
type Store struct {
	dir          string
	baseURL      string
	retention    time.Duration
	maxSizeBytes int64
	metrics      *metrics.Metrics
	now          func() time.Time
	log          *logger.Logger

	mutex sync.RWMutex
	index map[string]Entry
}

// Open creates the cache directory if needed and indexes its contents.
func Open(opts Options, log *logger.Logger) (*Store, error) {
	if opts.Dir == "" {
		return nil, ErrDirEmpty
	}

	if opts.BaseURL == "" {
		return nil, ErrBaseURLEmpty
	}

	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	err := ttsutils.EnsureDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare cache directory: %w", err)
	}

	store := &Store{
		dir:          opts.Dir,
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		retention:    opts.Retention,
		maxSizeBytes: opts.MaxSizeBytes,
		metrics:      opts.Metrics,
		now:          opts.Now,
		log:          log,
		index:        make(map[string]Entry),
	}

	err = store.rebuildIndex()
	if err != nil {
		return nil, err
	}

	return store, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// URIFor returns the public URI of a cache filename.
func (s *Store) URIFor(filename string) string {
	return s.baseURL + PublicPath + "/" + filename
}

// Lookup returns the artifact stored for fingerprint under tag. An indexed
// entry whose file has disappeared is dropped and reported as a miss.
func (s *Store) Lookup(fingerprint Fingerprint, tag string) (Entry, bool) {
	key := indexKey(tag, fingerprint.Fragment())

	s.mutex.RLock()
	entry, ok := s.index[key]
	s.mutex.RUnlock()

	if !ok {
		return Entry{}, false
	}

	_, err := os.Stat(filepath.Join(s.dir, entry.Filename))
	if err != nil {
		s.mutex.Lock()
		if current, found := s.index[key]; found && current.Filename == entry.Filename {
			delete(s.index, key)
		}
		s.mutex.Unlock()

		return Entry{}, false
	}

	return entry, true
}

// Put writes data as a new artifact and indexes it. The file is written to a
// temporary name first so a concurrent Lookup never sees a partial file.
func (s *Store) Put(fingerprint Fingerprint, tag, ext string, data []byte) (Entry, error) {
	name := NewName(fingerprint, tag, ext, s.now())
	filename := name.String()

	tempFile, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to create cache file: %w", err)
	}

	tempPath := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr != nil || closeErr != nil {
		removeErr := os.Remove(tempPath)
		if removeErr != nil {
			s.log.Warn("Failed to remove partial cache file '%s': %v", tempPath, removeErr)
		}

		return Entry{}, fmt.Errorf("failed to write cache file '%s': %w", filename, errors.Join(writeErr, closeErr))
	}

	err = os.Chmod(tempPath, filePermissions)
	if err != nil {
		s.log.Warn("Failed to set permissions on '%s': %v", tempPath, err)
	}

	finalPath := filepath.Join(s.dir, filename)

	err = os.Rename(tempPath, finalPath)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to commit cache file '%s': %w", filename, err)
	}

	entry := Entry{
		Filename:  filename,
		URI:       s.URIFor(filename),
		Size:      int64(len(data)),
		CreatedAt: name.CreatedAt,
	}

	s.mutex.Lock()
	s.index[indexKey(name.LookupTag(), name.Fragment)] = entry
	s.mutex.Unlock()

	return entry, nil
}

// Evict deletes every file whose modification time is older than the
// retention window. Failures are logged and counted, never returned. Files
// are never deleted to honour the size ceiling; exceeding it is only logged.
func (s *Store) Evict() EvictReport {
	var report EvictReport

	cutoff := s.now().Add(-s.retention)

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error("Cache sweep failed to read '%s': %v", s.dir, err)

		return report
	}

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}

		info, infoErr := dirEntry.Info()
		if infoErr != nil {
			// removed since ReadDir
			continue
		}

		report.Scanned++

		if !info.ModTime().Before(cutoff) {
			report.RemainingFiles++
			report.RemainingBytes += info.Size()

			continue
		}

		removeErr := os.Remove(filepath.Join(s.dir, dirEntry.Name()))
		if removeErr != nil && !os.IsNotExist(removeErr) {
			s.log.Warn("Cache sweep failed to delete '%s': %v", dirEntry.Name(), removeErr)

			report.Failed++

			continue
		}

		report.Deleted++
		s.forget(dirEntry.Name())
	}

	if s.maxSizeBytes > 0 && report.RemainingBytes > s.maxSizeBytes {
		s.log.Warn("Cache size %s exceeds configured ceiling %s",
			ttsutils.FormatFileSize(report.RemainingBytes), ttsutils.FormatFileSize(s.maxSizeBytes))
	}

	s.metrics.Evicted(report.Deleted, report.Failed, report.RemainingFiles, report.RemainingBytes)

	return report
}

// Stats scans the directory and reports its size.
func (s *Store) Stats() (Stats, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read cache directory: %w", err)
	}

	stats := Stats{MaxSizeBytes: s.maxSizeBytes}

	for _, dirEntry := range dirEntries {
		info, infoErr := dirEntry.Info()
		if infoErr != nil || dirEntry.IsDir() {
			continue
		}

		stats.Files++
		stats.Bytes += info.Size()
	}

	s.mutex.RLock()
	stats.Indexed = len(s.index)
	s.mutex.RUnlock()

	return stats, nil
}

func (s *Store) rebuildIndex() error {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	index := make(map[string]Entry)

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !ttsutils.IsAudioFile(dirEntry.Name()) {
			continue
		}

		name, parseErr := ParseName(dirEntry.Name())
		if parseErr != nil {
			continue
		}

		info, infoErr := dirEntry.Info()
		if infoErr != nil {
			continue
		}

		key := indexKey(name.LookupTag(), name.Fragment)
		if existing, ok := index[key]; ok && existing.CreatedAt.After(name.CreatedAt) {
			continue
		}

		index[key] = Entry{
			Filename:  dirEntry.Name(),
			URI:       s.URIFor(dirEntry.Name()),
			Size:      info.Size(),
			CreatedAt: name.CreatedAt,
		}
	}

	s.mutex.Lock()
	s.index = index
	s.mutex.Unlock()

	s.log.Info("Indexed %d cached artifacts in '%s'", len(index), s.dir)

	return nil
}

func (s *Store) forget(filename string) {
	name, err := ParseName(filename)
	if err != nil {
		return
	}

	key := indexKey(name.LookupTag(), name.Fragment)

	s.mutex.Lock()
	if entry, ok := s.index[key]; ok && entry.Filename == filename {
		delete(s.index, key)
	}
	s.mutex.Unlock()
}

func indexKey(tag, fragment string) string {
	return ttsutils.SanitizeTag(tag) + "/" + fragment
}
