package cache

import (
	"context"
	"time"

	"github.com/book-expert/logger"
)

// DefaultSweepInterval is how often the retention sweep runs.
const DefaultSweepInterval = 6 * time.Hour

// Sweeper runs Store.Evict once at startup and then on a fixed interval.
type Sweeper struct {
	store    *Store
	interval time.Duration
	log      *logger.Logger
}

// NewSweeper creates a sweeper for store. A non-positive interval selects
// DefaultSweepInterval.
func NewSweeper(store *Store, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{store: store, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled. It always returns nil; sweep failures
// are logged by the store.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	report := s.store.Evict()

	s.log.Info("Cache sweep: scanned %d, deleted %d, failed %d, %d files remaining",
		report.Scanned, report.Deleted, report.Failed, report.RemainingFiles)
}
