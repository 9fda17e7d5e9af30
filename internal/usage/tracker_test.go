package usage_test

import (
	"sync"
	"testing"
	"time"

	"github.com/book-expert/tts-gateway/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.now = now
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]usage.Period{
		"":      usage.PeriodDay,
		"day":   usage.PeriodDay,
		"week":  usage.PeriodWeek,
		"month": usage.PeriodMonth,
	} {
		got, err := usage.ParsePeriod(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := usage.ParsePeriod("year")
	require.ErrorIs(t, err, usage.ErrUnknownPeriod)
}

func TestPeriod_Window(t *testing.T) {
	t.Parallel()

	// Wednesday
	now := time.Date(2026, time.October, 14, 15, 30, 0, 0, time.UTC)

	start, end := usage.PeriodDay.Window(now)
	assert.Equal(t, time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC), end)

	start, end = usage.PeriodWeek.Window(now)
	assert.Equal(t, time.Sunday, start.Weekday())
	assert.Equal(t, time.Date(2026, time.October, 11, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC), end)

	start, end = usage.PeriodMonth.Window(now)
	assert.Equal(t, time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestMemoryTracker_RecordAndQuery(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)}
	tracker := usage.NewMemoryTracker(100, clock.Now)

	tracker.Record("alice", 11, "female")
	tracker.Record("alice", 5, "neural-male")
	tracker.Record("bob", 1000, "male")

	summary := tracker.Query("alice", usage.PeriodDay)
	assert.Equal(t, "alice", summary.Subject)
	assert.Equal(t, 16, summary.TotalCharacters)
	assert.Equal(t, 2, summary.TotalRequests)
	assert.InDelta(t, 11*0.000004+5*0.000016, summary.TotalCostUSD, 1e-12)
	assert.Equal(t, 84, summary.RemainingQuota)

	bobSummary := tracker.Query("bob", usage.PeriodDay)
	assert.Equal(t, 0, bobSummary.RemainingQuota, "quota is clamped at zero")
}

func TestMemoryTracker_RecordCharge(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)}
	tracker := usage.NewMemoryTracker(100, clock.Now)

	tracker.RecordCharge("carol", 7, 0.000088)
	tracker.Record("carol", 3, "female")

	summary := tracker.Query("carol", usage.PeriodDay)
	assert.Equal(t, 10, summary.TotalCharacters)
	assert.Equal(t, 2, summary.TotalRequests)
	assert.InDelta(t, 0.000088+3*0.000004, summary.TotalCostUSD, 1e-12)
	assert.Equal(t, 90, summary.RemainingQuota)
}

func TestMemoryTracker_WindowsAggregateDays(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)}
	tracker := usage.NewMemoryTracker(0, clock.Now)

	// Previous month, outside the current week.
	clock.Set(time.Date(2026, time.September, 30, 12, 0, 0, 0, time.UTC))
	tracker.Record("anonymous", 10, "female")

	// Monday of the current week.
	clock.Set(time.Date(2026, time.October, 12, 12, 0, 0, 0, time.UTC))
	tracker.Record("anonymous", 20, "female")

	// Wednesday, today.
	clock.Set(time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC))
	tracker.Record("anonymous", 30, "female")

	assert.Equal(t, 30, tracker.Query("anonymous", usage.PeriodDay).TotalCharacters)
	assert.Equal(t, 50, tracker.Query("anonymous", usage.PeriodWeek).TotalCharacters)
	assert.Equal(t, 50, tracker.Query("anonymous", usage.PeriodMonth).TotalCharacters)

	month := tracker.Query("anonymous", usage.PeriodMonth)
	assert.Equal(t, 2, month.TotalRequests)
	assert.Equal(t, 1_000_000-50, month.RemainingQuota)
}

func TestMemoryTracker_ConcurrentRecord(t *testing.T) {
	t.Parallel()

	tracker := usage.NewMemoryTracker(0, nil)

	var waitGroup sync.WaitGroup

	for range 50 {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			tracker.Record("shared", 2, "female")
		}()
	}

	waitGroup.Wait()

	summary := tracker.Query("shared", usage.PeriodDay)
	assert.Equal(t, 100, summary.TotalCharacters)
	assert.Equal(t, 50, summary.TotalRequests)
}
