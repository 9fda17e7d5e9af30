// Package usage accumulates per-subject synthesis usage in process memory.
package usage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/tts-gateway/internal/pricing"
)

// Period selects the window a usage query aggregates over.
type Period string

// Query periods.
const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ErrUnknownPeriod is returned for periods other than day, week and month.
var ErrUnknownPeriod = errors.New("unknown usage period")

// ParsePeriod parses a period name. An empty name selects PeriodDay.
func ParsePeriod(name string) (Period, error) {
	switch Period(name) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, name)
	}
}

// Window returns the [start, end) range of the period containing now, in
// now's location. Weeks start on Sunday and months on day 1.
func (p Period) Window(now time.Time) (time.Time, time.Time) {
	day := startOfDay(now)

	switch p {
	case PeriodWeek:
		start := day.AddDate(0, 0, -int(day.Weekday()))

		return start, start.AddDate(0, 0, 7)
	case PeriodMonth:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())

		return start, start.AddDate(0, 1, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

// Summary is the aggregated usage of one subject over a window.
type Summary struct {
	Subject         string    `json:"subject"`
	Period          Period    `json:"period"`
	TotalCharacters int       `json:"totalCharacters"`
	TotalRequests   int       `json:"totalRequests"`
	TotalCostUSD    float64   `json:"totalCostUSD"`
	RemainingQuota  int       `json:"remainingQuota"`
	WindowStart     time.Time `json:"windowStart"`
	WindowEnd       time.Time `json:"windowEnd"`
}

// Tracker records and aggregates usage. Record prices one request by its
// voice; RecordCharge takes a cost already priced by the caller, for requests
// that mix voice tiers.
type Tracker interface {
	Record(subject string, characters int, voiceToken string)
	RecordCharge(subject string, characters int, costUSD float64)
	Query(subject string, period Period) Summary
}

const dayLayout = "2006-01-02"

type bucketKey struct {
	subject string
	day     string
}

type bucket struct {
	day        time.Time
	characters int
	requests   int
	costUSD    float64
}

// MemoryTracker keeps one bucket per subject and calendar day. It is reset
// when the process restarts.
type MemoryTracker struct {
	mutex     sync.Mutex
	buckets   map[bucketKey]*bucket
	freeChars int
	now       func() time.Time
}

// NewMemoryTracker creates a tracker whose remaining quota is computed
// against freeChars. A non-positive freeChars selects the published quota.
func NewMemoryTracker(freeChars int, now func() time.Time) *MemoryTracker {
	if freeChars <= 0 {
		freeChars = pricing.MonthlyFreeChars
	}

	if now == nil {
		now = time.Now
	}

	return &MemoryTracker{
		buckets:   make(map[bucketKey]*bucket),
		freeChars: freeChars,
		now:       now,
	}
}

// Record adds one request of characters synthesized with voiceToken.
func (m *MemoryTracker) Record(subject string, characters int, voiceToken string) {
	m.RecordCharge(subject, characters, pricing.Cost(characters, voiceToken))
}

// RecordCharge adds one request of characters that cost costUSD.
func (m *MemoryTracker) RecordCharge(subject string, characters int, costUSD float64) {
	day := startOfDay(m.now())
	key := bucketKey{subject: subject, day: day.Format(dayLayout)}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	entry, ok := m.buckets[key]
	if !ok {
		entry = &bucket{day: day}
		m.buckets[key] = entry
	}

	entry.characters += characters
	entry.requests++
	entry.costUSD += costUSD
}

// Query aggregates every bucket of subject whose day falls inside the
// period window containing the current time.
func (m *MemoryTracker) Query(subject string, period Period) Summary {
	start, end := period.Window(m.now())

	summary := Summary{
		Subject:     subject,
		Period:      period,
		WindowStart: start,
		WindowEnd:   end,
	}

	m.mutex.Lock()

	for key, entry := range m.buckets {
		if key.subject != subject || entry.day.Before(start) || !entry.day.Before(end) {
			continue
		}

		summary.TotalCharacters += entry.characters
		summary.TotalRequests += entry.requests
		summary.TotalCostUSD += entry.costUSD
	}

	m.mutex.Unlock()

	summary.RemainingQuota = max(0, m.freeChars-summary.TotalCharacters)

	return summary
}

func startOfDay(instant time.Time) time.Time {
	year, month, day := instant.Date()

	return time.Date(year, month, day, 0, 0, 0, 0, instant.Location())
}
