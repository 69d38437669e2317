// Package kpi derives delay, cancellation, and efficiency metrics from finalized
// MatchedTripStop records over stop, route, and global groupings and configurable
// time windows
package kpi

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/railmetrics/railmatch/business/matching"
)

// Grouping is the dimension finalized records are aggregated by
type Grouping int

const (
	GroupGlobal Grouping = iota
	GroupRoute
	GroupStop
)

// String - Stringer interface for Grouping
func (g Grouping) String() string {
	switch g {
	case GroupRoute:
		return "route"
	case GroupStop:
		return "stop"
	}
	return "global"
}

// ParseGrouping maps a grouping name to its Grouping
func ParseGrouping(name string) (Grouping, error) {
	switch name {
	case "global", "":
		return GroupGlobal, nil
	case "route":
		return GroupRoute, nil
	case "stop":
		return GroupStop, nil
	}
	return GroupGlobal, fmt.Errorf("unknown grouping %q", name)
}

// Window is an inclusive range of service dates
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DayWindow covers the single service date of date
func DayWindow(date time.Time) Window {
	day := dayOf(date)
	return Window{Start: day, End: day}
}

// WeekWindow covers the Monday through Sunday week containing date
func WeekWindow(date time.Time) Window {
	day := dayOf(date)
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)
	return Window{Start: monday, End: monday.AddDate(0, 0, 6)}
}

// RangeWindow covers the service dates from start through end inclusive
func RangeWindow(start time.Time, end time.Time) Window {
	return Window{Start: dayOf(start), End: dayOf(end)}
}

// Days yields the service dates of the window in order
func (w Window) Days() []time.Time {
	var days []time.Time
	for day := w.Start; !day.After(w.End); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

func dayOf(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
}

func dayKey(date time.Time) string {
	return date.Format("2006-01-02")
}

// Aggregate is the KPI summary for one grouping dimension over one window. Queries
// always return a well formed Aggregate, degrading to zero counts and visible
// unmatched totals when data is missing
type Aggregate struct {
	Grouping  string `json:"grouping"`
	Dimension string `json:"dimension,omitempty"`
	Window    Window `json:"window"`

	SampleCount    int `json:"sample_count"`
	CancelledCount int `json:"cancelled_count"`
	// UnmatchedCount is how many trip-stops had no realtime data at all, a feed
	// coverage signal, never folded into cancellations
	UnmatchedCount int `json:"unmatched_count"`
	// ObservedCount is how many samples carried a usable delay
	ObservedCount int `json:"observed_count"`
	OnTimeCount   int `json:"on_time_count"`

	OnTimeThresholdSeconds int     `json:"on_time_threshold_seconds"`
	OnTimeRate             float64 `json:"on_time_rate"`
	CancellationRate       float64 `json:"cancellation_rate"`

	MeanDelaySeconds float64            `json:"mean_delay_seconds"`
	MaxDelaySeconds  int                `json:"max_delay_seconds"`
	DelayPercentiles map[string]float64 `json:"delay_percentiles"`

	// day class counts describe the window itself for interpretation of the figures
	Weekdays    int `json:"weekdays"`
	WeekendDays int `json:"weekend_days"`
	Holidays    int `json:"holidays"`
}

// ErrWindowClosed indicates an ingest attempted to touch a service date whose
// aggregation window was already closed
var ErrWindowClosed = errors.New("aggregation window for service date is closed")

// ErrNotFinalized indicates an ingest was attempted with a record that has not been
// finalized by the matcher
var ErrNotFinalized = errors.New("record is not finalized")

type bucketKey struct {
	grouping  Grouping
	dimension string
	day       string
}

// AggregatorConfig carries the aggregator tunables
type AggregatorConfig struct {
	// DefaultOnTimeThreshold classifies a delay as on time when no threshold is given
	// at query time
	DefaultOnTimeThreshold time.Duration
	// Percentiles to report on delay distributions, as percent ranks
	Percentiles []float64
}

// Aggregator maintains incremental KPI buckets per grouping dimension and service
// date. Each finalized record updates exactly one bucket per grouping. Buckets for a
// closed service date are immutable
type Aggregator struct {
	cfg      AggregatorConfig
	calendar *serviceCalendar

	mu         sync.Mutex
	buckets    map[bucketKey]*dayBucket
	closedDays map[string]bool
}

// NewAggregator builds an Aggregator, filling zero config values with defaults
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.DefaultOnTimeThreshold == 0 {
		cfg.DefaultOnTimeThreshold = 300 * time.Second
	}
	if len(cfg.Percentiles) == 0 {
		cfg.Percentiles = []float64{50, 90}
	}
	return &Aggregator{
		cfg:        cfg,
		calendar:   makeServiceCalendar(),
		buckets:    make(map[bucketKey]*dayBucket),
		closedDays: make(map[string]bool),
	}
}

// Ingest folds one finalized MatchedTripStop into its global, route, and stop
// buckets for its service date. Records for closed days and records that are not
// finalized are rejected
func (a *Aggregator) Ingest(record *matching.MatchedTripStop) error {
	if record.FinalizedAt.IsZero() {
		return ErrNotFinalized
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	day := dayKey(record.ServiceDate)
	if a.closedDays[day] {
		return fmt.Errorf("%w: %s", ErrWindowClosed, day)
	}

	a.bucketFor(GroupGlobal, "", day).addRecord(record)
	a.bucketFor(GroupRoute, record.RouteId, day).addRecord(record)
	a.bucketFor(GroupStop, record.StopId, day).addRecord(record)
	return nil
}

// CloseDay marks a service date's aggregation window closed. Buckets for the date
// are never mutated afterwards
func (a *Aggregator) CloseDay(date time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closedDays[dayKey(date)] = true
}

// Query returns the aggregate for a grouping dimension over a window, a pure read.
// thresholdSeconds classifies on-time performance at query time so the threshold can
// change without reingesting, zero applies the configured default
func (a *Aggregator) Query(grouping Grouping, dimension string, window Window, thresholdSeconds int) Aggregate {
	if thresholdSeconds == 0 {
		thresholdSeconds = int(a.cfg.DefaultOnTimeThreshold.Seconds())
	}

	a.mu.Lock()
	merged := dayBucket{}
	for _, day := range window.Days() {
		if bucket, present := a.buckets[bucketKey{grouping: grouping, dimension: dimension, day: dayKey(day)}]; present {
			merged.merge(bucket)
		}
	}
	a.mu.Unlock()

	result := Aggregate{
		Grouping:               grouping.String(),
		Dimension:              dimension,
		Window:                 window,
		SampleCount:            merged.sampleCount,
		CancelledCount:         merged.cancelledCount,
		UnmatchedCount:         merged.unmatchedCount,
		ObservedCount:          len(merged.delays),
		OnTimeThresholdSeconds: thresholdSeconds,
		DelayPercentiles:       make(map[string]float64),
	}
	for _, day := range window.Days() {
		switch a.calendar.classify(day) {
		case Holiday:
			result.Holidays++
		case WeekendDay:
			result.WeekendDays++
		default:
			result.Weekdays++
		}
	}

	sorted := merged.sortedDelays()
	if len(sorted) > 0 {
		result.MeanDelaySeconds = meanOf(sorted)
		result.MaxDelaySeconds = sorted[len(sorted)-1]
		for _, delay := range sorted {
			if delay <= thresholdSeconds {
				result.OnTimeCount++
			}
		}
		result.OnTimeRate = float64(result.OnTimeCount) / float64(len(sorted))
	}
	for _, p := range a.cfg.Percentiles {
		result.DelayPercentiles[fmt.Sprintf("p%g", p)] = percentileOf(sorted, p)
	}
	if merged.sampleCount > 0 {
		result.CancellationRate = float64(merged.cancelledCount) / float64(merged.sampleCount)
	}
	return result
}

func (a *Aggregator) bucketFor(grouping Grouping, dimension string, day string) *dayBucket {
	key := bucketKey{grouping: grouping, dimension: dimension, day: day}
	bucket, present := a.buckets[key]
	if !present {
		bucket = &dayBucket{}
		a.buckets[key] = bucket
	}
	return bucket
}

// addRecord folds one finalized record into the bucket
func (b *dayBucket) addRecord(record *matching.MatchedTripStop) {
	b.sampleCount++
	if record.Cancelled {
		b.cancelledCount++
		return
	}
	if record.Quality == matching.QualityUnmatched {
		b.unmatchedCount++
		return
	}
	if record.DelaySeconds != nil {
		b.delays = append(b.delays, *record.DelaySeconds)
	}
}
