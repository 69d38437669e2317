package matching

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/railmetrics/railmatch/business/data/realtime"
	"github.com/railmetrics/railmatch/business/data/schedule"
)

// AnomalyHandler receives observations set aside during matching. Handlers must not
// block, anomalies are advisory and never stop the pipeline
type AnomalyHandler interface {
	HandleAnomaly(anomaly *realtime.Anomaly)
}

// AnomalyHandlerFunc adapts a function to the AnomalyHandler interface
type AnomalyHandlerFunc func(anomaly *realtime.Anomaly)

func (f AnomalyHandlerFunc) HandleAnomaly(anomaly *realtime.Anomaly) {
	f(anomaly)
}

// MatcherConfig carries the matcher tunables
type MatcherConfig struct {
	// GraceDuration is how long past a stop's scheduled time the matcher waits for
	// observations before finalizing its record
	GraceDuration time.Duration
	// InferenceWindow bounds how far an observed time may sit from a scheduled time
	// for an inferred attribution
	InferenceWindow time.Duration
	// FinalizedRetention is how long finalized keys are remembered to classify late
	// arrivals, bounding the matcher's memory
	FinalizedRetention time.Duration
	// NormalizeStopRef maps an operator stop reference to a schedule stop id, nil
	// means refs are used as-is
	NormalizeStopRef func(string) string
}

// Matcher attributes resolved observations to scheduled trip-stops and finalizes one
// immutable MatchedTripStop per (trip, stop, service date) once the grace period
// elapses. All updates to a trip-stop are serialized through the matcher's lock
type Matcher struct {
	log       *log.Logger
	cfg       MatcherConfig
	anomalies AnomalyHandler

	mu          sync.Mutex
	trips       map[tripKey]*pendingTrip
	finalizedAt map[TripStopKey]time.Time
}

// NewMatcher builds a Matcher, filling zero config values with defaults
func NewMatcher(log *log.Logger, cfg MatcherConfig, anomalies AnomalyHandler) *Matcher {
	if cfg.GraceDuration == 0 {
		cfg.GraceDuration = 30 * time.Minute
	}
	if cfg.InferenceWindow == 0 {
		cfg.InferenceWindow = 3 * time.Minute
	}
	if cfg.FinalizedRetention == 0 {
		cfg.FinalizedRetention = 24 * time.Hour
	}
	if cfg.NormalizeStopRef == nil {
		cfg.NormalizeStopRef = func(ref string) string { return ref }
	}
	return &Matcher{
		log:         log,
		cfg:         cfg,
		anomalies:   anomalies,
		trips:       make(map[tripKey]*pendingTrip),
		finalizedAt: make(map[TripStopKey]time.Time),
	}
}

// ExpectTrip opens pending records for every stop of a scheduled trip so stops that
// never receive an observation still finalize when their grace period elapses
func (m *Matcher) ExpectTrip(tripSchedule *schedule.TripSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openTrip(tripSchedule)
}

// Attribute places a resolved observation on one scheduled trip-stop of its trip,
// applying the supersession rule. Observations that fit no stop, or that arrive
// after their target finalized, are passed to the anomaly handler and discarded
func (m *Matcher) Attribute(resolution *Resolution, observation *realtime.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tripSchedule := resolution.TripSchedule

	if observation.TripWide() {
		m.attributeTripWide(tripSchedule, observation)
		return
	}

	targetStop, quality := m.findTargetStop(tripSchedule, observation)
	if targetStop == nil {
		m.anomalies.HandleAnomaly(realtime.MakeAnomaly(realtime.AnomalyAttribution,
			tripSchedule.TripId, observation,
			"observation fits no scheduled stop of its resolved trip"))
		return
	}

	key := MakeTripStopKey(targetStop.TripId, targetStop.StopId, tripSchedule.ServiceDate)
	if _, done := m.finalizedAt[key]; done {
		m.anomalies.HandleAnomaly(realtime.MakeAnomaly(realtime.AnomalyLateArrival,
			tripSchedule.TripId, observation,
			fmt.Sprintf("record for stop %s finalized before observation arrived", targetStop.StopId)))
		return
	}

	trip := m.openTrip(tripSchedule)
	pending, present := trip.stops[targetStop.StopSequence]
	if !present {
		// stop finalized on an earlier cycle under a pruned key
		m.anomalies.HandleAnomaly(realtime.MakeAnomaly(realtime.AnomalyLateArrival,
			tripSchedule.TripId, observation,
			fmt.Sprintf("record for stop %s no longer open", targetStop.StopId)))
		return
	}
	pending.supersede(observation, quality)
	trip.noteObserved(targetStop.StopSequence)
}

// attributeTripWide applies a trip-level observation, a cancellation of the whole
// trip, to every still-open stop of the trip
func (m *Matcher) attributeTripWide(tripSchedule *schedule.TripSchedule, observation *realtime.Observation) {
	if !observation.Status.IsCancellation() {
		m.anomalies.HandleAnomaly(realtime.MakeAnomaly(realtime.AnomalyAttribution,
			tripSchedule.TripId, observation,
			"trip-wide observation with non-cancellation status"))
		return
	}
	trip := m.openTrip(tripSchedule)
	for _, pending := range trip.stops {
		pending.supersede(observation, QualityExact)
	}
}

// findTargetStop locates the scheduled trip-stop an observation describes. Direct
// stop identity yields an exact match. Otherwise the stop is inferred when the
// observation's position is consistent with exactly one stop by sequence adjacency
// and scheduled time proximity
func (m *Matcher) findTargetStop(tripSchedule *schedule.TripSchedule,
	observation *realtime.Observation) (*schedule.TripStopInstance, MatchQuality) {

	stopId := m.cfg.NormalizeStopRef(observation.OperatorStopRef)
	if stopId != "" {
		if sti := tripSchedule.TripStopForStopId(stopId); sti != nil {
			return sti, QualityExact
		}
	}

	if observation.StopSequence != nil {
		if sti := tripSchedule.TripStopForSequence(*observation.StopSequence); sti != nil {
			return sti, QualityInferred
		}
	}

	if observation.ObservedTime == nil {
		return nil, QualityUnmatched
	}
	var candidates []*schedule.TripStopInstance
	for _, sti := range tripSchedule.TripStops {
		if observation.StopSequence != nil {
			sequenceGap := int64(sti.StopSequence) - int64(*observation.StopSequence)
			if sequenceGap < -1 || sequenceGap > 1 {
				continue
			}
		}
		offset := observation.ObservedTime.Sub(sti.ScheduledTime())
		if offset < 0 {
			offset = -offset
		}
		if offset <= m.cfg.InferenceWindow {
			candidates = append(candidates, sti)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], QualityInferred
	}
	return nil, QualityUnmatched
}

// openTrip returns the pending trip, creating its open stop records on first sight
func (m *Matcher) openTrip(tripSchedule *schedule.TripSchedule) *pendingTrip {
	key := makeTripKey(tripSchedule.TripId, tripSchedule.ServiceDate)
	if trip, present := m.trips[key]; present {
		return trip
	}
	trip := makePendingTrip(tripSchedule, m.cfg.GraceDuration, func(k TripStopKey) bool {
		_, done := m.finalizedAt[k]
		return done
	})
	m.trips[key] = trip
	return trip
}

// FinalizeDue finalizes every open trip-stop whose grace-period deadline has passed
// at now and returns the immutable records, ordered by trip and stop sequence.
// Finalized keys are remembered so late arrivals can be classified, and pruned after
// the configured retention
func (m *Matcher) FinalizeDue(now time.Time) []*MatchedTripStop {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []*MatchedTripStop
	for key, trip := range m.trips {
		for sequence, pending := range trip.stops {
			if pending.deadline.After(now) {
				continue
			}
			matched := finalizeStop(trip, pending, now)
			results = append(results, matched)
			m.finalizedAt[matched.Key()] = now
			delete(trip.stops, sequence)
		}
		if len(trip.stops) == 0 {
			delete(m.trips, key)
		}
	}
	m.pruneFinalized(now)

	sort.Slice(results, func(i, j int) bool {
		if results[i].TripId != results[j].TripId {
			return results[i].TripId < results[j].TripId
		}
		return results[i].StopSequence < results[j].StopSequence
	})
	return results
}

// pruneFinalized drops finalized keys older than the retention window
func (m *Matcher) pruneFinalized(now time.Time) {
	for key, finalizedAt := range m.finalizedAt {
		if now.Sub(finalizedAt) > m.cfg.FinalizedRetention {
			delete(m.finalizedAt, key)
		}
	}
}

// OpenStopCount returns how many trip-stops are currently open, for logging
func (m *Matcher) OpenStopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, trip := range m.trips {
		count += len(trip.stops)
	}
	return count
}

// finalizeStop derives the immutable MatchedTripStop for a pending stop at its
// deadline. A stop with no observation is cancelled only when later stops of the
// same trip were observed, otherwise it is a data gap and stays unmatched
func finalizeStop(trip *pendingTrip, pending *pendingStop, now time.Time) *MatchedTripStop {
	sti := pending.tripStop
	matched := MatchedTripStop{
		TripId:             sti.TripId,
		RouteId:            trip.tripSchedule.RouteId,
		StopId:             sti.StopId,
		StopSequence:       sti.StopSequence,
		ServiceDate:        sti.ServiceDate,
		ScheduledArrival:   sti.ArrivalDateTime,
		ScheduledDeparture: sti.DepartureDateTime,
		Quality:            QualityUnmatched,
		FinalizedAt:        now,
	}

	if pending.observation == nil {
		matched.Cancelled = trip.hasObservationAfter(sti.StopSequence)
		return &matched
	}

	matched.Observation = pending.observation
	matched.Quality = pending.quality
	if pending.observation.Status.IsCancellation() {
		matched.Cancelled = true
		return &matched
	}
	if pending.observation.ObservedTime != nil {
		delay := int(pending.observation.ObservedTime.Sub(sti.ScheduledTime()).Seconds())
		matched.DelaySeconds = &delay
	}
	return &matched
}
