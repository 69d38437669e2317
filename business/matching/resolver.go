package matching

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/railmetrics/railmatch/business/data/realtime"
	"github.com/railmetrics/railmatch/business/data/schedule"
)

// ScheduleRepository is the read contract the resolver needs from the schedule
// store. Calendar exceptions are already resolved by the store for each service date
type ScheduleRepository interface {
	// TripSchedule loads a trip operating on serviceDate, returning
	// schedule.ErrTripNotScheduled when it does not operate that day
	TripSchedule(tripId string, serviceDate time.Time) (*schedule.TripSchedule, error)
	// CandidateTrips finds trips on routeId active on serviceDate with a first
	// departure within toleranceSeconds of departureSeconds
	CandidateTrips(routeId string, serviceDate time.Time, departureSeconds int, toleranceSeconds int) ([]*schedule.TripSchedule, error)
}

// ErrUnresolved indicates no scheduled trip could be found for an observation
var ErrUnresolved = errors.New("observation could not be resolved to a scheduled trip")

// AmbiguityError indicates two or more scheduled trips were equally plausible for an
// observation within the configured tolerance. Ambiguity is surfaced rather than
// guessed away so aggregates stay trustworthy
type AmbiguityError struct {
	CandidateTripIds []string
}

func (a *AmbiguityError) Error() string {
	return fmt.Sprintf("observation matches %d equally plausible trips: %s",
		len(a.CandidateTripIds), strings.Join(a.CandidateTripIds, ","))
}

// Resolution is the outcome of resolving an observation to a scheduled trip instance
type Resolution struct {
	TripId       string
	ServiceDate  time.Time
	TripSchedule *schedule.TripSchedule
	// Strategy names the resolver strategy that produced the resolution
	Strategy string
}

// Coverage counts resolution outcomes for reporting feed coverage
type Coverage struct {
	Resolved   int64 `json:"resolved"`
	Unresolved int64 `json:"unresolved"`
	Ambiguous  int64 `json:"ambiguous"`
}

// Rate returns the fraction of observations resolved, 0 when nothing has been seen
func (c Coverage) Rate() float64 {
	total := c.Resolved + c.Unresolved + c.Ambiguous
	if total == 0 {
		return 0
	}
	return float64(c.Resolved) / float64(total)
}

// ResolverConfig carries the resolver tunables
type ResolverConfig struct {
	// AmbiguityTolerance bounds how close in time two candidate trips must be before
	// the resolver refuses to pick between them
	AmbiguityTolerance time.Duration
	// NormalizeRouteRef maps an operator route reference to a schedule route id, nil
	// means refs are used as-is
	NormalizeRouteRef func(string) string
	// NormalizeStopRef maps an operator stop reference to a schedule stop id, nil
	// means refs are used as-is
	NormalizeStopRef func(string) string
}

// Resolver maps an observation's operator-side identifiers to the best candidate
// scheduled trip. Strategies are tried in fixed priority order and resolution is
// deterministic for a fixed schedule snapshot and observation
type Resolver struct {
	repo       ScheduleRepository
	cfg        ResolverConfig
	strategies []resolverStrategy

	mu       sync.Mutex
	coverage Coverage
}

// resolverStrategy is one way of finding the scheduled trip for an observation.
// Returns (nil, nil) when the strategy simply does not apply, an AmbiguityError
// aborts the chain
type resolverStrategy interface {
	name() string
	resolve(observation *realtime.Observation, serviceDate time.Time) (*schedule.TripSchedule, error)
}

// NewResolver builds a Resolver with the default strategy order: direct trip
// reference lookup first, then route and departure time narrowing
func NewResolver(repo ScheduleRepository, cfg ResolverConfig) *Resolver {
	if cfg.NormalizeRouteRef == nil {
		cfg.NormalizeRouteRef = func(ref string) string { return ref }
	}
	if cfg.NormalizeStopRef == nil {
		cfg.NormalizeStopRef = func(ref string) string { return ref }
	}
	r := &Resolver{
		repo: repo,
		cfg:  cfg,
	}
	r.strategies = []resolverStrategy{
		&directTripRefStrategy{repo: repo, tolerance: cfg.AmbiguityTolerance},
		&routeDepartureStrategy{repo: repo, cfg: cfg},
	}
	return r
}

// Resolve finds the scheduled trip and service date an observation belongs to.
// Returns ErrUnresolved when no candidate exists and an AmbiguityError when several
// candidates are equally plausible, both are counted for coverage and neither is
// fatal
func (r *Resolver) Resolve(observation *realtime.Observation) (*Resolution, error) {
	referenceTime := observation.ReceivedAt
	if observation.ObservedTime != nil {
		referenceTime = *observation.ObservedTime
	}

	for _, serviceDate := range schedule.CandidateServiceDates(referenceTime) {
		for _, strategy := range r.strategies {
			tripSchedule, err := strategy.resolve(observation, serviceDate)
			if err != nil {
				var ambiguity *AmbiguityError
				if errors.As(err, &ambiguity) {
					r.count(func(c *Coverage) { c.Ambiguous++ })
					return nil, ambiguity
				}
				return nil, err
			}
			if tripSchedule != nil {
				r.count(func(c *Coverage) { c.Resolved++ })
				return &Resolution{
					TripId:       tripSchedule.TripId,
					ServiceDate:  tripSchedule.ServiceDate,
					TripSchedule: tripSchedule,
					Strategy:     strategy.name(),
				}, nil
			}
		}
	}
	r.count(func(c *Coverage) { c.Unresolved++ })
	return nil, ErrUnresolved
}

// Coverage returns a snapshot of resolution outcome counts
func (r *Resolver) Coverage() Coverage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coverage
}

func (r *Resolver) count(update func(*Coverage)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	update(&r.coverage)
}

// directTripRefStrategy resolves observations whose operator trip reference is a
// schedule trip id operating on the service date. Trip ids are reused across days so
// the trip must also be plausible in time for the date being tried
type directTripRefStrategy struct {
	repo      ScheduleRepository
	tolerance time.Duration
}

func (s *directTripRefStrategy) name() string { return "direct-trip-ref" }

func (s *directTripRefStrategy) resolve(observation *realtime.Observation,
	serviceDate time.Time) (*schedule.TripSchedule, error) {

	tripSchedule, err := s.repo.TripSchedule(observation.OperatorTripRef, serviceDate)
	if err != nil {
		if errors.Is(err, schedule.ErrTripNotScheduled) {
			return nil, nil
		}
		return nil, err
	}
	referenceTime := observation.ReceivedAt
	if observation.ObservedTime != nil {
		referenceTime = *observation.ObservedTime
	}
	if !tripPlausibleAt(tripSchedule, referenceTime, s.tolerance) {
		return nil, nil
	}
	return tripSchedule, nil
}

// tripPlausibleAt returns true when at falls inside the trip's scheduled span on its
// service date, widened by slack on both sides
func tripPlausibleAt(tripSchedule *schedule.TripSchedule, at time.Time, slack time.Duration) bool {
	seconds := schedule.SecondsIntoServiceDay(tripSchedule.ServiceDate, at)
	slackSeconds := int(slack.Seconds())
	return seconds >= tripSchedule.StartTime-slackSeconds &&
		seconds <= tripSchedule.EndTime+slackSeconds
}

// routeDepartureStrategy resolves observations by the route reference and observed
// time: candidate trips on the route departing near the observed time are narrowed
// by whether they visit the observed stop, and by scheduled time proximity at that
// stop. Several equally plausible candidates within tolerance produce an
// AmbiguityError
type routeDepartureStrategy struct {
	repo ScheduleRepository
	cfg  ResolverConfig
}

func (s *routeDepartureStrategy) name() string { return "route-departure" }

func (s *routeDepartureStrategy) resolve(observation *realtime.Observation,
	serviceDate time.Time) (*schedule.TripSchedule, error) {

	if observation.RouteRef == "" || observation.ObservedTime == nil {
		return nil, nil
	}
	routeId := s.cfg.NormalizeRouteRef(observation.RouteRef)
	toleranceSeconds := int(s.cfg.AmbiguityTolerance.Seconds())
	departureSeconds := schedule.SecondsIntoServiceDay(serviceDate, *observation.ObservedTime)

	candidates, err := s.repo.CandidateTrips(routeId, serviceDate, departureSeconds, toleranceSeconds)
	if err != nil {
		return nil, err
	}
	narrowed := s.narrowByStop(observation, candidates)

	if len(narrowed) == 1 {
		return narrowed[0], nil
	}
	if len(narrowed) > 1 {
		ambiguity := AmbiguityError{}
		for _, candidate := range narrowed {
			ambiguity.CandidateTripIds = append(ambiguity.CandidateTripIds, candidate.TripId)
		}
		return nil, &ambiguity
	}
	return nil, nil
}

// narrowByStop keeps candidates consistent with the observation's stop: the trip
// must visit the observed stop (when the reference identifies one) with a scheduled
// time within tolerance of the observed time. Stop sequence continuity narrows
// further when the observation carries a sequence
func (s *routeDepartureStrategy) narrowByStop(observation *realtime.Observation,
	candidates []*schedule.TripSchedule) []*schedule.TripSchedule {

	stopId := s.cfg.NormalizeStopRef(observation.OperatorStopRef)
	var narrowed []*schedule.TripSchedule
	for _, candidate := range candidates {
		tripStop := candidate.TripStopForStopId(stopId)
		if tripStop == nil {
			continue
		}
		if observation.StopSequence != nil && tripStop.StopSequence != *observation.StopSequence {
			continue
		}
		offset := observation.ObservedTime.Sub(tripStop.ScheduledTime())
		if offset < 0 {
			offset = -offset
		}
		if offset <= s.cfg.AmbiguityTolerance {
			narrowed = append(narrowed, candidate)
		}
	}
	return narrowed
}
