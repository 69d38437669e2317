package matching

import (
	"time"

	"github.com/railmetrics/railmatch/business/data/realtime"
	"github.com/railmetrics/railmatch/business/data/schedule"
)

//holds structs for trip-stops that are open and awaiting observations or their
//grace-period deadline.

// pendingStop is one scheduled trip-stop in the OPEN state. It collects the
// superseding observation until its deadline passes and it finalizes
type pendingStop struct {
	tripStop *schedule.TripStopInstance
	// deadline is the scheduled time plus the grace period, the only finalization
	// trigger
	deadline    time.Time
	observation *realtime.Observation
	quality     MatchQuality
}

// supersede applies an observation to the pending stop following the supersession
// rule: the latest ReceivedAt wins, an equal ReceivedAt is the same fact re-ingested
// and leaves state unchanged. Returns true when the observation was applied
func (p *pendingStop) supersede(observation *realtime.Observation, quality MatchQuality) bool {
	if p.observation != nil && !observation.ReceivedAt.After(p.observation.ReceivedAt) {
		return false
	}
	p.observation = observation
	p.quality = quality
	return true
}

// tripKey identifies a pending trip on a service date
type tripKey struct {
	tripId      string
	serviceDate string
}

func makeTripKey(tripId string, serviceDate time.Time) tripKey {
	return tripKey{tripId: tripId, serviceDate: serviceDate.Format("2006-01-02")}
}

// pendingTrip holds the open stops of one trip instance and remembers the highest
// stop sequence any observation attributed to, which distinguishes a skipped stop
// from plain feed silence at finalization
type pendingTrip struct {
	tripSchedule        *schedule.TripSchedule
	stops               map[uint32]*pendingStop
	maxObservedSequence *uint32
}

// makePendingTrip opens pending records for every stop of the trip, skipping stops
// already finalized on an earlier cycle
func makePendingTrip(tripSchedule *schedule.TripSchedule,
	graceDuration time.Duration,
	alreadyFinalized func(TripStopKey) bool) *pendingTrip {

	trip := pendingTrip{
		tripSchedule: tripSchedule,
		stops:        make(map[uint32]*pendingStop),
	}
	for _, sti := range tripSchedule.TripStops {
		key := MakeTripStopKey(sti.TripId, sti.StopId, tripSchedule.ServiceDate)
		if alreadyFinalized(key) {
			continue
		}
		trip.stops[sti.StopSequence] = &pendingStop{
			tripStop: sti,
			deadline: sti.ScheduledTime().Add(graceDuration),
		}
	}
	return &trip
}

// noteObserved records that an observation was attributed at stopSequence
func (p *pendingTrip) noteObserved(stopSequence uint32) {
	if p.maxObservedSequence == nil || *p.maxObservedSequence < stopSequence {
		seq := stopSequence
		p.maxObservedSequence = &seq
	}
}

// hasObservationAfter returns true when some stop later in the trip than
// stopSequence has an attributed observation, evidence the trip ran past this stop
func (p *pendingTrip) hasObservationAfter(stopSequence uint32) bool {
	return p.maxObservedSequence != nil && *p.maxObservedSequence > stopSequence
}
