package matching

import (
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/railmetrics/railmatch/business/data/realtime"
	"github.com/railmetrics/railmatch/business/data/schedule"
)

//test fixtures shared by the resolver and matcher tests: in-memory schedule
//repository, trip schedule builders, and an anomaly collector

func testLocation(t *testing.T) *time.Location {
	location, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("Unable to get testing time zone location: %v", err)
	}
	return location
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST : ", log.LstdFlags)
}

// stopSpec describes one scheduled stop for buildTripSchedule, departureSeconds is
// seconds past the start of the service day
type stopSpec struct {
	stopId           string
	stopSequence     uint32
	departureSeconds int
}

// buildTripSchedule makes a TripSchedule on serviceDate with the given stops. Each
// stop's arrival is one minute before its departure
func buildTripSchedule(tripId string,
	routeId string,
	serviceDate time.Time,
	stops []stopSpec) *schedule.TripSchedule {

	trip := schedule.TripSchedule{
		Trip: schedule.Trip{
			TripId:  tripId,
			RouteId: routeId,
		},
		ServiceDate: serviceDate,
	}
	for i, stop := range stops {
		departureSeconds := stop.departureSeconds
		arrivalSeconds := stop.departureSeconds - 60
		arrivalAt := schedule.TimeOnServiceDay(serviceDate, arrivalSeconds)
		departureAt := schedule.TimeOnServiceDay(serviceDate, departureSeconds)
		sti := schedule.TripStopInstance{
			TripStop: schedule.TripStop{
				TripId:        tripId,
				RouteId:       routeId,
				StopId:        stop.stopId,
				StopSequence:  stop.stopSequence,
				ArrivalTime:   &arrivalSeconds,
				DepartureTime: &departureSeconds,
			},
			FirstStop:         i == 0,
			ServiceDate:       serviceDate,
			ArrivalDateTime:   &arrivalAt,
			DepartureDateTime: &departureAt,
		}
		trip.TripStops = append(trip.TripStops, &sti)
		if i == 0 {
			trip.StartTime = departureSeconds
		}
		trip.EndTime = departureSeconds
	}
	return &trip
}

// memoryScheduleRepository implements ScheduleRepository over a fixed set of trips
type memoryScheduleRepository struct {
	trips []*schedule.TripSchedule
}

func (r *memoryScheduleRepository) TripSchedule(tripId string,
	serviceDate time.Time) (*schedule.TripSchedule, error) {
	for _, trip := range r.trips {
		if trip.TripId == tripId && schedule.SameServiceDate(trip.ServiceDate, serviceDate) {
			return trip, nil
		}
	}
	return nil, fmt.Errorf("trip %s: %w", tripId, schedule.ErrTripNotScheduled)
}

func (r *memoryScheduleRepository) CandidateTrips(routeId string,
	serviceDate time.Time,
	departureSeconds int,
	toleranceSeconds int) ([]*schedule.TripSchedule, error) {
	var results []*schedule.TripSchedule
	for _, trip := range r.trips {
		if trip.RouteId != routeId || !schedule.SameServiceDate(trip.ServiceDate, serviceDate) {
			continue
		}
		offset := trip.DepartureSeconds() - departureSeconds
		if offset < 0 {
			offset = -offset
		}
		if offset <= toleranceSeconds {
			results = append(results, trip)
		}
	}
	return results, nil
}

// anomalyCollector records anomalies for assertion
type anomalyCollector struct {
	mu        sync.Mutex
	anomalies []*realtime.Anomaly
}

func (c *anomalyCollector) HandleAnomaly(anomaly *realtime.Anomaly) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anomalies = append(c.anomalies, anomaly)
}

func (c *anomalyCollector) kinds() []realtime.AnomalyKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kinds []realtime.AnomalyKind
	for _, anomaly := range c.anomalies {
		kinds = append(kinds, anomaly.Kind)
	}
	return kinds
}

// stopObservation builds a stop-level observation received at receivedAt
func stopObservation(tripRef string,
	stopRef string,
	status realtime.Status,
	observedAt time.Time,
	receivedAt time.Time) *realtime.Observation {
	observed := observedAt
	return &realtime.Observation{
		OperatorTripRef: tripRef,
		OperatorStopRef: stopRef,
		Status:          status,
		ObservedTime:    &observed,
		ReceivedAt:      receivedAt,
	}
}

func uint32Ptr(v uint32) *uint32 {
	return &v
}
