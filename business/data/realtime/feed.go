package realtime

import (
	"fmt"
	"log"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/railmetrics/railmatch/foundation/httpclient"
)

/*
GetObservations retrieves the operator's gtfs-realtime trip update feed and loads it
into non-protocol buffer observations. Any changes to the realtime protocol or
generated code can be handled here and not elsewhere in the program.
*/
func GetObservations(log *log.Logger, url string) ([]*Observation, error) {
	fetch, err := httpclient.RetrieveFeedBytes(url)
	if err != nil {
		return nil, err
	}
	observations, err := ParseTripUpdates(fetch.Payload, fetch.RetrievedAt)
	if err != nil {
		log.Printf("Unable to parse trip update feed: %v\n", err)
		return nil, err
	}
	return observations, nil
}

// ParseTripUpdates decodes a gtfs-realtime FeedMessage payload into observations.
// receivedAt stamps every observation with the ingestion time
func ParseTripUpdates(payload []byte, receivedAt time.Time) ([]*Observation, error) {
	feedMessage := gtfsrt.FeedMessage{}
	err := proto.Unmarshal(payload, &feedMessage)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal FeedMessage: %w", err)
	}

	var observations []*Observation
	for _, entity := range feedMessage.Entity {
		tripUpdate := entity.TripUpdate
		if tripUpdate == nil {
			continue
		}
		trip := tripUpdate.Trip
		if trip == nil || trip.GetTripId() == "" {
			continue
		}

		// a trip canceled as a whole produces a single trip-wide observation
		if trip.GetScheduleRelationship() == gtfsrt.TripDescriptor_CANCELED {
			observations = append(observations, &Observation{
				OperatorTripRef: trip.GetTripId(),
				RouteRef:        trip.GetRouteId(),
				Status:          StatusCancelled,
				ReceivedAt:      receivedAt,
			})
			continue
		}

		for _, stopTimeUpdate := range tripUpdate.StopTimeUpdate {
			observation := makeStopObservation(trip, stopTimeUpdate, receivedAt)
			if observation != nil {
				observations = append(observations, observation)
			}
		}
	}
	return observations, nil
}

// makeStopObservation builds one Observation from a stop time update, or nil when the
// update identifies no stop at all
func makeStopObservation(trip *gtfsrt.TripDescriptor,
	stopTimeUpdate *gtfsrt.TripUpdate_StopTimeUpdate,
	receivedAt time.Time) *Observation {

	if stopTimeUpdate.StopId == nil && stopTimeUpdate.StopSequence == nil {
		return nil
	}

	observation := Observation{
		OperatorTripRef: trip.GetTripId(),
		OperatorStopRef: stopTimeUpdate.GetStopId(),
		RouteRef:        trip.GetRouteId(),
		StopSequence:    stopTimeUpdate.StopSequence,
		Status:          StatusUnknown,
		ReceivedAt:      receivedAt,
	}

	if stopTimeUpdate.GetScheduleRelationship() == gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED {
		observation.Status = StatusSkipped
		return &observation
	}

	// prefer the departure event, falling back to arrival, mirroring how scheduled
	// times are referenced
	event := stopTimeUpdate.Departure
	if event == nil {
		event = stopTimeUpdate.Arrival
	}
	if event != nil {
		if event.Time != nil {
			observedTime := time.Unix(event.GetTime(), 0)
			observation.ObservedTime = &observedTime
		}
		if event.GetDelay() > 0 {
			observation.Status = StatusDelayed
		} else {
			observation.Status = StatusOnTime
		}
	}
	return &observation
}
