// Package realtime provides the operational feed side of the reconciliation:
// observation records decoded from the operator's realtime feed and anomaly
// persistence for observations that could not be used
package realtime

import (
	"fmt"
	"time"
)

// Status is the operational state an observation reports for a trip-stop
type Status int

const (
	StatusUnknown Status = iota
	StatusOnTime
	StatusDelayed
	StatusCancelled
	StatusSkipped
)

// String - Stringer interface for Status
func (s Status) String() string {
	switch s {
	case StatusOnTime:
		return "ON_TIME"
	case StatusDelayed:
		return "DELAYED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusSkipped:
		return "SKIPPED"
	}
	return "UNKNOWN"
}

// IsCancellation returns true for statuses indicating the trip-stop was not served
func (s Status) IsCancellation() bool {
	return s == StatusCancelled || s == StatusSkipped
}

// Observation is one immutable fact ingested from the realtime feed. Operator
// identifiers are opaque and carry no guaranteed relationship to schedule ids.
// ObservedTime is nil when the feed only reported a status.
// A trip-wide observation (cancellation of the whole trip) has an empty
// OperatorStopRef
type Observation struct {
	OperatorTripRef string     `json:"operator_trip_ref"`
	OperatorStopRef string     `json:"operator_stop_ref"`
	RouteRef        string     `json:"route_ref"`
	StopSequence    *uint32    `json:"stop_sequence"`
	ObservedTime    *time.Time `json:"observed_time"`
	Status          Status     `json:"status"`
	// ReceivedAt is the ingestion timestamp, used for supersession and staleness, never
	// for event ordering
	ReceivedAt time.Time `json:"received_at"`
}

// TripWide returns true when the observation describes the whole trip rather than a
// single stop
func (o *Observation) TripWide() bool {
	return o.OperatorStopRef == "" && o.StopSequence == nil
}

// String implements Stringer for logging
func (o *Observation) String() string {
	observed := "none"
	if o.ObservedTime != nil {
		observed = o.ObservedTime.Format("2006-01-02T15:04:05")
	}
	return fmt.Sprintf("observation{trip:%s stop:%s status:%s observed:%s received:%s}",
		o.OperatorTripRef, o.OperatorStopRef, o.Status, observed, o.ReceivedAt.Format("15:04:05"))
}

// ObservationKey identifies the real-world event an observation describes, multiple
// observations with the same key supersede each other
type ObservationKey struct {
	TripRef string
	StopRef string
}

// Key returns the supersession key of the observation
func (o *Observation) Key() ObservationKey {
	return ObservationKey{TripRef: o.OperatorTripRef, StopRef: o.OperatorStopRef}
}

// LatestObservations collapses duplicate observations for the same
// (operator_trip_ref, operator_stop_ref) pair, keeping the one with the latest
// ReceivedAt. Observations with identical ReceivedAt are identical facts, the first
// seen wins so repeated ingestion is idempotent. Result preserves first-seen order
func LatestObservations(observations []*Observation) []*Observation {
	byKey := make(map[ObservationKey]int)
	var results []*Observation
	for _, observation := range observations {
		key := observation.Key()
		index, present := byKey[key]
		if !present {
			byKey[key] = len(results)
			results = append(results, observation)
			continue
		}
		if observation.ReceivedAt.After(results[index].ReceivedAt) {
			results[index] = observation
		}
	}
	return results
}
