// Package matching reconciles realtime observations against scheduled trip-stops.
// The resolver picks the scheduled trip an observation belongs to, the matcher
// attributes observations to individual trip-stops and finalizes one immutable
// MatchedTripStop per (trip, stop, service date) once the grace period elapses
package matching

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/railmetrics/railmatch/business/data/realtime"
)

// MatchQuality classifies how confidently an observation was attributed to a
// scheduled trip-stop
type MatchQuality int

const (
	// QualityUnmatched - no observation was attributed to the trip-stop
	QualityUnmatched MatchQuality = iota
	// QualityInferred - the observation's stop identity was not directly resolvable but
	// its position was consistent with exactly one scheduled stop
	QualityInferred
	// QualityExact - the observation's stop identity matched the scheduled stop directly
	QualityExact
)

// String - Stringer interface for MatchQuality
func (q MatchQuality) String() string {
	switch q {
	case QualityExact:
		return "EXACT"
	case QualityInferred:
		return "INFERRED"
	}
	return "UNMATCHED"
}

// TripStopKey identifies one scheduled visit of one trip to one stop on one service
// date
type TripStopKey struct {
	TripId      string
	StopId      string
	ServiceDate string
}

// MakeTripStopKey builds a TripStopKey, service dates are keyed by calendar day
func MakeTripStopKey(tripId string, stopId string, serviceDate time.Time) TripStopKey {
	return TripStopKey{
		TripId:      tripId,
		StopId:      stopId,
		ServiceDate: serviceDate.Format("2006-01-02"),
	}
}

// MatchedTripStop is the reconciled record for one scheduled trip-stop on one
// service date. Immutable once finalized
type MatchedTripStop struct {
	TripId             string     `json:"trip_id"`
	RouteId            string     `json:"route_id"`
	StopId             string     `json:"stop_id"`
	StopSequence       uint32     `json:"stop_sequence"`
	ServiceDate        time.Time  `json:"service_date"`
	ScheduledArrival   *time.Time `json:"scheduled_arrival"`
	ScheduledDeparture *time.Time `json:"scheduled_departure"`
	// Observation is the superseding observation attributed to the trip-stop, nil when
	// none arrived before finalization
	Observation *realtime.Observation `json:"observation"`
	// DelaySeconds is observed minus scheduled, negative means early. Nil when no
	// usable observed time exists
	DelaySeconds *int         `json:"delay_seconds"`
	Quality      MatchQuality `json:"match_quality"`
	Cancelled    bool         `json:"is_cancelled"`
	FinalizedAt  time.Time    `json:"finalized_at"`
}

// Key returns the TripStopKey of the record
func (m *MatchedTripStop) Key() TripStopKey {
	return MakeTripStopKey(m.TripId, m.StopId, m.ServiceDate)
}

// ScheduledTime returns the scheduled departure, or arrival when the stop has no
// departure
func (m *MatchedTripStop) ScheduledTime() time.Time {
	if m.ScheduledDeparture != nil {
		return *m.ScheduledDeparture
	}
	return *m.ScheduledArrival
}

// String implements Stringer for logging
func (m *MatchedTripStop) String() string {
	delay := "n/a"
	if m.DelaySeconds != nil {
		delay = fmt.Sprintf("%ds", *m.DelaySeconds)
	}
	return fmt.Sprintf("matchedTripStop{trip:%s stop:%s date:%s quality:%s delay:%s cancelled:%t}",
		m.TripId, m.StopId, m.ServiceDate.Format("2006-01-02"), m.Quality, delay, m.Cancelled)
}

// matchedTripStopRow flattens a MatchedTripStop for the append-only finalized record
// table
type matchedTripStopRow struct {
	TripId             string     `db:"trip_id"`
	RouteId            string     `db:"route_id"`
	StopId             string     `db:"stop_id"`
	StopSequence       uint32     `db:"stop_sequence"`
	ServiceDate        time.Time  `db:"service_date"`
	ScheduledArrival   *time.Time `db:"scheduled_arrival"`
	ScheduledDeparture *time.Time `db:"scheduled_departure"`
	ObservedTime       *time.Time `db:"observed_time"`
	ObservedStatus     *string    `db:"observed_status"`
	OperatorTripRef    *string    `db:"operator_trip_ref"`
	DelaySeconds       *int       `db:"delay_seconds"`
	MatchQuality       string     `db:"match_quality"`
	Cancelled          bool       `db:"is_cancelled"`
	FinalizedAt        time.Time  `db:"finalized_at"`
}

// RecordMatchedTripStop appends a finalized MatchedTripStop to the database.
// Finalized records are never updated
func RecordMatchedTripStop(m *MatchedTripStop, db *sqlx.DB) error {
	row := matchedTripStopRow{
		TripId:             m.TripId,
		RouteId:            m.RouteId,
		StopId:             m.StopId,
		StopSequence:       m.StopSequence,
		ServiceDate:        m.ServiceDate,
		ScheduledArrival:   m.ScheduledArrival,
		ScheduledDeparture: m.ScheduledDeparture,
		DelaySeconds:       m.DelaySeconds,
		MatchQuality:       m.Quality.String(),
		Cancelled:          m.Cancelled,
		FinalizedAt:        m.FinalizedAt,
	}
	if m.Observation != nil {
		row.ObservedTime = m.Observation.ObservedTime
		status := m.Observation.Status.String()
		row.ObservedStatus = &status
		row.OperatorTripRef = &m.Observation.OperatorTripRef
	}

	statementString := "insert into matched_trip_stop " +
		"(trip_id, " +
		"route_id, " +
		"stop_id, " +
		"stop_sequence, " +
		"service_date, " +
		"scheduled_arrival, " +
		"scheduled_departure, " +
		"observed_time, " +
		"observed_status, " +
		"operator_trip_ref, " +
		"delay_seconds, " +
		"match_quality, " +
		"is_cancelled, " +
		"finalized_at) " +
		"values " +
		"(:trip_id, " +
		":route_id, " +
		":stop_id, " +
		":stop_sequence, " +
		":service_date, " +
		":scheduled_arrival, " +
		":scheduled_departure, " +
		":observed_time, " +
		":observed_status, " +
		":operator_trip_ref, " +
		":delay_seconds, " +
		":match_quality, " +
		":is_cancelled, " +
		":finalized_at)"
	statementString = db.Rebind(statementString)
	_, err := db.NamedExec(statementString, &row)
	return err
}
