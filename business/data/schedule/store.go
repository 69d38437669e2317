package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/railmetrics/railmatch/foundation/database"
)

// ErrTripNotScheduled indicates the requested trip does not operate on the requested
// service date
var ErrTripNotScheduled = errors.New("trip is not scheduled on service date")

// Repository reads scheduled trips from the relational schedule store. The store is
// populated by an external import process, the active_service table already reflects
// calendar exceptions for each service date
type Repository struct {
	Db *sqlx.DB
}

// TripSchedule loads the trip and its ordered trip-stops for serviceDate.
// Returns ErrTripNotScheduled when the trip exists but its service is not active on
// serviceDate, or when the trip is unknown
func (r *Repository) TripSchedule(tripId string, serviceDate time.Time) (*TripSchedule, error) {
	query := r.Db.Rebind("select t.* from trip t " +
		"where t.trip_id = ? " +
		"and t.service_id in (select service_id from active_service where service_date = ?)")
	trip := Trip{}
	err := r.Db.Get(&trip, query, tripId, ServiceDayStart(serviceDate))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTripNotScheduled
		}
		return nil, fmt.Errorf("unable to load trip %s: %w", tripId, err)
	}
	return r.loadTripStops(&trip, serviceDate)
}

// CandidateTrips finds trips on routeId active on serviceDate whose first departure
// falls within toleranceSeconds of departureSeconds. Results are ordered by how far
// the departure is from departureSeconds, then by trip id for determinism
func (r *Repository) CandidateTrips(routeId string,
	serviceDate time.Time,
	departureSeconds int,
	toleranceSeconds int) ([]*TripSchedule, error) {

	statementString := "select t.* from trip t " +
		"where t.route_id = :route_id " +
		"and t.service_id in (select service_id from active_service where service_date = :service_date) " +
		"and t.start_time between :from_seconds and :to_seconds " +
		"order by abs(t.start_time - :departure_seconds), t.trip_id"
	rows, err := database.PrepareNamedQueryRowsFromMap(statementString, r.Db, map[string]interface{}{
		"route_id":          routeId,
		"service_date":      ServiceDayStart(serviceDate),
		"from_seconds":      departureSeconds - toleranceSeconds,
		"to_seconds":        departureSeconds + toleranceSeconds,
		"departure_seconds": departureSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to query candidate trips on route %s: %w", routeId, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []*TripSchedule
	for rows.Next() {
		trip := Trip{}
		err = rows.StructScan(&trip)
		if err != nil {
			return nil, err
		}
		tripSchedule, err := r.loadTripStops(&trip, serviceDate)
		if err != nil {
			return nil, err
		}
		results = append(results, tripSchedule)
	}
	return results, rows.Err()
}

// ActiveTrips loads every trip whose scheduled span overlaps the wall clock range
// from "from" to "to", across the service days the range touches. Used to seed the
// matcher with the trip-stops expected to be served
func (r *Repository) ActiveTrips(from time.Time, to time.Time) ([]*TripSchedule, error) {
	var results []*TripSchedule
	for _, span := range ServiceDaySpans(from, to) {
		statementString := "select t.* from trip t " +
			"where t.service_id in (select service_id from active_service where service_date = :service_date) " +
			"and ((t.start_time between :start_seconds and :end_seconds " +
			"or t.end_time between :start_seconds and :end_seconds) " +
			"or (t.start_time < :start_seconds and t.end_time > :end_seconds)) " +
			"order by t.trip_id"
		rows, err := database.PrepareNamedQueryRowsFromMap(statementString, r.Db, map[string]interface{}{
			"service_date":  span.ServiceDate,
			"start_seconds": span.StartSeconds,
			"end_seconds":   span.EndSeconds,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to query active trips: %w", err)
		}
		var trips []*Trip
		for rows.Next() {
			trip := Trip{}
			err = rows.StructScan(&trip)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			trips = append(trips, &trip)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
		for _, trip := range trips {
			tripSchedule, err := r.loadTripStops(trip, span.ServiceDate)
			if err != nil {
				return nil, err
			}
			results = append(results, tripSchedule)
		}
	}
	return results, nil
}

// loadTripStops loads the trip's stops ordered by sequence and resolves their wall
// times on serviceDate
func (r *Repository) loadTripStops(trip *Trip, serviceDate time.Time) (*TripSchedule, error) {
	query := r.Db.Rebind("select * from trip_stop where trip_id = ? order by stop_sequence")
	var tripStops []*TripStop
	err := r.Db.Select(&tripStops, query, trip.TripId)
	if err != nil {
		return nil, fmt.Errorf("unable to load trip stops for trip %s: %w", trip.TripId, err)
	}
	if len(tripStops) == 0 {
		return nil, fmt.Errorf("found no scheduled stops for trip %s", trip.TripId)
	}

	result := TripSchedule{
		Trip:        *trip,
		ServiceDate: ServiceDayStart(serviceDate),
	}
	for i, tripStop := range tripStops {
		result.TripStops = append(result.TripStops, NewTripStopInstance(*tripStop, result.ServiceDate, i == 0))
	}
	return &result, nil
}

// NewTripStopInstance places tripStop on serviceDate, resolving schedule seconds to
// wall times
func NewTripStopInstance(tripStop TripStop, serviceDate time.Time, firstStop bool) *TripStopInstance {
	sti := TripStopInstance{
		TripStop:    tripStop,
		FirstStop:   firstStop,
		ServiceDate: ServiceDayStart(serviceDate),
	}
	if tripStop.ArrivalTime != nil {
		arrival := TimeOnServiceDay(serviceDate, *tripStop.ArrivalTime)
		sti.ArrivalDateTime = &arrival
	}
	if tripStop.DepartureTime != nil {
		departure := TimeOnServiceDay(serviceDate, *tripStop.DepartureTime)
		sti.DepartureDateTime = &departure
	}
	return &sti
}
