// Package schedule provides read access to scheduled trips and trip-stops loaded
// from a gtfs style timetable feed by an external import process
package schedule

import (
	"fmt"
	"time"
)

// Trip contains data from a scheduled trip definition
type Trip struct {
	TripId      string  `db:"trip_id" json:"trip_id"`
	RouteId     string  `db:"route_id" json:"route_id"`
	ServiceId   string  `db:"service_id" json:"service_id"`
	DirectionId int     `db:"direction_id" json:"direction_id"`
	Headsign    *string `db:"headsign" json:"headsign"`
	// StartTime and EndTime are seconds past the start of the service day covering the
	// first departure and last arrival of the trip
	StartTime int `db:"start_time" json:"start_time"`
	EndTime   int `db:"end_time" json:"end_time"`
}

// TripStop contains one scheduled visit of a trip to a stop.
// ArrivalTime and DepartureTime are seconds past the start of the service day,
// at least one of the two is always present
type TripStop struct {
	TripId        string  `db:"trip_id" json:"trip_id"`
	RouteId       string  `db:"route_id" json:"route_id"`
	StopId        string  `db:"stop_id" json:"stop_id"`
	StopSequence  uint32  `db:"stop_sequence" json:"stop_sequence"`
	ArrivalTime   *int    `db:"arrival_time" json:"arrival_time"`
	DepartureTime *int    `db:"departure_time" json:"departure_time"`
}

// TripStopInstance is a TripStop placed on a concrete service date with resolved wall times
type TripStopInstance struct {
	TripStop
	FirstStop         bool       `json:"first_stop"`
	ServiceDate       time.Time  `json:"service_date"`
	ArrivalDateTime   *time.Time `json:"arrival_date_time"`
	DepartureDateTime *time.Time `json:"departure_date_time"`
}

// ScheduledTime returns the departure time of the instance, or the arrival time when
// the stop has no scheduled departure
func (sti *TripStopInstance) ScheduledTime() time.Time {
	if sti.DepartureDateTime != nil {
		return *sti.DepartureDateTime
	}
	return *sti.ArrivalDateTime
}

// String implements Stringer for logging
func (sti *TripStopInstance) String() string {
	return fmt.Sprintf("tripStop{trip:%s stop:%s seq:%d at:%s}",
		sti.TripId, sti.StopId, sti.StopSequence, sti.ScheduledTime().Format("2006-01-02T15:04:05"))
}

// TripSchedule is a Trip placed on a service date with its ordered TripStopInstances.
// StopSequence is strictly increasing with scheduled time within TripStops
type TripSchedule struct {
	Trip
	ServiceDate time.Time           `json:"service_date"`
	TripStops   []*TripStopInstance `json:"trip_stops"`
}

func (t *TripSchedule) FirstTripStop() *TripStopInstance {
	if len(t.TripStops) == 0 {
		return nil
	}
	return t.TripStops[0]
}

func (t *TripSchedule) LastTripStop() *TripStopInstance {
	lastIndex := len(t.TripStops) - 1
	if lastIndex < 0 {
		return nil
	}
	return t.TripStops[lastIndex]
}

// TripStopForStopId returns the instance visiting stopId, or nil when the trip does
// not visit that stop. Commuter rail trips do not visit the same stop twice
func (t *TripSchedule) TripStopForStopId(stopId string) *TripStopInstance {
	for _, sti := range t.TripStops {
		if sti.StopId == stopId {
			return sti
		}
	}
	return nil
}

// TripStopForSequence returns the instance at stopSequence or nil when not present
func (t *TripSchedule) TripStopForSequence(stopSequence uint32) *TripStopInstance {
	for _, sti := range t.TripStops {
		if sti.StopSequence == stopSequence {
			return sti
		}
	}
	return nil
}

// DepartureSeconds returns the scheduled seconds past the service day start of the
// trip's first departure
func (t *TripSchedule) DepartureSeconds() int {
	first := t.FirstTripStop()
	if first == nil {
		return t.StartTime
	}
	if first.DepartureTime != nil {
		return *first.DepartureTime
	}
	return *first.ArrivalTime
}
