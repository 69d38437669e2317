package kpi

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/es"
)

// DayClass categorizes a service date for aggregate reporting
type DayClass int

const (
	Weekday DayClass = iota
	WeekendDay
	Holiday
)

// serviceCalendar holds the holidays observed by the rail operator, used to classify
// the service dates inside an aggregation window
type serviceCalendar struct {
	calendar *cal.BusinessCalendar
}

// makeServiceCalendar builds serviceCalendar with the national holidays of the
// network's country
func makeServiceCalendar() *serviceCalendar {
	calendar := cal.NewBusinessCalendar()
	calendar.AddHoliday(es.Holidays...)
	return &serviceCalendar{calendar: calendar}
}

// classify returns the DayClass of a service date. Holidays take precedence over
// weekends
func (s *serviceCalendar) classify(at time.Time) DayClass {
	_, observed, _ := s.calendar.IsHoliday(at)
	if observed {
		return Holiday
	}
	if at.Weekday() == time.Saturday || at.Weekday() == time.Sunday {
		return WeekendDay
	}
	return Weekday
}
