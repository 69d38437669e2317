package schedule

import (
	"time"
)

const (
	// MaxServiceDaySeconds is how long a service day can run past its start, schedules
	// use times past midnight (25:10:00) for trips that roll over into the next calendar day
	MaxServiceDaySeconds int = 60 * 60 * 30
)

// ServiceDayStart returns 12am on the calendar day of date in date's location
func ServiceDayStart(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
}

// dstTransitionSeconds provides the number of seconds offset for a 12am date later in
// the day after a day light saving time transition is done
func dstTransitionSeconds(dayStart time.Time) int {
	before := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), 0, 0, 0, 0, dayStart.Location())
	after := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), 5, 0, 0, 0, dayStart.Location())
	_, beforeOffset := before.Zone()
	_, afterOffset := after.Zone()
	return afterOffset - beforeOffset
}

// TimeOnServiceDay produces a wall time by adding schedule seconds to the start of
// serviceDate. Takes into account day light saving time
func TimeOnServiceDay(serviceDate time.Time, scheduleSeconds int) time.Time {
	dayStart := ServiceDayStart(serviceDate)
	offset := dstTransitionSeconds(dayStart)
	scheduleSeconds = scheduleSeconds + (0 - offset)
	return dayStart.Add(time.Duration(scheduleSeconds) * time.Second)
}

// SecondsIntoServiceDay returns how many schedule seconds past the start of
// serviceDate the wall time at falls
func SecondsIntoServiceDay(serviceDate time.Time, at time.Time) int {
	return int(at.Unix() - ServiceDayStart(serviceDate).Unix())
}

// CandidateServiceDates returns the service dates whose 30 hour service day can
// cover the wall time at. Yields the calendar day of at and, when at falls in the
// early-morning rollover span, the prior day as well. Prior day first so resolution
// prefers the trip already underway across midnight
func CandidateServiceDates(at time.Time) []time.Time {
	today := ServiceDayStart(at)
	yesterday := today.AddDate(0, 0, -1)
	var results []time.Time
	if SecondsIntoServiceDay(yesterday, at) < MaxServiceDaySeconds {
		results = append(results, yesterday)
	}
	results = append(results, today)
	return results
}

// ServiceDaySpan contains a service date and a section of its service day in
// schedule seconds
type ServiceDaySpan struct {
	ServiceDate  time.Time
	StartSeconds int
	EndSeconds   int
}

// ServiceDaySpans produces the spans of each service day overlapping the wall clock
// range from start to end. Starts a day behind to catch times past midnight but
// before MaxServiceDaySeconds
func ServiceDaySpans(start time.Time, end time.Time) []ServiceDaySpan {
	var result []ServiceDaySpan
	serviceDate := ServiceDayStart(start).AddDate(0, 0, -1)
	endServiceDate := ServiceDayStart(end).AddDate(0, 0, 1)
	for serviceDate.Unix() <= endServiceDate.Unix() {
		span := ServiceDaySpan{
			ServiceDate: serviceDate,
		}
		span.StartSeconds = int(start.Unix() - serviceDate.Unix())
		if span.StartSeconds < 0 {
			span.StartSeconds = 0
		}
		span.EndSeconds = int(end.Unix() - serviceDate.Unix())
		if span.EndSeconds > MaxServiceDaySeconds {
			span.EndSeconds = MaxServiceDaySeconds
		}
		//only include in results if the span is within the service date's MaxServiceDaySeconds
		if span.StartSeconds < MaxServiceDaySeconds && span.EndSeconds > 0 {
			result = append(result, span)
		}
		serviceDate = span.ServiceDate.AddDate(0, 0, 1)
	}
	return result
}

// SameServiceDate reports whether a and b fall on the same calendar service date
func SameServiceDate(a time.Time, b time.Time) bool {
	return ServiceDayStart(a).Equal(ServiceDayStart(b))
}
