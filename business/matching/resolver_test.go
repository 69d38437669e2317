package matching

import (
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/railmetrics/railmatch/business/data/realtime"
	"github.com/railmetrics/railmatch/business/data/schedule"
)

func TestResolver_DirectTripRef(t *testing.T) {
	location := testLocation(t)
	serviceDate := time.Date(2022, 6, 10, 0, 0, 0, 0, location)
	trip := buildTripSchedule("t-100", "r-1", serviceDate, []stopSpec{
		{stopId: "s1", stopSequence: 1, departureSeconds: 8 * 3600},
		{stopId: "s2", stopSequence: 2, departureSeconds: 8*3600 + 600},
		{stopId: "s3", stopSequence: 3, departureSeconds: 8*3600 + 1200},
	})
	repo := &memoryScheduleRepository{trips: []*schedule.TripSchedule{trip}}
	resolver := NewResolver(repo, ResolverConfig{AmbiguityTolerance: 5 * time.Minute})

	observation := stopObservation("t-100", "s2", realtime.StatusOnTime,
		time.Date(2022, 6, 10, 8, 12, 0, 0, location),
		time.Date(2022, 6, 10, 8, 12, 5, 0, location))

	resolution, err := resolver.Resolve(observation)

	is := is.New(t)
	is.NoErr(err)
	is.Equal(resolution.TripId, "t-100")
	is.Equal(resolution.Strategy, "direct-trip-ref")
	is.True(resolution.ServiceDate.Equal(serviceDate))
}

func TestResolver_TripRefReuseRequiresPlausibleTime(t *testing.T) {
	//trip ids are reused across days, so a matching trip ref far outside the trip's
	//scheduled span must not resolve
	location := testLocation(t)
	serviceDate := time.Date(2022, 6, 10, 0, 0, 0, 0, location)
	trip := buildTripSchedule("t-100", "r-1", serviceDate, []stopSpec{
		{stopId: "s1", stopSequence: 1, departureSeconds: 8 * 3600},
		{stopId: "s2", stopSequence: 2, departureSeconds: 8*3600 + 600},
	})
	repo := &memoryScheduleRepository{trips: []*schedule.TripSchedule{trip}}
	resolver := NewResolver(repo, ResolverConfig{AmbiguityTolerance: 5 * time.Minute})

	observation := stopObservation("t-100", "s1", realtime.StatusOnTime,
		time.Date(2022, 6, 10, 20, 0, 0, 0, location),
		time.Date(2022, 6, 10, 20, 0, 5, 0, location))

	_, err := resolver.Resolve(observation)

	is := is.New(t)
	is.True(errors.Is(err, ErrUnresolved))
	is.Equal(resolver.Coverage().Unresolved, int64(1))
}

func TestResolver_RouteDepartureFallback(t *testing.T) {
	location := testLocation(t)
	serviceDate := time.Date(2022, 6, 10, 0, 0, 0, 0, location)
	trip := buildTripSchedule("t-100", "r-1", serviceDate, []stopSpec{
		{stopId: "s1", stopSequence: 1, departureSeconds: 8 * 3600},
		{stopId: "s2", stopSequence: 2, departureSeconds: 8*3600 + 600},
	})
	repo := &memoryScheduleRepository{trips: []*schedule.TripSchedule{trip}}
	resolver := NewResolver(repo, ResolverConfig{AmbiguityTolerance: 5 * time.Minute})

	//operator uses a vehicle number, not the schedule trip id
	observation := stopObservation("veh-9", "s1", realtime.StatusOnTime,
		time.Date(2022, 6, 10, 8, 1, 0, 0, location),
		time.Date(2022, 6, 10, 8, 1, 5, 0, location))
	observation.RouteRef = "r-1"

	resolution, err := resolver.Resolve(observation)

	is := is.New(t)
	is.NoErr(err)
	is.Equal(resolution.TripId, "t-100")
	is.Equal(resolution.Strategy, "route-departure")
}

func TestResolver_AmbiguityIsSurfacedNotGuessed(t *testing.T) {
	location := testLocation(t)
	serviceDate := time.Date(2022, 6, 10, 0, 0, 0, 0, location)
	tripA := buildTripSchedule("t-100", "r-1", serviceDate, []stopSpec{
		{stopId: "s1", stopSequence: 1, departureSeconds: 8 * 3600},
		{stopId: "s2", stopSequence: 2, departureSeconds: 8*3600 + 600},
	})
	tripB := buildTripSchedule("t-200", "r-1", serviceDate, []stopSpec{
		{stopId: "s1", stopSequence: 1, departureSeconds: 8*3600 + 120},
		{stopId: "s2", stopSequence: 2, departureSeconds: 8*3600 + 720},
	})
	repo := &memoryScheduleRepository{trips: []*schedule.TripSchedule{tripA, tripB}}
	resolver := NewResolver(repo, ResolverConfig{AmbiguityTolerance: 5 * time.Minute})

	observation := stopObservation("veh-9", "s1", realtime.StatusOnTime,
		time.Date(2022, 6, 10, 8, 1, 0, 0, location),
		time.Date(2022, 6, 10, 8, 1, 5, 0, location))
	observation.RouteRef = "r-1"

	_, err := resolver.Resolve(observation)

	is := is.New(t)
	var ambiguity *AmbiguityError
	is.True(errors.As(err, &ambiguity))
	is.Equal(len(ambiguity.CandidateTripIds), 2)
	found := map[string]bool{}
	for _, tripId := range ambiguity.CandidateTripIds {
		found[tripId] = true
	}
	is.True(found["t-100"])
	is.True(found["t-200"])
	is.Equal(resolver.Coverage().Ambiguous, int64(1))
}

func TestResolver_MidnightRolloverPrefersPriorServiceDate(t *testing.T) {
	location := testLocation(t)
	priorDate := time.Date(2022, 6, 9, 0, 0, 0, 0, location)
	//last run of the night departs at 24:30 schedule time, 12:30am on the next
	//calendar day
	trip := buildTripSchedule("t-night", "r-1", priorDate, []stopSpec{
		{stopId: "s1", stopSequence: 1, departureSeconds: 24*3600 + 1800},
	})
	repo := &memoryScheduleRepository{trips: []*schedule.TripSchedule{trip}}
	resolver := NewResolver(repo, ResolverConfig{AmbiguityTolerance: 5 * time.Minute})

	observation := stopObservation("t-night", "s1", realtime.StatusOnTime,
		time.Date(2022, 6, 10, 0, 31, 0, 0, location),
		time.Date(2022, 6, 10, 0, 31, 5, 0, location))

	resolution, err := resolver.Resolve(observation)

	is := is.New(t)
	is.NoErr(err)
	is.Equal(resolution.TripId, "t-night")
	is.True(resolution.ServiceDate.Equal(priorDate))
}

func TestResolver_ResolutionIsDeterministic(t *testing.T) {
	location := testLocation(t)
	serviceDate := time.Date(2022, 6, 10, 0, 0, 0, 0, location)
	trip := buildTripSchedule("t-100", "r-1", serviceDate, []stopSpec{
		{stopId: "s1", stopSequence: 1, departureSeconds: 8 * 3600},
	})
	repo := &memoryScheduleRepository{trips: []*schedule.TripSchedule{trip}}
	resolver := NewResolver(repo, ResolverConfig{AmbiguityTolerance: 5 * time.Minute})

	observation := stopObservation("t-100", "s1", realtime.StatusOnTime,
		time.Date(2022, 6, 10, 8, 0, 30, 0, location),
		time.Date(2022, 6, 10, 8, 0, 35, 0, location))

	is := is.New(t)
	first, err := resolver.Resolve(observation)
	is.NoErr(err)
	second, err := resolver.Resolve(observation)
	is.NoErr(err)
	is.Equal(first.TripId, second.TripId)
	is.True(first.ServiceDate.Equal(second.ServiceDate))
	is.Equal(first.Strategy, second.Strategy)
}

func TestResolver_CoverageCounts(t *testing.T) {
	location := testLocation(t)
	serviceDate := time.Date(2022, 6, 10, 0, 0, 0, 0, location)
	tripA := buildTripSchedule("t-100", "r-1", serviceDate, []stopSpec{
		{stopId: "s1", stopSequence: 1, departureSeconds: 8 * 3600},
	})
	tripB := buildTripSchedule("t-200", "r-1", serviceDate, []stopSpec{
		{stopId: "s1", stopSequence: 1, departureSeconds: 8*3600 + 60},
	})
	repo := &memoryScheduleRepository{trips: []*schedule.TripSchedule{tripA, tripB}}
	resolver := NewResolver(repo, ResolverConfig{AmbiguityTolerance: 5 * time.Minute})

	is := is.New(t)

	resolved := stopObservation("t-100", "s1", realtime.StatusOnTime,
		time.Date(2022, 6, 10, 8, 0, 30, 0, location),
		time.Date(2022, 6, 10, 8, 0, 35, 0, location))
	_, err := resolver.Resolve(resolved)
	is.NoErr(err)

	unresolved := stopObservation("no-such-trip", "s1", realtime.StatusOnTime,
		time.Date(2022, 6, 10, 15, 0, 0, 0, location),
		time.Date(2022, 6, 10, 15, 0, 5, 0, location))
	_, err = resolver.Resolve(unresolved)
	is.True(errors.Is(err, ErrUnresolved))

	ambiguous := stopObservation("veh-9", "s1", realtime.StatusOnTime,
		time.Date(2022, 6, 10, 8, 0, 30, 0, location),
		time.Date(2022, 6, 10, 8, 0, 35, 0, location))
	ambiguous.RouteRef = "r-1"
	_, err = resolver.Resolve(ambiguous)
	var ambiguity *AmbiguityError
	is.True(errors.As(err, &ambiguity))

	coverage := resolver.Coverage()
	is.Equal(coverage, Coverage{Resolved: 1, Unresolved: 1, Ambiguous: 1})
	if coverage.Rate() < 0.33 || coverage.Rate() > 0.34 {
		t.Errorf("Coverage.Rate() = %f, want 1/3", coverage.Rate())
	}
}
