// Package monitor reconciles the operator's realtime feed against the schedule
// store and publishes finalized matched trip-stop records
package monitor

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	"github.com/railmetrics/railmatch/business/data/realtime"
	"github.com/railmetrics/railmatch/business/data/schedule"
	"github.com/railmetrics/railmatch/business/matching"
)

// Config carries the reconcile loop settings, every matching tolerance is surfaced
// here rather than hard coded
type Config struct {
	TripUpdatesUrl            string
	LoopEverySeconds          int
	ExpectAheadMinutes        int
	GracePeriodMinutes        int
	InferenceWindowSeconds    int
	AmbiguityToleranceSeconds int
	RecordToDatabase          bool
	PublishOverNats           bool
}

// RunReconcileLoop starts loop that polls the realtime feed, resolves and attributes
// observations, finalizes due trip-stops, and publishes the results. Returns on
// shutdown signal
func RunReconcileLoop(log *log.Logger,
	db *sqlx.DB,
	natsConnection *nats.Conn,
	cfg Config,
	shutdownSignal chan os.Signal) error {

	repo := &schedule.Repository{Db: db}
	resolver := matching.NewResolver(repo, matching.ResolverConfig{
		AmbiguityTolerance: time.Duration(cfg.AmbiguityToleranceSeconds) * time.Second,
	})
	anomalies := makeAnomalyRecorder(log, db)
	matcher := matching.NewMatcher(log, matching.MatcherConfig{
		GraceDuration:   time.Duration(cfg.GracePeriodMinutes) * time.Minute,
		InferenceWindow: time.Duration(cfg.InferenceWindowSeconds) * time.Second,
	}, anomalies)
	publisher := makeMatchResultsPublisher(log, db, natsConnection, cfg.RecordToDatabase, cfg.PublishOverNats)

	loopDuration := time.Duration(cfg.LoopEverySeconds) * time.Second
	expectAhead := time.Duration(cfg.ExpectAheadMinutes) * time.Minute

	sleepChan := make(chan bool)
	sleep := time.Duration(0) //sleep for zero seconds the first time

	var expectedThrough time.Time

	for {
		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting on shutdown signal")
			return nil
		case <-sleepChan:
			break
		}

		//set default sleep for next loop in the event of an error after continue statements
		sleep = loopDuration

		// mark the time we start working
		start := time.Now()

		expectedThrough = expectUpcomingTrips(log, repo, matcher, start, expectAhead, expectedThrough)

		observations, err := realtime.GetObservations(log, cfg.TripUpdatesUrl)
		if err != nil {
			log.Printf("error attempting to get trip updates. error:%v\n", err)
			continue
		}
		observations = realtime.LatestObservations(observations)
		log.Printf("loaded %d observations\n", len(observations))

		reconcileObservations(log, resolver, matcher, anomalies, observations)

		finalized := matcher.FinalizeDue(time.Now())
		if len(finalized) > 0 {
			log.Printf("finalized %d trip-stops, %d still open", len(finalized), matcher.OpenStopCount())
			publisher.publish(finalized)
		}
		publisher.publishCoverage(resolver.Coverage())

		// attempt to run the loop every LoopEverySeconds by subtracting the time it took to perform the work
		workTook := time.Now().Sub(start)
		log.Printf("work took %s\n", fmtDuration(workTook))

		// if the work took longer than LoopEverySeconds don't sleep at all on the next loop
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}
	}
}

// expectUpcomingTrips seeds the matcher with trips scheduled between expectedThrough
// and now plus the look-ahead horizon, so trips with no observations at all still
// finalize as unmatched. Returns the new high-water mark
func expectUpcomingTrips(log *log.Logger,
	repo *schedule.Repository,
	matcher *matching.Matcher,
	now time.Time,
	expectAhead time.Duration,
	expectedThrough time.Time) time.Time {

	horizon := now.Add(expectAhead)
	if !expectedThrough.Before(horizon) {
		return expectedThrough
	}
	from := expectedThrough
	if from.IsZero() {
		from = now.Add(-expectAhead)
	}
	trips, err := repo.ActiveTrips(from, horizon)
	if err != nil {
		log.Printf("error loading active trips, will retry next cycle. error:%v\n", err)
		return expectedThrough
	}
	for _, trip := range trips {
		matcher.ExpectTrip(trip)
	}
	log.Printf("expecting %d trips through %s", len(trips), horizon.Format("15:04:05"))
	return horizon
}

// reconcileObservations resolves each observation to a scheduled trip and attributes
// it. Unresolved and ambiguous observations are recorded for coverage and never
// block the rest of the batch
func reconcileObservations(log *log.Logger,
	resolver *matching.Resolver,
	matcher *matching.Matcher,
	anomalies matching.AnomalyHandler,
	observations []*realtime.Observation) {

	for _, observation := range observations {
		resolution, err := resolver.Resolve(observation)
		if err != nil {
			kind := realtime.AnomalyUnresolved
			var ambiguity *matching.AmbiguityError
			if errors.As(err, &ambiguity) {
				kind = realtime.AnomalyAmbiguous
			}
			anomalies.HandleAnomaly(realtime.MakeAnomaly(kind, "", observation, err.Error()))
			continue
		}
		matcher.Attribute(resolution, observation)
	}
}

//fmtDuration returns a string presentation of time.Duration for logging
func fmtDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	mill := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d.%d", h, m, mill)
}
