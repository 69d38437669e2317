// Package kpisvc consumes finalized matched trip-stop records over NATS, maintains
// KPI aggregates, and serves them over http
package kpisvc

import (
	logger "log"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/railmetrics/railmatch/business/kpi"
	"github.com/railmetrics/railmatch/business/matching"
)

// Config carries the kpi service settings
type Config struct {
	HttpPort               int
	MatchedSubject         string
	CoverageSubject        string
	OnTimeThresholdSeconds int
	CloseDayAfterHours     int
	PercentileRanks        []float64
}

// coverageStore keeps the latest resolution coverage snapshot received from the
// monitor
type coverageStore struct {
	mu     sync.Mutex
	latest matching.Coverage
}

func (c *coverageStore) set(coverage matching.Coverage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = coverage
}

func (c *coverageStore) get() matching.Coverage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Run starts the NATS listener, the day closer, and the web service, and blocks
// until shutdownSignal
func Run(log *logger.Logger,
	natsConnection *nats.Conn,
	cfg Config,
	shutdownSignal chan os.Signal) error {

	aggregator := kpi.NewAggregator(kpi.AggregatorConfig{
		DefaultOnTimeThreshold: time.Duration(cfg.OnTimeThresholdSeconds) * time.Second,
		Percentiles:            cfg.PercentileRanks,
	})
	coverage := &coverageStore{}

	wg := sync.WaitGroup{}
	listenerShutdown := make(chan bool)
	closerShutdown := make(chan bool)
	webShutdown := make(chan bool)

	go runMatchListener(log, &wg, natsConnection, aggregator, coverage,
		cfg.MatchedSubject, cfg.CoverageSubject, listenerShutdown)
	go runDayCloser(log, &wg, aggregator,
		time.Duration(cfg.CloseDayAfterHours)*time.Hour, closerShutdown)
	go runWebService(log, &wg, aggregator, coverage, cfg.HttpPort, webShutdown)

	<-shutdownSignal
	log.Printf("shutting down on signal")
	close(listenerShutdown)
	close(closerShutdown)
	close(webShutdown)
	wg.Wait()
	return nil
}

// runDayCloser closes the aggregation window of service dates once their service
// day plus the close delay has fully elapsed, making their aggregates immutable
func runDayCloser(log *logger.Logger,
	wg *sync.WaitGroup,
	aggregator *kpi.Aggregator,
	closeAfter time.Duration,
	shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case at := <-ticker.C:
			closed := at.Add(-closeAfter)
			aggregator.CloseDay(closed)
			log.Printf("closed aggregation window for %s", closed.Format("2006-01-02"))
		case <-shutdownSignal:
			log.Printf("ending day closer on shutdown signal")
			return
		}
	}
}
