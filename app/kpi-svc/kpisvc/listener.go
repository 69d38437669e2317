package kpisvc

import (
	"encoding/json"
	"errors"
	logger "log"
	"os"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/railmetrics/railmatch/business/kpi"
	"github.com/railmetrics/railmatch/business/matching"
)

//runMatchListener starts NATS subscriptions for finalized MatchedTripStop records
//and coverage snapshots. Feeds the aggregator and coverage store. Ends NATS
//subscriptions and returns on shutdownSignal
func runMatchListener(
	log *logger.Logger,
	wg *sync.WaitGroup,
	natsConnection *nats.Conn,
	aggregator *kpi.Aggregator,
	coverage *coverageStore,
	matchedSubject string,
	coverageSubject string,
	shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	matchedChan := make(chan *nats.Msg, 64)
	log.Printf("Subscribing to matched trip stops on subject:%s on nats: %v\n", matchedSubject,
		natsConnection.Servers())
	matchedSub, err := natsConnection.ChanSubscribe(matchedSubject, matchedChan)
	if err != nil {
		log.Printf("Unable to establish subscription to nats server: %v\n", err)
		os.Exit(1)
	}

	coverageChan := make(chan *nats.Msg, 64)
	coverageSub, err := natsConnection.ChanSubscribe(coverageSubject, coverageChan)
	if err != nil {
		log.Printf("Unable to establish subscription to nats server: %v\n", err)
		os.Exit(1)
	}

	for {
		select {
		case msg := <-matchedChan:
			processMatchedFromMsg(log, msg, aggregator)
			break
		case msg := <-coverageChan:
			processCoverageFromMsg(log, msg, coverage)
			break
		case <-shutdownSignal:
			log.Printf("ending match listener on shutdown signal\n")
			log.Printf("unsubscribing to nats\n")
			err = matchedSub.Unsubscribe()
			if err != nil {
				log.Printf("Error unsubscribing to nats:%s", err)
			}
			err = coverageSub.Unsubscribe()
			if err != nil {
				log.Printf("Error unsubscribing to nats:%s", err)
			}
			return
		}
	}
}

//processMatchedFromMsg un-marshal matching.MatchedTripStop from nats.Msg and ingest
//into the aggregator
func processMatchedFromMsg(log *logger.Logger, msg *nats.Msg, aggregator *kpi.Aggregator) {
	var matched matching.MatchedTripStop
	err := json.Unmarshal(msg.Data, &matched)
	if err != nil {
		log.Printf("error parsing MatchedTripStop: %s, payload:%s", err, string(msg.Data))
		return
	}
	err = aggregator.Ingest(&matched)
	if err != nil {
		if errors.Is(err, kpi.ErrWindowClosed) {
			log.Printf("dropping record for closed window: %s", &matched)
			return
		}
		log.Printf("error ingesting MatchedTripStop: %s", err)
	}
}

//processCoverageFromMsg un-marshal matching.Coverage from nats.Msg and store the
//latest snapshot
func processCoverageFromMsg(log *logger.Logger, msg *nats.Msg, coverage *coverageStore) {
	var snapshot matching.Coverage
	err := json.Unmarshal(msg.Data, &snapshot)
	if err != nil {
		log.Printf("error parsing Coverage: %s, payload:%s", err, string(msg.Data))
		return
	}
	coverage.set(snapshot)
}
