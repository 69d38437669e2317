package monitor

import (
	"encoding/json"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	"github.com/railmetrics/railmatch/business/data/realtime"
	"github.com/railmetrics/railmatch/business/matching"
)

const (
	// MatchedTripStopSubject carries finalized MatchedTripStop records as json
	MatchedTripStopSubject = "matched-trip-stops"
	// CoverageSubject carries resolution coverage snapshots as json
	CoverageSubject = "resolution-coverage"
)

//matchResultsPublisher takes finalized records made by the matcher and sends them to
//their destinations (such as database and nats)
type matchResultsPublisher struct {
	log              *log.Logger
	db               *sqlx.DB
	natsConnection   *nats.Conn
	recordToDatabase bool
	publishOverNats  bool
}

//makeMatchResultsPublisher creates matchResultsPublisher
func makeMatchResultsPublisher(log *log.Logger,
	db *sqlx.DB,
	natsConnection *nats.Conn,
	recordToDatabase bool,
	publishOverNats bool) *matchResultsPublisher {
	return &matchResultsPublisher{
		log:              log,
		db:               db,
		natsConnection:   natsConnection,
		recordToDatabase: recordToDatabase,
		publishOverNats:  publishOverNats,
	}
}

//publish sends finalized records over NATS and records them to the database
//according to publishOverNats and recordToDatabase
func (p *matchResultsPublisher) publish(finalized []*matching.MatchedTripStop) {
	for _, matched := range finalized {
		p.log.Printf("%s\n", matched)
	}
	if p.publishOverNats {
		p.sendOverNats(finalized)
	}
	if p.recordToDatabase {
		p.record(finalized)
	}
}

func (p *matchResultsPublisher) sendOverNats(finalized []*matching.MatchedTripStop) {
	for _, matched := range finalized {
		jsonData, err := json.Marshal(matched)
		if err != nil {
			p.log.Printf("failed to marshal MatchedTripStop in "+
				"matchResultsPublisher.sendOverNats, error:%v", err)
			continue
		}
		err = p.natsConnection.Publish(MatchedTripStopSubject, jsonData)
		if err != nil {
			p.log.Printf("failed to send MatchedTripStop in "+
				"matchResultsPublisher.sendOverNats, error:%v", err)
		}
	}
}

func (p *matchResultsPublisher) record(finalized []*matching.MatchedTripStop) {
	for _, matched := range finalized {
		err := matching.RecordMatchedTripStop(matched, p.db)
		if err != nil {
			p.log.Printf("Error saving matched trip stop %+v. error: %v", matched, err)
		}
	}
}

//publishCoverage sends the current resolution coverage snapshot over NATS
func (p *matchResultsPublisher) publishCoverage(coverage matching.Coverage) {
	if !p.publishOverNats {
		return
	}
	jsonData, err := json.Marshal(coverage)
	if err != nil {
		p.log.Printf("failed to marshal Coverage in matchResultsPublisher, error:%v", err)
		return
	}
	err = p.natsConnection.Publish(CoverageSubject, jsonData)
	if err != nil {
		p.log.Printf("failed to send Coverage in matchResultsPublisher, error:%v", err)
	}
}

//makeAnomalyRecorder builds the matching.AnomalyHandler that logs anomalies and
//saves them for offline inspection
func makeAnomalyRecorder(log *log.Logger, db *sqlx.DB) matching.AnomalyHandler {
	return matching.AnomalyHandlerFunc(func(anomaly *realtime.Anomaly) {
		log.Printf("anomaly %s trip:%s stop:%s %s", anomaly.Kind, anomaly.OperatorTripRef,
			anomaly.OperatorStopRef, anomaly.Details)
		err := realtime.RecordAnomaly(anomaly, db)
		if err != nil {
			log.Printf("Error saving anomaly %+v. error: %v", anomaly, err)
		}
	})
}
