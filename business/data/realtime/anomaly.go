package realtime

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// AnomalyKind classifies why an observation could not be used for matching
type AnomalyKind string

const (
	// AnomalyUnresolved - the identity resolver found no scheduled trip at all
	AnomalyUnresolved AnomalyKind = "unresolved"
	// AnomalyAmbiguous - the identity resolver found several equally plausible
	// scheduled trips and refused to guess
	AnomalyAmbiguous AnomalyKind = "ambiguous"
	// AnomalyAttribution - the observation could not be placed on any scheduled stop of
	// its resolved trip
	AnomalyAttribution AnomalyKind = "attribution"
	// AnomalyLateArrival - the observation arrived after its target record finalized
	AnomalyLateArrival AnomalyKind = "late_arrival"
)

// Anomaly records an observation that was set aside during matching, with the raw
// observation retained for offline inspection. Anomalies never block processing
type Anomaly struct {
	Kind            AnomalyKind `db:"kind"`
	TripId          string      `db:"trip_id"`
	OperatorTripRef string      `db:"operator_trip_ref"`
	OperatorStopRef string      `db:"operator_stop_ref"`
	ObservedTime    *time.Time  `db:"observed_time"`
	Details         string      `db:"details"`
	RawObservation  string      `db:"raw_observation"`
	CreatedAt       time.Time   `db:"created_at"`
}

// MakeAnomaly builds an Anomaly from the observation it sets aside
func MakeAnomaly(kind AnomalyKind, tripId string, observation *Observation, details string) *Anomaly {
	raw, err := json.Marshal(observation)
	if err != nil {
		raw = []byte("{}")
	}
	return &Anomaly{
		Kind:            kind,
		TripId:          tripId,
		OperatorTripRef: observation.OperatorTripRef,
		OperatorStopRef: observation.OperatorStopRef,
		ObservedTime:    observation.ObservedTime,
		Details:         details,
		RawObservation:  string(raw),
	}
}

// RecordAnomaly saves an Anomaly to the database
func RecordAnomaly(anomaly *Anomaly, db *sqlx.DB) error {
	anomaly.CreatedAt = time.Now()

	statementString := "insert into realtime_anomaly " +
		"(kind, " +
		"trip_id, " +
		"operator_trip_ref, " +
		"operator_stop_ref, " +
		"observed_time, " +
		"details, " +
		"raw_observation, " +
		"created_at) " +
		"values " +
		"(:kind, " +
		":trip_id, " +
		":operator_trip_ref, " +
		":operator_stop_ref, " +
		":observed_time, " +
		":details, " +
		":raw_observation, " +
		":created_at)"
	statementString = db.Rebind(statementString)
	_, err := db.NamedExec(statementString, anomaly)
	return err
}
