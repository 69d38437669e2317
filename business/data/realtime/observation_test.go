package realtime

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func makeObservation(tripRef string, stopRef string, receivedAt time.Time, status Status) *Observation {
	return &Observation{
		OperatorTripRef: tripRef,
		OperatorStopRef: stopRef,
		Status:          status,
		ReceivedAt:      receivedAt,
	}
}

func TestLatestObservations(t *testing.T) {
	base := time.Date(2022, 6, 10, 8, 0, 0, 0, time.UTC)

	t.Run("latest received wins regardless of input order", func(t *testing.T) {
		is := is.New(t)
		early := makeObservation("t-100", "s1", base, StatusOnTime)
		late := makeObservation("t-100", "s1", base.Add(time.Minute), StatusDelayed)

		results := LatestObservations([]*Observation{early, late})
		is.Equal(len(results), 1)
		is.Equal(results[0].Status, StatusDelayed)

		results = LatestObservations([]*Observation{late, early})
		is.Equal(len(results), 1)
		is.Equal(results[0].Status, StatusDelayed)
	})

	t.Run("equal received times keep the first seen", func(t *testing.T) {
		is := is.New(t)
		first := makeObservation("t-100", "s1", base, StatusOnTime)
		duplicate := makeObservation("t-100", "s1", base, StatusOnTime)

		results := LatestObservations([]*Observation{first, duplicate})
		is.Equal(len(results), 1)
		is.True(results[0] == first)
	})

	t.Run("distinct stops never collapse", func(t *testing.T) {
		is := is.New(t)
		observations := []*Observation{
			makeObservation("t-100", "s1", base, StatusOnTime),
			makeObservation("t-100", "s2", base, StatusOnTime),
			makeObservation("t-200", "s1", base, StatusOnTime),
		}
		is.Equal(len(LatestObservations(observations)), 3)
	})

	t.Run("first seen order is preserved", func(t *testing.T) {
		is := is.New(t)
		observations := []*Observation{
			makeObservation("t-100", "s2", base, StatusOnTime),
			makeObservation("t-100", "s1", base, StatusOnTime),
			makeObservation("t-100", "s2", base.Add(time.Minute), StatusDelayed),
		}
		results := LatestObservations(observations)
		is.Equal(len(results), 2)
		is.Equal(results[0].OperatorStopRef, "s2")
		is.Equal(results[0].Status, StatusDelayed)
		is.Equal(results[1].OperatorStopRef, "s1")
	})
}

func TestObservation_TripWide(t *testing.T) {
	base := time.Date(2022, 6, 10, 8, 0, 0, 0, time.UTC)
	is := is.New(t)

	cancellation := &Observation{
		OperatorTripRef: "t-100",
		Status:          StatusCancelled,
		ReceivedAt:      base,
	}
	is.True(cancellation.TripWide())

	withStop := makeObservation("t-100", "s1", base, StatusCancelled)
	is.True(!withStop.TripWide())

	sequence := uint32(3)
	withSequence := &Observation{
		OperatorTripRef: "t-100",
		StopSequence:    &sequence,
		ReceivedAt:      base,
	}
	is.True(!withSequence.TripWide())
}

func TestStatus_IsCancellation(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusUnknown, false},
		{StatusOnTime, false},
		{StatusDelayed, false},
		{StatusCancelled, true},
		{StatusSkipped, true},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.IsCancellation(); got != tt.want {
				t.Errorf("%s.IsCancellation() = %t, want %t", tt.status, got, tt.want)
			}
		})
	}
}
