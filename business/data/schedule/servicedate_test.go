package schedule

import (
	"reflect"
	"testing"
	"time"
)

func TestTimeOnServiceDay(t *testing.T) {
	location, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Errorf("Unable to get testing time zone location")
		return
	}
	type args struct {
		serviceDate     time.Time
		scheduleSeconds int
	}
	tests := []struct {
		name string
		args args
		want time.Time
	}{
		{
			name: "12am",
			args: args{
				serviceDate:     time.Date(2022, 1, 9, 0, 0, 0, 0, location),
				scheduleSeconds: 0,
			},
			want: time.Date(2022, 1, 9, 0, 0, 0, 0, location),
		},
		{
			name: "noon",
			args: args{
				serviceDate:     time.Date(2022, 1, 9, 0, 0, 0, 0, location),
				scheduleSeconds: 43200,
			},
			want: time.Date(2022, 1, 9, 12, 0, 0, 0, location),
		},
		{
			name: "past midnight rollover, 25:10:00",
			args: args{
				serviceDate:     time.Date(2022, 1, 9, 0, 0, 0, 0, location),
				scheduleSeconds: 25*3600 + 600,
			},
			want: time.Date(2022, 1, 10, 1, 10, 0, 0, location),
		},
		{
			name: "12:30pm on spring forward day",
			args: args{
				serviceDate:     time.Date(2022, 3, 13, 0, 0, 0, 0, location),
				scheduleSeconds: 45000,
			},
			want: time.Date(2022, 3, 13, 12, 30, 0, 0, location),
		},
		{
			name: "12:30pm on fall back day",
			args: args{
				serviceDate:     time.Date(2022, 11, 6, 0, 0, 0, 0, location),
				scheduleSeconds: 45000,
			},
			want: time.Date(2022, 11, 6, 12, 30, 0, 0, location),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeOnServiceDay(tt.args.serviceDate, tt.args.scheduleSeconds); !got.Equal(tt.want) {
				t.Errorf("TimeOnServiceDay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCandidateServiceDates(t *testing.T) {
	location, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Errorf("Unable to get testing time zone location")
		return
	}
	tests := []struct {
		name string
		at   time.Time
		want []time.Time
	}{
		{
			name: "early morning inside rollover span yields prior day first",
			at:   time.Date(2022, 6, 10, 1, 30, 0, 0, location),
			want: []time.Time{
				time.Date(2022, 6, 9, 0, 0, 0, 0, location),
				time.Date(2022, 6, 10, 0, 0, 0, 0, location),
			},
		},
		{
			name: "5:59am still inside 30 hour service day of prior date",
			at:   time.Date(2022, 6, 10, 5, 59, 0, 0, location),
			want: []time.Time{
				time.Date(2022, 6, 9, 0, 0, 0, 0, location),
				time.Date(2022, 6, 10, 0, 0, 0, 0, location),
			},
		},
		{
			name: "6am and later only the calendar day applies",
			at:   time.Date(2022, 6, 10, 6, 0, 0, 0, location),
			want: []time.Time{
				time.Date(2022, 6, 10, 0, 0, 0, 0, location),
			},
		},
		{
			name: "midday",
			at:   time.Date(2022, 6, 10, 14, 15, 0, 0, location),
			want: []time.Time{
				time.Date(2022, 6, 10, 0, 0, 0, 0, location),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CandidateServiceDates(tt.at)
			if len(got) != len(tt.want) {
				t.Errorf("CandidateServiceDates() = %v, want %v", got, tt.want)
				return
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("CandidateServiceDates()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestServiceDaySpans(t *testing.T) {
	location, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Errorf("Unable to get testing time zone location")
		return
	}
	tests := []struct {
		name      string
		giveStart time.Time
		giveEnd   time.Time
		want      []ServiceDaySpan
	}{
		{
			name:      "midday range inside one service day",
			giveStart: time.Date(2022, 11, 19, 9, 45, 0, 0, location),
			giveEnd:   time.Date(2022, 11, 19, 10, 45, 0, 0, location),
			want: []ServiceDaySpan{
				{
					ServiceDate:  time.Date(2022, 11, 19, 0, 0, 0, 0, location),
					StartSeconds: 9*3600 + 45*60,
					EndSeconds:   10*3600 + 45*60,
				},
			},
		},
		{
			name:      "early morning range overlaps prior service day",
			giveStart: time.Date(2022, 11, 19, 1, 0, 0, 0, location),
			giveEnd:   time.Date(2022, 11, 19, 2, 0, 0, 0, location),
			want: []ServiceDaySpan{
				{
					ServiceDate:  time.Date(2022, 11, 18, 0, 0, 0, 0, location),
					StartSeconds: 25 * 3600,
					EndSeconds:   26 * 3600,
				},
				{
					ServiceDate:  time.Date(2022, 11, 19, 0, 0, 0, 0, location),
					StartSeconds: 1 * 3600,
					EndSeconds:   2 * 3600,
				},
			},
		},
		{
			name:      "range crossing midnight",
			giveStart: time.Date(2022, 11, 19, 23, 0, 0, 0, location),
			giveEnd:   time.Date(2022, 11, 20, 1, 0, 0, 0, location),
			want: []ServiceDaySpan{
				{
					ServiceDate:  time.Date(2022, 11, 19, 0, 0, 0, 0, location),
					StartSeconds: 23 * 3600,
					EndSeconds:   25 * 3600,
				},
				{
					ServiceDate:  time.Date(2022, 11, 20, 0, 0, 0, 0, location),
					StartSeconds: 0,
					EndSeconds:   1 * 3600,
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ServiceDaySpans(tt.giveStart, tt.giveEnd); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ServiceDaySpans() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSameServiceDate(t *testing.T) {
	location, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Errorf("Unable to get testing time zone location")
		return
	}
	if !SameServiceDate(
		time.Date(2022, 6, 10, 1, 0, 0, 0, location),
		time.Date(2022, 6, 10, 23, 59, 0, 0, location)) {
		t.Errorf("expected times on the same calendar day to share a service date")
	}
	if SameServiceDate(
		time.Date(2022, 6, 10, 23, 59, 0, 0, location),
		time.Date(2022, 6, 11, 0, 1, 0, 0, location)) {
		t.Errorf("expected times on different calendar days to differ")
	}
}
