package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	at := func(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

	cases := []struct {
		name         string
		aStart, aEnd time.Time
		bStart, bEnd time.Time
		want         bool
	}{
		{"partial overlap", at(0), at(60), at(30), at(90), true},
		{"contained window", at(0), at(120), at(30), at(60), true},
		{"identical windows", at(0), at(60), at(0), at(60), true},
		{"touching endpoints are disjoint", at(0), at(60), at(60), at(120), false},
		{"fully apart", at(0), at(30), at(90), at(120), false},
		{"zero-length window never overlaps", at(30), at(30), at(0), at(60), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd),
				"overlap must be symmetric")
		})
	}
}

func TestSameCalendarDay(t *testing.T) {
	morning := time.Date(2026, 1, 5, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 1, 5, 23, 30, 0, 0, time.UTC)
	assert.True(t, SameCalendarDay(morning, evening))
	assert.False(t, SameCalendarDay(morning, evening.Add(time.Hour)))

	// Comparison happens in the first argument's location.
	plus3 := time.FixedZone("UTC+3", 3*60*60)
	late := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	early := time.Date(2026, 1, 6, 1, 0, 0, 0, time.UTC)
	assert.False(t, SameCalendarDay(late, early))
	assert.True(t, SameCalendarDay(late.In(plus3), early))
}
