package model

import (
	"testing"
	"time"
)

func TestSameDay(t *testing.T) {
	cases := []struct {
		name string
		a, b time.Time
		want bool
	}{
		{
			"same moment",
			time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC),
			time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC),
			true,
		},
		{
			"same day different hours",
			time.Date(2021, 3, 1, 0, 0, 1, 0, time.UTC),
			time.Date(2021, 3, 1, 23, 59, 59, 0, time.UTC),
			true,
		},
		{
			"across midnight",
			time.Date(2021, 3, 1, 23, 59, 59, 0, time.UTC),
			time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC),
			false,
		},
		{
			"same day number different month",
			time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC),
			time.Date(2021, 4, 1, 9, 0, 0, 0, time.UTC),
			false,
		},
		{
			"same day number different year",
			time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC),
			time.Date(2022, 3, 1, 9, 0, 0, 0, time.UTC),
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SameDay(tc.a, tc.b); got != tc.want {
				t.Errorf("SameDay(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
