package spcline

import "time"

// testStart anchors generated test series at a fixed date so expectations
// stay stable.
var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// testSeries builds a daily series from raw values, one observation per day
// starting at testStart.
func testSeries(values ...float64) Series {
	s := make(Series, len(values))
	for i, v := range values {
		s[i] = Observation{
			Timestamp: testStart.AddDate(0, 0, i).Format("2006-01-02"),
			Value:     v,
		}
	}
	return s
}

// mustTime parses a timestamp or panics, for test fixtures only.
func mustTime(s string) time.Time {
	t, err := ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
