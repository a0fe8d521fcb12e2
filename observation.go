package spcline

import (
	"sort"
	"time"
)

// Observation is a single time-ordered measurement of a metric.
type Observation struct {
	// Timestamp is the observation time as an RFC 3339 or plain date string
	// (e.g. "2024-03-01T00:00:00Z" or "2024-03-01").
	Timestamp string `json:"timestamp"`
	// Value is the numeric measurement.
	Value float64 `json:"value"`
	// Confidence is an optional ingestion confidence in [0, 1].
	// Zero means no confidence was supplied.
	Confidence float64 `json:"confidence,omitempty"`
}

// Series is an ordered sequence of observations. Callers are responsible for
// sorting by timestamp and removing duplicates before analysis; the engine
// assumes both but never crashes when the assumption is broken.
type Series []Observation

// observationLayouts are the accepted timestamp formats, tried in order.
var observationLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an observation timestamp string.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range observationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrBadTimestamp
}

// Time returns the parsed observation timestamp.
func (o Observation) Time() (time.Time, error) {
	return ParseTimestamp(o.Timestamp)
}

// Values returns the value column of the series.
func (s Series) Values() []float64 {
	values := make([]float64, len(s))
	for i, o := range s {
		values[i] = o.Value
	}
	return values
}

// Times returns the parsed timestamp column of the series.
func (s Series) Times() ([]time.Time, error) {
	times := make([]time.Time, len(s))
	for i, o := range s {
		t, err := o.Time()
		if err != nil {
			return nil, err
		}
		times[i] = t
	}
	return times, nil
}

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// MergeObservations folds incoming observations into a series and returns a
// new series sorted by time. Observations at the same instant collapse to
// one: the higher confidence wins, ties go to the newcomer. Neither input is
// mutated.
func MergeObservations(existing Series, incoming ...Observation) (Series, error) {
	type slot struct {
		at  time.Time
		obs Observation
	}
	slots := make([]slot, 0, len(existing)+len(incoming))
	byInstant := make(map[int64]int, len(existing)+len(incoming))

	add := func(o Observation, replaceTies bool) error {
		t, err := o.Time()
		if err != nil {
			return err
		}
		key := t.UnixNano()
		if pos, ok := byInstant[key]; ok {
			if o.Confidence > slots[pos].obs.Confidence ||
				(replaceTies && o.Confidence == slots[pos].obs.Confidence) {
				slots[pos].obs = o
			}
			return nil
		}
		byInstant[key] = len(slots)
		slots = append(slots, slot{at: t, obs: o})
		return nil
	}

	for _, o := range existing {
		if err := add(o, false); err != nil {
			return nil, err
		}
	}
	for _, o := range incoming {
		if err := add(o, true); err != nil {
			return nil, err
		}
	}

	sort.Slice(slots, func(a, b int) bool { return slots[a].at.Before(slots[b].at) })
	out := make(Series, len(slots))
	for i, s := range slots {
		out[i] = s.obs
	}
	return out, nil
}

// RangedPoint pairs an observation with its moving range, the absolute
// difference from the previous observation's value. The first observation of a
// series has no previous value and therefore no ranged point.
type RangedPoint struct {
	// Index is the observation's position in the source series.
	Index int `json:"index"`
	// Timestamp is the observation's timestamp string.
	Timestamp string `json:"timestamp"`
	// Value is the observation's value.
	Value float64 `json:"value"`
	// Range is |value - previous value|.
	Range float64 `json:"range"`
}

// RangedPoints derives the moving-range series. A series of length n yields
// n-1 points, each carrying the index of its source observation.
func RangedPoints(s Series) []RangedPoint {
	if len(s) < 2 {
		return nil
	}
	points := make([]RangedPoint, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		points = append(points, RangedPoint{
			Index:     i,
			Timestamp: s[i].Timestamp,
			Value:     s[i].Value,
			Range:     abs(s[i].Value - s[i-1].Value),
		})
	}
	return points
}
