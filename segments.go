package spcline

import (
	"fmt"
	"sort"
	"time"
)

// maxInteriorDividers caps the dividers a caller may place between the fixed
// boundary pair, giving at most four segments.
const maxInteriorDividers = 3

// dividerFractions are the default positions of newly added dividers, as
// fractions of the series span, applied in insertion order.
var dividerFractions = [maxInteriorDividers]float64{0.25, 0.50, 0.75}

// DividerSet is the caller-owned record of where a series is split into
// segments. Two fixed dividers always sit at the first and last observation
// timestamps; up to three interior dividers can be added, moved, and removed.
// Interior dividers are kept in insertion order so removal pops the most
// recently added one; segmentation sorts positions on the fly.
type DividerSet struct {
	// Start and End are the fixed boundary dividers.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Interior holds the movable dividers in insertion order.
	Interior []time.Time `json:"interior,omitempty"`
}

// NewDividerSet builds the divider record for a series, with the two fixed
// dividers at the series' earliest and latest timestamps.
func NewDividerSet(s Series) (*DividerSet, error) {
	if len(s) == 0 {
		return nil, ErrEmptySeries
	}
	times, err := s.Times()
	if err != nil {
		return nil, err
	}
	start, end := times[0], times[0]
	for _, t := range times[1:] {
		if t.Before(start) {
			start = t
		}
		if t.After(end) {
			end = t
		}
	}
	return &DividerSet{Start: start, End: end}, nil
}

// Count returns the total number of dividers including the fixed pair.
func (d *DividerSet) Count() int {
	return 2 + len(d.Interior)
}

// AddDivider places a new interior divider at its default position: the
// first lands a quarter of the way through the span, the second halfway, the
// third at three quarters.
func (d *DividerSet) AddDivider() error {
	if len(d.Interior) >= maxInteriorDividers {
		return ErrDividerLimit
	}
	span := d.End.Sub(d.Start)
	fraction := dividerFractions[len(d.Interior)]
	d.Interior = append(d.Interior, d.Start.Add(time.Duration(float64(span)*fraction)))
	return nil
}

// AddDividerAt places a new interior divider at an explicit position inside
// the fixed boundaries.
func (d *DividerSet) AddDividerAt(t time.Time) error {
	if len(d.Interior) >= maxInteriorDividers {
		return ErrDividerLimit
	}
	if t.Before(d.Start) || t.After(d.End) {
		return fmt.Errorf("%w: divider position outside series span", ErrBadInput)
	}
	d.Interior = append(d.Interior, t)
	return nil
}

// MoveDivider repositions the i-th interior divider, counted in insertion
// order.
func (d *DividerSet) MoveDivider(i int, t time.Time) error {
	if i < 0 || i >= len(d.Interior) {
		return fmt.Errorf("%w: no interior divider %d", ErrBadInput, i)
	}
	if t.Before(d.Start) || t.After(d.End) {
		return fmt.Errorf("%w: divider position outside series span", ErrBadInput)
	}
	d.Interior[i] = t
	return nil
}

// RemoveDivider removes the most recently added interior divider. The fixed
// boundary dividers can never be removed.
func (d *DividerSet) RemoveDivider() error {
	if len(d.Interior) == 0 {
		return ErrNoDividers
	}
	d.Interior = d.Interior[:len(d.Interior)-1]
	return nil
}

// boundaries returns all divider positions sorted ascending, fixed pair
// included.
func (d *DividerSet) boundaries() []time.Time {
	out := make([]time.Time, 0, d.Count())
	out = append(out, d.Start)
	out = append(out, d.Interior...)
	out = append(out, d.End)
	sort.Slice(out, func(a, b int) bool { return out[a].Before(out[b]) })
	return out
}

// SegmentStats describes one segment of a divided series: its time bounds,
// its own control limits, and its observations with moving ranges. Point
// indices and violation indices refer to positions in the full series, so
// segment output can be overlaid on the undivided chart without re-matching
// values.
type SegmentStats struct {
	// Start and End bound the segment. A segment owns observations from
	// Start inclusive to End exclusive; the last segment also owns End.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// FirstIndex is the series position of the segment's first observation.
	FirstIndex int `json:"first_index"`
	// Limits are computed over the segment's own observations, except the
	// first segment under a lock, which keeps the locked baseline.
	Limits ControlLimits `json:"limits"`
	// Points are the segment's moving-range points with series indices.
	Points []RangedPoint `json:"points,omitempty"`
	// Violations are the pattern rule hits inside the segment, with
	// series indices.
	Violations ViolationSet `json:"violations"`
}

// SegmentOptions selects the limit mode and the overlays that apply to the
// first segment. Later segments never carry an overlay; a lock or trend
// describes the history before the first divider, not what follows it.
type SegmentOptions struct {
	Mode LimitMode
	// Lock, when set and in force, replaces the first segment's computed
	// limits with the locked baseline.
	Lock *LockedLimitState
	// Trend, when set, screens the first segment against sloping lines.
	Trend *TrendLimits
}

// SegmentAnalysis is the outcome of analyzing a divided series.
type SegmentAnalysis struct {
	Segments []SegmentStats `json:"segments"`
	// Violations is the union of all segment violations in series indices.
	Violations ViolationSet `json:"violations"`
}

// AnalyzeSegments splits the series at the divider positions and analyzes
// each segment independently. Every segment gets its own limits and its own
// pattern screening, so a deliberate process change between dividers is not
// flagged as instability. Observations are assigned to segments by
// timestamp, left-closed, and results carry series indices throughout.
func AnalyzeSegments(s Series, dividers *DividerSet, opts SegmentOptions) (*SegmentAnalysis, error) {
	if len(s) == 0 {
		return nil, ErrEmptySeries
	}
	times, err := s.Times()
	if err != nil {
		return nil, err
	}

	bounds := dividers.boundaries()
	segmentCount := len(bounds) - 1
	splits := make([]int, segmentCount+1)
	splits[segmentCount] = len(s)
	next := 0
	for j := 1; j < segmentCount; j++ {
		for next < len(s) && times[next].Before(bounds[j]) {
			next++
		}
		splits[j] = next
	}

	analysis := &SegmentAnalysis{Segments: make([]SegmentStats, 0, segmentCount)}
	for j := 0; j < segmentCount; j++ {
		sub := s[splits[j]:splits[j+1]]
		seg := SegmentStats{
			Start:      bounds[j],
			End:        bounds[j+1],
			FirstIndex: splits[j],
		}

		var trend *TrendLimits
		if j == 0 {
			if opts.Trend != nil {
				trend = opts.Trend
				if trend.Len() > len(sub) {
					trend = trend.slice(0, len(sub))
				}
			}
			if opts.Lock != nil && opts.Lock.Locked {
				seg.Limits = opts.Lock.Limits
			} else {
				seg.Limits = ComputeLimits(sub, opts.Mode)
			}
		} else {
			seg.Limits = ComputeLimits(sub, opts.Mode)
		}

		seg.Points = RangedPoints(sub)
		for i := range seg.Points {
			seg.Points[i].Index += seg.FirstIndex
		}
		seg.Violations = detectViolationValues(sub.Values(), seg.Limits, trend).shift(seg.FirstIndex)

		analysis.Violations.merge(seg.Violations)
		analysis.Segments = append(analysis.Segments, seg)
	}
	return analysis, nil
}
