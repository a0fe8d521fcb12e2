package spcline

import (
	"fmt"
	"sort"
	"time"
)

// Period is the seasonal cycle length factors are computed over.
type Period int

const (
	PeriodWeek Period = iota
	PeriodMonth
	PeriodQuarter
	PeriodYear
)

// String returns the period name.
func (p Period) String() string {
	switch p {
	case PeriodWeek:
		return "week"
	case PeriodMonth:
		return "month"
	case PeriodQuarter:
		return "quarter"
	case PeriodYear:
		return "year"
	default:
		return "unknown"
	}
}

// ParsePeriod parses a period name.
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "week":
		return PeriodWeek, nil
	case "month":
		return PeriodMonth, nil
	case "quarter":
		return PeriodQuarter, nil
	case "year":
		return PeriodYear, nil
	default:
		return 0, fmt.Errorf("%w: period %q", ErrBadInput, s)
	}
}

// Grouping coarsens positions inside a period. Weekly grouping applies to
// the year period, monthly grouping to quarter and year; the week and month
// periods ignore grouping.
type Grouping int

const (
	GroupNone Grouping = iota
	GroupWeekly
	GroupMonthly
)

// String returns the grouping name.
func (g Grouping) String() string {
	switch g {
	case GroupNone:
		return "none"
	case GroupWeekly:
		return "weekly"
	case GroupMonthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// ParseGrouping parses a grouping name. The empty string means no grouping.
func ParseGrouping(s string) (Grouping, error) {
	switch s {
	case "", "none":
		return GroupNone, nil
	case "weekly":
		return GroupWeekly, nil
	case "monthly":
		return GroupMonthly, nil
	default:
		return 0, fmt.Errorf("%w: grouping %q", ErrBadInput, s)
	}
}

// nominalSpan is the shortest duration a sampling interval must stay under
// for the period to be offered, and the span below which a series cannot
// cover one full period.
func nominalSpan(p Period) time.Duration {
	switch p {
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 28 * 24 * time.Hour
	case PeriodQuarter:
		return 90 * 24 * time.Hour
	default:
		return 365 * 24 * time.Hour
	}
}

// positionCount is the size of the position space for a period and grouping.
func positionCount(p Period, g Grouping) int {
	switch p {
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 31
	case PeriodQuarter:
		if g == GroupMonthly {
			return 3
		}
		return 92
	default:
		if g == GroupMonthly {
			return 12
		}
		if g == GroupWeekly {
			return 53
		}
		return 366
	}
}

// positionOf maps a timestamp to its period key and position. Week positions
// are ISO weekdays (Monday is zero); month positions are day of month; the
// larger periods use day offsets from the period start, or month and week
// indices under grouping.
func positionOf(t time.Time, p Period, g Grouping) (key string, pos int) {
	switch p {
	case PeriodWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), (int(t.Weekday()) + 6) % 7
	case PeriodMonth:
		return t.Format("2006-01"), t.Day() - 1
	case PeriodQuarter:
		quarter := (int(t.Month()) - 1) / 3
		key = fmt.Sprintf("%04d-Q%d", t.Year(), quarter+1)
		if g == GroupMonthly {
			return key, (int(t.Month()) - 1) % 3
		}
		start := time.Date(t.Year(), time.Month(quarter*3+1), 1, 0, 0, 0, 0, t.Location())
		return key, t.YearDay() - start.YearDay()
	default:
		key = fmt.Sprintf("%04d", t.Year())
		if g == GroupMonthly {
			return key, int(t.Month()) - 1
		}
		if g == GroupWeekly {
			return key, (t.YearDay() - 1) / 7
		}
		return key, t.YearDay() - 1
	}
}

// SeasonalCell is one aggregation bucket of a periodized series: everything
// observed at one position of one period.
type SeasonalCell struct {
	// Key identifies the period, e.g. "2024-03" or "2024-Q1".
	Key string `json:"key"`
	// Position is the index inside the period.
	Position int `json:"position"`
	// Sum is the total of the values in the cell.
	Sum float64 `json:"sum"`
	// Count is the number of observations in the cell.
	Count int `json:"count"`
}

// Periodize buckets a series into (period, position) cells, sorted by key
// then position. Unparseable timestamps fail the whole call; cleaning input
// is the caller's job.
func Periodize(s Series, period Period, grouping Grouping) ([]SeasonalCell, error) {
	type cellKey struct {
		key string
		pos int
	}
	cells := map[cellKey]*SeasonalCell{}
	for i, o := range s {
		t, err := o.Time()
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		key, pos := positionOf(t, period, grouping)
		ck := cellKey{key, pos}
		cell, ok := cells[ck]
		if !ok {
			cell = &SeasonalCell{Key: key, Position: pos}
			cells[ck] = cell
		}
		cell.Sum += o.Value
		cell.Count++
	}
	out := make([]SeasonalCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Key != out[b].Key {
			return out[a].Key < out[b].Key
		}
		return out[a].Position < out[b].Position
	})
	return out, nil
}

// SeasonalFactors are multiplicative seasonal indices, one per position of
// the period. A factor of 1 means the position behaves like the overall
// average; positions the series never visited stay at 1. Factors are rounded
// to four decimal places.
type SeasonalFactors struct {
	Period   Period    `json:"period"`
	Grouping Grouping  `json:"grouping"`
	Factors  []float64 `json:"factors"`
	// Warnings flag conditions that weaken the factors without making
	// them unusable, such as a series shorter than one full period.
	Warnings []string `json:"warnings,omitempty"`
}

// At returns the factor in force at a timestamp. Out-of-range positions and
// degenerate factors fall back to 1 so division is always safe.
func (f *SeasonalFactors) At(t time.Time) float64 {
	_, pos := positionOf(t, f.Period, f.Grouping)
	if pos < 0 || pos >= len(f.Factors) {
		return 1
	}
	if factor := f.Factors[pos]; factor > 0 {
		return factor
	}
	return 1
}

// ComputeFactors derives seasonal factors for the period. Without grouping a
// position's factor is the mean of its values over the overall mean. With
// grouping active each (period, position) cell is summed first, then the
// factor is the mean cell total at that position over the mean of all cell
// totals, so e.g. daily data grouped monthly compares month totals rather
// than day values. Short or lopsided inputs degrade to warnings, never to
// errors.
func ComputeFactors(s Series, period Period, grouping Grouping) (*SeasonalFactors, error) {
	factors := &SeasonalFactors{
		Period:   period,
		Grouping: grouping,
		Factors:  make([]float64, positionCount(period, grouping)),
	}
	for i := range factors.Factors {
		factors.Factors[i] = 1
	}

	cells, err := Periodize(s, period, grouping)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return factors, nil
	}

	count := positionCount(period, grouping)
	posTotal := make([]float64, count)
	posWeight := make([]float64, count)
	overallTotal, overallWeight := 0.0, 0.0
	for _, c := range cells {
		if c.Position < 0 || c.Position >= count {
			continue
		}
		cellValue := c.Sum
		cellWeight := 1.0
		if grouping == GroupNone {
			cellWeight = float64(c.Count)
		}
		posTotal[c.Position] += cellValue
		posWeight[c.Position] += cellWeight
		overallTotal += cellValue
		overallWeight += cellWeight
	}
	if overallWeight == 0 || overallTotal == 0 {
		factors.Warnings = append(factors.Warnings, "series mean is zero; seasonal factors left at 1")
		return factors, nil
	}
	overallMean := overallTotal / overallWeight
	for pos := range factors.Factors {
		if posWeight[pos] == 0 {
			continue
		}
		factor := round4((posTotal[pos] / posWeight[pos]) / overallMean)
		if factor <= 0 {
			factor = 1
		}
		factors.Factors[pos] = factor
	}

	factors.Warnings = append(factors.Warnings, factorWarnings(s, cells, period, grouping)...)
	return factors, nil
}

// factorWarnings inspects coverage of the period space and reports the
// conditions that make factors shaky.
func factorWarnings(s Series, cells []SeasonalCell, period Period, grouping Grouping) []string {
	var warnings []string

	if times, err := s.Times(); err == nil && len(times) > 0 {
		minT, maxT := times[0], times[0]
		for _, t := range times[1:] {
			if t.Before(minT) {
				minT = t
			}
			if t.After(maxT) {
				maxT = t
			}
		}
		if maxT.Sub(minT) < nominalSpan(period) {
			warnings = append(warnings,
				fmt.Sprintf("series spans less than one full %s; seasonal factors may be unreliable", period))
		}
	}

	if grouping != GroupNone {
		perKey := map[string]int{}
		for _, c := range cells {
			perKey[c.Key]++
		}
		first := -1
		for _, n := range perKey {
			if first == -1 {
				first = n
			} else if n != first {
				warnings = append(warnings,
					fmt.Sprintf("periods contribute unevenly under %s grouping; factors may be biased", grouping))
				break
			}
		}
	}
	return warnings
}

// Deseasonalize divides every value by the factor at its position, returning
// a new series. Positions without a usable factor pass through unchanged.
func Deseasonalize(s Series, factors *SeasonalFactors) (Series, error) {
	return scaleByFactors(s, factors, false)
}

// Reseasonalize multiplies the factors back in, inverting Deseasonalize up
// to floating point error.
func Reseasonalize(s Series, factors *SeasonalFactors) (Series, error) {
	return scaleByFactors(s, factors, true)
}

func scaleByFactors(s Series, factors *SeasonalFactors, multiply bool) (Series, error) {
	if factors == nil {
		return s.Clone(), nil
	}
	out := make(Series, len(s))
	for i, o := range s {
		t, err := o.Time()
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		factor := factors.At(t)
		if multiply {
			o.Value *= factor
		} else {
			o.Value /= factor
		}
		out[i] = o
	}
	return out, nil
}

// PeriodAllowed reports whether the series samples often enough for the
// period to be meaningful: the median interval between consecutive
// observations must be strictly shorter than the period's nominal span.
// Weekly data can be screened for yearly seasonality but not for weekly.
func PeriodAllowed(s Series, period Period) bool {
	times, err := s.Times()
	if err != nil || len(times) < 2 {
		return false
	}
	intervals := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		d := times[i].Sub(times[i-1])
		if d < 0 {
			d = -d
		}
		intervals[i-1] = float64(d)
	}
	return time.Duration(median(intervals)) < nominalSpan(period)
}

// AllowedPeriods lists the periods the series qualifies for, finest first.
func AllowedPeriods(s Series) []Period {
	var out []Period
	for _, p := range []Period{PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear} {
		if PeriodAllowed(s, p) {
			out = append(out, p)
		}
	}
	return out
}
