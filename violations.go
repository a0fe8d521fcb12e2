package spcline

import "sort"

// Detection windows and thresholds for the pattern rules.
const (
	longRunLength    = 8
	quartileWindow   = 4
	quartileCount    = 3
	twoSigmaWindow   = 3
	twoSigmaCount    = 2
	centreHugLength  = 15
	twoSigmaFraction = 2.0 / MeanLimitScale
	oneSigmaFraction = 1.0 / MeanLimitScale
)

// ViolationRule identifies one of the pattern rules applied to the
// individuals chart.
type ViolationRule int

const (
	// RuleNone means no rule flagged the observation.
	RuleNone ViolationRule = iota
	// RuleOutsideLimits flags a value beyond a natural process limit.
	RuleOutsideLimits
	// RuleLongRun flags a run of eight or more values on one side of the
	// centre line.
	RuleLongRun
	// RuleQuartileCluster flags four consecutive values of which at least
	// three sit beyond the same quartile line.
	RuleQuartileCluster
	// RuleTwoSigmaCluster flags three consecutive values of which at least
	// two sit beyond the same two-sigma boundary.
	RuleTwoSigmaCluster
	// RuleCentreHugging flags the fifteenth and later values of an
	// unbroken run inside the one-sigma band.
	RuleCentreHugging
)

// String returns a human-readable rule name.
func (r ViolationRule) String() string {
	switch r {
	case RuleOutsideLimits:
		return "outside limits"
	case RuleLongRun:
		return "long run"
	case RuleQuartileCluster:
		return "quartile cluster"
	case RuleTwoSigmaCluster:
		return "two-sigma cluster"
	case RuleCentreHugging:
		return "centre hugging"
	case RuleNone:
		return "none"
	default:
		return "unknown"
	}
}

// ViolationSet holds the observation indices flagged by each pattern rule,
// sorted ascending. An observation may appear under several rules; At resolves
// the one to display.
type ViolationSet struct {
	OutsideLimits    []int `json:"outside_limits,omitempty"`
	LongRuns         []int `json:"long_runs,omitempty"`
	QuartileClusters []int `json:"quartile_clusters,omitempty"`
	TwoSigmaClusters []int `json:"two_sigma_clusters,omitempty"`
	CentreHugging    []int `json:"centre_hugging,omitempty"`
}

// At returns the highest-priority rule that flagged the observation, or
// RuleNone. Priority runs outside limits, two-sigma cluster, quartile
// cluster, long run, centre hugging.
func (v ViolationSet) At(index int) ViolationRule {
	switch {
	case containsIndex(v.OutsideLimits, index):
		return RuleOutsideLimits
	case containsIndex(v.TwoSigmaClusters, index):
		return RuleTwoSigmaCluster
	case containsIndex(v.QuartileClusters, index):
		return RuleQuartileCluster
	case containsIndex(v.LongRuns, index):
		return RuleLongRun
	case containsIndex(v.CentreHugging, index):
		return RuleCentreHugging
	default:
		return RuleNone
	}
}

// Flagged returns the sorted distinct indices flagged by any rule.
func (v ViolationSet) Flagged() []int {
	seen := map[int]bool{}
	for _, rule := range [][]int{v.OutsideLimits, v.LongRuns, v.QuartileClusters, v.TwoSigmaClusters, v.CentreHugging} {
		for _, i := range rule {
			seen[i] = true
		}
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Total returns the number of distinct flagged observations.
func (v ViolationSet) Total() int {
	return len(v.Flagged())
}

// shift returns a copy with every index offset, used to map segment-local
// indices back to series positions.
func (v ViolationSet) shift(offset int) ViolationSet {
	return ViolationSet{
		OutsideLimits:    shiftIndices(v.OutsideLimits, offset),
		LongRuns:         shiftIndices(v.LongRuns, offset),
		QuartileClusters: shiftIndices(v.QuartileClusters, offset),
		TwoSigmaClusters: shiftIndices(v.TwoSigmaClusters, offset),
		CentreHugging:    shiftIndices(v.CentreHugging, offset),
	}
}

// merge appends another set's indices, keeping each rule slice sorted.
func (v *ViolationSet) merge(other ViolationSet) {
	v.OutsideLimits = mergeIndices(v.OutsideLimits, other.OutsideLimits)
	v.LongRuns = mergeIndices(v.LongRuns, other.LongRuns)
	v.QuartileClusters = mergeIndices(v.QuartileClusters, other.QuartileClusters)
	v.TwoSigmaClusters = mergeIndices(v.TwoSigmaClusters, other.TwoSigmaClusters)
	v.CentreHugging = mergeIndices(v.CentreHugging, other.CentreHugging)
}

// limitLine is the set of chart lines in force at one observation index.
// With a trend overlay the lines slope; otherwise they are constant.
type limitLine struct {
	centre        float64
	upper         float64
	lower         float64
	lowerQuartile float64
	upperQuartile float64
}

func (l limitLine) upperTwoSigma() float64 { return l.centre + (l.upper-l.centre)*twoSigmaFraction }
func (l limitLine) lowerTwoSigma() float64 { return l.centre - (l.centre-l.lower)*twoSigmaFraction }
func (l limitLine) upperOneSigma() float64 { return l.centre + (l.upper-l.centre)*oneSigmaFraction }
func (l limitLine) lowerOneSigma() float64 { return l.centre - (l.centre-l.lower)*oneSigmaFraction }

// lineResolver returns the chart lines for an observation index.
func lineResolver(limits ControlLimits, trend *TrendLimits) func(int) limitLine {
	static := limitLine{
		centre:        limits.AvgX,
		upper:         limits.UNPL,
		lower:         limits.LNPL,
		lowerQuartile: limits.LowerQuartile,
		upperQuartile: limits.UpperQuartile,
	}
	if trend == nil {
		return func(int) limitLine { return static }
	}
	return func(i int) limitLine {
		if i >= len(trend.Centre) {
			return static
		}
		return limitLine{
			centre:        trend.Centre[i],
			upper:         trend.UNPL[i],
			lower:         trend.LNPL[i],
			lowerQuartile: trend.LowerQuartile[i],
			upperQuartile: trend.UpperQuartile[i],
		}
	}
}

// DetectViolations applies the five pattern rules to a series under the given
// limits. When trend is non-nil its per-index lines replace every static
// comparison, so sloping charts are screened with the same rules. Output
// indices refer to positions in s.
func DetectViolations(s Series, limits ControlLimits, trend *TrendLimits) ViolationSet {
	return detectViolationValues(s.Values(), limits, trend)
}

func detectViolationValues(values []float64, limits ControlLimits, trend *TrendLimits) ViolationSet {
	if len(values) == 0 || (limits.IsZero() && trend == nil) {
		return ViolationSet{}
	}
	at := lineResolver(limits, trend)
	return ViolationSet{
		OutsideLimits:    checkOutsideLimits(values, at),
		LongRuns:         checkLongRuns(values, at),
		QuartileClusters: checkQuartileClusters(values, at),
		TwoSigmaClusters: checkTwoSigmaClusters(values, at),
		CentreHugging:    checkCentreHugging(values, at),
	}
}

// checkOutsideLimits flags values strictly beyond either natural process
// limit.
func checkOutsideLimits(values []float64, at func(int) limitLine) []int {
	var out []int
	for i, v := range values {
		l := at(i)
		if v > l.upper || v < l.lower {
			out = append(out, i)
		}
	}
	return out
}

// checkLongRuns flags runs of eight or more values strictly on one side of
// the centre line. The whole run is flagged as soon as its eighth value
// lands, and every later value while the run continues. A value exactly on
// the centre line breaks the run.
func checkLongRuns(values []float64, at func(int) limitLine) []int {
	flagged := make([]bool, len(values))
	side := 0
	runStart := 0
	for i, v := range values {
		s := 0
		if c := at(i).centre; v > c {
			s = 1
		} else if v < c {
			s = -1
		}
		if s == 0 || s != side {
			side = s
			runStart = i
			continue
		}
		runLen := i - runStart + 1
		if runLen == longRunLength {
			for j := runStart; j <= i; j++ {
				flagged[j] = true
			}
		} else if runLen > longRunLength {
			flagged[i] = true
		}
	}
	return flaggedIndices(flagged)
}

// checkQuartileClusters slides a four-value window and flags the whole window
// when at least three values sit strictly beyond the same quartile line.
func checkQuartileClusters(values []float64, at func(int) limitLine) []int {
	flagged := make([]bool, len(values))
	for i := 0; i+quartileWindow <= len(values); i++ {
		above, below := 0, 0
		for j := i; j < i+quartileWindow; j++ {
			l := at(j)
			if values[j] > l.upperQuartile {
				above++
			} else if values[j] < l.lowerQuartile {
				below++
			}
		}
		if above >= quartileCount || below >= quartileCount {
			for j := i; j < i+quartileWindow; j++ {
				flagged[j] = true
			}
		}
	}
	return flaggedIndices(flagged)
}

// checkTwoSigmaClusters slides a three-value window and flags the whole
// window when at least two values sit strictly beyond the same two-sigma
// boundary. The boundary is placed at two thirds of the 2.66 sigma distance
// between centre and limit, on both charts' modes alike.
func checkTwoSigmaClusters(values []float64, at func(int) limitLine) []int {
	flagged := make([]bool, len(values))
	for i := 0; i+twoSigmaWindow <= len(values); i++ {
		above, below := 0, 0
		for j := i; j < i+twoSigmaWindow; j++ {
			l := at(j)
			if values[j] > l.upperTwoSigma() {
				above++
			} else if values[j] < l.lowerTwoSigma() {
				below++
			}
		}
		if above >= twoSigmaCount || below >= twoSigmaCount {
			for j := i; j < i+twoSigmaWindow; j++ {
				flagged[j] = true
			}
		}
	}
	return flaggedIndices(flagged)
}

// checkCentreHugging flags the fifteenth and every later value of an
// unbroken run inside the one-sigma band around the centre line. Band
// membership is inclusive of the boundary.
func checkCentreHugging(values []float64, at func(int) limitLine) []int {
	var out []int
	runLen := 0
	for i, v := range values {
		l := at(i)
		if v <= l.upperOneSigma() && v >= l.lowerOneSigma() {
			runLen++
			if runLen >= centreHugLength {
				out = append(out, i)
			}
		} else {
			runLen = 0
		}
	}
	return out
}

// ========== Index Helpers ==========

func flaggedIndices(flagged []bool) []int {
	var out []int
	for i, f := range flagged {
		if f {
			out = append(out, i)
		}
	}
	return out
}

func containsIndex(sorted []int, index int) bool {
	i := sort.SearchInts(sorted, index)
	return i < len(sorted) && sorted[i] == index
}

func shiftIndices(indices []int, offset int) []int {
	if len(indices) == 0 {
		return nil
	}
	out := make([]int, len(indices))
	for i, v := range indices {
		out[i] = v + offset
	}
	return out
}

func mergeIndices(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	out := append(append([]int{}, a...), b...)
	sort.Ints(out)
	return out
}
