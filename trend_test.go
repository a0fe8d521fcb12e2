package spcline

import "testing"

func TestRegress(t *testing.T) {
	stats := Regress(testSeries(5, 8, 11, 14, 17))
	if stats == nil {
		t.Fatal("Regress returned nil for a sloping series")
	}
	if stats.Slope != 3 {
		t.Errorf("Slope = %v, want 3", stats.Slope)
	}
	if stats.Intercept != 5 {
		t.Errorf("Intercept = %v, want 5", stats.Intercept)
	}
	if stats.AvgMovement != 3 {
		t.Errorf("AvgMovement = %v, want 3", stats.AvgMovement)
	}
}

func TestRegress_TooShort(t *testing.T) {
	if got := Regress(testSeries(5)); got != nil {
		t.Errorf("expected nil for a single observation, got %+v", got)
	}
	if got := Regress(Series{}); got != nil {
		t.Errorf("expected nil for an empty series, got %+v", got)
	}
}

func TestRegress_FlatSeries(t *testing.T) {
	stats := Regress(testSeries(7, 7, 7, 7))
	if stats == nil {
		t.Fatal("Regress returned nil for a flat series")
	}
	if stats.Slope != 0 || stats.Intercept != 7 || stats.AvgMovement != 0 {
		t.Errorf("flat series: got %+v, want slope 0, intercept 7, movement 0", stats)
	}
}

func TestBuildTrendLimits(t *testing.T) {
	trend := BuildTrendLimits(&RegressionStats{Slope: 1, Intercept: 10, AvgMovement: 2}, 3)
	if trend.Len() != 3 {
		t.Fatalf("Len = %d, want 3", trend.Len())
	}

	cases := []struct {
		name string
		got  []float64
		want []float64
	}{
		{"Centre", trend.Centre, []float64{10, 11, 12}},
		{"UNPL", trend.UNPL, []float64{15.32, 16.32, 17.32}},
		{"LNPL", trend.LNPL, []float64{4.68, 5.68, 6.68}},
		{"LowerQuartile", trend.LowerQuartile, []float64{7.34, 8.34, 9.34}},
		{"UpperQuartile", trend.UpperQuartile, []float64{12.66, 13.66, 14.66}},
		{"ReducedUNPL", trend.ReducedUNPL, []float64{12.66, 13.66, 14.66}},
		{"ReducedLNPL", trend.ReducedLNPL, []float64{7.34, 8.34, 9.34}},
		{"ReducedLowerQuartile", trend.ReducedLowerQuartile, []float64{8.67, 9.67, 10.67}},
		{"ReducedUpperQuartile", trend.ReducedUpperQuartile, []float64{11.33, 12.33, 13.33}},
	}
	for _, c := range cases {
		for i := range c.want {
			if c.got[i] != c.want[i] {
				t.Errorf("%s[%d] = %v, want %v", c.name, i, c.got[i], c.want[i])
			}
		}
	}
}

func TestBuildTrendLimits_ReducedBandFloor(t *testing.T) {
	// A slope as steep as the average movement leaves no residual spread,
	// so the reduced band collapses onto the centre line instead of
	// inverting.
	stats := Regress(testSeries(5, 8, 11, 14, 17))
	trend := BuildTrendLimits(stats, 5)

	for i := range trend.Centre {
		if trend.ReducedUNPL[i] != trend.Centre[i] || trend.ReducedLNPL[i] != trend.Centre[i] {
			t.Errorf("index %d: reduced band [%v, %v] should collapse onto centre %v",
				i, trend.ReducedLNPL[i], trend.ReducedUNPL[i], trend.Centre[i])
		}
	}
	if trend.UNPL[0] <= trend.Centre[0] {
		t.Errorf("full band should stay open: UNPL %v vs centre %v", trend.UNPL[0], trend.Centre[0])
	}
}

func TestBuildTrendLimits_NilInputs(t *testing.T) {
	if got := BuildTrendLimits(nil, 5); got != nil {
		t.Errorf("nil stats: expected nil, got %+v", got)
	}
	if got := BuildTrendLimits(&RegressionStats{Slope: 1}, 0); got != nil {
		t.Errorf("zero length: expected nil, got %+v", got)
	}
}

func TestTrendLimits_Len(t *testing.T) {
	var trend *TrendLimits
	if trend.Len() != 0 {
		t.Errorf("nil trend Len = %d, want 0", trend.Len())
	}
}
