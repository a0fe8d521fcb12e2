// Package spcline provides a deterministic statistical process control
// engine built around XmR individuals charts.
//
// Spcline computes control limits, screens series against the Western
// Electric style pattern rules, fits trends, adjusts for seasonality,
// proposes outlier-filtered locked baselines, and splits series into
// independently analyzed segments.
//
// # Basic Usage
//
// Build a series and compute its natural process limits:
//
//	series := spcline.Series{
//	    {Timestamp: "2026-01-01", Value: 10},
//	    {Timestamp: "2026-01-02", Value: 12},
//	    {Timestamp: "2026-01-03", Value: 11},
//	}
//	limits := spcline.ComputeLimits(series, spcline.ModeMean)
//
// Screen the series against the pattern rules:
//
//	violations := spcline.DetectViolations(series, limits, nil)
//	for _, i := range violations.OutsideLimits {
//	    fmt.Println("out of control at", series[i].Timestamp)
//	}
//
// Or run the whole pipeline in one pass:
//
//	result, err := spcline.Analyze(series, spcline.AnalysisOptions{
//	    Mode:            spcline.ModeMean,
//	    IncludeOutliers: true,
//	})
//
// # Features
//
// Analysis engine:
//   - XmR control limits in mean and median modes
//   - Five pattern rules from outside-limits to centre hugging
//   - Linear trend fitting with sloped limit overlays
//   - Seasonal factor computation and deseasonalized screening
//   - Consensus outlier detection across four methods
//   - Manual and automatic locked baselines with validation
//   - Divider-based segmentation with per-segment limits
//
// Persistence & transport:
//   - In-memory and SQLite metric stores
//   - Optional HTTP API with JSON ingestion
//   - Prometheus remote write ingestion
//   - WebSocket streaming of re-analysis results
//   - Compressed, encrypted snapshots with S3 upload
//
// Every analysis function is a pure function of its inputs: the same series
// and options always produce the same result, and input series are never
// mutated.
//
// # Configuration
//
// Use [Config] to run the server-side pieces:
//
//	cfg := spcline.DefaultConfig()
//	cfg.Store.Backend = "sqlite"
//	cfg.HTTP.Enabled = true
//
//	store, err := cfg.NewStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	srv, err := spcline.StartServer(store, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//
// Or load it from YAML with [LoadConfig].
package spcline
