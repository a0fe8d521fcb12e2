package spcline

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type ingestRequest struct {
	Metric       string        `json:"metric"`
	Observations []Observation `json:"observations"`
}

// analyzeRequest selects what to analyze: a stored metric, which brings its
// persisted mode, overlay and dividers along, or an ad-hoc batch of
// observations. Exactly one of Metric and Observations must be set.
type analyzeRequest struct {
	Metric          string        `json:"metric,omitempty"`
	Observations    []Observation `json:"observations,omitempty"`
	Mode            string        `json:"mode,omitempty"`
	IncludeOutliers bool          `json:"include_outliers,omitempty"`
}

type overlayRequest struct {
	Metric   string `json:"metric"`
	Overlay  string `json:"overlay"`
	Period   string `json:"period,omitempty"`
	Grouping string `json:"grouping,omitempty"`
}

type lockRequest struct {
	Metric string   `json:"metric"`
	AvgX   *float64 `json:"avg_x,omitempty"`
	UNPL   *float64 `json:"unpl,omitempty"`
	LNPL   *float64 `json:"lnpl,omitempty"`
}

type dividerRequest struct {
	Metric string `json:"metric"`
	// Action is one of "add", "add_at", "move", "remove".
	Action string `json:"action"`
	Time   string `json:"time,omitempty"`
	Index  int    `json:"index,omitempty"`
}

// setupMetricRoutes configures metric CRUD and ingestion endpoints
func setupMetricRoutes(mux *http.ServeMux, s *Server, wrap middlewareWrapper) {
	mux.HandleFunc("/metrics", wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		names, err := s.store.Metrics(r.Context())
		if err != nil {
			writeError(w, err.Error(), errorStatus(err))
			return
		}
		writeJSON(w, names)
	}))

	mux.HandleFunc("/api/v1/metrics", wrap(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			names, err := s.store.Metrics(r.Context())
			if err != nil {
				writeError(w, err.Error(), errorStatus(err))
				return
			}
			jsonSuccess(w, names)

		case http.MethodPost:
			r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
			var m Metric
			if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			if m.Name == "" {
				writeError(w, "metric name is required", http.StatusBadRequest)
				return
			}
			// Sort and deduplicate up front so the stored series is
			// already in analysis order.
			series, err := MergeObservations(nil, m.Series...)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			m.Series = series
			if err := s.store.SaveMetric(r.Context(), &m); err != nil {
				writeError(w, err.Error(), errorStatus(err))
				return
			}
			w.WriteHeader(http.StatusCreated)

		case http.MethodDelete:
			name := r.URL.Query().Get("name")
			if name == "" {
				writeError(w, "name parameter required", http.StatusBadRequest)
				return
			}
			if err := s.store.DeleteMetric(r.Context(), name); err != nil {
				writeError(w, err.Error(), errorStatus(err))
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/api/v1/metric", wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			writeError(w, "name parameter required", http.StatusBadRequest)
			return
		}
		metric, err := s.store.Metric(r.Context(), name)
		if err != nil {
			writeError(w, err.Error(), errorStatus(err))
			return
		}
		writeJSON(w, metric)
	}))

	mux.HandleFunc("/ingest", wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		var reader io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer func() { _ = gz.Close() }()
			reader = io.LimitReader(gz, maxBodySize)
		}

		body, err := io.ReadAll(reader)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		var req ingestRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Metric == "" {
			writeError(w, "metric name is required", http.StatusBadRequest)
			return
		}
		if len(req.Observations) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		for i, obs := range req.Observations {
			if _, err := obs.Time(); err != nil {
				writeError(w, fmt.Sprintf("invalid observation %d: %v", i, err), http.StatusBadRequest)
				return
			}
		}
		if err := s.store.AppendObservations(r.Context(), req.Metric, req.Observations...); err != nil {
			writeError(w, err.Error(), errorStatus(err))
			return
		}
		s.publishUpdate(r.Context(), req.Metric, req.Observations)
		w.WriteHeader(http.StatusAccepted)
	}))
}

// setupAnalysisRoutes configures analysis and chart-state endpoints
func setupAnalysisRoutes(mux *http.ServeMux, s *Server, wrap middlewareWrapper) {
	mux.HandleFunc("/api/v1/analyze", wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.handleAnalyze(w, r, req)
	}))

	mux.HandleFunc("/api/v1/overlay", wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req overlayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.handleOverlay(w, r, req)
	}))

	mux.HandleFunc("/api/v1/lock", wrap(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req lockRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.handleManualLock(w, r, req)

		case http.MethodDelete:
			name := r.URL.Query().Get("metric")
			if name == "" {
				writeError(w, "metric parameter required", http.StatusBadRequest)
				return
			}
			s.handleUnlock(w, r, name)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/api/v1/lock/auto", wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Metric string `json:"metric"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.handleAutoLock(w, r, req.Metric)
	}))

	mux.HandleFunc("/api/v1/dividers", wrap(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			name := r.URL.Query().Get("metric")
			if name == "" {
				writeError(w, "metric parameter required", http.StatusBadRequest)
				return
			}
			metric, err := s.store.Metric(r.Context(), name)
			if err != nil {
				writeError(w, err.Error(), errorStatus(err))
				return
			}
			jsonSuccess(w, metric.Dividers)

		case http.MethodPost:
			var req dividerRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.handleDividers(w, r, req)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/api/v1/periods", wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		name := r.URL.Query().Get("metric")
		if name == "" {
			writeError(w, "metric parameter required", http.StatusBadRequest)
			return
		}
		metric, err := s.store.Metric(r.Context(), name)
		if err != nil {
			writeError(w, err.Error(), errorStatus(err))
			return
		}
		periods := AllowedPeriods(metric.Series)
		names := make([]string, len(periods))
		for i, p := range periods {
			names[i] = p.String()
		}
		jsonSuccess(w, map[string]any{"periods": names})
	}))
}

// setupSnapshotRoutes configures snapshot archival endpoints
func setupSnapshotRoutes(mux *http.ServeMux, s *Server, wrap middlewareWrapper) {
	mux.HandleFunc("/api/v1/snapshots", wrap(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			jsonSuccess(w, s.snapshots.List())

		case http.MethodPost:
			record, err := s.snapshots.Create(r.Context())
			if record == nil {
				writeError(w, err.Error(), http.StatusInternalServerError)
				return
			}
			resp := map[string]any{"record": record}
			if err != nil {
				// Local snapshot succeeded but the upload did not.
				resp["upload_error"] = err.Error()
			}
			writeJSONStatus(w, http.StatusCreated, resp)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/api/v1/snapshots/restore", wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID string `json:"id,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		var err error
		if req.ID == "" {
			err = s.snapshots.RestoreLatest(r.Context())
		} else {
			err = s.snapshots.Restore(r.Context(), req.ID)
		}
		if err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, req analyzeRequest) {
	if req.Metric != "" && len(req.Observations) > 0 {
		writeError(w, "metric and observations are mutually exclusive", http.StatusBadRequest)
		return
	}
	if req.Metric == "" && len(req.Observations) == 0 {
		writeError(w, "metric or observations required", http.StatusBadRequest)
		return
	}

	var (
		series Series
		opts   AnalysisOptions
	)
	if req.Metric != "" {
		metric, err := s.store.Metric(r.Context(), req.Metric)
		if err != nil {
			writeError(w, err.Error(), errorStatus(err))
			return
		}
		series = metric.Series
		opts = AnalysisOptions{
			Mode:     metric.Mode,
			Overlay:  metric.Overlay,
			Dividers: metric.Dividers,
		}
	} else {
		series = Series(req.Observations)
		opts = AnalysisOptions{Mode: s.config.Mode()}
	}
	if req.Mode != "" {
		mode, err := ParseLimitMode(req.Mode)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts.Mode = mode
	}
	if req.IncludeOutliers {
		opts.IncludeOutliers = true
		opts.Outliers = s.config.Analysis.Outliers
		opts.Outliers.Mode = opts.Mode
	}

	result, err := Analyze(series, opts)
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request, req overlayRequest) {
	metric, err := s.store.Metric(r.Context(), req.Metric)
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}

	switch req.Overlay {
	case "none":
		metric.Overlay.Deactivate()

	case "trend":
		metric.Overlay.ActivateTrend()

	case "seasonality":
		period, err := ParsePeriod(req.Period)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		grouping, err := ParseGrouping(req.Grouping)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !PeriodAllowed(metric.Series, period) {
			jsonError(w, http.StatusUnprocessableEntity, "period",
				fmt.Sprintf("period %q is not allowed for this series' cadence", period))
			return
		}
		metric.Overlay.ActivateSeasonality(period, grouping)

	case "lock":
		writeError(w, "use /api/v1/lock to activate the lock overlay", http.StatusBadRequest)
		return

	default:
		writeError(w, fmt.Sprintf("unknown overlay %q", req.Overlay), http.StatusBadRequest)
		return
	}

	if err := s.store.SaveMetric(r.Context(), metric); err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	jsonSuccess(w, metric.Overlay)
}

func (s *Server) handleManualLock(w http.ResponseWriter, r *http.Request, req lockRequest) {
	metric, err := s.store.Metric(r.Context(), req.Metric)
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}

	base := ComputeLimits(metric.Series, metric.Mode)
	lock, err := NewManualLock(base, LockEdits{AvgX: req.AvgX, UNPL: req.UNPL, LNPL: req.LNPL})
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	metric.Overlay.ActivateLock(lock)
	if err := s.store.SaveMetric(r.Context(), metric); err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	jsonSuccess(w, lock)
}

func (s *Server) handleAutoLock(w http.ResponseWriter, r *http.Request, name string) {
	metric, err := s.store.Metric(r.Context(), name)
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}

	cfg := s.config.Analysis.Outliers
	cfg.Mode = metric.Mode
	lock := ProposeAutoLock(metric.Series, cfg)
	if lock == nil {
		jsonError(w, http.StatusUnprocessableEntity, "autolock",
			"conditions for automatic locking not met")
		return
	}
	metric.Overlay.ActivateLock(lock)
	if err := s.store.SaveMetric(r.Context(), metric); err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	jsonSuccess(w, lock)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request, name string) {
	metric, err := s.store.Metric(r.Context(), name)
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	if metric.Overlay.Active == OverlayLock {
		metric.Overlay.Deactivate()
		if err := s.store.SaveMetric(r.Context(), metric); err != nil {
			writeError(w, err.Error(), errorStatus(err))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDividers(w http.ResponseWriter, r *http.Request, req dividerRequest) {
	metric, err := s.store.Metric(r.Context(), req.Metric)
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}

	dividers := metric.Dividers
	if dividers == nil {
		dividers, err = NewDividerSet(metric.Series)
		if err != nil {
			writeError(w, err.Error(), errorStatus(err))
			return
		}
	}

	switch req.Action {
	case "add":
		err = dividers.AddDivider()
	case "add_at":
		t, parseErr := ParseTimestamp(req.Time)
		if parseErr != nil {
			writeError(w, parseErr.Error(), http.StatusBadRequest)
			return
		}
		err = dividers.AddDividerAt(t)
	case "move":
		t, parseErr := ParseTimestamp(req.Time)
		if parseErr != nil {
			writeError(w, parseErr.Error(), http.StatusBadRequest)
			return
		}
		err = dividers.MoveDivider(req.Index, t)
	case "remove":
		err = dividers.RemoveDivider()
	default:
		writeError(w, fmt.Sprintf("unknown divider action %q", req.Action), http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}

	metric.Dividers = dividers
	if err := s.store.SaveMetric(r.Context(), metric); err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	jsonSuccess(w, dividers)
}
