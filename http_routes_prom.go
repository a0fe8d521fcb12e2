package spcline

import (
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// setupRemoteWriteRoutes configures the Prometheus remote write endpoint
func setupRemoteWriteRoutes(mux *http.ServeMux, s *Server, wrap middlewareWrapper) {
	mux.HandleFunc("/prometheus/write", wrap(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.HTTP.RemoteWriteEnabled {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req prompb.WriteRequest
		if err := req.Unmarshal(decoded); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, batch := range convertRemoteWrite(&req) {
			if err := s.store.AppendObservations(r.Context(), batch.metric, batch.observations...); err != nil {
				writeError(w, err.Error(), errorStatus(err))
				return
			}
			s.publishUpdate(r.Context(), batch.metric, batch.observations)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
}

// writeBatch groups converted samples per stored metric.
type writeBatch struct {
	metric       string
	observations []Observation
}

// convertRemoteWrite flattens a remote write request into per-metric
// observation batches, preserving the order series first appear in.
func convertRemoteWrite(req *prompb.WriteRequest) []writeBatch {
	byName := make(map[string][]Observation)
	order := make([]string, 0, len(req.Timeseries))
	for i := range req.Timeseries {
		ts := &req.Timeseries[i]
		name := promSeriesName(ts.Labels)
		if name == "" {
			continue
		}
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		for _, sample := range ts.Samples {
			byName[name] = append(byName[name], Observation{
				Timestamp: time.UnixMilli(sample.Timestamp).UTC().Format(time.RFC3339Nano),
				Value:     sample.Value,
			})
		}
	}

	batches := make([]writeBatch, 0, len(order))
	for _, name := range order {
		batches = append(batches, writeBatch{metric: name, observations: byName[name]})
	}
	return batches
}

// promSeriesName builds the stored metric name from the series labels: the
// __name__ value followed by the remaining labels in sorted order, so each
// labelled series maps to one stable metric regardless of label ordering.
func promSeriesName(labels []prompb.Label) string {
	name := ""
	rest := make([]string, 0, len(labels))
	for _, label := range labels {
		if label.Name == "__name__" {
			name = label.Value
			continue
		}
		rest = append(rest, label.Name+"="+label.Value)
	}
	if name == "" || len(rest) == 0 {
		return name
	}
	sort.Strings(rest)
	return name + "{" + strings.Join(rest, ",") + "}"
}
