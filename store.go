package spcline

import (
	"context"
	"time"
)

// MetricMeta is optional display metadata carried alongside a metric. It is a
// fixed narrow schema rather than an open map, and it never influences
// analysis.
type MetricMeta struct {
	// DisplayName is shown instead of Name when set.
	DisplayName string `json:"display_name,omitempty"`
	// Unit labels the value axis, e.g. "ms" or "requests".
	Unit string `json:"unit,omitempty"`
	// Notes is free-form operator commentary.
	Notes string `json:"notes,omitempty"`
}

// Metric is a named series together with the caller-side analysis state that
// should survive restarts: the limit mode, the active overlay, and any
// dividers. The engine itself never touches a store; stores exist so the
// server and the snapshot layer have one persistence contract.
type Metric struct {
	// Name identifies the metric. Names are case-sensitive.
	Name string `json:"name"`
	// Series holds the observations sorted by time.
	Series Series `json:"series"`
	// Mode is the limit mode the metric is analyzed with.
	Mode LimitMode `json:"mode"`
	// Overlay is the persisted overlay state.
	Overlay OverlayState `json:"overlay"`
	// Dividers is the persisted divider record, nil when undivided.
	Dividers *DividerSet `json:"dividers,omitempty"`
	// Meta is optional display metadata, nil when unset.
	Meta *MetricMeta `json:"meta,omitempty"`
	// UpdatedAt is the last modification time.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so store implementations can hand out metrics
// without aliasing their internals.
func (m *Metric) Clone() *Metric {
	if m == nil {
		return nil
	}
	out := *m
	out.Series = m.Series.Clone()
	if m.Dividers != nil {
		d := *m.Dividers
		d.Interior = append([]time.Time(nil), m.Dividers.Interior...)
		out.Dividers = &d
	}
	if m.Overlay.Lock != nil {
		lock := *m.Overlay.Lock
		lock.Excluded = append([]int(nil), m.Overlay.Lock.Excluded...)
		out.Overlay.Lock = &lock
	}
	if m.Meta != nil {
		meta := *m.Meta
		out.Meta = &meta
	}
	return &out
}

// MetricStore is the persistence contract for metrics. Implementations must
// be safe for concurrent use and must return ErrMetricNotFound for unknown
// names and ErrStoreClosed after Close.
type MetricStore interface {
	// SaveMetric creates or replaces a metric.
	SaveMetric(ctx context.Context, m *Metric) error

	// Metric returns a copy of the named metric.
	Metric(ctx context.Context, name string) (*Metric, error)

	// Metrics lists all metric names sorted ascending.
	Metrics(ctx context.Context) ([]string, error)

	// AppendObservations merges observations into the named metric's
	// series, deduplicating by instant with the higher confidence winning.
	// Appending to an unknown metric creates it.
	AppendObservations(ctx context.Context, name string, obs ...Observation) error

	// DeleteMetric removes a metric.
	DeleteMetric(ctx context.Context, name string) error

	// Close releases resources. Further calls return ErrStoreClosed.
	Close() error
}

// Compile-time interface checks.
var (
	_ MetricStore = (*MemoryStore)(nil)
	_ MetricStore = (*SQLiteStore)(nil)
)
