package spcline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteStoreConfig configures the SQLite metric store.
type SQLiteStoreConfig struct {
	// Path to the SQLite database file
	Path string `yaml:"path"`

	// CacheSize is the SQLite page cache size in KB (default: 2000 = 2MB)
	CacheSize int `yaml:"cache_size"`

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string `yaml:"journal_mode"`

	// Synchronous sets the synchronous flag (OFF, NORMAL, FULL, EXTRA)
	Synchronous string `yaml:"synchronous"`

	// BusyTimeout is the timeout for acquiring locks in milliseconds
	BusyTimeout int `yaml:"busy_timeout"`

	// MaxConnections is the max number of database connections
	MaxConnections int `yaml:"max_connections"`
}

// DefaultSQLiteStoreConfig returns default configuration.
func DefaultSQLiteStoreConfig() SQLiteStoreConfig {
	return SQLiteStoreConfig{
		Path:           "spcline.db",
		CacheSize:      2000,
		JournalMode:    "WAL",
		Synchronous:    "NORMAL",
		BusyTimeout:    5000,
		MaxConnections: 10,
	}
}

// SQLiteStore implements MetricStore on a SQLite file, so metric data can be
// inspected and repaired with standard SQLite tools. Observations live one
// row per instant with the original timestamp string preserved, and the
// overlay and divider state travels as a JSON column on the metric row.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteStoreConfig
	mu     sync.RWMutex
	closed bool

	// Prepared statements for common operations
	upsertMeta *sql.Stmt
	selectMeta *sql.Stmt
	insertObs  *sql.Stmt
	selectObs  *sql.Stmt
	deleteMeta *sql.Stmt
	deleteObs  *sql.Stmt
}

// metricState is the JSON shape of the persisted session state.
type metricState struct {
	Overlay  OverlayState `json:"overlay"`
	Dividers *DividerSet  `json:"dividers,omitempty"`
	Meta     *MetricMeta  `json:"meta,omitempty"`
}

// NewSQLiteStore opens or creates the database and prepares the schema.
func NewSQLiteStore(config SQLiteStoreConfig) (*SQLiteStore, error) {
	if config.Path == "" {
		config.Path = "spcline.db"
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 2000
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.Synchronous == "" {
		config.Synchronous = "NORMAL"
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5000
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = 10
	}

	// Build connection string with pragmas
	dsn := fmt.Sprintf("%s?_cache_size=%d&_journal_mode=%s&_synchronous=%s&_busy_timeout=%d",
		config.Path, config.CacheSize, config.JournalMode, config.Synchronous, config.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, newStoreError("open", "", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections / 2)

	store := &SQLiteStore{db: db, config: config}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initSchema creates the database schema.
func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS metrics (
			name TEXT PRIMARY KEY,
			mode INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS observations (
			metric TEXT NOT NULL,
			ts INTEGER NOT NULL,
			raw TEXT NOT NULL,
			value REAL NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (metric, ts)
		);

		CREATE INDEX IF NOT EXISTS idx_observations_metric ON observations(metric, ts);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return newStoreError("init schema", "", err)
	}
	return nil
}

// prepareStatements prepares common SQL statements.
func (s *SQLiteStore) prepareStatements() error {
	prepare := func(dst **sql.Stmt, query string) error {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return newStoreError("prepare", "", err)
		}
		*dst = stmt
		return nil
	}
	if err := prepare(&s.upsertMeta, `
		INSERT INTO metrics (name, mode, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET mode = excluded.mode, state = excluded.state, updated_at = excluded.updated_at
	`); err != nil {
		return err
	}
	if err := prepare(&s.selectMeta, `SELECT mode, state, updated_at FROM metrics WHERE name = ?`); err != nil {
		return err
	}
	if err := prepare(&s.insertObs, `
		INSERT INTO observations (metric, ts, raw, value, confidence) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(metric, ts) DO UPDATE SET raw = excluded.raw, value = excluded.value, confidence = excluded.confidence
		WHERE excluded.confidence >= observations.confidence
	`); err != nil {
		return err
	}
	if err := prepare(&s.selectObs, `SELECT raw, value, confidence FROM observations WHERE metric = ? ORDER BY ts`); err != nil {
		return err
	}
	if err := prepare(&s.deleteMeta, `DELETE FROM metrics WHERE name = ?`); err != nil {
		return err
	}
	return prepare(&s.deleteObs, `DELETE FROM observations WHERE metric = ?`)
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *SQLiteStore) SaveMetric(ctx context.Context, m *Metric) error {
	if m == nil || m.Name == "" {
		return newStoreError("save", "", ErrBadInput)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	state, err := json.Marshal(metricState{Overlay: m.Overlay, Dividers: m.Dividers, Meta: m.Meta})
	if err != nil {
		return newStoreError("save", m.Name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newStoreError("save", m.Name, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.StmtContext(ctx, s.upsertMeta).ExecContext(ctx, m.Name, int(m.Mode), string(state), now.UnixNano()); err != nil {
		return newStoreError("save", m.Name, err)
	}
	if _, err := tx.StmtContext(ctx, s.deleteObs).ExecContext(ctx, m.Name); err != nil {
		return newStoreError("save", m.Name, err)
	}
	for _, o := range m.Series {
		t, err := o.Time()
		if err != nil {
			return newStoreError("save", m.Name, err)
		}
		if _, err := tx.StmtContext(ctx, s.insertObs).ExecContext(ctx, m.Name, t.UnixNano(), o.Timestamp, o.Value, o.Confidence); err != nil {
			return newStoreError("save", m.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return newStoreError("save", m.Name, err)
	}
	return nil
}

func (s *SQLiteStore) Metric(ctx context.Context, name string) (*Metric, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var (
		mode      int
		stateJSON string
		updatedAt int64
	)
	err := s.selectMeta.QueryRowContext(ctx, name).Scan(&mode, &stateJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newStoreError("get", name, ErrMetricNotFound)
	}
	if err != nil {
		return nil, newStoreError("get", name, err)
	}

	var state metricState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, newStoreError("get", name, err)
	}

	rows, err := s.selectObs.QueryContext(ctx, name)
	if err != nil {
		return nil, newStoreError("get", name, err)
	}
	defer rows.Close()

	var series Series
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Timestamp, &o.Value, &o.Confidence); err != nil {
			return nil, newStoreError("get", name, err)
		}
		series = append(series, o)
	}
	if err := rows.Err(); err != nil {
		return nil, newStoreError("get", name, err)
	}

	return &Metric{
		Name:      name,
		Series:    series,
		Mode:      LimitMode(mode),
		Overlay:   state.Overlay,
		Dividers:  state.Dividers,
		Meta:      state.Meta,
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
	}, nil
}

func (s *SQLiteStore) Metrics(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM metrics ORDER BY name`)
	if err != nil {
		return nil, newStoreError("list", "", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, newStoreError("list", "", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, newStoreError("list", "", err)
	}
	return names, nil
}

func (s *SQLiteStore) AppendObservations(ctx context.Context, name string, obs ...Observation) error {
	if name == "" {
		return newStoreError("append", "", ErrBadInput)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newStoreError("append", name, err)
	}
	defer tx.Rollback()

	// Create the metric row if missing, without clobbering its state.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metrics (name, mode, state, updated_at) VALUES (?, 0, '{}', ?)
		ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at
	`, name, time.Now().UTC().UnixNano()); err != nil {
		return newStoreError("append", name, err)
	}
	for _, o := range obs {
		t, err := o.Time()
		if err != nil {
			return newStoreError("append", name, err)
		}
		if _, err := tx.StmtContext(ctx, s.insertObs).ExecContext(ctx, name, t.UnixNano(), o.Timestamp, o.Value, o.Confidence); err != nil {
			return newStoreError("append", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return newStoreError("append", name, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteMetric(ctx context.Context, name string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newStoreError("delete", name, err)
	}
	defer tx.Rollback()

	res, err := tx.StmtContext(ctx, s.deleteMeta).ExecContext(ctx, name)
	if err != nil {
		return newStoreError("delete", name, err)
	}
	if _, err := tx.StmtContext(ctx, s.deleteObs).ExecContext(ctx, name); err != nil {
		return newStoreError("delete", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return newStoreError("delete", name, err)
	}
	if affected == 0 {
		return newStoreError("delete", name, ErrMetricNotFound)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, stmt := range []*sql.Stmt{s.upsertMeta, s.selectMeta, s.insertObs, s.selectObs, s.deleteMeta, s.deleteObs} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}
