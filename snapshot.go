package spcline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// Snapshot is the portable archive of a store's contents: every metric with
// its series and session state.
type Snapshot struct {
	CreatedAt time.Time `json:"created_at"`
	Metrics   []*Metric `json:"metrics"`
}

// SnapshotRecord describes one written snapshot.
type SnapshotRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Size        int64     `json:"size"`
	Compressed  bool      `json:"compressed"`
	Encrypted   bool      `json:"encrypted"`
	Uploaded    bool      `json:"uploaded"`
	MetricCount int       `json:"metric_count"`
	FilePath    string    `json:"file_path"`
}

// snapshotManifest tracks snapshot history and state.
type snapshotManifest struct {
	LastSnapshot time.Time        `json:"last_snapshot"`
	Snapshots    []SnapshotRecord `json:"snapshots"`
}

// SnapshotManager writes and restores store snapshots. Payloads are JSON,
// optionally Snappy compressed and encrypted, kept in a local directory with
// a manifest, and optionally mirrored to S3.
type SnapshotManager struct {
	store     MetricStore
	config    SnapshotConfig
	encryptor *Encryptor
	s3        *S3SnapshotClient
	mu        sync.Mutex
	manifest  *snapshotManifest
}

// NewSnapshotManager creates a snapshot manager over the store.
func NewSnapshotManager(store MetricStore, config SnapshotConfig) (*SnapshotManager, error) {
	if store == nil {
		return nil, newSnapshotError("init", errors.New("store is required"))
	}
	if config.Dir == "" {
		config.Dir = "snapshots"
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, newSnapshotError("init", err)
	}

	m := &SnapshotManager{
		store:    store,
		config:   config,
		manifest: &snapshotManifest{},
	}
	if config.Encryption != nil && config.Encryption.Enabled {
		enc, err := NewEncryptor(*config.Encryption)
		if err != nil {
			return nil, err
		}
		m.encryptor = enc
	}
	if config.S3 != nil && config.S3.Bucket != "" {
		client, err := NewS3SnapshotClient(*config.S3)
		if err != nil {
			return nil, err
		}
		m.s3 = client
	}

	// Load existing manifest; absence just means no snapshots yet.
	if err := m.loadManifest(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, newSnapshotError("init", err)
	}
	return m, nil
}

// Create archives the store's current contents. On S3 upload failure the
// local snapshot is kept and recorded with Uploaded false, and the upload
// error is returned alongside the record so the caller can retry the push.
func (m *SnapshotManager) Create(ctx context.Context) (*SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now().UTC()
	snap := Snapshot{CreatedAt: start}
	names, err := m.store.Metrics(ctx)
	if err != nil {
		return nil, newSnapshotError("collect", err)
	}
	for _, name := range names {
		metric, err := m.store.Metric(ctx, name)
		if err != nil {
			return nil, newSnapshotError("collect", err)
		}
		snap.Metrics = append(snap.Metrics, metric)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, newSnapshotError("encode", err)
	}
	if m.config.Compress {
		payload = snappy.Encode(nil, payload)
	}
	if m.encryptor != nil {
		payload, err = m.encryptor.Encrypt(payload)
		if err != nil {
			return nil, err
		}
	}

	id := fmt.Sprintf("snapshot_%d", start.UnixNano())
	filename := id + ".spc"
	if m.config.Compress {
		filename += ".sz"
	}
	filePath := filepath.Join(m.config.Dir, filename)
	if err := os.WriteFile(filePath, payload, 0o644); err != nil {
		return nil, newSnapshotError("write", err)
	}

	record := SnapshotRecord{
		ID:          id,
		Timestamp:   start,
		Size:        int64(len(payload)),
		Compressed:  m.config.Compress,
		Encrypted:   m.encryptor != nil,
		MetricCount: len(snap.Metrics),
		FilePath:    filePath,
	}

	var uploadErr error
	if m.s3 != nil {
		if uploadErr = m.s3.Upload(ctx, filename, payload); uploadErr == nil {
			record.Uploaded = true
		}
	}

	m.manifest.Snapshots = append(m.manifest.Snapshots, record)
	m.manifest.LastSnapshot = start
	if err := m.saveManifest(); err != nil {
		return nil, err
	}
	m.enforceRetention(ctx)

	return &record, uploadErr
}

// Restore loads a snapshot back into the store, replacing metrics that share
// a name with archived ones and leaving others untouched.
func (m *SnapshotManager) Restore(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := m.findRecord(id)
	if record == nil {
		return newSnapshotError("restore", fmt.Errorf("no snapshot %q", id))
	}
	payload, err := os.ReadFile(record.FilePath)
	if err != nil {
		return newSnapshotError("restore", err)
	}
	return m.restorePayload(ctx, record, payload)
}

// RestoreLatest restores the most recent snapshot.
func (m *SnapshotManager) RestoreLatest(ctx context.Context) error {
	m.mu.Lock()
	latest := ""
	var latestAt time.Time
	for _, r := range m.manifest.Snapshots {
		if latest == "" || r.Timestamp.After(latestAt) {
			latest, latestAt = r.ID, r.Timestamp
		}
	}
	m.mu.Unlock()
	if latest == "" {
		return newSnapshotError("restore", errors.New("no snapshots"))
	}
	return m.Restore(ctx, latest)
}

func (m *SnapshotManager) restorePayload(ctx context.Context, record *SnapshotRecord, payload []byte) error {
	var err error
	if record.Encrypted {
		if m.encryptor == nil {
			return newSnapshotError("restore", errors.New("snapshot is encrypted and no password is configured"))
		}
		payload, err = m.encryptor.Decrypt(payload)
		if err != nil {
			return err
		}
	}
	if record.Compressed {
		payload, err = snappy.Decode(nil, payload)
		if err != nil {
			return newSnapshotError("restore", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return newSnapshotError("restore", err)
	}
	for _, metric := range snap.Metrics {
		if err := m.store.SaveMetric(ctx, metric); err != nil {
			return newSnapshotError("restore", err)
		}
	}
	return nil
}

// List returns the snapshot history, oldest first.
func (m *SnapshotManager) List() []SnapshotRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SnapshotRecord(nil), m.manifest.Snapshots...)
}

// Delete removes a snapshot locally and, when it was uploaded, from S3.
func (m *SnapshotManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(ctx, id)
}

func (m *SnapshotManager) deleteLocked(ctx context.Context, id string) error {
	record := m.findRecord(id)
	if record == nil {
		return newSnapshotError("delete", fmt.Errorf("no snapshot %q", id))
	}
	if err := os.Remove(record.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return newSnapshotError("delete", err)
	}
	if record.Uploaded && m.s3 != nil {
		if err := m.s3.Delete(ctx, filepath.Base(record.FilePath)); err != nil {
			return err
		}
	}
	kept := m.manifest.Snapshots[:0]
	for _, r := range m.manifest.Snapshots {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	m.manifest.Snapshots = kept
	return m.saveManifest()
}

func (m *SnapshotManager) findRecord(id string) *SnapshotRecord {
	for i := range m.manifest.Snapshots {
		if m.manifest.Snapshots[i].ID == id {
			return &m.manifest.Snapshots[i]
		}
	}
	return nil
}

func (m *SnapshotManager) manifestPath() string {
	return filepath.Join(m.config.Dir, "manifest.json")
}

func (m *SnapshotManager) loadManifest() error {
	data, err := os.ReadFile(m.manifestPath())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, m.manifest)
}

func (m *SnapshotManager) saveManifest() error {
	data, err := json.MarshalIndent(m.manifest, "", "  ")
	if err != nil {
		return newSnapshotError("manifest", err)
	}
	if err := os.WriteFile(m.manifestPath(), data, 0o644); err != nil {
		return newSnapshotError("manifest", err)
	}
	return nil
}

// enforceRetention prunes the oldest snapshots beyond RetainCount. Pruning
// failures are ignored; the next snapshot tries again.
func (m *SnapshotManager) enforceRetention(ctx context.Context) {
	if m.config.RetainCount <= 0 {
		return
	}
	for len(m.manifest.Snapshots) > m.config.RetainCount {
		oldest := m.manifest.Snapshots[0]
		for _, r := range m.manifest.Snapshots[1:] {
			if r.Timestamp.Before(oldest.Timestamp) {
				oldest = r
			}
		}
		if err := m.deleteLocked(ctx, oldest.ID); err != nil {
			return
		}
	}
}
