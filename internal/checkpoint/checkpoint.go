// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint records progress through the processing queue so an
// interrupted run resumes instead of starting over. Every mutation is
// flushed to disk before it returns.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"
)

// DefaultFile is the checkpoint file name inside the cache directory.
const DefaultFile = "checkpoint.yaml"

// Checkpoint is the persisted progress record.
type Checkpoint struct {
	RunID         string            `yaml:"run_id"`
	QueueID       string            `yaml:"queue_id,omitempty"`
	QueuePosition int               `yaml:"queue_position"`
	Exported      []string          `yaml:"exported"`
	Rejected      map[string]string `yaml:"rejected"`
	UpdatedAt     time.Time         `yaml:"updated_at"`
}

// Manager owns one checkpoint file. It is used by a single writer.
type Manager struct {
	path string
	now  func() time.Time
	cp   Checkpoint
	done map[string]bool
}

// Load reads the checkpoint at path. A missing file yields an empty
// checkpoint with a fresh run ID; a file that cannot be parsed is an error.
func Load(path string) (*Manager, error) {
	m := &Manager{path: path, now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		m.cp = empty()
	case err != nil:
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &m.cp); err != nil {
			return nil, fmt.Errorf("parsing checkpoint %s: %w", path, err)
		}
		if m.cp.RunID == "" {
			return nil, fmt.Errorf("parsing checkpoint %s: missing run_id", path)
		}
		if m.cp.Rejected == nil {
			m.cp.Rejected = map[string]string{}
		}
	}

	m.done = make(map[string]bool, len(m.cp.Exported)+len(m.cp.Rejected))
	for _, k := range m.cp.Exported {
		m.done[k] = true
	}
	for k := range m.cp.Rejected {
		m.done[k] = true
	}
	return m, nil
}

func empty() Checkpoint {
	return Checkpoint{RunID: uuid.NewString(), Rejected: map[string]string{}}
}

// SetClock replaces the time source used for UpdatedAt.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Path returns the checkpoint file path.
func (m *Manager) Path() string { return m.path }

// RunID identifies the run the checkpoint belongs to.
func (m *Manager) RunID() string { return m.cp.RunID }

// UpdatedAt is the time of the last recorded mutation.
func (m *Manager) UpdatedAt() time.Time { return m.cp.UpdatedAt }

// IsComplete reports whether the cafe was exported or rejected.
func (m *Manager) IsComplete(key string) bool {
	return m.done[key]
}

// IsRejected reports whether the cafe was recorded as rejected.
func (m *Manager) IsRejected(key string) bool {
	_, ok := m.cp.Rejected[key]
	return ok
}

// RecordCompletion marks the cafe as exported and persists the checkpoint.
func (m *Manager) RecordCompletion(key string) error {
	if m.done[key] {
		return nil
	}
	m.cp.Exported = append(m.cp.Exported, key)
	m.done[key] = true
	return m.save()
}

// RecordRejection marks the cafe as permanently rejected with a reason and
// persists the checkpoint.
func (m *Manager) RecordRejection(key, reason string) error {
	if m.done[key] {
		return nil
	}
	m.cp.Rejected[key] = reason
	m.done[key] = true
	return m.save()
}

// Forget removes key from the exported and rejected sets and rewinds the
// queue so the cafe is processed again.
func (m *Manager) Forget(key string) error {
	if !m.done[key] {
		return nil
	}
	delete(m.done, key)
	delete(m.cp.Rejected, key)
	m.cp.Exported = slices.DeleteFunc(m.cp.Exported, func(k string) bool { return k == key })
	m.cp.QueuePosition = 0
	return m.save()
}

// BindQueue ties the queue position to the queue identified by id. When the
// checkpoint was written for a different queue the position restarts at 0;
// completed cafes are kept.
func (m *Manager) BindQueue(id string) error {
	if m.cp.QueueID == id {
		return nil
	}
	m.cp.QueueID = id
	m.cp.QueuePosition = 0
	return m.save()
}

// AdvanceQueue records that every queue item before pos is finished.
// The position never moves backwards.
func (m *Manager) AdvanceQueue(pos int) error {
	if pos <= m.cp.QueuePosition {
		return nil
	}
	m.cp.QueuePosition = pos
	return m.save()
}

// QueuePosition is the index of the first unfinished queue item.
func (m *Manager) QueuePosition() int {
	return m.cp.QueuePosition
}

// Exported returns the keys of exported cafes in completion order.
func (m *Manager) Exported() []string {
	return slices.Clone(m.cp.Exported)
}

// Rejections returns a copy of the rejected keys and their reasons.
func (m *Manager) Rejections() map[string]string {
	out := make(map[string]string, len(m.cp.Rejected))
	for k, v := range m.cp.Rejected {
		out[k] = v
	}
	return out
}

// Reset discards all progress, starts a new run ID and persists the empty checkpoint.
func (m *Manager) Reset() error {
	m.cp = empty()
	m.done = map[string]bool{}
	return m.save()
}

// save writes the checkpoint to a temp file in the same directory, syncs
// it and renames it over the checkpoint path.
func (m *Manager) save() error {
	m.cp.UpdatedAt = m.now().UTC()
	data, err := yaml.Marshal(&m.cp)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}
