// File: internal/policy/snapshot.go
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

// Snapshot is the persisted form of a Linear model.
type Snapshot struct {
	Name    string      `json:"name"`
	Weights [][]float64 `json:"weights"`
	Visits  []int       `json:"visits"`
	Steps   int64       `json:"steps"`
	SavedAt time.Time   `json:"saved_at"`
}

// Snapshot copies the current model.
func (l *Linear) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Snapshot{
		Name:    l.name,
		Weights: make([][]float64, schemas.NumTactics),
		Visits:  append([]int(nil), l.visits[:]...),
		Steps:   l.steps,
		SavedAt: time.Now().UTC(),
	}
	for a := range l.weights {
		s.Weights[a] = append([]float64(nil), l.weights[a][:]...)
	}
	return s
}

// Restore replaces the model with s. The snapshot must have this model's shape.
func (l *Linear) Restore(s Snapshot) error {
	if len(s.Weights) != schemas.NumTactics || len(s.Visits) != schemas.NumTactics {
		return fmt.Errorf("snapshot %q has %d actions, want %d", s.Name, len(s.Weights), schemas.NumTactics)
	}
	for a, w := range s.Weights {
		if len(w) != numFeatures {
			return fmt.Errorf("snapshot %q action %d has %d features, want %d", s.Name, a, len(w), numFeatures)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for a, w := range s.Weights {
		copy(l.weights[a][:], w)
		l.visits[a] = s.Visits[a]
	}
	l.steps = s.Steps
	return nil
}

// SnapshotPath returns the file for a named model under dir, expanding "~".
func SnapshotPath(dir, name string) (string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand snapshot dir %q: %w", dir, err)
	}
	return filepath.Join(expanded, name+".json"), nil
}

// SaveSnapshot writes s to path atomically.
func SaveSnapshot(path string, s Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (Snapshot, error) {
	var s Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return s, nil
}
