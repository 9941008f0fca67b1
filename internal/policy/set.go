// File: internal/policy/set.go
package policy

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
)

// Set owns one policy per decision mode for the lifetime of the service, so
// learned state survives experiment restarts.
type Set struct {
	cfg       config.PolicyConfig
	log       *zap.Logger
	learned   Policy
	models    []*Linear
	heuristic Heuristic
	random    *Random
}

// NewSet builds the policies. With specialists enabled the learned policy is a
// router over a general model and one model per fault-prone conveyor.
// Snapshots found under cfg.SnapshotDir are restored.
func NewSet(cfg config.PolicyConfig, seed int64, faultProne []schemas.Conveyor, logger *zap.Logger) (*Set, error) {
	s := &Set{cfg: cfg, log: logger.Named("policy"), random: NewRandom(seed)}

	general := NewLinear("general", cfg, logger)
	s.models = append(s.models, general)
	s.learned = general

	if cfg.Specialists {
		specialists := make(map[int]Policy, len(faultProne))
		for _, c := range faultProne {
			m := NewLinear("specialist-"+c.String(), cfg, logger)
			s.models = append(s.models, m)
			specialists[SpecialistMask(c)] = m
		}
		s.learned = NewRouter(general, specialists)
	}

	if err := s.restore(); err != nil {
		// Stop the trainers without saving over the snapshots that failed to load.
		for _, m := range s.models {
			_ = m.Close()
		}
		return nil, err
	}
	return s, nil
}

// For returns the policy that serves mode.
func (s *Set) For(mode string) (Policy, error) {
	switch mode {
	case ModePolicy, "":
		return s.learned, nil
	case ModeHeuristic:
		return s.heuristic, nil
	case ModeRandom:
		return s.random, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func (s *Set) restore() error {
	if s.cfg.SnapshotDir == "" {
		return nil
	}
	for _, m := range s.models {
		path, err := SnapshotPath(s.cfg.SnapshotDir, m.Name())
		if err != nil {
			return err
		}
		snap, err := LoadSnapshot(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if err := m.Restore(snap); err != nil {
			return fmt.Errorf("failed to restore %s: %w", path, err)
		}
		s.log.Info("Restored policy snapshot.", zap.String("path", path), zap.Int64("steps", snap.Steps))
	}
	return nil
}

// Save writes a snapshot of every learned model when a snapshot dir is set.
func (s *Set) Save() error {
	if s.cfg.SnapshotDir == "" {
		return nil
	}
	var errs []error
	for _, m := range s.models {
		path, err := SnapshotPath(s.cfg.SnapshotDir, m.Name())
		if err == nil {
			err = SaveSnapshot(path, m.Snapshot())
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.log.Info("Saved policy snapshot.", zap.String("path", path))
	}
	return errors.Join(errs...)
}

// Close stops every trainer, then saves snapshots so they include all
// queued experience.
func (s *Set) Close() error {
	var errs []error
	for _, m := range s.models {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.Save(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
