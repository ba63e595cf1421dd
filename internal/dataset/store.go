package dataset

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"sentinel/adapters/stats/anomaly"
	"sentinel/domain/table"
	"sentinel/internal"
	"sentinel/internal/errors"
	"sentinel/ports"
)

// DetectorFactory builds a fresh, unfitted outlier detector
type DetectorFactory func() ports.OutlierDetector

// Store holds the current snapshot and the anomaly model fitted to it.
// Readers always receive a whole snapshot; Replace swaps it atomically and
// drops the model.
type Store struct {
	mu    sync.RWMutex
	snap  *table.Snapshot
	model *anomaly.Model // fitted to snap, nil until first use

	fits        singleflight.Group
	newDetector DetectorFactory
	logger      *zap.Logger
}

// NewStore creates an empty store
func NewStore(newDetector DetectorFactory, logger *zap.Logger) *Store {
	return &Store{
		newDetector: newDetector,
		logger:      internal.OrNop(logger).Named("dataset"),
	}
}

// Current returns the loaded snapshot
func (s *Store) Current() (*table.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, errors.DataUnavailable("Data not loaded")
	}
	return s.snap, nil
}

// Replace pins t as the new current snapshot
func (s *Store) Replace(t *table.Table, source string) *table.Snapshot {
	snap := table.NewSnapshot(t, source)

	s.mu.Lock()
	s.snap = snap
	s.model = nil
	s.mu.Unlock()

	s.logger.Info("dataset replaced",
		zap.String("snapshot", snap.ID.String()),
		zap.String("source", source),
		zap.Int("rows", t.Len()),
		zap.Int("columns", t.Width()))
	return snap
}

// Model returns the current snapshot and its anomaly model
func (s *Store) Model(ctx context.Context) (*anomaly.Model, *table.Snapshot, error) {
	snap, err := s.Current()
	if err != nil {
		return nil, nil, err
	}
	m, err := s.ModelFor(ctx, snap)
	if err != nil {
		return nil, nil, err
	}
	return m, snap, nil
}

// ModelFor returns the anomaly model for snap, fitting it on first use.
// Concurrent callers share a single fit that no caller's cancellation can
// abort; each caller stops waiting when its own ctx is done. Only the current
// snapshot's model is kept; a snapshot replaced meanwhile gets a model that is
// not cached.
func (s *Store) ModelFor(ctx context.Context, snap *table.Snapshot) (*anomaly.Model, error) {
	if m := s.cached(snap); m != nil {
		return m, nil
	}

	fitCtx := context.WithoutCancel(ctx)
	ch := s.fits.DoChan(snap.ID.String(), func() (any, error) {
		// a fit may have finished between the check above and DoChan
		if m := s.cached(snap); m != nil {
			return m, nil
		}
		m, err := anomaly.Fit(fitCtx, snap.Table(), s.newDetector())
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.snap == snap {
			s.model = m
		}
		s.mu.Unlock()
		s.logger.Debug("anomaly model fitted",
			zap.String("snapshot", snap.ID.String()),
			zap.Bool("trained", m.Trained()))
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*anomaly.Model), nil
	}
}

func (s *Store) cached(snap *table.Snapshot) *anomaly.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap != snap {
		return nil
	}
	return s.model
}
