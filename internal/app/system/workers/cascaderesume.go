// internal/app/system/workers/cascaderesume.go
package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// resumeLimit bounds how many cascades one pass picks up.
const resumeLimit = 50

// Resumer re-runs a persisted cascade. Implemented by coordinator.Coordinator.
type Resumer interface {
	Resume(ctx context.Context, cascadeID string) error
}

// CascadeResume is a background worker that picks up cascades left running
// or failed by a crash or an error and resumes them.
type CascadeResume struct {
	cascades    docstore.Cascades
	resumer     Resumer
	log         *zap.Logger
	interval    time.Duration
	resumeAfter time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewCascadeResume creates a new cascade resume worker.
//
// Parameters:
//   - cascades: the cascade cursor store
//   - resumer: runs a single cascade (the coordinator)
//   - logger: zap logger for logging
//   - interval: how often to look for stale cascades (e.g., 1 minute)
//   - resumeAfter: how long a cascade must be untouched before it is resumed (e.g., 2 minutes)
func NewCascadeResume(cascades docstore.Cascades, resumer Resumer, logger *zap.Logger, interval, resumeAfter time.Duration) *CascadeResume {
	return &CascadeResume{
		cascades:    cascades,
		resumer:     resumer,
		log:         logger,
		interval:    interval,
		resumeAfter: resumeAfter,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background resume loop.
func (w *CascadeResume) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("cascade resume worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("resume_after", w.resumeAfter))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *CascadeResume) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("cascade resume worker stopped")
}

func (w *CascadeResume) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), timeouts.Cascade())
			w.RunOnce(ctx)
			cancel()
		}
	}
}

// RunOnce resumes every stale cascade once and returns how many finished.
// Failures are logged; the cascade stays eligible for the next pass.
func (w *CascadeResume) RunOnce(ctx context.Context) int {
	stale, err := w.cascades.ListStale(ctx, time.Now().UTC().Add(-w.resumeAfter), resumeLimit)
	if err != nil {
		w.log.Error("failed to list stale cascades", zap.Error(err))
		return 0
	}

	done := 0
	for _, rec := range stale {
		if ctx.Err() != nil {
			break
		}
		err := w.resumer.Resume(ctx, rec.ID)
		switch {
		case err == nil:
			done++
		case errors.Is(err, apperr.ErrPartialCascade):
			w.log.Warn("cascade still incomplete", zap.String("cascade_id", rec.ID), zap.Error(err))
		default:
			w.log.Error("cascade resume failed", zap.String("cascade_id", rec.ID), zap.Error(err))
		}
	}

	if len(stale) > 0 {
		w.log.Info("resumed stale cascades", zap.Int("found", len(stale)), zap.Int("finished", done))
	}
	return done
}
