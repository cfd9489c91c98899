// Package reaper recovers song requests stranded in processing. A task whose
// provider callback never arrives would otherwise sit in-flight forever; the
// reaper rewinds anything older than the configured timeout back to the
// launch queue.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

// Reaper resets stuck in-flight song requests.
type Reaper struct {
	store    *store.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time
}

// Option customizes the reaper.
type Option func(*Reaper)

// WithClock overrides the clock (used in tests).
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs the reaper using default dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) *Reaper {
	return NewWithDependencies(cfg, st, logger, notifications.NewService(cfg), opts...)
}

// NewWithDependencies allows injecting collaborators (used in tests).
func NewWithDependencies(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service, opts ...Option) *Reaper {
	r := &Reaper{
		store:    st,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "reaper"),
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements stage.Processor.
func (r *Reaper) Name() string { return "reaper" }

// Tick rewinds every processing request untouched since before the timeout
// window. Only strictly older records move; a record updated exactly at the
// cutoff stays in flight.
func (r *Reaper) Tick(ctx context.Context) error {
	timeout := time.Duration(r.cfg.Pipeline.ProcessingTimeoutMins) * time.Minute
	cutoff := r.now().Add(-timeout)

	reclaimed, err := r.store.ReclaimStuckProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed == 0 {
		return nil
	}

	r.logger.Warn("reclaimed stuck song requests",
		logging.Int64("count", reclaimed),
		logging.Time("cutoff", cutoff))
	_ = r.notifier.NotifyStuckReclaimed(ctx, reclaimed)
	return nil
}

// HealthCheck implements stage.Processor.
func (r *Reaper) HealthCheck(ctx context.Context) stage.Health {
	if r.cfg.Pipeline.ProcessingTimeoutMins <= 0 {
		return stage.Unhealthy(r.Name(), "processing timeout not configured")
	}
	return stage.Healthy(r.Name())
}
