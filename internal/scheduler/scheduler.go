// Package scheduler drives the pipeline: every registered processor gets its
// own ticker goroutine, so stages fire on independent cadences while each
// stage runs at most one Tick at a time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
)

// StageStatus is a point-in-time snapshot of one registered stage.
type StageStatus struct {
	Name    string    `json:"name"`
	LastRun time.Time `json:"last_run,omitzero"`
	LastErr string    `json:"last_error,omitempty"`
	Runs    int64     `json:"runs"`
}

type entry struct {
	processor stage.Processor
	interval  time.Duration

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
	runs    int64
}

// Scheduler owns the stage ticker goroutines.
type Scheduler struct {
	logger   *slog.Logger
	notifier notifications.Service
	entries  []*entry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an empty scheduler; stages are added with Register before
// Start.
func New(logger *slog.Logger, notifier notifications.Service) *Scheduler {
	return &Scheduler{
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		notifier: notifier,
	}
}

// Register adds a processor firing on the given interval. Registration after
// Start has no effect on the running scheduler.
func (s *Scheduler) Register(p stage.Processor, interval time.Duration) {
	if p == nil || interval <= 0 {
		return
	}
	s.entries = append(s.entries, &entry{processor: p, interval: interval})
}

// Start launches one goroutine per registered stage. It returns an error when
// the scheduler is already running or has nothing to run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	if len(s.entries) == 0 {
		return errors.New("scheduler has no registered stages")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, e := range s.entries {
		s.wg.Add(1)
		go s.runStage(runCtx, e)
	}
	s.logger.Info("scheduler started", logging.Int("stages", len(s.entries)))
	return nil
}

// Stop cancels every stage goroutine and waits for in-flight ticks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// runStage is the per-stage loop. Ticks run synchronously on this goroutine,
// so a slow tick delays the next one instead of overlapping it; missed ticker
// fires are dropped.
func (s *Scheduler) runStage(ctx context.Context, e *entry) {
	defer s.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickStage(ctx, e)
		}
	}
}

func (s *Scheduler) tickStage(ctx context.Context, e *entry) {
	// Every tick gets a correlation id so log lines from one run of one
	// stage can be isolated across components.
	tickCtx := services.WithStage(ctx, e.processor.Name())
	tickCtx = services.WithCorrelationID(tickCtx, uuid.NewString())

	started := time.Now()
	err := e.processor.Tick(tickCtx)

	e.mu.Lock()
	e.lastRun = started
	e.lastErr = err
	e.runs++
	e.mu.Unlock()

	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	logging.WithContext(tickCtx, s.logger).Error("stage tick failed", logging.Error(err))
	_ = s.notifier.NotifyStageError(tickCtx, e.processor.Name(), "", err)
}

// Status reports a snapshot of every registered stage.
func (s *Scheduler) Status() []StageStatus {
	statuses := make([]StageStatus, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		status := StageStatus{
			Name:    e.processor.Name(),
			LastRun: e.lastRun,
			Runs:    e.runs,
		}
		if e.lastErr != nil {
			status.LastErr = e.lastErr.Error()
		}
		e.mu.Unlock()
		statuses = append(statuses, status)
	}
	return statuses
}

// Health runs every stage's health check.
func (s *Scheduler) Health(ctx context.Context) []stage.Health {
	healths := make([]stage.Health, 0, len(s.entries))
	for _, e := range s.entries {
		healths = append(healths, e.processor.HealthCheck(ctx))
	}
	return healths
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
