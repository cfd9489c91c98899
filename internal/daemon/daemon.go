// Package daemon ties the pipeline together: it owns the single-instance
// lock, the scheduler driving every stage processor, and the HTTP API the
// webhooks and the CLI talk to.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/lyrics"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/music"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/reaper"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/scheduler"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/sequence"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

// Daemon coordinates the pipeline scheduler and the API server, and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	sched    *scheduler.Scheduler
	notifier notifications.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                      `json:"running"`
	DBPath       string                    `json:"db_path"`
	LockFilePath string                    `json:"lock_file"`
	Stages       []scheduler.StageStatus   `json:"stages"`
	Health       []stage.Health            `json:"health"`
	Leads        int                       `json:"leads"`
	LyricCounts  map[store.LyricStatus]int `json:"lyric_counts"`
	MusicCounts  map[store.MusicStatus]int `json:"music_counts"`
}

// New constructs a daemon with the full processor set registered. The context
// is used for dependency construction only, not for the daemon lifetime.
func New(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}
	notifier := notifications.NewService(cfg)
	sched, err := buildScheduler(ctx, cfg, st, logger, notifier)
	if err != nil {
		return nil, err
	}
	return NewWithScheduler(cfg, st, logger, sched, notifier), nil
}

// NewWithScheduler allows injecting a pre-built scheduler (used in tests).
func NewWithScheduler(cfg *config.Config, st *store.Store, logger *slog.Logger, sched *scheduler.Scheduler, notifier notifications.Service) *Daemon {
	lockPath := filepath.Join(cfg.Paths.DataDir, "cantalabd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		sched:    sched,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d
}

func buildScheduler(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service) (*scheduler.Scheduler, error) {
	clip, err := music.NewClipProducer(ctx, cfg, st, logger)
	if err != nil {
		return nil, fmt.Errorf("build clip producer: %w", err)
	}

	interval := func(seconds int) time.Duration {
		return time.Duration(seconds) * time.Second
	}
	sched := scheduler.New(logger, notifier)
	sched.Register(lyrics.NewGenerator(cfg, st, logger), interval(cfg.Pipeline.LyricInterval))
	sched.Register(lyrics.NewDeliverer(cfg, st, logger), interval(cfg.Pipeline.LyricDeliverInterval))
	sched.Register(music.NewLyricWriter(cfg, st, logger), interval(cfg.Pipeline.MusicLyricInterval))
	sched.Register(music.NewStylePromptWriter(cfg, st, logger), interval(cfg.Pipeline.StylePromptInterval))
	sched.Register(music.NewLauncher(cfg, st, logger), interval(cfg.Pipeline.LaunchInterval))
	sched.Register(clip, interval(cfg.Pipeline.ClipInterval))
	sched.Register(music.NewDeliverer(cfg, st, logger), interval(cfg.Pipeline.MusicDeliverInterval))
	sched.Register(sequence.NewEngine(cfg, st, logger), interval(cfg.Pipeline.SequenceInterval))
	sched.Register(reaper.New(cfg, st, logger), interval(cfg.Pipeline.ReaperInterval))
	return sched, nil
}

// Start acquires the daemon lock, launches the scheduler, and begins serving
// the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cantalab daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.sched.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.sched.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the API server and scheduler and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.sched.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Running reports whether the daemon has started.
func (d *Daemon) Running() bool { return d.running.Load() }

// Addr returns the API listener address, or empty before Start.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status gathers runtime and queue information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		DBPath:       filepath.Join(d.cfg.Paths.DataDir, store.DBFileName),
		LockFilePath: d.lockPath,
		Stages:       d.sched.Status(),
		Health:       d.sched.Health(ctx),
	}

	if leads, err := d.store.LeadCount(ctx); err == nil {
		status.Leads = leads
	}
	if counts, err := d.store.LyricStatusCounts(ctx); err == nil {
		status.LyricCounts = counts
	}
	if counts, err := d.store.MusicStatusCounts(ctx); err == nil {
		status.MusicCounts = counts
	}
	return status
}
