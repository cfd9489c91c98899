package music

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/suno"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/textutil"
)

// CallbackPath is the daemon route the music provider calls when a task
// finishes. The launch processor appends it to the configured callback base.
const CallbackPath = "/api/music/callback"

// Submitter places an asynchronous generation task with the music provider.
type Submitter interface {
	Submit(ctx context.Context, sub suno.Submission) (string, error)
}

// Launcher submits one ready song per tick to the generation provider. The
// record is claimed before the provider call: an overlapping tick finds the
// record already in processing and submits nothing.
type Launcher struct {
	store    *store.Store
	cfg      *config.Config
	provider Submitter
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time
}

// NewLauncher constructs the processor using default dependencies.
func NewLauncher(cfg *config.Config, st *store.Store, logger *slog.Logger) *Launcher {
	client := suno.NewClient(suno.Config{
		APIKey:         cfg.Suno.APIKey,
		BaseURL:        cfg.Suno.BaseURL,
		TimeoutSeconds: cfg.Suno.TimeoutSeconds,
	})
	return NewLauncherWithDependencies(cfg, st, logger, client, notifications.NewService(cfg))
}

// NewLauncherWithDependencies allows injecting collaborators (used in tests).
func NewLauncherWithDependencies(cfg *config.Config, st *store.Store, logger *slog.Logger, provider Submitter, notifier notifications.Service) *Launcher {
	return &Launcher{
		store:    st,
		cfg:      cfg,
		provider: provider,
		logger:   logging.NewComponentLogger(logger, "music-launch"),
		notifier: notifier,
		now:      time.Now,
	}
}

// Name implements stage.Processor.
func (l *Launcher) Name() string { return "music-launch" }

// Tick claims and submits at most one request.
func (l *Launcher) Tick(ctx context.Context) error {
	req, err := l.store.OldestMusicRequest(ctx, store.MusicStatusNoTrack, l.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ctx = services.WithRecordID(ctx, req.ID)
	logger := logging.WithContext(ctx, l.logger)
	if err := l.store.ClaimMusicForLaunch(ctx, req.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			logger.Debug("request already claimed")
			return nil
		}
		return err
	}

	taskID, err := l.provider.Submit(ctx, suno.Submission{
		Title:       songTitle(req),
		Style:       req.StylePrompt,
		Lyrics:      req.Lyrics,
		CallbackURL: l.callbackURL(),
	})
	if err != nil {
		logger.Error("submit generation task", logging.Error(err))
		if failErr := l.store.FailMusicRequest(ctx, req.ID,
			store.MusicStatusProcessing, store.MusicStatusErrorTrack, err.Error()); failErr != nil {
			logger.Error("record launch failure", logging.Error(failErr))
		}
		_ = l.notifier.NotifyStageError(ctx, l.Name(), req.ID, err)
		return nil
	}

	if err := l.store.SetMusicTaskID(ctx, req.ID, taskID); err != nil {
		// The task is already running at the provider; the reaper will
		// rewind the record once the orphaned callback fails to match.
		logger.Error("store task id", logging.String("task_id", taskID), logging.Error(err))
		return nil
	}
	logger.Info("generation task submitted", logging.String("task_id", taskID))
	return nil
}

func (l *Launcher) callbackURL() string {
	return strings.TrimRight(l.cfg.Suno.CallbackBaseURL, "/") + CallbackPath
}

func songTitle(req *store.MusicRequest) string {
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return "Canción personalizada"
	}
	return suno.TruncateTitle(fmt.Sprintf("Canción para %s", textutil.TitleCase(recipient)))
}

// HealthCheck implements stage.Processor.
func (l *Launcher) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(l.cfg.Suno.APIKey) == "" {
		return stage.Unhealthy(l.Name(), "suno api key not configured")
	}
	if strings.TrimSpace(l.cfg.Suno.CallbackBaseURL) == "" {
		return stage.Unhealthy(l.Name(), "suno callback base url not configured")
	}
	return stage.Healthy(l.Name())
}
