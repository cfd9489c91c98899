// Package music implements the song pipeline: lyric writing, style prompting,
// asynchronous track generation, clip production, and delivery. Each processor
// scans one status and owns the transition out of it.
package music

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/llm"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

// Completer produces a free-form completion for the given prompts.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LyricWriter generates the lyric a song request is built on.
type LyricWriter struct {
	store    *store.Store
	cfg      *config.Config
	llm      Completer
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time
}

// NewLyricWriter constructs the processor using default dependencies.
func NewLyricWriter(cfg *config.Config, st *store.Store, logger *slog.Logger) *LyricWriter {
	return NewLyricWriterWithDependencies(cfg, st, logger, newLLMClient(cfg), notifications.NewService(cfg))
}

// NewLyricWriterWithDependencies allows injecting collaborators (used in tests).
func NewLyricWriterWithDependencies(cfg *config.Config, st *store.Store, logger *slog.Logger, completer Completer, notifier notifications.Service) *LyricWriter {
	return &LyricWriter{
		store:    st,
		cfg:      cfg,
		llm:      completer,
		logger:   logging.NewComponentLogger(logger, "music-lyric"),
		notifier: notifier,
		now:      time.Now,
	}
}

func newLLMClient(cfg *config.Config) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
}

// Name implements stage.Processor.
func (w *LyricWriter) Name() string { return "music-lyric" }

// Tick generates lyrics for every eligible request, one synchronous call at a
// time.
func (w *LyricWriter) Tick(ctx context.Context) error {
	pending, err := w.store.EligibleMusicRequests(ctx, store.MusicStatusNoLyric, w.now())
	if err != nil {
		return err
	}
	for _, req := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.writeOne(ctx, req)
	}
	return nil
}

func (w *LyricWriter) writeOne(ctx context.Context, req *store.MusicRequest) {
	ctx = services.WithRecordID(ctx, req.ID)
	logger := logging.WithContext(ctx, w.logger)

	content, err := w.llm.Complete(ctx, lyricSystemPrompt, buildLyricPrompt(req))
	if err == nil && strings.TrimSpace(content) == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		recordStageFailure(ctx, stageFailure{
			cfg:      w.cfg,
			store:    w.store,
			notifier: w.notifier,
			logger:   logger,
			stage:    w.Name(),
			now:      w.now,
			req:      req,
			from:     store.MusicStatusNoLyric,
			terminal: store.MusicStatusErrorLyric,
			cause:    err,
		})
		return
	}

	if err := w.store.MarkMusicLyricReady(ctx, req.ID, strings.TrimSpace(content)); err != nil {
		logger.Error("persist song lyric", logging.Error(err))
		return
	}
	logger.Info("song lyric generated", logging.Int("attempts", req.Attempts+1))
}

// HealthCheck implements stage.Processor.
func (w *LyricWriter) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(w.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy(w.Name(), "llm api key not configured")
	}
	return stage.Healthy(w.Name())
}

type musicError string

func (e musicError) Error() string { return string(e) }

const errEmptyCompletion = musicError("model returned empty completion")

// stageFailure captures everything needed to record a generation failure:
// schedule a backed-off retry below the attempt cap, move to the stage's
// terminal error status at it. Causes tagged non-retryable by the service
// layer park the record immediately regardless of the cap.
type stageFailure struct {
	cfg      *config.Config
	store    *store.Store
	notifier notifications.Service
	logger   *slog.Logger
	stage    string
	now      func() time.Time
	req      *store.MusicRequest
	from     store.MusicStatus
	terminal store.MusicStatus
	cause    error
}

func recordStageFailure(ctx context.Context, f stageFailure) {
	attempt := f.req.Attempts + 1
	if attempt >= f.cfg.Pipeline.MaxGenerationAttempts || !services.IsRetryable(f.cause) {
		if err := f.store.FailMusicRequest(ctx, f.req.ID, f.from, f.terminal, f.cause.Error()); err != nil {
			f.logger.Error("record terminal failure", logging.Error(err))
			return
		}
		f.logger.Error("stage failed permanently",
			logging.Int("attempts", attempt), logging.Error(f.cause))
		_ = f.notifier.NotifyStageError(ctx, f.stage, f.req.ID, f.cause)
		return
	}

	delay := stage.Backoff(
		time.Duration(f.cfg.Pipeline.RetryBackoffSeconds)*time.Second,
		0, attempt)
	nextAttempt := f.now().Add(delay)
	if err := f.store.RecordMusicRetry(ctx, f.req.ID, f.from, nextAttempt); err != nil {
		f.logger.Error("record stage retry", logging.Error(err))
		return
	}
	f.logger.Warn("stage failed, will retry",
		logging.Int("attempts", attempt),
		logging.Time("next_attempt_at", nextAttempt),
		logging.Error(f.cause))
}
