package lyrics

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

// Generator turns pending lyric requests into finished lyrics.
type Generator struct {
	store    *store.Store
	cfg      *config.Config
	llm      Completer
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time
}

// NewGenerator constructs the generation processor using default dependencies.
func NewGenerator(cfg *config.Config, st *store.Store, logger *slog.Logger) *Generator {
	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	return NewGeneratorWithDependencies(cfg, st, logger, client, notifications.NewService(cfg))
}

// NewGeneratorWithDependencies allows injecting collaborators (used in tests).
func NewGeneratorWithDependencies(cfg *config.Config, st *store.Store, logger *slog.Logger, completer Completer, notifier notifications.Service) *Generator {
	return &Generator{
		store:    st,
		cfg:      cfg,
		llm:      completer,
		logger:   logging.NewComponentLogger(logger, "lyric-generate"),
		notifier: notifier,
		now:      time.Now,
	}
}

// Name implements stage.Processor.
func (g *Generator) Name() string { return "lyric-generate" }

// Tick scans the pending set and generates each eligible request in turn,
// one synchronous call at a time.
func (g *Generator) Tick(ctx context.Context) error {
	now := g.now()
	pending, err := g.store.PendingLyricRequests(ctx, now)
	if err != nil {
		return err
	}
	for _, req := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.generateOne(ctx, req)
	}
	return nil
}

func (g *Generator) generateOne(ctx context.Context, req *store.LyricRequest) {
	ctx = services.WithRecordID(ctx, req.ID)
	logger := logging.WithContext(ctx, g.logger)

	content, err := g.llm.Complete(ctx, generationSystemPrompt, buildGenerationPrompt(req))
	if err != nil {
		g.recordFailure(ctx, logger, req, err)
		return
	}
	lyrics := strings.TrimSpace(content)
	if lyrics == "" {
		g.recordFailure(ctx, logger, req, errEmptyLyric)
		return
	}

	generatedAt := g.now()
	if err := g.store.MarkLyricReady(ctx, req.ID, lyrics, generatedAt); err != nil {
		logger.Error("persist generated lyric", logging.Error(err))
		return
	}
	if _, err := g.store.AppendLyricHistory(ctx, req.LeadID, store.LyricRef{
		RequestID: req.ID,
		Lyrics:    lyrics,
		CreatedAt: generatedAt,
	}); err != nil {
		logger.Warn("append lyric history", logging.Error(err))
	}
	logger.Info("lyric generated", logging.Int("attempts", req.Attempts+1))
}

func (g *Generator) recordFailure(ctx context.Context, logger *slog.Logger, req *store.LyricRequest, cause error) {
	attempt := req.Attempts + 1
	terminal := attempt >= g.cfg.Pipeline.MaxGenerationAttempts || !services.IsRetryable(cause)
	var nextAttempt time.Time
	if !terminal {
		delay := stage.Backoff(
			time.Duration(g.cfg.Pipeline.RetryBackoffSeconds)*time.Second,
			0, attempt)
		nextAttempt = g.now().Add(delay)
	}

	if err := g.store.RecordLyricFailure(ctx, req.ID, nextAttempt, terminal); err != nil {
		logger.Error("record lyric failure", logging.Error(err))
		return
	}
	if terminal {
		logger.Error("lyric generation failed permanently",
			logging.Int("attempts", attempt), logging.Error(cause))
		_ = g.notifier.NotifyStageError(ctx, g.Name(), req.ID, cause)
		return
	}
	logger.Warn("lyric generation failed, will retry",
		logging.Int("attempts", attempt),
		logging.Time("next_attempt_at", nextAttempt),
		logging.Error(cause))
}

// HealthCheck implements stage.Processor.
func (g *Generator) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(g.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy(g.Name(), "llm api key not configured")
	}
	return stage.Healthy(g.Name())
}

type lyricError string

func (e lyricError) Error() string { return string(e) }

const errEmptyLyric = lyricError("model returned empty lyric")
