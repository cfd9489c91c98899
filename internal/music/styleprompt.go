package music

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/llm"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/textutil"
)

// StructuredCompleter extends Completer with JSON-constrained completions.
type StructuredCompleter interface {
	Completer
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StylePromptWriter derives the provider-facing style description from the
// intake answers. The model gets two passes: a draft, then a JSON-constrained
// compression pass when the draft overruns the provider limit.
type StylePromptWriter struct {
	store    *store.Store
	cfg      *config.Config
	llm      StructuredCompleter
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time
}

// NewStylePromptWriter constructs the processor using default dependencies.
func NewStylePromptWriter(cfg *config.Config, st *store.Store, logger *slog.Logger) *StylePromptWriter {
	return NewStylePromptWriterWithDependencies(cfg, st, logger, newLLMClient(cfg), notifications.NewService(cfg))
}

// NewStylePromptWriterWithDependencies allows injecting collaborators (used in tests).
func NewStylePromptWriterWithDependencies(cfg *config.Config, st *store.Store, logger *slog.Logger, completer StructuredCompleter, notifier notifications.Service) *StylePromptWriter {
	return &StylePromptWriter{
		store:    st,
		cfg:      cfg,
		llm:      completer,
		logger:   logging.NewComponentLogger(logger, "music-style"),
		notifier: notifier,
		now:      time.Now,
	}
}

// Name implements stage.Processor.
func (w *StylePromptWriter) Name() string { return "music-style" }

// Tick drafts a style prompt for every eligible request.
func (w *StylePromptWriter) Tick(ctx context.Context) error {
	pending, err := w.store.EligibleMusicRequests(ctx, store.MusicStatusNoPrompt, w.now())
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

func (w *StylePromptWriter) writeOne(ctx context.Context, req *store.MusicRequest) {
	ctx = services.WithRecordID(ctx, req.ID)
	logger := logging.WithContext(ctx, w.logger)

	prompt, err := w.draft(ctx, req)
	if err != nil {
		recordStageFailure(ctx, stageFailure{
			cfg:      w.cfg,
			store:    w.store,
			notifier: w.notifier,
			logger:   logger,
			stage:    w.Name(),
			now:      w.now,
			req:      req,
			from:     store.MusicStatusNoPrompt,
			terminal: store.MusicStatusErrorPrompt,
			cause:    err,
		})
		return
	}

	if err := w.store.MarkMusicPromptReady(ctx, req.ID, prompt); err != nil {
		logger.Error("persist style prompt", logging.Error(err))
		return
	}
	logger.Info("style prompt ready", logging.Int("length", utf8.RuneCountInString(prompt)))
}

func (w *StylePromptWriter) draft(ctx context.Context, req *store.MusicRequest) (string, error) {
	content, err := w.llm.Complete(ctx, styleSystemPrompt, buildStylePrompt(req))
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(content)
	if prompt == "" {
		return "", errEmptyCompletion
	}
	if utf8.RuneCountInString(prompt) <= maxStylePromptRunes {
		return prompt, nil
	}

	// Second pass: ask the model to compress its own draft, constrained to a
	// JSON payload so the answer survives code fences and prose.
	content, err = w.llm.CompleteJSON(ctx, styleRefineSystemPrompt, buildRefinePrompt(prompt))
	if err != nil {
		return "", err
	}
	var parsed struct {
		Prompt string `json:"prompt"`
	}
	refined := ""
	if err := llm.DecodeJSON(content, &parsed); err == nil {
		refined = strings.TrimSpace(parsed.Prompt)
	}
	if refined == "" {
		// Model ignored the JSON contract; use the raw content.
		refined = strings.TrimSpace(content)
	}
	if refined == "" {
		return "", errEmptyCompletion
	}
	// Truncation is the backstop when the model ignores the limit twice.
	return textutil.TruncateRunes(refined, maxStylePromptRunes), nil
}

// HealthCheck implements stage.Processor.
func (w *StylePromptWriter) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(w.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy(w.Name(), "llm api key not configured")
	}
	return stage.Healthy(w.Name())
}
