package sequence

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/whatsapp"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

// Messenger sends outbound WhatsApp messages for sequence steps.
type Messenger interface {
	SendText(ctx context.Context, phone, text string) error
	SendAudio(ctx context.Context, phone, mediaURL string) error
	SendVideo(ctx context.Context, phone, mediaURL, caption string) error
	SendDocument(ctx context.Context, phone, mediaURL, fileName string) error
}

// Engine advances active sequence instances across all leads.
type Engine struct {
	store     *store.Store
	cfg       *config.Config
	messenger Messenger
	logger    *slog.Logger
	now       func() time.Time
}

// EngineOption customizes the processor.
type EngineOption func(*Engine)

// WithEngineClock overrides the clock (used in tests).
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs the sequence processor using default dependencies.
func NewEngine(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...EngineOption) *Engine {
	client := whatsapp.NewClient(whatsapp.Config{
		BaseURL:        cfg.WhatsApp.BaseURL,
		APIKey:         cfg.WhatsApp.APIKey,
		Instance:       cfg.WhatsApp.Instance,
		TimeoutSeconds: cfg.WhatsApp.TimeoutSeconds,
	})
	return NewEngineWithDependencies(cfg, st, logger, client, opts...)
}

// NewEngineWithDependencies allows injecting collaborators (used in tests).
func NewEngineWithDependencies(cfg *config.Config, st *store.Store, logger *slog.Logger, messenger Messenger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     st,
		cfg:       cfg,
		messenger: messenger,
		logger:    logging.NewComponentLogger(logger, "sequence"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements stage.Processor.
func (e *Engine) Name() string { return "sequence" }

// Tick walks every lead carrying sequence instances and sends the next due
// step of each active instance.
func (e *Engine) Tick(ctx context.Context) error {
	defs, err := e.store.SequenceDefinitions(ctx)
	if err != nil {
		return err
	}
	leads, err := e.store.LeadsWithSequences(ctx)
	if err != nil {
		return err
	}
	for _, lead := range leads {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.advanceLead(ctx, lead, defs)
	}
	return nil
}

func (e *Engine) advanceLead(ctx context.Context, lead *store.Lead, defs map[string]*store.SequenceDefinition) {
	logger := e.logger.With(logging.String(logging.FieldLeadID, lead.ID))
	now := e.now()

	instances := make([]store.SequenceInstance, len(lead.Sequences))
	copy(instances, lead.Sequences)

	changed := false
	for i := range instances {
		inst := &instances[i]
		if inst.Completed {
			continue
		}
		def, ok := defs[inst.Trigger]
		if !ok {
			// Definition not registered yet; leave the instance untouched so
			// it starts sending once an operator creates the definition.
			continue
		}
		if len(def.Steps) == 0 {
			inst.Completed = true
			changed = true
			continue
		}
		// At most one step per instance per tick; a lead that fell behind
		// drains its backlog across ticks instead of in one burst.
		if inst.StepIndex < len(def.Steps) {
			step := def.Steps[inst.StepIndex]
			sendAt := inst.StartedAt.Add(time.Duration(step.DelayMinutes) * time.Minute)
			if !sendAt.After(now) {
				if err := e.sendStep(ctx, lead, step); err != nil {
					logger.Error("send sequence step",
						logging.String(logging.FieldTrigger, inst.Trigger),
						logging.Int("step", inst.StepIndex),
						logging.Error(err))
					// Keep the index; the step retries next tick.
				} else {
					inst.StepIndex++
					changed = true
				}
			}
		}
		if inst.StepIndex >= len(def.Steps) && !inst.Completed {
			inst.Completed = true
			changed = true
		}
	}
	if !changed {
		return
	}

	// Prune only when every instance has finished, so a finished follow-up
	// still blocks re-triggering until the others complete.
	allDone := true
	for _, inst := range instances {
		if !inst.Completed {
			allDone = false
			break
		}
	}
	if allDone {
		instances = instances[:0]
	}

	if err := e.store.ReplaceSequences(ctx, lead.ID, lead.Revision, instances); err != nil {
		if errors.Is(err, store.ErrConflict) {
			logger.Warn("sequence state changed concurrently, will retry next tick")
			return
		}
		logger.Error("persist sequence progress", logging.Error(err))
	}
}

func (e *Engine) sendStep(ctx context.Context, lead *store.Lead, step store.SequenceStep) error {
	data := e.templateData(ctx, lead, step)
	content := Render(step.Content, data)

	kind := strings.ToLower(strings.TrimSpace(step.Type))
	var err error
	var body, mediaURL string
	switch kind {
	case store.KindAudio:
		mediaURL = content
		err = e.messenger.SendAudio(ctx, lead.Phone, mediaURL)
	case store.KindVideo:
		mediaURL = content
		err = e.messenger.SendVideo(ctx, lead.Phone, mediaURL, Render(step.Params["caption"], data))
	case store.KindDocument:
		mediaURL = content
		err = e.messenger.SendDocument(ctx, lead.Phone, mediaURL, Render(step.Params["fileName"], data))
	default:
		kind = store.KindText
		body = content
		err = e.messenger.SendText(ctx, lead.Phone, body)
	}
	if err != nil {
		return err
	}

	return e.store.AppendMessage(ctx, &store.Message{
		LeadID:   lead.ID,
		Author:   store.AuthorSystem,
		Kind:     kind,
		Body:     body,
		MediaURL: mediaURL,
	})
}

// templateData builds the substitution map for one step. The lyric lookup
// costs a query, so it only runs when the step actually references {{letra}}.
func (e *Engine) templateData(ctx context.Context, lead *store.Lead, step store.SequenceStep) map[string]string {
	data := map[string]string{
		"nombre":   lead.FirstName(),
		"telefono": lead.Phone,
	}
	needsLyrics := References(step.Content, "letra")
	for _, value := range step.Params {
		if References(value, "letra") {
			needsLyrics = true
		}
	}
	if needsLyrics {
		lyricsText, err := e.store.LatestLyricForLead(ctx, lead.ID)
		if err != nil {
			e.logger.Warn("resolve lyric placeholder", logging.Error(err))
		}
		data["letra"] = lyricsText
	}
	return data
}

// HealthCheck implements stage.Processor.
func (e *Engine) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(e.cfg.WhatsApp.BaseURL) == "" {
		return stage.Unhealthy(e.Name(), "whatsapp gateway not configured")
	}
	return stage.Healthy(e.Name())
}
