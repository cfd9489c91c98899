package lyrics

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/sequence"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/whatsapp"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

// Messenger sends outbound WhatsApp messages.
type Messenger interface {
	SendText(ctx context.Context, phone, text string) error
	SendAudio(ctx context.Context, phone, mediaURL string) error
	SendVideo(ctx context.Context, phone, mediaURL, caption string) error
}

// Deliverer sends finished lyrics and their companion messages.
type Deliverer struct {
	store     *store.Store
	cfg       *config.Config
	messenger Messenger
	logger    *slog.Logger
	notifier  notifications.Service
	now       func() time.Time
}

// DelivererOption customizes the processor.
type DelivererOption func(*Deliverer)

// WithDelivererClock overrides the clock (used in tests).
func WithDelivererClock(now func() time.Time) DelivererOption {
	return func(d *Deliverer) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDeliverer constructs the delivery processor using default dependencies.
func NewDeliverer(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...DelivererOption) *Deliverer {
	client := whatsapp.NewClient(whatsapp.Config{
		BaseURL:        cfg.WhatsApp.BaseURL,
		APIKey:         cfg.WhatsApp.APIKey,
		Instance:       cfg.WhatsApp.Instance,
		TimeoutSeconds: cfg.WhatsApp.TimeoutSeconds,
	})
	return NewDelivererWithDependencies(cfg, st, logger, client, notifications.NewService(cfg), opts...)
}

// NewDelivererWithDependencies allows injecting collaborators (used in tests).
func NewDelivererWithDependencies(cfg *config.Config, st *store.Store, logger *slog.Logger, messenger Messenger, notifier notifications.Service, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		store:     st,
		cfg:       cfg,
		messenger: messenger,
		logger:    logging.NewComponentLogger(logger, "lyric-deliver"),
		notifier:  notifier,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements stage.Processor.
func (d *Deliverer) Name() string { return "lyric-deliver" }

// Tick scans ready lyrics and delivers every request whose delay has passed.
func (d *Deliverer) Tick(ctx context.Context) error {
	ready, err := d.store.LyricRequestsByStatus(ctx, store.LyricStatusReady)
	if err != nil {
		return err
	}
	deadline := d.now().Add(-time.Duration(d.cfg.Pipeline.DeliveryDelayMins) * time.Minute)
	for _, req := range ready {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The delay runs from generation so a freshly written lyric never
		// lands immediately after the intake conversation.
		if req.GeneratedAt.After(deadline) {
			continue
		}
		d.deliverOne(ctx, req)
	}
	return nil
}

func (d *Deliverer) deliverOne(ctx context.Context, req *store.LyricRequest) {
	logger := d.logger.With(
		logging.String(logging.FieldRecordID, req.ID),
		logging.String(logging.FieldLeadID, req.LeadID),
	)

	lead, err := d.store.LeadByID(ctx, req.LeadID)
	if err != nil {
		logger.Error("load lead for delivery", logging.Error(err))
		return
	}
	if err := whatsapp.ValidatePhone(lead.Phone); err != nil {
		logger.Warn("skipping delivery to invalid phone", logging.Error(err))
		return
	}

	greeting := strings.ReplaceAll(d.cfg.Assets.LyricGreeting, "{{nombre}}", lead.FirstName())
	sends := []struct {
		kind     string
		body     string
		mediaURL string
	}{
		{store.KindText, greeting, ""},
		{store.KindText, req.Lyrics, ""},
		{store.KindAudio, "", d.cfg.Assets.IntroAudioURL},
		{store.KindVideo, "", d.cfg.Assets.ExplainerVideo},
		{store.KindText, d.cfg.Assets.PromoText, ""},
	}

	for _, send := range sends {
		if send.body == "" && send.mediaURL == "" {
			continue
		}
		var sendErr error
		switch send.kind {
		case store.KindText:
			sendErr = d.messenger.SendText(ctx, lead.Phone, send.body)
		case store.KindAudio:
			sendErr = d.messenger.SendAudio(ctx, lead.Phone, send.mediaURL)
		case store.KindVideo:
			sendErr = d.messenger.SendVideo(ctx, lead.Phone, send.mediaURL, "")
		}
		if sendErr != nil {
			// Leave the record ready-to-send; the next tick retries the
			// whole bundle.
			logger.Error("send lyric message", logging.String("kind", send.kind), logging.Error(sendErr))
			_ = d.notifier.NotifyStageError(ctx, d.Name(), req.ID, sendErr)
			return
		}
		if err := d.store.AppendMessage(ctx, &store.Message{
			LeadID:   lead.ID,
			Author:   store.AuthorBusiness,
			Kind:     send.kind,
			Body:     send.body,
			MediaURL: send.mediaURL,
		}); err != nil {
			logger.Warn("append delivery message", logging.Error(err))
		}
	}

	if tag := strings.TrimSpace(d.cfg.Assets.DeliveryTag); tag != "" {
		if _, err := d.store.AddTag(ctx, lead.ID, tag); err != nil {
			logger.Warn("tag lead after delivery", logging.Error(err))
		}
	}
	if err := d.store.MarkLyricSent(ctx, req.ID); err != nil {
		logger.Error("mark lyric sent", logging.Error(err))
		return
	}
	if _, err := d.store.EnqueueSequence(ctx, lead.ID, sequence.TriggerLyricDelivered, d.now()); err != nil {
		logger.Warn("enqueue lyric follow-up sequence", logging.Error(err))
	}
	_ = d.notifier.NotifyLyricDelivered(ctx, lead.Phone)
	logger.Info("lyric delivered", logging.String(logging.FieldPhone, lead.Phone))
}

// HealthCheck implements stage.Processor.
func (d *Deliverer) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(d.cfg.WhatsApp.BaseURL) == "" {
		return stage.Unhealthy(d.Name(), "whatsapp gateway not configured")
	}
	return stage.Healthy(d.Name())
}
