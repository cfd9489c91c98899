package lyrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/lyrics"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/sequence"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/testsupport"
)

type sentMessage struct {
	kind  string
	phone string
	body  string
	media string
}

type fakeMessenger struct {
	sent []sentMessage
}

func (f *fakeMessenger) SendText(_ context.Context, phone, text string) error {
	f.sent = append(f.sent, sentMessage{kind: "text", phone: phone, body: text})
	return nil
}

func (f *fakeMessenger) SendAudio(_ context.Context, phone, mediaURL string) error {
	f.sent = append(f.sent, sentMessage{kind: "audio", phone: phone, media: mediaURL})
	return nil
}

func (f *fakeMessenger) SendVideo(_ context.Context, phone, mediaURL, _ string) error {
	f.sent = append(f.sent, sentMessage{kind: "video", phone: phone, media: mediaURL})
	return nil
}

func readyLyric(t *testing.T, st *store.Store, lead *store.Lead, generatedAt time.Time) *store.LyricRequest {
	t.Helper()
	req := testsupport.NewLyricRequest(t, st, lead)
	if err := st.MarkLyricReady(context.Background(), req.ID, "Verso uno\nCoro", generatedAt); err != nil {
		t.Fatalf("MarkLyricReady failed: %v", err)
	}
	return req
}

func TestDelivererWaitsForDeliveryDelay(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	lead := testsupport.NewLead(t, st, "5215512345678", "Maria Lopez")

	generatedAt := time.Now()
	req := readyLyric(t, st, lead, generatedAt)

	messenger := &fakeMessenger{}
	// Just under the threshold: nothing may happen.
	now := generatedAt.Add(time.Duration(cfg.Pipeline.DeliveryDelayMins)*time.Minute - time.Second)
	deliverer := lyrics.NewDelivererWithDependencies(cfg, st, logging.NewNop(), messenger,
		notifications.NewService(cfg),
		lyrics.WithDelivererClock(func() time.Time { return now }))

	if err := deliverer.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(messenger.sent) != 0 {
		t.Fatalf("expected no sends before the delay elapses, got %d", len(messenger.sent))
	}
	fetched, err := st.LyricRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("LyricRequestByID failed: %v", err)
	}
	if fetched.Status != store.LyricStatusReady {
		t.Fatalf("expected record untouched, got %s", fetched.Status)
	}

	// Past the threshold the full bundle goes out.
	now = generatedAt.Add(time.Duration(cfg.Pipeline.DeliveryDelayMins)*time.Minute + time.Second)
	if err := deliverer.Tick(ctx); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	if len(messenger.sent) == 0 {
		t.Fatal("expected delivery after the delay elapses")
	}
	fetched, err = st.LyricRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("LyricRequestByID failed: %v", err)
	}
	if fetched.Status != store.LyricStatusSent {
		t.Fatalf("expected sent, got %s", fetched.Status)
	}
}

func TestDelivererSendsBundleAndEnqueuesFollowUp(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDeliveryDelay(0))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	lead := testsupport.NewLead(t, st, "5215512345678", "Maria Lopez")
	readyLyric(t, st, lead, time.Now().Add(-time.Minute))

	messenger := &fakeMessenger{}
	deliverer := lyrics.NewDelivererWithDependencies(cfg, st, logging.NewNop(), messenger,
		notifications.NewService(cfg))

	if err := deliverer.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	// Greeting, lyric, intro audio, explainer video, promo text.
	if len(messenger.sent) != 5 {
		t.Fatalf("expected five sends, got %d: %+v", len(messenger.sent), messenger.sent)
	}
	if messenger.sent[0].kind != "text" || messenger.sent[0].body == "" {
		t.Fatalf("expected greeting text first, got %+v", messenger.sent[0])
	}
	if messenger.sent[1].body != "Verso uno\nCoro" {
		t.Fatalf("expected lyric text second, got %+v", messenger.sent[1])
	}
	if messenger.sent[2].kind != "audio" || messenger.sent[3].kind != "video" {
		t.Fatalf("expected audio then video, got %+v", messenger.sent)
	}

	updated, err := st.LeadByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("LeadByID failed: %v", err)
	}
	if !updated.HasTag(cfg.Assets.DeliveryTag) {
		t.Fatalf("expected delivery tag on lead, got %v", updated.Tags)
	}
	if len(updated.Sequences) != 1 || updated.Sequences[0].Trigger != sequence.TriggerLyricDelivered {
		t.Fatalf("expected lyric follow-up sequence, got %+v", updated.Sequences)
	}

	messages, err := st.MessagesForLead(ctx, lead.ID)
	if err != nil {
		t.Fatalf("MessagesForLead failed: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("expected five logged messages, got %d", len(messages))
	}
}

func TestDelivererSkipsInvalidPhone(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDeliveryDelay(0))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lead, err := st.CreateLead(ctx, "123", "Maria", "test")
	if err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}
	req := readyLyric(t, st, lead, time.Now().Add(-time.Minute))

	messenger := &fakeMessenger{}
	deliverer := lyrics.NewDelivererWithDependencies(cfg, st, logging.NewNop(), messenger,
		notifications.NewService(cfg))

	if err := deliverer.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(messenger.sent) != 0 {
		t.Fatalf("expected no sends to invalid phone, got %d", len(messenger.sent))
	}
	fetched, err := st.LyricRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("LyricRequestByID failed: %v", err)
	}
	if fetched.Status != store.LyricStatusReady {
		t.Fatalf("expected record left ready, got %s", fetched.Status)
	}
}
