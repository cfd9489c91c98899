package sequence_test

import (
	"context"
	"testing"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/sequence"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/testsupport"
)

type sentMessage struct {
	kind  string
	phone string
	body  string
}

type fakeMessenger struct {
	sent []sentMessage
	fail bool
}

func (f *fakeMessenger) record(kind, phone, body string) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, sentMessage{kind: kind, phone: phone, body: body})
	return nil
}

func (f *fakeMessenger) SendText(_ context.Context, phone, text string) error {
	return f.record("text", phone, text)
}

func (f *fakeMessenger) SendAudio(_ context.Context, phone, mediaURL string) error {
	return f.record("audio", phone, mediaURL)
}

func (f *fakeMessenger) SendVideo(_ context.Context, phone, mediaURL, _ string) error {
	return f.record("video", phone, mediaURL)
}

func (f *fakeMessenger) SendDocument(_ context.Context, phone, mediaURL, _ string) error {
	return f.record("document", phone, mediaURL)
}

func TestEngineSendsDueStepsOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lead := testsupport.NewLead(t, st, "5215512345678", "Maria Lopez")
	if err := st.PutSequenceDefinition(ctx, &store.SequenceDefinition{
		Trigger: sequence.TriggerNewLead,
		Steps: []store.SequenceStep{
			{Type: store.KindText, Content: "Hola {{nombre}}", DelayMinutes: 0},
			{Type: store.KindText, Content: "Seguimos aqui", DelayMinutes: 5},
		},
	}); err != nil {
		t.Fatalf("PutSequenceDefinition failed: %v", err)
	}

	start := time.Now().Add(-4 * time.Minute)
	if _, err := st.EnqueueSequence(ctx, lead.ID, sequence.TriggerNewLead, start); err != nil {
		t.Fatalf("EnqueueSequence failed: %v", err)
	}

	messenger := &fakeMessenger{}
	// One second before the second step is due.
	now := start.Add(5*time.Minute - time.Second)
	engine := sequence.NewEngineWithDependencies(cfg, st, logging.NewNop(), messenger,
		sequence.WithEngineClock(func() time.Time { return now }))

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("expected only the first step, got %d sends", len(messenger.sent))
	}
	if messenger.sent[0].body != "Hola Maria" {
		t.Fatalf("expected greeting with first name, got %q", messenger.sent[0].body)
	}

	// Crossing the boundary makes the second step due.
	now = start.Add(5*time.Minute + time.Second)
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	if len(messenger.sent) != 2 {
		t.Fatalf("expected both steps after boundary, got %d sends", len(messenger.sent))
	}

	// All instances finished, so the lead's sequence list is pruned.
	updated, err := st.LeadByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("LeadByID failed: %v", err)
	}
	if len(updated.Sequences) != 0 {
		t.Fatalf("expected pruned sequences, got %+v", updated.Sequences)
	}

	messages, err := st.MessagesForLead(ctx, lead.ID)
	if err != nil {
		t.Fatalf("MessagesForLead failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected two logged messages, got %d", len(messages))
	}
}

func TestEngineResolvesLyricPlaceholderLazily(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lead := testsupport.NewLead(t, st, "5215512345678", "Maria")
	if _, err := st.AppendLyricHistory(ctx, lead.ID, store.LyricRef{
		RequestID: "req-1",
		Lyrics:    "Verso uno del corazon",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendLyricHistory failed: %v", err)
	}
	if err := st.PutSequenceDefinition(ctx, &store.SequenceDefinition{
		Trigger: sequence.TriggerLyricDelivered,
		Steps: []store.SequenceStep{
			{Type: store.KindText, Content: "Tu letra:\n{{letra}}", DelayMinutes: 0},
		},
	}); err != nil {
		t.Fatalf("PutSequenceDefinition failed: %v", err)
	}
	if _, err := st.EnqueueSequence(ctx, lead.ID, sequence.TriggerLyricDelivered, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("EnqueueSequence failed: %v", err)
	}

	messenger := &fakeMessenger{}
	engine := sequence.NewEngineWithDependencies(cfg, st, logging.NewNop(), messenger)
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(messenger.sent))
	}
	if messenger.sent[0].body != "Tu letra:\nVerso uno del corazon" {
		t.Fatalf("unexpected rendered body: %q", messenger.sent[0].body)
	}
}

func TestEngineKeepsStepOnSendFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lead := testsupport.NewLead(t, st, "5215512345678", "Maria")
	if err := st.PutSequenceDefinition(ctx, &store.SequenceDefinition{
		Trigger: sequence.TriggerNewLead,
		Steps: []store.SequenceStep{
			{Type: store.KindText, Content: "Hola", DelayMinutes: 0},
		},
	}); err != nil {
		t.Fatalf("PutSequenceDefinition failed: %v", err)
	}
	if _, err := st.EnqueueSequence(ctx, lead.ID, sequence.TriggerNewLead, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("EnqueueSequence failed: %v", err)
	}

	messenger := &fakeMessenger{fail: true}
	engine := sequence.NewEngineWithDependencies(cfg, st, logging.NewNop(), messenger)
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	updated, err := st.LeadByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("LeadByID failed: %v", err)
	}
	if len(updated.Sequences) != 1 || updated.Sequences[0].Completed || updated.Sequences[0].StepIndex != 0 {
		t.Fatalf("expected step retained for retry, got %+v", updated.Sequences)
	}

	// The gateway recovers and the step goes out on the next tick.
	messenger.fail = false
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("expected the step to send after recovery, got %d", len(messenger.sent))
	}
}

func TestEngineWaitsForMissingDefinition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	// The instance is enqueued before anyone has created the definition,
	// as happens when NuevoLead fires on the very first inbound message.
	lead := testsupport.NewLead(t, st, "5215512345678", "Maria")
	if _, err := st.EnqueueSequence(ctx, lead.ID, sequence.TriggerNewLead, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("EnqueueSequence failed: %v", err)
	}

	messenger := &fakeMessenger{}
	engine := sequence.NewEngineWithDependencies(cfg, st, logging.NewNop(), messenger)
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(messenger.sent) != 0 {
		t.Fatalf("expected no sends without a definition, got %d", len(messenger.sent))
	}

	updated, err := st.LeadByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("LeadByID failed: %v", err)
	}
	if len(updated.Sequences) != 1 || updated.Sequences[0].Completed || updated.Sequences[0].StepIndex != 0 {
		t.Fatalf("expected the instance to survive untouched, got %+v", updated.Sequences)
	}

	// Once an operator registers the definition, the waiting instance sends.
	if err := st.PutSequenceDefinition(ctx, &store.SequenceDefinition{
		Trigger: sequence.TriggerNewLead,
		Steps: []store.SequenceStep{
			{Type: store.KindText, Content: "Hola {{nombre}}", DelayMinutes: 0},
		},
	}); err != nil {
		t.Fatalf("PutSequenceDefinition failed: %v", err)
	}
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("expected the step to send after registration, got %d", len(messenger.sent))
	}
}

func TestEngineCompletesInstanceWithEmptyDefinition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lead := testsupport.NewLead(t, st, "5215512345678", "Maria")
	if err := st.PutSequenceDefinition(ctx, &store.SequenceDefinition{
		Trigger: "RetiredTrigger",
	}); err != nil {
		t.Fatalf("PutSequenceDefinition failed: %v", err)
	}
	if _, err := st.EnqueueSequence(ctx, lead.ID, "RetiredTrigger", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("EnqueueSequence failed: %v", err)
	}

	messenger := &fakeMessenger{}
	engine := sequence.NewEngineWithDependencies(cfg, st, logging.NewNop(), messenger)
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(messenger.sent) != 0 {
		t.Fatalf("expected no sends, got %d", len(messenger.sent))
	}

	updated, err := st.LeadByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("LeadByID failed: %v", err)
	}
	if len(updated.Sequences) != 0 {
		t.Fatalf("expected pruned sequences, got %+v", updated.Sequences)
	}
}

func TestEngineSendsOneStepPerTick(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lead := testsupport.NewLead(t, st, "5215512345678", "Maria")
	if err := st.PutSequenceDefinition(ctx, &store.SequenceDefinition{
		Trigger: sequence.TriggerNewLead,
		Steps: []store.SequenceStep{
			{Type: store.KindText, Content: "Paso uno", DelayMinutes: 0},
			{Type: store.KindText, Content: "Paso dos", DelayMinutes: 1},
		},
	}); err != nil {
		t.Fatalf("PutSequenceDefinition failed: %v", err)
	}
	// Both delays elapsed long ago; the backlog still drains one per tick.
	if _, err := st.EnqueueSequence(ctx, lead.ID, sequence.TriggerNewLead, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("EnqueueSequence failed: %v", err)
	}

	messenger := &fakeMessenger{}
	engine := sequence.NewEngineWithDependencies(cfg, st, logging.NewNop(), messenger)
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("expected one send on the first tick, got %d", len(messenger.sent))
	}
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	if len(messenger.sent) != 2 || messenger.sent[1].body != "Paso dos" {
		t.Fatalf("expected the second step on the next tick, got %+v", messenger.sent)
	}
}
