package music_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/music"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/testsupport"
)

type fakeCompleter struct {
	responses []string
	err       error
	prompts   []string
}

func (f *fakeCompleter) next(userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	response := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return response, nil
}

func (f *fakeCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	return f.next(userPrompt)
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, userPrompt string) (string, error) {
	return f.next(userPrompt)
}

func TestLyricWriterAdvancesToPromptStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	lead := testsupport.NewLead(t, st, "5215512345678", "Maria Lopez")
	req := testsupport.NewMusicRequest(t, st, lead)

	completer := &fakeCompleter{responses: []string{"Verso uno\nCoro\nVerso dos"}}
	writer := music.NewLyricWriterWithDependencies(cfg, st, logging.NewNop(), completer, notifications.NewService(cfg))

	if err := writer.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	fetched, err := st.MusicRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("MusicRequestByID failed: %v", err)
	}
	if fetched.Status != store.MusicStatusNoPrompt {
		t.Fatalf("expected no-prompt, got %s", fetched.Status)
	}
	if fetched.Lyrics != "Verso uno\nCoro\nVerso dos" {
		t.Fatalf("unexpected lyrics: %q", fetched.Lyrics)
	}

	if len(completer.prompts) != 1 {
		t.Fatalf("expected one completion call, got %d", len(completer.prompts))
	}
	prompt := completer.prompts[0]
	for _, want := range []string{"Maria Lopez", "ranchera", "Vicente Fernandez", "county fair"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to include %q, got:\n%s", want, prompt)
		}
	}
}

func TestLyricWriterSchedulesRetryWithBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	lead := testsupport.NewLead(t, st, "5215512345678", "Maria")
	req := testsupport.NewMusicRequest(t, st, lead)

	completer := &fakeCompleter{err: errors.New("model unavailable")}
	writer := music.NewLyricWriterWithDependencies(cfg, st, logging.NewNop(), completer, notifications.NewService(cfg))

	if err := writer.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	fetched, err := st.MusicRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("MusicRequestByID failed: %v", err)
	}
	if fetched.Status != store.MusicStatusNoLyric || fetched.Attempts != 1 {
		t.Fatalf("expected no-lyric with one attempt, got %s/%d", fetched.Status, fetched.Attempts)
	}
	if fetched.NextAttemptAt.IsZero() {
		t.Fatal("expected a scheduled retry")
	}

	// The backoff window keeps the record out of the next scan.
	if err := writer.Tick(ctx); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("expected record to wait out its backoff, got %d calls", len(completer.prompts))
	}
}

func TestLyricWriterParksNonRetryableFailuresImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	lead := testsupport.NewLead(t, st, "5215512345678", "Maria")
	req := testsupport.NewMusicRequest(t, st, lead)

	// A validation-tagged failure will never succeed on retry, so the record
	// goes terminal on the first attempt instead of burning the cap.
	completer := &fakeCompleter{err: services.Wrap(services.ErrValidation, "llm", "complete", "prompt rejected", nil)}
	writer := music.NewLyricWriterWithDependencies(cfg, st, logging.NewNop(), completer, notifications.NewService(cfg))

	if err := writer.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	fetched, err := st.MusicRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("MusicRequestByID failed: %v", err)
	}
	if fetched.Status != store.MusicStatusErrorLyric {
		t.Fatalf("expected error-lyric on first attempt, got %s", fetched.Status)
	}
	if !strings.Contains(fetched.ErrorMessage, "prompt rejected") {
		t.Fatalf("expected cause recorded, got %q", fetched.ErrorMessage)
	}
}

func TestLyricWriterFailsTerminallyAtAttemptCap(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	lead := testsupport.NewLead(t, st, "5215512345678", "Maria")
	req := testsupport.NewMusicRequest(t, st, lead)

	completer := &fakeCompleter{err: errors.New("model unavailable")}
	writer := music.NewLyricWriterWithDependencies(cfg, st, logging.NewNop(), completer, notifications.NewService(cfg))

	if err := writer.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	fetched, err := st.MusicRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("MusicRequestByID failed: %v", err)
	}
	if fetched.Status != store.MusicStatusErrorLyric {
		t.Fatalf("expected error-lyric, got %s", fetched.Status)
	}
	if fetched.ErrorMessage == "" {
		t.Fatal("expected error message recorded")
	}
}
