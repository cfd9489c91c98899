package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/llm"
)

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal completion body: %v", err)
	}
	return body
}

func TestCompleteReturnsContent(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionBody(t, "Verso uno\nVerso dos"))
	}))
	defer server.Close()

	client := llm.NewClient(llm.Config{
		APIKey:  "key",
		BaseURL: server.URL,
		Model:   "test-model",
	})

	content, err := client.Complete(context.Background(), "Eres un compositor.", "Escribe una cancion.")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if content != "Verso uno\nVerso dos" {
		t.Fatalf("unexpected content: %q", content)
	}
	if gotAuth != "Bearer key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		w.Write(completionBody(t, "listo"))
	}))
	defer server.Close()

	client := llm.NewClient(llm.Config{APIKey: "key", BaseURL: server.URL, Model: "m"},
		llm.WithRetryBackoff(time.Millisecond, time.Millisecond),
		llm.WithSleeper(func(time.Duration) {}),
	)

	content, err := client.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if content != "listo" {
		t.Fatalf("unexpected content: %q", content)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := llm.NewClient(llm.Config{APIKey: "key", BaseURL: server.URL, Model: "m"},
		llm.WithSleeper(func(time.Duration) {}),
	)

	_, err := client.Complete(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
	if services.IsRetryable(err) {
		t.Fatalf("expected 400 tagged non-retryable, got %v", err)
	}
}

func TestCompleteTagsAuthFailuresAsConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := llm.NewClient(llm.Config{APIKey: "key", BaseURL: server.URL, Model: "m"},
		llm.WithSleeper(func(time.Duration) {}),
	)

	_, err := client.Complete(context.Background(), "sys", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for 401, got %v", err)
	}
}

func TestCompleteRequiresPrompts(t *testing.T) {
	client := llm.NewClient(llm.Config{APIKey: "key", Model: "m"})
	if _, err := client.Complete(context.Background(), "", "user"); err == nil {
		t.Fatal("expected error for missing system prompt")
	}
	if _, err := client.Complete(context.Background(), "sys", ""); err == nil {
		t.Fatal("expected error for missing user prompt")
	}
}

func TestDecodeJSONHandlesCodeFences(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"plain", `{"title":"Mi Cancion"}`},
		{"fenced", "```json\n{\"title\":\"Mi Cancion\"}\n```"},
		{"prose wrapped", "Here you go: {\"title\":\"Mi Cancion\"} enjoy!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var parsed struct {
				Title string `json:"title"`
			}
			if err := llm.DecodeJSON(tc.payload, &parsed); err != nil {
				t.Fatalf("DecodeJSON failed: %v", err)
			}
			if parsed.Title != "Mi Cancion" {
				t.Fatalf("unexpected title: %q", parsed.Title)
			}
		})
	}
}
