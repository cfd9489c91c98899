package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
)

type captured struct {
	title    string
	priority string
	body     string
}

func newCapturingService(t *testing.T, mutate func(*config.Config)) (notifications.Service, *[]captured) {
	t.Helper()
	var requests []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Errors = true
	cfg.Notifications.Deliveries = true
	if mutate != nil {
		mutate(&cfg)
	}
	return notifications.NewService(&cfg), &requests
}

func TestNotifyStageErrorSendsHighPriority(t *testing.T) {
	svc, requests := newCapturingService(t, nil)

	err := svc.NotifyStageError(context.Background(), "launch", "req-1", errors.New("provider down"))
	if err != nil {
		t.Fatalf("NotifyStageError failed: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	got := (*requests)[0]
	if got.priority != "high" {
		t.Fatalf("expected high priority, got %q", got.priority)
	}
	if !strings.Contains(got.body, "launch") || !strings.Contains(got.body, "provider down") {
		t.Fatalf("unexpected body: %q", got.body)
	}
}

func TestNotifySongDeliveredMasksPhone(t *testing.T) {
	svc, requests := newCapturingService(t, nil)

	if err := svc.NotifySongDelivered(context.Background(), "5215512345678", "https://x/clip.mp3"); err != nil {
		t.Fatalf("NotifySongDelivered failed: %v", err)
	}
	body := (*requests)[0].body
	if strings.Contains(body, "5215512345678") {
		t.Fatalf("expected masked phone, got %q", body)
	}
	if !strings.Contains(body, "78") || !strings.Contains(body, "5215") {
		t.Fatalf("expected partial digits preserved, got %q", body)
	}
}

func TestDeliveryNotificationsCanBeDisabled(t *testing.T) {
	svc, requests := newCapturingService(t, func(cfg *config.Config) {
		cfg.Notifications.Deliveries = false
	})

	if err := svc.NotifyLyricDelivered(context.Background(), "5215512345678"); err != nil {
		t.Fatalf("NotifyLyricDelivered failed: %v", err)
	}
	if len(*requests) != 0 {
		t.Fatalf("expected no requests when deliveries disabled, got %d", len(*requests))
	}
}

func TestNoTopicMeansNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)

	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop TestNotification failed: %v", err)
	}
	if err := svc.NotifyStuckReclaimed(context.Background(), 3); err != nil {
		t.Fatalf("noop NotifyStuckReclaimed failed: %v", err)
	}
}
