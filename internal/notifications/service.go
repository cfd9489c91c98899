package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
)

const userAgent = "Cantalab-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyLeadCreated(ctx context.Context, phone, source string) error
	NotifyLyricDelivered(ctx context.Context, phone string) error
	NotifySongDelivered(ctx context.Context, phone, clipURL string) error
	NotifyStageError(ctx context.Context, stage, recordID string, err error) error
	NotifyStuckReclaimed(ctx context.Context, count int64) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		sendDeliveries:  cfg.Notifications.Deliveries,
		sendStageErrors: cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	sendDeliveries  bool
	sendStageErrors bool
}

func (n *ntfyService) NotifyLeadCreated(ctx context.Context, phone, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		source = "unknown"
	}
	data := payload{
		title:   "Cantalab - New Lead",
		message: fmt.Sprintf("New lead %s via %s", maskPhone(phone), source),
		tags:    []string{"cantalab", "lead", "created"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyLyricDelivered(ctx context.Context, phone string) error {
	if !n.sendDeliveries {
		return nil
	}
	data := payload{
		title:   "Cantalab - Lyric Delivered",
		message: fmt.Sprintf("Lyric delivered to %s", maskPhone(phone)),
		tags:    []string{"cantalab", "lyric", "delivered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySongDelivered(ctx context.Context, phone, clipURL string) error {
	if !n.sendDeliveries {
		return nil
	}
	message := fmt.Sprintf("Song clip delivered to %s", maskPhone(phone))
	if clipURL = strings.TrimSpace(clipURL); clipURL != "" {
		message += "\n" + clipURL
	}
	data := payload{
		title:   "Cantalab - Song Delivered",
		message: message,
		tags:    []string{"cantalab", "song", "delivered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStageError(ctx context.Context, stage, recordID string, err error) error {
	if !n.sendStageErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Stage ")
	builder.WriteString(strings.TrimSpace(stage))
	builder.WriteString(" failed")
	if recordID = strings.TrimSpace(recordID); recordID != "" {
		builder.WriteString(" for ")
		builder.WriteString(recordID)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Cantalab - Stage Error",
		message:  builder.String(),
		tags:     []string{"cantalab", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStuckReclaimed(ctx context.Context, count int64) error {
	if count <= 0 {
		return nil
	}
	data := payload{
		title:   "Cantalab - Stuck Tasks Reclaimed",
		message: fmt.Sprintf("Reaper returned %d stuck generation task(s) to the queue", count),
		tags:    []string{"cantalab", "reaper"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Cantalab - Test",
		message:  "Notification system test",
		tags:     []string{"cantalab", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// maskPhone hides the middle digits so alerts don't leak full numbers into
// notification history.
func maskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 6 {
		return phone
	}
	return phone[:4] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-2:]
}

type noopService struct{}

func (noopService) NotifyLeadCreated(context.Context, string, string) error       { return nil }
func (noopService) NotifyLyricDelivered(context.Context, string) error            { return nil }
func (noopService) NotifySongDelivered(context.Context, string, string) error     { return nil }
func (noopService) NotifyStageError(context.Context, string, string, error) error { return nil }
func (noopService) NotifyStuckReclaimed(context.Context, int64) error             { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
