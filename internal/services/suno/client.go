package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultModel       = "V4"

	// The gateway truncates long titles server-side; enforce the limit here
	// so requests stay deterministic.
	maxTitleLength = 30
)

// Config captures the runtime settings required to talk to the gateway.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client wraps the Suno generation endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a Suno client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	return client
}

// Submission describes one custom-mode generation task.
type Submission struct {
	Title       string
	Style       string
	Lyrics      string
	CallbackURL string
}

type generateRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallbackURL  string `json:"callBackUrl"`
}

type generateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// Submit places a generation task and returns the provider task id. The
// title is truncated to the provider limit before submission.
func (c *Client) Submit(ctx context.Context, sub Submission) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("suno submit: api key required")
	}
	if c.cfg.BaseURL == "" {
		return "", errors.New("suno submit: base url required")
	}
	if strings.TrimSpace(sub.Lyrics) == "" {
		return "", errors.New("suno submit: lyrics required")
	}
	if strings.TrimSpace(sub.CallbackURL) == "" {
		return "", errors.New("suno submit: callback url required")
	}

	payload := generateRequest{
		Prompt:      sub.Lyrics,
		Style:       strings.TrimSpace(sub.Style),
		Title:       TruncateTitle(sub.Title),
		CustomMode:  true,
		Model:       c.cfg.Model,
		CallbackURL: sub.CallbackURL,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("suno submit: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("suno submit: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("suno submit: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("suno submit: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("suno submit: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("suno submit: decode response: %w", err)
	}
	if decoded.Code != 200 {
		return "", fmt.Errorf("suno submit: provider code %d: %s", decoded.Code, strings.TrimSpace(decoded.Msg))
	}
	taskID := strings.TrimSpace(decoded.Data.TaskID)
	if taskID == "" {
		return "", errors.New("suno submit: provider response missing task id")
	}
	return taskID, nil
}

// TruncateTitle trims the title to the provider's length limit without
// splitting a multi-byte rune.
func TruncateTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= maxTitleLength {
		return title
	}
	return strings.TrimSpace(string(runes[:maxTitleLength]))
}
