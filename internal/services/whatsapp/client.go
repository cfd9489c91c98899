package whatsapp

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

const defaultHTTPTimeout = 20 * time.Second

// Config captures the runtime settings required to talk to the gateway.
type Config struct {
	BaseURL        string
	APIKey         string
	Instance       string
	TimeoutSeconds int
}

// Client wraps the WhatsApp gateway message endpoints.
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

// NewClient constructs a gateway client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			Instance:       strings.TrimSpace(cfg.Instance),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type sendRequest struct {
	Instance string `json:"instance,omitempty"`
	To       string `json:"to"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
	Caption  string `json:"caption,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type sendResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, phone, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("whatsapp send: empty text")
	}
	return c.send(ctx, sendRequest{To: phone, Type: "text", Text: text})
}

// SendAudio delivers an audio message by URL.
func (c *Client) SendAudio(ctx context.Context, phone, mediaURL string) error {
	if strings.TrimSpace(mediaURL) == "" {
		return errors.New("whatsapp send: empty audio url")
	}
	return c.send(ctx, sendRequest{To: phone, Type: "audio", MediaURL: mediaURL})
}

// SendVideo delivers a video message by URL with an optional caption.
func (c *Client) SendVideo(ctx context.Context, phone, mediaURL, caption string) error {
	if strings.TrimSpace(mediaURL) == "" {
		return errors.New("whatsapp send: empty video url")
	}
	return c.send(ctx, sendRequest{To: phone, Type: "video", MediaURL: mediaURL, Caption: caption})
}

// SendDocument delivers a document message by URL with a display filename.
func (c *Client) SendDocument(ctx context.Context, phone, mediaURL, fileName string) error {
	if strings.TrimSpace(mediaURL) == "" {
		return errors.New("whatsapp send: empty document url")
	}
	return c.send(ctx, sendRequest{To: phone, Type: "document", MediaURL: mediaURL, FileName: fileName})
}

func (c *Client) send(ctx context.Context, payload sendRequest) error {
	if c.cfg.BaseURL == "" {
		return errors.New("whatsapp send: base url required")
	}
	if err := ValidatePhone(payload.To); err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	payload.Instance = c.cfg.Instance

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp send: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("whatsapp send: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("whatsapp send: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("whatsapp send: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded sendResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Some gateway builds reply with an empty body on success.
		if len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		return fmt.Errorf("whatsapp send: decode response: %w", err)
	}
	if decoded.Error != "" {
		return fmt.Errorf("whatsapp send: gateway error: %s", decoded.Error)
	}
	return nil
}

// HealthCheck verifies the gateway is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return errors.New("whatsapp health: base url required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("whatsapp health: new request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp health: http error: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("whatsapp health: http %d", resp.StatusCode)
	}
	return nil
}
