package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/daemon"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

// apiClient wraps the cantalabd HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// reachable reports whether a daemon answers on the configured address.
func (c *apiClient) reachable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var status daemon.Status
	return c.do(ctx, http.MethodGet, "/api/status", nil, &status) == nil
}

func (c *apiClient) Status(ctx context.Context) (*daemon.Status, error) {
	var status daemon.Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

type queueCounts struct {
	Lyrics map[store.LyricStatus]int `json:"lyrics"`
	Music  map[store.MusicStatus]int `json:"music"`
}

func (c *apiClient) Queue(ctx context.Context) (*queueCounts, error) {
	var counts queueCounts
	if err := c.do(ctx, http.MethodGet, "/api/queue", nil, &counts); err != nil {
		return nil, err
	}
	return &counts, nil
}

func (c *apiClient) ListLyrics(ctx context.Context, statuses []string) ([]daemon.LyricItem, error) {
	var resp struct {
		Items []daemon.LyricItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/queue/lyrics"+statusQuery(statuses), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *apiClient) ListMusic(ctx context.Context, statuses []string) ([]daemon.MusicItem, error) {
	var resp struct {
		Items []daemon.MusicItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/queue/music"+statusQuery(statuses), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func statusQuery(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}
	values := url.Values{}
	for _, status := range statuses {
		values.Add("status", status)
	}
	return "?" + values.Encode()
}

type retryResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *apiClient) RetryLyric(ctx context.Context, id string) (*retryResponse, error) {
	var resp retryResponse
	path := "/api/queue/lyrics/" + url.PathEscape(id) + "/retry"
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) RetryMusic(ctx context.Context, id string) (*retryResponse, error) {
	var resp retryResponse
	path := "/api/queue/music/" + url.PathEscape(id) + "/retry"
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type lyricIntake struct {
	Phone       string `json:"phone"`
	Name        string `json:"name,omitempty"`
	Purpose     string `json:"purpose"`
	IncludeName string `json:"include_name,omitempty"`
	Anecdotes   string `json:"anecdotes,omitempty"`
}

type musicIntake struct {
	Phone     string `json:"phone"`
	Name      string `json:"name,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Artist    string `json:"artist,omitempty"`
	Genre     string `json:"genre"`
	Voice     string `json:"voice,omitempty"`
	Anecdotes string `json:"anecdotes,omitempty"`
}

type createResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *apiClient) CreateLyric(ctx context.Context, intake lyricIntake) (*createResponse, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/api/lyrics", intake, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) CreateMusic(ctx context.Context, intake musicIntake) (*createResponse, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/api/music", intake, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w (start it with `cantalab run` or cantalabd)", c.base, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.New(apiErrorMessage(resp.StatusCode, payload))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiErrorMessage(code int, payload []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return fmt.Sprintf("daemon: %s", body.Error)
	}
	return fmt.Sprintf("daemon returned %s", http.StatusText(code))
}
