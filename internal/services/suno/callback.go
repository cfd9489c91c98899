package suno

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Callback types sent by the gateway. Only the complete notification carries
// playable audio; text and first notifications are progress updates.
const (
	CallbackComplete = "complete"
	CallbackError    = "error"
)

// CallbackTrack is one generated track inside a completion callback.
type CallbackTrack struct {
	AudioURL       string  `json:"audio_url"`
	SourceAudioURL string  `json:"source_audio_url"`
	Title          string  `json:"title"`
	Duration       float64 `json:"duration"`
}

// CallbackPayload is the webhook body posted by the gateway when a task
// finishes or fails.
type CallbackPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		CallbackType string          `json:"callbackType"`
		TaskID       string          `json:"task_id"`
		Data         []CallbackTrack `json:"data"`
	} `json:"data"`
}

// TaskID returns the callback's task identifier.
func (p *CallbackPayload) TaskID() string {
	return strings.TrimSpace(p.Data.TaskID)
}

// Completed reports whether the callback is a final completion notification.
func (p *CallbackPayload) Completed() bool {
	return strings.EqualFold(p.Data.CallbackType, CallbackComplete) && p.Code == 200
}

// Failed reports whether the callback reports a terminal provider failure.
func (p *CallbackPayload) Failed() bool {
	return strings.EqualFold(p.Data.CallbackType, CallbackError) || (p.Data.CallbackType != "" && p.Code != 200)
}

// AudioURL returns the first playable track URL in the callback, preferring
// the source (un-transcoded) URL when present.
func (p *CallbackPayload) AudioURL() string {
	for _, track := range p.Data.Data {
		if url := strings.TrimSpace(track.SourceAudioURL); url != "" {
			return url
		}
		if url := strings.TrimSpace(track.AudioURL); url != "" {
			return url
		}
	}
	return ""
}

// ErrorMessage returns a human-readable description of a failed callback.
func (p *CallbackPayload) ErrorMessage() string {
	if msg := strings.TrimSpace(p.Msg); msg != "" {
		return msg
	}
	return fmt.Sprintf("provider returned code %d", p.Code)
}

// ParseCallback decodes and validates a webhook body.
func ParseCallback(body []byte) (*CallbackPayload, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("suno callback: decode payload: %w", err)
	}
	if payload.TaskID() == "" {
		return nil, errors.New("suno callback: payload missing task id")
	}
	return &payload, nil
}
