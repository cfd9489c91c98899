package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const musicColumns = `id, lead_id, phone, status, recipient, artist, genre, voice,
    anecdotes, style_prompt, lyrics, task_id, audio_url, clip_url, error_message,
    attempts, next_attempt_at, created_at, generated_at, sent_at, updated_at`

// CreateMusicRequest inserts a new song order at the start of the pipeline.
func (s *Store) CreateMusicRequest(ctx context.Context, req *MusicRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.Status = MusicStatusNoLyric
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO music_requests (id, lead_id, phone, status, recipient, artist,
            genre, voice, anecdotes, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.LeadID, req.Phone, req.Status, req.Recipient, req.Artist,
		req.Genre, req.Voice, req.Anecdotes, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert music request: %w", err)
	}
	return nil
}

// MusicRequestByID fetches a song request.
func (s *Store) MusicRequestByID(ctx context.Context, id string) (*MusicRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+musicColumns+` FROM music_requests WHERE id = ?`, id)
	return scanMusicRequest(row)
}

// MusicRequestByTaskID correlates an external generator callback with its
// record.
func (s *Store) MusicRequestByTaskID(ctx context.Context, taskID string) (*MusicRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+musicColumns+` FROM music_requests WHERE task_id = ?
         ORDER BY created_at DESC LIMIT 1`, taskID)
	return scanMusicRequest(row)
}

// MusicRequestsByStatus returns every request in the status, oldest first.
func (s *Store) MusicRequestsByStatus(ctx context.Context, status MusicStatus) ([]*MusicRequest, error) {
	return s.queryMusicRequests(ctx,
		`SELECT `+musicColumns+` FROM music_requests WHERE status = ? ORDER BY created_at`,
		status)
}

// ListMusicRequests returns song requests, optionally filtered by status,
// oldest first.
func (s *Store) ListMusicRequests(ctx context.Context, statuses ...MusicStatus) ([]*MusicRequest, error) {
	query := `SELECT ` + musicColumns + ` FROM music_requests`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at`
	return s.queryMusicRequests(ctx, query, args...)
}

// EligibleMusicRequests returns requests in the status whose retry backoff
// has elapsed, oldest first.
func (s *Store) EligibleMusicRequests(ctx context.Context, status MusicStatus, now time.Time) ([]*MusicRequest, error) {
	return s.queryMusicRequests(ctx,
		`SELECT `+musicColumns+` FROM music_requests
         WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
         ORDER BY created_at`,
		status, formatTime(now))
}

// OldestMusicRequest returns the oldest eligible request in the status, or
// ErrNotFound when the status is empty.
func (s *Store) OldestMusicRequest(ctx context.Context, status MusicStatus, now time.Time) (*MusicRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+musicColumns+` FROM music_requests
         WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
         ORDER BY created_at LIMIT 1`,
		status, formatTime(now))
	return scanMusicRequest(row)
}

// MarkMusicLyricReady stores generated lyrics and advances the request to the
// prompt stage.
func (s *Store) MarkMusicLyricReady(ctx context.Context, id, lyrics string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, lyrics = ?, attempts = 0,
            next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		MusicStatusNoPrompt, lyrics, formatTime(time.Now()),
		id, MusicStatusNoLyric)
	if err != nil {
		return fmt.Errorf("mark music lyric ready: %w", err)
	}
	return requireConditionalUpdate(res, "mark music lyric ready")
}

// MarkMusicPromptReady stores the style prompt and advances the request to
// the generation stage.
func (s *Store) MarkMusicPromptReady(ctx context.Context, id, prompt string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, style_prompt = ?, attempts = 0,
            next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		MusicStatusNoTrack, prompt, formatTime(time.Now()),
		id, MusicStatusNoPrompt)
	if err != nil {
		return fmt.Errorf("mark music prompt ready: %w", err)
	}
	return requireConditionalUpdate(res, "mark music prompt ready")
}

// MarkMusicProcessing records the external task id and moves the request into
// processing, conditionally on it still awaiting generation. A second caller
// racing on the same record receives ErrConflict.
func (s *Store) MarkMusicProcessing(ctx context.Context, id, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, task_id = ?, error_message = '',
            updated_at = ?
         WHERE id = ? AND status = ?`,
		MusicStatusProcessing, taskID, formatTime(time.Now()),
		id, MusicStatusNoTrack)
	if err != nil {
		return fmt.Errorf("mark music processing: %w", err)
	}
	return requireConditionalUpdate(res, "mark music processing")
}

// ClaimMusicForLaunch moves the request into processing ahead of task
// submission. Claiming before the external call means a duplicate tick finds
// nothing left to submit.
func (s *Store) ClaimMusicForLaunch(ctx context.Context, id string) error {
	return s.MarkMusicProcessing(ctx, id, "")
}

// SetMusicTaskID records the provider task id on a claimed request.
func (s *Store) SetMusicTaskID(ctx context.Context, id, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET task_id = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		taskID, formatTime(time.Now()), id, MusicStatusProcessing)
	if err != nil {
		return fmt.Errorf("set music task id: %w", err)
	}
	return requireConditionalUpdate(res, "set music task id")
}

// CompleteMusicTask resolves a generator callback: the request identified by
// the task id moves from processing to audio-ready with the track URL.
func (s *Store) CompleteMusicTask(ctx context.Context, taskID, audioURL string, generatedAt time.Time) (*MusicRequest, error) {
	req, err := s.MusicRequestByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, audio_url = ?, generated_at = ?,
            updated_at = ?
         WHERE id = ? AND status = ?`,
		MusicStatusAudioReady, audioURL, formatTime(generatedAt),
		formatTime(time.Now()), req.ID, MusicStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("complete music task: %w", err)
	}
	if err := requireConditionalUpdate(res, "complete music task"); err != nil {
		return nil, err
	}
	return s.MusicRequestByID(ctx, req.ID)
}

// FailMusicTask resolves a failed generator callback for the task id.
func (s *Store) FailMusicTask(ctx context.Context, taskID, message string) (*MusicRequest, error) {
	req, err := s.MusicRequestByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.FailMusicRequest(ctx, req.ID, MusicStatusProcessing, MusicStatusErrorTrack, message); err != nil {
		return nil, err
	}
	return s.MusicRequestByID(ctx, req.ID)
}

// MarkMusicClipStarted claims an audio-ready request for clip production.
func (s *Store) MarkMusicClipStarted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		MusicStatusGeneratingClip, formatTime(time.Now()),
		id, MusicStatusAudioReady)
	if err != nil {
		return fmt.Errorf("mark music clip started: %w", err)
	}
	return requireConditionalUpdate(res, "mark music clip started")
}

// MarkMusicClipReady stores the published clip URL and queues the request for
// delivery.
func (s *Store) MarkMusicClipReady(ctx context.Context, id, clipURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, clip_url = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		MusicStatusSendPending, clipURL, formatTime(time.Now()),
		id, MusicStatusGeneratingClip)
	if err != nil {
		return fmt.Errorf("mark music clip ready: %w", err)
	}
	return requireConditionalUpdate(res, "mark music clip ready")
}

// MarkMusicSent finishes delivery.
func (s *Store) MarkMusicSent(ctx context.Context, id string, sentAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, sent_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		MusicStatusSent, formatTime(sentAt), formatTime(time.Now()),
		id, MusicStatusSendPending)
	if err != nil {
		return fmt.Errorf("mark music sent: %w", err)
	}
	return requireConditionalUpdate(res, "mark music sent")
}

// FailMusicRequest moves the request from a working status into a stage
// error status, recording the failure message.
func (s *Store) FailMusicRequest(ctx context.Context, id string, from, to MusicStatus, message string) error {
	if !from.ValidTransition(to) {
		return fmt.Errorf("music transition %s -> %s not allowed", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		to, message, formatTime(time.Now()), id, from)
	if err != nil {
		return fmt.Errorf("fail music request: %w", err)
	}
	return requireConditionalUpdate(res, "fail music request")
}

// RecordMusicRetry bumps the attempt counter on a request that stays in its
// current status and schedules the next attempt.
func (s *Store) RecordMusicRetry(ctx context.Context, id string, status MusicStatus, nextAttemptAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET attempts = attempts + 1, next_attempt_at = ?,
            updated_at = ?
         WHERE id = ? AND status = ?`,
		formatNullableTime(nextAttemptAt), formatTime(time.Now()), id, status)
	if err != nil {
		return fmt.Errorf("record music retry: %w", err)
	}
	return requireConditionalUpdate(res, "record music retry")
}

// RetryMusicRequest rewinds a request from an error status to the working
// status that failed, clearing retry state and the stale task id.
func (s *Store) RetryMusicRequest(ctx context.Context, id string) (*MusicRequest, error) {
	req, err := s.MusicRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	target, ok := req.Status.RetryTarget()
	if !ok {
		return nil, fmt.Errorf("music request %s status %s is not retryable", id, req.Status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, attempts = 0, next_attempt_at = NULL,
            error_message = '', task_id = '', updated_at = ?
         WHERE id = ? AND status = ?`,
		target, formatTime(time.Now()), id, req.Status)
	if err != nil {
		return nil, fmt.Errorf("retry music request: %w", err)
	}
	if err := requireConditionalUpdate(res, "retry music request"); err != nil {
		return nil, err
	}
	return s.MusicRequestByID(ctx, id)
}

func (s *Store) queryMusicRequests(ctx context.Context, query string, args ...any) ([]*MusicRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query music requests: %w", err)
	}
	defer rows.Close()

	var requests []*MusicRequest
	for rows.Next() {
		req, scanErr := scanMusicRequest(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func scanMusicRequest(row rowScanner) (*MusicRequest, error) {
	req := &MusicRequest{}
	var (
		nextAttemptAt sql.NullString
		generatedAt   sql.NullString
		sentAt        sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&req.ID, &req.LeadID, &req.Phone, &req.Status, &req.Recipient,
		&req.Artist, &req.Genre, &req.Voice, &req.Anecdotes, &req.StylePrompt,
		&req.Lyrics, &req.TaskID, &req.AudioURL, &req.ClipURL, &req.ErrorMessage,
		&req.Attempts, &nextAttemptAt, &createdAt, &generatedAt, &sentAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan music request: %w", err)
	}

	if req.NextAttemptAt, err = parseNullableTime(nextAttemptAt); err != nil {
		return nil, err
	}
	if req.GeneratedAt, err = parseNullableTime(generatedAt); err != nil {
		return nil, err
	}
	if req.SentAt, err = parseNullableTime(sentAt); err != nil {
		return nil, err
	}
	if req.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if req.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return req, nil
}
