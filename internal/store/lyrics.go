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

const lyricColumns = `id, lead_id, status, purpose, include_name, anecdotes, lyrics,
    attempts, next_attempt_at, generated_at, created_at, updated_at`

// CreateLyricRequest inserts a new lyric order in the pending status.
func (s *Store) CreateLyricRequest(ctx context.Context, req *LyricRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.Status = LyricStatusPending
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lyric_requests (id, lead_id, status, purpose, include_name,
            anecdotes, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.LeadID, req.Status, req.Purpose, req.IncludeName,
		req.Anecdotes, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert lyric request: %w", err)
	}
	return nil
}

// LyricRequestByID fetches a lyric request.
func (s *Store) LyricRequestByID(ctx context.Context, id string) (*LyricRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+lyricColumns+` FROM lyric_requests WHERE id = ?`, id)
	return scanLyricRequest(row)
}

// PendingLyricRequests returns pending requests whose retry backoff has
// elapsed, oldest first.
func (s *Store) PendingLyricRequests(ctx context.Context, now time.Time) ([]*LyricRequest, error) {
	return s.queryLyricRequests(ctx,
		`SELECT `+lyricColumns+` FROM lyric_requests
         WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
         ORDER BY created_at`,
		LyricStatusPending, formatTime(now))
}

// ListLyricRequests returns lyric requests, optionally filtered by status,
// oldest first.
func (s *Store) ListLyricRequests(ctx context.Context, statuses ...LyricStatus) ([]*LyricRequest, error) {
	query := `SELECT ` + lyricColumns + ` FROM lyric_requests`
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
	return s.queryLyricRequests(ctx, query, args...)
}

// LyricRequestsByStatus returns every request in the status, oldest first.
func (s *Store) LyricRequestsByStatus(ctx context.Context, status LyricStatus) ([]*LyricRequest, error) {
	return s.queryLyricRequests(ctx,
		`SELECT `+lyricColumns+` FROM lyric_requests WHERE status = ? ORDER BY created_at`,
		status)
}

// MarkLyricReady stores the generated lyric and advances the request to
// ready-to-send, conditionally on it still being pending.
func (s *Store) MarkLyricReady(ctx context.Context, id, lyrics string, generatedAt time.Time) error {
	if !LyricStatusPending.ValidTransition(LyricStatusReady) {
		return fmt.Errorf("lyric transition %s -> %s not allowed", LyricStatusPending, LyricStatusReady)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE lyric_requests SET status = ?, lyrics = ?, generated_at = ?,
            next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		LyricStatusReady, lyrics, formatTime(generatedAt), formatTime(time.Now()),
		id, LyricStatusPending)
	if err != nil {
		return fmt.Errorf("mark lyric ready: %w", err)
	}
	return requireConditionalUpdate(res, "mark lyric ready")
}

// RecordLyricFailure bumps the attempt counter and schedules the next retry,
// or lands the request in failed when terminal is set.
func (s *Store) RecordLyricFailure(ctx context.Context, id string, nextAttemptAt time.Time, terminal bool) error {
	status := LyricStatusPending
	if terminal {
		status = LyricStatusFailed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE lyric_requests SET status = ?, attempts = attempts + 1,
            next_attempt_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		status, formatNullableTime(nextAttemptAt), formatTime(time.Now()),
		id, LyricStatusPending)
	if err != nil {
		return fmt.Errorf("record lyric failure: %w", err)
	}
	return requireConditionalUpdate(res, "record lyric failure")
}

// MarkLyricSent advances a ready request to sent, conditionally on it still
// being ready-to-send.
func (s *Store) MarkLyricSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE lyric_requests SET status = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		LyricStatusSent, formatTime(time.Now()), id, LyricStatusReady)
	if err != nil {
		return fmt.Errorf("mark lyric sent: %w", err)
	}
	return requireConditionalUpdate(res, "mark lyric sent")
}

// RetryLyricRequest rewinds a failed request to pending with a cleared
// attempt counter.
func (s *Store) RetryLyricRequest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE lyric_requests SET status = ?, attempts = 0, next_attempt_at = NULL,
            updated_at = ?
         WHERE id = ? AND status = ?`,
		LyricStatusPending, formatTime(time.Now()), id, LyricStatusFailed)
	if err != nil {
		return fmt.Errorf("retry lyric request: %w", err)
	}
	return requireConditionalUpdate(res, "retry lyric request")
}

func (s *Store) queryLyricRequests(ctx context.Context, query string, args ...any) ([]*LyricRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lyric requests: %w", err)
	}
	defer rows.Close()

	var requests []*LyricRequest
	for rows.Next() {
		req, scanErr := scanLyricRequest(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func scanLyricRequest(row rowScanner) (*LyricRequest, error) {
	req := &LyricRequest{}
	var (
		nextAttemptAt sql.NullString
		generatedAt   sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&req.ID, &req.LeadID, &req.Status, &req.Purpose,
		&req.IncludeName, &req.Anecdotes, &req.Lyrics, &req.Attempts,
		&nextAttemptAt, &generatedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lyric request: %w", err)
	}

	if req.NextAttemptAt, err = parseNullableTime(nextAttemptAt); err != nil {
		return nil, err
	}
	if req.GeneratedAt, err = parseNullableTime(generatedAt); err != nil {
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

func requireConditionalUpdate(res sql.Result, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}
