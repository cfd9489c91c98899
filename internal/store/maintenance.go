package store

import (
	"context"
	"fmt"
	"time"
)

// ReclaimStuckProcessing rewinds song requests that have sat in processing
// since strictly before the cutoff back to the generation stage, clearing the
// stale task id so they can be resubmitted. Returns the number of reclaimed
// requests.
func (s *Store) ReclaimStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET status = ?, task_id = '', error_message = '',
            updated_at = ?
         WHERE status = ? AND updated_at < ?`,
		MusicStatusNoTrack, formatTime(time.Now()),
		MusicStatusProcessing, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck processing rows affected: %w", err)
	}
	return affected, nil
}

// MusicStatusCounts returns the number of song requests per status.
func (s *Store) MusicStatusCounts(ctx context.Context) (map[MusicStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM music_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count music statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[MusicStatus]int)
	for rows.Next() {
		var status MusicStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan music status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// LyricStatusCounts returns the number of lyric requests per status.
func (s *Store) LyricStatusCounts(ctx context.Context) (map[LyricStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM lyric_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count lyric statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[LyricStatus]int)
	for rows.Next() {
		var status LyricStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan lyric status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// LeadCount returns the total number of leads.
func (s *Store) LeadCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM leads`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return count, nil
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	return nil
}
