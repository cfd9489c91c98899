package store

import (
	"context"
	"time"
)

// SetMusicUpdatedAt backdates a song request's updated_at column so tests can
// exercise age-based maintenance queries.
func (s *Store) SetMusicUpdatedAt(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE music_requests SET updated_at = ? WHERE id = ?`,
		formatTime(at), id)
	return err
}
