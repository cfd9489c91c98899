package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const leadColumns = `id, phone, name, source, tags_json, unread_count, last_message_at,
    sequences_json, lyric_history_json, revision, created_at, updated_at`

// casRetries bounds the optimistic retry loop on lead read-modify-write
// helpers. Contention on a single lead is rare, so a small bound suffices.
const casRetries = 5

// CreateLead inserts a new lead. The phone must already be normalized.
func (s *Store) CreateLead(ctx context.Context, phone, name, source string) (*Lead, error) {
	now := time.Now().UTC()
	lead := &Lead{
		ID:        uuid.NewString(),
		Phone:     phone,
		Name:      name,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, phone, name, source, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Phone, lead.Name, lead.Source,
		formatTime(lead.CreatedAt), formatTime(lead.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}
	return lead, nil
}

// UpsertLeadByPhone returns the lead for the phone, creating it when absent.
// The boolean reports whether a new lead was created. Name and source only
// apply on creation; an existing lead with an empty name picks up the new
// name.
func (s *Store) UpsertLeadByPhone(ctx context.Context, phone, name, source string) (*Lead, bool, error) {
	lead, err := s.LeadByPhone(ctx, phone)
	if err == nil {
		if name != "" && lead.Name == "" {
			updated, uerr := s.updateLead(ctx, lead, func(l *Lead) { l.Name = name })
			if uerr != nil {
				return nil, false, uerr
			}
			return updated, false, nil
		}
		return lead, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	created, err := s.CreateLead(ctx, phone, name, source)
	if err == nil {
		return created, true, nil
	}
	// Lost a creation race: another writer inserted the same phone first.
	existing, lookupErr := s.LeadByPhone(ctx, phone)
	if lookupErr == nil {
		return existing, false, nil
	}
	return nil, false, err
}

// LeadByID fetches a lead by identifier.
func (s *Store) LeadByID(ctx context.Context, id string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	return scanLead(row)
}

// LeadByPhone fetches a lead by normalized phone number.
func (s *Store) LeadByPhone(ctx context.Context, phone string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE phone = ?`, phone)
	return scanLead(row)
}

// LeadsWithSequences returns every lead carrying at least one sequence
// instance, completed or not.
func (s *Store) LeadsWithSequences(ctx context.Context) ([]*Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE sequences_json != '[]' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query leads with sequences: %w", err)
	}
	defer rows.Close()

	var leads []*Lead
	for rows.Next() {
		lead, scanErr := scanLead(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// AddTag appends the tag to the lead's tag list if not already present.
func (s *Store) AddTag(ctx context.Context, leadID, tag string) (*Lead, error) {
	return s.mutateLead(ctx, leadID, func(l *Lead) {
		if !l.HasTag(tag) {
			l.Tags = append(l.Tags, tag)
		}
	})
}

// IncrementUnread bumps the lead's unread counter and refreshes the last
// message timestamp.
func (s *Store) IncrementUnread(ctx context.Context, leadID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET unread_count = unread_count + 1, last_message_at = ?,
            revision = revision + 1, updated_at = ?
         WHERE id = ?`,
		formatTime(at), formatTime(time.Now()), leadID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return requireRowChanged(res, "increment unread")
}

// ClearUnread resets the lead's unread counter.
func (s *Store) ClearUnread(ctx context.Context, leadID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET unread_count = 0, revision = revision + 1, updated_at = ?
         WHERE id = ?`,
		formatTime(time.Now()), leadID)
	if err != nil {
		return fmt.Errorf("clear unread: %w", err)
	}
	return requireRowChanged(res, "clear unread")
}

// AppendLyricHistory records a generated lyric on the lead.
func (s *Store) AppendLyricHistory(ctx context.Context, leadID string, ref LyricRef) (*Lead, error) {
	return s.mutateLead(ctx, leadID, func(l *Lead) {
		l.LyricHistory = append(l.LyricHistory, ref)
	})
}

// LatestLyricForLead returns the most recently recorded lyric text for the
// lead, or empty when none exists.
func (s *Store) LatestLyricForLead(ctx context.Context, leadID string) (string, error) {
	lead, err := s.LeadByID(ctx, leadID)
	if err != nil {
		return "", err
	}
	if len(lead.LyricHistory) == 0 {
		return "", nil
	}
	return lead.LyricHistory[len(lead.LyricHistory)-1].Lyrics, nil
}

// EnqueueSequence attaches a new sequence instance to the lead unless an
// incomplete instance with the same trigger is already active.
func (s *Store) EnqueueSequence(ctx context.Context, leadID, trigger string, startedAt time.Time) (*Lead, error) {
	return s.mutateLead(ctx, leadID, func(l *Lead) {
		for _, inst := range l.Sequences {
			if inst.Trigger == trigger && !inst.Completed {
				return
			}
		}
		l.Sequences = append(l.Sequences, SequenceInstance{
			Trigger:   trigger,
			StartedAt: startedAt.UTC(),
		})
	})
}

// ReplaceSequences writes the lead's sequence list conditionally on the
// revision observed when the list was read. Returns ErrConflict when another
// writer got there first.
func (s *Store) ReplaceSequences(ctx context.Context, leadID string, revision int64, sequences []SequenceInstance) error {
	if sequences == nil {
		sequences = []SequenceInstance{}
	}
	data, err := marshalJSON(sequences)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET sequences_json = ?, revision = revision + 1, updated_at = ?
         WHERE id = ? AND revision = ?`,
		data, formatTime(time.Now()), leadID, revision)
	if err != nil {
		return fmt.Errorf("replace sequences: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace sequences rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// mutateLead applies fn to a fresh copy of the lead and persists the JSON
// columns conditionally on the revision that was read, retrying on conflict.
func (s *Store) mutateLead(ctx context.Context, leadID string, fn func(*Lead)) (*Lead, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		lead, err := s.LeadByID(ctx, leadID)
		if err != nil {
			return nil, err
		}
		updated, err := s.updateLead(ctx, lead, fn)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("mutate lead %s: %w", leadID, ErrConflict)
}

func (s *Store) updateLead(ctx context.Context, lead *Lead, fn func(*Lead)) (*Lead, error) {
	fn(lead)

	tagsJSON, err := marshalJSON(orEmpty(lead.Tags))
	if err != nil {
		return nil, err
	}
	seqJSON, err := marshalJSON(orEmptySequences(lead.Sequences))
	if err != nil {
		return nil, err
	}
	lyricsJSON, err := marshalJSON(orEmptyLyrics(lead.LyricHistory))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET name = ?, tags_json = ?, sequences_json = ?,
            lyric_history_json = ?, revision = revision + 1, updated_at = ?
         WHERE id = ? AND revision = ?`,
		lead.Name, tagsJSON, seqJSON, lyricsJSON, formatTime(now),
		lead.ID, lead.Revision)
	if err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update lead rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrConflict
	}

	lead.Revision++
	lead.UpdatedAt = now
	return lead, nil
}

// AppendMessage inserts a conversation entry and refreshes the lead's last
// message timestamp. Messages authored by the lead also bump the unread
// counter.
func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, lead_id, author, kind, body, media_url, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.LeadID, msg.Author, msg.Kind, msg.Body, msg.MediaURL,
		formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if msg.Author == AuthorLead {
		return s.IncrementUnread(ctx, msg.LeadID, msg.CreatedAt)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE leads SET last_message_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(msg.CreatedAt), formatTime(time.Now()), msg.LeadID)
	if err != nil {
		return fmt.Errorf("touch lead after message: %w", err)
	}
	return nil
}

// MessagesForLead returns the lead's conversation log in chronological order.
func (s *Store) MessagesForLead(ctx context.Context, leadID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, author, kind, body, media_url, created_at
         FROM messages WHERE lead_id = ? ORDER BY created_at, id`, leadID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.LeadID, &msg.Author, &msg.Kind,
			&msg.Body, &msg.MediaURL, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*Lead, error) {
	lead := &Lead{}
	var (
		tagsJSON      string
		seqJSON       string
		lyricsJSON    string
		lastMessageAt sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&lead.ID, &lead.Phone, &lead.Name, &lead.Source,
		&tagsJSON, &lead.UnreadCount, &lastMessageAt,
		&seqJSON, &lyricsJSON, &lead.Revision, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}

	if err := unmarshalJSON(tagsJSON, &lead.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(seqJSON, &lead.Sequences); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(lyricsJSON, &lead.LyricHistory); err != nil {
		return nil, err
	}
	if lead.LastMessageAt, err = parseNullableTime(lastMessageAt); err != nil {
		return nil, err
	}
	if lead.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if lead.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return lead, nil
}

func requireRowChanged(res sql.Result, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func orEmptySequences(values []SequenceInstance) []SequenceInstance {
	if values == nil {
		return []SequenceInstance{}
	}
	return values
}

func orEmptyLyrics(values []LyricRef) []LyricRef {
	if values == nil {
		return []LyricRef{}
	}
	return values
}
