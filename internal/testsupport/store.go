package testsupport

import (
	"context"
	"testing"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewLead creates a lead for tests using the provided store.
func NewLead(t testing.TB, st *store.Store, phone, name string) *store.Lead {
	t.Helper()

	lead, err := st.CreateLead(context.Background(), phone, name, "test")
	if err != nil {
		t.Fatalf("store.CreateLead: %v", err)
	}
	return lead
}

// NewMusicRequest creates a song request for tests attached to the lead.
func NewMusicRequest(t testing.TB, st *store.Store, lead *store.Lead) *store.MusicRequest {
	t.Helper()

	req := &store.MusicRequest{
		LeadID:    lead.ID,
		Phone:     lead.Phone,
		Recipient: lead.Name,
		Artist:    "Vicente Fernandez",
		Genre:     "ranchera",
		Voice:     "male",
		Anecdotes: "met at the county fair",
	}
	if err := st.CreateMusicRequest(context.Background(), req); err != nil {
		t.Fatalf("store.CreateMusicRequest: %v", err)
	}
	return req
}

// NewLyricRequest creates a lyric request for tests attached to the lead.
func NewLyricRequest(t testing.TB, st *store.Store, lead *store.Lead) *store.LyricRequest {
	t.Helper()

	req := &store.LyricRequest{
		LeadID:      lead.ID,
		Purpose:     "anniversary",
		IncludeName: "Maria",
		Anecdotes:   "first date at the beach",
	}
	if err := st.CreateLyricRequest(context.Background(), req); err != nil {
		t.Fatalf("store.CreateLyricRequest: %v", err)
	}
	return req
}
