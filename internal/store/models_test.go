package store_test

import (
	"testing"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

func TestMusicStatusTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    store.MusicStatus
		to      store.MusicStatus
		allowed bool
	}{
		{"lyric to prompt", store.MusicStatusNoLyric, store.MusicStatusNoPrompt, true},
		{"prompt to track", store.MusicStatusNoPrompt, store.MusicStatusNoTrack, true},
		{"track to processing", store.MusicStatusNoTrack, store.MusicStatusProcessing, true},
		{"processing to audio ready", store.MusicStatusProcessing, store.MusicStatusAudioReady, true},
		{"reaper reset", store.MusicStatusProcessing, store.MusicStatusNoTrack, true},
		{"clip failure", store.MusicStatusGeneratingClip, store.MusicStatusErrorMark, true},
		{"skip prompt stage", store.MusicStatusNoLyric, store.MusicStatusNoTrack, false},
		{"rewind sent", store.MusicStatusSent, store.MusicStatusSendPending, false},
		{"audio ready to sent", store.MusicStatusAudioReady, store.MusicStatusSent, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.ValidTransition(tc.to); got != tc.allowed {
				t.Fatalf("ValidTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestMusicStatusRetryTarget(t *testing.T) {
	cases := []struct {
		status store.MusicStatus
		target store.MusicStatus
	}{
		{store.MusicStatusErrorLyric, store.MusicStatusNoLyric},
		{store.MusicStatusErrorPrompt, store.MusicStatusNoPrompt},
		{store.MusicStatusErrorTrack, store.MusicStatusNoTrack},
		{store.MusicStatusErrorDownload, store.MusicStatusAudioReady},
		{store.MusicStatusErrorClip, store.MusicStatusAudioReady},
		{store.MusicStatusErrorMark, store.MusicStatusAudioReady},
		{store.MusicStatusErrorUpload, store.MusicStatusAudioReady},
	}
	for _, tc := range cases {
		target, ok := tc.status.RetryTarget()
		if !ok || target != tc.target {
			t.Fatalf("RetryTarget(%s) = %s/%v, want %s", tc.status, target, ok, tc.target)
		}
	}

	if _, ok := store.MusicStatusProcessing.RetryTarget(); ok {
		t.Fatal("expected no retry target for a working status")
	}
}

func TestLyricStatusTransitions(t *testing.T) {
	if !store.LyricStatusPending.ValidTransition(store.LyricStatusReady) {
		t.Fatal("pending must advance to ready")
	}
	if !store.LyricStatusFailed.ValidTransition(store.LyricStatusPending) {
		t.Fatal("failed must allow operator retry")
	}
	if store.LyricStatusSent.ValidTransition(store.LyricStatusPending) {
		t.Fatal("sent is terminal")
	}
	if !store.LyricStatusSent.Terminal() || !store.LyricStatusFailed.Terminal() {
		t.Fatal("sent and failed must be terminal")
	}
}

func TestLeadFirstName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Maria Lopez", "Maria"},
		{"Maria", "Maria"},
		{"", ""},
	}
	for _, tc := range cases {
		lead := &store.Lead{Name: tc.name}
		if got := lead.FirstName(); got != tc.want {
			t.Fatalf("FirstName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}
