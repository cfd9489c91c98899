package store

import (
	"time"
)

// LyricStatus tracks a standalone lyric request through generation and
// delivery.
type LyricStatus string

const (
	LyricStatusPending LyricStatus = "no-lyric"
	LyricStatusReady   LyricStatus = "ready-to-send"
	LyricStatusSent    LyricStatus = "sent"
	LyricStatusFailed  LyricStatus = "failed"
)

// lyricTransitions enumerates every legal lyric status edge. The failed to
// pending edge exists only for operator-driven retries.
var lyricTransitions = map[LyricStatus][]LyricStatus{
	LyricStatusPending: {LyricStatusReady, LyricStatusFailed},
	LyricStatusReady:   {LyricStatusSent},
	LyricStatusFailed:  {LyricStatusPending},
}

// ValidTransition reports whether a lyric request may move from one status to
// another.
func (s LyricStatus) ValidTransition(to LyricStatus) bool {
	for _, next := range lyricTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the lyric lifecycle.
func (s LyricStatus) Terminal() bool {
	return s == LyricStatusSent || s == LyricStatusFailed
}

// MusicStatus tracks a song request through lyric generation, style
// prompting, track generation, clip production, and delivery.
type MusicStatus string

const (
	MusicStatusNoLyric        MusicStatus = "no-lyric"
	MusicStatusNoPrompt       MusicStatus = "no-prompt"
	MusicStatusNoTrack        MusicStatus = "no-music"
	MusicStatusProcessing     MusicStatus = "processing"
	MusicStatusAudioReady     MusicStatus = "audio-ready"
	MusicStatusGeneratingClip MusicStatus = "generating-clip"
	MusicStatusSendPending    MusicStatus = "send-music"
	MusicStatusSent           MusicStatus = "sent"

	MusicStatusErrorLyric    MusicStatus = "error-lyric"
	MusicStatusErrorPrompt   MusicStatus = "error-prompt"
	MusicStatusErrorTrack    MusicStatus = "error-music"
	MusicStatusErrorDownload MusicStatus = "error-download-full"
	MusicStatusErrorClip     MusicStatus = "error-clip"
	MusicStatusErrorMark     MusicStatus = "error-watermark"
	MusicStatusErrorUpload   MusicStatus = "error-upload-clip"
)

// musicTransitions enumerates every legal song status edge, including the
// reaper's processing to no-music reset and the operator retry edges out of
// each error status.
var musicTransitions = map[MusicStatus][]MusicStatus{
	MusicStatusNoLyric:    {MusicStatusNoPrompt, MusicStatusErrorLyric},
	MusicStatusNoPrompt:   {MusicStatusNoTrack, MusicStatusErrorPrompt},
	MusicStatusNoTrack:    {MusicStatusProcessing, MusicStatusErrorTrack},
	MusicStatusProcessing: {MusicStatusAudioReady, MusicStatusErrorTrack, MusicStatusNoTrack},
	MusicStatusAudioReady: {MusicStatusGeneratingClip},
	MusicStatusGeneratingClip: {
		MusicStatusSendPending,
		MusicStatusErrorDownload,
		MusicStatusErrorClip,
		MusicStatusErrorMark,
		MusicStatusErrorUpload,
	},
	MusicStatusSendPending: {MusicStatusSent},

	MusicStatusErrorLyric:    {MusicStatusNoLyric},
	MusicStatusErrorPrompt:   {MusicStatusNoPrompt},
	MusicStatusErrorTrack:    {MusicStatusNoTrack},
	MusicStatusErrorDownload: {MusicStatusAudioReady},
	MusicStatusErrorClip:     {MusicStatusAudioReady},
	MusicStatusErrorMark:     {MusicStatusAudioReady},
	MusicStatusErrorUpload:   {MusicStatusAudioReady},
}

// ValidTransition reports whether a song request may move from one status to
// another.
func (s MusicStatus) ValidTransition(to MusicStatus) bool {
	for _, next := range musicTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsError reports whether the status records a stage failure.
func (s MusicStatus) IsError() bool {
	switch s {
	case MusicStatusErrorLyric, MusicStatusErrorPrompt, MusicStatusErrorTrack,
		MusicStatusErrorDownload, MusicStatusErrorClip, MusicStatusErrorMark,
		MusicStatusErrorUpload:
		return true
	}
	return false
}

// RetryTarget returns the working status an error status rewinds to when an
// operator retries the record. The second return is false for non-error
// statuses.
func (s MusicStatus) RetryTarget() (MusicStatus, bool) {
	if !s.IsError() {
		return "", false
	}
	return musicTransitions[s][0], true
}

// MusicStatuses lists every song status in lifecycle order, errors last.
func MusicStatuses() []MusicStatus {
	return []MusicStatus{
		MusicStatusNoLyric, MusicStatusNoPrompt, MusicStatusNoTrack,
		MusicStatusProcessing, MusicStatusAudioReady, MusicStatusGeneratingClip,
		MusicStatusSendPending, MusicStatusSent,
		MusicStatusErrorLyric, MusicStatusErrorPrompt, MusicStatusErrorTrack,
		MusicStatusErrorDownload, MusicStatusErrorClip, MusicStatusErrorMark,
		MusicStatusErrorUpload,
	}
}

// SequenceInstance is one active drip sequence attached to a lead. StepIndex
// is the next step to deliver; Completed instances are pruned once every
// instance on the lead has finished.
type SequenceInstance struct {
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"startedAt"`
	StepIndex int       `json:"stepIndex"`
	Completed bool      `json:"completed"`
}

// SequenceStep is one message in a sequence definition. DelayMinutes is
// measured from the instance start, not from the previous step. Params feeds
// template steps; its values may themselves contain placeholders.
type SequenceStep struct {
	Type         string            `json:"type"`
	Content      string            `json:"content"`
	DelayMinutes int               `json:"delayMinutes"`
	Params       map[string]string `json:"params,omitempty"`
}

// SequenceDefinition is a reusable drip sequence keyed by its trigger name.
type SequenceDefinition struct {
	Trigger   string
	Steps     []SequenceStep
	UpdatedAt time.Time
}

// LyricRef records one generated lyric on a lead's history.
type LyricRef struct {
	RequestID string    `json:"requestId"`
	Lyrics    string    `json:"lyrics"`
	CreatedAt time.Time `json:"createdAt"`
}

// Lead is one WhatsApp contact. Tags, Sequences, and LyricHistory are stored
// as JSON columns and guarded by Revision.
type Lead struct {
	ID            string
	Phone         string
	Name          string
	Source        string
	Tags          []string
	UnreadCount   int
	LastMessageAt time.Time
	Sequences     []SequenceInstance
	LyricHistory  []LyricRef
	Revision      int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasTag reports whether the lead already carries the tag.
func (l *Lead) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FirstName returns the first whitespace-separated token of the lead's name.
func (l *Lead) FirstName() string {
	name := l.Name
	for i, r := range name {
		if r == ' ' || r == '\t' {
			return name[:i]
		}
	}
	return name
}

// Message is one entry in a lead's conversation log.
type Message struct {
	ID        string
	LeadID    string
	Author    string
	Kind      string
	Body      string
	MediaURL  string
	CreatedAt time.Time
}

// Message authors.
const (
	AuthorBusiness = "business"
	AuthorLead     = "lead"
	AuthorSystem   = "system"
)

// Message kinds mirror the WhatsApp payload types the pipeline sends.
const (
	KindText     = "text"
	KindAudio    = "audio"
	KindVideo    = "video"
	KindDocument = "document"
	KindTemplate = "template"
)

// LyricRequest is a standalone lyric order placed from the intake form.
type LyricRequest struct {
	ID            string
	LeadID        string
	Status        LyricStatus
	Purpose       string
	IncludeName   string
	Anecdotes     string
	Lyrics        string
	Attempts      int
	NextAttemptAt time.Time
	GeneratedAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MusicRequest is a full song order. TaskID correlates the record with the
// external track generator while the request sits in processing.
type MusicRequest struct {
	ID            string
	LeadID        string
	Phone         string
	Status        MusicStatus
	Recipient     string
	Artist        string
	Genre         string
	Voice         string
	Anecdotes     string
	StylePrompt   string
	Lyrics        string
	TaskID        string
	AudioURL      string
	ClipURL       string
	ErrorMessage  string
	Attempts      int
	NextAttemptAt time.Time
	CreatedAt     time.Time
	GeneratedAt   time.Time
	SentAt        time.Time
	UpdatedAt     time.Time
}
