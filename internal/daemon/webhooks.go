package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/sequence"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/suno"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/whatsapp"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

const maxWebhookBody = 1 << 20

// handleMusicCallback resolves the asynchronous generation task. The provider
// is the only writer of the processing -> audio-ready edge.
func (s *apiServer) handleMusicCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body")
		return
	}
	payload, err := suno.ParseCallback(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := s.logger.With(logging.String("task_id", payload.TaskID()))
	switch {
	case payload.Completed():
		audioURL := payload.AudioURL()
		if audioURL == "" {
			s.writeError(w, http.StatusBadRequest, "callback completed without audio url")
			return
		}
		req, err := s.daemon.store.CompleteMusicTask(r.Context(), payload.TaskID(), audioURL, time.Now())
		if err != nil {
			s.resolveCallbackError(w, logger, err)
			return
		}
		logger.Info("track ready", logging.String(logging.FieldRecordID, req.ID))
		s.writeJSON(w, http.StatusOK, map[string]string{"id": req.ID, "status": string(req.Status)})
	case payload.Failed():
		req, err := s.daemon.store.FailMusicTask(r.Context(), payload.TaskID(), payload.ErrorMessage())
		if err != nil {
			s.resolveCallbackError(w, logger, err)
			return
		}
		logger.Warn("generation task failed", logging.String(logging.FieldRecordID, req.ID),
			logging.String("reason", payload.ErrorMessage()))
		s.writeJSON(w, http.StatusOK, map[string]string{"id": req.ID, "status": string(req.Status)})
	default:
		// Intermediate progress callbacks are acknowledged and dropped.
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (s *apiServer) resolveCallbackError(w http.ResponseWriter, logger *slog.Logger, err error) {
	// Unknown task ids happen when the reaper already rewound the record; the
	// provider should not retry those.
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		logger.Warn("callback did not match an in-flight record", logging.Error(err))
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "stale"})
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

type inboundMessage struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	Body  string `json:"body"`
	Kind  string `json:"kind"`
}

// handleInboundMessage is the messaging-gateway webhook: it upserts the lead
// by normalized phone, logs the message, and enqueues the welcome sequence
// for first contact.
func (s *apiServer) handleInboundMessage(w http.ResponseWriter, r *http.Request) {
	var msg inboundMessage
	if err := decodeJSON(r, &msg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	phone, err := whatsapp.NormalizePhone(msg.Phone, s.daemon.cfg.WhatsApp.DefaultCountryCode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lead, created, err := s.daemon.store.UpsertLeadByPhone(r.Context(), phone, msg.Name, "whatsapp")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	kind := msg.Kind
	if kind == "" {
		kind = store.KindText
	}
	if err := s.daemon.store.AppendMessage(r.Context(), &store.Message{
		LeadID: lead.ID,
		Author: store.AuthorLead,
		Kind:   kind,
		Body:   msg.Body,
	}); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if created {
		if _, err := s.daemon.store.EnqueueSequence(r.Context(), lead.ID, sequence.TriggerNewLead, time.Now()); err != nil {
			s.logger.Warn("enqueue welcome sequence", logging.Error(err))
		}
		_ = s.daemon.notifier.NotifyLeadCreated(r.Context(), lead.Phone, "whatsapp")
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, map[string]any{"lead_id": lead.ID, "created": created})
}

type lyricIntake struct {
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	Purpose     string `json:"purpose"`
	IncludeName string `json:"include_name"`
	Anecdotes   string `json:"anecdotes"`
}

func (s *apiServer) handleCreateLyricRequest(w http.ResponseWriter, r *http.Request) {
	var intake lyricIntake
	if err := decodeJSON(r, &intake); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(intake.Purpose) == "" {
		s.writeError(w, http.StatusBadRequest, "purpose required")
		return
	}

	phone, err := whatsapp.NormalizePhone(intake.Phone, s.daemon.cfg.WhatsApp.DefaultCountryCode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lead, _, err := s.daemon.store.UpsertLeadByPhone(r.Context(), phone, intake.Name, "intake")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	req := &store.LyricRequest{
		LeadID:      lead.ID,
		Purpose:     intake.Purpose,
		IncludeName: intake.IncludeName,
		Anecdotes:   intake.Anecdotes,
	}
	if err := s.daemon.store.CreateLyricRequest(r.Context(), req); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "status": string(req.Status)})
}

type musicIntake struct {
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Recipient string `json:"recipient"`
	Artist    string `json:"artist"`
	Genre     string `json:"genre"`
	Voice     string `json:"voice"`
	Anecdotes string `json:"anecdotes"`
}

func (s *apiServer) handleCreateMusicRequest(w http.ResponseWriter, r *http.Request) {
	var intake musicIntake
	if err := decodeJSON(r, &intake); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(intake.Genre) == "" {
		s.writeError(w, http.StatusBadRequest, "genre required")
		return
	}

	phone, err := whatsapp.NormalizePhone(intake.Phone, s.daemon.cfg.WhatsApp.DefaultCountryCode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lead, _, err := s.daemon.store.UpsertLeadByPhone(r.Context(), phone, intake.Name, "intake")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	recipient := intake.Recipient
	if strings.TrimSpace(recipient) == "" {
		recipient = lead.Name
	}
	req := &store.MusicRequest{
		LeadID:    lead.ID,
		Phone:     lead.Phone,
		Recipient: recipient,
		Artist:    intake.Artist,
		Genre:     intake.Genre,
		Voice:     intake.Voice,
		Anecdotes: intake.Anecdotes,
	}
	if err := s.daemon.store.CreateMusicRequest(r.Context(), req); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "status": string(req.Status)})
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
