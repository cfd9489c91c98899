package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/music"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/queue", srv.handleQueue)
	mux.HandleFunc("GET /api/queue/lyrics", srv.handleListLyrics)
	mux.HandleFunc("GET /api/queue/music", srv.handleListMusic)
	mux.HandleFunc("POST "+music.CallbackPath, srv.handleMusicCallback)
	mux.HandleFunc("POST /api/webhook/whatsapp", srv.handleInboundMessage)
	mux.HandleFunc("POST /api/lyrics", srv.handleCreateLyricRequest)
	mux.HandleFunc("POST /api/music", srv.handleCreateMusicRequest)
	mux.HandleFunc("POST /api/queue/music/{id}/retry", srv.handleRetryMusic)
	mux.HandleFunc("POST /api/queue/lyrics/{id}/retry", srv.handleRetryLyric)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address not configured")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

type queueView struct {
	Lyrics map[store.LyricStatus]int `json:"lyrics"`
	Music  map[store.MusicStatus]int `json:"music"`
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	lyricCounts, err := s.daemon.store.LyricStatusCounts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	musicCounts, err := s.daemon.store.MusicStatusCounts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, queueView{Lyrics: lyricCounts, Music: musicCounts})
}

// LyricItem is the API projection of a lyric request.
type LyricItem struct {
	ID          string    `json:"id"`
	LeadID      string    `json:"lead_id"`
	Status      string    `json:"status"`
	Purpose     string    `json:"purpose"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
	GeneratedAt time.Time `json:"generated_at,omitzero"`
}

// MusicItem is the API projection of a song request.
type MusicItem struct {
	ID           string    `json:"id"`
	LeadID       string    `json:"lead_id"`
	Phone        string    `json:"phone"`
	Status       string    `json:"status"`
	Recipient    string    `json:"recipient"`
	Genre        string    `json:"genre"`
	TaskID       string    `json:"task_id,omitempty"`
	ClipURL      string    `json:"clip_url,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created_at"`
	SentAt       time.Time `json:"sent_at,omitzero"`
}

func (s *apiServer) handleListLyrics(w http.ResponseWriter, r *http.Request) {
	statuses := make([]store.LyricStatus, 0)
	for _, raw := range r.URL.Query()["status"] {
		statuses = append(statuses, store.LyricStatus(raw))
	}
	requests, err := s.daemon.store.ListLyricRequests(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items := make([]LyricItem, 0, len(requests))
	for _, req := range requests {
		items = append(items, LyricItem{
			ID:          req.ID,
			LeadID:      req.LeadID,
			Status:      string(req.Status),
			Purpose:     req.Purpose,
			Attempts:    req.Attempts,
			CreatedAt:   req.CreatedAt,
			GeneratedAt: req.GeneratedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string][]LyricItem{"items": items})
}

func (s *apiServer) handleListMusic(w http.ResponseWriter, r *http.Request) {
	statuses := make([]store.MusicStatus, 0)
	for _, raw := range r.URL.Query()["status"] {
		statuses = append(statuses, store.MusicStatus(raw))
	}
	requests, err := s.daemon.store.ListMusicRequests(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items := make([]MusicItem, 0, len(requests))
	for _, req := range requests {
		items = append(items, MusicItem{
			ID:           req.ID,
			LeadID:       req.LeadID,
			Phone:        req.Phone,
			Status:       string(req.Status),
			Recipient:    req.Recipient,
			Genre:        req.Genre,
			TaskID:       req.TaskID,
			ClipURL:      req.ClipURL,
			ErrorMessage: req.ErrorMessage,
			Attempts:     req.Attempts,
			CreatedAt:    req.CreatedAt,
			SentAt:       req.SentAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string][]MusicItem{"items": items})
}

func (s *apiServer) handleRetryMusic(w http.ResponseWriter, r *http.Request) {
	req, err := s.daemon.store.RetryMusicRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"id":     req.ID,
		"status": string(req.Status),
	})
}

func (s *apiServer) handleRetryLyric(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.daemon.store.RetryLyricRequest(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	req, err := s.daemon.store.LyricRequestByID(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"id":     req.ID,
		"status": string(req.Status),
	})
}

func (s *apiServer) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, store.ErrConflict):
		s.writeError(w, http.StatusConflict, "record changed concurrently")
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
