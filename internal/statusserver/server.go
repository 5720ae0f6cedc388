package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/aleister1102/deploywatch/internal/detector"
	"github.com/aleister1102/deploywatch/internal/history"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 500
	shutdownTimeout   = 5 * time.Second
)

// DetectorView is the part of a detector the server exposes.
type DetectorView interface {
	Mode() detector.Mode
	State() detector.State
	Stats() detector.Stats
	Snapshot() ([]detector.Reference, bool)
	CheckUpdate(ctx context.Context) (bool, error)
}

// EventLister reads recorded events.
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]history.Event, error)
	Count(ctx context.Context) (int, error)
}

// Server serves detector status over HTTP.
type Server struct {
	router   *chi.Mux
	current  func() DetectorView
	events   EventLister
	logger   zerolog.Logger
	httpSrv  *http.Server
	listener net.Listener
}

// New builds the router. current is called per request so a rebuilt detector
// is picked up; events may be nil when history is disabled.
func New(current func() DetectorView, events EventLister, logger zerolog.Logger) *Server {
	s := &Server{
		current: current,
		events:  events,
		logger:  logger.With().Str("component", "StatusServer").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	r.Get("/snapshot", s.handleSnapshot)
	r.Get("/events", s.handleEvents)
	r.Post("/check", s.handleCheck)

	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until ctx ends.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return common.WrapErrorf(err, "failed to listen on %s", addr)
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("Status server shutdown failed")
		}
	}()
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Status server stopped")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Status server listening")
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type statusResponse struct {
	Mode           string     `json:"mode"`
	State          string     `json:"state"`
	Seeded         bool       `json:"seeded"`
	References     int        `json:"references"`
	Checks         int64      `json:"checks"`
	Updates        int64      `json:"updates"`
	FetchFailures  int64      `json:"fetch_failures"`
	CallbackErrors int64      `json:"callback_errors"`
	Reloads        int64      `json:"reloads"`
	LastCheck      *time.Time `json:"last_check,omitempty"`
	LastUpdate     *time.Time `json:"last_update,omitempty"`
	// EventsRecorded is absent without history.
	EventsRecorded *int `json:"events_recorded,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	d := s.current()
	stats := d.Stats()
	refs, seeded := d.Snapshot()

	resp := statusResponse{
		Mode:           d.Mode().String(),
		State:          d.State().String(),
		Seeded:         seeded,
		References:     len(refs),
		Checks:         stats.Checks,
		Updates:        stats.Updates,
		FetchFailures:  stats.FetchFailures,
		CallbackErrors: stats.CallbackErrors,
		Reloads:        stats.Reloads,
	}
	if !stats.LastCheck.IsZero() {
		resp.LastCheck = &stats.LastCheck
	}
	if !stats.LastUpdate.IsZero() {
		resp.LastUpdate = &stats.LastUpdate
	}
	if s.events != nil {
		n, err := s.events.Count(r.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to count events")
			writeError(w, http.StatusInternalServerError, "failed to count events")
			return
		}
		resp.EventsRecorded = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

type referenceJSON struct {
	EntryPoint string `json:"entry_point"`
	Source     string `json:"source"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	refs, seeded := s.current().Snapshot()
	out := make([]referenceJSON, 0, len(refs))
	for _, r := range refs {
		out = append(out, referenceJSON{EntryPoint: r.EntryPoint, Source: r.Source})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"seeded": seeded, "references": out})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read events")
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	updated, err := s.current().CheckUpdate(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"updated": updated, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
