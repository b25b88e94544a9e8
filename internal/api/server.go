package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"tycoon/internal/config"
)

const maxBodyBytes = 1 << 20

var (
	ErrInvalidEvent = errors.New("invalid event")
	ErrInvalidECPM  = errors.New("invalid ecpm entry")
)

type LeaderboardRow struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

var mockLeaderboard = []LeaderboardRow{
	{Username: "CoinBaron", Score: 9_850_000},
	{Username: "IdleQueen", Score: 7_420_500},
	{Username: "LemonadeKing", Score: 5_110_250},
	{Username: "ClickMaster", Score: 3_003_900},
	{Username: "TycoonTom", Score: 1_250_000},
}

// ECPMRecord is one accepted eCPM sample.
type ECPMRecord struct {
	ID         string    `json:"id"`
	SDK        string    `json:"sdk"`
	Value      float64   `json:"value"`
	Source     string    `json:"source,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type ecpmInput struct {
	SDK       string   `json:"sdk"`
	Value     *float64 `json:"value"`
	Source    string   `json:"source"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// Server is the in-memory development backend. Restarting it drops all state.
type Server struct {
	cfg     config.APIConfig
	log     *slog.Logger
	logs    *Ring[string]
	ecpm    *Ring[ECPMRecord]
	started time.Time
	mux     *chi.Mux

	mu       sync.Mutex
	received map[string]int64
}

func New(cfg config.APIConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		logs:     NewRing[string](cfg.LogCapacity),
		ecpm:     NewRing[ECPMRecord](cfg.ECPMCapacity),
		started:  time.Now(),
		mux:      chi.NewRouter(),
		received: make(map[string]int64),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/logs", s.handleLogs)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/stats", s.handleStats)

		r.Post("/analytics", s.handleEvent("analytics", true))
		r.Post("/ads", s.handleEvent("ads", true))
		r.Post("/payments", s.handleEvent("payments", true))
		r.Post("/admob", s.handleEvent("admob", false))
		r.Post("/ironsource", s.handleEvent("ironsource", false))

		r.Post("/ecpm-history", s.handleECPMAppend)
		r.Get("/ecpm-history", s.handleECPMHistory)
	})
}

// requestLog records one line per request into the log ring.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		line := fmt.Sprintf("%s %s %s %d %s", start.UTC().Format(time.RFC3339), r.Method, r.URL.Path, status, elapsed.Round(time.Microsecond))
		s.logs.Push(line)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", elapsed.String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"logs": s.logs.Snapshot()})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": mockLeaderboard})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	received := make(map[string]int64, len(s.received))
	for k, v := range s.received {
		received[k] = v
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"totalPlayers":   12_480,
		"activeToday":    1_932,
		"adsWatched":     48_211,
		"purchases":      377,
		"uptimeSeconds":  int64(time.Since(s.started).Seconds()),
		"received":       received,
		"ecpmSamples":    s.ecpm.Len(),
		"loggedRequests": s.logs.Len(),
	})
}

// handleEvent accepts any JSON object. When echo is set the event is returned
// under "received".
func (s *Server) handleEvent(kind string, echo bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev map[string]any
		if err := decodeJSON(w, r, &ev, false); err != nil {
			writeDomainError(w, err)
			return
		}
		if ev == nil {
			writeDomainError(w, fmt.Errorf("%w: body must be a JSON object", ErrInvalidEvent))
			return
		}
		s.mu.Lock()
		s.received[kind]++
		s.mu.Unlock()
		s.log.Debug("event received", "kind", kind, "event", ev)

		if echo {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "received": ev})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (s *Server) handleECPMAppend(w http.ResponseWriter, r *http.Request) {
	var in ecpmInput
	if err := decodeJSON(w, r, &in, true); err != nil {
		writeDomainError(w, err)
		return
	}
	in.SDK = strings.TrimSpace(in.SDK)
	if in.SDK == "" {
		writeDomainError(w, fmt.Errorf("%w: sdk is required", ErrInvalidECPM))
		return
	}
	if in.Value == nil || math.IsNaN(*in.Value) || math.IsInf(*in.Value, 0) || *in.Value < 0 {
		writeDomainError(w, fmt.Errorf("%w: value must be a finite number >= 0", ErrInvalidECPM))
		return
	}
	rec := ECPMRecord{
		ID:         uuid.NewString(),
		SDK:        in.SDK,
		Value:      *in.Value,
		Source:     strings.TrimSpace(in.Source),
		ReceivedAt: time.Now().UTC(),
	}
	s.ecpm.Push(rec)
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "accepted": rec})
}

func (s *Server) handleECPMHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history": s.ecpm.Snapshot()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidEvent), errors.Is(err, ErrInvalidECPM):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
