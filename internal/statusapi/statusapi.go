// Package statusapi exposes the engine's "offline banner" / "syncing N
// changes..." state as a small pollable HTTP surface for a host shell or
// companion UI, built on a chi router with a writeJSON helper and chi's
// RequestID/Logger/Recoverer middleware.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/inkwell-app/notesync-core/internal/netmonitor"
	"github.com/inkwell-app/notesync-core/internal/queue"
	"github.com/inkwell-app/notesync-core/internal/store"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// SyncingChecker reports whether a drain is currently in flight.
type SyncingChecker interface {
	IsSyncing() bool
}

// Server holds the read-only dependencies the status endpoints report on.
type Server struct {
	net    *netmonitor.Monitor
	queue  *queue.Queue
	kv     store.KV
	driver SyncingChecker
	log    zerolog.Logger
}

// New builds a Server.
func New(net *netmonitor.Monitor, q *queue.Queue, kv store.KV, driver SyncingChecker, log zerolog.Logger) *Server {
	return &Server{
		net:    net,
		queue:  q,
		kv:     kv,
		driver: driver,
		log:    log.With().Str("component", "statusapi").Logger(),
	}
}

type statusResponse struct {
	Online       bool    `json:"online"`
	PendingCount int     `json:"pendingCount"`
	LastSync     *string `json:"lastSync"`
	Syncing      bool    `json:"syncing"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	pending, err := s.queue.Len()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read queue length")
	}

	var lastSync *string
	var raw string
	if ok, err := s.kv.Get(store.SlotLastSync, &raw); err != nil {
		s.log.Error().Err(err).Msg("failed to read last_sync")
	} else if ok {
		lastSync = &raw
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Online:       s.net.Snapshot(),
		PendingCount: pending,
		LastSync:     lastSync,
		Syncing:      s.driver.IsSyncing(),
	})
}

// Routes builds the chi router CORS-enabled for a browser-based companion
// shell polling from a different origin.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler)

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)
	return r
}
