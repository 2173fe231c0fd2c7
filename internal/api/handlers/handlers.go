// Package handlers implements the HTTP handlers for the DevOS coordinator.
// Entity handlers persist through the Store interface and push every
// mutation to WebSocket observers; MCP handlers drive the in-memory agent
// directory, messaging and design rendezvous.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/internal/audit"
	"github.com/localconnect/devos/internal/broadcast"
	"github.com/localconnect/devos/internal/mcp"
	"github.com/localconnect/devos/internal/store"
	"github.com/localconnect/devos/internal/ws"
)

// ServiceName is reported by the root and health endpoints.
const ServiceName = "devos-coordinator"

// Info describes the running instance.
type Info struct {
	Version  string
	RunnerID string
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Store       store.Store
	Hub         *ws.Hub
	Broadcaster *broadcast.Broadcaster
	Directory   *mcp.Directory
	Messenger   *mcp.Messenger
	Design      *mcp.Rendezvous
	Audit       *audit.Service
	Info        Info
}

// New creates a Handlers instance. The messenger and audit service are
// built over the given directory, broadcaster and store.
func New(s store.Store, hub *ws.Hub, b *broadcast.Broadcaster, dir *mcp.Directory, rv *mcp.Rendezvous, info Info) *Handlers {
	return &Handlers{
		Store:       s,
		Hub:         hub,
		Broadcaster: b,
		Directory:   dir,
		Messenger:   mcp.NewMessenger(dir, b),
		Design:      rv,
		Audit:       audit.NewService(s, b),
		Info:        info,
	}
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeBody decodes the JSON request body into v, replying 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respondStoreError maps store errors to HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// respondMCPError maps directory, messaging and rendezvous errors.
func respondMCPError(w http.ResponseWriter, err error) {
	var nf *mcp.ErrNotFound
	switch {
	case errors.As(err, &nf):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mcp.ErrNoAgents), errors.Is(err, mcp.ErrInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// queryLimit reads the "limit" query parameter, bounded to [1, max].
func queryLimit(r *http.Request, def, max int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("limit must be an integer between 1 and %d", max)
	}
	return n, nil
}

func queryOffset(r *http.Request) (int, error) {
	v := r.URL.Query().Get("offset")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("offset must be a non-negative integer")
	}
	return n, nil
}

// notify runs a broadcast after a committed mutation. The mutation already
// succeeded, so a failure is logged rather than returned to the client.
func notify(ctx context.Context, what, id string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("entity", what).Str("id", id).Msg("Failed to broadcast update")
	}
}

func strPtr(s string) *string { return &s }
