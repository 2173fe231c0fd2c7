package handlers

import (
	"net/http"
)

// Root describes the service.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"service":   ServiceName,
		"status":    "operational",
		"version":   h.Info.Version,
		"websocket": "/ws",
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
	})
}

// Ready reports whether the store is reachable.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"database":  "connected",
		"runner_id": h.Info.RunnerID,
	})
}

// WSStatus reports the number of open push connections.
func (h *Handlers) WSStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"active_connections": h.Hub.Count(),
		"endpoint":           "/ws",
	})
}

// ── Deprecated design chat ───────────────────────────────────

const designChatGone = "This endpoint is deprecated. Use POST /mcp/design to route design requests " +
	"through the agent ecosystem. Responses come via WebSocket (DESIGN_RESPONSE) or polling " +
	"GET /mcp/design/{request_id}."

func (h *Handlers) DesignChat(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusGone, designChatGone)
}

func (h *Handlers) DesignHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":        "deprecated",
		"message":       "Design chat now routes through MCP agent ecosystem",
		"use_instead":   "/mcp/design",
		"documentation": "POST /mcp/design submits request, response via WebSocket DESIGN_RESPONSE or GET /mcp/design/{request_id}",
	})
}
