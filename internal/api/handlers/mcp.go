package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/localconnect/devos/internal/mcp"
	"github.com/localconnect/devos/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── MCP Directory & Messaging ────────────────────────────────
// ══════════════════════════════════════════════════════════════

type registerRequest struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
}

type registrationResponse struct {
	AgentID    string `json:"agent_id"`
	Registered bool   `json:"registered"`
	Message    string `json:"message"`
}

// RegisterMCPAgent adds an agent to the directory, or refreshes it.
func (h *Handlers) RegisterMCPAgent(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	_, updated := h.Directory.Register(req.AgentID, req.Capabilities)
	msg := "Agent registered successfully"
	if updated {
		msg = "Agent updated successfully"
	}
	respondJSON(w, http.StatusOK, registrationResponse{
		AgentID:    req.AgentID,
		Registered: true,
		Message:    msg,
	})
}

func (h *Handlers) ListMCPAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Directory.List())
}

func (h *Handlers) UnregisterMCPAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := h.Directory.Unregister(agentID); err != nil {
		respondMCPError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, registrationResponse{
		AgentID:    agentID,
		Registered: false,
		Message:    "Agent unregistered successfully",
	})
}

// SendMessage delivers a directed message to a registered agent.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req mcp.DirectMessage
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := h.Messenger.Send(r.Context(), req)
	if err != nil {
		respondMCPError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

// BroadcastMessage notifies every registered agent.
func (h *Handlers) BroadcastMessage(w http.ResponseWriter, r *http.Request) {
	var req mcp.BroadcastMessage
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := h.Messenger.BroadcastToAll(r.Context(), req)
	if err != nil {
		respondMCPError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

// ══════════════════════════════════════════════════════════════
// ── Design Requests ──────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type pendingDesignList struct {
	PendingRequests []models.PendingDesignSummary `json:"pending_requests"`
	Count           int                           `json:"count"`
}

// SubmitDesign queues a design request for the agent fleet. The answer
// arrives as a DESIGN_RESPONSE event or via GetDesign.
func (h *Handlers) SubmitDesign(w http.ResponseWriter, r *http.Request) {
	var req models.DesignPayload
	if !decodeBody(w, r, &req) {
		return
	}
	sub, err := h.Design.Submit(r.Context(), req)
	if err != nil {
		respondMCPError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// RespondDesign is how an agent answers a pending design request.
func (h *Handlers) RespondDesign(w http.ResponseWriter, r *http.Request) {
	var req mcp.DesignAnswer
	if !decodeBody(w, r, &req) {
		return
	}
	ack, err := h.Design.Respond(r.Context(), req)
	if err != nil {
		respondMCPError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ack)
}

func (h *Handlers) GetDesign(w http.ResponseWriter, r *http.Request) {
	req, err := h.Design.Get(chi.URLParam(r, "requestID"))
	if err != nil {
		respondMCPError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (h *Handlers) ListPendingDesigns(w http.ResponseWriter, r *http.Request) {
	pending := h.Design.ListPending()
	respondJSON(w, http.StatusOK, pendingDesignList{
		PendingRequests: pending,
		Count:           len(pending),
	})
}
