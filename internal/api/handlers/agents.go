package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Agent Handlers ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type createAgentRequest struct {
	Name     string           `json:"name"`
	Role     models.AgentRole `json:"role"`
	RunnerID string           `json:"runner_id"`
}

type updateAgentRequest struct {
	Name          *string           `json:"name"`
	Role          *models.AgentRole `json:"role"`
	CurrentTask   *string           `json:"current_task"`
	CurrentAction *string           `json:"current_action"`
}

type agentStatusRequest struct {
	Status        models.AgentStatus `json:"status"`
	CurrentAction *string            `json:"current_action"`
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	h.listAgents(w, r, false)
}

// ListActiveAgents lists agents that are not OFFLINE.
func (h *Handlers) ListActiveAgents(w http.ResponseWriter, r *http.Request) {
	h.listAgents(w, r, true)
}

func (h *Handlers) listAgents(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	agents, err := h.Store.ListAgents(r.Context(), activeOnly)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	respondJSON(w, http.StatusOK, agents)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.RunnerID == "" {
		respondError(w, http.StatusBadRequest, "name and runner_id are required")
		return
	}
	if req.Role == "" {
		req.Role = models.AgentRoleGeneral
	}
	if !req.Role.Valid() {
		respondError(w, http.StatusBadRequest, "invalid role: "+string(req.Role))
		return
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Role:      req.Role,
		Status:    models.AgentStatusIdle,
		RunnerID:  req.RunnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.CreateAgent(r.Context(), agent); err != nil {
		respondStoreError(w, err)
		return
	}

	notify(r.Context(), "agent", agent.ID, func(ctx context.Context) error {
		return h.Broadcaster.AgentUpdate(ctx, agent)
	})
	log.Info().Str("agent", agent.Name).Str("id", agent.ID).Str("role", string(agent.Role)).Msg("Agent created")
	respondJSON(w, http.StatusCreated, agent)
}

func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req updateAgentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Role != nil && !req.Role.Valid() {
		respondError(w, http.StatusBadRequest, "invalid role: "+string(*req.Role))
		return
	}

	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.Role != nil {
		agent.Role = *req.Role
	}
	if req.CurrentTask != nil {
		agent.CurrentTask = req.CurrentTask
	}
	if req.CurrentAction != nil {
		agent.CurrentAction = req.CurrentAction
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateAgent(r.Context(), agent); err != nil {
		respondStoreError(w, err)
		return
	}
	notify(r.Context(), "agent", agent.ID, func(ctx context.Context) error {
		return h.Broadcaster.AgentUpdate(ctx, agent)
	})
	respondJSON(w, http.StatusOK, agent)
}

// UpdateAgentStatus sets an agent's status and, optionally, its current
// action.
func (h *Handlers) UpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req agentStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid status: "+string(req.Status))
		return
	}

	agent.Status = req.Status
	if req.CurrentAction != nil {
		agent.CurrentAction = req.CurrentAction
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateAgent(r.Context(), agent); err != nil {
		respondStoreError(w, err)
		return
	}
	notify(r.Context(), "agent", agent.ID, func(ctx context.Context) error {
		return h.Broadcaster.AgentUpdate(ctx, agent)
	})
	log.Debug().Str("id", agent.ID).Str("status", string(agent.Status)).Msg("Agent status changed")
	respondJSON(w, http.StatusOK, agent)
}

// AgentHeartbeat records liveness. Heartbeats are not broadcast.
func (h *Handlers) AgentHeartbeat(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	now := time.Now().UTC()
	agent.LastHeartbeat = &now
	if err := h.Store.UpdateAgent(r.Context(), agent); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}
