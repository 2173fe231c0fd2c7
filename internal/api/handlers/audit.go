package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/localconnect/devos/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Audit Handlers ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

const (
	defaultAuditLimit  = 100
	maxAuditLimit      = 1000
	maxAgentAuditLimit = 500
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

type createAuditRequest struct {
	Action       models.AuditAction     `json:"action"`
	Description  string                 `json:"description"`
	AgentID      *string                `json:"agent_id"`
	AgentRole    *string                `json:"agent_role"`
	ProjectID    *string                `json:"project_id"`
	TaskID       *string                `json:"task_id"`
	RunPlanID    *string                `json:"runplan_id"`
	ExtraData    map[string]interface{} `json:"extra_data"`
	FilePath     *string                `json:"file_path"`
	Command      *string                `json:"command"`
	Success      *bool                  `json:"success"`
	ErrorMessage *string                `json:"error_message"`
}

// ListAuditLogs lists audit entries newest first with optional filters
// and offset paging.
func (h *Handlers) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultAuditLimit, maxAuditLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryOffset(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := models.AuditFilter{
		ProjectID: q.Get("project_id"),
		AgentID:   q.Get("agent_id"),
		TaskID:    q.Get("task_id"),
		Action:    models.AuditAction(q.Get("action")),
		Limit:     limit,
		Offset:    offset,
	}
	if filter.Action != "" && !filter.Action.Valid() {
		respondError(w, http.StatusBadRequest, "invalid action: "+string(filter.Action))
		return
	}
	h.listAudit(w, r, filter)
}

// RecentAuditLogs returns the latest activity across all agents.
func (h *Handlers) RecentAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultRecentLimit, maxRecentLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.listAudit(w, r, models.AuditFilter{Limit: limit})
}

func (h *Handlers) AgentAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultAuditLimit, maxAgentAuditLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.listAudit(w, r, models.AuditFilter{AgentID: chi.URLParam(r, "agentID"), Limit: limit})
}

func (h *Handlers) listAudit(w http.ResponseWriter, r *http.Request, filter models.AuditFilter) {
	logs, err := h.Store.ListAuditLogs(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	respondJSON(w, http.StatusOK, logs)
}

// CreateAuditLog lets an agent record one of its own actions.
func (h *Handlers) CreateAuditLog(w http.ResponseWriter, r *http.Request) {
	var req createAuditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Action.Valid() {
		respondError(w, http.StatusBadRequest, "invalid action: "+string(req.Action))
		return
	}
	if req.Description == "" {
		respondError(w, http.StatusBadRequest, "description is required")
		return
	}

	success := true
	if req.Success != nil {
		success = *req.Success
	}
	entry, err := h.Audit.Log(r.Context(), &models.AuditLog{
		Action:       req.Action,
		Description:  req.Description,
		AgentID:      req.AgentID,
		AgentRole:    req.AgentRole,
		ProjectID:    req.ProjectID,
		TaskID:       req.TaskID,
		RunPlanID:    req.RunPlanID,
		ExtraData:    req.ExtraData,
		FilePath:     req.FilePath,
		Command:      req.Command,
		Success:      success,
		ErrorMessage: req.ErrorMessage,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}
