package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── RunPlan Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

const (
	defaultRunPlanLimit = 50
	maxRunPlanLimit     = 200
	defaultSkillVersion = "v1"
)

type createRunPlanRequest struct {
	TaskID       string                 `json:"task_id"`
	SkillName    string                 `json:"skill_name"`
	SkillVersion string                 `json:"skill_version"`
	Inputs       map[string]interface{} `json:"inputs"`
	TotalSteps   int                    `json:"total_steps"`
}

type updateRunPlanRequest struct {
	Status       *models.RunPlanStatus  `json:"status"`
	CurrentStep  *int                   `json:"current_step"`
	Outputs      map[string]interface{} `json:"outputs"`
	ErrorMessage *string                `json:"error_message"`
	TokensUsed   *int                   `json:"tokens_used"`
	GitHubPRURL  *string                `json:"github_pr_url"`
}

func (h *Handlers) ListRunPlans(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultRunPlanLimit, maxRunPlanLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := models.RunPlanFilter{
		TaskID: r.URL.Query().Get("task_id"),
		Status: models.RunPlanStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid status: "+string(filter.Status))
		return
	}
	h.listRunPlans(w, r, filter)
}

// ListActiveRunPlans lists every RUNNING plan.
func (h *Handlers) ListActiveRunPlans(w http.ResponseWriter, r *http.Request) {
	h.listRunPlans(w, r, models.RunPlanFilter{Status: models.RunPlanStatusRunning})
}

func (h *Handlers) listRunPlans(w http.ResponseWriter, r *http.Request, filter models.RunPlanFilter) {
	plans, err := h.Store.ListRunPlans(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if plans == nil {
		plans = []models.RunPlan{}
	}
	respondJSON(w, http.StatusOK, plans)
}

func (h *Handlers) GetRunPlan(w http.ResponseWriter, r *http.Request) {
	rp, err := h.Store.GetRunPlan(r.Context(), chi.URLParam(r, "runPlanID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rp)
}

// CreateRunPlan creates a DRAFT plan for an existing task.
func (h *Handlers) CreateRunPlan(w http.ResponseWriter, r *http.Request) {
	var req createRunPlanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TaskID == "" || req.SkillName == "" {
		respondError(w, http.StatusBadRequest, "task_id and skill_name are required")
		return
	}
	if req.TotalSteps < 0 {
		respondError(w, http.StatusBadRequest, "total_steps must not be negative")
		return
	}
	if _, err := h.Store.GetTask(r.Context(), req.TaskID); err != nil {
		respondStoreError(w, err)
		return
	}
	if req.SkillVersion == "" {
		req.SkillVersion = defaultSkillVersion
	}
	if req.Inputs == nil {
		req.Inputs = map[string]interface{}{}
	}

	now := time.Now().UTC()
	rp := &models.RunPlan{
		ID:           uuid.New().String(),
		TaskID:       req.TaskID,
		SkillName:    req.SkillName,
		SkillVersion: req.SkillVersion,
		Inputs:       req.Inputs,
		Status:       models.RunPlanStatusDraft,
		TotalSteps:   req.TotalSteps,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Store.CreateRunPlan(r.Context(), rp); err != nil {
		respondStoreError(w, err)
		return
	}

	notify(r.Context(), "runplan", rp.ID, func(ctx context.Context) error {
		return h.Broadcaster.RunPlanUpdate(ctx, rp)
	})
	log.Info().Str("runplan", rp.ID).Str("task", rp.TaskID).Str("skill", rp.SkillName).Msg("RunPlan created")
	respondJSON(w, http.StatusCreated, rp)
}

// UpdateRunPlan applies a partial update with the same timestamp rules as
// tasks: first RUNNING stamps started_at, terminal stamps completed_at.
func (h *Handlers) UpdateRunPlan(w http.ResponseWriter, r *http.Request) {
	rp, err := h.Store.GetRunPlan(r.Context(), chi.URLParam(r, "runPlanID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req updateRunPlanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid status: "+string(*req.Status))
		return
	}

	now := time.Now().UTC()
	if req.Status != nil {
		switch {
		case *req.Status == models.RunPlanStatusRunning && rp.StartedAt == nil:
			rp.StartedAt = &now
		case req.Status.Terminal():
			rp.CompletedAt = &now
		}
		rp.Status = *req.Status
	}
	if req.CurrentStep != nil {
		rp.CurrentStep = *req.CurrentStep
	}
	if req.Outputs != nil {
		rp.Outputs = req.Outputs
	}
	if req.ErrorMessage != nil {
		rp.ErrorMessage = req.ErrorMessage
	}
	if req.TokensUsed != nil {
		rp.TokensUsed = *req.TokensUsed
	}
	if req.GitHubPRURL != nil {
		rp.GitHubPRURL = req.GitHubPRURL
	}
	rp.UpdatedAt = now

	if err := h.Store.UpdateRunPlan(r.Context(), rp); err != nil {
		respondStoreError(w, err)
		return
	}
	notify(r.Context(), "runplan", rp.ID, func(ctx context.Context) error {
		return h.Broadcaster.RunPlanUpdate(ctx, rp)
	})
	respondJSON(w, http.StatusOK, rp)
}

// StartRunPlan moves a DRAFT or PENDING plan to RUNNING.
func (h *Handlers) StartRunPlan(w http.ResponseWriter, r *http.Request) {
	rp, err := h.Store.GetRunPlan(r.Context(), chi.URLParam(r, "runPlanID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !rp.Status.Startable() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Cannot start RunPlan in %s status", rp.Status))
		return
	}

	now := time.Now().UTC()
	rp.Status = models.RunPlanStatusRunning
	rp.StartedAt = &now
	rp.UpdatedAt = now

	if err := h.Store.UpdateRunPlan(r.Context(), rp); err != nil {
		respondStoreError(w, err)
		return
	}
	notify(r.Context(), "runplan", rp.ID, func(ctx context.Context) error {
		return h.Broadcaster.RunPlanUpdate(ctx, rp)
	})
	log.Info().Str("runplan", rp.ID).Msg("RunPlan started")
	respondJSON(w, http.StatusOK, rp)
}
