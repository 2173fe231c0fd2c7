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
// ── Task Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

const (
	defaultTaskLimit = 100
	maxTaskLimit     = 500
)

type createTaskRequest struct {
	ProjectID      string                 `json:"project_id"`
	Title          string                 `json:"title"`
	Description    *string                `json:"description"`
	Priority       models.TaskPriority    `json:"priority"`
	GitHubIssueURL *string                `json:"github_issue_url"`
	MondayItemID   *string                `json:"monday_item_id"`
	Metadata       map[string]interface{} `json:"task_metadata"`
}

type updateTaskRequest struct {
	Title           *string                `json:"title"`
	Description     *string                `json:"description"`
	Status          *models.TaskStatus     `json:"status"`
	Priority        *models.TaskPriority   `json:"priority"`
	AssignedAgentID *string                `json:"assigned_agent_id"`
	ErrorMessage    *string                `json:"error_message"`
	Metadata        map[string]interface{} `json:"task_metadata"`
}

// ListTasks lists tasks newest first, optionally filtered by project_id
// and status.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultTaskLimit, maxTaskLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := models.TaskFilter{
		ProjectID: r.URL.Query().Get("project_id"),
		Status:    models.TaskStatus(r.URL.Query().Get("status")),
		Limit:     limit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid status: "+string(filter.Status))
		return
	}

	tasks, err := h.Store.ListTasks(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	respondJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Store.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" || req.ProjectID == "" {
		respondError(w, http.StatusBadRequest, "title and project_id are required")
		return
	}
	if req.Priority == "" {
		req.Priority = models.TaskPriorityMedium
	}
	if !req.Priority.Valid() {
		respondError(w, http.StatusBadRequest, "invalid priority: "+string(req.Priority))
		return
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:             uuid.New().String(),
		ProjectID:      req.ProjectID,
		Title:          req.Title,
		Description:    req.Description,
		Status:         models.TaskStatusPending,
		Priority:       req.Priority,
		Metadata:       req.Metadata,
		GitHubIssueURL: req.GitHubIssueURL,
		MondayItemID:   req.MondayItemID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.Store.CreateTask(r.Context(), task); err != nil {
		respondStoreError(w, err)
		return
	}

	notify(r.Context(), "task", task.ID, func(ctx context.Context) error {
		return h.Broadcaster.TaskUpdate(ctx, task)
	})
	log.Info().Str("task", task.ID).Str("project", task.ProjectID).Msg("Task created")
	respondJSON(w, http.StatusCreated, task)
}

// UpdateTask applies a partial update. The first move to IN_PROGRESS stamps
// started_at; any terminal status stamps completed_at.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Store.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req updateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid status: "+string(*req.Status))
		return
	}
	if req.Priority != nil && !req.Priority.Valid() {
		respondError(w, http.StatusBadRequest, "invalid priority: "+string(*req.Priority))
		return
	}

	now := time.Now().UTC()
	if req.Status != nil {
		switch {
		case *req.Status == models.TaskStatusInProgress && task.StartedAt == nil:
			task.StartedAt = &now
		case req.Status.Terminal():
			task.CompletedAt = &now
		}
		task.Status = *req.Status
	}
	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = req.Description
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.AssignedAgentID != nil {
		task.AssignedAgentID = req.AssignedAgentID
	}
	if req.ErrorMessage != nil {
		task.ErrorMessage = req.ErrorMessage
	}
	if req.Metadata != nil {
		task.Metadata = req.Metadata
	}
	task.UpdatedAt = now

	if err := h.Store.UpdateTask(r.Context(), task); err != nil {
		respondStoreError(w, err)
		return
	}
	notify(r.Context(), "task", task.ID, func(ctx context.Context) error {
		return h.Broadcaster.TaskUpdate(ctx, task)
	})
	respondJSON(w, http.StatusOK, task)
}

// AssignTask hands a task to an agent and queues it.
func (h *Handlers) AssignTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Store.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	task.AssignedAgentID = strPtr(chi.URLParam(r, "agentID"))
	task.Status = models.TaskStatusQueued
	task.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateTask(r.Context(), task); err != nil {
		respondStoreError(w, err)
		return
	}
	notify(r.Context(), "task", task.ID, func(ctx context.Context) error {
		return h.Broadcaster.TaskUpdate(ctx, task)
	})
	log.Info().Str("task", task.ID).Str("agent", *task.AssignedAgentID).Msg("Task assigned")
	respondJSON(w, http.StatusOK, task)
}
