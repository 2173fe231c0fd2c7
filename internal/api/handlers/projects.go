package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Project Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type createProjectRequest struct {
	Name              string                 `json:"name"`
	Description       *string                `json:"description"`
	GitHubRepoURL     *string                `json:"github_repo_url"`
	GitHubRepoName    *string                `json:"github_repo_name"`
	DailyTokenBudget  *int                   `json:"daily_token_budget"`
	MaxConcurrentRuns *int                   `json:"max_concurrent_runs"`
	Config            map[string]interface{} `json:"config"`
}

type updateProjectRequest struct {
	Name              *string                `json:"name"`
	Description       *string                `json:"description"`
	GitHubRepoURL     *string                `json:"github_repo_url"`
	GitHubRepoName    *string                `json:"github_repo_name"`
	DailyTokenBudget  *int                   `json:"daily_token_budget"`
	MaxConcurrentRuns *int                   `json:"max_concurrent_runs"`
	Config            map[string]interface{} `json:"config"`
	IsActive          *bool                  `json:"is_active"`
}

// ListProjects lists projects oldest first. Archived projects are hidden
// unless active_only=false.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if v := r.URL.Query().Get("active_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "active_only must be a boolean")
			return
		}
		activeOnly = b
	}

	projects, err := h.Store.ListProjects(r.Context(), activeOnly)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.Store.GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, project)
}

func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if msg := validateProjectLimits(req.DailyTokenBudget, req.MaxConcurrentRuns); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	project := &models.Project{
		ID:                uuid.New().String(),
		Name:              req.Name,
		Description:       req.Description,
		GitHubRepoURL:     req.GitHubRepoURL,
		GitHubRepoName:    req.GitHubRepoName,
		DailyTokenBudget:  req.DailyTokenBudget,
		MaxConcurrentRuns: models.DefaultMaxConcurrentRuns,
		Config:            req.Config,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.MaxConcurrentRuns != nil {
		project.MaxConcurrentRuns = *req.MaxConcurrentRuns
	}
	if err := h.Store.CreateProject(r.Context(), project); err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().Str("project", project.ID).Str("name", project.Name).Msg("Project created")
	respondJSON(w, http.StatusCreated, project)
}

// UpdateProject applies a partial update. Setting is_active=true restores
// an archived project.
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.Store.GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req updateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name != nil && *req.Name == "" {
		respondError(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	if msg := validateProjectLimits(req.DailyTokenBudget, req.MaxConcurrentRuns); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = req.Description
	}
	if req.GitHubRepoURL != nil {
		project.GitHubRepoURL = req.GitHubRepoURL
	}
	if req.GitHubRepoName != nil {
		project.GitHubRepoName = req.GitHubRepoName
	}
	if req.DailyTokenBudget != nil {
		project.DailyTokenBudget = req.DailyTokenBudget
	}
	if req.MaxConcurrentRuns != nil {
		project.MaxConcurrentRuns = *req.MaxConcurrentRuns
	}
	if req.Config != nil {
		project.Config = req.Config
	}
	if req.IsActive != nil {
		project.IsActive = *req.IsActive
	}
	project.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateProject(r.Context(), project); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, project)
}

// ArchiveProject soft-deletes a project. Its tasks and cost records stay.
func (h *Handlers) ArchiveProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.Store.GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	project.IsActive = false
	project.UpdatedAt = time.Now().UTC()
	if err := h.Store.UpdateProject(r.Context(), project); err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().Str("project", project.ID).Msg("Project archived")
	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "archived",
		"project_id": project.ID,
	})
}

func validateProjectLimits(budget, maxRuns *int) string {
	if budget != nil && *budget < 0 {
		return "daily_token_budget must not be negative"
	}
	if maxRuns != nil && *maxRuns < 1 {
		return "max_concurrent_runs must be at least 1"
	}
	return ""
}
