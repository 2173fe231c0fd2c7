package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/localconnect/devos/internal/store"
	"github.com/localconnect/devos/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Cost Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

const (
	defaultCostLimit = 100
	maxCostLimit     = 500
)

type createCostRequest struct {
	ProjectID          string  `json:"project_id"`
	AgentID            *string `json:"agent_id"`
	RunPlanID          *string `json:"runplan_id"`
	InputTokens        int     `json:"input_tokens"`
	OutputTokens       int     `json:"output_tokens"`
	TotalTokens        *int    `json:"total_tokens"`
	EstimatedCostCents int     `json:"estimated_cost_cents"`
	RecordDate         string  `json:"record_date"`
}

// today is the UTC record date used for daily totals.
func today() string {
	return time.Now().UTC().Format(models.DateLayout)
}

// queryDate reads an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", nil
	}
	if _, err := time.Parse(models.DateLayout, v); err != nil {
		return "", errors.New(name + " must be a date in YYYY-MM-DD format")
	}
	return v, nil
}

// ListCosts lists cost records newest first, filtered by project_id and an
// inclusive start_date/end_date range.
func (h *Handlers) ListCosts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultCostLimit, maxCostLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := queryDate(r, "start_date")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := queryDate(r, "end_date")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.Store.ListCostRecords(r.Context(), models.CostFilter{
		ProjectID: r.URL.Query().Get("project_id"),
		StartDate: start,
		EndDate:   end,
		Limit:     limit,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if records == nil {
		records = []models.CostRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// TodayCosts lists every cost record dated today, newest first.
func (h *Handlers) TodayCosts(w http.ResponseWriter, r *http.Request) {
	day := today()
	records, err := h.Store.ListCostRecords(r.Context(), models.CostFilter{StartDate: day, EndDate: day})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if records == nil {
		records = []models.CostRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// CostSummary totals a project's spend today and overall. An unknown
// project yields zero totals and no budget rather than 404.
func (h *Handlers) CostSummary(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	project, err := h.Store.GetProject(r.Context(), projectID)
	var nf *store.ErrNotFound
	if err != nil && !errors.As(err, &nf) {
		respondStoreError(w, err)
		return
	}

	todayTotals, err := h.Store.SumCosts(r.Context(), projectID, today())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	allTime, err := h.Store.SumCosts(r.Context(), projectID, "")
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewCostSummary(projectID, project, todayTotals, allTime))
}

// CreateCostRecord records token spend against an existing project.
// total_tokens defaults to input plus output; record_date defaults to today.
func (h *Handlers) CreateCostRecord(w http.ResponseWriter, r *http.Request) {
	var req createCostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProjectID == "" {
		respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.InputTokens < 0 || req.OutputTokens < 0 || req.EstimatedCostCents < 0 ||
		(req.TotalTokens != nil && *req.TotalTokens < 0) {
		respondError(w, http.StatusBadRequest, "token counts and cost must not be negative")
		return
	}
	if req.RecordDate == "" {
		req.RecordDate = today()
	} else if _, err := time.Parse(models.DateLayout, req.RecordDate); err != nil {
		respondError(w, http.StatusBadRequest, "record_date must be a date in YYYY-MM-DD format")
		return
	}
	if _, err := h.Store.GetProject(r.Context(), req.ProjectID); err != nil {
		respondStoreError(w, err)
		return
	}

	rec := &models.CostRecord{
		ID:                 uuid.New().String(),
		ProjectID:          req.ProjectID,
		AgentID:            req.AgentID,
		RunPlanID:          req.RunPlanID,
		InputTokens:        req.InputTokens,
		OutputTokens:       req.OutputTokens,
		TotalTokens:        req.InputTokens + req.OutputTokens,
		EstimatedCostCents: req.EstimatedCostCents,
		RecordDate:         req.RecordDate,
		CreatedAt:          time.Now().UTC(),
	}
	if req.TotalTokens != nil {
		rec.TotalTokens = *req.TotalTokens
	}
	if err := h.Store.CreateCostRecord(r.Context(), rec); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}
