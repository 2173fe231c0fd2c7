// Package store provides the storage interface and implementations for the
// coordinator's persisted entities: agents, tasks, run plans, audit logs,
// projects and cost records.
// The in-memory store serves local dev and tests; SQLite is the durable
// single-node backend.
package store

import (
	"context"

	"github.com/localconnect/devos/pkg/models"
)

// Store is the primary storage interface. All handler code depends on this
// interface, so the backend can be swapped without touching handlers.
type Store interface {
	AgentStore
	TaskStore
	RunPlanStore
	AuditStore
	ProjectStore
	CostStore

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate creates or upgrades the schema.
	Migrate(ctx context.Context) error
}

// ── Agent Store ─────────────────────────────────────────────

type AgentStore interface {
	// ListAgents returns every agent, oldest first. activeOnly excludes
	// OFFLINE agents.
	ListAgents(ctx context.Context, activeOnly bool) ([]models.Agent, error)
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	CreateAgent(ctx context.Context, agent *models.Agent) error
	UpdateAgent(ctx context.Context, agent *models.Agent) error
}

// ── Task Store ──────────────────────────────────────────────

type TaskStore interface {
	// ListTasks returns tasks matching filter, newest first.
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	CreateTask(ctx context.Context, task *models.Task) error
	UpdateTask(ctx context.Context, task *models.Task) error
}

// ── RunPlan Store ───────────────────────────────────────────

type RunPlanStore interface {
	// ListRunPlans returns run plans matching filter, newest first.
	ListRunPlans(ctx context.Context, filter models.RunPlanFilter) ([]models.RunPlan, error)
	GetRunPlan(ctx context.Context, id string) (*models.RunPlan, error)
	CreateRunPlan(ctx context.Context, rp *models.RunPlan) error
	UpdateRunPlan(ctx context.Context, rp *models.RunPlan) error
}

// ── Audit Store ─────────────────────────────────────────────

// AuditStore is append-only.
type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	// ListAuditLogs returns entries matching filter, newest first, after
	// skipping filter.Offset matches.
	ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

// ── Project Store ───────────────────────────────────────────

type ProjectStore interface {
	// ListProjects returns projects oldest first. activeOnly excludes
	// archived projects.
	ListProjects(ctx context.Context, activeOnly bool) ([]models.Project, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	CreateProject(ctx context.Context, p *models.Project) error
	UpdateProject(ctx context.Context, p *models.Project) error
}

// ── Cost Store ──────────────────────────────────────────────

// CostStore is append-only.
type CostStore interface {
	CreateCostRecord(ctx context.Context, rec *models.CostRecord) error
	// ListCostRecords returns records matching filter, newest first.
	ListCostRecords(ctx context.Context, filter models.CostFilter) ([]models.CostRecord, error)
	// SumCosts totals a project's records. A non-empty day restricts the
	// sum to that record date.
	SumCosts(ctx context.Context, projectID, day string) (models.CostTotals, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
