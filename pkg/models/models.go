// Package models defines the entities shared by the coordinator's store,
// broadcaster and HTTP handlers.
package models

import (
	"fmt"
	"time"
)

// ── Agent ────────────────────────────────────────────────────

type AgentStatus string

const (
	AgentStatusIdle          AgentStatus = "IDLE"
	AgentStatusPlanning      AgentStatus = "PLANNING"
	AgentStatusExecuting     AgentStatus = "EXECUTING"
	AgentStatusVerifying     AgentStatus = "VERIFYING"
	AgentStatusAwaitingInput AgentStatus = "AWAITING_INPUT"
	AgentStatusOffline       AgentStatus = "OFFLINE"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusPlanning, AgentStatusExecuting,
		AgentStatusVerifying, AgentStatusAwaitingInput, AgentStatusOffline:
		return true
	}
	return false
}

type AgentRole string

const (
	AgentRoleArchitect   AgentRole = "ARCHITECT"
	AgentRoleFrontendBot AgentRole = "FRONTEND_BOT"
	AgentRoleBackendBot  AgentRole = "BACKEND_BOT"
	AgentRoleReleaseBot  AgentRole = "RELEASE_BOT"
	AgentRoleBeanCounter AgentRole = "BEAN_COUNTER"
	AgentRoleGeneral     AgentRole = "GENERAL"
)

// Valid reports whether r is a known agent role.
func (r AgentRole) Valid() bool {
	switch r {
	case AgentRoleArchitect, AgentRoleFrontendBot, AgentRoleBackendBot,
		AgentRoleReleaseBot, AgentRoleBeanCounter, AgentRoleGeneral:
		return true
	}
	return false
}

// Agent is a persisted agent instance tracked by the coordinator.
type Agent struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Role            AgentRole   `json:"role"`
	Status          AgentStatus `json:"status"`
	RunnerID        string      `json:"runner_id"`
	CurrentTask     *string     `json:"current_task"`
	CurrentAction   *string     `json:"current_action"`
	TokensUsedToday int         `json:"tokens_used_today"`
	TotalTokensUsed int         `json:"total_tokens_used"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	LastHeartbeat   *time.Time  `json:"last_heartbeat"`
}

// ── Task ─────────────────────────────────────────────────────

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusQueued     TaskStatus = "QUEUED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusBlocked    TaskStatus = "BLOCKED"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusQueued, TaskStatusInProgress, TaskStatusBlocked,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether a task in this status is finished.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "LOW"
	TaskPriorityMedium   TaskPriority = "MEDIUM"
	TaskPriorityHigh     TaskPriority = "HIGH"
	TaskPriorityCritical TaskPriority = "CRITICAL"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityCritical:
		return true
	}
	return false
}

// Task is a unit of work assigned to an agent.
type Task struct {
	ID              string                 `json:"id"`
	ProjectID       string                 `json:"project_id"`
	Title           string                 `json:"title"`
	Description     *string                `json:"description"`
	Status          TaskStatus             `json:"status"`
	Priority        TaskPriority           `json:"priority"`
	AssignedAgentID *string                `json:"assigned_agent_id"`
	Metadata        map[string]interface{} `json:"task_metadata"`
	ErrorMessage    *string                `json:"error_message"`
	GitHubIssueURL  *string                `json:"github_issue_url"`
	MondayItemID    *string                `json:"monday_item_id"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	StartedAt       *time.Time             `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at"`
}

// ── RunPlan ──────────────────────────────────────────────────

type RunPlanStatus string

const (
	RunPlanStatusDraft     RunPlanStatus = "DRAFT"
	RunPlanStatusPending   RunPlanStatus = "PENDING"
	RunPlanStatusRunning   RunPlanStatus = "RUNNING"
	RunPlanStatusPaused    RunPlanStatus = "PAUSED"
	RunPlanStatusCompleted RunPlanStatus = "COMPLETED"
	RunPlanStatusFailed    RunPlanStatus = "FAILED"
	RunPlanStatusCancelled RunPlanStatus = "CANCELLED"
)

func (s RunPlanStatus) Valid() bool {
	switch s {
	case RunPlanStatusDraft, RunPlanStatusPending, RunPlanStatusRunning, RunPlanStatusPaused,
		RunPlanStatusCompleted, RunPlanStatusFailed, RunPlanStatusCancelled:
		return true
	}
	return false
}

func (s RunPlanStatus) Terminal() bool {
	return s == RunPlanStatusCompleted || s == RunPlanStatusFailed || s == RunPlanStatusCancelled
}

// Startable reports whether a run plan in this status may be started.
func (s RunPlanStatus) Startable() bool {
	return s == RunPlanStatusDraft || s == RunPlanStatusPending
}

// RunPlan is a structured execution plan for a task.
type RunPlan struct {
	ID           string                 `json:"id"`
	TaskID       string                 `json:"task_id"`
	SkillName    string                 `json:"skill_name"`
	SkillVersion string                 `json:"skill_version"`
	Inputs       map[string]interface{} `json:"inputs"`
	Outputs      map[string]interface{} `json:"outputs"`
	Status       RunPlanStatus          `json:"status"`
	CurrentStep  int                    `json:"current_step"`
	TotalSteps   int                    `json:"total_steps"`
	ErrorMessage *string                `json:"error_message"`
	RetryCount   int                    `json:"retry_count"`
	TokensUsed   int                    `json:"tokens_used"`
	GitHubPRURL  *string                `json:"github_pr_url"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	StartedAt    *time.Time             `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at"`
}

// ── Audit ────────────────────────────────────────────────────

type AuditAction string

const (
	AuditAgentStarted         AuditAction = "AGENT_STARTED"
	AuditAgentStopped         AuditAction = "AGENT_STOPPED"
	AuditAgentStatusChange    AuditAction = "AGENT_STATUS_CHANGE"
	AuditTaskCreated          AuditAction = "TASK_CREATED"
	AuditTaskAssigned         AuditAction = "TASK_ASSIGNED"
	AuditTaskStarted          AuditAction = "TASK_STARTED"
	AuditTaskCompleted        AuditAction = "TASK_COMPLETED"
	AuditTaskFailed           AuditAction = "TASK_FAILED"
	AuditRunPlanCreated       AuditAction = "RUNPLAN_CREATED"
	AuditRunPlanStarted       AuditAction = "RUNPLAN_STARTED"
	AuditRunPlanStepCompleted AuditAction = "RUNPLAN_STEP_COMPLETED"
	AuditRunPlanCompleted     AuditAction = "RUNPLAN_COMPLETED"
	AuditRunPlanFailed        AuditAction = "RUNPLAN_FAILED"
	AuditFileRead             AuditAction = "FILE_READ"
	AuditFileWrite            AuditAction = "FILE_WRITE"
	AuditFileDelete           AuditAction = "FILE_DELETE"
	AuditCommandRun           AuditAction = "COMMAND_RUN"
	AuditDecisionMade         AuditAction = "DECISION_MADE"
	AuditUserInputRequested   AuditAction = "USER_INPUT_REQUESTED"
	AuditUserInputReceived    AuditAction = "USER_INPUT_RECEIVED"
	AuditErrorOccurred        AuditAction = "ERROR_OCCURRED"
	AuditOpinionLogged        AuditAction = "OPINION_LOGGED"
)

var auditActions = map[AuditAction]struct{}{
	AuditAgentStarted: {}, AuditAgentStopped: {}, AuditAgentStatusChange: {},
	AuditTaskCreated: {}, AuditTaskAssigned: {}, AuditTaskStarted: {},
	AuditTaskCompleted: {}, AuditTaskFailed: {},
	AuditRunPlanCreated: {}, AuditRunPlanStarted: {}, AuditRunPlanStepCompleted: {},
	AuditRunPlanCompleted: {}, AuditRunPlanFailed: {},
	AuditFileRead: {}, AuditFileWrite: {}, AuditFileDelete: {}, AuditCommandRun: {},
	AuditDecisionMade: {}, AuditUserInputRequested: {}, AuditUserInputReceived: {},
	AuditErrorOccurred: {}, AuditOpinionLogged: {},
}

func (a AuditAction) Valid() bool {
	_, ok := auditActions[a]
	return ok
}

// AuditLog records a single agent action. "If an agent acts, it's logged here."
type AuditLog struct {
	ID           string                 `json:"id"`
	Action       AuditAction            `json:"action"`
	Description  string                 `json:"description"`
	AgentID      *string                `json:"agent_id"`
	AgentRole    *string                `json:"agent_role"`
	ProjectID    *string                `json:"project_id"`
	TaskID       *string                `json:"task_id"`
	RunPlanID    *string                `json:"runplan_id"`
	ExtraData    map[string]interface{} `json:"extra_data"`
	FilePath     *string                `json:"file_path"`
	Command      *string                `json:"command"`
	Success      bool                   `json:"success"`
	ErrorMessage *string                `json:"error_message"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ── Project ──────────────────────────────────────────────────

// DefaultMaxConcurrentRuns applies when a project is created without one.
const DefaultMaxConcurrentRuns = 3

// Project is a product the agent fleet builds. Archiving clears IsActive;
// projects are never hard-deleted.
type Project struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Description       *string                `json:"description"`
	GitHubRepoURL     *string                `json:"github_repo_url"`
	GitHubRepoName    *string                `json:"github_repo_name"`
	DailyTokenBudget  *int                   `json:"daily_token_budget"`
	MaxConcurrentRuns int                    `json:"max_concurrent_runs"`
	Config            map[string]interface{} `json:"config"`
	IsActive          bool                   `json:"is_active"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// ── Cost ─────────────────────────────────────────────────────

// DateLayout is the wire and storage format of a cost record's day.
// Dates in this layout compare correctly as strings.
const DateLayout = "2006-01-02"

// CostRecord is one unit of token spend attributed to a project.
type CostRecord struct {
	ID                 string    `json:"id"`
	ProjectID          string    `json:"project_id"`
	AgentID            *string   `json:"agent_id"`
	RunPlanID          *string   `json:"runplan_id"`
	InputTokens        int       `json:"input_tokens"`
	OutputTokens       int       `json:"output_tokens"`
	TotalTokens        int       `json:"total_tokens"`
	EstimatedCostCents int       `json:"estimated_cost_cents"`
	RecordDate         string    `json:"record_date"`
	CreatedAt          time.Time `json:"created_at"`
}

// CostTotals is a token and cost sum over a set of cost records.
type CostTotals struct {
	Tokens    int
	CostCents int
}

// CostSummary reports a project's spend today and overall against its
// daily token budget. Budget fields are null when the project has no budget.
type CostSummary struct {
	ProjectID                 string   `json:"project_id"`
	TotalTokensToday          int      `json:"total_tokens_today"`
	TotalTokensAllTime        int      `json:"total_tokens_all_time"`
	EstimatedCostTodayCents   int      `json:"estimated_cost_today_cents"`
	EstimatedCostAllTimeCents int      `json:"estimated_cost_all_time_cents"`
	DailyTokenBudget          *int     `json:"daily_token_budget"`
	BudgetRemainingToday      *int     `json:"budget_remaining_today"`
	BudgetPercentageUsed      *float64 `json:"budget_percentage_used"`
}

// NewCostSummary combines a project's totals with its budget. project may
// be nil when the id is unknown.
func NewCostSummary(projectID string, project *Project, today, allTime CostTotals) CostSummary {
	sum := CostSummary{
		ProjectID:                 projectID,
		TotalTokensToday:          today.Tokens,
		TotalTokensAllTime:        allTime.Tokens,
		EstimatedCostTodayCents:   today.CostCents,
		EstimatedCostAllTimeCents: allTime.CostCents,
	}
	if project == nil || project.DailyTokenBudget == nil {
		return sum
	}
	budget := *project.DailyTokenBudget
	sum.DailyTokenBudget = &budget
	if budget == 0 {
		return sum
	}
	remaining := budget - today.Tokens
	pct := float64(today.Tokens) / float64(budget) * 100
	sum.BudgetRemainingToday = &remaining
	sum.BudgetPercentageUsed = &pct
	return sum
}

// ── Filters ──────────────────────────────────────────────────

// TaskFilter narrows ListTasks. Zero values mean "any".
type TaskFilter struct {
	ProjectID string
	Status    TaskStatus
	Limit     int
}

// RunPlanFilter narrows ListRunPlans.
type RunPlanFilter struct {
	TaskID string
	Status RunPlanStatus
	Limit  int
}

// CostFilter narrows ListCostRecords. StartDate and EndDate are inclusive
// and use DateLayout.
type CostFilter struct {
	ProjectID string
	StartDate string
	EndDate   string
	Limit     int
}

// AuditFilter provides query options for listing audit logs.
type AuditFilter struct {
	ProjectID string
	AgentID   string
	TaskID    string
	Action    AuditAction
	Limit     int
	Offset    int
}

// ── MCP Directory ────────────────────────────────────────────

// DirectoryStatusOnline is the only status a registered agent can have;
// unregistering removes the record outright.
const DirectoryStatusOnline = "online"

// RegisteredAgent is an in-memory directory entry for an agent that can be
// addressed by directed messages.
type RegisteredAgent struct {
	AgentID      string    `json:"agent_id"`
	Capabilities []string  `json:"capabilities"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// ── MCP Messaging ────────────────────────────────────────────

type MessagePriority string

const (
	PriorityLow    MessagePriority = "low"
	PriorityNormal MessagePriority = "normal"
	PriorityHigh   MessagePriority = "high"
	PriorityUrgent MessagePriority = "urgent"
)

// ParseMessagePriority maps a wire value to a priority. Empty means normal.
func ParseMessagePriority(s string) (MessagePriority, error) {
	switch p := MessagePriority(s); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("invalid priority %q", s)
}

type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeNotification MessageType = "notification"
	MessageTypeCommand      MessageType = "command"
)

// ParseMessageType maps a wire value to a message type. Empty means notification.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case "":
		return MessageTypeNotification, nil
	case MessageTypeRequest, MessageTypeResponse, MessageTypeNotification, MessageTypeCommand:
		return t, nil
	}
	return "", fmt.Errorf("invalid message type %q", s)
}

// MessageReceipt acknowledges a directed or broadcast message.
type MessageReceipt struct {
	Success     bool       `json:"success"`
	MessageID   string     `json:"message_id"`
	DeliveredTo Recipients `json:"delivered_to"`
	Timestamp   time.Time  `json:"timestamp"`
}

// ── Design Requests ──────────────────────────────────────────

type DesignStatus string

const (
	DesignStatusPending   DesignStatus = "pending"
	DesignStatusCompleted DesignStatus = "completed"
)

// ChatMessage is one turn of a design conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DesignPayload is what a submitter asks the agent fleet for help with.
type DesignPayload struct {
	Message            string        `json:"message"`
	ProjectID          *string       `json:"project_id"`
	ProjectName        *string       `json:"project_name"`
	ProjectDescription *string       `json:"project_description"`
	Context            *string       `json:"context"`
	History            []ChatMessage `json:"history"`
}

// DesignRequest is a rendezvous entry pairing one submission with at most
// one response.
type DesignRequest struct {
	RequestID   string        `json:"request_id"`
	Payload     DesignPayload `json:"payload"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Status      DesignStatus  `json:"status"`
	Response    *string       `json:"response"`
	RespondedBy *string       `json:"responded_by"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// DesignSubmission is returned immediately from a submit; the answer
// arrives later as a DESIGN_RESPONSE event or via polling.
type DesignSubmission struct {
	RequestID string       `json:"request_id"`
	Status    DesignStatus `json:"status"`
	Message   string       `json:"message"`
}

// DesignAck acknowledges a delivered design response.
type DesignAck struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// PendingDesignSummary is the projection agents see when looking for
// unclaimed design work.
type PendingDesignSummary struct {
	RequestID   string       `json:"request_id"`
	Message     string       `json:"message"`
	ProjectName *string      `json:"project_name"`
	Status      DesignStatus `json:"status"`
	SubmittedAt time.Time    `json:"submitted_at"`
}
