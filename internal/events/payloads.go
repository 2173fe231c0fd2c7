package events

import "time"

// Payload shapes for each envelope kind. They carry only what observers
// need, not the full persisted record.

// AgentUpdate is the AGENT_UPDATE payload.
type AgentUpdate struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	Status          string    `json:"status"`
	CurrentTask     *string   `json:"current_task"`
	CurrentAction   *string   `json:"current_action"`
	TokensUsedToday int       `json:"tokens_used_today"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TaskUpdate is the TASK_UPDATE payload.
type TaskUpdate struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	AssignedAgentID *string   `json:"assigned_agent_id"`
	Priority        string    `json:"priority"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RunPlanUpdate is the RUNPLAN_UPDATE payload.
type RunPlanUpdate struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	SkillName   string    `json:"skill_name"`
	Status      string    `json:"status"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	TokensUsed  int       `json:"tokens_used"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuditEvent is the AUDIT_EVENT payload.
type AuditEvent struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	AgentID     *string   `json:"agent_id"`
	Success     bool      `json:"success"`
	CreatedAt   time.Time `json:"created_at"`
}

// AgentMessage is the AGENT_MESSAGE payload. TargetAgent is nil for
// broadcasts; clients filter directed messages by it.
type AgentMessage struct {
	MessageID   string  `json:"message_id"`
	SourceAgent string  `json:"source_agent"`
	TargetAgent *string `json:"target_agent"`
	Message     string  `json:"message"`
	Priority    string  `json:"priority"`
	MessageType string  `json:"message_type"`
}

// HistoryEntry is one conversation turn inside a DESIGN_REQUEST.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DesignRequest is the DESIGN_REQUEST payload.
type DesignRequest struct {
	RequestID          string         `json:"request_id"`
	Message            string         `json:"message"`
	ProjectID          *string        `json:"project_id"`
	ProjectName        *string        `json:"project_name"`
	ProjectDescription *string        `json:"project_description"`
	Context            *string        `json:"context"`
	History            []HistoryEntry `json:"history"`
}

// DesignResponse is the DESIGN_RESPONSE payload.
type DesignResponse struct {
	RequestID string `json:"request_id"`
	AgentID   string `json:"agent_id"`
	Response  string `json:"response"`
}
