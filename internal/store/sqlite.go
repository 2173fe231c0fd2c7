package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/localconnect/devos/pkg/models"
)

// Fixed-width UTC layout so ORDER BY on the text column is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path and creates the
// schema if it doesn't exist. Parent directories are created if needed.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("SQLite store initialized")
	return s, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	log.Info().Str("path", s.path).Msg("Closing SQLite store")
	return s.db.Close()
}

// Migrate creates the tables if they don't exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id                TEXT PRIMARY KEY,
			name              TEXT NOT NULL,
			role              TEXT NOT NULL,
			status            TEXT NOT NULL,
			runner_id         TEXT NOT NULL,
			current_task      TEXT,
			current_action    TEXT,
			tokens_used_today INTEGER NOT NULL DEFAULT 0,
			total_tokens_used INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL,
			last_heartbeat    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);

		CREATE TABLE IF NOT EXISTS tasks (
			id                TEXT PRIMARY KEY,
			project_id        TEXT NOT NULL,
			title             TEXT NOT NULL,
			description       TEXT,
			status            TEXT NOT NULL,
			priority          TEXT NOT NULL,
			assigned_agent_id TEXT,
			task_metadata     TEXT,
			error_message     TEXT,
			github_issue_url  TEXT,
			monday_item_id    TEXT,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL,
			started_at        TEXT,
			completed_at      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

		CREATE TABLE IF NOT EXISTS runplans (
			id            TEXT PRIMARY KEY,
			task_id       TEXT NOT NULL,
			skill_name    TEXT NOT NULL,
			skill_version TEXT NOT NULL,
			inputs        TEXT,
			outputs       TEXT,
			status        TEXT NOT NULL,
			current_step  INTEGER NOT NULL DEFAULT 0,
			total_steps   INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			retry_count   INTEGER NOT NULL DEFAULT 0,
			tokens_used   INTEGER NOT NULL DEFAULT 0,
			github_pr_url TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			started_at    TEXT,
			completed_at  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runplans_task ON runplans(task_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_runplans_status ON runplans(status);

		CREATE TABLE IF NOT EXISTS audit_logs (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			action        TEXT NOT NULL,
			description   TEXT NOT NULL,
			agent_id      TEXT,
			agent_role    TEXT,
			project_id    TEXT,
			task_id       TEXT,
			runplan_id    TEXT,
			extra_data    TEXT,
			file_path     TEXT,
			command       TEXT,
			success       INTEGER NOT NULL,
			error_message TEXT,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_logs(created_at);
		CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_logs(agent_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_audit_task ON audit_logs(task_id);

		CREATE TABLE IF NOT EXISTS projects (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL,
			description         TEXT,
			github_repo_url     TEXT,
			github_repo_name    TEXT,
			daily_token_budget  INTEGER,
			max_concurrent_runs INTEGER NOT NULL DEFAULT 3,
			config              TEXT,
			is_active           INTEGER NOT NULL DEFAULT 1,
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cost_records (
			id                   TEXT PRIMARY KEY,
			project_id           TEXT NOT NULL,
			agent_id             TEXT,
			runplan_id           TEXT,
			input_tokens         INTEGER NOT NULL DEFAULT 0,
			output_tokens        INTEGER NOT NULL DEFAULT 0,
			total_tokens         INTEGER NOT NULL DEFAULT 0,
			estimated_cost_cents INTEGER NOT NULL DEFAULT 0,
			record_date          TEXT NOT NULL,
			created_at           TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_costs_project_date ON cost_records(project_id, record_date);
		CREATE INDEX IF NOT EXISTS idx_costs_created ON cost_records(created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ── Agent Store ─────────────────────────────────────────────

const agentColumns = `id, name, role, status, runner_id, current_task, current_action,
	tokens_used_today, total_tokens_used, created_at, updated_at, last_heartbeat`

func (s *SQLiteStore) ListAgents(ctx context.Context, activeOnly bool) ([]models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []interface{}
	if activeOnly {
		query += ` WHERE status != ?`
		args = append(args, string(models.AgentStatusOffline))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	return a, err
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, a *models.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, string(a.Role), string(a.Status), a.RunnerID,
		nullString(a.CurrentTask), nullString(a.CurrentAction),
		a.TokensUsedToday, a.TotalTokensUsed,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt), nullTime(a.LastHeartbeat),
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, a *models.Agent) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agents SET name = ?, role = ?, status = ?, runner_id = ?,
			current_task = ?, current_action = ?, tokens_used_today = ?,
			total_tokens_used = ?, updated_at = ?, last_heartbeat = ?
		WHERE id = ?`,
		a.Name, string(a.Role), string(a.Status), a.RunnerID,
		nullString(a.CurrentTask), nullString(a.CurrentAction), a.TokensUsedToday,
		a.TotalTokensUsed, formatTime(a.UpdatedAt), nullTime(a.LastHeartbeat),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}
	return requireRow(result, "agent", a.ID)
}

func scanAgent(r rowScanner) (*models.Agent, error) {
	var (
		a                    models.Agent
		role, status         string
		task, action         sql.NullString
		createdAt, updatedAt string
		heartbeat            sql.NullString
	)
	if err := r.Scan(&a.ID, &a.Name, &role, &status, &a.RunnerID, &task, &action,
		&a.TokensUsedToday, &a.TotalTokensUsed, &createdAt, &updatedAt, &heartbeat); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning agent row: %w", err)
	}
	a.Role = models.AgentRole(role)
	a.Status = models.AgentStatus(status)
	a.CurrentTask = stringPtr(task)
	a.CurrentAction = stringPtr(action)

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if a.LastHeartbeat, err = parseNullTime(heartbeat); err != nil {
		return nil, err
	}
	return &a, nil
}

// ── Task Store ──────────────────────────────────────────────

const taskColumns = `id, project_id, title, description, status, priority, assigned_agent_id,
	task_metadata, error_message, github_issue_url, monday_item_id,
	created_at, updated_at, started_at, completed_at`

func (s *SQLiteStore) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + taskColumns + ` FROM tasks` + whereClause(where) + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task rows: %w", err)
	}
	return tasks, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	return t, err
}

func (s *SQLiteStore) CreateTask(ctx context.Context, t *models.Task) error {
	meta, err := encodeJSON(t.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Title, nullString(t.Description), string(t.Status), string(t.Priority),
		nullString(t.AssignedAgentID), meta, nullString(t.ErrorMessage),
		nullString(t.GitHubIssueURL), nullString(t.MondayItemID),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), nullTime(t.StartedAt), nullTime(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t *models.Task) error {
	meta, err := encodeJSON(t.Metadata)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET project_id = ?, title = ?, description = ?, status = ?, priority = ?,
			assigned_agent_id = ?, task_metadata = ?, error_message = ?, github_issue_url = ?,
			monday_item_id = ?, updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		t.ProjectID, t.Title, nullString(t.Description), string(t.Status), string(t.Priority),
		nullString(t.AssignedAgentID), meta, nullString(t.ErrorMessage), nullString(t.GitHubIssueURL),
		nullString(t.MondayItemID), formatTime(t.UpdatedAt), nullTime(t.StartedAt), nullTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	return requireRow(result, "task", t.ID)
}

func scanTask(r rowScanner) (*models.Task, error) {
	var (
		t                            models.Task
		status, priority             string
		desc, assigned, meta, errMsg sql.NullString
		issueURL, mondayID           sql.NullString
		createdAt, updatedAt         string
		startedAt, completedAt       sql.NullString
	)
	if err := r.Scan(&t.ID, &t.ProjectID, &t.Title, &desc, &status, &priority, &assigned,
		&meta, &errMsg, &issueURL, &mondayID, &createdAt, &updatedAt, &startedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning task row: %w", err)
	}
	t.Status = models.TaskStatus(status)
	t.Priority = models.TaskPriority(priority)
	t.Description = stringPtr(desc)
	t.AssignedAgentID = stringPtr(assigned)
	t.ErrorMessage = stringPtr(errMsg)
	t.GitHubIssueURL = stringPtr(issueURL)
	t.MondayItemID = stringPtr(mondayID)

	var err error
	if t.Metadata, err = decodeJSON(meta); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if t.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// ── RunPlan Store ───────────────────────────────────────────

const runPlanColumns = `id, task_id, skill_name, skill_version, inputs, outputs, status,
	current_step, total_steps, error_message, retry_count, tokens_used, github_pr_url,
	created_at, updated_at, started_at, completed_at`

func (s *SQLiteStore) ListRunPlans(ctx context.Context, filter models.RunPlanFilter) ([]models.RunPlan, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, filter.TaskID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + runPlanColumns + ` FROM runplans` + whereClause(where) + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runplans: %w", err)
	}
	defer rows.Close()

	plans := []models.RunPlan{}
	for rows.Next() {
		rp, err := scanRunPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runplan rows: %w", err)
	}
	return plans, nil
}

func (s *SQLiteStore) GetRunPlan(ctx context.Context, id string) (*models.RunPlan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runPlanColumns+` FROM runplans WHERE id = ?`, id)
	rp, err := scanRunPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "runplan", Key: id}
	}
	return rp, err
}

func (s *SQLiteStore) CreateRunPlan(ctx context.Context, rp *models.RunPlan) error {
	inputs, err := encodeJSON(rp.Inputs)
	if err != nil {
		return err
	}
	outputs, err := encodeJSON(rp.Outputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runplans (`+runPlanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rp.ID, rp.TaskID, rp.SkillName, rp.SkillVersion, inputs, outputs, string(rp.Status),
		rp.CurrentStep, rp.TotalSteps, nullString(rp.ErrorMessage), rp.RetryCount, rp.TokensUsed,
		nullString(rp.GitHubPRURL), formatTime(rp.CreatedAt), formatTime(rp.UpdatedAt),
		nullTime(rp.StartedAt), nullTime(rp.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting runplan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRunPlan(ctx context.Context, rp *models.RunPlan) error {
	inputs, err := encodeJSON(rp.Inputs)
	if err != nil {
		return err
	}
	outputs, err := encodeJSON(rp.Outputs)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE runplans SET task_id = ?, skill_name = ?, skill_version = ?, inputs = ?, outputs = ?,
			status = ?, current_step = ?, total_steps = ?, error_message = ?, retry_count = ?,
			tokens_used = ?, github_pr_url = ?, updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		rp.TaskID, rp.SkillName, rp.SkillVersion, inputs, outputs,
		string(rp.Status), rp.CurrentStep, rp.TotalSteps, nullString(rp.ErrorMessage), rp.RetryCount,
		rp.TokensUsed, nullString(rp.GitHubPRURL), formatTime(rp.UpdatedAt), nullTime(rp.StartedAt),
		nullTime(rp.CompletedAt),
		rp.ID,
	)
	if err != nil {
		return fmt.Errorf("updating runplan: %w", err)
	}
	return requireRow(result, "runplan", rp.ID)
}

func scanRunPlan(r rowScanner) (*models.RunPlan, error) {
	var (
		rp                     models.RunPlan
		status                 string
		inputs, outputs        sql.NullString
		errMsg, prURL          sql.NullString
		createdAt, updatedAt   string
		startedAt, completedAt sql.NullString
	)
	if err := r.Scan(&rp.ID, &rp.TaskID, &rp.SkillName, &rp.SkillVersion, &inputs, &outputs, &status,
		&rp.CurrentStep, &rp.TotalSteps, &errMsg, &rp.RetryCount, &rp.TokensUsed, &prURL,
		&createdAt, &updatedAt, &startedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning runplan row: %w", err)
	}
	rp.Status = models.RunPlanStatus(status)
	rp.ErrorMessage = stringPtr(errMsg)
	rp.GitHubPRURL = stringPtr(prURL)

	var err error
	if rp.Inputs, err = decodeJSON(inputs); err != nil {
		return nil, err
	}
	if rp.Outputs, err = decodeJSON(outputs); err != nil {
		return nil, err
	}
	if rp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if rp.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if rp.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &rp, nil
}

// ── Audit Store ─────────────────────────────────────────────

const auditColumns = `id, action, description, agent_id, agent_role, project_id, task_id,
	runplan_id, extra_data, file_path, command, success, error_message, created_at`

func (s *SQLiteStore) CreateAuditLog(ctx context.Context, e *models.AuditLog) error {
	extra, err := encodeJSON(e.ExtraData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.Description, nullString(e.AgentID), nullString(e.AgentRole),
		nullString(e.ProjectID), nullString(e.TaskID), nullString(e.RunPlanID), extra,
		nullString(e.FilePath), nullString(e.Command), e.Success, nullString(e.ErrorMessage),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, filter.TaskID)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(filter.Action))
	}
	query := `SELECT ` + auditColumns + ` FROM audit_logs` + whereClause(where) +
		` ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var (
			e                                  models.AuditLog
			action                             string
			agentID, agentRole, projectID      sql.NullString
			taskID, runPlanID, extra, filePath sql.NullString
			command, errMsg                    sql.NullString
			createdAt                          string
		)
		if err := rows.Scan(&e.ID, &action, &e.Description, &agentID, &agentRole, &projectID, &taskID,
			&runPlanID, &extra, &filePath, &command, &e.Success, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		e.Action = models.AuditAction(action)
		e.AgentID = stringPtr(agentID)
		e.AgentRole = stringPtr(agentRole)
		e.ProjectID = stringPtr(projectID)
		e.TaskID = stringPtr(taskID)
		e.RunPlanID = stringPtr(runPlanID)
		e.FilePath = stringPtr(filePath)
		e.Command = stringPtr(command)
		e.ErrorMessage = stringPtr(errMsg)
		if e.ExtraData, err = decodeJSON(extra); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}
	return logs, nil
}

// ── Project Store ───────────────────────────────────────────

const projectColumns = `id, name, description, github_repo_url, github_repo_name,
	daily_token_budget, max_concurrent_runs, config, is_active, created_at, updated_at`

func (s *SQLiteStore) ListProjects(ctx context.Context, activeOnly bool) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}
	return projects, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "project", Key: id}
	}
	return p, err
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	cfg, err := encodeJSON(p.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullString(p.Description), nullString(p.GitHubRepoURL), nullString(p.GitHubRepoName),
		nullInt(p.DailyTokenBudget), p.MaxConcurrentRuns, cfg, p.IsActive,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *models.Project) error {
	cfg, err := encodeJSON(p.Config)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, description = ?, github_repo_url = ?, github_repo_name = ?,
			daily_token_budget = ?, max_concurrent_runs = ?, config = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, nullString(p.Description), nullString(p.GitHubRepoURL), nullString(p.GitHubRepoName),
		nullInt(p.DailyTokenBudget), p.MaxConcurrentRuns, cfg, p.IsActive, formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return requireRow(result, "project", p.ID)
}

func scanProject(r rowScanner) (*models.Project, error) {
	var (
		p                    models.Project
		desc, repoURL, repo  sql.NullString
		budget               sql.NullInt64
		cfg                  sql.NullString
		createdAt, updatedAt string
	)
	if err := r.Scan(&p.ID, &p.Name, &desc, &repoURL, &repo, &budget, &p.MaxConcurrentRuns,
		&cfg, &p.IsActive, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning project row: %w", err)
	}
	p.Description = stringPtr(desc)
	p.GitHubRepoURL = stringPtr(repoURL)
	p.GitHubRepoName = stringPtr(repo)
	if budget.Valid {
		b := int(budget.Int64)
		p.DailyTokenBudget = &b
	}

	var err error
	if p.Config, err = decodeJSON(cfg); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ── Cost Store ──────────────────────────────────────────────

const costColumns = `id, project_id, agent_id, runplan_id, input_tokens, output_tokens,
	total_tokens, estimated_cost_cents, record_date, created_at`

func (s *SQLiteStore) CreateCostRecord(ctx context.Context, c *models.CostRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_records (`+costColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, nullString(c.AgentID), nullString(c.RunPlanID),
		c.InputTokens, c.OutputTokens, c.TotalTokens, c.EstimatedCostCents,
		c.RecordDate, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting cost record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCostRecords(ctx context.Context, filter models.CostFilter) ([]models.CostRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.StartDate != "" {
		where = append(where, "record_date >= ?")
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where = append(where, "record_date <= ?")
		args = append(args, filter.EndDate)
	}
	query := `SELECT ` + costColumns + ` FROM cost_records` + whereClause(where) +
		` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cost records: %w", err)
	}
	defer rows.Close()

	records := []models.CostRecord{}
	for rows.Next() {
		var (
			c                  models.CostRecord
			agentID, runPlanID sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &agentID, &runPlanID, &c.InputTokens, &c.OutputTokens,
			&c.TotalTokens, &c.EstimatedCostCents, &c.RecordDate, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning cost row: %w", err)
		}
		c.AgentID = stringPtr(agentID)
		c.RunPlanID = stringPtr(runPlanID)
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cost rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) SumCosts(ctx context.Context, projectID, day string) (models.CostTotals, error) {
	query := `SELECT COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost_cents), 0)
		FROM cost_records WHERE project_id = ?`
	args := []interface{}{projectID}
	if day != "" {
		query += ` AND record_date = ?`
		args = append(args, day)
	}

	var totals models.CostTotals
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&totals.Tokens, &totals.CostCents); err != nil {
		return models.CostTotals{}, fmt.Errorf("summing cost records: %w", err)
	}
	return totals, nil
}

// ── Helpers ─────────────────────────────────────────────────

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func requireRow(result sql.Result, entity, key string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return &ErrNotFound{Entity: entity, Key: key}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func encodeJSON(m map[string]interface{}) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding json column: %w", err)
	}
	return string(data), nil
}

func decodeJSON(ns sql.NullString) (map[string]interface{}, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, fmt.Errorf("decoding json column: %w", err)
	}
	return m, nil
}
