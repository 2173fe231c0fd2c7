package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/localconnect/devos/internal/store"
	"github.com/localconnect/devos/pkg/models"
)

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		s := store.NewMemoryStore("")
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := store.NewSQLiteStore(context.Background(), ":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func strPtr(s string) *string { return &s }

var base = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

// ─── Agent CRUD ──────────────────────────────────────────────

func TestCreateAndGetAgent(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		agent := &models.Agent{
			ID: "a1", Name: "architect", Role: models.AgentRoleArchitect,
			Status: models.AgentStatusIdle, RunnerID: "runner-1",
			CurrentAction: strPtr("thinking"), CreatedAt: base, UpdatedAt: base,
		}
		if err := s.CreateAgent(ctx, agent); err != nil {
			t.Fatalf("CreateAgent() error = %v", err)
		}

		got, err := s.GetAgent(ctx, "a1")
		if err != nil {
			t.Fatalf("GetAgent() error = %v", err)
		}
		if got.Name != "architect" {
			t.Errorf("GetAgent().Name = %q, want %q", got.Name, "architect")
		}
		if got.CurrentAction == nil || *got.CurrentAction != "thinking" {
			t.Errorf("GetAgent().CurrentAction = %v, want thinking", got.CurrentAction)
		}
		if got.CurrentTask != nil {
			t.Errorf("GetAgent().CurrentTask = %v, want nil", got.CurrentTask)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("GetAgent().CreatedAt = %v, want %v", got.CreatedAt, base)
		}
	})
}

func TestGetAgent_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		_, err := s.GetAgent(context.Background(), "ghost")
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			t.Fatalf("GetAgent() error = %v, want *ErrNotFound", err)
		}
		if nf.Error() != "agent not found: ghost" {
			t.Errorf("Error() = %q", nf.Error())
		}
	})
}

func TestUpdateAgent(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		s.CreateAgent(ctx, &models.Agent{ID: "a1", Name: "x", Role: models.AgentRoleGeneral,
			Status: models.AgentStatusIdle, RunnerID: "r", CreatedAt: base, UpdatedAt: base})

		got, _ := s.GetAgent(ctx, "a1")
		hb := base.Add(time.Minute)
		got.Status = models.AgentStatusExecuting
		got.LastHeartbeat = &hb
		got.UpdatedAt = hb
		if err := s.UpdateAgent(ctx, got); err != nil {
			t.Fatalf("UpdateAgent() error = %v", err)
		}

		after, _ := s.GetAgent(ctx, "a1")
		if after.Status != models.AgentStatusExecuting {
			t.Errorf("Status = %q, want EXECUTING", after.Status)
		}
		if after.LastHeartbeat == nil || !after.LastHeartbeat.Equal(hb) {
			t.Errorf("LastHeartbeat = %v, want %v", after.LastHeartbeat, hb)
		}

		err := s.UpdateAgent(ctx, &models.Agent{ID: "ghost"})
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			t.Errorf("UpdateAgent(ghost) error = %v, want *ErrNotFound", err)
		}
	})
}

func TestListAgents_ActiveOnly(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		statuses := []models.AgentStatus{models.AgentStatusIdle, models.AgentStatusOffline, models.AgentStatusExecuting}
		for i, st := range statuses {
			s.CreateAgent(ctx, &models.Agent{
				ID: fmt.Sprintf("a%d", i), Name: "n", Role: models.AgentRoleGeneral, Status: st,
				RunnerID: "r", CreatedAt: base.Add(time.Duration(i) * time.Second), UpdatedAt: base,
			})
		}

		all, err := s.ListAgents(ctx, false)
		if err != nil {
			t.Fatalf("ListAgents() error = %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("ListAgents() = %d, want 3", len(all))
		}
		if all[0].ID != "a0" {
			t.Errorf("ListAgents()[0].ID = %q, want oldest first", all[0].ID)
		}

		active, _ := s.ListAgents(ctx, true)
		if len(active) != 2 {
			t.Errorf("ListAgents(active) = %d, want 2", len(active))
		}
		for _, a := range active {
			if a.Status == models.AgentStatusOffline {
				t.Error("active list contains an OFFLINE agent")
			}
		}
	})
}

// ─── Tasks ───────────────────────────────────────────────────

func TestListTasks_FilterAndOrder(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			project := "p1"
			if i%2 == 1 {
				project = "p2"
			}
			s.CreateTask(ctx, &models.Task{
				ID: fmt.Sprintf("t%d", i), ProjectID: project, Title: "task",
				Status: models.TaskStatusPending, Priority: models.TaskPriorityMedium,
				Metadata:  map[string]interface{}{"n": float64(i)},
				CreatedAt: base.Add(time.Duration(i) * time.Minute), UpdatedAt: base,
			})
		}

		tasks, err := s.ListTasks(ctx, models.TaskFilter{ProjectID: "p1"})
		if err != nil {
			t.Fatalf("ListTasks() error = %v", err)
		}
		if len(tasks) != 3 {
			t.Fatalf("ListTasks(p1) = %d, want 3", len(tasks))
		}
		if tasks[0].ID != "t4" {
			t.Errorf("ListTasks()[0].ID = %q, want newest first (t4)", tasks[0].ID)
		}
		if tasks[0].Metadata["n"] != float64(4) {
			t.Errorf("Metadata = %v, want n=4", tasks[0].Metadata)
		}

		limited, _ := s.ListTasks(ctx, models.TaskFilter{Limit: 2})
		if len(limited) != 2 {
			t.Errorf("ListTasks(limit 2) = %d, want 2", len(limited))
		}

		none, _ := s.ListTasks(ctx, models.TaskFilter{Status: models.TaskStatusCompleted})
		if len(none) != 0 {
			t.Errorf("ListTasks(COMPLETED) = %d, want 0", len(none))
		}
	})
}

func TestUpdateTask_Timestamps(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		s.CreateTask(ctx, &models.Task{ID: "t1", ProjectID: "p", Title: "x",
			Status: models.TaskStatusPending, Priority: models.TaskPriorityLow, CreatedAt: base, UpdatedAt: base})

		task, _ := s.GetTask(ctx, "t1")
		started := base.Add(time.Hour)
		task.Status = models.TaskStatusInProgress
		task.StartedAt = &started
		task.AssignedAgentID = strPtr("a1")
		if err := s.UpdateTask(ctx, task); err != nil {
			t.Fatalf("UpdateTask() error = %v", err)
		}

		got, _ := s.GetTask(ctx, "t1")
		if got.StartedAt == nil || !got.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
		}
		if got.CompletedAt != nil {
			t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
		}
		if got.AssignedAgentID == nil || *got.AssignedAgentID != "a1" {
			t.Errorf("AssignedAgentID = %v, want a1", got.AssignedAgentID)
		}
	})
}

// ─── Run plans ───────────────────────────────────────────────

func TestRunPlans(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		statuses := []models.RunPlanStatus{models.RunPlanStatusDraft, models.RunPlanStatusRunning, models.RunPlanStatusRunning}
		for i, st := range statuses {
			err := s.CreateRunPlan(ctx, &models.RunPlan{
				ID: fmt.Sprintf("rp%d", i), TaskID: "t1", SkillName: "scaffold", SkillVersion: "v1",
				Inputs: map[string]interface{}{"repo": "x"}, Status: st, TotalSteps: 3,
				CreatedAt: base.Add(time.Duration(i) * time.Second), UpdatedAt: base,
			})
			if err != nil {
				t.Fatalf("CreateRunPlan() error = %v", err)
			}
		}

		running, err := s.ListRunPlans(ctx, models.RunPlanFilter{Status: models.RunPlanStatusRunning})
		if err != nil {
			t.Fatalf("ListRunPlans() error = %v", err)
		}
		if len(running) != 2 {
			t.Errorf("ListRunPlans(RUNNING) = %d, want 2", len(running))
		}

		rp, err := s.GetRunPlan(ctx, "rp0")
		if err != nil {
			t.Fatalf("GetRunPlan() error = %v", err)
		}
		if rp.Inputs["repo"] != "x" {
			t.Errorf("Inputs = %v", rp.Inputs)
		}
		if rp.Outputs != nil {
			t.Errorf("Outputs = %v, want nil", rp.Outputs)
		}

		rp.CurrentStep = 2
		rp.Outputs = map[string]interface{}{"pr": "url"}
		if err := s.UpdateRunPlan(ctx, rp); err != nil {
			t.Fatalf("UpdateRunPlan() error = %v", err)
		}
		got, _ := s.GetRunPlan(ctx, "rp0")
		if got.CurrentStep != 2 || got.Outputs["pr"] != "url" {
			t.Errorf("after update: step=%d outputs=%v", got.CurrentStep, got.Outputs)
		}

		_, err = s.GetRunPlan(ctx, "missing")
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			t.Errorf("GetRunPlan(missing) error = %v, want *ErrNotFound", err)
		}
	})
}

// ─── Audit ───────────────────────────────────────────────────

func TestAuditLogs_FilterOffsetOrder(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		for i := 0; i < 6; i++ {
			agent := "a1"
			if i%3 == 0 {
				agent = "a2"
			}
			err := s.CreateAuditLog(ctx, &models.AuditLog{
				ID: fmt.Sprintf("e%d", i), Action: models.AuditCommandRun, Description: "ran",
				AgentID: strPtr(agent), Success: i != 5,
				ExtraData: map[string]interface{}{"i": float64(i)},
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
			if err != nil {
				t.Fatalf("CreateAuditLog() error = %v", err)
			}
		}

		all, err := s.ListAuditLogs(ctx, models.AuditFilter{})
		if err != nil {
			t.Fatalf("ListAuditLogs() error = %v", err)
		}
		if len(all) != 6 || all[0].ID != "e5" {
			t.Fatalf("ListAuditLogs() = %d entries, first %q; want 6, newest first", len(all), all[0].ID)
		}
		if all[0].Success {
			t.Error("e5 should be a failure")
		}

		a1, _ := s.ListAuditLogs(ctx, models.AuditFilter{AgentID: "a1"})
		if len(a1) != 4 {
			t.Errorf("ListAuditLogs(agent a1) = %d, want 4", len(a1))
		}

		page, _ := s.ListAuditLogs(ctx, models.AuditFilter{Limit: 2, Offset: 2})
		if len(page) != 2 || page[0].ID != "e3" || page[1].ID != "e2" {
			ids := []string{}
			for _, e := range page {
				ids = append(ids, e.ID)
			}
			t.Errorf("page = %v, want [e3 e2]", ids)
		}

		none, _ := s.ListAuditLogs(ctx, models.AuditFilter{Action: models.AuditFileDelete})
		if len(none) != 0 {
			t.Errorf("ListAuditLogs(FILE_DELETE) = %d, want 0", len(none))
		}
	})
}

// ─── Projects ────────────────────────────────────────────────

func TestProjects_CRUDAndArchive(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		budget := 2000
		for i, name := range []string{"alpha", "beta"} {
			err := s.CreateProject(ctx, &models.Project{
				ID: fmt.Sprintf("p%d", i), Name: name, MaxConcurrentRuns: 3, IsActive: true,
				CreatedAt: base.Add(time.Duration(i) * time.Second), UpdatedAt: base,
			})
			if err != nil {
				t.Fatalf("CreateProject() error = %v", err)
			}
		}

		got, err := s.GetProject(ctx, "p0")
		if err != nil {
			t.Fatalf("GetProject() error = %v", err)
		}
		if got.DailyTokenBudget != nil || got.Config != nil {
			t.Errorf("GetProject() budget = %v, config = %v; want nil", got.DailyTokenBudget, got.Config)
		}

		got.DailyTokenBudget = &budget
		got.Config = map[string]interface{}{"lang": "go"}
		got.IsActive = false
		if err := s.UpdateProject(ctx, got); err != nil {
			t.Fatalf("UpdateProject() error = %v", err)
		}

		after, _ := s.GetProject(ctx, "p0")
		if after.DailyTokenBudget == nil || *after.DailyTokenBudget != 2000 {
			t.Errorf("DailyTokenBudget = %v, want 2000", after.DailyTokenBudget)
		}
		if after.Config["lang"] != "go" || after.IsActive {
			t.Errorf("after update = %+v", after)
		}

		active, _ := s.ListProjects(ctx, true)
		if len(active) != 1 || active[0].ID != "p1" {
			t.Errorf("ListProjects(active) = %+v, want [p1]", active)
		}
		all, _ := s.ListProjects(ctx, false)
		if len(all) != 2 || all[0].ID != "p0" {
			t.Errorf("ListProjects(all) = %d entries, want 2 oldest first", len(all))
		}

		err = s.UpdateProject(ctx, &models.Project{ID: "ghost"})
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) || nf.Entity != "project" {
			t.Errorf("UpdateProject(ghost) error = %v, want project *ErrNotFound", err)
		}
	})
}

// ─── Costs ───────────────────────────────────────────────────

func TestCostRecords_FilterAndSum(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		records := []models.CostRecord{
			{ID: "c0", ProjectID: "p1", TotalTokens: 100, EstimatedCostCents: 1, RecordDate: "2026-01-09"},
			{ID: "c1", ProjectID: "p1", TotalTokens: 200, EstimatedCostCents: 2, RecordDate: "2026-01-10"},
			{ID: "c2", ProjectID: "p1", TotalTokens: 300, EstimatedCostCents: 3, RecordDate: "2026-01-10", AgentID: strPtr("a1")},
			{ID: "c3", ProjectID: "p2", TotalTokens: 999, EstimatedCostCents: 9, RecordDate: "2026-01-10"},
		}
		for i := range records {
			records[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
			if err := s.CreateCostRecord(ctx, &records[i]); err != nil {
				t.Fatalf("CreateCostRecord() error = %v", err)
			}
		}

		p1, err := s.ListCostRecords(ctx, models.CostFilter{ProjectID: "p1"})
		if err != nil {
			t.Fatalf("ListCostRecords() error = %v", err)
		}
		if len(p1) != 3 || p1[0].ID != "c2" {
			t.Fatalf("ListCostRecords(p1) = %d entries, want 3 newest first", len(p1))
		}
		if p1[0].AgentID == nil || *p1[0].AgentID != "a1" || p1[1].AgentID != nil {
			t.Errorf("AgentID round trip: %v, %v", p1[0].AgentID, p1[1].AgentID)
		}

		day, _ := s.ListCostRecords(ctx, models.CostFilter{StartDate: "2026-01-10", EndDate: "2026-01-10"})
		if len(day) != 3 {
			t.Errorf("ListCostRecords(2026-01-10) = %d, want 3", len(day))
		}
		early, _ := s.ListCostRecords(ctx, models.CostFilter{EndDate: "2026-01-09"})
		if len(early) != 1 || early[0].ID != "c0" {
			t.Errorf("ListCostRecords(end 2026-01-09) = %+v, want [c0]", early)
		}
		limited, _ := s.ListCostRecords(ctx, models.CostFilter{Limit: 2})
		if len(limited) != 2 || limited[0].ID != "c3" {
			t.Errorf("ListCostRecords(limit 2) = %+v", limited)
		}

		today, err := s.SumCosts(ctx, "p1", "2026-01-10")
		if err != nil {
			t.Fatalf("SumCosts() error = %v", err)
		}
		if today != (models.CostTotals{Tokens: 500, CostCents: 5}) {
			t.Errorf("SumCosts(p1, day) = %+v, want {500 5}", today)
		}
		total, _ := s.SumCosts(ctx, "p1", "")
		if total != (models.CostTotals{Tokens: 600, CostCents: 6}) {
			t.Errorf("SumCosts(p1) = %+v, want {600 6}", total)
		}
		none, _ := s.SumCosts(ctx, "ghost", "")
		if none != (models.CostTotals{}) {
			t.Errorf("SumCosts(ghost) = %+v, want zero", none)
		}
	})
}

// ─── Persistence ─────────────────────────────────────────────

func TestMemoryStore_SnapshotSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := store.NewMemoryStore(dir)
	s.CreateAgent(ctx, &models.Agent{ID: "a1", Name: "persisted", Status: models.AgentStatusIdle, CreatedAt: base, UpdatedAt: base})
	s.CreateAuditLog(ctx, &models.AuditLog{ID: "e1", Action: models.AuditAgentStarted, Description: "up", CreatedAt: base})
	s.CreateProject(ctx, &models.Project{ID: "p1", Name: "kept", IsActive: true, CreatedAt: base, UpdatedAt: base})
	s.CreateCostRecord(ctx, &models.CostRecord{ID: "c1", ProjectID: "p1", TotalTokens: 42, RecordDate: "2026-01-10", CreatedAt: base})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	reopened := store.NewMemoryStore(dir)
	defer reopened.Close()

	got, err := reopened.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent() after reopen error = %v", err)
	}
	if got.Name != "persisted" {
		t.Errorf("Name = %q, want %q", got.Name, "persisted")
	}
	logs, _ := reopened.ListAuditLogs(ctx, models.AuditFilter{})
	if len(logs) != 1 {
		t.Errorf("audit logs after reopen = %d, want 1", len(logs))
	}
	if _, err := reopened.GetProject(ctx, "p1"); err != nil {
		t.Errorf("GetProject() after reopen error = %v", err)
	}
	if totals, _ := reopened.SumCosts(ctx, "p1", ""); totals.Tokens != 42 {
		t.Errorf("SumCosts() after reopen = %+v, want 42 tokens", totals)
	}
}

func TestSQLiteStore_FileSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/nested/devos.db"
	ctx := context.Background()

	s, err := store.NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	s.CreateTask(ctx, &models.Task{ID: "t1", ProjectID: "p", Title: "durable",
		Status: models.TaskStatusPending, Priority: models.TaskPriorityHigh, CreatedAt: base, UpdatedAt: base})
	s.Close()

	reopened, err := store.NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Title != "durable" || got.Priority != models.TaskPriorityHigh {
		t.Errorf("GetTask() = %+v", got)
	}
}
