// In-memory Store implementation with optional JSON snapshots.
// Used for local dev and tests. Supports file-based snapshot persistence so
// data survives restarts when a data directory is configured.

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Agents    map[string]*models.Agent   `json:"agents"`
	Tasks     map[string]*models.Task    `json:"tasks"`
	RunPlans  map[string]*models.RunPlan `json:"runplans"`
	AuditLogs []*models.AuditLog         `json:"audit_logs"`
	Projects  map[string]*models.Project `json:"projects"`
	Costs     []*models.CostRecord       `json:"cost_records"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu        sync.RWMutex
	agents    map[string]*models.Agent   // key: id
	tasks     map[string]*models.Task    // key: id
	runPlans  map[string]*models.RunPlan // key: id
	auditLogs []*models.AuditLog         // append-only, oldest first
	projects  map[string]*models.Project // key: id
	costs     []*models.CostRecord       // append-only, oldest first

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the save loop to stop
	debounce     time.Duration
}

// NewMemoryStore creates a new in-memory store. If dataDir is non-empty,
// data is persisted to dataDir/data.json.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		agents:    make(map[string]*models.Agent),
		tasks:     make(map[string]*models.Task),
		runPlans:  make(map[string]*models.RunPlan),
		auditLogs: make([]*models.AuditLog, 0),
		projects:  make(map[string]*models.Project),
		costs:     make([]*models.CostRecord, 0),
		saveCh:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		debounce:  500 * time.Millisecond,
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().
		Str("snapshot", m.snapshotPath).
		Msg("Memory store configured")

	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max 1 write per debounce window).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			select {
			case <-m.doneCh:
				return
			case <-time.After(m.debounce):
			}
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Agents:    m.agents,
		Tasks:     m.tasks,
		RunPlans:  m.runPlans,
		AuditLogs: m.auditLogs,
		Projects:  m.projects,
		Costs:     m.costs,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Agents != nil {
		m.agents = snap.Agents
	}
	if snap.Tasks != nil {
		m.tasks = snap.Tasks
	}
	if snap.RunPlans != nil {
		m.runPlans = snap.RunPlans
	}
	if snap.AuditLogs != nil {
		m.auditLogs = snap.AuditLogs
	}
	if snap.Projects != nil {
		m.projects = snap.Projects
	}
	if snap.Costs != nil {
		m.costs = snap.Costs
	}

	log.Info().
		Int("agents", len(m.agents)).
		Int("tasks", len(m.tasks)).
		Int("runplans", len(m.runPlans)).
		Int("audit_logs", len(m.auditLogs)).
		Int("projects", len(m.projects)).
		Int("cost_records", len(m.costs)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the save loop and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// ── Agent Store ─────────────────────────────────────────────

func (m *MemoryStore) ListAgents(_ context.Context, activeOnly bool) ([]models.Agent, error) {
	m.mu.RLock()
	result := make([]models.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if activeOnly && a.Status == models.AgentStatusOffline {
			continue
		}
		result = append(result, *a)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	copy := *a
	return &copy, nil
}

func (m *MemoryStore) CreateAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	copy := *agent
	m.agents[agent.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	if _, ok := m.agents[agent.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "agent", Key: agent.ID}
	}
	copy := *agent
	m.agents[agent.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Task Store ──────────────────────────────────────────────

func (m *MemoryStore) ListTasks(_ context.Context, filter models.TaskFilter) ([]models.Task, error) {
	m.mu.RLock()
	var result []models.Task
	for _, t := range m.tasks {
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		result = append(result, *t)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MemoryStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	copy := *t
	return &copy, nil
}

func (m *MemoryStore) CreateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	copy := *task
	m.tasks[task.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	if _, ok := m.tasks[task.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "task", Key: task.ID}
	}
	copy := *task
	m.tasks[task.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── RunPlan Store ───────────────────────────────────────────

func (m *MemoryStore) ListRunPlans(_ context.Context, filter models.RunPlanFilter) ([]models.RunPlan, error) {
	m.mu.RLock()
	var result []models.RunPlan
	for _, rp := range m.runPlans {
		if filter.TaskID != "" && rp.TaskID != filter.TaskID {
			continue
		}
		if filter.Status != "" && rp.Status != filter.Status {
			continue
		}
		result = append(result, *rp)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MemoryStore) GetRunPlan(_ context.Context, id string) (*models.RunPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rp, ok := m.runPlans[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "runplan", Key: id}
	}
	copy := *rp
	return &copy, nil
}

func (m *MemoryStore) CreateRunPlan(_ context.Context, rp *models.RunPlan) error {
	m.mu.Lock()
	copy := *rp
	m.runPlans[rp.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateRunPlan(_ context.Context, rp *models.RunPlan) error {
	m.mu.Lock()
	if _, ok := m.runPlans[rp.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "runplan", Key: rp.ID}
	}
	copy := *rp
	m.runPlans[rp.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Audit Store ─────────────────────────────────────────────

func (m *MemoryStore) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	copy := *entry
	m.auditLogs = append(m.auditLogs, &copy)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListAuditLogs(_ context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.AuditLog
	for i := len(m.auditLogs) - 1; i >= 0; i-- { // newest first
		e := m.auditLogs[i]
		if filter.ProjectID != "" && !ptrEq(e.ProjectID, filter.ProjectID) {
			continue
		}
		if filter.AgentID != "" && !ptrEq(e.AgentID, filter.AgentID) {
			continue
		}
		if filter.TaskID != "" && !ptrEq(e.TaskID, filter.TaskID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Offset > 0 {
			filter.Offset--
			continue
		}
		result = append(result, *e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// ── Project Store ───────────────────────────────────────────

func (m *MemoryStore) ListProjects(_ context.Context, activeOnly bool) ([]models.Project, error) {
	m.mu.RLock()
	result := make([]models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, *p)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "project", Key: id}
	}
	copy := *p
	return &copy, nil
}

func (m *MemoryStore) CreateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	copy := *p
	m.projects[p.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	if _, ok := m.projects[p.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "project", Key: p.ID}
	}
	copy := *p
	m.projects[p.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Cost Store ──────────────────────────────────────────────

func (m *MemoryStore) CreateCostRecord(_ context.Context, rec *models.CostRecord) error {
	m.mu.Lock()
	copy := *rec
	m.costs = append(m.costs, &copy)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListCostRecords(_ context.Context, filter models.CostFilter) ([]models.CostRecord, error) {
	m.mu.RLock()
	var result []models.CostRecord
	for i := len(m.costs) - 1; i >= 0; i-- { // newest first on created_at ties
		c := m.costs[i]
		if filter.ProjectID != "" && c.ProjectID != filter.ProjectID {
			continue
		}
		if filter.StartDate != "" && c.RecordDate < filter.StartDate {
			continue
		}
		if filter.EndDate != "" && c.RecordDate > filter.EndDate {
			continue
		}
		result = append(result, *c)
	}
	m.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MemoryStore) SumCosts(_ context.Context, projectID, day string) (models.CostTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var totals models.CostTotals
	for _, c := range m.costs {
		if c.ProjectID != projectID || (day != "" && c.RecordDate != day) {
			continue
		}
		totals.Tokens += c.TotalTokens
		totals.CostCents += c.EstimatedCostCents
	}
	return totals, nil
}

func ptrEq(p *string, want string) bool {
	return p != nil && *p == want
}
