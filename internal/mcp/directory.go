package mcp

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/pkg/models"
)

// Directory is the in-memory registry of agents addressable by directed
// messages.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]*models.RegisteredAgent
	now    func() time.Time
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		agents: make(map[string]*models.RegisteredAgent),
		now:    time.Now,
	}
}

// Register upserts an agent. A re-registration replaces capabilities and
// bumps last_seen but keeps the original registered_at. updated reports
// whether the agent already existed.
func (d *Directory) Register(agentID string, capabilities []string) (agent models.RegisteredAgent, updated bool) {
	caps := make([]string, len(capabilities))
	copy(caps, capabilities)
	now := d.now().UTC()

	d.mu.Lock()
	existing, updated := d.agents[agentID]
	registeredAt := now
	if updated {
		registeredAt = existing.RegisteredAt
	}
	rec := &models.RegisteredAgent{
		AgentID:      agentID,
		Capabilities: caps,
		Status:       models.DirectoryStatusOnline,
		RegisteredAt: registeredAt,
		LastSeen:     now,
	}
	d.agents[agentID] = rec
	out := *rec
	d.mu.Unlock()

	log.Info().
		Str("agent_id", agentID).
		Strs("capabilities", caps).
		Bool("updated", updated).
		Msg("MCP agent registered")
	return out, updated
}

// Unregister removes an agent. Unlike connection removal this is not
// idempotent: removing an unknown agent is an error.
func (d *Directory) Unregister(agentID string) error {
	d.mu.Lock()
	_, ok := d.agents[agentID]
	delete(d.agents, agentID)
	d.mu.Unlock()

	if !ok {
		return &ErrNotFound{Entity: "agent", Key: agentID}
	}
	log.Info().Str("agent_id", agentID).Msg("MCP agent unregistered")
	return nil
}

// Get returns a copy of one record.
func (d *Directory) Get(agentID string) (models.RegisteredAgent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.agents[agentID]
	if !ok {
		return models.RegisteredAgent{}, &ErrNotFound{Entity: "agent", Key: agentID}
	}
	return *rec, nil
}

// List returns a copy of every record, ordered by agent id.
func (d *Directory) List() []models.RegisteredAgent {
	d.mu.RLock()
	out := make([]models.RegisteredAgent, 0, len(d.agents))
	for _, rec := range d.agents {
		out = append(out, *rec)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// IDs returns the registered agent ids, ordered.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.agents))
	for id := range d.agents {
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of registered agents.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.agents)
}

// Touch bumps last_seen. Returns false if the agent is no longer registered.
func (d *Directory) Touch(agentID string) bool {
	now := d.now().UTC()
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.agents[agentID]
	if ok {
		rec.LastSeen = now
	}
	return ok
}
