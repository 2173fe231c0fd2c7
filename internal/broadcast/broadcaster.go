// Package broadcast turns domain state changes into envelopes and pushes
// them to every connected observer.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/localconnect/devos/internal/events"
	"github.com/localconnect/devos/pkg/models"
)

var tracer = otel.Tracer("devos-broadcast")

// Fanout delivers an encoded envelope to every open connection and reports
// how many deliveries succeeded. *ws.Hub satisfies it.
type Fanout interface {
	Broadcast(ctx context.Context, msg []byte) int
}

// Broadcaster encodes envelopes and hands them to a Fanout.
type Broadcaster struct {
	hub Fanout
	now func() time.Time
}

// New creates a Broadcaster over hub.
func New(hub Fanout) *Broadcaster {
	return &Broadcaster{hub: hub, now: time.Now}
}

// WithClock replaces the envelope timestamp source. Tests only.
func (b *Broadcaster) WithClock(now func() time.Time) *Broadcaster {
	b.now = now
	return b
}

// Publish wraps payload in an envelope of the given kind, stamped now, and
// sends it to all connections. Delivery failures are handled by the hub;
// only encoding errors are returned.
func (b *Broadcaster) Publish(ctx context.Context, kind events.Kind, payload interface{}) error {
	ctx, span := tracer.Start(ctx, "broadcast "+string(kind),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("devos.event.kind", string(kind))),
	)
	defer span.End()

	data, err := events.New(kind, payload, b.now()).Encode()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publish %s: %w", kind, err)
	}

	delivered := b.hub.Broadcast(ctx, data)
	span.SetAttributes(attribute.Int("devos.ws.connections", delivered))

	log.Debug().
		Str("kind", string(kind)).
		Int("delivered", delivered).
		Msg("Event broadcast")
	return nil
}

// ── Entity projections ───────────────────────────────────────

// AgentUpdate pushes an AGENT_UPDATE for a.
func (b *Broadcaster) AgentUpdate(ctx context.Context, a *models.Agent) error {
	return b.Publish(ctx, events.KindAgentUpdate, events.AgentUpdate{
		ID:              a.ID,
		Name:            a.Name,
		Role:            string(a.Role),
		Status:          string(a.Status),
		CurrentTask:     a.CurrentTask,
		CurrentAction:   a.CurrentAction,
		TokensUsedToday: a.TokensUsedToday,
		UpdatedAt:       a.UpdatedAt,
	})
}

// TaskUpdate pushes a TASK_UPDATE for t.
func (b *Broadcaster) TaskUpdate(ctx context.Context, t *models.Task) error {
	return b.Publish(ctx, events.KindTaskUpdate, events.TaskUpdate{
		ID:              t.ID,
		ProjectID:       t.ProjectID,
		Title:           t.Title,
		Status:          string(t.Status),
		AssignedAgentID: t.AssignedAgentID,
		Priority:        string(t.Priority),
		UpdatedAt:       t.UpdatedAt,
	})
}

// RunPlanUpdate pushes a RUNPLAN_UPDATE for rp.
func (b *Broadcaster) RunPlanUpdate(ctx context.Context, rp *models.RunPlan) error {
	return b.Publish(ctx, events.KindRunPlanUpdate, events.RunPlanUpdate{
		ID:          rp.ID,
		TaskID:      rp.TaskID,
		SkillName:   rp.SkillName,
		Status:      string(rp.Status),
		CurrentStep: rp.CurrentStep,
		TotalSteps:  rp.TotalSteps,
		TokensUsed:  rp.TokensUsed,
		UpdatedAt:   rp.UpdatedAt,
	})
}

// AuditEvent pushes an AUDIT_EVENT for entry.
func (b *Broadcaster) AuditEvent(ctx context.Context, entry *models.AuditLog) error {
	return b.Publish(ctx, events.KindAuditEvent, events.AuditEvent{
		ID:          entry.ID,
		Action:      string(entry.Action),
		Description: entry.Description,
		AgentID:     entry.AgentID,
		Success:     entry.Success,
		CreatedAt:   entry.CreatedAt,
	})
}
