// Package audit records agent actions. If an agent acts, it is logged here
// and every observer hears about it.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/internal/store"
	"github.com/localconnect/devos/pkg/models"
)

// Notifier pushes an AUDIT_EVENT for a persisted entry.
// *broadcast.Broadcaster satisfies it.
type Notifier interface {
	AuditEvent(ctx context.Context, entry *models.AuditLog) error
}

// Service persists audit entries and broadcasts them.
type Service struct {
	store  store.AuditStore
	notify Notifier
	now    func() time.Time
}

// NewService creates an audit service.
func NewService(s store.AuditStore, n Notifier) *Service {
	return &Service{store: s, notify: n, now: time.Now}
}

// Log assigns an id and timestamp to entry, stores it, then broadcasts it.
// A broadcast failure is logged but does not fail the call; the entry is
// already durable.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) (*models.AuditLog, error) {
	if !entry.Action.Valid() {
		return nil, fmt.Errorf("invalid audit action %q", entry.Action)
	}
	if entry.Description == "" {
		return nil, fmt.Errorf("audit description is required")
	}

	rec := *entry
	rec.ID = uuid.NewString()
	rec.CreatedAt = s.now().UTC()

	if err := s.store.CreateAuditLog(ctx, &rec); err != nil {
		return nil, fmt.Errorf("store audit log: %w", err)
	}

	if err := s.notify.AuditEvent(ctx, &rec); err != nil {
		log.Warn().Err(err).Str("audit_id", rec.ID).Msg("Failed to broadcast audit event")
	}
	return &rec, nil
}
