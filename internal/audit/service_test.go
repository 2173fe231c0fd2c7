package audit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localconnect/devos/internal/audit"
	"github.com/localconnect/devos/internal/store"
	"github.com/localconnect/devos/pkg/models"
)

type recordingNotifier struct {
	entries []*models.AuditLog
}

func (r *recordingNotifier) AuditEvent(_ context.Context, e *models.AuditLog) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestLog_PersistsThenBroadcasts(t *testing.T) {
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	n := &recordingNotifier{}
	svc := audit.NewService(s, n)

	agent := "agent-1"
	rec, err := svc.Log(context.Background(), &models.AuditLog{
		Action:      models.AuditFileWrite,
		Description: "wrote main.go",
		AgentID:     &agent,
		Success:     true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	logs, err := s.ListAuditLogs(context.Background(), models.AuditFilter{AgentID: agent})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, rec.ID, logs[0].ID)

	require.Len(t, n.entries, 1)
	assert.Equal(t, rec.ID, n.entries[0].ID)
}

func TestLog_RejectsInvalid(t *testing.T) {
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	n := &recordingNotifier{}
	svc := audit.NewService(s, n)

	_, err := svc.Log(context.Background(), &models.AuditLog{Action: "DANCED", Description: "x"})
	assert.Error(t, err)

	_, err = svc.Log(context.Background(), &models.AuditLog{Action: models.AuditCommandRun})
	assert.Error(t, err)

	assert.Empty(t, n.entries)
}
