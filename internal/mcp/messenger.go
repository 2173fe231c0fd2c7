package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/internal/events"
	"github.com/localconnect/devos/pkg/models"
)

// SourceAPI is the source_agent stamped on messages sent through the API.
const SourceAPI = "api"

// DirectMessage is a message addressed to one registered agent.
type DirectMessage struct {
	TargetAgent string `json:"target_agent"`
	Message     string `json:"message"`
	Priority    string `json:"priority"`
	Type        string `json:"type"`
}

// BroadcastMessage is a notification for every registered agent.
type BroadcastMessage struct {
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// Messenger sends directed and broadcast agent messages.
type Messenger struct {
	dir   *Directory
	pub   Publisher
	newID func() string
	now   func() time.Time
}

// NewMessenger creates a Messenger over the given directory.
func NewMessenger(dir *Directory, pub Publisher) *Messenger {
	return &Messenger{
		dir:   dir,
		pub:   pub,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Send delivers msg to its target. The target must be registered; if not,
// nothing is emitted and *ErrNotFound is returned. The envelope goes to all
// observers and the target is identified by target_agent.
func (m *Messenger) Send(ctx context.Context, msg DirectMessage) (*models.MessageReceipt, error) {
	if msg.TargetAgent == "" {
		return nil, fmt.Errorf("%w: target_agent is required", ErrInvalid)
	}
	priority, err := models.ParseMessagePriority(msg.Priority)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgType, err := models.ParseMessageType(msg.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := m.dir.Get(msg.TargetAgent); err != nil {
		return nil, err
	}

	id := m.newID()
	target := msg.TargetAgent
	if err := m.pub.Publish(ctx, events.KindAgentMessage, events.AgentMessage{
		MessageID:   id,
		SourceAgent: SourceAPI,
		TargetAgent: &target,
		Message:     msg.Message,
		Priority:    string(priority),
		MessageType: string(msgType),
	}); err != nil {
		return nil, err
	}

	m.dir.Touch(target)

	log.Debug().
		Str("message_id", id).
		Str("target", target).
		Str("priority", string(priority)).
		Msg("Agent message sent")

	return &models.MessageReceipt{
		Success:     true,
		MessageID:   id,
		DeliveredTo: models.SingleRecipient(target),
		Timestamp:   m.now().UTC(),
	}, nil
}

// BroadcastToAll sends a notification addressed to no one in particular.
// The receipt lists the agents registered when the call was made.
func (m *Messenger) BroadcastToAll(ctx context.Context, msg BroadcastMessage) (*models.MessageReceipt, error) {
	priority, err := models.ParseMessagePriority(msg.Priority)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	ids := m.dir.IDs()
	if len(ids) == 0 {
		return nil, ErrNoAgents
	}

	id := m.newID()
	if err := m.pub.Publish(ctx, events.KindAgentMessage, events.AgentMessage{
		MessageID:   id,
		SourceAgent: SourceAPI,
		TargetAgent: nil,
		Message:     msg.Message,
		Priority:    string(priority),
		MessageType: string(models.MessageTypeNotification),
	}); err != nil {
		return nil, err
	}

	log.Debug().
		Str("message_id", id).
		Int("recipients", len(ids)).
		Msg("Agent broadcast sent")

	return &models.MessageReceipt{
		Success:     true,
		MessageID:   id,
		DeliveredTo: models.RecipientList(ids),
		Timestamp:   m.now().UTC(),
	}, nil
}
