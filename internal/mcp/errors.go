// Package mcp implements agent-to-agent coordination: the agent directory,
// directed and broadcast messaging, and the design-request rendezvous.
//
// All state is in memory and lives for the process lifetime. Every outbound
// event is pushed through a Publisher; directed messages are broadcast to
// every observer and filtered client-side by target_agent.
package mcp

import (
	"context"
	"errors"

	"github.com/localconnect/devos/internal/events"
)

// ErrNotFound is returned when an agent or design request does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrNoAgents is returned by BroadcastToAll when nobody is registered.
var ErrNoAgents = errors.New("no agents registered to receive broadcast")

// ErrInvalid marks a request rejected by validation. Wrapped errors carry
// the detail.
var ErrInvalid = errors.New("invalid request")

// Publisher pushes an envelope of the given kind to all observers.
// *broadcast.Broadcaster satisfies it.
type Publisher interface {
	Publish(ctx context.Context, kind events.Kind, payload interface{}) error
}
