// Package events defines the wire envelope every pushed event travels in.
//
// An envelope is {"type": <Kind>, "payload": {...}, "timestamp": <RFC3339 UTC>}.
// Envelopes are built at broadcast time and never stored.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the payload carried by an envelope.
type Kind string

const (
	KindAgentUpdate    Kind = "AGENT_UPDATE"
	KindTaskUpdate     Kind = "TASK_UPDATE"
	KindRunPlanUpdate  Kind = "RUNPLAN_UPDATE"
	KindAuditEvent     Kind = "AUDIT_EVENT"
	KindAgentMessage   Kind = "AGENT_MESSAGE"
	KindDesignRequest  Kind = "DESIGN_REQUEST"
	KindDesignResponse Kind = "DESIGN_RESPONSE"
)

// Kinds lists every envelope kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindAgentUpdate, KindTaskUpdate, KindRunPlanUpdate, KindAuditEvent,
		KindAgentMessage, KindDesignRequest, KindDesignResponse,
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAgentUpdate, KindTaskUpdate, KindRunPlanUpdate, KindAuditEvent,
		KindAgentMessage, KindDesignRequest, KindDesignResponse:
		return true
	}
	return false
}

// Envelope is an outbound event.
type Envelope struct {
	Type      Kind        `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// New stamps payload with kind and the given instant, normalized to UTC.
func New(kind Kind, payload interface{}, at time.Time) Envelope {
	return Envelope{Type: kind, Payload: payload, Timestamp: at.UTC()}
}

// Encode serializes the envelope to its wire form.
func (e Envelope) Encode() ([]byte, error) {
	if !e.Type.Valid() {
		return nil, fmt.Errorf("encode envelope: unknown kind %q", e.Type)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Type, err)
	}
	return data, nil
}

// Received is an envelope as seen by a consumer, with the payload left raw
// so it can be decoded into the type matching Type.
type Received struct {
	Type      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode parses a wire envelope.
func Decode(data []byte) (*Received, error) {
	var r Received
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if !r.Type.Valid() {
		return nil, fmt.Errorf("decode envelope: unknown kind %q", r.Type)
	}
	return &r, nil
}

// DecodePayload unmarshals the raw payload into v.
func (r *Received) DecodePayload(v interface{}) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.Type, err)
	}
	return nil
}
