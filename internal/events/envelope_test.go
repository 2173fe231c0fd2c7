package events_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/localconnect/devos/internal/events"
)

func TestEnvelope_EncodeShape(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("PST", -8*3600))
	env := events.New(events.KindDesignResponse, events.DesignResponse{
		RequestID: "req-1",
		AgentID:   "agent-1",
		Response:  "answer",
	}, at)

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(raw) != 3 {
		t.Errorf("envelope has %d top-level keys, want 3: %s", len(raw), data)
	}
	for _, k := range []string{"type", "payload", "timestamp"} {
		if _, ok := raw[k]; !ok {
			t.Errorf("envelope missing %q: %s", k, data)
		}
	}

	var ts string
	json.Unmarshal(raw["timestamp"], &ts)
	if !strings.HasSuffix(ts, "Z") {
		t.Errorf("timestamp = %q, want UTC (Z suffix)", ts)
	}
	if ts != "2026-03-04T13:06:07Z" {
		t.Errorf("timestamp = %q, want %q", ts, "2026-03-04T13:06:07Z")
	}
}

func TestEnvelope_RoundTripPayload(t *testing.T) {
	target := "agent-7"
	env := events.New(events.KindAgentMessage, events.AgentMessage{
		MessageID:   "m-1",
		SourceAgent: "api",
		TargetAgent: &target,
		Message:     "hi",
		Priority:    "high",
		MessageType: "command",
	}, time.Now())

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := events.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Type != events.KindAgentMessage {
		t.Errorf("Type = %q, want %q", got.Type, events.KindAgentMessage)
	}

	var msg events.AgentMessage
	if err := got.DecodePayload(&msg); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if msg.TargetAgent == nil || *msg.TargetAgent != target {
		t.Errorf("TargetAgent = %v, want %q", msg.TargetAgent, target)
	}
}

func TestEnvelope_BroadcastTargetIsNull(t *testing.T) {
	env := events.New(events.KindAgentMessage, events.AgentMessage{MessageID: "m"}, time.Now())
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(string(data), `"target_agent":null`) {
		t.Errorf("broadcast envelope should carry target_agent null: %s", data)
	}
}

func TestEnvelope_UnknownKind(t *testing.T) {
	if _, err := events.New("BOGUS", nil, time.Now()).Encode(); err == nil {
		t.Error("Encode() with unknown kind should fail")
	}
	if _, err := events.Decode([]byte(`{"type":"BOGUS","payload":{},"timestamp":"2026-01-01T00:00:00Z"}`)); err == nil {
		t.Error("Decode() with unknown kind should fail")
	}
}

func TestKinds_AllValid(t *testing.T) {
	kinds := events.Kinds()
	if len(kinds) != 7 {
		t.Fatalf("Kinds() returned %d kinds, want 7", len(kinds))
	}
	for _, k := range kinds {
		if !k.Valid() {
			t.Errorf("%q.Valid() = false", k)
		}
	}
}
