package mcp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/internal/events"
	"github.com/localconnect/devos/pkg/models"
)

const (
	SubmittedMessage = "Design request submitted. Listen on WebSocket for DESIGN_RESPONSE."
	DeliveredMessage = "Response delivered"
)

// DesignAnswer is an agent's reply to a pending design request.
type DesignAnswer struct {
	RequestID string `json:"request_id"`
	AgentID   string `json:"agent_id"`
	Response  string `json:"response"`
}

// RetentionPolicy bounds how long design requests are kept. A zero TTL
// keeps that class of request forever.
type RetentionPolicy struct {
	PendingTTL   time.Duration
	CompletedTTL time.Duration
}

// Rendezvous pairs asynchronous design requests with the single agent
// response that completes each of them. The response may arrive on any
// connection; the submitter learns of it from the DESIGN_RESPONSE event or
// by polling Get.
type Rendezvous struct {
	mu       sync.RWMutex
	requests map[string]*models.DesignRequest
	pub      Publisher
	policy   RetentionPolicy
	newID    func() string
	now      func() time.Time
}

// NewRendezvous creates an empty rendezvous table.
func NewRendezvous(pub Publisher, policy RetentionPolicy) *Rendezvous {
	return &Rendezvous{
		requests: make(map[string]*models.DesignRequest),
		pub:      pub,
		policy:   policy,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Submit stores a pending request and announces it with DESIGN_REQUEST.
// If the announcement fails the request is withdrawn, since no agent
// would ever learn of it.
func (r *Rendezvous) Submit(ctx context.Context, payload models.DesignPayload) (*models.DesignSubmission, error) {
	if payload.Message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalid)
	}
	if payload.History == nil {
		payload.History = []models.ChatMessage{}
	}

	req := &models.DesignRequest{
		RequestID:   r.newID(),
		Payload:     payload,
		SubmittedAt: r.now().UTC(),
		Status:      models.DesignStatusPending,
	}

	r.mu.Lock()
	r.requests[req.RequestID] = req
	r.mu.Unlock()

	history := make([]events.HistoryEntry, len(payload.History))
	for i, m := range payload.History {
		history[i] = events.HistoryEntry{Role: m.Role, Content: m.Content}
	}
	if err := r.pub.Publish(ctx, events.KindDesignRequest, events.DesignRequest{
		RequestID:          req.RequestID,
		Message:            payload.Message,
		ProjectID:          payload.ProjectID,
		ProjectName:        payload.ProjectName,
		ProjectDescription: payload.ProjectDescription,
		Context:            payload.Context,
		History:            history,
	}); err != nil {
		r.mu.Lock()
		delete(r.requests, req.RequestID)
		r.mu.Unlock()
		return nil, err
	}

	log.Info().
		Str("request_id", req.RequestID).
		Int("history", len(history)).
		Msg("Design request submitted")

	return &models.DesignSubmission{
		RequestID: req.RequestID,
		Status:    models.DesignStatusPending,
		Message:   SubmittedMessage,
	}, nil
}

// Respond completes a pending request and announces the answer with
// DESIGN_RESPONSE. Only the first response for a request wins; later ones
// (and responses to unknown requests) get *ErrNotFound. Once the answer is
// recorded the call succeeds even if the announcement fails; the submitter
// can still poll Get.
func (r *Rendezvous) Respond(ctx context.Context, ans DesignAnswer) (*models.DesignAck, error) {
	if ans.RequestID == "" || ans.AgentID == "" {
		return nil, fmt.Errorf("%w: request_id and agent_id are required", ErrInvalid)
	}

	now := r.now().UTC()
	r.mu.Lock()
	req, ok := r.requests[ans.RequestID]
	if !ok || req.Status != models.DesignStatusPending {
		r.mu.Unlock()
		return nil, &ErrNotFound{Entity: "pending design request", Key: ans.RequestID}
	}
	response, agentID := ans.Response, ans.AgentID
	req.Status = models.DesignStatusCompleted
	req.Response = &response
	req.RespondedBy = &agentID
	req.CompletedAt = &now
	r.mu.Unlock()

	if err := r.pub.Publish(ctx, events.KindDesignResponse, events.DesignResponse{
		RequestID: ans.RequestID,
		AgentID:   ans.AgentID,
		Response:  ans.Response,
	}); err != nil {
		log.Warn().Err(err).Str("request_id", ans.RequestID).Msg("Failed to announce design response")
	}

	log.Info().
		Str("request_id", ans.RequestID).
		Str("agent_id", ans.AgentID).
		Msg("Design request answered")

	return &models.DesignAck{
		Success:   true,
		RequestID: ans.RequestID,
		Message:   DeliveredMessage,
	}, nil
}

// Get returns a copy of the request, pending or completed.
func (r *Rendezvous) Get(requestID string) (*models.DesignRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[requestID]
	if !ok {
		return nil, &ErrNotFound{Entity: "design request", Key: requestID}
	}
	out := *req
	return &out, nil
}

// ListPending summarizes the requests still waiting for a response, oldest
// first.
func (r *Rendezvous) ListPending() []models.PendingDesignSummary {
	r.mu.RLock()
	out := make([]models.PendingDesignSummary, 0, len(r.requests))
	for _, req := range r.requests {
		if req.Status != models.DesignStatusPending {
			continue
		}
		out = append(out, models.PendingDesignSummary{
			RequestID:   req.RequestID,
			Message:     req.Payload.Message,
			ProjectName: req.Payload.ProjectName,
			Status:      req.Status,
			SubmittedAt: req.SubmittedAt,
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// Len returns the number of tracked requests in any status.
func (r *Rendezvous) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.requests)
}

// Name identifies the rendezvous to the retention janitor.
func (r *Rendezvous) Name() string { return "design-requests" }

// Sweep drops completed requests older than CompletedTTL (measured from
// completion) and pending requests older than PendingTTL (measured from
// submission). It returns how many were removed.
func (r *Rendezvous) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, req := range r.requests {
		if r.expired(req, now) {
			delete(r.requests, id)
			removed++
		}
	}
	return removed
}

func (r *Rendezvous) expired(req *models.DesignRequest, now time.Time) bool {
	switch req.Status {
	case models.DesignStatusCompleted:
		if r.policy.CompletedTTL <= 0 || req.CompletedAt == nil {
			return false
		}
		return now.Sub(*req.CompletedAt) > r.policy.CompletedTTL
	default:
		if r.policy.PendingTTL <= 0 {
			return false
		}
		return now.Sub(req.SubmittedAt) > r.policy.PendingTTL
	}
}
