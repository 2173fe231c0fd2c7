// Package ws tracks live observer connections and fans messages out to them.
//
// The Hub owns the set of open connections. Broadcast sends to every
// connection concurrently, each send bounded by a timeout, and evicts the
// connections whose send failed once the pass is over. A failing or stalled
// peer never blocks or fails delivery to the others, and the connection set
// lock is never held across a network write.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSendTimeout bounds a single send when the hub is built with a
// non-positive timeout.
const DefaultSendTimeout = 5 * time.Second

// Conn is one observer connection. Send must respect ctx's deadline or
// return once Close is called.
type Conn interface {
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Hub is the registry of active connections.
type Hub struct {
	mu          sync.RWMutex
	conns       map[Conn]struct{}
	sendTimeout time.Duration
}

// NewHub creates an empty hub whose sends are bounded by sendTimeout.
func NewHub(sendTimeout time.Duration) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Hub{
		conns:       make(map[Conn]struct{}),
		sendTimeout: sendTimeout,
	}
}

// Connect adds an already-accepted connection to the active set.
func (h *Hub) Connect(c Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()

	log.Debug().Int("active", n).Msg("WebSocket client connected")
}

// Disconnect removes c from the active set. Removing an absent connection
// is a no-op. The transport is not closed; the caller owns that.
func (h *Hub) Disconnect(c Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()

	if ok {
		log.Debug().Int("active", n).Msg("WebSocket client disconnected")
	}
}

// Count returns the number of active connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast delivers msg to every active connection and returns how many
// deliveries succeeded. Connections whose send fails or times out are
// removed and closed after the pass. Cancellation of ctx is ignored so a
// caller giving up cannot evict healthy observers; its values (trace spans)
// are kept.
func (h *Hub) Broadcast(ctx context.Context, msg []byte) int {
	ctx = context.WithoutCancel(ctx)
	targets := h.snapshot()
	if len(targets) == 0 {
		return 0
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []Conn
	)
	for _, c := range targets {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			if err := h.deliver(ctx, c, msg); err != nil {
				log.Debug().Err(err).Msg("WebSocket send failed, evicting client")
				mu.Lock()
				failed = append(failed, c)
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	h.evict(failed)
	return len(targets) - len(failed)
}

// SendPersonal delivers msg to exactly one connection. Unlike Broadcast the
// error is returned and the connection is left in place.
func (h *Hub) SendPersonal(ctx context.Context, msg []byte, c Conn) error {
	return h.deliver(ctx, c, msg)
}

// CloseAll closes and forgets every connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[Conn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.Close()
	}
	if len(conns) > 0 {
		log.Info().Int("closed", len(conns)).Msg("Closed all WebSocket clients")
	}
}

func (h *Hub) snapshot() []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

// deliver runs one send in its own goroutine and stops waiting once the
// send timeout elapses. An abandoned send finishes when the connection is
// closed by eviction.
func (h *Hub) deliver(ctx context.Context, c Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(ctx, msg) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// evict removes every failed connection in one locked step, then closes
// them outside the lock.
func (h *Hub) evict(failed []Conn) {
	if len(failed) == 0 {
		return
	}

	h.mu.Lock()
	removed := make([]Conn, 0, len(failed))
	for _, c := range failed {
		if _, ok := h.conns[c]; ok {
			delete(h.conns, c)
			removed = append(removed, c)
		}
	}
	n := len(h.conns)
	h.mu.Unlock()

	for _, c := range removed {
		c.Close()
	}
	log.Info().
		Int("evicted", len(removed)).
		Int("active", n).
		Msg("Pruned dead WebSocket clients")
}
