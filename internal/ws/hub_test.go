package ws_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/localconnect/devos/internal/ws"
)

// fakeConn records what it is sent. fail makes every send error; block
// makes sends wait until the context is done or release is closed.
type fakeConn struct {
	name    string
	fail    bool
	block   bool
	release chan struct{}

	mu       sync.Mutex
	received [][]byte
	closed   bool
}

func newFake(name string) *fakeConn {
	return &fakeConn{name: name, release: make(chan struct{})}
}

func (f *fakeConn) Send(ctx context.Context, msg []byte) error {
	if f.fail {
		return errors.New("broken pipe")
	}
	if f.block {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.release:
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, append([]byte(nil), msg...))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.received))
	for i, m := range f.received {
		out[i] = string(m)
	}
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// ─── Registry ────────────────────────────────────────────────

func TestHub_ConnectDisconnectCount(t *testing.T) {
	hub := ws.NewHub(time.Second)
	a, b, c := newFake("a"), newFake("b"), newFake("c")

	hub.Connect(a)
	hub.Connect(b)
	hub.Connect(c)
	if got := hub.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}

	hub.Disconnect(b)
	hub.Disconnect(b) // idempotent
	if got := hub.Count(); got != 2 {
		t.Errorf("Count() after double disconnect = %d, want 2", got)
	}

	hub.Disconnect(newFake("never-connected"))
	if got := hub.Count(); got != 2 {
		t.Errorf("Count() after disconnecting unknown conn = %d, want 2", got)
	}
	if b.isClosed() {
		t.Error("Disconnect() should not close the transport")
	}
}

func TestHub_BroadcastNoConnections(t *testing.T) {
	hub := ws.NewHub(time.Second)
	if n := hub.Broadcast(context.Background(), []byte("x")); n != 0 {
		t.Errorf("Broadcast() delivered = %d, want 0", n)
	}
}

// ─── Fan-out ─────────────────────────────────────────────────

func TestHub_BroadcastEvictsFailingConnections(t *testing.T) {
	hub := ws.NewHub(time.Second)

	conns := make([]*fakeConn, 5)
	for i := range conns {
		conns[i] = newFake(fmt.Sprintf("c%d", i))
		hub.Connect(conns[i])
	}
	conns[1].fail = true
	conns[3].fail = true

	delivered := hub.Broadcast(context.Background(), []byte("hello"))
	if delivered != 3 {
		t.Errorf("Broadcast() delivered = %d, want 3", delivered)
	}

	for i, c := range conns {
		if c.fail {
			if !c.isClosed() {
				t.Errorf("failing conn %d should be closed after eviction", i)
			}
			continue
		}
		if got := c.messages(); len(got) != 1 || got[0] != "hello" {
			t.Errorf("conn %d received %v, want [hello]", i, got)
		}
	}

	if got := hub.Count(); got != 3 {
		t.Errorf("Count() after eviction = %d, want 3", got)
	}

	// Evicted connections are gone: the next broadcast only reaches the survivors.
	if delivered := hub.Broadcast(context.Background(), []byte("again")); delivered != 3 {
		t.Errorf("second Broadcast() delivered = %d, want 3", delivered)
	}
}

func TestHub_StalledPeerIsBoundedAndEvicted(t *testing.T) {
	hub := ws.NewHub(50 * time.Millisecond)

	fast := newFake("fast")
	stalled := newFake("stalled")
	stalled.block = true
	hub.Connect(fast)
	hub.Connect(stalled)

	start := time.Now()
	delivered := hub.Broadcast(context.Background(), []byte("tick"))
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("Broadcast() took %v with a stalled peer, want bounded by send timeout", elapsed)
	}
	if delivered != 1 {
		t.Errorf("Broadcast() delivered = %d, want 1", delivered)
	}
	if got := fast.messages(); len(got) != 1 {
		t.Errorf("fast peer received %d messages, want 1", len(got))
	}
	if !stalled.isClosed() {
		t.Error("stalled peer should be closed after timing out")
	}
	if got := hub.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestHub_ConnectDuringBroadcastIsNotLost(t *testing.T) {
	hub := ws.NewHub(2 * time.Second)

	slow := newFake("slow")
	slow.block = true
	hub.Connect(slow)

	done := make(chan int)
	go func() {
		done <- hub.Broadcast(context.Background(), []byte("in-flight"))
	}()

	// Give the broadcast time to snapshot and start sending.
	time.Sleep(20 * time.Millisecond)
	late := newFake("late")
	hub.Connect(late)
	close(slow.release)

	if delivered := <-done; delivered != 1 {
		t.Errorf("Broadcast() delivered = %d, want 1", delivered)
	}
	if got := hub.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2 (late connection must survive the prune)", got)
	}
}

func TestHub_BroadcastIgnoresCallerCancellation(t *testing.T) {
	hub := ws.NewHub(time.Second)
	c := newFake("c")
	hub.Connect(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if delivered := hub.Broadcast(ctx, []byte("still delivered")); delivered != 1 {
		t.Errorf("Broadcast() with canceled ctx delivered = %d, want 1", delivered)
	}
	if hub.Count() != 1 {
		t.Error("a canceled caller must not evict healthy connections")
	}
}

func TestHub_SendPersonal(t *testing.T) {
	hub := ws.NewHub(time.Second)
	ok := newFake("ok")
	bad := newFake("bad")
	bad.fail = true
	hub.Connect(ok)
	hub.Connect(bad)

	if err := hub.SendPersonal(context.Background(), []byte("pong"), ok); err != nil {
		t.Fatalf("SendPersonal() error = %v", err)
	}
	if got := ok.messages(); len(got) != 1 || got[0] != "pong" {
		t.Errorf("received %v, want [pong]", got)
	}

	if err := hub.SendPersonal(context.Background(), []byte("pong"), bad); err == nil {
		t.Error("SendPersonal() to failing conn should return an error")
	}
	if hub.Count() != 2 {
		t.Error("SendPersonal() failure should not evict")
	}
}

func TestHub_CloseAll(t *testing.T) {
	hub := ws.NewHub(time.Second)
	a, b := newFake("a"), newFake("b")
	hub.Connect(a)
	hub.Connect(b)

	hub.CloseAll()

	if hub.Count() != 0 {
		t.Errorf("Count() after CloseAll = %d, want 0", hub.Count())
	}
	if !a.isClosed() || !b.isClosed() {
		t.Error("CloseAll() should close every connection")
	}
}

// ─── Concurrency ─────────────────────────────────────────────

// TestHub_CountArithmetic checks count == connects - disconnects - evictions
// under concurrent connect/disconnect/broadcast.
func TestHub_CountArithmetic(t *testing.T) {
	hub := ws.NewHub(time.Second)

	const n = 60
	conns := make([]*fakeConn, n)
	for i := range conns {
		conns[i] = newFake(fmt.Sprintf("c%d", i))
		conns[i].fail = i%5 == 0 // 12 failing
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			hub.Connect(c)
		}(c)
	}
	wg.Wait()

	// Disconnect 10 healthy ones while broadcasts are running.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(context.Background(), []byte("x"))
		}()
	}
	disconnected := 0
	for i, c := range conns {
		if c.fail || disconnected == 10 {
			continue
		}
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			hub.Disconnect(c)
		}(conns[i])
		disconnected++
	}
	wg.Wait()

	// One final pass guarantees every failing conn has been evicted.
	hub.Broadcast(context.Background(), []byte("y"))

	want := n - 10 - 12
	if got := hub.Count(); got != want {
		t.Errorf("Count() = %d, want %d", got, want)
	}
}
