package retention_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/localconnect/devos/internal/retention"
)

type countingSweeper struct {
	name    string
	calls   atomic.Int32
	removes int
}

func (c *countingSweeper) Name() string { return c.name }

func (c *countingSweeper) Sweep(time.Time) int {
	c.calls.Add(1)
	return c.removes
}

func TestRunCycle_SumsRemovals(t *testing.T) {
	a := &countingSweeper{name: "a", removes: 2}
	b := &countingSweeper{name: "b", removes: 3}
	j := retention.NewJanitor(time.Hour, a)
	j.Register(b)

	stats := j.RunCycle()
	if stats.Total() != 5 {
		t.Errorf("Total() = %d, want 5", stats.Total())
	}
	if stats.Removed["a"] != 2 || stats.Removed["b"] != 3 {
		t.Errorf("Removed = %v", stats.Removed)
	}
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	s := &countingSweeper{name: "s"}
	j := retention.NewJanitor(10*time.Millisecond, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.calls.Load(); got < 3 {
		t.Fatalf("sweeper called %d times, want at least 3", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}
