// Package retention runs the background sweep that bounds the coordinator's
// in-memory tables. Each registered Sweeper drops its own expired entries;
// the janitor only decides when.
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is used when the janitor is built with a non-positive
// interval.
const DefaultInterval = time.Minute

// Sweeper removes entries that expired as of now and reports how many.
type Sweeper interface {
	Name() string
	Sweep(now time.Time) int
}

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	Removed map[string]int
	Elapsed time.Duration
}

// Total returns the number of entries removed across all sweepers.
func (s CycleStats) Total() int {
	n := 0
	for _, v := range s.Removed {
		n += v
	}
	return n
}

// Janitor periodically invokes every registered Sweeper.
type Janitor struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sweepers []Sweeper
}

// NewJanitor creates a janitor that runs on the given interval.
func NewJanitor(interval time.Duration, sweepers ...Sweeper) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		interval: interval,
		now:      time.Now,
		sweepers: sweepers,
	}
}

// Register adds a sweeper. Safe to call while the janitor is running.
func (j *Janitor) Register(s Sweeper) {
	j.mu.Lock()
	j.sweepers = append(j.sweepers, s)
	j.mu.Unlock()
	log.Info().Str("sweeper", s.Name()).Msg("Retention sweeper registered")
}

// Start runs the janitor loop. It blocks until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Strs("sweepers", j.names()).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.RunCycle()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle()
		}
	}
}

// RunCycle performs one sweep across all sweepers.
func (j *Janitor) RunCycle() CycleStats {
	start := time.Now()
	now := j.now()

	j.mu.RLock()
	sweepers := append([]Sweeper(nil), j.sweepers...)
	j.mu.RUnlock()

	stats := CycleStats{Removed: make(map[string]int, len(sweepers))}
	for _, s := range sweepers {
		stats.Removed[s.Name()] = s.Sweep(now)
	}
	stats.Elapsed = time.Since(start)

	if total := stats.Total(); total > 0 {
		ev := log.Info().Int("removed", total).Dur("elapsed", stats.Elapsed)
		for name, n := range stats.Removed {
			ev = ev.Int(name, n)
		}
		ev.Msg("Retention cycle complete")
	}
	return stats
}

func (j *Janitor) names() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]string, len(j.sweepers))
	for i, s := range j.sweepers {
		out[i] = s.Name()
	}
	return out
}
