package memory

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-publisher/internal/logging"
	"media-publisher/internal/metrics"
)

// ErrStopped is returned by Acquire after the gate has been stopped.
var ErrStopped = errors.New("memory gate stopped")

// Config tunes the decode gate.
type Config struct {
	// LimitBytes is the reference limit; 0 uses GOMEMLIMIT, and without
	// either the gate never closes.
	LimitBytes int64
	// ResumeAt is the usage ratio below which a closed gate reopens.
	ResumeAt float64
	// PauseAt is the usage ratio at which the gate closes.
	PauseAt       float64
	CheckInterval time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		ResumeAt:      0.7,
		PauseAt:       0.85,
		CheckInterval: 2 * time.Second,
	}
}

// Gate holds back image decoding while the heap is close to the memory
// limit. A decoded pixel payload can be many times the size of its encoded
// bytes, so admitting decodes blindly under pressure risks an OOM kill.
type Gate struct {
	cfg   Config
	limit int64
	// sample reads the current heap allocation.
	sample func() uint64

	mu      sync.RWMutex
	alloc   uint64
	paused  bool
	resumed chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewGate creates a gate. Call Start to begin sampling.
func NewGate(cfg Config) *Gate {
	limit := cfg.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit == 0 {
		logging.Debug("Memory gate: no limit configured, decodes are never held back")
	} else {
		logging.Info("Memory gate: pausing decodes above %.0f%% of %s", cfg.PauseAt*100, FormatBytes(limit))
	}

	return &Gate{
		cfg:     cfg,
		limit:   limit,
		sample:  heapAlloc,
		resumed: make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins periodic sampling. It is a no-op without a limit.
func (g *Gate) Start() {
	if g.limit == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(g.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.check()
			case <-g.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and releases every waiter with ErrStopped.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func (g *Gate) check() {
	alloc := g.sample()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.alloc = alloc
	if g.limit <= 0 {
		return
	}
	usage := float64(alloc) / float64(g.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case !g.paused && usage >= g.cfg.PauseAt:
		logging.Warn("Memory at %.1f%% of limit, holding back image decodes", usage*100)
		g.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case g.paused && usage < g.cfg.ResumeAt:
		logging.Info("Memory back to %.1f%% of limit, resuming image decodes", usage*100)
		g.paused = false
		metrics.MemoryPaused.Set(0)
		close(g.resumed)
		g.resumed = make(chan struct{})
	}
}

// Acquire returns once decoding may proceed. It blocks while the gate is
// closed, and fails if ctx ends or the gate stops first.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.RLock()
	if !g.paused {
		g.mu.RUnlock()
		return nil
	}
	resumed := g.resumed
	g.mu.RUnlock()

	logging.Debug("Image decode waiting for memory pressure to ease")
	select {
	case <-resumed:
		return nil
	case <-g.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether the gate is closed.
func (g *Gate) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// Stats returns the last sampled allocation, the limit and their ratio.
func (g *Gate) Stats() (alloc, limit int64, usage float64) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	alloc = int64(min(g.alloc, uint64(1<<63-1)))
	if g.limit > 0 {
		usage = float64(g.alloc) / float64(g.limit)
	}
	return alloc, g.limit, usage
}
