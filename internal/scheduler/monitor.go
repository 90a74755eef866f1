package scheduler

import (
	"context"
	"runtime"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/m3n3sx/faktulove-ocr/internal/cache"
)

// MonitorConfig tunes the resource monitor.
type MonitorConfig struct {
	Interval        time.Duration
	MemoryHighWater uint64
}

// Monitor samples process memory on a jittered interval and reacts to
// pressure: above the high-water mark it shrinks the worker pool and forces
// a cache eviction sweep; a sustained backlog with headroom grows the pool.
type Monitor struct {
	cfg       MonitorConfig
	scheduler *Scheduler
	cache     *cache.Cache
	log       *zap.SugaredLogger

	// readMem is swappable in tests.
	readMem func() uint64
}

func NewMonitor(cfg MonitorConfig, s *Scheduler, c *cache.Cache) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.MemoryHighWater == 0 {
		cfg.MemoryHighWater = 1 << 30
	}
	return &Monitor{
		cfg:       cfg,
		scheduler: s,
		cache:     c,
		log:       zap.S().Named("monitor"),
		readMem:   heapAlloc,
	}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := jitterbug.New(m.cfg.Interval, &jitterbug.Norm{Stdev: m.cfg.Interval / 20})
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample(ctx)
		case <-ctx.Done():
			m.log.Info("resource monitor stopped")
			return
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	heap := m.readMem()
	backlog := m.scheduler.QueueDepth()

	switch {
	case heap > m.cfg.MemoryHighWater:
		workers := m.scheduler.Shrink(1)
		evicted := 0
		if m.cache != nil {
			evicted = m.cache.EvictLRU(ctx)
		}
		m.log.Warnw("memory high-water crossed",
			"heapBytes", heap, "workers", workers, "evicted", evicted)
	case backlog > 0 && heap < m.cfg.MemoryHighWater/2:
		workers := m.scheduler.Grow(1)
		m.log.Infow("growing worker pool for backlog",
			"backlog", backlog, "workers", workers)
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}
