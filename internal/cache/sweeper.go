package cache

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// Sweeper runs the retention sweep on a jittered interval until its context
// is cancelled.
type Sweeper struct {
	cache    *Cache
	interval time.Duration
	log      *zap.SugaredLogger
}

func NewSweeper(cache *Cache, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{cache: cache, interval: interval, log: zap.S().Named("cache_sweeper")}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: s.interval / 20})
	defer ticker.Stop()

	s.log.Infof("retention sweeper started, interval %s", s.interval)
	for {
		select {
		case <-ticker.C:
			if n := s.cache.Sweep(ctx); n > 0 {
				s.log.Infof("sweep removed %d in-memory entries", n)
			}
		case <-ctx.Done():
			s.log.Info("retention sweeper stopped")
			return
		}
	}
}
