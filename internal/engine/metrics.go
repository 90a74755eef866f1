package engine

import (
	"sync"
	"time"
)

// Metrics is the running performance aggregate kept for one adapter. It is
// the only engine state shared across tasks and is guarded by its own lock.
type Metrics struct {
	mu                sync.Mutex
	usageCount        int64
	successCount      int64
	avgConfidence     float64
	avgProcessingTime time.Duration
}

// MetricsSnapshot is an immutable copy handed to ranking logic.
type MetricsSnapshot struct {
	UsageCount        int64
	SuccessCount      int64
	AvgConfidence     float64
	AvgProcessingTime time.Duration
}

func (s MetricsSnapshot) SuccessRate() float64 {
	if s.UsageCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.UsageCount)
}

// Record folds one invocation into the running averages. Only successful
// invocations contribute to the confidence and latency averages.
func (m *Metrics) Record(success bool, confidence float64, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.usageCount++
	if !success {
		return
	}
	n := float64(m.successCount)
	m.successCount++
	m.avgConfidence = (m.avgConfidence*n + confidence) / (n + 1)
	m.avgProcessingTime = time.Duration((float64(m.avgProcessingTime)*n + float64(elapsed)) / (n + 1))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		UsageCount:        m.usageCount,
		SuccessCount:      m.successCount,
		AvgConfidence:     m.avgConfidence,
		AvgProcessingTime: m.avgProcessingTime,
	}
}
