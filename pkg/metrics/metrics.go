package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	faktuloveOcr = "faktulove_ocr"

	// Cache metrics
	cacheLookupsTotal = "cache_lookups_total"
	cacheEntries      = "cache_entries"

	// Scheduler metrics
	tasksSubmittedTotal = "tasks_submitted_total"
	tasksCompletedTotal = "tasks_completed_total"
	queueDepth          = "queue_depth"
	workerCount         = "worker_count"

	// Pipeline metrics
	processingDurationMs = "processing_duration_milliseconds"
	engineInvocations    = "engine_invocations_total"

	// Labels
	cacheResultLabel  = "result"
	priorityLabel     = "priority"
	taskStatusLabel   = "status"
	engineLabel       = "engine"
	engineResultLabel = "result"
)

var cacheLookupsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: faktuloveOcr,
		Name:      cacheLookupsTotal,
		Help:      "number of cache lookups partitioned by outcome",
	},
	[]string{cacheResultLabel},
)

var cacheEntriesMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: faktuloveOcr,
		Name:      cacheEntries,
		Help:      "number of entries currently held in the result cache",
	},
)

var tasksSubmittedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: faktuloveOcr,
		Name:      tasksSubmittedTotal,
		Help:      "number of submitted processing tasks partitioned by priority",
	},
	[]string{priorityLabel},
)

var tasksCompletedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: faktuloveOcr,
		Name:      tasksCompletedTotal,
		Help:      "number of finished processing tasks partitioned by status",
	},
	[]string{taskStatusLabel},
)

var queueDepthMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: faktuloveOcr,
		Name:      queueDepth,
		Help:      "number of tasks waiting in the priority queue",
	},
)

var workerCountMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: faktuloveOcr,
		Name:      workerCount,
		Help:      "current size of the worker pool",
	},
)

var processingDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: faktuloveOcr,
		Name:      processingDurationMs,
		Help:      "wall-clock duration of one pipeline run",
		Buckets:   []float64{100, 500, 1000, 5000, 15000, 60000, 180000},
	},
)

var engineInvocationsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: faktuloveOcr,
		Name:      engineInvocations,
		Help:      "number of recognition engine invocations partitioned by engine and outcome",
	},
	[]string{engineLabel, engineResultLabel},
)

func IncreaseCacheLookupsTotalMetric(result string) {
	cacheLookupsTotalMetric.With(prometheus.Labels{cacheResultLabel: result}).Inc()
}

func SetCacheEntriesMetric(count int) {
	cacheEntriesMetric.Set(float64(count))
}

func IncreaseTasksSubmittedTotalMetric(priority string) {
	tasksSubmittedTotalMetric.With(prometheus.Labels{priorityLabel: priority}).Inc()
}

func IncreaseTasksCompletedTotalMetric(status string) {
	tasksCompletedTotalMetric.With(prometheus.Labels{taskStatusLabel: status}).Inc()
}

func SetQueueDepthMetric(depth int) {
	queueDepthMetric.Set(float64(depth))
}

func SetWorkerCountMetric(count int) {
	workerCountMetric.Set(float64(count))
}

func ObserveProcessingDurationMetric(ms float64) {
	processingDurationMetric.Observe(ms)
}

func IncreaseEngineInvocationsMetric(engine, result string) {
	engineInvocationsMetric.With(prometheus.Labels{engineLabel: engine, engineResultLabel: result}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(cacheLookupsTotalMetric)
	prometheus.MustRegister(cacheEntriesMetric)
	prometheus.MustRegister(tasksSubmittedTotalMetric)
	prometheus.MustRegister(tasksCompletedTotalMetric)
	prometheus.MustRegister(queueDepthMetric)
	prometheus.MustRegister(workerCountMetric)
	prometheus.MustRegister(processingDurationMetric)
	prometheus.MustRegister(engineInvocationsMetric)
}
