package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
	"github.com/m3n3sx/faktulove-ocr/pkg/metrics"
)

type registration struct {
	adapter     Adapter
	metrics     *Metrics
	order       int
	initialized bool
}

// Registry holds the live set of adapters together with their performance
// metrics and per-document-type preference lists. It is safe for concurrent
// use; adapter invocations never happen under the registry lock.
type Registry struct {
	mu          sync.RWMutex
	adapters    []*registration
	byName      map[string]*registration
	preferences map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		byName:      make(map[string]*registration),
		preferences: make(map[string][]string),
	}
}

// Register adds an adapter in registration order. Registration order breaks
// ranking ties.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if _, ok := r.byName[name]; ok {
		return errdefs.NewConfigurationError("adapter %q already registered", name)
	}
	reg := &registration{adapter: adapter, metrics: &Metrics{}, order: len(r.adapters)}
	r.adapters = append(r.adapters, reg)
	r.byName[name] = reg
	return nil
}

// SetPreference declares the ordered adapter preference for one document
// type (MIME type). Unknown names are ignored at selection time.
func (r *Registry) SetPreference(docType string, adapterNames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferences[docType] = append([]string(nil), adapterNames...)
}

// InitializeAll initializes every registered adapter, marking the ones that
// succeed as live. It fails only when no adapter could be initialized.
func (r *Registry) InitializeAll(ctx context.Context) error {
	r.mu.RLock()
	regs := append([]*registration(nil), r.adapters...)
	r.mu.RUnlock()

	live := 0
	for _, reg := range regs {
		if err := reg.adapter.Initialize(ctx); err != nil {
			zap.S().Named("engine").Warnw("adapter initialization failed", "engine", reg.adapter.Name(), "error", err)
			continue
		}
		r.mu.Lock()
		reg.initialized = true
		r.mu.Unlock()
		live++
	}
	if live == 0 {
		return errdefs.NewDependencyError("no recognition adapter could be initialized")
	}
	return nil
}

// MarkInitialized flags a single adapter as live without running its own
// Initialize. Used by tests and by hosts that manage adapter lifecycles.
func (r *Registry) MarkInitialized(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.byName[name]; ok {
		reg.initialized = true
	}
}

// Adapter returns the adapter registered under name, nil if absent.
func (r *Registry) Adapter(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.byName[name]; ok {
		return reg.adapter
	}
	return nil
}

// Metrics returns the live metrics aggregate for one adapter.
func (r *Registry) Metrics(name string) *Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.byName[name]; ok {
		return reg.metrics
	}
	return nil
}

// RecordInvocation folds one adapter invocation into its running metrics.
func (r *Registry) RecordInvocation(name string, success bool, confidence float64, elapsed time.Duration) {
	if m := r.Metrics(name); m != nil {
		m.Record(success, confidence, elapsed)
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	metrics.IncreaseEngineInvocationsMetric(name, outcome)
}

func (r *Registry) initializedRegs() []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*registration, 0, len(r.adapters))
	for _, reg := range r.adapters {
		if reg.initialized {
			out = append(out, reg)
		}
	}
	return out
}

func (r *Registry) preferenceFor(docType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.preferences[docType]
}
