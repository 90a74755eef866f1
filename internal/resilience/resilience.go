// Package resilience wraps single operations with hard timeouts, retry with
// exponential backoff, graceful degradation and ordered adapter fallback.
// Cancellation is cooperative: a timed-out call is abandoned at the
// operation boundary and its eventual result discarded; in-process adapters
// are not preempted.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
)

// OperationClass buckets operations by their timeout budget.
type OperationClass string

const (
	ClassInit       OperationClass = "init"
	ClassProcess    OperationClass = "process"
	ClassPreprocess OperationClass = "preprocess"
)

// Attempt records one guarded invocation for observability.
type Attempt struct {
	Engine   string
	Success  bool
	Duration time.Duration
	Err      error
	Degraded bool
}

// Config carries the executor knobs. Zero values fall back to defaults.
type Config struct {
	MaxRetries        int
	InitTimeout       time.Duration
	ProcessTimeout    time.Duration
	PreprocessTimeout time.Duration
	BackoffBase       time.Duration
	EnableDegradation bool
	EnableFallback    bool
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:        2,
		InitTimeout:       30 * time.Second,
		ProcessTimeout:    120 * time.Second,
		PreprocessTimeout: 60 * time.Second,
		BackoffBase:       200 * time.Millisecond,
		EnableDegradation: true,
		EnableFallback:    true,
	}
}

// Executor guards operations according to one Config. It is stateless apart
// from configuration and safe for concurrent use.
type Executor struct {
	cfg Config
	log *zap.SugaredLogger

	// cleanup runs before retrying a resource-kind failure.
	cleanup func(ctx context.Context)

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(cfg Config) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	def := DefaultConfig()
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = def.InitTimeout
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = def.ProcessTimeout
	}
	if cfg.PreprocessTimeout <= 0 {
		cfg.PreprocessTimeout = def.PreprocessTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	return &Executor{cfg: cfg, log: zap.S().Named("resilience"), sleep: sleepCtx}
}

// OnResourceExhausted registers a hook run before each retry of an attempt
// that failed with a resource error, giving the host a chance to free
// memory first.
func (e *Executor) OnResourceExhausted(fn func(ctx context.Context)) {
	e.cleanup = fn
}

func (e *Executor) timeoutFor(class OperationClass) time.Duration {
	switch class {
	case ClassInit:
		return e.cfg.InitTimeout
	case ClassPreprocess:
		return e.cfg.PreprocessTimeout
	default:
		return e.cfg.ProcessTimeout
	}
}

// Do runs op under the class timeout with up to 1+MaxRetries attempts.
// Non-retryable error kinds propagate immediately. The returned attempt list
// covers every invocation that happened.
func (e *Executor) Do(ctx context.Context, class OperationClass, name string, op func(ctx context.Context) error) ([]Attempt, error) {
	var attempts []Attempt
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if e.cleanup != nil && errdefs.KindOf(lastErr) == errdefs.KindResource {
				e.cleanup(ctx)
			}
			if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
				return attempts, errdefs.NewTimeoutError("%s: cancelled during backoff: %v", name, err)
			}
			e.log.Debugw("retrying operation", "operation", name, "attempt", attempt)
		}

		start := time.Now()
		err := e.runWithTimeout(ctx, e.timeoutFor(class), name, op)
		attempts = append(attempts, Attempt{
			Engine:   name,
			Success:  err == nil,
			Duration: time.Since(start),
			Err:      err,
		})
		if err == nil {
			return attempts, nil
		}
		lastErr = err
		if !errdefs.IsRetryable(err) {
			return attempts, err
		}
	}
	return attempts, lastErr
}

// runWithTimeout executes op with a hard deadline. When the deadline expires
// the call is abandoned: op keeps running on its goroutine until it honors
// the context, and its result is discarded.
func (e *Executor) runWithTimeout(ctx context.Context, budget time.Duration, name string, op func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return errdefs.NewTimeoutError("%s: cancelled: %v", name, ctx.Err())
		}
		return errdefs.NewTimeoutError("%s: exceeded %s budget", name, budget)
	}
}

func (e *Executor) backoff(attempt int) time.Duration {
	d := e.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
