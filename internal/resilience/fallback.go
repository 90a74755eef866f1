package resilience

import (
	"context"
	"time"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/engine"
	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
)

// Outcome aggregates the observable history of one guarded recognition.
type Outcome struct {
	Attempts       []Attempt
	FallbackUsed   bool
	FallbackEngine string
	Degraded       bool
}

// Process runs the ordered adapter list against the document. Per adapter:
// full-quality attempts with retry, then the degradation ladder when
// enabled, then the next adapter when fallback is enabled. Non-retryable
// errors abort the whole chain immediately.
func (e *Executor) Process(ctx context.Context, reg *engine.Registry, doc document.Document, adapters []engine.Adapter) (engine.Result, Outcome, error) {
	var outcome Outcome
	if len(adapters) == 0 {
		return engine.Result{}, outcome, errdefs.NewConfigurationError("no adapters configured")
	}

	var lastErr error
	for i, adapter := range adapters {
		res, attempts, err := e.processOne(ctx, reg, doc, adapter)
		outcome.Attempts = append(outcome.Attempts, attempts...)
		if err == nil {
			if i > 0 {
				outcome.FallbackUsed = true
				outcome.FallbackEngine = adapter.Name()
			}
			outcome.Degraded = outcome.Degraded || degradedAttemptSucceeded(attempts)
			return res, outcome, nil
		}
		lastErr = err
		if !errdefs.IsRetryable(err) {
			return engine.Result{}, outcome, err
		}
		if !e.cfg.EnableFallback {
			break
		}
		if i < len(adapters)-1 {
			e.log.Infow("falling back to next adapter",
				"failed", adapter.Name(), "next", adapters[i+1].Name(), "error", err)
		}
	}
	return engine.Result{}, outcome, lastErr
}

// processOne exhausts retries at full quality and then walks the degradation
// ladder, each level with half the previous timeout budget.
func (e *Executor) processOne(ctx context.Context, reg *engine.Registry, doc document.Document, adapter engine.Adapter) (engine.Result, []Attempt, error) {
	var result engine.Result
	run := func(ctx context.Context) error {
		start := time.Now()
		res, err := adapter.Process(ctx, doc)
		reg.RecordInvocation(adapter.Name(), err == nil, res.Confidence, time.Since(start))
		if err != nil {
			return err
		}
		if res.EngineName == "" {
			res.EngineName = adapter.Name()
		}
		result = res
		return nil
	}

	attempts, err := e.Do(ctx, ClassProcess, adapter.Name(), run)
	if err == nil {
		return result, attempts, nil
	}
	if !e.cfg.EnableDegradation || !errdefs.IsRetryable(err) {
		return engine.Result{}, attempts, err
	}

	budget := e.cfg.ProcessTimeout
	for level := engine.DegradationReducedQuality; level <= engine.DegradationMinimal; level++ {
		budget /= 2
		start := time.Now()
		degErr := e.runWithTimeout(ctx, budget, adapter.Name(), func(ctx context.Context) error {
			res, derr := processDegraded(ctx, adapter, doc, level)
			reg.RecordInvocation(adapter.Name(), derr == nil, res.Confidence, time.Since(start))
			if derr != nil {
				return derr
			}
			if res.EngineName == "" {
				res.EngineName = adapter.Name()
			}
			result = res
			return nil
		})
		attempts = append(attempts, Attempt{
			Engine:   adapter.Name(),
			Success:  degErr == nil,
			Duration: time.Since(start),
			Err:      degErr,
			Degraded: true,
		})
		if degErr == nil {
			e.log.Infow("degraded attempt succeeded", "engine", adapter.Name(), "level", level.String())
			return result, attempts, nil
		}
		err = degErr
		if !errdefs.IsRetryable(degErr) {
			return engine.Result{}, attempts, degErr
		}
	}
	return engine.Result{}, attempts, err
}

func processDegraded(ctx context.Context, adapter engine.Adapter, doc document.Document, level engine.DegradationLevel) (engine.Result, error) {
	if d, ok := adapter.(engine.DegradableAdapter); ok {
		return d.ProcessDegraded(ctx, doc, level)
	}
	return adapter.Process(ctx, doc)
}

func degradedAttemptSucceeded(attempts []Attempt) bool {
	for _, a := range attempts {
		if a.Success && a.Degraded {
			return true
		}
	}
	return false
}
