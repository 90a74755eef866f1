package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
)

// CompositeMode selects how RunComposite drives the adapters.
type CompositeMode int

const (
	CompositeSequential CompositeMode = iota
	CompositeConcurrent
)

// RunComposite invokes every given adapter on the document, records metrics
// per invocation and returns the non-error result with the highest
// confidence. It fails only when every adapter errors or returns nothing.
func (r *Registry) RunComposite(ctx context.Context, doc document.Document, adapters []Adapter, mode CompositeMode) (Result, error) {
	if len(adapters) == 0 {
		return Result{}, errdefs.NewConfigurationError("composite run requires at least one adapter")
	}

	var results []Result
	if mode == CompositeConcurrent {
		results = r.runConcurrent(ctx, doc, adapters)
	} else {
		results = r.runSequential(ctx, doc, adapters)
	}

	best, ok := bestByConfidence(results)
	if !ok {
		return Result{}, errdefs.NewProcessingError("all %d adapters failed for document %s", len(adapters), doc.ContentHash()[:12])
	}
	return best, nil
}

func (r *Registry) runSequential(ctx context.Context, doc document.Document, adapters []Adapter) []Result {
	results := make([]Result, 0, len(adapters))
	for _, a := range adapters {
		if ctx.Err() != nil {
			break
		}
		if res, err := r.invoke(ctx, a, doc); err == nil {
			results = append(results, res)
		}
	}
	return results
}

func (r *Registry) runConcurrent(ctx context.Context, doc document.Document, adapters []Adapter) []Result {
	var (
		mu      sync.Mutex
		results []Result
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range adapters {
		adapter := a
		g.Go(func() error {
			res, err := r.invoke(gctx, adapter, doc)
			if err != nil {
				// Adapter failures are tolerated here; the composite fails
				// only when nobody produced a result.
				return nil
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Registry) invoke(ctx context.Context, a Adapter, doc document.Document) (Result, error) {
	start := time.Now()
	res, err := a.Process(ctx, doc)
	elapsed := time.Since(start)
	if err != nil {
		r.RecordInvocation(a.Name(), false, 0, elapsed)
		zap.S().Named("engine").Debugw("adapter failed", "engine", a.Name(), "error", err)
		return Result{}, err
	}
	if res.EngineName == "" {
		res.EngineName = a.Name()
	}
	if res.ProcessingTime == 0 {
		res.ProcessingTime = elapsed
	}
	r.RecordInvocation(a.Name(), true, res.Confidence, elapsed)
	return res, nil
}

func bestByConfidence(results []Result) (Result, bool) {
	if len(results) == 0 {
		return Result{}, false
	}
	best := results[0]
	for _, res := range results[1:] {
		if res.Confidence > best.Confidence {
			best = res
		}
	}
	return best, true
}
