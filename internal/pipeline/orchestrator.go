// Package pipeline runs the fixed stage sequence that turns one document
// into a compiled recognition outcome: validate, preprocess, recognize,
// extract, score, validate the result, compile. The cache is consulted
// before any stage runs and fed after a confident success.
package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/m3n3sx/faktulove-ocr/internal/cache"
	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/engine"
	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
	"github.com/m3n3sx/faktulove-ocr/internal/resilience"
	"github.com/m3n3sx/faktulove-ocr/pkg/metrics"
)

type Config struct {
	// PersistThreshold is the minimum confidence for a successful run to be
	// written back to the cache.
	PersistThreshold float64
	// PreprocessFallback continues with the unmodified input when
	// preprocessing fails terminally.
	PreprocessFallback bool
	// MinPerformance is the qualification bar for recognition dispatch:
	// adapters whose average confidence meets it are tried before the rest.
	MinPerformance engine.MinPerformance
}

func DefaultConfig() Config {
	return Config{
		PersistThreshold:   60,
		PreprocessFallback: true,
	}
}

type Orchestrator struct {
	registry *engine.Registry
	cache    *cache.Cache
	executor *resilience.Executor
	cfg      Config

	pre       Preprocessor
	extractor FieldExtractor
	scorer    ConfidenceScorer
	validator ResultValidator

	log *zap.SugaredLogger
}

func NewOrchestrator(registry *engine.Registry, resultCache *cache.Cache, executor *resilience.Executor, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		cache:     resultCache,
		executor:  executor,
		cfg:       cfg,
		pre:       PDFSplitter{},
		extractor: DefaultExtractor{},
		scorer:    DefaultScorer{},
		validator: DefaultValidator{},
		log:       zap.S().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the full stage sequence for one document. It never panics
// across stage boundaries and always returns a structured Result.
func (o *Orchestrator) Run(ctx context.Context, doc document.Document) Result {
	start := time.Now()

	if o.cache != nil {
		if hit := o.cache.Get(ctx, doc); hit != nil {
			o.log.Debugw("cache hit", "exact", hit.Exact, "similarity", hit.Similarity)
			return Result{
				Success:    true,
				Text:       hit.Payload.Text,
				Fields:     hit.Payload.Fields,
				Confidence: clampConfidence(hit.Payload.Confidence),
				CacheHit:   true,
				Duration:   time.Since(start),
			}
		}
	}

	run := &runState{doc: doc}

	if failed := o.validate(ctx, run); failed != nil {
		return o.finalizeFailure(run, start, failed)
	}
	o.preprocess(ctx, run)
	if run.failure != nil {
		return o.finalizeFailure(run, start, run.failure)
	}
	if failed := o.recognize(ctx, run); failed != nil {
		return o.finalizeFailure(run, start, failed)
	}
	if failed := o.extractFields(ctx, run); failed != nil {
		return o.finalizeFailure(run, start, failed)
	}
	o.scoreConfidence(ctx, run)
	if failed := o.validateResult(ctx, run); failed != nil {
		return o.finalizeFailure(run, start, failed)
	}
	return o.compile(ctx, run, start)
}

type runState struct {
	doc          document.Document
	pages        []document.Document
	recognition  engine.Result
	fields       map[string]string
	confidence   float64
	enginesUsed  []string
	fallbackUsed bool
	steps        []StepRecord
	failure      *StageError
}

func (o *Orchestrator) validate(ctx context.Context, run *runState) *StageError {
	stepStart := time.Now()
	attempts, err := o.executor.Do(ctx, resilience.ClassPreprocess, string(StageValidation), func(ctx context.Context) error {
		return run.doc.Validate()
	})
	run.appendStep(StageValidation, stepStart, attempts, "", err)
	if err != nil {
		return &StageError{Stage: StageValidation, Attempts: len(attempts), Cause: err}
	}
	return nil
}

func (o *Orchestrator) preprocess(ctx context.Context, run *runState) {
	stepStart := time.Now()
	var pages []document.Document
	attempts, err := o.executor.Do(ctx, resilience.ClassPreprocess, string(StagePreprocessing), func(ctx context.Context) error {
		out, perr := o.pre.Preprocess(ctx, run.doc)
		if perr != nil {
			return perr
		}
		pages = out
		return nil
	})
	if err == nil {
		run.appendStep(StagePreprocessing, stepStart, attempts, "", nil)
		run.pages = pages
		return
	}
	if o.cfg.PreprocessFallback {
		o.log.Warnw("preprocessing failed, continuing with raw input", "error", err)
		run.steps = append(run.steps, StepRecord{
			Stage:        StagePreprocessing,
			Status:       StepSkipped,
			Start:        stepStart,
			End:          time.Now(),
			RetryCount:   retryCount(attempts),
			ErrorMessage: err.Error(),
		})
		run.pages = []document.Document{run.doc}
		return
	}
	run.appendStep(StagePreprocessing, stepStart, attempts, "", err)
	run.failure = &StageError{Stage: StagePreprocessing, Attempts: len(attempts), Cause: err}
}

func (o *Orchestrator) recognize(ctx context.Context, run *runState) *StageError {
	stepStart := time.Now()

	adapters := o.orderedAdapters(run.doc.MimeType)
	if len(adapters) == 0 {
		err := errdefs.NewDependencyError("no initialized adapter supports %s", run.doc.MimeType)
		run.appendStep(StageRecognition, stepStart, nil, "", err)
		return &StageError{Stage: StageRecognition, Attempts: 0, Cause: err}
	}

	var (
		pageResults   []engine.Result
		totalAttempts int
	)
	for _, page := range run.pages {
		res, outcome, err := o.executor.Process(ctx, o.registry, page, adapters)
		totalAttempts += len(outcome.Attempts)
		run.fallbackUsed = run.fallbackUsed || outcome.FallbackUsed
		if err != nil {
			run.steps = append(run.steps, StepRecord{
				Stage:        StageRecognition,
				Status:       StepFailed,
				Start:        stepStart,
				End:          time.Now(),
				RetryCount:   totalAttempts - 1,
				ErrorMessage: err.Error(),
			})
			return &StageError{Stage: StageRecognition, Attempts: totalAttempts, Cause: err}
		}
		pageResults = append(pageResults, res)
		run.enginesUsed = appendUnique(run.enginesUsed, res.EngineName)
	}

	run.recognition = mergePageResults(pageResults)
	run.steps = append(run.steps, StepRecord{
		Stage:      StageRecognition,
		Status:     StepCompleted,
		Start:      stepStart,
		End:        time.Now(),
		RetryCount: totalAttempts - len(run.pages),
		EngineUsed: strings.Join(run.enginesUsed, ","),
	})
	return nil
}

func (o *Orchestrator) extractFields(ctx context.Context, run *runState) *StageError {
	stepStart := time.Now()
	var fields map[string]string
	attempts, err := o.executor.Do(ctx, resilience.ClassProcess, string(StageFieldExtraction), func(ctx context.Context) error {
		out, eerr := o.extractor.Extract(ctx, run.recognition.Text)
		if eerr != nil {
			return eerr
		}
		fields = out
		return nil
	})
	run.appendStep(StageFieldExtraction, stepStart, attempts, "", err)
	if err != nil {
		return &StageError{Stage: StageFieldExtraction, Attempts: len(attempts), Cause: err}
	}
	run.fields = fields
	return nil
}

func (o *Orchestrator) scoreConfidence(ctx context.Context, run *runState) {
	stepStart := time.Now()
	run.confidence = clampConfidence(o.scorer.Score(ctx, run.recognition, run.fields))
	run.appendStep(StageConfidenceScoring, stepStart, nil, "", nil)
}

func (o *Orchestrator) validateResult(ctx context.Context, run *runState) *StageError {
	stepStart := time.Now()
	attempts, err := o.executor.Do(ctx, resilience.ClassProcess, string(StageResultValidation), func(ctx context.Context) error {
		return o.validator.Validate(ctx, run.recognition.Text, run.fields, run.confidence)
	})
	run.appendStep(StageResultValidation, stepStart, attempts, "", err)
	if err != nil {
		return &StageError{Stage: StageResultValidation, Attempts: len(attempts), Cause: err}
	}
	return nil
}

func (o *Orchestrator) compile(ctx context.Context, run *runState, start time.Time) Result {
	stepStart := time.Now()
	run.appendStep(StageCompilation, stepStart, nil, "", nil)

	result := Result{
		Success:      true,
		Text:         run.recognition.Text,
		Fields:       run.fields,
		Confidence:   run.confidence,
		EnginesUsed:  run.enginesUsed,
		FallbackUsed: run.fallbackUsed,
		Duration:     time.Since(start),
		Steps:        run.steps,
	}
	metrics.ObserveProcessingDurationMetric(float64(result.Duration.Milliseconds()))

	if o.cache != nil && result.Confidence >= o.cfg.PersistThreshold {
		o.cache.Put(ctx, run.doc, cache.Payload{
			Text:       result.Text,
			Fields:     result.Fields,
			Confidence: result.Confidence,
			EngineUsed: strings.Join(result.EnginesUsed, ","),
		})
	}
	return result
}

func (o *Orchestrator) finalizeFailure(run *runState, start time.Time, failed *StageError) Result {
	o.log.Warnw("pipeline run failed", "stage", failed.Stage, "error", failed.Cause)
	metrics.ObserveProcessingDurationMetric(float64(time.Since(start).Milliseconds()))
	return Result{
		Success:      false,
		Confidence:   0,
		EnginesUsed:  run.enginesUsed,
		FallbackUsed: run.fallbackUsed,
		Duration:     time.Since(start),
		Steps:        run.steps,
		FailedStage:  failed.Stage,
		Err:          failed,
	}
}

// orderedAdapters returns the live adapters supporting the MIME type in
// rank order, adapters meeting the performance bar ahead of those that do
// not; the resilience layer walks this as its fallback list.
func (o *Orchestrator) orderedAdapters(mimeType string) []engine.Adapter {
	ranked := o.registry.Rank(mimeType)
	var qualified, rest []engine.Adapter
	for _, ra := range ranked {
		if !ra.Adapter.SupportsFormat(mimeType) {
			continue
		}
		if ra.Metrics.AvgConfidence >= o.cfg.MinPerformance.AvgConfidence {
			qualified = append(qualified, ra.Adapter)
			continue
		}
		rest = append(rest, ra.Adapter)
	}
	return append(qualified, rest...)
}

func (r *runState) appendStep(stage Stage, start time.Time, attempts []resilience.Attempt, engineUsed string, err error) {
	record := StepRecord{
		Stage:      stage,
		Status:     StepCompleted,
		Start:      start,
		End:        time.Now(),
		RetryCount: retryCount(attempts),
		EngineUsed: engineUsed,
	}
	if err != nil {
		record.Status = StepFailed
		record.ErrorMessage = err.Error()
	}
	r.steps = append(r.steps, record)
}

func retryCount(attempts []resilience.Attempt) int {
	if len(attempts) <= 1 {
		return 0
	}
	return len(attempts) - 1
}

func mergePageResults(results []engine.Result) engine.Result {
	if len(results) == 1 {
		return results[0]
	}
	var merged engine.Result
	var confSum float64
	texts := make([]string, 0, len(results))
	for _, res := range results {
		texts = append(texts, res.Text)
		confSum += res.Confidence
		merged.WordConfidences = append(merged.WordConfidences, res.WordConfidences...)
		merged.BoundingBoxes = append(merged.BoundingBoxes, res.BoundingBoxes...)
		merged.ProcessingTime += res.ProcessingTime
	}
	merged.Text = strings.Join(texts, "\n\f")
	if len(results) > 0 {
		merged.Confidence = confSum / float64(len(results))
		merged.EngineName = results[0].EngineName
	}
	return merged
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
