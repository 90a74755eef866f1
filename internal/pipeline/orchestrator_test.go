package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3n3sx/faktulove-ocr/internal/cache"
	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/engine"
	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
	"github.com/m3n3sx/faktulove-ocr/internal/resilience"
)

const sampleInvoiceText = `FAKTURA 42/2024
NIP 526-104-05-67
Data wystawienia: 2024-08-12
Do zapłaty: 1 234,56`

type stubAdapter struct {
	name    string
	formats []string
	calls   int
	fn      func(ctx context.Context, doc document.Document) (engine.Result, error)
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Initialize(ctx context.Context) error { return nil }

func (s *stubAdapter) Process(ctx context.Context, doc document.Document) (engine.Result, error) {
	s.calls++
	return s.fn(ctx, doc)
}

func (s *stubAdapter) SupportsFormat(mimeType string) bool {
	if len(s.formats) == 0 {
		return true
	}
	for _, m := range s.formats {
		if m == mimeType {
			return true
		}
	}
	return false
}

func recognizing(text string, confidence float64) func(ctx context.Context, doc document.Document) (engine.Result, error) {
	return func(ctx context.Context, doc document.Document) (engine.Result, error) {
		return engine.Result{Text: text, Confidence: confidence}, nil
	}
}

func failing(err error) func(ctx context.Context, doc document.Document) (engine.Result, error) {
	return func(ctx context.Context, doc document.Document) (engine.Result, error) {
		return engine.Result{}, err
	}
}

type failingPreprocessor struct{}

func (failingPreprocessor) Preprocess(ctx context.Context, doc document.Document) ([]document.Document, error) {
	return nil, errdefs.NewProcessingError("ghostscript crashed")
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		MaxRetries:     1,
		BackoffBase:    time.Millisecond,
		EnableFallback: true,
	})
}

func testOrchestrator(t *testing.T, resultCache *cache.Cache, cfg Config, opts []OrchestratorOption, adapters ...engine.Adapter) *Orchestrator {
	t.Helper()
	registry := engine.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, registry.Register(a))
		registry.MarkInitialized(a.Name())
	}
	return NewOrchestrator(registry, resultCache, testExecutor(), cfg, opts...)
}

func pngDoc(content string) document.Document {
	return document.New([]byte(content), document.MimePNG)
}

func completedStages(steps []StepRecord) []Stage {
	var stages []Stage
	for _, s := range steps {
		if s.Status == StepCompleted {
			stages = append(stages, s.Stage)
		}
	}
	return stages
}

func TestRunHappyPath(t *testing.T) {
	adapter := &stubAdapter{name: "tesseract", fn: recognizing(sampleInvoiceText, 90)}
	o := testOrchestrator(t, nil, DefaultConfig(), nil, adapter)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	require.True(t, res.Success)
	require.NoError(t, res.Err)
	assert.Equal(t, sampleInvoiceText, res.Text)
	assert.False(t, res.CacheHit)
	assert.False(t, res.FallbackUsed)
	assert.Equal(t, []string{"tesseract"}, res.EnginesUsed)

	assert.Equal(t, "5261040567", res.Fields["tax_id"])
	assert.Equal(t, "2024-08-12", res.Fields["issue_date"])
	assert.Equal(t, "1 234,56", res.Fields["total_amount"])
	assert.Equal(t, "42/2024", res.Fields["invoice_number"])

	// 90 engine confidence + 2 per extracted field.
	assert.InDelta(t, 98.0, res.Confidence, 0.001)

	assert.Equal(t, []Stage{
		StageValidation,
		StagePreprocessing,
		StageRecognition,
		StageFieldExtraction,
		StageConfidenceScoring,
		StageResultValidation,
		StageCompilation,
	}, completedStages(res.Steps))
}

func TestRunConfidenceStaysInRange(t *testing.T) {
	adapter := &stubAdapter{name: "tesseract", fn: recognizing(sampleInvoiceText, 99)}
	o := testOrchestrator(t, nil, DefaultConfig(), nil, adapter)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	require.True(t, res.Success)
	assert.Equal(t, 100.0, res.Confidence)
}

func TestRunRejectsInvalidDocument(t *testing.T) {
	adapter := &stubAdapter{name: "tesseract", fn: recognizing("text", 90)}
	o := testOrchestrator(t, nil, DefaultConfig(), nil, adapter)

	res := o.Run(context.Background(), document.New(nil, document.MimePNG))

	require.False(t, res.Success)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, StageValidation, res.FailedStage)
	assert.Equal(t, 0, adapter.calls)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(res.Err))

	require.Len(t, res.Steps, 1)
	assert.Equal(t, StepFailed, res.Steps[0].Status)
	// Validation errors are never retried.
	assert.Equal(t, 0, res.Steps[0].RetryCount)
}

func TestRunRecognitionFailureKeepsStepHistory(t *testing.T) {
	adapter := &stubAdapter{name: "tesseract", fn: failing(errdefs.NewProcessingError("engine crashed"))}
	o := testOrchestrator(t, nil, DefaultConfig(), nil, adapter)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	require.False(t, res.Success)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, StageRecognition, res.FailedStage)
	assert.Equal(t, 2, adapter.calls)

	require.Len(t, res.Steps, 3)
	assert.Equal(t, StageValidation, res.Steps[0].Stage)
	assert.Equal(t, StepCompleted, res.Steps[0].Status)
	assert.Equal(t, StagePreprocessing, res.Steps[1].Stage)
	assert.Equal(t, StageRecognition, res.Steps[2].Stage)
	assert.Equal(t, StepFailed, res.Steps[2].Status)

	var stageErr *StageError
	require.ErrorAs(t, res.Err, &stageErr)
	assert.Equal(t, StageRecognition, stageErr.Stage)
	assert.Equal(t, 2, stageErr.Attempts)
}

func TestRunFallsBackToSecondaryAdapter(t *testing.T) {
	primary := &stubAdapter{name: "primary", fn: failing(errdefs.NewProcessingError("engine crashed"))}
	secondary := &stubAdapter{name: "secondary", fn: recognizing(sampleInvoiceText, 85)}
	o := testOrchestrator(t, nil, DefaultConfig(), nil, primary, secondary)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	require.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, []string{"secondary"}, res.EnginesUsed)
	assert.Greater(t, primary.calls, 0)
}

func TestRunPrefersAdaptersMeetingThePerformanceBar(t *testing.T) {
	quick := &stubAdapter{name: "quick", fn: recognizing(sampleInvoiceText, 85)}
	proven := &stubAdapter{name: "proven", fn: recognizing(sampleInvoiceText, 85)}
	registry := engine.NewRegistry()
	for _, a := range []engine.Adapter{quick, proven} {
		require.NoError(t, registry.Register(a))
		registry.MarkInitialized(a.Name())
	}
	// quick outranks proven on its perfect success rate, but its average
	// confidence sits below the bar.
	registry.RecordInvocation("quick", true, 40, time.Second)
	registry.RecordInvocation("proven", true, 60, time.Second)
	registry.RecordInvocation("proven", false, 0, time.Second)

	cfg := DefaultConfig()
	cfg.MinPerformance = engine.MinPerformance{AvgConfidence: 50}
	o := NewOrchestrator(registry, nil, testExecutor(), cfg)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	require.True(t, res.Success)
	assert.Equal(t, []string{"proven"}, res.EnginesUsed)
	assert.Equal(t, 0, quick.calls)
}

func TestRunPerformanceBarDoesNotExcludeAdapters(t *testing.T) {
	quick := &stubAdapter{name: "quick", fn: recognizing(sampleInvoiceText, 85)}
	proven := &stubAdapter{name: "proven", fn: failing(errdefs.NewProcessingError("engine crashed"))}
	registry := engine.NewRegistry()
	for _, a := range []engine.Adapter{quick, proven} {
		require.NoError(t, registry.Register(a))
		registry.MarkInitialized(a.Name())
	}
	registry.RecordInvocation("quick", true, 40, time.Second)
	registry.RecordInvocation("proven", true, 60, time.Second)

	cfg := DefaultConfig()
	cfg.MinPerformance = engine.MinPerformance{AvgConfidence: 50}
	o := NewOrchestrator(registry, nil, testExecutor(), cfg)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	// The bar only reorders the chain, adapters below it remain reachable.
	require.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, []string{"quick"}, res.EnginesUsed)
	assert.Greater(t, proven.calls, 0)
}

func TestRunFailsWhenNoAdapterSupportsFormat(t *testing.T) {
	adapter := &stubAdapter{name: "pdf-only", formats: []string{document.MimePDF}, fn: recognizing("text", 90)}
	o := testOrchestrator(t, nil, DefaultConfig(), nil, adapter)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	require.False(t, res.Success)
	assert.Equal(t, StageRecognition, res.FailedStage)
	assert.Equal(t, errdefs.KindDependency, errdefs.KindOf(res.Err))
	assert.Equal(t, 0, adapter.calls)
}

func TestRunPreprocessFailureFallsBackToRawInput(t *testing.T) {
	adapter := &stubAdapter{name: "tesseract", fn: recognizing(sampleInvoiceText, 90)}
	o := testOrchestrator(t, nil, DefaultConfig(), []OrchestratorOption{
		WithPreprocessor(failingPreprocessor{}),
	}, adapter)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	require.True(t, res.Success)
	assert.Equal(t, 1, adapter.calls)

	require.GreaterOrEqual(t, len(res.Steps), 2)
	assert.Equal(t, StagePreprocessing, res.Steps[1].Stage)
	assert.Equal(t, StepSkipped, res.Steps[1].Status)
	assert.NotEmpty(t, res.Steps[1].ErrorMessage)
}

func TestRunPreprocessFailureIsTerminalWithoutFallback(t *testing.T) {
	adapter := &stubAdapter{name: "tesseract", fn: recognizing(sampleInvoiceText, 90)}
	cfg := DefaultConfig()
	cfg.PreprocessFallback = false
	o := testOrchestrator(t, nil, cfg, []OrchestratorOption{
		WithPreprocessor(failingPreprocessor{}),
	}, adapter)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	require.False(t, res.Success)
	assert.Equal(t, StagePreprocessing, res.FailedStage)
	assert.Equal(t, 0, adapter.calls)
}

func TestRunServesSecondRequestFromCache(t *testing.T) {
	adapter := &stubAdapter{name: "tesseract", fn: recognizing(sampleInvoiceText, 90)}
	resultCache := cache.New(cache.DefaultConfig(), nil)
	o := testOrchestrator(t, resultCache, DefaultConfig(), nil, adapter)
	doc := pngDoc("scan bytes")

	first := o.Run(context.Background(), doc)
	require.True(t, first.Success)
	require.False(t, first.CacheHit)

	second := o.Run(context.Background(), doc)
	require.True(t, second.Success)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Fields, second.Fields)
	assert.Empty(t, second.Steps)
	assert.Equal(t, 1, adapter.calls)
}

func TestRunDoesNotCacheLowConfidenceOutcomes(t *testing.T) {
	adapter := &stubAdapter{name: "tesseract", fn: recognizing("barely legible", 10)}
	resultCache := cache.New(cache.DefaultConfig(), nil)
	o := testOrchestrator(t, resultCache, DefaultConfig(), nil, adapter)

	res := o.Run(context.Background(), pngDoc("scan bytes"))

	require.True(t, res.Success)
	assert.Equal(t, 0, resultCache.Len())
}

func TestRunSplitsMultiPageResults(t *testing.T) {
	adapter := &stubAdapter{name: "tesseract", fn: func(ctx context.Context, doc document.Document) (engine.Result, error) {
		return engine.Result{Text: string(doc.Data), Confidence: 80}, nil
	}}
	pages := []document.Document{pngDoc("page one FAKTURA 1/2024"), pngDoc("page two 99,00")}
	o := testOrchestrator(t, nil, DefaultConfig(), []OrchestratorOption{
		WithPreprocessor(staticPreprocessor(pages)),
	}, adapter)

	res := o.Run(context.Background(), pngDoc("whole document"))

	require.True(t, res.Success)
	assert.Equal(t, 2, adapter.calls)
	assert.Equal(t, "page one FAKTURA 1/2024\n\fpage two 99,00", res.Text)
}

type staticPreprocessor []document.Document

func (p staticPreprocessor) Preprocess(ctx context.Context, doc document.Document) ([]document.Document, error) {
	return p, nil
}
