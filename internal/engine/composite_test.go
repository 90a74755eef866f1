package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
)

func TestRunCompositePicksHighestConfidence(t *testing.T) {
	confident := &fakeAdapter{name: "confident", process: func(ctx context.Context, doc document.Document) (Result, error) {
		return Result{Text: "FAKTURA VAT", Confidence: 93}, nil
	}}
	hesitant := &fakeAdapter{name: "hesitant", process: func(ctx context.Context, doc document.Document) (Result, error) {
		return Result{Text: "F4KTURA V47", Confidence: 51}, nil
	}}
	r := newTestRegistry(t, hesitant, confident)

	doc := document.New([]byte("scan"), document.MimePNG)
	for _, mode := range []CompositeMode{CompositeSequential, CompositeConcurrent} {
		res, err := r.RunComposite(context.Background(), doc, []Adapter{hesitant, confident}, mode)
		require.NoError(t, err)
		assert.Equal(t, "FAKTURA VAT", res.Text)
		assert.Equal(t, "confident", res.EngineName)
	}
}

func TestRunCompositeToleratesPartialFailures(t *testing.T) {
	var calls atomic.Int64
	flaky := &fakeAdapter{name: "flaky", process: func(ctx context.Context, doc document.Document) (Result, error) {
		calls.Add(1)
		return Result{}, errdefs.NewProcessingError("segfault in native layer")
	}}
	working := &fakeAdapter{name: "working"}
	r := newTestRegistry(t, flaky, working)

	doc := document.New([]byte("scan"), document.MimePNG)
	res, err := r.RunComposite(context.Background(), doc, []Adapter{flaky, working}, CompositeSequential)
	require.NoError(t, err)
	assert.Equal(t, "working", res.EngineName)
	assert.Equal(t, int64(1), calls.Load())

	// The failure must be visible in the flaky adapter's aggregate.
	snap := r.Metrics("flaky").Snapshot()
	assert.Equal(t, int64(1), snap.UsageCount)
	assert.Equal(t, int64(0), snap.SuccessCount)
}

func TestRunCompositeFailsWhenAllAdaptersFail(t *testing.T) {
	broken := &fakeAdapter{name: "broken", process: func(ctx context.Context, doc document.Document) (Result, error) {
		return Result{}, errdefs.NewProcessingError("blank page")
	}}
	r := newTestRegistry(t, broken)

	doc := document.New([]byte("scan"), document.MimePNG)
	_, err := r.RunComposite(context.Background(), doc, []Adapter{broken}, CompositeConcurrent)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindProcessing, errdefs.KindOf(err))
}

func TestRunCompositeRequiresAdapters(t *testing.T) {
	r := NewRegistry()
	_, err := r.RunComposite(context.Background(), document.New([]byte("scan"), document.MimePNG), nil, CompositeSequential)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindConfiguration, errdefs.KindOf(err))
}
