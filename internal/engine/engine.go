// Package engine defines the uniform contract wrapping one recognition
// backend and the registry that ranks and selects between backends. The
// interfaces are intentionally small so engines can be backed by native
// libraries, local binaries or remote services without leaking provider
// concerns into the pipeline.
package engine

import (
	"context"
	"time"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
)

// WordConfidence pairs one recognized token with its confidence in [0,100].
type WordConfidence struct {
	Word       string
	Confidence float64
}

// BoundingBox locates a recognized token in pixel coordinates, origin in the
// upper-left corner.
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
	Text   string
}

// Result is the output of a single adapter invocation. It is never mutated
// after creation.
type Result struct {
	Text            string
	Confidence      float64
	WordConfidences []WordConfidence
	BoundingBoxes   []BoundingBox
	ProcessingTime  time.Duration
	EngineName      string
}

// DegradationLevel indicates a reduced-capability re-attempt requested by the
// resilience layer after full-quality attempts are exhausted.
type DegradationLevel int

const (
	DegradationNone DegradationLevel = iota
	DegradationReducedQuality
	DegradationReducedFeatures
	DegradationMinimal
)

func (l DegradationLevel) String() string {
	switch l {
	case DegradationNone:
		return "none"
	case DegradationReducedQuality:
		return "reduced_quality"
	case DegradationReducedFeatures:
		return "reduced_features"
	case DegradationMinimal:
		return "minimal"
	}
	return "unknown"
}

// Adapter is the uniform recognition-backend contract. Process must be safe
// to call after a successful Initialize, must fail fast on unsupported input
// and must not retain the document after returning. The core treats
// adapters as untrusted with respect to latency and crashes.
type Adapter interface {
	Name() string
	Initialize(ctx context.Context) error
	Process(ctx context.Context, doc document.Document) (Result, error)
	SupportsFormat(mimeType string) bool
}

// DegradableAdapter is implemented by adapters that can trade quality for
// latency when asked to degrade. Adapters without this capability are
// re-invoked at full quality during degradation attempts.
type DegradableAdapter interface {
	Adapter
	ProcessDegraded(ctx context.Context, doc document.Document, level DegradationLevel) (Result, error)
}
