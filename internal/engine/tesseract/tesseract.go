// Package tesseract provides the reference recognition adapter backed by the
// gosseract client. Hosts with other backends plug in their own adapters;
// the core only depends on the engine contract.
package tesseract

import (
	"context"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/engine"
	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
)

type Adapter struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

var _ engine.DegradableAdapter = (*Adapter)(nil)

// New constructs a Tesseract-backed adapter. Languages are trained-data hints
// such as "pol" or "eng".
func New(languages ...string) *Adapter {
	return &Adapter{
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}
}

func (a *Adapter) Name() string { return "tesseract" }

// Initialize verifies that the native library and trained data are usable by
// round-tripping a client.
func (a *Adapter) Initialize(ctx context.Context) error {
	c := a.clientFactory()
	defer c.Close()
	if len(a.languages) > 0 {
		if err := c.SetLanguage(a.languages...); err != nil {
			return errdefs.NewDependencyError("tesseract language data unavailable: %v", err)
		}
	}
	return nil
}

func (a *Adapter) SupportsFormat(mimeType string) bool {
	switch mimeType {
	case document.MimePNG, document.MimeJPEG, document.MimeTIFF:
		return true
	}
	return false
}

func (a *Adapter) Process(ctx context.Context, doc document.Document) (engine.Result, error) {
	return a.process(ctx, doc, engine.DegradationNone)
}

// ProcessDegraded lowers the page-segmentation effort per level: single
// uniform block at reduced quality, sparse text at reduced features, single
// line at minimal.
func (a *Adapter) ProcessDegraded(ctx context.Context, doc document.Document, level engine.DegradationLevel) (engine.Result, error) {
	return a.process(ctx, doc, level)
}

func (a *Adapter) process(ctx context.Context, doc document.Document, level engine.DegradationLevel) (engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return engine.Result{}, errdefs.NewTimeoutError("tesseract not started: %v", err)
	}
	if !a.SupportsFormat(doc.MimeType) {
		return engine.Result{}, errdefs.NewValidationError("tesseract does not support %s", doc.MimeType)
	}
	if len(doc.Data) == 0 {
		return engine.Result{}, errdefs.NewValidationError("empty payload")
	}

	start := time.Now()
	c := a.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(doc.Data); err != nil {
		return engine.Result{}, errdefs.NewProcessingError("set image: %v", err)
	}
	if len(a.languages) > 0 {
		if err := c.SetLanguage(a.languages...); err != nil {
			return engine.Result{}, errdefs.NewDependencyError("set languages: %v", err)
		}
	}
	if psm, ok := degradedPSM(level); ok {
		if err := c.SetPageSegMode(psm); err != nil {
			return engine.Result{}, errdefs.NewProcessingError("set page segmentation mode: %v", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return engine.Result{}, errdefs.NewProcessingError("recognize text: %v", err)
	}

	words, boxes, avgConf := extractWords(c)
	return engine.Result{
		Text:            strings.TrimSpace(text),
		Confidence:      avgConf,
		WordConfidences: words,
		BoundingBoxes:   boxes,
		ProcessingTime:  time.Since(start),
		EngineName:      a.Name(),
	}, nil
}

func degradedPSM(level engine.DegradationLevel) (gosseract.PageSegMode, bool) {
	switch level {
	case engine.DegradationReducedQuality:
		return gosseract.PSM_SINGLE_BLOCK, true
	case engine.DegradationReducedFeatures:
		return gosseract.PSM_SPARSE_TEXT, true
	case engine.DegradationMinimal:
		return gosseract.PSM_SINGLE_LINE, true
	}
	return 0, false
}

func extractWords(c *gosseract.Client) ([]engine.WordConfidence, []engine.BoundingBox, float64) {
	rects, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(rects) == 0 {
		return nil, nil, 0
	}
	words := make([]engine.WordConfidence, 0, len(rects))
	boxes := make([]engine.BoundingBox, 0, len(rects))
	var sum float64
	for _, b := range rects {
		sum += b.Confidence
		words = append(words, engine.WordConfidence{Word: b.Word, Confidence: b.Confidence})
		boxes = append(boxes, engine.BoundingBox{
			X:      float64(b.Box.Min.X),
			Y:      float64(b.Box.Min.Y),
			Width:  float64(b.Box.Dx()),
			Height: float64(b.Box.Dy()),
			Text:   b.Word,
		})
	}
	return words, boxes, sum / float64(len(rects))
}
