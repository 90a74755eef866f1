package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/m3n3sx/faktulove-ocr/internal/engine"
	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
)

// FieldExtractor pulls structured invoice fields out of recognized text.
// The full language-specific heuristics live in the host application; the
// built-in extractor covers only the universal anchors.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (map[string]string, error)
}

// ConfidenceScorer computes the aggregate run confidence in [0,100] from
// the recognition output and the extracted fields.
type ConfidenceScorer interface {
	Score(ctx context.Context, res engine.Result, fields map[string]string) float64
}

// ResultValidator decides whether a compiled outcome is acceptable.
type ResultValidator interface {
	Validate(ctx context.Context, text string, fields map[string]string, confidence float64) error
}

var (
	nipPattern    = regexp.MustCompile(`\b\d{3}[- ]?\d{3}[- ]?\d{2}[- ]?\d{2}\b|\b\d{3}[- ]?\d{2}[- ]?\d{2}[- ]?\d{3}\b`)
	datePattern   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{2}[./]\d{2}[./]\d{4}\b`)
	amountPattern = regexp.MustCompile(`\b\d{1,3}(?:[ .]\d{3})*[,.]\d{2}\b`)
	numberPattern = regexp.MustCompile(`(?i)(?:faktura|invoice)[^\n]{0,20}?((?:[A-Z]{0,3}[ /-]?)?\d+[/-]\d+(?:[/-]\d+)?)`)
)

// DefaultExtractor recognizes common invoice anchors: tax identifier, issue
// date, amounts and invoice number.
type DefaultExtractor struct{}

func (DefaultExtractor) Extract(_ context.Context, text string) (map[string]string, error) {
	fields := make(map[string]string)
	if m := nipPattern.FindString(text); m != "" {
		fields["tax_id"] = strings.NewReplacer(" ", "", "-", "").Replace(m)
	}
	if m := datePattern.FindString(text); m != "" {
		fields["issue_date"] = m
	}
	if amounts := amountPattern.FindAllString(text, -1); len(amounts) > 0 {
		// the gross total closes the payment section, so it is the last
		// amount on the page
		fields["total_amount"] = amounts[len(amounts)-1]
	}
	if m := numberPattern.FindStringSubmatch(text); len(m) > 1 {
		fields["invoice_number"] = strings.TrimSpace(m[1])
	}
	return fields, nil
}

// DefaultScorer starts from the engine confidence and nudges it by field
// coverage, clamped to [0,100].
type DefaultScorer struct{}

func (DefaultScorer) Score(_ context.Context, res engine.Result, fields map[string]string) float64 {
	score := res.Confidence
	score += 2 * float64(len(fields))
	if len(fields) == 0 && res.Text == "" {
		score = 0
	}
	return clampConfidence(score)
}

// DefaultValidator rejects outcomes with no usable content or an
// out-of-range confidence.
type DefaultValidator struct{}

func (DefaultValidator) Validate(_ context.Context, text string, fields map[string]string, confidence float64) error {
	if strings.TrimSpace(text) == "" && len(fields) == 0 {
		return errdefs.NewProcessingError("recognition produced no usable content")
	}
	if confidence < 0 || confidence > 100 {
		return errdefs.NewProcessingError("confidence %f out of range", confidence)
	}
	return nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
