package cache

import (
	"bytes"
	"fmt"
	"image"
	"sort"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
)

// FeatureVector is the ephemeral per-document descriptor used for fuzzy
// cache lookup. It is derived from the raw bytes only, never from
// recognition output, so it can be computed on both sides of a lookup.
type FeatureVector struct {
	TextLength    int      `json:"textLength"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	AspectRatio   float64  `json:"aspectRatio"`
	PatternTags   []string `json:"patternTags"`
	VisualDensity float64  `json:"visualDensity"`
}

const featureSampleLimit = 256 << 10

// ComputeFeatures derives the similarity descriptor for a document. Image
// dimensions come from the encoded header; textual and visual descriptors
// from a bounded prefix of the payload.
func ComputeFeatures(doc document.Document) FeatureVector {
	fv := FeatureVector{
		TextLength:  printableCount(doc.Data),
		PatternTags: patternTags(doc),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(doc.Data)); err == nil && cfg.Height > 0 {
		fv.Width = cfg.Width
		fv.Height = cfg.Height
		fv.AspectRatio = float64(cfg.Width) / float64(cfg.Height)
	}
	fv.VisualDensity = byteDensity(doc.Data)
	return fv
}

// SimilarityHash is the coarse bucket key: MIME, size bucket, aspect-ratio
// bucket and sorted pattern tags. Documents must share the bucket to be
// compared at all.
func (fv FeatureVector) SimilarityHash(doc document.Document) string {
	tags := append([]string(nil), fv.PatternTags...)
	sort.Strings(tags)
	return fmt.Sprintf("%s|s%d|a%d|%s",
		doc.MimeType,
		sizeBucket(doc.Size()),
		aspectBucket(fv.AspectRatio),
		strings.Join(tags, ","),
	)
}

// Similarity is the weighted closeness of two feature vectors in [0,1]:
// text length 20%, layout 30%, pattern-tag Jaccard 30%, visual 20%. A term
// contributes 0 when either side lacks the feature.
func Similarity(a, b FeatureVector) float64 {
	var score float64
	if a.TextLength > 0 && b.TextLength > 0 {
		score += 0.2 * ratioCloseness(float64(a.TextLength), float64(b.TextLength))
	}
	if a.AspectRatio > 0 && b.AspectRatio > 0 {
		layout := 0.5 * ratioCloseness(a.AspectRatio, b.AspectRatio)
		if a.Width > 0 && b.Width > 0 {
			layout += 0.5 * ratioCloseness(float64(a.Width), float64(b.Width))
		}
		score += 0.3 * layout
	}
	if len(a.PatternTags) > 0 && len(b.PatternTags) > 0 {
		score += 0.3 * jaccard(a.PatternTags, b.PatternTags)
	}
	if a.VisualDensity > 0 && b.VisualDensity > 0 {
		score += 0.2 * (1 - abs(a.VisualDensity-b.VisualDensity))
	}
	return score
}

func printableCount(data []byte) int {
	n := len(data)
	if n > featureSampleLimit {
		n = featureSampleLimit
	}
	count := 0
	for _, b := range data[:n] {
		if b >= 0x20 && b < 0x7f {
			count++
		}
	}
	return count
}

func patternTags(doc document.Document) []string {
	tags := []string{}
	switch doc.MimeType {
	case document.MimePDF:
		tags = append(tags, "pdf")
	default:
		tags = append(tags, "image")
	}
	n := len(doc.Data)
	if n > featureSampleLimit {
		n = featureSampleLimit
	}
	sample := doc.Data[:n]
	if doc.MimeType == document.MimePDF && bytes.Contains(sample, []byte("/Font")) {
		tags = append(tags, "text-layer")
	}
	digits := 0
	for _, b := range sample {
		if b >= '0' && b <= '9' {
			digits++
		}
	}
	if n > 0 && float64(digits)/float64(n) > 0.05 {
		tags = append(tags, "numeric")
	}
	return tags
}

func byteDensity(data []byte) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	if n > featureSampleLimit {
		n = featureSampleLimit
	}
	nonZero := 0
	for _, b := range data[:n] {
		if b != 0 {
			nonZero++
		}
	}
	return float64(nonZero) / float64(n)
}

func sizeBucket(size int) int {
	bucket := 0
	for size > 4096 {
		size >>= 2
		bucket++
	}
	return bucket
}

func aspectBucket(ratio float64) int {
	if ratio <= 0 {
		return -1
	}
	return int(ratio * 4)
}

func ratioCloseness(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > b {
		a, b = b, a
	}
	return a / b
}

func jaccard(a, b []string) float64 {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	union := len(set)
	for _, t := range b {
		if _, ok := set[t]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
