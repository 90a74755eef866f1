package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
)

func TestSimilarityOfIdenticalVectorsIsOne(t *testing.T) {
	fv := FeatureVector{
		TextLength:    1200,
		Width:         2480,
		Height:        3508,
		AspectRatio:   2480.0 / 3508.0,
		PatternTags:   []string{"image", "numeric"},
		VisualDensity: 0.82,
	}
	assert.InDelta(t, 1.0, Similarity(fv, fv), 0.0001)
}

func TestSimilaritySkipsMissingFeatures(t *testing.T) {
	a := FeatureVector{TextLength: 100, PatternTags: []string{"image"}}
	b := FeatureVector{TextLength: 100, PatternTags: []string{"image"}}
	// Only the text (0.2) and tag (0.3) terms can contribute here.
	assert.InDelta(t, 0.5, Similarity(a, b), 0.0001)
}

func TestSimilarityTagOverlap(t *testing.T) {
	a := FeatureVector{PatternTags: []string{"pdf", "numeric"}}
	b := FeatureVector{PatternTags: []string{"pdf", "text-layer"}}
	// Jaccard 1/3 weighted at 0.3.
	assert.InDelta(t, 0.1, Similarity(a, b), 0.0001)
}

func TestSimilarityHashIsStableAcrossTagOrder(t *testing.T) {
	doc := document.New([]byte("FAKTURA"), document.MimePDF)
	a := FeatureVector{PatternTags: []string{"pdf", "numeric"}}
	b := FeatureVector{PatternTags: []string{"numeric", "pdf"}}
	assert.Equal(t, a.SimilarityHash(doc), b.SimilarityHash(doc))
}

func TestComputeFeaturesTagsPDFWithTextLayer(t *testing.T) {
	data := []byte("%PDF-1.7 /Font <</F1>> faktura 0042 1230.00")
	fv := ComputeFeatures(document.New(data, document.MimePDF))
	assert.Contains(t, fv.PatternTags, "pdf")
	assert.Contains(t, fv.PatternTags, "text-layer")
	assert.Contains(t, fv.PatternTags, "numeric")
	assert.Zero(t, fv.Width)
	assert.Greater(t, fv.VisualDensity, 0.0)
}

func TestSizeBucketGrowsWithSize(t *testing.T) {
	assert.Equal(t, 0, sizeBucket(1024))
	assert.Equal(t, 0, sizeBucket(4096))
	assert.Equal(t, 1, sizeBucket(8192))
	assert.Less(t, sizeBucket(1<<20), sizeBucket(1<<24))
}
