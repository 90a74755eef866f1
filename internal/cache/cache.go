// Package cache implements the two-tier recognition result cache: an exact
// content-hash tier backed by an in-memory map and a similarity tier that
// buckets documents by coarse derived features. Entries are persisted
// through the store so the cache survives restarts; persistence failures
// are logged and treated as misses, never surfaced to the pipeline.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/store"
	"github.com/m3n3sx/faktulove-ocr/internal/store/model"
	"github.com/m3n3sx/faktulove-ocr/pkg/metrics"
)

// Payload is the cached recognition outcome handed back on a hit.
type Payload struct {
	Text       string            `json:"text"`
	Fields     map[string]string `json:"fields,omitempty"`
	Confidence float64           `json:"confidence"`
	EngineUsed string            `json:"engineUsed,omitempty"`
}

// Hit describes a successful lookup.
type Hit struct {
	Payload    Payload
	Exact      bool
	Similarity float64
}

type entry struct {
	contentHash    string
	similarityHash string
	payload        Payload
	features       FeatureVector
	confidence     float64
	sizeBytes      int64
	createdAt      time.Time
	lastAccessedAt time.Time
	accessCount    int64
}

type Config struct {
	MaxEntries          int
	Retention           time.Duration
	SimilarityEnabled   bool
	SimilarityThreshold float64
}

func DefaultConfig() Config {
	return Config{
		MaxEntries:          10000,
		Retention:           30 * 24 * time.Hour,
		SimilarityEnabled:   true,
		SimilarityThreshold: 0.85,
	}
}

// Cache is safe for concurrent use. The lock is held only for map and index
// mutation, never across a store call that follows a lookup decision, and
// never across an engine call.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	buckets map[string]map[string]*entry

	cfg     Config
	backend store.CacheEntry
	log     *zap.SugaredLogger

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a cache. backend may be nil for a memory-only cache.
func New(cfg Config, backend store.CacheEntry) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	return &Cache{
		entries: make(map[string]*entry),
		buckets: make(map[string]map[string]*entry),
		cfg:     cfg,
		backend: backend,
		log:     zap.S().Named("cache"),
	}
}

// Load warms the in-memory tier from the persisted entries.
func (c *Cache) Load(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	persisted, err := c.backend.List(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range persisted {
		e, err := fromModel(m)
		if err != nil {
			c.log.Warnw("skipping corrupt cache entry", "contentHash", m.ContentHash, "error", err)
			continue
		}
		c.insertLocked(e)
	}
	c.log.Infof("loaded %d cache entries", len(c.entries))
	return nil
}

// Get looks the document up: exact content-hash match first, then the
// similarity tier when enabled. A nil return means miss.
func (c *Cache) Get(ctx context.Context, doc document.Document) *Hit {
	hash := doc.ContentHash()

	c.mu.RLock()
	e, ok := c.entries[hash]
	c.mu.RUnlock()
	if ok {
		c.touch(ctx, e)
		c.hits.Add(1)
		metrics.IncreaseCacheLookupsTotalMetric("exact_hit")
		return &Hit{Payload: e.payload, Exact: true, Similarity: 1}
	}

	if !c.cfg.SimilarityEnabled {
		c.misses.Add(1)
		metrics.IncreaseCacheLookupsTotalMetric("miss")
		return nil
	}

	fv := ComputeFeatures(doc)
	bucketKey := fv.SimilarityHash(doc)

	c.mu.RLock()
	bucket := c.buckets[bucketKey]
	candidates := make([]*entry, 0, len(bucket))
	for _, cand := range bucket {
		candidates = append(candidates, cand)
	}
	c.mu.RUnlock()

	var best *entry
	bestScore := 0.0
	for _, cand := range candidates {
		if score := Similarity(fv, cand.features); score > bestScore {
			best, bestScore = cand, score
		}
	}
	if best != nil && bestScore >= c.cfg.SimilarityThreshold {
		c.touch(ctx, best)
		c.hits.Add(1)
		metrics.IncreaseCacheLookupsTotalMetric("similarity_hit")
		return &Hit{Payload: best.payload, Exact: false, Similarity: bestScore}
	}

	c.misses.Add(1)
	metrics.IncreaseCacheLookupsTotalMetric("miss")
	return nil
}

// Put inserts or overwrites the entry for the document's content hash and
// indexes it in its similarity bucket. When the cache is full the
// least-recently-used quarter is evicted first.
func (c *Cache) Put(ctx context.Context, doc document.Document, payload Payload) {
	fv := ComputeFeatures(doc)
	now := time.Now()
	e := &entry{
		contentHash:    doc.ContentHash(),
		similarityHash: fv.SimilarityHash(doc),
		payload:        payload,
		features:       fv,
		confidence:     payload.Confidence,
		sizeBytes:      int64(doc.Size()),
		createdAt:      now,
		lastAccessedAt: now,
	}

	var evicted []string
	c.mu.Lock()
	if _, exists := c.entries[e.contentHash]; !exists && len(c.entries) >= c.cfg.MaxEntries {
		evicted = c.evictLRULocked()
	}
	c.insertLocked(e)
	c.mu.Unlock()

	metrics.SetCacheEntriesMetric(c.Len())

	if c.backend == nil {
		return
	}
	if len(evicted) > 0 {
		if err := c.backend.Delete(ctx, evicted); err != nil {
			c.log.Warnw("failed to delete evicted entries", "count", len(evicted), "error", err)
		}
	}
	m, err := toModel(e)
	if err == nil {
		_, err = c.backend.Upsert(ctx, m)
	}
	if err != nil {
		c.log.Warnw("failed to persist cache entry", "contentHash", e.contentHash, "error", err)
	}
}

// Sweep removes entries not accessed within the retention window. Removal
// is atomic with respect to concurrent lookups.
func (c *Cache) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-c.cfg.Retention)

	c.mu.Lock()
	var expired []string
	for hash, e := range c.entries {
		if e.lastAccessedAt.Before(cutoff) {
			expired = append(expired, hash)
		}
	}
	for _, hash := range expired {
		c.removeLocked(hash)
	}
	c.mu.Unlock()

	if c.backend != nil {
		if n, err := c.backend.DeleteIdleSince(ctx, cutoff); err != nil {
			c.log.Warnw("retention sweep failed on store", "error", err)
		} else if n > 0 {
			c.log.Infof("retention sweep removed %d persisted entries", n)
		}
	}
	metrics.SetCacheEntriesMetric(c.Len())
	return len(expired)
}

// EvictLRU force-evicts the least-recently-used quarter. Used by the
// resource monitor under memory pressure.
func (c *Cache) EvictLRU(ctx context.Context) int {
	c.mu.Lock()
	evicted := c.evictLRULocked()
	c.mu.Unlock()

	if c.backend != nil && len(evicted) > 0 {
		if err := c.backend.Delete(ctx, evicted); err != nil {
			c.log.Warnw("failed to delete evicted entries", "count", len(evicted), "error", err)
		}
	}
	metrics.SetCacheEntriesMetric(c.Len())
	return len(evicted)
}

// Stats reports the operator aggregate. The entry counts come from the
// store when one is attached, the hit rate from process counters.
func (c *Cache) Stats(ctx context.Context) Stats {
	stats := Stats{HitRate: c.hitRate()}
	if c.backend != nil {
		if m, err := c.backend.Stats(ctx); err == nil {
			stats.TotalEntries = m.TotalEntries
			stats.TotalSizeBytes = m.TotalSizeBytes
			stats.AvgConfidence = m.AvgConfidence
			return stats
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var size int64
	var confSum float64
	for _, e := range c.entries {
		size += e.sizeBytes
		confSum += e.confidence
	}
	stats.TotalEntries = int64(len(c.entries))
	stats.TotalSizeBytes = size
	if len(c.entries) > 0 {
		stats.AvgConfidence = confSum / float64(len(c.entries))
	}
	return stats
}

type Stats struct {
	TotalEntries   int64
	TotalSizeBytes int64
	HitRate        float64
	AvgConfidence  float64
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) hitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func (c *Cache) touch(ctx context.Context, e *entry) {
	now := time.Now()
	c.mu.Lock()
	e.lastAccessedAt = now
	e.accessCount++
	count := e.accessCount
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.Touch(ctx, e.contentHash, now, count); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			c.log.Debugw("failed to touch persisted entry", "contentHash", e.contentHash, "error", err)
		}
	}
}

func (c *Cache) insertLocked(e *entry) {
	if old, ok := c.entries[e.contentHash]; ok {
		c.removeFromBucketLocked(old)
	}
	c.entries[e.contentHash] = e
	bucket, ok := c.buckets[e.similarityHash]
	if !ok {
		bucket = make(map[string]*entry)
		c.buckets[e.similarityHash] = bucket
	}
	bucket[e.contentHash] = e
}

func (c *Cache) removeLocked(contentHash string) {
	e, ok := c.entries[contentHash]
	if !ok {
		return
	}
	delete(c.entries, contentHash)
	c.removeFromBucketLocked(e)
}

func (c *Cache) removeFromBucketLocked(e *entry) {
	if bucket, ok := c.buckets[e.similarityHash]; ok {
		delete(bucket, e.contentHash)
		if len(bucket) == 0 {
			delete(c.buckets, e.similarityHash)
		}
	}
}

// evictLRULocked drops the least-recently-used 25% of the configured
// capacity and returns their hashes for store cleanup.
func (c *Cache) evictLRULocked() []string {
	target := c.cfg.MaxEntries / 4
	if target < 1 {
		target = 1
	}
	if target > len(c.entries) {
		target = len(c.entries)
	}

	byAge := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		byAge = append(byAge, e)
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].lastAccessedAt.Before(byAge[j].lastAccessedAt)
	})

	evicted := make([]string, 0, target)
	for _, e := range byAge[:target] {
		c.removeLocked(e.contentHash)
		evicted = append(evicted, e.contentHash)
	}
	c.log.Debugf("evicted %d least-recently-used entries", len(evicted))
	return evicted
}

func toModel(e *entry) (model.CacheEntry, error) {
	payload, err := json.Marshal(e.payload)
	if err != nil {
		return model.CacheEntry{}, err
	}
	features, err := json.Marshal(e.features)
	if err != nil {
		return model.CacheEntry{}, err
	}
	return model.CacheEntry{
		ContentHash:    e.contentHash,
		SimilarityHash: e.similarityHash,
		Result:         payload,
		Features:       features,
		Confidence:     e.confidence,
		SizeBytes:      e.sizeBytes,
		AccessCount:    e.accessCount,
		CreatedAt:      e.createdAt,
		LastAccessedAt: e.lastAccessedAt,
	}, nil
}

func fromModel(m model.CacheEntry) (*entry, error) {
	var payload Payload
	if err := json.Unmarshal(m.Result, &payload); err != nil {
		return nil, err
	}
	var features FeatureVector
	if err := json.Unmarshal(m.Features, &features); err != nil {
		return nil, err
	}
	return &entry{
		contentHash:    m.ContentHash,
		similarityHash: m.SimilarityHash,
		payload:        payload,
		features:       features,
		confidence:     m.Confidence,
		sizeBytes:      m.SizeBytes,
		accessCount:    m.AccessCount,
		createdAt:      m.CreatedAt,
		lastAccessedAt: m.LastAccessedAt,
	}, nil
}
