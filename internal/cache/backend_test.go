package cache

import (
	"context"
	"time"

	"github.com/m3n3sx/faktulove-ocr/internal/store"
	"github.com/m3n3sx/faktulove-ocr/internal/store/model"
)

// fakeBackend is an in-memory store.CacheEntry used to observe persistence
// traffic without a database.
type fakeBackend struct {
	entries map[string]model.CacheEntry
}

var _ store.CacheEntry = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{entries: make(map[string]model.CacheEntry)}
}

func (f *fakeBackend) Get(ctx context.Context, contentHash string) (*model.CacheEntry, error) {
	if e, ok := f.entries[contentHash]; ok {
		return &e, nil
	}
	return nil, store.ErrRecordNotFound
}

func (f *fakeBackend) ListByBucket(ctx context.Context, similarityHash string) (model.CacheEntryList, error) {
	var out model.CacheEntryList
	for _, e := range f.entries {
		if e.SimilarityHash == similarityHash {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) List(ctx context.Context) (model.CacheEntryList, error) {
	out := make(model.CacheEntryList, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeBackend) Upsert(ctx context.Context, entry model.CacheEntry) (*model.CacheEntry, error) {
	f.entries[entry.ContentHash] = entry
	return &entry, nil
}

func (f *fakeBackend) Touch(ctx context.Context, contentHash string, accessedAt time.Time, accessCount int64) error {
	e, ok := f.entries[contentHash]
	if !ok {
		return store.ErrRecordNotFound
	}
	e.LastAccessedAt = accessedAt
	e.AccessCount = accessCount
	f.entries[contentHash] = e
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, contentHashes []string) error {
	for _, hash := range contentHashes {
		delete(f.entries, hash)
	}
	return nil
}

func (f *fakeBackend) DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for hash, e := range f.entries {
		if e.LastAccessedAt.Before(cutoff) {
			delete(f.entries, hash)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeBackend) DeleteAll(ctx context.Context) error {
	f.entries = make(map[string]model.CacheEntry)
	return nil
}

func (f *fakeBackend) Stats(ctx context.Context) (model.CacheStats, error) {
	stats := model.CacheStats{TotalEntries: int64(len(f.entries))}
	for _, e := range f.entries {
		stats.TotalSizeBytes += e.SizeBytes
		stats.AvgConfidence += e.Confidence
	}
	if stats.TotalEntries > 0 {
		stats.AvgConfidence /= float64(stats.TotalEntries)
	}
	return stats, nil
}

func (f *fakeBackend) InitialMigration() error { return nil }
