package model

import (
	"encoding/json"
	"time"
)

// CacheEntry is the persisted form of one cached recognition outcome.
// ContentHash is the cryptographic digest of the exact document bytes and is
// unique; SimilarityHash is a coarse bucket shared by many entries.
type CacheEntry struct {
	ContentHash    string `gorm:"primaryKey;type:VARCHAR;size:64"`
	SimilarityHash string `gorm:"index:idx_cache_entries_similarity_hash;type:VARCHAR;size:128"`
	Result         []byte `gorm:"type:jsonb"`
	Features       []byte `gorm:"type:jsonb"`
	Confidence     float64
	SizeBytes      int64
	AccessCount    int64
	CreatedAt      time.Time
	LastAccessedAt time.Time `gorm:"index"`
}

type CacheEntryList []CacheEntry

func (e CacheEntry) String() string {
	val, _ := json.Marshal(e)
	return string(val)
}

// CacheStats is the aggregate reported to operators.
type CacheStats struct {
	TotalEntries   int64
	TotalSizeBytes int64
	AvgConfidence  float64
}
