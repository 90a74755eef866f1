package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/m3n3sx/faktulove-ocr/internal/store/model"
)

type CacheEntry interface {
	Get(ctx context.Context, contentHash string) (*model.CacheEntry, error)
	ListByBucket(ctx context.Context, similarityHash string) (model.CacheEntryList, error)
	List(ctx context.Context) (model.CacheEntryList, error)
	Upsert(ctx context.Context, entry model.CacheEntry) (*model.CacheEntry, error)
	Touch(ctx context.Context, contentHash string, accessedAt time.Time, accessCount int64) error
	Delete(ctx context.Context, contentHashes []string) error
	DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAll(ctx context.Context) error
	Stats(ctx context.Context) (model.CacheStats, error)
	InitialMigration() error
}

type CacheEntryStore struct {
	db *gorm.DB
}

var _ CacheEntry = (*CacheEntryStore)(nil)

func NewCacheEntryStore(db *gorm.DB) CacheEntry {
	return &CacheEntryStore{db: db}
}

func (s *CacheEntryStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.CacheEntry{})
}

func (s *CacheEntryStore) getDB(ctx context.Context) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

func (s *CacheEntryStore) Get(ctx context.Context, contentHash string) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	result := s.getDB(ctx).Where("content_hash = ?", contentHash).First(&entry)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &entry, nil
}

func (s *CacheEntryStore) ListByBucket(ctx context.Context, similarityHash string) (model.CacheEntryList, error) {
	var entries model.CacheEntryList
	result := s.getDB(ctx).Where("similarity_hash = ?", similarityHash).Order("content_hash").Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

func (s *CacheEntryStore) List(ctx context.Context) (model.CacheEntryList, error) {
	var entries model.CacheEntryList
	result := s.getDB(ctx).Order("last_accessed_at DESC").Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

func (s *CacheEntryStore) Upsert(ctx context.Context, entry model.CacheEntry) (*model.CacheEntry, error) {
	result := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "content_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"similarity_hash", "result", "features", "confidence",
			"size_bytes", "access_count", "last_accessed_at",
		}),
	}).Create(&entry)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &entry, nil
}

func (s *CacheEntryStore) Touch(ctx context.Context, contentHash string, accessedAt time.Time, accessCount int64) error {
	result := s.getDB(ctx).Model(&model.CacheEntry{}).
		Where("content_hash = ?", contentHash).
		Updates(map[string]any{
			"last_accessed_at": accessedAt,
			"access_count":     accessCount,
		})
	return result.Error
}

func (s *CacheEntryStore) Delete(ctx context.Context, contentHashes []string) error {
	if len(contentHashes) == 0 {
		return nil
	}
	result := s.getDB(ctx).Where("content_hash IN ?", contentHashes).Delete(&model.CacheEntry{})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

// DeleteIdleSince range-deletes entries whose last access predates cutoff
// and reports how many were removed.
func (s *CacheEntryStore) DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.getDB(ctx).Where("last_accessed_at < ?", cutoff).Delete(&model.CacheEntry{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *CacheEntryStore) DeleteAll(ctx context.Context) error {
	result := s.getDB(ctx).Unscoped().Exec("DELETE FROM cache_entries")
	return result.Error
}

func (s *CacheEntryStore) Stats(ctx context.Context) (model.CacheStats, error) {
	var stats model.CacheStats
	row := s.getDB(ctx).Model(&model.CacheEntry{}).
		Select("COUNT(*) as total_entries, COALESCE(SUM(size_bytes),0) as total_size_bytes, COALESCE(AVG(confidence),0) as avg_confidence").
		Row()
	if err := row.Scan(&stats.TotalEntries, &stats.TotalSizeBytes, &stats.AvgConfidence); err != nil {
		return model.CacheStats{}, err
	}
	return stats, nil
}
