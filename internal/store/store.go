package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/m3n3sx/faktulove-ocr/internal/store/model"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	CacheEntry() CacheEntry
	InitialMigration() error
	Statistics(ctx context.Context) (model.CacheStats, error)
	Close() error
}

type DataStore struct {
	cacheEntry CacheEntry
	db         *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		cacheEntry: NewCacheEntryStore(db),
		db:         db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) CacheEntry() CacheEntry {
	return s.cacheEntry
}

func (s *DataStore) InitialMigration() error {
	return s.cacheEntry.InitialMigration()
}

func (s *DataStore) Statistics(ctx context.Context) (model.CacheStats, error) {
	return s.cacheEntry.Stats(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
