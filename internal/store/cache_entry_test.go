package store_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/m3n3sx/faktulove-ocr/internal/config"
	st "github.com/m3n3sx/faktulove-ocr/internal/store"
	"github.com/m3n3sx/faktulove-ocr/internal/store/model"
)

func contentHash(n int) string {
	return fmt.Sprintf("%064d", n)
}

func testEntry(n int, bucket string, confidence float64, accessedAt time.Time) model.CacheEntry {
	return model.CacheEntry{
		ContentHash:    contentHash(n),
		SimilarityHash: bucket,
		Result:         []byte(`{"text":"FAKTURA VAT","confidence":` + fmt.Sprintf("%g", confidence) + `}`),
		Features:       []byte(`{"textLength":100}`),
		Confidence:     confidence,
		SizeBytes:      2048,
		CreatedAt:      accessedAt,
		LastAccessedAt: accessedAt,
	}
}

var _ = Describe("cache entry store", Ordered, func() {
	var (
		s      st.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		cfg, err := config.New()
		Expect(err).To(BeNil())

		db, err := st.InitDB(cfg)
		Expect(err).To(BeNil())
		gormdb = db

		s = st.NewStore(db)
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		Expect(s.CacheEntry().DeleteAll(context.TODO())).To(BeNil())
	})

	Context("upsert and get", func() {
		It("round-trips an entry", func() {
			entry := testEntry(1, "image/png|s2|a3|image,numeric", 88, time.Now())
			_, err := s.CacheEntry().Upsert(context.TODO(), entry)
			Expect(err).To(BeNil())

			got, err := s.CacheEntry().Get(context.TODO(), entry.ContentHash)
			Expect(err).To(BeNil())
			Expect(got.SimilarityHash).To(Equal(entry.SimilarityHash))
			Expect(got.Confidence).To(Equal(88.0))
			Expect(got.Result).To(MatchJSON(entry.Result))
		})

		It("updates in place on content hash conflict", func() {
			entry := testEntry(1, "bucket-a", 60, time.Now())
			_, err := s.CacheEntry().Upsert(context.TODO(), entry)
			Expect(err).To(BeNil())

			entry.Confidence = 95
			entry.SimilarityHash = "bucket-b"
			_, err = s.CacheEntry().Upsert(context.TODO(), entry)
			Expect(err).To(BeNil())

			entries, err := s.CacheEntry().List(context.TODO())
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Confidence).To(Equal(95.0))
			Expect(entries[0].SimilarityHash).To(Equal("bucket-b"))
		})

		It("reports a missing entry", func() {
			_, err := s.CacheEntry().Get(context.TODO(), contentHash(404))
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("list by similarity bucket", func() {
		It("returns only the bucket's entries", func() {
			for n, bucket := range map[int]string{1: "bucket-a", 2: "bucket-a", 3: "bucket-b"} {
				_, err := s.CacheEntry().Upsert(context.TODO(), testEntry(n, bucket, 70, time.Now()))
				Expect(err).To(BeNil())
			}

			entries, err := s.CacheEntry().ListByBucket(context.TODO(), "bucket-a")
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(2))
			for _, e := range entries {
				Expect(e.SimilarityHash).To(Equal("bucket-a"))
			}
		})

		It("returns an empty list for an unknown bucket", func() {
			entries, err := s.CacheEntry().ListByBucket(context.TODO(), "no-such-bucket")
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(0))
		})
	})

	Context("touch", func() {
		It("advances the access bookkeeping", func() {
			entry := testEntry(1, "bucket-a", 70, time.Now().Add(-time.Hour))
			_, err := s.CacheEntry().Upsert(context.TODO(), entry)
			Expect(err).To(BeNil())

			now := time.Now()
			Expect(s.CacheEntry().Touch(context.TODO(), entry.ContentHash, now, 5)).To(BeNil())

			got, err := s.CacheEntry().Get(context.TODO(), entry.ContentHash)
			Expect(err).To(BeNil())
			Expect(got.AccessCount).To(Equal(int64(5)))
			Expect(got.LastAccessedAt.Unix()).To(BeNumerically(">=", now.Unix()))
		})
	})

	Context("delete", func() {
		It("removes the listed hashes", func() {
			for n := 1; n <= 3; n++ {
				_, err := s.CacheEntry().Upsert(context.TODO(), testEntry(n, "bucket-a", 70, time.Now()))
				Expect(err).To(BeNil())
			}

			Expect(s.CacheEntry().Delete(context.TODO(), []string{contentHash(1), contentHash(3)})).To(BeNil())

			entries, err := s.CacheEntry().List(context.TODO())
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ContentHash).To(Equal(contentHash(2)))
		})

		It("accepts an empty hash list", func() {
			Expect(s.CacheEntry().Delete(context.TODO(), nil)).To(BeNil())
		})

		It("range-deletes idle entries", func() {
			_, err := s.CacheEntry().Upsert(context.TODO(), testEntry(1, "bucket-a", 70, time.Now().Add(-40*24*time.Hour)))
			Expect(err).To(BeNil())
			_, err = s.CacheEntry().Upsert(context.TODO(), testEntry(2, "bucket-a", 70, time.Now()))
			Expect(err).To(BeNil())

			removed, err := s.CacheEntry().DeleteIdleSince(context.TODO(), time.Now().Add(-30*24*time.Hour))
			Expect(err).To(BeNil())
			Expect(removed).To(Equal(int64(1)))

			entries, err := s.CacheEntry().List(context.TODO())
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ContentHash).To(Equal(contentHash(2)))
		})
	})

	Context("statistics", func() {
		It("aggregates counts, sizes and confidence", func() {
			_, err := s.CacheEntry().Upsert(context.TODO(), testEntry(1, "bucket-a", 80, time.Now()))
			Expect(err).To(BeNil())
			_, err = s.CacheEntry().Upsert(context.TODO(), testEntry(2, "bucket-a", 90, time.Now()))
			Expect(err).To(BeNil())

			stats, err := s.Statistics(context.TODO())
			Expect(err).To(BeNil())
			Expect(stats.TotalEntries).To(Equal(int64(2)))
			Expect(stats.TotalSizeBytes).To(Equal(int64(4096)))
			Expect(stats.AvgConfidence).To(BeNumerically("~", 85.0, 0.001))
		})

		It("reports zeros for an empty table", func() {
			stats, err := s.Statistics(context.TODO())
			Expect(err).To(BeNil())
			Expect(stats.TotalEntries).To(Equal(int64(0)))
			Expect(stats.TotalSizeBytes).To(Equal(int64(0)))
		})
	})

	Context("transaction", func() {
		It("commits an upsert", func() {
			ctx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = s.CacheEntry().Upsert(ctx, testEntry(1, "bucket-a", 70, time.Now()))
			Expect(err).To(BeNil())

			_, err = st.Commit(ctx)
			Expect(err).To(BeNil())

			count := int64(0)
			Expect(gormdb.Model(&model.CacheEntry{}).Count(&count).Error).To(BeNil())
			Expect(count).To(Equal(int64(1)))
		})

		It("rolls an upsert back", func() {
			ctx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = s.CacheEntry().Upsert(ctx, testEntry(2, "bucket-a", 70, time.Now()))
			Expect(err).To(BeNil())

			_, err = st.Rollback(ctx)
			Expect(err).To(BeNil())

			count := int64(0)
			Expect(gormdb.Model(&model.CacheEntry{}).Count(&count).Error).To(BeNil())
			Expect(count).To(Equal(int64(0)))
		})
	})
})
