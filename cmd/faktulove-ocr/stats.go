package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/m3n3sx/faktulove-ocr/internal/config"
	"github.com/m3n3sx/faktulove-ocr/internal/store"
	"github.com/m3n3sx/faktulove-ocr/pkg/log"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print recognition cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		logger := log.InitLog(zap.NewAtomicLevelAt(zap.WarnLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		db, err := store.InitDB(cfg)
		if err != nil {
			return fmt.Errorf("initializing data store: %w", err)
		}
		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			return fmt.Errorf("running initial migration: %w", err)
		}

		stats, err := s.CacheEntry().Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading cache statistics: %w", err)
		}

		fmt.Printf("entries:         %d\n", stats.TotalEntries)
		fmt.Printf("total size:      %d bytes\n", stats.TotalSizeBytes)
		fmt.Printf("avg confidence:  %.1f\n", stats.AvgConfidence)
		return nil
	},
}
