package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/m3n3sx/faktulove-ocr/internal/api_server"
	"github.com/m3n3sx/faktulove-ocr/internal/cache"
	"github.com/m3n3sx/faktulove-ocr/internal/config"
	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/engine"
	"github.com/m3n3sx/faktulove-ocr/internal/engine/tesseract"
	"github.com/m3n3sx/faktulove-ocr/internal/pipeline"
	"github.com/m3n3sx/faktulove-ocr/internal/resilience"
	"github.com/m3n3sx/faktulove-ocr/internal/scheduler"
	"github.com/m3n3sx/faktulove-ocr/internal/store"
	"github.com/m3n3sx/faktulove-ocr/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Process invoice documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		priority, err := parsePriority(priorityFlag)
		if err != nil {
			return err
		}

		zap.S().Info("initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			return fmt.Errorf("initializing data store: %w", err)
		}
		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			return fmt.Errorf("running initial migration: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		resultCache := cache.New(cache.Config{
			MaxEntries:          cfg.Cache.MaxEntries,
			Retention:           cfg.Cache.Retention,
			SimilarityEnabled:   cfg.Cache.SimilarityEnabled,
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		}, s.CacheEntry())
		if err := resultCache.Load(ctx); err != nil {
			zap.S().Warnf("cache warm-up failed: %v", err)
		}
		go cache.NewSweeper(resultCache, cfg.Cache.SweepInterval).Run(ctx)

		registry := engine.NewRegistry()
		languages := strings.Split(cfg.Service.Languages, "+")
		if err := registry.Register(tesseract.New(languages...)); err != nil {
			return err
		}
		if err := registry.InitializeAll(ctx); err != nil {
			return fmt.Errorf("initializing recognition adapters: %w", err)
		}

		executor := resilience.NewExecutor(resilience.Config{
			MaxRetries:        cfg.Resilience.MaxRetries,
			InitTimeout:       cfg.Resilience.InitTimeout,
			ProcessTimeout:    cfg.Resilience.ProcessTimeout,
			PreprocessTimeout: cfg.Resilience.PreprocessTimeout,
			BackoffBase:       cfg.Resilience.BackoffBase,
			EnableDegradation: cfg.Resilience.EnableDegradation,
			EnableFallback:    cfg.Resilience.EnableFallback,
		})
		executor.OnResourceExhausted(func(ctx context.Context) {
			resultCache.EvictLRU(ctx)
		})

		orchestrator := pipeline.NewOrchestrator(registry, resultCache, executor, pipeline.Config{
			PersistThreshold:   cfg.Cache.PersistenceThreshold,
			PreprocessFallback: cfg.Resilience.PreprocessFallback,
			MinPerformance:     engine.MinPerformance{AvgConfidence: cfg.Resilience.MinAvgConfidence},
		})

		sched := scheduler.New(scheduler.Config{
			Workers:        cfg.Scheduler.Workers,
			MaxWorkers:     cfg.Scheduler.MaxWorkers,
			QueueCapacity:  cfg.Scheduler.QueueCapacity,
			CompletedLimit: cfg.Scheduler.CompletedLimit,
		}, orchestrator)
		sched.Start(ctx)
		defer sched.Stop()

		go scheduler.NewMonitor(scheduler.MonitorConfig{
			Interval:        cfg.Scheduler.MonitorInterval,
			MemoryHighWater: cfg.Scheduler.MemoryHighWater,
		}, sched, resultCache).Run(ctx)

		go func() {
			listener, err := net.Listen("tcp", cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Errorf("creating metrics listener: %v", err)
				return
			}
			if err := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener).Run(ctx); err != nil {
				zap.S().Errorf("metrics server: %v", err)
			}
		}()

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			name := path
			taskID, err := sched.Submit(document.New(data, mimeFromPath(path)), priority, func(view scheduler.TaskView) {
				printOutcome(name, view)
			})
			if err != nil {
				return fmt.Errorf("submitting %s: %w", path, err)
			}
			zap.S().Infof("submitted %s as task %s", path, taskID)
		}

		if !sched.AwaitAll(10 * time.Minute) {
			return fmt.Errorf("processing did not finish in time")
		}
		return nil
	},
}

func parsePriority(raw string) (scheduler.Priority, error) {
	switch strings.ToLower(raw) {
	case "low":
		return scheduler.PriorityLow, nil
	case "normal":
		return scheduler.PriorityNormal, nil
	case "high":
		return scheduler.PriorityHigh, nil
	case "urgent":
		return scheduler.PriorityUrgent, nil
	}
	return 0, fmt.Errorf("unknown priority %q", raw)
}

func mimeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return document.MimePNG
	case ".jpg", ".jpeg":
		return document.MimeJPEG
	case ".tif", ".tiff":
		return document.MimeTIFF
	case ".pdf":
		return document.MimePDF
	}
	return ""
}

func printOutcome(name string, view scheduler.TaskView) {
	if view.Status == scheduler.TaskCompleted && view.Result != nil {
		fmt.Printf("%s: confidence %.1f, %d field(s), engines %s\n",
			name, view.Result.Confidence, len(view.Result.Fields), strings.Join(view.Result.EnginesUsed, ","))
		for k, v := range view.Result.Fields {
			fmt.Printf("  %s = %s\n", k, v)
		}
		return
	}
	fmt.Printf("%s: failed: %v\n", name, view.Err)
}
