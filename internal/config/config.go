package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database   *dbConfig
	Service    *svcConfig
	Cache      *cacheConfig
	Scheduler  *schedulerConfig
	Resilience *resilienceConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"ocr_cache.db"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	MetricsAddress string `envconfig:"FAKTULOVE_OCR_METRICS_ADDRESS" default:":8080"`
	LogLevel       string `envconfig:"FAKTULOVE_OCR_LOG_LEVEL" default:"info"`
	Languages      string `envconfig:"FAKTULOVE_OCR_LANGUAGES" default:"pol+eng"`
}

type cacheConfig struct {
	MaxEntries           int           `envconfig:"FAKTULOVE_OCR_CACHE_MAX_ENTRIES" default:"10000"`
	Retention            time.Duration `envconfig:"FAKTULOVE_OCR_CACHE_RETENTION" default:"720h"`
	SweepInterval        time.Duration `envconfig:"FAKTULOVE_OCR_CACHE_SWEEP_INTERVAL" default:"1h"`
	SimilarityEnabled    bool          `envconfig:"FAKTULOVE_OCR_CACHE_SIMILARITY_ENABLED" default:"true"`
	SimilarityThreshold  float64       `envconfig:"FAKTULOVE_OCR_CACHE_SIMILARITY_THRESHOLD" default:"0.85"`
	PersistenceThreshold float64       `envconfig:"FAKTULOVE_OCR_CACHE_PERSIST_MIN_CONFIDENCE" default:"60"`
}

type schedulerConfig struct {
	Workers         int           `envconfig:"FAKTULOVE_OCR_WORKERS" default:"4"`
	MaxWorkers      int           `envconfig:"FAKTULOVE_OCR_MAX_WORKERS" default:"16"`
	QueueCapacity   int           `envconfig:"FAKTULOVE_OCR_QUEUE_CAPACITY" default:"256"`
	CompletedLimit  int           `envconfig:"FAKTULOVE_OCR_COMPLETED_LIMIT" default:"1000"`
	MonitorInterval time.Duration `envconfig:"FAKTULOVE_OCR_MONITOR_INTERVAL" default:"10s"`
	MemoryHighWater uint64        `envconfig:"FAKTULOVE_OCR_MEMORY_HIGH_WATER_BYTES" default:"1073741824"`
}

type resilienceConfig struct {
	MaxRetries         int           `envconfig:"FAKTULOVE_OCR_MAX_RETRIES" default:"2"`
	InitTimeout        time.Duration `envconfig:"FAKTULOVE_OCR_INIT_TIMEOUT" default:"30s"`
	ProcessTimeout     time.Duration `envconfig:"FAKTULOVE_OCR_PROCESS_TIMEOUT" default:"120s"`
	PreprocessTimeout  time.Duration `envconfig:"FAKTULOVE_OCR_PREPROCESS_TIMEOUT" default:"60s"`
	BackoffBase        time.Duration `envconfig:"FAKTULOVE_OCR_BACKOFF_BASE" default:"200ms"`
	EnableDegradation  bool          `envconfig:"FAKTULOVE_OCR_ENABLE_DEGRADATION" default:"true"`
	EnableFallback     bool          `envconfig:"FAKTULOVE_OCR_ENABLE_FALLBACK" default:"true"`
	PreprocessFallback bool          `envconfig:"FAKTULOVE_OCR_PREPROCESS_FALLBACK" default:"true"`
	MinAvgConfidence   float64       `envconfig:"FAKTULOVE_OCR_MIN_AVG_CONFIDENCE" default:"0"`
}

func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
