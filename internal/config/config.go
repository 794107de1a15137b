// Package config loads the per-concern configuration structs described in
// spec.md §6.4, following the per-concern config layout used by
// rezkam-mono's internal/config, loaded from the environment with
// github.com/caarlos0/env/v11.
package config

import (
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// WorkerConfig governs the Producer/Consumer pipeline.
type WorkerConfig struct {
	MaximumConcurrency        int           `env:"WORKER_MAXIMUM_CONCURRENCY"`
	MaximumQueueSize          int           `env:"WORKER_MAXIMUM_QUEUE_SIZE" envDefault:"50"`
	PollingInterval           time.Duration `env:"WORKER_POLLING_INTERVAL" envDefault:"1s"`
	BatchSize                 int           `env:"WORKER_BATCH_SIZE" envDefault:"1"`
	ChannelWriteTimeout       time.Duration `env:"WORKER_CHANNEL_WRITE_TIMEOUT" envDefault:"3s"`
	ErrorDelay                time.Duration `env:"WORKER_ERROR_DELAY" envDefault:"5s"`
	MaxDelay                  time.Duration `env:"WORKER_MAX_DELAY" envDefault:"10s"`
	ShutdownTimeout           time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	WorkerID                  uuid.UUID     `env:"-"`
}

// JobManagerConfig governs SubmitJob/ProcessJobFailure defaults.
type JobManagerConfig struct {
	DefaultMaxRetries    int `env:"JOB_MANAGER_DEFAULT_MAX_RETRIES" envDefault:"3"`
	RetryDelayBaseSeconds int `env:"JOB_MANAGER_RETRY_DELAY_BASE_SECONDS" envDefault:"5"`
}

// RecoveryConfig governs the Distributed Recovery loop.
type RecoveryConfig struct {
	EnableDistributedJobRecovery bool          `env:"RECOVERY_ENABLE_DISTRIBUTED_JOB_RECOVERY" envDefault:"false"`
	JobTimeout                   time.Duration `env:"RECOVERY_JOB_TIMEOUT" envDefault:"30m"`
	CheckInterval                time.Duration `env:"RECOVERY_CHECK_INTERVAL" envDefault:"300s"`
}

// RedisConfig governs the Redis Store connection, mirrored on the
// teacher's own redis.Pool wiring.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Namespace string `env:"REDIS_NAMESPACE" envDefault:"ae"`
	MaxActive int    `env:"REDIS_MAX_ACTIVE" envDefault:"20"`
	MaxIdle   int    `env:"REDIS_MAX_IDLE" envDefault:"5"`
}

// HTTPConfig governs the Submit/Status mount.
type HTTPConfig struct {
	Addr              string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
}

// Config bundles every concern. Load populates it from the environment,
// filling in runtime.NumCPU() when the environment leaves
// MaximumConcurrency unset, and always assigning a fresh worker id (the
// environment cannot set one).
type Config struct {
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"` // "memory" or "redis"
	Worker       WorkerConfig
	JobManager   JobManagerConfig
	Recovery     RecoveryConfig
	Redis        RedisConfig
	HTTP         HTTPConfig
}

// Load reads environment variables into a Config, applying the spec's
// defaults for anything unset.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.Worker.MaximumConcurrency == 0 {
		cfg.Worker.MaximumConcurrency = runtime.NumCPU()
	}
	cfg.Worker.WorkerID = uuid.New()
	return &cfg, nil
}
