package config

import "time"

type Worker struct {
	Concurrency     int           `env:"WORKER_CONCURRENCY" envDefault:"10"`
	MaxRetry        int           `env:"WORKER_MAX_RETRY" envDefault:"3"`
	ShutdownTimeout time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MetricsAddress  string        `env:"WORKER_METRICS_ADDRESS" envDefault:":9091"`

	SweepSpec      string        `env:"WORKER_SWEEP_SPEC" envDefault:"@every 5m"`
	StaleTaskAge   time.Duration `env:"WORKER_STALE_TASK_AGE" envDefault:"30m"`
	ResolveTimeout time.Duration `env:"WORKER_RESOLVE_TIMEOUT" envDefault:"15m"`
}
