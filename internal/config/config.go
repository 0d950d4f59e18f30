package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Postgres Postgres
	HTTP     HTTP
	Redis    Redis
	GitHub   GitHub
	Resolver Resolver
	Worker   Worker
	Notify   Notify
	Debug    bool `env:"DEBUG" envDefault:"false"`
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("godotenv.Load: %w", err)
	}

	var config Config

	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}
	config.GitHub.PrivateKey = correctNewlines(config.GitHub.PrivateKey)

	return config, nil
}

// LogValue keeps secrets out of the start-up config dump.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("http_listen_address", c.HTTP.ListenAddress),
		slog.String("redis_address", c.Redis.Address),
		slog.String("github_api_url", c.GitHub.APIURL),
		slog.Int64("github_app_id", c.GitHub.AppID),
		slog.String("resolver_url", c.Resolver.URL),
		slog.Int("worker_concurrency", c.Worker.Concurrency),
		slog.Int("probe_attempts", c.GitHub.ProbeAttempts),
		slog.Duration("probe_interval", c.GitHub.ProbeInterval),
		slog.Bool("debug", c.Debug),
	)
}

func correctNewlines(s string) string {
	return strings.NewReplacer(`"`, "", `\n`, "\n").Replace(s)
}
