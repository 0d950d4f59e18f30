package config

import "time"

type Postgres struct {
	DSN             string        `env:"POSTGRES_DSN,notEmpty"`
	MaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS" envDefault:"5"`
	MaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"20"`
	ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
	MigrateOnStart  bool          `env:"POSTGRES_MIGRATE_ON_START" envDefault:"true"`
}
