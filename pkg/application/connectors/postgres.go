package connectors

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/samber/lo"
)

type Postgres struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	// Migrations holds goose SQL files under MigrationsDir. Nil disables Migrate.
	Migrations    fs.FS
	MigrationsDir string

	db *sqlx.DB
}

func (p *Postgres) Client(ctx context.Context) *sqlx.DB {
	if p.db != nil {
		return p.db
	}

	p.db = lo.Must(sqlx.ConnectContext(ctx, "pgx", p.DSN))
	p.db.SetMaxIdleConns(p.MaxIdleConns)
	p.db.SetMaxOpenConns(p.MaxOpenConns)
	p.db.SetConnMaxLifetime(p.ConnMaxLifetime)

	logger(ctx).Info("postgres connected",
		slog.Int("max_open_conns", p.MaxOpenConns),
		slog.Int("max_idle_conns", p.MaxIdleConns),
	)

	return p.db
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if p.Migrations == nil {
		return nil
	}

	goose.SetBaseFS(p.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose.SetDialect: %w", err)
	}

	if err := goose.UpContext(ctx, p.Client(ctx).DB, p.MigrationsDir); err != nil {
		return fmt.Errorf("goose.UpContext: %w", err)
	}

	logger(ctx).Info("postgres migrations applied")
	return nil
}

func (p *Postgres) Close(ctx context.Context) {
	if p.db == nil {
		return
	}

	if err := p.db.Close(); err != nil {
		logger(ctx).Error("postgres close error", slog.Any("error", err))
		return
	}

	logger(ctx).Info("postgres connection closed")
}
