// Command migrate applies the embedded database migrations.
//
// Usage:
//
//	migrate [up|up-to <version>|down|status|version]
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/internal/migrate"
)

func main() {
	_ = godotenv.Load(".env")

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(context.Background(), log, os.Args[1:]); err != nil {
		log.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *zap.Logger, args []string) error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		var dbCfg config.DatabaseConfig
		if err := env.Parse(&dbCfg); err != nil {
			return fmt.Errorf("parse database config: %w", err)
		}
		dsn = dbCfg.DSN()
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer sqldb.Close()

	m := migrate.NewMigrator(sqldb, log)

	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "up":
		return m.Up(ctx)
	case "up-to":
		if len(args) < 2 {
			return fmt.Errorf("up-to needs a version")
		}
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return m.UpTo(ctx, v)
	case "down":
		return m.Down(ctx)
	case "status":
		return m.Status(ctx)
	case "version":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		log.Info("current database version", zap.Int64("version", v))
		return nil
	default:
		return fmt.Errorf("unknown command %q (want up, up-to, down, status or version)", cmd)
	}
}
