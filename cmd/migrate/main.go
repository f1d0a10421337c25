package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/config"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/db"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/migrations"
)

// migrateLockKey serializes concurrent migrator runs against one database.
const migrateLockKey = 8250071

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if err := run(ctx, pool); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}
}

func run(ctx context.Context, pool *pgxpool.Pool) error {
	// Advisory locks are session scoped, so everything runs on one pinned
	// connection.
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrateLockKey); err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, migrateLockKey)
	}()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return err
	}

	all, err := migrations.All()
	if err != nil {
		return err
	}

	for _, m := range all {
		var applied bool
		row := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, m.Name)
		if err := row.Scan(&applied); err != nil {
			return err
		}
		if applied {
			continue
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		log.Printf("applied %s", m.Name)
	}
	return nil
}
