package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joy095/dispatch/logger"
)

// Connect builds a pgx pool for dsn. The ping runs in the background so a
// cold database does not block startup.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	start := time.Now()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection error: %w", err)
	}

	go func() {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer pingCancel()

		if err := pool.Ping(pingCtx); err != nil {
			logger.WarnLogger.Warnf("Database cold start or unreachable: %v", err)
			return
		}
		logger.InfoLogger.Infof("Database ready (ping ok in %v)", time.Since(start))
	}()

	logger.InfoLogger.Info("Connected to PostgreSQL pool (async ping).")
	return pool, nil
}

// Close releases the pool.
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
		logger.InfoLogger.Info("Disconnected from PostgreSQL.")
	}
}
