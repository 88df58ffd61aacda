// Package postgres is the pgx-backed Store. Dispatch transactions lock the
// booking row and then the professional row with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/repository"
)

//go:embed schema.sql
var schema string

// SQLSTATE codes the store maps to repository sentinels.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	logger.InfoLogger.Info("Applying database schema")
	if _, err := pool.Exec(ctx, schema); err != nil {
		logger.ErrorLogger.Errorf("Failed to apply schema: %v", err)
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.InfoLogger.Info("Database schema is up to date")
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.WarnLogger.Warnf("Transaction rollback failed: %v", rbErr)
		}
	}()

	if err := fn(ctx, &txStore{tx: pgTx}); err != nil {
		return mapErr(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		logger.ErrorLogger.Errorf("Transaction commit failed: %v", err)
		return mapErr(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// mapErr folds driver errors into the repository sentinels, keeping the
// original error in the chain.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", repository.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", repository.ErrSerialization, err)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %w", repository.ErrDuplicate, err)
		}
	}
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
