package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"forge/internal/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store runs every unit of work as a READ COMMITTED transaction and relies on
// SELECT ... FOR UPDATE for per-row serialization.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ game.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, log: logger}
}

func (s *Store) WithTx(ctx context.Context, fn func(game.Tx) error) error {
	const maxAttempts = 5
	retryDelay := 50 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return translate(err)
		}
		s.log.Warn("retrying transaction", "attempt", attempt+1, "err", err)
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		retryDelay *= 2
	}
	return game.ErrTxConflict
}

func (s *Store) runTx(ctx context.Context, fn func(game.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) PruneIdempotencyKeys(ctx context.Context, olderThan time.Time) (int64, error) {
	cmd, err := s.pool.Exec(ctx, `
		DELETE FROM game.idempotency_keys
		WHERE created_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// translate maps constraint failures that escaped a Tx method onto domain errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return fmt.Errorf("%w: %s", game.ErrInvariant, pgErr.ConstraintName)
	}
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
