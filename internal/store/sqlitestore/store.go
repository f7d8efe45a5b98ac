package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"forge/internal/game"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store keeps the whole game in one SQLite file. The pool is pinned to a
// single connection, so units of work run strictly one after another.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

var _ game.Store = (*Store)(nil)

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: sqldb, log: logger, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		sqldb.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id              TEXT PRIMARY KEY,
			username        TEXT NOT NULL,
			role            TEXT NOT NULL DEFAULT 'player' CHECK (role IN ('player', 'beta_tester', 'gm')),
			gold            INTEGER NOT NULL DEFAULT 10000 CHECK (gold >= 0),
			choco           INTEGER NOT NULL DEFAULT 0 CHECK (choco >= 0),
			money           INTEGER NOT NULL DEFAULT 0 CHECK (money >= 0),
			rating          INTEGER NOT NULL DEFAULT 1000,
			wins            INTEGER NOT NULL DEFAULT 0,
			losses          INTEGER NOT NULL DEFAULT 0,
			win_streak      INTEGER NOT NULL DEFAULT 0,
			max_win_streak  INTEGER NOT NULL DEFAULT 0,
			checkin_streak  INTEGER NOT NULL DEFAULT 0,
			last_checkin    TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS weapons (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id  TEXT NOT NULL REFERENCES accounts (id),
			name        TEXT NOT NULL,
			base_name   TEXT NOT NULL,
			level       INTEGER NOT NULL DEFAULT 0 CHECK (level BETWEEN 0 AND 20),
			is_hidden   INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			UNIQUE (account_id, base_name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_weapons_account ON weapons (account_id);`,
		`CREATE TABLE IF NOT EXISTS enhancement_attempts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id    TEXT NOT NULL REFERENCES accounts (id),
			weapon_id     INTEGER NOT NULL,
			weapon_name   TEXT NOT NULL DEFAULT '',
			is_hidden     INTEGER NOT NULL DEFAULT 0,
			level_before  INTEGER NOT NULL,
			level_after   INTEGER NOT NULL,
			gold_spent    INTEGER NOT NULL,
			result        TEXT NOT NULL CHECK (result IN ('success', 'maintain', 'destroy')),
			created_at    INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_enhancement_attempts_account ON enhancement_attempts (account_id);`,
		`CREATE INDEX IF NOT EXISTS idx_enhancement_attempts_weapon ON enhancement_attempts (weapon_id, id);`,
		`CREATE TABLE IF NOT EXISTS battles (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			attacker_account_id  TEXT NOT NULL REFERENCES accounts (id),
			defender_account_id  TEXT NOT NULL REFERENCES accounts (id),
			attacker_weapon_id   INTEGER NOT NULL,
			defender_weapon_id   INTEGER NOT NULL,
			attacker_power       INTEGER NOT NULL,
			defender_power       INTEGER NOT NULL,
			winner_account_id    TEXT NOT NULL REFERENCES accounts (id),
			gold_exchanged       INTEGER NOT NULL CHECK (gold_exchanged BETWEEN 1000 AND 1000000),
			created_at           INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			tx_group_id    TEXT NOT NULL,
			account_id     TEXT NOT NULL REFERENCES accounts (id),
			denomination   TEXT NOT NULL CHECK (denomination IN ('gold', 'choco', 'money')),
			delta          INTEGER NOT NULL,
			balance_after  INTEGER NOT NULL,
			reason         TEXT NOT NULL,
			created_at     INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_id, id);`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			account_id  TEXT NOT NULL,
			key         TEXT NOT NULL,
			action      TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			PRIMARY KEY (account_id, key)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(game.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx, now: s.now}); err != nil {
		return translate(err)
	}
	return translate(tx.Commit())
}

func (s *Store) PruneIdempotencyKeys(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// isConstraint matches both extended result codes and the primary
// SQLITE_CONSTRAINT code plus message, whichever the driver reports.
func isConstraint(err error, extended int, marker string) bool {
	code := sqliteCode(err)
	if code == extended {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), marker)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_CHECK, "CHECK constraint") {
		return fmt.Errorf("%w: %v", game.ErrInvariant, err)
	}
	switch sqliteCode(err) & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return game.ErrTxConflict
	}
	return err
}
