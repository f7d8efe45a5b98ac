package game

import (
	"context"
	"time"
)

// Store is the persistence boundary of the game. Implementations live in internal/store.
type Store interface {
	// WithTx runs fn as one atomic unit of work. Any error from fn rolls back
	// every write made through the Tx; a nil return commits.
	WithTx(ctx context.Context, fn func(Tx) error) error
	PruneIdempotencyKeys(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}

// Tx is the set of reads and writes available inside a unit of work.
// Lock* methods hold the row until the unit of work ends.
type Tx interface {
	ClaimIdempotency(ctx context.Context, accountID, key, action string) error

	InsertAccount(ctx context.Context, acct Account) (Account, bool, error)
	Account(ctx context.Context, id string) (Account, error)
	LockAccount(ctx context.Context, id string) (Account, error)
	SaveAccount(ctx context.Context, acct Account) error
	AccountIDs(ctx context.Context) ([]string, error)
	AppendLedger(ctx context.Context, entries []LedgerEntry) error

	InsertWeapon(ctx context.Context, w Weapon) (Weapon, error)
	Weapon(ctx context.Context, id int64) (Weapon, error)
	LockWeapon(ctx context.Context, id int64) (Weapon, error)
	SetWeaponLevel(ctx context.Context, id int64, level int) error
	DeleteWeapon(ctx context.Context, id int64) error
	Weapons(ctx context.Context, accountID string) ([]Weapon, error)

	AppendAttempt(ctx context.Context, a EnhancementAttempt) (EnhancementAttempt, error)
	Attempts(ctx context.Context, weaponID int64, limit int) ([]EnhancementAttempt, error)
	AttemptStats(ctx context.Context, accountID string) (AttemptStats, error)
	TopEnhancements(ctx context.Context, limit int) ([]HighScore, error)

	InsertBattle(ctx context.Context, b Battle) (Battle, error)
	Battles(ctx context.Context, accountID string, limit int) ([]Battle, error)
	Rankings(ctx context.Context, limit int) ([]RankingRow, error)
}
