package game

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Ledger stages balance changes on accounts locked inside one unit of work
// and writes them, plus their journal rows, in Commit. Nothing touches
// storage before Commit, so a rejected credit or debit leaves no trace.
type Ledger struct {
	groupID string
	reason  string
	touched []*Account
	seen    map[string]struct{}
	entries []LedgerEntry
}

func NewLedger(reason string) *Ledger {
	return &Ledger{groupID: uuid.NewString(), reason: reason, seen: make(map[string]struct{})}
}

func (l *Ledger) GroupID() string {
	return l.groupID
}

func (l *Ledger) Entries() []LedgerEntry {
	return l.entries
}

func (l *Ledger) Credit(acct *Account, d Denomination, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if _, err := ParseDenomination(string(d)); err != nil {
		return err
	}
	current := acct.Balances.Get(d)
	if current > math.MaxInt64-amount {
		return fmt.Errorf("%w: %s balance overflow on account %s", ErrInvariant, d, acct.ID)
	}
	l.apply(acct, d, amount)
	return nil
}

func (l *Ledger) Debit(acct *Account, d Denomination, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if _, err := ParseDenomination(string(d)); err != nil {
		return err
	}
	current := acct.Balances.Get(d)
	if current < amount {
		return fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientFunds, amount, d, current)
	}
	l.apply(acct, d, -amount)
	return nil
}

// Convert moves value down the gold→choco→money ladder. Only whole target
// units are bought; the remainder stays in the source denomination.
func (l *Ledger) Convert(acct *Account, from, to Denomination, amount int64) (ConversionQuote, error) {
	q, err := QuoteConversion(from, to, amount)
	if err != nil {
		return ConversionQuote{}, err
	}
	if err := l.Debit(acct, from, q.Spent); err != nil {
		return ConversionQuote{}, err
	}
	if err := l.Credit(acct, to, q.Received); err != nil {
		return ConversionQuote{}, err
	}
	return q, nil
}

func (l *Ledger) apply(acct *Account, d Denomination, delta int64) {
	next := acct.Balances.Get(d) + delta
	acct.Balances.set(d, next)
	l.track(acct)
	l.entries = append(l.entries, LedgerEntry{
		TxGroupID:    l.groupID,
		AccountID:    acct.ID,
		Denomination: d,
		Delta:        delta,
		BalanceAfter: next,
		Reason:       l.reason,
	})
}

// track keeps touched accounts in first-touch order so Commit writes them
// in the order they were locked.
func (l *Ledger) track(acct *Account) {
	if _, ok := l.seen[acct.ID]; ok {
		return
	}
	l.seen[acct.ID] = struct{}{}
	l.touched = append(l.touched, acct)
}

// Touched reports how many accounts the ledger will write on Commit.
func (l *Ledger) Touched() int {
	return len(l.touched)
}

// Commit saves every touched account and appends the journal.
func (l *Ledger) Commit(ctx context.Context, tx Tx) error {
	for _, acct := range l.touched {
		if !acct.Balances.nonNegative() {
			return fmt.Errorf("%w: negative balance staged for account %s", ErrInvariant, acct.ID)
		}
		if err := tx.SaveAccount(ctx, *acct); err != nil {
			return err
		}
	}
	if len(l.entries) == 0 {
		return nil
	}
	return tx.AppendLedger(ctx, l.entries)
}
