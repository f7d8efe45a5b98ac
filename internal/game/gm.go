package game

import (
	"context"
	"fmt"
	"sort"
)

// AdjustBalances is the GM tool for one account. Set mode targets absolute
// balances, delta mode adds signed amounts; either way each change is booked
// as a ledger credit or debit and the whole adjustment fails if any
// denomination would go negative.
func (s *Service) AdjustBalances(ctx context.Context, actor Principal, targetID string, mode AdjustMode, adj BalanceAdjustment) (Balances, error) {
	if actor.Role != RoleGM {
		return Balances{}, ErrForbidden
	}
	changes, err := adj.fields()
	if err != nil {
		return Balances{}, err
	}
	switch mode {
	case AdjustSet:
		for d, v := range changes {
			if v < 0 {
				return Balances{}, fmt.Errorf("%w: %s target must be >= 0", ErrInvalidAmount, d)
			}
		}
	case AdjustDelta:
		for d, v := range changes {
			if v == 0 {
				return Balances{}, fmt.Errorf("%w: %s delta must be non-zero", ErrInvalidAmount, d)
			}
		}
	default:
		return Balances{}, fmt.Errorf("%w: mode must be set or delta", ErrInvalidInput)
	}

	var out Balances
	err = s.store.WithTx(ctx, func(tx Tx) error {
		acct, err := tx.LockAccount(ctx, targetID)
		if err != nil {
			return err
		}
		ledger := NewLedger("gm_adjust")
		for _, d := range []Denomination{Gold, Choco, Money} {
			v, ok := changes[d]
			if !ok {
				continue
			}
			delta := v
			if mode == AdjustSet {
				delta = v - acct.Balances.Get(d)
			}
			switch {
			case delta > 0:
				err = ledger.Credit(&acct, d, delta)
			case delta < 0:
				err = ledger.Debit(&acct, d, -delta)
			}
			if err != nil {
				return err
			}
		}
		if err := ledger.Commit(ctx, tx); err != nil {
			return err
		}
		out = acct.Balances
		return nil
	})
	if err != nil {
		return Balances{}, s.fail("gm adjust", err, "actor_id", actor.AccountID, "account_id", targetID)
	}
	s.log.Info("gm balance adjustment", "actor_id", actor.AccountID, "account_id", targetID, "mode", mode)
	return out, nil
}

// GrantAll credits amount of d to every account in one unit of work.
func (s *Service) GrantAll(ctx context.Context, actor Principal, d Denomination, amount int64) (int, error) {
	if actor.Role != RoleGM {
		return 0, ErrForbidden
	}
	if _, err := ParseDenomination(string(d)); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var count int
	err := s.store.WithTx(ctx, func(tx Tx) error {
		ids, err := tx.AccountIDs(ctx)
		if err != nil {
			return err
		}
		sort.Strings(ids)
		ledger := NewLedger("gm_grant")
		for _, id := range ids {
			acct, err := tx.LockAccount(ctx, id)
			if err != nil {
				return err
			}
			if err := ledger.Credit(&acct, d, amount); err != nil {
				return err
			}
		}
		count = len(ids)
		return ledger.Commit(ctx, tx)
	})
	if err != nil {
		return 0, s.fail("gm grant", err, "actor_id", actor.AccountID)
	}
	s.log.Info("gm grant", "actor_id", actor.AccountID, "denomination", d, "amount", amount, "accounts", count)
	return count, nil
}

func (a BalanceAdjustment) fields() (map[Denomination]int64, error) {
	out := make(map[Denomination]int64, 3)
	if a.Gold != nil {
		out[Gold] = *a.Gold
	}
	if a.Choco != nil {
		out[Choco] = *a.Choco
	}
	if a.Money != nil {
		out[Money] = *a.Money
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one of gold, choco, money is required", ErrInvalidInput)
	}
	return out, nil
}
