package game

import (
	"context"
	"fmt"
)

// Enhance runs one enhancement attempt: check funds, debit the cost, roll
// once, move the weapon level and log the attempt, all in one unit of work.
func (s *Service) Enhance(ctx context.Context, in EnhanceInput) (EnhanceResult, error) {
	if in.WeaponID <= 0 {
		return EnhanceResult{}, fmt.Errorf("%w: weapon id is required", ErrInvalidInput)
	}

	var (
		out      EnhanceResult
		username string
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := claim(ctx, tx, in.AccountID, in.IdempotencyKey, "enhance"); err != nil {
			return err
		}
		weapon, err := tx.LockWeapon(ctx, in.WeaponID)
		if err != nil {
			return err
		}
		if weapon.AccountID != in.AccountID {
			return ErrWeaponNotFound
		}
		acct, err := tx.LockAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		rate, err := RateFor(weapon.Level)
		if err != nil {
			return err
		}

		ledger := NewLedger("enhance")
		if err := ledger.Debit(&acct, Gold, rate.Cost); err != nil {
			return err
		}
		outcome, next, _ := Roll(s.rand, rate)
		if next < 0 || next > MaxLevel {
			return fmt.Errorf("%w: level %d out of range after %s", ErrInvariant, next, outcome)
		}
		if err := tx.SetWeaponLevel(ctx, weapon.ID, next); err != nil {
			return err
		}
		attempt, err := tx.AppendAttempt(ctx, EnhancementAttempt{
			AccountID:   acct.ID,
			WeaponID:    weapon.ID,
			WeaponName:  weapon.Name,
			Hidden:      weapon.Hidden,
			LevelBefore: weapon.Level,
			LevelAfter:  next,
			GoldSpent:   rate.Cost,
			Result:      outcome,
		})
		if err != nil {
			return err
		}
		if err := ledger.Commit(ctx, tx); err != nil {
			return err
		}

		previous := weapon.Level
		weapon.Level = next
		username = acct.Username
		out = EnhanceResult{
			Result:        outcome,
			PreviousLevel: previous,
			NewLevel:      next,
			GoldSpent:     rate.Cost,
			GoldRemaining: acct.Balances.Gold,
			Weapon:        weapon,
			AttemptID:     attempt.ID,
		}
		return nil
	})
	if err != nil {
		return EnhanceResult{}, s.fail("enhance", err, "account_id", in.AccountID, "weapon_id", in.WeaponID)
	}

	if out.Result == OutcomeSuccess && out.NewLevel >= AnnounceFromLevel {
		s.log.Info("high enhancement", "account_id", in.AccountID, "weapon_id", in.WeaponID, "level", out.NewLevel)
		s.publish(Announcement{
			AccountID:  in.AccountID,
			Username:   username,
			WeaponID:   out.Weapon.ID,
			WeaponName: out.Weapon.Name,
			Level:      out.NewLevel,
			At:         s.now().UTC(),
		})
	}
	return out, nil
}

// Sell liquidates a weapon for its payout and deletes the record. Its
// attempt log is kept.
func (s *Service) Sell(ctx context.Context, in SellInput) (SellResult, error) {
	if in.WeaponID <= 0 {
		return SellResult{}, fmt.Errorf("%w: weapon id is required", ErrInvalidInput)
	}
	if !in.Confirm {
		return SellResult{}, ErrConfirmationRequired
	}

	var out SellResult
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := claim(ctx, tx, in.AccountID, in.IdempotencyKey, "sell"); err != nil {
			return err
		}
		weapon, err := tx.LockWeapon(ctx, in.WeaponID)
		if err != nil {
			return err
		}
		if weapon.AccountID != in.AccountID {
			return ErrWeaponNotFound
		}
		acct, err := tx.LockAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}

		payout := Payout(weapon.Level, weapon.Hidden)
		ledger := NewLedger("sell")
		if payout > 0 {
			if err := ledger.Credit(&acct, Gold, payout); err != nil {
				return err
			}
		}
		if err := tx.DeleteWeapon(ctx, weapon.ID); err != nil {
			return err
		}
		if err := ledger.Commit(ctx, tx); err != nil {
			return err
		}
		out = SellResult{GoldEarned: payout, GoldRemaining: acct.Balances.Gold}
		return nil
	})
	if err != nil {
		return SellResult{}, s.fail("sell", err, "account_id", in.AccountID, "weapon_id", in.WeaponID)
	}
	return out, nil
}
