package game

import (
	"context"
	"fmt"
)

const (
	ratingOnWin  = 20
	ratingOnLoss = 10
)

// DrawWinner picks combatant one with probability p1/(p1+p2) from a single draw.
func DrawWinner(src RandomSource, p1, p2 int64) (firstWins bool, err error) {
	if p1 <= 0 || p2 <= 0 {
		return false, fmt.Errorf("%w: non-positive combat power %d/%d", ErrInvariant, p1, p2)
	}
	roll := src.Float64() * float64(p1+p2)
	return roll < float64(p1), nil
}

func (r *Record) win() {
	r.Wins++
	r.WinStreak++
	if r.WinStreak > r.MaxWinStreak {
		r.MaxWinStreak = r.WinStreak
	}
	r.Rating += ratingOnWin
}

func (r *Record) lose() {
	r.Losses++
	r.WinStreak = 0
	r.Rating -= ratingOnLoss
	if r.Rating < 0 {
		r.Rating = 0
	}
}

// Battle resolves one fight between the caller's weapon and another
// account's weapon and moves the stake from loser to winner.
func (s *Service) Battle(ctx context.Context, in BattleInput) (BattleResult, error) {
	if in.AttackerWeaponID <= 0 || in.DefenderWeaponID <= 0 {
		return BattleResult{}, fmt.Errorf("%w: both weapon ids are required", ErrInvalidInput)
	}
	if in.AttackerWeaponID == in.DefenderWeaponID {
		return BattleResult{}, ErrSelfBattle
	}

	var out BattleResult
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := claim(ctx, tx, in.AccountID, in.IdempotencyKey, "battle"); err != nil {
			return err
		}
		attacker, defender, err := lockPair(ctx, tx, in.AttackerWeaponID, in.DefenderWeaponID)
		if err != nil {
			return err
		}
		if attacker.AccountID != in.AccountID {
			return fmt.Errorf("%w: attacker weapon belongs to another account", ErrForbidden)
		}
		if defender.AccountID == attacker.AccountID {
			return ErrSelfBattle
		}
		accts, err := lockAccounts(ctx, tx, attacker.AccountID, defender.AccountID)
		if err != nil {
			return err
		}
		atkAcct, defAcct := accts[attacker.AccountID], accts[defender.AccountID]
		for _, a := range []*Account{atkAcct, defAcct} {
			if a.Balances.Gold < MinBattleExchange {
				return fmt.Errorf("%w: %s holds %d gold, battles need %d", ErrInsufficientFunds, a.Username, a.Balances.Gold, MinBattleExchange)
			}
		}

		p1 := Power(attacker.Level, attacker.Hidden)
		p2 := Power(defender.Level, defender.Hidden)
		attackerWins, err := DrawWinner(s.rand, p1, p2)
		if err != nil {
			return err
		}
		winner, loser := atkAcct, defAcct
		winnerWeapon, loserWeapon := attacker, defender
		if !attackerWins {
			winner, loser = defAcct, atkAcct
			winnerWeapon, loserWeapon = defender, attacker
		}

		amount := ExchangeAmount(loser.Balances.Gold)
		ledger := NewLedger("battle")
		if err := ledger.Debit(loser, Gold, amount); err != nil {
			return err
		}
		if err := ledger.Credit(winner, Gold, amount); err != nil {
			return err
		}
		winner.Record.win()
		loser.Record.lose()

		b, err := tx.InsertBattle(ctx, Battle{
			AttackerAccountID: attacker.AccountID,
			DefenderAccountID: defender.AccountID,
			AttackerWeaponID:  attacker.ID,
			DefenderWeaponID:  defender.ID,
			AttackerPower:     p1,
			DefenderPower:     p2,
			WinnerAccountID:   winner.ID,
			GoldExchanged:     amount,
		})
		if err != nil {
			return err
		}
		if err := ledger.Commit(ctx, tx); err != nil {
			return err
		}
		out = BattleResult{
			BattleID:      b.ID,
			Winner:        winner.ID,
			Loser:         loser.ID,
			WinnerWeapon:  winnerWeapon.ID,
			LoserWeapon:   loserWeapon.ID,
			GoldExchanged: amount,
			GoldRemaining: atkAcct.Balances.Gold,
		}
		return nil
	})
	if err != nil {
		return BattleResult{}, s.fail("battle", err, "account_id", in.AccountID,
			"attacker_weapon_id", in.AttackerWeaponID, "defender_weapon_id", in.DefenderWeaponID)
	}
	return out, nil
}

// lockPair locks two weapons in id order and returns them in argument order.
func lockPair(ctx context.Context, tx Tx, first, second int64) (Weapon, Weapon, error) {
	lo, hi := first, second
	if hi < lo {
		lo, hi = hi, lo
	}
	wlo, err := tx.LockWeapon(ctx, lo)
	if err != nil {
		return Weapon{}, Weapon{}, err
	}
	whi, err := tx.LockWeapon(ctx, hi)
	if err != nil {
		return Weapon{}, Weapon{}, err
	}
	if first == lo {
		return wlo, whi, nil
	}
	return whi, wlo, nil
}
