package game

import (
	"context"
	"time"
)

const (
	CheckInBaseGold     = int64(1_000)
	CheckInWeeklyGold   = int64(3_000)
	CheckInMonthlyGold  = int64(10_000)
	CheckInMonthlyChoco = int64(1)

	weeklyStreak  = 7
	monthlyStreak = 30

	dateLayout = "2006-01-02"
)

// CheckInReward is what one check-in pays out.
type CheckInReward struct {
	Gold  int64 `json:"gold"`
	Choco int64 `json:"choco"`
}

// RewardForStreak pays the base gold every day, the weekly bonus from day 7
// on, and the monthly bonus on every 30th consecutive day.
func RewardForStreak(streak int) CheckInReward {
	r := CheckInReward{Gold: CheckInBaseGold}
	if streak >= weeklyStreak {
		r.Gold += CheckInWeeklyGold
		if streak%monthlyStreak == 0 {
			r.Gold += CheckInMonthlyGold
			r.Choco += CheckInMonthlyChoco
		}
	}
	return r
}

// NextStreak advances a check-in streak for the UTC day of now.
func NextStreak(prev CheckIn, now time.Time) (int, error) {
	today := now.UTC().Format(dateLayout)
	if prev.LastDate == today {
		return 0, ErrAlreadyCheckedIn
	}
	yesterday := now.UTC().AddDate(0, 0, -1).Format(dateLayout)
	if prev.LastDate == yesterday {
		return prev.Streak + 1, nil
	}
	return 1, nil
}

// CheckIn records today's visit and credits the streak reward. Gold and the
// monthly choco land in one ledger group.
func (s *Service) CheckIn(ctx context.Context, accountID, idempotencyKey string) (CheckInResult, error) {
	now := s.now()
	var out CheckInResult
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := claim(ctx, tx, accountID, idempotencyKey, "checkin"); err != nil {
			return err
		}
		acct, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		streak, err := NextStreak(acct.CheckIn, now)
		if err != nil {
			return err
		}
		reward := RewardForStreak(streak)
		acct.CheckIn = CheckIn{Streak: streak, LastDate: now.UTC().Format(dateLayout)}

		ledger := NewLedger("checkin")
		if err := ledger.Credit(&acct, Gold, reward.Gold); err != nil {
			return err
		}
		if reward.Choco > 0 {
			if err := ledger.Credit(&acct, Choco, reward.Choco); err != nil {
				return err
			}
		}
		if err := ledger.Commit(ctx, tx); err != nil {
			return err
		}
		out = CheckInResult{
			Streak:         streak,
			Reward:         reward.Gold,
			RewardChoco:    reward.Choco,
			GoldRemaining:  acct.Balances.Gold,
			ChocoRemaining: acct.Balances.Choco,
		}
		return nil
	})
	if err != nil {
		return CheckInResult{}, s.fail("checkin", err, "account_id", accountID)
	}
	return out, nil
}
