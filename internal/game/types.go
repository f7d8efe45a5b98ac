package game

import "time"

// Principal is the authenticated caller as issued by the auth layer.
type Principal struct {
	AccountID string
	Username  string
	Role      Role
}

type EnhanceInput struct {
	AccountID      string
	WeaponID       int64
	IdempotencyKey string
}

type EnhanceResult struct {
	Result        Outcome `json:"result"`
	PreviousLevel int     `json:"previous_level"`
	NewLevel      int     `json:"new_level"`
	GoldSpent     int64   `json:"gold_spent"`
	GoldRemaining int64   `json:"gold_remaining"`
	Weapon        Weapon  `json:"weapon"`
	AttemptID     int64   `json:"attempt_id"`
}

type SellInput struct {
	AccountID      string
	WeaponID       int64
	Confirm        bool
	IdempotencyKey string
}

type SellResult struct {
	GoldEarned    int64 `json:"gold_earned"`
	GoldRemaining int64 `json:"gold_remaining"`
}

type ConvertInput struct {
	AccountID      string
	From           Denomination
	To             Denomination
	Amount         int64
	IdempotencyKey string
}

type ConvertResult struct {
	Quote    ConversionQuote `json:"quote"`
	Balances Balances        `json:"balances"`
}

type CreateWeaponInput struct {
	AccountID string
	Name      string
	BaseName  string
	Hidden    bool
}

type BattleInput struct {
	AccountID        string
	AttackerWeaponID int64
	DefenderWeaponID int64
	IdempotencyKey   string
}

type BattleResult struct {
	BattleID      int64  `json:"battle_id"`
	Winner        string `json:"winner"`
	Loser         string `json:"loser"`
	WinnerWeapon  int64  `json:"winner_weapon_id"`
	LoserWeapon   int64  `json:"loser_weapon_id"`
	GoldExchanged int64  `json:"gold_exchanged"`
	GoldRemaining int64  `json:"gold_remaining"`
}

type CheckInResult struct {
	Streak         int   `json:"streak"`
	Reward         int64 `json:"reward"`
	RewardChoco    int64 `json:"reward_choco"`
	GoldRemaining  int64 `json:"gold_remaining"`
	ChocoRemaining int64 `json:"choco_remaining"`
}

// BalanceAdjustment names the denominations a GM change touches. Nil fields are left alone.
type BalanceAdjustment struct {
	Gold  *int64 `json:"gold,omitempty"`
	Choco *int64 `json:"choco,omitempty"`
	Money *int64 `json:"money,omitempty"`
}

type AdjustMode string

const (
	AdjustSet   AdjustMode = "set"
	AdjustDelta AdjustMode = "delta"
)

type AttemptStats struct {
	Attempts     int64 `json:"attempts"`
	Successes    int64 `json:"successes"`
	Maintains    int64 `json:"maintains"`
	Destroys     int64 `json:"destroys"`
	GoldSpent    int64 `json:"gold_spent"`
	HighestLevel int   `json:"highest_level"`
}

type Profile struct {
	Account Account      `json:"account"`
	Stats   AttemptStats `json:"stats"`
}

type HighScore struct {
	Username   string    `json:"username"`
	WeaponID   int64     `json:"weapon_id"`
	WeaponName string    `json:"weapon_name"`
	Hidden     bool      `json:"hidden"`
	Level      int       `json:"level"`
	ReachedAt  time.Time `json:"reached_at"`
}

type RankingRow struct {
	Rank     int64  `json:"rank"`
	Username string `json:"username"`
	Rating   int64  `json:"rating"`
	Wins     int64  `json:"wins"`
	Losses   int64  `json:"losses"`
}

type Announcement struct {
	AccountID  string    `json:"account_id"`
	Username   string    `json:"username"`
	WeaponID   int64     `json:"weapon_id"`
	WeaponName string    `json:"weapon_name"`
	Level      int       `json:"level"`
	At         time.Time `json:"at"`
}
