package game

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MaxLevel = 20

	StarterGold   = int64(10_000)
	GMStarterGold = int64(1_000_000)

	GoldPerChoco  = int64(120_000)
	ChocoPerMoney = int64(120)

	MinBattleExchange = int64(1_000)
	MaxBattleExchange = int64(1_000_000)

	AnnounceFromLevel = 10
)

var (
	ErrInvalidAmount           = errors.New("amount must be a positive integer")
	ErrInvalidInput            = errors.New("invalid input")
	ErrUnsupportedConversion   = errors.New("unsupported conversion")
	ErrMinimumConversionNotMet = errors.New("minimum conversion not met")
	ErrConfirmationRequired    = errors.New("confirmation required")
	ErrSelfBattle              = errors.New("cannot battle your own weapon")
	ErrMaxLevelReached         = errors.New("weapon is at max level")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAccountNotFound         = errors.New("account not found")
	ErrWeaponNotFound          = errors.New("weapon not found")
	ErrDuplicateWeapon         = errors.New("weapon with this base name already exists")
	ErrDuplicateIdempotency    = errors.New("duplicate idempotency key")
	ErrAlreadyCheckedIn        = errors.New("already checked in today")
	ErrForbidden               = errors.New("forbidden")
	ErrTxConflict              = errors.New("transaction conflict, retry later")
	ErrInvariant               = errors.New("invariant violation")
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindInsufficientFunds
	KindNotFound
	KindConflict
	KindForbidden
	KindInvariant
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindInvariant:
		return "invariant"
	default:
		return "internal"
	}
}

// KindOf classifies err into the caller-facing taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvariant):
		return KindInvariant
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnsupportedConversion), errors.Is(err, ErrMinimumConversionNotMet),
		errors.Is(err, ErrConfirmationRequired), errors.Is(err, ErrSelfBattle),
		errors.Is(err, ErrMaxLevelReached):
		return KindValidation
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrWeaponNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateWeapon), errors.Is(err, ErrDuplicateIdempotency),
		errors.Is(err, ErrAlreadyCheckedIn), errors.Is(err, ErrTxConflict):
		return KindConflict
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindInternal
	}
}

type Role string

const (
	RolePlayer     Role = "player"
	RoleBetaTester Role = "beta_tester"
	RoleGM         Role = "gm"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RolePlayer, RoleBetaTester, RoleGM:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

func StarterGoldFor(role Role) int64 {
	if role == RoleGM {
		return GMStarterGold
	}
	return StarterGold
}

type Denomination string

const (
	Gold  Denomination = "gold"
	Choco Denomination = "choco"
	Money Denomination = "money"
)

func ParseDenomination(s string) (Denomination, error) {
	switch d := Denomination(strings.ToLower(strings.TrimSpace(s))); d {
	case Gold, Choco, Money:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown denomination %q", ErrInvalidInput, s)
	}
}

type Balances struct {
	Gold  int64 `json:"gold"`
	Choco int64 `json:"choco"`
	Money int64 `json:"money"`
}

func (b Balances) Get(d Denomination) int64 {
	switch d {
	case Gold:
		return b.Gold
	case Choco:
		return b.Choco
	case Money:
		return b.Money
	}
	return 0
}

func (b *Balances) set(d Denomination, v int64) {
	switch d {
	case Gold:
		b.Gold = v
	case Choco:
		b.Choco = v
	case Money:
		b.Money = v
	}
}

func (b Balances) nonNegative() bool {
	return b.Gold >= 0 && b.Choco >= 0 && b.Money >= 0
}

type Account struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Balances  Balances  `json:"balances"`
	Record    Record    `json:"record"`
	CheckIn   CheckIn   `json:"check_in"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is the battle scoreboard of an account.
type Record struct {
	Rating       int64 `json:"rating"`
	Wins         int64 `json:"wins"`
	Losses       int64 `json:"losses"`
	WinStreak    int64 `json:"win_streak"`
	MaxWinStreak int64 `json:"max_win_streak"`
}

type CheckIn struct {
	Streak   int    `json:"streak"`
	LastDate string `json:"last_date,omitempty"` // YYYY-MM-DD, UTC
}

type Weapon struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	BaseName  string    `json:"base_name"`
	Level     int       `json:"level"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"created_at"`
}

func (w Weapon) DisplayName() string {
	return fmt.Sprintf("%s +%d", w.Name, w.Level)
}

type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeMaintain Outcome = "maintain"
	OutcomeDestroy  Outcome = "destroy"
)

type EnhancementAttempt struct {
	ID          int64     `json:"id"`
	AccountID   string    `json:"account_id"`
	WeaponID    int64     `json:"weapon_id"`
	WeaponName  string    `json:"weapon_name"`
	Hidden      bool      `json:"hidden"`
	LevelBefore int       `json:"level_before"`
	LevelAfter  int       `json:"level_after"`
	GoldSpent   int64     `json:"gold_spent"`
	Result      Outcome   `json:"result"`
	CreatedAt   time.Time `json:"created_at"`
}

type Battle struct {
	ID                int64     `json:"id"`
	AttackerAccountID string    `json:"attacker_account_id"`
	DefenderAccountID string    `json:"defender_account_id"`
	AttackerWeaponID  int64     `json:"attacker_weapon_id"`
	DefenderWeaponID  int64     `json:"defender_weapon_id"`
	AttackerPower     int64     `json:"attacker_power"`
	DefenderPower     int64     `json:"defender_power"`
	WinnerAccountID   string    `json:"winner_account_id"`
	GoldExchanged     int64     `json:"gold_exchanged"`
	CreatedAt         time.Time `json:"created_at"`
}

type LedgerEntry struct {
	TxGroupID    string       `json:"tx_group_id"`
	AccountID    string       `json:"account_id"`
	Denomination Denomination `json:"denomination"`
	Delta        int64        `json:"delta"`
	BalanceAfter int64        `json:"balance_after"`
	Reason       string       `json:"reason"`
}

func validateName(label, name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, label)
	}
	if len([]rune(clean)) > 100 {
		return "", fmt.Errorf("%w: %s too long (max 100 chars)", ErrInvalidInput, label)
	}
	return clean, nil
}
