package game

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

// Announcer receives high-level enhancement news after the transaction commits.
type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
}

type Service struct {
	store    Store
	log      *slog.Logger
	rand     RandomSource
	announce Announcer
	now      func() time.Time
}

type Option func(*Service)

func WithRandomSource(src RandomSource) Option {
	return func(s *Service) { s.rand = src }
}

func WithAnnouncer(a Announcer) Option {
	return func(s *Service) { s.announce = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store: store,
		log:   logger,
		rand:  NewTimeSeededSource(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureAccount creates the account on first sight of a principal. Role and
// starting gold are fixed at creation; later calls return the stored account.
func (s *Service) EnsureAccount(ctx context.Context, p Principal, email string) (Account, error) {
	if strings.TrimSpace(p.AccountID) == "" {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	role := p.Role
	if role == "" {
		role = RolePlayer
	}
	if _, err := ParseRole(string(role)); err != nil {
		return Account{}, err
	}
	username := strings.TrimSpace(p.Username)
	if !usernameRE.MatchString(username) {
		username = usernameFromEmail(email)
	}

	var out Account
	err := s.store.WithTx(ctx, func(tx Tx) error {
		acct, created, err := tx.InsertAccount(ctx, Account{
			ID:       p.AccountID,
			Username: username,
			Role:     role,
			Balances: Balances{Gold: StarterGoldFor(role)},
			Record:   Record{Rating: 1000},
		})
		if err != nil {
			return err
		}
		if created {
			s.log.Info("account created", "account_id", acct.ID, "role", acct.Role)
		}
		out = acct
		return nil
	})
	if err != nil {
		return Account{}, s.fail("ensure account", err, "account_id", p.AccountID)
	}
	return out, nil
}

func (s *Service) Account(ctx context.Context, accountID string) (Account, error) {
	var out Account
	err := s.store.WithTx(ctx, func(tx Tx) error {
		acct, err := tx.Account(ctx, accountID)
		out = acct
		return err
	})
	return out, err
}

func (s *Service) Profile(ctx context.Context, accountID string) (Profile, error) {
	var out Profile
	err := s.store.WithTx(ctx, func(tx Tx) error {
		acct, err := tx.Account(ctx, accountID)
		if err != nil {
			return err
		}
		stats, err := tx.AttemptStats(ctx, accountID)
		if err != nil {
			return err
		}
		out = Profile{Account: acct, Stats: stats}
		return nil
	})
	return out, err
}

// Credit adds amount of d to an account as one unit of work.
func (s *Service) Credit(ctx context.Context, accountID string, d Denomination, amount int64, reason string) (Balances, error) {
	return s.ledgerOp(ctx, accountID, reason, func(l *Ledger, acct *Account) error {
		return l.Credit(acct, d, amount)
	})
}

// Debit removes amount of d from an account, or fails without touching it.
func (s *Service) Debit(ctx context.Context, accountID string, d Denomination, amount int64, reason string) (Balances, error) {
	return s.ledgerOp(ctx, accountID, reason, func(l *Ledger, acct *Account) error {
		return l.Debit(acct, d, amount)
	})
}

func (s *Service) ledgerOp(ctx context.Context, accountID, reason string, fn func(*Ledger, *Account) error) (Balances, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "adjustment"
	}
	var out Balances
	err := s.store.WithTx(ctx, func(tx Tx) error {
		acct, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		ledger := NewLedger(reason)
		if err := fn(ledger, &acct); err != nil {
			return err
		}
		if err := ledger.Commit(ctx, tx); err != nil {
			return err
		}
		out = acct.Balances
		return nil
	})
	if err != nil {
		return Balances{}, s.fail(reason, err, "account_id", accountID)
	}
	return out, nil
}

func (s *Service) Convert(ctx context.Context, in ConvertInput) (ConvertResult, error) {
	if _, err := QuoteConversion(in.From, in.To, in.Amount); err != nil {
		return ConvertResult{}, err
	}
	var out ConvertResult
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := claim(ctx, tx, in.AccountID, in.IdempotencyKey, "convert"); err != nil {
			return err
		}
		acct, err := tx.LockAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		ledger := NewLedger("convert")
		q, err := ledger.Convert(&acct, in.From, in.To, in.Amount)
		if err != nil {
			return err
		}
		if err := ledger.Commit(ctx, tx); err != nil {
			return err
		}
		out = ConvertResult{Quote: q, Balances: acct.Balances}
		return nil
	})
	if err != nil {
		return ConvertResult{}, s.fail("convert", err, "account_id", in.AccountID)
	}
	return out, nil
}

func (s *Service) CreateWeapon(ctx context.Context, in CreateWeaponInput) (Weapon, error) {
	name, err := validateName("weapon name", in.Name)
	if err != nil {
		return Weapon{}, err
	}
	baseName := name
	if strings.TrimSpace(in.BaseName) != "" {
		if baseName, err = validateName("base name", in.BaseName); err != nil {
			return Weapon{}, err
		}
	}

	var out Weapon
	err = s.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.Account(ctx, in.AccountID); err != nil {
			return err
		}
		w, err := tx.InsertWeapon(ctx, Weapon{
			AccountID: in.AccountID,
			Name:      name,
			BaseName:  baseName,
			Level:     0,
			Hidden:    in.Hidden,
		})
		out = w
		return err
	})
	if err != nil {
		return Weapon{}, s.fail("create weapon", err, "account_id", in.AccountID)
	}
	return out, nil
}

func (s *Service) Weapons(ctx context.Context, accountID string) ([]Weapon, error) {
	var out []Weapon
	err := s.store.WithTx(ctx, func(tx Tx) error {
		ws, err := tx.Weapons(ctx, accountID)
		out = ws
		return err
	})
	return out, err
}

// WeaponHistory lists the latest attempts on one of the caller's weapons.
func (s *Service) WeaponHistory(ctx context.Context, accountID string, weaponID int64, limit int) ([]EnhancementAttempt, error) {
	limit = clampLimit(limit, 10, 100)
	var out []EnhancementAttempt
	err := s.store.WithTx(ctx, func(tx Tx) error {
		w, err := tx.Weapon(ctx, weaponID)
		if err != nil {
			return err
		}
		if w.AccountID != accountID {
			return ErrWeaponNotFound
		}
		out, err = tx.Attempts(ctx, weaponID, limit)
		return err
	})
	return out, err
}

func (s *Service) TopEnhancements(ctx context.Context, limit int) ([]HighScore, error) {
	limit = clampLimit(limit, 10, 100)
	var out []HighScore
	err := s.store.WithTx(ctx, func(tx Tx) error {
		rows, err := tx.TopEnhancements(ctx, limit)
		out = rows
		return err
	})
	return out, err
}

func (s *Service) Rankings(ctx context.Context, limit int) ([]RankingRow, error) {
	limit = clampLimit(limit, 10, 100)
	var out []RankingRow
	err := s.store.WithTx(ctx, func(tx Tx) error {
		rows, err := tx.Rankings(ctx, limit)
		out = rows
		return err
	})
	return out, err
}

func (s *Service) BattleHistory(ctx context.Context, accountID string, limit int) ([]Battle, error) {
	limit = clampLimit(limit, 10, 100)
	var out []Battle
	err := s.store.WithTx(ctx, func(tx Tx) error {
		rows, err := tx.Battles(ctx, accountID, limit)
		out = rows
		return err
	})
	return out, err
}

// fail logs errors the caller cannot act on and passes every error through unchanged.
func (s *Service) fail(op string, err error, attrs ...any) error {
	switch KindOf(err) {
	case KindInvariant:
		s.log.Error(op+" aborted: invariant violation", append(attrs, "err", err)...)
	case KindInternal:
		s.log.Error(op+" failed", append(attrs, "err", err)...)
	}
	return err
}

func (s *Service) publish(a Announcement) {
	if s.announce == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.announce.Announce(ctx, a); err != nil {
			s.log.Warn("announcement delivery failed", "account_id", a.AccountID, "level", a.Level, "err", err)
		}
	}()
}

func claim(ctx context.Context, tx Tx, accountID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidInput)
	}
	return tx.ClaimIdempotency(ctx, accountID, key, action)
}

// lockAccounts locks accounts in id order so concurrent multi-account work cannot deadlock.
func lockAccounts(ctx context.Context, tx Tx, ids ...string) (map[string]*Account, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make(map[string]*Account, len(sorted))
	for _, id := range sorted {
		if _, ok := out[id]; ok {
			continue
		}
		acct, err := tx.LockAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = &acct
	}
	return out, nil
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

func usernameFromEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	parts := strings.Split(email, "@")
	if len(parts) == 0 || parts[0] == "" {
		return "player"
	}
	return sanitizeUsername(parts[0])
}

func sanitizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "player"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	res := strings.Trim(string(out), "_")
	if len(res) < 3 {
		res = "player_" + res
	}
	if len(res) > 24 {
		res = res[:24]
	}
	return res
}
