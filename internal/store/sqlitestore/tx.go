package sqlitestore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"forge/internal/game"

	sqlite3 "modernc.org/sqlite/lib"
)

type sqliteTx struct {
	tx  *sql.Tx
	now func() time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = `
	id, username, role, gold, choco, money,
	rating, wins, losses, win_streak, max_win_streak,
	checkin_streak, last_checkin, created_at`

const weaponColumns = `id, account_id, name, base_name, level, is_hidden, created_at`

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func scanAccount(row rowScanner) (game.Account, error) {
	var a game.Account
	var role string
	var created int64
	err := row.Scan(&a.ID, &a.Username, &role, &a.Balances.Gold, &a.Balances.Choco, &a.Balances.Money,
		&a.Record.Rating, &a.Record.Wins, &a.Record.Losses, &a.Record.WinStreak, &a.Record.MaxWinStreak,
		&a.CheckIn.Streak, &a.CheckIn.LastDate, &created)
	if err == sql.ErrNoRows {
		return a, game.ErrAccountNotFound
	}
	a.Role = game.Role(role)
	a.CreatedAt = fromNanos(created)
	return a, err
}

func scanWeapon(row rowScanner) (game.Weapon, error) {
	var w game.Weapon
	var created int64
	err := row.Scan(&w.ID, &w.AccountID, &w.Name, &w.BaseName, &w.Level, &w.Hidden, &created)
	if err == sql.ErrNoRows {
		return w, game.ErrWeaponNotFound
	}
	w.CreatedAt = fromNanos(created)
	return w, err
}

func (t *sqliteTx) stamp() (time.Time, int64) {
	now := t.now().UTC()
	return now, now.UnixNano()
}

func (t *sqliteTx) ClaimIdempotency(ctx context.Context, accountID, key, action string) error {
	_, nanos := t.stamp()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (account_id, key, action, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, key) DO NOTHING
	`, accountID, strings.TrimSpace(key), action, nanos)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func (t *sqliteTx) InsertAccount(ctx context.Context, acct game.Account) (game.Account, bool, error) {
	_, nanos := t.stamp()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, username, role, gold, choco, money, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, acct.ID, acct.Username, string(acct.Role), acct.Balances.Gold, acct.Balances.Choco, acct.Balances.Money, acct.Record.Rating, nanos)
	if err != nil {
		return game.Account{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return game.Account{}, false, err
	}
	stored, err := t.Account(ctx, acct.ID)
	return stored, n == 1, err
}

func (t *sqliteTx) Account(ctx context.Context, id string) (game.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

// LockAccount is a plain read: the single connection already serializes writers.
func (t *sqliteTx) LockAccount(ctx context.Context, id string) (game.Account, error) {
	return t.Account(ctx, id)
}

func (t *sqliteTx) SaveAccount(ctx context.Context, a game.Account) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET gold = ?, choco = ?, money = ?,
		    rating = ?, wins = ?, losses = ?, win_streak = ?, max_win_streak = ?,
		    checkin_streak = ?, last_checkin = ?
		WHERE id = ?
	`, a.Balances.Gold, a.Balances.Choco, a.Balances.Money,
		a.Record.Rating, a.Record.Wins, a.Record.Losses, a.Record.WinStreak, a.Record.MaxWinStreak,
		a.CheckIn.Streak, a.CheckIn.LastDate, a.ID)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return game.ErrAccountNotFound
	}
	return nil
}

func (t *sqliteTx) AccountIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *sqliteTx) AppendLedger(ctx context.Context, entries []game.LedgerEntry) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries (tx_group_id, account_id, denomination, delta, balance_after, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, nanos := t.stamp()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.TxGroupID, e.AccountID, string(e.Denomination), e.Delta, e.BalanceAfter, e.Reason, nanos); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) InsertWeapon(ctx context.Context, w game.Weapon) (game.Weapon, error) {
	now, nanos := t.stamp()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO weapons (account_id, name, base_name, level, is_hidden, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.AccountID, w.Name, w.BaseName, w.Level, w.Hidden, nanos)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE constraint") {
			return game.Weapon{}, game.ErrDuplicateWeapon
		}
		return game.Weapon{}, err
	}
	if w.ID, err = res.LastInsertId(); err != nil {
		return game.Weapon{}, err
	}
	w.CreatedAt = now
	return w, nil
}

func (t *sqliteTx) Weapon(ctx context.Context, id int64) (game.Weapon, error) {
	return scanWeapon(t.tx.QueryRowContext(ctx, `SELECT `+weaponColumns+` FROM weapons WHERE id = ?`, id))
}

func (t *sqliteTx) LockWeapon(ctx context.Context, id int64) (game.Weapon, error) {
	return t.Weapon(ctx, id)
}

func (t *sqliteTx) SetWeaponLevel(ctx context.Context, id int64, level int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE weapons SET level = ? WHERE id = ?`, level, id)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return game.ErrWeaponNotFound
	}
	return nil
}

func (t *sqliteTx) DeleteWeapon(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM weapons WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return game.ErrWeaponNotFound
	}
	return nil
}

func (t *sqliteTx) Weapons(ctx context.Context, accountID string) ([]game.Weapon, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+weaponColumns+`
		FROM weapons
		WHERE account_id = ?
		ORDER BY level DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.Weapon
	for rows.Next() {
		w, err := scanWeapon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (t *sqliteTx) AppendAttempt(ctx context.Context, a game.EnhancementAttempt) (game.EnhancementAttempt, error) {
	now, nanos := t.stamp()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO enhancement_attempts
			(account_id, weapon_id, weapon_name, is_hidden, level_before, level_after, gold_spent, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.AccountID, a.WeaponID, a.WeaponName, a.Hidden, a.LevelBefore, a.LevelAfter, a.GoldSpent, string(a.Result), nanos)
	if err != nil {
		return game.EnhancementAttempt{}, translate(err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return game.EnhancementAttempt{}, err
	}
	a.CreatedAt = now
	return a, nil
}

func (t *sqliteTx) Attempts(ctx context.Context, weaponID int64, limit int) ([]game.EnhancementAttempt, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, account_id, weapon_id, weapon_name, is_hidden, level_before, level_after, gold_spent, result, created_at
		FROM enhancement_attempts
		WHERE weapon_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, weaponID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.EnhancementAttempt
	for rows.Next() {
		var a game.EnhancementAttempt
		var result string
		var created int64
		if err := rows.Scan(&a.ID, &a.AccountID, &a.WeaponID, &a.WeaponName, &a.Hidden,
			&a.LevelBefore, &a.LevelAfter, &a.GoldSpent, &result, &created); err != nil {
			return nil, err
		}
		a.Result = game.Outcome(result)
		a.CreatedAt = fromNanos(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *sqliteTx) AttemptStats(ctx context.Context, accountID string) (game.AttemptStats, error) {
	var st game.AttemptStats
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(1),
		       COALESCE(SUM(CASE WHEN result = 'success' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN result = 'maintain' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN result = 'destroy' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(gold_spent), 0),
		       COALESCE(MAX(level_after), 0)
		FROM enhancement_attempts
		WHERE account_id = ?
	`, accountID).Scan(&st.Attempts, &st.Successes, &st.Maintains, &st.Destroys, &st.GoldSpent, &st.HighestLevel)
	return st, err
}

func (t *sqliteTx) TopEnhancements(ctx context.Context, limit int) ([]game.HighScore, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT username, weapon_id, weapon_name, is_hidden, level_after, created_at
		FROM (
			SELECT a.username, ea.id, ea.weapon_id, ea.weapon_name, ea.is_hidden, ea.level_after, ea.created_at,
			       ROW_NUMBER() OVER (PARTITION BY ea.weapon_id ORDER BY ea.level_after DESC, ea.id ASC) AS rn
			FROM enhancement_attempts ea
			JOIN accounts a ON a.id = ea.account_id
			WHERE ea.result = 'success'
		)
		WHERE rn = 1
		ORDER BY level_after DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.HighScore
	for rows.Next() {
		var h game.HighScore
		var created int64
		if err := rows.Scan(&h.Username, &h.WeaponID, &h.WeaponName, &h.Hidden, &h.Level, &created); err != nil {
			return nil, err
		}
		h.ReachedAt = fromNanos(created)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *sqliteTx) InsertBattle(ctx context.Context, b game.Battle) (game.Battle, error) {
	now, nanos := t.stamp()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO battles
			(attacker_account_id, defender_account_id, attacker_weapon_id, defender_weapon_id,
			 attacker_power, defender_power, winner_account_id, gold_exchanged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.AttackerAccountID, b.DefenderAccountID, b.AttackerWeaponID, b.DefenderWeaponID,
		b.AttackerPower, b.DefenderPower, b.WinnerAccountID, b.GoldExchanged, nanos)
	if err != nil {
		return game.Battle{}, translate(err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return game.Battle{}, err
	}
	b.CreatedAt = now
	return b, nil
}

func (t *sqliteTx) Battles(ctx context.Context, accountID string, limit int) ([]game.Battle, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, attacker_account_id, defender_account_id, attacker_weapon_id, defender_weapon_id,
		       attacker_power, defender_power, winner_account_id, gold_exchanged, created_at
		FROM battles
		WHERE attacker_account_id = ? OR defender_account_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, accountID, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.Battle
	for rows.Next() {
		var b game.Battle
		var created int64
		if err := rows.Scan(&b.ID, &b.AttackerAccountID, &b.DefenderAccountID, &b.AttackerWeaponID, &b.DefenderWeaponID,
			&b.AttackerPower, &b.DefenderPower, &b.WinnerAccountID, &b.GoldExchanged, &created); err != nil {
			return nil, err
		}
		b.CreatedAt = fromNanos(created)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *sqliteTx) Rankings(ctx context.Context, limit int) ([]game.RankingRow, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT username, rating, wins, losses
		FROM accounts
		ORDER BY rating DESC, wins DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.RankingRow
	var rank int64 = 1
	for rows.Next() {
		var r game.RankingRow
		if err := rows.Scan(&r.Username, &r.Rating, &r.Wins, &r.Losses); err != nil {
			return nil, err
		}
		r.Rank = rank
		rank++
		out = append(out, r)
	}
	return out, rows.Err()
}
