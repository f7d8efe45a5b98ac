package pgstore

import (
	"context"
	"strings"

	"forge/internal/game"

	"github.com/jackc/pgx/v5"
)

type pgTx struct {
	tx pgx.Tx
}

const accountColumns = `
	id, username, role, gold, choco, money,
	rating, wins, losses, win_streak, max_win_streak,
	checkin_streak, last_checkin, created_at`

const weaponColumns = `id, account_id, name, base_name, level, is_hidden, created_at`

func scanAccount(row pgx.Row) (game.Account, error) {
	var a game.Account
	var role string
	err := row.Scan(&a.ID, &a.Username, &role, &a.Balances.Gold, &a.Balances.Choco, &a.Balances.Money,
		&a.Record.Rating, &a.Record.Wins, &a.Record.Losses, &a.Record.WinStreak, &a.Record.MaxWinStreak,
		&a.CheckIn.Streak, &a.CheckIn.LastDate, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return a, game.ErrAccountNotFound
	}
	a.Role = game.Role(role)
	return a, err
}

func scanWeapon(row pgx.Row) (game.Weapon, error) {
	var w game.Weapon
	err := row.Scan(&w.ID, &w.AccountID, &w.Name, &w.BaseName, &w.Level, &w.Hidden, &w.CreatedAt)
	if err == pgx.ErrNoRows {
		return w, game.ErrWeaponNotFound
	}
	return w, err
}

func (t *pgTx) ClaimIdempotency(ctx context.Context, accountID, key, action string) error {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO game.idempotency_keys (account_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id, key) DO NOTHING
	`, accountID, strings.TrimSpace(key), action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func (t *pgTx) InsertAccount(ctx context.Context, acct game.Account) (game.Account, bool, error) {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO game.accounts (id, username, role, gold, choco, money, rating)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, acct.ID, acct.Username, string(acct.Role), acct.Balances.Gold, acct.Balances.Choco, acct.Balances.Money, acct.Record.Rating)
	if err != nil {
		return game.Account{}, false, err
	}
	stored, err := t.Account(ctx, acct.ID)
	return stored, cmd.RowsAffected() == 1, err
}

func (t *pgTx) Account(ctx context.Context, id string) (game.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM game.accounts WHERE id = $1`, id))
}

func (t *pgTx) LockAccount(ctx context.Context, id string) (game.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM game.accounts WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SaveAccount(ctx context.Context, a game.Account) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE game.accounts
		SET gold = $2, choco = $3, money = $4,
		    rating = $5, wins = $6, losses = $7, win_streak = $8, max_win_streak = $9,
		    checkin_streak = $10, last_checkin = $11,
		    updated_at = now()
		WHERE id = $1
	`, a.ID, a.Balances.Gold, a.Balances.Choco, a.Balances.Money,
		a.Record.Rating, a.Record.Wins, a.Record.Losses, a.Record.WinStreak, a.Record.MaxWinStreak,
		a.CheckIn.Streak, a.CheckIn.LastDate)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrAccountNotFound
	}
	return nil
}

func (t *pgTx) AccountIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT id FROM game.accounts ORDER BY id`)
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

func (t *pgTx) AppendLedger(ctx context.Context, entries []game.LedgerEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO game.ledger_entries (tx_group_id, account_id, denomination, delta, balance_after, reason)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.TxGroupID, e.AccountID, string(e.Denomination), e.Delta, e.BalanceAfter, e.Reason)
	}
	br := t.tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

func (t *pgTx) InsertWeapon(ctx context.Context, w game.Weapon) (game.Weapon, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO game.weapons (account_id, name, base_name, level, is_hidden)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, w.AccountID, w.Name, w.BaseName, w.Level, w.Hidden).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return game.Weapon{}, game.ErrDuplicateWeapon
		}
		return game.Weapon{}, err
	}
	return w, nil
}

func (t *pgTx) Weapon(ctx context.Context, id int64) (game.Weapon, error) {
	return scanWeapon(t.tx.QueryRow(ctx, `SELECT `+weaponColumns+` FROM game.weapons WHERE id = $1`, id))
}

func (t *pgTx) LockWeapon(ctx context.Context, id int64) (game.Weapon, error) {
	return scanWeapon(t.tx.QueryRow(ctx, `SELECT `+weaponColumns+` FROM game.weapons WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SetWeaponLevel(ctx context.Context, id int64, level int) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE game.weapons
		SET level = $2, updated_at = now()
		WHERE id = $1
	`, id, level)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrWeaponNotFound
	}
	return nil
}

func (t *pgTx) DeleteWeapon(ctx context.Context, id int64) error {
	cmd, err := t.tx.Exec(ctx, `DELETE FROM game.weapons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrWeaponNotFound
	}
	return nil
}

func (t *pgTx) Weapons(ctx context.Context, accountID string) ([]game.Weapon, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+weaponColumns+`
		FROM game.weapons
		WHERE account_id = $1
		ORDER BY level DESC, created_at DESC, id DESC
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

func (t *pgTx) AppendAttempt(ctx context.Context, a game.EnhancementAttempt) (game.EnhancementAttempt, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO game.enhancement_attempts
			(account_id, weapon_id, weapon_name, is_hidden, level_before, level_after, gold_spent, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, a.AccountID, a.WeaponID, a.WeaponName, a.Hidden, a.LevelBefore, a.LevelAfter, a.GoldSpent, string(a.Result)).Scan(&a.ID, &a.CreatedAt)
	return a, err
}

func (t *pgTx) Attempts(ctx context.Context, weaponID int64, limit int) ([]game.EnhancementAttempt, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, account_id, weapon_id, weapon_name, is_hidden, level_before, level_after, gold_spent, result, created_at
		FROM game.enhancement_attempts
		WHERE weapon_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, weaponID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.EnhancementAttempt
	for rows.Next() {
		var a game.EnhancementAttempt
		var result string
		if err := rows.Scan(&a.ID, &a.AccountID, &a.WeaponID, &a.WeaponName, &a.Hidden,
			&a.LevelBefore, &a.LevelAfter, &a.GoldSpent, &result, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Result = game.Outcome(result)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) AttemptStats(ctx context.Context, accountID string) (game.AttemptStats, error) {
	var st game.AttemptStats
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(1),
		       COUNT(1) FILTER (WHERE result = 'success'),
		       COUNT(1) FILTER (WHERE result = 'maintain'),
		       COUNT(1) FILTER (WHERE result = 'destroy'),
		       COALESCE(SUM(gold_spent), 0),
		       COALESCE(MAX(level_after), 0)
		FROM game.enhancement_attempts
		WHERE account_id = $1
	`, accountID).Scan(&st.Attempts, &st.Successes, &st.Maintains, &st.Destroys, &st.GoldSpent, &st.HighestLevel)
	return st, err
}

func (t *pgTx) TopEnhancements(ctx context.Context, limit int) ([]game.HighScore, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT username, weapon_id, weapon_name, is_hidden, level_after, created_at
		FROM (
			SELECT DISTINCT ON (ea.weapon_id)
			       a.username, ea.weapon_id, ea.weapon_name, ea.is_hidden, ea.level_after, ea.created_at
			FROM game.enhancement_attempts ea
			JOIN game.accounts a ON a.id = ea.account_id
			WHERE ea.result = 'success'
			ORDER BY ea.weapon_id, ea.level_after DESC, ea.created_at ASC
		) best
		ORDER BY level_after DESC, created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.HighScore
	for rows.Next() {
		var h game.HighScore
		if err := rows.Scan(&h.Username, &h.WeaponID, &h.WeaponName, &h.Hidden, &h.Level, &h.ReachedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertBattle(ctx context.Context, b game.Battle) (game.Battle, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO game.battles
			(attacker_account_id, defender_account_id, attacker_weapon_id, defender_weapon_id,
			 attacker_power, defender_power, winner_account_id, gold_exchanged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, b.AttackerAccountID, b.DefenderAccountID, b.AttackerWeaponID, b.DefenderWeaponID,
		b.AttackerPower, b.DefenderPower, b.WinnerAccountID, b.GoldExchanged).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return game.Battle{}, translate(err)
	}
	return b, nil
}

func (t *pgTx) Battles(ctx context.Context, accountID string, limit int) ([]game.Battle, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, attacker_account_id, defender_account_id, attacker_weapon_id, defender_weapon_id,
		       attacker_power, defender_power, winner_account_id, gold_exchanged, created_at
		FROM game.battles
		WHERE attacker_account_id = $1 OR defender_account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.Battle
	for rows.Next() {
		var b game.Battle
		if err := rows.Scan(&b.ID, &b.AttackerAccountID, &b.DefenderAccountID, &b.AttackerWeaponID, &b.DefenderWeaponID,
			&b.AttackerPower, &b.DefenderPower, &b.WinnerAccountID, &b.GoldExchanged, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *pgTx) Rankings(ctx context.Context, limit int) ([]game.RankingRow, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT username, rating, wins, losses
		FROM game.accounts
		ORDER BY rating DESC, wins DESC, id
		LIMIT $1
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
