package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"forge/internal/game"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
	hidden      = color.New(color.FgMagenta, color.Bold)
)

type weaponRow struct {
	game.Weapon
	DisplayName string          `json:"display_name"`
	SellPrice   int64           `json:"sell_price"`
	Power       int64           `json:"power"`
	Next        *game.RateEntry `json:"next"`
}

type weaponsPayload struct {
	Weapons []weaponRow `json:"weapons"`
}

type enhancePayload struct {
	game.EnhanceResult
	Weapon weaponRow `json:"weapon"`
}

type historyPayload struct {
	Attempts []game.EnhancementAttempt `json:"attempts"`
}

type battlesPayload struct {
	Battles []game.Battle `json:"battles"`
}

type rankingsPayload struct {
	Rankings []game.RankingRow `json:"rankings"`
}

type topPayload struct {
	Enhancements []game.HighScore `json:"enhancements"`
}

type ratesPayload struct {
	Rates         []game.RateEntry `json:"rates"`
	GoldPerChoco  int64            `json:"gold_per_choco"`
	ChocoPerMoney int64            `json:"choco_per_money"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// promptSecret reads without echo on a terminal and falls back to a plain line otherwise.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(string(raw))
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptConfirm(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(strings.ReplaceAll(text, ",", ""), 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderProfile(raw map[string]any) error {
	p, err := decodeInto[game.Profile](raw)
	if err != nil {
		return err
	}
	a := p.Account
	accent.Printf("\n== %s (%s) ==\n", a.Username, a.Role)
	fmt.Printf("Gold:           %s\n", comma(a.Balances.Gold))
	fmt.Printf("Choco:          %s\n", comma(a.Balances.Choco))
	fmt.Printf("Money:          %s\n", comma(a.Balances.Money))
	fmt.Printf("Rating:         %d (%dW / %dL, best streak %d)\n", a.Record.Rating, a.Record.Wins, a.Record.Losses, a.Record.MaxWinStreak)
	fmt.Printf("Check-in:       streak %d\n", a.CheckIn.Streak)
	fmt.Println()
	accent.Println("Forge record")
	fmt.Printf("Attempts:       %d\n", p.Stats.Attempts)
	fmt.Printf("Successes:      %s\n", success.Sprint(p.Stats.Successes))
	fmt.Printf("Maintains:      %s\n", warn.Sprint(p.Stats.Maintains))
	fmt.Printf("Destroys:       %s\n", danger.Sprint(p.Stats.Destroys))
	fmt.Printf("Gold spent:     %s\n", comma(p.Stats.GoldSpent))
	fmt.Printf("Highest level:  +%d\n", p.Stats.HighestLevel)
	fmt.Println()
	return nil
}

func renderRates(raw map[string]any) error {
	out, err := decodeInto[ratesPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== ENHANCEMENT RATES ==")
	fmt.Printf("%s %8s %9s %8s %14s\n", pad("LEVEL", 9), "SUCCESS", "MAINTAIN", "DESTROY", "COST")
	for _, r := range out.Rates {
		fmt.Printf("%s %7d%% %8d%% %7s %14s\n",
			pad(fmt.Sprintf("+%d > +%d", r.Level, r.Level+1), 9),
			r.Success,
			r.Maintain,
			colorizeDestroy(r.Destroy),
			comma(r.Cost),
		)
	}
	fmt.Printf("\n%s gold = 1 choco, %s choco = 1 money\n\n", comma(out.GoldPerChoco), comma(out.ChocoPerMoney))
	return nil
}

func renderWeapons(raw map[string]any) error {
	out, err := decodeInto[weaponsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== ARMORY ==")
	if len(out.Weapons) == 0 {
		printInfo("No weapons yet. Forge one with `forge weapons create`.")
		return nil
	}
	fmt.Printf("%-6s %s %6s %10s %12s %14s\n", "ID", pad("WEAPON", 24), "POWER", "SELL", "NEXT COST", "NEXT S/M/D")
	for _, w := range out.Weapons {
		name := pad(w.DisplayName, 24)
		if w.Hidden {
			name = hidden.Sprint(name)
		}
		nextCost, nextRates := "-", "max"
		if w.Next != nil {
			nextCost = comma(w.Next.Cost)
			nextRates = fmt.Sprintf("%d/%d/%d", w.Next.Success, w.Next.Maintain, w.Next.Destroy)
		}
		fmt.Printf("%-6d %s %6d %10s %12s %14s\n", w.ID, name, w.Power, comma(w.SellPrice), nextCost, nextRates)
	}
	fmt.Println()
	return nil
}

func renderWeaponCreated(raw map[string]any) error {
	w, err := decodeInto[weaponRow](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Forged %s (id %d).", w.DisplayName, w.ID))
	return nil
}

func renderEnhance(raw map[string]any) error {
	out, err := decodeInto[enhancePayload](raw)
	if err != nil {
		return err
	}
	fmt.Println(outcomeLine(out.Result, out.PreviousLevel, out.NewLevel, out.Weapon.Name))
	fmt.Printf("Spent %s gold, %s remaining.\n", comma(out.GoldSpent), comma(out.GoldRemaining))
	return nil
}

func outcomeLine(result game.Outcome, before, after int, name string) string {
	switch result {
	case game.OutcomeSuccess:
		return success.Sprintf("SUCCESS  %s +%d > +%d", name, before, after)
	case game.OutcomeMaintain:
		return warn.Sprintf("MAINTAIN %s stays at +%d", name, after)
	case game.OutcomeDestroy:
		return danger.Sprintf("DESTROY  %s shattered at +%d, back to +%d", name, before, after)
	}
	return string(result)
}

func renderHistory(raw map[string]any, weaponID int64) error {
	out, err := decodeInto[historyPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== WEAPON %d HISTORY ==\n", weaponID)
	if len(out.Attempts) == 0 {
		printInfo("No attempts yet.")
		return nil
	}
	fmt.Printf("%-20s %-9s %7s %7s %12s\n", "WHEN", "RESULT", "BEFORE", "AFTER", "COST")
	for _, a := range out.Attempts {
		fmt.Printf("%-20s %-9s %7s %7s %12s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			a.Result,
			fmt.Sprintf("+%d", a.LevelBefore),
			fmt.Sprintf("+%d", a.LevelAfter),
			comma(a.GoldSpent),
		)
	}
	fmt.Println()
	return nil
}

func renderSell(raw map[string]any) error {
	out, err := decodeInto[game.SellResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Sold for %s gold. Balance: %s gold.", comma(out.GoldEarned), comma(out.GoldRemaining)))
	return nil
}

func renderConvert(raw map[string]any) error {
	out, err := decodeInto[game.ConvertResult](raw)
	if err != nil {
		return err
	}
	q := out.Quote
	printSuccess(fmt.Sprintf("Converted %s %s into %s %s.", comma(q.Spent), q.From, comma(q.Received), q.To))
	b := out.Balances
	fmt.Printf("Gold %s | Choco %s | Money %s\n", comma(b.Gold), comma(b.Choco), comma(b.Money))
	return nil
}

func renderBattle(raw map[string]any, selfID string) error {
	out, err := decodeInto[game.BattleResult](raw)
	if err != nil {
		return err
	}
	if out.Winner == selfID {
		printSuccess(fmt.Sprintf("Victory! Won %s gold with weapon %d.", comma(out.GoldExchanged), out.WinnerWeapon))
	} else {
		printError(fmt.Sprintf("Defeat. Lost %s gold with weapon %d.", comma(out.GoldExchanged), out.LoserWeapon))
	}
	fmt.Printf("Gold remaining: %s\n", comma(out.GoldRemaining))
	return nil
}

func renderBattles(raw map[string]any, selfID string) error {
	out, err := decodeInto[battlesPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== BATTLES ==")
	if len(out.Battles) == 0 {
		printInfo("No battles yet.")
		return nil
	}
	fmt.Printf("%-20s %-8s %8s %8s %12s\n", "WHEN", "RESULT", "YOURS", "THEIRS", "GOLD")
	for _, b := range out.Battles {
		mine, theirs := b.AttackerPower, b.DefenderPower
		if b.DefenderAccountID == selfID {
			mine, theirs = theirs, mine
		}
		result := danger.Sprint(pad("LOSS", 8))
		if b.WinnerAccountID == selfID {
			result = success.Sprint(pad("WIN", 8))
		}
		fmt.Printf("%-20s %s %8d %8d %12s\n",
			b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			result, mine, theirs, comma(b.GoldExchanged),
		)
	}
	fmt.Println()
	return nil
}

func renderCheckIn(raw map[string]any) error {
	out, err := decodeInto[game.CheckInResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Checked in. Day %d streak, +%s gold (balance %s).", out.Streak, comma(out.Reward), comma(out.GoldRemaining)))
	if out.RewardChoco > 0 {
		printInfo(fmt.Sprintf("Monthly bonus: +%d choco (balance %s).", out.RewardChoco, comma(out.ChocoRemaining)))
	}
	return nil
}

func renderRankings(raw map[string]any) error {
	out, err := decodeInto[rankingsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== RANKINGS ==")
	if len(out.Rankings) == 0 {
		printInfo("No ranked players yet.")
		return nil
	}
	fmt.Printf("%-6s %s %8s %6s %6s\n", "RANK", pad("PLAYER", 18), "RATING", "W", "L")
	for _, row := range out.Rankings {
		fmt.Printf("%-6d %s %8d %6d %6d\n", row.Rank, pad(row.Username, 18), row.Rating, row.Wins, row.Losses)
	}
	fmt.Println()
	return nil
}

func renderTop(raw map[string]any) error {
	out, err := decodeInto[topPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== HALL OF FORGE ==")
	if len(out.Enhancements) == 0 {
		printInfo("Nobody has forged anything yet.")
		return nil
	}
	fmt.Printf("%-4s %s %s %6s %-20s\n", "#", pad("PLAYER", 18), pad("WEAPON", 20), "LEVEL", "REACHED")
	for i, h := range out.Enhancements {
		name := pad(h.WeaponName, 20)
		if h.Hidden {
			name = hidden.Sprint(name)
		}
		fmt.Printf("%-4d %s %s %6s %-20s\n", i+1, pad(h.Username, 18), name, fmt.Sprintf("+%d", h.Level), h.ReachedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
	return nil
}

func renderBalances(raw map[string]any) error {
	out, err := decodeInto[struct {
		Balances game.Balances `json:"balances"`
	}](raw)
	if err != nil {
		return err
	}
	b := out.Balances
	printSuccess(fmt.Sprintf("Balances now gold %s | choco %s | money %s", comma(b.Gold), comma(b.Choco), comma(b.Money)))
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeDestroy(pct int) string {
	text := pad(strconv.Itoa(pct)+"%", 7)
	switch {
	case pct == 0:
		return neutral.Sprint(text)
	case pct >= 30:
		return danger.Sprint(text)
	default:
		return warn.Sprint(text)
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

// pad truncates or right-fills s to exactly n terminal cells. Weapon and
// player names may be CJK, so byte length is not display width.
func pad(s string, n int) string {
	s = strings.TrimSpace(s)
	if runewidth.StringWidth(s) > n {
		s = runewidth.Truncate(s, n, "...")
	}
	return runewidth.FillRight(s, n)
}
