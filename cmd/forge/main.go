package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "forge/internal/cli"
	"forge/internal/config"
	"forge/internal/game"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "forge",
		Short:        "Weapon forge CLI game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newMeCmd(&apiBase),
		newRatesCmd(&apiBase),
		newWeaponsCmd(&apiBase),
		newEnhanceCmd(&apiBase),
		newPlayCmd(&apiBase),
		newSellCmd(&apiBase),
		newConvertCmd(&apiBase),
		newBattleCmd(&apiBase),
		newCheckInCmd(&apiBase),
		newRankingsCmd(&apiBase),
		newTopCmd(&apiBase),
		newGMCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

// withSession runs fn with the stored access token. Tokens near expiry are
// renewed up front, and a 401 triggers one refresh and retry.
func withSession(cmd *cobra.Command, apiBase *string, fn func(ctx context.Context, client *cl.Client, sess cl.Session) error) error {
	sess, err := cl.LoadSession()
	if err != nil {
		return fmt.Errorf("login required: %w", err)
	}
	if !sess.ServedBy(*apiBase) {
		return fmt.Errorf("session belongs to %s, run `forge login --api %s`", sess.APIBase, *apiBase)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	client := newClient(apiBase)

	if sess.Expiring(time.Now()) && sess.RefreshToken != "" {
		if err := refreshSession(ctx, client, &sess); err != nil {
			return err
		}
	}
	err = fn(ctx, client, sess)
	if !cl.IsUnauthorized(err) || sess.RefreshToken == "" {
		return err
	}
	if err := refreshSession(ctx, client, &sess); err != nil {
		return err
	}
	return fn(ctx, client, sess)
}

func refreshSession(ctx context.Context, client *cl.Client, sess *cl.Session) error {
	fresh, err := client.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		return fmt.Errorf("session expired, run `forge login`: %w", err)
	}
	sess.Renew(fresh, time.Now())
	return cl.SaveSession(*sess)
}

// rememberProfile caches the account's role and name from a /v1/me payload.
func rememberProfile(sess *cl.Session, raw map[string]any) bool {
	p, err := decodeInto[game.Profile](raw)
	if err != nil || p.Account.ID == "" {
		return false
	}
	changed := sess.Role != p.Account.Role || (p.Account.Username != "" && sess.Username != p.Account.Username)
	sess.Role = p.Account.Role
	if p.Account.Username != "" {
		sess.Username = p.Account.Username
	}
	return changed
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a forge account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptSecret("Password")
			if err != nil {
				return err
			}
			username, err := promptOptional("Username (optional)")
			if err != nil {
				return err
			}
			code, err := promptOptional("Access code (optional)")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Signup(ctx, email, password, username, code)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `forge login`.")
				return nil
			}
			client := newClient(apiBase)
			sess := cl.NewSession(session, *apiBase, time.Now())
			if username != "" {
				sess.Username = username
			}
			if me, err := client.Me(ctx, sess.AccessToken); err == nil {
				rememberProfile(&sess, me)
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to the forge",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptSecret("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			sess := cl.NewSession(session, *apiBase, time.Now())
			if me, err := client.Me(ctx, sess.AccessToken); err == nil {
				rememberProfile(&sess, me)
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			if sess.Role == game.RoleGM {
				printSuccess("Login successful. GM tools unlocked.")
				return nil
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newMeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show balances and forge record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.Me(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				if rememberProfile(&sess, out) {
					if err := cl.SaveSession(sess); err != nil {
						printWarn(fmt.Sprintf("could not update session: %v", err))
					}
				}
				return renderProfile(out)
			})
		},
	}
}

func newRatesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rates",
		Short: "Show the enhancement rate table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Rates(ctx)
			if err != nil {
				return err
			}
			return renderRates(out)
		},
	}
}

func newWeaponsCmd(apiBase *string) *cobra.Command {
	weapons := &cobra.Command{
		Use:   "weapons",
		Short: "List and forge weapons",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.Weapons(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				return renderWeapons(out)
			})
		},
	}

	var baseName string
	var hiddenFlag bool
	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Forge a new +0 weapon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = strings.TrimSpace(args[0])
			}
			if name == "" {
				var err error
				if name, err = promptRequired("Weapon name"); err != nil {
					return err
				}
			}
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.CreateWeapon(ctx, sess.AccessToken, name, baseName, hiddenFlag)
				if err != nil {
					return err
				}
				return renderWeaponCreated(out)
			})
		},
	}
	create.Flags().StringVar(&baseName, "base", "", "base name, unique per account (defaults to name)")
	create.Flags().BoolVar(&hiddenFlag, "hidden", false, "forge a hidden weapon (GM only)")

	var limit int
	history := &cobra.Command{
		Use:   "history [weapon_id]",
		Short: "Show enhancement attempts for a weapon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := int64FromArgOrPrompt(args, 0, "Weapon ID")
			if err != nil {
				return err
			}
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.WeaponHistory(ctx, sess.AccessToken, id, limit)
				if err != nil {
					return err
				}
				return renderHistory(out, id)
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "max attempts to show")

	weapons.AddCommand(create, history)
	return weapons
}

func newEnhanceCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "enhance [weapon_id]",
		Short: "Attempt one enhancement",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := int64FromArgOrPrompt(args, 0, "Weapon ID")
			if err != nil {
				return err
			}
			// The key is shared with the post-refresh retry.
			idem := uuid.NewString()
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.Enhance(ctx, sess.AccessToken, id, idem)
				if err != nil {
					return err
				}
				return renderEnhance(out)
			})
		},
	}
}

func newSellCmd(apiBase *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "sell [weapon_id]",
		Short: "Sell a weapon for gold",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := int64FromArgOrPrompt(args, 0, "Weapon ID")
			if err != nil {
				return err
			}
			if !yes {
				ok, err := promptConfirm(fmt.Sprintf("Sell weapon %d? This cannot be undone", id))
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Kept it.")
					return nil
				}
			}
			idem := uuid.NewString()
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.Sell(ctx, sess.AccessToken, id, true, idem)
				if err != nil {
					return err
				}
				return renderSell(out)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newConvertCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <from> <to> [amount]",
		Short: "Convert gold to choco or choco to money",
		Long:  "Converts along the gold > choco > money ladder. 120,000 gold buys 1 choco and 120 choco buy 1 money; any remainder stays put.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from := strings.ToLower(strings.TrimSpace(args[0]))
			to := strings.ToLower(strings.TrimSpace(args[1]))
			amount, err := int64FromArgOrPrompt(args, 2, "Amount")
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.Convert(ctx, sess.AccessToken, from, to, amount, idem)
				if err != nil {
					return err
				}
				return renderConvert(out)
			})
		},
	}
}

func newBattleCmd(apiBase *string) *cobra.Command {
	battle := &cobra.Command{
		Use:   "battle [your_weapon_id] [opponent_weapon_id]",
		Short: "Battle another player's weapon for gold",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attacker, err := int64FromArgOrPrompt(args, 0, "Your weapon ID")
			if err != nil {
				return err
			}
			defender, err := int64FromArgOrPrompt(args, 1, "Opponent weapon ID")
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.Battle(ctx, sess.AccessToken, attacker, defender, idem)
				if err != nil {
					return err
				}
				return renderBattle(out, sess.UserID)
			})
		},
	}

	var limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "Show your recent battles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.Battles(ctx, sess.AccessToken, limit)
				if err != nil {
					return err
				}
				return renderBattles(out, sess.UserID)
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "max battles to show")
	battle.AddCommand(history)
	return battle
}

func newCheckInCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin",
		Short: "Claim today's check-in reward",
		RunE: func(cmd *cobra.Command, args []string) error {
			idem := uuid.NewString()
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				out, err := client.CheckIn(ctx, sess.AccessToken, idem)
				if err != nil {
					return err
				}
				return renderCheckIn(out)
			})
		},
	}
}

func newRankingsCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "Battle rating leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Rankings(ctx, limit)
			if err != nil {
				return err
			}
			return renderRankings(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to show")
	return cmd
}

func newTopCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Highest enhancements ever reached",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).TopEnhancements(ctx, limit)
			if err != nil {
				return err
			}
			return renderTop(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "rows to show")
	return cmd
}

func newGMCmd(apiBase *string) *cobra.Command {
	gm := &cobra.Command{
		Use:   "gm",
		Short: "Game master tools",
	}

	var mode string
	var gold, choco, money int64
	adjust := &cobra.Command{
		Use:   "adjust <account_id>",
		Short: "Set or shift balances on one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			pick := func(name string, v int64) *int64 {
				if !flags.Changed(name) {
					return nil
				}
				return &v
			}
			g, c, m := pick("gold", gold), pick("choco", choco), pick("money", money)
			if g == nil && c == nil && m == nil {
				return fmt.Errorf("pass at least one of --gold, --choco, --money")
			}
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				if err := sess.RequireGM(); err != nil {
					return err
				}
				out, err := client.GMAdjust(ctx, sess.AccessToken, args[0], mode, g, c, m)
				if err != nil {
					return err
				}
				return renderBalances(out)
			})
		},
	}
	adjust.Flags().StringVar(&mode, "mode", "set", "set or delta")
	adjust.Flags().Int64Var(&gold, "gold", 0, "gold amount")
	adjust.Flags().Int64Var(&choco, "choco", 0, "choco amount")
	adjust.Flags().Int64Var(&money, "money", 0, "money amount")

	grant := &cobra.Command{
		Use:   "grant <denomination> [amount]",
		Short: "Credit every account",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			denom := strings.ToLower(strings.TrimSpace(args[0]))
			amount, err := int64FromArgOrPrompt(args, 1, "Amount")
			if err != nil {
				return err
			}
			return withSession(cmd, apiBase, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				if err := sess.RequireGM(); err != nil {
					return err
				}
				out, err := client.GMGrant(ctx, sess.AccessToken, denom, amount)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Granted %s %s to %v accounts.", comma(amount), denom, out["accounts"]))
				return nil
			})
		},
	}

	gm.AddCommand(adjust, grant)
	return gm
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(args[idx]), ",", ""), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 1)
}
