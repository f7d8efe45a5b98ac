package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"forge/internal/auth"
	"forge/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	Principal game.Principal
	Email     string
	Token     string
}

type Server struct {
	log        *slog.Logger
	auth       auth.Provider
	codes      auth.AccessCodes
	game       *game.Service
	spectators http.Handler
	mux        *chi.Mux
}

// New wires the HTTP surface. spectators serves the announcement websocket
// and may be nil.
func New(logger *slog.Logger, provider auth.Provider, codes auth.AccessCodes, gameSvc *game.Service, spectators http.Handler) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:        logger,
		auth:       provider,
		codes:      codes,
		game:       gameSvc,
		spectators: spectators,
		mux:        chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		if s.spectators != nil {
			// Long-lived connection, kept outside the request timeout.
			r.Get("/announcements/ws", s.spectators.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Post("/auth/signup", s.handleSignup)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
			r.Get("/rates", s.handleRates)
			r.Get("/rankings", s.handleRankings)
			r.Get("/enhancements/top", s.handleTopEnhancements)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Get("/me", s.handleMe)

				r.Get("/weapons", s.handleWeaponsList)
				r.Post("/weapons", s.handleCreateWeapon)
				r.Get("/weapons/{id}/history", s.handleWeaponHistory)
				r.Post("/weapons/{id}/enhance", s.handleEnhance)
				r.Post("/weapons/{id}/sell", s.handleSell)

				r.Post("/currency/convert", s.handleConvert)
				r.Post("/battles", s.handleBattle)
				r.Get("/battles", s.handleBattleHistory)
				r.Post("/checkin", s.handleCheckIn)

				r.Patch("/gm/accounts/{id}/balances", s.handleGMAdjust)
				r.Post("/gm/grant", s.handleGMGrant)
			})
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		acct, err := s.game.EnsureAccount(r.Context(), game.Principal{
			AccountID: user.ID,
			Username:  user.Metadata.Username,
			Role:      game.RolePlayer,
		}, user.Email)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			Principal: game.Principal{AccountID: acct.ID, Username: acct.Username, Role: acct.Role},
			Email:     user.Email,
			Token:     token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.Principal.AccountID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		Username   string `json:"username"`
		AccessCode string `json:"access_code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := s.codes.Redeem(in.AccessCode)
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	session, err := s.auth.SignUp(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password), strings.TrimSpace(in.Username))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The account is bound here even when the provider holds back tokens
	// until the email is confirmed, so the redeemed role survives first login.
	if session.User.ID == "" {
		writeError(w, http.StatusBadGateway, "signup returned no user id")
		return
	}
	_, err = s.game.EnsureAccount(r.Context(), game.Principal{
		AccountID: session.User.ID,
		Username:  strings.TrimSpace(in.Username),
		Role:      role,
	}, session.User.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	_, err = s.game.EnsureAccount(r.Context(), game.Principal{
		AccountID: session.User.ID,
		Username:  session.User.Metadata.Username,
		Role:      game.RolePlayer,
	}, session.User.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Refresh(r.Context(), strings.TrimSpace(in.RefreshToken))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rates":                game.RateTable(),
		"gold_per_choco":       game.GoldPerChoco,
		"choco_per_money":      game.ChocoPerMoney,
		"max_level":            game.MaxLevel,
		"checkin_base_gold":    game.CheckInBaseGold,
		"checkin_weekly_gold":  game.CheckInWeeklyGold,
		"checkin_monthly_gold": game.CheckInMonthlyGold,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Profile(r.Context(), user.Principal.AccountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// weaponView adds the derived figures a client needs to decide its next move.
type weaponView struct {
	game.Weapon
	DisplayName string          `json:"display_name"`
	SellPrice   int64           `json:"sell_price"`
	Power       int64           `json:"power"`
	Next        *game.RateEntry `json:"next,omitempty"`
}

func viewWeapon(w game.Weapon) weaponView {
	v := weaponView{
		Weapon:      w,
		DisplayName: w.DisplayName(),
		SellPrice:   game.Payout(w.Level, w.Hidden),
		Power:       game.Power(w.Level, w.Hidden),
	}
	if next, err := game.RateFor(w.Level); err == nil {
		v.Next = &next
	}
	return v
}

func (s *Server) handleWeaponsList(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	weapons, err := s.game.Weapons(r.Context(), user.Principal.AccountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]weaponView, 0, len(weapons))
	for _, wp := range weapons {
		out = append(out, viewWeapon(wp))
	}
	writeJSON(w, http.StatusOK, map[string]any{"weapons": out})
}

func (s *Server) handleCreateWeapon(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name     string `json:"name"`
		BaseName string `json:"base_name"`
		Hidden   bool   `json:"hidden"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Hidden && user.Principal.Role != game.RoleGM {
		writeError(w, http.StatusForbidden, "hidden weapons are granted, not forged")
		return
	}
	weapon, err := s.game.CreateWeapon(r.Context(), game.CreateWeaponInput{
		AccountID: user.Principal.AccountID,
		Name:      in.Name,
		BaseName:  in.BaseName,
		Hidden:    in.Hidden,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewWeapon(weapon))
}

func (s *Server) handleWeaponHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	weaponID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid weapon id")
		return
	}
	attempts, err := s.game.WeaponHistory(r.Context(), user.Principal.AccountID, weaponID, queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	weaponID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid weapon id")
		return
	}
	result, err := s.game.Enhance(r.Context(), game.EnhanceInput{
		AccountID:      user.Principal.AccountID,
		WeaponID:       weaponID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":         result.Result,
		"previous_level": result.PreviousLevel,
		"new_level":      result.NewLevel,
		"gold_spent":     result.GoldSpent,
		"gold_remaining": result.GoldRemaining,
		"attempt_id":     result.AttemptID,
		"weapon":         viewWeapon(result.Weapon),
	})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	weaponID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid weapon id")
		return
	}
	var in struct {
		Confirm bool `json:"confirm"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.game.Sell(r.Context(), game.SellInput{
		AccountID:      user.Principal.AccountID,
		WeaponID:       weaponID,
		Confirm:        in.Confirm,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := game.ParseDenomination(in.From)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	to, err := game.ParseDenomination(in.To)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	result, err := s.game.Convert(r.Context(), game.ConvertInput{
		AccountID:      user.Principal.AccountID,
		From:           from,
		To:             to,
		Amount:         in.Amount,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBattle(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		AttackerWeaponID int64 `json:"attacker_weapon_id"`
		DefenderWeaponID int64 `json:"defender_weapon_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.game.Battle(r.Context(), game.BattleInput{
		AccountID:        user.Principal.AccountID,
		AttackerWeaponID: in.AttackerWeaponID,
		DefenderWeaponID: in.DefenderWeaponID,
		IdempotencyKey:   idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBattleHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	battles, err := s.game.BattleHistory(r.Context(), user.Principal.AccountID, queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"battles": battles})
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	result, err := s.game.CheckIn(r.Context(), user.Principal.AccountID, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.game.Rankings(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rankings": rows})
}

func (s *Server) handleTopEnhancements(w http.ResponseWriter, r *http.Request) {
	rows, err := s.game.TopEnhancements(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enhancements": rows})
}

func (s *Server) handleGMAdjust(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Mode  string `json:"mode"`
		Gold  *int64 `json:"gold"`
		Choco *int64 `json:"choco"`
		Money *int64 `json:"money"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balances, err := s.game.AdjustBalances(r.Context(), user.Principal, chi.URLParam(r, "id"), game.AdjustMode(in.Mode), game.BalanceAdjustment{
		Gold:  in.Gold,
		Choco: in.Choco,
		Money: in.Money,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (s *Server) handleGMGrant(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Denomination string `json:"denomination"`
		Amount       int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := game.ParseDenomination(in.Denomination)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	n, err := s.game.GrantAll(r.Context(), user.Principal, d, in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": n})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch game.KindOf(err) {
	case game.KindValidation, game.KindInsufficientFunds:
		writeError(w, http.StatusBadRequest, err.Error())
	case game.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case game.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	case game.KindForbidden:
		writeError(w, http.StatusForbidden, err.Error())
	default:
		// Invariant and storage failures are logged by the service; keep details server-side.
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
