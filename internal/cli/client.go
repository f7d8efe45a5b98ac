package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"forge/internal/auth"
)

// APIError is a non-2xx response from the forge API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password, username, accessCode string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":       email,
		"password":    password,
		"username":    username,
		"access_code": accessCode,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refresh_token": refreshToken,
	}, &out, "")
	return out, err
}

func (c *Client) Me(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Rates(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/rates", "", nil, &out, "")
	return out, err
}

func (c *Client) Weapons(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/weapons", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) CreateWeapon(ctx context.Context, accessToken, name, baseName string, hidden bool) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/weapons", accessToken, map[string]any{
		"name":      name,
		"base_name": baseName,
		"hidden":    hidden,
	}, &out, "")
	return out, err
}

func (c *Client) WeaponHistory(ctx context.Context, accessToken string, weaponID int64, limit int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, weaponPath(weaponID, "history")+limitQuery(limit), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Enhance(ctx context.Context, accessToken string, weaponID int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, weaponPath(weaponID, "enhance"), accessToken, nil, &out, idem)
	return out, err
}

func (c *Client) Sell(ctx context.Context, accessToken string, weaponID int64, confirm bool, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, weaponPath(weaponID, "sell"), accessToken, map[string]any{
		"confirm": confirm,
	}, &out, idem)
	return out, err
}

func (c *Client) Convert(ctx context.Context, accessToken, from, to string, amount int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/currency/convert", accessToken, map[string]any{
		"from":   from,
		"to":     to,
		"amount": amount,
	}, &out, idem)
	return out, err
}

func (c *Client) Battle(ctx context.Context, accessToken string, attackerWeaponID, defenderWeaponID int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/battles", accessToken, map[string]any{
		"attacker_weapon_id": attackerWeaponID,
		"defender_weapon_id": defenderWeaponID,
	}, &out, idem)
	return out, err
}

func (c *Client) Battles(ctx context.Context, accessToken string, limit int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/battles"+limitQuery(limit), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) CheckIn(ctx context.Context, accessToken, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/checkin", accessToken, nil, &out, idem)
	return out, err
}

func (c *Client) Rankings(ctx context.Context, limit int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/rankings"+limitQuery(limit), "", nil, &out, "")
	return out, err
}

func (c *Client) TopEnhancements(ctx context.Context, limit int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/enhancements/top"+limitQuery(limit), "", nil, &out, "")
	return out, err
}

// GMAdjust sets or shifts balances on one account. Nil amounts are left alone.
func (c *Client) GMAdjust(ctx context.Context, accessToken, accountID, mode string, gold, choco, money *int64) (map[string]any, error) {
	body := map[string]any{"mode": mode}
	if gold != nil {
		body["gold"] = *gold
	}
	if choco != nil {
		body["choco"] = *choco
	}
	if money != nil {
		body["money"] = *money
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPatch, "/v1/gm/accounts/"+url.PathEscape(accountID)+"/balances", accessToken, body, &out, "")
	return out, err
}

func (c *Client) GMGrant(ctx context.Context, accessToken, denomination string, amount int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/gm/grant", accessToken, map[string]any{
		"denomination": denomination,
		"amount":       amount,
	}, &out, "")
	return out, err
}

func weaponPath(weaponID int64, action string) string {
	return "/v1/weapons/" + strconv.FormatInt(weaponID, 10) + "/" + action
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
