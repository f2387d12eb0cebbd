/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package datastore is the recommendation store's concrete Loader: a
// PostgREST-compatible client (password auth + table queries) backing
// the platform's hosted scan history, re-authenticating automatically
// when its session token expires.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/optipod/optipod/internal/recostore"
)

const (
	scansMetaTable    = "ScansMeta"
	scansResultsTable = "ScansResults"
)

// AuthExpiredError signals that the session token was rejected as
// expired by the store and a sign-in retry is warranted.
type AuthExpiredError struct {
	Err error
}

func (e *AuthExpiredError) Error() string { return fmt.Sprintf("session token expired: %v", e.Err) }
func (e *AuthExpiredError) Unwrap() error { return e.Err }

// Config carries the credentials and addressing needed to reach the
// store, resolved either from a Robusta UI token envelope or from the
// individual STORE_* environment variables.
type Config struct {
	BaseURL     string
	APIKey      string
	Email       string
	Password    string
	AccountID   string
	ClusterName string

	// ScanAgeThreshold bounds how stale a "latest" scan may be before it
	// is treated as no fresher data being available at all.
	ScanAgeThreshold time.Duration
}

// Enabled reports whether enough configuration was supplied to connect
// at all (mirrors the reference DAL's __init_config "all required
// fields present" gate).
func (c Config) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != "" && c.Email != "" && c.Password != "" && c.AccountID != ""
}

// Client is a recostore.Loader backed by a PostgREST store over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	refreshTok  string
}

// NewClient builds a Client. It does not sign in eagerly; the first
// LatestScan call triggers authentication.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type scanMetaRow struct {
	ScanID    string `json:"scan_id"`
	ScanStart string `json:"scan_start"`
	Latest    bool   `json:"latest"`
}

type scanResultRow struct {
	Namespace string                             `json:"namespace"`
	Name      string                              `json:"name"`
	Kind      string                              `json:"kind"`
	Container string                              `json:"container"`
	Content   []recostore.RawResourceRecommendation `json:"content"`
}

// LatestScan implements recostore.Loader: it signs in if needed, finds
// the cluster's latest scan, and returns its rows, or ("", nil, nil) if
// currentScanID is already current, too old, or the store isn't enabled.
func (c *Client) LatestScan(ctx context.Context, currentScanID string) (string, []recostore.RawScanResult, error) {
	if !c.cfg.Enabled() {
		return "", nil, nil
	}

	if err := c.ensureSignedIn(ctx); err != nil {
		return "", nil, err
	}

	meta, err := c.fetchLatestMeta(ctx)
	if err != nil {
		if isAuthExpired(err) {
			if signErr := c.signIn(ctx); signErr != nil {
				return "", nil, signErr
			}
			meta, err = c.fetchLatestMeta(ctx)
		}
		if err != nil {
			return "", nil, err
		}
	}
	if meta == nil {
		return "", nil, nil
	}
	if meta.ScanID == currentScanID {
		return "", nil, nil
	}

	scanStart, err := time.Parse(time.RFC3339, meta.ScanStart)
	if err == nil && c.cfg.ScanAgeThreshold > 0 && time.Since(scanStart) > c.cfg.ScanAgeThreshold {
		return "", nil, nil
	}

	rows, err := c.fetchResults(ctx, meta.ScanID)
	if err != nil {
		return "", nil, err
	}
	if len(rows) == 0 {
		return "", nil, nil
	}

	out := make([]recostore.RawScanResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, recostore.RawScanResult{
			Namespace: row.Namespace,
			Name:      row.Name,
			Kind:      row.Kind,
			Container: row.Container,
			Content:   row.Content,
		})
	}
	return meta.ScanID, out, nil
}

func (c *Client) fetchLatestMeta(ctx context.Context) (*scanMetaRow, error) {
	params := url.Values{
		"account_id": []string{"eq." + c.cfg.AccountID},
		"cluster_id": []string{"eq." + c.cfg.ClusterName},
		"latest":     []string{"eq.true"},
		"select":     []string{"*"},
	}
	var rows []scanMetaRow
	if err := c.query(ctx, scansMetaTable, params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	latest := rows[0]
	for _, r := range rows[1:] {
		if r.ScanStart > latest.ScanStart {
			latest = r
		}
	}
	return &latest, nil
}

func (c *Client) fetchResults(ctx context.Context, scanID string) ([]scanResultRow, error) {
	params := url.Values{
		"account_id": []string{"eq." + c.cfg.AccountID},
		"cluster_id": []string{"eq." + c.cfg.ClusterName},
		"scan_id":    []string{"eq." + scanID},
		"select":     []string{"*"},
	}
	var rows []scanResultRow
	if err := c.query(ctx, scansResultsTable, params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) query(ctx context.Context, table string, params url.Values, out interface{}) error {
	reqURL := fmt.Sprintf("%s/rest/v1/%s?%s", c.cfg.BaseURL, table, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthExpiredError{Err: fmt.Errorf("store returned %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("store query to %s failed with %d: %s", table, resp.StatusCode, body)
	}

	return json.Unmarshal(body, out)
}

func isAuthExpired(err error) bool {
	var expired *AuthExpiredError
	return err != nil && asAuthExpired(err, &expired)
}

func asAuthExpired(err error, target **AuthExpiredError) bool {
	for err != nil {
		if e, ok := err.(*AuthExpiredError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (c *Client) setAuthHeaders(req *http.Request) {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+token)
}

// ensureSignedIn signs in once and thereafter only re-authenticates when
// the cached access token's exp claim has passed, avoiding a sign-in
// round trip on every poll.
func (c *Client) ensureSignedIn(ctx context.Context) error {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token != "" && !tokenExpired(token) {
		return nil
	}
	return c.signIn(ctx)
}

func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return time.Now().After(exp.Time)
}

type signInResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) signIn(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	})
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/auth/v1/token?grant_type=password", c.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signing in to store: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("store sign-in failed with %d: %s", resp.StatusCode, respBody)
	}

	var sess signInResponse
	if err := json.Unmarshal(respBody, &sess); err != nil {
		return fmt.Errorf("decoding sign-in response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = sess.AccessToken
	c.refreshTok = sess.RefreshToken
	c.mu.Unlock()
	return nil
}
