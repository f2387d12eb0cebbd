package datastore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestDecodeToken(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{
		"account_id": "acct-1",
		"store_url":  "https://store.example.com",
		"api_key":    "key-1",
		"email":      "bot@example.com",
		"password":   "secret",
	})
	encoded := base64.StdEncoding.EncodeToString(payload)

	cfg, err := DecodeToken(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AccountID != "acct-1" || cfg.BaseURL != "https://store.example.com" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestDecodeTokenRejectsInvalidBase64(t *testing.T) {
	if _, err := DecodeToken("not base64!!"); err == nil {
		t.Fatal("expected an error for invalid base64")
	}
}

func TestResolveTemplatedSecretSubstitutes(t *testing.T) {
	resolved, err := ResolveTemplatedSecret("{{ env.UI_SINK_TOKEN }}", func(name string) (string, bool) {
		if name == "UI_SINK_TOKEN" {
			return "resolved-value", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != "resolved-value" {
		t.Fatalf("expected substitution, got %q", resolved)
	}
}

func TestResolveTemplatedSecretErrorsWhenEnvMissing(t *testing.T) {
	_, err := ResolveTemplatedSecret("{{ env.MISSING }}", func(string) (string, bool) { return "", false })
	if err == nil {
		t.Fatal("expected an error when the referenced env var is unset")
	}
}

func signedTestToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestTokenExpired(t *testing.T) {
	expired := signedTestToken(t, time.Now().Add(-time.Hour))
	if !tokenExpired(expired) {
		t.Fatal("expected an already-expired token to be reported expired")
	}

	valid := signedTestToken(t, time.Now().Add(time.Hour))
	if tokenExpired(valid) {
		t.Fatal("expected a not-yet-expired token to be reported valid")
	}
}

func TestLatestScanSignsInThenFetchesRows(t *testing.T) {
	signInCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		signInCalls++
		_ = json.NewEncoder(w).Encode(signInResponse{AccessToken: signedTestToken(t, time.Now().Add(time.Hour)), RefreshToken: "r1"})
	})
	mux.HandleFunc("/rest/v1/ScansMeta", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]scanMetaRow{
			{ScanID: "scan-42", ScanStart: time.Now().UTC().Format(time.RFC3339), Latest: true},
		})
	})
	mux.HandleFunc("/rest/v1/ScansResults", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]scanResultRow{
			{Namespace: "default", Name: "web", Kind: "Deployment", Container: "app"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:          srv.URL,
		APIKey:           "key",
		Email:            "bot@example.com",
		Password:         "secret",
		AccountID:        "acct-1",
		ClusterName:      "cluster-1",
		ScanAgeThreshold: time.Hour,
	}, srv.Client())

	scanID, rows, err := client.LatestScan(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scanID != "scan-42" {
		t.Fatalf("expected scan-42, got %q", scanID)
	}
	if len(rows) != 1 || rows[0].Name != "web" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if signInCalls != 1 {
		t.Fatalf("expected exactly one sign-in call, got %d", signInCalls)
	}
}

func TestLatestScanReturnsNoopWhenScanIDUnchanged(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(signInResponse{AccessToken: signedTestToken(t, time.Now().Add(time.Hour))})
	})
	mux.HandleFunc("/rest/v1/ScansMeta", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]scanMetaRow{
			{ScanID: "scan-42", ScanStart: time.Now().UTC().Format(time.RFC3339), Latest: true},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(Config{
		BaseURL: srv.URL, APIKey: "key", Email: "bot@example.com", Password: "secret",
		AccountID: "acct-1", ClusterName: "cluster-1", ScanAgeThreshold: time.Hour,
	}, srv.Client())

	scanID, rows, err := client.LatestScan(context.Background(), "scan-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scanID != "" || rows != nil {
		t.Fatalf("expected a no-op result for an unchanged scan id, got (%q, %+v)", scanID, rows)
	}
}
