package config

import (
	"testing"
	"time"
)

func TestLoadEnforcerConfigDefaults(t *testing.T) {
	t.Setenv("STORE_URL", "")
	cfg, err := LoadEnforcerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KRRMutationModeDefault != "enforce" {
		t.Fatalf("expected default mutation mode 'enforce', got %q", cfg.KRRMutationModeDefault)
	}
	if cfg.ScanAgeThreshold != 360*time.Hour {
		t.Fatalf("expected default scan age threshold of 360h, got %s", cfg.ScanAgeThreshold)
	}
	if cfg.RobustaConfigPath != "/etc/robusta/config/active_playbooks.yaml" {
		t.Fatalf("unexpected default config path: %s", cfg.RobustaConfigPath)
	}
}

func TestLoadEnforcerConfigReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_URL", "https://example.supabase.co")
	t.Setenv("STORE_API_KEY", "test-key")
	t.Setenv("KRR_MUTATION_MODE_DEFAULT", "ignore")
	t.Setenv("SCAN_AGE_HOURS_THRESHOLD", "48")

	cfg, err := LoadEnforcerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreURL != "https://example.supabase.co" {
		t.Fatalf("unexpected store URL: %s", cfg.StoreURL)
	}
	if cfg.StoreAPIKey != "test-key" {
		t.Fatalf("unexpected store API key: %s", cfg.StoreAPIKey)
	}
	if cfg.KRRMutationModeDefault != "ignore" {
		t.Fatalf("unexpected mutation mode: %s", cfg.KRRMutationModeDefault)
	}
	if cfg.ScanAgeThreshold != 48*time.Hour {
		t.Fatalf("expected 48h scan age threshold, got %s", cfg.ScanAgeThreshold)
	}
}

func TestDatastoreConfigProjection(t *testing.T) {
	t.Setenv("STORE_URL", "https://example.supabase.co")
	t.Setenv("STORE_API_KEY", "test-key")
	t.Setenv("ROBUSTA_ACCOUNT_ID", "account-1")

	cfg, err := LoadEnforcerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dsCfg := cfg.DatastoreConfig("my-cluster")
	if dsCfg.BaseURL != "https://example.supabase.co" || dsCfg.APIKey != "test-key" {
		t.Fatalf("unexpected datastore config: %+v", dsCfg)
	}
	if dsCfg.AccountID != "account-1" || dsCfg.ClusterName != "my-cluster" {
		t.Fatalf("unexpected account/cluster projection: %+v", dsCfg)
	}
}
