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

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/optipod/optipod/internal/datastore"
)

// EnforcerConfig holds the admission webhook's runtime configuration,
// sourced entirely from the environment (no on-disk config file — the
// enforcer runs as a sidecar process with its secrets injected by the
// platform that deploys it).
type EnforcerConfig struct {
	RobustaConfigPath string `mapstructure:"robusta_config_path"`
	RobustaAccountID  string `mapstructure:"robusta_account_id"`

	StoreURL      string `mapstructure:"store_url"`
	StoreAPIKey   string `mapstructure:"store_api_key"`
	StoreEmail    string `mapstructure:"store_email"`
	StorePassword string `mapstructure:"store_password"`

	UpdateThreshold float64 `mapstructure:"update_threshold"`

	ScanReloadInterval        time.Duration `mapstructure:"-"`
	KRRMutationModeDefault    string        `mapstructure:"krr_mutation_mode_default"`
	ReplicaSetCleanupInterval time.Duration `mapstructure:"-"`
	ReplicaSetDeletionWait    time.Duration `mapstructure:"-"`
	ScanAgeThreshold          time.Duration `mapstructure:"-"`

	SSLKeyFile  string `mapstructure:"enforcer_ssl_key_file"`
	SSLCertFile string `mapstructure:"enforcer_ssl_cert_file"`

	Certificate string `mapstructure:"certificate"`
}

// envBindings pairs each mapstructure key with the literal environment
// variable it comes from, matching enforcer_main.py's env_vars module
// field for field.
var envBindings = map[string]string{
	"robusta_config_path":          "ROBUSTA_CONFIG_PATH",
	"robusta_account_id":           "ROBUSTA_ACCOUNT_ID",
	"store_url":                    "STORE_URL",
	"store_api_key":                "STORE_API_KEY",
	"store_email":                  "STORE_EMAIL",
	"store_password":               "STORE_PASSWORD",
	"update_threshold":             "UPDATE_THRESHOLD",
	"scan_reload_interval":         "SCAN_RELOAD_INTERVAL",
	"krr_mutation_mode_default":    "KRR_MUTATION_MODE_DEFAULT",
	"replica_set_cleanup_interval": "REPLICA_SET_CLEANUP_INTERVAL",
	"replica_set_deletion_wait":    "REPLICA_SET_DELETION_WAIT",
	"scan_age_hours_threshold":     "SCAN_AGE_HOURS_THRESHOLD",
	"enforcer_ssl_key_file":        "ENFORCER_SSL_KEY_FILE",
	"enforcer_ssl_cert_file":       "ENFORCER_SSL_CERT_FILE",
	"certificate":                  "CERTIFICATE",
}

// LoadEnforcerConfig reads the webhook's configuration from the process
// environment, applying the same defaults enforcer_main.py's env_vars
// module does.
func LoadEnforcerConfig() (*EnforcerConfig, error) {
	v := viper.New()

	v.SetDefault("robusta_config_path", "/etc/robusta/config/active_playbooks.yaml")
	v.SetDefault("update_threshold", 20.0)
	v.SetDefault("scan_reload_interval", 3600)
	v.SetDefault("krr_mutation_mode_default", "enforce")
	v.SetDefault("replica_set_cleanup_interval", 600)
	v.SetDefault("replica_set_deletion_wait", 600)
	v.SetDefault("scan_age_hours_threshold", 360) // 15 days

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	var cfg EnforcerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling enforcer config: %w", err)
	}
	cfg.ScanAgeThreshold = time.Duration(v.GetInt64("scan_age_hours_threshold")) * time.Hour
	cfg.ScanReloadInterval = time.Duration(v.GetInt64("scan_reload_interval")) * time.Second
	cfg.ReplicaSetCleanupInterval = time.Duration(v.GetInt64("replica_set_cleanup_interval")) * time.Second
	cfg.ReplicaSetDeletionWait = time.Duration(v.GetInt64("replica_set_deletion_wait")) * time.Second
	return &cfg, nil
}

// DatastoreConfig projects the subset of EnforcerConfig the Supabase-style
// REST client needs. RobustaAccountID becomes the account ID and
// clusterName is passed through unchanged, even when it is empty.
func (c *EnforcerConfig) DatastoreConfig(clusterName string) datastore.Config {
	return datastore.Config{
		BaseURL:           c.StoreURL,
		APIKey:            c.StoreAPIKey,
		Email:             c.StoreEmail,
		Password:          c.StorePassword,
		AccountID:         c.RobustaAccountID,
		ClusterName:       clusterName,
		ScanAgeThreshold:  c.ScanAgeThreshold,
	}
}
