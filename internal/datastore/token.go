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

package datastore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// platformToken is the base64+JSON envelope handed out by the platform
// UI, bundling the store address and credentials behind one opaque
// string so operators don't have to copy five separate secrets.
type platformToken struct {
	AccountID string `json:"account_id"`
	StoreURL  string `json:"store_url"`
	APIKey    string `json:"api_key"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// DecodeToken parses a base64-encoded JSON platform token into a Config,
// leaving ClusterName and ScanAgeThreshold for the caller to fill in
// (the token envelope carries account/store credentials only).
func DecodeToken(encoded string) (Config, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Config{}, fmt.Errorf("token is not valid base64: %w", err)
	}
	var tok platformToken
	if err := json.Unmarshal(decoded, &tok); err != nil {
		return Config{}, fmt.Errorf("token payload is not valid JSON: %w", err)
	}
	return Config{
		AccountID: tok.AccountID,
		BaseURL:   tok.StoreURL,
		APIKey:    tok.APIKey,
		Email:     tok.Email,
		Password:  tok.Password,
	}, nil
}

// ResolveTemplatedSecret substitutes a "{{ env.NAME }}" placeholder
// within token with the named environment variable's value, matching
// the reference config's inline secret-templating convention. It
// returns an error if the value still looks like an unresolved
// placeholder afterward.
func ResolveTemplatedSecret(token string, lookupEnv func(string) (string, bool)) (string, error) {
	if !strings.Contains(token, "{{") {
		return token, nil
	}
	start := strings.Index(token, "{{")
	end := strings.Index(token, "}}")
	if end < start {
		return "", fmt.Errorf("malformed templating placeholder in token")
	}
	inner := strings.TrimSpace(token[start+2 : end])
	name := strings.TrimSpace(strings.TrimPrefix(inner, "env."))
	val, ok := lookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %q referenced by token placeholder is not set", name)
	}
	resolved := token[:start] + val + token[end+2:]
	if strings.Contains(resolved, "{{") {
		return "", fmt.Errorf("token still contains an unresolved templating placeholder")
	}
	return resolved, nil
}
