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

// Package azuremp refreshes Azure AD bearer tokens for Azure Monitor
// managed Prometheus, implementing metricsquery.AuthRoundTripper. The
// generic Client calls RefreshToken on a 401 but does not pass the new
// token to Transport; only SetToken changes the header Transport sends.
package azuremp

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// scope is the Azure Monitor query endpoint's required OAuth2 scope.
const scope = "https://prometheus.monitor.azure.com/.default"

// TokenSource refreshes an Azure AD client-credentials token on demand and
// caches it in the underlying oauth2.TokenSource until it is close to
// expiry, at which point RefreshToken forces a new one.
type TokenSource struct {
	cfg clientcredentials.Config

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewTokenSource builds a client-secret token source for the given Azure AD
// tenant/client/secret, matching the "Azure client-secret" dialect named in
// the metric-query design.
func NewTokenSource(tenantID, clientID, clientSecret string) *TokenSource {
	return &TokenSource{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
			Scopes:       []string{scope},
		},
	}
}

// RefreshToken implements metricsquery.AuthRoundTripper: it discards any
// cached token and fetches a fresh one, returning the bearer string to
// install on the next retried request.
func (t *TokenSource) RefreshToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.source = t.cfg.TokenSource(ctx)
	tok, err := t.source.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Transport installs the current bearer token on every outbound request.
// The token changes only through SetToken; nothing in this package calls
// SetToken after RefreshToken.
type Transport struct {
	Source *TokenSource
	Next   http.RoundTripper

	mu    sync.RWMutex
	token string
}

// SetToken updates the bearer token Transport attaches to requests; called
// after a successful RefreshToken.
func (tr *Transport) SetToken(token string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.token = token
}

func (tr *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tr.mu.RLock()
	token := tr.token
	tr.mu.RUnlock()

	req = req.Clone(req.Context())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	next := tr.Next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}
