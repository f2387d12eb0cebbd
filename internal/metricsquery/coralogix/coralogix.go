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

// Package coralogix injects the static "token " bearer header Coralogix's
// PromQL endpoint requires on every request. Unlike awsamp/azuremp there is
// no refresh dance: the API key is long-lived, so this dialect does not
// implement metricsquery.AuthRoundTripper.
package coralogix

import "net/http"

// Transport attaches a Coralogix API key to every outbound request.
type Transport struct {
	APIKey string
	Next   http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("token", t.APIKey)

	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}
