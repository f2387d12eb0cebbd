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

// Package certstore installs an additional trusted CA certificate, read
// from the CERTIFICATE environment variable, into http.DefaultTransport's
// TLS configuration before any other package constructs an HTTP client.
// It must be imported and invoked ahead of every other init path: a
// client built against the stock system pool before InstallFromEnv runs
// will never see the custom CA.
package certstore

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
)

// CertificateEnvVar is the name of the environment variable carrying a
// base64-encoded PEM certificate to trust in addition to the system pool.
const CertificateEnvVar = "CERTIFICATE"

// InstallFromEnv reads CertificateEnvVar and, if set, appends its
// decoded PEM certificate to a pool seeded from the system's trust store,
// then points http.DefaultTransport at that pool. It is a no-op (returns
// false, nil) when the variable is unset or empty.
func InstallFromEnv(lookupEnv func(string) (string, bool)) (bool, error) {
	encoded, ok := lookupEnv(CertificateEnvVar)
	if !ok || encoded == "" {
		return false, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false, fmt.Errorf("decoding %s: %w", CertificateEnvVar, err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(decoded) {
		return false, fmt.Errorf("%s did not contain a valid PEM certificate", CertificateEnvVar)
	}

	transport := &http.Transport{}
	if existing, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = existing.Clone()
	}
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	}
	transport.TLSClientConfig.RootCAs = pool
	http.DefaultTransport = transport

	return true, nil
}
