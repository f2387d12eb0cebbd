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

// Package awsamp signs outbound Prometheus-API requests for Amazon Managed
// Service for Prometheus using AWS SigV4, which AMP requires on every query
// in place of bearer-token auth.
package awsamp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// service is the SigV4 service name AMP requests must be signed under.
const service = "aps"

// RoundTripper signs every outbound request with SigV4 before delegating to
// an inner transport, so it can be installed as an http.Client's Transport
// and composed transparently with the generic metricsquery.Client.
type RoundTripper struct {
	Region string
	Next   http.RoundTripper

	credsCache aws.CredentialsProvider
}

// NewRoundTripper loads the default AWS credential chain (env vars,
// shared config, IRSA/instance role) for the given region.
func NewRoundTripper(ctx context.Context, region string) (*RoundTripper, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &RoundTripper{Region: region, Next: http.DefaultTransport, credsCache: cfg.Credentials}, nil
}

// RoundTrip signs req in place (AMP requires the body hash to be part of
// the signature, so the body is buffered and restored) and delegates to
// the inner transport.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	creds, err := rt.credsCache.Retrieve(req.Context())
	if err != nil {
		return nil, err
	}

	signer := v4.NewSigner()
	hash := sha256Hex(bodyBytes)
	if err := signer.SignHTTP(req.Context(), creds, req, hash, service, rt.Region, time.Now()); err != nil {
		return nil, err
	}

	next := rt.Next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}
