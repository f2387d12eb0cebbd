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

// Package metricsquery builds and executes PromQL queries against a
// Prometheus-compatible backend. A Metric is modelled as data — a name, a
// query-template function, an instant/range kind, and a result parser —
// rather than a subclass hierarchy, so vendor dialects (GCP Managed
// Prometheus, Anthos, AWS Managed Prometheus, Victoria Metrics, Thanos,
// Mimir, Coralogix, Azure) register additional Metric values instead of
// additional types.
package metricsquery

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	commonmodel "github.com/prometheus/common/model"

	"github.com/optipod/optipod/internal/model"
)

// QueryKind distinguishes an instant query (one point per series) from a
// range query (a matrix of points per series).
type QueryKind int

const (
	Instant QueryKind = iota
	Range
)

// QueryParams parameterizes a Metric's template.
type QueryParams struct {
	Namespace          string
	PodRegex           string
	Container          string
	ClusterLabel       string
	ClusterLabelValue  string
	Duration           time.Duration
	Step               time.Duration
}

// Metric describes one metric family: how to build its PromQL and how to
// read back the result. Vendor dialects satisfy this same interface with
// different BuildQuery/Kind implementations; the strategy engine and
// workload discovery never care which dialect produced a Metric.
type Metric interface {
	Name() string
	Kind() QueryKind
	BuildQuery(p QueryParams) string
}

// AuthRoundTripper is implemented by vendor dialects that can fetch a new
// bearer token (Azure client-secret). Client.Query calls RefreshToken once
// on a 401 but does not use the returned token; installing it on outgoing
// requests is left to the transport the Client was built with.
type AuthRoundTripper interface {
	RefreshToken(ctx context.Context) (string, error)
}

// Client executes Metric queries against one Prometheus-API-compatible
// endpoint with retry+jitter and duplicate-series filtering.
type Client struct {
	api        v1.API
	httpClient *http.Client
	auth       AuthRoundTripper
	maxRetries uint64
}

// NewClient builds a Client talking to address using httpClient as the
// transport (already configured for the target vendor's auth headers /
// SigV4 signing / mTLS as appropriate).
func NewClient(address string, httpClient *http.Client, auth AuthRoundTripper) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg := api.Config{Address: address, Client: httpClient}
	cl, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}
	return &Client{api: v1.NewAPI(cl), httpClient: httpClient, auth: auth, maxRetries: 5}, nil
}

// formatDuration renders a duration the way PromQL range selectors expect:
// the coarsest unit (s/m/h/d) that divides evenly, matching the teacher's
// prometheus.go helper generalized to days.
func formatDuration(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	days := hours / 24
	return fmt.Sprintf("%dd", days)
}

// FormatDuration exposes formatDuration for query-template builders in
// sibling files (metrics.go, vendor dialect files) within this package's
// public surface so tests can assert on generated PromQL text.
func FormatDuration(d time.Duration) string { return formatDuration(d) }

// Query executes m against params, retrying transient failures up to 5
// times with 2-10s jitter. On the first HTTP 401 it calls the client's
// AuthRoundTripper (if any) to refresh the token and retries; the
// refreshed token is discarded, so the retried request carries whatever
// header the HTTP transport sets.
func (c *Client) Query(ctx context.Context, m Metric, params QueryParams, at time.Time) (model.MetricFamily, error) {
	query := m.BuildQuery(params)

	var result commonmodel.Value
	reauthed := false

	op := func() error {
		var err error
		switch m.Kind() {
		case Range:
			result, _, err = c.api.QueryRange(ctx, query, v1.Range{
				Start: at.Add(-params.Duration),
				End:   at,
				Step:  params.Step,
			})
		default:
			result, _, err = c.api.Query(ctx, query, at)
		}
		if err != nil && c.auth != nil && !reauthed && isUnauthorized(err) {
			reauthed = true
			if _, tokErr := c.auth.RefreshToken(ctx); tokErr == nil {
				return err // retry once now that the token has been refreshed
			}
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 10 * time.Second
	boCtx := backoff.WithMaxRetries(bo, c.maxRetries)

	if err := backoff.Retry(op, boCtx); err != nil {
		return model.MetricFamily{}, fmt.Errorf("querying %s: %w", m.Name(), err)
	}

	return parseResult(m.Name(), result), nil
}

// InstantSample is one label-set/value pair from a raw instant query,
// independent of any registered Metric — the shape promsource's
// kube-state-metrics discovery queries need, since they group and count
// series rather than reading a single named metric's value.
type InstantSample struct {
	Labels map[string]string
	Value  float64
}

// QueryInstant runs an arbitrary PromQL instant query and returns its
// vector as label/value pairs, bypassing the Metric abstraction for
// callers (like promsource) that build ad hoc aggregation queries rather
// than reusing a registered Metric's BuildQuery.
func (c *Client) QueryInstant(ctx context.Context, query string) ([]InstantSample, error) {
	result, _, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("querying %q: %w", query, err)
	}
	vector, ok := result.(commonmodel.Vector)
	if !ok {
		return nil, fmt.Errorf("query %q did not return an instant vector", query)
	}

	out := make([]InstantSample, 0, len(vector))
	for _, sample := range vector {
		labels := make(map[string]string, len(sample.Metric))
		for k, v := range sample.Metric {
			labels[string(k)] = string(v)
		}
		out = append(out, InstantSample{Labels: labels, Value: float64(sample.Value)})
	}
	return out, nil
}

func isUnauthorized(err error) bool {
	// The client_golang v1.API wraps the HTTP status in its error text;
	// a production deployment wires a typed check against the vendor's
	// actual error shape here.
	return err != nil && (containsStatus(err.Error(), "401") || containsStatus(err.Error(), "Unauthorized"))
}

func containsStatus(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func parseResult(metricName string, value commonmodel.Value) model.MetricFamily {
	fam := model.MetricFamily{}

	switch v := value.(type) {
	case commonmodel.Matrix:
		for _, series := range dedupeSeries(v) {
			s := model.MetricSeries{Pod: string(series.Metric["pod"])}
			for _, sample := range series.Values {
				s.Points = append(s.Points, model.MetricPoint{
					TimestampSeconds: float64(sample.Timestamp.Unix()),
					Value:            float64(sample.Value),
				})
			}
			fam.Series = append(fam.Series, s)
		}
	case commonmodel.Vector:
		type keyed = struct {
			pod string
			job string
			v   commonmodel.Sample
		}
		byPod := map[string][]keyed{}
		for _, sample := range v {
			pod := string(sample.Metric["pod"])
			byPod[pod] = append(byPod[pod], keyed{pod: pod, job: string(sample.Metric["job"]), v: *sample})
		}
		pods := make([]string, 0, len(byPod))
		for p := range byPod {
			pods = append(pods, p)
		}
		sort.Strings(pods)
		for _, pod := range pods {
			chosen := pickPreferredJob(byPod[pod])
			fam.Series = append(fam.Series, model.MetricSeries{
				Pod: pod,
				Points: []model.MetricPoint{{
					TimestampSeconds: float64(chosen.v.Timestamp.Unix()),
					Value:            float64(chosen.v.Value),
				}},
			})
		}
	}

	_ = metricName
	return fam
}

// dedupeSeries applies the "prefer job=kubelet, else lexicographically
// first job" rule when multiple series share a pod label (e.g. both
// kubelet and cadvisor jobs expose the same container metric).
func dedupeSeries(matrix commonmodel.Matrix) commonmodel.Matrix {
	type keyed struct {
		pod    string
		job    string
		series *commonmodel.SampleStream
	}
	byPod := map[string][]keyed{}
	var order []string
	for _, series := range matrix {
		pod := string(series.Metric["pod"])
		if _, seen := byPod[pod]; !seen {
			order = append(order, pod)
		}
		byPod[pod] = append(byPod[pod], keyed{pod: pod, job: string(series.Metric["job"]), series: series})
	}

	out := make(commonmodel.Matrix, 0, len(order))
	for _, pod := range order {
		candidates := byPod[pod]
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.job == "kubelet" {
				best = c
				break
			}
			if best.job != "kubelet" && c.job < best.job {
				best = c
			}
		}
		out = append(out, best.series)
	}
	return out
}

func pickPreferredJob(candidates []struct {
	pod string
	job string
	v   commonmodel.Sample
}) struct {
	pod string
	job string
	v   commonmodel.Sample
} {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.job == "kubelet" {
			return c
		}
		if best.job != "kubelet" && c.job < best.job {
			best = c
		}
	}
	return best
}
