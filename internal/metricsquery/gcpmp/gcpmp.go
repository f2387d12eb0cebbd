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

// Package gcpmp adapts metric queries for Google Cloud Managed Service for
// Prometheus (and its Anthos variant): metric names carry a
// "prometheus.googleapis.com/" prefix and a trailing type suffix, and
// cross-cluster queries must pin the cluster label explicitly since a GMP
// instance can serve more than one cluster's series.
package gcpmp

import (
	"fmt"

	"github.com/optipod/optipod/internal/metricsquery"
)

// metricName renders the GMP-prefixed series name for a counter series,
// e.g. "prometheus.googleapis.com/container_cpu_usage_seconds_total/counter".
func metricName(base, kind string) string {
	return fmt.Sprintf("prometheus.googleapis.com/%s/%s", base, kind)
}

// clusterLabelSelector returns the cluster pin fragment to append inside a
// label matcher list when the caller configured a cluster label/value pair,
// or empty when querying a single-cluster GMP instance.
func clusterLabelSelector(p metricsquery.QueryParams) string {
	if p.ClusterLabel == "" {
		return ""
	}
	return fmt.Sprintf(`,%s="%s"`, p.ClusterLabel, p.ClusterLabelValue)
}

// CPULoader is the GMP dialect of metricsquery.CPULoader: same shape, GMP
// series name and optional cluster pin.
var CPULoader = dialectMetric{
	name: "CPULoader",
	kind: metricsquery.Range,
	build: func(p metricsquery.QueryParams) string {
		return fmt.Sprintf(
			`sum(irate(%s{namespace="%s",pod=~"%s",container="%s"%s}[5m])) by (container,pod,job)`,
			metricName("container_cpu_usage_seconds_total", "counter"),
			p.Namespace, p.PodRegex, p.Container, clusterLabelSelector(p),
		)
	},
}

// MaxMemoryLoader is the GMP dialect of metricsquery.MaxMemoryLoader.
var MaxMemoryLoader = dialectMetric{
	name: "MaxMemoryLoader",
	kind: metricsquery.Instant,
	build: func(p metricsquery.QueryParams) string {
		return fmt.Sprintf(
			`max_over_time(%s{namespace="%s",pod=~"%s",container="%s"%s}[%s:%s])`,
			metricName("container_memory_working_set_bytes", "gauge"),
			p.Namespace, p.PodRegex, p.Container, clusterLabelSelector(p),
			metricsquery.FormatDuration(p.Duration), metricsquery.FormatDuration(p.Step),
		)
	},
}

type dialectMetric struct {
	name  string
	kind  metricsquery.QueryKind
	build func(p metricsquery.QueryParams) string
}

func (m dialectMetric) Name() string                                      { return m.name }
func (m dialectMetric) Kind() metricsquery.QueryKind                      { return m.kind }
func (m dialectMetric) BuildQuery(p metricsquery.QueryParams) string { return m.build(p) }
