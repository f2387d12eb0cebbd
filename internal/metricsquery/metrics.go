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

package metricsquery

import "fmt"

// templateMetric is the common implementation backing every built-in
// metric family: a name and a closure that renders PromQL from
// QueryParams. Vendor dialects construct their own templateMetric values
// with different query text instead of subclassing.
type templateMetric struct {
	name  string
	kind  QueryKind
	build func(p QueryParams) string
}

func (m templateMetric) Name() string            { return m.name }
func (m templateMetric) Kind() QueryKind          { return m.kind }
func (m templateMetric) BuildQuery(p QueryParams) string { return m.build(p) }

// CPULoader is the per-step CPU usage rate, summed across containers by
// (container, pod, job) — the base series every other CPU metric builds on.
var CPULoader = templateMetric{
	name: "CPULoader",
	kind: Range,
	build: func(p QueryParams) string {
		return fmt.Sprintf(
			`sum(irate(container_cpu_usage_seconds_total{namespace="%s",pod=~"%s",container="%s"}[5m])) by (container,pod,job)`,
			p.Namespace, p.PodRegex, p.Container,
		)
	},
}

// PercentileCPULoader returns the CPU-at-percentile-p metric for the given
// percentile (0-100), evaluated over the declared history window at the
// declared step.
func PercentileCPULoader(percentile float64) Metric {
	return templateMetric{
		name: "PercentileCPULoader",
		kind: Instant,
		build: func(p QueryParams) string {
			return fmt.Sprintf(
				`quantile_over_time(%g, (sum(irate(container_cpu_usage_seconds_total{namespace="%s",pod=~"%s",container="%s"}[5m])) by (container,pod,job))[%s:%s])`,
				percentile/100, p.Namespace, p.PodRegex, p.Container, FormatDuration(p.Duration), FormatDuration(p.Step),
			)
		},
	}
}

// MaxMemoryLoader is the peak container_memory_working_set_bytes value
// over the history window.
var MaxMemoryLoader = templateMetric{
	name: "MaxMemoryLoader",
	kind: Instant,
	build: func(p QueryParams) string {
		return fmt.Sprintf(
			`max_over_time(container_memory_working_set_bytes{namespace="%s",pod=~"%s",container="%s"}[%s:%s])`,
			p.Namespace, p.PodRegex, p.Container, FormatDuration(p.Duration), FormatDuration(p.Step),
		)
	},
}

// MaxOOMKilledMemoryLoader surfaces the memory limit in effect at the
// moment a container was last OOMKilled, by joining the termination-reason
// series against the resource-limit series.
var MaxOOMKilledMemoryLoader = templateMetric{
	name: "MaxOOMKilledMemoryLoader",
	kind: Instant,
	build: func(p QueryParams) string {
		return fmt.Sprintf(
			`max_over_time((kube_pod_container_status_last_terminated_reason{namespace="%s",pod=~"%s",container="%s",reason="OOMKilled"} * on(namespace,pod,container) group_left() kube_pod_container_resource_limits{namespace="%s",pod=~"%s",container="%s",resource="memory"})[%s:%s])`,
			p.Namespace, p.PodRegex, p.Container, p.Namespace, p.PodRegex, p.Container, FormatDuration(p.Duration), FormatDuration(p.Step),
		)
	},
}

// CPUAmountLoader counts the data points available for the CPU loader over
// the window — used for the "not enough data" gate.
var CPUAmountLoader = templateMetric{
	name: "CPUAmountLoader",
	kind: Instant,
	build: func(p QueryParams) string {
		return fmt.Sprintf(
			`count_over_time((sum(irate(container_cpu_usage_seconds_total{namespace="%s",pod=~"%s",container="%s"}[5m])) by (container,pod,job))[%s:%s])`,
			p.Namespace, p.PodRegex, p.Container, FormatDuration(p.Duration), FormatDuration(p.Step),
		)
	},
}

// MemoryAmountLoader counts the data points available for the memory
// loader over the window.
var MemoryAmountLoader = templateMetric{
	name: "MemoryAmountLoader",
	kind: Instant,
	build: func(p QueryParams) string {
		return fmt.Sprintf(
			`count_over_time(container_memory_working_set_bytes{namespace="%s",pod=~"%s",container="%s"}[%s:%s])`,
			p.Namespace, p.PodRegex, p.Container, FormatDuration(p.Duration), FormatDuration(p.Step),
		)
	},
}
