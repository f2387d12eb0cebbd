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

// Package model holds the shared data types that flow between discovery,
// metrics querying, and the strategy engine: Workload, PodRef,
// ResourceAllocations, MetricSeries, and Recommendation.
package model

import (
	"math"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Kind enumerates the workload kinds the discovery layer can resolve.
type Kind string

const (
	KindDeployment      Kind = "Deployment"
	KindStatefulSet     Kind = "StatefulSet"
	KindDaemonSet       Kind = "DaemonSet"
	KindJob             Kind = "Job"
	KindCronJob         Kind = "CronJob"
	KindRollout         Kind = "Rollout"
	KindDeploymentConfig Kind = "DeploymentConfig"
	KindStrimziPodSet   Kind = "StrimziPodSet"
	KindPod             Kind = "Pod"
)

// ResourceName is one of the two resources the system reasons about.
type ResourceName string

const (
	ResourceCPU    ResourceName = "cpu"
	ResourceMemory ResourceName = "memory"
)

// PodRef identifies a pod observed within a discovery/history window.
// Deleted-but-in-window pods are retained because their historical metrics
// must still be aggregated into the recommendation.
type PodRef struct {
	Name    string
	Deleted bool
}

// AllocationValue represents requests[resource] or limits[resource]: a
// numeric value, the "unknown" sentinel (value was set but unparseable or
// NaN), or absent (nil pointer). Use unit.Unknown/unit.IsUnknown to test
// for the sentinel once dereferenced.
type AllocationValue = *float64

// ResourceAllocations is the pair of requests/limits maps for a container,
// keyed by resource. A resource with no entry in a map means "absent", as
// distinct from an entry holding the unit.Unknown sentinel.
type ResourceAllocations struct {
	Requests map[ResourceName]AllocationValue
	Limits   map[ResourceName]AllocationValue
}

// NewResourceAllocations returns an allocations struct with empty maps
// ready to be populated.
func NewResourceAllocations() ResourceAllocations {
	return ResourceAllocations{
		Requests: map[ResourceName]AllocationValue{},
		Limits:   map[ResourceName]AllocationValue{},
	}
}

// HPASpec carries the pieces of a HorizontalPodAutoscaler the strategy
// engine cares about: whether CPU/memory targets are present at all, not
// their numeric values (the gate is presence, not the target level).
type HPASpec struct {
	MinReplicas                   int32
	MaxReplicas                   int32
	TargetCPUUtilizationPercent    *int32
	TargetMemoryUtilizationPercent *int32
}

// Workload is the logical unit of resource recommendation: a
// (cluster?, namespace, kind, name, container) identity plus everything
// gathered about it during one discovery run. Immutable after discovery.
type Workload struct {
	Cluster   string
	Namespace string
	Kind      Kind
	Name      string
	Container string

	Allocations ResourceAllocations
	HPA         *HPASpec

	Pods     []PodRef
	Warnings []string

	Labels      map[string]string
	Annotations map[string]string
}

// Key returns the (namespace, kind, name) identity used to index
// recommendations and owner lookups.
func (w Workload) Key() WorkloadKey {
	return WorkloadKey{Namespace: w.Namespace, Kind: w.Kind, Name: w.Name}
}

// WorkloadKey is the (namespace, kind, name) triple workloads and
// recommendations are both indexed by.
type WorkloadKey struct {
	Namespace string
	Kind      Kind
	Name      string
}

// MetricPoint is one (timestamp_seconds, value) sample.
type MetricPoint struct {
	TimestampSeconds float64
	Value            float64
}

// MetricSeries is an ordered, step-aligned array of samples for one
// (workload, metric family, pod) triple.
type MetricSeries struct {
	Pod    string
	Points []MetricPoint
}

// MetricFamily is the result of querying one Metric: one MetricSeries per
// pod, already deduplicated against competing job labels.
type MetricFamily struct {
	Series []MetricSeries
}

// ByPod indexes a MetricFamily's series by pod name for O(1) lookup,
// matching the shape the strategy engine consumes (history_data[pod]).
func (f MetricFamily) ByPod() map[string]MetricSeries {
	out := make(map[string]MetricSeries, len(f.Series))
	for _, s := range f.Series {
		out[s.Pod] = s
	}
	return out
}

// ResourceRecommendation is the per-resource half of a Recommendation:
// request and limit may each independently be absent, numeric, or the
// unit.Unknown sentinel; Info is a short human string.
type ResourceRecommendation struct {
	Request AllocationValue
	Limit   AllocationValue
	Info    string
}

// Undefined returns a ResourceRecommendation whose request and limit are
// both the unknown sentinel, carrying the given info string. This is the
// shape used for "Not enough data" / "HPA detected" gates.
func Undefined(info string) ResourceRecommendation {
	u := unknownValue()
	return ResourceRecommendation{Request: u, Limit: u, Info: info}
}

func unknownValue() AllocationValue {
	v := math.NaN()
	return &v
}

// Recommendation is the full per-container output of a strategy run: one
// ResourceRecommendation per resource.
type Recommendation map[ResourceName]ResourceRecommendation

// ContainerRecommendations maps container name to its Recommendation.
type ContainerRecommendations map[string]Recommendation

// WorkloadRecommendationMap is keyed by (namespace, kind, name); a
// container entry exists only if at least one valid recommendation was
// parsed for it. Lookups for unknown workloads must return absent, never
// a zero value — callers use the comma-ok map idiom against this type.
type WorkloadRecommendationMap map[WorkloadKey]ContainerRecommendations

// CurrentResourceQuantity mirrors the teacher's use of a real
// resource.Quantity for the "what's running right now" side of a
// container, as opposed to the plain-float Prometheus/datastore side.
type CurrentResourceQuantity struct {
	CPU    *resource.Quantity
	Memory *resource.Quantity
}
