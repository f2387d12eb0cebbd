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

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// PodAdmissionMutations tracks every Pod admission review the enforcer
	// processed, labeled by whether it produced a patch and why.
	PodAdmissionMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pod_admission_mutations_total",
			Help: "Total number of pod admission reviews processed by the enforcer",
		},
		[]string{"mutated", "reason"},
	)

	// AdmissionDuration tracks how long one admission review took to
	// process, labeled by the reviewed object's kind.
	AdmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admission_duration_seconds",
			Help:    "Duration of admission review processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// ReplicaSetAdmissions tracks ReplicaSet admission reviews used to
	// maintain the owner index, labeled by operation (CREATE/DELETE).
	ReplicaSetAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicaset_admissions_total",
			Help: "Total number of ReplicaSet admission reviews processed by the enforcer",
		},
		[]string{"operation"},
	)

	// RSOwnersMapSize reports the current size of the ReplicaSet owner
	// index, including tombstoned-but-not-yet-evicted entries.
	RSOwnersMapSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rs_owners_map_size",
			Help: "Current number of entries in the ReplicaSet owner index",
		},
	)
)

func init() {
	RegisterAdmissionMetrics()
}

// RegisterAdmissionMetrics registers the enforcer's admission-path
// metrics with the controller-runtime metrics registry.
func RegisterAdmissionMetrics() {
	metrics.Registry.Register(PodAdmissionMutations)
	metrics.Registry.Register(AdmissionDuration)
	metrics.Registry.Register(ReplicaSetAdmissions)
	metrics.Registry.Register(RSOwnersMapSize)
}
