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

// Package promsource reconstructs the workload graph purely from
// kube-state-metrics/cAdvisor series, for clusters where the Kubernetes
// API server itself is not reachable from wherever the recommendation
// engine runs (e.g. Prometheus is the only thing both sides can see). It
// satisfies the same Lister contract as discovery.KubeAPIDiscoverer.
package promsource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/optipod/optipod/internal/discovery"
	"github.com/optipod/optipod/internal/model"
)

// InstantQuerier executes one instant PromQL query and returns its
// samples as (metric labels, value) pairs; satisfied by a thin adapter
// over prometheus/client_golang's v1.API.Query for the Vector case.
type InstantQuerier interface {
	QueryInstant(ctx context.Context, query string) ([]Sample, error)
}

// Sample is one instant-query result row.
type Sample struct {
	Labels map[string]string
	Value  float64
}

// ownerMetric maps a workload kind to the kube-state-metrics owner_kind
// label value kube_pod_owner uses for it.
var ownerMetric = map[model.Kind]string{
	model.KindDeployment:  "ReplicaSet", // kube_pod_owner reports the immediate controller; Deployments own Pods through a ReplicaSet
	model.KindStatefulSet: "StatefulSet",
	model.KindDaemonSet:   "DaemonSet",
	model.KindJob:         "Job",
}

// Discoverer implements discovery's Lister contract by querying
// kube_pod_owner, kube_pod_container_info, and
// kube_pod_container_resource_{requests,limits} instead of listing the
// Kubernetes API directly.
type Discoverer struct {
	Querier InstantQuerier
}

// NewDiscoverer builds a Discoverer over the given instant-query backend.
func NewDiscoverer(q InstantQuerier) *Discoverer {
	return &Discoverer{Querier: q}
}

// Discover reconstructs RawWorkloads for every kind in opts.Kinds that
// promsource knows how to resolve (custom-resource kinds and CronJobs
// have no kube-state-metrics owner_kind equivalent and are silently
// skipped, since the API-driven discoverer is expected to handle a mixed
// fleet — promsource covers the built-in, kube-state-metrics-visible
// kinds only).
func (d *Discoverer) Discover(ctx context.Context, opts discovery.Options) ([]discovery.RawWorkload, error) {
	namespaceFilter := fmt.Sprintf(`namespace!~"%s"`, strings.Join(opts.Namespaces.Deny, "|"))
	if len(opts.Namespaces.Allow) > 0 {
		namespaceFilter += fmt.Sprintf(`, namespace=~"%s"`, strings.Join(opts.Namespaces.Allow, "|"))
	}

	var out []discovery.RawWorkload
	for _, kind := range opts.Kinds {
		ownerKind, ok := ownerMetric[kind]
		if !ok {
			continue
		}

		owners, err := d.listOwners(ctx, ownerKind, namespaceFilter)
		if err != nil {
			return nil, fmt.Errorf("listing %s owners: %w", kind, err)
		}

		for key, podSelector := range owners {
			containers, err := d.listContainers(ctx, key.namespace, podSelector)
			if err != nil {
				return nil, fmt.Errorf("listing containers for %s/%s: %w", key.namespace, key.name, err)
			}
			out = append(out, discovery.RawWorkload{
				Kind:       kind,
				Namespace:  key.namespace,
				Name:       key.name,
				Containers: containers,
			})
		}
	}
	return out, nil
}

type ownerKey struct {
	namespace string
	name      string
}

// listOwners groups every pod's owner_name into a "pod1|pod2|..." regex
// selector per (namespace, owner_name), the shape the rest of promsource
// needs to scope its per-container queries.
func (d *Discoverer) listOwners(ctx context.Context, ownerKind, namespaceFilter string) (map[ownerKey]string, error) {
	query := fmt.Sprintf(`count by (namespace, owner_name, pod) (kube_pod_owner{%s, owner_kind="%s"})`, namespaceFilter, ownerKind)
	samples, err := d.Querier.QueryInstant(ctx, query)
	if err != nil {
		return nil, err
	}

	pods := map[ownerKey][]string{}
	for _, s := range samples {
		key := ownerKey{namespace: s.Labels["namespace"], name: s.Labels["owner_name"]}
		pods[key] = append(pods[key], s.Labels["pod"])
	}

	out := make(map[ownerKey]string, len(pods))
	for key, podNames := range pods {
		sort.Strings(podNames)
		out[key] = strings.Join(podNames, "|")
	}
	return out, nil
}

// listContainers returns the set of container names observed across the
// given pod selector, using kube_pod_container_info the same way the
// reference loader's _list_containers does.
func (d *Discoverer) listContainers(ctx context.Context, namespace, podSelector string) ([]corev1.Container, error) {
	query := fmt.Sprintf(`count by (container) (kube_pod_container_info{namespace="%s", pod=~"%s"})`, namespace, podSelector)
	samples, err := d.Querier.QueryInstant(ctx, query)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, s := range samples {
		c := s.Labels["container"]
		if c != "" && !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}
	sort.Strings(names)

	out := make([]corev1.Container, 0, len(names))
	for _, n := range names {
		out = append(out, corev1.Container{Name: n})
	}
	return out, nil
}
