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

// Package hpa resolves HorizontalPodAutoscalers for discovered workloads,
// preferring autoscaling/v2 and falling back to v1 when the v2 API is not
// served by the cluster.
package hpa

import (
	"context"
	"fmt"

	autoscalingv1 "k8s.io/api/autoscaling/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/optipod/optipod/internal/model"
)

// TargetKey indexes an HPASpec by the workload it scales.
type TargetKey struct {
	Namespace string
	Kind      model.Kind
	Name      string
}

// Resolver lists HPAs in a set of namespaces and indexes them by scale
// target. Failure to list HPAs is non-fatal per the discovery contract: a
// caller that gets an error from Resolve should warn and proceed with an
// empty index, not fail the whole discovery run.
type Resolver struct {
	Client client.Client
}

// NewResolver builds an HPA resolver over the given client.
func NewResolver(c client.Client) *Resolver {
	return &Resolver{Client: c}
}

// Resolve returns an index of HPASpec by (namespace, scaleTargetRef kind,
// scaleTargetRef name) across the given namespaces, trying autoscaling/v2
// first and falling back to v1 only when v2 is not being served (a 404 on
// the API group/kind, not an empty list).
func (r *Resolver) Resolve(ctx context.Context, namespaces []string) (map[TargetKey]*model.HPASpec, error) {
	out := map[TargetKey]*model.HPASpec{}

	for _, ns := range namespaces {
		v2List := &autoscalingv2.HorizontalPodAutoscalerList{}
		err := r.Client.List(ctx, v2List, &client.ListOptions{Namespace: ns})
		if err == nil {
			for _, item := range v2List.Items {
				key := TargetKey{Namespace: ns, Kind: model.Kind(item.Spec.ScaleTargetRef.Kind), Name: item.Spec.ScaleTargetRef.Name}
				out[key] = specFromV2(item)
			}
			continue
		}
		if !apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("listing autoscaling/v2 HPAs in %s: %w", ns, err)
		}

		v1List := &autoscalingv1.HorizontalPodAutoscalerList{}
		if err := r.Client.List(ctx, v1List, &client.ListOptions{Namespace: ns}); err != nil {
			return nil, fmt.Errorf("listing autoscaling/v1 HPAs in %s: %w", ns, err)
		}
		for _, item := range v1List.Items {
			key := TargetKey{Namespace: ns, Kind: model.Kind(item.Spec.ScaleTargetRef.Kind), Name: item.Spec.ScaleTargetRef.Name}
			out[key] = specFromV1(item)
		}
	}

	return out, nil
}

func specFromV2(hpa autoscalingv2.HorizontalPodAutoscaler) *model.HPASpec {
	spec := &model.HPASpec{
		MinReplicas: 1,
		MaxReplicas: hpa.Spec.MaxReplicas,
	}
	if hpa.Spec.MinReplicas != nil {
		spec.MinReplicas = *hpa.Spec.MinReplicas
	}
	for _, m := range hpa.Spec.Metrics {
		if m.Type != autoscalingv2.ResourceMetricSourceType || m.Resource == nil || m.Resource.Target.AverageUtilization == nil {
			continue
		}
		switch m.Resource.Name {
		case "cpu":
			v := *m.Resource.Target.AverageUtilization
			spec.TargetCPUUtilizationPercent = &v
		case "memory":
			v := *m.Resource.Target.AverageUtilization
			spec.TargetMemoryUtilizationPercent = &v
		}
	}
	return spec
}

// specFromV1 only carries the CPU target: autoscaling/v1 has no native
// memory-utilization target field.
func specFromV1(hpa autoscalingv1.HorizontalPodAutoscaler) *model.HPASpec {
	spec := &model.HPASpec{
		MinReplicas: 1,
		MaxReplicas: hpa.Spec.MaxReplicas,
	}
	if hpa.Spec.MinReplicas != nil {
		spec.MinReplicas = *hpa.Spec.MinReplicas
	}
	spec.TargetCPUUtilizationPercent = hpa.Spec.TargetCPUUtilizationPercentage
	return spec
}
