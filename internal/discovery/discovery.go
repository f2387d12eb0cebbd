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

// Package discovery enumerates workloads. Two interchangeable
// implementations share the Lister contract: KubeAPIDiscoverer (this file)
// walks the Kubernetes API directly; promsource.Discoverer (in the
// sibling promsource package) reconstructs the same workload graph purely
// from Prometheus/kube-state-metrics series.
package discovery

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/optipod/optipod/internal/model"
	"github.com/optipod/optipod/internal/objectdict"
	"github.com/optipod/optipod/internal/selector"
)

// kube-system is excluded by default when no explicit namespace list is
// given, per the discovery contract.
const defaultDeniedNamespace = "kube-system"

// Options configures one discovery run.
type Options struct {
	Namespaces      selector.NamespaceFilter
	NamespaceLabels *metav1.LabelSelector
	WorkloadLabels  *metav1.LabelSelector
	Kinds           []model.Kind
}

// DefaultOptions returns discovery options for "all namespaces except
// kube-system, all supported kinds" (built-in and custom-resource).
func DefaultOptions() Options {
	return Options{
		Namespaces: selector.NamespaceFilter{Deny: []string{defaultDeniedNamespace}},
		Kinds: []model.Kind{
			model.KindDeployment, model.KindStatefulSet, model.KindDaemonSet,
			model.KindJob, model.KindCronJob,
			model.KindRollout, model.KindDeploymentConfig, model.KindStrimziPodSet,
		},
	}
}

// RawWorkload is one discovered controller object together with its
// containers, prior to being expanded into one model.Workload per
// container by the caller.
type RawWorkload struct {
	Kind        model.Kind
	Namespace   string
	Name        string
	Labels      map[string]string
	Annotations map[string]string
	Containers  []corev1.Container
	HPATargetKey string // not set by either discoverer; the runner builds HPA keys from Namespace/Kind/Name
}

var customResourceGVRs = map[model.Kind]schema.GroupVersionResource{
	model.KindRollout:          {Group: "argoproj.io", Version: "v1alpha1", Resource: "rollouts"},
	model.KindDeploymentConfig: {Group: "apps.openshift.io", Version: "v1", Resource: "deploymentconfigs"},
	model.KindStrimziPodSet:    {Group: "core.strimzi.io", Version: "v1beta2", Resource: "strimzipodsets"},
}

// KubeAPIDiscoverer discovers workloads by listing the Kubernetes API
// directly: typed clients for built-in kinds, the dynamic client for
// custom resources.
type KubeAPIDiscoverer struct {
	Client        client.Client
	DynamicClient dynamic.Interface

	// disabledKinds tracks custom-resource kinds that returned a
	// 400/401/403/404 this run; they are skipped for the remainder of the
	// run but retried from scratch on the next run (no persistent state).
	disabledKinds map[model.Kind]bool
}

// NewKubeAPIDiscoverer builds a discoverer over the given clients.
func NewKubeAPIDiscoverer(c client.Client, dyn dynamic.Interface) *KubeAPIDiscoverer {
	return &KubeAPIDiscoverer{Client: c, DynamicClient: dyn, disabledKinds: map[model.Kind]bool{}}
}

// Discover lists every workload matching opts across all enabled kinds.
func (d *KubeAPIDiscoverer) Discover(ctx context.Context, opts Options) ([]RawWorkload, error) {
	namespaces, err := d.matchingNamespaces(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}

	var all []RawWorkload
	cronJobOwned, err := d.cronJobOwnedJobNames(ctx, namespaces)
	if err != nil {
		return nil, fmt.Errorf("indexing cronjob-owned jobs: %w", err)
	}

	for _, kind := range opts.Kinds {
		var (
			items []RawWorkload
			kerr  error
		)
		switch kind {
		case model.KindDeployment:
			items, kerr = d.discoverDeployments(ctx, namespaces, opts.WorkloadLabels)
		case model.KindStatefulSet:
			items, kerr = d.discoverStatefulSets(ctx, namespaces, opts.WorkloadLabels)
		case model.KindDaemonSet:
			items, kerr = d.discoverDaemonSets(ctx, namespaces, opts.WorkloadLabels)
		case model.KindJob:
			items, kerr = d.discoverJobs(ctx, namespaces, opts.WorkloadLabels, cronJobOwned)
		case model.KindCronJob:
			items, kerr = d.discoverCronJobs(ctx, namespaces, opts.WorkloadLabels)
		case model.KindRollout, model.KindDeploymentConfig, model.KindStrimziPodSet:
			if d.disabledKinds[kind] {
				continue
			}
			items, kerr = d.discoverCustomResource(ctx, kind, namespaces, opts.WorkloadLabels)
			if kerr != nil && isToleratedAPIError(kerr) {
				d.disabledKinds[kind] = true
				continue
			}
		default:
			continue
		}
		if kerr != nil {
			return nil, fmt.Errorf("discovering %s: %w", kind, kerr)
		}
		all = append(all, items...)
	}

	return all, nil
}

// isToleratedAPIError reports whether err corresponds to one of the HTTP
// statuses that should disable a custom-resource kind for the rest of the
// run rather than fail it outright (the CRD is simply not installed, or
// this credential can't see it) as opposed to a transient failure like a
// network timeout or a context deadline, which should surface as a real
// error instead of silently and permanently disabling the kind.
func isToleratedAPIError(err error) bool {
	if err == nil {
		return false
	}
	return apierrors.IsBadRequest(err) ||
		apierrors.IsNotFound(err) ||
		apierrors.IsForbidden(err) ||
		apierrors.IsUnauthorized(err) ||
		meta.IsNoMatchError(err)
}

func (d *KubeAPIDiscoverer) matchingNamespaces(ctx context.Context, opts Options) ([]string, error) {
	nsList := &corev1.NamespaceList{}
	if err := d.Client.List(ctx, nsList); err != nil {
		return nil, err
	}
	var out []string
	for _, ns := range nsList.Items {
		if !opts.Namespaces.Matches(ns.Name) {
			continue
		}
		ok, err := selector.LabelSelectorMatches(opts.NamespaceLabels, ns.Labels)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, ns.Name)
	}
	return out, nil
}

func listOptsFor(namespace string, sel *metav1.LabelSelector) (*client.ListOptions, error) {
	opts := &client.ListOptions{Namespace: namespace}
	if sel != nil {
		s, err := metav1.LabelSelectorAsSelector(sel)
		if err != nil {
			return nil, err
		}
		opts.LabelSelector = s
	}
	return opts, nil
}

func (d *KubeAPIDiscoverer) discoverDeployments(ctx context.Context, namespaces []string, sel *metav1.LabelSelector) ([]RawWorkload, error) {
	var out []RawWorkload
	for _, ns := range namespaces {
		listOpts, err := listOptsFor(ns, sel)
		if err != nil {
			return nil, err
		}
		list := &appsv1.DeploymentList{}
		if err := d.Client.List(ctx, list, listOpts); err != nil {
			return nil, err
		}
		for _, item := range list.Items {
			out = append(out, rawFromPodTemplate(model.KindDeployment, item.Namespace, item.Name, item.Labels, item.Annotations, item.Spec.Template.Spec))
		}
	}
	return out, nil
}

func (d *KubeAPIDiscoverer) discoverStatefulSets(ctx context.Context, namespaces []string, sel *metav1.LabelSelector) ([]RawWorkload, error) {
	var out []RawWorkload
	for _, ns := range namespaces {
		listOpts, err := listOptsFor(ns, sel)
		if err != nil {
			return nil, err
		}
		list := &appsv1.StatefulSetList{}
		if err := d.Client.List(ctx, list, listOpts); err != nil {
			return nil, err
		}
		for _, item := range list.Items {
			out = append(out, rawFromPodTemplate(model.KindStatefulSet, item.Namespace, item.Name, item.Labels, item.Annotations, item.Spec.Template.Spec))
		}
	}
	return out, nil
}

func (d *KubeAPIDiscoverer) discoverDaemonSets(ctx context.Context, namespaces []string, sel *metav1.LabelSelector) ([]RawWorkload, error) {
	var out []RawWorkload
	for _, ns := range namespaces {
		listOpts, err := listOptsFor(ns, sel)
		if err != nil {
			return nil, err
		}
		list := &appsv1.DaemonSetList{}
		if err := d.Client.List(ctx, list, listOpts); err != nil {
			return nil, err
		}
		for _, item := range list.Items {
			out = append(out, rawFromPodTemplate(model.KindDaemonSet, item.Namespace, item.Name, item.Labels, item.Annotations, item.Spec.Template.Spec))
		}
	}
	return out, nil
}

// cronJobOwnedJobNames returns the set of "<namespace>/<job-name>" entries
// whose ownerReferences include a CronJob, so standalone Job discovery can
// filter them out: they are scanned as part of their parent CronJob.
func (d *KubeAPIDiscoverer) cronJobOwnedJobNames(ctx context.Context, namespaces []string) (map[string]bool, error) {
	owned := map[string]bool{}
	for _, ns := range namespaces {
		list := &batchv1.JobList{}
		if err := d.Client.List(ctx, list, &client.ListOptions{Namespace: ns}); err != nil {
			return nil, err
		}
		for _, job := range list.Items {
			for _, ref := range job.OwnerReferences {
				if ref.Kind == string(model.KindCronJob) {
					owned[ns+"/"+job.Name] = true
				}
			}
		}
	}
	return owned, nil
}

func (d *KubeAPIDiscoverer) discoverJobs(ctx context.Context, namespaces []string, sel *metav1.LabelSelector, cronJobOwned map[string]bool) ([]RawWorkload, error) {
	var out []RawWorkload
	for _, ns := range namespaces {
		listOpts, err := listOptsFor(ns, sel)
		if err != nil {
			return nil, err
		}
		list := &batchv1.JobList{}
		if err := d.Client.List(ctx, list, listOpts); err != nil {
			return nil, err
		}
		for _, item := range list.Items {
			if cronJobOwned[ns+"/"+item.Name] {
				continue
			}
			out = append(out, rawFromPodTemplate(model.KindJob, item.Namespace, item.Name, item.Labels, item.Annotations, item.Spec.Template.Spec))
		}
	}
	return out, nil
}

func (d *KubeAPIDiscoverer) discoverCronJobs(ctx context.Context, namespaces []string, sel *metav1.LabelSelector) ([]RawWorkload, error) {
	var out []RawWorkload
	for _, ns := range namespaces {
		listOpts, err := listOptsFor(ns, sel)
		if err != nil {
			return nil, err
		}
		list := &batchv1.CronJobList{}
		if err := d.Client.List(ctx, list, listOpts); err != nil {
			return nil, err
		}
		for _, item := range list.Items {
			out = append(out, rawFromPodTemplate(model.KindCronJob, item.Namespace, item.Name, item.Labels, item.Annotations,
				item.Spec.JobTemplate.Spec.Template.Spec))
		}
	}
	return out, nil
}

// discoverCustomResource handles Rollout/DeploymentConfig/StrimziPodSet via
// the dynamic client and ObjectLikeDict, since they have no typed Go
// client in this module's dependency set.
func (d *KubeAPIDiscoverer) discoverCustomResource(ctx context.Context, kind model.Kind, namespaces []string, sel *metav1.LabelSelector) ([]RawWorkload, error) {
	gvr, ok := customResourceGVRs[kind]
	if !ok {
		return nil, fmt.Errorf("no GVR registered for kind %s", kind)
	}

	var listSelector string
	if sel != nil {
		s, err := metav1.LabelSelectorAsSelector(sel)
		if err != nil {
			return nil, err
		}
		listSelector = s.String()
	}

	var out []RawWorkload
	for _, ns := range namespaces {
		list, err := d.DynamicClient.Resource(gvr).Namespace(ns).List(ctx, metav1.ListOptions{LabelSelector: listSelector})
		if err != nil {
			return nil, err
		}
		for _, item := range list.Items {
			raw, err := rawFromCustomObject(kind, item)
			if err != nil {
				return nil, err
			}
			out = append(out, raw)
		}
	}
	return out, nil
}

func rawFromCustomObject(kind model.Kind, item unstructured.Unstructured) (RawWorkload, error) {
	root := objectdict.New(item.Object)
	meta := root.Map("metadata")
	labels := stringMap(objectdict.New(meta).Map("labels"))
	annotations := stringMap(objectdict.New(meta).Map("annotations"))

	switch kind {
	case model.KindStrimziPodSet:
		pods := root.Dicts("spec.pods")
		if len(pods) == 0 {
			return RawWorkload{Kind: kind, Namespace: item.GetNamespace(), Name: item.GetName(), Labels: labels, Annotations: annotations}, nil
		}
		podSpec, _ := pods[0].Field("spec")
		return rawFromDict(kind, item.GetNamespace(), item.GetName(), labels, annotations, podSpec), nil
	default:
		podSpec, ok := root.Field("spec.template.spec")
		if !ok {
			return RawWorkload{Kind: kind, Namespace: item.GetNamespace(), Name: item.GetName(), Labels: labels, Annotations: annotations}, nil
		}
		return rawFromDict(kind, item.GetNamespace(), item.GetName(), labels, annotations, podSpec), nil
	}
}

func rawFromDict(kind model.Kind, namespace, name string, labels, annotations map[string]string, podSpec objectdict.Dict) RawWorkload {
	var containers []corev1.Container
	for _, c := range podSpec.Dicts("containers") {
		containers = append(containers, corev1.Container{Name: c.String("name")})
	}
	for _, c := range podSpec.Dicts("initContainers") {
		containers = append(containers, corev1.Container{Name: c.String("name")})
	}
	return RawWorkload{Kind: kind, Namespace: namespace, Name: name, Labels: labels, Annotations: annotations, Containers: containers}
}

func stringMap(m map[string]interface{}) map[string]string {
	out := map[string]string{}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func rawFromPodTemplate(kind model.Kind, namespace, name string, labels, annotations map[string]string, podSpec corev1.PodSpec) RawWorkload {
	containers := append([]corev1.Container{}, podSpec.InitContainers...)
	containers = append(containers, podSpec.Containers...)
	return RawWorkload{Kind: kind, Namespace: namespace, Name: name, Labels: labels, Annotations: annotations, Containers: containers}
}
