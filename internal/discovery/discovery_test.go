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

package discovery

import (
	"context"
	"errors"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/scheme"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/optipod/optipod/internal/model"
)

func TestDiscoverDeploymentsFiltersDeniedNamespace(t *testing.T) {
	ns1 := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "default"}}
	nsKubeSystem := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "kube-system"}}

	dep1 := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "default"},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "c1"}}},
			},
		},
	}
	dep2 := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "sys-app", Namespace: "kube-system"},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "c1"}}},
			},
		},
	}

	cl := fakeclient.NewClientBuilder().WithScheme(scheme.Scheme).
		WithObjects(ns1, nsKubeSystem, dep1, dep2).Build()

	d := NewKubeAPIDiscoverer(cl, nil)
	out, err := d.Discover(context.Background(), Options{
		Namespaces: DefaultOptions().Namespaces,
		Kinds:      []model.Kind{model.KindDeployment},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Name != "app" {
		t.Fatalf("expected only 'app' from default namespace, got %+v", out)
	}
}

func TestDiscoverJobsExcludesCronJobOwned(t *testing.T) {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "default"}}

	standaloneJob := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "standalone", Namespace: "default"},
		Spec: batchv1.JobSpec{
			Template: corev1.PodTemplateSpec{Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "c"}}}},
		},
	}
	cronOwnedJob := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "from-cron",
			Namespace: "default",
			OwnerReferences: []metav1.OwnerReference{
				{Kind: "CronJob", Name: "nightly", APIVersion: "batch/v1"},
			},
		},
		Spec: batchv1.JobSpec{
			Template: corev1.PodTemplateSpec{Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "c"}}}},
		},
	}

	cl := fakeclient.NewClientBuilder().WithScheme(scheme.Scheme).
		WithObjects(ns, standaloneJob, cronOwnedJob).Build()

	d := NewKubeAPIDiscoverer(cl, nil)
	out, err := d.Discover(context.Background(), Options{
		Namespaces: DefaultOptions().Namespaces,
		Kinds:      []model.Kind{model.KindJob},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Name != "standalone" {
		t.Fatalf("expected only standalone job, got %+v", out)
	}
}

func TestIsToleratedAPIErrorAcceptsCRDNotInstalledErrors(t *testing.T) {
	gr := schema.GroupResource{Group: "argoproj.io", Resource: "rollouts"}
	cases := []error{
		apierrors.NewNotFound(gr, "my-rollout"),
		apierrors.NewForbidden(gr, "my-rollout", errors.New("denied")),
		apierrors.NewUnauthorized("no credentials"),
	}
	for _, err := range cases {
		if !isToleratedAPIError(err) {
			t.Errorf("expected %v to be tolerated", err)
		}
	}
}

func TestIsToleratedAPIErrorRejectsTransientErrors(t *testing.T) {
	cases := []error{
		context.DeadlineExceeded,
		errors.New("connection reset by peer"),
		nil,
	}
	for _, err := range cases {
		if isToleratedAPIError(err) {
			t.Errorf("expected %v not to be tolerated", err)
		}
	}
}
