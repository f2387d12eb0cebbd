package promsource

import (
	"context"
	"strings"
	"testing"

	"github.com/optipod/optipod/internal/discovery"
	"github.com/optipod/optipod/internal/model"
)

type fakeQuerier struct {
	owners     []Sample
	containers []Sample
}

func (f *fakeQuerier) QueryInstant(ctx context.Context, query string) ([]Sample, error) {
	if strings.Contains(query, "kube_pod_owner") {
		return f.owners, nil
	}
	if strings.Contains(query, "kube_pod_container_info") {
		return f.containers, nil
	}
	return nil, nil
}

func TestDiscoverGroupsPodsByOwnerAndListsContainers(t *testing.T) {
	q := &fakeQuerier{
		owners: []Sample{
			{Labels: map[string]string{"namespace": "default", "owner_name": "web", "pod": "web-abc123"}},
			{Labels: map[string]string{"namespace": "default", "owner_name": "web", "pod": "web-def456"}},
		},
		containers: []Sample{
			{Labels: map[string]string{"container": "app"}},
			{Labels: map[string]string{"container": "sidecar"}},
		},
	}
	d := NewDiscoverer(q)

	opts := discovery.DefaultOptions()
	opts.Kinds = []model.Kind{model.KindDeployment}

	workloads, err := d.Discover(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(workloads) != 1 {
		t.Fatalf("expected 1 workload, got %d", len(workloads))
	}
	w := workloads[0]
	if w.Namespace != "default" || w.Name != "web" || w.Kind != model.KindDeployment {
		t.Fatalf("unexpected workload: %+v", w)
	}
	if len(w.Containers) != 2 {
		t.Fatalf("expected 2 containers, got %d", len(w.Containers))
	}
}

func TestDiscoverSkipsKindsWithoutAnOwnerMetric(t *testing.T) {
	q := &fakeQuerier{}
	d := NewDiscoverer(q)

	opts := discovery.DefaultOptions()
	opts.Kinds = []model.Kind{model.KindRollout}

	workloads, err := d.Discover(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(workloads) != 0 {
		t.Fatalf("expected no workloads for an unmapped kind, got %d", len(workloads))
	}
}
