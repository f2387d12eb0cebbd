package owners

import (
	"context"
	"testing"
	"time"

	"github.com/optipod/optipod/internal/objectdict"
)

type fakeLister struct {
	owners []ReplicaSetOwnerInfo
}

func (f *fakeLister) ListReplicaSetOwners(ctx context.Context) ([]ReplicaSetOwnerInfo, error) {
	return f.owners, nil
}

func podDict(namespace, name string, ownerRefs []map[string]interface{}) objectdict.Dict {
	raw := []interface{}{}
	for _, r := range ownerRefs {
		raw = append(raw, r)
	}
	return objectdict.New(map[string]interface{}{
		"metadata": map[string]interface{}{
			"namespace":       namespace,
			"name":            name,
			"ownerReferences": raw,
		},
	})
}

func TestGetPodOwnerStandalonePod(t *testing.T) {
	s := NewStore(&fakeLister{}, time.Minute, time.Hour)
	defer s.Stop()

	pod := podDict("default", "web-1", nil)
	owner, err := s.GetPodOwner(pod)
	if err != nil {
		t.Fatal(err)
	}
	if owner == nil || owner.Kind != "Pod" || owner.Name != "web-1" {
		t.Fatalf("expected standalone pod owner, got %+v", owner)
	}
}

func TestGetPodOwnerResolvesThroughReplicaSet(t *testing.T) {
	s := NewStore(&fakeLister{owners: []ReplicaSetOwnerInfo{
		{Namespace: "default", RSName: "web-abc123", OwnerName: "web", OwnerKind: "Deployment"},
	}}, time.Minute, time.Hour)
	defer s.Stop()
	s.FinalizeInitialization(context.Background())

	pod := podDict("default", "web-abc123-xyz", []map[string]interface{}{
		{"kind": "ReplicaSet", "name": "web-abc123", "controller": true},
	})
	owner, err := s.GetPodOwner(pod)
	if err != nil {
		t.Fatal(err)
	}
	if owner == nil || owner.Kind != "Deployment" || owner.Name != "web" {
		t.Fatalf("expected Deployment owner, got %+v", owner)
	}
}

func TestGetPodOwnerUnresolvedReplicaSetReturnsNilNil(t *testing.T) {
	s := NewStore(&fakeLister{}, time.Minute, time.Hour)
	defer s.Stop()
	s.FinalizeInitialization(context.Background())

	pod := podDict("default", "web-abc123-xyz", []map[string]interface{}{
		{"kind": "ReplicaSet", "name": "web-abc123", "controller": true},
	})
	owner, err := s.GetPodOwner(pod)
	if err != nil {
		t.Fatal(err)
	}
	if owner != nil {
		t.Fatalf("expected nil owner for unindexed replicaset, got %+v", owner)
	}
}

func TestHandleReplicaSetAdmissionCreateThenDeleteTombstones(t *testing.T) {
	s := NewStore(&fakeLister{}, 50*time.Millisecond, time.Hour)
	defer s.Stop()

	rs := objectdict.New(map[string]interface{}{
		"metadata": map[string]interface{}{
			"namespace": "default",
			"name":      "web-abc123",
			"ownerReferences": []interface{}{
				map[string]interface{}{"kind": "Deployment", "name": "web"},
			},
		},
	})
	s.HandleReplicaSetAdmission("CREATE", rs, objectdict.Dict{})
	if s.Count() != 1 {
		t.Fatalf("expected 1 indexed replicaset, got %d", s.Count())
	}

	oldRS := objectdict.New(map[string]interface{}{
		"metadata": map[string]interface{}{"namespace": "default", "name": "web-abc123"},
	})
	s.HandleReplicaSetAdmission("DELETE", objectdict.Dict{}, oldRS)
	if s.Count() != 1 {
		t.Fatalf("expected tombstoned entry to remain indexed, got count %d", s.Count())
	}

	s.cleanupDeletedReplicaSets() // not yet past deletionWait
	if s.Count() != 1 {
		t.Fatalf("expected entry to survive before grace period elapses, got %d", s.Count())
	}

	time.Sleep(60 * time.Millisecond)
	s.cleanupDeletedReplicaSets()
	if s.Count() != 0 {
		t.Fatalf("expected tombstoned entry evicted after grace period, got %d", s.Count())
	}
}
