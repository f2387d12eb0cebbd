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

// Package owners resolves a Pod's logical owner (the Deployment,
// StatefulSet, Job, DaemonSet, or standalone Pod identity the admission
// enforcer keys recommendations by) through the one level of indirection
// Kubernetes interposes for Deployment-managed pods: Pod -> ReplicaSet ->
// Deployment. A ReplicaSet object alone does not carry enough information
// to answer that question at enforcement time, so the webhook is also
// wired to receive ReplicaSet admission events and this store builds its
// own index from them rather than querying the API server synchronously
// on every Pod admission review.
package owners

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/optipod/optipod/internal/objectdict"
)

// Owner is the resolved controller identity for a Pod.
type Owner struct {
	Kind      string
	Namespace string
	Name      string
}

// rsOwner is the per-ReplicaSet cache entry: which workload owns it, and
// (if the ReplicaSet was deleted) when, so cleanup can wait out a grace
// period before dropping it — a ReplicaSet DELETE can race a Pod CREATE
// admission review that still needs to resolve through it.
type rsOwner struct {
	namespace string
	rsName    string
	ownerName string
	ownerKind string

	deletedAt time.Time
	deleted   bool
}

// Store indexes ReplicaSet -> owning-workload relationships and resolves
// Pod owners from them. Initial population is lazy and deduplicated
// against concurrent callers with a non-blocking try-lock, matching the
// admission path's latency budget: the first /health probe (or the first
// Pod admission review, whichever comes first) pays the listing cost, and
// every other concurrent caller just proceeds without it rather than
// queuing behind the load.
type Store struct {
	lister ReplicaSetLister

	mu        sync.RWMutex
	rsOwners  map[string]*rsOwner

	loaded       bool
	loadedMu     sync.Mutex
	loadInFlight chan struct{} // 1-buffered: acts as a non-blocking try-lock

	deletionWait time.Duration

	stop chan struct{}
	done chan struct{}
}

// ReplicaSetLister lists every ReplicaSet's (namespace, name, owner)
// triple at store-initialization time. The kube-API-backed implementation
// lives in the discovery package; tests supply a fake.
type ReplicaSetLister interface {
	ListReplicaSetOwners(ctx context.Context) ([]ReplicaSetOwnerInfo, error)
}

// ReplicaSetOwnerInfo is one ReplicaSet's resolved controller reference.
type ReplicaSetOwnerInfo struct {
	Namespace string
	RSName    string
	OwnerName string
	OwnerKind string
}

// NewStore builds a Store that lazily loads from lister and evicts
// tombstoned ReplicaSets after deletionWait once cleanupInterval has
// elapsed since their DELETE admission event.
func NewStore(lister ReplicaSetLister, deletionWait, cleanupInterval time.Duration) *Store {
	s := &Store{
		lister:       lister,
		rsOwners:     map[string]*rsOwner{},
		loadInFlight: make(chan struct{}, 1),
		deletionWait: deletionWait,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go s.periodicCleanup(cleanupInterval)
	return s
}

func rsKey(namespace, rsName string) string { return namespace + "/" + rsName }

// FinalizeInitialization performs the one-time ReplicaSet listing the
// store needs before it can resolve any Deployment-owned Pod, if nobody
// has already done so. Safe to call repeatedly and from multiple
// goroutines; only one call actually lists.
func (s *Store) FinalizeInitialization(ctx context.Context) {
	s.loadedMu.Lock()
	if s.loaded {
		s.loadedMu.Unlock()
		return
	}
	s.loadedMu.Unlock()

	select {
	case s.loadInFlight <- struct{}{}:
	default:
		return // another goroutine is already loading
	}
	defer func() { <-s.loadInFlight }()

	s.loadedMu.Lock()
	alreadyLoaded := s.loaded
	s.loadedMu.Unlock()
	if alreadyLoaded {
		return
	}

	owners, err := s.lister.ListReplicaSetOwners(ctx)
	if err != nil {
		slog.Error("failed to load replicaset owners", "error", err)
		return
	}

	s.mu.Lock()
	for _, o := range owners {
		s.rsOwners[rsKey(o.Namespace, o.RSName)] = &rsOwner{
			namespace: o.Namespace,
			rsName:    o.RSName,
			ownerName: o.OwnerName,
			ownerKind: o.OwnerKind,
		}
	}
	count := len(s.rsOwners)
	s.mu.Unlock()

	s.loadedMu.Lock()
	s.loaded = true
	s.loadedMu.Unlock()

	slog.Info("loaded replicaset owners", "count", count)
}

// Count returns the number of ReplicaSets currently indexed, including
// tombstoned-but-not-yet-evicted entries — the value the
// rs_owners_map_size gauge reports.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rsOwners)
}

// GetPodOwner resolves pod's controller. Standalone pods (no owner
// references) resolve to themselves. A Deployment-managed pod resolves
// through its ReplicaSet; if that ReplicaSet is not yet indexed, GetPodOwner
// returns (nil, nil) rather than an error, signalling "not resolvable yet"
// to the caller (which should treat it the same as "no recommendation").
func (s *Store) GetPodOwner(pod objectdict.Dict) (*Owner, error) {
	metadata, _ := pod.Field("metadata")
	namespace := metadata.String("namespace")

	ownerRefs := metadata.Dicts("ownerReferences")
	if len(ownerRefs) == 0 {
		return &Owner{Kind: "Pod", Namespace: namespace, Name: podName(metadata)}, nil
	}

	var controllers []objectdict.Dict
	for _, ref := range ownerRefs {
		if ref.Bool("controller") {
			controllers = append(controllers, ref)
		}
	}
	if len(controllers) == 0 {
		return nil, nil
	}
	if len(controllers) > 1 {
		slog.Warn("multiple controllers found for pod", "namespace", namespace, "pod", podName(metadata))
	}

	controller := controllers[0]
	kind := controller.String("kind")
	if kind != "ReplicaSet" {
		return &Owner{Kind: kind, Namespace: namespace, Name: controller.String("name")}, nil
	}

	s.mu.RLock()
	owner, ok := s.rsOwners[rsKey(namespace, controller.String("name"))]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &Owner{Kind: owner.ownerKind, Namespace: owner.namespace, Name: owner.ownerName}, nil
}

func podName(metadata objectdict.Dict) string {
	if n := metadata.String("name"); n != "" {
		return n
	}
	return metadata.String("generateName")
}

// HandleReplicaSetAdmission updates the index from a ReplicaSet admission
// review: a DELETE tombstones the entry (retained until the cleanup grace
// period elapses, since an in-flight Pod admission review may still need
// it), a CREATE adds or replaces the entry from the ReplicaSet's own
// owner reference.
func (s *Store) HandleReplicaSetAdmission(operation string, rs objectdict.Dict, oldRS objectdict.Dict) {
	switch operation {
	case "DELETE":
		metadata, _ := oldRS.Field("metadata")
		namespace := metadata.String("namespace")
		name := metadata.String("name")
		if name == "" || namespace == "" {
			return
		}
		s.mu.Lock()
		if owner, ok := s.rsOwners[rsKey(namespace, name)]; ok {
			owner.deleted = true
			owner.deletedAt = time.Now()
		}
		s.mu.Unlock()
	case "CREATE":
		s.addReplicaSetOwner(rs)
	}
}

func (s *Store) addReplicaSetOwner(rs objectdict.Dict) {
	metadata, _ := rs.Field("metadata")
	ownerRefs := metadata.Dicts("ownerReferences")
	if len(ownerRefs) == 0 {
		slog.Warn("no owner references for replicaset", "namespace", metadata.String("namespace"), "name", metadata.String("name"))
		return
	}
	owner := &rsOwner{
		namespace: metadata.String("namespace"),
		rsName:    metadata.String("name"),
		ownerName: ownerRefs[0].String("name"),
		ownerKind: ownerRefs[0].String("kind"),
	}
	s.mu.Lock()
	s.rsOwners[rsKey(owner.namespace, owner.rsName)] = owner
	s.mu.Unlock()
}

func (s *Store) cleanupDeletedReplicaSets() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, owner := range s.rsOwners {
		if owner.deleted && now.Sub(owner.deletedAt) >= s.deletionWait {
			delete(s.rsOwners, key)
		}
	}
}

func (s *Store) periodicCleanup(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanupDeletedReplicaSets()
		}
	}
}

// Stop halts the cleanup goroutine and waits for it to exit.
func (s *Store) Stop() {
	close(s.stop)
	<-s.done
}
