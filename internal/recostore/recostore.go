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

// Package recostore holds the admission enforcer's in-memory view of the
// latest completed scan's recommendations, reloaded periodically from the
// datastore and swapped in atomically so admission reviews never observe
// a partially-updated map.
package recostore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RawScanResult is one row of a scan result, as returned by the
// datastore: one container's full set of per-resource recommendations.
type RawScanResult struct {
	Namespace string
	Name      string
	Kind      string
	Container string
	Content   []RawResourceRecommendation
}

// RawResourceRecommendation is one resource's recommended request/limit
// pair within a scan result row. Request/Limit are nil when the
// datastore's value was the "?" (unknown) sentinel.
type RawResourceRecommendation struct {
	Resource  string // "cpu" or "memory"
	Request   *float64
	RequestUnknown bool
	Limit     *float64
	LimitUnknown bool
}

// Resources is one resource's resolved (request, limit) pair: limit may
// be absent even when request is present.
type Resources struct {
	Request float64
	Limit   *float64
}

// ContainerRecommendation is the per-container recommendation surfaced to
// the patch builder: CPU and/or Memory, each independently optional.
type ContainerRecommendation struct {
	CPU    *Resources
	Memory *Resources
}

// WorkloadRecommendation is the full set of container recommendations for
// one workload, keyed by container name.
type WorkloadRecommendation struct {
	Containers map[string]ContainerRecommendation
}

// Get returns the recommendation for container, or false if this
// workload has no recommendation for that container.
func (w WorkloadRecommendation) Get(container string) (ContainerRecommendation, bool) {
	rec, ok := w.Containers[container]
	return rec, ok
}

// buildContainerRecommendation mirrors WorkloadRecommendation.build: a
// container recommendation is dropped in its entirety (returns false) if
// any one of its resources has a zero or unknown request, or an unknown
// limit — a partially-confident recommendation is treated as no
// recommendation at all rather than applied resource-by-resource.
func buildContainerRecommendation(content []RawResourceRecommendation) (ContainerRecommendation, bool) {
	var rec ContainerRecommendation
	for _, res := range content {
		if res.Resource != "cpu" && res.Resource != "memory" {
			continue
		}
		if res.RequestUnknown || res.LimitUnknown {
			return ContainerRecommendation{}, false
		}
		request := 0.0
		if res.Request != nil {
			request = *res.Request
		}
		if request == 0.0 {
			return ContainerRecommendation{}, false
		}

		resources := &Resources{Request: request, Limit: res.Limit}
		switch res.Resource {
		case "memory":
			rec.Memory = resources
		case "cpu":
			rec.CPU = resources
		}
	}
	return rec, true
}

// Loader fetches the latest completed scan. It returns ("", nil, nil)
// when currentScanID is already the latest scan — the store interprets a
// nil recommendations map (regardless of scanID) as "nothing newer, don't
// swap", matching the datastore contract's no-op-on-same-scan behavior.
type Loader interface {
	LatestScan(ctx context.Context, currentScanID string) (scanID string, rows []RawScanResult, err error)
}

// Store holds the latest loaded recommendations, indexed by
// "namespace/name/kind", and refreshes them from Loader on an interval.
// The constructor loads synchronously once before returning so the first
// admission reviews after startup are never served against an empty map
// only because the reload goroutine hadn't ticked yet.
type Store struct {
	loader Loader

	mu              sync.RWMutex
	recommendations map[string]WorkloadRecommendation
	scanID          string

	reloadInterval time.Duration
	stop           chan struct{}
	done           chan struct{}
}

// NewStore builds a Store backed by loader, performing the initial
// synchronous load before starting the periodic reload goroutine.
func NewStore(ctx context.Context, loader Loader, reloadInterval time.Duration) *Store {
	s := &Store{
		loader:          loader,
		recommendations: map[string]WorkloadRecommendation{},
		reloadInterval:  reloadInterval,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	s.reload(ctx)
	go s.periodicReload()
	return s
}

func storeKey(namespace, name, kind string) string {
	return namespace + "/" + name + "/" + kind
}

func (s *Store) reload(ctx context.Context) {
	s.mu.RLock()
	currentScanID := s.scanID
	s.mu.RUnlock()

	scanID, rows, err := s.loader.LatestScan(ctx, currentScanID)
	if err != nil {
		slog.Error("failed to reload recommendations", "error", err)
		return
	}
	if rows == nil {
		return // nothing newer than currentScanID; keep serving the existing snapshot
	}

	next := map[string]WorkloadRecommendation{}
	for _, row := range rows {
		rec, ok := buildContainerRecommendation(row.Content)
		if !ok {
			continue
		}
		key := storeKey(row.Namespace, row.Name, row.Kind)
		workload, exists := next[key]
		if !exists {
			workload = WorkloadRecommendation{Containers: map[string]ContainerRecommendation{}}
		}
		workload.Containers[row.Container] = rec
		next[key] = workload
	}

	s.mu.Lock()
	s.recommendations = next
	s.scanID = scanID
	s.mu.Unlock()

	slog.Info("recommendations reloaded successfully", "scan_id", scanID, "workload_count", len(next))
}

func (s *Store) periodicReload() {
	defer close(s.done)
	ticker := time.NewTicker(s.reloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.reload(context.Background())
		}
	}
}

// Stop halts the reload goroutine and waits for it to exit.
func (s *Store) Stop() {
	close(s.stop)
	<-s.done
}

// GetRecommendations returns the recommendation for (namespace, name,
// kind), or false if none is currently loaded.
func (s *Store) GetRecommendations(namespace, name, kind string) (WorkloadRecommendation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recommendations[storeKey(namespace, name, kind)]
	return rec, ok
}
