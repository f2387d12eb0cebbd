package recostore

import (
	"context"
	"testing"
	"time"
)

type fakeLoader struct {
	scanID string
	rows   []RawScanResult
	calls  int
}

func (f *fakeLoader) LatestScan(ctx context.Context, currentScanID string) (string, []RawScanResult, error) {
	f.calls++
	if currentScanID == f.scanID {
		return "", nil, nil
	}
	return f.scanID, f.rows, nil
}

func req(v float64) *float64 { return &v }

func TestStoreLoadsSynchronouslyOnConstruction(t *testing.T) {
	loader := &fakeLoader{
		scanID: "scan-1",
		rows: []RawScanResult{
			{Namespace: "default", Name: "web", Kind: "Deployment", Container: "app", Content: []RawResourceRecommendation{
				{Resource: "cpu", Request: req(0.5)},
			}},
		},
	}
	s := NewStore(context.Background(), loader, time.Hour)
	defer s.Stop()

	rec, ok := s.GetRecommendations("default", "web", "Deployment")
	if !ok {
		t.Fatal("expected recommendation to be loaded synchronously before constructor returns")
	}
	container, ok := rec.Get("app")
	if !ok || container.CPU == nil || container.CPU.Request != 0.5 {
		t.Fatalf("expected cpu request 0.5, got %+v", container)
	}
}

func TestStoreDropsContainerWithZeroRequest(t *testing.T) {
	loader := &fakeLoader{
		scanID: "scan-1",
		rows: []RawScanResult{
			{Namespace: "default", Name: "web", Kind: "Deployment", Container: "app", Content: []RawResourceRecommendation{
				{Resource: "cpu", Request: req(0)},
			}},
		},
	}
	s := NewStore(context.Background(), loader, time.Hour)
	defer s.Stop()

	if _, ok := s.GetRecommendations("default", "web", "Deployment"); ok {
		t.Fatal("expected zero-request container recommendation to be dropped entirely")
	}
}

func TestStoreDropsContainerWithUnknownValue(t *testing.T) {
	loader := &fakeLoader{
		scanID: "scan-1",
		rows: []RawScanResult{
			{Namespace: "default", Name: "web", Kind: "Deployment", Container: "app", Content: []RawResourceRecommendation{
				{Resource: "cpu", Request: req(0.5)},
				{Resource: "memory", RequestUnknown: true},
			}},
		},
	}
	s := NewStore(context.Background(), loader, time.Hour)
	defer s.Stop()

	if _, ok := s.GetRecommendations("default", "web", "Deployment"); ok {
		t.Fatal("expected container with any unknown-valued resource to be dropped entirely")
	}
}

func TestStoreSameScanIDDoesNotSwap(t *testing.T) {
	loader := &fakeLoader{
		scanID: "scan-1",
		rows: []RawScanResult{
			{Namespace: "default", Name: "web", Kind: "Deployment", Container: "app", Content: []RawResourceRecommendation{
				{Resource: "cpu", Request: req(0.5)},
			}},
		},
	}
	s := NewStore(context.Background(), loader, time.Hour)
	defer s.Stop()

	s.reload(context.Background())
	if loader.calls != 2 {
		t.Fatalf("expected 2 loader calls, got %d", loader.calls)
	}
	if _, ok := s.GetRecommendations("default", "web", "Deployment"); !ok {
		t.Fatal("expected recommendation to remain present after a same-scan-id reload")
	}
}
