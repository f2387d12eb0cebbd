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

// Package admission serves the mutating webhook HTTP surface: decoding
// AdmissionReview requests, building JSON patches from the recommendation
// store, and maintaining the ReplicaSet owner index from ReplicaSet
// admission events routed through the same endpoint.
package admission

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/optipod/optipod/internal/objectdict"
	"github.com/optipod/optipod/internal/observability"
	"github.com/optipod/optipod/internal/owners"
	"github.com/optipod/optipod/internal/recostore"
)

// Default annotation and its recognized values, gating whether a pod is
// mutated at all regardless of any recommendation being available.
const (
	mutationModeAnnotation = "admission.robusta.dev/krr-mutation-mode"
	modeEnforce            = "enforce"
	modeIgnore             = "ignore"
)

// Server wires the owner index and recommendation store into the
// mutating webhook's HTTP handlers.
type Server struct {
	owners      *owners.Store
	recos       *recostore.Store
	defaultMode string // "enforce" or "ignore"; applied when the pod carries no annotation
}

// NewServer builds a Server. defaultMode mirrors KRR_MUTATION_MODE_DEFAULT:
// the mutation mode applied to pods that don't carry the annotation.
func NewServer(ownerStore *owners.Store, recoStore *recostore.Store, defaultMode string) *Server {
	return &Server{owners: ownerStore, recos: recoStore, defaultMode: defaultMode}
}

// Routes returns the mux the enforcer's HTTP server should serve.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mutate", s.handleMutate)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /recommendations/{namespace}/{kind}/{name}", s.handleGetRecommendations)
	mux.Handle("GET /metrics", s.metricsHandler())
	return mux
}

func (s *Server) enforcePod(pod objectdict.Dict) bool {
	metadata, _ := pod.Field("metadata")
	annotations, _ := metadata.Field("annotations")
	mode := annotations.String(mutationModeAnnotation)
	switch mode {
	case modeEnforce:
		return true
	case modeIgnore:
		return false
	default:
		return s.defaultMode == modeEnforce
	}
}

// handleMutate is the sole webhook entrypoint: it receives both Pod and
// ReplicaSet admission reviews, since ReplicaSet CREATE/DELETE events are
// how the owner index is kept current without a synchronous API call on
// every Pod review.
func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var review admissionv1.AdmissionReview
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		slog.Error("decoding admission review", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if review.Request == nil {
		http.Error(w, "admission review carries no request", http.StatusBadRequest)
		return
	}
	req := review.Request

	var object map[string]interface{}
	if len(req.Object.Raw) > 0 {
		if err := json.Unmarshal(req.Object.Raw, &object); err != nil {
			slog.Error("decoding reviewed object", "error", err)
			writeAllowed(w, &review, nil)
			return
		}
	}
	obj := objectdict.New(object)

	if req.Kind.Kind == "ReplicaSet" {
		var oldObject map[string]interface{}
		if len(req.OldObject.Raw) > 0 {
			_ = json.Unmarshal(req.OldObject.Raw, &oldObject)
		}
		s.owners.HandleReplicaSetAdmission(string(req.Operation), obj, objectdict.New(oldObject))
		observability.ReplicaSetAdmissions.WithLabelValues(string(req.Operation)).Inc()
		observability.AdmissionDuration.WithLabelValues("ReplicaSet").Observe(time.Since(start).Seconds())
		observability.RSOwnersMapSize.Set(float64(s.owners.Count()))
		writeAllowed(w, &review, nil)
		return
	}

	if req.Kind.Kind != "Pod" {
		slog.Warn("received unexpected resource mutation", "kind", req.Kind.Kind)
		writeAllowed(w, &review, nil)
		return
	}

	metadata, _ := obj.Field("metadata")
	slog.Debug("processing pod", "pod", podDisplayName(metadata))

	if !s.enforcePod(obj) {
		slog.Debug("pod skipped by annotation", "pod", podDisplayName(metadata))
		s.recordPodOutcome(start, false, "ignored_by_annotation")
		writeAllowed(w, &review, nil)
		return
	}

	owner, err := s.owners.GetPodOwner(obj)
	if err != nil {
		slog.Error("resolving pod owner", "error", err)
		s.recordPodOutcome(start, false, "processing_error")
		writeAllowed(w, &review, nil)
		return
	}
	if owner == nil {
		slog.Debug("no owner found, pod skipped", "pod", podDisplayName(metadata))
		s.recordPodOutcome(start, false, "no_owner_found")
		writeAllowed(w, &review, nil)
		return
	}

	recommendation, ok := s.recos.GetRecommendations(owner.Namespace, owner.Name, owner.Kind)
	if !ok {
		slog.Debug("no recommendations found, pod skipped", "owner", owner)
		s.recordPodOutcome(start, false, "no_recommendations_found")
		writeAllowed(w, &review, nil)
		return
	}

	spec, _ := obj.Field("spec")
	containers := spec.Dicts("containers")
	var patches []JSONPatchOp
	for i, container := range containers {
		name := container.String("name")
		containerRec, ok := recommendation.Get(name)
		resources, hadResources := containerResourcesMap(container)
		var recPtr *recostore.ContainerRecommendation
		if ok {
			recPtr = &containerRec
		}
		patches = append(patches, PatchContainerResources(i, hadResources, resources, recPtr)...)
	}

	wasMutated := len(patches) > 0
	reason := "no_changes_needed"
	if wasMutated {
		reason = "success"
	}
	s.recordPodOutcome(start, wasMutated, reason)
	writeAllowed(w, &review, patches)
}

func (s *Server) recordPodOutcome(start time.Time, mutated bool, reason string) {
	observability.PodAdmissionMutations.WithLabelValues(boolLabel(mutated), reason).Inc()
	observability.AdmissionDuration.WithLabelValues("Pod").Observe(time.Since(start).Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func podDisplayName(metadata objectdict.Dict) string {
	if n := metadata.String("name"); n != "" {
		return n
	}
	return metadata.String("generateName")
}

// containerResourcesMap reads a container's current requests/limits into
// the shape patchbuilder operates on, along with whether a "resources"
// field was present at all (determines add vs replace).
func containerResourcesMap(container objectdict.Dict) (map[string]map[string]string, bool) {
	resourcesDict, ok := container.Field("resources")
	if !ok {
		return map[string]map[string]string{}, false
	}
	out := map[string]map[string]string{}
	for _, section := range []string{"requests", "limits"} {
		sectionMap := resourcesDict.Map(section)
		if len(sectionMap) == 0 {
			continue
		}
		inner := map[string]string{}
		for k, v := range sectionMap {
			if s, ok := v.(string); ok {
				inner[k] = s
			}
		}
		out[section] = inner
	}
	return out, true
}

func writeAllowed(w http.ResponseWriter, review *admissionv1.AdmissionReview, patches []JSONPatchOp) {
	resp := &admissionv1.AdmissionResponse{
		UID:     review.Request.UID,
		Allowed: true,
	}
	if len(patches) > 0 {
		patchJSON, err := json.Marshal(patches)
		if err != nil {
			slog.Error("encoding patch", "error", err)
		} else {
			patchType := admissionv1.PatchTypeJSONPatch
			resp.PatchType = &patchType
			resp.Patch = patchJSON
		}
	}

	out := admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "admission.k8s.io/v1",
			Kind:       "AdmissionReview",
		},
		Response: resp,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.Error("writing admission response", "error", err)
	}
}

// handleHealth triggers the owner index's one-time ReplicaSet listing
// (deferred until after the server starts accepting traffic, not during
// construction) in addition to reporting liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.owners.FinalizeInitialization(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

type recommendationResourceView struct {
	Request float64  `json:"request"`
	Limit   *float64 `json:"limit"`
}

func (s *Server) handleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	kind := r.PathValue("kind")
	name := r.PathValue("name")

	rec, ok := s.recos.GetRecommendations(namespace, name, kind)
	if !ok {
		http.Error(w, "No recommendations found for this workload", http.StatusNotFound)
		return
	}

	containers := map[string]map[string]*recommendationResourceView{}
	for containerName, containerRec := range rec.Containers {
		view := map[string]*recommendationResourceView{}
		if containerRec.CPU != nil {
			view["cpu"] = &recommendationResourceView{Request: containerRec.CPU.Request, Limit: containerRec.CPU.Limit}
		}
		if containerRec.Memory != nil {
			view["memory"] = &recommendationResourceView{Request: containerRec.Memory.Request, Limit: containerRec.Memory.Limit}
		}
		containers[containerName] = view
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"namespace":  namespace,
		"kind":       kind,
		"name":       name,
		"containers": containers,
	})
}

// metricsHandler refreshes the owner-index size gauge immediately before
// every scrape, matching the reference webhook's "set on /metrics" timing
// rather than only updating it on admission events.
func (s *Server) metricsHandler() http.Handler {
	promHandler := promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observability.RSOwnersMapSize.Set(float64(s.owners.Count()))
		promHandler.ServeHTTP(w, r)
	})
}
