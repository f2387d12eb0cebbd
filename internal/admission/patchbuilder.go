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

package admission

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/optipod/optipod/internal/recostore"
	"github.com/optipod/optipod/internal/unit"
)

// JSONPatchOp is one RFC 6902 operation, built by hand (not via
// gomodules.xyz/jsonpatch or evanphx/json-patch) since the enforcer only
// ever emits a single well-known shape per container: add-or-replace the
// whole /spec/containers/N/resources object.
type JSONPatchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// UpdateThresholdPercent gates whether an existing, non-zero value is
// considered close enough to the recommendation to leave alone. It is
// package state (not a parameter on every call) because it is the same
// operator-tunable knob for every container the enforcer ever patches
// within one process lifetime.
var UpdateThresholdPercent = 20.0

func significantDiff(old *float64, new float64) bool {
	if old == nil || *old == 0 {
		return true
	}
	percentDiff := abs(new-*old) / abs(*old) * 100
	return percentDiff > UpdateThresholdPercent
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func setResourceValue(resources map[string]map[string]string, resourceType, resourceName, value string) {
	if resources[resourceType] == nil {
		resources[resourceType] = map[string]string{}
	}
	resources[resourceType][resourceName] = value
}

// getUpdatedResources applies recommendation on top of the container's
// current resources map (requests/limits, each resource -> quantity
// string), returning a new map with only the fields that actually need to
// change touched. A field is left alone when its current value is already
// within UpdateThresholdPercent of the recommendation.
func getUpdatedResources(resources map[string]map[string]string, recommendation recostore.ContainerRecommendation) map[string]map[string]string {
	updated := map[string]map[string]string{}
	for k, v := range resources {
		inner := map[string]string{}
		for ik, iv := range v {
			inner[ik] = iv
		}
		updated[k] = inner
	}

	if cpu := recommendation.CPU; cpu != nil {
		applyResource(updated, "cpu", cpu.Request, cpu.Limit, unit.ParseCPU, formatCPUPatchValue)
	}
	if mem := recommendation.Memory; mem != nil {
		applyResource(updated, "memory", mem.Request, mem.Limit, unit.ParseMemory, formatMemoryPatchValue)
	}

	return updated
}

// formatCPUPatchValue and formatMemoryPatchValue render a patch's resource
// value the way the Kubernetes API itself accepts a plain quantity string:
// a bare number, not the unit-suffixed notation unit.FormatCPU/FormatMemory
// use for table/JSON display (e.g. "0.25", never "250m"; "134217728", never
// "128Mi"). Both forms parse to the same Quantity, but patch values must
// match what a recommendation reports in canonical units.
func formatCPUPatchValue(cores float64) string {
	return strconv.FormatFloat(cores, 'f', -1, 64)
}

func formatMemoryPatchValue(bytesVal float64) string {
	return strconv.FormatFloat(math.Round(bytesVal), 'f', -1, 64)
}

func applyResource(resources map[string]map[string]string, name string, request float64, limit *float64, parse func(string) (float64, bool), format func(float64) string) {
	oldReq, hasOldReq := resources["requests"][name]
	var oldReqVal *float64
	if hasOldReq {
		if v, ok := parse(oldReq); ok {
			oldReqVal = &v
		}
	}
	if oldReqVal != nil && *oldReqVal != 0 {
		if significantDiff(oldReqVal, request) {
			setResourceValue(resources, "requests", name, format(request))
		}
	} else {
		setResourceValue(resources, "requests", name, format(request))
	}

	oldLim, hasOldLim := resources["limits"][name]
	var oldLimVal *float64
	if hasOldLim {
		if v, ok := parse(oldLim); ok {
			oldLimVal = &v
		}
	}
	if oldLimVal != nil && *oldLimVal != 0 {
		if limit == nil {
			if resources["limits"] != nil {
				delete(resources["limits"], name)
			}
		} else if significantDiff(oldLimVal, *limit) {
			setResourceValue(resources, "limits", name, format(*limit))
		}
	} else if limit != nil {
		setResourceValue(resources, "limits", name, format(*limit))
	}
}

// validateResources enforces the two sanity rules a patch must satisfy
// before it is ever sent to the API server: a defined request must be
// positive, and a defined limit must be at least the request.
func validateResources(resources map[string]map[string]string) bool {
	cpuReq, cpuReqOK := parseMaybe(resources["requests"]["cpu"], unit.ParseCPU)
	cpuLim, cpuLimOK := parseMaybe(resources["limits"]["cpu"], unit.ParseCPU)
	if cpuReqOK && cpuReq <= 0 {
		slog.Warn("invalid cpu request", "value", resources["requests"]["cpu"])
		return false
	}
	if cpuReqOK && cpuLimOK && cpuLim < cpuReq {
		slog.Warn("invalid cpu: limit below request", "limit", resources["limits"]["cpu"], "request", resources["requests"]["cpu"])
		return false
	}

	memReq, memReqOK := parseMaybe(resources["requests"]["memory"], unit.ParseMemory)
	memLim, memLimOK := parseMaybe(resources["limits"]["memory"], unit.ParseMemory)
	if memReqOK && memReq <= 0 {
		slog.Warn("invalid memory request", "value", resources["requests"]["memory"])
		return false
	}
	if memReqOK && memLimOK && memLim < memReq {
		slog.Warn("invalid memory: limit below request", "limit", resources["limits"]["memory"], "request", resources["requests"]["memory"])
		return false
	}

	return true
}

func parseMaybe(s string, parse func(string) (float64, bool)) (float64, bool) {
	if s == "" {
		return 0, false
	}
	return parse(s)
}

// PatchContainerResources compares containerIndex's current resources
// against recommendation and returns the JSON-Patch operations needed to
// bring them in line, or nil if nothing needs to change (no
// recommendation, values already within threshold, or the resulting
// resources would fail validation).
func PatchContainerResources(containerIndex int, hadResources bool, resources map[string]map[string]string, recommendation *recostore.ContainerRecommendation) []JSONPatchOp {
	if recommendation == nil {
		return nil
	}

	updated := getUpdatedResources(resources, *recommendation)
	if resourcesEqual(resources, updated) {
		return nil
	}
	if !validateResources(updated) {
		return nil
	}

	op := "add"
	if hadResources {
		op = "replace"
	}

	return []JSONPatchOp{{
		Op:    op,
		Path:  path(containerIndex),
		Value: updated,
	}}
}

func path(containerIndex int) string {
	return "/spec/containers/" + strconv.Itoa(containerIndex) + "/resources"
}

func resourcesEqual(a, b map[string]map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for ik, iv := range av {
			if bv[ik] != iv {
				return false
			}
		}
	}
	return true
}
