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

// Package strategy turns queried metric history into per-resource
// recommendations. Strategy is the pluggable seam: Simple computes
// percentile/peak-plus-buffer proposals locally, AIAssisted hands a
// statistics summary to an external black-box provider.
package strategy

import (
	"math"

	"github.com/optipod/optipod/internal/metricsquery"
	"github.com/optipod/optipod/internal/model"
)

// HistoryData is the set of metric families gathered for one workload
// container, keyed by the Metric.Name() that produced each family.
type HistoryData map[string]model.MetricFamily

// ObjectData is the subset of a Workload a strategy needs to gate its
// calculation (HPA presence, not the workload's full identity).
type ObjectData struct {
	HPA *model.HPASpec
}

// Strategy computes a Recommendation for one container from its queried
// history, gated by the HPA rules and minimum-data-point thresholds each
// strategy defines for itself.
type Strategy interface {
	Name() string
	// Metrics returns the ordered list of Metric queries this strategy
	// needs; the runner executes each and assembles the HistoryData map
	// keyed by metric name before calling Run.
	Metrics() []metricsquery.Metric
	Run(history HistoryData, object ObjectData) model.Recommendation
}

func totalPoints(fam model.MetricFamily) float64 {
	var total float64
	for _, s := range fam.Series {
		for _, p := range s.Points {
			total += p.Value
		}
	}
	return total
}

func maxAcrossPods(fam model.MetricFamily) float64 {
	max := math.Inf(-1)
	found := false
	for _, s := range fam.Series {
		for _, p := range s.Points {
			if p.Value > max {
				max = p.Value
			}
			found = true
		}
	}
	if !found {
		return math.NaN()
	}
	return max
}

func lastValue(fam model.MetricFamily) (float64, bool) {
	best := math.NaN()
	found := false
	for _, s := range fam.Series {
		if len(s.Points) == 0 {
			continue
		}
		last := s.Points[len(s.Points)-1].Value
		if !found || last > best {
			best = last
		}
		found = true
	}
	return best, found
}
