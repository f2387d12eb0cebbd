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

package strategy

import (
	"github.com/optipod/optipod/internal/metricsquery"
	"github.com/optipod/optipod/internal/model"
)

// SimpleSettings configures SimpleStrategy. Defaults match the percentile
// and buffer values the strategy has always shipped with.
type SimpleSettings struct {
	CPUPercentile              float64
	MemoryBufferPercentage     float64
	PointsRequired             float64
	AllowHPA                   bool
	UseOOMKillData             bool
	OOMMemoryBufferPercentage  float64
}

// DefaultSimpleSettings returns the strategy's out-of-the-box defaults.
func DefaultSimpleSettings() SimpleSettings {
	return SimpleSettings{
		CPUPercentile:             95,
		MemoryBufferPercentage:    15,
		PointsRequired:            100,
		AllowHPA:                  false,
		UseOOMKillData:            false,
		OOMMemoryBufferPercentage: 25,
	}
}

// SimpleStrategy recommends CPU at a configurable percentile with no
// limit, and memory at peak-usage-plus-buffer for both request and limit,
// optionally bumped further when OOMKill events were observed.
type SimpleStrategy struct {
	Settings SimpleSettings
}

// NewSimpleStrategy builds a SimpleStrategy with the given settings.
func NewSimpleStrategy(settings SimpleSettings) *SimpleStrategy {
	return &SimpleStrategy{Settings: settings}
}

func (s *SimpleStrategy) Name() string { return "simple" }

// Metrics lists PercentileCPULoader (at the configured percentile),
// MaxMemoryLoader, and the two data-point-count loaders every run needs for
// its "not enough data" gate; MaxOOMKilledMemoryLoader is only requested
// when UseOOMKillData is set.
func (s *SimpleStrategy) Metrics() []metricsquery.Metric {
	metrics := []metricsquery.Metric{
		metricsquery.PercentileCPULoader(s.Settings.CPUPercentile),
		metricsquery.MaxMemoryLoader,
		metricsquery.CPUAmountLoader,
		metricsquery.MemoryAmountLoader,
	}
	if s.Settings.UseOOMKillData {
		metrics = append(metrics, metricsquery.MaxOOMKilledMemoryLoader)
	}
	return metrics
}

func (s *SimpleStrategy) Run(history HistoryData, object ObjectData) model.Recommendation {
	return model.Recommendation{
		model.ResourceCPU:    s.cpuProposal(history, object),
		model.ResourceMemory: s.memoryProposal(history, object),
	}
}

func (s *SimpleStrategy) cpuProposal(history HistoryData, object ObjectData) model.ResourceRecommendation {
	data := history["PercentileCPULoader"]
	if len(data.Series) == 0 {
		return model.Undefined("No data")
	}

	amount := history["CPUAmountLoader"]
	if totalPoints(amount) < s.Settings.PointsRequired {
		return model.Undefined("Not enough data")
	}

	if object.HPA != nil && object.HPA.TargetCPUUtilizationPercent != nil && !s.Settings.AllowHPA {
		return model.Undefined("HPA detected")
	}

	usage := maxAcrossPods(data)
	request := usage
	return model.ResourceRecommendation{
		Request: &request,
		Limit:   nil,
	}
}

func (s *SimpleStrategy) memoryProposal(history HistoryData, object ObjectData) model.ResourceRecommendation {
	data := history["MaxMemoryLoader"]

	oomkillDetected := false
	var maxOOMValue float64
	if s.Settings.UseOOMKillData {
		oomData := history["MaxOOMKilledMemoryLoader"]
		if v, ok := lastValue(oomData); ok && v != 0 {
			maxOOMValue = v
			oomkillDetected = true
		}
	}

	if len(data.Series) == 0 {
		return model.Undefined("No data")
	}

	amount := history["MemoryAmountLoader"]
	if totalPoints(amount) < s.Settings.PointsRequired {
		return model.Undefined("Not enough data")
	}

	if object.HPA != nil && object.HPA.TargetMemoryUtilizationPercent != nil && !s.Settings.AllowHPA {
		return model.Undefined("HPA detected")
	}

	peak := maxAcrossPods(data)
	bufferedPeak := peak * (1 + s.Settings.MemoryBufferPercentage/100)
	bufferedOOM := maxOOMValue * (1 + s.Settings.OOMMemoryBufferPercentage/100)
	usage := bufferedPeak
	if bufferedOOM > usage {
		usage = bufferedOOM
	}

	info := ""
	if oomkillDetected {
		info = "OOMKill detected"
	}

	request := usage
	limit := usage
	return model.ResourceRecommendation{Request: &request, Limit: &limit, Info: info}
}
