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
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/optipod/optipod/internal/aiprovider"
	"github.com/optipod/optipod/internal/metricsquery"
	"github.com/optipod/optipod/internal/model"
)

// AIAssistedSettings configures AIAssistedStrategy. The numeric minimum
// and maximum clamps mirror the global sane-default guard rails every
// strategy's output is validated against before being returned to a
// caller.
type AIAssistedSettings struct {
	CPUPercentile  float64
	PointsRequired float64
	AllowHPA       bool

	Temperature float64
	MaxTokens   int

	CPUMinCores    float64
	MemoryMinBytes float64
	CPUMaxCores    float64
	MemoryMaxBytes float64
}

// DefaultAIAssistedSettings mirrors the strategy's shipped defaults,
// including the 16 core / 64GiB sanity ceiling applied to every proposal
// regardless of what the provider returns.
func DefaultAIAssistedSettings() AIAssistedSettings {
	return AIAssistedSettings{
		CPUPercentile:  95,
		PointsRequired: 100,
		AllowHPA:       false,
		Temperature:    0.3,
		MaxTokens:      1000,
		CPUMinCores:    0.01,
		MemoryMinBytes: 16 * 1024 * 1024,
		CPUMaxCores:    16,
		MemoryMaxBytes: 64 * 1024 * 1024 * 1024,
	}
}

// WorkloadStats is the statistics summary handed to the AI provider in
// place of the raw time series, keeping the prompt small and deterministic
// to serialize.
type WorkloadStats struct {
	CPUMax        float64 `json:"cpu_max"`
	CPUMean       float64 `json:"cpu_mean"`
	CPUPercentile float64 `json:"cpu_percentile"`
	MemoryMax     float64 `json:"memory_max"`
	PodCount      int     `json:"pod_count"`
	DataPoints    float64 `json:"total_data_points"`
	OOMKillMax    float64 `json:"oomkill_max_memory,omitempty"`
	HPAPresent    bool    `json:"hpa_present"`
}

func extractStats(history HistoryData) WorkloadStats {
	var stats WorkloadStats

	cpu := history["PercentileCPULoader"]
	stats.PodCount = len(cpu.Series)
	var sum float64
	var count int
	for _, s := range cpu.Series {
		for _, p := range s.Points {
			sum += p.Value
			count++
			if p.Value > stats.CPUMax {
				stats.CPUMax = p.Value
			}
		}
	}
	if count > 0 {
		stats.CPUMean = sum / float64(count)
		stats.CPUPercentile = stats.CPUMax
	}

	stats.MemoryMax = maxAcrossPods(history["MaxMemoryLoader"])
	if math.IsNaN(stats.MemoryMax) || math.IsInf(stats.MemoryMax, -1) {
		stats.MemoryMax = 0
	}

	stats.DataPoints = totalPoints(history["CPUAmountLoader"]) + totalPoints(history["MemoryAmountLoader"])

	if v, ok := lastValue(history["MaxOOMKilledMemoryLoader"]); ok {
		stats.OOMKillMax = v
	}

	return stats
}

// AIAssistedStrategy hands a statistics summary to an external provider
// and clamps its reply into sane bounds, falling back to an "undefined"
// recommendation with an explanatory Info string on any provider error —
// it never panics or propagates the provider's error to the caller.
type AIAssistedStrategy struct {
	Settings AIAssistedSettings
	Provider aiprovider.Provider
}

// NewAIAssistedStrategy builds an AIAssistedStrategy backed by provider.
func NewAIAssistedStrategy(settings AIAssistedSettings, provider aiprovider.Provider) *AIAssistedStrategy {
	return &AIAssistedStrategy{Settings: settings, Provider: provider}
}

func (s *AIAssistedStrategy) Name() string { return "ai-assisted" }

func (s *AIAssistedStrategy) Metrics() []metricsquery.Metric {
	return []metricsquery.Metric{
		metricsquery.PercentileCPULoader(s.Settings.CPUPercentile),
		metricsquery.MaxMemoryLoader,
		metricsquery.CPUAmountLoader,
		metricsquery.MemoryAmountLoader,
		metricsquery.MaxOOMKilledMemoryLoader,
	}
}

// Run implements Strategy. ctx is threaded through RunWithContext; Run
// itself uses context.Background() so the interface stays uniform with
// Simple — callers that need cancellation should use RunWithContext
// directly via a type assertion.
func (s *AIAssistedStrategy) Run(history HistoryData, object ObjectData) model.Recommendation {
	return s.RunWithContext(context.Background(), history, object)
}

// RunWithContext is the cancellable form of Run, for callers that hold a
// deadline for the provider round trip. The runner calls Run, which passes
// context.Background().
func (s *AIAssistedStrategy) RunWithContext(ctx context.Context, history HistoryData, object ObjectData) model.Recommendation {
	stats := extractStats(history)

	if stats.DataPoints < s.Settings.PointsRequired {
		return model.Recommendation{
			model.ResourceCPU:    model.Undefined("Not enough data"),
			model.ResourceMemory: model.Undefined("Not enough data"),
		}
	}

	if object.HPA != nil && !s.Settings.AllowHPA {
		cpuGated := object.HPA.TargetCPUUtilizationPercent != nil
		memGated := object.HPA.TargetMemoryUtilizationPercent != nil
		if cpuGated && memGated {
			return model.Recommendation{
				model.ResourceCPU:    model.Undefined("HPA detected"),
				model.ResourceMemory: model.Undefined("HPA detected"),
			}
		}
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return aiError()
	}

	messages := []aiprovider.Message{
		{Role: "system", Content: "You recommend Kubernetes CPU and memory requests/limits from usage statistics. Reply with cpu_request/cpu_limit in cores and memory_request/memory_limit in bytes."},
		{Role: "user", Content: string(payload)},
	}

	result, err := s.Provider.AnalyzeMetrics(ctx, messages, s.Settings.Temperature, s.Settings.MaxTokens)
	if err != nil {
		return aiError()
	}

	clamp := func(v *float64, min, max float64) *float64 {
		if v == nil {
			return nil
		}
		clamped := math.Max(min, math.Min(max, *v))
		return &clamped
	}

	cpuRequest := clamp(result.CPURequest, s.Settings.CPUMinCores, s.Settings.CPUMaxCores)
	cpuLimit := clamp(result.CPULimit, s.Settings.CPUMinCores, s.Settings.CPUMaxCores)
	memRequest := clamp(result.MemoryRequest, s.Settings.MemoryMinBytes, s.Settings.MemoryMaxBytes)
	memLimit := clamp(result.MemoryLimit, s.Settings.MemoryMinBytes, s.Settings.MemoryMaxBytes)

	reasoning := result.Reasoning
	if len(reasoning) > 50 {
		reasoning = reasoning[:50] + "..."
	}
	info := fmt.Sprintf("AI: %s (conf: %d%%)", reasoning, result.Confidence)

	return model.Recommendation{
		model.ResourceCPU:    model.ResourceRecommendation{Request: cpuRequest, Limit: cpuLimit, Info: info},
		model.ResourceMemory: model.ResourceRecommendation{Request: memRequest, Limit: memLimit, Info: info},
	}
}

func aiError() model.Recommendation {
	return model.Recommendation{
		model.ResourceCPU:    model.Undefined("AI error"),
		model.ResourceMemory: model.Undefined("AI error"),
	}
}
