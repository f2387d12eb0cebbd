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

// Package severity scores how far a recommendation differs from a
// workload's current allocation, so callers can highlight the scans that
// matter most. Calculators are registered per resource, not switched on in
// one monolithic function, so a caller can override just the CPU or
// memory rule without touching the other.
package severity

import (
	"math"

	"github.com/optipod/optipod/internal/model"
)

// Severity ranks how urgently a recommendation should be acted on.
type Severity string

const (
	Unknown  Severity = "UNKNOWN"
	Good     Severity = "GOOD"
	OK       Severity = "OK"
	Warning  Severity = "WARNING"
	Critical Severity = "CRITICAL"
)

// Calculator scores the gap between a current and recommended value for
// one resource. current/recommended are nil when the value is absent or
// unknown.
type Calculator func(current, recommended *float64) Severity

var registry = map[model.ResourceName]Calculator{
	model.ResourceCPU:    cpuCalculator,
	model.ResourceMemory: memoryCalculator,
}

// Register overrides the calculator used for resource, matching the
// Python strategy registry's bind_calculator decorator escape hatch.
func Register(resource model.ResourceName, calc Calculator) {
	registry[resource] = calc
}

// Calculate scores current against recommended for resource, returning
// Unknown for a resource with no registered calculator.
func Calculate(current, recommended *float64, resource model.ResourceName) Severity {
	calc, ok := registry[resource]
	if !ok {
		return Unknown
	}
	return calc(current, recommended)
}

func cpuCalculator(current, recommended *float64) Severity {
	if current == nil && recommended == nil {
		return Good
	}
	if current == nil || recommended == nil {
		return Warning
	}
	diff := math.Abs(*current - *recommended)
	switch {
	case diff >= 0.5:
		return Critical
	case diff >= 0.25:
		return Warning
	case diff >= 0.1:
		return OK
	default:
		return Good
	}
}

func memoryCalculator(current, recommended *float64) Severity {
	if current == nil && recommended == nil {
		return Good
	}
	if current == nil || recommended == nil {
		return Warning
	}
	diffMiB := math.Abs(*current-*recommended) / 1024 / 1024
	switch {
	case diffMiB >= 500:
		return Critical
	case diffMiB >= 250:
		return Warning
	case diffMiB >= 100:
		return OK
	default:
		return Good
	}
}
