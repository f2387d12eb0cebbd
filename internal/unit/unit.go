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

// Package unit parses and formats Kubernetes CPU and memory quantities.
//
// CPU accepts a bare number (cores), a milli suffix ("100m"), or the rare
// "k" suffix (x1000, unusual for CPU but tolerated for symmetry with
// memory). Memory accepts raw bytes, binary suffixes (Ki, Mi, Gi, Ti, Pi,
// Ei, base 1024) and decimal suffixes (k, M, G, T, P, E, base 1000).
// Binary suffixes are matched before decimal ones so "128Mi" is never
// mistaken for a decimal "M" quantity.
package unit

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

// binarySuffixes must be checked before decimalSuffixes: both "Mi" and "M"
// are valid suffixes and only order disambiguates them.
var binarySuffixes = []struct {
	suffix string
	mult   float64
}{
	{"Ki", 1024},
	{"Mi", 1024 * 1024},
	{"Gi", 1024 * 1024 * 1024},
	{"Ti", 1024 * 1024 * 1024 * 1024},
	{"Pi", 1024 * 1024 * 1024 * 1024 * 1024},
	{"Ei", 1024 * 1024 * 1024 * 1024 * 1024 * 1024},
}

var decimalSuffixes = []struct {
	suffix string
	mult   float64
}{
	{"k", 1e3},
	{"M", 1e6},
	{"G", 1e9},
	{"T", 1e12},
	{"P", 1e15},
	{"E", 1e18},
}

// ParseCPU converts a Kubernetes CPU quantity string to cores. Returns
// ok=false for unparseable input; it never panics or returns an error past
// the caller, matching the "must never raise" rule for data-quality gates.
func ParseCPU(s string) (cores float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if strings.HasSuffix(s, "m") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "m"), 64)
		if err != nil {
			return 0, false
		}
		return v / 1000.0, true
	}
	if strings.HasSuffix(s, "k") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "k"), 64)
		if err != nil {
			return 0, false
		}
		return v * 1000.0, true
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseMemory converts a Kubernetes memory quantity string to bytes.
func ParseMemory(s string) (bytesVal float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	for _, suf := range binarySuffixes {
		if strings.HasSuffix(s, suf.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(s, suf.suffix), 64)
			if err != nil {
				return 0, false
			}
			return v * suf.mult, true
		}
	}
	for _, suf := range decimalSuffixes {
		if strings.HasSuffix(s, suf.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(s, suf.suffix), 64)
			if err != nil {
				return 0, false
			}
			return v * suf.mult, true
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatCPU renders a core count the way krr does: below one core it uses
// milli notation, otherwise a plain decimal string.
func FormatCPU(cores float64) string {
	if cores < 1 {
		return fmt.Sprintf("%dm", int(math.Round(cores*1000)))
	}
	return strconv.FormatFloat(cores, 'f', -1, 64)
}

// FormatMemory renders a byte count using the largest binary suffix that
// keeps the mantissa below 1024, falling back to a raw byte string below
// one Ki.
func FormatMemory(bytesVal float64) string {
	if bytesVal < binarySuffixes[0].mult {
		return strconv.FormatFloat(bytesVal, 'f', -1, 64)
	}
	chosen := binarySuffixes[0]
	for _, suf := range binarySuffixes {
		if bytesVal >= suf.mult {
			chosen = suf
		}
	}
	return strconv.FormatFloat(bytesVal/chosen.mult, 'f', -1, 64) + chosen.suffix
}

// Unknown is the sentinel value representing a Kubernetes quantity that
// parsed to a sentinel "?" or NaN on the source side. It is distinct from
// an absent value: absent means no field was set, Unknown means a field
// was set but could not be used.
var Unknown = math.NaN()

// IsUnknown reports whether v is the Unknown sentinel.
func IsUnknown(v float64) bool {
	return math.IsNaN(v)
}

// CPUQuantity builds a DecimalSI resource.Quantity from a core count,
// matching how the teacher's recommendation engine scales CPU quantities.
func CPUQuantity(cores float64) resource.Quantity {
	milli := int64(math.Round(cores * 1000))
	return *resource.NewMilliQuantity(milli, resource.DecimalSI)
}

// MemoryQuantity builds a BinarySI resource.Quantity from a byte count.
func MemoryQuantity(bytesVal float64) resource.Quantity {
	return *resource.NewQuantity(int64(math.Round(bytesVal)), resource.BinarySI)
}
