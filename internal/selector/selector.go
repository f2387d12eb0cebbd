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

// Package selector resolves namespace allow/deny lists and
// matchLabels/matchExpressions label selectors, including the
// dynamic-object (camelCase) spelling used by Rollout/DeploymentConfig/
// StrimziPodSet custom resources.
package selector

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/optipod/optipod/internal/objectdict"
)

// NamespaceFilter is a namespace allow/deny list, matching the discovery
// layer's deny-takes-precedence-then-allow rule.
type NamespaceFilter struct {
	Allow []string
	Deny  []string
}

// Matches reports whether namespace passes the filter: denied namespaces
// never match even if also present in Allow; an empty Allow list means
// "all namespaces not denied".
func (f NamespaceFilter) Matches(namespace string) bool {
	for _, d := range f.Deny {
		if d == namespace {
			return false
		}
	}
	if len(f.Allow) == 0 {
		return true
	}
	for _, a := range f.Allow {
		if a == namespace {
			return true
		}
	}
	return false
}

// LabelSelectorMatches builds a labels.Selector from a typed
// *metav1.LabelSelector (matchLabels + matchExpressions with
// In/NotIn/Exists/DoesNotExist) and reports whether set matches it. A nil
// selector matches everything.
func LabelSelectorMatches(sel *metav1.LabelSelector, set map[string]string) (bool, error) {
	if sel == nil {
		return true, nil
	}
	s, err := metav1.LabelSelectorAsSelector(sel)
	if err != nil {
		return false, fmt.Errorf("invalid label selector: %w", err)
	}
	return s.Matches(labels.Set(set)), nil
}

// FromDict parses a dynamic-object selector tree (as returned by the
// custom-objects/dynamic client) into a *metav1.LabelSelector. Both
// "matchLabels"/"matchExpressions" (camelCase, the on-wire JSON spelling)
// and "match_labels"/"match_expressions" (snake_case) are accepted, per
// objectdict's dual-spelling resolution.
func FromDict(d objectdict.Dict) *metav1.LabelSelector {
	out := &metav1.LabelSelector{}

	if ml := d.Map("matchLabels"); ml != nil {
		out.MatchLabels = map[string]string{}
		for k, v := range ml {
			if s, ok := v.(string); ok {
				out.MatchLabels[k] = s
			}
		}
	}

	for _, expr := range d.Dicts("matchExpressions") {
		values := []string{}
		for _, v := range expr.Slice("values") {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
		out.MatchExpressions = append(out.MatchExpressions, metav1.LabelSelectorRequirement{
			Key:      expr.String("key"),
			Operator: metav1.LabelSelectorOperator(expr.String("operator")),
			Values:   values,
		})
	}

	if len(out.MatchLabels) == 0 {
		out.MatchLabels = nil
	}
	if len(out.MatchExpressions) == 0 {
		return &metav1.LabelSelector{MatchLabels: out.MatchLabels}
	}
	return out
}
