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

// Package objectdict provides a small accessor over loosely-typed trees
// returned by the dynamic/custom-object client (Rollout, DeploymentConfig,
// StrimziPodSet), tolerating either snake_case or camelCase keys at each
// level without the caller needing to know which the cluster's CRD uses.
package objectdict

import "strings"

// Dict wraps an unstructured tree (as returned by
// runtime.DefaultUnstructuredConverter or a dynamic-client Get) and
// resolves field paths preferring snake_case when both spellings are
// present and non-empty, matching the discovery rule for init containers
// ("prefer the snake form when both non-empty").
type Dict struct {
	root map[string]interface{}
}

// New wraps a raw map as a Dict. A nil map is valid and every lookup
// resolves to "not found".
func New(root map[string]interface{}) Dict {
	if root == nil {
		root = map[string]interface{}{}
	}
	return Dict{root: root}
}

// camelToSnake converts a camelCase key to its snake_case equivalent, e.g.
// "ownerReferences" -> "owner_references".
func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lookup returns the raw value stored at key, trying the snake_case form
// first (it is preferred when both spellings are populated), then the
// camelCase form as given.
func lookup(m map[string]interface{}, key string) (interface{}, bool) {
	snake := camelToSnake(key)
	if snake != key {
		if v, ok := m[snake]; ok && !isEmpty(v) {
			return v, true
		}
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	if snake != key {
		if v, ok := m[snake]; ok {
			return v, true
		}
	}
	return nil, false
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	case string:
		return t == ""
	default:
		return false
	}
}

// Field descends a dot-separated path (e.g. "spec.template.spec") and
// returns the leaf Dict and true, or a zero Dict and false if any segment
// is missing or not itself a map.
func (d Dict) Field(path string) (Dict, bool) {
	cur := d.root
	if path == "" {
		return d, true
	}
	for _, seg := range strings.Split(path, ".") {
		v, ok := lookup(cur, seg)
		if !ok {
			return Dict{}, false
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return Dict{}, false
		}
		cur = m
	}
	return Dict{root: cur}, true
}

// String returns the string value at key, or "" if absent or not a string.
func (d Dict) String(key string) string {
	v, ok := lookup(d.root, key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Slice returns the list value at key as []interface{}, preferring the
// snake_case spelling when both are present and non-empty (e.g.
// "init_containers" over "initContainers").
func (d Dict) Slice(key string) []interface{} {
	v, ok := lookup(d.root, key)
	if !ok {
		return nil
	}
	s, _ := v.([]interface{})
	return s
}

// Map returns the raw map value at key.
func (d Dict) Map(key string) map[string]interface{} {
	v, ok := lookup(d.root, key)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]interface{})
	return m
}

// Dicts returns Slice(key) as a []Dict for convenient iteration.
func (d Dict) Dicts(key string) []Dict {
	raw := d.Slice(key)
	out := make([]Dict, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, New(m))
		}
	}
	return out
}

// Bool returns the bool value at key, defaulting to false.
func (d Dict) Bool(key string) bool {
	v, ok := lookup(d.root, key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Raw exposes the underlying map for callers that need to hand it to
// other decoders (e.g. runtime.DefaultUnstructuredConverter.FromUnstructured).
func (d Dict) Raw() map[string]interface{} {
	return d.root
}
