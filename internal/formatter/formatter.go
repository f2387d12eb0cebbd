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

// Package formatter renders a recommendation run's results for the krr
// CLI, as either a human-readable table or machine-readable JSON.
package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/olekukonko/tablewriter"

	"github.com/optipod/optipod/internal/model"
	"github.com/optipod/optipod/internal/runner"
	"github.com/optipod/optipod/internal/severity"
	"github.com/optipod/optipod/internal/unit"
)

const (
	unsetLiteral = "unset"
	unknownLiteral = "?"
)

// Table renders results as an aligned plain-text table, one row per
// container-resource pair, matching the reference CLI's columnar report
// but without a color/markup-capable terminal renderer in scope.
func Table(w io.Writer, results []runner.ContainerResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAMESPACE", "KIND", "NAME", "CONTAINER", "RESOURCE", "REQUEST", "LIMIT", "SEVERITY", "INFO"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, res := range results {
		for _, resourceName := range []model.ResourceName{model.ResourceCPU, model.ResourceMemory} {
			rec, ok := res.Recommendation[resourceName]
			if !ok {
				continue
			}
			sev := severity.Calculate(nil, rec.Request, resourceName)
			table.Append([]string{
				res.Workload.Namespace,
				string(res.Workload.Kind),
				res.Workload.Name,
				res.Container,
				string(resourceName),
				formatValue(resourceName, rec.Request),
				formatValue(resourceName, rec.Limit),
				string(sev),
				rec.Info,
			})
		}
	}

	table.Render()
}

func formatValue(resourceName model.ResourceName, v model.AllocationValue) string {
	if v == nil {
		return unsetLiteral
	}
	if math.IsNaN(*v) {
		return unknownLiteral
	}
	if resourceName == model.ResourceCPU {
		return unit.FormatCPU(*v)
	}
	return unit.FormatMemory(*v)
}

// jsonResourceView is the stable on-wire shape for one resource's
// recommendation within the JSON formatter's output.
type jsonResourceView struct {
	Request string `json:"request"`
	Limit   string `json:"limit"`
	Severity string `json:"severity"`
	Info    string `json:"info,omitempty"`
}

type jsonContainerView struct {
	Namespace string                                `json:"namespace"`
	Kind      string                                 `json:"kind"`
	Name      string                                 `json:"name"`
	Container string                                 `json:"container"`
	Resources map[model.ResourceName]jsonResourceView `json:"resources"`
}

// JSON renders results as an indented JSON array, one entry per
// container, each carrying both its CPU and memory recommendation.
func JSON(w io.Writer, results []runner.ContainerResult) error {
	views := make([]jsonContainerView, 0, len(results))
	for _, res := range results {
		view := jsonContainerView{
			Namespace: res.Workload.Namespace,
			Kind:      string(res.Workload.Kind),
			Name:      res.Workload.Name,
			Container: res.Container,
			Resources: map[model.ResourceName]jsonResourceView{},
		}
		for _, resourceName := range []model.ResourceName{model.ResourceCPU, model.ResourceMemory} {
			rec, ok := res.Recommendation[resourceName]
			if !ok {
				continue
			}
			sev := severity.Calculate(nil, rec.Request, resourceName)
			view.Resources[resourceName] = jsonResourceView{
				Request:  formatValue(resourceName, rec.Request),
				Limit:    formatValue(resourceName, rec.Limit),
				Severity: string(sev),
				Info:     rec.Info,
			}
		}
		views = append(views, view)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

// Summary prints a one-line-per-severity count, matching the reference
// CLI's closing summary of how many recommendations fell into each
// severity bucket.
func Summary(w io.Writer, results []runner.ContainerResult) {
	counts := map[severity.Severity]int{}
	for _, res := range results {
		for _, resourceName := range []model.ResourceName{model.ResourceCPU, model.ResourceMemory} {
			rec, ok := res.Recommendation[resourceName]
			if !ok {
				continue
			}
			counts[severity.Calculate(nil, rec.Request, resourceName)]++
		}
	}
	for _, sev := range []severity.Severity{severity.Critical, severity.Warning, severity.OK, severity.Good, severity.Unknown} {
		if counts[sev] > 0 {
			fmt.Fprintf(w, "%s: %d\n", sev, counts[sev])
		}
	}
}
