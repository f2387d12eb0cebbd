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

// Package cli implements the krr command-line recommendation engine: it
// runs one discovery-query-strategy pass over a cluster and prints the
// results as a table, JSON, or a one-line severity summary.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "krr",
	Short: "Kubernetes resource recommendations",
	Long: `krr discovers Kubernetes workloads, queries their historical CPU and
memory usage, and recommends resource requests and limits sized to that
usage rather than to whatever was guessed at deploy time.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
