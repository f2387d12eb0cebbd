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

package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/client-go/dynamic"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/optipod/optipod/internal/aiprovider"
	"github.com/optipod/optipod/internal/discovery"
	"github.com/optipod/optipod/internal/discovery/promsource"
	"github.com/optipod/optipod/internal/formatter"
	"github.com/optipod/optipod/internal/hpa"
	"github.com/optipod/optipod/internal/metricsquery"
	"github.com/optipod/optipod/internal/runner"
	"github.com/optipod/optipod/internal/selector"
	"github.com/optipod/optipod/internal/strategy"
)

var (
	scanNamespaces      []string
	scanDenyNamespaces  []string
	scanPrometheusURL   string
	scanUsePromDiscovery bool
	scanStrategy        string
	scanOutput          string
	scanHistoryWindow   time.Duration
	scanStep            time.Duration
	scanConcurrency     int
	scanAIEndpoint      string
	scanAIAPIKey        string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one recommendation pass and print the results",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanNamespaces, "namespace", nil, "namespaces to scan (default: all except --deny-namespace)")
	scanCmd.Flags().StringSliceVar(&scanDenyNamespaces, "deny-namespace", []string{"kube-system"}, "namespaces to exclude")
	scanCmd.Flags().StringVar(&scanPrometheusURL, "prometheus-url", "http://prometheus-k8s.monitoring:9090", "Prometheus server to query")
	scanCmd.Flags().BoolVar(&scanUsePromDiscovery, "prometheus-discovery", false, "discover workloads from Prometheus series instead of the Kubernetes API (for clusters the API server isn't reachable from)")
	scanCmd.Flags().StringVar(&scanStrategy, "strategy", "simple", "recommendation strategy to use (simple|ai)")
	scanCmd.Flags().StringVar(&scanOutput, "output", "table", "output format (table|json|summary)")
	scanCmd.Flags().DurationVar(&scanHistoryWindow, "history", 7*24*time.Hour, "how far back to look for usage history")
	scanCmd.Flags().DurationVar(&scanStep, "step", 5*time.Minute, "resolution of the queried history")
	scanCmd.Flags().IntVar(&scanConcurrency, "concurrency", 10, "maximum number of containers processed concurrently")
	scanCmd.Flags().StringVar(&scanAIEndpoint, "ai-endpoint", "", "endpoint of an AI-assisted strategy provider (required when --strategy=ai)")
	scanCmd.Flags().StringVar(&scanAIAPIKey, "ai-api-key", "", "API key for the AI-assisted strategy provider")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("loading kubeconfig: %w", err)
	}
	k8sClient, err := client.New(restConfig, client.Options{})
	if err != nil {
		return fmt.Errorf("building Kubernetes client: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	metricsClient, err := metricsquery.NewClient(scanPrometheusURL, httpClient, nil)
	if err != nil {
		return fmt.Errorf("building Prometheus client: %w", err)
	}

	var lister runner.Lister
	if scanUsePromDiscovery {
		lister = promsource.NewDiscoverer(instantQuerierAdapter{metricsClient})
	} else {
		dynClient, err := dynamic.NewForConfig(restConfig)
		if err != nil {
			return fmt.Errorf("building dynamic client: %w", err)
		}
		lister = discovery.NewKubeAPIDiscoverer(k8sClient, dynClient)
	}

	hpaResolver := hpa.NewResolver(k8sClient)

	strat, err := buildStrategy(httpClient)
	if err != nil {
		return err
	}

	r := runner.New(lister, hpaResolver, metricsClient, strat, runner.Config{
		Concurrency:   scanConcurrency,
		HistoryWindow: scanHistoryWindow,
		Step:          scanStep,
	})

	opts := discovery.DefaultOptions()
	opts.Namespaces = selector.NamespaceFilter{Allow: scanNamespaces, Deny: scanDenyNamespaces}

	results, err := r.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("running recommendation pass: %w", err)
	}

	switch scanOutput {
	case "json":
		return formatter.JSON(os.Stdout, results)
	case "summary":
		formatter.Summary(os.Stdout, results)
		return nil
	default:
		formatter.Table(os.Stdout, results)
		return nil
	}
}

func buildStrategy(httpClient *http.Client) (strategy.Strategy, error) {
	switch scanStrategy {
	case "ai":
		if scanAIEndpoint == "" {
			return nil, fmt.Errorf("--ai-endpoint is required when --strategy=ai")
		}
		provider := aiprovider.NewHTTPProvider("krr-cli", scanAIEndpoint, scanAIAPIKey, httpClient)
		return strategy.NewAIAssistedStrategy(strategy.AIAssistedSettings{}, provider), nil
	case "simple", "":
		return strategy.NewSimpleStrategy(strategy.DefaultSimpleSettings()), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (expected simple or ai)", scanStrategy)
	}
}

// instantQuerierAdapter lets the CLI reuse one metricsquery.Client for
// both promsource's ad hoc aggregation queries and the strategy's
// registered Metric queries, rather than opening a second Prometheus
// connection when --prometheus-discovery is set.
type instantQuerierAdapter struct {
	client *metricsquery.Client
}

func (a instantQuerierAdapter) QueryInstant(ctx context.Context, query string) ([]promsource.Sample, error) {
	samples, err := a.client.QueryInstant(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]promsource.Sample, 0, len(samples))
	for _, s := range samples {
		out = append(out, promsource.Sample{Labels: s.Labels, Value: s.Value})
	}
	return out, nil
}
