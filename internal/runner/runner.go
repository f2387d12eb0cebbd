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

// Package runner is the recommendation engine's top-level orchestration:
// discover workloads, resolve their HPAs, query the metrics each
// strategy needs, and run the strategy per container, bounding how many
// containers are processed concurrently so one run never opens more
// Prometheus connections than the backend can take.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/optipod/optipod/internal/discovery"
	"github.com/optipod/optipod/internal/hpa"
	"github.com/optipod/optipod/internal/metricsquery"
	"github.com/optipod/optipod/internal/model"
	"github.com/optipod/optipod/internal/strategy"
)

// Lister discovers workloads; satisfied by discovery.KubeAPIDiscoverer
// and promsource.Discoverer interchangeably.
type Lister interface {
	Discover(ctx context.Context, opts discovery.Options) ([]discovery.RawWorkload, error)
}

// HPAResolver resolves HPAs for a set of namespaces into a scale-target
// index; satisfied by hpa.Resolver.
type HPAResolver interface {
	Resolve(ctx context.Context, namespaces []string) (map[hpa.TargetKey]*model.HPASpec, error)
}

// MetricQuerier executes one Metric for one workload; satisfied by
// metricsquery.Client.
type MetricQuerier interface {
	Query(ctx context.Context, m metricsquery.Metric, params metricsquery.QueryParams, at time.Time) (model.MetricFamily, error)
}

// Config bounds one run's concurrency and history window.
type Config struct {
	Concurrency int
	HistoryWindow time.Duration
	Step          time.Duration
}

// DefaultConfig mirrors the reference engine's default 7-day lookback
// with a 5-minute step, 10-way concurrent container processing.
func DefaultConfig() Config {
	return Config{Concurrency: 10, HistoryWindow: 7 * 24 * time.Hour, Step: 5 * time.Minute}
}

// Runner ties discovery, HPA resolution, metrics querying, and strategy
// execution into one recommendation pass.
type Runner struct {
	Lister      Lister
	HPAResolver HPAResolver
	Metrics     MetricQuerier
	Strategy    strategy.Strategy
	Config      Config
}

// New builds a Runner from its collaborators, defaulting Config via
// DefaultConfig when the zero value is passed.
func New(lister Lister, hpaResolver HPAResolver, metrics MetricQuerier, strat strategy.Strategy, cfg Config) *Runner {
	if cfg.Concurrency == 0 {
		cfg = DefaultConfig()
	}
	return &Runner{Lister: lister, HPAResolver: hpaResolver, Metrics: metrics, Strategy: strat, Config: cfg}
}

// ContainerResult is one container's recommendation together with the
// identity needed to key it into the recommendation store/patch builder.
type ContainerResult struct {
	Workload       model.WorkloadKey
	Container      string
	Recommendation model.Recommendation
	Warnings       []string
}

// Run discovers workloads matching opts, resolves their HPAs, and runs
// r.Strategy for every discovered container, fanning the per-container
// metrics-query-and-strategy work out across r.Config.Concurrency
// goroutines. A single container's query failure is logged and skipped
// rather than failing the whole run; an HPA-resolution failure is logged
// and the run goes on with no HPA data; only a discovery failure aborts
// Run entirely.
func (r *Runner) Run(ctx context.Context, opts discovery.Options) ([]ContainerResult, error) {
	rawWorkloads, err := r.Lister.Discover(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("discovering workloads: %w", err)
	}

	namespaces := uniqueNamespaces(rawWorkloads)
	hpaIndex, err := r.HPAResolver.Resolve(ctx, namespaces)
	if err != nil {
		slog.Warn("resolving HPAs failed, proceeding without HPA gating", "error", err)
		hpaIndex = map[hpa.TargetKey]*model.HPASpec{}
	}

	metrics := r.Strategy.Metrics()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Config.Concurrency)

	containerCount := 0
	for _, raw := range rawWorkloads {
		containerCount += len(raw.Containers)
	}
	results := make(chan ContainerResult, containerCount)

	for _, raw := range rawWorkloads {
		raw := raw
		targetKey := hpa.TargetKey{Namespace: raw.Namespace, Kind: raw.Kind, Name: raw.Name}
		hpaSpec := hpaIndex[targetKey]

		for _, container := range raw.Containers {
			container := container
			g.Go(func() error {
				res, err := r.runOne(gctx, raw, container.Name, hpaSpec, metrics)
				if err != nil {
					slog.Warn("skipping container after query failure",
						"namespace", raw.Namespace, "kind", raw.Kind, "name", raw.Name,
						"container", container.Name, "error", err)
					return nil
				}
				results <- res
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		close(results)
		return nil, err
	}
	close(results)

	out := make([]ContainerResult, 0, len(rawWorkloads))
	for res := range results {
		out = append(out, res)
	}
	return out, nil
}

func (r *Runner) runOne(ctx context.Context, raw discovery.RawWorkload, container string, hpaSpec *model.HPASpec, metrics []metricsquery.Metric) (ContainerResult, error) {
	history := strategy.HistoryData{}
	params := metricsquery.QueryParams{
		Namespace: raw.Namespace,
		Container: container,
		Duration:  r.Config.HistoryWindow,
		Step:      r.Config.Step,
	}

	now := time.Now()
	for _, m := range metrics {
		fam, err := r.Metrics.Query(ctx, m, params, now)
		if err != nil {
			return ContainerResult{}, fmt.Errorf("querying %s: %w", m.Name(), err)
		}
		history[m.Name()] = fam
	}

	rec := r.Strategy.Run(history, strategy.ObjectData{HPA: hpaSpec})

	return ContainerResult{
		Workload:  model.WorkloadKey{Namespace: raw.Namespace, Kind: raw.Kind, Name: raw.Name},
		Container: container,
		Recommendation: rec,
	}, nil
}

func uniqueNamespaces(workloads []discovery.RawWorkload) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range workloads {
		if !seen[w.Namespace] {
			seen[w.Namespace] = true
			out = append(out, w.Namespace)
		}
	}
	return out
}
