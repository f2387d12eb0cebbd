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

package metricsquery

// Victoria Metrics, Thanos Query, and Grafana Mimir all speak unmodified
// PromQL over the same /api/v1/query(_range) shape client_golang already
// targets, so none of them get a dialect subpackage: NewClient pointed at
// their endpoint with the base Metric set (CPULoader, MaxMemoryLoader,
// ...) is sufficient. gcpmp, awsamp, azuremp, and coralogix exist because
// those four backends diverge from stock PromQL in metric naming,
// request signing, or auth headers respectively.
