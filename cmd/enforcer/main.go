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

// Command enforcer runs the KRR recommendation admission webhook: it
// mutates Pod resource requests/limits in place at admission time using
// the most recently loaded recommendation scan, tracking ReplicaSet ->
// Deployment ownership from the admission stream itself rather than
// querying the API server synchronously on every Pod review.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/optipod/optipod/internal/admission"
	"github.com/optipod/optipod/internal/certstore"
	"github.com/optipod/optipod/internal/config"
	"github.com/optipod/optipod/internal/datastore"
	"github.com/optipod/optipod/internal/discovery"
	"github.com/optipod/optipod/internal/observability"
	"github.com/optipod/optipod/internal/owners"
	"github.com/optipod/optipod/internal/recostore"
)

// DO NOT ADD ANY CODE ABOVE THIS CALL.
// Installing the custom trust anchor before any HTTP client is constructed
// is what makes it apply to every client the rest of this process builds,
// including the one the datastore client wraps.
func init() {
	installed, err := certstore.InstallFromEnv(os.LookupEnv)
	if err != nil {
		panic(err)
	}
	if installed {
		os.Stdout.WriteString("added custom certificate\n")
	}
}

func main() {
	opts := zap.Options{Development: true}
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	setupLog := ctrl.Log.WithName("enforcer")

	cfg, err := config.LoadEnforcerConfig()
	if err != nil {
		setupLog.Error(err, "unable to load enforcer configuration")
		os.Exit(1)
	}
	admission.UpdateThresholdPercent = cfg.UpdateThreshold

	observability.RegisterAdmissionMetrics()

	restConfig := ctrl.GetConfigOrDie()
	k8sClient, err := client.New(restConfig, client.Options{})
	if err != nil {
		setupLog.Error(err, "unable to build Kubernetes client")
		os.Exit(1)
	}

	rsLister := discovery.NewReplicaSetOwnerLister(k8sClient)
	ownerStore := owners.NewStore(rsLister, cfg.ReplicaSetDeletionWait, cfg.ReplicaSetCleanupInterval)

	ctx := ctrl.SetupSignalHandler()

	var loader recostore.Loader = noopLoader{}
	if cfg.StoreURL != "" {
		loader = datastore.NewClient(cfg.DatastoreConfig(""), &http.Client{Timeout: 15 * time.Second})
	} else {
		setupLog.Info("STORE_URL not set, running with an empty recommendation store")
	}
	recoStore := recostore.NewStore(ctx, loader, cfg.ScanReloadInterval)

	server := admission.NewServer(ownerStore, recoStore, cfg.KRRMutationModeDefault)

	httpServer := &http.Server{
		Addr:    ":8443",
		Handler: server.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		ownerStore.Stop()
		recoStore.Stop()
	}()

	setupLog.Info("starting admission webhook", "addr", httpServer.Addr)
	var serveErr error
	if cfg.SSLCertFile != "" && cfg.SSLKeyFile != "" {
		serveErr = httpServer.ListenAndServeTLS(cfg.SSLCertFile, cfg.SSLKeyFile)
	} else {
		setupLog.Info("no TLS certificate configured, serving plaintext (suitable only behind a terminating proxy)")
		serveErr = httpServer.ListenAndServe()
	}
	if serveErr != nil && serveErr != http.ErrServerClosed {
		setupLog.Error(serveErr, "admission webhook server stopped unexpectedly")
		os.Exit(1)
	}
}

// noopLoader backs the recommendation store when no datastore is
// configured, so the enforcer still starts (and allows all pods
// unmutated) rather than refusing to boot.
type noopLoader struct{}

func (noopLoader) LatestScan(ctx context.Context, currentScanID string) (string, []recostore.RawScanResult, error) {
	return "", nil, nil
}
