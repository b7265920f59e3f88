/*
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

// Command repairmanager runs the node health evaluation and repair state
// machine (spec.md §4.6) against a live Kubernetes cluster and the
// per-node repair agent.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/Anbang-Hu/DLWorkspace/pkg/agent"
	"github.com/Anbang-Hu/DLWorkspace/pkg/config"
	"github.com/Anbang-Hu/DLWorkspace/pkg/db"
	"github.com/Anbang-Hu/DLWorkspace/pkg/k8s"
	"github.com/Anbang-Hu/DLWorkspace/pkg/log"
	"github.com/Anbang-Hu/DLWorkspace/pkg/metrics"
	"github.com/Anbang-Hu/DLWorkspace/pkg/repair"
)

type options struct {
	configDir   string
	kubeconfig  string
	dsn         string
	interval    time.Duration
	metricsPort int
	agentPort   int
	dryRun      bool
	debug       bool
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "repairmanager",
		Short: "Evaluates node health and drives nodes through the repair state machine.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.configDir, "config", "c", "/etc/repairmanager", "directory containing config.yaml")
	flags.StringVar(&opts.kubeconfig, "kubeconfig", "", "path to a kubeconfig file; empty uses in-cluster config")
	flags.StringVar(&opts.dsn, "postgres-dsn", os.Getenv("REPAIRMANAGER_POSTGRES_DSN"), "Postgres connection string")
	flags.DurationVarP(&opts.interval, "interval", "i", 30*time.Second, "delay between repair ticks")
	flags.IntVarP(&opts.metricsPort, "port", "p", 9080, "port the Prometheus metrics handler listens on")
	flags.IntVarP(&opts.agentPort, "agent_port", "a", 9081, "port the per-node repair agent listens on")
	flags.BoolVarP(&opts.dryRun, "dry_run", "d", false, "log intended node patches instead of applying them")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug-level logging")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	ctx = log.NewContext(ctx, "repairmanager", opts.debug)
	logger := log.FromContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := config.Load(opts.configDir); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dbClient, err := db.NewPostgresClient(opts.dsn)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer dbClient.Close()

	kubeClient, err := newKubeClient(opts.kubeconfig)
	if err != nil {
		return fmt.Errorf("building kube client: %w", err)
	}
	k8sClient := k8s.NewClientGo(kubeClient)
	agentClient := agent.NewHTTPClient()

	rules := []repair.Rule{repair.UnschedulableRule{}}
	manager := repair.NewManager(k8sClient, agentClient, dbClient, rules, opts.agentPort, opts.dryRun)

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
	registry.MustRegister(metrics.NewRepairCollector(manager.MetricsRef()))
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.metricsPort),
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("metrics server stopped", "error", err)
		}
	}()
	defer metricsServer.Shutdown(context.Background())

	logger.Infow("repairmanager starting", "interval", opts.interval, "dryRun", opts.dryRun, "metricsPort", opts.metricsPort)
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("repairmanager shutting down")
			return nil
		case <-ticker.C:
			nodes, err := manager.LoadNodes(ctx)
			if err != nil {
				logger.Errorw("loading nodes failed", "error", err)
				continue
			}
			if err := manager.Tick(ctx, nodes); err != nil {
				logger.Errorw("repair tick failed", "error", err)
			}
		}
	}
}

func newKubeClient(kubeconfig string) (*kubernetes.Clientset, error) {
	var cfg *rest.Config
	var err error
	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(cfg)
}
