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

// Command jobmanager runs the job admission, scheduling, and status
// reconciliation loops (spec.md §4.1-4.5) against a Postgres-backed job
// table and a live Kubernetes cluster.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/config"
	"github.com/Anbang-Hu/DLWorkspace/pkg/coordination"
	"github.com/Anbang-Hu/DLWorkspace/pkg/db"
	"github.com/Anbang-Hu/DLWorkspace/pkg/jobmanager"
	"github.com/Anbang-Hu/DLWorkspace/pkg/joblog"
	"github.com/Anbang-Hu/DLWorkspace/pkg/k8s"
	"github.com/Anbang-Hu/DLWorkspace/pkg/launcher"
	"github.com/Anbang-Hu/DLWorkspace/pkg/log"
	"github.com/Anbang-Hu/DLWorkspace/pkg/metrics"
	"github.com/Anbang-Hu/DLWorkspace/pkg/notify"
	"github.com/Anbang-Hu/DLWorkspace/pkg/scheduling"
)

type options struct {
	configDir   string
	kubeconfig  string
	dsn         string
	redisPort   int
	metricsPort int
	status      string
	launcherURL string
	debug       bool
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "jobmanager",
		Short: "Admits, schedules, and reconciles the status of DLWorkspace training and inference jobs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.configDir, "config", "/etc/jobmanager", "directory containing config.yaml")
	flags.StringVar(&opts.kubeconfig, "kubeconfig", "", "path to a kubeconfig file; empty uses in-cluster config")
	flags.StringVar(&opts.dsn, "postgres-dsn", os.Getenv("JOBMANAGER_POSTGRES_DSN"), "Postgres connection string")
	flags.IntVarP(&opts.redisPort, "redis_port", "r", 9300, "port of the redis instance used for milestone coordination")
	flags.IntVar(&opts.metricsPort, "port", 9200, "port the Prometheus metrics handler listens on")
	flags.StringVar(&opts.status, "status", "queued", "job status this process instance services: \"queued\" runs the scheduling pass, anything else runs the per-job action loop for jobs in that status")
	flags.StringVar(&opts.launcherURL, "launcher-url", "", "base URL of the controller process when job-manager.launcher is \"stub\"")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug-level logging")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	ctx = log.NewContext(ctx, "jobmanager", opts.debug)
	logger := log.FromContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.configDir)
	if err != nil {
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
	serverVersion, err := kubeClient.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("reading cluster version: %w", err)
	}
	minor := strings.TrimSuffix(serverVersion.Minor, "+")
	cfg.IsSupportPodPriority = k8s.SupportsPodPriority(serverVersion.Major + "." + minor)

	store := coordination.NewRedisStore(fmt.Sprintf("localhost:%d", opts.redisPort), 0)

	var l launcher.Launcher
	switch cfg.JobManager.Launcher {
	case "stub":
		l = launcher.NewStubLauncher(opts.launcherURL)
	default:
		l = launcher.NewInProcessLauncher(k8sClient)
	}
	if err := l.Start(ctx); err != nil {
		return fmt.Errorf("starting launcher: %w", err)
	}

	smtpNotifier := notify.NewSMTPNotifier(cfg.SMTP.URL, cfg.SMTP.Sender, cfg.SMTP.Username, cfg.SMTP.Password)
	notifier := notify.NewQueue(256, func(msg notify.Message) {
		if err := smtpNotifier.Deliver(msg); err != nil {
			logger.Warnw("failed to deliver notification", "jobId", msg.JobID, "error", err)
		}
	})
	notifier.Start()

	actionLoop := jobmanager.NewActionLoop(dbClient, l, store, notifier, joblog.NoopExtractor{}, cfg)
	schedulingLoop := jobmanager.NewSchedulingLoop(dbClient, l, store)

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
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

	logger.Infow("jobmanager starting", "status", opts.status, "metricsPort", opts.metricsPort)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("jobmanager shutting down")
			return l.WaitTasksDone(context.Background())
		case <-ticker.C:
			var err error
			if opts.status == string(v1alpha1.JobQueued) {
				err = schedulingTick(ctx, dbClient, schedulingLoop)
			} else {
				err = actionTick(ctx, dbClient, store, actionLoop, v1alpha1.JobStatus(opts.status))
			}
			if err != nil {
				logger.Errorw("tick failed", "error", err)
			}
		}
	}
}

// schedulingTick is the --status=queued loop: it folds queued, scheduling,
// and running jobs through the four-pass scheduler and dispatches the
// resulting verdicts, matching the source's Run(target_status="queued")
// branch.
func schedulingTick(ctx context.Context, dbClient db.Client, schedulingLoop *jobmanager.SchedulingLoop) error {
	jobs, err := dbClient.GetJobList(ctx, "all", "all", []v1alpha1.JobStatus{v1alpha1.JobQueued, v1alpha1.JobScheduling, v1alpha1.JobRunning})
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}

	status, err := dbClient.GetClusterStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading cluster status: %w", err)
	}
	vcs, err := dbClient.ListVCs(ctx)
	if err != nil {
		return fmt.Errorf("listing VCs: %w", err)
	}
	policies := make(map[string]v1alpha1.SchedulingPolicy, len(vcs))
	for _, vc := range vcs {
		policies[vc.VCName] = vc.Metadata.Policy()
	}
	priorityTable, err := dbClient.GetJobPriority(ctx)
	if err != nil {
		return fmt.Errorf("reading job priorities: %w", err)
	}

	logger := log.FromContext(ctx)
	result := scheduling.Run(jobs, status, policies, scheduling.NewPriorityProvider(priorityTable), func(vcName string, policy v1alpha1.SchedulingPolicy) {
		logger.Warnw("unknown scheduling policy, defaulting to RF", "vc", vcName, "policy", policy)
	})
	if err := schedulingLoop.TakeJobActions(ctx, result); err != nil {
		return fmt.Errorf("taking job actions: %w", err)
	}
	return nil
}

// actionTick is the per-status action loop: it lists only jobs currently in
// targetStatus and dispatches each by status, mirroring the source's
// non-queued Run() branch (killing/pausing call the launcher directly,
// scheduling/running go through UpdateJobStatus, unapproved goes through
// ApproveJob).
func actionTick(ctx context.Context, dbClient db.Client, store coordination.Store, actionLoop *jobmanager.ActionLoop, targetStatus v1alpha1.JobStatus) error {
	logger := log.FromContext(ctx)

	jobs, err := dbClient.GetJobList(ctx, "all", "all", []v1alpha1.JobStatus{targetStatus})
	if err != nil {
		return fmt.Errorf("listing %s jobs: %w", targetStatus, err)
	}

	for _, job := range jobs {
		switch job.JobStatus {
		case v1alpha1.JobKilling:
			if err := actionLoop.Launcher.KillJob(ctx, job.JobID, v1alpha1.JobKilled, true); err != nil {
				logger.Warnw("killing job failed", "jobId", job.JobID, "error", err)
			}
		case v1alpha1.JobPausing:
			if err := actionLoop.Launcher.KillJob(ctx, job.JobID, v1alpha1.JobPaused, true); err != nil {
				logger.Warnw("pausing job failed", "jobId", job.JobID, "error", err)
			}
		case v1alpha1.JobRunning, v1alpha1.JobScheduling:
			if err := actionLoop.UpdateJobStatus(ctx, job); err != nil {
				logger.Warnw("updating job status failed", "jobId", job.JobID, "error", err)
			}
		case v1alpha1.JobUnapproved:
			if _, err := jobmanager.ApproveJob(ctx, dbClient, store, job); err != nil {
				logger.Warnw("approving job failed", "jobId", job.JobID, "error", err)
			}
		default:
			logger.Errorw("unknown job status", "jobId", job.JobID, "status", job.JobStatus)
		}
	}
	return nil
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
