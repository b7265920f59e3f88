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

package jobmanager

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/config"
	"github.com/Anbang-Hu/DLWorkspace/pkg/coordination"
	"github.com/Anbang-Hu/DLWorkspace/pkg/db"
	"github.com/Anbang-Hu/DLWorkspace/pkg/joblog"
	"github.com/Anbang-Hu/DLWorkspace/pkg/k8s"
	"github.com/Anbang-Hu/DLWorkspace/pkg/launcher"
	"github.com/Anbang-Hu/DLWorkspace/pkg/log"
	"github.com/Anbang-Hu/DLWorkspace/pkg/notify"
)

// probationWindow is how long an Unknown/NotFound job status is tolerated
// before the job is reset and resubmitted (spec.md §4.5).
const probationWindow = 30 * time.Second

// debugGracePeriod is how long a debug=true failed job is left alone for
// post-mortem inspection before the normal failure cleanup runs.
const debugGracePeriod = 60 * time.Second

// ActionLoop is the action-loop process: it owns the probation map
// (UnusualJobs in the source) as an explicit field rather than
// process-local module state, per spec.md §9 Design Notes.
type ActionLoop struct {
	DB         db.Client
	Launcher   launcher.Launcher
	Store      coordination.Store
	Notifier   notify.Notifier
	JobLog     joblog.Extractor
	Config     config.Config

	unusualJobs map[string]time.Time
}

// NewActionLoop constructs an ActionLoop with a fresh probation map; a
// restart always starts every job's probation window over.
func NewActionLoop(dbClient db.Client, l launcher.Launcher, store coordination.Store, notifier notify.Notifier, jobLog joblog.Extractor, cfg config.Config) *ActionLoop {
	return &ActionLoop{
		DB:          dbClient,
		Launcher:    l,
		Store:       store,
		Notifier:    notifier,
		JobLog:      jobLog,
		Config:      cfg,
		unusualJobs: map[string]time.Time{},
	}
}

// UpdateJobStatus dispatches on the launcher-reported job result for a
// scheduling or running job, matching UpdateJobStatus in the source.
func (a *ActionLoop) UpdateJobStatus(ctx context.Context, job v1alpha1.Job) error {
	logger := log.FromContext(ctx)
	params, err := v1alpha1.DecodeJobParams(job)
	if err != nil {
		return fmt.Errorf("decoding job params for %s: %w", job.JobID, err)
	}

	result, err := a.Launcher.GetJobStatus(ctx, job.JobID)
	if err != nil {
		return fmt.Errorf("getting launcher status for %s: %w", job.JobID, err)
	}
	logger.Infow("job status", "jobId", job.JobID, "result", result.Result)

	logPath := filepath.Join(a.Config.StorageMountPath, params.JobPath, "logs/joblog.txt")
	userID := params.UserID
	if userID == "" {
		userID = "0"
	}

	switch result.Result {
	case "Succeeded":
		return a.handleSucceeded(ctx, job, logPath, userID)
	case "Running":
		return a.handleRunning(ctx, job, params)
	case "Failed":
		return a.handleFailed(ctx, job, params, result, logPath, userID)
	case "Unknown", "NotFound":
		return a.handleUnknownOrNotFound(ctx, job, result.Result)
	case "Pending":
		return a.handlePending(ctx, job, result)
	}

	a.clearProbation(job.JobID)
	return nil
}

func (a *ActionLoop) handleSucceeded(ctx context.Context, job v1alpha1.Job, logPath, userID string) error {
	if err := a.JobLog.Extract(ctx, job.JobID, logPath, userID); err != nil {
		log.FromContext(ctx).Warnw("log extraction failed", "jobId", job.JobID, "error", err)
	}
	detail := statusDetailWithFinishedTime(job)
	blob, err := v1alpha1.EncodeStatusDetail(detail)
	if err != nil {
		return fmt.Errorf("encoding status detail for %s: %w", job.JobID, err)
	}
	fields := map[string]string{
		"jobStatusDetail": blob,
		"jobStatus":       string(v1alpha1.JobFinished),
		"lastUpdated":     time.Now().Format(time.RFC3339),
	}
	if err := a.DB.UpdateJobTextFields(ctx, job.JobID, fields); err != nil {
		return fmt.Errorf("marking job %s finished: %w", job.JobID, err)
	}
	if err := a.Launcher.DeleteJob(ctx, job.JobID, true); err != nil {
		log.FromContext(ctx).Warnw("deleting job resources failed", "jobId", job.JobID, "error", err)
	}
	if a.Notifier != nil {
		a.Notifier.Notify(notify.NewJobStateChangeMessage(job.UserName, job.JobID, "Succeeded"))
	}
	a.clearProbation(job.JobID)
	return nil
}

func (a *ActionLoop) handleRunning(ctx context.Context, job v1alpha1.Job, params v1alpha1.JobParams) error {
	logger := log.FromContext(ctx)
	UpdateJobStateLatency(ctx, a.Store, job.JobID, stateRunning, time.Now())

	lastUpdated := job.LastUpdated
	if job.JobStatus != v1alpha1.JobRunning {
		startedAt := k8s.LocalizeTime(time.Now())
		detail := []v1alpha1.StatusDetailEntry{{StartedAt: startedAt, Message: fmt.Sprintf("started at: %s", startedAt)}}
		blob, err := v1alpha1.EncodeStatusDetail(detail)
		if err != nil {
			return fmt.Errorf("encoding status detail for %s: %w", job.JobID, err)
		}
		lastUpdated = time.Now()
		fields := map[string]string{
			"jobStatusDetail": blob,
			"jobStatus":       string(v1alpha1.JobRunning),
			"lastUpdated":     lastUpdated.Format(time.RFC3339),
		}
		if err := a.DB.UpdateJobTextFields(ctx, job.JobID, fields); err != nil {
			return fmt.Errorf("marking job %s running: %w", job.JobID, err)
		}
		if a.Notifier != nil {
			a.Notifier.Notify(notify.NewJobStateChangeMessage(job.UserName, job.JobID, "Running"))
		}
	}

	if params.MaxTimeSec == nil {
		a.clearProbation(job.JobID)
		return nil
	}
	maxTime := *params.MaxTimeSec
	if lastUpdated.Add(time.Duration(maxTime) * time.Second).Before(time.Now()) {
		logger.Infow("killing job for exceeding maxTimeSec", "jobId", job.JobID, "maxTimeSec", maxTime)
		errorMsg := fmt.Sprintf("running exceed pre-defined %ds", maxTime)
		if err := a.DB.UpdateJobTextFields(ctx, job.JobID, map[string]string{"errorMsg": errorMsg}); err != nil {
			return fmt.Errorf("recording kill reason for %s: %w", job.JobID, err)
		}
		if err := a.Launcher.KillJob(ctx, job.JobID, v1alpha1.JobKilled, true); err != nil {
			return fmt.Errorf("killing job %s: %w", job.JobID, err)
		}
		if a.Notifier != nil {
			a.Notifier.Notify(notify.NewJobKilledMessage(job.UserName, job.JobID, errorMsg))
		}
	}
	a.clearProbation(job.JobID)
	return nil
}

func (a *ActionLoop) handleFailed(ctx context.Context, job v1alpha1.Job, params v1alpha1.JobParams, result launcher.JobStatusResult, logPath, userID string) error {
	if params.Debug && time.Since(job.JobTime) < debugGracePeriod {
		log.FromContext(ctx).Infow("leaving failed debug job for post-mortem", "jobId", job.JobID)
		return nil
	}

	if a.Notifier != nil {
		a.Notifier.Notify(notify.NewJobStateChangeMessage(job.UserName, job.JobID, "Failed"))
	}
	if err := a.JobLog.Extract(ctx, job.JobID, logPath, userID); err != nil {
		log.FromContext(ctx).Warnw("log extraction failed", "jobId", job.JobID, "error", err)
	}

	detail := statusDetailWithFinishedTime(job)
	blob, err := v1alpha1.EncodeStatusDetail(detail)
	if err != nil {
		return fmt.Errorf("encoding status detail for %s: %w", job.JobID, err)
	}
	fields := map[string]string{
		"jobStatusDetail": blob,
		"jobStatus":       string(v1alpha1.JobFailed),
		"errorMsg":        result.Diagnostics,
		"lastUpdated":     time.Now().Format(time.RFC3339),
	}
	if err := a.DB.UpdateJobTextFields(ctx, job.JobID, fields); err != nil {
		return fmt.Errorf("marking job %s failed: %w", job.JobID, err)
	}
	if err := a.Launcher.DeleteJob(ctx, job.JobID, true); err != nil {
		log.FromContext(ctx).Warnw("deleting job resources failed", "jobId", job.JobID, "error", err)
	}
	a.clearProbation(job.JobID)
	return nil
}

func (a *ActionLoop) handleUnknownOrNotFound(ctx context.Context, job v1alpha1.Job, result string) error {
	logger := log.FromContext(ctx)
	first, seen := a.unusualJobs[job.JobID]
	if !seen {
		logger.Warnw("unusual job status", "jobId", job.JobID, "result", result)
		a.unusualJobs[job.JobID] = time.Now()
		return nil
	}
	if time.Since(first) <= probationWindow {
		return nil
	}
	delete(a.unusualJobs, job.JobID)

	endpoints, err := a.DB.GetJobEndpoints(ctx, job.JobID)
	if err != nil {
		return fmt.Errorf("listing endpoints for %s: %w", job.JobID, err)
	}
	for _, endpoint := range endpoints {
		endpoint.Status = "pending"
		if err := a.DB.UpdateEndpoint(ctx, endpoint); err != nil {
			logger.Warnw("resetting endpoint failed", "jobId", job.JobID, "endpoint", endpoint.EndpointID, "error", err)
		}
	}

	logger.Warnw("job unresolved past probation, resubmitting", "jobId", job.JobID, "result", result)
	if err := a.Launcher.KillJob(ctx, job.JobID, v1alpha1.JobQueued, false); err != nil {
		return fmt.Errorf("resetting job %s to queued: %w", job.JobID, err)
	}
	if a.Notifier != nil {
		a.Notifier.Notify(notify.NewJobStateChangeMessage(job.UserName, job.JobID, result))
	}
	return nil
}

func (a *ActionLoop) handlePending(ctx context.Context, job v1alpha1.Job, result launcher.JobStatusResult) error {
	blob, err := v1alpha1.EncodeStatusDetail(result.Detail)
	if err != nil {
		return fmt.Errorf("encoding status detail for %s: %w", job.JobID, err)
	}
	fields := map[string]string{
		"jobStatusDetail": blob,
		"jobStatus":       string(v1alpha1.JobScheduling),
	}
	if err := a.DB.UpdateJobTextFields(ctx, job.JobID, fields); err != nil {
		return fmt.Errorf("recording pending detail for %s: %w", job.JobID, err)
	}
	a.clearProbation(job.JobID)
	return nil
}

func (a *ActionLoop) clearProbation(jobID string) {
	delete(a.unusualJobs, jobID)
}

// statusDetailWithFinishedTime stamps finishedAt onto the most recent
// status detail entry, matching the source's pattern of appending a
// finished timestamp to whatever detail scheduling last wrote.
func statusDetailWithFinishedTime(job v1alpha1.Job) []v1alpha1.StatusDetailEntry {
	existing, err := v1alpha1.DecodeStatusDetail(job.JobStatusDetail)
	if err != nil || len(existing) == 0 {
		existing = []v1alpha1.StatusDetailEntry{{}}
	}
	last := existing[len(existing)-1]
	last.FinishedAt = k8s.LocalizeTime(time.Now())
	existing[len(existing)-1] = last
	return existing
}
