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

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/coordination"
	"github.com/Anbang-Hu/DLWorkspace/pkg/db"
	"github.com/Anbang-Hu/DLWorkspace/pkg/launcher"
	"github.com/Anbang-Hu/DLWorkspace/pkg/log"
	"github.com/Anbang-Hu/DLWorkspace/pkg/scheduling"
)

// SchedulingLoop is the queued-jobs control loop: it runs the four-pass
// scheduler and carries out whatever it decided (submit, preempt, scale,
// or record a denial reason), matching take_job_actions in the source.
type SchedulingLoop struct {
	DB       db.Client
	Launcher launcher.Launcher
	Store    coordination.Store
}

func NewSchedulingLoop(dbClient db.Client, l launcher.Launcher, store coordination.Store) *SchedulingLoop {
	return &SchedulingLoop{DB: dbClient, Launcher: l, Store: store}
}

// TakeJobActions applies a scheduling tick's verdicts. Inference jobs
// always get adjustJobResource first regardless of the verdict, since an
// inference job can be re-scaled (its allowed resource changed) even while
// it stays allowed.
func (l *SchedulingLoop) TakeJobActions(ctx context.Context, result scheduling.Result) error {
	logger := log.FromContext(ctx)

	for _, info := range result.Infos {
		isInference := info.JobTrainingType == v1alpha1.TrainingTypeInference || info.JobTrainingType == v1alpha1.TrainingTypeCPUInference

		if isInference {
			if err := l.adjustJobResource(ctx, info); err != nil {
				logger.Warnw("adjusting inference job resource failed", "jobId", info.JobID, "error", err)
			}
		}

		switch {
		case info.Status == v1alpha1.JobQueued && info.Allowed:
			if err := l.Launcher.SubmitJob(ctx, info.Job); err != nil {
				return fmt.Errorf("submitting job %s: %w", info.JobID, err)
			}
			UpdateJobStateLatency(ctx, l.Store, info.JobID, stateScheduling, info.Job.LastUpdated)

		case info.PreemptionAllowed && !isInference && (info.Status == v1alpha1.JobScheduling || info.Status == v1alpha1.JobRunning) && !info.Allowed:
			if err := l.Launcher.KillJob(ctx, info.JobID, v1alpha1.JobQueued, false); err != nil {
				return fmt.Errorf("preempting job %s: %w", info.JobID, err)
			}

		case info.Status == v1alpha1.JobQueued && !info.Allowed:
			message := info.Reason
			if message == "" {
				message = "waiting for available resource."
			}
			if err := l.writeDenialReason(ctx, info.JobID, message); err != nil {
				logger.Warnw("recording denial reason failed", "jobId", info.JobID, "error", err)
			}

		case isInference && (info.Status == v1alpha1.JobScheduling || info.Status == v1alpha1.JobRunning):
			if err := l.Launcher.ScaleJob(ctx, info.Job); err != nil {
				return fmt.Errorf("scaling job %s: %w", info.JobID, err)
			}
		}
	}
	return nil
}

// adjustJobResource rewrites resourcegpu in the job's params blob to the
// GPU axis of its just-computed allowed resource, matching
// adjust_job_resource: only inference jobs get rescaled mid-flight since
// their fractional bonus can grow or shrink every tick.
func (l *SchedulingLoop) adjustJobResource(ctx context.Context, info *scheduling.JobInfo) error {
	if info.AllowedResource == nil {
		return nil
	}
	_, amount, ok := info.AllowedResource.SoleGPUKey()
	if !ok {
		return nil
	}
	params, err := v1alpha1.DecodeJobParams(info.Job)
	if err != nil {
		return fmt.Errorf("decoding job params: %w", err)
	}
	params.ResourceGPU = int(amount)
	blob, err := v1alpha1.EncodeJobParams(params)
	if err != nil {
		return fmt.Errorf("encoding job params: %w", err)
	}
	return l.DB.UpdateJobTextFields(ctx, info.JobID, map[string]string{"jobParams": blob})
}

func (l *SchedulingLoop) writeDenialReason(ctx context.Context, jobID, message string) error {
	detail, err := v1alpha1.EncodeStatusDetail([]v1alpha1.StatusDetailEntry{{Message: message}})
	if err != nil {
		return fmt.Errorf("encoding status detail: %w", err)
	}
	return l.DB.UpdateJobTextFields(ctx, jobID, map[string]string{"jobStatusDetail": detail})
}
