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
	"time"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/coordination"
	"github.com/Anbang-Hu/DLWorkspace/pkg/db"
	"github.com/Anbang-Hu/DLWorkspace/pkg/log"
)

// ApproveJob decides whether an unapproved job moves to queued, matching
// ApproveJob in the source: preemptable jobs are approved unconditionally;
// everything else is checked against its VC's user_quota (ignoring other
// preemptable jobs' GPUs) before being approved.
func ApproveJob(ctx context.Context, dbClient db.Client, store coordination.Store, job v1alpha1.Job) (bool, error) {
	logger := log.FromContext(ctx)

	UpdateJobStateLatency(ctx, store, job.JobID, stateCreated, job.JobTime)

	params, err := v1alpha1.DecodeJobParams(job)
	if err != nil {
		return false, fmt.Errorf("decoding job params for %s: %w", job.JobID, err)
	}
	jobTotalGPUs := params.TotalGPU()

	if params.PreemptionAllowed {
		logger.Infow("job preemptible, approving", "jobId", job.JobID)
		return approve(ctx, dbClient, store, job, "waiting for available preemptible resource.")
	}

	vcs, err := dbClient.ListVCs(ctx)
	if err != nil {
		return false, fmt.Errorf("listing VCs: %w", err)
	}
	var vc *v1alpha1.VC
	for i := range vcs {
		if vcs[i].VCName == job.VCName {
			vc = &vcs[i]
			break
		}
	}
	if vc == nil {
		logger.Warnw("vc does not exist", "jobId", job.JobID, "vc", job.VCName)
		return false, nil
	}

	if vc.Metadata.UserQuota != nil {
		running, err := dbClient.GetJobList(ctx, job.UserName, job.VCName, []v1alpha1.JobStatus{v1alpha1.JobRunning, v1alpha1.JobQueued, v1alpha1.JobScheduling})
		if err != nil {
			return false, fmt.Errorf("listing user jobs for %s: %w", job.UserName, err)
		}
		runningGPUs := 0
		for _, r := range running {
			rParams, err := v1alpha1.DecodeJobParams(r)
			if err != nil {
				continue
			}
			if rParams.PreemptionAllowed {
				continue
			}
			runningGPUs += rParams.TotalGPU()
		}

		quota := *vc.Metadata.UserQuota
		logger.Infow("checking user quota", "jobId", job.JobID, "requested", jobTotalGPUs, "used", runningGPUs, "quota", quota)
		if jobTotalGPUs > 0 && quota < runningGPUs+jobTotalGPUs {
			message := fmt.Sprintf(
				"exceeds the user quota in VC: %d (used) + %d (requested) > %d (user quota). Will need admin approval.",
				runningGPUs, jobTotalGPUs, quota)
			detail, err := v1alpha1.EncodeStatusDetail([]v1alpha1.StatusDetailEntry{{Message: message}})
			if err != nil {
				return false, fmt.Errorf("encoding status detail for %s: %w", job.JobID, err)
			}
			if err := dbClient.UpdateJobTextFields(ctx, job.JobID, map[string]string{"jobStatusDetail": detail}); err != nil {
				return false, fmt.Errorf("writing quota denial for %s: %w", job.JobID, err)
			}
			return false, nil
		}
	}

	return approve(ctx, dbClient, store, job, "waiting for available resource.")
}

func approve(ctx context.Context, dbClient db.Client, store coordination.Store, job v1alpha1.Job, message string) (bool, error) {
	detail, err := v1alpha1.EncodeStatusDetail([]v1alpha1.StatusDetailEntry{{Message: message}})
	if err != nil {
		return false, fmt.Errorf("encoding status detail for %s: %w", job.JobID, err)
	}
	fields := map[string]string{
		"jobStatusDetail": detail,
		"jobStatus":       string(v1alpha1.JobQueued),
		"lastUpdated":     time.Now().Format(time.RFC3339),
	}
	if err := dbClient.UpdateJobTextFields(ctx, job.JobID, fields); err != nil {
		return false, fmt.Errorf("approving job %s: %w", job.JobID, err)
	}
	UpdateJobStateLatency(ctx, store, job.JobID, stateApproved, time.Now())
	return true, nil
}
