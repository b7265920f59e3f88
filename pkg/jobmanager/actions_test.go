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
	"testing"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/coordination"
	"github.com/Anbang-Hu/DLWorkspace/pkg/db"
	"github.com/Anbang-Hu/DLWorkspace/pkg/resources"
	"github.com/Anbang-Hu/DLWorkspace/pkg/scheduling"
)

func TestTakeJobActions_SubmitsAllowedQueuedJob(t *testing.T) {
	l := &fakeLauncher{}
	dbClient := db.NewFakeClient()
	loop := NewSchedulingLoop(dbClient, l, coordination.NewMemStore())

	job := v1alpha1.Job{JobID: "J1", JobStatus: v1alpha1.JobQueued, JobParams: encodeParams(t, v1alpha1.JobParams{ResourceGPU: 1})}
	info := &scheduling.JobInfo{Job: job, JobID: job.JobID, Status: v1alpha1.JobQueued, Allowed: true}

	if err := loop.TakeJobActions(context.Background(), scheduling.Result{Infos: []*scheduling.JobInfo{info}}); err != nil {
		t.Fatalf("TakeJobActions: %v", err)
	}
	if len(l.submittedJobs) != 1 || l.submittedJobs[0] != job.JobID {
		t.Fatalf("expected job submitted, got %v", l.submittedJobs)
	}
}

func TestTakeJobActions_PreemptsDeniedPreemptableRunningJob(t *testing.T) {
	l := &fakeLauncher{}
	dbClient := db.NewFakeClient()
	loop := NewSchedulingLoop(dbClient, l, coordination.NewMemStore())

	job := v1alpha1.Job{JobID: "J1", JobStatus: v1alpha1.JobRunning, JobParams: encodeParams(t, v1alpha1.JobParams{PreemptionAllowed: true})}
	info := &scheduling.JobInfo{Job: job, JobID: job.JobID, Status: v1alpha1.JobRunning, PreemptionAllowed: true, Allowed: false, JobTrainingType: "PSDistJob"}

	if err := loop.TakeJobActions(context.Background(), scheduling.Result{Infos: []*scheduling.JobInfo{info}}); err != nil {
		t.Fatalf("TakeJobActions: %v", err)
	}
	if len(l.killedJobs) != 1 || l.killReasons[0] != v1alpha1.JobQueued {
		t.Fatalf("expected preemption kill to queued, got %v %v", l.killedJobs, l.killReasons)
	}
}

func TestTakeJobActions_DeniedQueuedJobRecordsReason(t *testing.T) {
	l := &fakeLauncher{}
	dbClient := db.NewFakeClient()
	loop := NewSchedulingLoop(dbClient, l, coordination.NewMemStore())

	job := v1alpha1.Job{JobID: "J1", JobStatus: v1alpha1.JobQueued, JobParams: encodeParams(t, v1alpha1.JobParams{ResourceGPU: 8})}
	dbClient.Jobs[job.JobID] = job
	info := &scheduling.JobInfo{Job: job, JobID: job.JobID, Status: v1alpha1.JobQueued, Allowed: false, Reason: "resource not enough"}

	if err := loop.TakeJobActions(context.Background(), scheduling.Result{Infos: []*scheduling.JobInfo{info}}); err != nil {
		t.Fatalf("TakeJobActions: %v", err)
	}
	detail, err := v1alpha1.DecodeStatusDetail(dbClient.Jobs[job.JobID].JobStatusDetail)
	if err != nil {
		t.Fatalf("decoding status detail: %v", err)
	}
	if len(detail) != 1 || detail[0].Message != "resource not enough" {
		t.Fatalf("detail = %+v, want reason copied through", detail)
	}
}

func TestTakeJobActions_InferenceRunningScalesAndAdjustsResource(t *testing.T) {
	l := &fakeLauncher{}
	dbClient := db.NewFakeClient()
	loop := NewSchedulingLoop(dbClient, l, coordination.NewMemStore())

	job := v1alpha1.Job{JobID: "J1", JobStatus: v1alpha1.JobRunning, JobParams: encodeParams(t, v1alpha1.JobParams{JobTrainingType: v1alpha1.TrainingTypeInference, ResourceGPU: 1})}
	dbClient.Jobs[job.JobID] = job
	allowed := resources.New(nil, nil, resources.Axis{"A100": 3})
	info := &scheduling.JobInfo{Job: job, JobID: job.JobID, Status: v1alpha1.JobRunning, JobTrainingType: v1alpha1.TrainingTypeInference, Allowed: true, AllowedResource: &allowed}

	if err := loop.TakeJobActions(context.Background(), scheduling.Result{Infos: []*scheduling.JobInfo{info}}); err != nil {
		t.Fatalf("TakeJobActions: %v", err)
	}
	if len(l.scaledJobs) != 1 || l.scaledJobs[0] != job.JobID {
		t.Fatalf("expected inference job scaled, got %v", l.scaledJobs)
	}
	params, err := v1alpha1.DecodeJobParams(dbClient.Jobs[job.JobID])
	if err != nil {
		t.Fatalf("decoding rewritten params: %v", err)
	}
	if params.ResourceGPU != 3 {
		t.Fatalf("resourcegpu = %d, want 3 rewritten from allowed resource", params.ResourceGPU)
	}
}
