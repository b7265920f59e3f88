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
	"time"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/config"
	"github.com/Anbang-Hu/DLWorkspace/pkg/coordination"
	"github.com/Anbang-Hu/DLWorkspace/pkg/db"
	"github.com/Anbang-Hu/DLWorkspace/pkg/joblog"
	"github.com/Anbang-Hu/DLWorkspace/pkg/launcher"
	"github.com/Anbang-Hu/DLWorkspace/pkg/notify"
)

func testConfig() config.Config {
	return config.Config{StorageMountPath: "/dlwsdata"}
}

type fakeLauncher struct {
	status        launcher.JobStatusResult
	deletedJobs   []string
	killedJobs    []string
	killReasons   []v1alpha1.JobStatus
	submittedJobs []string
	scaledJobs    []string
}

func (f *fakeLauncher) Start(ctx context.Context) error { return nil }
func (f *fakeLauncher) SubmitJob(ctx context.Context, job v1alpha1.Job) error {
	f.submittedJobs = append(f.submittedJobs, job.JobID)
	return nil
}
func (f *fakeLauncher) KillJob(ctx context.Context, jobID string, reason v1alpha1.JobStatus, updateQueueTime bool) error {
	f.killedJobs = append(f.killedJobs, jobID)
	f.killReasons = append(f.killReasons, reason)
	return nil
}
func (f *fakeLauncher) DeleteJob(ctx context.Context, jobID string, force bool) error {
	f.deletedJobs = append(f.deletedJobs, jobID)
	return nil
}
func (f *fakeLauncher) ScaleJob(ctx context.Context, job v1alpha1.Job) error {
	f.scaledJobs = append(f.scaledJobs, job.JobID)
	return nil
}
func (f *fakeLauncher) GetJobStatus(ctx context.Context, jobID string) (launcher.JobStatusResult, error) {
	return f.status, nil
}
func (f *fakeLauncher) WaitTasksDone(ctx context.Context) error { return nil }

var _ launcher.Launcher = (*fakeLauncher)(nil)

func newTestLoop(l *fakeLauncher) (*ActionLoop, *db.FakeClient) {
	dbClient := db.NewFakeClient()
	loop := NewActionLoop(dbClient, l, coordination.NewMemStore(), notify.NewQueue(8, func(notify.Message) {}), joblog.NoopExtractor{}, testConfig())
	return loop, dbClient
}

func encodeParams(t *testing.T, p v1alpha1.JobParams) string {
	t.Helper()
	blob, err := v1alpha1.EncodeJobParams(p)
	if err != nil {
		t.Fatalf("encoding params: %v", err)
	}
	return blob
}

func TestUpdateJobStatus_SucceededMarksFinishedAndDeletes(t *testing.T) {
	l := &fakeLauncher{status: launcher.JobStatusResult{Result: "Succeeded"}}
	loop, dbClient := newTestLoop(l)
	job := v1alpha1.Job{JobID: "J1", UserName: "alice", JobParams: encodeParams(t, v1alpha1.JobParams{})}
	dbClient.Jobs[job.JobID] = job

	if err := loop.UpdateJobStatus(context.Background(), job); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	if got := dbClient.Jobs[job.JobID].JobStatus; got != v1alpha1.JobFinished {
		t.Fatalf("jobStatus = %s, want finished", got)
	}
	if len(l.deletedJobs) != 1 || l.deletedJobs[0] != job.JobID {
		t.Fatalf("expected launcher resources deleted, got %v", l.deletedJobs)
	}
}

func TestUpdateJobStatus_RunningStampsStartedOnce(t *testing.T) {
	l := &fakeLauncher{status: launcher.JobStatusResult{Result: "Running"}}
	loop, dbClient := newTestLoop(l)
	job := v1alpha1.Job{JobID: "J1", UserName: "alice", JobParams: encodeParams(t, v1alpha1.JobParams{})}
	dbClient.Jobs[job.JobID] = job

	if err := loop.UpdateJobStatus(context.Background(), job); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	if got := dbClient.Jobs[job.JobID].JobStatus; got != v1alpha1.JobRunning {
		t.Fatalf("jobStatus = %s, want running", got)
	}
	firstDetail := dbClient.Jobs[job.JobID].JobStatusDetail
	detail, err := v1alpha1.DecodeStatusDetail(firstDetail)
	if err != nil || len(detail) == 0 || detail[0].StartedAt == "" {
		t.Fatalf("expected started time stamped in detail, got %v (err %v)", detail, err)
	}

	// Second tick: already running, must not overwrite the detail again.
	running := dbClient.Jobs[job.JobID]
	if err := loop.UpdateJobStatus(context.Background(), running); err != nil {
		t.Fatalf("UpdateJobStatus second tick: %v", err)
	}
	if got := dbClient.Jobs[job.JobID].JobStatusDetail; got != firstDetail {
		t.Fatalf("detail overwritten on second tick: got %q, want %q", got, firstDetail)
	}
}

func TestUpdateJobStatus_RunningKillsOnMaxTimeExceeded(t *testing.T) {
	l := &fakeLauncher{status: launcher.JobStatusResult{Result: "Running"}}
	loop, dbClient := newTestLoop(l)
	maxTime := 10
	job := v1alpha1.Job{
		JobID:       "J1",
		UserName:    "alice",
		JobStatus:   v1alpha1.JobRunning,
		LastUpdated: time.Now().Add(-1 * time.Hour),
		JobParams:   encodeParams(t, v1alpha1.JobParams{MaxTimeSec: &maxTime}),
	}
	dbClient.Jobs[job.JobID] = job

	if err := loop.UpdateJobStatus(context.Background(), job); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	if len(l.killedJobs) != 1 || l.killedJobs[0] != job.JobID {
		t.Fatalf("expected job killed for exceeding maxTimeSec, got %v", l.killedJobs)
	}
	if l.killReasons[0] != v1alpha1.JobKilled {
		t.Fatalf("kill reason = %s, want killed", l.killReasons[0])
	}
}

func TestUpdateJobStatus_FailedDebugGraceLeavesJobAlone(t *testing.T) {
	l := &fakeLauncher{status: launcher.JobStatusResult{Result: "Failed", Diagnostics: "oom"}}
	loop, dbClient := newTestLoop(l)
	job := v1alpha1.Job{
		JobID:     "J1",
		UserName:  "alice",
		JobTime:   time.Now(),
		JobParams: encodeParams(t, v1alpha1.JobParams{Debug: true}),
	}
	dbClient.Jobs[job.JobID] = job

	if err := loop.UpdateJobStatus(context.Background(), job); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	if len(l.deletedJobs) != 0 {
		t.Fatalf("expected debug-grace job left alone, but launcher resources were deleted")
	}
	if got := dbClient.Jobs[job.JobID].JobStatus; got == v1alpha1.JobFailed {
		t.Fatalf("expected job not yet marked failed during debug grace")
	}
}

func TestUpdateJobStatus_FailedPastGraceMarksFailed(t *testing.T) {
	l := &fakeLauncher{status: launcher.JobStatusResult{Result: "Failed", Diagnostics: "oom"}}
	loop, dbClient := newTestLoop(l)
	job := v1alpha1.Job{
		JobID:     "J1",
		UserName:  "alice",
		JobTime:   time.Now().Add(-2 * time.Minute),
		JobParams: encodeParams(t, v1alpha1.JobParams{Debug: true}),
	}
	dbClient.Jobs[job.JobID] = job

	if err := loop.UpdateJobStatus(context.Background(), job); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	if got := dbClient.Jobs[job.JobID].JobStatus; got != v1alpha1.JobFailed {
		t.Fatalf("jobStatus = %s, want failed", got)
	}
	if got := dbClient.Jobs[job.JobID].ErrorMsg; got != "oom" {
		t.Fatalf("errorMsg = %q, want diagnostics copied through", got)
	}
}

func TestUpdateJobStatus_UnknownRequiresProbationBeforeReset(t *testing.T) {
	l := &fakeLauncher{status: launcher.JobStatusResult{Result: "Unknown"}}
	loop, dbClient := newTestLoop(l)
	job := v1alpha1.Job{JobID: "J1", UserName: "alice", JobParams: encodeParams(t, v1alpha1.JobParams{})}
	dbClient.Jobs[job.JobID] = job

	if err := loop.UpdateJobStatus(context.Background(), job); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if len(l.killedJobs) != 0 {
		t.Fatalf("expected no reset on first Unknown sighting, got %v", l.killedJobs)
	}

	loop.unusualJobs[job.JobID] = time.Now().Add(-31 * time.Second)
	if err := loop.UpdateJobStatus(context.Background(), job); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(l.killedJobs) != 1 || l.killReasons[0] != v1alpha1.JobQueued {
		t.Fatalf("expected reset to queued past probation, got killed=%v reasons=%v", l.killedJobs, l.killReasons)
	}
	if _, stillTracked := loop.unusualJobs[job.JobID]; stillTracked {
		t.Fatalf("expected probation entry cleared after reset")
	}
}

func TestUpdateJobStatus_PendingWritesSchedulingDetail(t *testing.T) {
	l := &fakeLauncher{status: launcher.JobStatusResult{Result: "Pending", Detail: []v1alpha1.StatusDetailEntry{{Message: "waiting for node"}}}}
	loop, dbClient := newTestLoop(l)
	job := v1alpha1.Job{JobID: "J1", UserName: "alice", JobParams: encodeParams(t, v1alpha1.JobParams{})}
	dbClient.Jobs[job.JobID] = job

	if err := loop.UpdateJobStatus(context.Background(), job); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	if got := dbClient.Jobs[job.JobID].JobStatus; got != v1alpha1.JobScheduling {
		t.Fatalf("jobStatus = %s, want scheduling", got)
	}
}
