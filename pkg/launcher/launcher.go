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

// Package launcher specifies the job-execution capability set (spec.md §9
// Design Notes: "a launcher exposes {submit, kill, delete, scale, status,
// wait, start}") as an interface rather than a class hierarchy, with two
// concrete implementations matching the source's PythonLauncher/LauncherStub
// duality.
package launcher

import (
	"context"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
)

// JobStatusResult is the launcher's verdict on a running/scheduling job,
// matching launcher.get_job_status's (result, details, diagnostics) tuple.
type JobStatusResult struct {
	Result      string // Succeeded | Running | Failed | Unknown | NotFound | Pending
	Detail      []v1alpha1.StatusDetailEntry
	Diagnostics string
}

// Launcher is the capability set every concrete job-execution backend must
// provide.
type Launcher interface {
	Start(ctx context.Context) error
	SubmitJob(ctx context.Context, job v1alpha1.Job) error
	KillJob(ctx context.Context, jobID string, reason v1alpha1.JobStatus, updateQueueTime bool) error
	DeleteJob(ctx context.Context, jobID string, force bool) error
	ScaleJob(ctx context.Context, job v1alpha1.Job) error
	GetJobStatus(ctx context.Context, jobID string) (JobStatusResult, error)
	// WaitTasksDone blocks until the previous batch of asynchronous launcher
	// operations has drained, matching launcher.wait_tasks_done().
	WaitTasksDone(ctx context.Context) error
}
