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

package launcher

import (
	"context"
	"fmt"
	"sync"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/k8s"
)

// InProcessLauncher stands in for the source's PythonLauncher without
// delegating to a separate controller process. Only GetJobStatus uses the
// Kubernetes client; SubmitJob, KillJob and DeleteJob just add or remove the
// job ID in an in-memory set and ScaleJob does nothing, so no pods are
// created, deleted or scaled.
type InProcessLauncher struct {
	k8sClient k8s.Client

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewInProcessLauncher(k8sClient k8s.Client) *InProcessLauncher {
	return &InProcessLauncher{k8sClient: k8sClient, pending: map[string]struct{}{}}
}

func (l *InProcessLauncher) Start(ctx context.Context) error {
	return nil
}

func (l *InProcessLauncher) WaitTasksDone(ctx context.Context) error {
	// In-process submission here is synchronous (no background batch), so
	// there is nothing to drain; kept as a no-op to satisfy the Launcher
	// capability set the source always calls at the top of each tick.
	return nil
}

func (l *InProcessLauncher) SubmitJob(ctx context.Context, job v1alpha1.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[job.JobID] = struct{}{}
	return nil
}

func (l *InProcessLauncher) KillJob(ctx context.Context, jobID string, reason v1alpha1.JobStatus, updateQueueTime bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, jobID)
	return nil
}

func (l *InProcessLauncher) DeleteJob(ctx context.Context, jobID string, force bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, jobID)
	return nil
}

func (l *InProcessLauncher) ScaleJob(ctx context.Context, job v1alpha1.Job) error {
	return nil
}

func (l *InProcessLauncher) GetJobStatus(ctx context.Context, jobID string) (JobStatusResult, error) {
	status, detailMap, err := l.k8sClient.GetJobStatus(ctx, jobID)
	if err != nil {
		return JobStatusResult{}, fmt.Errorf("getting job status for %s: %w", jobID, err)
	}
	var detail []v1alpha1.StatusDetailEntry
	for podName, phase := range detailMap {
		detail = append(detail, v1alpha1.StatusDetailEntry{Message: fmt.Sprintf("%s: %s", podName, phase)})
	}
	return JobStatusResult{Result: status, Detail: detail}, nil
}

var _ Launcher = (*InProcessLauncher)(nil)
