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

package db

import (
	"context"
	"sync"
	"time"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
)

// FakeClient is an in-memory Client used by unit tests across pkg/jobmanager
// and pkg/repair, mirroring the teacher's in-memory test-fixture convention
// (pkg/test) without pulling in a real database.
type FakeClient struct {
	mu        sync.Mutex
	Jobs      map[string]v1alpha1.Job
	VCs       map[string]v1alpha1.VC
	Status    v1alpha1.ClusterStatus
	Endpoints map[string]map[string]v1alpha1.Endpoint
	Priority  map[string]int

	RepairMessages map[string]map[string]any
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Jobs:           map[string]v1alpha1.Job{},
		VCs:            map[string]v1alpha1.VC{},
		Endpoints:      map[string]map[string]v1alpha1.Endpoint{},
		Priority:       map[string]int{},
		RepairMessages: map[string]map[string]any{},
	}
}

func (f *FakeClient) GetJobList(_ context.Context, userName, vcName string, statuses []v1alpha1.JobStatus) ([]v1alpha1.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	allowed := map[v1alpha1.JobStatus]bool{}
	for _, s := range statuses {
		allowed[s] = true
	}

	var jobs []v1alpha1.Job
	for _, job := range f.Jobs {
		if len(statuses) > 0 && !allowed[job.JobStatus] {
			continue
		}
		if userName != "" && userName != "all" && job.UserName != userName {
			continue
		}
		if vcName != "" && vcName != "all" && job.VCName != vcName {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (f *FakeClient) GetClusterStatus(_ context.Context) (v1alpha1.ClusterStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Status, nil
}

func (f *FakeClient) ListVCs(_ context.Context) ([]v1alpha1.VC, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vcs := make([]v1alpha1.VC, 0, len(f.VCs))
	for _, vc := range f.VCs {
		vcs = append(vcs, vc)
	}
	return vcs, nil
}

func (f *FakeClient) GetJobEndpoints(_ context.Context, jobID string) (map[string]v1alpha1.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Endpoints[jobID], nil
}

func (f *FakeClient) GetJobPriority(_ context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.Priority))
	for k, v := range f.Priority {
		out[k] = v
	}
	return out, nil
}

func (f *FakeClient) UpdateJobTextFields(_ context.Context, jobID string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.Jobs[jobID]
	if !ok {
		return nil
	}
	for k, v := range fields {
		switch k {
		case "jobStatus":
			job.JobStatus = v1alpha1.JobStatus(v)
		case "jobStatusDetail":
			job.JobStatusDetail = v
		case "jobParams":
			job.JobParams = v
		case "errorMsg":
			job.ErrorMsg = v
		case "lastUpdated":
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				job.LastUpdated = parsed
			}
		}
	}
	f.Jobs[jobID] = job
	return nil
}

func (f *FakeClient) UpdateEndpoint(_ context.Context, endpoint v1alpha1.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Endpoints[endpoint.JobID] == nil {
		f.Endpoints[endpoint.JobID] = map[string]v1alpha1.Endpoint{}
	}
	f.Endpoints[endpoint.JobID][endpoint.EndpointID] = endpoint
	return nil
}

func (f *FakeClient) UpdateRepairMessage(_ context.Context, jobID string, message map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RepairMessages[jobID] = message
	return nil
}

func (f *FakeClient) Close() error { return nil }

var _ Client = (*FakeClient)(nil)
