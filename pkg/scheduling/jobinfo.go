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

// Package scheduling implements the four-pass admission scheduler: job
// ordering, pre-deduction of already-running work, and the ordered
// non-preemptable/inference/preemptable admission passes.
package scheduling

import (
	"fmt"
	"sort"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/resources"
)

// JobInfo is the scheduling pass's per-job working set, derived fresh each
// tick from a Job and its decoded JobParams.
type JobInfo struct {
	Job                     v1alpha1.Job
	PreemptionAllowed       bool
	JobID                   string
	JobTrainingType         string
	JobResource             resources.ClusterResource
	JobPreemptableResource  *resources.ClusterResource
	SortKey                 sortKey
	Allowed                 bool
	AllowedResource         *resources.ClusterResource
	Status                  v1alpha1.JobStatus
	Reason                  string
}

// sortKey is the composite ordering key from spec.md §4.2:
//
//	(preemptible, inference, status_rank, 999999-priority, queue_time)
//
// Lower sorts first.
type sortKey struct {
	preemptible int
	inference   int
	statusRank  int
	priority    int // already encoded as 999999 - priority
	queueTime   int64
}

func (k sortKey) less(other sortKey) bool {
	if k.preemptible != other.preemptible {
		return k.preemptible < other.preemptible
	}
	if k.inference != other.inference {
		return k.inference < other.inference
	}
	if k.statusRank != other.statusRank {
		return k.statusRank < other.statusRank
	}
	if k.priority != other.priority {
		return k.priority < other.priority
	}
	return k.queueTime < other.queueTime
}

func (k sortKey) String() string {
	return fmt.Sprintf("%d_%d_%d_%06d_%d", k.preemptible, k.inference, k.statusRank, k.priority, k.queueTime)
}

func statusRank(status v1alpha1.JobStatus) int {
	switch status {
	case v1alpha1.JobRunning:
		return 0
	case v1alpha1.JobScheduling:
		return 1
	case v1alpha1.JobQueued:
		return 2
	default:
		return 2
	}
}

const defaultPriority = 100

// PriorityProvider resolves a job's admin-assigned priority, defaulting to
// 100 for jobs absent from the priority table.
type PriorityProvider interface {
	Priority(jobID string) int
}

// mapPriorityProvider is the simplest PriorityProvider, backed by a
// pre-fetched map (what get_job_priority() returns in the source).
type mapPriorityProvider map[string]int

func (m mapPriorityProvider) Priority(jobID string) int {
	if p, ok := m[jobID]; ok {
		return p
	}
	return defaultPriority
}

// NewPriorityProvider adapts a priority table (jobId -> priority) into a
// PriorityProvider.
func NewPriorityProvider(table map[string]int) PriorityProvider {
	return mapPriorityProvider(table)
}

func resourceParamsToClusterResource(p *v1alpha1.ResourceParams) *resources.ClusterResource {
	if p == nil {
		return nil
	}
	r := resources.New(p.CPU, p.Memory, p.GPU)
	return &r
}

// jobResourceFromParams builds the job's guaranteed ClusterResource request
// from its decoded params. A job with no explicit multi-SKU shape requests
// its GPU count on the "default" SKU label, matching the source's simple
// resourcegpu integer field.
func jobResourceFromParams(p v1alpha1.JobParams) resources.ClusterResource {
	return resources.New(nil, nil, resources.Axis{"default": float64(p.TotalGPU())})
}

// BuildJobInfos decodes and sorts every eligible job (status in queued,
// scheduling, running) into the scheduling pass working set. Jobs in VCs
// absent from vcNames, and jobs whose params fail to decode, are skipped;
// their IDs are returned as the second result.
func BuildJobInfos(jobs []v1alpha1.Job, vcNames map[string]bool, priorities PriorityProvider) ([]*JobInfo, []string) {
	var infos []*JobInfo
	var skipped []string

	for _, job := range jobs {
		if job.JobStatus != v1alpha1.JobQueued && job.JobStatus != v1alpha1.JobScheduling && job.JobStatus != v1alpha1.JobRunning {
			continue
		}
		if !vcNames[job.VCName] {
			skipped = append(skipped, job.JobID)
			continue
		}
		params, err := v1alpha1.DecodeJobParams(job)
		if err != nil {
			skipped = append(skipped, job.JobID)
			continue
		}

		jobResource := jobResourceFromParams(params)
		preemptible := 0
		if params.PreemptionAllowed {
			preemptible = 1
		}
		inference := 0
		if params.IsInference() {
			inference = 1
		}

		info := &JobInfo{
			Job:                    job,
			PreemptionAllowed:      params.PreemptionAllowed,
			JobID:                  job.JobID,
			JobTrainingType:        params.JobTrainingType,
			JobResource:            jobResource,
			JobPreemptableResource: resourceParamsToClusterResource(params.PreemptableResource),
			SortKey: sortKey{
				preemptible: preemptible,
				inference:   inference,
				statusRank:  statusRank(job.JobStatus),
				priority:    999999 - priorities.Priority(job.JobID),
				queueTime:   job.LastUpdated.Unix(),
			},
			Status: job.JobStatus,
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].SortKey.less(infos[j].SortKey)
	})
	return infos, skipped
}
