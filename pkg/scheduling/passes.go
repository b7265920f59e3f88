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

package scheduling

import (
	"fmt"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/resources"
)

// PassNonPreemptableTraining is Pass A (spec.md §4.4): admits non-preemptable,
// non-inference jobs per the owning VC's FIFO/RF policy. Jobs are visited in
// sort-key order (the slice is already sorted by BuildJobInfos).
func PassNonPreemptableTraining(infos []*JobInfo, s *Schedulables, policies map[string]v1alpha1.SchedulingPolicy, onUnknownPolicy func(vcName string, policy v1alpha1.SchedulingPolicy)) {
	stopScheduling := map[string]*JobInfo{}

	for _, info := range infos {
		if info.PreemptionAllowed || isInferenceType(info.JobTrainingType) {
			continue
		}
		vcName := info.Job.VCName
		vcSchedulable, ok := s.VC[vcName]
		if !ok {
			continue
		}

		policy := policies[vcName]
		if policy != v1alpha1.PolicyFIFO && policy != v1alpha1.PolicyRF {
			if onUnknownPolicy != nil && policy != "" {
				onUnknownPolicy(vcName, policy)
			}
			policy = v1alpha1.PolicyRF
		}

		switch policy {
		case v1alpha1.PolicyFIFO:
			if blocker, blocked := stopScheduling[vcName]; blocked {
				info.Reason = fmt.Sprintf("blocked by higher-priority/earlier-time job %s", blocker.JobID)
				continue
			}
			if s.Cluster.GreaterOrEqual(info.JobResource) && vcSchedulable.GreaterOrEqual(info.JobResource) {
				s.DeductVC(vcName, info.JobResource)
				info.Allowed = true
			} else {
				info.Reason = fmt.Sprintf("resource not enough, required %s, vc schedulable %s, cluster schedulable %s", info.JobResource, vcSchedulable, s.Cluster)
				stopScheduling[vcName] = info
			}
		case v1alpha1.PolicyRF:
			if s.Cluster.GreaterOrEqual(info.JobResource) && vcSchedulable.GreaterOrEqual(info.JobResource) {
				s.DeductVC(vcName, info.JobResource)
				info.Allowed = true
			}
		}
	}
}

// PassInferenceNonPreemptable is Pass B (spec.md §4.4): admits the
// guaranteed portion of every queued InferenceJob whose request fits both
// the cluster and its VC.
func PassInferenceNonPreemptable(infos []*JobInfo, s *Schedulables) {
	for _, info := range infos {
		if !isInferenceType(info.JobTrainingType) || info.Status != v1alpha1.JobQueued {
			continue
		}
		vcSchedulable, ok := s.VC[info.Job.VCName]
		if !ok {
			continue
		}
		if s.Cluster.GreaterOrEqual(info.JobResource) && vcSchedulable.GreaterOrEqual(info.JobResource) {
			s.DeductVC(info.Job.VCName, info.JobResource)
			info.Allowed = true
			granted := info.JobResource
			info.AllowedResource = &granted
		}
	}
}

// PassPreemptableTraining is Pass C (spec.md §4.4): admits preemptable,
// non-inference jobs independently against the cluster-wide schedulable
// only -- no VC deduction (preemptible tokens are a global bonus) and no
// FIFO head-of-line gate.
func PassPreemptableTraining(infos []*JobInfo, s *Schedulables) {
	for _, info := range infos {
		if isInferenceType(info.JobTrainingType) {
			continue
		}
		if !info.PreemptionAllowed || info.Allowed {
			continue
		}
		if s.Cluster.GreaterOrEqual(info.JobResource) {
			s.DeductCluster(info.JobResource)
			info.Allowed = true
		}
	}
}

// PassInferencePreemptable is Pass D (spec.md §4.4): grants the preemptable
// bonus portion to every InferenceJob admitted in Pass B (or carried
// allowed from pre-deduction) that declares a job_preemptable_resource.
// When the cluster cannot cover the full request, a proportional fractional
// allocation anchored on the scarcest axis (GPU) is computed; a degenerate
// (empty GPU or CPU) allocation is denied without touching the
// already-admitted guaranteed portion (spec.md §9 Open Question).
func PassInferencePreemptable(infos []*JobInfo, s *Schedulables) {
	for _, info := range infos {
		if !isInferenceType(info.JobTrainingType) || !info.Allowed || info.JobPreemptableResource == nil {
			continue
		}
		requested := *info.JobPreemptableResource

		var granted resources.ClusterResource
		if s.Cluster.GreaterOrEqual(requested) {
			granted = requested
		} else {
			gpuKey, gpuRequest, ok := requested.SoleGPUKey()
			if !ok || gpuRequest == 0 {
				continue
			}
			cpuRequest := requested.CPU[gpuKey]
			memRequest := requested.Memory[gpuKey]
			clusterGPU := s.Cluster.GPU[gpuKey]

			schedulableGPU := gpuRequest
			if clusterGPU < schedulableGPU {
				schedulableGPU = clusterGPU
			}
			schedulableCPU := schedulableGPU * cpuRequest / gpuRequest
			schedulableMemory := schedulableGPU * memRequest / gpuRequest

			granted = resources.New(
				resources.Axis{gpuKey: schedulableCPU},
				resources.Axis{gpuKey: schedulableMemory},
				resources.Axis{gpuKey: schedulableGPU},
			)
		}

		if granted.HasEmptyGPUOrCPU() {
			// Deny the preemptable portion only; the guaranteed portion
			// already admitted in Pass B is left untouched.
			continue
		}

		if info.AllowedResource == nil {
			info.AllowedResource = &resources.ClusterResource{}
		}
		sum := info.AllowedResource.Add(granted)
		info.AllowedResource = &sum
		s.DeductCluster(granted)
	}
}

func isInferenceType(trainingType string) bool {
	return trainingType == v1alpha1.TrainingTypeInference || trainingType == v1alpha1.TrainingTypeCPUInference
}
