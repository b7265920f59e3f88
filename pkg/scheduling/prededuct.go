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

import v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"

// PreDeduct implements spec.md §4.3: before any admission pass, deduct from
// both cluster_schedulable and vc_schedulable[vc] the resources of every
// job that is already scheduling or running and (non-preemptable, or is an
// inference job). Non-preemptable, non-inference live jobs are then removed
// from further consideration since they are already admitted. Inference
// jobs remain in the working set (marked allowed with their guaranteed
// resource already granted) because their preemptable portion may still be
// resized this tick in Pass D.
func PreDeduct(infos []*JobInfo, s *Schedulables) []*JobInfo {
	remaining := make([]*JobInfo, 0, len(infos))
	for _, info := range infos {
		live := info.Status == v1alpha1.JobScheduling || info.Status == v1alpha1.JobRunning
		isInference := info.JobTrainingType == v1alpha1.TrainingTypeInference || info.JobTrainingType == v1alpha1.TrainingTypeCPUInference

		if !live || (info.PreemptionAllowed && !isInference) {
			remaining = append(remaining, info)
			continue
		}
		if !info.PreemptionAllowed && !isInference {
			// Non-preemptable training job already admitted: deduct and drop.
			s.DeductVC(info.Job.VCName, info.JobResource)
			continue
		}
		// Inference job's guaranteed (non-preemptable) portion: deduct but
		// keep in the working set for Pass D to consider its bonus portion.
		s.DeductVC(info.Job.VCName, info.JobResource)
		info.Allowed = true
		granted := info.JobResource
		info.AllowedResource = &granted
		remaining = append(remaining, info)
	}
	return remaining
}
