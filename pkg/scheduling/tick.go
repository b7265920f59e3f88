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
	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
)

// Result is the full output of one scheduling tick: every job considered
// this round (each carrying its own Allowed/AllowedResource/Reason verdict,
// consumed by the action-dispatch layer in pkg/jobmanager) plus the job IDs
// skipped outright because their VC no longer exists or their params could
// not be decoded.
type Result struct {
	Infos       []*JobInfo
	SkippedJobs []string
}

// Run executes one full scheduling tick (spec.md §4.3-4.4):
//
//	derive schedulables -> build job infos -> pre-deduct live jobs ->
//	Pass A (non-preemptable training) -> Pass B (inference non-preemptable) ->
//	Pass C (preemptable training) -> Pass D (inference preemptable)
//
// The returned Infos slice holds every job that was part of this tick's
// working set (including the ones pre-deducted and removed from further
// consideration are NOT included; only pre-dedup survivors plus freshly
// admitted/denied jobs are). Pre-deducted non-preemptable jobs are already
// running and carry no action, so their omission here is intentional.
func Run(jobs []v1alpha1.Job, status v1alpha1.ClusterStatus, policies map[string]v1alpha1.SchedulingPolicy, priorities PriorityProvider, onUnknownPolicy func(vcName string, policy v1alpha1.SchedulingPolicy)) Result {
	schedulables := DeriveSchedulables(status)
	infos, skipped := BuildJobInfos(jobs, schedulables.VCNames(), priorities)

	infos = PreDeduct(infos, &schedulables)
	PassNonPreemptableTraining(infos, &schedulables, policies, onUnknownPolicy)
	PassInferenceNonPreemptable(infos, &schedulables)
	PassPreemptableTraining(infos, &schedulables)
	PassInferencePreemptable(infos, &schedulables)

	return Result{Infos: infos, SkippedJobs: skipped}
}
