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

package repair

import "time"

// Annotation and label keys the repair manager reads and writes on a node,
// grounded on constant.py's REPAIR_* names referenced throughout
// repairmanager.py.
const (
	LabelRepairState            = "repair-state"
	AnnotationLastUpdateTime    = "repair-state-last-update-time"
	AnnotationUnhealthyRules    = "repair-unhealthy-rules"
	AnnotationRepairCycle       = "repair-cycle"
	AnnotationRepairMessage     = "repair-message"
)

// Node is the repair manager's per-tick view of a Kubernetes worker node,
// enriched with its current repair state and the jobs scheduled on it,
// grounded on the Node class implied by repairmanager.py's node.* field
// accesses (state, ip, sku, unschedulable, repair_cycle, unhealthy_rules,
// jobs, repair_message, last_update_time).
type Node struct {
	Name   string
	IP     string
	SKU    string
	State  State
	// Unschedulable mirrors Kubernetes' node.spec.unschedulable, which an
	// administrator can set independently of the repair cycle (the escape
	// hatch to OutOfPoolUntracked).
	Unschedulable bool
	// RepairCycle is true when this node's OUT_OF_POOL was entered by the
	// repair manager itself (as opposed to an administrator's manual
	// cordon), which is what lets it progress through the repair states
	// rather than sitting untracked.
	RepairCycle     bool
	UnhealthyRules  []Rule
	RepairMessage   string
	LastUpdateTime  time.Time
	Jobs            map[string]*Job
}

// Job is the repair manager's per-tick view of an active job, tracking
// which of its nodes are currently unhealthy so a user-facing repair
// message can be composed, grounded on parse_for_jobs_and_nodes's Job
// construction in the source.
type Job struct {
	JobID         string
	WaitForJobs   bool
	UnhealthyNodes map[string]*Node
}
