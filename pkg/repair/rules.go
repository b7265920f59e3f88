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

// Rule is a single health check a node is evaluated against every tick.
// There is no original_source/rule.py to port directly (it was filtered
// out of the retrieval pack); this interface is grounded on spec.md's
// description of unhealthy-rule evaluation plus the call-site usage
// visible in repairmanager.py: rule.name (used both as a Prometheus label
// and in the HTTP repair-request payload), rule.desc (human-readable,
// shown in repair messages), rule.check_health (the health predicate),
// rule.prepare (pre-repair readiness gate), and rule.update_data (a
// per-tick refresh hook for rules backed by external metrics).
type Rule interface {
	Name() string
	Desc() string
	// CheckHealth reports whether node currently satisfies this rule. stat
	// distinguishes which metrics snapshot to evaluate against ("" for the
	// default window, "current" for the AFTER_REPAIR health recheck).
	CheckHealth(node *Node, stat string) bool
	// Prepare runs whatever pre-repair action this rule requires (e.g.
	// draining, cordoning workloads) before the node is handed to the
	// repair agent. A rule with nothing to prepare returns true
	// immediately.
	Prepare(node *Node) bool
	// UpdateData refreshes any rule-local cache of metrics ahead of this
	// tick's health evaluation.
	UpdateData()
}

// UnschedulableRule is the default rule auto-attached to a node entering
// OUT_OF_POOL with no other rule already flagging it unhealthy — it simply
// enforces that the node stays out of the scheduling pool (and hence gets
// rebooted at repair) until an administrator intervenes, matching
// `rule.py`'s `UnschedulableRule` referenced (not defined) in
// repairmanager.py's `from_any_to_out_of_pool`.
type UnschedulableRule struct{}

func (UnschedulableRule) Name() string { return "UnschedulableRule" }
func (UnschedulableRule) Desc() string { return "node manually marked unschedulable" }
func (UnschedulableRule) CheckHealth(node *Node, stat string) bool { return false }
func (UnschedulableRule) Prepare(node *Node) bool                  { return true }
func (UnschedulableRule) UpdateData()                              {}

var _ Rule = UnschedulableRule{}
