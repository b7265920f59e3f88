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

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"k8s.io/client-go/util/workqueue"

	"github.com/Anbang-Hu/DLWorkspace/pkg/agent"
	"github.com/Anbang-Hu/DLWorkspace/pkg/db"
	"github.com/Anbang-Hu/DLWorkspace/pkg/k8s"
	"github.com/Anbang-Hu/DLWorkspace/pkg/log"
	"github.com/Anbang-Hu/DLWorkspace/pkg/metrics"
)

// afterRepairGrace is how long a node is allowed to sit in AFTER_REPAIR
// before a still-failing health check demotes it back to OUT_OF_POOL
// instead of waiting indefinitely for the next healthy reading.
const afterRepairGrace = 5 * time.Minute

// Manager runs one tick of the repair state machine: health evaluation,
// state transitions, node patches, metrics, and per-job repair messages.
// Every field is set at construction; there are no package-level vars, so
// two Managers (e.g. one per cluster in a test) never share state.
type Manager struct {
	K8s    k8s.Client
	Agent  agent.Client
	DB     db.Client
	Rules  []Rule
	Port   int
	DryRun bool

	changes    *changeMonitor
	metricsRef *metrics.AtomicRef[metrics.RepairSnapshot]
}

func NewManager(k8sClient k8s.Client, agentClient agent.Client, dbClient db.Client, rules []Rule, port int, dryRun bool) *Manager {
	return &Manager{
		K8s:        k8sClient,
		Agent:      agentClient,
		DB:         dbClient,
		Rules:      rules,
		Port:       port,
		DryRun:     dryRun,
		changes:    newChangeMonitor(0),
		metricsRef: &metrics.AtomicRef[metrics.RepairSnapshot]{},
	}
}

// MetricsRef exposes the double-buffered gauge snapshot so the caller can
// wire a metrics.RepairCollector into its registry at startup.
func (m *Manager) MetricsRef() *metrics.AtomicRef[metrics.RepairSnapshot] {
	return m.metricsRef
}

// Tick evaluates and advances every node's repair state once, mirroring
// the source's run loop body: validate+update per node, then the
// tick-wide side effects (metrics, per-job repair messages, email digest).
func (m *Manager) Tick(ctx context.Context, nodes []*Node) error {
	for _, r := range m.Rules {
		r.UpdateData()
	}

	errs := make([]error, len(nodes))
	// One worker: nodes that share a job write the same job.UnhealthyNodes
	// map, so the per-node steps run one at a time.
	workqueue.ParallelizeUntil(ctx, 1, len(nodes), func(i int) {
		node := nodes[i]
		if err := m.validate(ctx, node); err != nil {
			errs[i] = fmt.Errorf("validating node %s: %w", node.Name, err)
			return
		}
		if err := m.update(ctx, node); err != nil {
			errs[i] = fmt.Errorf("updating node %s: %w", node.Name, err)
		}
	})
	if err := multierr.Combine(errs...); err != nil {
		return err
	}

	m.updateMetrics(nodes)
	if err := m.updateRepairMessageForJobs(ctx, nodes); err != nil {
		return fmt.Errorf("updating job repair messages: %w", err)
	}
	return m.SendEmails(ctx)
}

// validate corrects tracked-state drift ahead of update()'s transition
// dispatch: a node whose state says it is mid-repair but Kubernetes
// reports schedulable (an external uncordon, or a prior patch that reached
// the API server but not this process's view) is pulled back into
// OUT_OF_POOL or OUT_OF_POOL_UNTRACKED before any transition runs against
// it, matching the source's validate().
func (m *Manager) validate(ctx context.Context, node *Node) error {
	if node.State != InService && !node.Unschedulable {
		if node.RepairCycle {
			return m.fromAnyToOutOfPool(ctx, node)
		}
		return m.fromAnyToOutOfPoolUntracked(ctx, node)
	}
	return nil
}

// checkHealth runs every configured rule against node and records which
// ones currently flag it unhealthy, mirroring check_health's population of
// node.unhealthy_rules and each job's unhealthy_nodes map.
func (m *Manager) checkHealth(node *Node, stat string) bool {
	node.UnhealthyRules = node.UnhealthyRules[:0]
	for _, r := range m.Rules {
		if !r.CheckHealth(node, stat) {
			node.UnhealthyRules = append(node.UnhealthyRules, r)
		}
	}
	healthy := len(node.UnhealthyRules) == 0
	for _, job := range node.Jobs {
		if healthy {
			delete(job.UnhealthyNodes, node.Name)
		} else {
			job.UnhealthyNodes[node.Name] = node
		}
	}
	return healthy
}

// update dispatches node to the from_X_to_Y transition its current state
// and health evaluation call for. The admin escape hatch (a node cordoned
// by hand, outside the repair cycle) is checked before the ordinary
// per-state table, matching the source's precedence.
func (m *Manager) update(ctx context.Context, node *Node) error {
	if node.Unschedulable && !node.RepairCycle && node.State != OutOfPoolUntracked {
		return m.fromAnyToOutOfPoolUntracked(ctx, node)
	}

	switch node.State {
	case InService:
		if !m.checkHealth(node, "") {
			return m.fromAnyToOutOfPool(ctx, node)
		}
		return nil
	case OutOfPool:
		return m.updateOutOfPool(ctx, node)
	case OutOfPoolUntracked:
		if !node.Unschedulable {
			return m.fromOutOfPoolUntrackedToInService(ctx, node)
		}
		return nil
	case ReadyForRepair:
		return m.fromReadyForRepairToInRepair(ctx, node)
	case InRepair:
		return m.fromInRepairToAfterRepair(ctx, node)
	case AfterRepair:
		return m.updateAfterRepair(ctx, node)
	default:
		return nil
	}
}

func (m *Manager) updateOutOfPool(ctx context.Context, node *Node) error {
	if waiting := lo.Filter(lo.Values(node.Jobs), func(j *Job, _ int) bool { return j.WaitForJobs }); len(waiting) > 0 {
		return m.setRepairMessage(ctx, node, "Waiting for job(s) to finish before repair")
	}
	if !m.prepare(node) {
		return nil
	}
	return m.fromOutOfPoolToReadyForRepair(ctx, node)
}

func (m *Manager) updateAfterRepair(ctx context.Context, node *Node) error {
	if m.checkHealth(node, "current") {
		return m.fromAfterRepairToInService(ctx, node)
	}
	if time.Since(node.LastUpdateTime) >= afterRepairGrace {
		return m.fromAfterRepairToOutOfPool(ctx, node)
	}
	return nil
}

// prepare runs every unhealthy rule's Prepare hook, matching the source's
// all-rules-must-be-ready gate before a node is handed to the repair
// agent.
func (m *Manager) prepare(node *Node) bool {
	for _, r := range node.UnhealthyRules {
		if !r.Prepare(node) {
			return false
		}
	}
	return true
}

func (m *Manager) fromAnyToOutOfPool(ctx context.Context, node *Node) error {
	if len(node.UnhealthyRules) == 0 {
		node.UnhealthyRules = []Rule{UnschedulableRule{}}
	}
	node.State = OutOfPool
	node.RepairCycle = true
	return m.transition(ctx, node, lo.ToPtr(true), "Health event(s) detected, out of scheduling pool")
}

func (m *Manager) fromAnyToOutOfPoolUntracked(ctx context.Context, node *Node) error {
	node.State = OutOfPoolUntracked
	node.RepairCycle = false
	return m.transition(ctx, node, nil, "Pending repair by Administrator")
}

func (m *Manager) fromOutOfPoolUntrackedToInService(ctx context.Context, node *Node) error {
	node.State = InService
	node.RepairCycle = false
	return m.transition(ctx, node, nil, "")
}

func (m *Manager) fromOutOfPoolToReadyForRepair(ctx context.Context, node *Node) error {
	node.State = ReadyForRepair
	return m.transition(ctx, node, nil, "Repair action will start soon")
}

func (m *Manager) fromReadyForRepairToInRepair(ctx context.Context, node *Node) error {
	ok, err := m.sendRepairRequest(ctx, node)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	node.State = InRepair
	return m.transition(ctx, node, nil, "Currently under repair")
}

func (m *Manager) fromInRepairToAfterRepair(ctx context.Context, node *Node) error {
	ok, err := m.checkLiveness(ctx, node)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	node.State = AfterRepair
	return m.transition(ctx, node, lo.ToPtr(false), "Repair completed, pending health check")
}

func (m *Manager) fromAfterRepairToInService(ctx context.Context, node *Node) error {
	node.State = InService
	node.RepairCycle = false
	node.UnhealthyRules = nil
	return m.transition(ctx, node, nil, "")
}

func (m *Manager) fromAfterRepairToOutOfPool(ctx context.Context, node *Node) error {
	node.State = OutOfPool
	return m.transition(ctx, node, lo.ToPtr(true), "Health event(s) detected, out of scheduling pool")
}

// sendRepairRequest hands the node's current unhealthy rule names to its
// repair agent and returns whether the agent accepted the request.
func (m *Manager) sendRepairRequest(ctx context.Context, node *Node) (bool, error) {
	names := lo.Map(node.UnhealthyRules, func(r Rule, _ int) string { return r.Name() })
	ok, err := m.Agent.SendRepairRequest(ctx, node.IP, m.Port, names)
	if err != nil {
		return false, fmt.Errorf("sending repair request to %s: %w", node.Name, err)
	}
	return ok, nil
}

func (m *Manager) checkLiveness(ctx context.Context, node *Node) (bool, error) {
	ok, err := m.Agent.CheckLiveness(ctx, node.IP, m.Port)
	if err != nil {
		return false, fmt.Errorf("checking liveness of %s: %w", node.Name, err)
	}
	return ok, nil
}

// transition writes the node's new state, repair message, and (when
// unschedulable is non-nil) cordon status back to Kubernetes in a single
// atomic patch, then updates the in-memory node so the rest of this tick's
// pass sees the new state immediately.
func (m *Manager) transition(ctx context.Context, node *Node, unschedulable *bool, message string) error {
	node.RepairMessage = m.getRepairMessage(node, message)
	node.LastUpdateTime = time.Now()
	if unschedulable != nil {
		node.Unschedulable = *unschedulable
	}
	return m.patch(ctx, node, unschedulable)
}

func (m *Manager) setRepairMessage(ctx context.Context, node *Node, message string) error {
	msg := m.getRepairMessage(node, message)
	if msg == node.RepairMessage {
		return nil
	}
	node.RepairMessage = msg
	return m.patch(ctx, node, nil)
}

// getRepairMessage composes the human-readable annotation value, appending
// the unhealthy rule descriptions whenever there are any to show.
func (m *Manager) getRepairMessage(node *Node, message string) string {
	if desc := m.getUnhealthyRulesDesc(node); desc != "" {
		return fmt.Sprintf("%s: %s", message, desc)
	}
	return message
}

func (m *Manager) getUnhealthyRulesDesc(node *Node) string {
	descs := lo.Map(node.UnhealthyRules, func(r Rule, _ int) string { return r.Desc() })
	out := ""
	for i, d := range descs {
		if i > 0 {
			out += ", "
		}
		out += d
	}
	return out
}

func (m *Manager) getUnhealthyRulesValue(node *Node) []string {
	return lo.Map(node.UnhealthyRules, func(r Rule, _ int) string { return r.Name() })
}

// patch writes state, cycle, message, last-update-time, and (if non-nil)
// cordon status back to the node object in one call, matching the source's
// single atomic self.k8s_util.patch_node. In dry-run mode nothing is sent
// to the API server; the intended patch is logged instead.
func (m *Manager) patch(ctx context.Context, node *Node, unschedulable *bool) error {
	labels := map[string]*string{LabelRepairState: lo.ToPtr(node.State.String())}
	annotations := map[string]*string{
		AnnotationLastUpdateTime: lo.ToPtr(node.LastUpdateTime.Format(time.RFC3339)),
		AnnotationRepairCycle:    lo.ToPtr(strconv.FormatBool(node.RepairCycle)),
		AnnotationRepairMessage:  lo.ToPtr(node.RepairMessage),
	}
	if rules := m.getUnhealthyRulesValue(node); len(rules) > 0 {
		annotations[AnnotationUnhealthyRules] = lo.ToPtr(fmt.Sprint(rules))
	}
	if m.DryRun {
		return nil
	}
	if err := m.K8s.PatchNode(ctx, node.Name, unschedulable, labels, annotations); err != nil {
		return fmt.Errorf("patching node %s: %w", node.Name, err)
	}
	return nil
}

// updateMetrics rebuilds the repair gauges from scratch from this tick's
// node set, zero-filling every known state/rule/sku combination so a
// combination that just emptied out still reports zero instead of going
// stale at its last nonzero value.
func (m *Manager) updateMetrics(nodes []*Node) {
	skus := lo.Uniq(lo.Map(nodes, func(n *Node, _ int) string { return n.SKU }))
	ruleNames := lo.Uniq(lo.FlatMap(m.Rules, func(r Rule, _ int) []string { return []string{r.Name()} }))

	stateCount := map[[2]string]float64{}
	for _, st := range AllStates {
		for _, sku := range skus {
			stateCount[[2]string{st.String(), sku}] = 0
		}
	}
	ruleCount := map[[2]string]float64{}
	for _, name := range ruleNames {
		for _, sku := range skus {
			ruleCount[[2]string{name, sku}] = 0
		}
	}
	impactedJobs := map[string]float64{}
	for _, sku := range skus {
		impactedJobs[sku] = 0
	}

	impactedJobIDs := map[string]map[string]bool{}
	for _, node := range nodes {
		stateCount[[2]string{node.State.String(), node.SKU}]++
		for _, r := range node.UnhealthyRules {
			ruleCount[[2]string{r.Name(), node.SKU}]++
		}
		if len(node.UnhealthyRules) > 0 {
			for jobID := range node.Jobs {
				if impactedJobIDs[node.SKU] == nil {
					impactedJobIDs[node.SKU] = map[string]bool{}
				}
				impactedJobIDs[node.SKU][jobID] = true
			}
		}
	}
	for sku, jobs := range impactedJobIDs {
		impactedJobs[sku] = float64(len(jobs))
	}

	m.metricsRef.Set(metrics.RepairSnapshot{
		StateNodeCount:   stateCount,
		RuleNodeCount:    ruleCount,
		ImpactedJobCount: impactedJobs,
	})
}

// updateRepairMessageForJobs writes the repair message for every job on
// the given nodes: the user-facing warning when the job has at least one
// unhealthy node, an empty message otherwise. It writes unconditionally
// every tick — the changeMonitor only gates the log line, never this
// write, since a stale warning left behind after a node recovers would
// mislead a user into believing their job is still at risk.
func (m *Manager) updateRepairMessageForJobs(ctx context.Context, nodes []*Node) error {
	logger := log.FromContext(ctx)
	jobs := map[string]*Job{}
	for _, node := range nodes {
		for id, job := range node.Jobs {
			jobs[id] = job
		}
	}

	var errs error
	for jobID, job := range jobs {
		message := map[string]any{}
		if len(job.UnhealthyNodes) > 0 {
			message["message"] = m.jobRepairMessage(job)
		}
		if m.changes.hasChanged("job-repair-message/"+jobID, message) {
			logger.Debugw("repair message changed for job", "jobId", jobID, "unhealthyNodeCount", len(job.UnhealthyNodes))
		}
		if err := m.DB.UpdateRepairMessage(ctx, jobID, message); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("updating repair message for job %s: %w", jobID, err))
		}
	}
	return errs
}

func (m *Manager) jobRepairMessage(job *Job) string {
	names := lo.Keys(job.UnhealthyNodes)
	descs := lo.Map(names, func(name string, _ int) string {
		node := job.UnhealthyNodes[name]
		return fmt.Sprintf("%s (%s)", name, m.getUnhealthyRulesDesc(node))
	})
	list := ""
	for i, d := range descs {
		if i > 0 {
			list += ", "
		}
		list += d
	}
	return fmt.Sprintf(
		"Your job is running on unhealthy node(s): %s. Please check if it is still running as expected. "+
			"Kill/finish it as soon as possible to allow the node(s) to be repaired.",
		list,
	)
}

// SendEmails is a no-op hook called at the end of every Tick: the source's
// equivalent is a deliberate no-op (admin email digests were never
// implemented there either), kept as a named call site so a notifier can
// be dropped in without touching the tick loop.
func (m *Manager) SendEmails(ctx context.Context) error {
	return nil
}
