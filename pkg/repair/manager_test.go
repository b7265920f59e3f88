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
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/Anbang-Hu/DLWorkspace/pkg/db"
)

type fakeAgent struct {
	repairOK   bool
	livenessOK bool
	repairReqs [][]string
}

func (f *fakeAgent) SendRepairRequest(_ context.Context, _ string, _ int, rules []string) (bool, error) {
	f.repairReqs = append(f.repairReqs, rules)
	return f.repairOK, nil
}

func (f *fakeAgent) CheckLiveness(_ context.Context, _ string, _ int) (bool, error) {
	return f.livenessOK, nil
}

type patchCall struct {
	name          string
	unschedulable *bool
	labels        map[string]*string
	annotations   map[string]*string
}

type fakeK8sClient struct {
	patches []patchCall
}

func (f *fakeK8sClient) ListNodes(_ context.Context) ([]corev1.Node, error) { return nil, nil }
func (f *fakeK8sClient) ListPods(_ context.Context) ([]corev1.Pod, error)  { return nil, nil }

func (f *fakeK8sClient) PatchNode(_ context.Context, name string, unschedulable *bool, labels, annotations map[string]*string) error {
	f.patches = append(f.patches, patchCall{name: name, unschedulable: unschedulable, labels: labels, annotations: annotations})
	return nil
}

func (f *fakeK8sClient) GetNodeLabels(_ context.Context, _ string) (map[string]string, error) {
	return nil, nil
}

func (f *fakeK8sClient) GetJobStatus(_ context.Context, _ string) (string, map[string]string, error) {
	return "NotFound", nil, nil
}

// toggleRule reports r.healthy, flipped mid-test to drive a node through
// the full state machine.
type toggleRule struct {
	healthy bool
}

func (r *toggleRule) Name() string                             { return "ToggleRule" }
func (r *toggleRule) Desc() string                              { return "toggle rule failed" }
func (r *toggleRule) CheckHealth(node *Node, stat string) bool  { return r.healthy }
func (r *toggleRule) Prepare(node *Node) bool                   { return true }
func (r *toggleRule) UpdateData()                               {}

func newTestManager(rules []Rule) (*Manager, *fakeAgent, *fakeK8sClient, *db.FakeClient) {
	k8sFake := &fakeK8sClient{}
	agentFake := &fakeAgent{repairOK: true, livenessOK: true}
	dbFake := db.NewFakeClient()
	m := NewManager(k8sFake, agentFake, dbFake, rules, 9081, false)
	return m, agentFake, k8sFake, dbFake
}

func TestUpdate_InServiceToOutOfPoolOnUnhealthy(t *testing.T) {
	rule := &toggleRule{healthy: false}
	m, _, k8sFake, _ := newTestManager([]Rule{rule})

	node := &Node{Name: "node-1", State: InService, Jobs: map[string]*Job{}}
	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}

	if node.State != OutOfPool {
		t.Fatalf("state = %v, want OutOfPool", node.State)
	}
	if !node.RepairCycle {
		t.Fatal("expected RepairCycle to be set entering OUT_OF_POOL")
	}
	if len(k8sFake.patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(k8sFake.patches))
	}
	if got := *k8sFake.patches[0].unschedulable; !got {
		t.Fatal("expected node cordoned on OUT_OF_POOL entry")
	}
}

func TestValidate_CorrectsDriftWhenCordonRevertedMidRepair(t *testing.T) {
	rule := &toggleRule{healthy: false}
	m, agentFake, k8sFake, _ := newTestManager([]Rule{rule})

	// A node tracked as ReadyForRepair, but an external uncordon (or a
	// prior patch that reached Kubernetes without updating our view) left
	// it schedulable again. validate must pull it back to OutOfPool before
	// update runs, instead of letting update issue a repair request
	// against a node Kubernetes now considers schedulable.
	node := &Node{
		Name:           "node-1",
		State:          ReadyForRepair,
		RepairCycle:    true,
		Unschedulable:  false,
		UnhealthyRules: []Rule{rule},
		Jobs:           map[string]*Job{},
	}
	if err := m.validate(context.Background(), node); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if node.State != OutOfPool {
		t.Fatalf("state = %v, want drift correction back to OutOfPool", node.State)
	}
	if len(k8sFake.patches) != 1 {
		t.Fatalf("expected 1 drift-correction patch, got %d", len(k8sFake.patches))
	}

	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(agentFake.repairReqs) != 0 {
		t.Fatal("drift correction must not fall through to a repair request in the same tick")
	}
}

func TestValidate_CorrectsDriftToOutOfPoolUntrackedOutsideRepairCycle(t *testing.T) {
	m, _, k8sFake, _ := newTestManager(nil)

	node := &Node{Name: "node-1", State: InRepair, RepairCycle: false, Unschedulable: false, Jobs: map[string]*Job{}}
	if err := m.validate(context.Background(), node); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if node.State != OutOfPoolUntracked {
		t.Fatalf("state = %v, want OutOfPoolUntracked", node.State)
	}
	if len(k8sFake.patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(k8sFake.patches))
	}
}

func TestValidate_NoOpWhenStateMatchesCordon(t *testing.T) {
	m, _, k8sFake, _ := newTestManager(nil)

	node := &Node{Name: "node-1", State: InRepair, RepairCycle: true, Unschedulable: true, Jobs: map[string]*Job{}}
	if err := m.validate(context.Background(), node); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if node.State != InRepair {
		t.Fatalf("state = %v, want unchanged InRepair", node.State)
	}
	if len(k8sFake.patches) != 0 {
		t.Fatalf("expected no patches, got %d", len(k8sFake.patches))
	}
}

func TestUpdate_AdminCordonEscapeHatchOverridesNormalState(t *testing.T) {
	m, _, _, _ := newTestManager(nil)

	node := &Node{Name: "node-1", State: InService, Unschedulable: true, RepairCycle: false, Jobs: map[string]*Job{}}
	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}
	if node.State != OutOfPoolUntracked {
		t.Fatalf("state = %v, want OutOfPoolUntracked", node.State)
	}
}

func TestUpdate_OutOfPoolWaitsForJobsBeforeReadyForRepair(t *testing.T) {
	rule := &toggleRule{healthy: false}
	m, _, k8sFake, _ := newTestManager([]Rule{rule})

	node := &Node{
		Name:           "node-1",
		State:          OutOfPool,
		RepairCycle:    true,
		UnhealthyRules: []Rule{rule},
		Jobs:           map[string]*Job{"job-1": {JobID: "job-1", WaitForJobs: true}},
	}
	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}
	if node.State != OutOfPool {
		t.Fatalf("state = %v, want node to stay OutOfPool while a job is running", node.State)
	}
	if len(k8sFake.patches) != 1 {
		t.Fatalf("expected a message-only patch, got %d", len(k8sFake.patches))
	}
	if k8sFake.patches[0].unschedulable != nil {
		t.Fatal("a wait-for-jobs patch must not touch cordon status")
	}
}

func TestUpdate_OutOfPoolAdvancesToReadyForRepairOnceJobsClear(t *testing.T) {
	rule := &toggleRule{healthy: false}
	m, _, _, _ := newTestManager([]Rule{rule})

	node := &Node{
		Name:           "node-1",
		State:          OutOfPool,
		RepairCycle:    true,
		UnhealthyRules: []Rule{rule},
		Jobs:           map[string]*Job{},
	}
	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}
	if node.State != ReadyForRepair {
		t.Fatalf("state = %v, want ReadyForRepair", node.State)
	}
}

func TestUpdate_ReadyForRepairAdvancesOnAgentAccept(t *testing.T) {
	m, agentFake, _, _ := newTestManager([]Rule{&toggleRule{healthy: false}})
	agentFake.repairOK = true

	node := &Node{Name: "node-1", State: ReadyForRepair, UnhealthyRules: []Rule{&toggleRule{healthy: false}}, Jobs: map[string]*Job{}}
	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}
	if node.State != InRepair {
		t.Fatalf("state = %v, want InRepair", node.State)
	}
	if len(agentFake.repairReqs) != 1 {
		t.Fatalf("expected 1 repair request, got %d", len(agentFake.repairReqs))
	}
}

func TestUpdate_InRepairStaysUntilLivenessRecovers(t *testing.T) {
	m, agentFake, _, _ := newTestManager(nil)
	agentFake.livenessOK = false

	node := &Node{Name: "node-1", State: InRepair, Jobs: map[string]*Job{}}
	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}
	if node.State != InRepair {
		t.Fatalf("state = %v, want to stay InRepair while agent is not yet live", node.State)
	}

	agentFake.livenessOK = true
	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}
	if node.State != AfterRepair {
		t.Fatalf("state = %v, want AfterRepair", node.State)
	}
}

func TestUpdate_AfterRepairReturnsToServiceWhenHealthy(t *testing.T) {
	rule := &toggleRule{healthy: true}
	m, _, _, _ := newTestManager([]Rule{rule})

	node := &Node{Name: "node-1", State: AfterRepair, RepairCycle: true, LastUpdateTime: time.Now(), Jobs: map[string]*Job{}}
	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}
	if node.State != InService {
		t.Fatalf("state = %v, want InService", node.State)
	}
	if node.RepairCycle {
		t.Fatal("expected RepairCycle cleared on return to service")
	}
}

func TestUpdate_AfterRepairDemotesAfterGraceWhenStillUnhealthy(t *testing.T) {
	rule := &toggleRule{healthy: false}
	m, _, _, _ := newTestManager([]Rule{rule})

	node := &Node{
		Name:           "node-1",
		State:          AfterRepair,
		RepairCycle:    true,
		LastUpdateTime: time.Now().Add(-6 * time.Minute),
		Jobs:           map[string]*Job{},
	}
	if err := m.update(context.Background(), node); err != nil {
		t.Fatalf("update: %v", err)
	}
	if node.State != OutOfPool {
		t.Fatalf("state = %v, want demotion back to OutOfPool past the grace period", node.State)
	}
}

func TestUpdateRepairMessageForJobs_WritesUnconditionallyEveryTick(t *testing.T) {
	rule := &toggleRule{healthy: false}
	m, _, _, dbFake := newTestManager([]Rule{rule})

	unhealthyNode := &Node{Name: "node-1", UnhealthyRules: []Rule{rule}}
	job := &Job{JobID: "job-1", UnhealthyNodes: map[string]*Node{"node-1": unhealthyNode}}
	unhealthyNode.Jobs = map[string]*Job{"job-1": job}

	if err := m.updateRepairMessageForJobs(context.Background(), []*Node{unhealthyNode}); err != nil {
		t.Fatalf("updateRepairMessageForJobs: %v", err)
	}
	msg, ok := dbFake.RepairMessages["job-1"]
	if !ok {
		t.Fatal("expected a repair message written for job-1")
	}
	if _, ok := msg["message"]; !ok {
		t.Fatal("expected a non-empty message for a job on an unhealthy node")
	}

	// A second tick with no unhealthy nodes must still write (to clear it).
	healthyNode := &Node{Name: "node-1", Jobs: map[string]*Job{"job-1": {JobID: "job-1", UnhealthyNodes: map[string]*Node{}}}}
	if err := m.updateRepairMessageForJobs(context.Background(), []*Node{healthyNode}); err != nil {
		t.Fatalf("updateRepairMessageForJobs: %v", err)
	}
	if msg := dbFake.RepairMessages["job-1"]; len(msg) != 0 {
		t.Fatalf("expected repair message cleared once no node is unhealthy, got %v", msg)
	}
}

func TestUpdateMetrics_ZeroFillsEveryStateAndRule(t *testing.T) {
	rule := &toggleRule{healthy: false}
	m, _, _, _ := newTestManager([]Rule{rule})

	node := &Node{Name: "node-1", SKU: "V100", State: OutOfPool, UnhealthyRules: []Rule{rule}, Jobs: map[string]*Job{}}
	m.updateMetrics([]*Node{node})

	snap, ok := m.metricsRef.Get()
	if !ok {
		t.Fatal("expected a metrics snapshot after updateMetrics")
	}
	if got := snap.StateNodeCount[[2]string{InService.String(), "V100"}]; got != 0 {
		t.Fatalf("InService/V100 = %v, want 0 (zero-filled)", got)
	}
	if got := snap.StateNodeCount[[2]string{OutOfPool.String(), "V100"}]; got != 1 {
		t.Fatalf("OutOfPool/V100 = %v, want 1", got)
	}
	if got := snap.RuleNodeCount[[2]string{"ToggleRule", "V100"}]; got != 1 {
		t.Fatalf("ToggleRule/V100 = %v, want 1", got)
	}
}
