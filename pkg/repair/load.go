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
	"sort"
	"time"
)

const skuLabel = "sku"

// jobIDPodLabel is the pod label used to attribute a running pod to a job,
// matching the selector k8s.ClientGo.GetJobStatus already filters on.
const jobIDPodLabel = "jobId"

// LoadNodes reads the current cluster state and assembles the per-tick
// Node view Tick operates on: one Node per Kubernetes node, annotated with
// its last-known repair state, and the jobs currently scheduled on it
// derived from running pods, matching the source's get_repair_state plus
// parse_for_jobs_and_nodes.
func (m *Manager) LoadNodes(ctx context.Context) ([]*Node, error) {
	k8sNodes, err := m.K8s.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	skus, err := m.K8s.GetNodeLabels(ctx, skuLabel)
	if err != nil {
		return nil, fmt.Errorf("listing node sku labels: %w", err)
	}
	pods, err := m.K8s.ListPods(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}

	byName := make(map[string]*Node, len(k8sNodes))
	for i := range k8sNodes {
		n := &k8sNodes[i]
		node := &Node{
			Name:          n.Name,
			SKU:           skus[n.Name],
			Unschedulable: n.Spec.Unschedulable,
			Jobs:          map[string]*Job{},
		}
		for _, addr := range n.Status.Addresses {
			if addr.Type == "InternalIP" {
				node.IP = addr.Address
				break
			}
		}
		node.State = ParseState(n.Labels[LabelRepairState])
		node.RepairCycle = n.Annotations[AnnotationRepairCycle] == "true"
		node.RepairMessage = n.Annotations[AnnotationRepairMessage]
		if ts := n.Annotations[AnnotationLastUpdateTime]; ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				node.LastUpdateTime = parsed
			}
		}
		byName[n.Name] = node
	}

	jobs := map[string]*Job{}
	for _, pod := range pods {
		jobID := pod.Labels[jobIDPodLabel]
		node := byName[pod.Spec.NodeName]
		if jobID == "" || node == nil {
			continue
		}
		job, ok := jobs[jobID]
		if !ok {
			job = &Job{JobID: jobID, WaitForJobs: true, UnhealthyNodes: map[string]*Node{}}
			jobs[jobID] = job
		}
		node.Jobs[jobID] = job
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	nodes := make([]*Node, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, byName[name])
	}
	return nodes, nil
}
