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

// Package k8s wraps the subset of client-go this control plane needs: node
// listing/patching for the repair manager, pod listing and job pod status
// for the job manager.
package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

// Client is the node/pod surface the control loops read and patch.
type Client interface {
	ListNodes(ctx context.Context) ([]corev1.Node, error)
	ListPods(ctx context.Context) ([]corev1.Pod, error)
	// PatchNode applies unschedulable, labels, and annotations in a single
	// JSON merge patch so a repair-state transition is atomic: either
	// the whole patch lands, or none of it does.
	PatchNode(ctx context.Context, name string, unschedulable *bool, labels, annotations map[string]*string) error
	GetNodeLabels(ctx context.Context, labelKey string) (map[string]string, error)
	GetJobStatus(ctx context.Context, jobID string) (string, map[string]string, error)
}

// ClientGo is the production Client backed by kubernetes.Interface.
type ClientGo struct {
	clientset kubernetes.Interface
}

func NewClientGo(clientset kubernetes.Interface) *ClientGo {
	return &ClientGo{clientset: clientset}
}

func (c *ClientGo) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	list, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	return list.Items, nil
}

func (c *ClientGo) ListPods(ctx context.Context) ([]corev1.Pod, error) {
	list, err := c.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}
	return list.Items, nil
}

type patchBody struct {
	Spec     *patchSpec        `json:"spec,omitempty"`
	Metadata patchMetadata     `json:"metadata"`
}

type patchSpec struct {
	Unschedulable *bool `json:"unschedulable,omitempty"`
}

type patchMetadata struct {
	Labels      map[string]*string `json:"labels,omitempty"`
	Annotations map[string]*string `json:"annotations,omitempty"`
}

func (c *ClientGo) PatchNode(ctx context.Context, name string, unschedulable *bool, labels, annotations map[string]*string) error {
	body := patchBody{
		Metadata: patchMetadata{Labels: labels, Annotations: annotations},
	}
	if unschedulable != nil {
		body.Spec = &patchSpec{Unschedulable: unschedulable}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding patch for node %s: %w", name, err)
	}
	_, err = c.clientset.CoreV1().Nodes().Patch(ctx, name, types.MergePatchType, raw, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patching node %s: %w", name, err)
	}
	return nil
}

func (c *ClientGo) GetNodeLabels(ctx context.Context, labelKey string) (map[string]string, error) {
	nodes, err := c.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(nodes))
	for _, n := range nodes {
		if v, ok := n.Labels[labelKey]; ok {
			out[n.Name] = v
		}
	}
	return out, nil
}

func (c *ClientGo) GetJobStatus(ctx context.Context, jobID string) (string, map[string]string, error) {
	pods, err := c.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("jobId=%s", jobID),
	})
	if err != nil {
		return "", nil, fmt.Errorf("listing pods for job %s: %w", jobID, err)
	}
	if len(pods.Items) == 0 {
		return "NotFound", nil, nil
	}
	detail := map[string]string{}
	for _, p := range pods.Items {
		detail[p.Name] = string(p.Status.Phase)
	}
	return "Pending", detail, nil
}

// LocalizeTime mirrors k8sUtils.localize_time: a timestamp rendered in the
// cluster's local timezone for display in jobStatusDetail.
func LocalizeTime(t time.Time) string {
	return t.Local().Format(time.RFC3339)
}

// SupportsPodPriority mirrors is_version_satisified(actual, "1.15"): a
// server version string like "1.18.2" is compared component-wise against a
// minimum baseline to decide whether non-preempting PriorityClasses are
// available. Computed once at startup and stored on config, unconsumed
// downstream in the distilled scheduler, matching the source.
func SupportsPodPriority(actual string) bool {
	return versionAtLeast(actual, "1.15")
}

func versionAtLeast(actual, base string) bool {
	a := parseVersion(actual)
	b := parseVersion(base)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] > b[i] {
			return true
		}
		if a[i] < b[i] {
			return false
		}
	}
	return len(a) >= len(b)
}

func parseVersion(v string) []int {
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			n = 0
		}
		out = append(out, n)
	}
	return out
}

var _ Client = (*ClientGo)(nil)
