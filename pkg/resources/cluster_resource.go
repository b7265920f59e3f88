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

// Package resources implements the three-axis (cpu, memory, gpu) resource
// arithmetic used by the scheduler and the cluster-status model. Each axis is a
// mapping from SKU label to a non-negative amount, mirroring the ClusterResource
// type of the source this package is ported from.
package resources

import (
	"fmt"
	"sort"
	"strings"
)

// Axis is a SKU-keyed amount along a single resource dimension.
type Axis map[string]float64

// Clone returns a deep copy of the axis.
func (a Axis) Clone() Axis {
	out := make(Axis, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func (a Axis) add(other Axis) Axis {
	out := a.Clone()
	for k, v := range other {
		out[k] += v
	}
	return out
}

func (a Axis) sub(other Axis) Axis {
	out := a.Clone()
	for k, v := range other {
		out[k] -= v
	}
	return out
}

func (a Axis) scale(factor float64) Axis {
	out := make(Axis, len(a))
	for k, v := range a {
		out[k] = v * factor
	}
	return out
}

// geq reports whether every key present in other is covered by a with an
// amount at least as large. Missing keys in a are treated as zero.
func (a Axis) geq(other Axis) bool {
	for k, v := range other {
		if a[k] < v {
			return false
		}
	}
	return true
}

func (a Axis) isEmpty() bool {
	for _, v := range a {
		if v > 0 {
			return false
		}
	}
	return true
}

func (a Axis) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%g", k, a[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ClusterResource is a three-axis quantity: cpu, memory and gpu, each keyed
// by SKU label. It supports +, -, and a partial order >= that holds iff
// every component of the left side is >= the corresponding component of the
// right side (missing components on either side default to zero).
type ClusterResource struct {
	CPU    Axis
	Memory Axis
	GPU    Axis
}

// New builds a ClusterResource, defaulting any nil axis to an empty map.
func New(cpu, memory, gpu Axis) ClusterResource {
	if cpu == nil {
		cpu = Axis{}
	}
	if memory == nil {
		memory = Axis{}
	}
	if gpu == nil {
		gpu = Axis{}
	}
	return ClusterResource{CPU: cpu, Memory: memory, GPU: gpu}
}

// Clone returns a deep copy so callers can mutate working copies without
// aliasing the original.
func (r ClusterResource) Clone() ClusterResource {
	return ClusterResource{CPU: r.CPU.Clone(), Memory: r.Memory.Clone(), GPU: r.GPU.Clone()}
}

// Add returns r + other.
func (r ClusterResource) Add(other ClusterResource) ClusterResource {
	return ClusterResource{CPU: r.CPU.add(other.CPU), Memory: r.Memory.add(other.Memory), GPU: r.GPU.add(other.GPU)}
}

// Sub returns r - other. Underflow is the caller's responsibility to avoid;
// gate every subtraction with GreaterOrEqual first, per the package invariant.
func (r ClusterResource) Sub(other ClusterResource) ClusterResource {
	return ClusterResource{CPU: r.CPU.sub(other.CPU), Memory: r.Memory.sub(other.Memory), GPU: r.GPU.sub(other.GPU)}
}

// Scale multiplies every component by factor, used for the 95% safety
// discount applied to cluster and VC schedulables.
func (r ClusterResource) Scale(factor float64) ClusterResource {
	return ClusterResource{CPU: r.CPU.scale(factor), Memory: r.Memory.scale(factor), GPU: r.GPU.scale(factor)}
}

// GreaterOrEqual holds iff every component of r is >= the corresponding
// component of other.
func (r ClusterResource) GreaterOrEqual(other ClusterResource) bool {
	return r.CPU.geq(other.CPU) && r.Memory.geq(other.Memory) && r.GPU.geq(other.GPU)
}

// HasEmptyGPUOrCPU reports whether the GPU or CPU axis has no positive
// amount on any SKU. Used to detect a degenerate proportional inference
// allocation (Pass D) that should be denied rather than granted.
func (r ClusterResource) HasEmptyGPUOrCPU() bool {
	return r.GPU.isEmpty() || r.CPU.isEmpty()
}

func (r ClusterResource) String() string {
	return fmt.Sprintf("cpu=%s memory=%s gpu=%s", r.CPU, r.Memory, r.GPU)
}

// SoleGPUKey returns the single SKU key carrying a GPU request, and its
// amount, for resources known to request exactly one GPU SKU (the inference
// preemptable-resource shape in Pass D). ok is false for an empty axis.
func (r ClusterResource) SoleGPUKey() (key string, amount float64, ok bool) {
	for k, v := range r.GPU {
		return k, v, true
	}
	return "", 0, false
}
