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

package v1alpha1

import "github.com/Anbang-Hu/DLWorkspace/pkg/resources"

// AxisStatus carries the three raw per-axis numbers the DB stores for a
// cluster or a VC: how much exists, how much is reserved for the system,
// and how much is currently unschedulable.
type AxisStatus struct {
	Capacity      resources.ClusterResource
	Reserved      resources.ClusterResource
	Unschedulable resources.ClusterResource
}

// VCStatus is the per-VC slice of ClusterStatus.
type VCStatus struct {
	AxisStatus
}

// ClusterStatus is the DB's singleton snapshot of cluster and per-VC
// capacity, reserved, and unschedulable resources.
type ClusterStatus struct {
	Cluster    AxisStatus
	VCStatuses map[string]VCStatus
}
