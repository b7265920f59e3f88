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
	"github.com/Anbang-Hu/DLWorkspace/pkg/resources"
)

const safetyDiscount = 0.95

// Schedulables holds the per-tick working copies of cluster_schedulable and
// vc_schedulable[vc]. All admission passes deduct from these in place;
// nothing here is persisted back to the DB (spec.md §4.1).
type Schedulables struct {
	Cluster resources.ClusterResource
	VC      map[string]resources.ClusterResource
}

// DeriveSchedulables computes cluster_schedulable and vc_schedulable per
// spec.md §4.1: (capacity - reserved/unschedulable) * 0.95.
func DeriveSchedulables(status v1alpha1.ClusterStatus) Schedulables {
	s := Schedulables{
		Cluster: status.Cluster.Capacity.Sub(status.Cluster.Reserved).Scale(safetyDiscount),
		VC:      make(map[string]resources.ClusterResource, len(status.VCStatuses)),
	}
	for name, vcStatus := range status.VCStatuses {
		s.VC[name] = vcStatus.Capacity.Sub(vcStatus.Unschedulable).Scale(safetyDiscount)
	}
	return s
}

// DeductCluster subtracts r from the cluster-wide schedulable. Callers must
// gate with GreaterOrEqual beforehand; this never checks for underflow.
func (s *Schedulables) DeductCluster(r resources.ClusterResource) {
	s.Cluster = s.Cluster.Sub(r)
}

// DeductVC subtracts r from both the named VC's schedulable and the
// cluster-wide schedulable, the common case for VC-scoped admissions.
func (s *Schedulables) DeductVC(vcName string, r resources.ClusterResource) {
	if vc, ok := s.VC[vcName]; ok {
		s.VC[vcName] = vc.Sub(r)
	}
	s.Cluster = s.Cluster.Sub(r)
}

// VCNames returns the set of VC names known to this tick's schedulables,
// used to filter out jobs whose VC has disappeared.
func (s *Schedulables) VCNames() map[string]bool {
	names := make(map[string]bool, len(s.VC))
	for name := range s.VC {
		names[name] = true
	}
	return names
}
