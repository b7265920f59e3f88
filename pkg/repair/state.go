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

// Package repair implements the node repair state machine: health
// evaluation against a set of rules, the six-state lifecycle, and the
// atomic Kubernetes node patches that carry a node between states.
package repair

// State is a node's position in the repair lifecycle.
type State int

const (
	InService State = iota
	OutOfPool
	OutOfPoolUntracked
	ReadyForRepair
	InRepair
	AfterRepair
)

func (s State) String() string {
	switch s {
	case InService:
		return "IN_SERVICE"
	case OutOfPool:
		return "OUT_OF_POOL"
	case OutOfPoolUntracked:
		return "OUT_OF_POOL_UNTRACKED"
	case ReadyForRepair:
		return "READY_FOR_REPAIR"
	case InRepair:
		return "IN_REPAIR"
	case AfterRepair:
		return "AFTER_REPAIR"
	default:
		return "UNKNOWN"
	}
}

// AllStates enumerates every known state, used when rebuilding the
// per-state Prometheus gauges so every state gets a zero entry even when
// no node currently occupies it.
var AllStates = []State{InService, OutOfPool, OutOfPoolUntracked, ReadyForRepair, InRepair, AfterRepair}

// ParseState maps a label value (as persisted in the repair-state node
// label) back to a State. An unrecognized value defaults to InService,
// matching the source's implicit behavior of treating an absent/garbled
// label as a never-touched, in-service node.
func ParseState(s string) State {
	for _, st := range AllStates {
		if st.String() == s {
			return st
		}
	}
	return InService
}
