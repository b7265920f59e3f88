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
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/patrickmn/go-cache"
)

// changeMonitor reduces log noise for values that may or may not have
// changed since the last tick (a node's state transition, its unhealthy
// rule set). It does NOT gate the repair-message DB write in
// updateRepairMessageForJobs, which stays unconditional every tick
// whenever a job has unhealthy nodes — only the human-readable log line
// is suppressed when nothing changed.
type changeMonitor struct {
	lastSeen *cache.Cache
}

func newChangeMonitor(visibility time.Duration) *changeMonitor {
	if visibility == 0 {
		visibility = 24 * time.Hour
	}
	return &changeMonitor{lastSeen: cache.New(visibility, visibility/2)}
}

// hasChanged reports whether the hash of value differs from the last hash
// recorded under key, recording the new hash as a side effect.
func (c *changeMonitor) hasChanged(key string, value any) bool {
	hv, _ := hashstructure.Hash(value, hashstructure.FormatV2, &hashstructure.HashOptions{SlicesAsSets: true})
	existing, ok := c.lastSeen.Get(key)
	var existingHash uint64
	if ok {
		existingHash = existing.(uint64)
	}
	if !ok || existingHash != hv {
		c.lastSeen.SetDefault(key, hv)
		return true
	}
	return false
}
