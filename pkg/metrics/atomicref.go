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

package metrics

import "sync"

// AtomicRef double-buffers a metrics snapshot computed by one goroutine
// (the repair tick) and read by another (the HTTP scrape handler), without
// the scrape ever observing a half-written snapshot. Owned as a struct
// field by the repair manager, never a package-level var.
type AtomicRef[T any] struct {
	mu  sync.RWMutex
	val *T
}

// Set replaces the current snapshot.
func (r *AtomicRef[T]) Set(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.val = &v
}

// Get returns the current snapshot, or the zero value and false if none has
// been set yet.
func (r *AtomicRef[T]) Get() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.val == nil {
		var zero T
		return zero, false
	}
	return *r.val, true
}
