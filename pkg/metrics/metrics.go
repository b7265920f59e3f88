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

// Package metrics defines the Prometheus metrics emitted by the job
// manager and repair manager control loops (spec.md §6).
package metrics

import "github.com/prometheus/client_golang/prometheus"

const Namespace = "dlworkspace"

var (
	// JobStateChangeLatencySeconds records the wall-clock gap between two
	// consecutive JobTimeRecord milestones, labeled by the state the job
	// just transitioned into.
	JobStateChangeLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "job",
			Name:      "state_change_latency_seconds",
			Help:      "Latency between successive job lifecycle milestones, labeled by the state just entered.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		},
		[]string{"current_state"},
	)
)

// MustRegister registers the metrics defined in this package against reg.
// The repair gauges are registered separately by cmd/repairmanager via
// NewRepairCollector, since their values are rebuilt wholesale every tick
// and need the race-free AtomicRef handoff a Collector gives them rather
// than a GaugeVec mutated in place.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(JobStateChangeLatencySeconds)
}
