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

import "github.com/prometheus/client_golang/prometheus"

// RepairSnapshot is the full set of repair gauges rebuilt from scratch on
// every repair tick. Keys are [label0, label1] pairs so the snapshot can be
// handed to the collector atomically rather than mutated field-by-field
// under a scrape.
type RepairSnapshot struct {
	// StateNodeCount is keyed by [repair_state, sku].
	StateNodeCount map[[2]string]float64
	// RuleNodeCount is keyed by [repair_rule, sku].
	RuleNodeCount map[[2]string]float64
	// ImpactedJobCount is keyed by [sku].
	ImpactedJobCount map[string]float64
}

// RepairCollector publishes a RepairSnapshot as Prometheus gauges. It reads
// through an AtomicRef so the repair tick (writer) and the scrape handler
// (reader) never observe a half-rebuilt snapshot, unlike resetting and
// re-populating a GaugeVec in place.
type RepairCollector struct {
	ref       *AtomicRef[RepairSnapshot]
	stateDesc *prometheus.Desc
	ruleDesc  *prometheus.Desc
	jobDesc   *prometheus.Desc
}

func NewRepairCollector(ref *AtomicRef[RepairSnapshot]) *RepairCollector {
	return &RepairCollector{
		ref: ref,
		stateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "repair", "state_node_count"),
			"node count in different repair states",
			[]string{"repair_state", "sku"}, nil,
		),
		ruleDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "repair", "rule_node_count"),
			"node count failing each repair rule",
			[]string{"repair_rule", "sku"}, nil,
		),
		jobDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "repair", "impacted_job_count"),
			"number of jobs impacted by repair",
			[]string{"sku"}, nil,
		),
	}
}

func (c *RepairCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateDesc
	ch <- c.ruleDesc
	ch <- c.jobDesc
}

func (c *RepairCollector) Collect(ch chan<- prometheus.Metric) {
	snap, ok := c.ref.Get()
	if !ok {
		return
	}
	for k, v := range snap.StateNodeCount {
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, v, k[0], k[1])
	}
	for k, v := range snap.RuleNodeCount {
		ch <- prometheus.MustNewConstMetric(c.ruleDesc, prometheus.GaugeValue, v, k[0], k[1])
	}
	for sku, v := range snap.ImpactedJobCount {
		ch <- prometheus.MustNewConstMetric(c.jobDesc, prometheus.GaugeValue, v, sku)
	}
}

var _ prometheus.Collector = (*RepairCollector)(nil)
