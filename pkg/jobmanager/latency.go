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

// Package jobmanager implements the job lifecycle control loops: approval,
// status-update dispatch, and the four-pass scheduling action dispatch.
package jobmanager

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/coordination"
	"github.com/Anbang-Hu/DLWorkspace/pkg/log"
	"github.com/Anbang-Hu/DLWorkspace/pkg/metrics"
)

// lifecycleState is one of the four milestones tracked by the latency
// probe, in the order the source's docstring describes:
// created -> approved -> scheduling -> running.
type lifecycleState string

const (
	stateCreated    lifecycleState = "created"
	stateApproved   lifecycleState = "approved"
	stateScheduling lifecycleState = "scheduling"
	stateRunning    lifecycleState = "running"
)

// UpdateJobStateLatency loads the job's JobTimeRecord from the coordination
// store, stamps the milestone for state if unset (first-write-wins), and
// emits a histogram observation of the gap from the prior milestone only
// when both timestamps are present. The record write is best-effort: a
// coordination-store failure here never blocks the caller's state
// transition (spec.md §7, transient-error class).
func UpdateJobStateLatency(ctx context.Context, store coordination.Store, jobID string, state lifecycleState, eventTime time.Time) {
	logger := log.FromContext(ctx)

	raw, _, err := store.Get(ctx, coordination.JobStatusKey(jobID))
	if err != nil {
		logger.Warnw("loading job time record failed", "jobId", jobID, "error", err)
	}
	record := v1alpha1.ParseJobTimeRecord(raw)
	changed := false

	switch state {
	case stateCreated:
		if record.CreateTime == nil {
			changed = true
			record.CreateTime = &eventTime
		}
	case stateApproved:
		if record.ApproveTime == nil {
			changed = true
			record.ApproveTime = &eventTime
		}
		if changed && record.CreateTime != nil {
			observeLatency(state, *record.CreateTime, eventTime)
		}
	case stateScheduling:
		if record.SubmitTime == nil {
			changed = true
			record.SubmitTime = &eventTime
		}
		if changed && record.ApproveTime != nil {
			observeLatency(state, *record.ApproveTime, eventTime)
		}
	case stateRunning:
		if record.RunningTime == nil {
			changed = true
			record.RunningTime = &eventTime
		}
		if changed && record.SubmitTime != nil {
			observeLatency(state, *record.SubmitTime, eventTime)
		}
	}

	if !changed {
		return
	}
	blob, err := record.ToMap()
	if err != nil {
		logger.Warnw("encoding job time record failed", "jobId", jobID, "error", err)
		return
	}
	if err := store.Set(ctx, coordination.JobStatusKey(jobID), blob); err != nil {
		logger.Warnw("saving job time record failed", "jobId", jobID, "error", err)
	}
}

func observeLatency(state lifecycleState, prior, current time.Time) {
	metrics.JobStateChangeLatencySeconds.With(prometheus.Labels{"current_state": string(state)}).Observe(current.Sub(prior).Seconds())
}
