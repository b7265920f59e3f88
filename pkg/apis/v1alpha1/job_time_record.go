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

import (
	"encoding/json"
	"time"
)

// JobTimeRecord is the per-job latency probe stored in the coordination
// store, keyed by jobId. Each field is set at most once; a restart or an
// expired record simply starts the sequence over for that job.
type JobTimeRecord struct {
	CreateTime  *time.Time
	ApproveTime *time.Time
	SubmitTime  *time.Time
	RunningTime *time.Time
}

// jobTimeRecordWire is the JSON-on-the-wire shape: unix timestamps, or
// null/absent when unset.
type jobTimeRecordWire struct {
	CreateTime  *float64 `json:"create_time"`
	ApproveTime *float64 `json:"approve_time"`
	SubmitTime  *float64 `json:"submit_time"`
	RunningTime *float64 `json:"running_time"`
}

func toTimestamp(t *time.Time) *float64 {
	if t == nil {
		return nil
	}
	ts := float64(t.Unix())
	return &ts
}

func fromTimestamp(ts *float64) *time.Time {
	if ts == nil {
		return nil
	}
	t := time.Unix(int64(*ts), 0).UTC()
	return &t
}

// ToMap serializes the record to its JSON wire form.
func (r JobTimeRecord) ToMap() ([]byte, error) {
	return json.Marshal(jobTimeRecordWire{
		CreateTime:  toTimestamp(r.CreateTime),
		ApproveTime: toTimestamp(r.ApproveTime),
		SubmitTime:  toTimestamp(r.SubmitTime),
		RunningTime: toTimestamp(r.RunningTime),
	})
}

// ParseJobTimeRecord parses the JSON wire form back into a JobTimeRecord.
// An empty or malformed payload yields a zero-value record, matching the
// source's "ignore this entry" behavior for a manager restart or an
// expired key.
func ParseJobTimeRecord(raw []byte) JobTimeRecord {
	if len(raw) == 0 {
		return JobTimeRecord{}
	}
	var wire jobTimeRecordWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return JobTimeRecord{}
	}
	return JobTimeRecord{
		CreateTime:  fromTimestamp(wire.CreateTime),
		ApproveTime: fromTimestamp(wire.ApproveTime),
		SubmitTime:  fromTimestamp(wire.SubmitTime),
		RunningTime: fromTimestamp(wire.RunningTime),
	}
}
