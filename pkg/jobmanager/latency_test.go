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

package jobmanager

import (
	"context"
	"testing"
	"time"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/coordination"
)

func TestUpdateJobStateLatency_FirstWriteWinsPerMilestone(t *testing.T) {
	store := coordination.NewMemStore()
	ctx := context.Background()
	jobID := "J1"

	created := time.Now().Add(-10 * time.Minute)
	UpdateJobStateLatency(ctx, store, jobID, stateCreated, created)
	// A second created stamp must not move the milestone.
	UpdateJobStateLatency(ctx, store, jobID, stateCreated, time.Now())

	raw, ok, err := store.Get(ctx, coordination.JobStatusKey(jobID))
	if err != nil || !ok {
		t.Fatalf("expected job time record to be persisted, ok=%v err=%v", ok, err)
	}
	record := v1alpha1.ParseJobTimeRecord(raw)
	if record.CreateTime == nil || record.CreateTime.Unix() != created.Unix() {
		t.Fatalf("expected create time to stay at first write, got %v", record.CreateTime)
	}
}

func TestUpdateJobStateLatency_RecordsMilestoneWithoutPriorMilestone(t *testing.T) {
	store := coordination.NewMemStore()
	ctx := context.Background()
	jobID := "J1"

	// No created milestone yet: approved should still be recorded, but no
	// observation can be made since there is no prior to diff against.
	UpdateJobStateLatency(ctx, store, jobID, stateApproved, time.Now())

	raw, ok, err := store.Get(ctx, coordination.JobStatusKey(jobID))
	if err != nil || !ok {
		t.Fatalf("expected record persisted despite missing prior milestone")
	}
	record := v1alpha1.ParseJobTimeRecord(raw)
	if record.ApproveTime == nil {
		t.Fatalf("expected approve time to be stamped")
	}
	if record.CreateTime != nil {
		t.Fatalf("expected create time to remain unset")
	}
}
