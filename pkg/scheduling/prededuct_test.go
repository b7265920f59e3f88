package scheduling

import (
	"testing"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
	"github.com/Anbang-Hu/DLWorkspace/pkg/resources"
)

func TestPreDeduct_DropsRunningNonPreemptableTraining(t *testing.T) {
	s := &Schedulables{
		Cluster: gpuResource("A100", 4),
		VC:      map[string]resources.ClusterResource{"v1": gpuResource("A100", 4)},
	}
	running := &JobInfo{
		Job:             v1alpha1.Job{JobID: "J1", VCName: "v1", JobStatus: v1alpha1.JobRunning},
		JobTrainingType: "PSDistJob",
		JobResource:     gpuResource("A100", 2),
		Status:          v1alpha1.JobRunning,
	}

	remaining := PreDeduct([]*JobInfo{running}, s)

	if len(remaining) != 0 {
		t.Fatalf("expected running non-preemptable training job to be dropped, got %d remaining", len(remaining))
	}
	if got := s.Cluster.GPU["A100"]; got != 2 {
		t.Fatalf("cluster_schedulable after = %v, want 2", got)
	}
	if got := s.VC["v1"].GPU["A100"]; got != 2 {
		t.Fatalf("vc_schedulable after = %v, want 2", got)
	}
}

func TestPreDeduct_KeepsRunningInferenceForPassD(t *testing.T) {
	s := &Schedulables{
		Cluster: gpuResource("A100", 4),
		VC:      map[string]resources.ClusterResource{"v1": gpuResource("A100", 4)},
	}
	running := &JobInfo{
		Job:             v1alpha1.Job{JobID: "J1", VCName: "v1", JobStatus: v1alpha1.JobRunning},
		JobTrainingType: v1alpha1.TrainingTypeInference,
		JobResource:     gpuResource("A100", 2),
		Status:          v1alpha1.JobRunning,
	}

	remaining := PreDeduct([]*JobInfo{running}, s)

	if len(remaining) != 1 {
		t.Fatalf("expected running inference job to remain in the working set, got %d", len(remaining))
	}
	if !remaining[0].Allowed {
		t.Fatalf("expected guaranteed portion to already be marked allowed")
	}
	if remaining[0].AllowedResource == nil || remaining[0].AllowedResource.GPU["A100"] != 2 {
		t.Fatalf("expected guaranteed allowed_resource of 2 GPU, got %+v", remaining[0].AllowedResource)
	}
	if got := s.Cluster.GPU["A100"]; got != 2 {
		t.Fatalf("cluster_schedulable after = %v, want 2", got)
	}
}

func TestPreDeduct_PassesThroughQueuedAndPreemptableLive(t *testing.T) {
	s := &Schedulables{Cluster: gpuResource("A100", 4)}
	queued := &JobInfo{
		Job:             v1alpha1.Job{JobID: "J1", JobStatus: v1alpha1.JobQueued},
		JobTrainingType: "PSDistJob",
		JobResource:     gpuResource("A100", 2),
		Status:          v1alpha1.JobQueued,
	}
	preemptableRunning := &JobInfo{
		Job:               v1alpha1.Job{JobID: "J2", JobStatus: v1alpha1.JobRunning},
		JobTrainingType:   "PSDistJob",
		PreemptionAllowed: true,
		JobResource:       gpuResource("A100", 1),
		Status:            v1alpha1.JobRunning,
	}

	remaining := PreDeduct([]*JobInfo{queued, preemptableRunning}, s)

	if len(remaining) != 2 {
		t.Fatalf("expected both jobs to pass through untouched, got %d", len(remaining))
	}
	if got := s.Cluster.GPU["A100"]; got != 4 {
		t.Fatalf("cluster_schedulable should be untouched, got %v", got)
	}
}
