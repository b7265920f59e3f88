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

// Package v1alpha1 holds the wire-level data model shared by the job
// manager and the repair manager: jobs, virtual clusters, cluster status
// snapshots, and the opaque-blob job parameters that travel at the DB
// boundary.
package v1alpha1

import "time"

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobUnapproved JobStatus = "unapproved"
	JobQueued     JobStatus = "queued"
	JobScheduling JobStatus = "scheduling"
	JobRunning    JobStatus = "running"
	JobFinished   JobStatus = "finished"
	JobFailed     JobStatus = "failed"
	JobKilling    JobStatus = "killing"
	JobKilled     JobStatus = "killed"
	JobPausing    JobStatus = "pausing"
	JobPaused     JobStatus = "paused"
)

// Job is a row of the Jobs table as consumed by the core control loops.
// JobParams and JobStatusDetail travel as base64-encoded JSON blobs at the
// DB boundary by design (see DESIGN.md); callers decode them once per tick
// with DecodeJobParams / DecodeStatusDetail.
type Job struct {
	JobID           string
	UserName        string
	VCName          string
	JobStatus       JobStatus
	JobParams       string // base64(JSON)
	JobTime         time.Time
	LastUpdated     time.Time
	ErrorMsg        string
	JobStatusDetail string // base64(JSON)
}

// StatusDetailEntry is one entry of the jobStatusDetail blob surfaced to
// users explaining why a job is or isn't running.
type StatusDetailEntry struct {
	Message    string `json:"message,omitempty"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// ResourceParams is the resource-shaped subset of JobParams, used both for
// a job's guaranteed request and (optionally) its preemptable bonus
// request.
type ResourceParams struct {
	GPU    map[string]float64 `json:"gpu"`
	CPU    map[string]float64 `json:"cpu"`
	Memory map[string]float64 `json:"memory"`
}

// JobParams is the typed form of the opaque base64-JSON blob carried in
// Job.JobParams. Only ResourceGPU is rewritten back to the blob (by
// inference fractional scaling); every other field is read-only from the
// control loop's perspective.
type JobParams struct {
	ResourceGPU         int             `json:"resourcegpu"`
	NumPSWorker         int             `json:"numpsworker"`
	PreemptionAllowed   bool            `json:"preemptionAllowed"`
	JobTrainingType     string          `json:"jobtrainingtype"`
	MaxTimeSec          *int            `json:"maxTimeSec,omitempty"`
	Debug               bool            `json:"debug,omitempty"`
	UserID              string          `json:"userId,omitempty"`
	JobPath             string          `json:"jobPath"`
	WorkPath            string          `json:"workPath"`
	DataPath            string          `json:"dataPath"`
	PreemptableResource *ResourceParams `json:"preemptable_resource,omitempty"`
}

// TotalGPU is the job's total requested GPU count across its PS workers,
// matching get_job_total_gpu in the source.
func (p JobParams) TotalGPU() int {
	workers := p.NumPSWorker
	if workers <= 0 {
		workers = 1
	}
	return p.ResourceGPU * workers
}

const (
	TrainingTypeInference    = "InferenceJob"
	TrainingTypeCPUInference = "CPUInferenceJob"
)

// IsInference reports whether this job's training type schedules through
// the inference (fractional, two-part) admission passes rather than the
// plain training passes.
func (p JobParams) IsInference() bool {
	return p.JobTrainingType == TrainingTypeInference || p.JobTrainingType == TrainingTypeCPUInference
}

// VC is a virtual cluster: a named slice of capacity with its own quotas
// and scheduling policy.
type VC struct {
	VCName   string
	Metadata VCMetadata
}

// SchedulingPolicy is a per-VC admission ordering policy.
type SchedulingPolicy string

const (
	PolicyFIFO SchedulingPolicy = "FIFO"
	PolicyRF   SchedulingPolicy = "RF"
)

// VCMetadata is the decoded form of VC.metadata.
type VCMetadata struct {
	UserQuota *int `json:"user_quota,omitempty"`
	Admin     struct {
		SchedulingPolicy SchedulingPolicy `json:"scheduling_policy,omitempty"`
	} `json:"admin,omitempty"`
}

// Policy returns the VC's scheduling policy, defaulting to RF when unset.
// An unrecognized value is returned unchanged; the scheduler's Pass A treats
// it as RF and reports it.
func (m VCMetadata) Policy() SchedulingPolicy {
	if m.Admin.SchedulingPolicy == "" {
		return PolicyRF
	}
	return m.Admin.SchedulingPolicy
}

// Endpoint is a single job endpoint record as tracked by the DB.
type Endpoint struct {
	EndpointID string
	JobID      string
	Status     string
}
