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

// Package joblog is the integration point for job log extraction
// (joblog_manager.extract_job_log in the source). The extraction subsystem
// itself is out of scope (spec.md §1 Non-goals: job execution), but the
// call site in the status-update dispatch is not — UpdateJobStatus calls
// this before marking a job finished or failed.
package joblog

import "context"

// Extractor copies a job's log from its pod's log path into durable
// storage keyed by user, matching extract_job_log(jobId, logPath, userId).
type Extractor interface {
	Extract(ctx context.Context, jobID, logPath, userID string) error
}

// NoopExtractor is the default Extractor: the real subsystem is
// out-of-scope, so this just records the call was made without touching
// any filesystem.
type NoopExtractor struct{}

func (NoopExtractor) Extract(ctx context.Context, jobID, logPath, userID string) error {
	return nil
}

var _ Extractor = NoopExtractor{}
