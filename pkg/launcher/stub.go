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

package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
)

// StubLauncher delegates every operation to an external controller process
// over HTTP, matching the source's LauncherStub (used when
// job-manager.launcher = "stub").
type StubLauncher struct {
	baseURL    string
	httpClient *http.Client
}

func NewStubLauncher(baseURL string) *StubLauncher {
	return &StubLauncher{baseURL: baseURL, httpClient: &http.Client{}}
}

func (l *StubLauncher) Start(ctx context.Context) error {
	return nil
}

func (l *StubLauncher) WaitTasksDone(ctx context.Context) error {
	return nil
}

func (l *StubLauncher) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling controller %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("controller %s returned status %d", path, resp.StatusCode)
	}
	return nil
}

func (l *StubLauncher) SubmitJob(ctx context.Context, job v1alpha1.Job) error {
	return l.post(ctx, "/submit", job)
}

func (l *StubLauncher) KillJob(ctx context.Context, jobID string, reason v1alpha1.JobStatus, updateQueueTime bool) error {
	return l.post(ctx, "/kill", map[string]any{"jobId": jobID, "reason": reason, "updateQueueTime": updateQueueTime})
}

func (l *StubLauncher) DeleteJob(ctx context.Context, jobID string, force bool) error {
	return l.post(ctx, "/delete", map[string]any{"jobId": jobID, "force": force})
}

func (l *StubLauncher) ScaleJob(ctx context.Context, job v1alpha1.Job) error {
	return l.post(ctx, "/scale", job)
}

func (l *StubLauncher) GetJobStatus(ctx context.Context, jobID string) (JobStatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/status/%s", l.baseURL, jobID), nil)
	if err != nil {
		return JobStatusResult{}, fmt.Errorf("building status request for %s: %w", jobID, err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return JobStatusResult{}, fmt.Errorf("calling controller status for %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	var result JobStatusResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return JobStatusResult{}, fmt.Errorf("decoding status response for %s: %w", jobID, err)
	}
	return result, nil
}

var _ Launcher = (*StubLauncher)(nil)
