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

// Package db defines the relational persistence boundary (jobs, VCs,
// cluster status, endpoints) and a Postgres-backed adapter for it.
package db

import (
	"context"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
)

// Client is everything both control loops need from the relational store.
// Conditional updates (UpdateJobTextFields) only ever touch the named
// fields, matching the source's UpdateJobTextFields(conditionFields,
// dataFields) pair-of-maps call shape.
type Client interface {
	GetJobList(ctx context.Context, userName, vcName string, statuses []v1alpha1.JobStatus) ([]v1alpha1.Job, error)
	GetClusterStatus(ctx context.Context) (v1alpha1.ClusterStatus, error)
	ListVCs(ctx context.Context) ([]v1alpha1.VC, error)
	GetJobEndpoints(ctx context.Context, jobID string) (map[string]v1alpha1.Endpoint, error)
	GetJobPriority(ctx context.Context) (map[string]int, error)
	UpdateJobTextFields(ctx context.Context, jobID string, fields map[string]string) error
	UpdateEndpoint(ctx context.Context, endpoint v1alpha1.Endpoint) error
	UpdateRepairMessage(ctx context.Context, jobID string, message map[string]any) error
	Close() error
}
