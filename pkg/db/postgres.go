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

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	v1alpha1 "github.com/Anbang-Hu/DLWorkspace/pkg/apis/v1alpha1"
)

// PostgresClient is the sqlx/lib-pq backed Client used in production,
// mirroring the source's DataHandler class (psycopg2-backed there).
type PostgresClient struct {
	db *sqlx.DB
}

// NewPostgresClient opens a connection pool against dsn (a standard
// postgres:// connection string).
func NewPostgresClient(dsn string) (*PostgresClient, error) {
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresClient{db: conn}, nil
}

func (c *PostgresClient) Close() error {
	return c.db.Close()
}

type jobRow struct {
	JobID           string `db:"jobId"`
	UserName        string `db:"userName"`
	VCName          string `db:"vcName"`
	JobStatus       string `db:"jobStatus"`
	JobParams       string `db:"jobParams"`
	JobTime         string `db:"jobTime"`
	LastUpdated     string `db:"lastUpdated"`
	ErrorMsg        string `db:"errorMsg"`
	JobStatusDetail string `db:"jobStatusDetail"`
}

func (c *PostgresClient) GetJobList(ctx context.Context, userName, vcName string, statuses []v1alpha1.JobStatus) ([]v1alpha1.Job, error) {
	query := `SELECT "jobId", "userName", "vcName", "jobStatus", "jobParams", "jobTime", "lastUpdated", "errorMsg", "jobStatusDetail" FROM jobs WHERE 1=1`
	args := []any{}
	if userName != "" && userName != "all" {
		query += fmt.Sprintf(` AND "userName" = $%d`, len(args)+1)
		args = append(args, userName)
	}
	if vcName != "" && vcName != "all" {
		query += fmt.Sprintf(` AND "vcName" = $%d`, len(args)+1)
		args = append(args, vcName)
	}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, string(s))
		}
		query += fmt.Sprintf(` AND "jobStatus" IN (%s)`, strings.Join(placeholders, ","))
	}

	var rows []jobRow
	if err := c.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}

	jobs := make([]v1alpha1.Job, 0, len(rows))
	for _, r := range rows {
		jobTime, _ := time.Parse(time.RFC3339Nano, r.JobTime)
		lastUpdated, _ := time.Parse(time.RFC3339Nano, r.LastUpdated)
		jobs = append(jobs, v1alpha1.Job{
			JobID:           r.JobID,
			UserName:        r.UserName,
			VCName:          r.VCName,
			JobStatus:       v1alpha1.JobStatus(r.JobStatus),
			JobParams:       r.JobParams,
			JobTime:         jobTime,
			LastUpdated:     lastUpdated,
			ErrorMsg:        r.ErrorMsg,
			JobStatusDetail: r.JobStatusDetail,
		})
	}
	return jobs, nil
}

func (c *PostgresClient) GetClusterStatus(ctx context.Context) (v1alpha1.ClusterStatus, error) {
	var blob string
	if err := c.db.GetContext(ctx, &blob, `SELECT status FROM cluster_status ORDER BY "time" DESC LIMIT 1`); err != nil {
		return v1alpha1.ClusterStatus{}, fmt.Errorf("querying cluster_status: %w", err)
	}
	var status v1alpha1.ClusterStatus
	if err := json.Unmarshal([]byte(blob), &status); err != nil {
		return v1alpha1.ClusterStatus{}, fmt.Errorf("decoding cluster_status: %w", err)
	}
	return status, nil
}

func (c *PostgresClient) ListVCs(ctx context.Context) ([]v1alpha1.VC, error) {
	rows, err := c.db.QueryxContext(ctx, `SELECT "vcName", metadata FROM vcs`)
	if err != nil {
		return nil, fmt.Errorf("querying vcs: %w", err)
	}
	defer rows.Close()

	var vcs []v1alpha1.VC
	for rows.Next() {
		var vcName, metadataBlob string
		if err := rows.Scan(&vcName, &metadataBlob); err != nil {
			return nil, fmt.Errorf("scanning vc row: %w", err)
		}
		var metadata v1alpha1.VCMetadata
		if err := json.Unmarshal([]byte(metadataBlob), &metadata); err != nil {
			return nil, fmt.Errorf("decoding vc metadata for %s: %w", vcName, err)
		}
		vcs = append(vcs, v1alpha1.VC{VCName: vcName, Metadata: metadata})
	}
	return vcs, rows.Err()
}

func (c *PostgresClient) GetJobEndpoints(ctx context.Context, jobID string) (map[string]v1alpha1.Endpoint, error) {
	rows, err := c.db.QueryxContext(ctx, `SELECT "endpointId", "jobId", status FROM endpoints WHERE "jobId" = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := map[string]v1alpha1.Endpoint{}
	for rows.Next() {
		var e v1alpha1.Endpoint
		if err := rows.Scan(&e.EndpointID, &e.JobID, &e.Status); err != nil {
			return nil, fmt.Errorf("scanning endpoint row: %w", err)
		}
		endpoints[e.EndpointID] = e
	}
	return endpoints, rows.Err()
}

func (c *PostgresClient) GetJobPriority(ctx context.Context) (map[string]int, error) {
	rows, err := c.db.QueryxContext(ctx, `SELECT "jobId", priority FROM job_priorities`)
	if err != nil {
		return nil, fmt.Errorf("querying job_priorities: %w", err)
	}
	defer rows.Close()

	priorities := map[string]int{}
	for rows.Next() {
		var jobID string
		var priority int
		if err := rows.Scan(&jobID, &priority); err != nil {
			return nil, fmt.Errorf("scanning priority row: %w", err)
		}
		priorities[jobID] = priority
	}
	return priorities, rows.Err()
}

func (c *PostgresClient) UpdateJobTextFields(ctx context.Context, jobID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(fields))
	args := []any{}
	for k, v := range fields {
		args = append(args, v)
		setClauses = append(setClauses, fmt.Sprintf(`"%s" = $%d`, k, len(args)))
	}
	args = append(args, jobID)
	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE "jobId" = $%d`, strings.Join(setClauses, ", "), len(args))
	_, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", jobID, err)
	}
	return nil
}

func (c *PostgresClient) UpdateEndpoint(ctx context.Context, endpoint v1alpha1.Endpoint) error {
	_, err := c.db.ExecContext(ctx, `UPDATE endpoints SET status = $1 WHERE "endpointId" = $2`, endpoint.Status, endpoint.EndpointID)
	if err != nil {
		return fmt.Errorf("updating endpoint %s: %w", endpoint.EndpointID, err)
	}
	return nil
}

func (c *PostgresClient) UpdateRepairMessage(ctx context.Context, jobID string, message map[string]any) error {
	blob, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding repair message for %s: %w", jobID, err)
	}
	_, err = c.db.ExecContext(ctx, `UPDATE jobs SET "repairMessage" = $1 WHERE "jobId" = $2`, string(blob), jobID)
	if err != nil {
		return fmt.Errorf("updating repair message for %s: %w", jobID, err)
	}
	return nil
}

var _ Client = (*PostgresClient)(nil)
