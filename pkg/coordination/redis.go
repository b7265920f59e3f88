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

// Package coordination is the job-status latency coordination store
// (spec.md §5): one JobTimeRecord per jobId, read-then-written with no
// compare-and-swap since every field is set at most once.
package coordination

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store is the minimal key-value surface the latency probe needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

func jobStatusKey(jobID string) string {
	return fmt.Sprintf("job_status_%s", jobID)
}

// RedisStore is the production Store, backed by go-redis/v9.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// JobStatusKey exposes the job_status_<jobId> key convention to callers
// that need it without duplicating the format string.
func JobStatusKey(jobID string) string {
	return jobStatusKey(jobID)
}

var _ Store = (*RedisStore)(nil)
