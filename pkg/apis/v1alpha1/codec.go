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
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodeBlob base64-encodes a JSON-marshaled value, the wire shape used for
// both JobParams and JobStatusDetail at the DB boundary.
func EncodeBlob(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling blob: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// decodeBlob base64-decodes then JSON-unmarshals into v.
func decodeBlob(blob string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return fmt.Errorf("base64 decoding blob: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshaling blob: %w", err)
	}
	return nil
}

// DecodeJobParams parses a Job's opaque jobParams blob into its typed form.
func DecodeJobParams(job Job) (JobParams, error) {
	var p JobParams
	if err := decodeBlob(job.JobParams, &p); err != nil {
		return JobParams{}, err
	}
	return p, nil
}

// EncodeJobParams re-encodes JobParams back to the blob shape, used when
// inference fractional scaling rewrites resourcegpu.
func EncodeJobParams(p JobParams) (string, error) {
	return EncodeBlob(p)
}

// DecodeStatusDetail parses a Job's jobStatusDetail blob.
func DecodeStatusDetail(blob string) ([]StatusDetailEntry, error) {
	if blob == "" {
		return nil, nil
	}
	var entries []StatusDetailEntry
	if err := decodeBlob(blob, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// EncodeStatusDetail re-encodes a status detail slice back to the blob
// shape.
func EncodeStatusDetail(entries []StatusDetailEntry) (string, error) {
	return EncodeBlob(entries)
}
