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

// Package config loads the static cluster configuration (storage mount
// path, launcher selection, notifier settings) from config.yaml, matching the source's
// module-level `config` dict.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the static, file-backed configuration for both control loops.
// Racks and Skus are not read from config.yaml, and nothing in this module
// fills them in.
type Config struct {
	StorageMountPath  string            `yaml:"storage-mount-path"`
	LauncherType      string            `yaml:"launcher"`
	SMTP              SMTPConfig        `yaml:"smtp"`
	ClusterName       string            `yaml:"cluster-name"`
	JobManager        JobManagerConfig  `yaml:"job-manager"`
	IsSupportPodPriority bool           `yaml:"-"`
	Racks             map[string]string `yaml:"-"`
	Skus              map[string]string `yaml:"-"`
}

// JobManagerConfig holds job-manager-specific settings nested under the
// source's config["job-manager"] sub-dict.
type JobManagerConfig struct {
	Launcher string `yaml:"launcher"`
}

// SMTPConfig configures the outbound notifier (pkg/notify.SMTPNotifier).
type SMTPConfig struct {
	URL      string `yaml:"url"`
	Sender   string `yaml:"sender"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads config.yaml from dir, matching the source's
// get_config(config_path) which opens os.path.join(config_path, "config.yaml").
func Load(dir string) (Config, error) {
	path := fmt.Sprintf("%s/config.yaml", dir)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
