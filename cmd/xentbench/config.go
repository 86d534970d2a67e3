// Copyright 2025 go-xentropy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the xentbench configuration file
// (~/.config/xentbench/config.yaml). Numeric fields are pointers so an
// absent key can be told apart from an explicit zero.
type Config struct {
	Batch     *int64   `yaml:"batch"`
	Classes   *int64   `yaml:"classes"`
	Smoothing *float64 `yaml:"smoothing"`
	DType     string   `yaml:"dtype"`
	Workers   *int64   `yaml:"workers"`
	Seed      *int64   `yaml:"seed"`
	Warmup    *int64   `yaml:"warmup"`
	Runs      *int64   `yaml:"runs"`
	LogLevel  string   `yaml:"log_level"`
	LogFormat string   `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "xentbench", "config.yaml")
}

// loadConfig reads the config file at path, falling back to the default
// location when path is empty. Returns a zero Config if the file does not
// exist or cannot be parsed.
func loadConfig(path string) Config {
	if path == "" {
		path = configPath()
	}
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyConfig applies config file defaults to the shared flag variables
// when the corresponding CLI flag was not explicitly set. Flags always win.
func applyConfig(c *cli.Command, cfg Config, warmupRuns, benchRuns *int64) {
	if cfg.Batch != nil && !c.IsSet("batch") {
		batch = *cfg.Batch
	}
	if cfg.Classes != nil && !c.IsSet("classes") {
		classes = *cfg.Classes
	}
	if cfg.Smoothing != nil && !c.IsSet("smoothing") {
		smoothing = *cfg.Smoothing
	}
	if cfg.DType != "" && !c.IsSet("dtype") {
		dtype = cfg.DType
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
	if cfg.Warmup != nil && warmupRuns != nil && !c.IsSet("warmup") {
		*warmupRuns = *cfg.Warmup
	}
	if cfg.Runs != nil && benchRuns != nil && !c.IsSet("runs") {
		*benchRuns = *cfg.Runs
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
