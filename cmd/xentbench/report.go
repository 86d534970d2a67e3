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
	"runtime"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sys/cpu"

	"github.com/ajroetker/go-highway/hwy"
)

// Report is the machine-readable result of a benchmark run, written with
// --report. The ID is unique per invocation so collected reports can be
// deduplicated.
type Report struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	System    SystemInfo `json:"system"`
	Shape     ShapeInfo  `json:"shape"`
	Runs      []RunStats `json:"runs"`
	Summary   RunStats   `json:"summary"`
}

// SystemInfo records the host the benchmark ran on.
type SystemInfo struct {
	GoVersion   string          `json:"go_version"`
	GoOS        string          `json:"go_os"`
	GoArch      string          `json:"go_arch"`
	CPUs        int             `json:"cpus"`
	GoMaxProcs  int             `json:"gomaxprocs"`
	SIMDTarget  string          `json:"simd_target"`
	VectorBytes int             `json:"vector_bytes"`
	Features    map[string]bool `json:"features,omitempty"`
}

// ShapeInfo records the problem the benchmark ran.
type ShapeInfo struct {
	Batch     int     `json:"batch"`
	Classes   int     `json:"classes"`
	DType     string  `json:"dtype"`
	Smoothing float64 `json:"smoothing"`
	Workers   int     `json:"workers"`
	Seed      int64   `json:"seed"`
}

// RunStats holds the timings of a single forward plus backward pass. The
// bandwidth figure counts the logits footprint once per pass, matching the
// package benchmarks.
type RunStats struct {
	ForwardMS  float64 `json:"forward_ms"`
	BackwardMS float64 `json:"backward_ms"`
	RowsPerSec float64 `json:"rows_per_sec"`
	GBPerSec   float64 `json:"gb_per_sec"`
}

func newReportID() string {
	return "xent-" + uuid.NewString()
}

// cpuFeatures reports the SIMD-relevant feature bits of the host. Only
// features that are true are interesting, but false values are kept so a
// report from an older machine is explicit about what was missing.
func cpuFeatures() map[string]bool {
	switch runtime.GOARCH {
	case "amd64":
		return map[string]bool{
			"AVX":        cpu.X86.HasAVX,
			"AVX2":       cpu.X86.HasAVX2,
			"FMA":        cpu.X86.HasFMA,
			"AVX512F":    cpu.X86.HasAVX512F,
			"AVX512DQ":   cpu.X86.HasAVX512DQ,
			"AVX512VL":   cpu.X86.HasAVX512VL,
			"AVX512BF16": cpu.X86.HasAVX512BF16,
		}
	case "arm64":
		return map[string]bool{
			"ASIMD":   cpu.ARM64.HasASIMD,
			"ASIMDHP": cpu.ARM64.HasASIMDHP,
			"SVE":     cpu.ARM64.HasSVE,
		}
	}
	return nil
}

func systemInfo() SystemInfo {
	return SystemInfo{
		GoVersion:   runtime.Version(),
		GoOS:        runtime.GOOS,
		GoArch:      runtime.GOARCH,
		CPUs:        runtime.NumCPU(),
		GoMaxProcs:  runtime.GOMAXPROCS(0),
		SIMDTarget:  hwy.CurrentName(),
		VectorBytes: hwy.CurrentWidth(),
		Features:    cpuFeatures(),
	}
}

// writeReport marshals the report with indentation and writes it to path.
func writeReport(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
