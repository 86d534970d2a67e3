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
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ajroetker/go-highway/hwy"
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"

	"github.com/ajroetker/go-xentropy/xent"
)

func runCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		reportPath string
	)

	flags := append([]cli.Flag{}, commonShapeFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup passes",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of measured passes",
			Value:       5,
			Destination: &benchRuns,
		},
		&cli.StringFlag{
			Name:        "report",
			Usage:       "write a JSON report to this path",
			Destination: &reportPath,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Benchmark the forward and backward kernels",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, loadConfig(configFile), &warmupRuns, &benchRuns)
			log := newLogger()

			kind, err := parseDType(dtype)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if batch <= 0 || classes <= 0 {
				return cli.Exit("error: batch and classes must be positive", 1)
			}
			if smoothing < 0 || smoothing > 1 {
				return cli.Exit("error: smoothing must be in [0, 1]", 1)
			}

			nWorkers := int(workers)
			if nWorkers <= 0 {
				nWorkers = runtime.NumCPU()
			}
			pool := workerpool.New(nWorkers)
			defer pool.Close()

			b, c := int(batch), int(classes)
			log.Info("building inputs", "batch", b, "classes", c, "dtype", kind.String())
			forward, backward, err := buildKernels(kind, b, c, smoothing, seed, pool)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			// Print system info
			fmt.Println("=== xentbench ===")
			fmt.Printf("Shape:      %d x %d (%s)\n", b, c, kind)
			fmt.Printf("Smoothing:  %g\n", smoothing)
			fmt.Printf("SIMD:       %s (%d-byte vectors)\n", hwy.CurrentName(), hwy.CurrentWidth())
			fmt.Printf("CPUs:       %d\n", runtime.NumCPU())
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Printf("Workers:    %d\n", nWorkers)
			fmt.Printf("Warmup:     %d runs\n", warmupRuns)
			fmt.Printf("Runs:       %d\n", benchRuns)
			fmt.Println()

			// Warmup
			for i := range int(warmupRuns) {
				log.Debug("warmup pass", "run", i+1)
				forward()
				backward()
			}

			// Benchmark runs
			passBytes := float64(b) * float64(c) * float64(kind.Size())
			results := make([]RunStats, 0, benchRuns)
			for i := range int(benchRuns) {
				log.Debug("benchmark pass", "run", i+1)
				fwStart := time.Now()
				forward()
				fwDur := time.Since(fwStart)

				bwStart := time.Now()
				backward()
				bwDur := time.Since(bwStart)

				total := (fwDur + bwDur).Seconds()
				results = append(results, RunStats{
					ForwardMS:  float64(fwDur.Nanoseconds()) / 1e6,
					BackwardMS: float64(bwDur.Nanoseconds()) / 1e6,
					RowsPerSec: float64(b) / total,
					GBPerSec:   2 * passBytes / total / 1e9,
				})
			}

			// Print results
			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %12s %12s %12s %10s\n", "Run", "Forward", "Backward", "Rows/s", "GB/s")
			fmt.Printf("%-6s %12s %12s %12s %10s\n", "---", "ms", "ms", "", "")

			var sum RunStats
			for i, r := range results {
				fmt.Printf("%-6d %12.3f %12.3f %12.0f %10.2f\n", i+1, r.ForwardMS, r.BackwardMS, r.RowsPerSec, r.GBPerSec)
				sum.ForwardMS += r.ForwardMS
				sum.BackwardMS += r.BackwardMS
				sum.RowsPerSec += r.RowsPerSec
				sum.GBPerSec += r.GBPerSec
			}

			n := float64(len(results))
			avg := RunStats{
				ForwardMS:  sum.ForwardMS / n,
				BackwardMS: sum.BackwardMS / n,
				RowsPerSec: sum.RowsPerSec / n,
				GBPerSec:   sum.GBPerSec / n,
			}
			fmt.Printf("\n%-6s %12.3f %12.3f %12.0f %10.2f\n", "Avg", avg.ForwardMS, avg.BackwardMS, avg.RowsPerSec, avg.GBPerSec)

			// Memory stats
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))

			if reportPath != "" {
				report := &Report{
					ID:        newReportID(),
					Timestamp: time.Now().UTC(),
					System:    systemInfo(),
					Shape: ShapeInfo{
						Batch:     b,
						Classes:   c,
						DType:     kind.String(),
						Smoothing: smoothing,
						Workers:   nWorkers,
						Seed:      seed,
					},
					Runs:    results,
					Summary: avg,
				}
				if err := writeReport(reportPath, report); err != nil {
					return cli.Exit(fmt.Sprintf("error: write report: %v", err), 1)
				}
				log.Info("report written", "path", reportPath, "id", report.ID)
			}

			return nil
		},
	}
}

// buildKernels prepares inputs for the requested element kind and returns
// closures running one forward and one backward pass over them. Outputs are
// preallocated and the statistics are primed with an initial forward pass,
// so the closures measure kernel time rather than allocation.
func buildKernels(kind xent.ScalarKind, batch, classes int, smooth float64, seedVal int64, pool *workerpool.Pool) (forward, backward func(), err error) {
	rng := rand.New(rand.NewSource(seedVal))
	labels := make([]int64, batch)
	for i := range labels {
		labels[i] = rng.Int63n(int64(classes))
	}
	logits64 := make([]float64, batch*classes)
	for i := range logits64 {
		logits64[i] = rng.NormFloat64() * 4
	}
	shape := xent.ChooseGroupShape(classes)

	switch kind {
	case xent.F64:
		s := smooth
		losses := make([]float64, batch)
		stats := make([]float64, batch)
		gradLoss := make([]float64, batch)
		for i := range gradLoss {
			gradLoss[i] = 1
		}
		grad := make([]float64, batch*classes)
		forward = func() {
			xent.ParallelSoftmaxXent(pool, logits64, labels, s, losses, stats, batch, classes)
		}
		backward = func() {
			xent.ParallelSoftmaxXentBackward(pool, gradLoss, logits64, stats, labels, s, grad, batch, classes)
		}

	case xent.F32:
		logits := make([]float32, len(logits64))
		for i, v := range logits64 {
			logits[i] = float32(v)
		}
		s := float32(smooth)
		losses := make([]float32, batch)
		stats := make([]float32, batch)
		gradLoss := make([]float32, batch)
		for i := range gradLoss {
			gradLoss[i] = 1
		}
		grad := make([]float32, batch*classes)
		forward = func() {
			xent.ParallelSoftmaxXent(pool, logits, labels, s, losses, stats, batch, classes)
		}
		backward = func() {
			xent.ParallelSoftmaxXentBackward(pool, gradLoss, logits, stats, labels, s, grad, batch, classes)
		}

	case xent.F16:
		logits := make([]hwy.Float16, len(logits64))
		for i, v := range logits64 {
			logits[i] = hwy.Float32ToFloat16(float32(v))
		}
		s := float32(smooth)
		losses := make([]float32, batch)
		stats := make([]float32, batch)
		gradLoss := make([]float32, batch)
		for i := range gradLoss {
			gradLoss[i] = 1
		}
		grad := make([]hwy.Float16, batch*classes)
		forward = func() {
			xent.BaseSoftmaxXentF16(logits, labels, s, losses, stats, batch, classes, shape)
		}
		backward = func() {
			xent.BaseSoftmaxXentBackwardF16Wide(gradLoss, logits, stats, labels, s, grad, batch, classes, shape)
		}

	case xent.BF16:
		logits := make([]hwy.BFloat16, len(logits64))
		for i, v := range logits64 {
			logits[i] = hwy.Float32ToBFloat16(float32(v))
		}
		s := float32(smooth)
		losses := make([]float32, batch)
		stats := make([]float32, batch)
		gradLoss := make([]float32, batch)
		for i := range gradLoss {
			gradLoss[i] = 1
		}
		grad := make([]hwy.BFloat16, batch*classes)
		forward = func() {
			xent.BaseSoftmaxXentBF16(logits, labels, s, losses, stats, batch, classes, shape)
		}
		backward = func() {
			xent.BaseSoftmaxXentBackwardBF16Wide(gradLoss, logits, stats, labels, s, grad, batch, classes, shape)
		}

	default:
		return nil, nil, fmt.Errorf("unsupported dtype %s", kind)
	}

	forward()
	return forward, backward, nil
}
