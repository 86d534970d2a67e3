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
	"math"
	"math/rand"

	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/floats"

	"github.com/ajroetker/go-highway/hwy"

	"github.com/ajroetker/go-xentropy/internal/logger"
	"github.com/ajroetker/go-xentropy/xent"
)

func verifyCmd() *cli.Command {
	var tol float64

	flags := append([]cli.Flag{}, commonShapeFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.Float64Flag{
			Name:        "tol",
			Usage:       "relative tolerance for forward outputs, 0 selects a per-dtype default",
			Destination: &tol,
		},
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Check kernel outputs against a float64 reference",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, loadConfig(configFile), nil, nil)
			ctx = logger.WithContext(ctx, newLogger())

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
			forwardTol := tol
			if forwardTol == 0 {
				forwardTol = defaultForwardTol(kind)
			}

			result, err := verifyKernels(ctx, kind, int(batch), int(classes), smoothing, seed, forwardTol)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			fmt.Printf("forward:  max relative error %.3e (tolerance %.0e)\n", result.forwardErr, result.forwardTol)
			fmt.Printf("backward: max |row sum|      %.3e (tolerance %.0e)\n", result.rowSumErr, result.rowSumTol)
			if !result.ok() {
				return cli.Exit("FAIL", 1)
			}
			fmt.Println("PASS")
			return nil
		},
	}
}

func defaultForwardTol(kind xent.ScalarKind) float64 {
	if kind == xent.F64 {
		return 1e-12
	}
	return 1e-4
}

func defaultRowSumTol(kind xent.ScalarKind) float64 {
	switch kind {
	case xent.F64:
		return 1e-9
	case xent.F32:
		return 1e-3
	}
	// 16-bit gradient storage rounds the label entry, which dominates
	// the row sum error.
	return 5e-2
}

type verifyResult struct {
	forwardErr float64
	forwardTol float64
	rowSumErr  float64
	rowSumTol  float64
}

func (r verifyResult) ok() bool {
	return r.forwardErr <= r.forwardTol && r.rowSumErr <= r.rowSumTol
}

// verifyKernels runs forward and backward at the requested element kind and
// compares against a float64 reference computed on the same rounded inputs.
// The forward reference uses gonum's stable log-sum-exp; the backward check
// relies on softmax gradients summing to zero over each row.
func verifyKernels(ctx context.Context, kind xent.ScalarKind, batch, classes int, smooth float64, seedVal int64, forwardTol float64) (verifyResult, error) {
	log := logger.FromContext(ctx)
	log.Info("verifying", "batch", batch, "classes", classes, "dtype", kind.String(), "smoothing", smooth)

	rng := rand.New(rand.NewSource(seedVal))
	labels := make([]int64, batch)
	for i := range labels {
		labels[i] = rng.Int63n(int64(classes))
	}
	logits64 := make([]float64, batch*classes)
	for i := range logits64 {
		logits64[i] = rng.NormFloat64() * 4
	}

	rounded, losses, stats, grad, err := runKindForVerify(kind, logits64, labels, smooth, batch, classes)
	if err != nil {
		return verifyResult{}, err
	}

	result := verifyResult{forwardTol: forwardTol, rowSumTol: defaultRowSumTol(kind)}
	for r := range batch {
		row := rounded[r*classes : (r+1)*classes]
		lse := floats.LogSumExp(row)
		raw := floats.Sum(row)
		logProb := row[labels[r]] - lse
		wantLoss := (lse-raw/float64(classes))*smooth - logProb*(1-smooth)

		result.forwardErr = math.Max(result.forwardErr, relErr(losses[r], wantLoss))
		result.forwardErr = math.Max(result.forwardErr, relErr(stats[r], lse))
		result.rowSumErr = math.Max(result.rowSumErr, math.Abs(floats.Sum(grad[r*classes:(r+1)*classes])))
	}

	log.Debug("verification complete", "forward_err", result.forwardErr, "row_sum_err", result.rowSumErr)
	return result, nil
}

func relErr(got, want float64) float64 {
	return math.Abs(got-want) / math.Max(1, math.Abs(want))
}

// runKindForVerify rounds the float64 inputs to the native element kind,
// runs forward and backward through the validating API, and promotes all
// outputs back to float64. The returned rounded slice holds the values the
// kernels actually saw, so the reference charges no error to input rounding.
func runKindForVerify(kind xent.ScalarKind, logits64 []float64, labels []int64, smooth float64, batch, classes int) (rounded, losses, stats, grad []float64, err error) {
	ones32 := func() []float32 {
		g := make([]float32, batch)
		for i := range g {
			g[i] = 1
		}
		return g
	}

	switch kind {
	case xent.F64:
		lossesN, statsN, err := xent.SoftmaxXent(logits64, labels, batch, classes, smooth)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		gradLoss := make([]float64, batch)
		for i := range gradLoss {
			gradLoss[i] = 1
		}
		gradN, err := xent.SoftmaxXentBackward(gradLoss, logits64, statsN, labels, batch, classes, smooth)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return logits64, lossesN, statsN, gradN, nil

	case xent.F32:
		logits := make([]float32, len(logits64))
		rounded = make([]float64, len(logits64))
		for i, v := range logits64 {
			logits[i] = float32(v)
			rounded[i] = float64(logits[i])
		}
		lossesN, statsN, err := xent.SoftmaxXent(logits, labels, batch, classes, float32(smooth))
		if err != nil {
			return nil, nil, nil, nil, err
		}
		gradN, err := xent.SoftmaxXentBackward(ones32(), logits, statsN, labels, batch, classes, float32(smooth))
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return rounded, promote32(lossesN), promote32(statsN), promote32(gradN), nil

	case xent.F16:
		logits := make([]hwy.Float16, len(logits64))
		rounded = make([]float64, len(logits64))
		for i, v := range logits64 {
			logits[i] = hwy.Float32ToFloat16(float32(v))
			rounded[i] = float64(logits[i].Float32())
		}
		lossesN, statsN, err := xent.SoftmaxXentF16(logits, labels, batch, classes, float32(smooth))
		if err != nil {
			return nil, nil, nil, nil, err
		}
		gradN, err := xent.SoftmaxXentBackwardF16Wide(ones32(), logits, statsN, labels, batch, classes, float32(smooth))
		if err != nil {
			return nil, nil, nil, nil, err
		}
		grad = make([]float64, len(gradN))
		for i, v := range gradN {
			grad[i] = float64(v.Float32())
		}
		return rounded, promote32(lossesN), promote32(statsN), grad, nil

	case xent.BF16:
		logits := make([]hwy.BFloat16, len(logits64))
		rounded = make([]float64, len(logits64))
		for i, v := range logits64 {
			logits[i] = hwy.Float32ToBFloat16(float32(v))
			rounded[i] = float64(logits[i].Float32())
		}
		lossesN, statsN, err := xent.SoftmaxXentBF16(logits, labels, batch, classes, float32(smooth))
		if err != nil {
			return nil, nil, nil, nil, err
		}
		gradN, err := xent.SoftmaxXentBackwardBF16Wide(ones32(), logits, statsN, labels, batch, classes, float32(smooth))
		if err != nil {
			return nil, nil, nil, nil, err
		}
		grad = make([]float64, len(gradN))
		for i, v := range gradN {
			grad[i] = float64(v.Float32())
		}
		return rounded, promote32(lossesN), promote32(statsN), grad, nil
	}
	return nil, nil, nil, nil, fmt.Errorf("unsupported dtype %s", kind)
}

func promote32(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}
