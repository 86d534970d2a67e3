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

package xent

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// testRNG returns a seeded random number generator for reproducible tests.
func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

// naiveForward computes the smoothed loss and log-sum-exp for one row at
// double precision, straight from the definitions.
func naiveForward(row []float64, label int64, smoothing float64) (loss, mlse float64) {
	max := row[0]
	sum := 0.0
	for _, v := range row {
		if v > max {
			max = v
		}
		sum += v
	}
	sumExp := 0.0
	for _, v := range row {
		sumExp += math.Exp(v - max)
	}
	lse := max + math.Log(sumExp)
	nll := lse - row[label]
	loss = (lse-sum/float64(len(row)))*smoothing + nll*(1-smoothing)
	return loss, lse
}

func randomBatchF64(rng *rand.Rand, batch, classes int, scale float64) ([]float64, []int64) {
	logits := make([]float64, batch*classes)
	for i := range logits {
		logits[i] = rng.Float64()*2*scale - scale
	}
	labels := make([]int64, batch)
	for i := range labels {
		labels[i] = rng.Int63n(int64(classes))
	}
	return logits, labels
}

func toFloat32(src []float64) []float32 {
	dst := make([]float32, len(src))
	for i, v := range src {
		dst[i] = float32(v)
	}
	return dst
}

func toFloat64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

// TestSoftmaxXentScenario pins the worked end-to-end example: logits
// [1,2,3,4] with the label on the largest logit.
func TestSoftmaxXentScenario(t *testing.T) {
	logits := []float32{1, 2, 3, 4}
	labels := []int64{3}

	tests := []struct {
		name      string
		smoothing float32
		wantLoss  float64
	}{
		{name: "no smoothing", smoothing: 0, wantLoss: 0.4402},
		{name: "smoothing 0.1", smoothing: 0.1, wantLoss: 0.5902},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			losses, stats, err := SoftmaxXent(logits, labels, 1, 4, tt.smoothing)
			if err != nil {
				t.Fatalf("SoftmaxXent: %v", err)
			}
			if diff := math.Abs(float64(losses[0]) - tt.wantLoss); diff > 1e-4 {
				t.Errorf("loss = %v, want %v (diff %v)", losses[0], tt.wantLoss, diff)
			}
			if diff := math.Abs(float64(stats[0]) - 4.4402); diff > 1e-4 {
				t.Errorf("maxLogSumExp = %v, want 4.4402 (diff %v)", stats[0], diff)
			}
		})
	}
}

// TestSoftmaxXentMatchesNaive sweeps class counts across the ILP, chunk and
// tail regimes and compares against the double-precision definition.
func TestSoftmaxXentMatchesNaive(t *testing.T) {
	rng := testRNG()
	const batch = 7

	for _, classes := range []int{1, 5, 33, 64, 100, 257, 1000, 2049} {
		for _, smoothing := range []float64{0, 0.1, 1} {
			t.Run(fmt.Sprintf("classes=%d/smoothing=%v", classes, smoothing), func(t *testing.T) {
				logits64, labels := randomBatchF64(rng, batch, classes, 4)

				t.Run("float64", func(t *testing.T) {
					losses, stats, err := SoftmaxXent(logits64, labels, batch, classes, smoothing)
					if err != nil {
						t.Fatalf("SoftmaxXent: %v", err)
					}
					for r := 0; r < batch; r++ {
						row := logits64[r*classes : (r+1)*classes]
						wantLoss, wantStat := naiveForward(row, labels[r], smoothing)
						if diff := math.Abs(losses[r] - wantLoss); diff > 1e-8 {
							t.Errorf("row %d: loss = %v, want %v (diff %v)", r, losses[r], wantLoss, diff)
						}
						if diff := math.Abs(stats[r] - wantStat); diff > 1e-8 {
							t.Errorf("row %d: stat = %v, want %v (diff %v)", r, stats[r], wantStat, diff)
						}
					}
				})

				t.Run("float32", func(t *testing.T) {
					logits32 := toFloat32(logits64)
					losses, stats, err := SoftmaxXent(logits32, labels, batch, classes, float32(smoothing))
					if err != nil {
						t.Fatalf("SoftmaxXent: %v", err)
					}
					for r := 0; r < batch; r++ {
						row := toFloat64(logits32[r*classes : (r+1)*classes])
						wantLoss, wantStat := naiveForward(row, labels[r], smoothing)
						tol := 1e-3 * math.Max(1, math.Abs(wantLoss))
						if diff := math.Abs(float64(losses[r]) - wantLoss); diff > tol {
							t.Errorf("row %d: loss = %v, want %v (diff %v)", r, losses[r], wantLoss, diff)
						}
						tol = 1e-3 * math.Max(1, math.Abs(wantStat))
						if diff := math.Abs(float64(stats[r]) - wantStat); diff > tol {
							t.Errorf("row %d: stat = %v, want %v (diff %v)", r, stats[r], wantStat, diff)
						}
					}
				})
			})
		}
	}
}

// TestSoftmaxXentNLLMatchesGonum checks the zero-smoothing loss against an
// independent log-sum-exp implementation.
func TestSoftmaxXentNLLMatchesGonum(t *testing.T) {
	rng := testRNG()
	const batch, classes = 16, 301

	logits, labels := randomBatchF64(rng, batch, classes, 6)
	losses, stats, err := SoftmaxXent(logits, labels, batch, classes, 0.0)
	if err != nil {
		t.Fatalf("SoftmaxXent: %v", err)
	}
	for r := 0; r < batch; r++ {
		row := logits[r*classes : (r+1)*classes]
		lse := floats.LogSumExp(row)
		wantLoss := lse - row[labels[r]]
		if diff := math.Abs(losses[r] - wantLoss); diff > 1e-9 {
			t.Errorf("row %d: loss = %v, want %v (diff %v)", r, losses[r], wantLoss, diff)
		}
		if diff := math.Abs(stats[r] - lse); diff > 1e-9 {
			t.Errorf("row %d: stat = %v, want %v (diff %v)", r, stats[r], lse, diff)
		}
	}
}

// TestSoftmaxXentFullSmoothing checks that with smoothing = 1 the loss no
// longer depends on the label at all.
func TestSoftmaxXentFullSmoothing(t *testing.T) {
	rng := testRNG()
	const batch, classes = 8, 129

	logits, labels := randomBatchF64(rng, batch, classes, 3)
	shifted := make([]int64, batch)
	for i, l := range labels {
		shifted[i] = (l + 1) % int64(classes)
	}

	a, _, err := SoftmaxXent(logits, labels, batch, classes, 1.0)
	if err != nil {
		t.Fatalf("SoftmaxXent: %v", err)
	}
	b, _, err := SoftmaxXent(logits, shifted, batch, classes, 1.0)
	if err != nil {
		t.Fatalf("SoftmaxXent: %v", err)
	}
	for r := 0; r < batch; r++ {
		if a[r] != b[r] {
			t.Errorf("row %d: loss depends on label under full smoothing: %v vs %v", r, a[r], b[r])
		}
	}
}

// TestSoftmaxNormalization rebuilds the softmax from the cached statistic
// and checks that each row sums to one.
func TestSoftmaxNormalization(t *testing.T) {
	rng := testRNG()
	const batch, classes = 6, 517

	logits, labels := randomBatchF64(rng, batch, classes, 5)
	_, stats, err := SoftmaxXent(logits, labels, batch, classes, 0.3)
	if err != nil {
		t.Fatalf("SoftmaxXent: %v", err)
	}
	for r := 0; r < batch; r++ {
		sum := 0.0
		for _, v := range logits[r*classes : (r+1)*classes] {
			sum += math.Exp(v - stats[r])
		}
		if diff := math.Abs(sum - 1); diff > 1e-10 {
			t.Errorf("row %d: softmax sums to %v, want 1 (diff %v)", r, sum, diff)
		}
	}
}

// TestSoftmaxXentExtremeLogits drives the inputs to magnitudes where an
// unshifted exponential would overflow.
func TestSoftmaxXentExtremeLogits(t *testing.T) {
	const classes = 64

	build := func(scale float64) ([]float64, []int64) {
		row := make([]float64, classes)
		for i := range row {
			row[i] = -scale
		}
		row[0] = scale
		return row, []int64{0}
	}

	for _, scale := range []float64{1e4, 3e4} {
		t.Run(fmt.Sprintf("scale=%g", scale), func(t *testing.T) {
			logits, labels := build(scale)
			losses, stats, err := SoftmaxXent(logits, labels, 1, classes, 0.0)
			if err != nil {
				t.Fatalf("SoftmaxXent: %v", err)
			}
			if math.IsNaN(losses[0]) || math.IsInf(losses[0], 0) {
				t.Fatalf("loss = %v, want finite", losses[0])
			}
			// The label holds essentially all the mass, so the loss is
			// close to zero and the statistic close to the peak.
			if losses[0] < 0 || losses[0] > 1e-6 {
				t.Errorf("loss = %v, want tiny nonnegative", losses[0])
			}
			if diff := math.Abs(stats[0] - scale); diff > 1e-6 {
				t.Errorf("stat = %v, want %v", stats[0], scale)
			}

			logits32 := toFloat32(logits)
			losses32, stats32, err := SoftmaxXent(logits32, labels, 1, classes, float32(0))
			if err != nil {
				t.Fatalf("SoftmaxXent float32: %v", err)
			}
			if math.IsNaN(float64(losses32[0])) || math.IsInf(float64(losses32[0]), 0) {
				t.Fatalf("float32 loss = %v, want finite", losses32[0])
			}
			if float64(stats32[0]) != scale {
				t.Errorf("float32 stat = %v, want %v", stats32[0], scale)
			}
		})
	}
}

func TestSoftmaxXentSingleClass(t *testing.T) {
	logits := []float64{2.5, -1, 7}
	labels := []int64{0, 0, 0}
	losses, stats, err := SoftmaxXent(logits, labels, 3, 1, 0.4)
	if err != nil {
		t.Fatalf("SoftmaxXent: %v", err)
	}
	for r := range losses {
		if losses[r] != 0 {
			t.Errorf("row %d: single-class loss = %v, want 0", r, losses[r])
		}
		if stats[r] != logits[r] {
			t.Errorf("row %d: single-class stat = %v, want %v", r, stats[r], logits[r])
		}
	}
}

func TestSoftmaxXentEmptyBatch(t *testing.T) {
	losses, stats, err := SoftmaxXent([]float32{}, []int64{}, 0, 10, 0.1)
	if err != nil {
		t.Fatalf("SoftmaxXent on empty batch: %v", err)
	}
	if losses == nil || stats == nil {
		t.Fatal("empty batch returned nil outputs, want empty slices")
	}
	if len(losses) != 0 || len(stats) != 0 {
		t.Errorf("empty batch returned lengths %d, %d, want 0, 0", len(losses), len(stats))
	}
}

func TestSoftmaxXentValidation(t *testing.T) {
	logits := make([]float32, 12)
	labels := make([]int64, 3)

	tests := []struct {
		name      string
		logits    []float32
		labels    []int64
		batch     int
		classes   int
		smoothing float32
		wantErr   error
	}{
		{name: "short logits", logits: logits[:11], labels: labels, batch: 3, classes: 4, wantErr: ErrShape},
		{name: "short labels", logits: logits, labels: labels[:2], batch: 3, classes: 4, wantErr: ErrShape},
		{name: "negative batch", logits: logits, labels: labels, batch: -1, classes: 4, wantErr: ErrShape},
		{name: "zero classes", logits: nil, labels: labels, batch: 3, classes: 0, wantErr: ErrShape},
		{name: "smoothing below range", logits: logits, labels: labels, batch: 3, classes: 4, smoothing: -0.1, wantErr: ErrSmoothing},
		{name: "smoothing above range", logits: logits, labels: labels, batch: 3, classes: 4, smoothing: 1.5, wantErr: ErrSmoothing},
		{name: "smoothing NaN", logits: logits, labels: labels, batch: 3, classes: 4, smoothing: float32(math.NaN()), wantErr: ErrSmoothing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SoftmaxXent(tt.logits, tt.labels, tt.batch, tt.classes, tt.smoothing)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkSoftmaxXent(b *testing.B) {
	rng := testRNG()
	for _, size := range []struct{ batch, classes int }{
		{32, 1024},
		{32, 32768},
		{256, 4096},
	} {
		logits64, labels := randomBatchF64(rng, size.batch, size.classes, 4)
		logits := toFloat32(logits64)
		losses := make([]float32, size.batch)
		stats := make([]float32, size.batch)
		shape := ChooseGroupShape(size.classes)
		b.Run(fmt.Sprintf("%dx%d", size.batch, size.classes), func(b *testing.B) {
			b.SetBytes(int64(size.batch * size.classes * 4))
			for i := 0; i < b.N; i++ {
				BaseSoftmaxXent(logits, labels, 0.1, losses, stats, size.batch, size.classes, shape)
			}
		})
	}
}
