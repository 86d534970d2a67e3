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
	"testing"
)

// naiveBackward computes one gradient row at double precision from the
// definitions: upstream * (softmax - smoothed target).
func naiveBackward(row []float64, upstream, mlse float64, label int64, smoothing float64) []float64 {
	classes := len(row)
	grad := make([]float64, classes)
	for j, v := range row {
		grad[j] = upstream * (math.Exp(v-mlse) - smoothing/float64(classes))
	}
	grad[label] -= upstream * (1 - smoothing)
	return grad
}

// TestSoftmaxXentBackwardMatchesNaive covers the ILP, chunk and tail
// regimes of the backward map in both widths.
func TestSoftmaxXentBackwardMatchesNaive(t *testing.T) {
	rng := testRNG()
	const batch = 5

	for _, classes := range []int{1, 17, 64, 130, 1000} {
		for _, smoothing := range []float64{0, 0.3, 1} {
			t.Run(fmt.Sprintf("classes=%d/smoothing=%v", classes, smoothing), func(t *testing.T) {
				logits, labels := randomBatchF64(rng, batch, classes, 4)
				upstream := make([]float64, batch)
				for i := range upstream {
					upstream[i] = rng.Float64()*2 - 1
				}

				_, stats, err := SoftmaxXent(logits, labels, batch, classes, smoothing)
				if err != nil {
					t.Fatalf("SoftmaxXent: %v", err)
				}
				grad, err := SoftmaxXentBackward(upstream, logits, stats, labels, batch, classes, smoothing)
				if err != nil {
					t.Fatalf("SoftmaxXentBackward: %v", err)
				}

				for r := 0; r < batch; r++ {
					row := logits[r*classes : (r+1)*classes]
					want := naiveBackward(row, upstream[r], stats[r], labels[r], smoothing)
					for j := 0; j < classes; j++ {
						if diff := math.Abs(grad[r*classes+j] - want[j]); diff > 1e-12 {
							t.Fatalf("row %d class %d: grad = %v, want %v (diff %v)", r, j, grad[r*classes+j], want[j], diff)
						}
					}
				}
			})
		}
	}
}

// TestSoftmaxXentBackwardRowsSumToZero checks the conservation property:
// softmax and the smoothed target both sum to one, so their difference sums
// to zero.
func TestSoftmaxXentBackwardRowsSumToZero(t *testing.T) {
	rng := testRNG()
	const batch, classes = 9, 431

	for _, smoothing := range []float64{0, 0.05, 0.5, 1} {
		t.Run(fmt.Sprintf("smoothing=%v", smoothing), func(t *testing.T) {
			logits, labels := randomBatchF64(rng, batch, classes, 5)
			upstream := make([]float64, batch)
			for i := range upstream {
				upstream[i] = rng.Float64()*4 - 2
			}

			_, stats, err := SoftmaxXent(logits, labels, batch, classes, smoothing)
			if err != nil {
				t.Fatalf("SoftmaxXent: %v", err)
			}
			grad, err := SoftmaxXentBackward(upstream, logits, stats, labels, batch, classes, smoothing)
			if err != nil {
				t.Fatalf("SoftmaxXentBackward: %v", err)
			}

			for r := 0; r < batch; r++ {
				sum := 0.0
				for _, g := range grad[r*classes : (r+1)*classes] {
					sum += g
				}
				if math.Abs(sum) > 1e-10 {
					t.Errorf("row %d: gradient sums to %v, want 0", r, sum)
				}
			}
		})
	}
}

// TestSoftmaxXentBackwardIsSoftmaxMinusOneHot pins the zero-smoothing
// gradient to softmax - onehot.
func TestSoftmaxXentBackwardIsSoftmaxMinusOneHot(t *testing.T) {
	rng := testRNG()
	const batch, classes = 4, 97

	logits, labels := randomBatchF64(rng, batch, classes, 3)
	upstream := []float64{1, 1, 1, 1}

	_, stats, err := SoftmaxXent(logits, labels, batch, classes, 0.0)
	if err != nil {
		t.Fatalf("SoftmaxXent: %v", err)
	}
	grad, err := SoftmaxXentBackward(upstream, logits, stats, labels, batch, classes, 0.0)
	if err != nil {
		t.Fatalf("SoftmaxXentBackward: %v", err)
	}

	for r := 0; r < batch; r++ {
		row := logits[r*classes : (r+1)*classes]
		for j, v := range row {
			want := math.Exp(v - stats[r])
			if int64(j) == labels[r] {
				want -= 1
			}
			if diff := math.Abs(grad[r*classes+j] - want); diff > 1e-12 {
				t.Fatalf("row %d class %d: grad = %v, want softmax-onehot %v", r, j, grad[r*classes+j], want)
			}
		}
	}
}

// TestSoftmaxXentBackwardGradCheck compares the analytic gradient against
// central finite differences of the forward loss.
func TestSoftmaxXentBackwardGradCheck(t *testing.T) {
	rng := testRNG()
	const batch, classes = 3, 7
	const smoothing = 0.2
	const h = 1e-6

	logits, labels := randomBatchF64(rng, batch, classes, 2)
	upstream := []float64{1, 1, 1}

	_, stats, err := SoftmaxXent(logits, labels, batch, classes, smoothing)
	if err != nil {
		t.Fatalf("SoftmaxXent: %v", err)
	}
	grad, err := SoftmaxXentBackward(upstream, logits, stats, labels, batch, classes, smoothing)
	if err != nil {
		t.Fatalf("SoftmaxXentBackward: %v", err)
	}

	lossAt := func(perturbed []float64, r int) float64 {
		losses, _, err := SoftmaxXent(perturbed, labels, batch, classes, smoothing)
		if err != nil {
			t.Fatalf("SoftmaxXent: %v", err)
		}
		return losses[r]
	}

	for r := 0; r < batch; r++ {
		for j := 0; j < classes; j++ {
			idx := r*classes + j
			perturbed := make([]float64, len(logits))
			copy(perturbed, logits)

			perturbed[idx] = logits[idx] + h
			up := lossAt(perturbed, r)
			perturbed[idx] = logits[idx] - h
			down := lossAt(perturbed, r)

			numeric := (up - down) / (2 * h)
			if diff := math.Abs(grad[idx] - numeric); diff > 1e-5 {
				t.Errorf("row %d class %d: analytic %v vs numeric %v (diff %v)", r, j, grad[idx], numeric, diff)
			}
		}
	}
}

// TestSoftmaxXentBackwardEmptyUpstream treats a zero-length upstream
// gradient as all zeros.
func TestSoftmaxXentBackwardEmptyUpstream(t *testing.T) {
	rng := testRNG()
	const batch, classes = 3, 40

	logits, labels := randomBatchF64(rng, batch, classes, 2)
	_, stats, err := SoftmaxXent(logits, labels, batch, classes, 0.1)
	if err != nil {
		t.Fatalf("SoftmaxXent: %v", err)
	}

	grad, err := SoftmaxXentBackward(nil, logits, stats, labels, batch, classes, 0.1)
	if err != nil {
		t.Fatalf("SoftmaxXentBackward: %v", err)
	}
	if len(grad) != batch*classes {
		t.Fatalf("grad length = %d, want %d", len(grad), batch*classes)
	}
	for i, g := range grad {
		if g != 0 {
			t.Fatalf("grad[%d] = %v, want 0", i, g)
		}
	}
}

func TestSoftmaxXentBackwardValidation(t *testing.T) {
	logits := make([]float32, 12)
	labels := make([]int64, 3)
	stats := make([]float32, 3)
	upstream := make([]float32, 3)

	tests := []struct {
		name     string
		upstream []float32
		stats    []float32
		wantErr  error
	}{
		{name: "short stats", upstream: upstream, stats: stats[:2], wantErr: ErrShape},
		{name: "odd upstream length", upstream: upstream[:2], stats: stats, wantErr: ErrShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SoftmaxXentBackward(tt.upstream, logits, tt.stats, labels, 3, 4, float32(0.1))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkSoftmaxXentBackward(b *testing.B) {
	rng := testRNG()
	for _, size := range []struct{ batch, classes int }{
		{32, 1024},
		{32, 32768},
		{256, 4096},
	} {
		logits64, labels := randomBatchF64(rng, size.batch, size.classes, 4)
		logits := toFloat32(logits64)
		upstream := make([]float32, size.batch)
		for i := range upstream {
			upstream[i] = 1
		}
		losses := make([]float32, size.batch)
		stats := make([]float32, size.batch)
		grad := make([]float32, size.batch*size.classes)
		shape := ChooseGroupShape(size.classes)
		BaseSoftmaxXent(logits, labels, 0.1, losses, stats, size.batch, size.classes, shape)
		b.Run(fmt.Sprintf("%dx%d", size.batch, size.classes), func(b *testing.B) {
			b.SetBytes(int64(size.batch * size.classes * 4))
			for i := 0; i < b.N; i++ {
				BaseSoftmaxXentBackward(upstream, logits, stats, labels, 0.1, grad, size.batch, size.classes, shape)
			}
		})
	}
}
