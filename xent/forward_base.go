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
	stdmath "math"

	"github.com/ajroetker/go-highway/hwy"
	"github.com/ajroetker/go-xentropy/xent/reduce"
)

// BaseSoftmaxXent computes the fused softmax cross-entropy forward pass over
// a [batch, classes] row-major logits matrix.
//
// For each row r it writes losses[r] and maxLogSumExp[r], where the latter
// is the numerically stable log-sum-exp of the row (max + log(sum of
// shifted exponentials)). With smoothing = 0 the loss is the plain negative
// log likelihood of labels[r]; with smoothing s the target distribution
// puts s/classes on every class and 1-s+s/classes on the label, which folds
// into
//
//	loss = (lse - rawSum/classes)*s + (lse - logits[label])*(1-s)
//
// computed here without ever forming the softmax.
//
// losses and maxLogSumExp must have length batch; labels[r] must index its
// row (not checked, out of range panics). shape is normally
// ChooseGroupShape(classes). No validation is performed; see SoftmaxXent
// for the checked entry point.
func BaseSoftmaxXent[T hwy.Floats](logits []T, labels []int64, smoothing T, losses, maxLogSumExp []T, batch, classes int, shape GroupShape) {
	if batch == 0 || classes == 0 {
		return
	}
	maxBank := make([]T, shape.Lanes)
	sumBank := make([]T, shape.Lanes)
	for r := 0; r < batch; r++ {
		off := r * classes
		row := logits[off : off+classes]
		losses[r], maxLogSumExp[r] = forwardRow(row, labels[r], smoothing, shape, maxBank, sumBank)
	}
}

// forwardRow runs the two reduction passes and the loss assembly for one
// row. maxBank and sumBank are shape.Lanes long and are consumed and
// refilled on every call.
func forwardRow[T hwy.Floats](row []T, label int64, smoothing T, shape GroupShape, maxBank, sumBank []T) (loss, mlse T) {
	classes := len(row)
	lanes := shape.Lanes
	step := shape.Step()

	// Pass 1: running maximum and raw logit sum, fused into a single
	// traversal. ILP consecutive chunks per step, then remaining whole
	// chunks, then a scalar tail into the low bank slots.
	reduce.Fill(reduce.Max, maxBank)
	reduce.Fill(reduce.Sum, sumBank)

	var base int
	for base = 0; base+step <= classes; base += step {
		for c := 0; c < shape.ILP; c++ {
			off := base + c*lanes
			reduce.Accumulate2(reduce.Max, reduce.Sum, maxBank, sumBank, row[off:off+lanes])
		}
	}
	for ; base+lanes <= classes; base += lanes {
		reduce.Accumulate2(reduce.Max, reduce.Sum, maxBank, sumBank, row[base:base+lanes])
	}
	for i := 0; base+i < classes; i++ {
		maxBank[i] = reduce.Combine(reduce.Max, maxBank[i], row[base+i])
		sumBank[i] = reduce.Combine(reduce.Sum, sumBank[i], row[base+i])
	}
	rowMax, rowSum := reduce.Fold2(reduce.Max, reduce.Sum, maxBank, sumBank)

	// Pass 2: sum of exp(x - rowMax), same loop structure. The shift keeps
	// every exponent at or below zero, so nothing overflows.
	reduce.Fill(reduce.Sum, sumBank)
	for base = 0; base+step <= classes; base += step {
		for c := 0; c < shape.ILP; c++ {
			off := base + c*lanes
			expAccum(sumBank, row[off:off+lanes], rowMax)
		}
	}
	for ; base+lanes <= classes; base += lanes {
		expAccum(sumBank, row[base:base+lanes], rowMax)
	}
	for i := 0; base+i < classes; i++ {
		sumBank[i] += expScalar(row[base+i] - rowMax)
	}
	sumAll := reduce.Fold(reduce.Sum, sumBank)

	logSum := T(stdmath.Log(float64(sumAll)))
	mlse = rowMax + logSum
	logProb := row[label] - mlse
	loss = (mlse-rowSum/T(classes))*smoothing - logProb*(1-smoothing)
	return loss, mlse
}
