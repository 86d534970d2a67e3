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
)

// BaseSoftmaxXentBackward computes the logit gradient from the cached
// forward statistics. For each row r and class j it writes
//
//	grad[r,j] = gradLoss[r] * (exp(logits[r,j] - maxLogSumExp[r])
//	            - smoothing/classes - onehot(j == labels[r])*(1-smoothing))
//
// The exp term is exactly the softmax, rebuilt from the cached log-sum-exp,
// so the pass is a pure elementwise map with no reduction and no scratch.
// Each row of grad sums to zero up to rounding.
//
// A zero-length gradLoss means the upstream gradient is identically zero:
// grad is zero-filled and no kernel work runs. Otherwise gradLoss and
// maxLogSumExp must have length batch and grad must have length
// batch*classes. No validation is performed; see SoftmaxXentBackward.
func BaseSoftmaxXentBackward[T hwy.Floats](gradLoss, logits, maxLogSumExp []T, labels []int64, smoothing T, grad []T, batch, classes int, shape GroupShape) {
	if batch == 0 || classes == 0 {
		return
	}
	if len(gradLoss) == 0 {
		clear(grad[:batch*classes])
		return
	}
	for r := 0; r < batch; r++ {
		off := r * classes
		backwardRow(grad[off:off+classes], logits[off:off+classes], gradLoss[r], maxLogSumExp[r], labels[r], smoothing, shape)
	}
}

// backwardRow applies the map to one row. Every element first gets the
// off-target value; the label element then pays the on-target mass once.
func backwardRow[T hwy.Floats](grad, row []T, upstream, mlse T, label int64, smoothing T, shape GroupShape) {
	classes := len(row)
	lanes := shape.Lanes
	step := shape.Step()
	offTarget := smoothing / T(classes)

	var base int
	for base = 0; base+step <= classes; base += step {
		for c := 0; c < shape.ILP; c++ {
			off := base + c*lanes
			expMap(grad[off:off+lanes], row[off:off+lanes], mlse, upstream, offTarget)
		}
	}
	for ; base+lanes <= classes; base += lanes {
		expMap(grad[base:base+lanes], row[base:base+lanes], mlse, upstream, offTarget)
	}
	for ; base < classes; base++ {
		grad[base] = upstream * (T(stdmath.Exp(float64(row[base]-mlse))) - offTarget)
	}

	grad[label] -= upstream * (1 - smoothing)
}
