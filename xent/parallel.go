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
	"github.com/ajroetker/go-highway/hwy"
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Parallel tuning parameters for the batch drivers.
const (
	// MinParallelXentOps is the minimum batch*classes element count before
	// splitting the batch across workers. Below it the per-task overhead
	// outweighs the row work.
	MinParallelXentOps = 16384

	// XentRowBatch is the number of rows claimed per atomic grab.
	XentRowBatch = 4
)

// ParallelSoftmaxXent runs the forward pass with rows split across the
// worker pool. Rows are independent and each worker folds with its own
// banks, so results are identical to BaseSoftmaxXent bit for bit.
//
// Falls back to the sequential kernel when pool is nil, the pool has a
// single worker, or the problem is below MinParallelXentOps.
func ParallelSoftmaxXent[T hwy.Floats](pool *workerpool.Pool, logits []T, labels []int64, smoothing T, losses, maxLogSumExp []T, batch, classes int) {
	shape := ChooseGroupShape(classes)
	if pool == nil || pool.NumWorkers() <= 1 || batch*classes < MinParallelXentOps {
		BaseSoftmaxXent(logits, labels, smoothing, losses, maxLogSumExp, batch, classes, shape)
		return
	}
	pool.ParallelForAtomicBatched(batch, XentRowBatch, func(start, end int) {
		maxBank := getScratch[T](shape.Lanes)
		sumBank := getScratch[T](shape.Lanes)
		for r := start; r < end; r++ {
			off := r * classes
			row := logits[off : off+classes]
			losses[r], maxLogSumExp[r] = forwardRow(row, labels[r], smoothing, shape, maxBank, sumBank)
		}
		putScratch(maxBank)
		putScratch(sumBank)
	})
}

// ParallelSoftmaxXentBackward runs the backward pass with rows split across
// the worker pool. The map needs no scratch at all, so workers write their
// row ranges straight into grad.
func ParallelSoftmaxXentBackward[T hwy.Floats](pool *workerpool.Pool, gradLoss, logits, maxLogSumExp []T, labels []int64, smoothing T, grad []T, batch, classes int) {
	shape := ChooseGroupShape(classes)
	if pool == nil || pool.NumWorkers() <= 1 || batch*classes < MinParallelXentOps || len(gradLoss) == 0 {
		BaseSoftmaxXentBackward(gradLoss, logits, maxLogSumExp, labels, smoothing, grad, batch, classes, shape)
		return
	}
	pool.ParallelForAtomicBatched(batch, XentRowBatch, func(start, end int) {
		for r := start; r < end; r++ {
			off := r * classes
			backwardRow(grad[off:off+classes], logits[off:off+classes], gradLoss[r], maxLogSumExp[r], labels[r], smoothing, shape)
		}
	})
}
