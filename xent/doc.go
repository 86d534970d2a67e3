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

// Package xent provides a fused softmax + cross-entropy loss with uniform
// label smoothing, forward and backward, over batches of logit rows.
//
// The forward pass never materializes the softmax. For each row it computes
// the maximum and the raw logit sum in a single fused reduction, then the
// shifted exponential sum, and emits two scalars: the loss
//
//	loss = (max + log(sumExp) - sum/classes)*smoothing - logProb*(1-smoothing)
//
// and the statistic max + log(sumExp) (the log-sum-exp of the row). The
// backward pass rebuilds the softmax elementwise from that cached statistic:
//
//	grad[j] = upstream * (softmax[j] - smoothing/classes - onehot[j]*(1-smoothing))
//
// so it needs no reduction and no extra memory.
//
// # API layers
//
// Base kernels (BaseSoftmaxXent, BaseSoftmaxXentBackward and the
// Float16/BFloat16 variants) are portable generic kernels that write into
// caller-provided slices and perform no validation. SoftmaxXent,
// SoftmaxXentBackward and friends validate arguments, allocate outputs and
// pick the launch shape. ParallelSoftmaxXent and ParallelSoftmaxXentBackward
// split the batch across a workerpool for large problems.
//
// Labels index their row and are not range-checked in the kernels; an
// out-of-range label panics on the slice access. Row reductions use
// accumulator banks from the reduce subpackage, sized by the launch-shape
// rule in ChooseGroupShape.
//
// # Example Usage
//
//	import "github.com/ajroetker/go-xentropy/xent"
//
//	losses, stats, err := xent.SoftmaxXent(logits, labels, batch, classes, 0.1)
//	if err != nil {
//	    return err
//	}
//	grad, err := xent.SoftmaxXentBackward(upstream, logits, stats, labels, batch, classes, 0.1)
package xent
