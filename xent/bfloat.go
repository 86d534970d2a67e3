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

import "github.com/ajroetker/go-highway/hwy"

// BFloat16 storage paths, mirroring the Float16 ones: promote to pooled
// float32 scratch, run the float32 row kernels, demote on the way out.

func promoteBF16(dst []float32, src []hwy.BFloat16) {
	for i, b := range src {
		dst[i] = hwy.BFloat16ToFloat32(b)
	}
}

func demoteBF16(dst []hwy.BFloat16, src []float32) {
	for i, f := range src {
		dst[i] = hwy.Float32ToBFloat16(f)
	}
}

// BaseSoftmaxXentBF16 is the forward pass for BFloat16 logits with float32
// outputs.
func BaseSoftmaxXentBF16(logits []hwy.BFloat16, labels []int64, smoothing float32, losses, maxLogSumExp []float32, batch, classes int, shape GroupShape) {
	if batch == 0 || classes == 0 {
		return
	}
	row := getScratch[float32](classes)
	defer putScratch(row)
	maxBank := make([]float32, shape.Lanes)
	sumBank := make([]float32, shape.Lanes)
	for r := 0; r < batch; r++ {
		off := r * classes
		promoteBF16(row, logits[off:off+classes])
		losses[r], maxLogSumExp[r] = forwardRow(row, labels[r], smoothing, shape, maxBank, sumBank)
	}
}

// BaseSoftmaxXentBF16Narrow is BaseSoftmaxXentBF16 with BFloat16 outputs.
func BaseSoftmaxXentBF16Narrow(logits []hwy.BFloat16, labels []int64, smoothing float32, losses, maxLogSumExp []hwy.BFloat16, batch, classes int, shape GroupShape) {
	if batch == 0 || classes == 0 {
		return
	}
	row := getScratch[float32](classes)
	defer putScratch(row)
	maxBank := make([]float32, shape.Lanes)
	sumBank := make([]float32, shape.Lanes)
	for r := 0; r < batch; r++ {
		off := r * classes
		promoteBF16(row, logits[off:off+classes])
		loss, mlse := forwardRow(row, labels[r], smoothing, shape, maxBank, sumBank)
		losses[r] = hwy.Float32ToBFloat16(loss)
		maxLogSumExp[r] = hwy.Float32ToBFloat16(mlse)
	}
}

// BaseSoftmaxXentBackwardBF16 is the backward pass with every tensor in
// BFloat16 storage.
func BaseSoftmaxXentBackwardBF16(gradLoss, logits, maxLogSumExp []hwy.BFloat16, labels []int64, smoothing float32, grad []hwy.BFloat16, batch, classes int, shape GroupShape) {
	if batch == 0 || classes == 0 {
		return
	}
	if len(gradLoss) == 0 {
		clear(grad[:batch*classes])
		return
	}
	row := getScratch[float32](classes)
	defer putScratch(row)
	g := getScratch[float32](classes)
	defer putScratch(g)
	for r := 0; r < batch; r++ {
		off := r * classes
		promoteBF16(row, logits[off:off+classes])
		backwardRow(g, row, gradLoss[r].Float32(), maxLogSumExp[r].Float32(), labels[r], smoothing, shape)
		demoteBF16(grad[off:off+classes], g)
	}
}

// BaseSoftmaxXentBackwardBF16Wide is the backward pass for the wide-output
// forward: float32 upstream and statistics over BFloat16 logits, BFloat16
// gradient out.
func BaseSoftmaxXentBackwardBF16Wide(gradLoss []float32, logits []hwy.BFloat16, maxLogSumExp []float32, labels []int64, smoothing float32, grad []hwy.BFloat16, batch, classes int, shape GroupShape) {
	if batch == 0 || classes == 0 {
		return
	}
	if len(gradLoss) == 0 {
		clear(grad[:batch*classes])
		return
	}
	row := getScratch[float32](classes)
	defer putScratch(row)
	g := getScratch[float32](classes)
	defer putScratch(g)
	for r := 0; r < batch; r++ {
		off := r * classes
		promoteBF16(row, logits[off:off+classes])
		backwardRow(g, row, gradLoss[r], maxLogSumExp[r], labels[r], smoothing, shape)
		demoteBF16(grad[off:off+classes], g)
	}
}

// SoftmaxXentBF16 validates, allocates and runs the BFloat16 forward pass
// with float32 outputs.
func SoftmaxXentBF16(logits []hwy.BFloat16, labels []int64, batch, classes int, smoothing float32) (losses, maxLogSumExp []float32, err error) {
	if err := checkForwardArgs(len(logits), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, nil, err
	}
	losses = make([]float32, batch)
	maxLogSumExp = make([]float32, batch)
	if batch == 0 {
		return losses, maxLogSumExp, nil
	}
	BaseSoftmaxXentBF16(logits, labels, smoothing, losses, maxLogSumExp, batch, classes, ChooseGroupShape(classes))
	return losses, maxLogSumExp, nil
}

// SoftmaxXentBF16Narrow validates, allocates and runs the BFloat16 forward
// pass with BFloat16 outputs.
func SoftmaxXentBF16Narrow(logits []hwy.BFloat16, labels []int64, batch, classes int, smoothing float32) (losses, maxLogSumExp []hwy.BFloat16, err error) {
	if err := checkForwardArgs(len(logits), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, nil, err
	}
	losses = make([]hwy.BFloat16, batch)
	maxLogSumExp = make([]hwy.BFloat16, batch)
	if batch == 0 {
		return losses, maxLogSumExp, nil
	}
	BaseSoftmaxXentBF16Narrow(logits, labels, smoothing, losses, maxLogSumExp, batch, classes, ChooseGroupShape(classes))
	return losses, maxLogSumExp, nil
}

// SoftmaxXentBackwardBF16 validates, allocates and runs the all-BFloat16
// backward pass.
func SoftmaxXentBackwardBF16(gradLoss, logits, maxLogSumExp []hwy.BFloat16, labels []int64, batch, classes int, smoothing float32) ([]hwy.BFloat16, error) {
	if err := checkBackwardArgs(len(gradLoss), len(logits), len(maxLogSumExp), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, err
	}
	grad := make([]hwy.BFloat16, batch*classes)
	if batch == 0 || len(gradLoss) == 0 {
		return grad, nil
	}
	BaseSoftmaxXentBackwardBF16(gradLoss, logits, maxLogSumExp, labels, smoothing, grad, batch, classes, ChooseGroupShape(classes))
	return grad, nil
}

// SoftmaxXentBackwardBF16Wide validates, allocates and runs the backward
// pass matching SoftmaxXentBF16 outputs.
func SoftmaxXentBackwardBF16Wide(gradLoss []float32, logits []hwy.BFloat16, maxLogSumExp []float32, labels []int64, batch, classes int, smoothing float32) ([]hwy.BFloat16, error) {
	if err := checkBackwardArgs(len(gradLoss), len(logits), len(maxLogSumExp), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, err
	}
	grad := make([]hwy.BFloat16, batch*classes)
	if batch == 0 || len(gradLoss) == 0 {
		return grad, nil
	}
	BaseSoftmaxXentBackwardBF16Wide(gradLoss, logits, maxLogSumExp, labels, smoothing, grad, batch, classes, ChooseGroupShape(classes))
	return grad, nil
}
