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

// Float16 storage paths. Rows are promoted into pooled float32 scratch and
// run through the float32 row kernels, so all accumulation happens at 32
// bits; only storage is narrow. The Narrow variants demote the two output
// scalars per row at the very end, which makes narrow output exactly the
// demotion of the wide output.

func promoteF16(dst []float32, src []hwy.Float16) {
	for i, h := range src {
		dst[i] = hwy.Float16ToFloat32(h)
	}
}

func demoteF16(dst []hwy.Float16, src []float32) {
	for i, f := range src {
		dst[i] = hwy.Float32ToFloat16(f)
	}
}

// BaseSoftmaxXentF16 is the forward pass for Float16 logits with float32
// outputs (the "half to float" mode). Arguments follow BaseSoftmaxXent.
func BaseSoftmaxXentF16(logits []hwy.Float16, labels []int64, smoothing float32, losses, maxLogSumExp []float32, batch, classes int, shape GroupShape) {
	if batch == 0 || classes == 0 {
		return
	}
	row := getScratch[float32](classes)
	defer putScratch(row)
	maxBank := make([]float32, shape.Lanes)
	sumBank := make([]float32, shape.Lanes)
	for r := 0; r < batch; r++ {
		off := r * classes
		promoteF16(row, logits[off:off+classes])
		losses[r], maxLogSumExp[r] = forwardRow(row, labels[r], smoothing, shape, maxBank, sumBank)
	}
}

// BaseSoftmaxXentF16Narrow is BaseSoftmaxXentF16 with Float16 outputs.
func BaseSoftmaxXentF16Narrow(logits []hwy.Float16, labels []int64, smoothing float32, losses, maxLogSumExp []hwy.Float16, batch, classes int, shape GroupShape) {
	if batch == 0 || classes == 0 {
		return
	}
	row := getScratch[float32](classes)
	defer putScratch(row)
	maxBank := make([]float32, shape.Lanes)
	sumBank := make([]float32, shape.Lanes)
	for r := 0; r < batch; r++ {
		off := r * classes
		promoteF16(row, logits[off:off+classes])
		loss, mlse := forwardRow(row, labels[r], smoothing, shape, maxBank, sumBank)
		losses[r] = hwy.Float32ToFloat16(loss)
		maxLogSumExp[r] = hwy.Float32ToFloat16(mlse)
	}
}

// BaseSoftmaxXentBackwardF16 is the backward pass with every tensor in
// Float16 storage.
func BaseSoftmaxXentBackwardF16(gradLoss, logits, maxLogSumExp []hwy.Float16, labels []int64, smoothing float32, grad []hwy.Float16, batch, classes int, shape GroupShape) {
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
		promoteF16(row, logits[off:off+classes])
		backwardRow(g, row, gradLoss[r].Float32(), maxLogSumExp[r].Float32(), labels[r], smoothing, shape)
		demoteF16(grad[off:off+classes], g)
	}
}

// BaseSoftmaxXentBackwardF16Wide is the backward pass for the wide-output
// forward: the upstream gradient and the cached statistics are float32, the
// logits and the resulting gradient stay Float16. This is the only width
// mixture the kernels support; gradient storage always follows the logits.
func BaseSoftmaxXentBackwardF16Wide(gradLoss []float32, logits []hwy.Float16, maxLogSumExp []float32, labels []int64, smoothing float32, grad []hwy.Float16, batch, classes int, shape GroupShape) {
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
		promoteF16(row, logits[off:off+classes])
		backwardRow(g, row, gradLoss[r], maxLogSumExp[r], labels[r], smoothing, shape)
		demoteF16(grad[off:off+classes], g)
	}
}

// SoftmaxXentF16 validates, allocates and runs the Float16 forward pass
// with float32 outputs.
func SoftmaxXentF16(logits []hwy.Float16, labels []int64, batch, classes int, smoothing float32) (losses, maxLogSumExp []float32, err error) {
	if err := checkForwardArgs(len(logits), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, nil, err
	}
	losses = make([]float32, batch)
	maxLogSumExp = make([]float32, batch)
	if batch == 0 {
		return losses, maxLogSumExp, nil
	}
	BaseSoftmaxXentF16(logits, labels, smoothing, losses, maxLogSumExp, batch, classes, ChooseGroupShape(classes))
	return losses, maxLogSumExp, nil
}

// SoftmaxXentF16Narrow validates, allocates and runs the Float16 forward
// pass with Float16 outputs.
func SoftmaxXentF16Narrow(logits []hwy.Float16, labels []int64, batch, classes int, smoothing float32) (losses, maxLogSumExp []hwy.Float16, err error) {
	if err := checkForwardArgs(len(logits), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, nil, err
	}
	losses = make([]hwy.Float16, batch)
	maxLogSumExp = make([]hwy.Float16, batch)
	if batch == 0 {
		return losses, maxLogSumExp, nil
	}
	BaseSoftmaxXentF16Narrow(logits, labels, smoothing, losses, maxLogSumExp, batch, classes, ChooseGroupShape(classes))
	return losses, maxLogSumExp, nil
}

// SoftmaxXentBackwardF16 validates, allocates and runs the all-Float16
// backward pass.
func SoftmaxXentBackwardF16(gradLoss, logits, maxLogSumExp []hwy.Float16, labels []int64, batch, classes int, smoothing float32) ([]hwy.Float16, error) {
	if err := checkBackwardArgs(len(gradLoss), len(logits), len(maxLogSumExp), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, err
	}
	grad := make([]hwy.Float16, batch*classes)
	if batch == 0 || len(gradLoss) == 0 {
		return grad, nil
	}
	BaseSoftmaxXentBackwardF16(gradLoss, logits, maxLogSumExp, labels, smoothing, grad, batch, classes, ChooseGroupShape(classes))
	return grad, nil
}

// SoftmaxXentBackwardF16Wide validates, allocates and runs the backward
// pass matching SoftmaxXentF16 outputs: float32 upstream and statistics
// over Float16 logits.
func SoftmaxXentBackwardF16Wide(gradLoss []float32, logits []hwy.Float16, maxLogSumExp []float32, labels []int64, batch, classes int, smoothing float32) ([]hwy.Float16, error) {
	if err := checkBackwardArgs(len(gradLoss), len(logits), len(maxLogSumExp), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, err
	}
	grad := make([]hwy.Float16, batch*classes)
	if batch == 0 || len(gradLoss) == 0 {
		return grad, nil
	}
	BaseSoftmaxXentBackwardF16Wide(gradLoss, logits, maxLogSumExp, labels, smoothing, grad, batch, classes, ChooseGroupShape(classes))
	return grad, nil
}
