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
	stdmath "math"

	"github.com/ajroetker/go-highway/hwy"
)

// Sentinel errors returned by the validating entry points. Wrapped errors
// carry the offending values; match categories with errors.Is.
var (
	// ErrShape reports slice lengths inconsistent with batch and classes.
	ErrShape = errors.New("xent: shape mismatch")
	// ErrSmoothing reports a smoothing factor outside [0, 1].
	ErrSmoothing = errors.New("xent: smoothing out of range")
	// ErrWidth reports an invalid storage/output width combination.
	ErrWidth = errors.New("xent: width mismatch")
)

// checkForwardArgs validates everything the forward pass needs before any
// kernel work starts. Labels are deliberately not range-checked; that
// mirrors the kernel contract and keeps validation O(1).
func checkForwardArgs(lenLogits, lenLabels, batch, classes int, smoothing float64) error {
	if batch < 0 || classes < 0 {
		return fmt.Errorf("%w: negative dimensions batch=%d classes=%d", ErrShape, batch, classes)
	}
	if batch > 0 && classes == 0 {
		return fmt.Errorf("%w: zero classes with batch=%d", ErrShape, batch)
	}
	if lenLogits != batch*classes {
		return fmt.Errorf("%w: len(logits)=%d, want batch*classes=%d", ErrShape, lenLogits, batch*classes)
	}
	if lenLabels != batch {
		return fmt.Errorf("%w: len(labels)=%d, want batch=%d", ErrShape, lenLabels, batch)
	}
	if stdmath.IsNaN(smoothing) || smoothing < 0 || smoothing > 1 {
		return fmt.Errorf("%w: smoothing=%v, want [0, 1]", ErrSmoothing, smoothing)
	}
	return nil
}

// checkBackwardArgs extends the forward checks with the backward inputs.
// lenGradLoss may be zero (meaning a zero upstream gradient) or batch.
func checkBackwardArgs(lenGradLoss, lenLogits, lenStats, lenLabels, batch, classes int, smoothing float64) error {
	if err := checkForwardArgs(lenLogits, lenLabels, batch, classes, smoothing); err != nil {
		return err
	}
	if lenStats != batch {
		return fmt.Errorf("%w: len(maxLogSumExp)=%d, want batch=%d", ErrShape, lenStats, batch)
	}
	if lenGradLoss != 0 && lenGradLoss != batch {
		return fmt.Errorf("%w: len(gradLoss)=%d, want 0 or batch=%d", ErrShape, lenGradLoss, batch)
	}
	return nil
}

// SoftmaxXent validates, allocates and runs the forward pass, returning the
// per-row losses and the cached max-log-sum-exp statistics. The statistic
// slice is what SoftmaxXentBackward consumes.
//
// A zero batch returns empty non-nil slices without touching the kernel.
// Labels are not validated: an out-of-range label panics inside the kernel.
func SoftmaxXent[T hwy.Floats](logits []T, labels []int64, batch, classes int, smoothing T) (losses, maxLogSumExp []T, err error) {
	if err := checkForwardArgs(len(logits), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, nil, err
	}
	losses = make([]T, batch)
	maxLogSumExp = make([]T, batch)
	if batch == 0 {
		return losses, maxLogSumExp, nil
	}
	BaseSoftmaxXent(logits, labels, smoothing, losses, maxLogSumExp, batch, classes, ChooseGroupShape(classes))
	return losses, maxLogSumExp, nil
}

// SoftmaxXentBackward validates, allocates and runs the backward pass,
// returning the gradient with the shape (and type) of logits.
//
// gradLoss of length zero is treated as an all-zero upstream gradient: the
// returned gradient is zero-filled and no kernel work runs.
func SoftmaxXentBackward[T hwy.Floats](gradLoss, logits, maxLogSumExp []T, labels []int64, batch, classes int, smoothing T) ([]T, error) {
	if err := checkBackwardArgs(len(gradLoss), len(logits), len(maxLogSumExp), len(labels), batch, classes, float64(smoothing)); err != nil {
		return nil, err
	}
	grad := make([]T, batch*classes)
	if batch == 0 || len(gradLoss) == 0 {
		return grad, nil
	}
	BaseSoftmaxXentBackward(gradLoss, logits, maxLogSumExp, labels, smoothing, grad, batch, classes, ChooseGroupShape(classes))
	return grad, nil
}
