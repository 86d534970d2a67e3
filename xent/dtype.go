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

import "fmt"

// ScalarKind identifies an element type for callers that dispatch on
// runtime dtypes (tensor frontends, serialization layers). The typed entry
// points enforce the same rules through their signatures; ScalarKind exists
// so dynamic callers can check a width combination up front and get the
// same descriptive errors.
type ScalarKind uint8

const (
	F16 ScalarKind = iota
	BF16
	F32
	F64
)

// String returns the conventional lower-case dtype name.
func (k ScalarKind) String() string {
	switch k {
	case F16:
		return "float16"
	case BF16:
		return "bfloat16"
	case F32:
		return "float32"
	case F64:
		return "float64"
	}
	return "unknown"
}

// Size returns the storage size in bytes.
func (k ScalarKind) Size() int {
	switch k {
	case F16, BF16:
		return 2
	case F64:
		return 8
	}
	return 4
}

// Accum returns the accumulation kind for storage kind k: float32 for
// everything except float64, which accumulates in float64. Accumulation is
// never narrower than 32 bits.
func (k ScalarKind) Accum() ScalarKind {
	if k == F64 {
		return F64
	}
	return F32
}

// ForwardOutputKind resolves the element kind of the forward outputs
// (losses and statistics) for the given logits storage. narrowOutput
// requests outputs in the storage kind itself and is only meaningful for
// the 16-bit kinds; combining it with float32 or float64 storage is an
// error. Without it, outputs take the accumulation kind.
func ForwardOutputKind(storage ScalarKind, narrowOutput bool) (ScalarKind, error) {
	if !narrowOutput {
		return storage.Accum(), nil
	}
	if storage == F32 || storage == F64 {
		return 0, fmt.Errorf("%w: narrow output requires float16 or bfloat16 storage, got %s", ErrWidth, storage)
	}
	return storage, nil
}

// BackwardGradKind resolves the gradient element kind for an upstream
// gradient of kind upstream over logits of kind logits. The gradient always
// takes the logits storage. The upstream must either match the logits or be
// their accumulation kind (float32 over a 16-bit storage, produced by a
// wide-output forward); in particular an upstream narrower than the logits
// is rejected.
func BackwardGradKind(upstream, logits ScalarKind) (ScalarKind, error) {
	if upstream == logits || upstream == logits.Accum() {
		return logits, nil
	}
	if upstream.Size() < logits.Size() {
		return 0, fmt.Errorf("%w: %s upstream gradient narrower than %s logits", ErrWidth, upstream, logits)
	}
	return 0, fmt.Errorf("%w: %s upstream gradient incompatible with %s logits", ErrWidth, upstream, logits)
}
