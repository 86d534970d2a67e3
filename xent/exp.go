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
	"github.com/ajroetker/go-highway/hwy/contrib/math"
)

// Chunk-level exponential helpers shared by the forward and backward
// kernels. float32 takes the vectorized BaseExpVec path; float64 stays on
// scalar stdmath.Exp because the vector polynomial is tuned for float32
// accuracy and would cap double precision around 1e-7 relative error.

// expAccum adds exp(chunk[i] - shift) into bank[i] across one lanes-sized
// chunk. len(chunk) must equal len(bank).
func expAccum[T hwy.Floats](bank, chunk []T, shift T) {
	switch any(shift).(type) {
	case float32:
		lanes := hwy.Zero[T]().NumLanes()
		vShift := hwy.Set(shift)
		for i := 0; i+lanes <= len(chunk); i += lanes {
			e := math.BaseExpVec(hwy.Sub(hwy.Load(chunk[i:]), vShift))
			hwy.Store(hwy.Add(hwy.Load(bank[i:]), e), bank[i:])
		}
	default:
		for i := range chunk {
			bank[i] += T(stdmath.Exp(float64(chunk[i] - shift)))
		}
	}
}

// expMap writes dst[i] = scale*(exp(src[i] - shift) - bias) across one
// chunk. This is the backward map with scale = upstream gradient and
// bias = smoothing/classes.
func expMap[T hwy.Floats](dst, src []T, shift, scale, bias T) {
	switch any(shift).(type) {
	case float32:
		lanes := hwy.Zero[T]().NumLanes()
		vShift := hwy.Set(shift)
		vScale := hwy.Set(scale)
		vBias := hwy.Set(bias)
		for i := 0; i+lanes <= len(src); i += lanes {
			e := math.BaseExpVec(hwy.Sub(hwy.Load(src[i:]), vShift))
			hwy.Store(hwy.Mul(vScale, hwy.Sub(e, vBias)), dst[i:])
		}
	default:
		for i := range src {
			dst[i] = scale * (T(stdmath.Exp(float64(src[i]-shift))) - bias)
		}
	}
}

// expScalar is the tail counterpart of expAccum and expMap.
func expScalar[T hwy.Floats](x T) T {
	return T(stdmath.Exp(float64(x)))
}
