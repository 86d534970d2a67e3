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
	"sync"

	"github.com/ajroetker/go-highway/hwy"
)

// Pools of scratch slices shared by the parallel drivers (per-worker banks)
// and the half-precision paths (per-call promotion buffers).

var scratchPoolF32 = sync.Pool{
	New: func() any { return &[]float32{} },
}

var scratchPoolF64 = sync.Pool{
	New: func() any { return &[]float64{} },
}

// getScratch gets a scratch slice of at least the given size from a pool.
// Contents are unspecified; the reduction code fills banks before use.
func getScratch[T hwy.Floats](size int) []T {
	var zero T
	switch any(zero).(type) {
	case float32:
		p := scratchPoolF32.Get().(*[]float32)
		if cap(*p) < size {
			*p = make([]float32, size)
		}
		*p = (*p)[:size]
		return any(*p).([]T)
	default:
		p := scratchPoolF64.Get().(*[]float64)
		if cap(*p) < size {
			*p = make([]float64, size)
		}
		*p = (*p)[:size]
		return any(*p).([]T)
	}
}

// putScratch returns a scratch slice to its pool.
func putScratch[T hwy.Floats](s []T) {
	switch v := any(s).(type) {
	case []float32:
		scratchPoolF32.Put(&v)
	case []float64:
		scratchPoolF64.Put(&v)
	}
}
