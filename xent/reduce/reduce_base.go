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

package reduce

import (
	"math"

	"github.com/ajroetker/go-highway/hwy"
)

// Op selects the combining operation of a reduction.
type Op uint8

const (
	// Max keeps the running maximum.
	Max Op = iota
	// Sum keeps the running total.
	Sum
)

// String returns the lower-case name of the operation.
func (op Op) String() string {
	switch op {
	case Max:
		return "max"
	case Sum:
		return "sum"
	}
	return "unknown"
}

// Identity returns the accumulator starting value for op.
//
// Max starts from the most negative finite value of T rather than -Inf, so
// a bank slot that never receives data folds to a finite value. Sum starts
// from zero. Folding a freshly filled bank therefore yields the identity
// itself.
func Identity[T hwy.Floats](op Op) T {
	if op == Sum {
		return 0
	}
	var zero T
	if _, ok := any(zero).(float32); ok {
		return T(lowestF32)
	}
	return T(lowestF64)
}

var (
	lowestF32 float32 = -math.MaxFloat32
	lowestF64 float64 = -math.MaxFloat64
)

// Combine applies op to a pair of scalars.
//
// Max follows Go comparison semantics, so NaN inputs propagate the
// accumulator rather than the NaN.
func Combine[T hwy.Floats](op Op, a, b T) T {
	if op == Max {
		if b > a {
			return b
		}
		return a
	}
	return a + b
}

// CombineVec applies op lane-for-lane to a pair of vectors.
func CombineVec[T hwy.Floats](op Op, a, b hwy.Vec[T]) hwy.Vec[T] {
	if op == Max {
		return hwy.Max(a, b)
	}
	return hwy.Add(a, b)
}

// Fill resets every slot of bank to the identity of op.
func Fill[T hwy.Floats](op Op, bank []T) {
	id := Identity[T](op)
	for i := range bank {
		bank[i] = id
	}
}

// Accumulate combines one lanes-sized chunk into bank, element for element:
// bank[i] = combine(bank[i], chunk[i]).
//
// len(chunk) must equal len(bank), and the bank length must be a multiple
// of the vector width (any power of two at least the width satisfies this).
// Partial chunks are the caller's problem: combine them slot by slot with
// Combine.
func Accumulate[T hwy.Floats](op Op, bank, chunk []T) {
	lanes := hwy.Zero[T]().NumLanes()
	for i := 0; i+lanes <= len(chunk); i += lanes {
		acc := CombineVec(op, hwy.Load(bank[i:]), hwy.Load(chunk[i:]))
		hwy.Store(acc, bank[i:])
	}
}

// Accumulate2 combines one chunk into two banks under two different
// operations in a single traversal. This is the fused two-value reduction
// used by the forward kernel's first pass: the chunk is loaded once and
// feeds both the max bank and the sum bank.
func Accumulate2[T hwy.Floats](opA, opB Op, bankA, bankB, chunk []T) {
	lanes := hwy.Zero[T]().NumLanes()
	for i := 0; i+lanes <= len(chunk); i += lanes {
		c := hwy.Load(chunk[i:])
		a := CombineVec(opA, hwy.Load(bankA[i:]), c)
		b := CombineVec(opB, hwy.Load(bankB[i:]), c)
		hwy.Store(a, bankA[i:])
		hwy.Store(b, bankB[i:])
	}
}

// Fold collapses bank to a single scalar under op.
//
// The upper half of the active prefix is combined into the lower half until
// the prefix shrinks to vector width, then one horizontal reduce finishes
// the job. The fold consumes the bank: slot contents are overwritten, so
// Fill before the next reduction.
func Fold[T hwy.Floats](op Op, bank []T) T {
	n := len(bank)
	lanes := hwy.Zero[T]().NumLanes()
	if n < lanes {
		acc := Identity[T](op)
		for _, v := range bank {
			acc = Combine(op, acc, v)
		}
		return acc
	}
	for half := n / 2; half >= lanes; half /= 2 {
		for i := 0; i+lanes <= half; i += lanes {
			lo := hwy.Load(bank[i:])
			hi := hwy.Load(bank[i+half:])
			hwy.Store(CombineVec(op, lo, hi), bank[i:])
		}
	}
	v := hwy.Load(bank[:lanes])
	if op == Max {
		return hwy.ReduceMax(v)
	}
	return hwy.ReduceSum(v)
}

// Fold2 folds two banks in lockstep, one halving pass driving both. Returns
// the two scalars in bank order. Like Fold, it consumes both banks.
func Fold2[T hwy.Floats](opA, opB Op, bankA, bankB []T) (T, T) {
	n := len(bankA)
	lanes := hwy.Zero[T]().NumLanes()
	if n != len(bankB) || n < lanes {
		return Fold(opA, bankA), Fold(opB, bankB)
	}
	for half := n / 2; half >= lanes; half /= 2 {
		for i := 0; i+lanes <= half; i += lanes {
			a := CombineVec(opA, hwy.Load(bankA[i:]), hwy.Load(bankA[i+half:]))
			b := CombineVec(opB, hwy.Load(bankB[i:]), hwy.Load(bankB[i+half:]))
			hwy.Store(a, bankA[i:])
			hwy.Store(b, bankB[i:])
		}
	}
	va := hwy.Load(bankA[:lanes])
	vb := hwy.Load(bankB[:lanes])
	return horizontal(opA, va), horizontal(opB, vb)
}

func horizontal[T hwy.Floats](op Op, v hwy.Vec[T]) T {
	if op == Max {
		return hwy.ReduceMax(v)
	}
	return hwy.ReduceSum(v)
}
