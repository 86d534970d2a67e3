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

// Launch-shape constants. A "group" is the per-row working set: a bank of
// Lanes accumulator slots that the strided loops combine chunks into.
const (
	// WarpLanes is the minimum group width. Groups never shrink below it,
	// even for rows narrower than one chunk.
	WarpLanes = 32

	// MaxGroupLanes caps the group width and therefore the bank size.
	MaxGroupLanes = 1024

	// DefaultILP is the number of consecutive chunks combined per step of
	// the strided loops, keeping that many independent accumulations in
	// flight.
	DefaultILP = 2
)

// GroupShape describes how a row is carved into chunks: Lanes is the chunk
// (and bank) width, ILP the number of chunks per loop step.
//
// Lanes must be a power of two and a multiple of the SIMD vector width;
// ILP must be at least 1. ChooseGroupShape always satisfies both.
type GroupShape struct {
	Lanes int
	ILP   int
}

// Step returns the number of elements consumed per loop step.
func (s GroupShape) Step() int {
	return s.Lanes * s.ILP
}

// ChooseGroupShape picks the group shape for a row of the given width: the
// largest power of two not exceeding min(classes/DefaultILP, MaxGroupLanes),
// floored to WarpLanes. Narrow rows therefore still get a WarpLanes-wide
// bank and are handled entirely by the scalar tail.
func ChooseGroupShape(classes int) GroupShape {
	return GroupShape{Lanes: groupLanes(classes, DefaultILP), ILP: DefaultILP}
}

func groupLanes(classes, ilp int) int {
	n := classes / ilp
	if n > MaxGroupLanes {
		n = MaxGroupLanes
	}
	lanes := 1
	for lanes*2 <= n {
		lanes *= 2
	}
	if lanes < WarpLanes {
		lanes = WarpLanes
	}
	return lanes
}
