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

// Package reduce provides the bank-based reduction primitive used by the
// xentropy kernels.
//
// A reduction runs in two stages. First, lanes-sized chunks of input are
// combined element-for-element into a fixed-size accumulator bank with
// Accumulate (or Accumulate2 for two reductions sharing one traversal).
// Second, Fold collapses the bank to a scalar with a halving tree followed
// by a single horizontal reduce at vector width. The bank plays the role a
// shared-memory tile plays on a GPU: slot i holds the running value for
// every input element whose index is congruent to i modulo the bank size.
//
// Banks are plain slices of the accumulation type. Their length must be a
// power of two at least as large as the SIMD vector width; the xent package
// sizes them with its launch-shape rule. Reset a bank with Fill before
// reusing it.
package reduce
