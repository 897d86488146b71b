// Copyright 2025 The uor-labs Authors
// This file is part of the uor-labs library.
//
// The uor-labs library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The uor-labs library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the uor-labs library. If not, see <http://www.gnu.org/licenses/>.

package vm

import "math/big"

// OutputKind classifies entries on the output queue.
type OutputKind uint8

const (
	// KindPrint tags values emitted by PRINT.
	KindPrint OutputKind = iota
	// KindOutput tags values emitted by OUTPUT.
	KindOutput
	// KindTrace tags values emitted by TRACE.
	KindTrace
	// KindBrk tags BRK markers; the entry carries no value.
	KindBrk
)

// String returns the tag name used in rendered trace output.
func (k OutputKind) String() string {
	switch k {
	case KindPrint:
		return "print"
	case KindOutput:
		return "output"
	case KindTrace:
		return "trace"
	case KindBrk:
		return "brk"
	}
	return "unknown"
}

// OutputEntry is one element of the output queue.
type OutputEntry struct {
	Kind  OutputKind
	Value *big.Int // nil for KindBrk
}

// Render returns the entry's textual form. Values in the printable ASCII
// range 32..126 render as that character; everything else renders in
// decimal. BRK markers render as the literal BRK.
func (e OutputEntry) Render() string {
	if e.Kind == KindBrk {
		return "BRK"
	}
	if e.Value.IsInt64() {
		if n := e.Value.Int64(); n >= 32 && n <= 126 {
			return string(rune(n))
		}
	}
	return e.Value.String()
}
