// Package parser lowers raw Brainfuck source text into a flat IR
// stream (see internal/ir). The parser is purely syntactic: it
// performs no bracket-balancing check and no optimization.
package parser

import "github.com/Urethramancer/bfcomp/internal/ir"

// Parse discards every byte outside `+ - < > . , [ ]` and lowers the
// remainder one character at a time into IR instructions.
//
//	+  ADD(0, +1)
//	-  ADD(0, -1)
//	>  MOVE(+1)
//	<  MOVE(-1)
//	[  LOOP
//	]  ENDLOOP
//	,  INPUT(1)
//	.  LOADOUT(0, 0) then OUTPUT
//
// Unmatched brackets are not diagnosed here; they pass through the
// optimizer unchanged and internal/codegen rejects them with an
// *ir.ConsistencyError, which internal/driver returns as an error.
func Parse(src string) ir.Stream {
	var out ir.Stream
	for _, r := range src {
		switch r {
		case '+':
			out = append(out, ir.Add(0, 1))
		case '-':
			out = append(out, ir.Add(0, -1))
		case '>':
			out = append(out, ir.Move(1))
		case '<':
			out = append(out, ir.Move(-1))
		case '[':
			out = append(out, ir.Loop())
		case ']':
			out = append(out, ir.EndLoop())
		case ',':
			out = append(out, ir.Input(1))
		case '.':
			out = append(out, ir.LoadOut(0, 0))
			out = append(out, ir.Output())
		}
	}
	return out
}
