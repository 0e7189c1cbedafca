// Package irprint renders an IR stream as a human-readable listing,
// one instruction per line, for the --dump-ir flag. It turns an
// in-memory representation back into text a person can read, and is a
// direct port of the original's dumpir.py, generalized to the larger
// opcode set this compiler's optimizer produces.
package irprint

import (
	"fmt"
	"io"

	"github.com/Urethramancer/bfcomp/internal/ir"
)

// Fprint writes one line per instruction in s to w.
func Fprint(w io.Writer, s ir.Stream) error {
	for _, op := range s {
		if _, err := fmt.Fprintln(w, Line(op)); err != nil {
			return err
		}
	}
	return nil
}

// Line formats a single instruction the way Fprint does, without
// requiring a Writer; useful for tests and for embedding in other
// diagnostics.
func Line(op ir.Op) string {
	switch op.Kind {
	case ir.ADD:
		return fmt.Sprintf("add(offset=%d, value=%d)", op.Off, op.N)
	case ir.SET:
		return fmt.Sprintf("set(offset=%d, value=%d)", op.Off, op.V)
	case ir.MOVE:
		return fmt.Sprintf("move(offset=%d)", op.Delta)
	case ir.MULCOPY:
		return fmt.Sprintf("mulcopy(src=%d, dest=%d, mul=%d)", op.Src, op.Dst, op.K)
	case ir.SCAN:
		return fmt.Sprintf("scan(offset=%d)", op.Stride)
	case ir.LOOP:
		return "loopstart"
	case ir.ENDLOOP:
		return "loopend"
	case ir.IF:
		return fmt.Sprintf("if(offset=%d)", op.Off)
	case ir.ENDIF:
		return "endif"
	case ir.INPUT:
		return "input"
	case ir.LOADOUT:
		return fmt.Sprintf("loadout(offset=%d, add=%d)", op.Off, op.Add)
	case ir.LOADOUTSET:
		return fmt.Sprintf("loadoutset(value=%d)", op.V)
	case ir.OUTPUT:
		return "output"
	default:
		return fmt.Sprintf("TOKEN %s NOT HANDLED", op.Kind)
	}
}
