// Package interp is a Go-native, non-optimizing interpreter of the IR
// defined by internal/ir. It exists to serve as the differential-test
// oracle: running the same IR stream through the interpreter and
// through the compiled-and-executed binary must produce identical
// output. Unlike the original `bfinterp.py` this
// interpreter understands the full opcode set — MULCOPY, SCAN, IF,
// ENDIF, LOADOUT, LOADOUTSET — since the reference predates those
// optimizer rules and cannot differentiate streams that use them.
package interp

import (
	"io"

	"github.com/Urethramancer/bfcomp/internal/ir"
)

// tapeSize and origin mirror the code generator's BSS layout so that
// interpreted and compiled runs see the same addressable range: the
// generator's 8192-byte arena holds 1024 eight-byte cells.
const (
	tapeSize = 8192 / 8
	origin   = tapeSize / 2
)

// Machine is an abstract machine instance: a tape, a data pointer, and
// attached input/output streams.
type Machine struct {
	Tape []byte
	DP   int

	in      io.Reader
	out     io.Writer
	pending []byte
}

// NewMachine builds a Machine with a zeroed tape and DP at the origin,
// reading INPUT from in and writing OUTPUT to out.
func NewMachine(in io.Reader, out io.Writer) *Machine {
	return &Machine{
		Tape: make([]byte, tapeSize),
		DP:   origin,
		in:   in,
		out:  out,
	}
}

// Run executes s to completion (or until an error occurs). s need not
// be optimized; Run implements every opcode directly, so it is safe to
// run at any point in the optimization trajectory — which is what lets
// a test assert that optimized and unoptimized output match.
func (m *Machine) Run(s ir.Stream) error {
	match, err := matchBrackets(s)
	if err != nil {
		return err
	}

	for i := 0; i < len(s); i++ {
		op := s[i]
		switch op.Kind {
		case ir.ADD:
			m.Tape[m.DP+int(op.Off)] += byte(op.N)
		case ir.SET:
			m.Tape[m.DP+int(op.Off)] = byte(op.V)
		case ir.MOVE:
			m.DP += int(op.Delta)
		case ir.MULCOPY:
			src := m.Tape[m.DP+int(op.Src)]
			m.Tape[m.DP+int(op.Dst)] += byte(int64(src) * op.K)
		case ir.SCAN:
			for m.Tape[m.DP] != 0 {
				m.DP += int(op.Stride)
			}
		case ir.LOOP:
			if m.Tape[m.DP] == 0 {
				i = match[i]
			}
		case ir.ENDLOOP:
			if m.Tape[m.DP] != 0 {
				i = match[i]
			}
		case ir.IF:
			if m.Tape[m.DP+int(op.Off)] == 0 {
				i = match[i]
			}
		case ir.ENDIF:
			// No-op: reached only when the guard held.
		case ir.INPUT:
			if err := m.input(op.N); err != nil {
				return err
			}
		case ir.LOADOUT:
			v := m.Tape[m.DP+int(op.Off)] + byte(op.Add)
			m.pending = append(m.pending, v)
		case ir.LOADOUTSET:
			m.pending = append(m.pending, byte(op.V))
		case ir.OUTPUT:
			if len(m.pending) > 0 {
				if _, err := m.out.Write(m.pending); err != nil {
					return err
				}
			}
			m.pending = m.pending[:0]
		default:
			return ir.NewConsistencyError("interp", op.Kind, "no interpretation defined for this opcode")
		}
	}
	return nil
}

// input reads n bytes into tape[DP]. A read that returns 0 bytes (EOF)
// leaves the cell unchanged rather than zeroing it or setting it to 255.
func (m *Machine) input(n int64) error {
	buf := make([]byte, 1)
	for k := int64(0); k < n; k++ {
		read, err := m.in.Read(buf)
		if read > 0 {
			m.Tape[m.DP] = buf[0]
		}
		if err != nil && err != io.EOF {
			return err
		}
	}
	return nil
}

// matchBrackets precomputes, for every LOOP/ENDLOOP and IF/ENDIF pair,
// the index of its partner, so Run can jump directly instead of
// re-scanning. Mismatched nesting, whether it comes from unbalanced
// source brackets or from an optimized stream, is reported as an
// internal consistency failure.
func matchBrackets(s ir.Stream) (map[int]int, error) {
	match := make(map[int]int, len(s))
	var loops, ifs []int

	for i, op := range s {
		switch op.Kind {
		case ir.LOOP:
			loops = append(loops, i)
		case ir.ENDLOOP:
			if len(loops) == 0 {
				return nil, ir.NewConsistencyError("interp", op.Kind, "ENDLOOP with no matching LOOP")
			}
			top := loops[len(loops)-1]
			loops = loops[:len(loops)-1]
			match[top], match[i] = i, top
		case ir.IF:
			ifs = append(ifs, i)
		case ir.ENDIF:
			if len(ifs) == 0 {
				return nil, ir.NewConsistencyError("interp", op.Kind, "ENDIF with no matching IF")
			}
			top := ifs[len(ifs)-1]
			ifs = ifs[:len(ifs)-1]
			match[top], match[i] = i, top
		}
	}
	if len(loops) != 0 {
		return nil, ir.NewConsistencyError("interp", ir.LOOP, "unmatched LOOP at end of stream")
	}
	if len(ifs) != 0 {
		return nil, ir.NewConsistencyError("interp", ir.IF, "unmatched IF at end of stream")
	}
	return match, nil
}
