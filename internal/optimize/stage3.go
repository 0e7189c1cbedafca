package optimize

import "github.com/Urethramancer/bfcomp/internal/ir"

// stage3 is the general form of R8 (shift-sinking). It walks the whole
// stream with a single running `shift` accumulator and a per-offset
// ops/vals table (both insertion-ordered — see orderedmap.go), folding
// every MOVE it meets into later offsets instead of emitting it, and
// coalescing consecutive ADD/SET instructions into one instruction per
// offset. The table is flushed, in insertion order, immediately before
// any instruction that is not itself an ADD or SET — this is what
// makes MULCOPY, IF/ENDIF, LOOP/ENDLOOP/INPUT/SCAN/LOADOUT/LOADOUTSET
// and OUTPUT each see a consistent memory state.
//
// LOOP, ENDLOOP, INPUT, SCAN, LOADOUT, and LOADOUTSET additionally
// force the accumulated shift itself to be materialized as a MOVE
// immediately beforehand (ENDLOOP takes its MOVE just before the
// ENDLOOP, so the MOVE closes out the loop body rather than leaking
// past it). MULCOPY, IF, ENDIF, and OUTPUT
// do not force the shift out — IF and MULCOPY instead take the shift
// folded directly into their own offsets, so it keeps accumulating
// across them.
//
// Any ops/vals or shift left over at the very end of the stream is
// simply dropped: it would have no observable effect (dead on exit).
func stage3(in ir.Stream) ir.Stream {
	var out ir.Stream
	var shift int64
	vals := newOrderedMap()
	kind := newOps()

	flush := func() {
		for _, off := range kind.Keys() {
			v, _ := vals.Get(off)
			k, _ := kind.Get(off)
			switch k {
			case opAdd:
				out = append(out, ir.Add(off, v))
			case opSet:
				out = append(out, ir.Set(off, v))
			}
		}
		vals.Clear()
		kind.Clear()
	}

	flushShift := func() {
		if shift != 0 {
			out = append(out, ir.Move(shift))
			shift = 0
		}
	}

	for _, op := range in {
		if op.Kind != ir.ADD && op.Kind != ir.SET {
			flush()
		}

		switch op.Kind {
		case ir.ADD:
			off := op.Off + shift
			if _, ok := kind.Get(off); !ok {
				kind.Set(off, opAdd)
			}
			vals.Add(off, op.N)
		case ir.SET:
			off := op.Off + shift
			if _, ok := kind.Get(off); ok {
				kind.Delete(off)
				vals.Delete(off)
			}
			kind.Set(off, opSet)
			vals.Set(off, op.V)
		case ir.MULCOPY:
			out = append(out, ir.MulCopy(op.Src+shift, op.Dst+shift, op.K))
		case ir.IF:
			out = append(out, ir.If(shift+op.Off))
		case ir.ENDIF:
			out = append(out, ir.EndIf())
		case ir.MOVE:
			shift += op.Delta
		case ir.OUTPUT:
			out = append(out, op)
		case ir.LOOP, ir.ENDLOOP, ir.INPUT, ir.SCAN, ir.LOADOUT, ir.LOADOUTSET:
			flushShift()
			out = append(out, op)
		}
	}

	return out
}
