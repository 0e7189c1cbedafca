package optimize

import "github.com/Urethramancer/bfcomp/internal/ir"

// stage1 applies R1 (run-length coalescing of ADD(0,_) and MOVE(_)) and
// R2 (initial-zero specialization: ADD(0,_) becomes SET(0,_), ADD at any
// offset becomes SET while the tape is still provably all-zero, and
// LOADOUT becomes LOADOUTSET) in a single left-to-right pass.
//
// The all-zero flag holds until the first ADD, SET, or INPUT — at that
// point some cell may be nonzero and the flag clears for good. Because
// the flag is global rather than per-offset, once any cell is touched
// every later LOADOUT/ADD is handled by the ordinary paths below
// instead.
//
// The pending add/move accumulators are flushed only when the next
// instruction cannot itself extend the run (non-ADD for the add
// accumulator, non-MOVE for the move one); an ADD at a different,
// unrelated offset does not force a flush, so its insertion order
// relative to the coalesced run can shift. This is safe because ADD
// and MOVE at disjoint offsets/positions commute — only the final
// per-offset sum (and net DP shift) is observable.
func stage1(in ir.Stream) ir.Stream {
	var out ir.Stream
	var add, move int64
	allZero := true

	for _, op := range in {
		if add != 0 && op.Kind != ir.ADD {
			out = append(out, ir.Add(0, add))
			add = 0
		} else if move != 0 && op.Kind != ir.MOVE {
			out = append(out, ir.Move(move))
			move = 0
		}

		switch {
		case op.Kind == ir.ADD && op.Off == 0:
			if allZero {
				out = append(out, ir.Set(0, op.N))
			} else {
				add += op.N
			}
		case op.Kind == ir.ADD && allZero:
			out = append(out, ir.Set(op.Off, op.N))
		case op.Kind == ir.LOADOUT && allZero:
			out = append(out, ir.LoadOutSet(op.Add))
		case op.Kind == ir.MOVE:
			move += op.Delta
		default:
			out = append(out, op)
		}

		if op.Kind == ir.ADD || op.Kind == ir.SET || op.Kind == ir.INPUT {
			allZero = false
		}
	}

	if add != 0 {
		out = append(out, ir.Add(0, add))
	} else if move != 0 {
		out = append(out, ir.Move(move))
	}

	return out
}
