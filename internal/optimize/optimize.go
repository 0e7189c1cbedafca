// Package optimize implements a fixed-point IR rewriter: rules R1–R10
// applied repeatedly until the stream stops changing. Each pass
// allocates a brand new stream; the previous one is simply discarded
// once the structural-equality check is made (see ir.Stream.Equal),
// the same repeat-until-stable shape an assembler uses when a sizing
// pass has to settle before a final layout is emitted.
package optimize

import (
	"fmt"

	"github.com/Urethramancer/bfcomp/internal/ir"
)

// Options controls optional, non-semantic optimizer behavior.
type Options struct {
	// OnNonTerminatingLoop, if non-nil, is invoked for each LOOP whose
	// own body (nested loops not counted) contains no ADD or SET at
	// offset 0 (the case R3/R4 deliberately leave untouched, because
	// the loop either never runs at all or hangs forever). The scan
	// runs on every FixedPoint iteration, so the same loop is usually
	// reported more than once. This is purely an optional diagnostic:
	// it never changes the emitted program, only whether something is
	// reported. index is the position of the LOOP in the stream being
	// scanned (changes across iterations as the stream shrinks).
	OnNonTerminatingLoop func(index int)
}

// pass runs the three rewrite stages once, in order, and returns the
// resulting stream. A single pass is not guaranteed to be a fixed
// point; FixedPoint drives pass to convergence.
func pass(in ir.Stream) ir.Stream {
	return stage3(stage2(stage1(in)))
}

// maxIterations bounds how many times FixedPoint will re-apply pass
// before concluding that a rule has failed to be monotone: convergence
// must happen well within this bound, or something is rewriting the
// stream in a cycle instead of shrinking it. The bound scales with the
// input size because each pass can at most remove instructions or
// shrink control structures; it should never need more than a small
// multiple of the stream length to settle.
func maxIterations(initialLen int) int {
	return initialLen*4 + 64
}

// FixedPoint repeatedly applies pass to in until the result stops
// changing (structural equality, ir.Stream.Equal) and returns the
// converged stream.
func FixedPoint(in ir.Stream, opt Options) (ir.Stream, error) {
	cur := in
	limit := maxIterations(len(in))
	for i := 0; i < limit; i++ {
		if opt.OnNonTerminatingLoop != nil {
			reportNonTerminatingLoops(cur, opt.OnNonTerminatingLoop)
		}
		next := pass(cur)
		if next.Equal(cur) {
			return next, nil
		}
		cur = next
	}
	return nil, fmt.Errorf("optimize: did not converge after %d iterations (len=%d); this is a bug in rule monotonicity", limit, len(in))
}

// reportNonTerminatingLoops scans s for LOOPs whose body never writes
// offset 0 and calls report with each one's index.
func reportNonTerminatingLoops(s ir.Stream, report func(index int)) {
	var loopStack []int
	var touchesZero []bool
	for i, op := range s {
		switch op.Kind {
		case ir.LOOP:
			loopStack = append(loopStack, i)
			touchesZero = append(touchesZero, false)
		case ir.ENDLOOP:
			if len(loopStack) == 0 {
				continue
			}
			top := loopStack[len(loopStack)-1]
			if !touchesZero[len(touchesZero)-1] {
				report(top)
			}
			loopStack = loopStack[:len(loopStack)-1]
			touchesZero = touchesZero[:len(touchesZero)-1]
		case ir.ADD, ir.SET:
			if op.Off == 0 && len(touchesZero) > 0 {
				touchesZero[len(touchesZero)-1] = true
			}
		}
	}
}
