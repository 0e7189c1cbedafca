package optimize

import "github.com/Urethramancer/bfcomp/internal/ir"

// stage2 recognizes loop- and run-level patterns over the stream
// stage1 produced: R5 (scan loops), R3/R4/R9 (clear loops,
// multiply-move loops, and their IF-guarding), R7 (SET-then-MULCOPY
// strength reduction), R10 (output coalescing for a single adjacent
// pair), and a restricted form of R8 that batches a straight-line run
// of ADD/SET/MOVE/LOADOUT/LOADOUTSET/OUTPUT into one flush when the
// run contains at least one loader. The fully general shift-sinking
// pass lives in stage3; this stage exists because these five patterns
// each need to look ahead/behind across whole sub-runs before deciding
// whether to rewrite, which is awkward to express as the single
// running accumulator stage3 uses.
func stage2(in ir.Stream) ir.Stream {
	var out ir.Stream
	n := len(in)

	for i := 0; i < n; i++ {
		optimized := false

		// R5: scan loop.
		if i < n-2 && in[i].Kind == ir.LOOP && in[i+1].Kind == ir.MOVE && in[i+2].Kind == ir.ENDLOOP {
			out = append(out, ir.Scan(in[i+1].Delta))
			optimized = true
			i += 2
		}

		// R3/R4/R9: clear-loop / multiply-move-loop recognition.
		var advance int
		if !optimized && in[i].Kind == ir.LOOP {
			var ok bool
			out, ok, advance = tryReduceLoop(out, in, i)
			if ok {
				optimized = true
				i = advance
			}
		}

		// R7: SET-then-MULCOPY strength reduction.
		if !optimized && i < n-1 && in[i].Kind == ir.SET && in[i+1].Kind == ir.MULCOPY && in[i].Off == in[i+1].Src {
			offset, value := in[i].Off, in[i].V
			j := i + 1
			for j < n-1 && in[j].Kind == ir.MULCOPY && in[j].Src == offset {
				out = append(out, ir.Add(in[j].Dst, value*in[j].K))
				j++
			}
			out = append(out, ir.Set(offset, value))
			i = j - 1
			optimized = true
		}

		// R10: drop the OUTPUT between two adjacent loaders.
		if !optimized && i < n-2 && isLoader(in[i]) && in[i+1].Kind == ir.OUTPUT && isLoader(in[i+2]) {
			out = append(out, in[i], in[i+2])
			i += 2
			optimized = true
		}

		// Restricted R8: bundle a straight-line ADD/SET/MOVE run that
		// contains at least one loader into a single flush.
		if !optimized && i < n-2 && (in[i].Kind == ir.ADD || in[i].Kind == ir.MOVE || in[i].Kind == ir.SET) {
			var ok bool
			out, ok, advance = tryBundleRun(out, in, i)
			if ok {
				i = advance
				optimized = true
			}
		}

		if !optimized {
			out = append(out, in[i])
		}
	}

	return out
}

func isLoader(op ir.Op) bool {
	return op.Kind == ir.LOADOUT || op.Kind == ir.LOADOUTSET
}

// tryReduceLoop inspects the LOOP at in[i] and, if its body consists
// solely of ADD and nonzero-offset SET instructions, rewrites it per
// R3 (clear loop), R4 (multiply-move loop), or leaves it (non-terminating
// or not reducible). It returns the new end index (the ENDLOOP
// position) on success.
func tryReduceLoop(out ir.Stream, in ir.Stream, i int) (ir.Stream, bool, int) {
	n := len(in)
	adds := newOrderedMap()
	sets := newOrderedMap()

	j := i + 1
	reachedEnd := false
	for j < n {
		if in[j].Kind == ir.ENDLOOP {
			reachedEnd = true
			break
		}
		switch {
		case in[j].Kind == ir.ADD:
			if sets.Has(in[j].Off) {
				v, _ := sets.Get(in[j].Off)
				sets.Set(in[j].Off, v+in[j].N)
			} else {
				adds.Add(in[j].Off, in[j].N)
			}
		case in[j].Kind == ir.SET && in[j].Off != 0:
			adds.Delete(in[j].Off)
			sets.Set(in[j].Off, in[j].V)
		default:
			return out, false, 0
		}
		j++
	}
	if !reachedEnd {
		return out, false, 0
	}

	zero, hasZero := adds.Get(0)
	if !hasZero {
		// Counter cell at offset 0 is never touched: not reducible,
		// left intact (it either never runs, or it hangs).
		return out, false, 0
	}

	switch {
	case adds.Len() == 1:
		if zero == 0 {
			// Net zero effect on the counter: the loop would spin
			// forever once entered. Must not be specialized away.
			return out, false, 0
		}
		if sets.Len() > 0 {
			out = append(out, ir.If(0))
			for _, off := range sets.Keys() {
				v, _ := sets.Get(off)
				out = append(out, ir.Set(off, v))
			}
		}
		out = append(out, ir.Set(0, 0))
		if sets.Len() > 0 {
			out = append(out, ir.EndIf())
		}
		return out, true, j

	case zero == -1:
		if sets.Len() > 0 {
			out = append(out, ir.If(0))
			for _, off := range sets.Keys() {
				v, _ := sets.Get(off)
				out = append(out, ir.Set(off, v))
			}
		}
		for _, off := range adds.Keys() {
			if off == 0 {
				continue
			}
			v, _ := adds.Get(off)
			out = append(out, ir.MulCopy(0, off, v))
		}
		if sets.Len() > 0 {
			out = append(out, ir.EndIf())
		}
		out = append(out, ir.Set(0, 0))
		return out, true, j

	default:
		// Counter neither clears to a known constant nor decrements
		// exactly once per iteration: not reducible by R3/R4.
		return out, false, 0
	}
}

type outputItem struct {
	isSet  bool
	offset int64
	add    int64
	value  int64
}

// tryBundleRun consumes the maximal straight-line run of
// ADD/SET/MOVE/LOADOUT/LOADOUTSET/OUTPUT starting at in[i] and, if it
// contains at least one loader and at least one ADD/SET/MOVE, rewrites
// it as: all loaders (offsets corrected for any MOVE seen), one
// OUTPUT, then the consolidated SETs/ADDs, then a single trailing MOVE.
func tryBundleRun(out ir.Stream, in ir.Stream, i int) (ir.Stream, bool, int) {
	n := len(in)
	adds := newOrderedMap()
	sets := newOrderedMap()
	var outputs []outputItem
	var shift int64
	shifted := false

	j := i
	for j < n {
		op := in[j]
		switch op.Kind {
		case ir.ADD:
			adds.Add(op.Off+shift, op.N)
		case ir.SET:
			off := op.Off + shift
			adds.Set(off, 0)
			sets.Set(off, op.V)
		case ir.LOADOUT:
			off := op.Off + shift
			if sets.Has(off) {
				sv, _ := sets.Get(off)
				av, _ := adds.Get(off)
				outputs = append(outputs, outputItem{isSet: true, value: sv + av + op.Add})
			} else {
				av, _ := adds.Get(off)
				outputs = append(outputs, outputItem{offset: off, add: av + op.Add})
			}
		case ir.LOADOUTSET:
			outputs = append(outputs, outputItem{isSet: true, value: op.V})
		case ir.MOVE:
			shift += op.Delta
			shifted = true
		case ir.OUTPUT:
			// absorbed; the run emits a single OUTPUT at the end.
		default:
			j--
			goto done
		}
		j++
	}
done:
	if len(outputs) == 0 || (adds.Len() == 0 && sets.Len() == 0 && !shifted) {
		return out, false, 0
	}

	for _, item := range outputs {
		if item.isSet {
			out = append(out, ir.LoadOutSet(item.value))
		} else {
			out = append(out, ir.LoadOut(item.offset, item.add))
		}
	}
	out = append(out, ir.Output())
	for _, off := range sets.Keys() {
		v, _ := sets.Get(off)
		av, _ := adds.Get(off)
		out = append(out, ir.Set(off, v+av))
	}
	for _, off := range adds.Keys() {
		v, _ := adds.Get(off)
		if v != 0 && !sets.Has(off) {
			out = append(out, ir.Add(off, v))
		}
	}
	if shift != 0 {
		out = append(out, ir.Move(shift))
	}
	return out, true, j
}
