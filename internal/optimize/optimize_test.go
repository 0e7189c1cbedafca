package optimize_test

import (
	"testing"

	"github.com/Urethramancer/bfcomp/internal/ir"
	"github.com/Urethramancer/bfcomp/internal/optimize"
	"github.com/Urethramancer/bfcomp/internal/parser"
)

func assertStream(t *testing.T, name string, got, want ir.Stream) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("[%s] mismatch\nexpected: %+v\ngot:      %+v", name, want, got)
	}
}

func optimizeSrc(t *testing.T, src string) ir.Stream {
	t.Helper()
	out, err := optimize.FixedPoint(parser.Parse(src), optimize.Options{})
	if err != nil {
		t.Fatalf("optimize(%q): %v", src, err)
	}
	return out
}

// Scenario 1: "+++." optimizes to a single coalesced LOADOUTSET/OUTPUT
// pair; the trailing SET(0,3) is dead on exit.
func TestFixedPoint_PlusPlusPlusDot(t *testing.T) {
	got := optimizeSrc(t, "+++.")
	want := ir.Stream{ir.LoadOutSet(3), ir.Output()}
	assertStream(t, "+++.", got, want)
}

// Scenario 4: "+[]" is an infinite loop and must be left intact.
func TestFixedPoint_InfiniteLoopPreserved(t *testing.T) {
	got := optimizeSrc(t, "+[]")
	want := ir.Stream{ir.Set(0, 1), ir.Loop(), ir.EndLoop()}
	assertStream(t, "+[]", got, want)
}

// "[]" at program start: guard cell is zero, body is empty (no adds),
// so R3 does not fire (adds map is empty, 0 not present) and the loop
// is left as an always-skipped construct for the code generator.
func TestFixedPoint_EmptyLoopAtStart(t *testing.T) {
	got := optimizeSrc(t, "[]")
	want := ir.Stream{ir.Loop(), ir.EndLoop()}
	assertStream(t, "[]", got, want)
}

// Scenario 3: "++[->+++<]" with an initially-zero tape multiplies the
// counter into cell 1 by 3 and clears the counter; no loop survives.
func TestFixedPoint_MultiplyMoveLoop(t *testing.T) {
	got := optimizeSrc(t, "++[->+++<]")
	for _, op := range got {
		if op.Kind == ir.LOOP || op.Kind == ir.ENDLOOP {
			t.Fatalf("expected no surviving loop, got %+v", got)
		}
	}
	foundMulCopy := false
	for _, op := range got {
		if op.Kind == ir.MULCOPY {
			foundMulCopy = true
			if op.Src != 0 || op.Dst != 1 || op.K != 3 {
				t.Errorf("expected MULCOPY(0,1,3), got %+v", op)
			}
		}
	}
	if !foundMulCopy {
		t.Fatalf("expected a MULCOPY in %+v", got)
	}
}

// Scenario 5: "+++>+++<[->+<]" reduces the loop to a plain MULCOPY.
// Only cell 0 starts from a SET (the all-zero flag clears at the first
// "+", so cell 1 gets an ADD); no guarding IF appears because the loop
// body contains no SET.
func TestFixedPoint_AllZeroMultiplyMove(t *testing.T) {
	got := optimizeSrc(t, "+++>+++<[->+<]")
	for _, op := range got {
		if op.Kind == ir.LOOP || op.Kind == ir.ENDLOOP {
			t.Fatalf("expected no surviving loop, got %+v", got)
		}
	}
}

// Scenario 6: "+++.+.+.+." batches into one OUTPUT emitting four bytes.
func TestFixedPoint_OutputBatching(t *testing.T) {
	got := optimizeSrc(t, "+++.+.+.+.")
	outputs := 0
	for _, op := range got {
		if op.Kind == ir.OUTPUT {
			outputs++
		}
	}
	if outputs != 1 {
		t.Fatalf("expected exactly one OUTPUT, got %d in %+v", outputs, got)
	}
}

// Idempotence: optimize(optimize(x)) == optimize(x).
func TestFixedPoint_Idempotent(t *testing.T) {
	sources := []string{
		"",
		"+++.",
		"+[]",
		"[]",
		"++[->+++<]",
		"+++>+++<[->+<]",
		"+++.+.+.+.",
		",.",
		"++++++++[>++++++++<-]>+.",
	}
	for _, src := range sources {
		once := optimizeSrc(t, src)
		twice, err := optimize.FixedPoint(once, optimize.Options{})
		if err != nil {
			t.Fatalf("second optimize(%q): %v", src, err)
		}
		assertStream(t, "idempotent:"+src, twice, once)
	}
}

// After optimization, no two adjacent instructions are both
// ADD(0, _) or both MOVE(_).
func TestFixedPoint_NoAdjacentSameKindRuns(t *testing.T) {
	sources := []string{
		"+++---", ">>><<<", "+>+>+>+<<<.", ",.,.,.",
	}
	for _, src := range sources {
		got := optimizeSrc(t, src)
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			if prev.Kind == ir.ADD && cur.Kind == ir.ADD && prev.Off == 0 && cur.Off == 0 {
				t.Errorf("[%s] adjacent ADD(0,_) at %d,%d: %+v", src, i-1, i, got)
			}
			if prev.Kind == ir.MOVE && cur.Kind == ir.MOVE {
				t.Errorf("[%s] adjacent MOVE at %d,%d: %+v", src, i-1, i, got)
			}
		}
	}
}

// Every LOADOUT/LOADOUTSET is eventually followed by an OUTPUT before
// the next LOOP/INPUT/ENDLOOP/SCAN.
func TestFixedPoint_LoadersAlwaysFlushed(t *testing.T) {
	sources := []string{",.", "+++.+.+.+.", "++[->+++<].", "+[>+<-]."}
	for _, src := range sources {
		got := optimizeSrc(t, src)
		pendingLoad := false
		for _, op := range got {
			switch op.Kind {
			case ir.LOADOUT, ir.LOADOUTSET:
				pendingLoad = true
			case ir.OUTPUT:
				pendingLoad = false
			case ir.LOOP, ir.ENDLOOP, ir.INPUT, ir.SCAN:
				if pendingLoad {
					t.Errorf("[%s] unflushed loader before %s in %+v", src, op.Kind, got)
				}
			}
		}
		if pendingLoad {
			t.Errorf("[%s] unflushed loader at end of stream: %+v", src, got)
		}
	}
}

func TestFixedPoint_EmptySource(t *testing.T) {
	got := optimizeSrc(t, "")
	if len(got) != 0 {
		t.Fatalf("expected empty stream, got %+v", got)
	}
}

// Cell wrap is a code-generator/interpreter concern (8-bit modulo
// arithmetic happens at run time on the tape, not in the IR, whose
// ADD/SET payloads are signed 64-bit), but the optimizer must still
// coalesce a long run of "+" into one value. The trailing "." makes
// that value observable: the coalesced SET(0,256) itself is dead on
// exit and dropped.
func TestFixedPoint_CoalescesLongRun(t *testing.T) {
	src := ""
	for i := 0; i < 256; i++ {
		src += "+"
	}
	src += "."
	got := optimizeSrc(t, src)
	want := ir.Stream{ir.LoadOutSet(256), ir.Output()}
	assertStream(t, "256 pluses", got, want)
}
