// Package codegen lowers an optimized IR stream (see internal/ir) into
// GNU-syntax x86-64 assembly text targeting the Linux syscall ABI. It
// builds up an output buffer incrementally rather than via a template
// engine, appending instruction by instruction, and uses the same
// "allocate a fresh numbered label per structure, track open ones on a
// stack" discipline for forward references that an assembler needs
// when resolving its own directives.
package codegen

import (
	"fmt"
	"strings"

	"github.com/Urethramancer/bfcomp/internal/ir"
)

// tapeSize is the size in bytes of the BSS tape arena. Cells are
// 8-byte slots (§4.4), addressed via %rbx with the logical origin
// placed in the middle so negative offsets stay in bounds for
// reasonably-behaved programs.
const tapeSize = 8192

// Result holds the generated assembly text plus bookkeeping useful to
// callers (the driver writes Text to a .s file; OutputBufferSize is the
// largest batched-output byte count plus 8 bytes of slack, which Text
// uses as the strbuff size, with a minimum of 1).
type Result struct {
	Text             string
	OutputBufferSize int64
}

// Generate consumes an optimized stream and produces the corresponding
// assembly program. The stream is assumed to already be a fixed point
// of internal/optimize.FixedPoint; Generate performs no optimization of
// its own.
func Generate(s ir.Stream) (*Result, error) {
	g := &generator{stream: s}
	if err := g.run(); err != nil {
		return nil, err
	}
	return &Result{Text: g.render(), OutputBufferSize: g.outBufSize}, nil
}

type generator struct {
	stream ir.Stream
	body   strings.Builder

	loopStack []int
	ifStack   []int
	loopNum   int
	ifNum     int

	outPos     int64
	outBufSize int64
}

func (g *generator) emit(format string, args ...any) {
	fmt.Fprintf(&g.body, format, args...)
}

func (g *generator) run() error {
	n := len(g.stream)
	for i := 0; i < n; i++ {
		op := g.stream[i]
		switch op.Kind {
		case ir.ADD:
			g.genAdd(op)
		case ir.SET:
			g.genSet(op)
		case ir.MOVE:
			g.genMove(op, i, n)
		case ir.MULCOPY:
			g.genMulCopy(op)
		case ir.SCAN:
			g.genScan(op)
		case ir.LOOP:
			g.genLoop()
		case ir.ENDLOOP:
			if err := g.genEndLoop(); err != nil {
				return err
			}
		case ir.IF:
			g.genIf(op)
		case ir.ENDIF:
			if err := g.genEndIf(); err != nil {
				return err
			}
		case ir.INPUT:
			g.genInput()
		case ir.LOADOUT:
			g.genLoadOut(op)
		case ir.LOADOUTSET:
			g.genLoadOutSet(op)
		case ir.OUTPUT:
			g.genOutput()
		default:
			return ir.NewConsistencyError("codegen", op.Kind, "no lowering defined for this opcode")
		}
	}
	if len(g.loopStack) != 0 {
		return ir.NewConsistencyError("codegen", ir.LOOP, "unmatched LOOP at end of stream")
	}
	if len(g.ifStack) != 0 {
		return ir.NewConsistencyError("codegen", ir.IF, "unmatched IF at end of stream")
	}
	return nil
}

func (g *generator) genAdd(op ir.Op) {
	if op.Off == 0 {
		switch op.N {
		case 1:
			g.emit("\tinc %%r12\n")
		case -1:
			g.emit("\tdec %%r12\n")
		default:
			if op.N >= 1 {
				g.emit("\taddq $%d, %%r12\n", op.N)
			} else {
				g.emit("\tsubq $%d, %%r12\n", -op.N)
			}
		}
		return
	}
	dest := fmt.Sprintf("%d(%%rbx)", op.Off*8)
	if op.N >= 1 {
		g.emit("\taddq $%d, %s\n", op.N, dest)
	} else {
		g.emit("\tsubq $%d, %s\n", -op.N, dest)
	}
}

func (g *generator) genSet(op ir.Op) {
	switch {
	case op.Off == 0 && op.V == 0:
		g.emit("\txor %%r12, %%r12\n")
	case op.Off == 0:
		g.emit("\tmovq $%d, %%r12\n", op.V)
	default:
		g.emit("\tmovq $%d, %d(%%rbx)\n", op.V, op.Off*8)
	}
}

// genMove flushes %r12 to memory, shifts %rbx, and reloads %r12 —
// except when the very next instruction is SET(0, _), since that
// instruction is about to overwrite the cache anyway.
func (g *generator) genMove(op ir.Op, i, n int) {
	if op.Delta == 0 {
		return
	}
	g.emit("\tmovq %%r12, (%%rbx)\n")
	if op.Delta > 0 {
		g.emit("\taddq $%d, %%rbx\n", 8*op.Delta)
	} else {
		g.emit("\tsubq $%d, %%rbx\n", -8*op.Delta)
	}
	nextIsSetZero := i < n-1 && g.stream[i+1].Kind == ir.SET && g.stream[i+1].Off == 0
	if !nextIsSetZero {
		g.emit("\tmovq (%%rbx), %%r12\n")
	}
}

func (g *generator) genMulCopy(op ir.Op) {
	src := operand(op.Src)
	dst := operand(op.Dst)

	if op.K != 1 && op.K != -1 {
		g.emit("\tmovq %s, %%rax\n", src)
		g.emit("\tmovq $%d, %%rdx\n", abs64(op.K))
		g.emit("\tmulq %%rdx\n")
		src = "%rax"
	} else if src != "%r12" && dst != "%r12" {
		// Memory-to-memory moves don't exist on x86; stage through %rax.
		g.emit("\tmovq %s, %%rax\n", src)
		src = "%rax"
	}

	if op.K > 0 {
		g.emit("\taddq %s, %s\n", src, dst)
	} else {
		g.emit("\tsubq %s, %s\n", src, dst)
	}
}

func (g *generator) genScan(op ir.Op) {
	g.loopNum++
	n := g.loopNum
	g.emit("\tmovq %%r12, (%%rbx)\n")
	g.emit("\tjmp endloop%d\n", n)
	g.emit("loop%d:\n", n)
	if op.Stride > 0 {
		g.emit("\taddq $%d, %%rbx\n", 8*op.Stride)
	} else {
		g.emit("\tsubq $%d, %%rbx\n", -8*op.Stride)
	}
	g.emit("endloop%d:\n", n)
	g.emit("\tcmp $0, (%%rbx)\n")
	g.emit("\tjnz loop%d\n", n)
	g.emit("\tmovq (%%rbx), %%r12\n")
}

func (g *generator) genLoop() {
	g.loopNum++
	g.loopStack = append(g.loopStack, g.loopNum)
	g.emit("\tjmp endloop%d\n", g.loopNum)
	g.emit("loop%d:\n", g.loopNum)
}

func (g *generator) genEndLoop() error {
	if len(g.loopStack) == 0 {
		return ir.NewConsistencyError("codegen", ir.ENDLOOP, "ENDLOOP with no matching LOOP")
	}
	n := g.loopStack[len(g.loopStack)-1]
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
	g.emit("endloop%d:\n", n)
	g.emit("\ttest %%r12, %%r12\n")
	g.emit("\tjnz loop%d\n", n)
	return nil
}

func (g *generator) genIf(op ir.Op) {
	g.ifNum++
	g.ifStack = append(g.ifStack, g.ifNum)
	if op.Off == 0 {
		g.emit("\ttest %%r12, %%r12\n")
	} else {
		g.emit("\tcmpq $0, %d(%%rbx)\n", 8*op.Off)
	}
	g.emit("\tjz endif%d\n", g.ifNum)
}

func (g *generator) genEndIf() error {
	if len(g.ifStack) == 0 {
		return ir.NewConsistencyError("codegen", ir.ENDIF, "ENDIF with no matching IF")
	}
	n := g.ifStack[len(g.ifStack)-1]
	g.ifStack = g.ifStack[:len(g.ifStack)-1]
	g.emit("endif%d:\n", n)
	return nil
}

func (g *generator) genInput() {
	g.emit("\txor %%rax, %%rax\n")
	g.emit("\txor %%rdi, %%rdi\n")
	g.emit("\tmovq %%rbx, %%rsi\n")
	g.emit("\tmovq $1, %%rdx\n")
	g.emit("\tsyscall\n")
	g.emit("\tmovq (%%rbx), %%r12\n")
}

func (g *generator) genLoadOut(op ir.Op) {
	addr := fmt.Sprintf("(strbuff+%d)", g.outPos)
	if op.Off == 0 {
		g.emit("\tmovq %%r12, %s\n", addr)
	} else {
		g.emit("\tmovq %d(%%rbx), %%rax\n", 8*op.Off)
		g.emit("\tmovq %%rax, %s\n", addr)
	}
	if op.Add > 0 {
		g.emit("\taddb $%d, %s\n", op.Add, addr)
	} else if op.Add < 0 {
		g.emit("\tsubb $%d, %s\n", -op.Add, addr)
	}
	g.outPos++
}

func (g *generator) genLoadOutSet(op ir.Op) {
	addr := fmt.Sprintf("(strbuff+%d)", g.outPos)
	g.emit("\tmovq $%d, %s\n", op.V, addr)
	g.outPos++
}

func (g *generator) genOutput() {
	g.emit("\tmovq $1, %%rax\n")
	g.emit("\tmovq $1, %%rdi\n")
	g.emit("\tmovq $strbuff, %%rsi\n")
	g.emit("\tmovq $%d, %%rdx\n", g.outPos)
	g.emit("\tsyscall\n")
	if g.outBufSize < g.outPos+8 {
		g.outBufSize = g.outPos + 8
	}
	g.outPos = 0
}

func (g *generator) render() string {
	var out strings.Builder
	fmt.Fprintf(&out, ".section .bss\n")
	fmt.Fprintf(&out, "\t.lcomm strbuff, %d\n", max64(g.outBufSize, 1))
	fmt.Fprintf(&out, "\t.lcomm mem, %d\n", tapeSize)
	fmt.Fprintf(&out, "\t.set startidx, mem + %d\n", tapeSize/2)
	fmt.Fprintf(&out, ".section .text\n")
	fmt.Fprintf(&out, ".global _start\n")
	fmt.Fprintf(&out, "_start:\n")
	fmt.Fprintf(&out, "\txor %%r12, %%r12\n")
	fmt.Fprintf(&out, "\tmovq $startidx, %%rbx\n")
	out.WriteString(g.body.String())
	fmt.Fprintf(&out, "\n\tmovq $60, %%rax\n")
	fmt.Fprintf(&out, "\tmovq $0, %%rdi\n")
	fmt.Fprintf(&out, "\tsyscall\n")
	return out.String()
}

func operand(off int64) string {
	if off == 0 {
		return "%r12"
	}
	return fmt.Sprintf("%d(%%rbx)", off*8)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
