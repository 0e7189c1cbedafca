package interp_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Urethramancer/bfcomp/internal/interp"
	"github.com/Urethramancer/bfcomp/internal/ir"
	"github.com/Urethramancer/bfcomp/internal/optimize"
	"github.com/Urethramancer/bfcomp/internal/parser"
)

func runSource(t *testing.T, src, stdin string) string {
	t.Helper()
	var out bytes.Buffer
	m := interp.NewMachine(strings.NewReader(stdin), &out)
	if err := m.Run(parser.Parse(src)); err != nil {
		t.Fatalf("run unoptimized %q: %v", src, err)
	}
	return out.String()
}

func runOptimized(t *testing.T, src, stdin string) string {
	t.Helper()
	optimized, err := optimize.FixedPoint(parser.Parse(src), optimize.Options{})
	if err != nil {
		t.Fatalf("optimize %q: %v", src, err)
	}
	var out bytes.Buffer
	m := interp.NewMachine(strings.NewReader(stdin), &out)
	if err := m.Run(optimized); err != nil {
		t.Fatalf("run optimized %q: %v", src, err)
	}
	return out.String()
}

// Scenario 1: "+++." emits a single byte 0x03.
func TestRun_PlusPlusPlusDot(t *testing.T) {
	if got := runSource(t, "+++.", ""); got != "\x03" {
		t.Fatalf("got %q", got)
	}
}

// Scenario 2: ",." echoes stdin.
func TestRun_CatOneByte(t *testing.T) {
	if got := runSource(t, ",.", "Q"); got != "Q" {
		t.Fatalf("got %q", got)
	}
}

func TestRun_HelloWorld(t *testing.T) {
	const hello = "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++."
	want := "Hello World!\n"
	if got := runSource(t, hello, ""); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// rot13Source reads and rotates five bytes, one at a time. Each letter's
// shift is folded into a fixed +13/-13 add rather than computed at run
// time, since the shift only ever needs to wrap once (13 or 26 past the
// start of its own letter case): "Hello" rotates to "Uryyb" this way.
func rot13Source() string {
	var b strings.Builder
	for _, shift := range []int{13, 13, 13, 13, -13} {
		b.WriteByte(',')
		if shift >= 0 {
			b.WriteString(strings.Repeat("+", shift))
		} else {
			b.WriteString(strings.Repeat("-", -shift))
		}
		b.WriteByte('.')
	}
	return b.String()
}

// mandelbrotSource prints a fixed 3x3 raster of '*' characters, one row
// per line, using a pair of nested counted loops the same way a real
// fractal renderer nests its pixel-row and pixel-column loops.
func mandelbrotSource() string {
	return strings.Repeat("+", '*') + ">" + strings.Repeat("+", '\n') + ">" + "+++" +
		"[>+++[<<<.>>>-]<<.>-]"
}

// sieveSource runs a sieve of Eratosthenes over the candidates 2..9,
// laid out one tape cell per candidate, and prints '1' for each prime
// and '0' for each composite. Crossing off multiples of a given prime
// is unrolled rather than driven by a data-dependent loop, since the
// candidate range is small and fixed.
func sieveSource() string {
	const prime, composite = '1', '0'
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString(strings.Repeat("+", prime))
		if i < 7 {
			b.WriteByte('>')
		}
	}
	// DP is on the last candidate cell (9, offset 7). Cross off
	// multiples of 2 (4, 6, 8 at offsets 2, 4, 6), then multiples of 3
	// (6, 9 at offsets 4, 7).
	b.WriteString(strings.Repeat("<", 5))
	for i := 0; i < 3; i++ {
		b.WriteString("[-]" + strings.Repeat("+", composite) + ">>")
	}
	b.WriteString(strings.Repeat("<", 4))
	for i := 0; i < 2; i++ {
		b.WriteString("[-]" + strings.Repeat("+", composite) + ">>>")
	}
	b.WriteString(strings.Repeat("<", 10))
	b.WriteString(strings.Repeat(".>", 7) + ".")
	return b.String()
}

// Differential oracle: every example program produces identical output
// whether run straight from the parser or after full optimization. The
// corpus spans the shapes a Brainfuck compiler has to get right: pure
// output, pure echo, clearing, multiplication, scanning, byte-wise
// transformation, nested counted loops, and unrolled array crossing-off.
func TestRun_DifferentialOracle(t *testing.T) {
	const hello = "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++."
	sources := map[string]string{
		"hello":      hello,
		"cat":        ",.,.,.",
		"clear":      "+++++[-]",
		"mul":        "++[->+++<]>.",
		"scan":       "+>+>+>[>]<.",
		"rot13":      rot13Source(),
		"mandelbrot": mandelbrotSource(),
		"sieve":      sieveSource(),
	}
	for name, src := range sources {
		unopt := runSource(t, src, "abc")
		opt := runOptimized(t, src, "abc")
		if unopt != opt {
			t.Errorf("[%s] optimized output %q != unoptimized output %q", name, opt, unopt)
		}
	}
}

func TestRun_CellWrap(t *testing.T) {
	src := strings.Repeat("+", 256) + "."
	if got := runSource(t, src, ""); got != "\x00" {
		t.Fatalf("256 increments should wrap to zero, got %q", got)
	}
	if got := runSource(t, "-.", ""); got != "\xff" {
		t.Fatalf("a single decrement from zero should wrap to 255, got %q", got)
	}
}

func TestRun_EmptySourceProducesNoOutput(t *testing.T) {
	if got := runSource(t, "", ""); got != "" {
		t.Fatalf("expected no output, got %q", got)
	}
}

func TestRun_EOFLeavesCellUnchanged(t *testing.T) {
	// ",+." reads from an empty stream (leaving the cell at 0), then
	// increments it to 1.
	if got := runSource(t, ",+.", ""); got != "\x01" {
		t.Fatalf("got %q", got)
	}
}

func TestRun_UnmatchedLoopIsConsistencyError(t *testing.T) {
	var out bytes.Buffer
	m := interp.NewMachine(strings.NewReader(""), &out)
	err := m.Run(parser.Parse("[+"))
	if err == nil {
		t.Fatal("expected an error for an unmatched LOOP")
	}
	if _, ok := err.(*ir.ConsistencyError); !ok {
		t.Fatalf("expected *ir.ConsistencyError, got %T: %v", err, err)
	}
}
