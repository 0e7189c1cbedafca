// Package driver wires the compiler stages together end to end: reading
// the source file, running the compiler front/middle/back end, writing
// the generated assembly, and invoking the system assembler and linker.
// It is the Go-native, glog-instrumented equivalent of bfcomp.py's
// `__main__` block.
package driver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"github.com/Urethramancer/bfcomp/internal/codegen"
	"github.com/Urethramancer/bfcomp/internal/ir"
	"github.com/Urethramancer/bfcomp/internal/irprint"
	"github.com/Urethramancer/bfcomp/internal/optimize"
	"github.com/Urethramancer/bfcomp/internal/parser"
)

// Options controls driver behavior that does not change the emitted
// program: whether to keep the intermediate .s file, whether to print
// the optimized IR, and whether to warn about non-terminating loops.
type Options struct {
	KeepAsm bool
	DumpIR  bool
	Warn    bool

	// Assembler and Linker override the system assembler/linker
	// binaries; defaults are "as" and "ld", matching the original.
	Assembler string
	Linker    string
}

// Result reports what the driver produced and, when both toolchain
// steps ran, the linker's exit code.
type Result struct {
	AsmPath  string
	ObjPath  string
	BinPath  string
	ExitCode int
}

func (o Options) assembler() string {
	if o.Assembler != "" {
		return o.Assembler
	}
	return "as"
}

func (o Options) linker() string {
	if o.Linker != "" {
		return o.Linker
	}
	return "ld"
}

// Build reads sourcePath, compiles it through parse → optimize →
// codegen, writes the assembly next to the source (same base name,
// .s extension), then invokes the assembler and — if that succeeds —
// the linker. Exit code is the linker's when both steps run; a nonzero
// assembler status skips linking and is returned directly.
func Build(sourcePath string, opt Options) (*Result, error) {
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}

	base := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	res := &Result{
		AsmPath: base + ".s",
		ObjPath: base + ".o",
		BinPath: base,
	}

	glog.Info("Compiling...")
	stream := parser.Parse(string(src))

	var warned []int
	optimized, err := optimize.FixedPoint(stream, optimize.Options{
		OnNonTerminatingLoop: func(index int) {
			if opt.Warn {
				warned = append(warned, index)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("optimizing: %w", err)
	}
	for _, idx := range warned {
		glog.Warningf("possible infinite loop at IR index %d", idx)
	}

	if opt.DumpIR {
		if err := irprint.Fprint(os.Stdout, optimized); err != nil {
			glog.Errorf("writing IR dump: %v", err)
		}
	}

	gen, err := codegen.Generate(optimized)
	if err != nil {
		if _, ok := err.(*ir.ConsistencyError); ok {
			return nil, fmt.Errorf("internal consistency failure: %w", err)
		}
		return nil, fmt.Errorf("generating assembly: %w", err)
	}

	if err := os.WriteFile(res.AsmPath, []byte(gen.Text), 0o644); err != nil {
		return nil, fmt.Errorf("writing assembly file: %w", err)
	}
	if !opt.KeepAsm {
		defer os.Remove(res.AsmPath)
	}

	glog.Info("Assembling...")
	asCmd := exec.Command(opt.assembler(), "-g", res.AsmPath, "-o", res.ObjPath)
	asCmd.Stdout = os.Stdout
	asCmd.Stderr = os.Stderr
	if err := asCmd.Run(); err != nil {
		res.ExitCode = exitCode(err)
		glog.Errorf("assembler failed: %v", err)
		return res, nil
	}

	glog.Info("Linking...")
	ldCmd := exec.Command(opt.linker(), res.ObjPath, "-o", res.BinPath)
	ldCmd.Stdout = os.Stdout
	ldCmd.Stderr = os.Stderr
	err = ldCmd.Run()
	res.ExitCode = exitCode(err)
	if err != nil {
		glog.Errorf("linker failed: %v", err)
	}
	return res, nil
}

// exitCode extracts a process exit code from the error os/exec.Cmd.Run
// returns, treating a nil error as success.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}
