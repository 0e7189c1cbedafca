// Command bfcomp is the `bfcomp <source_file>` entry point: it compiles
// a Brainfuck source file to x86-64 assembly, assembles it, and links
// it, propagating the linker's exit code.
package main

import (
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/Urethramancer/bfcomp/internal/driver"
)

func main() {
	// glog parses its flags from os.Args via the flag package; cobra
	// uses pflag, so both flag sets coexist, the same dual-flag-package
	// pattern jyane/jnes uses for glog alongside its own UI flags.
	defer glog.Flush()

	if err := newRootCmd().Execute(); err != nil {
		glog.Flush()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opt driver.Options

	cmd := &cobra.Command{
		Use:   "bfcomp <source_file>",
		Short: "Compile a Brainfuck program to a native x86-64 Linux binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := driver.Build(args[0], opt)
			if err != nil {
				return err
			}
			glog.Flush()
			os.Exit(res.ExitCode)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&opt.Warn, "warn", false, "warn about loops that R3/R4 left unoptimized because they may not terminate")
	cmd.Flags().BoolVar(&opt.KeepAsm, "keep-asm", true, "keep the generated .s file after assembling")
	cmd.Flags().BoolVar(&opt.DumpIR, "dump-ir", false, "print the optimized IR to stdout before code generation")
	cmd.Flags().StringVar(&opt.Assembler, "as", "as", "assembler binary to invoke")
	cmd.Flags().StringVar(&opt.Linker, "ld", "ld", "linker binary to invoke")

	return cmd
}
