// Command pdlc compiles a PDL source file into generated parse/serialize
// source for a target language.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdlc-project/pdlc"
	_ "github.com/pdlc-project/pdlc/internal/codegen/cxx"
	_ "github.com/pdlc-project/pdlc/internal/codegen/golang"
	_ "github.com/pdlc-project/pdlc/internal/codegen/python"
	_ "github.com/pdlc-project/pdlc/internal/codegen/rust"
	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/cir"
	"github.com/pdlc-project/pdlc/internal/codegen"
	"github.com/pdlc-project/pdlc/internal/layout"
	"github.com/pdlc-project/pdlc/internal/resolve"
)

var extByTarget = map[pdlc.Target]string{
	pdlc.TargetGo:     ".pdl.go",
	pdlc.TargetRust:   ".pdl.rs",
	pdlc.TargetCxx:    ".pdl.h",
	pdlc.TargetPython: ".pdl.py",
}

func main() {
	var (
		outDir  = flag.String("out", ".", "Output directory for generated source")
		target  = flag.String("target", "go", "Target language: cpp|rust|go|ts|python")
		endian  = flag.String("endian", "", "Expected byte order of the input file: le|be (checked against the file's header, not a compiler input)")
		verbose = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: pdlc INPUT.pdl --out DIR --target {cpp|rust|go|ts|python} --endian {le|be}")
		os.Exit(1)
	}
	input := flag.Arg(0)

	if *verbose {
		logger, _ := zap.NewDevelopment()
		resolve.SetLogger(logger)
		layout.SetLogger(logger)
		cir.SetLogger(logger)
		codegen.SetLogger(logger)
	}

	if err := run(input, *outDir, targetFromFlag(*target), *endian); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// targetFromFlag maps spec.md §6's CLI target names onto codegen.Target.
// "cpp" is the CLI-facing name for the cxx backend; everything else is
// already named the same on both sides.
func targetFromFlag(s string) pdlc.Target {
	if s == "cpp" {
		return pdlc.TargetCxx
	}
	return pdlc.Target(s)
}

func run(input, outDir string, target pdlc.Target, wantEndian string) error {
	src, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read %s: %w", input, err)
	}

	result, diags := pdlc.Compile(string(src), pdlc.Options{
		FileName: input,
		Target:   target,
	})
	if diags.HasErrors() {
		for _, e := range diags.Errors() {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		return fmt.Errorf("%d error(s) compiling %s", len(diags.Errors()), input)
	}

	if wantEndian != "" && result.File != nil {
		got := "le"
		if result.File.Endianness == ast.BigEndian {
			got = "be"
		}
		if got != wantEndian {
			return fmt.Errorf("%s declares %s endianness, --endian requested %s", input, got, wantEndian)
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ext, ok := extByTarget[target]
	if !ok {
		ext = ".pdl.out"
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	outPath := filepath.Join(outDir, base+ext)

	if err := os.WriteFile(outPath, []byte(result.Output), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("%s -> %s\n", input, outPath)
	return nil
}
