package pdlc

import (
	"github.com/pdlc-project/pdlc/errors"
	"github.com/pdlc-project/pdlc/internal/codegen"
	"github.com/pdlc-project/pdlc/internal/model"
	"github.com/pdlc-project/pdlc/internal/parser"
	"github.com/pdlc-project/pdlc/internal/resolve"
	"github.com/pdlc-project/pdlc/internal/token"
	"github.com/pdlc-project/pdlc/internal/version"
)

// Target re-exports codegen.Target so callers never need to import the
// internal codegen package directly.
type Target = codegen.Target

const (
	TargetGo     = codegen.TargetGo
	TargetRust   = codegen.TargetRust
	TargetCxx    = codegen.TargetCxx
	TargetPython = codegen.TargetPython
	TargetTS     = codegen.TargetTS
)

// Options configures a Compile call.
type Options struct {
	// FileName is used only in diagnostics' source spans.
	FileName string

	// Target selects which backend emits source text. If empty, Compile
	// runs only parsing, the version check and resolve, returning
	// diagnostics with no Output: useful for "check this file" without picking a
	// target.
	Target Target
}

// Result is everything Compile produces.
type Result struct {
	// File is the fully resolved model, present whenever resolution
	// succeeds, even if a later stage fails.
	File *model.File

	// Output is the generated source text, present only when Target was
	// set and every stage succeeded.
	Output string
}

// Compile runs src through the full pipeline: lex, parse, resolve, and
// (if opts.Target is set) layout analysis, CIR construction and codegen.
// Resolve collects every violation it finds, and they reach diags as one
// entry (see asError); a parse, version or codegen error aborts
// immediately and is the sole entry in diags.
func Compile(src string, opts Options) (Result, *errors.Diagnostics) {
	diags := &errors.Diagnostics{}

	name := opts.FileName
	if name == "" {
		name = "input.pdl"
	}

	astFile, err := parser.New(token.Tokenize(src), name).Parse()
	if err != nil {
		diags.Add(asError(errors.PhaseParse, err))
		return Result{}, diags
	}

	if astFile.VersionPragma != "" {
		pragma, err := version.ParsePragma(astFile.VersionPragma)
		if err != nil {
			diags.Add(errors.New(errors.PhaseParse, errors.KindSyntax).Detail(err.Error()).Build())
			return Result{}, diags
		}
		if err := version.Check(pragma, version.Current); err != nil {
			diags.Add(errors.New(errors.PhaseParse, errors.KindIncompatibleVersion).Detail(err.Error()).Build())
			return Result{}, diags
		}
	}

	m, err := resolve.New(astFile).Resolve()
	if err != nil {
		diags.Add(asError(errors.PhaseResolve, err))
		return Result{File: m}, diags
	}

	result := Result{File: m}
	if opts.Target == "" {
		return result, diags
	}

	out, err := codegen.Generate(m, opts.Target)
	if err != nil {
		diags.Add(asError(errors.PhaseCodegen, err))
		return result, diags
	}
	result.Output = out
	return result, diags
}

// asError normalizes any error returned by a pipeline stage into a single
// *errors.Error for the diagnostics list. Stages already built on
// errors.Diagnostics (resolve, layout) return either a *errors.Error
// directly (exactly one violation) or a generic combined error (more than
// one, already formatted one-per-line); either way callers just want one
// entry they can report.
func asError(phase errors.Phase, err error) *errors.Error {
	if e, ok := err.(*errors.Error); ok {
		return e
	}
	return errors.New(phase, errors.KindSyntax).Detail(err.Error()).Build()
}
