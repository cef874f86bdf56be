// Package errors provides structured diagnostics for the PDLC compiler.
//
// Errors are categorized by Phase (which pipeline stage raised them) and
// Kind (a fixed taxonomy of semantic and syntactic violations). Every Error
// carries a source Span so diagnostics can be formatted one per line, with
// source span, by an external CLI.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLayout, errors.KindChunkNotByteAligned).
//		At(span).
//		Detail("field %q leaves the chunk 3 bits short of a byte boundary", name).
//		Build()
//
// Diagnostics accumulates errors across a stage that runs to completion
// where safe: Resolve and Layout collect every violation they find before
// the pipeline aborts, instead of failing on the first one.
package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which pipeline stage raised the error.
type Phase string

const (
	PhaseLex     Phase = "lex"
	PhaseParse   Phase = "parse"
	PhaseResolve Phase = "resolve"
	PhaseLayout  Phase = "layout"
	PhaseCIR     Phase = "cir"
	PhaseCodegen Phase = "codegen"
)

// Kind categorizes the error within its phase.
type Kind string

const (
	// Syntax
	KindSyntax Kind = "syntax"

	// Reference
	KindUnresolvedName Kind = "unresolved_name"
	KindDuplicateName  Kind = "duplicate_name"
	KindCycle          Kind = "cycle_in_struct"

	// Typing
	KindBitsOutOfRange             Kind = "bits_out_of_range"
	KindOverlappingOptionalBit     Kind = "overlapping_optional_bit"
	KindConstraintTargetNotAField  Kind = "constraint_target_not_a_field"
	KindIncompatibleTypes          Kind = "incompatible_types"
	KindIncompatibleVersion        Kind = "incompatible_version"

	// Layout
	KindChunkNotByteAligned Kind = "chunk_not_byte_aligned"
	KindAmbiguousSizing     Kind = "ambiguous_sizing"
	KindAmbiguousPayload    Kind = "ambiguous_payload"
	KindPaddingTooSmall     Kind = "padding_too_small"

	// Coverage
	KindMissingEnumCoverage        Kind = "missing_enum_coverage"
	KindNonExhaustiveConstraints   Kind = "non_exhaustive_constraints"
	KindDuplicateConstraintValue   Kind = "duplicate_constraint_value"

	// Codegen: reported by codegen.Generate when no backend is registered
	// for the requested target
	KindUnsupportedTarget Kind = "unsupported_target"
)

// Span locates a diagnostic in the original source text.
type Span struct {
	File   string
	Line   int
	Column int
}

func (s Span) String() string {
	if s.File == "" && s.Line == 0 {
		return ""
	}
	if s.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
	}
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// Error is the structured diagnostic type used throughout the compiler.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
	Span   Span
}

func (e *Error) Error() string {
	var b strings.Builder

	if sp := e.Span.String(); sp != "" {
		b.WriteString(sp)
		b.WriteString(": ")
	}

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder for the given phase and kind.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

// At sets the source span.
func (b *Builder) At(span Span) *Builder {
	b.err.Span = span
	return b
}

// Path sets the declaration/field path, e.g. {"PacketName", "fieldName"}.
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return &b.err
}

// Diagnostics accumulates errors within a single pipeline stage. Resolve
// runs to completion where safe, recording every violation it finds; the
// pipeline only aborts once its Diagnostics HasErrors. Layout does not use
// a Diagnostics: it returns the first error it finds.
type Diagnostics struct {
	errs []*Error
}

// Add records an error.
func (d *Diagnostics) Add(err *Error) {
	d.errs = append(d.errs, err)
}

// HasErrors reports whether any error has been recorded.
func (d *Diagnostics) HasErrors() bool {
	return len(d.errs) > 0
}

// Errors returns all recorded errors in the order they were added.
func (d *Diagnostics) Errors() []*Error {
	return d.errs
}

// Err returns a single combined error, or nil if none were recorded.
func (d *Diagnostics) Err() error {
	if len(d.errs) == 0 {
		return nil
	}
	if len(d.errs) == 1 {
		return d.errs[0]
	}
	var b strings.Builder
	for i, e := range d.errs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Error())
	}
	return fmt.Errorf("%d errors:\n%s", len(d.errs), b.String())
}
