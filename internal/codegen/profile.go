package codegen

import (
	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/cir"
	"github.com/pdlc-project/pdlc/internal/layout"
	"github.com/pdlc-project/pdlc/internal/model"
)

// Target names one of the languages PDLC can emit codecs for.
type Target string

const (
	TargetGo     Target = "go"
	TargetRust   Target = "rust"
	TargetCxx    Target = "cpp"
	TargetPython Target = "python"

	// TargetTS is documented but unimplemented: Generate reports
	// KindUnsupportedTarget for it rather than silently emitting wrong
	// code.
	TargetTS Target = "ts"
)

// LanguageProfile renders one target language's syntax. Every method
// returns a fragment of source text; the shared walker in codegen.go
// composes fragments in CIR order so the control flow, field order and
// byte-level semantics are identical across every target — only the
// syntax differs.
type LanguageProfile interface {
	Name() string

	// FileHeader opens the generated file: package/module declaration,
	// imports, any fixed runtime helpers the profile's statements rely on.
	FileHeader(file *model.File) string

	// Type names.
	ScalarType(bits int) string
	EnumUnderlyingType(bits int) string
	BytesType() string
	SliceType(elem string) string
	RecordTypeName(name string) string

	// Declarations.
	EnumDecl(e *model.EnumInfo) string
	RecordDeclOpen(name string) string
	RecordField(goName, typeName string) string
	RecordDeclClose(name string) string

	// Method framing: wraps the walked parse/serialize bodies in the
	// target's codec method/function signature.
	ParseMethodOpen(name string) string
	ParseMethodClose(name string) string
	SerializeMethodOpen(name string) string
	SerializeMethodClose(name string) string

	// View/Builder framing, rendered once per record after Value's own
	// Parse/Serialize: ViewDecl opens a read-only, validity-checked wrapper
	// over a parsed Value (a constructor, is_valid, bytes()); ViewField
	// renders one field's read-only accessor on that wrapper; BuilderDecl
	// renders the owning encoder wrapper (serialize() plus size()).
	ViewDecl(name string) string
	ViewField(goName, typeName string) string
	BuilderDecl(name string) string

	// Per-instruction statement emitters, called by the walker in CIR
	// order. endian is the file's declared byte order.
	ReadChunk(imm cir.ChunkImm, endian ast.Endianness) string
	WriteChunk(imm cir.ChunkImm, endian ast.Endianness) string
	CheckEq(imm cir.CheckEqImm) string
	CheckEnumRange(imm cir.CheckEnumRangeImm) string
	SliceTake(imm cir.SliceImm) string
	SliceTail() string
	ParseStruct(imm cir.ParseStructImm) string
	WriteStructCall(imm cir.WriteStructImm) string
	AppendBytes(imm cir.SliceImm) string
	PadZeroes(imm cir.PadImm) string
	PadSkip(imm cir.PadImm) string

	// Control flow: body is already-rendered statement text for the
	// nested node, indentation is the walker's job via Indent.
	LoopCount(bound string, body string) string
	LoopUntilSize(bound string, body string) string
	LoopWhileNonEmpty(body string) string
	If(bitIndex int, presentWhenSet bool, body string) string

	// Expr renders a small arithmetic expression to source text.
	Expr(e cir.Expr) string

	// Indent returns s with one unit of the profile's indentation
	// prepended to every line.
	Indent(s string) string
}

var registry = map[Target]LanguageProfile{}

// Register installs a backend's LanguageProfile under its Target. Backend
// packages call this from an init func.
func Register(t Target, p LanguageProfile) {
	registry[t] = p
}

func lookup(t Target) (LanguageProfile, bool) {
	p, ok := registry[t]
	return p, ok
}

// isDataField reports whether a FieldPacking names a field: false for
// unnamed (reserved/fixed/marker) packings and the optional bitmap.
func isDataField(fp layout.FieldPacking) bool {
	if fp.FieldName == "" {
		return false
	}
	switch fp.FieldName {
	case "_optional_bitmap_":
		return false
	}
	return true
}
