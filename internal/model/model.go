// Package model holds the typed declarations produced by resolve: the same
// ast.Decl/ast.Field trees, with every TypeRefField replaced by the
// concrete EnumField or StructField the symbol table determined, and
// derived facts (size category, enum completeness) attached alongside.
//
// Declarations reference each other by name, the same way the ast package
// does — never by cyclic pointer — so layout and CIR can walk the model
// without worrying about reference cycles beyond the explicit parent/child
// packet chain.
package model

import "github.com/pdlc-project/pdlc/internal/ast"

// SizeCategory is a struct or packet's total-size discipline, per
// the wire-format data model.
type SizeCategory int

const (
	SizeConstant SizeCategory = iota
	SizeVariable
	SizeUnknown
)

func (s SizeCategory) String() string {
	switch s {
	case SizeConstant:
		return "constant"
	case SizeVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// EnumInfo is a resolved enum declaration with its coverage facts.
type EnumInfo struct {
	Decl *ast.EnumDecl

	// Complete is true when every value in [0, 2^Width) is covered by a
	// tag or tag range.
	Complete bool

	// Truncated is true when Width is not a multiple of 8: the enum
	// occupies only part of a chunk.
	Truncated bool

	// Open is true when the enum declares an `= ..` catch-all tag: values
	// outside the listed tags/ranges parse as that unknown tag instead of
	// failing. Closed enums reject any value the tags don't cover.
	Open bool
}

// RecordInfo is the shared shape of StructInfo and PacketInfo: both are
// ordered field lists with a derived size discipline.
type RecordInfo struct {
	Name          string
	Fields        []ast.Field
	Size          SizeCategory
	ConstantBytes int // valid when Size == SizeConstant
}

// StructInfo is a resolved struct declaration.
type StructInfo struct {
	*RecordInfo
	Decl *ast.StructDecl
}

// PacketInfo is a resolved packet declaration, including its place in the
// parent/child inheritance chain.
type PacketInfo struct {
	*RecordInfo
	Decl     *ast.PacketDecl
	Parent   *PacketInfo
	Children []*PacketInfo
}

// Chain returns the packet's ancestry from the root packet down to itself.
func (p *PacketInfo) Chain() []*PacketInfo {
	var chain []*PacketInfo
	for cur := p; cur != nil; cur = cur.Parent {
		chain = append([]*PacketInfo{cur}, chain...)
	}
	return chain
}

// File is the fully resolved contents of one PDL source file: every
// reference is validated, every group spliced, every field typed.
type File struct {
	Name       string
	Endianness ast.Endianness

	Enums   map[string]*EnumInfo
	Structs map[string]*StructInfo
	Packets map[string]*PacketInfo

	// Order lists every declaration name in source order, across all
	// three kinds, so codegen can render output deterministically in the
	// order the source declared it.
	Order []string
}

// Lookup finds an enum by name, a struct by name, or a packet by name, in
// that preference order, and reports which kind it was.
func (f *File) Lookup(name string) (kind string, ok bool) {
	if _, ok := f.Enums[name]; ok {
		return "enum", true
	}
	if _, ok := f.Structs[name]; ok {
		return "struct", true
	}
	if _, ok := f.Packets[name]; ok {
		return "packet", true
	}
	return "", false
}
