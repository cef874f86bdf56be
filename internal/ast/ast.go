// Package ast defines the untyped syntax tree produced by the parser.
//
// Every node is a plain struct carrying its source Span; the tree is built
// purely from token text with no symbol resolution or semantic validation.
// That work belongs to the resolver, which turns this tree into a typed
// model.
package ast

import "github.com/pdlc-project/pdlc/errors"

// Endianness is the file-wide byte order declared by the header.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) String() string {
	if e == BigEndian {
		return "big_endian_packets"
	}
	return "little_endian_packets"
}

// File is the root of a parsed PDL source file.
type File struct {
	Name       string
	Endianness Endianness

	// VersionPragma is the literal value of an optional leading
	// `pdl_version = "X.Y.Z"` pragma, empty if the file declares none.
	VersionPragma string

	Decls []Decl
}

// Decl is any top-level declaration: enum, struct, packet or group.
type Decl interface {
	declNode()
	DeclName() string
	Span() errors.Span
}

// Tag is one member of an enum: a single value, a range, or the catch-all
// `IDENT '=' '..'` form that marks unlisted values as accepted (and makes
// the enclosing enum open).
type Tag struct {
	Name     string
	Value    int64
	RangeEnd *int64
	Nested   []Tag
	Other    bool
	Span_    errors.Span
}

func (t Tag) Span() errors.Span { return t.Span_ }

// EnumDecl declares a named set of tags over a fixed bit width.
type EnumDecl struct {
	Name  string
	Width int
	Tags  []Tag
	Open  bool
	Span_ errors.Span
}

func (d *EnumDecl) declNode()         {}
func (d *EnumDecl) DeclName() string  { return d.Name }
func (d *EnumDecl) Span() errors.Span { return d.Span_ }

// StructDecl declares a named, ordered sequence of fields.
type StructDecl struct {
	Name   string
	Fields []Field
	Span_  errors.Span
}

func (d *StructDecl) declNode()         {}
func (d *StructDecl) DeclName() string  { return d.Name }
func (d *StructDecl) Span() errors.Span { return d.Span_ }

// Constraint restricts a packet's parent field to a fixed value, selecting
// it as the decode target for that value (`constraint := IDENT '=' (NUM |
// IDENT)`).
type Constraint struct {
	Field      string
	Value      *int64
	ValueIdent string
	Span_      errors.Span
}

func (c Constraint) Span() errors.Span { return c.Span_ }

// PacketDecl is a StructDecl that may inherit from a parent packet and
// select itself via constraints on the parent's fields.
type PacketDecl struct {
	Name        string
	Parent      string
	Constraints []Constraint
	Fields      []Field
	Span_       errors.Span
}

func (d *PacketDecl) declNode()         {}
func (d *PacketDecl) DeclName() string  { return d.Name }
func (d *PacketDecl) Span() errors.Span { return d.Span_ }

// GroupDecl is a named bundle of fields spliced into referring records
// during resolve.
type GroupDecl struct {
	Name   string
	Fields []Field
	Span_  errors.Span
}

func (d *GroupDecl) declNode()         {}
func (d *GroupDecl) DeclName() string  { return d.Name }
func (d *GroupDecl) Span() errors.Span { return d.Span_ }

// Field is any member of a struct, packet or group body. The parser
// produces one of the concrete variants below; none of them are
// semantically validated yet (that's the resolver's job).
type Field interface {
	fieldNode()
	Span() errors.Span
}

// ScalarField is a plain bit-packed integer: `name:bits`.
type ScalarField struct {
	Name  string
	Bits  int
	Span_ errors.Span
}

func (f *ScalarField) fieldNode()        {}
func (f *ScalarField) Span() errors.Span { return f.Span_ }

// EnumField is a bit-packed field typed by a named enum: `name:EnumName`.
type EnumField struct {
	Name    string
	EnumRef string
	Span_   errors.Span
}

func (f *EnumField) fieldNode()        {}
func (f *EnumField) Span() errors.Span { return f.Span_ }

// ReservedField is padding with no value: `_reserved_:bits`.
type ReservedField struct {
	Bits  int
	Span_ errors.Span
}

func (f *ReservedField) fieldNode()        {}
func (f *ReservedField) Span() errors.Span { return f.Span_ }

// FixedScalarField asserts a constant numeric value at parse time and
// emits it at serialise time: `_fixed_ = value : bits`.
type FixedScalarField struct {
	Value int64
	Bits  int
	Span_ errors.Span
}

func (f *FixedScalarField) fieldNode()        {}
func (f *FixedScalarField) Span() errors.Span { return f.Span_ }

// FixedEnumField is the enum-typed counterpart of FixedScalarField:
// `_fixed_ = Tag : EnumName`.
type FixedEnumField struct {
	Tag     string
	EnumRef string
	Span_   errors.Span
}

func (f *FixedEnumField) fieldNode()        {}
func (f *FixedEnumField) Span() errors.Span { return f.Span_ }

// SizeField declares that the next Bits bits encode the byte length of
// Referent minus Modifier: `_size_(referent):bits` or
// `_size_(referent):bits[+Modifier]`.
type SizeField struct {
	Referent string
	Bits     int
	Modifier int
	Span_    errors.Span
}

func (f *SizeField) fieldNode()        {}
func (f *SizeField) Span() errors.Span { return f.Span_ }

// CountField declares the element count of the named array:
// `_count_(referent):bits`.
type CountField struct {
	Referent string
	Bits     int
	Span_    errors.Span
}

func (f *CountField) fieldNode()        {}
func (f *CountField) Span() errors.Span { return f.Span_ }

// PayloadField is the opaque byte region used as a parent's dispatch
// target for child packets: `_payload_`.
type PayloadField struct {
	Span_ errors.Span
}

func (f *PayloadField) fieldNode()        {}
func (f *PayloadField) Span() errors.Span { return f.Span_ }

// BodyField is an opaque byte region with no child dispatch: `_body_`.
type BodyField struct {
	Span_ errors.Span
}

func (f *BodyField) fieldNode()        {}
func (f *BodyField) Span() errors.Span { return f.Span_ }

// ArraySizeKind distinguishes the bracket syntax used on an array field.
type ArraySizeKind int

const (
	// ArraySizeExternal is an empty-bracket array `name:Type[]`, sized by a
	// later Size/Count field, or by running to the end of input if it is
	// the record's last field and no Size/Count field names it.
	ArraySizeExternal ArraySizeKind = iota
	// ArraySizeConstant is a literal-bracket array `name:Type[N]`: a fixed
	// element count, or for byte elements, a fixed byte length.
	ArraySizeConstant
)

// ArrayField is a repeated element region: `name:Type[…]`, where Type is
// either a bit width (scalar elements) or a struct/enum reference.
type ArrayField struct {
	Name string

	// Exactly one of ElementBits or ElementTypeRef is set.
	ElementBits    int
	ElementTypeRef string

	SizeKind ArraySizeKind
	Count    int // valid when SizeKind == ArraySizeConstant

	// Padding is the fixed byte-length modifier written as `[+P]` inside
	// the brackets, layered on top of whatever sizing otherwise applies.
	// Zero means unpadded.
	Padding int

	Span_ errors.Span
}

func (f *ArrayField) fieldNode()        {}
func (f *ArrayField) Span() errors.Span { return f.Span_ }

// TypeRefField is `name:TypeName` as the parser sees it: a named field
// whose type is an identifier rather than a bit width. Until resolve binds
// TypeName to a declaration, it is ambiguous between EnumField and
// StructField; the resolver replaces every TypeRefField with the concrete
// variant the symbol table determines.
type TypeRefField struct {
	Name    string
	TypeRef string
	Span_   errors.Span
}

func (f *TypeRefField) fieldNode()        {}
func (f *TypeRefField) Span() errors.Span { return f.Span_ }

// StructField embeds a named struct type inline: `name:StructName`.
type StructField struct {
	Name      string
	StructRef string
	Span_     errors.Span
}

func (f *StructField) fieldNode()        {}
func (f *StructField) Span() errors.Span { return f.Span_ }

// Condition is the presence test governing an OptionalField: bit Negated
// reverses the polarity, so `if !flag` means present-when-clear.
type Condition struct {
	Negated bool
	Name    string
}

// OptionalField wraps an inner field whose presence is governed by one bit
// of a preceding bitmap scalar: `name: Type if cond` / `if !cond`.
type OptionalField struct {
	Inner     Field
	Condition Condition
	Span_     errors.Span
}

func (f *OptionalField) fieldNode()        {}
func (f *OptionalField) Span() errors.Span { return f.Span_ }

// ScalarGroupField / EnumGroupField assert a fixed marker scalar or enum
// value at a location without naming it, used inside `group` splices.
type ScalarGroupField struct {
	Value int64
	Bits  int
	Span_ errors.Span
}

func (f *ScalarGroupField) fieldNode()        {}
func (f *ScalarGroupField) Span() errors.Span { return f.Span_ }

type EnumGroupField struct {
	Tag     string
	EnumRef string
	Span_   errors.Span
}

func (f *EnumGroupField) fieldNode()        {}
func (f *EnumGroupField) Span() errors.Span { return f.Span_ }

// GroupRefField splices a named group's fields in place: a bare group name
// used as a field within a struct/packet/group body.
type GroupRefField struct {
	GroupRef string
	Span_    errors.Span
}

func (f *GroupRefField) fieldNode()        {}
func (f *GroupRefField) Span() errors.Span { return f.Span_ }
