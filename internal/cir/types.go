// Package cir builds the canonical intermediate representation: a tree of
// parse and serialize operations derived from a record's resolved fields
// and computed layout. Target emitters walk this tree instead of working
// from the AST or RecordLayout directly, so every backend sees the same
// already-disambiguated operation sequence.
package cir

import "github.com/pdlc-project/pdlc/internal/layout"

// Node is one node in a parse or serialize operation tree.
type Node interface {
	IsControlFlow() bool
}

// SeqNode is a straight-line sequence of operations.
type SeqNode struct {
	Children []Node
}

func (n *SeqNode) IsControlFlow() bool { return false }

// LoopKind distinguishes the three ways an array or payload region's
// repetition is bounded.
type LoopKind int

const (
	LoopCount LoopKind = iota
	LoopUntilSize
	LoopWhileNonEmpty
)

func (k LoopKind) String() string {
	switch k {
	case LoopCount:
		return "loop_count"
	case LoopUntilSize:
		return "loop_until_size"
	default:
		return "loop_while_nonempty"
	}
}

// LoopNode repeats Body, bounded per Kind: LoopCount runs exactly Bound
// times, LoopUntilSize consumes exactly Bound bytes of input, and
// LoopWhileNonEmpty runs until the remaining slice is empty.
type LoopNode struct {
	Body  Node
	Kind  LoopKind
	Bound Expr
}

func (n *LoopNode) IsControlFlow() bool { return true }

// IfNode gates Then on one bit of the record's synthesized presence
// bitmap: present-when-set if PresentWhenSet, present-when-clear
// otherwise.
type IfNode struct {
	CondBitIndex   int
	PresentWhenSet bool
	Then           Node
}

func (n *IfNode) IsControlFlow() bool { return true }

// InstrNode wraps a single non-control-flow operation.
type InstrNode struct {
	Instr Instr
}

func (n *InstrNode) IsControlFlow() bool { return false }

// Op identifies the operation an Instr performs.
type Op int

const (
	// Parsing ops.
	OpRequire Op = iota
	OpReadChunk
	OpCheckEq
	OpCheckEnumRange
	OpSliceTake
	OpSliceSkip
	OpSliceTail
	OpParseStruct
	OpAssign
	OpSubsliceRange

	// Serializing ops.
	OpWriteChunk
	OpAppendBytes
	OpWriteStruct
	OpPadZeroes
	OpPadSkip
)

func (op Op) String() string {
	switch op {
	case OpRequire:
		return "require"
	case OpReadChunk:
		return "read_chunk"
	case OpCheckEq:
		return "check_eq"
	case OpCheckEnumRange:
		return "check_enum_range"
	case OpSliceTake:
		return "slice_take"
	case OpSliceSkip:
		return "slice_skip"
	case OpSliceTail:
		return "slice_tail"
	case OpParseStruct:
		return "parse_struct"
	case OpAssign:
		return "assign"
	case OpSubsliceRange:
		return "subslice_range"
	case OpWriteChunk:
		return "write_chunk"
	case OpAppendBytes:
		return "append_bytes"
	case OpWriteStruct:
		return "write_struct"
	case OpPadZeroes:
		return "pad_zeroes"
	case OpPadSkip:
		return "pad_skip"
	default:
		return "unknown"
	}
}

// Instr is one operation with an opcode-specific immediate payload.
type Instr struct {
	Op  Op
	Imm any
}

// ChunkImm packs or unpacks one whole-byte chunk, little- or big-endian
// per the record's header.
type ChunkImm struct {
	Width  int
	Fields []layout.FieldPacking
}

// CheckEqImm asserts a packed field's decoded value equals Value: used
// for fixed scalar/enum fields and packet inheritance constraints.
type CheckEqImm struct {
	Field string
	Value int64
}

// EnumRange is one contiguous span of values a closed enum's tags cover,
// inclusive of both ends.
type EnumRange struct {
	Low, High int64
}

// CheckEnumRangeImm asserts a just-decoded enum field's value falls
// within one of Ranges: emitted only for closed enums whose tags don't
// already cover every value the declared width can hold. Open enums
// accept any value (the catch-all tag is the unknown case), so they
// never get this check.
type CheckEnumRangeImm struct {
	Field  string
	Ranges []EnumRange
}

// SliceImm bounds a slice/take/skip operation by a byte-length Expr. When
// N is nil, TrailerReserve bytes are held back from the end of the
// remaining input instead (the unknown-size-with-trailer discipline).
type SliceImm struct {
	N              Expr
	TrailerReserve int
}

// ParseStructImm recurses into a nested struct's own parse program.
type ParseStructImm struct {
	RecordName string
	FieldName  string
}

// AssignImm names the destination field and value of an Assign. Builder
// does not emit Assign.
type AssignImm struct {
	Field string
	Value int64
}

// SubsliceRangeImm carves [Start, Start+N) out of the remaining input for
// a SubsliceRange. Builder does not emit SubsliceRange: Size-bound payloads
// use SliceTake.
type SubsliceRangeImm struct {
	Start Expr
	N     Expr
}

// PadImm is a fixed byte count for padding skip/zero-fill operations.
type PadImm struct {
	N int
}

// Expr is a small arithmetic expression over field values, used to size
// loops, slices, and padding.
type Expr interface {
	isExpr()
}

// ConstExpr is a compile-time-known byte count.
type ConstExpr struct{ Value int }

func (ConstExpr) isExpr() {}

// FieldRefExpr reads a sibling field's already-parsed value, identified
// by its layout name (including synthetic Size/Count/bitmap names).
type FieldRefExpr struct{ Name string }

func (FieldRefExpr) isExpr() {}

// AddExpr, MulExpr and MaxExpr compose two sub-expressions, used for
// Size-field modifiers and padded-array minimums.
type AddExpr struct{ A, B Expr }

func (AddExpr) isExpr() {}

type MulExpr struct{ A, B Expr }

func (MulExpr) isExpr() {}

type MaxExpr struct{ A, B Expr }

func (MaxExpr) isExpr() {}

// Program is the complete parse and serialize operation tree for one
// struct or packet.
type Program struct {
	Name      string
	Parse     Node
	Serialize Node
}
