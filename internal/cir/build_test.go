package cir

import (
	"testing"

	"github.com/pdlc-project/pdlc/internal/model"
	"github.com/pdlc-project/pdlc/internal/parser"
	"github.com/pdlc-project/pdlc/internal/resolve"
	"github.com/pdlc-project/pdlc/internal/token"
)

func resolveSrc(t *testing.T, src string) *model.File {
	t.Helper()
	f, err := parser.New(token.Tokenize(src), "test.pdl").Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	m, err := resolve.New(f).Resolve()
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	return m
}

func seqOf(t *testing.T, n Node) []Node {
	t.Helper()
	seq, ok := n.(*SeqNode)
	if !ok {
		t.Fatalf("node is %T, want *SeqNode", n)
	}
	return seq.Children
}

func TestBuildScalarChunkRead(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
struct Foo {
  a: 8,
  b: 8,
}
`)
	p, err := NewBuilder().Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	children := seqOf(t, p.Parse)
	if len(children) != 1 {
		t.Fatalf("len(children) = %d, want 1", len(children))
	}
	in, ok := children[0].(*InstrNode)
	if !ok || in.Instr.Op != OpReadChunk {
		t.Fatalf("children[0] = %+v, want OpReadChunk", children[0])
	}
	imm := in.Instr.Imm.(ChunkImm)
	if imm.Width != 2 || len(imm.Fields) != 2 {
		t.Fatalf("imm = %+v", imm)
	}
}

func TestBuildFixedFieldEmitsCheckEq(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
enum Kind : 8 {
  A = 1,
  B = 2,
}
packet Foo {
  _fixed_ = A : Kind,
  rest: 8,
}
`)
	p, err := NewBuilder().Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	children := seqOf(t, p.Parse)
	var found bool
	for _, n := range children {
		if in, ok := n.(*InstrNode); ok && in.Instr.Op == OpCheckEq {
			imm := in.Instr.Imm.(CheckEqImm)
			if imm.Value != 1 {
				t.Fatalf("CheckEq value = %d, want 1", imm.Value)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("no OpCheckEq instruction emitted for fixed enum field")
	}
}

func TestBuildByteArrayConstantSizeLoop(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
struct Foo {
  a: 8[4],
}
`)
	p, err := NewBuilder().Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	children := seqOf(t, p.Parse)
	loop, ok := children[0].(*LoopNode)
	if !ok {
		t.Fatalf("children[0] = %T, want *LoopNode", children[0])
	}
	if loop.Kind != LoopUntilSize {
		t.Fatalf("loop.Kind = %v, want LoopUntilSize (byte-element constant size)", loop.Kind)
	}
	bound, ok := loop.Bound.(ConstExpr)
	if !ok || bound.Value != 4 {
		t.Fatalf("loop.Bound = %+v, want ConstExpr{4}", loop.Bound)
	}
}

func TestBuildArrayVariableSizeBoundByFieldRef(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Foo {
  _size_(array): 8,
  array: 8[],
}
`)
	p, err := NewBuilder().Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	children := seqOf(t, p.Parse)
	if len(children) != 2 {
		t.Fatalf("len(children) = %d, want 2 (size chunk + array loop)", len(children))
	}
	loop, ok := children[1].(*LoopNode)
	if !ok {
		t.Fatalf("children[1] = %T, want *LoopNode", children[1])
	}
	ref, ok := loop.Bound.(FieldRefExpr)
	if !ok || ref.Name != "_size_(array)" {
		t.Fatalf("loop.Bound = %+v, want FieldRefExpr{_size_(array)}", loop.Bound)
	}
}

func TestBuildOptionalFieldWrappedInIf(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Foo {
  a: 32 if !flag_a,
}
`)
	p, err := NewBuilder().Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	children := seqOf(t, p.Parse)
	var gotIf *IfNode
	for _, n := range children {
		if iff, ok := n.(*IfNode); ok {
			gotIf = iff
		}
	}
	if gotIf == nil {
		t.Fatal("no IfNode emitted for optional field")
	}
	if gotIf.PresentWhenSet {
		t.Fatal("PresentWhenSet = true, want false (negated condition)")
	}
	if gotIf.CondBitIndex != 0 {
		t.Fatalf("CondBitIndex = %d, want 0", gotIf.CondBitIndex)
	}
}

func TestBuildPayloadVariableSizeUsesSizeField(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Foo {
  _size_(_payload_): 8,
  _payload_,
}
`)
	p, err := NewBuilder().Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	children := seqOf(t, p.Parse)
	var found bool
	for _, n := range children {
		if in, ok := n.(*InstrNode); ok && in.Instr.Op == OpSliceTake {
			imm := in.Instr.Imm.(SliceImm)
			ref, ok := imm.N.(FieldRefExpr)
			if !ok || ref.Name != "_size_(_payload_)" {
				t.Fatalf("SliceImm.N = %+v, want FieldRefExpr{_size_(_payload_)}", imm.N)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("no OpSliceTake instruction emitted for variable-size payload")
	}
}

func TestBuildPayloadWithTrailerReservesBytes(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Foo {
  _payload_,
  trailer: 16,
}
`)
	p, err := NewBuilder().Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	children := seqOf(t, p.Parse)
	in, ok := children[0].(*InstrNode)
	if !ok || in.Instr.Op != OpSliceTake {
		t.Fatalf("children[0] = %+v, want OpSliceTake", children[0])
	}
	imm := in.Instr.Imm.(SliceImm)
	if imm.TrailerReserve != 2 {
		t.Fatalf("TrailerReserve = %d, want 2", imm.TrailerReserve)
	}
}

func TestBuildConstraintEmitsCheckEq(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Parent {
  kind: 8,
  _payload_,
}
packet Child : Parent (kind = 7) {
  x: 8,
}
`)
	p, err := NewBuilder().Build(m, "Child")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	children := seqOf(t, p.Parse)
	var found bool
	for _, n := range children {
		if in, ok := n.(*InstrNode); ok && in.Instr.Op == OpCheckEq {
			imm := in.Instr.Imm.(CheckEqImm)
			if imm.Field == "kind" && imm.Value == 7 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("no OpCheckEq instruction emitted for packet constraint")
	}
}

func TestBuildCachesProgram(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
struct Foo {
  a: 8,
}
`)
	b := NewBuilder()
	p1, err := b.Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	p2, err := b.Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if p1 != p2 {
		t.Fatal("Build() did not return the cached Program on second call")
	}
}

func TestBuildSerializeWritesBitmapFirst(t *testing.T) {
	m := resolveSrc(t, `little_endian_packets
packet Foo {
  a: 32 if flag_a,
}
`)
	p, err := NewBuilder().Build(m, "Foo")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	children := seqOf(t, p.Serialize)
	in, ok := children[0].(*InstrNode)
	if !ok || in.Instr.Op != OpWriteChunk {
		t.Fatalf("children[0] = %+v, want OpWriteChunk (bitmap)", children[0])
	}
	imm := in.Instr.Imm.(ChunkImm)
	if len(imm.Fields) != 1 || imm.Fields[0].FieldName != "_optional_bitmap_" {
		t.Fatalf("imm = %+v, want bitmap field", imm)
	}
}
