package resolve

import (
	"testing"

	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/model"
	"github.com/pdlc-project/pdlc/internal/parser"
	"github.com/pdlc-project/pdlc/internal/token"
)

func parseFile(t *testing.T, src string) *ast.File {
	t.Helper()
	f, err := parser.New(token.Tokenize(src), "test.pdl").Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return f
}

func TestResolveSimpleStruct(t *testing.T) {
	f := parseFile(t, `little_endian_packets
struct Foo {
  a: 8,
  b: 16,
}
`)
	m, err := New(f).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	s, ok := m.Structs["Foo"]
	if !ok {
		t.Fatal("Foo not found")
	}
	if s.Size != model.SizeConstant {
		t.Errorf("Size = %v, want SizeConstant", s.Size)
	}
}

func TestResolveDuplicateName(t *testing.T) {
	f := parseFile(t, `little_endian_packets
struct Foo { a: 8 }
struct Foo { b: 8 }
`)
	if _, err := New(f).Resolve(); err == nil {
		t.Fatal("expected a duplicate-name error")
	}
}

func TestResolveUnresolvedType(t *testing.T) {
	f := parseFile(t, `little_endian_packets
struct Foo {
  a: Bar,
}
`)
	if _, err := New(f).Resolve(); err == nil {
		t.Fatal("expected an unresolved-name error")
	}
}

func TestResolveTypeRefBecomesStructField(t *testing.T) {
	f := parseFile(t, `little_endian_packets
struct Bar { a: 8 }
struct Foo {
  b: Bar,
}
`)
	m, err := New(f).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	foo := m.Structs["Foo"]
	sf, ok := foo.Fields[0].(*ast.StructField)
	if !ok || sf.StructRef != "Bar" {
		t.Fatalf("got %+v", foo.Fields[0])
	}
}

func TestResolveTypeRefBecomesEnumField(t *testing.T) {
	f := parseFile(t, `little_endian_packets
enum Bar : 8 { A = 0 }
struct Foo {
  b: Bar,
}
`)
	m, err := New(f).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	foo := m.Structs["Foo"]
	ef, ok := foo.Fields[0].(*ast.EnumField)
	if !ok || ef.EnumRef != "Bar" {
		t.Fatalf("got %+v", foo.Fields[0])
	}
}

func TestResolveGroupSplice(t *testing.T) {
	f := parseFile(t, `little_endian_packets
group Shared {
  a: 8,
  b: 8,
}
struct Foo {
  Shared,
  c: 8,
}
`)
	m, err := New(f).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	foo := m.Structs["Foo"]
	if len(foo.Fields) != 3 {
		t.Fatalf("len(Fields) = %d, want 3 (spliced a, b, c)", len(foo.Fields))
	}
}

func TestResolveGroupCycle(t *testing.T) {
	f := parseFile(t, `little_endian_packets
group A {
  B,
}
group B {
  A,
}
struct Foo {
  A,
}
`)
	if _, err := New(f).Resolve(); err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestResolvePacketInheritanceCycle(t *testing.T) {
	f := parseFile(t, `little_endian_packets
packet A : B { x: 8 }
packet B : A { y: 8 }
`)
	if _, err := New(f).Resolve(); err == nil {
		t.Fatal("expected a packet inheritance cycle error")
	}
}

func TestResolvePacketParentChild(t *testing.T) {
	f := parseFile(t, `little_endian_packets
packet Parent {
  a: 8,
  _payload_,
}
packet Child : Parent (a = 5) {
  b: 8,
}
`)
	m, err := New(f).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	child := m.Packets["Child"]
	if child.Parent == nil || child.Parent.Name != "Parent" {
		t.Fatalf("got %+v", child.Parent)
	}
	parent := m.Packets["Parent"]
	if len(parent.Children) != 1 || parent.Children[0].Name != "Child" {
		t.Fatalf("got %+v", parent.Children)
	}
}

func TestResolveConstraintTargetNotAField(t *testing.T) {
	f := parseFile(t, `little_endian_packets
packet Parent {
  a: 8,
  _payload_,
}
packet Child : Parent (nonexistent = 5) {
  b: 8,
}
`)
	if _, err := New(f).Resolve(); err == nil {
		t.Fatal("expected a constraint-target error")
	}
}

func TestResolveEnumCompleteness(t *testing.T) {
	f := parseFile(t, `little_endian_packets
enum Complete2 : 2 {
  A = 0,
  B = 1,
  C = 2,
  D = 3,
}
enum Incomplete2 : 2 {
  A = 0,
  B = 1,
}
`)
	m, err := New(f).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !m.Enums["Complete2"].Complete {
		t.Error("Complete2 should be Complete")
	}
	if m.Enums["Incomplete2"].Complete {
		t.Error("Incomplete2 should not be Complete")
	}
}

func TestResolveEnumOpenFromCatchAll(t *testing.T) {
	f := parseFile(t, `little_endian_packets
enum Foo : 8 {
  A = 0,
  UNKNOWN = ..,
}
`)
	m, err := New(f).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !m.Enums["Foo"].Open {
		t.Error("expected Foo to be Open")
	}
}

func TestResolveSizeReferentMustFollow(t *testing.T) {
	f := parseFile(t, `little_endian_packets
struct Foo {
  _size_(_payload_): 8,
}
`)
	if _, err := New(f).Resolve(); err == nil {
		t.Fatal("expected an unresolved-referent error")
	}
}

func TestResolvePayloadDrivesUnknownSize(t *testing.T) {
	f := parseFile(t, `little_endian_packets
packet Foo {
  a: 8,
  _payload_,
}
`)
	m, err := New(f).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if m.Packets["Foo"].Size != model.SizeUnknown {
		t.Errorf("Size = %v, want SizeUnknown", m.Packets["Foo"].Size)
	}
}

func TestResolveSizedPayloadIsVariable(t *testing.T) {
	f := parseFile(t, `little_endian_packets
packet Foo {
  _size_(_payload_): 8,
  _payload_,
}
`)
	m, err := New(f).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if m.Packets["Foo"].Size != model.SizeVariable {
		t.Errorf("Size = %v, want SizeVariable", m.Packets["Foo"].Size)
	}
}
