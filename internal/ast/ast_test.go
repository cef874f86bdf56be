package ast

import (
	"testing"

	"github.com/pdlc-project/pdlc/errors"
)

func TestDeclNameAndSpan(t *testing.T) {
	decls := []Decl{
		&EnumDecl{Name: "Foo", Span_: span(1)},
		&StructDecl{Name: "Bar", Span_: span(2)},
		&PacketDecl{Name: "Baz", Span_: span(3)},
		&GroupDecl{Name: "Qux", Span_: span(4)},
	}
	want := []string{"Foo", "Bar", "Baz", "Qux"}
	for i, d := range decls {
		if got := d.DeclName(); got != want[i] {
			t.Errorf("decl[%d].DeclName() = %q, want %q", i, got, want[i])
		}
		if got := d.Span().Line; got != i+1 {
			t.Errorf("decl[%d].Span().Line = %d, want %d", i, got, i+1)
		}
	}
}

func TestFieldVariantsImplementField(t *testing.T) {
	var fields = []Field{
		&ScalarField{Name: "a", Bits: 8},
		&EnumField{Name: "b", EnumRef: "Foo"},
		&ReservedField{Bits: 8},
		&FixedScalarField{Value: 1, Bits: 8},
		&FixedEnumField{Tag: "A", EnumRef: "Foo"},
		&SizeField{Referent: "payload", Bits: 8},
		&CountField{Referent: "array", Bits: 8},
		&PayloadField{},
		&BodyField{},
		&ArrayField{Name: "arr", ElementBits: 8, SizeKind: ArraySizeConstant, Count: 4},
		&StructField{Name: "s", StructRef: "Foo"},
		&OptionalField{Inner: &ScalarField{Name: "a", Bits: 32}, Condition: Condition{Name: "flag"}},
		&ScalarGroupField{Value: 1, Bits: 8},
		&EnumGroupField{Tag: "A", EnumRef: "Foo"},
		&GroupRefField{GroupRef: "SharedFields"},
	}
	if len(fields) != 15 {
		t.Fatalf("len(fields) = %d, want 15", len(fields))
	}
}

func TestOptionalConditionPolarity(t *testing.T) {
	present := Condition{Name: "flag", Negated: false}
	absent := Condition{Name: "flag", Negated: true}
	if present.Negated == absent.Negated {
		t.Fatal("present-when-set and present-when-clear must differ in Negated")
	}
}

func span(line int) errors.Span {
	return errors.Span{Line: line}
}
