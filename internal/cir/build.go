package cir

import (
	"go.uber.org/zap"

	"github.com/pdlc-project/pdlc/errors"
	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/layout"
	"github.com/pdlc-project/pdlc/internal/model"
)

// Builder lowers a resolved record into a Program. Programs are cached by
// record name, same as the layout Calculator they sit on top of.
type Builder struct {
	calc  *layout.Calculator
	cache map[string]*Program
}

// NewBuilder creates an empty, ready-to-use Builder.
func NewBuilder() *Builder {
	return &Builder{calc: layout.NewCalculator(), cache: make(map[string]*Program)}
}

// Build returns the Program for the named struct or packet, computing and
// caching it (and its layout) on first use.
func (b *Builder) Build(file *model.File, name string) (*Program, error) {
	if p, ok := b.cache[name]; ok {
		return p, nil
	}

	var fields []ast.Field
	var constraints []ast.Constraint
	if s, ok := file.Structs[name]; ok {
		fields = s.Fields
	} else if p, ok := file.Packets[name]; ok {
		fields = p.Fields
		constraints = p.Decl.Constraints
	} else {
		return nil, errors.New(errors.PhaseCIR, errors.KindUnresolvedName).
			Detail("no struct or packet named %q", name).Build()
	}

	rl, err := b.calc.Calculate(file, name)
	if err != nil {
		return nil, err
	}

	parse, err := b.buildParse(file, rl, fields, constraints)
	if err != nil {
		return nil, err
	}
	serialize, err := b.buildSerialize(file, rl, fields, constraints)
	if err != nil {
		return nil, err
	}

	p := &Program{Name: name, Parse: parse, Serialize: serialize}
	b.cache[name] = p
	Logger().Debug("built program", zap.String("record", name))
	return p, nil
}

func bitsOf(file *model.File, f ast.Field) int {
	switch field := f.(type) {
	case *ast.ScalarField:
		return field.Bits
	case *ast.EnumField:
		return enumBitWidth(file, field.EnumRef)
	case *ast.ReservedField:
		return field.Bits
	case *ast.FixedScalarField:
		return field.Bits
	case *ast.FixedEnumField:
		return enumBitWidth(file, field.EnumRef)
	case *ast.ScalarGroupField:
		return field.Bits
	case *ast.EnumGroupField:
		return enumBitWidth(file, field.EnumRef)
	case *ast.SizeField:
		return field.Bits
	case *ast.CountField:
		return field.Bits
	}
	return 0
}

func enumBitWidth(file *model.File, ref string) int {
	if e, ok := file.Enums[ref]; ok {
		return e.Decl.Width
	}
	return 0
}

func enumTagValue(file *model.File, ref, tag string) int64 {
	e, ok := file.Enums[ref]
	if !ok {
		return 0
	}
	for _, t := range e.Decl.Tags {
		if t.Name == tag {
			return t.Value
		}
	}
	return 0
}

func isPackable(f ast.Field) bool {
	switch f.(type) {
	case *ast.ScalarField, *ast.EnumField, *ast.ReservedField, *ast.FixedScalarField,
		*ast.FixedEnumField, *ast.ScalarGroupField, *ast.EnumGroupField,
		*ast.SizeField, *ast.CountField:
		return true
	}
	return false
}

func fieldName(f ast.Field) string {
	switch field := f.(type) {
	case *ast.ScalarField:
		return field.Name
	case *ast.EnumField:
		return field.Name
	case *ast.SizeField:
		return sizeFieldKey(field.Referent)
	case *ast.CountField:
		return countFieldKey(field.Referent)
	case *ast.ArrayField:
		return field.Name
	case *ast.StructField:
		return field.Name
	}
	return ""
}

func sizeFieldKey(referent string) string  { return "_size_(" + referent + ")" }
func countFieldKey(referent string) string { return "_count_(" + referent + ")" }

func byteLen(bits int) int { return (bits + 7) / 8 }

var chunkWidths = [...]int{1, 2, 3, 4, 6, 8}

// roundChunkWidth returns the smallest native chunk width >= bytes, or 0
// if bytes exceeds the largest supported chunk (8). Mirrors the layout
// package's own rounding so a CIR chunk always matches its RecordLayout
// counterpart.
func roundChunkWidth(bytes int) int {
	for _, w := range chunkWidths {
		if bytes <= w {
			return w
		}
	}
	return 0
}
