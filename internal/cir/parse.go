package cir

import (
	"github.com/pdlc-project/pdlc/errors"
	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/layout"
	"github.com/pdlc-project/pdlc/internal/model"
)

type parseCtx struct {
	file *model.File
	rl   *layout.RecordLayout
}

func (b *Builder) buildParse(file *model.File, rl *layout.RecordLayout, fields []ast.Field, constraints []ast.Constraint) (Node, error) {
	pc := &parseCtx{file: file, rl: rl}

	var seq []Node
	var pending []ast.Field
	pendingBits := 0
	optIdx := 0
	bitmapEmitted := false

	flush := func() error {
		if pendingBits == 0 {
			return nil
		}
		if pendingBits%8 != 0 {
			return errors.New(errors.PhaseCIR, errors.KindChunkNotByteAligned).
				Detail("pending chunk is %d bits short of a byte boundary", 8-pendingBits%8).Build()
		}
		instr, err := pc.readChunkInstr(pending, pendingBits/8)
		if err != nil {
			return err
		}
		seq = append(seq, &InstrNode{Instr: instr})
		seq = append(seq, pc.checkEqInstrs(pending)...)
		seq = append(seq, pc.checkEnumRangeInstrs(pending)...)
		pending = nil
		pendingBits = 0
		return nil
	}

	for i, f := range fields {
		switch field := f.(type) {
		case *ast.OptionalField:
			if err := flush(); err != nil {
				return nil, err
			}
			if !bitmapEmitted {
				seq = append(seq, pc.bitmapReadNode())
				bitmapEmitted = true
			}
			desc := rl.Optionals[optIdx]
			optIdx++
			inner, err := pc.parseSingleField(field.Inner, fields, i)
			if err != nil {
				return nil, err
			}
			seq = append(seq, &IfNode{CondBitIndex: desc.CondBitIndex, PresentWhenSet: desc.PresentWhenSet, Then: inner})

		case *ast.ArrayField:
			if err := flush(); err != nil {
				return nil, err
			}
			n, err := pc.parseArrayNode(field)
			if err != nil {
				return nil, err
			}
			seq = append(seq, n)

		case *ast.StructField:
			if err := flush(); err != nil {
				return nil, err
			}
			seq = append(seq, &InstrNode{Instr: Instr{Op: OpParseStruct, Imm: ParseStructImm{RecordName: field.StructRef, FieldName: field.Name}}})

		case *ast.PayloadField:
			if err := flush(); err != nil {
				return nil, err
			}
			seq = append(seq, pc.payloadParseNode())

		case *ast.BodyField:
			if err := flush(); err != nil {
				return nil, err
			}
			seq = append(seq, pc.payloadParseNode())

		default:
			if isPackable(f) {
				pending = append(pending, f)
				pendingBits += bitsOf(file, f)
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	for _, c := range constraints {
		if c.Value != nil {
			seq = append(seq, &InstrNode{Instr: Instr{Op: OpCheckEq, Imm: CheckEqImm{Field: c.Field, Value: *c.Value}}})
		}
	}

	return &SeqNode{Children: seq}, nil
}

// parseSingleField lowers one field that sits directly beneath an Optional
// wrapper: always its own standalone chunk or array, never shared packing.
func (pc *parseCtx) parseSingleField(f ast.Field, fields []ast.Field, idx int) (Node, error) {
	switch field := f.(type) {
	case *ast.ScalarField:
		bits := bitsOf(pc.file, f)
		instr, err := pc.readChunkInstr([]ast.Field{f}, byteLen(bits))
		if err != nil {
			return nil, err
		}
		return &InstrNode{Instr: instr}, nil
	case *ast.EnumField:
		bits := bitsOf(pc.file, f)
		instr, err := pc.readChunkInstr([]ast.Field{f}, byteLen(bits))
		if err != nil {
			return nil, err
		}
		seq := []Node{&InstrNode{Instr: instr}}
		if rangeInstr, ok := pc.checkEnumRangeInstr(field.Name, field.EnumRef); ok {
			seq = append(seq, rangeInstr)
		}
		return &SeqNode{Children: seq}, nil
	case *ast.ArrayField:
		return pc.parseArrayNode(field)
	case *ast.StructField:
		return &InstrNode{Instr: Instr{Op: OpParseStruct, Imm: ParseStructImm{RecordName: field.StructRef, FieldName: field.Name}}}, nil
	}
	return &SeqNode{}, nil
}

// readChunkInstr computes each pending field's bit offset and builds the
// REQUIRE+READ+CHUNK_UNPACK instruction for it.
func (pc *parseCtx) readChunkInstr(pending []ast.Field, width int) (Instr, error) {
	w := roundChunkWidth(width)
	if w == 0 {
		return Instr{}, errors.New(errors.PhaseCIR, errors.KindChunkNotByteAligned).
			Detail("chunk of %d bytes exceeds the largest supported width (8 bytes)", width).Build()
	}
	var packing []layout.FieldPacking
	off := 0
	for _, f := range pending {
		bits := bitsOf(pc.file, f)
		name := fieldName(f)
		var cv *int64
		switch field := f.(type) {
		case *ast.ReservedField:
			name, cv = "", constPtr(0)
		case *ast.FixedScalarField:
			name, cv = "", constPtr(field.Value)
		case *ast.FixedEnumField:
			name, cv = "", constPtr(enumTagValue(pc.file, field.EnumRef, field.Tag))
		case *ast.ScalarGroupField:
			name, cv = "", constPtr(field.Value)
		case *ast.EnumGroupField:
			name, cv = "", constPtr(enumTagValue(pc.file, field.EnumRef, field.Tag))
		}
		packing = append(packing, layout.FieldPacking{FieldName: name, BitOffset: off, Bits: bits, ConstValue: cv})
		off += bits
	}
	return Instr{Op: OpReadChunk, Imm: ChunkImm{Width: w, Fields: packing}}, nil
}

func constPtr(v int64) *int64 { return &v }

// sizeWithModifier turns a decoded Size field's raw value into the on-wire
// byte length it actually bounds: size_value + modifier, clamped at 0.
func sizeWithModifier(field string, modifier int) Expr {
	ref := FieldRefExpr{Name: field}
	if modifier == 0 {
		return ref
	}
	return MaxExpr{A: ConstExpr{Value: 0}, B: AddExpr{A: ref, B: ConstExpr{Value: modifier}}}
}

func (pc *parseCtx) checkEqInstrs(pending []ast.Field) []Node {
	var out []Node
	for _, f := range pending {
		switch field := f.(type) {
		case *ast.FixedScalarField:
			out = append(out, &InstrNode{Instr: Instr{Op: OpCheckEq, Imm: CheckEqImm{Value: field.Value}}})
		case *ast.FixedEnumField:
			out = append(out, &InstrNode{Instr: Instr{Op: OpCheckEq, Imm: CheckEqImm{Value: enumTagValue(pc.file, field.EnumRef, field.Tag)}}})
		}
	}
	return out
}

// checkEnumRangeInstrs emits a CheckEnumRange instruction for every plain
// enum field in pending whose enum is closed (not Open) and doesn't
// already cover every value its width can hold: an out-of-range value
// under a closed enum has to fail rather than silently decode as
// whatever tag its bit pattern happens to alias.
func (pc *parseCtx) checkEnumRangeInstrs(pending []ast.Field) []Node {
	var out []Node
	for _, f := range pending {
		ef, ok := f.(*ast.EnumField)
		if !ok {
			continue
		}
		if instr, ok := pc.checkEnumRangeInstr(ef.Name, ef.EnumRef); ok {
			out = append(out, instr)
		}
	}
	return out
}

func (pc *parseCtx) checkEnumRangeInstr(fieldName, enumRef string) (Node, bool) {
	info, ok := pc.file.Enums[enumRef]
	if !ok || info.Open || info.Complete {
		return nil, false
	}
	return &InstrNode{Instr: Instr{Op: OpCheckEnumRange, Imm: CheckEnumRangeImm{
		Field:  fieldName,
		Ranges: enumRanges(info.Decl),
	}}}, true
}

// enumRanges flattens an enum's tags (skipping the catch-all `Other` tag,
// which never participates in a closed-enum bound check) into the
// contiguous value spans its tags and tag ranges cover.
func enumRanges(e *ast.EnumDecl) []EnumRange {
	var ranges []EnumRange
	for _, t := range e.Tags {
		if t.Other {
			continue
		}
		end := t.Value
		if t.RangeEnd != nil {
			end = *t.RangeEnd
		}
		ranges = append(ranges, EnumRange{Low: t.Value, High: end})
	}
	return ranges
}

func (pc *parseCtx) bitmapReadNode() Node {
	return &InstrNode{Instr: Instr{
		Op: OpReadChunk,
		Imm: ChunkImm{
			Width: pc.rl.OptionalBitmapWidth,
			Fields: []layout.FieldPacking{{
				FieldName: "_optional_bitmap_",
				BitOffset: 0,
				Bits:      pc.rl.OptionalBitmapWidth * 8,
			}},
		},
	}}
}

func (pc *parseCtx) parseArrayNode(field *ast.ArrayField) (Node, error) {
	al, ok := pc.rl.Arrays[field.Name]
	if !ok {
		return nil, errors.New(errors.PhaseCIR, errors.KindUnresolvedName).
			Detail("no computed array layout for %q", field.Name).Build()
	}

	elem := pc.arrayElemNode(field, al)

	var bound Expr
	var kind LoopKind
	switch al.Sizing {
	case layout.ArraySizingConstantCount:
		kind = LoopCount
		bound = ConstExpr{Value: al.Count}
	case layout.ArraySizingConstantSize:
		kind = LoopUntilSize
		bound = ConstExpr{Value: al.Count}
	case layout.ArraySizingVariableSize:
		kind = LoopUntilSize
		bound = sizeWithModifier(al.BoundByField, al.SizeModifier)
	case layout.ArraySizingVariableCount:
		kind = LoopCount
		bound = FieldRefExpr{Name: al.BoundByField}
	default:
		kind = LoopWhileNonEmpty
		bound = ConstExpr{Value: 0}
	}
	if al.Padding > 0 {
		bound = MaxExpr{A: bound, B: ConstExpr{Value: al.Padding}}
	}

	return &LoopNode{Body: elem, Kind: kind, Bound: bound}, nil
}

func (pc *parseCtx) arrayElemNode(field *ast.ArrayField, al layout.ArrayLayout) Node {
	switch al.Category {
	case layout.ArrayByteElement, layout.ArrayScalarElement, layout.ArrayEnumElement:
		read := &InstrNode{Instr: Instr{Op: OpReadChunk, Imm: ChunkImm{
			Width:  al.ElementBytes,
			Fields: []layout.FieldPacking{{FieldName: field.Name, BitOffset: 0, Bits: al.ElementBytes * 8}},
		}}}
		if al.Category != layout.ArrayEnumElement {
			return read
		}
		if rangeInstr, ok := pc.checkEnumRangeInstr(field.Name, field.ElementTypeRef); ok {
			return &SeqNode{Children: []Node{read, rangeInstr}}
		}
		return read
	default:
		ref := field.ElementTypeRef
		return &InstrNode{Instr: Instr{Op: OpParseStruct, Imm: ParseStructImm{RecordName: ref, FieldName: field.Name}}}
	}
}

func (pc *parseCtx) payloadParseNode() Node {
	pi := pc.rl.Payload
	switch pi.Discipline {
	case layout.PayloadVariableSize:
		return &InstrNode{Instr: Instr{Op: OpSliceTake, Imm: SliceImm{N: sizeWithModifier(pi.SizeField, pi.SizeModifier)}}}
	case layout.PayloadUnknownWithTrailer:
		return &InstrNode{Instr: Instr{Op: OpSliceTake, Imm: SliceImm{TrailerReserve: pi.TrailerBytes}}}
	default:
		return &InstrNode{Instr: Instr{Op: OpSliceTail}}
	}
}
