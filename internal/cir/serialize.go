package cir

import (
	"github.com/pdlc-project/pdlc/errors"
	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/layout"
	"github.com/pdlc-project/pdlc/internal/model"
)

func (b *Builder) buildSerialize(file *model.File, rl *layout.RecordLayout, fields []ast.Field, constraints []ast.Constraint) (Node, error) {
	pc := &parseCtx{file: file, rl: rl}

	var seq []Node
	var pending []ast.Field
	pendingBits := 0
	optIdx := 0

	flush := func() error {
		if pendingBits == 0 {
			return nil
		}
		if pendingBits%8 != 0 {
			return errors.New(errors.PhaseCIR, errors.KindChunkNotByteAligned).
				Detail("pending chunk is %d bits short of a byte boundary", 8-pendingBits%8).Build()
		}
		instr, err := pc.writeChunkInstr(pending, pendingBits/8)
		if err != nil {
			return err
		}
		seq = append(seq, &InstrNode{Instr: instr})
		pending = nil
		pendingBits = 0
		return nil
	}

	for _, f := range fields {
		switch field := f.(type) {
		case *ast.OptionalField:
			if err := flush(); err != nil {
				return nil, err
			}
			desc := rl.Optionals[optIdx]
			optIdx++
			inner, err := pc.serializeSingleField(field.Inner)
			if err != nil {
				return nil, err
			}
			seq = append(seq, &IfNode{CondBitIndex: desc.CondBitIndex, PresentWhenSet: desc.PresentWhenSet, Then: inner})

		case *ast.ArrayField:
			if err := flush(); err != nil {
				return nil, err
			}
			n, err := pc.serializeArrayNode(field)
			if err != nil {
				return nil, err
			}
			seq = append(seq, n)

		case *ast.StructField:
			if err := flush(); err != nil {
				return nil, err
			}
			seq = append(seq, &InstrNode{Instr: Instr{Op: OpWriteStruct, Imm: WriteStructImm{RecordName: field.StructRef, FieldName: field.Name}}})

		case *ast.PayloadField:
			if err := flush(); err != nil {
				return nil, err
			}
			seq = append(seq, pc.payloadSerializeNode())

		case *ast.BodyField:
			if err := flush(); err != nil {
				return nil, err
			}
			seq = append(seq, pc.payloadSerializeNode())

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

	if rl.OptionalBitmapWidth > 0 {
		seq = prependBitmapWrite(seq, rl.OptionalBitmapWidth)
	}

	return &SeqNode{Children: seq}, nil
}

func (pc *parseCtx) serializeSingleField(f ast.Field) (Node, error) {
	switch field := f.(type) {
	case *ast.ScalarField, *ast.EnumField:
		instr, err := pc.writeChunkInstr([]ast.Field{f}, byteLen(bitsOf(pc.file, f)))
		if err != nil {
			return nil, err
		}
		return &InstrNode{Instr: instr}, nil
	case *ast.ArrayField:
		return pc.serializeArrayNode(field)
	case *ast.StructField:
		return &InstrNode{Instr: Instr{Op: OpWriteStruct, Imm: WriteStructImm{RecordName: field.StructRef, FieldName: field.Name}}}, nil
	}
	return &SeqNode{}, nil
}

func (pc *parseCtx) writeChunkInstr(pending []ast.Field, width int) (Instr, error) {
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
		modifier := 0
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
		case *ast.SizeField:
			modifier = field.Modifier
		}
		packing = append(packing, layout.FieldPacking{FieldName: name, BitOffset: off, Bits: bits, ConstValue: cv, Modifier: modifier})
		off += bits
	}
	return Instr{Op: OpWriteChunk, Imm: ChunkImm{Width: w, Fields: packing}}, nil
}

func prependBitmapWrite(seq []Node, width int) []Node {
	bitmap := &InstrNode{Instr: Instr{
		Op: OpWriteChunk,
		Imm: ChunkImm{
			Width: width,
			Fields: []layout.FieldPacking{{
				FieldName: "_optional_bitmap_",
				BitOffset: 0,
				Bits:      width * 8,
			}},
		},
	}}
	out := make([]Node, 0, len(seq)+1)
	out = append(out, bitmap)
	return append(out, seq...)
}

func (pc *parseCtx) serializeArrayNode(field *ast.ArrayField) (Node, error) {
	al, ok := pc.rl.Arrays[field.Name]
	if !ok {
		return nil, errors.New(errors.PhaseCIR, errors.KindUnresolvedName).
			Detail("no computed array layout for %q", field.Name).Build()
	}

	var elem Node
	switch al.Category {
	case layout.ArrayByteElement, layout.ArrayScalarElement, layout.ArrayEnumElement:
		elem = &InstrNode{Instr: Instr{Op: OpWriteChunk, Imm: ChunkImm{
			Width:  al.ElementBytes,
			Fields: []layout.FieldPacking{{FieldName: field.Name, BitOffset: 0, Bits: al.ElementBytes * 8}},
		}}}
	default:
		elem = &InstrNode{Instr: Instr{Op: OpWriteStruct, Imm: WriteStructImm{RecordName: field.ElementTypeRef, FieldName: field.Name}}}
	}

	seq := []Node{&LoopNode{Body: elem, Kind: LoopWhileNonEmpty, Bound: FieldRefExpr{Name: field.Name}}}
	if al.Padding > 0 {
		seq = append(seq, &InstrNode{Instr: Instr{Op: OpPadZeroes, Imm: PadImm{N: al.Padding}}})
	}
	return &SeqNode{Children: seq}, nil
}

func (pc *parseCtx) payloadSerializeNode() Node {
	pi := pc.rl.Payload
	switch pi.Discipline {
	case layout.PayloadVariableSize:
		return &InstrNode{Instr: Instr{Op: OpAppendBytes, Imm: SliceImm{N: sizeWithModifier(pi.SizeField, pi.SizeModifier)}}}
	default:
		return &InstrNode{Instr: Instr{Op: OpAppendBytes, Imm: SliceImm{N: FieldRefExpr{Name: pi.FieldName}}}}
	}
}

// WriteStructImm recurses into a nested struct's own serialize program.
type WriteStructImm struct {
	RecordName string
	FieldName  string
}
