// Package layout derives, for every field in a resolved struct or packet,
// its chunk packing, payload discipline, array category, and
// optional-presence bit position.
package layout

import (
	"go.uber.org/zap"

	"github.com/pdlc-project/pdlc/errors"
	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/model"
)

// Calculator computes and caches RecordLayouts. Layouts are cached by
// record name because packets and structs can be embedded by many other
// records within one file.
type Calculator struct {
	cache map[string]*RecordLayout
}

// NewCalculator creates an empty, ready-to-use Calculator.
func NewCalculator() *Calculator {
	return &Calculator{cache: make(map[string]*RecordLayout)}
}

// Calculate returns the RecordLayout for the named struct or packet,
// computing and caching it on first use.
func (c *Calculator) Calculate(file *model.File, name string) (*RecordLayout, error) {
	if cached, ok := c.cache[name]; ok {
		return cached, nil
	}

	var fields []ast.Field
	if s, ok := file.Structs[name]; ok {
		fields = s.Fields
	} else if p, ok := file.Packets[name]; ok {
		fields = p.Fields
	} else {
		return nil, errors.New(errors.PhaseLayout, errors.KindUnresolvedName).
			Detail("no struct or packet named %q", name).Build()
	}

	// A record that contains itself sees an empty layout while its own is
	// being computed.
	c.cache[name] = &RecordLayout{}
	rl, err := c.calculateFields(file, name, fields)
	if err != nil {
		delete(c.cache, name)
		Logger().Debug("layout failed", zap.String("record", name), zap.Error(err))
		return nil, err
	}
	c.cache[name] = rl
	return rl, nil
}

func enumWidth(file *model.File, ref string) int {
	if e, ok := file.Enums[ref]; ok {
		return e.Decl.Width
	}
	return 0
}

func byteLen(bits int) int {
	return (bits + 7) / 8
}

func innerFieldName(f ast.Field) string {
	switch field := f.(type) {
	case *ast.ScalarField:
		return field.Name
	case *ast.EnumField:
		return field.Name
	case *ast.StructField:
		return field.Name
	case *ast.ArrayField:
		return field.Name
	case *ast.TypeRefField:
		return field.Name
	}
	return ""
}

func sizeFieldKey(referent string) string  { return "_size_(" + referent + ")" }
func countFieldKey(referent string) string { return "_count_(" + referent + ")" }

func (c *Calculator) calculateFields(file *model.File, name string, fields []ast.Field) (*RecordLayout, error) {
	rl := &RecordLayout{
		Name:       name,
		FieldChunk: make(map[string]fieldLocation),
		Arrays:     make(map[string]ArrayLayout),
	}

	totalOptionals := 0
	for _, f := range fields {
		if _, ok := f.(*ast.OptionalField); ok {
			totalOptionals++
		}
	}
	if totalOptionals > 0 {
		rl.OptionalBitmapWidth = roundChunkWidth(byteLen(totalOptionals))
		if rl.OptionalBitmapWidth == 0 {
			return nil, errors.New(errors.PhaseLayout, errors.KindChunkNotByteAligned).
				Path(name).
				Detail("record has too many optional fields (%d) to fit a single presence chunk", totalOptionals).
				Build()
		}
	}

	acc := 0
	var pending []FieldPacking
	bitmapInserted := false
	optIdx := 0

	closeChunk := func(span errors.Span) error {
		if acc == 0 {
			return nil
		}
		if acc%8 != 0 {
			return errors.New(errors.PhaseLayout, errors.KindChunkNotByteAligned).
				At(span).Path(name).
				Detail("chunk left %d bits short of a byte boundary", 8-acc%8).
				Build()
		}
		w := roundChunkWidth(acc / 8)
		if w == 0 {
			return errors.New(errors.PhaseLayout, errors.KindChunkNotByteAligned).
				At(span).Path(name).
				Detail("chunk of %d bytes exceeds the largest supported width (8 bytes)", acc/8).
				Build()
		}
		idx := len(rl.Chunks)
		rl.Chunks = append(rl.Chunks, Chunk{Width: w, Fields: pending})
		for _, fp := range pending {
			if fp.FieldName != "" {
				rl.FieldChunk[fp.FieldName] = fieldLocation{ChunkIndex: idx, Packing: fp}
			}
		}
		pending = nil
		acc = 0
		return nil
	}

	addPackable := func(fieldName string, bits int, span errors.Span) error {
		pending = append(pending, FieldPacking{FieldName: fieldName, BitOffset: acc, Bits: bits})
		acc += bits
		if acc > 64 {
			return errors.New(errors.PhaseLayout, errors.KindChunkNotByteAligned).
				At(span).Path(name).
				Detail("chunk accumulator exceeds 64 bits before reaching a byte boundary").
				Build()
		}
		return nil
	}

	for i, f := range fields {
		switch field := f.(type) {
		case *ast.ScalarField:
			if err := addPackable(field.Name, field.Bits, field.Span()); err != nil {
				return nil, err
			}
		case *ast.EnumField:
			if err := addPackable(field.Name, enumWidth(file, field.EnumRef), field.Span()); err != nil {
				return nil, err
			}
		case *ast.ReservedField:
			if err := addPackable("", field.Bits, field.Span()); err != nil {
				return nil, err
			}
		case *ast.FixedScalarField:
			if err := addPackable("", field.Bits, field.Span()); err != nil {
				return nil, err
			}
		case *ast.FixedEnumField:
			if err := addPackable("", enumWidth(file, field.EnumRef), field.Span()); err != nil {
				return nil, err
			}
		case *ast.ScalarGroupField:
			if err := addPackable("", field.Bits, field.Span()); err != nil {
				return nil, err
			}
		case *ast.EnumGroupField:
			if err := addPackable("", enumWidth(file, field.EnumRef), field.Span()); err != nil {
				return nil, err
			}
		case *ast.SizeField:
			if err := addPackable(sizeFieldKey(field.Referent), field.Bits, field.Span()); err != nil {
				return nil, err
			}
		case *ast.CountField:
			if err := addPackable(countFieldKey(field.Referent), field.Bits, field.Span()); err != nil {
				return nil, err
			}

		case *ast.OptionalField:
			if err := closeChunk(field.Span()); err != nil {
				return nil, err
			}
			if !bitmapInserted {
				rl.Chunks = append(rl.Chunks, Chunk{
					Width: rl.OptionalBitmapWidth,
					Fields: []FieldPacking{{
						FieldName: "_optional_bitmap_",
						BitOffset: 0,
						Bits:      rl.OptionalBitmapWidth * 8,
					}},
				})
				bitmapInserted = true
			}
			rl.Optionals = append(rl.Optionals, OptionalDescriptor{
				FieldName:      innerFieldName(field.Inner),
				CondBitIndex:   optIdx,
				PresentWhenSet: !field.Condition.Negated,
			})
			optIdx++

			switch inner := field.Inner.(type) {
			case *ast.ScalarField:
				if err := addPackable(inner.Name, inner.Bits, inner.Span()); err != nil {
					return nil, err
				}
				if err := closeChunk(inner.Span()); err != nil {
					return nil, err
				}
			case *ast.EnumField:
				if err := addPackable(inner.Name, enumWidth(file, inner.EnumRef), inner.Span()); err != nil {
					return nil, err
				}
				if err := closeChunk(inner.Span()); err != nil {
					return nil, err
				}
			case *ast.ArrayField:
				al, err := c.computeArrayLayout(file, fields, i, inner)
				if err != nil {
					return nil, err
				}
				rl.Arrays[inner.Name] = al
			case *ast.StructField:
				// Constant or variable size handled by the referenced
				// struct's own RecordLayout; nothing further to record.
			}

		case *ast.ArrayField:
			if err := closeChunk(field.Span()); err != nil {
				return nil, err
			}
			al, err := c.computeArrayLayout(file, fields, i, field)
			if err != nil {
				return nil, err
			}
			rl.Arrays[field.Name] = al

		case *ast.StructField:
			if err := closeChunk(field.Span()); err != nil {
				return nil, err
			}

		case *ast.PayloadField:
			if err := closeChunk(field.Span()); err != nil {
				return nil, err
			}
			pi, err := c.computePayloadInfo(file, fields, i, "_payload_", field.Span())
			if err != nil {
				return nil, err
			}
			rl.Payload = pi

		case *ast.BodyField:
			if err := closeChunk(field.Span()); err != nil {
				return nil, err
			}
			pi, err := c.computePayloadInfo(file, fields, i, "_body_", field.Span())
			if err != nil {
				return nil, err
			}
			rl.Payload = pi
		}
	}
	if err := closeChunk(errors.Span{}); err != nil {
		return nil, err
	}

	rl.ConstantBytes = c.constantBytes(file, rl)
	return rl, nil
}

func (c *Calculator) constantBytes(file *model.File, rl *RecordLayout) int {
	total := 0
	for _, ch := range rl.Chunks {
		total += ch.Width
	}
	for _, al := range rl.Arrays {
		switch al.Sizing {
		case ArraySizingConstantCount:
			total += maxInt(al.Count*al.ElementBytes, al.Padding)
		case ArraySizingConstantSize:
			total += maxInt(al.Count, al.Padding)
		}
	}
	return total
}

// computeArrayLayout derives the category and sizing of an array field.
func (c *Calculator) computeArrayLayout(file *model.File, fields []ast.Field, idx int, field *ast.ArrayField) (ArrayLayout, error) {
	al := ArrayLayout{Padding: field.Padding}

	switch {
	case field.ElementBits == 8:
		al.Category = ArrayByteElement
		al.ElementBytes = 1
	case field.ElementBits > 0:
		al.Category = ArrayScalarElement
		al.ElementBytes = byteLen(field.ElementBits)
	case file != nil && isEnumRef(file, field.ElementTypeRef):
		al.Category = ArrayEnumElement
		al.ElementBytes = byteLen(enumWidth(file, field.ElementTypeRef))
	default:
		if s, ok := file.Structs[field.ElementTypeRef]; ok && s.Size == model.SizeConstant {
			al.Category = ArraySizedStructElement
			if el, err := c.Calculate(file, field.ElementTypeRef); err == nil {
				al.ElementBytes = el.ConstantBytes
			}
		} else {
			al.Category = ArrayUnsizedStructElement
		}
	}

	if al.Padding > 0 && al.ElementBytes > 0 && al.Padding < al.ElementBytes {
		return al, errors.New(errors.PhaseLayout, errors.KindPaddingTooSmall).
			At(field.Span()).
			Detail("array %q is padded to %d bytes, too small to hold even one %d-byte element", field.Name, al.Padding, al.ElementBytes).
			Build()
	}

	if field.SizeKind == ast.ArraySizeConstant {
		if al.Category == ArrayByteElement {
			al.Sizing = ArraySizingConstantSize
		} else {
			al.Sizing = ArraySizingConstantCount
		}
		al.Count = field.Count
		return al, nil
	}

	for j := 0; j < idx; j++ {
		switch bound := fields[j].(type) {
		case *ast.SizeField:
			if bound.Referent == field.Name {
				al.Sizing = ArraySizingVariableSize
				al.BoundByField = sizeFieldKey(field.Name)
				al.SizeModifier = bound.Modifier
				return al, nil
			}
		case *ast.CountField:
			if bound.Referent == field.Name {
				al.Sizing = ArraySizingVariableCount
				al.BoundByField = countFieldKey(field.Name)
				return al, nil
			}
		}
	}

	if idx == len(fields)-1 {
		al.Sizing = ArraySizingUnknown
		return al, nil
	}

	return al, errors.New(errors.PhaseLayout, errors.KindAmbiguousSizing).
		At(field.Span()).
		Detail("array %q has no binding Size/Count field and is not the record's last field", field.Name).
		Build()
}

func isEnumRef(file *model.File, name string) bool {
	if name == "" {
		return false
	}
	_, ok := file.Enums[name]
	return ok
}

// computePayloadInfo derives a Payload or Body field's discipline.
func (c *Calculator) computePayloadInfo(file *model.File, fields []ast.Field, idx int, fieldName string, span errors.Span) (*PayloadInfo, error) {
	for j := 0; j < idx; j++ {
		if sf, ok := fields[j].(*ast.SizeField); ok && sf.Referent == fieldName {
			return &PayloadInfo{
				FieldName:    fieldName,
				Discipline:   PayloadVariableSize,
				SizeField:    sizeFieldKey(fieldName),
				SizeModifier: sf.Modifier,
			}, nil
		}
	}

	if idx == len(fields)-1 {
		return &PayloadInfo{FieldName: fieldName, Discipline: PayloadUnknownTerminal}, nil
	}

	trailer, err := c.constantSuffixBytes(file, fields[idx+1:])
	if err != nil {
		return nil, err
	}
	return &PayloadInfo{FieldName: fieldName, Discipline: PayloadUnknownWithTrailer, TrailerBytes: trailer}, nil
}

// constantSuffixBytes sums the byte length of a trailer field sequence
// that must itself be constant-sized: it runs after an unbounded Payload
// or Body field, so there is no later field to bind its own extent.
func (c *Calculator) constantSuffixBytes(file *model.File, fields []ast.Field) (int, error) {
	total := 0
	bits := 0
	for _, f := range fields {
		switch field := f.(type) {
		case *ast.ScalarField:
			bits += field.Bits
		case *ast.EnumField:
			bits += enumWidth(file, field.EnumRef)
		case *ast.ReservedField:
			bits += field.Bits
		case *ast.FixedScalarField:
			bits += field.Bits
		case *ast.FixedEnumField:
			bits += enumWidth(file, field.EnumRef)
		case *ast.StructField:
			s, ok := file.Structs[field.StructRef]
			if !ok || s.Size != model.SizeConstant {
				return 0, errors.New(errors.PhaseLayout, errors.KindAmbiguousPayload).
					At(field.Span()).
					Detail("trailer field %q after an unbounded payload must have a constant size", field.Name).
					Build()
			}
			total += s.ConstantBytes
		case *ast.ArrayField:
			if field.SizeKind != ast.ArraySizeConstant {
				return 0, errors.New(errors.PhaseLayout, errors.KindAmbiguousPayload).
					At(field.Span()).
					Detail("trailer array %q after an unbounded payload must have a constant size", field.Name).
					Build()
			}
			if field.ElementBits == 8 {
				total += field.Count
			} else {
				total += field.Count * byteLen(field.ElementBits)
			}
		default:
			return 0, errors.New(errors.PhaseLayout, errors.KindAmbiguousPayload).
				At(f.Span()).
				Detail("field cannot appear as a constant-size trailer after an unbounded payload").
				Build()
		}
	}
	if bits%8 != 0 {
		return 0, errors.New(errors.PhaseLayout, errors.KindChunkNotByteAligned).
			Detail("trailer fields leave %d bits short of a byte boundary", 8-bits%8).
			Build()
	}
	total += bits / 8
	return total, nil
}
