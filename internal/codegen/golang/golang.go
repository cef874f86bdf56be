// Package golang is the Go LanguageProfile: PDLC's fully-worked reference
// backend. Every struct, packet and enum becomes a Go type with Parse and
// Serialize methods; the shared walker in codegen.go drives the method
// bodies, this package only renders the syntax.
package golang

import (
	"fmt"
	"strings"

	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/cir"
	"github.com/pdlc-project/pdlc/internal/codegen"
	"github.com/pdlc-project/pdlc/internal/model"
)

func init() {
	codegen.Register(codegen.TargetGo, New())
}

// Profile renders PDLC records as Go structs with Parse/Serialize methods.
// It carries a small amount of per-record state (anonQueue) between the
// ReadChunk/WriteChunk call that packs an anonymous fixed field and the
// CheckEq call that immediately follows it in the same CIR sequence.
type Profile struct {
	anonQueue []string
	anonSeq   int
	curRecord string // exported name of the record currently being rendered, for View/Builder framing
}

// New returns a ready-to-use Go profile.
func New() *Profile { return &Profile{} }

func (p *Profile) Name() string { return "go" }

func (p *Profile) FileHeader(file *model.File) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by pdlc from %s. DO NOT EDIT.\n\n", file.Name)
	b.WriteString("package pdlgen\n\n")
	b.WriteString("import (\n\t\"encoding/binary\"\n\t\"fmt\"\n)\n\n")
	b.WriteString(runtimeHelpers)
	return b.String()
}

func (p *Profile) ScalarType(bits int) string {
	switch {
	case bits <= 8:
		return "uint8"
	case bits <= 16:
		return "uint16"
	case bits <= 32:
		return "uint32"
	default:
		return "uint64"
	}
}

func (p *Profile) EnumUnderlyingType(bits int) string { return p.ScalarType(bits) }
func (p *Profile) BytesType() string                  { return "[]byte" }
func (p *Profile) SliceType(elem string) string       { return "[]" + elem }
func (p *Profile) RecordTypeName(name string) string  { return exportName(name) }

func (p *Profile) EnumDecl(e *model.EnumInfo) string {
	var b strings.Builder
	name := exportName(e.Decl.Name)
	under := p.EnumUnderlyingType(e.Decl.Width)
	fmt.Fprintf(&b, "type %s %s\n\nconst (\n", name, under)
	for _, t := range e.Decl.Tags {
		if t.Other {
			continue
		}
		if t.RangeEnd != nil {
			fmt.Fprintf(&b, "\t// %s%s covers [%d, %d]\n", name, exportName(t.Name), t.Value, *t.RangeEnd)
			continue
		}
		fmt.Fprintf(&b, "\t%s%s %s = %d\n", name, exportName(t.Name), name, t.Value)
	}
	b.WriteString(")\n\n")
	return b.String()
}

func (p *Profile) RecordDeclOpen(name string) string {
	p.anonQueue = nil
	p.anonSeq = 0
	return fmt.Sprintf("type %s struct {\n", exportName(name))
}

func (p *Profile) RecordField(name, typ string) string {
	return fmt.Sprintf("\t%s %s\n", exportName(name), typ)
}

func (p *Profile) RecordDeclClose(name string) string {
	return "}\n\n"
}

func (p *Profile) ParseMethodOpen(name string) string {
	p.anonQueue = nil
	return fmt.Sprintf(
		"func (v *%s) Parse(buf []byte) (int, error) {\n\tpos := 0\n\tvar bitmap uint64\n\t_ = bitmap\n",
		exportName(name))
}

func (p *Profile) ParseMethodClose(name string) string {
	return "\treturn pos, nil\n}\n\n"
}

func (p *Profile) SerializeMethodOpen(name string) string {
	p.anonQueue = nil
	return fmt.Sprintf(
		"func (v *%s) Serialize() ([]byte, error) {\n\tvar out []byte\n\tvar bitmap uint64\n",
		exportName(name))
}

// ViewDecl renders a read-only wrapper around a parsed Value: a package
// function that parses buf and reports whether decoding succeeded, plus
// IsValid and Bytes accessors over the original slice. ViewField (called
// once per field right after this) adds the read-only field accessors.
func (p *Profile) ViewDecl(name string) string {
	n := exportName(name)
	p.curRecord = n
	var b strings.Builder
	fmt.Fprintf(&b, "type %sView struct {\n\tv     %s\n\tvalid bool\n\traw   []byte\n}\n\n", n, n)
	fmt.Fprintf(&b, "func Parse%sView(buf []byte) %sView {\n\tvar v %s\n\tn, err := v.Parse(buf)\n\tif err != nil {\n\t\treturn %sView{}\n\t}\n\treturn %sView{v: v, valid: true, raw: buf[:n]}\n}\n\n", n, n, n, n, n)
	fmt.Fprintf(&b, "func (view %sView) IsValid() bool { return view.valid }\n", n)
	fmt.Fprintf(&b, "func (view %sView) Bytes() []byte { return view.raw }\n\n", n)
	return b.String()
}

// ViewField renders one read-only accessor on the current record's View,
// panicking on access through an invalid view rather than returning the
// zero value silently.
func (p *Profile) ViewField(goName, typeName string) string {
	n := p.curRecord
	field := exportName(goName)
	return fmt.Sprintf(
		"func (view %sView) %s() %s {\n\tif !view.valid {\n\t\tpanic(\"pdlc: field access on invalid %sView\")\n\t}\n\treturn view.v.%s\n}\n\n",
		n, field, typeName, n, field)
}

// BuilderDecl renders the owning encoder wrapper: a constructor from an
// already-populated Value, Serialize (delegating straight to Value's own
// method) and Size, computed from the serialized length since PDL's wire
// sizes aren't symbolic constants the way fixed-width scalar fields are.
func (p *Profile) BuilderDecl(name string) string {
	n := exportName(name)
	var b strings.Builder
	fmt.Fprintf(&b, "type %sBuilder struct {\n\tv %s\n}\n\n", n, n)
	fmt.Fprintf(&b, "func New%sBuilder(v %s) %sBuilder { return %sBuilder{v: v} }\n\n", n, n, n, n)
	fmt.Fprintf(&b, "func (b %sBuilder) Serialize() ([]byte, error) { return b.v.Serialize() }\n\n", n)
	fmt.Fprintf(&b, "func (b %sBuilder) Size() (int, error) {\n\tout, err := b.v.Serialize()\n\tif err != nil {\n\t\treturn 0, err\n\t}\n\treturn len(out), nil\n}\n\n", n)
	return b.String()
}

func (p *Profile) SerializeMethodClose(name string) string {
	return "\treturn out, nil\n}\n\n"
}

func (p *Profile) endianExpr(endian ast.Endianness) string {
	if endian == ast.BigEndian {
		return "binary.BigEndian"
	}
	return "binary.LittleEndian"
}

func (p *Profile) ReadChunk(imm cir.ChunkImm, endian ast.Endianness) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\tif len(buf)-pos < %d {\n\t\treturn pos, fmt.Errorf(\"truncated chunk: need %d bytes\")\n\t}\n", imm.Width, imm.Width)
	fmt.Fprintf(&b, "\tchunk := pdlcReadUint(buf[pos:pos+%d], %s)\n\tpos += %d\n", imm.Width, p.endianExpr(endian), imm.Width)
	for _, f := range imm.Fields {
		mask := fmt.Sprintf("0x%x", (uint64(1)<<uint(f.Bits))-1)
		if f.Bits >= 64 {
			mask = "^uint64(0)"
		}
		expr := fmt.Sprintf("(chunk >> %d) & %s", f.BitOffset, mask)
		switch f.FieldName {
		case "":
			name := p.nextAnon()
			fmt.Fprintf(&b, "\t%s := %s\n", name, expr)
		case "_optional_bitmap_":
			fmt.Fprintf(&b, "\tbitmap = %s\n", expr)
		default:
			if strings.HasPrefix(f.FieldName, "_size_(") || strings.HasPrefix(f.FieldName, "_count_(") {
				fmt.Fprintf(&b, "\t%s := %s\n", goLocal(f.FieldName), expr)
			} else {
				fmt.Fprintf(&b, "\tv.%s = %s(%s)\n", exportName(f.FieldName), scalarCast(f.Bits), expr)
			}
		}
	}
	return b.String()
}

func (p *Profile) WriteChunk(imm cir.ChunkImm, endian ast.Endianness) string {
	var b strings.Builder
	b.WriteString("\t{\n\t\tvar chunk uint64\n")
	for _, f := range imm.Fields {
		var expr string
		switch f.FieldName {
		case "":
			v := int64(0)
			if f.ConstValue != nil {
				v = *f.ConstValue
			}
			expr = fmt.Sprintf("%d", v)
		case "_optional_bitmap_":
			expr = "bitmap"
		default:
			if strings.HasPrefix(f.FieldName, "_size_(") || strings.HasPrefix(f.FieldName, "_count_(") {
				length := fmt.Sprintf("len(v.%s)", exportName(canonicalRef(synthRef(f.FieldName))))
				if f.Modifier != 0 {
					length = fmt.Sprintf("%s-(%d)", length, f.Modifier)
				}
				expr = fmt.Sprintf("uint64(%s)", length)
			} else {
				expr = fmt.Sprintf("uint64(v.%s)", exportName(f.FieldName))
			}
		}
		fmt.Fprintf(&b, "\t\tchunk |= (%s & 0x%x) << %d\n", expr, (uint64(1)<<uint(f.Bits))-1, f.BitOffset)
	}
	fmt.Fprintf(&b, "\t\tout = append(out, pdlcWriteUint(chunk, %d, %s)...)\n\t}\n", imm.Width, p.endianExpr(endian))
	return b.String()
}

func (p *Profile) CheckEq(imm cir.CheckEqImm) string {
	var name string
	switch {
	case len(p.anonQueue) > 0:
		// The value was already extracted by the ReadChunk/WriteChunk
		// immediately above, in the same order it was packed.
		name = p.anonQueue[0]
		p.anonQueue = p.anonQueue[1:]
	case imm.Field != "":
		name = "v." + exportName(imm.Field)
	default:
		name = p.nextAnon()
	}
	return fmt.Sprintf("\tif uint64(%s) != %d {\n\t\treturn pos, fmt.Errorf(\"constraint violated: %%v != %d\", %s)\n\t}\n", name, imm.Value, imm.Value, name)
}

func (p *Profile) CheckEnumRange(imm cir.CheckEnumRangeImm) string {
	name := "v." + exportName(imm.Field)
	var b strings.Builder
	fmt.Fprintf(&b, "\t{\n\t\t_raw := uint64(%s)\n\t\t_ok := false\n", name)
	for _, r := range imm.Ranges {
		fmt.Fprintf(&b, "\t\tif _raw >= %d && _raw <= %d {\n\t\t\t_ok = true\n\t\t}\n", r.Low, r.High)
	}
	fmt.Fprintf(&b, "\t\tif !_ok {\n\t\t\treturn pos, fmt.Errorf(\"value %%d out of range for closed enum %s\", _raw)\n\t\t}\n\t}\n", exportName(imm.Field))
	return b.String()
}

func (p *Profile) SliceTake(imm cir.SliceImm) string {
	if imm.N != nil {
		n := p.Expr(imm.N)
		return fmt.Sprintf("\tif pos+int(%s) > len(buf) {\n\t\treturn pos, fmt.Errorf(\"payload exceeds buffer\")\n\t}\n\tv.Payload = append([]byte(nil), buf[pos:pos+int(%s)]...)\n\tpos += int(%s)\n", n, n, n)
	}
	return fmt.Sprintf("\tend := len(buf) - %d\n\tif end < pos {\n\t\tend = pos\n\t}\n\tv.Payload = append([]byte(nil), buf[pos:end]...)\n\tpos = end\n", imm.TrailerReserve)
}

func (p *Profile) SliceTail() string {
	return "\tv.Payload = append([]byte(nil), buf[pos:]...)\n\tpos = len(buf)\n"
}

func (p *Profile) ParseStruct(imm cir.ParseStructImm) string {
	return fmt.Sprintf("\t{\n\t\tn, err := v.%s.Parse(buf[pos:])\n\t\tif err != nil {\n\t\t\treturn pos, err\n\t\t}\n\t\tpos += n\n\t}\n", exportName(imm.FieldName))
}

func (p *Profile) WriteStructCall(imm cir.WriteStructImm) string {
	return fmt.Sprintf("\t{\n\t\tb, err := v.%s.Serialize()\n\t\tif err != nil {\n\t\t\treturn nil, err\n\t\t}\n\t\tout = append(out, b...)\n\t}\n", exportName(imm.FieldName))
}

func (p *Profile) AppendBytes(imm cir.SliceImm) string {
	return "\tout = append(out, v.Payload...)\n"
}

func (p *Profile) PadZeroes(imm cir.PadImm) string {
	return fmt.Sprintf("\tout = append(out, make([]byte, %d)...)\n", imm.N)
}

func (p *Profile) PadSkip(imm cir.PadImm) string {
	return fmt.Sprintf("\tpos += %d\n", imm.N)
}

func (p *Profile) LoopCount(bound, body string) string {
	return fmt.Sprintf("\tfor i := 0; i < int(%s); i++ {\n%s\t}\n", bound, codegen2Indent(body))
}

func (p *Profile) LoopUntilSize(bound, body string) string {
	return fmt.Sprintf("\tfor consumed := 0; consumed < int(%s); {\n%s\t}\n", bound, codegen2Indent(body))
}

func (p *Profile) LoopWhileNonEmpty(body string) string {
	return fmt.Sprintf("\tfor pos < len(buf) {\n%s\t}\n", codegen2Indent(body))
}

func (p *Profile) If(bitIndex int, presentWhenSet bool, body string) string {
	op := "!= 0"
	if !presentWhenSet {
		op = "== 0"
	}
	return fmt.Sprintf("\tif (bitmap>>%d)&1 %s {\n%s\t}\n", bitIndex, op, codegen2Indent(body))
}

func (p *Profile) Expr(e cir.Expr) string {
	switch ex := e.(type) {
	case cir.ConstExpr:
		return fmt.Sprintf("%d", ex.Value)
	case cir.FieldRefExpr:
		if strings.HasPrefix(ex.Name, "_size_(") || strings.HasPrefix(ex.Name, "_count_(") {
			return goLocal(ex.Name)
		}
		return "v." + exportName(ex.Name)
	case cir.AddExpr:
		return fmt.Sprintf("(%s + %s)", p.Expr(ex.A), p.Expr(ex.B))
	case cir.MulExpr:
		return fmt.Sprintf("(%s * %s)", p.Expr(ex.A), p.Expr(ex.B))
	case cir.MaxExpr:
		return fmt.Sprintf("pdlcMax(%s, %s)", p.Expr(ex.A), p.Expr(ex.B))
	}
	return "0"
}

func (p *Profile) Indent(s string) string { return codegen2Indent(s) }

func (p *Profile) nextAnon() string {
	name := fmt.Sprintf("_fixed%d", p.anonSeq)
	p.anonSeq++
	p.anonQueue = append(p.anonQueue, name)
	return name
}

func goLocal(synthetic string) string {
	r := strings.NewReplacer("_size_(", "size_", "_count_(", "count_", ")", "")
	return r.Replace(synthetic)
}

// synthRef extracts the referent name from a synthesized "_size_(x)" or
// "_count_(x)" field key.
func synthRef(synthetic string) string {
	name := strings.TrimPrefix(synthetic, "_size_(")
	name = strings.TrimPrefix(name, "_count_(")
	return strings.TrimSuffix(name, ")")
}

// canonicalRef maps the payload/body referent spelling to the struct
// field name the walker actually declared for it.
func canonicalRef(ref string) string {
	if ref == "_payload_" || ref == "_body_" {
		return "payload"
	}
	return ref
}

func scalarCast(bits int) string {
	switch {
	case bits <= 8:
		return "uint8"
	case bits <= 16:
		return "uint16"
	case bits <= 32:
		return "uint32"
	default:
		return "uint64"
	}
}

func exportName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func codegen2Indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("\t")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

const runtimeHelpers = `func pdlcReadUint(b []byte, endian binary.ByteOrder) uint64 {
	var buf [8]byte
	if endian == binary.BigEndian {
		copy(buf[8-len(b):], b)
	} else {
		copy(buf[:len(b)], b)
	}
	return endian.Uint64(buf[:])
}

func pdlcWriteUint(v uint64, width int, endian binary.ByteOrder) []byte {
	var buf [8]byte
	endian.PutUint64(buf[:], v)
	if endian == binary.BigEndian {
		return buf[8-width:]
	}
	return buf[:width]
}

func pdlcMax(a, b int) int {
	if a > b {
		return a
	}
	return b
}

`
