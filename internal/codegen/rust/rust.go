// Package rust is the Rust LanguageProfile. It shares codegen.go's walker
// with every other backend; only type names and statement syntax differ
// from the Go reference backend.
package rust

import (
	"fmt"
	"strings"

	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/cir"
	"github.com/pdlc-project/pdlc/internal/codegen"
	"github.com/pdlc-project/pdlc/internal/model"
)

func init() {
	codegen.Register(codegen.TargetRust, New())
}

// Profile renders PDLC records as Rust structs with parse/serialize
// inherent methods over Vec<u8> buffers.
type Profile struct {
	anonQueue []string
	anonSeq   int
	curRecord string // exported name of the record currently being rendered, for View/Builder framing
}

func New() *Profile { return &Profile{} }

func (p *Profile) Name() string { return "rust" }

func (p *Profile) FileHeader(file *model.File) string {
	return fmt.Sprintf("// Code generated by pdlc from %s. DO NOT EDIT.\n\n%s", file.Name, runtimeHelpers)
}

const runtimeHelpers = `fn pdlc_read_uint(b: &[u8], big_endian: bool) -> u64 {
    let mut buf = [0u8; 8];
    if big_endian {
        buf[8 - b.len()..].copy_from_slice(b);
        u64::from_be_bytes(buf)
    } else {
        buf[..b.len()].copy_from_slice(b);
        u64::from_le_bytes(buf)
    }
}

fn pdlc_write_uint(v: u64, width: usize, big_endian: bool) -> Vec<u8> {
    if big_endian {
        v.to_be_bytes()[8 - width..].to_vec()
    } else {
        v.to_le_bytes()[..width].to_vec()
    }
}

`


func (p *Profile) ScalarType(bits int) string {
	switch {
	case bits <= 8:
		return "u8"
	case bits <= 16:
		return "u16"
	case bits <= 32:
		return "u32"
	default:
		return "u64"
	}
}

func (p *Profile) EnumUnderlyingType(bits int) string { return p.ScalarType(bits) }
func (p *Profile) BytesType() string                  { return "Vec<u8>" }
func (p *Profile) SliceType(elem string) string       { return "Vec<" + elem + ">" }
func (p *Profile) RecordTypeName(name string) string  { return exportName(name) }

func (p *Profile) EnumDecl(e *model.EnumInfo) string {
	var b strings.Builder
	name := exportName(e.Decl.Name)
	under := p.EnumUnderlyingType(e.Decl.Width)
	fmt.Fprintf(&b, "#[repr(%s)]\npub enum %s {\n", under, name)
	for _, t := range e.Decl.Tags {
		if t.Other || t.RangeEnd != nil {
			continue
		}
		fmt.Fprintf(&b, "    %s = %d,\n", exportName(t.Name), t.Value)
	}
	b.WriteString("}\n\n")
	return b.String()
}

func (p *Profile) RecordDeclOpen(name string) string {
	p.anonQueue, p.anonSeq = nil, 0
	return fmt.Sprintf("pub struct %s {\n", exportName(name))
}

func (p *Profile) RecordField(name, typ string) string {
	return fmt.Sprintf("    pub %s: %s,\n", snake(name), typ)
}

func (p *Profile) RecordDeclClose(name string) string { return "}\n\n" }

func (p *Profile) ParseMethodOpen(name string) string {
	p.anonQueue = nil
	return fmt.Sprintf("impl %s {\n    pub fn parse(buf: &[u8]) -> Result<(Self, usize), String> {\n        let mut pos: usize = 0;\n        let mut bitmap: u64 = 0;\n        let mut v = Self::default();\n", exportName(name))
}

func (p *Profile) ParseMethodClose(name string) string {
	return "        Ok((v, pos))\n    }\n"
}

func (p *Profile) SerializeMethodOpen(name string) string {
	p.anonQueue = nil
	return "    pub fn serialize(&self) -> Result<Vec<u8>, String> {\n        let mut out: Vec<u8> = Vec::new();\n        let mut bitmap: u64 = 0;\n"
}

func (p *Profile) SerializeMethodClose(name string) string {
	return "        Ok(out)\n    }\n}\n\n"
}

// ViewDecl renders a read-only wrapper around a parsed Value: a struct
// holding the decoded value, a validity flag and the original slice, plus
// a parse constructor, is_valid and bytes. ViewField adds one read-only
// accessor per field.
func (p *Profile) ViewDecl(name string) string {
	n := exportName(name)
	p.curRecord = n
	var b strings.Builder
	fmt.Fprintf(&b, "pub struct %sView<'a> {\n    v: %s,\n    valid: bool,\n    raw: &'a [u8],\n}\n\n", n, n)
	fmt.Fprintf(&b, "impl<'a> %sView<'a> {\n", n)
	fmt.Fprintf(&b, "    pub fn parse(buf: &'a [u8]) -> Self {\n        match %s::parse(buf) {\n            Ok((v, n)) => %sView { v, valid: true, raw: &buf[..n] },\n            Err(_) => %sView { v: %s::default(), valid: false, raw: &buf[..0] },\n        }\n    }\n\n", n, n, n, n)
	b.WriteString("    pub fn is_valid(&self) -> bool { self.valid }\n")
	b.WriteString("    pub fn bytes(&self) -> &[u8] { self.raw }\n")
	return b.String()
}

// ViewField renders one read-only accessor on the current record's View.
// Every accessor panics if the view failed to parse, rather than handing
// back a default value that looks like real decoded data.
func (p *Profile) ViewField(goName, typeName string) string {
	field := snake(goName)
	return fmt.Sprintf("    pub fn %s(&self) -> &%s {\n        if !self.valid { panic!(\"pdlc: field access on invalid view\"); }\n        &self.v.%s\n    }\n\n", field, typeName, field)
}

// BuilderDecl closes the View's impl block (opened by ViewDecl) and
// renders the owning encoder wrapper: a constructor from an
// already-populated Value, serialize (delegating to Value's own method)
// and size, computed from the serialized length.
func (p *Profile) BuilderDecl(name string) string {
	n := exportName(name)
	var b strings.Builder
	b.WriteString("}\n\n")
	fmt.Fprintf(&b, "pub struct %sBuilder {\n    v: %s,\n}\n\n", n, n)
	fmt.Fprintf(&b, "impl %sBuilder {\n", n)
	fmt.Fprintf(&b, "    pub fn new(v: %s) -> Self { %sBuilder { v } }\n\n", n, n)
	b.WriteString("    pub fn serialize(&self) -> Result<Vec<u8>, String> { self.v.serialize() }\n\n")
	b.WriteString("    pub fn size(&self) -> Result<usize, String> { self.serialize().map(|out| out.len()) }\n")
	b.WriteString("}\n\n")
	return b.String()
}

func (p *Profile) ReadChunk(imm cir.ChunkImm, endian ast.Endianness) string {
	var b strings.Builder
	fmt.Fprintf(&b, "        if buf.len() - pos < %d { return Err(\"truncated chunk\".to_string()); }\n", imm.Width)
	fmt.Fprintf(&b, "        let chunk = pdlc_read_uint(&buf[pos..pos+%d], %v);\n        pos += %d;\n", imm.Width, endian == ast.BigEndian, imm.Width)
	for _, f := range imm.Fields {
		mask := (uint64(1) << uint(f.Bits)) - 1
		expr := fmt.Sprintf("(chunk >> %d) & 0x%x", f.BitOffset, mask)
		switch f.FieldName {
		case "":
			name := p.nextAnon()
			fmt.Fprintf(&b, "        let %s = %s;\n", name, expr)
		case "_optional_bitmap_":
			fmt.Fprintf(&b, "        bitmap = %s;\n", expr)
		default:
			if isSynthetic(f.FieldName) {
				fmt.Fprintf(&b, "        let %s = %s;\n", rustLocal(f.FieldName), expr)
			} else {
				fmt.Fprintf(&b, "        v.%s = %s as %s;\n", snake(f.FieldName), expr, p.ScalarType(f.Bits))
			}
		}
	}
	return b.String()
}

func (p *Profile) WriteChunk(imm cir.ChunkImm, endian ast.Endianness) string {
	var b strings.Builder
	b.WriteString("        {\n            let mut chunk: u64 = 0;\n")
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
				length := fmt.Sprintf("self.%s.len() as i64", snake(canonicalRef(synthRef(f.FieldName))))
				if f.Modifier != 0 {
					length = fmt.Sprintf("%s-(%d)", length, f.Modifier)
				}
				expr = fmt.Sprintf("(%s) as u64", length)
			} else {
				expr = fmt.Sprintf("self.%s as u64", snake(f.FieldName))
			}
		}
		fmt.Fprintf(&b, "            chunk |= (%s & 0x%x) << %d;\n", expr, (uint64(1)<<uint(f.Bits))-1, f.BitOffset)
	}
	fmt.Fprintf(&b, "            out.extend(pdlc_write_uint(chunk, %d, %v));\n        }\n", imm.Width, endian == ast.BigEndian)
	return b.String()
}

func (p *Profile) CheckEq(imm cir.CheckEqImm) string {
	var name string
	switch {
	case len(p.anonQueue) > 0:
		name = p.anonQueue[0]
		p.anonQueue = p.anonQueue[1:]
	case imm.Field != "":
		name = "v." + snake(imm.Field)
	default:
		name = p.nextAnon()
	}
	return fmt.Sprintf("        if %s as i64 != %d { return Err(\"constraint violated\".to_string()); }\n", name, imm.Value)
}

func (p *Profile) CheckEnumRange(imm cir.CheckEnumRangeImm) string {
	name := "v." + snake(imm.Field)
	var b strings.Builder
	fmt.Fprintf(&b, "        {\n            let raw = %s as i64;\n            let mut ok = false;\n", name)
	for _, r := range imm.Ranges {
		fmt.Fprintf(&b, "            if raw >= %d && raw <= %d { ok = true; }\n", r.Low, r.High)
	}
	b.WriteString("            if !ok { return Err(\"value out of range for closed enum\".to_string()); }\n        }\n")
	return b.String()
}

func (p *Profile) SliceTake(imm cir.SliceImm) string {
	if imm.N != nil {
		n := p.Expr(imm.N)
		return fmt.Sprintf("        let take = %s as usize;\n        v.payload = buf[pos..pos+take].to_vec();\n        pos += take;\n", n)
	}
	return fmt.Sprintf("        let end = buf.len().saturating_sub(%d);\n        v.payload = buf[pos..end].to_vec();\n        pos = end;\n", imm.TrailerReserve)
}

func (p *Profile) SliceTail() string {
	return "        v.payload = buf[pos..].to_vec();\n        pos = buf.len();\n"
}

func (p *Profile) ParseStruct(imm cir.ParseStructImm) string {
	return fmt.Sprintf("        let (%s_val, n) = %s::parse(&buf[pos..])?;\n        v.%s = %s_val;\n        pos += n;\n",
		snake(imm.FieldName), exportName(imm.RecordName), snake(imm.FieldName), snake(imm.FieldName))
}

func (p *Profile) WriteStructCall(imm cir.WriteStructImm) string {
	return fmt.Sprintf("        out.extend(self.%s.serialize()?);\n", snake(imm.FieldName))
}

func (p *Profile) AppendBytes(imm cir.SliceImm) string {
	return "        out.extend(self.payload.clone());\n"
}

func (p *Profile) PadZeroes(imm cir.PadImm) string {
	return fmt.Sprintf("        out.extend(vec![0u8; %d]);\n", imm.N)
}

func (p *Profile) PadSkip(imm cir.PadImm) string {
	return fmt.Sprintf("        pos += %d;\n", imm.N)
}

func (p *Profile) LoopCount(bound, body string) string {
	return fmt.Sprintf("        for _ in 0..(%s) {\n%s        }\n", bound, indent(body, "    "))
}

func (p *Profile) LoopUntilSize(bound, body string) string {
	return fmt.Sprintf("        let mut consumed: usize = 0;\n        while consumed < (%s) as usize {\n%s        }\n", bound, indent(body, "    "))
}

func (p *Profile) LoopWhileNonEmpty(body string) string {
	return fmt.Sprintf("        while pos < buf.len() {\n%s        }\n", indent(body, "    "))
}

func (p *Profile) If(bitIndex int, presentWhenSet bool, body string) string {
	op := "!= 0"
	if !presentWhenSet {
		op = "== 0"
	}
	return fmt.Sprintf("        if (bitmap >> %d) & 1 %s {\n%s        }\n", bitIndex, op, indent(body, "    "))
}

func (p *Profile) Expr(e cir.Expr) string {
	switch ex := e.(type) {
	case cir.ConstExpr:
		return fmt.Sprintf("%d", ex.Value)
	case cir.FieldRefExpr:
		if isSynthetic(ex.Name) {
			return rustLocal(ex.Name)
		}
		return "v." + snake(ex.Name)
	case cir.AddExpr:
		return fmt.Sprintf("(%s + %s)", p.Expr(ex.A), p.Expr(ex.B))
	case cir.MulExpr:
		return fmt.Sprintf("(%s * %s)", p.Expr(ex.A), p.Expr(ex.B))
	case cir.MaxExpr:
		return fmt.Sprintf("std::cmp::max(%s, %s)", p.Expr(ex.A), p.Expr(ex.B))
	}
	return "0"
}

func (p *Profile) Indent(s string) string { return indent(s, "    ") }

func (p *Profile) nextAnon() string {
	name := fmt.Sprintf("_fixed_%d", p.anonSeq)
	p.anonSeq++
	p.anonQueue = append(p.anonQueue, name)
	return name
}

func isSynthetic(name string) bool {
	return strings.HasPrefix(name, "_size_(") || strings.HasPrefix(name, "_count_(")
}

func synthRef(name string) string {
	name = strings.TrimPrefix(name, "_size_(")
	name = strings.TrimPrefix(name, "_count_(")
	return strings.TrimSuffix(name, ")")
}

func rustLocal(synthetic string) string {
	r := strings.NewReplacer("_size_(", "size_", "_count_(", "count_", ")", "")
	return r.Replace(synthetic)
}

func canonicalRef(ref string) string {
	if ref == "_payload_" || ref == "_body_" {
		return "payload"
	}
	return ref
}

func exportName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func snake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(prefix)
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}
