// Package cxx is the C++ LanguageProfile, sharing codegen.go's walker.
package cxx

import (
	"fmt"
	"strings"

	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/cir"
	"github.com/pdlc-project/pdlc/internal/codegen"
	"github.com/pdlc-project/pdlc/internal/model"
)

func init() {
	codegen.Register(codegen.TargetCxx, New())
}

// Profile renders PDLC records as C++ structs with parse/serialize
// member functions over std::vector<uint8_t> buffers.
type Profile struct {
	anonQueue []string
	anonSeq   int
	curRecord string // name of the record currently being rendered, for View/Builder framing
}

func New() *Profile { return &Profile{} }

func (p *Profile) Name() string { return "cpp" }

func (p *Profile) FileHeader(file *model.File) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by pdlc from %s. DO NOT EDIT.\n\n", file.Name)
	b.WriteString("#include <cstdint>\n#include <vector>\n#include <stdexcept>\n#include <algorithm>\n\n")
	b.WriteString(runtimeHelpers)
	return b.String()
}

func (p *Profile) ScalarType(bits int) string {
	switch {
	case bits <= 8:
		return "uint8_t"
	case bits <= 16:
		return "uint16_t"
	case bits <= 32:
		return "uint32_t"
	default:
		return "uint64_t"
	}
}

func (p *Profile) EnumUnderlyingType(bits int) string { return p.ScalarType(bits) }
func (p *Profile) BytesType() string                  { return "std::vector<uint8_t>" }
func (p *Profile) SliceType(elem string) string       { return "std::vector<" + elem + ">" }
func (p *Profile) RecordTypeName(name string) string  { return name }

func (p *Profile) EnumDecl(e *model.EnumInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "enum class %s : %s {\n", e.Decl.Name, p.EnumUnderlyingType(e.Decl.Width))
	for _, t := range e.Decl.Tags {
		if t.Other || t.RangeEnd != nil {
			continue
		}
		fmt.Fprintf(&b, "    %s = %d,\n", t.Name, t.Value)
	}
	b.WriteString("};\n\n")
	return b.String()
}

func (p *Profile) RecordDeclOpen(name string) string {
	p.anonQueue, p.anonSeq = nil, 0
	return fmt.Sprintf("struct %s {\n", name)
}

func (p *Profile) RecordField(name, typ string) string {
	return fmt.Sprintf("    %s %s{};\n", typ, name)
}

func (p *Profile) RecordDeclClose(name string) string {
	return "\n    size_t Parse(const uint8_t* buf, size_t len);\n    std::vector<uint8_t> Serialize() const;\n};\n\n"
}

func (p *Profile) ParseMethodOpen(name string) string {
	p.anonQueue = nil
	return fmt.Sprintf("size_t %s::Parse(const uint8_t* buf, size_t len) {\n    size_t pos = 0;\n    uint64_t bitmap = 0;\n", name)
}

func (p *Profile) ParseMethodClose(name string) string {
	return "    return pos;\n}\n\n"
}

func (p *Profile) SerializeMethodOpen(name string) string {
	p.anonQueue = nil
	return fmt.Sprintf("std::vector<uint8_t> %s::Serialize() const {\n    std::vector<uint8_t> out;\n    uint64_t bitmap = 0;\n", name)
}

func (p *Profile) SerializeMethodClose(name string) string {
	return "    return out;\n}\n\n"
}

// ViewDecl renders a read-only wrapper around a parsed Value: a class
// holding the decoded value, a validity flag and the original buffer
// pointer/length, plus a static parse constructor, is_valid and bytes.
// ViewField adds one read-only accessor per field.
func (p *Profile) ViewDecl(name string) string {
	p.curRecord = name
	var b strings.Builder
	fmt.Fprintf(&b, "class %sView {\npublic:\n", name)
	fmt.Fprintf(&b, "    static %sView Parse(const uint8_t* buf, size_t len) {\n        %sView view;\n        size_t n = view.v_.Parse(buf, len);\n        view.valid_ = (n > 0 || len == 0);\n        view.raw_ = buf;\n        view.rawLen_ = n;\n        return view;\n    }\n\n", name, name)
	b.WriteString("    bool is_valid() const { return valid_; }\n")
	b.WriteString("    std::vector<uint8_t> bytes() const { return std::vector<uint8_t>(raw_, raw_ + rawLen_); }\n\n")
	return b.String()
}

// ViewField renders one read-only accessor on the current record's View.
func (p *Profile) ViewField(goName, typeName string) string {
	return fmt.Sprintf("    const %s& %s() const {\n        if (!valid_) throw std::runtime_error(\"field access on invalid view\");\n        return v_.%s;\n    }\n\n", typeName, goName, goName)
}

// BuilderDecl closes the View class (declaring its private storage) and
// renders the owning encoder wrapper: a constructor from an
// already-populated Value, Serialize (delegating to Value's own method)
// and Size, computed from the serialized length.
func (p *Profile) BuilderDecl(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "private:\n    %s v_{};\n    bool valid_ = false;\n    const uint8_t* raw_ = nullptr;\n    size_t rawLen_ = 0;\n};\n\n", name)
	fmt.Fprintf(&b, "class %sBuilder {\npublic:\n", name)
	fmt.Fprintf(&b, "    explicit %sBuilder(%s v) : v_(v) {}\n\n", name, name)
	b.WriteString("    std::vector<uint8_t> Serialize() const { return v_.Serialize(); }\n")
	b.WriteString("    size_t Size() const { return Serialize().size(); }\n\n")
	fmt.Fprintf(&b, "private:\n    %s v_;\n};\n\n", name)
	return b.String()
}

func (p *Profile) ReadChunk(imm cir.ChunkImm, endian ast.Endianness) string {
	var b strings.Builder
	fmt.Fprintf(&b, "    if (len - pos < %d) throw std::runtime_error(\"truncated chunk\");\n", imm.Width)
	fmt.Fprintf(&b, "    uint64_t chunk = pdlc_read_uint(buf + pos, %d, %v);\n    pos += %d;\n", imm.Width, endian == ast.BigEndian, imm.Width)
	for _, f := range imm.Fields {
		mask := (uint64(1) << uint(f.Bits)) - 1
		expr := fmt.Sprintf("(chunk >> %d) & 0x%xULL", f.BitOffset, mask)
		switch f.FieldName {
		case "":
			name := p.nextAnon()
			fmt.Fprintf(&b, "    uint64_t %s = %s;\n", name, expr)
		case "_optional_bitmap_":
			fmt.Fprintf(&b, "    bitmap = %s;\n", expr)
		default:
			if isSynthetic(f.FieldName) {
				fmt.Fprintf(&b, "    uint64_t %s = %s;\n", cxxLocal(f.FieldName), expr)
			} else {
				fmt.Fprintf(&b, "    %s = static_cast<%s>(%s);\n", f.FieldName, p.ScalarType(f.Bits), expr)
			}
		}
	}
	return b.String()
}

func (p *Profile) WriteChunk(imm cir.ChunkImm, endian ast.Endianness) string {
	var b strings.Builder
	b.WriteString("    {\n        uint64_t chunk = 0;\n")
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
			if isSynthetic(f.FieldName) {
				length := fmt.Sprintf("%s.size()", canonicalRef(synthRef(f.FieldName)))
				if f.Modifier != 0 {
					length = fmt.Sprintf("%s-(%d)", length, f.Modifier)
				}
				expr = fmt.Sprintf("static_cast<uint64_t>(%s)", length)
			} else {
				expr = fmt.Sprintf("static_cast<uint64_t>(%s)", f.FieldName)
			}
		}
		fmt.Fprintf(&b, "        chunk |= (%s & 0x%xULL) << %d;\n", expr, (uint64(1)<<uint(f.Bits))-1, f.BitOffset)
	}
	fmt.Fprintf(&b, "        auto bytes = pdlc_write_uint(chunk, %d, %v);\n        out.insert(out.end(), bytes.begin(), bytes.end());\n    }\n", imm.Width, endian == ast.BigEndian)
	return b.String()
}

func (p *Profile) CheckEq(imm cir.CheckEqImm) string {
	var name string
	switch {
	case len(p.anonQueue) > 0:
		name = p.anonQueue[0]
		p.anonQueue = p.anonQueue[1:]
	case imm.Field != "":
		name = imm.Field
	default:
		name = p.nextAnon()
	}
	return fmt.Sprintf("    if (static_cast<int64_t>(%s) != %d) throw std::runtime_error(\"constraint violated\");\n", name, imm.Value)
}

func (p *Profile) CheckEnumRange(imm cir.CheckEnumRangeImm) string {
	var b strings.Builder
	fmt.Fprintf(&b, "    {\n        int64_t raw = static_cast<int64_t>(%s);\n        bool ok = false;\n", imm.Field)
	for _, r := range imm.Ranges {
		fmt.Fprintf(&b, "        if (raw >= %d && raw <= %d) ok = true;\n", r.Low, r.High)
	}
	b.WriteString("        if (!ok) throw std::runtime_error(\"value out of range for closed enum\");\n    }\n")
	return b.String()
}

func (p *Profile) SliceTake(imm cir.SliceImm) string {
	if imm.N != nil {
		n := p.Expr(imm.N)
		return fmt.Sprintf("    {\n        size_t n = static_cast<size_t>(%s);\n        Payload.assign(buf + pos, buf + pos + n);\n        pos += n;\n    }\n", n)
	}
	return fmt.Sprintf("    {\n        size_t end = len > %d ? len - %d : pos;\n        Payload.assign(buf + pos, buf + end);\n        pos = end;\n    }\n", imm.TrailerReserve, imm.TrailerReserve)
}

func (p *Profile) SliceTail() string {
	return "    Payload.assign(buf + pos, buf + len);\n    pos = len;\n"
}

func (p *Profile) ParseStruct(imm cir.ParseStructImm) string {
	return fmt.Sprintf("    pos += %s.Parse(buf + pos, len - pos);\n", imm.FieldName)
}

func (p *Profile) WriteStructCall(imm cir.WriteStructImm) string {
	return fmt.Sprintf("    {\n        auto sub = %s.Serialize();\n        out.insert(out.end(), sub.begin(), sub.end());\n    }\n", imm.FieldName)
}

func (p *Profile) AppendBytes(imm cir.SliceImm) string {
	return "    out.insert(out.end(), Payload.begin(), Payload.end());\n"
}

func (p *Profile) PadZeroes(imm cir.PadImm) string {
	return fmt.Sprintf("    out.insert(out.end(), %d, 0);\n", imm.N)
}

func (p *Profile) PadSkip(imm cir.PadImm) string {
	return fmt.Sprintf("    pos += %d;\n", imm.N)
}

func (p *Profile) LoopCount(bound, body string) string {
	return fmt.Sprintf("    for (int i = 0; i < static_cast<int>(%s); i++) {\n%s    }\n", bound, indent(body))
}

func (p *Profile) LoopUntilSize(bound, body string) string {
	return fmt.Sprintf("    for (size_t consumed = 0; consumed < static_cast<size_t>(%s); ) {\n%s    }\n", bound, indent(body))
}

func (p *Profile) LoopWhileNonEmpty(body string) string {
	return fmt.Sprintf("    while (pos < len) {\n%s    }\n", indent(body))
}

func (p *Profile) If(bitIndex int, presentWhenSet bool, body string) string {
	op := "!= 0"
	if !presentWhenSet {
		op = "== 0"
	}
	return fmt.Sprintf("    if (((bitmap >> %d) & 1) %s) {\n%s    }\n", bitIndex, op, indent(body))
}

func (p *Profile) Expr(e cir.Expr) string {
	switch ex := e.(type) {
	case cir.ConstExpr:
		return fmt.Sprintf("%d", ex.Value)
	case cir.FieldRefExpr:
		if isSynthetic(ex.Name) {
			return cxxLocal(ex.Name)
		}
		return ex.Name
	case cir.AddExpr:
		return fmt.Sprintf("(%s + %s)", p.Expr(ex.A), p.Expr(ex.B))
	case cir.MulExpr:
		return fmt.Sprintf("(%s * %s)", p.Expr(ex.A), p.Expr(ex.B))
	case cir.MaxExpr:
		return fmt.Sprintf("std::max(%s, %s)", p.Expr(ex.A), p.Expr(ex.B))
	}
	return "0"
}

func (p *Profile) Indent(s string) string { return indent(s) }

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

func cxxLocal(synthetic string) string {
	r := strings.NewReplacer("_size_(", "size_", "_count_(", "count_", ")", "")
	return r.Replace(synthetic)
}

func canonicalRef(ref string) string {
	if ref == "_payload_" || ref == "_body_" {
		return "Payload"
	}
	return ref
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("    ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

const runtimeHelpers = `static uint64_t pdlc_read_uint(const uint8_t* p, size_t width, bool big_endian) {
    uint64_t v = 0;
    for (size_t i = 0; i < width; i++) {
        size_t shift = big_endian ? (width - 1 - i) : i;
        v |= static_cast<uint64_t>(p[i]) << (8 * shift);
    }
    return v;
}

static std::vector<uint8_t> pdlc_write_uint(uint64_t v, size_t width, bool big_endian) {
    std::vector<uint8_t> out(width);
    for (size_t i = 0; i < width; i++) {
        size_t shift = big_endian ? (width - 1 - i) : i;
        out[i] = static_cast<uint8_t>((v >> (8 * shift)) & 0xff);
    }
    return out;
}

`
