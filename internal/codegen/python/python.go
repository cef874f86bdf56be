// Package python is the Python LanguageProfile, sharing codegen.go's
// walker. Python's dynamic typing makes this the smallest backend: type
// declarations are dataclass field annotations only, no compile-time
// enforcement.
package python

import (
	"fmt"
	"strings"

	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/cir"
	"github.com/pdlc-project/pdlc/internal/codegen"
	"github.com/pdlc-project/pdlc/internal/model"
)

func init() {
	codegen.Register(codegen.TargetPython, New())
}

// Profile renders PDLC records as Python dataclasses with parse/serialize
// methods over bytes/bytearray buffers.
type Profile struct {
	anonQueue []string
	anonSeq   int
	curRecord string // record name currently being rendered, for View/Builder framing
}

func New() *Profile { return &Profile{} }

func (p *Profile) Name() string { return "python" }

func (p *Profile) FileHeader(file *model.File) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Code generated by pdlc from %s. DO NOT EDIT.\n\n", file.Name)
	b.WriteString("from dataclasses import dataclass, field\nfrom enum import IntEnum\nfrom typing import List\n\n")
	b.WriteString(runtimeHelpers)
	return b.String()
}

func (p *Profile) ScalarType(bits int) string   { return "int" }
func (p *Profile) EnumUnderlyingType(int) string { return "int" }
func (p *Profile) BytesType() string             { return "bytes" }
func (p *Profile) SliceType(elem string) string  { return fmt.Sprintf("List[%s]", elem) }
func (p *Profile) RecordTypeName(name string) string { return name }

func (p *Profile) EnumDecl(e *model.EnumInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "class %s(IntEnum):\n", e.Decl.Name)
	wrote := false
	for _, t := range e.Decl.Tags {
		if t.Other || t.RangeEnd != nil {
			continue
		}
		fmt.Fprintf(&b, "    %s = %d\n", strings.ToUpper(t.Name), t.Value)
		wrote = true
	}
	if !wrote {
		b.WriteString("    pass\n")
	}
	b.WriteString("\n\n")
	return b.String()
}

func (p *Profile) RecordDeclOpen(name string) string {
	p.anonQueue, p.anonSeq = nil, 0
	return fmt.Sprintf("@dataclass\nclass %s:\n", name)
}

func (p *Profile) RecordField(name, typ string) string {
	name = pySnake(name)
	if typ == "bytes" {
		return fmt.Sprintf("    %s: bytes = b\"\"\n", name)
	}
	if strings.HasPrefix(typ, "List[") {
		return fmt.Sprintf("    %s: %s = field(default_factory=list)\n", name, typ)
	}
	return fmt.Sprintf("    %s: %s = 0\n", name, typ)
}

func (p *Profile) RecordDeclClose(name string) string { return "\n" }

func (p *Profile) ParseMethodOpen(name string) string {
	p.anonQueue = nil
	return fmt.Sprintf(
		"    @classmethod\n    def parse(cls, buf: bytes):\n        v = cls()\n        pos = 0\n        bitmap = 0\n")
}

func (p *Profile) ParseMethodClose(name string) string {
	return "        return v, pos\n\n"
}

func (p *Profile) SerializeMethodOpen(name string) string {
	p.anonQueue = nil
	return "    def serialize(self) -> bytes:\n        out = bytearray()\n        bitmap = 0\n"
}

func (p *Profile) SerializeMethodClose(name string) string {
	return "        return bytes(out)\n\n\n"
}

// ViewDecl renders a read-only wrapper class around a parsed Value: a
// classmethod constructor, is_valid and bytes. ViewField adds one
// read-only property per field.
func (p *Profile) ViewDecl(name string) string {
	p.curRecord = name
	var b strings.Builder
	fmt.Fprintf(&b, "class %sView:\n", name)
	b.WriteString("    def __init__(self, v=None, valid=False, raw=b\"\"):\n        self._v = v\n        self._valid = valid\n        self._raw = raw\n\n")
	fmt.Fprintf(&b, "    @classmethod\n    def parse(cls, buf: bytes):\n        try:\n            v, n = %s.parse(buf)\n        except ValueError:\n            return cls()\n        return cls(v, True, buf[:n])\n\n", name)
	b.WriteString("    def is_valid(self) -> bool:\n        return self._valid\n\n")
	b.WriteString("    def bytes(self) -> bytes:\n        return self._raw\n\n")
	return b.String()
}

// ViewField renders one read-only property on the current record's View.
func (p *Profile) ViewField(goName, typeName string) string {
	field := pySnake(goName)
	return fmt.Sprintf("    @property\n    def %s(self):\n        if not self._valid:\n            raise ValueError(\"field access on invalid view\")\n        return self._v.%s\n\n", field, field)
}

// BuilderDecl renders the owning encoder wrapper: a constructor from an
// already-populated Value, serialize (delegating to Value's own method)
// and size, computed from the serialized length.
func (p *Profile) BuilderDecl(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "class %sBuilder:\n", name)
	b.WriteString("    def __init__(self, v):\n        self._v = v\n\n")
	b.WriteString("    def serialize(self) -> bytes:\n        return self._v.serialize()\n\n")
	b.WriteString("    def size(self) -> int:\n        return len(self.serialize())\n\n\n")
	return b.String()
}

func (p *Profile) ReadChunk(imm cir.ChunkImm, endian ast.Endianness) string {
	var b strings.Builder
	fmt.Fprintf(&b, "        if len(buf) - pos < %d:\n            raise ValueError(\"truncated chunk\")\n", imm.Width)
	fmt.Fprintf(&b, "        chunk = int.from_bytes(buf[pos:pos+%d], %s)\n        pos += %d\n", imm.Width, byteorder(endian), imm.Width)
	for _, f := range imm.Fields {
		mask := (uint64(1) << uint(f.Bits)) - 1
		expr := fmt.Sprintf("(chunk >> %d) & 0x%x", f.BitOffset, mask)
		switch f.FieldName {
		case "":
			name := p.nextAnon()
			fmt.Fprintf(&b, "        %s = %s\n", name, expr)
		case "_optional_bitmap_":
			fmt.Fprintf(&b, "        bitmap = %s\n", expr)
		default:
			if isSynthetic(f.FieldName) {
				fmt.Fprintf(&b, "        %s = %s\n", pyLocal(f.FieldName), expr)
			} else {
				fmt.Fprintf(&b, "        v.%s = %s\n", f.FieldName, expr)
			}
		}
	}
	return b.String()
}

func (p *Profile) WriteChunk(imm cir.ChunkImm, endian ast.Endianness) string {
	var b strings.Builder
	b.WriteString("        chunk = 0\n")
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
				length := fmt.Sprintf("len(self.%s)", pySnake(canonicalRef(synthRef(f.FieldName))))
				if f.Modifier != 0 {
					length = fmt.Sprintf("%s-(%d)", length, f.Modifier)
				}
				expr = length
			} else {
				expr = "self." + f.FieldName
			}
		}
		fmt.Fprintf(&b, "        chunk |= (%s & 0x%x) << %d\n", expr, (uint64(1)<<uint(f.Bits))-1, f.BitOffset)
	}
	fmt.Fprintf(&b, "        out += chunk.to_bytes(%d, %s)\n", imm.Width, byteorder(endian))
	return b.String()
}

func (p *Profile) CheckEq(imm cir.CheckEqImm) string {
	var name string
	switch {
	case len(p.anonQueue) > 0:
		name = p.anonQueue[0]
		p.anonQueue = p.anonQueue[1:]
	case imm.Field != "":
		name = "v." + imm.Field
	default:
		name = p.nextAnon()
	}
	return fmt.Sprintf("        if %s != %d:\n            raise ValueError(\"constraint violated\")\n", name, imm.Value)
}

func (p *Profile) CheckEnumRange(imm cir.CheckEnumRangeImm) string {
	name := "v." + imm.Field
	var conds []string
	for _, r := range imm.Ranges {
		conds = append(conds, fmt.Sprintf("%d <= %s <= %d", r.Low, name, r.High))
	}
	return fmt.Sprintf("        if not (%s):\n            raise ValueError(\"value out of range for closed enum\")\n", strings.Join(conds, " or "))
}

func (p *Profile) SliceTake(imm cir.SliceImm) string {
	if imm.N != nil {
		n := p.Expr(imm.N)
		return fmt.Sprintf("        n = int(%s)\n        v.payload = buf[pos:pos+n]\n        pos += n\n", n)
	}
	return fmt.Sprintf("        end = max(len(buf) - %d, pos)\n        v.payload = buf[pos:end]\n        pos = end\n", imm.TrailerReserve)
}

func (p *Profile) SliceTail() string {
	return "        v.payload = buf[pos:]\n        pos = len(buf)\n"
}

func (p *Profile) ParseStruct(imm cir.ParseStructImm) string {
	return fmt.Sprintf("        v.%s, n = %s.parse(buf[pos:])\n        pos += n\n", imm.FieldName, imm.RecordName)
}

func (p *Profile) WriteStructCall(imm cir.WriteStructImm) string {
	return fmt.Sprintf("        out += self.%s.serialize()\n", imm.FieldName)
}

func (p *Profile) AppendBytes(imm cir.SliceImm) string {
	return "        out += self.payload\n"
}

func (p *Profile) PadZeroes(imm cir.PadImm) string {
	return fmt.Sprintf("        out += bytes(%d)\n", imm.N)
}

func (p *Profile) PadSkip(imm cir.PadImm) string {
	return fmt.Sprintf("        pos += %d\n", imm.N)
}

func (p *Profile) LoopCount(bound, body string) string {
	return fmt.Sprintf("        for _ in range(int(%s)):\n%s", bound, indent(body))
}

func (p *Profile) LoopUntilSize(bound, body string) string {
	return fmt.Sprintf("        consumed = 0\n        while consumed < int(%s):\n%s", bound, indent(body))
}

func (p *Profile) LoopWhileNonEmpty(body string) string {
	return fmt.Sprintf("        while pos < len(buf):\n%s", indent(body))
}

func (p *Profile) If(bitIndex int, presentWhenSet bool, body string) string {
	op := "!= 0"
	if !presentWhenSet {
		op = "== 0"
	}
	return fmt.Sprintf("        if (bitmap >> %d) & 1 %s:\n%s", bitIndex, op, indent(body))
}

func (p *Profile) Expr(e cir.Expr) string {
	switch ex := e.(type) {
	case cir.ConstExpr:
		return fmt.Sprintf("%d", ex.Value)
	case cir.FieldRefExpr:
		if isSynthetic(ex.Name) {
			return pyLocal(ex.Name)
		}
		return "v." + ex.Name
	case cir.AddExpr:
		return fmt.Sprintf("(%s + %s)", p.Expr(ex.A), p.Expr(ex.B))
	case cir.MulExpr:
		return fmt.Sprintf("(%s * %s)", p.Expr(ex.A), p.Expr(ex.B))
	case cir.MaxExpr:
		return fmt.Sprintf("max(%s, %s)", p.Expr(ex.A), p.Expr(ex.B))
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

func pyLocal(synthetic string) string {
	r := strings.NewReplacer("_size_(", "size_", "_count_(", "count_", ")", "")
	return r.Replace(synthetic)
}

func canonicalRef(ref string) string {
	if ref == "_payload_" || ref == "_body_" {
		return "payload"
	}
	return ref
}

func pySnake(name string) string {
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

func byteorder(endian ast.Endianness) string {
	if endian == ast.BigEndian {
		return "\"big\""
	}
	return "\"little\""
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

const runtimeHelpers = ""
