package main

import (
	"fmt"
	"strings"

	"github.com/pdlc-project/pdlc/internal/cir"
	"github.com/pdlc-project/pdlc/internal/layout"
)

// describeLayout renders a RecordLayout as plain text: one line per chunk,
// array, the payload discipline (if any), and each optional field's
// presence bit.
func describeLayout(rl *layout.RecordLayout) string {
	var b strings.Builder
	fmt.Fprintf(&b, "size: %s", sizeLabel(rl))
	if rl.OptionalBitmapWidth > 0 {
		fmt.Fprintf(&b, "  (presence bitmap: %d byte(s))", rl.OptionalBitmapWidth)
	}
	b.WriteString("\n\nchunks:\n")
	for i, c := range rl.Chunks {
		fmt.Fprintf(&b, "  [%d] width=%d\n", i, c.Width)
		for _, f := range c.Fields {
			name := f.FieldName
			if name == "" {
				name = "(anonymous)"
			}
			fmt.Fprintf(&b, "        %-24s bits=%-2d offset=%d", name, f.Bits, f.BitOffset)
			if f.ConstValue != nil {
				fmt.Fprintf(&b, " const=%d", *f.ConstValue)
			}
			b.WriteString("\n")
		}
	}

	if len(rl.Arrays) > 0 {
		b.WriteString("\narrays:\n")
		for name, a := range rl.Arrays {
			fmt.Fprintf(&b, "  %-24s category=%-22s sizing=%s", name, a.Category, a.Sizing)
			if a.BoundByField != "" {
				fmt.Fprintf(&b, " bound_by=%s", a.BoundByField)
			}
			b.WriteString("\n")
		}
	}

	if rl.Payload != nil {
		fmt.Fprintf(&b, "\npayload: %s discipline=%s", rl.Payload.FieldName, rl.Payload.Discipline)
		if rl.Payload.SizeField != "" {
			fmt.Fprintf(&b, " size_field=%s", rl.Payload.SizeField)
		}
		if rl.Payload.TrailerBytes > 0 {
			fmt.Fprintf(&b, " trailer_bytes=%d", rl.Payload.TrailerBytes)
		}
		b.WriteString("\n")
	}

	if len(rl.Optionals) > 0 {
		b.WriteString("\noptionals:\n")
		for _, o := range rl.Optionals {
			fmt.Fprintf(&b, "  %-24s bit=%d present_when_set=%v\n", o.FieldName, o.CondBitIndex, o.PresentWhenSet)
		}
	}

	return b.String()
}

func sizeLabel(rl *layout.RecordLayout) string {
	if rl.ConstantBytes > 0 {
		return fmt.Sprintf("%d byte(s)", rl.ConstantBytes)
	}
	return "variable"
}

// describeProgram renders a parse or serialize cir.Program side as an
// indented, one-instruction-per-line op listing.
func describeProgram(n cir.Node) string {
	var b strings.Builder
	writeNode(&b, n, 0)
	return b.String()
}

func writeNode(b *strings.Builder, n cir.Node, depth int) {
	pad := strings.Repeat("  ", depth)
	switch node := n.(type) {
	case *cir.SeqNode:
		for _, c := range node.Children {
			writeNode(b, c, depth)
		}
	case *cir.LoopNode:
		fmt.Fprintf(b, "%s%s bound=%s\n", pad, node.Kind, describeExpr(node.Bound))
		writeNode(b, node.Body, depth+1)
	case *cir.IfNode:
		fmt.Fprintf(b, "%sif bit=%d present_when_set=%v\n", pad, node.CondBitIndex, node.PresentWhenSet)
		writeNode(b, node.Then, depth+1)
	case *cir.InstrNode:
		fmt.Fprintf(b, "%s%s\n", pad, describeInstr(node.Instr))
	}
}

func describeInstr(in cir.Instr) string {
	switch imm := in.Imm.(type) {
	case cir.ChunkImm:
		names := make([]string, len(imm.Fields))
		for i, f := range imm.Fields {
			name := f.FieldName
			if name == "" {
				name = "(anon)"
			}
			names[i] = name
		}
		return fmt.Sprintf("%s width=%d fields=[%s]", in.Op, imm.Width, strings.Join(names, ", "))
	case cir.CheckEqImm:
		return fmt.Sprintf("%s field=%s value=%d", in.Op, imm.Field, imm.Value)
	case cir.SliceImm:
		if imm.N != nil {
			return fmt.Sprintf("%s n=%s", in.Op, describeExpr(imm.N))
		}
		return fmt.Sprintf("%s trailer_reserve=%d", in.Op, imm.TrailerReserve)
	case cir.ParseStructImm:
		return fmt.Sprintf("%s record=%s field=%s", in.Op, imm.RecordName, imm.FieldName)
	case cir.PadImm:
		return fmt.Sprintf("%s n=%d", in.Op, imm.N)
	default:
		return in.Op.String()
	}
}

func describeExpr(e cir.Expr) string {
	switch ex := e.(type) {
	case cir.ConstExpr:
		return fmt.Sprintf("%d", ex.Value)
	case cir.FieldRefExpr:
		return ex.Name
	case cir.AddExpr:
		return fmt.Sprintf("(%s + %s)", describeExpr(ex.A), describeExpr(ex.B))
	case cir.MulExpr:
		return fmt.Sprintf("(%s * %s)", describeExpr(ex.A), describeExpr(ex.B))
	case cir.MaxExpr:
		return fmt.Sprintf("max(%s, %s)", describeExpr(ex.A), describeExpr(ex.B))
	default:
		return "?"
	}
}
