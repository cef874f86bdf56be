// Package codegen walks a record's cir.Program and renders it into target
// source text. The walk itself (codegen.go) is shared by every backend;
// each backend package only supplies a LanguageProfile (profile.go) that
// renders one instruction, one type name, or one piece of framing syntax
// at a time. This keeps every target's control flow and field order
// byte-for-byte identical, since they all walk the exact same tree.
package codegen

import (
	"strings"

	"go.uber.org/zap"

	"github.com/pdlc-project/pdlc/errors"
	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/cir"
	"github.com/pdlc-project/pdlc/internal/model"
)

// Generate renders every enum, struct and packet in file, in declaration
// order, for the named target.
func Generate(file *model.File, target Target) (string, error) {
	profile, ok := lookup(target)
	if !ok {
		Logger().Warn("unsupported target", zap.String("target", string(target)))
		return "", errors.New(errors.PhaseCodegen, errors.KindUnsupportedTarget).
			Detail("target %q has no registered backend", target).Build()
	}
	Logger().Debug("generating", zap.String("target", string(target)), zap.Int("decls", len(file.Order)))

	b := NewBuilder(profile)
	var out strings.Builder
	out.WriteString(profile.FileHeader(file))

	for _, name := range file.Order {
		kind, _ := file.Lookup(name)
		switch kind {
		case "enum":
			out.WriteString(profile.EnumDecl(file.Enums[name]))
		case "struct":
			rec := file.Structs[name].RecordInfo
			s, err := b.Record(file, rec)
			if err != nil {
				return "", err
			}
			out.WriteString(s)
		case "packet":
			rec := file.Packets[name].RecordInfo
			s, err := b.Record(file, rec)
			if err != nil {
				return "", err
			}
			out.WriteString(s)
		}
	}
	return out.String(), nil
}

// Builder drives the CIR build-then-render pipeline for one target.
type Builder struct {
	profile LanguageProfile
	cir     *cir.Builder
}

// NewBuilder creates a Builder rendering through profile.
func NewBuilder(profile LanguageProfile) *Builder {
	return &Builder{profile: profile, cir: cir.NewBuilder()}
}

// Record renders one struct or packet's type declaration plus its parse
// and serialize methods.
func (b *Builder) Record(file *model.File, rec *model.RecordInfo) (string, error) {
	var out strings.Builder

	out.WriteString(b.profile.RecordDeclOpen(rec.Name))
	for _, f := range rec.Fields {
		goName, typeName, ok := fieldDecl(b.profile, file, f)
		if !ok {
			continue
		}
		out.WriteString(b.profile.RecordField(goName, typeName))
	}
	out.WriteString(b.profile.RecordDeclClose(rec.Name))

	prog, err := b.cir.Build(file, rec.Name)
	if err != nil {
		return "", err
	}

	out.WriteString(b.profile.ParseMethodOpen(rec.Name))
	out.WriteString(b.walk(file.Endianness, prog.Parse))
	out.WriteString(b.profile.ParseMethodClose(rec.Name))

	out.WriteString(b.profile.SerializeMethodOpen(rec.Name))
	out.WriteString(b.walk(file.Endianness, prog.Serialize))
	out.WriteString(b.profile.SerializeMethodClose(rec.Name))

	out.WriteString(b.profile.ViewDecl(rec.Name))
	for _, f := range rec.Fields {
		goName, typeName, ok := fieldDecl(b.profile, file, f)
		if !ok {
			continue
		}
		out.WriteString(b.profile.ViewField(goName, typeName))
	}
	out.WriteString(b.profile.BuilderDecl(rec.Name))

	return out.String(), nil
}

// fieldDecl returns the declared member name and type for one field, or
// ok=false for fields with no runtime representation (reserved, fixed,
// size, count, group markers).
func fieldDecl(p LanguageProfile, file *model.File, f ast.Field) (name, typ string, ok bool) {
	switch field := f.(type) {
	case *ast.ScalarField:
		return field.Name, p.ScalarType(field.Bits), true
	case *ast.EnumField:
		return field.Name, p.RecordTypeName(field.EnumRef), true
	case *ast.StructField:
		return field.Name, p.RecordTypeName(field.StructRef), true
	case *ast.ArrayField:
		var elem string
		if field.ElementTypeRef != "" {
			elem = p.RecordTypeName(field.ElementTypeRef)
		} else {
			elem = p.ScalarType(field.ElementBits)
		}
		return field.Name, p.SliceType(elem), true
	case *ast.PayloadField:
		return "Payload", p.BytesType(), true
	case *ast.BodyField:
		// Body carries no child-dispatch semantics but is otherwise
		// identical on the wire, so it shares Payload's generated field
		// and accessor names.
		return "Payload", p.BytesType(), true
	case *ast.OptionalField:
		return fieldDecl(p, file, field.Inner)
	}
	return "", "", false
}

// walk renders one CIR node and everything beneath it, in order.
func (b *Builder) walk(endian ast.Endianness, n cir.Node) string {
	switch node := n.(type) {
	case *cir.SeqNode:
		var out strings.Builder
		for _, c := range node.Children {
			out.WriteString(b.walk(endian, c))
		}
		return out.String()

	case *cir.LoopNode:
		bound := b.profile.Expr(node.Bound)
		body := b.walk(endian, node.Body)
		switch node.Kind {
		case cir.LoopCount:
			return b.profile.LoopCount(bound, body)
		case cir.LoopUntilSize:
			return b.profile.LoopUntilSize(bound, body)
		default:
			return b.profile.LoopWhileNonEmpty(body)
		}

	case *cir.IfNode:
		return b.profile.If(node.CondBitIndex, node.PresentWhenSet, b.walk(endian, node.Then))

	case *cir.InstrNode:
		return b.instr(endian, node.Instr)
	}
	return ""
}

func (b *Builder) instr(endian ast.Endianness, in cir.Instr) string {
	switch in.Op {
	case cir.OpReadChunk:
		return b.profile.ReadChunk(in.Imm.(cir.ChunkImm), endian)
	case cir.OpWriteChunk:
		return b.profile.WriteChunk(in.Imm.(cir.ChunkImm), endian)
	case cir.OpCheckEq:
		return b.profile.CheckEq(in.Imm.(cir.CheckEqImm))
	case cir.OpCheckEnumRange:
		return b.profile.CheckEnumRange(in.Imm.(cir.CheckEnumRangeImm))
	case cir.OpSliceTake:
		return b.profile.SliceTake(in.Imm.(cir.SliceImm))
	case cir.OpSliceTail:
		return b.profile.SliceTail()
	case cir.OpParseStruct:
		return b.profile.ParseStruct(in.Imm.(cir.ParseStructImm))
	case cir.OpWriteStruct:
		return b.profile.WriteStructCall(in.Imm.(cir.WriteStructImm))
	case cir.OpAppendBytes:
		return b.profile.AppendBytes(in.Imm.(cir.SliceImm))
	case cir.OpPadZeroes:
		return b.profile.PadZeroes(in.Imm.(cir.PadImm))
	case cir.OpPadSkip:
		return b.profile.PadSkip(in.Imm.(cir.PadImm))
	default:
		return ""
	}
}
