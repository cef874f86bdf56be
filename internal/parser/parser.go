// Package parser turns a PDL token stream into an untyped syntax tree.
//
// The parser performs no semantic validation: type references are left as
// bare identifiers, group splices are left unexpanded, and field syntax
// that is ambiguous before resolve (a type-named field that could be an
// enum or a struct) is left as ast.TypeRefField. All of that is the
// resolver's job.
package parser

import (
	"strconv"
	"strings"

	"github.com/pdlc-project/pdlc/errors"
	"github.com/pdlc-project/pdlc/internal/ast"
	"github.com/pdlc-project/pdlc/internal/token"
)

// Parser holds parse state over a fixed token stream for a single file.
type Parser struct {
	tokens []token.Token
	file   string
	pos    int
}

// New creates a parser over tokens already scanned from the named file.
func New(tokens []token.Token, file string) *Parser {
	return &Parser{tokens: tokens, file: file}
}

// Parse consumes the entire token stream and returns the file's syntax
// tree, or the first syntax error encountered.
func (p *Parser) Parse() (*ast.File, error) {
	versionPragma, err := p.parseVersionPragma()
	if err != nil {
		return nil, err
	}

	endian, err := p.parseHeader()
	if err != nil {
		return nil, err
	}

	f := &ast.File{Name: p.file, Endianness: endian, VersionPragma: versionPragma}
	for p.peek() != nil {
		decl, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		f.Decls = append(f.Decls, decl)
	}
	return f, nil
}

func (p *Parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) *token.Token {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return nil
	}
	return &p.tokens[i]
}

func (p *Parser) next() *token.Token {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

func (p *Parser) span(t *token.Token) errors.Span {
	if t == nil {
		return errors.Span{File: p.file}
	}
	return errors.Span{File: p.file, Line: t.Line, Column: t.Column}
}

func (p *Parser) syntaxErr(t *token.Token, format string, args ...any) error {
	return errors.New(errors.PhaseParse, errors.KindSyntax).
		At(p.span(t)).
		Detail(format, args...).
		Build()
}

func (p *Parser) expect(typ token.Type) (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, p.syntaxErr(nil, "unexpected end of input, expected %v", typ)
	}
	if t.Type != typ {
		return nil, p.syntaxErr(t, "expected %v, got %q", typ, t.Value)
	}
	return t, nil
}

func (p *Parser) expectIdentValue(value string) (*token.Token, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if t.Value != value {
		return nil, p.syntaxErr(t, "expected %q, got %q", value, t.Value)
	}
	return t, nil
}

func (p *Parser) parseNumber(t *token.Token) (int64, error) {
	if strings.HasPrefix(t.Value, "0x") || strings.HasPrefix(t.Value, "0X") {
		n, err := strconv.ParseInt(t.Value[2:], 16, 64)
		if err != nil {
			return 0, p.syntaxErr(t, "invalid hex literal %q", t.Value)
		}
		return n, nil
	}
	n, err := strconv.ParseInt(t.Value, 10, 64)
	if err != nil {
		return 0, p.syntaxErr(t, "invalid numeric literal %q", t.Value)
	}
	return n, nil
}

// parseVersionPragma consumes an optional leading `pdl_version = "X.Y.Z"`
// pragma, returning "" if the file declares none.
func (p *Parser) parseVersionPragma() (string, error) {
	t := p.peek()
	if t == nil || t.Type != token.Ident || t.Value != "pdl_version" {
		return "", nil
	}
	p.next()
	if _, err := p.expect(token.Equals); err != nil {
		return "", err
	}
	v, err := p.expect(token.String)
	if err != nil {
		return "", err
	}
	return v.Value, nil
}

func (p *Parser) parseHeader() (ast.Endianness, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return 0, err
	}
	switch t.Value {
	case "little_endian_packets":
		return ast.LittleEndian, nil
	case "big_endian_packets":
		return ast.BigEndian, nil
	default:
		return 0, p.syntaxErr(t, "expected 'little_endian_packets' or 'big_endian_packets', got %q", t.Value)
	}
}

func (p *Parser) parseDecl() (ast.Decl, error) {
	t := p.peek()
	if t == nil || t.Type != token.Ident {
		return nil, p.syntaxErr(t, "expected a declaration")
	}
	switch t.Value {
	case "enum":
		return p.parseEnum()
	case "struct":
		return p.parseStruct()
	case "packet":
		return p.parsePacket()
	case "group":
		return p.parseGroup()
	default:
		return nil, p.syntaxErr(t, "expected 'enum', 'struct', 'packet' or 'group', got %q", t.Value)
	}
}

func (p *Parser) parseEnum() (*ast.EnumDecl, error) {
	start, _ := p.expectIdentValue("enum")
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	widthTok, err := p.expect(token.Number)
	if err != nil {
		return nil, err
	}
	width, err := p.parseNumber(widthTok)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}

	decl := &ast.EnumDecl{Name: name.Value, Width: int(width), Span_: p.span(start)}
	for {
		if t := p.peek(); t != nil && t.Type == token.RBrace {
			break
		}
		tag, err := p.parseTag()
		if err != nil {
			return nil, err
		}
		decl.Tags = append(decl.Tags, tag)
		if tag.Other {
			decl.Open = true
		}
		if t := p.peek(); t != nil && t.Type == token.Comma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseTag() (ast.Tag, error) {
	nameTok, err := p.expect(token.Ident)
	if err != nil {
		return ast.Tag{}, err
	}
	if _, err := p.expect(token.Equals); err != nil {
		return ast.Tag{}, err
	}

	if t := p.peek(); t != nil && t.Type == token.DotDot {
		p.next()
		return ast.Tag{Name: nameTok.Value, Other: true, Span_: p.span(nameTok)}, nil
	}

	valTok, err := p.expect(token.Number)
	if err != nil {
		return ast.Tag{}, err
	}
	val, err := p.parseNumber(valTok)
	if err != nil {
		return ast.Tag{}, err
	}
	tag := ast.Tag{Name: nameTok.Value, Value: val, Span_: p.span(nameTok)}

	if t := p.peek(); t != nil && t.Type == token.DotDot {
		p.next()
		endTok, err := p.expect(token.Number)
		if err != nil {
			return ast.Tag{}, err
		}
		end, err := p.parseNumber(endTok)
		if err != nil {
			return ast.Tag{}, err
		}
		tag.RangeEnd = &end

		if t := p.peek(); t != nil && t.Type == token.LBrace {
			p.next()
			for {
				if t := p.peek(); t != nil && t.Type == token.RBrace {
					break
				}
				nested, err := p.parseTag()
				if err != nil {
					return ast.Tag{}, err
				}
				tag.Nested = append(tag.Nested, nested)
				if t := p.peek(); t != nil && t.Type == token.Comma {
					p.next()
					continue
				}
				break
			}
			if _, err := p.expect(token.RBrace); err != nil {
				return ast.Tag{}, err
			}
		}
	}
	return tag, nil
}

func (p *Parser) parseStruct() (*ast.StructDecl, error) {
	start, _ := p.expectIdentValue("struct")
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	fields, err := p.parseFieldBlock()
	if err != nil {
		return nil, err
	}
	return &ast.StructDecl{Name: name.Value, Fields: fields, Span_: p.span(start)}, nil
}

func (p *Parser) parseGroup() (*ast.GroupDecl, error) {
	start, _ := p.expectIdentValue("group")
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	fields, err := p.parseFieldBlock()
	if err != nil {
		return nil, err
	}
	return &ast.GroupDecl{Name: name.Value, Fields: fields, Span_: p.span(start)}, nil
}

func (p *Parser) parsePacket() (*ast.PacketDecl, error) {
	start, _ := p.expectIdentValue("packet")
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}

	decl := &ast.PacketDecl{Name: name.Value, Span_: p.span(start)}

	if t := p.peek(); t != nil && t.Type == token.Colon {
		p.next()
		parent, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		decl.Parent = parent.Value

		if t := p.peek(); t != nil && t.Type == token.LParen {
			p.next()
			for {
				c, err := p.parseConstraint()
				if err != nil {
					return nil, err
				}
				decl.Constraints = append(decl.Constraints, c)
				if t := p.peek(); t != nil && t.Type == token.Comma {
					p.next()
					continue
				}
				break
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
		}
	}

	fields, err := p.parseFieldBlock()
	if err != nil {
		return nil, err
	}
	decl.Fields = fields
	return decl, nil
}

func (p *Parser) parseConstraint() (ast.Constraint, error) {
	nameTok, err := p.expect(token.Ident)
	if err != nil {
		return ast.Constraint{}, err
	}
	if _, err := p.expect(token.Equals); err != nil {
		return ast.Constraint{}, err
	}
	c := ast.Constraint{Field: nameTok.Value, Span_: p.span(nameTok)}
	if t := p.peek(); t != nil && t.Type == token.Number {
		p.next()
		v, err := p.parseNumber(t)
		if err != nil {
			return ast.Constraint{}, err
		}
		c.Value = &v
		return c, nil
	}
	valIdent, err := p.expect(token.Ident)
	if err != nil {
		return ast.Constraint{}, err
	}
	c.ValueIdent = valIdent.Value
	return c, nil
}

func (p *Parser) parseFieldBlock() ([]ast.Field, error) {
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var fields []ast.Field
	for {
		if t := p.peek(); t != nil && t.Type == token.RBrace {
			break
		}
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		if t := p.peek(); t != nil && t.Type == token.Comma {
			p.next()
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return fields, nil
}

// parseField dispatches on the leading identifier. The underscore-bracketed
// markers (_reserved_, _fixed_, _size_, _count_, _payload_, _body_) are
// reserved names rather than keywords, matched by exact text.
func (p *Parser) parseField() (ast.Field, error) {
	t := p.peek()
	if t == nil || t.Type != token.Ident {
		return nil, p.syntaxErr(t, "expected a field")
	}

	switch t.Value {
	case "_reserved_":
		return p.parseReservedField()
	case "_fixed_":
		return p.parseFixedField()
	case "_size_":
		return p.parseSizeField()
	case "_count_":
		return p.parseCountField()
	case "_payload_":
		p.next()
		return &ast.PayloadField{Span_: p.span(t)}, nil
	case "_body_":
		p.next()
		return &ast.BodyField{Span_: p.span(t)}, nil
	}

	// A bare identifier with no colon splices a named group in place.
	if n := p.peekAt(1); n == nil || n.Type != token.Colon {
		p.next()
		return &ast.GroupRefField{GroupRef: t.Value, Span_: p.span(t)}, nil
	}

	return p.parseNamedField()
}

func (p *Parser) parseReservedField() (ast.Field, error) {
	start := p.next()
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	bitsTok, err := p.expect(token.Number)
	if err != nil {
		return nil, err
	}
	bits, err := p.parseNumber(bitsTok)
	if err != nil {
		return nil, err
	}
	return &ast.ReservedField{Bits: int(bits), Span_: p.span(start)}, nil
}

func (p *Parser) parseFixedField() (ast.Field, error) {
	start := p.next()
	if _, err := p.expect(token.Equals); err != nil {
		return nil, err
	}

	valTok := p.peek()
	if valTok == nil {
		return nil, p.syntaxErr(nil, "unexpected end of input in _fixed_ field")
	}

	if valTok.Type == token.Number {
		p.next()
		val, err := p.parseNumber(valTok)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		bitsTok, err := p.expect(token.Number)
		if err != nil {
			return nil, err
		}
		bits, err := p.parseNumber(bitsTok)
		if err != nil {
			return nil, err
		}
		return &ast.FixedScalarField{Value: val, Bits: int(bits), Span_: p.span(start)}, nil
	}

	tagTok, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	enumTok, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	return &ast.FixedEnumField{Tag: tagTok.Value, EnumRef: enumTok.Value, Span_: p.span(start)}, nil
}

func (p *Parser) parseSizeField() (ast.Field, error) {
	start := p.next()
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	refTok, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	bitsTok, err := p.expect(token.Number)
	if err != nil {
		return nil, err
	}
	bits, err := p.parseNumber(bitsTok)
	if err != nil {
		return nil, err
	}

	f := &ast.SizeField{Referent: refTok.Value, Bits: int(bits), Span_: p.span(start)}
	if t := p.peek(); t != nil && t.Type == token.LBracket {
		p.next()
		if _, err := p.expect(token.Plus); err != nil {
			return nil, err
		}
		numTok, err := p.expect(token.Number)
		if err != nil {
			return nil, err
		}
		mod, err := p.parseNumber(numTok)
		if err != nil {
			return nil, err
		}
		f.Modifier = int(mod)
		if _, err := p.expect(token.RBracket); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (p *Parser) parseCountField() (ast.Field, error) {
	start := p.next()
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	refTok, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	bitsTok, err := p.expect(token.Number)
	if err != nil {
		return nil, err
	}
	bits, err := p.parseNumber(bitsTok)
	if err != nil {
		return nil, err
	}
	return &ast.CountField{Referent: refTok.Value, Bits: int(bits), Span_: p.span(start)}, nil
}

// parseNamedField handles `name:bits`, `name:Type`, and `name:...[...]`
// array forms, then wraps the result in an OptionalField if an `if`
// clause follows.
func (p *Parser) parseNamedField() (ast.Field, error) {
	nameTok, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}

	typeTok := p.peek()
	if typeTok == nil {
		return nil, p.syntaxErr(nil, "unexpected end of input after %q", nameTok.Value)
	}

	var base ast.Field
	if typeTok.Type == token.Number {
		p.next()
		bits, err := p.parseNumber(typeTok)
		if err != nil {
			return nil, err
		}
		if t := p.peek(); t != nil && t.Type == token.LBracket {
			base, err = p.parseArrayTail(nameTok, int(bits), "")
			if err != nil {
				return nil, err
			}
		} else {
			base = &ast.ScalarField{Name: nameTok.Value, Bits: int(bits), Span_: p.span(nameTok)}
		}
	} else if typeTok.Type == token.Ident {
		p.next()
		if t := p.peek(); t != nil && t.Type == token.LBracket {
			var err error
			base, err = p.parseArrayTail(nameTok, 0, typeTok.Value)
			if err != nil {
				return nil, err
			}
		} else {
			base = &ast.TypeRefField{Name: nameTok.Value, TypeRef: typeTok.Value, Span_: p.span(nameTok)}
		}
	} else {
		return nil, p.syntaxErr(typeTok, "expected a bit width or type name, got %q", typeTok.Value)
	}

	if t := p.peek(); t != nil && t.Type == token.Ident && t.Value == "if" {
		p.next()
		negated := false
		if n := p.peek(); n != nil && n.Type == token.Bang {
			p.next()
			negated = true
		}
		condTok, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		return &ast.OptionalField{
			Inner:     base,
			Condition: ast.Condition{Negated: negated, Name: condTok.Value},
			Span_:     base.Span(),
		}, nil
	}

	return base, nil
}

// parseArrayTail parses the `[...]` suffix of an array field. bits is
// nonzero for scalar-element arrays (`name:8[...]`); typeRef is set for
// struct/enum-element arrays (`name:Type[...]`).
func (p *Parser) parseArrayTail(nameTok *token.Token, bits int, typeRef string) (ast.Field, error) {
	if _, err := p.expect(token.LBracket); err != nil {
		return nil, err
	}

	f := &ast.ArrayField{
		Name:           nameTok.Value,
		ElementBits:    bits,
		ElementTypeRef: typeRef,
		SizeKind:       ast.ArraySizeExternal,
		Span_:          p.span(nameTok),
	}

	t := p.peek()
	switch {
	case t != nil && t.Type == token.RBracket:
		// name:Type[] — externally sized.
	case t != nil && t.Type == token.Plus:
		p.next()
		numTok, err := p.expect(token.Number)
		if err != nil {
			return nil, err
		}
		n, err := p.parseNumber(numTok)
		if err != nil {
			return nil, err
		}
		f.Padding = int(n)
	case t != nil && t.Type == token.Number:
		p.next()
		n, err := p.parseNumber(t)
		if err != nil {
			return nil, err
		}
		f.SizeKind = ast.ArraySizeConstant
		f.Count = int(n)
	default:
		return nil, p.syntaxErr(t, "expected ']', a count, or '+padding' in array brackets")
	}

	if _, err := p.expect(token.RBracket); err != nil {
		return nil, err
	}
	return f, nil
}
