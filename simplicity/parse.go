package simplicity

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// 内置类型别名
var typeAliases = map[string]Type{
	"Pubkey":         U256Type,
	"Message":        U256Type,
	"Message64":      ArrayType(U8Type, 64),
	"Signature":      ArrayType(U8Type, 64),
	"Scalar":         U256Type,
	"Fe":             U256Type,
	"Ge":             TupleType(U256Type, U256Type),
	"Point":          TupleType(U1Type, U256Type),
	"Height":         U32Type,
	"Time":           U32Type,
	"Distance":       U16Type,
	"Duration":       U16Type,
	"Lock":           U32Type,
	"Outpoint":       TupleType(U256Type, U32Type),
	"ExplicitAsset":  U256Type,
	"ExplicitAmount": U64Type,
	"ExplicitNonce":  U256Type,
}

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex 把类型或值文本切分为记号
func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentChar(input[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: input[start:i], pos: start})
		case c >= '0' && c <= '9':
			start := i
			for i < len(input) && (isIdentChar(input[i])) {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: input[start:i], pos: start})
		case strings.IndexByte("()[]<>;,", c) >= 0:
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		default:
			return nil, &SyntaxError{Input: input, Offset: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(input)})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

type parser struct {
	input   string
	toks    []token
	pos     int
	aliases map[string]Type // 调用方定义的类型别名
}

func newParser(input string) (*parser, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	return &parser{input: input, toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Input: p.input, Offset: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(punct string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != punct {
		return p.errorf(t, "expected %q, found %q", punct, t.text)
	}
	return nil
}

func (p *parser) accept(punct string) bool {
	t := p.peek()
	if t.kind == tokPunct && t.text == punct {
		p.pos++
		return true
	}
	return false
}

func (p *parser) end() error {
	if t := p.peek(); t.kind != tokEOF {
		return p.errorf(t, "unexpected trailing %q", t.text)
	}
	return nil
}

// ParseType 解析类型的文本形式，例如 "u32"、"[u8; 64]"、"Either<u8, (u16, bool)>"
func ParseType(s string) (Type, error) {
	return ParseTypeWithAliases(s, nil)
}

// ParseTypeWithAliases 与 ParseType 相同，额外解析调用方定义的别名（例如源码中的 type 声明）
func ParseTypeWithAliases(s string, aliases map[string]Type) (Type, error) {
	p, err := newParser(s)
	if err != nil {
		return Type{}, err
	}
	p.aliases = aliases
	t, err := p.parseType()
	if err != nil {
		return Type{}, err
	}
	if err := p.end(); err != nil {
		return Type{}, err
	}
	return t, nil
}

// MustParseType 与 ParseType 相同，失败时 panic。只用于常量类型文本。
func MustParseType(s string) Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (p *parser) parseType() (Type, error) {
	t := p.next()
	switch {
	case t.kind == tokPunct && t.text == "(":
		if p.accept(")") {
			return UnitType, nil
		}
		var elems []Type
		trailing := false
		for {
			e, err := p.parseType()
			if err != nil {
				return Type{}, err
			}
			elems = append(elems, e)
			if p.accept(")") {
				break
			}
			if err := p.expect(","); err != nil {
				return Type{}, err
			}
			if p.accept(")") {
				trailing = true
				break
			}
		}
		if len(elems) == 1 && !trailing {
			return elems[0], nil
		}
		return TupleType(elems...), nil

	case t.kind == tokPunct && t.text == "[":
		elem, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(";"); err != nil {
			return Type{}, err
		}
		n := p.next()
		if n.kind != tokNumber {
			return Type{}, p.errorf(n, "expected array length, found %q", n.text)
		}
		size, err := strconv.Atoi(n.text)
		if err != nil || size < 0 {
			return Type{}, p.errorf(n, "invalid array length %q", n.text)
		}
		if err := p.expect("]"); err != nil {
			return Type{}, err
		}
		return ArrayType(elem, size), nil

	case t.kind == tokIdent:
		return p.parseNamedType(t)
	}
	return Type{}, p.errorf(t, "expected type, found %q", t.text)
}

func (p *parser) parseNamedType(t token) (Type, error) {
	switch t.text {
	case "bool":
		return BoolType, nil
	case "Either":
		if err := p.expect("<"); err != nil {
			return Type{}, err
		}
		l, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(","); err != nil {
			return Type{}, err
		}
		r, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(">"); err != nil {
			return Type{}, err
		}
		return EitherType(l, r), nil
	case "Option":
		if err := p.expect("<"); err != nil {
			return Type{}, err
		}
		inner, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(">"); err != nil {
			return Type{}, err
		}
		return OptionType(inner), nil
	}
	if alias, ok := p.aliases[t.text]; ok {
		return alias.WithAlias(t.text), nil
	}
	if alias, ok := typeAliases[t.text]; ok {
		return alias.WithAlias(t.text), nil
	}
	if strings.HasPrefix(t.text, "u") {
		if bits, err := strconv.Atoi(t.text[1:]); err == nil {
			if ut, err := UIntType(bits); err == nil {
				return ut, nil
			}
		}
	}
	return Type{}, p.errorf(t, "unknown type %q", t.text)
}

// ParseValue 按类型 t 解析 SimplicityHL 字面量
func ParseValue(s string, t Type) (Value, error) {
	p, err := newParser(s)
	if err != nil {
		return Value{}, err
	}
	v, err := p.parseValue(t)
	if err != nil {
		return Value{}, err
	}
	if err := p.end(); err != nil {
		return Value{}, err
	}
	return v, nil
}

func (p *parser) parseValue(t Type) (Value, error) {
	v, err := p.parseValueInner(t)
	if err != nil {
		return Value{}, err
	}
	return v.withType(t), nil
}

func (p *parser) parseValueInner(t Type) (Value, error) {
	switch t.kind {
	case KindUnit:
		if err := p.expect("("); err != nil {
			return Value{}, err
		}
		if err := p.expect(")"); err != nil {
			return Value{}, err
		}
		return Unit(), nil

	case KindBool:
		tok := p.next()
		switch {
		case tok.kind == tokIdent && tok.text == "true":
			return Bool(true), nil
		case tok.kind == tokIdent && tok.text == "false":
			return Bool(false), nil
		}
		return Value{}, p.errorf(tok, "expected bool, found %q", tok.text)

	case KindUInt:
		tok := p.next()
		if tok.kind != tokNumber {
			return Value{}, p.errorf(tok, "expected integer, found %q", tok.text)
		}
		n, ok := parseNumber(tok.text)
		if !ok {
			return Value{}, p.errorf(tok, "invalid integer %q", tok.text)
		}
		return UInt(t.bits, n)

	case KindArray:
		tok := p.peek()
		if t.IsByteArray() && tok.kind == tokNumber && strings.HasPrefix(tok.text, "0x") {
			p.next()
			raw, err := hex.DecodeString(strings.ReplaceAll(tok.text[2:], "_", ""))
			if err != nil {
				return Value{}, p.errorf(tok, "invalid hex: %v", err)
			}
			if len(raw) != t.size {
				return Value{}, mismatch(t, fmt.Sprintf("[u8; %d]", len(raw)))
			}
			return ByteArray(raw), nil
		}
		if err := p.expect("["); err != nil {
			return Value{}, err
		}
		var items []Value
		for !p.accept("]") {
			if len(items) > 0 {
				if err := p.expect(","); err != nil {
					return Value{}, err
				}
				if p.accept("]") {
					break
				}
			}
			it, err := p.parseValue(t.elems[0])
			if err != nil {
				return Value{}, err
			}
			items = append(items, it)
		}
		if len(items) != t.size {
			return Value{}, mismatch(t, fmt.Sprintf("array of %d elements", len(items)))
		}
		return Array(t.elems[0], items...)

	case KindTuple:
		if err := p.expect("("); err != nil {
			return Value{}, err
		}
		items := make([]Value, len(t.elems))
		for i, et := range t.elems {
			if i > 0 {
				if err := p.expect(","); err != nil {
					return Value{}, err
				}
			}
			it, err := p.parseValue(et)
			if err != nil {
				return Value{}, err
			}
			items[i] = it
		}
		p.accept(",")
		if err := p.expect(")"); err != nil {
			return Value{}, err
		}
		return Tuple(items...), nil

	case KindEither:
		tok := p.next()
		if tok.kind != tokIdent || (tok.text != "Left" && tok.text != "Right") {
			return Value{}, p.errorf(tok, "expected Left or Right, found %q", tok.text)
		}
		branch := t.elems[0]
		if tok.text == "Right" {
			branch = t.elems[1]
		}
		inner, err := p.parseWrapped(branch)
		if err != nil {
			return Value{}, err
		}
		if tok.text == "Right" {
			return Right(t.elems[0], inner), nil
		}
		return Left(inner, t.elems[1]), nil

	case KindOption:
		tok := p.next()
		switch {
		case tok.kind == tokIdent && tok.text == "None":
			return None(t.elems[0]), nil
		case tok.kind == tokIdent && tok.text == "Some":
			inner, err := p.parseWrapped(t.elems[0])
			if err != nil {
				return Value{}, err
			}
			return Some(inner), nil
		}
		return Value{}, p.errorf(tok, "expected Some or None, found %q", tok.text)
	}
	return Value{}, p.errorf(p.peek(), "unsupported type %s", t)
}

func (p *parser) parseWrapped(t Type) (Value, error) {
	if err := p.expect("("); err != nil {
		return Value{}, err
	}
	v, err := p.parseValue(t)
	if err != nil {
		return Value{}, err
	}
	if err := p.expect(")"); err != nil {
		return Value{}, err
	}
	return v, nil
}

// parseNumber 解析十进制、0x 十六进制或 0b 二进制整数，允许下划线分隔
func parseNumber(s string) (*big.Int, bool) {
	s = strings.ReplaceAll(s, "_", "")
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "0b"):
		s, base = s[2:], 2
	}
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, base)
}
