package frontend

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/qinglongcn/simfchain/simplicity"
)

// 承诺使用的标签
var (
	tagSource = []byte("Simplicity/frontend/source")
	tagCommit = []byte("Simplicity/frontend/commit")
)

// programMagic 是编码后程序字节的前缀
var programMagic = []byte{'s', 'i', 'm', 'f', 0x01}

// Compiler 是默认的源码编译器，无状态，可并发使用
type Compiler struct{}

// NewCompiler 返回默认编译器
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Template 是编译后、绑定参数前的程序
type Template struct {
	source    string
	tokens    []token
	functions []string
	params    simplicity.Declarations
	witnesses simplicity.Declarations
	digest    chainhash.Hash
}

// slot 是源码中一处 param:: 或 witness:: 引用
type slot struct {
	name  simplicity.WitnessName
	at    token
	typed bool
	typ   simplicity.Type
}

// Compile 解析源码并收集参数和见证声明
func (c *Compiler) Compile(source string) (*Template, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, &ParseError{Line: 1, Col: 1, Msg: "empty program"}
	}
	if err := checkBalance(toks); err != nil {
		return nil, err
	}

	t := &Template{source: source, tokens: toks}
	aliases, err := t.parseItems()
	if err != nil {
		return nil, err
	}

	if t.params, err = t.collect("param", aliases); err != nil {
		return nil, err
	}
	if t.witnesses, err = t.collect("witness", aliases); err != nil {
		return nil, err
	}

	t.digest = *chainhash.TaggedHash(tagSource, canonical(toks))
	return t, nil
}

func (t *Template) tok(i int) token {
	if i < len(t.tokens) {
		return t.tokens[i]
	}
	last := t.tokens[len(t.tokens)-1]
	return token{line: last.line, col: last.col + len(last.text)}
}

func (t *Template) text(from, to int) string {
	last := t.tokens[to]
	return t.source[t.tokens[from].off : last.off+len(last.text)]
}

// parseItems 解析顶层的函数和类型别名，返回别名表
func (t *Template) parseItems() (map[string]simplicity.Type, error) {
	aliases := make(map[string]simplicity.Type)
	seen := make(map[string]bool)
	hasMain := false

	for i := 0; i < len(t.tokens); {
		cur := t.tok(i)
		switch {
		case cur.ident("fn"):
			name := t.tok(i + 1)
			if name.kind != tokIdent {
				return nil, parseErrorAt(name, "expected function name")
			}
			if seen[name.text] {
				return nil, parseErrorAt(name, "function %s is defined more than once", name.text)
			}
			seen[name.text] = true

			open := t.tok(i + 2)
			if !open.punct("(") {
				return nil, parseErrorAt(open, "expected ( after fn %s", name.text)
			}
			closeParen := matching(t.tokens, i+2)

			j := closeParen + 1
			if t.tok(j).punct("->") {
				for j < len(t.tokens) && !t.tokens[j].punct("{") {
					j++
				}
			}
			if !t.tok(j).punct("{") {
				return nil, parseErrorAt(t.tok(j), "expected function body")
			}

			if name.text == "main" {
				if closeParen != i+3 {
					return nil, parseErrorAt(t.tok(i+3), "main takes no arguments")
				}
				hasMain = true
			}
			t.functions = append(t.functions, name.text)
			i = matching(t.tokens, j) + 1

		case cur.ident("type"):
			name := t.tok(i + 1)
			if name.kind != tokIdent {
				return nil, parseErrorAt(name, "expected type name")
			}
			if !t.tok(i + 2).punct("=") {
				return nil, parseErrorAt(t.tok(i+2), "expected = after type %s", name.text)
			}
			end := i + 3
			for end < len(t.tokens) && !t.tokens[end].punct(";") {
				end++
			}
			if end == len(t.tokens) || end == i+3 {
				return nil, parseErrorAt(t.tok(end), "expected type")
			}
			typ, err := simplicity.ParseTypeWithAliases(t.text(i+3, end-1), aliases)
			if err != nil {
				return nil, &TypeError{Name: name.text, Msg: err.Error()}
			}
			aliases[name.text] = typ.WithAlias(name.text)
			i = end + 1

		default:
			return nil, parseErrorAt(cur, "expected item, found %q", cur.text)
		}
	}

	if !hasMain {
		return nil, &ParseError{Line: 1, Col: 1, Msg: "missing fn main()"}
	}
	return aliases, nil
}

// collect 收集某个命名空间下的全部槽位，按首次出现的顺序返回声明
func (t *Template) collect(namespace string, aliases map[string]simplicity.Type) (simplicity.Declarations, error) {
	var order []simplicity.WitnessName
	slots := make(map[simplicity.WitnessName][]slot)

	for i := 0; i+1 < len(t.tokens); i++ {
		if !t.tokens[i].ident(namespace) || !t.tokens[i+1].punct("::") {
			continue
		}
		nameTok := t.tok(i + 2)
		if nameTok.kind != tokIdent {
			return nil, parseErrorAt(nameTok, "expected name after %s::", namespace)
		}
		name, err := simplicity.NewWitnessName(nameTok.text)
		if err != nil {
			return nil, parseErrorAt(nameTok, "%v", err)
		}

		s := slot{name: name, at: nameTok}
		if from, to, ok := t.letType(i); ok {
			if to < from {
				return nil, parseErrorAt(t.tok(from), "expected type before =")
			}
			s.typ, err = simplicity.ParseTypeWithAliases(t.text(from, to), aliases)
			if err != nil {
				return nil, &TypeError{Name: namespace + "::" + name.String(), Msg: err.Error()}
			}
			s.typed = true
		}

		if _, ok := slots[name]; !ok {
			order = append(order, name)
		}
		slots[name] = append(slots[name], s)
	}

	decls := make(simplicity.Declarations, 0, len(order))
	for _, name := range order {
		var (
			typ   simplicity.Type
			found bool
		)
		for _, s := range slots[name] {
			if !s.typed {
				continue
			}
			if found && !typ.Equal(s.typ) {
				return nil, &TypeError{
					Name: namespace + "::" + name.String(),
					Msg:  fmt.Sprintf("conflicting types %s and %s at %d:%d", typ, s.typ, s.at.line, s.at.col),
				}
			}
			if !found {
				typ, found = s.typ, true
			}
		}
		if !found {
			first := slots[name][0].at
			return nil, &TypeError{
				Name: namespace + "::" + name.String(),
				Msg:  fmt.Sprintf("untyped use at %d:%d, bind it with let NAME: TYPE first", first.line, first.col),
			}
		}
		decls = append(decls, simplicity.Declaration{Name: name, Type: typ})
	}
	return decls, nil
}

// letType 判断 toks[i] 处的槽位是否位于 `let PAT: TYPE = ns::NAME;` 中，返回类型记号的区间
func (t *Template) letType(i int) (int, int, bool) {
	if i < 1 || !t.tokens[i-1].punct("=") || !t.tok(i+3).punct(";") {
		return 0, 0, false
	}
	let := -1
	for k := i - 2; k >= 0; k-- {
		tk := t.tokens[k]
		if tk.punct(";") || tk.punct("{") || tk.punct("}") {
			break
		}
		if tk.ident("let") {
			let = k
			break
		}
	}
	if let < 0 {
		return 0, 0, false
	}

	depth := 0
	for k := let + 1; k < i-1; k++ {
		tk := t.tokens[k]
		switch {
		case tk.punct("("), tk.punct("["), tk.punct("<"):
			depth++
		case tk.punct(")"), tk.punct("]"), tk.punct(">"):
			depth--
		case tk.punct(":") && depth == 0:
			return k + 1, i - 2, true
		}
	}
	return 0, 0, false
}

// canonical 把记号序列编码为与空白和注释无关的字节流
func canonical(toks []token) []byte {
	var buf bytes.Buffer
	for _, tk := range toks {
		buf.WriteByte(byte(tk.kind))
		_ = wire.WriteVarString(&buf, 0, tk.text)
	}
	return buf.Bytes()
}

// Source 返回原始源码
func (t *Template) Source() string { return t.source }

// Digest 返回源码记号流的摘要，空白和注释不影响结果
func (t *Template) Digest() [32]byte { return t.digest }

// Functions 按定义顺序返回函数名
func (t *Template) Functions() []string {
	return append([]string(nil), t.functions...)
}

// Parameters 返回参数声明
func (t *Template) Parameters() simplicity.Declarations {
	return append(simplicity.Declarations(nil), t.params...)
}

// Witnesses 返回见证声明
func (t *Template) Witnesses() simplicity.Declarations {
	return append(simplicity.Declarations(nil), t.witnesses...)
}

// Bind 绑定参数得到可承诺的程序
func (t *Template) Bind(args simplicity.Arguments) (*Program, error) {
	if err := checkAssignment("argument", t.params, args); err != nil {
		return nil, err
	}

	var pre bytes.Buffer
	pre.Write(t.digest[:])
	for _, decl := range t.params {
		v, _ := args.Get(decl.Name)
		_ = wire.WriteVarString(&pre, 0, decl.Name.String())
		_ = wire.WriteVarString(&pre, 0, decl.Type.String())
		_ = wire.WriteVarBytes(&pre, 0, simplicity.EncodeBits(v))
	}

	return &Program{
		template: t,
		args:     args.Clone(),
		cmr:      *chainhash.TaggedHash(tagCommit, pre.Bytes()),
	}, nil
}

func checkAssignment(what string, decls simplicity.Declarations, vals map[simplicity.WitnessName]simplicity.Value) error {
	for _, decl := range decls {
		v, ok := vals[decl.Name]
		if !ok {
			return fmt.Errorf("%w: missing %s %s", ErrBind, what, decl.Name)
		}
		if err := v.CheckType(decl.Type); err != nil {
			return fmt.Errorf("%w: %s %s: %v", ErrBind, what, decl.Name, err)
		}
	}
	for name := range vals {
		if _, ok := decls.Lookup(name); !ok {
			return fmt.Errorf("%w: unexpected %s %s", ErrBind, what, name)
		}
	}
	return nil
}

// Program 是绑定了参数的程序
type Program struct {
	template *Template
	args     simplicity.Arguments
	cmr      chainhash.Hash
}

// CMR 返回程序的承诺根
func (p *Program) CMR() [32]byte { return p.cmr }

// Template 返回程序的来源模板
func (p *Program) Template() *Template { return p.template }

// Arguments 返回绑定参数的副本
func (p *Program) Arguments() simplicity.Arguments { return p.args.Clone() }

// Encode 返回程序字节和见证字节。见证值按声明顺序做位编码，不参与承诺。
func (p *Program) Encode(witness simplicity.WitnessValues) ([]byte, []byte, error) {
	if err := checkAssignment("witness", p.template.witnesses, witness); err != nil {
		return nil, nil, err
	}

	var prog bytes.Buffer
	prog.Write(programMagic)
	if err := wire.WriteVarBytes(&prog, 0, canonical(p.template.tokens)); err != nil {
		return nil, nil, err
	}
	args := make([]simplicity.Value, 0, len(p.template.params))
	for _, decl := range p.template.params {
		v, _ := p.args.Get(decl.Name)
		args = append(args, v)
	}
	if err := wire.WriteVarBytes(&prog, 0, simplicity.EncodeBits(args...)); err != nil {
		return nil, nil, err
	}

	vals := make([]simplicity.Value, 0, len(p.template.witnesses))
	for _, decl := range p.template.witnesses {
		v, _ := witness.Get(decl.Name)
		vals = append(vals, v)
	}
	return prog.Bytes(), simplicity.EncodeBits(vals...), nil
}
