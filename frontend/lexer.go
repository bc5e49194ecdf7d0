package frontend

import (
	"fmt"
	"strings"
)

type tokenKind uint8

const (
	tokIdent tokenKind = iota + 1
	tokNumber
	tokPunct
)

// token 是源码中的一个记号，位置从 1 开始计数
type token struct {
	kind tokenKind
	text string
	off  int
	line int
	col  int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) punct(text string) bool { return t.is(tokPunct, text) }

func (t token) ident(text string) bool { return t.is(tokIdent, text) }

// 双字符标点优先匹配
var multiPunct = []string{"::", "->", "=>"}

const singlePunct = "(){}[]<>;,:=!.-+*/&|^%"

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

func (l *lexer) errorf(format string, args ...any) error {
	return &ParseError{Line: l.line, Col: l.col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.off < len(l.src); i++ {
		if l.src[l.off] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.off++
	}
}

// lex 把源码切分为记号，丢弃空白和注释
func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var toks []token
	for l.off < len(l.src) {
		c := l.src[l.off]
		rest := l.src[l.off:]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance(1)

		case strings.HasPrefix(rest, "//"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				end = len(rest)
			}
			l.advance(end)

		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return nil, l.errorf("unterminated block comment")
			}
			l.advance(end + 4)

		case isIdentStart(c):
			n := 1
			for n < len(rest) && isIdentChar(rest[n]) {
				n++
			}
			toks = append(toks, token{kind: tokIdent, text: rest[:n], off: l.off, line: l.line, col: l.col})
			l.advance(n)

		case c >= '0' && c <= '9':
			n := 1
			for n < len(rest) && isIdentChar(rest[n]) {
				n++
			}
			toks = append(toks, token{kind: tokNumber, text: rest[:n], off: l.off, line: l.line, col: l.col})
			l.advance(n)

		default:
			text := ""
			for _, p := range multiPunct {
				if strings.HasPrefix(rest, p) {
					text = p
					break
				}
			}
			if text == "" && strings.IndexByte(singlePunct, c) >= 0 {
				text = rest[:1]
			}
			if text == "" {
				return nil, l.errorf("unexpected character %q", rune(c))
			}
			toks = append(toks, token{kind: tokPunct, text: text, off: l.off, line: l.line, col: l.col})
			l.advance(len(text))
		}
	}
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

var closers = map[string]string{")": "(", "}": "{", "]": "["}

// checkBalance 检查圆括号、花括号和方括号是否成对
func checkBalance(toks []token) error {
	var stack []token
	for _, t := range toks {
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(", "{", "[":
			stack = append(stack, t)
		case ")", "}", "]":
			if len(stack) == 0 || stack[len(stack)-1].text != closers[t.text] {
				return &ParseError{Line: t.line, Col: t.col, Msg: fmt.Sprintf("unmatched %q", t.text)}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		open := stack[len(stack)-1]
		return &ParseError{Line: open.line, Col: open.col, Msg: fmt.Sprintf("unclosed %q", open.text)}
	}
	return nil
}

// matching 返回与 toks[i] 处开括号配对的闭括号下标。调用前已通过 checkBalance。
func matching(toks []token, i int) int {
	depth := 0
	for j := i; j < len(toks); j++ {
		if toks[j].kind != tokPunct {
			continue
		}
		switch toks[j].text {
		case "(", "{", "[":
			depth++
		case ")", "}", "]":
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return len(toks) - 1
}
