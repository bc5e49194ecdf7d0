package frontend

import (
	"errors"
	"fmt"
)

var (
	// ErrParse 表示源码无法解析
	ErrParse = errors.New("frontend: parse error")

	// ErrType 表示槽位类型缺失、冲突或无法解析
	ErrType = errors.New("frontend: type error")

	// ErrBind 表示绑定的参数或见证与声明不符
	ErrBind = errors.New("frontend: bind error")
)

// ParseError 记录出错的源码位置
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("frontend: parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// TypeError 记录出错的槽位名称
type TypeError struct {
	Name string
	Msg  string
}

func (e *TypeError) Error() string {
	if e.Name == "" {
		return "frontend: type error: " + e.Msg
	}
	return fmt.Sprintf("frontend: type error in %s: %s", e.Name, e.Msg)
}

func (e *TypeError) Is(target error) bool { return target == ErrType }

func parseErrorAt(t token, format string, args ...any) error {
	return &ParseError{Line: t.line, Col: t.col, Msg: fmt.Sprintf(format, args...)}
}
