package simplicity

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch 表示值的宽度或形状与声明的类型不一致
	ErrTypeMismatch = errors.New("simplicity: type mismatch")

	// ErrInvalidIdentifier 表示见证名称不满足标识符语法
	ErrInvalidIdentifier = errors.New("simplicity: invalid identifier")

	// ErrSyntax 表示类型或值的文本无法解析
	ErrSyntax = errors.New("simplicity: syntax error")
)

// TypeMismatchError 记录期望类型与实际类型
type TypeMismatchError struct {
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("simplicity: type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// InvalidIdentifierError 记录非法的标识符及原因
type InvalidIdentifierError struct {
	Name   string
	Reason string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("simplicity: invalid identifier %q: %s", e.Name, e.Reason)
}

func (e *InvalidIdentifierError) Is(target error) bool {
	return target == ErrInvalidIdentifier
}

// SyntaxError 记录解析失败的位置
type SyntaxError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("simplicity: syntax error at offset %d in %q: %s", e.Offset, e.Input, e.Msg)
}

func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

func mismatch(expected Type, actual string) error {
	return &TypeMismatchError{Expected: expected.String(), Actual: actual}
}
