package simfchain

import (
	"errors"

	"github.com/qinglongcn/simfchain/frontend"
	"github.com/qinglongcn/simfchain/simplicity"
)

// Compiler 把源码编译为模板。实现可以替换，默认使用 frontend 包。
type Compiler interface {
	Compile(source string) (Template, error)
}

// Template 是尚未绑定参数的程序
type Template interface {
	Parameters() simplicity.Declarations
	Witnesses() simplicity.Declarations
	Bind(args simplicity.Arguments) (Program, error)
}

// Program 是绑定参数后的具体程序
type Program interface {
	CMR() [32]byte
	Encode(witness simplicity.WitnessValues) (program []byte, witnessBytes []byte, err error)
}

// DefaultCompiler 返回基于 frontend 包的编译器
func DefaultCompiler() Compiler {
	return frontendCompiler{c: frontend.NewCompiler()}
}

type frontendCompiler struct {
	c *frontend.Compiler
}

func (f frontendCompiler) Compile(source string) (Template, error) {
	t, err := f.c.Compile(source)
	if err != nil {
		return nil, err
	}
	return frontendTemplate{Template: t}, nil
}

type frontendTemplate struct {
	*frontend.Template
}

func (t frontendTemplate) Bind(args simplicity.Arguments) (Program, error) {
	p, err := t.Template.Bind(args)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// compilationKind 按编译器返回的错误判断失败种类
func compilationKind(err error) CompilationKind {
	switch {
	case errors.Is(err, frontend.ErrType), errors.Is(err, simplicity.ErrTypeMismatch):
		return CompileType
	default:
		return CompileParse
	}
}
