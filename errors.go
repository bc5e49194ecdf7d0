// Package simfchain 把 Simplicity 合约源码编译为 Elements 上的 taproot 输出，并构造花费该输出的交易。
package simfchain

import (
	"errors"
	"fmt"

	"github.com/qinglongcn/simfchain/simplicity"
)

// 常见失败的哨兵错误
var (
	// ErrCompilation 表示源码无法解析、类型检查失败或读取失败
	ErrCompilation = errors.New("simfchain: compilation failed")

	// ErrInstantiation 表示参数与合约声明不符
	ErrInstantiation = errors.New("simfchain: instantiation failed")

	// ErrBuilder 表示花费构造器无法完成请求
	ErrBuilder = errors.New("simfchain: spend builder error")

	// ErrBuilderFinalized 表示构造器已经完成，不能再修改或使用
	ErrBuilderFinalized = errors.New("simfchain: spend builder already finalized")

	// ErrAddress 表示地址参数或地址编码有误
	ErrAddress = errors.New("simfchain: address error")
)

// CompilationKind 区分编译失败的来源
type CompilationKind uint8

const (
	CompileParse CompilationKind = iota + 1
	CompileType
	CompileIO
)

func (k CompilationKind) String() string {
	switch k {
	case CompileParse:
		return "parse"
	case CompileType:
		return "type"
	case CompileIO:
		return "io"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// CompilationError 包装编译器返回的原始错误
type CompilationError struct {
	Kind CompilationKind
	Path string
	Err  error
}

func (e *CompilationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("simfchain: %s error in %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("simfchain: %s error: %v", e.Kind, e.Err)
}

func (e *CompilationError) Is(target error) bool { return target == ErrCompilation }

func (e *CompilationError) Unwrap() error { return e.Err }

// InstantiationKind 区分参数错误
type InstantiationKind uint8

const (
	MissingArgument InstantiationKind = iota + 1
	UnexpectedArgument
	ArgumentTypeMismatch
	// BindFailed 表示声明检查通过但编译器拒绝绑定
	BindFailed
)

func (k InstantiationKind) String() string {
	switch k {
	case MissingArgument:
		return "missing argument"
	case UnexpectedArgument:
		return "unexpected argument"
	case ArgumentTypeMismatch:
		return "argument type mismatch"
	case BindFailed:
		return "bind failed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// InstantiationError 记录出错的参数名
type InstantiationError struct {
	Kind     InstantiationKind
	Name     simplicity.WitnessName
	Expected string
	Actual   string
	Err      error
}

func (e *InstantiationError) Error() string {
	switch {
	case e.Kind == ArgumentTypeMismatch:
		return fmt.Sprintf("simfchain: %s %s: expected %s, got %s", e.Kind, e.Name, e.Expected, e.Actual)
	case e.Err != nil:
		return fmt.Sprintf("simfchain: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("simfchain: %s %s", e.Kind, e.Name)
}

func (e *InstantiationError) Is(target error) bool { return target == ErrInstantiation }

func (e *InstantiationError) Unwrap() error { return e.Err }

// BuilderKind 区分构造器错误
type BuilderKind uint8

const (
	// Incomplete 表示未设置创世哈希或没有输出
	Incomplete BuilderKind = iota + 1
	// ValueBalance 表示输入金额不等于输出与手续费之和
	ValueBalance
	MissingWitness
	UnexpectedWitness
	WitnessTypeMismatch
	// InvalidUtxo 表示 UTXO 不可用，例如机密资产或金额溢出
	InvalidUtxo
	// InvalidOutput 表示输出编码有误或目标地址无法解析
	InvalidOutput
	// EncodeFailed 表示程序或见证编码失败
	EncodeFailed
)

func (k BuilderKind) String() string {
	switch k {
	case Incomplete:
		return "incomplete builder"
	case ValueBalance:
		return "value balance"
	case MissingWitness:
		return "missing witness"
	case UnexpectedWitness:
		return "unexpected witness"
	case WitnessTypeMismatch:
		return "witness type mismatch"
	case InvalidUtxo:
		return "invalid utxo"
	case InvalidOutput:
		return "invalid output"
	case EncodeFailed:
		return "encode failed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// BuilderError 记录构造器失败的种类和细节
type BuilderError struct {
	Kind BuilderKind
	Name simplicity.WitnessName
	Msg  string
	Err  error
}

func (e *BuilderError) Error() string {
	msg := "simfchain: " + e.Kind.String()
	if e.Name != "" {
		msg += " " + e.Name.String()
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BuilderError) Is(target error) bool { return target == ErrBuilder }

func (e *BuilderError) Unwrap() error { return e.Err }

// AddressError 包装地址派生失败
type AddressError struct {
	Err error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("simfchain: address: %v", e.Err)
}

func (e *AddressError) Is(target error) bool { return target == ErrAddress }

func (e *AddressError) Unwrap() error { return e.Err }

// IsBuilderKind 判断 err 是否为指定种类的 *BuilderError
func IsBuilderKind(err error, kind BuilderKind) bool {
	var be *BuilderError
	return errors.As(err, &be) && be.Kind == kind
}

// IsInstantiationKind 判断 err 是否为指定种类的 *InstantiationError
func IsInstantiationKind(err error, kind InstantiationKind) bool {
	var ie *InstantiationError
	return errors.As(err, &ie) && ie.Kind == kind
}
