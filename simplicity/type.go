// Package simplicity 定义 Simplicity 值模型：类型、值、见证名称以及参数/见证映射。
package simplicity

import (
	"fmt"
	"strings"
)

// Kind 表示 Simplicity 类型的种类
type Kind uint8

const (
	KindUnit   Kind = iota // 单元类型 ()
	KindBool               // 布尔类型，等价于 Either<(), ()>
	KindUInt               // 定宽无符号整数 u1 .. u256
	KindArray              // 定长数组 [T; N]
	KindTuple              // 元组（积类型）
	KindEither             // 和类型 Either<L, R>
	KindOption             // Option<T>，等价于 Either<(), T>
)

// String 返回类型种类的名称
func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindUInt:
		return "uint"
	case KindArray:
		return "array"
	case KindTuple:
		return "tuple"
	case KindEither:
		return "either"
	case KindOption:
		return "option"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Type 是一个不可变的 Simplicity 类型描述
type Type struct {
	kind  Kind
	bits  int    // KindUInt 的位宽
	size  int    // KindArray 的长度
	elems []Type // 数组/Option 的元素类型，元组的成员类型，Either 的左右类型
	alias string // 打印时使用的别名，例如 Pubkey
}

// 支持的整数位宽
var wordWidths = map[int]struct{}{
	1: {}, 2: {}, 4: {}, 8: {}, 16: {}, 32: {}, 64: {}, 128: {}, 256: {},
}

// 常用类型
var (
	UnitType = Type{kind: KindUnit}
	BoolType = Type{kind: KindBool}

	U1Type   = Type{kind: KindUInt, bits: 1}
	U2Type   = Type{kind: KindUInt, bits: 2}
	U4Type   = Type{kind: KindUInt, bits: 4}
	U8Type   = Type{kind: KindUInt, bits: 8}
	U16Type  = Type{kind: KindUInt, bits: 16}
	U32Type  = Type{kind: KindUInt, bits: 32}
	U64Type  = Type{kind: KindUInt, bits: 64}
	U128Type = Type{kind: KindUInt, bits: 128}
	U256Type = Type{kind: KindUInt, bits: 256}

	// PubkeyType 是 x-only 公钥，编码为 u256
	PubkeyType = U256Type.WithAlias("Pubkey")
	// SignatureType 是 BIP-340 schnorr 签名，编码为 [u8; 64]
	SignatureType = ArrayType(U8Type, 64).WithAlias("Signature")
)

// UIntType 返回指定位宽的无符号整数类型
func UIntType(bits int) (Type, error) {
	if _, ok := wordWidths[bits]; !ok {
		return Type{}, fmt.Errorf("unsupported integer width %d", bits)
	}
	return Type{kind: KindUInt, bits: bits}, nil
}

// ArrayType 返回元素类型为 elem、长度为 n 的数组类型
func ArrayType(elem Type, n int) Type {
	return Type{kind: KindArray, size: n, elems: []Type{elem}}
}

// TupleType 返回由给定成员组成的元组类型；零个成员即为单元类型
func TupleType(elems ...Type) Type {
	if len(elems) == 0 {
		return UnitType
	}
	return Type{kind: KindTuple, elems: append([]Type(nil), elems...)}
}

// EitherType 返回 Either<left, right>
func EitherType(left, right Type) Type {
	return Type{kind: KindEither, elems: []Type{left, right}}
}

// OptionType 返回 Option<inner>
func OptionType(inner Type) Type {
	return Type{kind: KindOption, elems: []Type{inner}}
}

// WithAlias 返回带有打印别名的同一类型。别名不影响类型相等性。
func (t Type) WithAlias(alias string) Type {
	t.alias = alias
	return t
}

// Kind 返回类型种类
func (t Type) Kind() Kind { return t.kind }

// Bits 返回整数类型的位宽，非整数类型返回 0
func (t Type) Bits() int { return t.bits }

// Len 返回数组长度或元组成员数
func (t Type) Len() int {
	switch t.kind {
	case KindArray:
		return t.size
	case KindTuple:
		return len(t.elems)
	}
	return 0
}

// Elem 返回数组或 Option 的元素类型
func (t Type) Elem() Type {
	if (t.kind == KindArray || t.kind == KindOption) && len(t.elems) == 1 {
		return t.elems[0]
	}
	return UnitType
}

// Field 返回元组的第 i 个成员类型
func (t Type) Field(i int) Type {
	if t.kind != KindTuple || i < 0 || i >= len(t.elems) {
		return UnitType
	}
	return t.elems[i]
}

// Left 返回 Either 的左类型
func (t Type) Left() Type {
	if t.kind != KindEither {
		return UnitType
	}
	return t.elems[0]
}

// Right 返回 Either 的右类型
func (t Type) Right() Type {
	if t.kind != KindEither {
		return UnitType
	}
	return t.elems[1]
}

// IsByteArray 判断是否为 [u8; N]
func (t Type) IsByteArray() bool {
	return t.kind == KindArray && t.elems[0].kind == KindUInt && t.elems[0].bits == 8
}

// Equal 判断两个类型结构上是否相同
func (t Type) Equal(o Type) bool {
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindUnit, KindBool:
		return true
	case KindUInt:
		return t.bits == o.bits
	case KindArray:
		return t.size == o.size && t.elems[0].Equal(o.elems[0])
	}
	if len(t.elems) != len(o.elems) {
		return false
	}
	for i := range t.elems {
		if !t.elems[i].Equal(o.elems[i]) {
			return false
		}
	}
	return true
}

// BitWidth 返回该类型值在紧凑位编码下的最大位数
func (t Type) BitWidth() int {
	switch t.kind {
	case KindUnit:
		return 0
	case KindBool:
		return 1
	case KindUInt:
		return t.bits
	case KindArray:
		return t.size * t.elems[0].BitWidth()
	case KindTuple:
		total := 0
		for _, e := range t.elems {
			total += e.BitWidth()
		}
		return total
	case KindEither:
		l, r := t.elems[0].BitWidth(), t.elems[1].BitWidth()
		if l > r {
			return 1 + l
		}
		return 1 + r
	case KindOption:
		return 1 + t.elems[0].BitWidth()
	}
	return 0
}

// String 返回类型的规范文本形式
func (t Type) String() string {
	if t.alias != "" {
		return t.alias
	}
	switch t.kind {
	case KindUnit:
		return "()"
	case KindBool:
		return "bool"
	case KindUInt:
		return fmt.Sprintf("u%d", t.bits)
	case KindArray:
		return fmt.Sprintf("[%s; %d]", t.elems[0], t.size)
	case KindTuple:
		parts := make([]string, len(t.elems))
		for i, e := range t.elems {
			parts[i] = e.String()
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindEither:
		return fmt.Sprintf("Either<%s, %s>", t.elems[0], t.elems[1])
	case KindOption:
		return fmt.Sprintf("Option<%s>", t.elems[0])
	}
	return "?"
}
