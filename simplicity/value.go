package simplicity

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Value 是 Simplicity 值的带标签联合体，构造后不可变
type Value struct {
	typ   Type
	word  []byte  // KindUInt：大端字节，位宽小于 8 时占用一个字节
	flag  bool    // KindBool 的值；Either 是否为 Right；Option 是否为 Some
	items []Value // 数组/元组成员；Either/Option 的载荷位于 items[0]
}

// Unit 返回单元值 ()
func Unit() Value {
	return Value{typ: UnitType}
}

// Bool 返回布尔值
func Bool(b bool) Value {
	return Value{typ: BoolType, flag: b}
}

// U8 返回 u8 值
func U8(v uint8) Value {
	return Value{typ: U8Type, word: []byte{v}}
}

// U16 返回 u16 值
func U16(v uint16) Value {
	w := make([]byte, 2)
	binary.BigEndian.PutUint16(w, v)
	return Value{typ: U16Type, word: w}
}

// U32 返回 u32 值
func U32(v uint32) Value {
	w := make([]byte, 4)
	binary.BigEndian.PutUint32(w, v)
	return Value{typ: U32Type, word: w}
}

// U64 返回 u64 值
func U64(v uint64) Value {
	w := make([]byte, 8)
	binary.BigEndian.PutUint64(w, v)
	return Value{typ: U64Type, word: w}
}

// U128 由 16 字节大端表示构造 u128 值
func U128(b [16]byte) Value {
	return Value{typ: U128Type, word: append([]byte(nil), b[:]...)}
}

// U256 由 32 字节大端表示构造 u256 值
func U256(b [32]byte) Value {
	return Value{typ: U256Type, word: append([]byte(nil), b[:]...)}
}

// Pubkey 构造 x-only 公钥值（u256）
func Pubkey(b [32]byte) Value {
	v := U256(b)
	v.typ = PubkeyType
	return v
}

// Signature 构造 64 字节 schnorr 签名值
func Signature(b [64]byte) Value {
	v := ByteArray(b[:])
	v.typ = SignatureType
	return v
}

// UInt 在运行时检查位宽并构造整数值。n 超出 bits 位时返回 *TypeMismatchError。
func UInt(bits int, n *big.Int) (Value, error) {
	t, err := UIntType(bits)
	if err != nil {
		return Value{}, &TypeMismatchError{Expected: fmt.Sprintf("u%d", bits), Actual: "unsupported width"}
	}
	if n == nil || n.Sign() < 0 {
		return Value{}, mismatch(t, "negative integer")
	}
	if n.BitLen() > bits {
		return Value{}, mismatch(t, fmt.Sprintf("integer of %d bits", n.BitLen()))
	}
	size := bits / 8
	if size == 0 {
		size = 1
	}
	w := make([]byte, size)
	n.FillBytes(w)
	return Value{typ: t, word: w}, nil
}

// UIntFromUint64 是 UInt 的便捷形式
func UIntFromUint64(bits int, n uint64) (Value, error) {
	return UInt(bits, new(big.Int).SetUint64(n))
}

// ByteArray 构造 [u8; len(b)] 值
func ByteArray(b []byte) Value {
	items := make([]Value, len(b))
	for i, c := range b {
		items[i] = U8(c)
	}
	return Value{typ: ArrayType(U8Type, len(b)), items: items}
}

// Array 构造元素类型为 elem 的数组，任一元素类型不符时返回 *TypeMismatchError
func Array(elem Type, vals ...Value) (Value, error) {
	for _, v := range vals {
		if err := v.CheckType(elem); err != nil {
			return Value{}, err
		}
	}
	return Value{typ: ArrayType(elem, len(vals)), items: append([]Value(nil), vals...)}, nil
}

// Tuple 构造元组值；无成员时即为单元值
func Tuple(vals ...Value) Value {
	if len(vals) == 0 {
		return Unit()
	}
	types := make([]Type, len(vals))
	for i, v := range vals {
		types[i] = v.typ
	}
	return Value{typ: TupleType(types...), items: append([]Value(nil), vals...)}
}

// Left 构造 Either<v.Type(), right> 的左值
func Left(v Value, right Type) Value {
	return Value{typ: EitherType(v.typ, right), items: []Value{v}}
}

// Right 构造 Either<left, v.Type()> 的右值
func Right(left Type, v Value) Value {
	return Value{typ: EitherType(left, v.typ), flag: true, items: []Value{v}}
}

// Some 构造 Option<v.Type()> 的 Some 值
func Some(v Value) Value {
	return Value{typ: OptionType(v.typ), flag: true, items: []Value{v}}
}

// None 构造 Option<t> 的 None 值
func None(t Type) Value {
	return Value{typ: OptionType(t)}
}

// Type 返回值的类型
func (v Value) Type() Type { return v.typ }

// withType 在结构相同的前提下替换类型（用于保留别名）
func (v Value) withType(t Type) Value {
	v.typ = t
	return v
}

// CheckType 检查值是否满足类型 t
func (v Value) CheckType(t Type) error {
	if !v.typ.Equal(t) {
		return mismatch(t, v.typ.String())
	}
	return nil
}

// BigInt 返回整数值；非整数返回 nil
func (v Value) BigInt() *big.Int {
	if v.typ.kind != KindUInt {
		return nil
	}
	return new(big.Int).SetBytes(v.word)
}

// Uint64 返回不超过 64 位的整数值
func (v Value) Uint64() (uint64, bool) {
	n := v.BigInt()
	if n == nil || !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}

// Bytes 返回整数的大端字节或字节数组的内容，其它类型返回 nil
func (v Value) Bytes() []byte {
	switch {
	case v.typ.kind == KindUInt:
		return append([]byte(nil), v.word...)
	case v.typ.IsByteArray():
		out := make([]byte, len(v.items))
		for i, it := range v.items {
			out[i] = it.word[0]
		}
		return out
	}
	return nil
}

// Items 返回数组或元组成员的副本
func (v Value) Items() []Value {
	if v.typ.kind != KindArray && v.typ.kind != KindTuple {
		return nil
	}
	return append([]Value(nil), v.items...)
}

// IsRight 对 Either 表示右值，对 Option 表示 Some，对 bool 表示 true
func (v Value) IsRight() bool { return v.flag }

// Inner 返回 Either/Option 的载荷；None 返回 false
func (v Value) Inner() (Value, bool) {
	if (v.typ.kind == KindEither || v.typ.kind == KindOption) && len(v.items) == 1 {
		return v.items[0], true
	}
	return Value{}, false
}

// Equal 判断两个值的类型与内容是否相同
func (v Value) Equal(o Value) bool {
	if !v.typ.Equal(o.typ) {
		return false
	}
	return bytes.Equal(EncodeBits(v), EncodeBits(o)) && v.BitLen() == o.BitLen()
}

// BitLen 返回该值紧凑位编码的位数
func (v Value) BitLen() int {
	w := new(BitWriter)
	v.encode(w)
	return w.Len()
}

// String 以 SimplicityHL 字面量语法输出值
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.typ.kind {
	case KindUnit:
		sb.WriteString("()")
	case KindBool:
		if v.flag {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case KindUInt:
		if v.typ.bits > 64 {
			sb.WriteString("0x")
			sb.WriteString(hex.EncodeToString(v.word))
			return
		}
		sb.WriteString(v.BigInt().String())
	case KindArray:
		if v.typ.IsByteArray() && len(v.items) > 0 {
			sb.WriteString("0x")
			sb.WriteString(hex.EncodeToString(v.Bytes()))
			return
		}
		sb.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			it.format(sb)
		}
		sb.WriteByte(']')
	case KindTuple:
		sb.WriteByte('(')
		for i, it := range v.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			it.format(sb)
		}
		if len(v.items) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
	case KindEither:
		if v.flag {
			sb.WriteString("Right(")
		} else {
			sb.WriteString("Left(")
		}
		v.items[0].format(sb)
		sb.WriteByte(')')
	case KindOption:
		if !v.flag {
			sb.WriteString("None")
			return
		}
		sb.WriteString("Some(")
		v.items[0].format(sb)
		sb.WriteByte(')')
	}
}
