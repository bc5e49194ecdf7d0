package simplicity

import (
	"sort"
)

// WitnessName 是参数或见证槽位的名称，在同一程序内唯一
type WitnessName string

// 保留字不能作为名称
var reservedWords = map[string]struct{}{
	"fn": {}, "let": {}, "match": {}, "mod": {}, "const": {}, "type": {},
	"true": {}, "false": {}, "None": {}, "Some": {}, "Left": {}, "Right": {},
	"param": {}, "witness": {}, "jet": {}, "assert": {}, "panic": {},
}

// NewWitnessName 校验标识符语法后构造名称，失败时返回 *InvalidIdentifierError
func NewWitnessName(s string) (WitnessName, error) {
	if s == "" {
		return "", &InvalidIdentifierError{Name: s, Reason: "empty"}
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return "", &InvalidIdentifierError{Name: s, Reason: "starts with a digit"}
			}
		default:
			return "", &InvalidIdentifierError{Name: s, Reason: "contains " + string(r)}
		}
	}
	if _, ok := reservedWords[s]; ok {
		return "", &InvalidIdentifierError{Name: s, Reason: "reserved word"}
	}
	return WitnessName(s), nil
}

// WitnessNameUnchecked 不做校验直接构造名称，仅用于可信的调用方
func WitnessNameUnchecked(s string) WitnessName {
	return WitnessName(s)
}

// String 返回名称文本
func (n WitnessName) String() string { return string(n) }

// Declaration 是程序声明的一个具名槽位及其类型
type Declaration struct {
	Name WitnessName
	Type Type
}

// Declarations 按声明顺序排列的槽位列表
type Declarations []Declaration

// Lookup 查找名称对应的类型
func (d Declarations) Lookup(name WitnessName) (Type, bool) {
	for _, decl := range d {
		if decl.Name == name {
			return decl.Type, true
		}
	}
	return Type{}, false
}

// Names 按声明顺序返回名称
func (d Declarations) Names() []WitnessName {
	names := make([]WitnessName, len(d))
	for i, decl := range d {
		names[i] = decl.Name
	}
	return names
}

// Arguments 是实例化时绑定到程序参数的常量
type Arguments map[WitnessName]Value

// WitnessValues 是花费时提供的见证值（例如签名），与 Arguments 是不同的命名空间
type WitnessValues map[WitnessName]Value

// NewArguments 返回空的参数集合
func NewArguments() Arguments { return Arguments{} }

// ArgumentsFrom 由普通 map 构造参数集合
func ArgumentsFrom(m map[WitnessName]Value) Arguments {
	return Arguments(m).Clone()
}

// Insert 设置参数值，已存在时覆盖。零值集合会先被初始化。
func (a *Arguments) Insert(name WitnessName, v Value) {
	if *a == nil {
		*a = Arguments{}
	}
	(*a)[name] = v
}

// Len 返回参数个数
func (a Arguments) Len() int { return len(a) }

// Names 返回排序后的参数名
func (a Arguments) Names() []WitnessName { return sortedNames(a) }

// Get 返回参数值
func (a Arguments) Get(name WitnessName) (Value, bool) {
	v, ok := a[name]
	return v, ok
}

// Clone 返回浅拷贝；Value 本身不可变
func (a Arguments) Clone() Arguments {
	out := make(Arguments, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// NewWitnessValues 返回空的见证集合
func NewWitnessValues() WitnessValues { return WitnessValues{} }

// WitnessValuesFrom 由普通 map 构造见证集合
func WitnessValuesFrom(m map[WitnessName]Value) WitnessValues {
	return WitnessValues(m).Clone()
}

// Insert 设置见证值，零值集合会先被初始化
func (w *WitnessValues) Insert(name WitnessName, v Value) {
	if *w == nil {
		*w = WitnessValues{}
	}
	(*w)[name] = v
}

// Len 返回见证个数
func (w WitnessValues) Len() int { return len(w) }

// Names 返回排序后的见证名
func (w WitnessValues) Names() []WitnessName { return sortedNames(w) }

// Get 返回见证值
func (w WitnessValues) Get(name WitnessName) (Value, bool) {
	v, ok := w[name]
	return v, ok
}

// Clone 返回浅拷贝
func (w WitnessValues) Clone() WitnessValues {
	out := make(WitnessValues, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func sortedNames(m map[WitnessName]Value) []WitnessName {
	names := make([]WitnessName, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// WitnessBuilder 以链式调用收集见证值。它只负责摆放调用方提供的字节，不做签名。
type WitnessBuilder struct {
	values WitnessValues
}

// NewWitnessBuilder 创建空的见证构造器
func NewWitnessBuilder() *WitnessBuilder {
	return &WitnessBuilder{values: WitnessValues{}}
}

// With 设置任意见证值
func (b *WitnessBuilder) With(name WitnessName, v Value) *WitnessBuilder {
	b.values[name] = v
	return b
}

// WithSignature 设置 64 字节签名见证
func (b *WitnessBuilder) WithSignature(name WitnessName, sig [64]byte) *WitnessBuilder {
	return b.With(name, Signature(sig))
}

// WithPubkey 设置 x-only 公钥见证
func (b *WitnessBuilder) WithPubkey(name WitnessName, key [32]byte) *WitnessBuilder {
	return b.With(name, Pubkey(key))
}

// Build 返回收集到的见证值副本
func (b *WitnessBuilder) Build() WitnessValues {
	return b.values.Clone()
}
