package simplicity

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUIntWidthCheck(t *testing.T) {
	tests := []struct {
		name  string
		bits  int
		n     *big.Int
		valid bool
	}{
		{"u8 max", 8, big.NewInt(255), true},
		{"u8 overflow", 8, big.NewInt(256), false},
		{"u1 one", 1, big.NewInt(1), true},
		{"u1 two", 1, big.NewInt(2), false},
		{"u4 fifteen", 4, big.NewInt(15), true},
		{"negative", 32, big.NewInt(-1), false},
		{"u256 wide", 256, new(big.Int).Lsh(big.NewInt(1), 255), true},
		{"u256 overflow", 256, new(big.Int).Lsh(big.NewInt(1), 256), false},
		{"bad width", 7, big.NewInt(1), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, err := UInt(test.bits, test.n)
			if !test.valid {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrTypeMismatch))
				var tm *TypeMismatchError
				require.True(t, errors.As(err, &tm))
				return
			}
			require.NoError(t, err)
			require.Equal(t, 0, v.BigInt().Cmp(test.n))
			require.Equal(t, test.bits, v.Type().Bits())
		})
	}
}

func TestCheckType(t *testing.T) {
	v := U32(7)
	require.NoError(t, v.CheckType(U32Type))

	err := v.CheckType(U64Type)
	var tm *TypeMismatchError
	require.True(t, errors.As(err, &tm))
	require.Equal(t, "u64", tm.Expected)
	require.Equal(t, "u32", tm.Actual)

	// 别名不影响类型检查
	var key [32]byte
	require.NoError(t, Pubkey(key).CheckType(U256Type))
	var sig [64]byte
	require.NoError(t, Signature(sig).CheckType(ArrayType(U8Type, 64)))
}

func TestArrayRejectsMixedElements(t *testing.T) {
	_, err := Array(U8Type, U8(1), U16(2))
	require.ErrorIs(t, err, ErrTypeMismatch)

	v, err := Array(U8Type, U8(1), U8(2))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, v.Bytes())
}

func TestValueString(t *testing.T) {
	var key [32]byte
	key[31] = 0x01

	tests := []struct {
		v    Value
		want string
	}{
		{Unit(), "()"},
		{Bool(true), "true"},
		{U8(42), "42"},
		{U64(100_000_000), "100000000"},
		{U256(key), "0x0000000000000000000000000000000000000000000000000000000000000001"},
		{ByteArray([]byte{0xde, 0xad}), "0xdead"},
		{Tuple(U8(1), Bool(false)), "(1, false)"},
		{Tuple(U8(1)), "(1,)"},
		{Left(U8(3), BoolType), "Left(3)"},
		{Right(U8Type, Bool(true)), "Right(true)"},
		{Some(U16(9)), "Some(9)"},
		{None(U16Type), "None"},
	}
	for _, test := range tests {
		require.Equal(t, test.want, test.v.String())
	}
}

func TestEncodeBits(t *testing.T) {
	tests := []struct {
		name string
		vals []Value
		want []byte
		bits int
	}{
		{"unit", []Value{Unit()}, nil, 0},
		{"bool", []Value{Bool(true)}, []byte{0x80}, 1},
		{"u8", []Value{U8(0xa5)}, []byte{0xa5}, 8},
		{"u16", []Value{U16(0x0102)}, []byte{0x01, 0x02}, 16},
		{"bool then u8", []Value{Bool(true), U8(0xff)}, []byte{0xff, 0x80}, 9},
		{"right u4", []Value{Right(UnitType, mustUInt(t, 4, 0xf))}, []byte{0xf8}, 5},
		{"none", []Value{None(U32Type)}, []byte{0x00}, 1},
		{"some u8", []Value{Some(U8(1))}, []byte{0x80, 0x80}, 9},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := new(BitWriter)
			for _, v := range test.vals {
				v.EncodeTo(w)
			}
			require.Equal(t, test.bits, w.Len())
			require.Equal(t, test.want, w.Bytes())
			require.Equal(t, test.want, EncodeBits(test.vals...))
		})
	}
}

func TestValueEqual(t *testing.T) {
	require.True(t, U8(1).Equal(U8(1)))
	require.False(t, U8(1).Equal(U8(2)))
	require.False(t, U8(1).Equal(U16(1)))
	require.False(t, None(U8Type).Equal(Some(U8(0))))
	require.True(t, Tuple(U8(1), Bool(true)).Equal(Tuple(U8(1), Bool(true))))
}

func mustUInt(t *testing.T, bits int, n int64) Value {
	t.Helper()
	v, err := UInt(bits, big.NewInt(n))
	require.NoError(t, err)
	return v
}
