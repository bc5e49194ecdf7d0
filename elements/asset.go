// Package elements 实现 Elements/Liquid 交易的最小模型：显式资产与金额、
// 交易序列化与 txid、标准脚本分类以及地址编码。
package elements

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// AssetID 是 32 字节资产标识。与 txid 一样按字节反序显示。
type AssetID [32]byte

// NewAssetIDFromStr 解析显示形式（反序十六进制）的资产标识
func NewAssetIDFromStr(s string) (AssetID, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return AssetID{}, fmt.Errorf("invalid asset id %q: %w", s, err)
	}
	return AssetID(*h), nil
}

func mustAsset(s string) AssetID {
	a, err := NewAssetIDFromStr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String 返回反序十六进制
func (a AssetID) String() string {
	return chainhash.Hash(a).String()
}

// 各网络的政策资产（L-BTC）
var (
	LiquidBitcoinAsset  = mustAsset("6f0279e9ed041c3d710a9f57d0c02928416460c4b722ae3457a11eec381c526d")
	TestnetBitcoinAsset = mustAsset("144c654344aa716d6f3abcc1ca90e5641e4e2a7f633bc09fe3baf64585819a49")
)

// 可盲化字段的前缀字节
const (
	prefixNull     = 0x00
	prefixExplicit = 0x01
)

// ExplicitAsset 返回显式资产的编码：0x01 || asset
func ExplicitAsset(id AssetID) []byte {
	return append([]byte{prefixExplicit}, id[:]...)
}

// ExplicitValue 返回显式金额的编码：0x01 || 8 字节大端金额
func ExplicitValue(amount uint64) []byte {
	b := make([]byte, 9)
	b[0] = prefixExplicit
	binary.BigEndian.PutUint64(b[1:], amount)
	return b
}

// confidentialField 描述一种可盲化字段：显式载荷长度和承诺前缀
type confidentialField struct {
	name        string
	explicitLen int
	commitments [2]byte
}

var (
	assetField = confidentialField{name: "asset", explicitLen: 32, commitments: [2]byte{0x0a, 0x0b}}
	valueField = confidentialField{name: "value", explicitLen: 8, commitments: [2]byte{0x08, 0x09}}
	nonceField = confidentialField{name: "nonce", explicitLen: 32, commitments: [2]byte{0x02, 0x03}}
)

// payloadLen 返回前缀之后的字节数；空字段为 0
func (f confidentialField) payloadLen(prefix byte) (int, error) {
	switch prefix {
	case prefixNull:
		return 0, nil
	case prefixExplicit:
		return f.explicitLen, nil
	case f.commitments[0], f.commitments[1]:
		return 32, nil
	}
	return 0, fmt.Errorf("invalid %s prefix 0x%02x", f.name, prefix)
}

// check 校验完整编码；nil 表示空字段
func (f confidentialField) check(enc []byte) error {
	if len(enc) == 0 {
		return nil
	}
	n, err := f.payloadLen(enc[0])
	if err != nil {
		return err
	}
	if len(enc) != 1+n {
		return fmt.Errorf("invalid %s encoding length %d", f.name, len(enc))
	}
	return nil
}

// encoded 返回序列化时写出的字节；空字段写单个 0x00
func encoded(enc []byte) []byte {
	if len(enc) == 0 {
		return []byte{prefixNull}
	}
	return enc
}
