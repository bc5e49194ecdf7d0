package elements

import (
	"errors"
	"fmt"
)

// 标准脚本用到的操作码
const (
	OP_0           = 0x00
	OP_DATA_20     = 0x14
	OP_DATA_32     = 0x20
	OP_PUSHDATA1   = 0x4c
	OP_1           = 0x51
	OP_16          = 0x60
	OP_RETURN      = 0x6a
	OP_DUP         = 0x76
	OP_EQUAL       = 0x87
	OP_EQUALVERIFY = 0x88
	OP_HASH160     = 0xa9
	OP_CHECKSIG    = 0xac
)

// MaxDataCarrierSize 是 OP_RETURN 输出允许携带的最大字节数
const MaxDataCarrierSize = 80

// ScriptClass 是标准脚本类型的枚举
type ScriptClass byte

const (
	NonStandardTy         ScriptClass = iota // 没有任何公认的形式
	FeeTy                                    // 空脚本，手续费输出
	PubKeyHashTy                             // 支付公钥哈希
	ScriptHashTy                             // 支付脚本哈希
	WitnessV0PubKeyHashTy                    // 支付见证公钥哈希
	WitnessV0ScriptHashTy                    // 支付见证脚本哈希
	WitnessV1TaprootTy                       // taproot 输出
	WitnessUnknownTy                         // 未知版本的见证程序
	NullDataTy                               // 只有空数据
)

var scriptClassToName = []string{
	NonStandardTy:         "nonstandard",
	FeeTy:                 "fee",
	PubKeyHashTy:          "pubkeyhash",
	ScriptHashTy:          "scripthash",
	WitnessV0PubKeyHashTy: "witness_v0_keyhash",
	WitnessV0ScriptHashTy: "witness_v0_scripthash",
	WitnessV1TaprootTy:    "witness_v1_taproot",
	WitnessUnknownTy:      "witness_unknown",
	NullDataTy:            "nulldata",
}

// String 返回脚本类型名称
func (t ScriptClass) String() string {
	if int(t) >= len(scriptClassToName) {
		return "Invalid"
	}
	return scriptClassToName[t]
}

// ExtractWitnessProgram 从见证输出脚本中取出版本和程序
func ExtractWitnessProgram(script []byte) (int, []byte, bool) {
	// 见证程序脚本形如：<OP_0 或 OP_1..OP_16> <2-40 字节的直接推送>
	if len(script) < 4 || len(script) > 42 {
		return 0, nil, false
	}
	if script[0] != OP_0 && (script[0] < OP_1 || script[0] > OP_16) {
		return 0, nil, false
	}
	if int(script[1])+2 != len(script) {
		return 0, nil, false
	}
	version := 0
	if script[0] != OP_0 {
		version = int(script[0] - OP_1 + 1)
	}
	return version, script[2:], true
}

func extractPubKeyHash(script []byte) []byte {
	// OP_DUP OP_HASH160 <20 字节哈希> OP_EQUALVERIFY OP_CHECKSIG
	if len(script) == 25 && script[0] == OP_DUP && script[1] == OP_HASH160 &&
		script[2] == OP_DATA_20 && script[23] == OP_EQUALVERIFY && script[24] == OP_CHECKSIG {
		return script[3:23]
	}
	return nil
}

func extractScriptHash(script []byte) []byte {
	// OP_HASH160 <20 字节哈希> OP_EQUAL
	if len(script) == 23 && script[0] == OP_HASH160 && script[1] == OP_DATA_20 && script[22] == OP_EQUAL {
		return script[2:22]
	}
	return nil
}

func isNullDataScript(script []byte) bool {
	if len(script) == 0 || script[0] != OP_RETURN {
		return false
	}
	rest := script[1:]
	switch {
	case len(rest) == 0:
		return true
	case rest[0] <= 75:
		return int(rest[0])+1 == len(rest) && len(rest)-1 <= MaxDataCarrierSize
	case rest[0] == OP_PUSHDATA1 && len(rest) >= 2:
		return int(rest[1])+2 == len(rest) && len(rest)-2 <= MaxDataCarrierSize
	}
	return false
}

// GetScriptClass 返回脚本的标准类型
func GetScriptClass(script []byte) ScriptClass {
	switch {
	case len(script) == 0:
		return FeeTy
	case extractPubKeyHash(script) != nil:
		return PubKeyHashTy
	case extractScriptHash(script) != nil:
		return ScriptHashTy
	case isNullDataScript(script):
		return NullDataTy
	}
	version, program, ok := ExtractWitnessProgram(script)
	switch {
	case !ok:
		return NonStandardTy
	case version == 0 && len(program) == 20:
		return WitnessV0PubKeyHashTy
	case version == 0 && len(program) == 32:
		return WitnessV0ScriptHashTy
	case version == 1 && len(program) == 32:
		return WitnessV1TaprootTy
	case version == 0:
		return NonStandardTy
	}
	return WitnessUnknownTy
}

// IsPayToTaproot 判断是否为 segwit v1 32 字节输出
func IsPayToTaproot(script []byte) bool {
	return GetScriptClass(script) == WitnessV1TaprootTy
}

// PayToPubKeyHashScript 返回 P2PKH 输出脚本
func PayToPubKeyHashScript(hash []byte) ([]byte, error) {
	if len(hash) != 20 {
		return nil, fmt.Errorf("pubkey hash must be 20 bytes, got %d", len(hash))
	}
	script := []byte{OP_DUP, OP_HASH160, OP_DATA_20}
	script = append(script, hash...)
	return append(script, OP_EQUALVERIFY, OP_CHECKSIG), nil
}

// PayToScriptHashScript 返回 P2SH 输出脚本
func PayToScriptHashScript(hash []byte) ([]byte, error) {
	if len(hash) != 20 {
		return nil, fmt.Errorf("script hash must be 20 bytes, got %d", len(hash))
	}
	script := []byte{OP_HASH160, OP_DATA_20}
	script = append(script, hash...)
	return append(script, OP_EQUAL), nil
}

// PayToWitnessScript 返回给定版本见证程序的输出脚本
func PayToWitnessScript(version byte, program []byte) ([]byte, error) {
	if err := checkWitnessProgram(version, program); err != nil {
		return nil, err
	}
	op := byte(OP_0)
	if version > 0 {
		op = OP_1 + version - 1
	}
	script := []byte{op, byte(len(program))}
	return append(script, program...), nil
}

// NullDataScript 返回携带 data 的 OP_RETURN 脚本
func NullDataScript(data []byte) ([]byte, error) {
	if len(data) > MaxDataCarrierSize {
		return nil, fmt.Errorf("data size %d is larger than max allowed size %d", len(data), MaxDataCarrierSize)
	}
	script := []byte{OP_RETURN}
	switch {
	case len(data) == 0:
	case len(data) <= 75:
		script = append(script, byte(len(data)))
	default:
		script = append(script, OP_PUSHDATA1, byte(len(data)))
	}
	return append(script, data...), nil
}

var errWitnessProgram = errors.New("invalid witness program")

func checkWitnessProgram(version byte, program []byte) error {
	switch {
	case version > 16:
		return fmt.Errorf("%w: version %d", errWitnessProgram, version)
	case len(program) < 2 || len(program) > 40:
		return fmt.Errorf("%w: length %d", errWitnessProgram, len(program))
	case version == 0 && len(program) != 20 && len(program) != 32:
		return fmt.Errorf("%w: v0 length %d", errWitnessProgram, len(program))
	}
	return nil
}
