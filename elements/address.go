package elements

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

var (
	// ErrInvalidParams 表示地址参数缺失或不完整
	ErrInvalidParams = errors.New("elements: invalid address params")

	// ErrUnknownAddressFormat 表示字符串不是可识别的地址
	ErrUnknownAddressFormat = errors.New("elements: unknown address format")

	// ErrWrongNetwork 表示地址属于另一个网络
	ErrWrongNetwork = errors.New("elements: address is for a different network")

	// ErrConfidentialAddress 表示机密（blech32 或盲化 base58）地址，当前不支持
	ErrConfidentialAddress = errors.New("elements: confidential addresses are not supported")
)

// AddressParams 描述一个网络的地址编码参数
type AddressParams struct {
	Name          string
	Bech32HRP     string
	Blech32HRP    string
	P2PKHPrefix   byte
	P2SHPrefix    byte
	BlindedPrefix byte
}

// 预置网络
var (
	RegtestParams = AddressParams{
		Name:          "elementsregtest",
		Bech32HRP:     "ert",
		Blech32HRP:    "el",
		P2PKHPrefix:   235,
		P2SHPrefix:    75,
		BlindedPrefix: 4,
	}

	TestnetParams = AddressParams{
		Name:          "liquidtestnet",
		Bech32HRP:     "tex",
		Blech32HRP:    "tlq",
		P2PKHPrefix:   36,
		P2SHPrefix:    19,
		BlindedPrefix: 23,
	}

	LiquidParams = AddressParams{
		Name:          "liquidv1",
		Bech32HRP:     "ex",
		Blech32HRP:    "lq",
		P2PKHPrefix:   57,
		P2SHPrefix:    39,
		BlindedPrefix: 12,
	}
)

// Validate 检查参数是否可用于编码
func (p *AddressParams) Validate() error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: nil", ErrInvalidParams)
	case p.Bech32HRP == "":
		return fmt.Errorf("%w: empty bech32 hrp", ErrInvalidParams)
	case strings.ToLower(p.Bech32HRP) != p.Bech32HRP:
		return fmt.Errorf("%w: hrp %q must be lower case", ErrInvalidParams, p.Bech32HRP)
	}
	for _, c := range p.Bech32HRP {
		if c < 33 || c > 126 {
			return fmt.Errorf("%w: hrp %q has invalid character", ErrInvalidParams, p.Bech32HRP)
		}
	}
	return nil
}

type addressKind uint8

const (
	kindWitness addressKind = iota
	kindPubKeyHash
	kindScriptHash
)

// Address 是非机密的 Elements 地址：segwit 见证程序或 base58 的 P2PKH/P2SH
type Address struct {
	params  AddressParams
	kind    addressKind
	version byte
	program []byte
}

// NewWitnessAddress 构造见证地址
func NewWitnessAddress(version byte, program []byte, params *AddressParams) (*Address, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := checkWitnessProgram(version, program); err != nil {
		return nil, err
	}
	return &Address{
		params:  *params,
		kind:    kindWitness,
		version: version,
		program: append([]byte(nil), program...),
	}, nil
}

// NewTaprootAddress 由 32 字节 x-only 输出公钥构造 segwit v1 地址
func NewTaprootAddress(outputKey [32]byte, params *AddressParams) (*Address, error) {
	return NewWitnessAddress(1, outputKey[:], params)
}

// Params 返回地址所属网络参数
func (a *Address) Params() *AddressParams { return &a.params }

// WitnessVersion 返回见证版本；非见证地址返回 -1
func (a *Address) WitnessVersion() int {
	if a.kind != kindWitness {
		return -1
	}
	return int(a.version)
}

// Program 返回见证程序或 20 字节哈希
func (a *Address) Program() []byte { return append([]byte(nil), a.program...) }

// EncodeAddress 返回地址字符串。v0 使用 bech32，v1 及以上使用 bech32m。
func (a *Address) EncodeAddress() (string, error) {
	switch a.kind {
	case kindPubKeyHash:
		return base58.CheckEncode(a.program, a.params.P2PKHPrefix), nil
	case kindScriptHash:
		return base58.CheckEncode(a.program, a.params.P2SHPrefix), nil
	}

	conv, err := bech32.ConvertBits(a.program, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := append([]byte{a.version}, conv...)
	if a.version == 0 {
		return bech32.Encode(a.params.Bech32HRP, data)
	}
	return bech32.EncodeM(a.params.Bech32HRP, data)
}

// String 实现 fmt.Stringer，编码失败时返回空串
func (a *Address) String() string {
	s, err := a.EncodeAddress()
	if err != nil {
		return ""
	}
	return s
}

// ScriptPubKey 返回支付到该地址的输出脚本
func (a *Address) ScriptPubKey() []byte {
	var script []byte
	switch a.kind {
	case kindPubKeyHash:
		script, _ = PayToPubKeyHashScript(a.program)
	case kindScriptHash:
		script, _ = PayToScriptHashScript(a.program)
	default:
		script, _ = PayToWitnessScript(a.version, a.program)
	}
	return script
}

// DecodeAddress 按网络参数解析非机密地址
func DecodeAddress(s string, params *AddressParams) (*Address, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(s)
	if params.Blech32HRP != "" && strings.HasPrefix(lower, params.Blech32HRP+"1") {
		return nil, ErrConfidentialAddress
	}
	if hrp, data, encoding, err := bech32.DecodeGeneric(s); err == nil {
		if hrp != params.Bech32HRP {
			return nil, fmt.Errorf("%w: hrp %q", ErrWrongNetwork, hrp)
		}
		return decodeSegwit(data, encoding, params)
	} else if strings.HasPrefix(lower, params.Bech32HRP+"1") {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAddressFormat, err)
	}
	return decodeBase58(s, params)
}

func decodeSegwit(data []byte, encoding bech32.Version, params *AddressParams) (*Address, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty data", ErrUnknownAddressFormat)
	}

	version := data[0]
	switch {
	case version == 0 && encoding != bech32.Version0:
		return nil, fmt.Errorf("%w: v0 address must use bech32", ErrUnknownAddressFormat)
	case version > 0 && encoding != bech32.VersionM:
		return nil, fmt.Errorf("%w: v%d address must use bech32m", ErrUnknownAddressFormat, version)
	}

	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAddressFormat, err)
	}
	return NewWitnessAddress(version, program, params)
}

func decodeBase58(s string, params *AddressParams) (*Address, error) {
	payload, prefix, err := base58.CheckDecode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAddressFormat, err)
	}
	var kind addressKind
	switch prefix {
	case params.P2PKHPrefix:
		kind = kindPubKeyHash
	case params.P2SHPrefix:
		kind = kindScriptHash
	case params.BlindedPrefix:
		return nil, ErrConfidentialAddress
	default:
		return nil, fmt.Errorf("%w: prefix %d", ErrWrongNetwork, prefix)
	}
	if len(payload) != 20 {
		return nil, fmt.Errorf("%w: payload is %d bytes", ErrUnknownAddressFormat, len(payload))
	}
	return &Address{params: *params, kind: kind, program: payload}, nil
}

// NewPubKeyHashAddress 构造 P2PKH 地址
func NewPubKeyHashAddress(hash []byte, params *AddressParams) (*Address, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(hash) != 20 {
		return nil, fmt.Errorf("%w: pubkey hash is %d bytes", ErrUnknownAddressFormat, len(hash))
	}
	return &Address{params: *params, kind: kindPubKeyHash, program: append([]byte(nil), hash...)}, nil
}

// NewScriptHashAddress 构造 P2SH 地址
func NewScriptHashAddress(hash []byte, params *AddressParams) (*Address, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(hash) != 20 {
		return nil, fmt.Errorf("%w: script hash is %d bytes", ErrUnknownAddressFormat, len(hash))
	}
	return &Address{params: *params, kind: kindScriptHash, program: append([]byte(nil), hash...)}, nil
}

// ParamsByName 按名称返回预置网络参数
func ParamsByName(name string) (*AddressParams, error) {
	for _, p := range []*AddressParams{&RegtestParams, &TestnetParams, &LiquidParams} {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown network %q", ErrInvalidParams, name)
}
