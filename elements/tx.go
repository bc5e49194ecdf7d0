package elements

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// TxVersion 是新建交易的默认版本
	TxVersion = 2

	// MaxTxInSequenceNum 是输入的最大序列号
	MaxTxInSequenceNum uint32 = 0xffffffff

	// OutPoint 索引的高位标志
	OutPointIssuanceFlag uint32 = 1 << 31
	OutPointPeginFlag    uint32 = 1 << 30
	OutPointIndexMask    uint32 = 0x3fffffff

	// 单个可变长字段的上限，防止恶意长度耗尽内存
	maxFieldSize = 4_000_000
	maxItems     = 100_000
)

// ErrMalformedTx 表示交易字节无法解析
var ErrMalformedTx = errors.New("elements: malformed transaction")

// AssetIssuance 是输入上的资产发行数据
type AssetIssuance struct {
	BlindingNonce [32]byte
	AssetEntropy  [32]byte
	Amount        []byte // 可盲化金额，nil 表示空
	InflationKeys []byte // 可盲化金额，nil 表示空
}

// TxIn 是 Elements 交易输入
type TxIn struct {
	PreviousOutPoint wire.OutPoint
	IsPegin          bool
	SignatureScript  []byte
	Sequence         uint32
	Issuance         *AssetIssuance

	// 见证部分
	IssuanceAmountRangeProof []byte
	InflationKeysRangeProof  []byte
	Witness                  wire.TxWitness
	PeginWitness             wire.TxWitness
}

// NewTxIn 以最大序列号创建花费 prevOut 的输入
func NewTxIn(prevOut *wire.OutPoint) *TxIn {
	return &TxIn{PreviousOutPoint: *prevOut, Sequence: MaxTxInSequenceNum}
}

func (in *TxIn) hasWitness() bool {
	return len(in.IssuanceAmountRangeProof) > 0 || len(in.InflationKeysRangeProof) > 0 ||
		len(in.Witness) > 0 || len(in.PeginWitness) > 0
}

// TxOut 是 Elements 交易输出。Asset/Value/Nonce 保存完整的可盲化编码（含前缀）。
type TxOut struct {
	Asset    []byte
	Value    []byte
	Nonce    []byte
	PkScript []byte

	// 见证部分
	SurjectionProof []byte
	RangeProof      []byte
}

// NewTxOut 创建显式资产和金额的输出
func NewTxOut(asset AssetID, amount uint64, pkScript []byte) *TxOut {
	return &TxOut{
		Asset:    ExplicitAsset(asset),
		Value:    ExplicitValue(amount),
		PkScript: append([]byte(nil), pkScript...),
	}
}

// NewFeeTxOut 创建手续费输出：显式金额，空脚本
func NewFeeTxOut(asset AssetID, amount uint64) *TxOut {
	return NewTxOut(asset, amount, nil)
}

// ExplicitAmount 返回显式金额；盲化或空金额返回 false
func (o *TxOut) ExplicitAmount() (uint64, bool) {
	if len(o.Value) != 9 || o.Value[0] != prefixExplicit {
		return 0, false
	}
	return binary.BigEndian.Uint64(o.Value[1:]), true
}

// ExplicitAssetID 返回显式资产；盲化资产返回 false
func (o *TxOut) ExplicitAssetID() (AssetID, bool) {
	var id AssetID
	if len(o.Asset) != 33 || o.Asset[0] != prefixExplicit {
		return id, false
	}
	copy(id[:], o.Asset[1:])
	return id, true
}

// IsFee 判断是否为手续费输出
func (o *TxOut) IsFee() bool {
	_, explicit := o.ExplicitAmount()
	return explicit && len(o.PkScript) == 0
}

// IsConfidential 判断资产或金额是否被盲化
func (o *TxOut) IsConfidential() bool {
	_, a := o.ExplicitAssetID()
	_, v := o.ExplicitAmount()
	return !a || !v
}

func (o *TxOut) hasWitness() bool {
	return len(o.SurjectionProof) > 0 || len(o.RangeProof) > 0
}

// Validate 检查可盲化字段的编码
func (o *TxOut) Validate() error {
	if err := assetField.check(o.Asset); err != nil {
		return err
	}
	if err := valueField.check(o.Value); err != nil {
		return err
	}
	return nonceField.check(o.Nonce)
}

// Transaction 是 Elements 交易
type Transaction struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// NewTransaction 创建给定版本的空交易
func NewTransaction(version int32) *Transaction {
	return &Transaction{Version: version}
}

// AddTxIn 追加输入
func (tx *Transaction) AddTxIn(in *TxIn) { tx.TxIn = append(tx.TxIn, in) }

// AddTxOut 追加输出
func (tx *Transaction) AddTxOut(out *TxOut) { tx.TxOut = append(tx.TxOut, out) }

// HasWitness 判断是否存在任何见证数据
func (tx *Transaction) HasWitness() bool {
	for _, in := range tx.TxIn {
		if in.hasWitness() {
			return true
		}
	}
	for _, out := range tx.TxOut {
		if out.hasWitness() {
			return true
		}
	}
	return false
}

// Serialize 写出带见证的完整编码
func (tx *Transaction) Serialize(w io.Writer) error {
	return tx.encode(w, true)
}

// SerializeNoWitness 写出不含见证的编码，用于计算 txid
func (tx *Transaction) SerializeNoWitness(w io.Writer) error {
	return tx.encode(w, false)
}

// Bytes 返回带见证的完整编码
func (tx *Transaction) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hex 返回带见证编码的十六进制
func (tx *Transaction) Hex() (string, error) {
	b, err := tx.Bytes()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// TxHash 返回 txid：不含见证编码的双 SHA-256
func (tx *Transaction) TxHash() chainhash.Hash {
	var buf bytes.Buffer
	_ = tx.SerializeNoWitness(&buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// WitnessHash 返回 wtxid
func (tx *Transaction) WitnessHash() chainhash.Hash {
	var buf bytes.Buffer
	_ = tx.Serialize(&buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// Copy 返回深拷贝
func (tx *Transaction) Copy() *Transaction {
	b, err := tx.Bytes()
	if err != nil {
		return nil
	}
	out := new(Transaction)
	if err := out.Deserialize(bytes.NewReader(b)); err != nil {
		return nil
	}
	return out
}

func (tx *Transaction) encode(w io.Writer, withWitness bool) error {
	var scratch [4]byte
	putU32 := func(v uint32) error {
		binary.LittleEndian.PutUint32(scratch[:], v)
		_, err := w.Write(scratch[:])
		return err
	}

	if err := putU32(uint32(tx.Version)); err != nil {
		return err
	}
	flag := byte(0)
	if withWitness && tx.HasWitness() {
		flag = 1
	}
	if _, err := w.Write([]byte{flag}); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(tx.TxIn))); err != nil {
		return err
	}
	for _, in := range tx.TxIn {
		if _, err := w.Write(in.PreviousOutPoint.Hash[:]); err != nil {
			return err
		}
		index := in.PreviousOutPoint.Index
		if index != MaxTxInSequenceNum {
			index &= OutPointIndexMask
			if in.Issuance != nil {
				index |= OutPointIssuanceFlag
			}
			if in.IsPegin {
				index |= OutPointPeginFlag
			}
		}
		if err := putU32(index); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, 0, in.SignatureScript); err != nil {
			return err
		}
		if err := putU32(in.Sequence); err != nil {
			return err
		}
		if iss := in.Issuance; iss != nil {
			for _, b := range [][]byte{iss.BlindingNonce[:], iss.AssetEntropy[:], encoded(iss.Amount), encoded(iss.InflationKeys)} {
				if _, err := w.Write(b); err != nil {
					return err
				}
			}
		}
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(tx.TxOut))); err != nil {
		return err
	}
	for i, out := range tx.TxOut {
		if err := out.Validate(); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		for _, b := range [][]byte{encoded(out.Asset), encoded(out.Value), encoded(out.Nonce)} {
			if _, err := w.Write(b); err != nil {
				return err
			}
		}
		if err := wire.WriteVarBytes(w, 0, out.PkScript); err != nil {
			return err
		}
	}

	if err := putU32(tx.LockTime); err != nil {
		return err
	}
	if flag == 0 {
		return nil
	}

	for _, in := range tx.TxIn {
		if err := wire.WriteVarBytes(w, 0, in.IssuanceAmountRangeProof); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, 0, in.InflationKeysRangeProof); err != nil {
			return err
		}
		if err := writeStack(w, in.Witness); err != nil {
			return err
		}
		if err := writeStack(w, in.PeginWitness); err != nil {
			return err
		}
	}
	for _, out := range tx.TxOut {
		if err := wire.WriteVarBytes(w, 0, out.SurjectionProof); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, 0, out.RangeProof); err != nil {
			return err
		}
	}
	return nil
}

func writeStack(w io.Writer, stack wire.TxWitness) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(stack))); err != nil {
		return err
	}
	for _, item := range stack {
		if err := wire.WriteVarBytes(w, 0, item); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize 从 r 解析交易，接受带或不带见证的编码
func (tx *Transaction) Deserialize(r io.Reader) error {
	if err := tx.decode(r); err != nil {
		if errors.Is(err, ErrMalformedTx) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	return nil
}

// NewTransactionFromHex 解析十六进制交易
func NewTransactionFromHex(s string) (*Transaction, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	return NewTransactionFromBytes(raw)
}

// NewTransactionFromBytes 解析交易字节，拒绝尾随数据
func NewTransactionFromBytes(raw []byte) (*Transaction, error) {
	r := bytes.NewReader(raw)
	tx := new(Transaction)
	if err := tx.Deserialize(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTx, r.Len())
	}
	return tx, nil
}

func (tx *Transaction) decode(r io.Reader) error {
	var scratch [4]byte
	getU32 := func() (uint32, error) {
		if _, err := io.ReadFull(r, scratch[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(scratch[:]), nil
	}

	version, err := getU32()
	if err != nil {
		return err
	}
	tx.Version = int32(version)

	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return err
	}
	if flag[0] > 1 {
		return fmt.Errorf("%w: unknown flag %d", ErrMalformedTx, flag[0])
	}

	count, err := readCount(r)
	if err != nil {
		return err
	}
	tx.TxIn = make([]*TxIn, count)
	for i := range tx.TxIn {
		in := new(TxIn)
		if _, err := io.ReadFull(r, in.PreviousOutPoint.Hash[:]); err != nil {
			return err
		}
		index, err := getU32()
		if err != nil {
			return err
		}
		hasIssuance := false
		if index != MaxTxInSequenceNum {
			hasIssuance = index&OutPointIssuanceFlag != 0
			in.IsPegin = index&OutPointPeginFlag != 0
			index &= OutPointIndexMask
		}
		in.PreviousOutPoint.Index = index
		if in.SignatureScript, err = wire.ReadVarBytes(r, 0, maxFieldSize, "scriptSig"); err != nil {
			return err
		}
		if in.Sequence, err = getU32(); err != nil {
			return err
		}
		if hasIssuance {
			iss := new(AssetIssuance)
			if _, err := io.ReadFull(r, iss.BlindingNonce[:]); err != nil {
				return err
			}
			if _, err := io.ReadFull(r, iss.AssetEntropy[:]); err != nil {
				return err
			}
			if iss.Amount, err = readConfidential(r, valueField); err != nil {
				return err
			}
			if iss.InflationKeys, err = readConfidential(r, valueField); err != nil {
				return err
			}
			in.Issuance = iss
		}
		tx.TxIn[i] = in
	}

	if count, err = readCount(r); err != nil {
		return err
	}
	tx.TxOut = make([]*TxOut, count)
	for i := range tx.TxOut {
		out := new(TxOut)
		if out.Asset, err = readConfidential(r, assetField); err != nil {
			return err
		}
		if out.Value, err = readConfidential(r, valueField); err != nil {
			return err
		}
		if out.Nonce, err = readConfidential(r, nonceField); err != nil {
			return err
		}
		if out.PkScript, err = wire.ReadVarBytes(r, 0, maxFieldSize, "scriptPubKey"); err != nil {
			return err
		}
		tx.TxOut[i] = out
	}

	if tx.LockTime, err = getU32(); err != nil {
		return err
	}
	if flag[0] == 0 {
		return nil
	}

	for _, in := range tx.TxIn {
		if in.IssuanceAmountRangeProof, err = readOptionalBytes(r, "issuance rangeproof"); err != nil {
			return err
		}
		if in.InflationKeysRangeProof, err = readOptionalBytes(r, "inflation rangeproof"); err != nil {
			return err
		}
		if in.Witness, err = readStack(r); err != nil {
			return err
		}
		if in.PeginWitness, err = readStack(r); err != nil {
			return err
		}
	}
	for _, out := range tx.TxOut {
		if out.SurjectionProof, err = readOptionalBytes(r, "surjection proof"); err != nil {
			return err
		}
		if out.RangeProof, err = readOptionalBytes(r, "rangeproof"); err != nil {
			return err
		}
	}
	return nil
}

func readCount(r io.Reader) (int, error) {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return 0, err
	}
	if n > maxItems {
		return 0, fmt.Errorf("%w: count %d too large", ErrMalformedTx, n)
	}
	return int(n), nil
}

// readOptionalBytes 读取可变长字段，空字段返回 nil
func readOptionalBytes(r io.Reader, field string) ([]byte, error) {
	b, err := wire.ReadVarBytes(r, 0, maxFieldSize, field)
	if err != nil || len(b) == 0 {
		return nil, err
	}
	return b, nil
}

func readStack(r io.Reader) (wire.TxWitness, error) {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return nil, err
	}
	stack := make(wire.TxWitness, n)
	for i := range stack {
		if stack[i], err = wire.ReadVarBytes(r, 0, maxFieldSize, "witness item"); err != nil {
			return nil, err
		}
	}
	return stack, nil
}

// readConfidential 读取一个可盲化字段；空字段返回 nil
func readConfidential(r io.Reader, f confidentialField) ([]byte, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n, err := f.payloadLen(prefix[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	if n == 0 {
		return nil, nil
	}
	enc := make([]byte, 1+n)
	enc[0] = prefix[0]
	if _, err := io.ReadFull(r, enc[1:]); err != nil {
		return nil, err
	}
	return enc, nil
}
