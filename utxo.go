package simfchain

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/qinglongcn/simfchain/elements"
)

// MaxMoney 是单个资产允许的最大金额（21e6 * 1e8）
const MaxMoney uint64 = 21_000_000 * 100_000_000

// Utxo 是调用方提供的、支付给合约地址的未花费输出
type Utxo struct {
	OutPoint wire.OutPoint
	Amount   uint64
	Asset    elements.AssetID

	// ScriptPubKey 为空时按合约的输出脚本计算
	ScriptPubKey []byte
}

// NewUtxo 构造 Utxo
func NewUtxo(txid chainhash.Hash, vout uint32, amount uint64, asset elements.AssetID) Utxo {
	return Utxo{
		OutPoint: *wire.NewOutPoint(&txid, vout),
		Amount:   amount,
		Asset:    asset,
	}
}

// UtxoFromTransaction 取交易的第 vout 个输出。资产和金额必须是显式的。
func UtxoFromTransaction(tx *elements.Transaction, vout uint32) (Utxo, error) {
	if tx == nil || int(vout) >= len(tx.TxOut) {
		return Utxo{}, &BuilderError{Kind: InvalidUtxo, Msg: fmt.Sprintf("output %d does not exist", vout)}
	}
	out := tx.TxOut[vout]
	amount, ok := out.ExplicitAmount()
	if !ok {
		return Utxo{}, &BuilderError{Kind: InvalidUtxo, Msg: "confidential amount"}
	}
	asset, ok := out.ExplicitAssetID()
	if !ok {
		return Utxo{}, &BuilderError{Kind: InvalidUtxo, Msg: "confidential asset"}
	}
	u := NewUtxo(tx.TxHash(), vout, amount, asset)
	u.ScriptPubKey = append([]byte(nil), out.PkScript...)
	return u, nil
}

// FindContractOutput 返回交易中第一个支付给合约的输出
func FindContractOutput(tx *elements.Transaction, cc *CompiledContract) (Utxo, error) {
	script := cc.ScriptPubKey()
	for i, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, script) {
			return UtxoFromTransaction(tx, uint32(i))
		}
	}
	return Utxo{}, &BuilderError{Kind: InvalidUtxo, Msg: fmt.Sprintf("transaction %s does not pay the contract", tx.TxHash())}
}

// validate 检查 Utxo 能否由 cc 花费
func (u Utxo) validate(cc *CompiledContract) error {
	if u.Amount > MaxMoney {
		return &BuilderError{Kind: InvalidUtxo, Msg: fmt.Sprintf("amount %d exceeds max money", u.Amount)}
	}
	if len(u.ScriptPubKey) > 0 && !bytes.Equal(u.ScriptPubKey, cc.ScriptPubKey()) {
		return &BuilderError{Kind: InvalidUtxo, Msg: "script pubkey does not belong to the contract"}
	}
	return nil
}

func (u Utxo) script(cc *CompiledContract) []byte {
	if len(u.ScriptPubKey) > 0 {
		return u.ScriptPubKey
	}
	return cc.ScriptPubKey()
}
