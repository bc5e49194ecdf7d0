package simfchain

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/qinglongcn/simfchain/elements"
	"github.com/qinglongcn/simfchain/taproot"
)

// sighashEnv 是计算签名哈希所需的全部数据，计算过程不读取其它状态
type sighashEnv struct {
	tx           *elements.Transaction
	utxos        []Utxo
	scripts      [][]byte
	leaf         taproot.TapLeaf
	controlBlock *taproot.ControlBlock
	genesis      chainhash.Hash
	index        uint32
}

func putUint32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

// nullable 写出可盲化字段，空字段写一个 0x00
func nullable(b *bytes.Buffer, enc []byte) {
	if len(enc) == 0 {
		b.WriteByte(0x00)
		return
	}
	b.Write(enc)
}

func hashOf(b *bytes.Buffer) []byte {
	h := chainhash.HashH(b.Bytes())
	return h[:]
}

// hashAll 依次拼接若干 32 字节哈希后再取 SHA256
func hashAll(parts ...[]byte) []byte {
	var b bytes.Buffer
	for _, p := range parts {
		b.Write(p)
	}
	return hashOf(&b)
}

// 以下各哈希与 Elements 上 Simplicity 同名 jet 的定义逐字节一致：inputs_hash、outputs_hash、
// issuances_hash、output_surjection_proofs_hash、input_utxos_hash 和 tx_hash。
// 每个字段先单独累积为一个哈希，再把字段哈希拼接后取 SHA256。

// inputsHash = H(input_outpoints_hash || input_sequences_hash || input_annexes_hash)。
// 每个 outpoint 前有一个 pegin 标记字节，构造器只花费普通输出，记为 0x00；也不支持 annex。
func (e *sighashEnv) inputsHash() []byte {
	var outpoints, sequences, annexes bytes.Buffer
	for _, in := range e.tx.TxIn {
		outpoints.WriteByte(0x00)
		outpoints.Write(in.PreviousOutPoint.Hash[:])
		putUint32(&outpoints, in.PreviousOutPoint.Index)
		putUint32(&sequences, in.Sequence)
		annexes.WriteByte(0x00)
	}
	return hashAll(hashOf(&outpoints), hashOf(&sequences), hashOf(&annexes))
}

// outputsHash = H(output_amounts_hash || output_nonces_hash || output_scripts_hash || output_range_proofs_hash)，
// amounts 中每项是资产加金额
func (e *sighashEnv) outputsHash() []byte {
	var amounts, nonces, scripts, proofs bytes.Buffer
	for _, out := range e.tx.TxOut {
		nullable(&amounts, out.Asset)
		nullable(&amounts, out.Value)
		nullable(&nonces, out.Nonce)
		script := chainhash.HashH(out.PkScript)
		scripts.Write(script[:])
		proof := chainhash.HashH(out.RangeProof)
		proofs.Write(proof[:])
	}
	return hashAll(hashOf(&amounts), hashOf(&nonces), hashOf(&scripts), hashOf(&proofs))
}

// outputSurjectionProofsHash 是各输出满射证明哈希的拼接再取哈希
func (e *sighashEnv) outputSurjectionProofsHash() []byte {
	var proofs bytes.Buffer
	for _, out := range e.tx.TxOut {
		proof := chainhash.HashH(out.SurjectionProof)
		proofs.Write(proof[:])
	}
	return hashOf(&proofs)
}

// issuancesHash = H(issuance_asset_amounts_hash || issuance_token_amounts_hash ||
// issuance_range_proofs_hash || issuance_blinding_entropy_hash)。
// 构造器生成的输入没有发行：资产和代币各记空资产加空金额两个 0x00，熵记一个 0x00，范围证明记空串的哈希。
func (e *sighashEnv) issuancesHash() []byte {
	var assets, tokens, proofs, entropy bytes.Buffer
	for _, in := range e.tx.TxIn {
		assets.Write([]byte{0x00, 0x00})
		tokens.Write([]byte{0x00, 0x00})
		entropy.WriteByte(0x00)
		amountProof := chainhash.HashH(in.IssuanceAmountRangeProof)
		proofs.Write(amountProof[:])
		keysProof := chainhash.HashH(in.InflationKeysRangeProof)
		proofs.Write(keysProof[:])
	}
	return hashAll(hashOf(&assets), hashOf(&tokens), hashOf(&proofs), hashOf(&entropy))
}

// utxosHash = H(input_amounts_hash || input_scripts_hash)，对应被花费的输出
func (e *sighashEnv) utxosHash() []byte {
	var amounts, scripts bytes.Buffer
	for i, u := range e.utxos {
		amounts.Write(elements.ExplicitAsset(u.Asset))
		amounts.Write(elements.ExplicitValue(u.Amount))
		script := chainhash.HashH(e.scripts[i])
		scripts.Write(script[:])
	}
	return hashAll(hashOf(&amounts), hashOf(&scripts))
}

// txHash = H(version || lock_time || inputs || outputs || issuances || output_surjection_proofs || input_utxos)
func (e *sighashEnv) txHash() []byte {
	var b bytes.Buffer
	putUint32(&b, uint32(e.tx.Version))
	putUint32(&b, e.tx.LockTime)
	b.Write(e.inputsHash())
	b.Write(e.outputsHash())
	b.Write(e.issuancesHash())
	b.Write(e.outputSurjectionProofsHash())
	b.Write(e.utxosHash())
	return hashOf(&b)
}

// tapEnvHash 承诺叶子哈希（其中包含 CMR）、包含证明和内部公钥
func (e *sighashEnv) tapEnvHash() []byte {
	var b bytes.Buffer
	leaf := e.leaf.TapHash()
	b.Write(leaf[:])
	path := chainhash.HashH(e.controlBlock.InclusionProof)
	b.Write(path[:])
	b.Write(schnorr.SerializePubKey(e.controlBlock.InternalKey))
	return hashOf(&b)
}

// sighashAll 返回 SHA256(genesis || genesis || txHash || tapEnvHash || index)
func (e *sighashEnv) sighashAll() [32]byte {
	var b bytes.Buffer
	b.Write(e.genesis[:])
	b.Write(e.genesis[:])
	b.Write(e.txHash())
	b.Write(e.tapEnvHash())
	putUint32(&b, e.index)
	return chainhash.HashH(b.Bytes())
}

// unsignedTx 构造只有一个输入、没有见证的交易
func unsignedTx(utxo Utxo, sequence, lockTime uint32, outputs []*elements.TxOut) *elements.Transaction {
	tx := elements.NewTransaction(elements.TxVersion)
	in := elements.NewTxIn(&wire.OutPoint{Hash: utxo.OutPoint.Hash, Index: utxo.OutPoint.Index})
	in.Sequence = sequence
	tx.AddTxIn(in)
	for _, out := range outputs {
		cp := *out
		tx.AddTxOut(&cp)
	}
	tx.LockTime = lockTime
	return tx
}
