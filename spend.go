package simfchain

import (
	"fmt"
	"math/bits"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/qinglongcn/simfchain/elements"
	"github.com/qinglongcn/simfchain/simplicity"
	"github.com/sirupsen/logrus"
)

// BuilderState 是花费构造器的状态
type BuilderState uint8

const (
	// Building 表示仍在收集输出，或尚未设置创世哈希
	Building BuilderState = iota
	// SighashReady 表示已设置创世哈希且至少有一个输出
	SighashReady
	// Finalized 表示交易已生成，构造器不能再使用
	Finalized
)

func (s BuilderState) String() string {
	switch s {
	case Building:
		return "building"
	case SighashReady:
		return "sighash-ready"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// SpendBuilder 构造花费单个合约输出的交易。它不是并发安全的，只能由一个调用方持有。
//
// 链式设置方法不返回错误：第一个错误会被记住，并由 SighashAll 或 Finalize 返回。
type SpendBuilder struct {
	contract *CompiledContract
	utxo     Utxo
	outputs  []*elements.TxOut
	genesis  *chainhash.Hash
	lockTime uint32
	sequence uint32

	finalized bool
	err       error
}

// NewSpendBuilder 创建构造器：版本 2，lock time 为 0，序列号为最大值，没有输出和创世哈希
func NewSpendBuilder(cc *CompiledContract, utxo Utxo) *SpendBuilder {
	return &SpendBuilder{
		contract: cc,
		utxo:     utxo,
		sequence: elements.MaxTxInSequenceNum,
	}
}

// mutable 报告构造器能否修改，不能时记住错误
func (b *SpendBuilder) mutable() bool {
	if b.finalized {
		b.err = ErrBuilderFinalized
		return false
	}
	return b.err == nil
}

func (b *SpendBuilder) fail(err error) *SpendBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Err 返回链式调用中记住的第一个错误
func (b *SpendBuilder) Err() error { return b.err }

// GenesisHash 设置创世区块哈希，可以多次设置，以最后一次为准
func (b *SpendBuilder) GenesisHash(hash chainhash.Hash) *SpendBuilder {
	if b.mutable() {
		b.genesis = &hash
	}
	return b
}

// LockTime 设置交易的 lock time
func (b *SpendBuilder) LockTime(lockTime uint32) *SpendBuilder {
	if b.mutable() {
		b.lockTime = lockTime
	}
	return b
}

// Sequence 设置输入的序列号
func (b *SpendBuilder) Sequence(sequence uint32) *SpendBuilder {
	if b.mutable() {
		b.sequence = sequence
	}
	return b
}

// AddOutput 追加任意显式输出，输出顺序即交易中的顺序
func (b *SpendBuilder) AddOutput(out *elements.TxOut) *SpendBuilder {
	if !b.mutable() {
		return b
	}
	if out == nil {
		return b.fail(&BuilderError{Kind: InvalidOutput, Msg: "nil output"})
	}
	if err := out.Validate(); err != nil {
		return b.fail(&BuilderError{Kind: InvalidOutput, Err: err})
	}
	if out.IsConfidential() {
		return b.fail(&BuilderError{Kind: InvalidOutput, Msg: "confidential outputs are not supported"})
	}
	cp := *out
	cp.PkScript = append([]byte(nil), out.PkScript...)
	b.outputs = append(b.outputs, &cp)
	return b
}

// AddOutputSimple 追加支付到 script 的显式输出
func (b *SpendBuilder) AddOutputSimple(script []byte, amount uint64, asset elements.AssetID) *SpendBuilder {
	if !b.mutable() {
		return b
	}
	if len(script) == 0 {
		return b.fail(&BuilderError{Kind: InvalidOutput, Msg: "empty script, use AddFee for fee outputs"})
	}
	return b.AddOutput(elements.NewTxOut(asset, amount, script))
}

// AddOutputToAddress 解析地址后追加输出，地址必须属于合约所在网络
func (b *SpendBuilder) AddOutputToAddress(addr string, params *elements.AddressParams, amount uint64, asset elements.AssetID) *SpendBuilder {
	if !b.mutable() {
		return b
	}
	a, err := elements.DecodeAddress(addr, params)
	if err != nil {
		return b.fail(&BuilderError{Kind: InvalidOutput, Msg: addr, Err: &AddressError{Err: err}})
	}
	return b.AddOutputSimple(a.ScriptPubKey(), amount, asset)
}

// AddFee 追加手续费输出，它同样参与金额平衡
func (b *SpendBuilder) AddFee(amount uint64, asset elements.AssetID) *SpendBuilder {
	if !b.mutable() {
		return b
	}
	return b.AddOutput(elements.NewFeeTxOut(asset, amount))
}

// State 返回当前状态
func (b *SpendBuilder) State() BuilderState {
	switch {
	case b.finalized:
		return Finalized
	case b.genesis != nil && len(b.outputs) > 0:
		return SighashReady
	default:
		return Building
	}
}

// Outputs 返回已添加的输出数量
func (b *SpendBuilder) Outputs() int { return len(b.outputs) }

func (b *SpendBuilder) check() error {
	if b.finalized {
		return ErrBuilderFinalized
	}
	if b.err != nil {
		return b.err
	}
	if b.contract == nil {
		return &BuilderError{Kind: Incomplete, Msg: "no contract"}
	}
	return b.utxo.validate(b.contract)
}

// SighashAll 计算 SIGHASH_ALL 摘要。它不改变构造器，可以重复调用。
func (b *SpendBuilder) SighashAll() ([32]byte, error) {
	if err := b.check(); err != nil {
		return [32]byte{}, err
	}
	switch {
	case b.genesis == nil:
		return [32]byte{}, &BuilderError{Kind: Incomplete, Msg: "genesis hash not set"}
	case len(b.outputs) == 0:
		return [32]byte{}, &BuilderError{Kind: Incomplete, Msg: "no outputs"}
	}
	return b.env(b.unsigned()).sighashAll(), nil
}

func (b *SpendBuilder) unsigned() *elements.Transaction {
	return unsignedTx(b.utxo, b.sequence, b.lockTime, b.outputs)
}

func (b *SpendBuilder) env(tx *elements.Transaction) *sighashEnv {
	return &sighashEnv{
		tx:           tx,
		utxos:        []Utxo{b.utxo},
		scripts:      [][]byte{b.utxo.script(b.contract)},
		leaf:         b.contract.leaf,
		controlBlock: b.contract.controlBlock,
		genesis:      *b.genesis,
		index:        0,
	}
}

// checkBalance 按资产比较输入金额与输出（含手续费）之和
func (b *SpendBuilder) checkBalance() error {
	totals := make(map[elements.AssetID]uint64)
	for i, out := range b.outputs {
		asset, ok := out.ExplicitAssetID()
		if !ok {
			return &BuilderError{Kind: InvalidOutput, Msg: fmt.Sprintf("output %d has a confidential asset", i)}
		}
		amount, ok := out.ExplicitAmount()
		if !ok {
			return &BuilderError{Kind: InvalidOutput, Msg: fmt.Sprintf("output %d has a confidential amount", i)}
		}
		sum, carry := bits.Add64(totals[asset], amount, 0)
		if carry != 0 || sum > MaxMoney {
			return &BuilderError{Kind: ValueBalance, Msg: fmt.Sprintf("output %d overflows asset %s", i, asset)}
		}
		totals[asset] = sum
	}

	if got := totals[b.utxo.Asset]; got != b.utxo.Amount {
		return &BuilderError{
			Kind: ValueBalance,
			Msg:  fmt.Sprintf("input %d != outputs plus fee %d for asset %s", b.utxo.Amount, got, b.utxo.Asset),
		}
	}
	for asset, total := range totals {
		if asset != b.utxo.Asset && total != 0 {
			return &BuilderError{Kind: ValueBalance, Msg: fmt.Sprintf("asset %s has no input", asset)}
		}
	}
	return nil
}

// Finalize 校验金额平衡和见证，返回带完整见证的交易。失败时构造器保持不变。
func (b *SpendBuilder) Finalize(witness simplicity.WitnessValues) (*elements.Transaction, error) {
	if err := b.precheck(); err != nil {
		return nil, err
	}
	satisfied, err := b.contract.Satisfy(witness)
	if err != nil {
		return nil, err
	}
	return b.assemble(satisfied)
}

// FinalizeWithSatisfied 使用已经满足的程序完成交易
func (b *SpendBuilder) FinalizeWithSatisfied(satisfied *SatisfiedContract) (*elements.Transaction, error) {
	if err := b.precheck(); err != nil {
		return nil, err
	}
	if satisfied == nil {
		return nil, &BuilderError{Kind: MissingWitness, Msg: "nil satisfied contract"}
	}
	if satisfied.Compiled().CMR() != b.contract.CMR() {
		return nil, &BuilderError{Kind: EncodeFailed, Msg: "satisfied contract belongs to a different program"}
	}
	return b.assemble(satisfied)
}

func (b *SpendBuilder) precheck() error {
	if err := b.check(); err != nil {
		return err
	}
	if len(b.outputs) == 0 {
		return &BuilderError{Kind: Incomplete, Msg: "no outputs"}
	}
	return b.checkBalance()
}

func (b *SpendBuilder) assemble(satisfied *SatisfiedContract) (*elements.Transaction, error) {
	stack, err := satisfied.WitnessStack()
	if err != nil {
		return nil, &BuilderError{Kind: EncodeFailed, Err: err}
	}

	tx := b.unsigned()
	tx.TxIn[0].Witness = wire.TxWitness(stack)
	b.finalized = true

	logrus.Debugf("[Finalize] 交易 %s: %d 个输出", tx.TxHash(), len(tx.TxOut))
	return tx, nil
}

// SimpleSpend 把 utxo 支付到 destination，并以 utxo 的资产支付 fee
func SimpleSpend(
	cc *CompiledContract,
	utxo Utxo,
	destination []byte,
	amount uint64,
	fee uint64,
	genesis chainhash.Hash,
	witness simplicity.WitnessValues,
) (*elements.Transaction, error) {
	return NewSpendBuilder(cc, utxo).
		GenesisHash(genesis).
		AddOutputSimple(destination, amount, utxo.Asset).
		AddFee(fee, utxo.Asset).
		Finalize(witness)
}
