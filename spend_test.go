package simfchain

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/simfchain/elements"
	"github.com/qinglongcn/simfchain/simplicity"
	"github.com/qinglongcn/simfchain/taproot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testGenesis = chainhash.Hash{0x01, 0x02, 0x03}
	testAsset   = elements.TestnetBitcoinAsset
)

func testUtxo(t *testing.T) Utxo {
	t.Helper()
	txid, err := chainhash.NewHashFromStr("5ac9f65c0efcc4775e0baec4ec03abdde22473cd3cf33c0419ca290e0751b225")
	require.NoError(t, err)
	return NewUtxo(*txid, 0, 100_000_000, testAsset)
}

func destination() []byte {
	return append([]byte{elements.OP_1, elements.OP_DATA_32}, bytes.Repeat([]byte{0x42}, 32)...)
}

func readyBuilder(t *testing.T, cc *CompiledContract) *SpendBuilder {
	t.Helper()
	return NewSpendBuilder(cc, testUtxo(t)).
		GenesisHash(testGenesis).
		AddOutputSimple(destination(), 99_997_000, testAsset).
		AddFee(3_000, testAsset)
}

func sign(t *testing.T, b *SpendBuilder) simplicity.WitnessValues {
	t.Helper()
	priv, _ := aliceKey(t)
	hash, err := b.SighashAll()
	require.NoError(t, err)
	sig, err := schnorr.Sign(priv, hash[:])
	require.NoError(t, err)
	var raw [64]byte
	copy(raw[:], sig.Serialize())
	return simplicity.NewWitnessBuilder().WithSignature(aliceSignature, raw).Build()
}

func TestBuilderStates(t *testing.T) {
	cc := compileP2PK(t)
	b := NewSpendBuilder(cc, testUtxo(t))
	assert.Equal(t, Building, b.State())

	_, err := b.SighashAll()
	assert.True(t, IsBuilderKind(err, Incomplete), err)

	b.GenesisHash(testGenesis)
	assert.Equal(t, Building, b.State())
	_, err = b.SighashAll()
	assert.True(t, IsBuilderKind(err, Incomplete), err)

	b.AddFee(100_000_000, testAsset)
	assert.Equal(t, SighashReady, b.State())
	_, err = b.SighashAll()
	require.NoError(t, err)
	assert.Equal(t, SighashReady, b.State(), "sighash must not change state")
}

func TestSighashIdempotentAndSensitive(t *testing.T) {
	cc := compileP2PK(t)
	b := readyBuilder(t, cc)

	first, err := b.SighashAll()
	require.NoError(t, err)
	second, err := b.SighashAll()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	b.AddOutputSimple(destination(), 0, testAsset)
	third, err := b.SighashAll()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	// 同样的输入和输出在新构造器上得到同样的摘要
	again, err := readyBuilder(t, cc).SighashAll()
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestSighashCommitsToEverything(t *testing.T) {
	cc := compileP2PK(t)
	base, err := readyBuilder(t, cc).SighashAll()
	require.NoError(t, err)

	other := testGenesis
	other[31] = 0xff
	otherContract, err := FromString(p2pkSource)
	require.NoError(t, err)
	var bobKey [32]byte
	_, alice := aliceKey(t)
	bobKey = alice
	bobKey[5] ^= 0x01
	bob, err := otherContract.Instantiate(aliceArgs(bobKey))
	require.NoError(t, err)

	utxo := testUtxo(t)
	utxo.OutPoint.Index = 1

	variants := map[string]*SpendBuilder{
		"genesis":   readyBuilder(t, cc).GenesisHash(other),
		"lock time": readyBuilder(t, cc).LockTime(500_000),
		"sequence":  readyBuilder(t, cc).Sequence(0xfffffffe),
		"contract":  readyBuilder(t, bob),
		"outpoint": NewSpendBuilder(cc, utxo).GenesisHash(testGenesis).
			AddOutputSimple(destination(), 99_997_000, testAsset).AddFee(3_000, testAsset),
		"fee split": NewSpendBuilder(cc, testUtxo(t)).GenesisHash(testGenesis).
			AddOutputSimple(destination(), 99_996_000, testAsset).AddFee(4_000, testAsset),
	}
	for name, b := range variants {
		t.Run(name, func(t *testing.T) {
			h, err := b.SighashAll()
			require.NoError(t, err)
			assert.NotEqual(t, base, h)
		})
	}
}

func TestGenesisLastWriteWins(t *testing.T) {
	cc := compileP2PK(t)
	other := chainhash.Hash{0x09}

	a, err := readyBuilder(t, cc).GenesisHash(other).GenesisHash(testGenesis).SighashAll()
	require.NoError(t, err)
	b, err := readyBuilder(t, cc).SighashAll()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEndToEndSingleSignature(t *testing.T) {
	cc := compileP2PK(t)
	b := readyBuilder(t, cc)
	witness := sign(t, b)
	hash, err := b.SighashAll()
	require.NoError(t, err)

	tx, err := b.Finalize(witness)
	require.NoError(t, err)
	assert.Equal(t, Finalized, b.State())

	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 2)
	assert.Equal(t, int32(2), tx.Version)
	assert.Equal(t, testUtxo(t).OutPoint, tx.TxIn[0].PreviousOutPoint)
	assert.True(t, tx.TxOut[1].IsFee())

	stack := tx.TxIn[0].Witness
	require.Len(t, stack, 4)
	require.Len(t, stack[0], 64)
	assert.Equal(t, cc.Script(), []byte(stack[2]))

	// 见证中的签名能用 ALICE 的公钥验证
	sig, err := schnorr.ParseSignature(stack[0])
	require.NoError(t, err)
	_, pubBytes := aliceKey(t)
	pub, err := schnorr.ParsePubKey(pubBytes[:])
	require.NoError(t, err)
	assert.True(t, sig.Verify(hash[:], pub))

	cb, err := taproot.ParseControlBlock(stack[3])
	require.NoError(t, err)
	key := cc.OutputKey()
	require.NoError(t, taproot.VerifyLeafCommitment(cb, key[:], stack[2]))

	raw, err := tx.Bytes()
	require.NoError(t, err)
	back, err := elements.NewTransactionFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, tx.WitnessHash(), back.WitnessHash())
}

// 固定的密钥、Utxo、输出和签名得到的已知结果
const (
	goldenSighash = "04e671b4c1e12bd90e71173a656f4764f54cf6532e371fdfc00c4af8c6838edd"
	goldenTxID    = "17e4f1275a009365643837351696406b762fca82e76e4e44d6225df756440c47"
	goldenTxHex   = "" +
		"02000000010125b251070e29ca19043cf33ccd7324e2ddab03ecc4ae0b5e77c4fc0e5cf6c95a0000000000ffffffff0201499a818545f6bae39fc03b637f2a4e" +
		"1e64e590cac1bc3a6f6d71aa4443654c14010000000005f5d5480022512042424242424242424242424242424242424242424242424242424242424242420149" +
		"9a818545f6bae39fc03b637f2a4e1e64e590cac1bc3a6f6d71aa4443654c14010000000000000bb800000000000000000440abababababababababababababab" +
		"ababababababababababababababababababababababababababababababababababababababababababababababababababfd020173696d6601db0102666e01" +
		"046d61696e03012803012903017b01036c65740102706b03013a01065075626b657903013d0105706172616d03023a3a0110414c4943455f5055424c49435f4b" +
		"455903013b01036c6574010373696703013a01095369676e617475726503013d01077769746e65737303023a3a010f414c4943455f5349474e41545552450301" +
		"3b01036a657403023a3a010f6269705f303334305f7665726966790301280301280102706b03012c01036a657403023a3a010c7369675f616c6c5f6861736803" +
		"012803012903012903012c010373696703012903017d201b84c5567b126440995d3ed5aaba0565d71e1834604819ff9c17f5e9d5dd078f200f716ce690cd5c2f" +
		"cfe173c520618a16d10b2cb52f139da117aaa4434026f28321be50929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac00000000000"
)

func TestSingleSignatureGolden(t *testing.T) {
	cc := compileP2PK(t)
	addr, err := cc.Address(&elements.RegtestParams)
	require.NoError(t, err)
	assert.Equal(t, goldenRegtestAddress, addr.String())

	b := readyBuilder(t, cc)
	hash, err := b.SighashAll()
	require.NoError(t, err)
	assert.Equal(t, goldenSighash, hex.EncodeToString(hash[:]))

	var sig [64]byte
	copy(sig[:], bytes.Repeat([]byte{0xab}, 64))
	tx, err := b.Finalize(simplicity.NewWitnessBuilder().WithSignature(aliceSignature, sig).Build())
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 2)
	require.Len(t, tx.TxIn[0].Witness, 4)

	raw, err := tx.Hex()
	require.NoError(t, err)
	assert.Equal(t, goldenTxHex, raw)
	assert.Equal(t, goldenTxID, tx.TxHash().String())
}

func TestSighashCommitsToSurjectionProofs(t *testing.T) {
	cc := compileP2PK(t)
	b := readyBuilder(t, cc)
	tx := b.unsigned()
	base := b.env(tx).sighashAll()

	tx.TxOut[0].SurjectionProof = []byte{0x01}
	assert.NotEqual(t, base, b.env(tx).sighashAll())

	tx.TxOut[0].SurjectionProof = nil
	tx.TxIn[0].IssuanceAmountRangeProof = []byte{0x01}
	assert.NotEqual(t, base, b.env(tx).sighashAll())
}

func TestCheckBalanceRejectsConfidential(t *testing.T) {
	cc := compileP2PK(t)
	b := NewSpendBuilder(cc, testUtxo(t)).GenesisHash(testGenesis)

	b.outputs = append(b.outputs, &elements.TxOut{
		Asset: append([]byte{0x0a}, bytes.Repeat([]byte{0x11}, 32)...),
		Value: elements.ExplicitValue(100_000_000),
	})
	err := b.checkBalance()
	assert.True(t, IsBuilderKind(err, InvalidOutput), err)

	b.outputs[0] = &elements.TxOut{
		Asset: elements.ExplicitAsset(testAsset),
		Value: append([]byte{0x08}, bytes.Repeat([]byte{0x11}, 32)...),
	}
	err = b.checkBalance()
	assert.True(t, IsBuilderKind(err, InvalidOutput), err)
}

func TestFinalizeValueBalance(t *testing.T) {
	cc := compileP2PK(t)
	b := NewSpendBuilder(cc, testUtxo(t)).
		GenesisHash(testGenesis).
		AddOutputSimple(destination(), 99_997_000, testAsset)

	_, err := b.Finalize(sign(t, b))
	require.ErrorIs(t, err, ErrBuilder)
	assert.True(t, IsBuilderKind(err, ValueBalance), err)
	assert.Equal(t, SighashReady, b.State(), "failed finalize keeps the builder")

	b.AddFee(3_000, testAsset)
	_, err = b.Finalize(sign(t, b))
	require.NoError(t, err)
}

func TestFinalizeValueBalanceCases(t *testing.T) {
	cc := compileP2PK(t)
	foreign := elements.LiquidBitcoinAsset

	tests := []struct {
		name  string
		build func(*SpendBuilder)
		ok    bool
	}{
		{"exact", func(b *SpendBuilder) { b.AddOutputSimple(destination(), 99_000_000, testAsset).AddFee(1_000_000, testAsset) }, true},
		{"overpay", func(b *SpendBuilder) { b.AddOutputSimple(destination(), 99_000_000, testAsset).AddFee(1_000_001, testAsset) }, false},
		{"underpay", func(b *SpendBuilder) { b.AddFee(1, testAsset) }, false},
		{"foreign asset", func(b *SpendBuilder) { b.AddFee(100_000_000, testAsset).AddOutputSimple(destination(), 5, foreign) }, false},
		{"zero foreign output", func(b *SpendBuilder) { b.AddFee(100_000_000, testAsset).AddOutputSimple(destination(), 0, foreign) }, true},
		{"overflow", func(b *SpendBuilder) { b.AddFee(^uint64(0), testAsset).AddFee(2, testAsset) }, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := NewSpendBuilder(cc, testUtxo(t)).GenesisHash(testGenesis)
			test.build(b)
			_, err := b.Finalize(sign(t, b))
			if test.ok {
				require.NoError(t, err)
				return
			}
			assert.True(t, IsBuilderKind(err, ValueBalance), err)
		})
	}
}

func TestFinalizeWitnessCompleteness(t *testing.T) {
	cc := compileP2PK(t)
	var sig [64]byte

	tests := []struct {
		name    string
		witness simplicity.WitnessValues
		kind    BuilderKind
	}{
		{"missing", simplicity.WitnessValues{}, MissingWitness},
		{"unexpected", simplicity.NewWitnessBuilder().WithSignature(aliceSignature, sig).WithPubkey("EXTRA", [32]byte{}).Build(), UnexpectedWitness},
		{"type", simplicity.WitnessValues{aliceSignature: simplicity.U8(1)}, WitnessTypeMismatch},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := readyBuilder(t, cc)
			_, err := b.Finalize(test.witness)
			assert.True(t, IsBuilderKind(err, test.kind), err)
			assert.NotEqual(t, Finalized, b.State())
		})
	}
}

func TestFinalizedBuilderRejectsUse(t *testing.T) {
	cc := compileP2PK(t)
	b := readyBuilder(t, cc)
	_, err := b.Finalize(sign(t, b))
	require.NoError(t, err)

	_, err = b.SighashAll()
	require.ErrorIs(t, err, ErrBuilderFinalized)
	_, err = b.Finalize(simplicity.WitnessValues{})
	require.ErrorIs(t, err, ErrBuilderFinalized)

	b.AddFee(1, testAsset)
	assert.Equal(t, 2, b.Outputs())
	require.ErrorIs(t, b.Err(), ErrBuilderFinalized)
}

func TestInvalidOutputs(t *testing.T) {
	cc := compileP2PK(t)

	b := NewSpendBuilder(cc, testUtxo(t)).GenesisHash(testGenesis).
		AddOutputToAddress("ert1pnotanaddress", &elements.RegtestParams, 1, testAsset).
		AddFee(100_000_000, testAsset)
	_, err := b.SighashAll()
	assert.True(t, IsBuilderKind(err, InvalidOutput), err)
	require.ErrorIs(t, err, ErrAddress)
	assert.Equal(t, 0, b.Outputs(), "outputs after an error are ignored")

	conf := &elements.TxOut{
		Asset: append([]byte{0x0a}, bytes.Repeat([]byte{0x11}, 32)...),
		Value: elements.ExplicitValue(1),
	}
	_, err = NewSpendBuilder(cc, testUtxo(t)).AddOutput(conf).SighashAll()
	assert.True(t, IsBuilderKind(err, InvalidOutput), err)

	_, err = NewSpendBuilder(cc, testUtxo(t)).AddOutputSimple(nil, 1, testAsset).SighashAll()
	assert.True(t, IsBuilderKind(err, InvalidOutput), err)
}

func TestAddOutputToAddress(t *testing.T) {
	cc := compileP2PK(t)
	addr, err := cc.Address(&elements.RegtestParams)
	require.NoError(t, err)

	b := NewSpendBuilder(cc, testUtxo(t)).GenesisHash(testGenesis).
		AddOutputToAddress(addr.String(), &elements.RegtestParams, 99_999_000, testAsset).
		AddFee(1_000, testAsset)
	tx, err := b.Finalize(sign(t, b))
	require.NoError(t, err)
	assert.Equal(t, cc.ScriptPubKey(), tx.TxOut[0].PkScript)
}

func TestUtxoValidation(t *testing.T) {
	cc := compileP2PK(t)

	utxo := testUtxo(t)
	utxo.ScriptPubKey = destination()
	_, err := NewSpendBuilder(cc, utxo).GenesisHash(testGenesis).AddFee(1, testAsset).SighashAll()
	assert.True(t, IsBuilderKind(err, InvalidUtxo), err)

	utxo = testUtxo(t)
	utxo.Amount = MaxMoney + 1
	_, err = NewSpendBuilder(cc, utxo).GenesisHash(testGenesis).AddFee(1, testAsset).SighashAll()
	assert.True(t, IsBuilderKind(err, InvalidUtxo), err)

	// 输出脚本与合约一致时，显式设置与留空得到相同的摘要
	utxo = testUtxo(t)
	utxo.ScriptPubKey = cc.ScriptPubKey()
	withScript, err := NewSpendBuilder(cc, utxo).GenesisHash(testGenesis).AddFee(100_000_000, testAsset).SighashAll()
	require.NoError(t, err)
	without, err := NewSpendBuilder(cc, testUtxo(t)).GenesisHash(testGenesis).AddFee(100_000_000, testAsset).SighashAll()
	require.NoError(t, err)
	assert.Equal(t, withScript, without)
}

func TestUtxoFromTransaction(t *testing.T) {
	cc := compileP2PK(t)
	prev := testUtxo(t)
	funding := elements.NewTransaction(elements.TxVersion)
	funding.AddTxIn(elements.NewTxIn(&prev.OutPoint))
	funding.AddTxOut(elements.NewTxOut(testAsset, 5_000, destination()))
	funding.AddTxOut(elements.NewTxOut(testAsset, 7_000, cc.ScriptPubKey()))

	utxo, err := FindContractOutput(funding, cc)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), utxo.OutPoint.Index)
	assert.Equal(t, funding.TxHash(), utxo.OutPoint.Hash)
	assert.Equal(t, uint64(7_000), utxo.Amount)
	assert.Equal(t, testAsset, utxo.Asset)

	_, err = UtxoFromTransaction(funding, 2)
	assert.True(t, IsBuilderKind(err, InvalidUtxo), err)

	funding.TxOut[1].Value = append([]byte{0x08}, bytes.Repeat([]byte{0x01}, 32)...)
	_, err = UtxoFromTransaction(funding, 1)
	assert.True(t, IsBuilderKind(err, InvalidUtxo), err)

	funding.TxOut = funding.TxOut[:1]
	_, err = FindContractOutput(funding, cc)
	assert.True(t, IsBuilderKind(err, InvalidUtxo), err)
}

func TestSimpleSpend(t *testing.T) {
	cc := compileP2PK(t)
	utxo := testUtxo(t)

	hash, err := readyBuilder(t, cc).SighashAll()
	require.NoError(t, err)
	priv, _ := aliceKey(t)
	sig, err := schnorr.Sign(priv, hash[:])
	require.NoError(t, err)
	var raw [64]byte
	copy(raw[:], sig.Serialize())

	tx, err := SimpleSpend(cc, utxo, destination(), 99_997_000, 3_000, testGenesis,
		simplicity.NewWitnessBuilder().WithSignature(aliceSignature, raw).Build())
	require.NoError(t, err)
	require.Len(t, tx.TxOut, 2)
	assert.Equal(t, raw[:], []byte(tx.TxIn[0].Witness[0]))

	_, err = SimpleSpend(cc, utxo, destination(), 99_997_000, 2_000, testGenesis,
		simplicity.NewWitnessBuilder().WithSignature(aliceSignature, raw).Build())
	assert.True(t, IsBuilderKind(err, ValueBalance), err)
}

func TestFinalizeWithSatisfied(t *testing.T) {
	cc := compileP2PK(t)
	b := readyBuilder(t, cc)
	witness := sign(t, b)

	satisfied, err := cc.Satisfy(witness)
	require.NoError(t, err)
	tx, err := b.FinalizeWithSatisfied(satisfied)
	require.NoError(t, err)
	program, w := satisfied.Encode()
	assert.Equal(t, w, []byte(tx.TxIn[0].Witness[0]))
	assert.Equal(t, program, []byte(tx.TxIn[0].Witness[1]))

	contract, err := FromString(p2pkSource)
	require.NoError(t, err)
	otherKey := [32]byte{0x02}
	_, alice := aliceKey(t)
	copy(otherKey[1:], alice[1:])
	other, err := contract.Instantiate(aliceArgs(otherKey))
	require.NoError(t, err)
	foreign, err := other.Satisfy(witness)
	require.NoError(t, err)

	_, err = readyBuilder(t, cc).FinalizeWithSatisfied(foreign)
	require.ErrorIs(t, err, ErrBuilder)
	_, err = readyBuilder(t, cc).FinalizeWithSatisfied(nil)
	require.ErrorIs(t, err, ErrBuilder)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "building", Building.String())
	assert.Equal(t, "sighash-ready", SighashReady.String())
	assert.Equal(t, "finalized", Finalized.String())
	assert.Equal(t, "value balance", ValueBalance.String())
}
