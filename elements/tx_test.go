package elements

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func sampleTx(t *testing.T) *Transaction {
	t.Helper()
	prev, err := chainhash.NewHashFromStr("5ac9f65c0efcc4775e0baec4ec03abdde22473cd3cf33c0419ca290e0751b225")
	require.NoError(t, err)

	tx := NewTransaction(TxVersion)
	tx.AddTxIn(NewTxIn(wire.NewOutPoint(prev, 1)))
	dest := append([]byte{OP_1, OP_DATA_32}, bytes.Repeat([]byte{0x42}, 32)...)
	tx.AddTxOut(NewTxOut(LiquidBitcoinAsset, 99_997_000, dest))
	tx.AddTxOut(NewFeeTxOut(LiquidBitcoinAsset, 3_000))
	return tx
}

func TestSerializeLayout(t *testing.T) {
	tx := NewTransaction(TxVersion)
	tx.AddTxIn(NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, 0)))
	tx.AddTxOut(NewFeeTxOut(AssetID{}, 100_000_000))

	raw, err := tx.Bytes()
	require.NoError(t, err)
	require.Len(t, raw, 96)

	h := hex.EncodeToString(raw)
	require.True(t, strings.HasPrefix(h, "02000000"+"00"+"01"))
	// 显式资产、显式金额（大端）、空 nonce、空脚本、locktime
	want := "01" + strings.Repeat("00", 32) + "01" + "0000000005f5e100" + "00" + "00" + "00000000"
	require.True(t, strings.HasSuffix(h, want), h)
}

func TestTransactionRoundTrip(t *testing.T) {
	tx := sampleTx(t)
	noWitnessID := tx.TxHash()

	tx.TxIn[0].Witness = wire.TxWitness{{0x01}, {0x02, 0x03}, bytes.Repeat([]byte{0x04}, 32), {0xbe}}
	require.True(t, tx.HasWitness())
	require.Equal(t, noWitnessID, tx.TxHash(), "witness must not change txid")
	require.NotEqual(t, tx.TxHash(), tx.WitnessHash())

	raw, err := tx.Bytes()
	require.NoError(t, err)
	require.Equal(t, byte(1), raw[4])

	back, err := NewTransactionFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), back.TxHash())
	require.Equal(t, tx.TxIn[0].Witness, back.TxIn[0].Witness)

	again, err := back.Bytes()
	require.NoError(t, err)
	require.Equal(t, raw, again)

	amount, ok := back.TxOut[0].ExplicitAmount()
	require.True(t, ok)
	require.Equal(t, uint64(99_997_000), amount)
	asset, ok := back.TxOut[1].ExplicitAssetID()
	require.True(t, ok)
	require.Equal(t, LiquidBitcoinAsset, asset)
	require.True(t, back.TxOut[1].IsFee())
	require.False(t, back.TxOut[0].IsFee())

	h, err := tx.Hex()
	require.NoError(t, err)
	fromHex, err := NewTransactionFromHex(h)
	require.NoError(t, err)
	require.Equal(t, tx.WitnessHash(), fromHex.WitnessHash())
}

func TestDeserializeConfidentialAndIssuance(t *testing.T) {
	tx := sampleTx(t)
	tx.TxIn[0].Issuance = &AssetIssuance{
		AssetEntropy: [32]byte{0x09},
		Amount:       ExplicitValue(1000),
	}
	tx.TxOut = append(tx.TxOut, &TxOut{
		Asset:           append([]byte{0x0a}, bytes.Repeat([]byte{0x11}, 32)...),
		Value:           append([]byte{0x08}, bytes.Repeat([]byte{0x22}, 32)...),
		Nonce:           append([]byte{0x02}, bytes.Repeat([]byte{0x33}, 32)...),
		PkScript:        []byte{OP_RETURN},
		SurjectionProof: []byte{0x01, 0x02},
		RangeProof:      []byte{0x03},
	})

	raw, err := tx.Bytes()
	require.NoError(t, err)
	back, err := NewTransactionFromBytes(raw)
	require.NoError(t, err)

	require.NotNil(t, back.TxIn[0].Issuance)
	require.Equal(t, uint32(1), back.TxIn[0].PreviousOutPoint.Index)
	require.Nil(t, back.TxIn[0].Issuance.InflationKeys)
	require.True(t, back.TxOut[2].IsConfidential())
	require.Equal(t, []byte{0x03}, back.TxOut[2].RangeProof)
	require.Equal(t, tx.TxHash(), back.TxHash())
}

func TestDeserializeErrors(t *testing.T) {
	tx := sampleTx(t)
	raw, err := tx.Bytes()
	require.NoError(t, err)

	_, err = NewTransactionFromBytes(raw[:len(raw)-1])
	require.ErrorIs(t, err, ErrMalformedTx)

	_, err = NewTransactionFromBytes(append(raw, 0x00))
	require.ErrorIs(t, err, ErrMalformedTx)

	bad := append([]byte(nil), raw...)
	bad[4] = 0x07
	_, err = NewTransactionFromBytes(bad)
	require.ErrorIs(t, err, ErrMalformedTx)

	_, err = NewTransactionFromHex("zz")
	require.ErrorIs(t, err, ErrMalformedTx)
}

func TestInvalidOutputEncoding(t *testing.T) {
	tx := sampleTx(t)
	tx.TxOut[0].Value = []byte{0x01, 0x02}
	_, err := tx.Bytes()
	require.Error(t, err)
}

func TestAssetIDString(t *testing.T) {
	require.Equal(t, "6f0279e9ed041c3d710a9f57d0c02928416460c4b722ae3457a11eec381c526d", LiquidBitcoinAsset.String())
	// 内部字节序与显示相反
	require.Equal(t, byte(0x6d), LiquidBitcoinAsset[0])

	_, err := NewAssetIDFromStr("xyz")
	require.Error(t, err)
}

func TestGetScriptClass(t *testing.T) {
	hash20 := bytes.Repeat([]byte{0x01}, 20)
	hash32 := bytes.Repeat([]byte{0x02}, 32)

	p2pkh, err := PayToPubKeyHashScript(hash20)
	require.NoError(t, err)
	p2sh, err := PayToScriptHashScript(hash20)
	require.NoError(t, err)
	p2wpkh, err := PayToWitnessScript(0, hash20)
	require.NoError(t, err)
	p2wsh, err := PayToWitnessScript(0, hash32)
	require.NoError(t, err)
	p2tr, err := PayToWitnessScript(1, hash32)
	require.NoError(t, err)
	v2, err := PayToWitnessScript(2, hash20)
	require.NoError(t, err)
	nulldata, err := NullDataScript([]byte("simf"))
	require.NoError(t, err)

	tests := []struct {
		script []byte
		class  ScriptClass
	}{
		{nil, FeeTy},
		{p2pkh, PubKeyHashTy},
		{p2sh, ScriptHashTy},
		{p2wpkh, WitnessV0PubKeyHashTy},
		{p2wsh, WitnessV0ScriptHashTy},
		{p2tr, WitnessV1TaprootTy},
		{v2, WitnessUnknownTy},
		{nulldata, NullDataTy},
		{[]byte{OP_DUP}, NonStandardTy},
	}
	for _, test := range tests {
		require.Equal(t, test.class, GetScriptClass(test.script), test.class.String())
	}
	require.True(t, IsPayToTaproot(p2tr))
	require.Equal(t, "Invalid", ScriptClass(200).String())

	_, err = PayToWitnessScript(0, bytes.Repeat([]byte{0x01}, 25))
	require.Error(t, err)
	_, err = NullDataScript(make([]byte, MaxDataCarrierSize+1))
	require.Error(t, err)
}
