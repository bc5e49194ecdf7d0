package node

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/qinglongcn/simfchain/elements"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     interface{}   `json:"id"`
}

// fakeNode 是按方法名应答的 JSON-RPC 服务
type fakeNode struct {
	mu      sync.Mutex
	paths   []string
	calls   []rpcRequest
	results map[string]interface{}
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req rpcRequest
	if err := jsonc.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.calls = append(f.calls, req)
	result, ok := f.results[req.Method]
	f.mu.Unlock()

	resp := map[string]interface{}{"id": req.ID, "result": result, "error": nil}
	if !ok {
		resp["result"] = nil
		resp["error"] = map[string]interface{}{"code": -32601, "message": "Method not found"}
	}
	out, _ := jsonc.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (f *fakeNode) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func newTestRPC(t *testing.T, results map[string]interface{}) (*RPCClient, *fakeNode) {
	t.Helper()
	node := &fakeNode{results: results}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig().WithRPC(srv.URL, "user", "pass")
	c, err := NewRPCClient(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c, node
}

func TestRPCGenesisHash(t *testing.T) {
	genesis := chainhash.Hash{0x0a, 0x0b}
	c, node := newTestRPC(t, map[string]interface{}{"getblockhash": genesis.String()})

	ctx := context.Background()
	h, err := c.GenesisHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, genesis, h)

	// 第二次读缓存
	_, err = c.GenesisHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"getblockhash"}, node.methods())
	assert.Equal(t, "/wallet/simfchain", node.paths[0])
	assert.Equal(t, []interface{}{float64(0)}, node.calls[0].Params)
}

func TestRPCGenesisOverride(t *testing.T) {
	cfg := DefaultConfig().WithGenesisHash(chainhash.Hash{0x33}.String())
	c, err := NewRPCClient(cfg)
	require.NoError(t, err)
	defer c.Shutdown()

	h, err := c.GenesisHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chainhash.Hash{0x33}, h)

	_, err = NewRPCClient(DefaultConfig().WithGenesisHash("nope"))
	require.ErrorIs(t, err, ErrInvalidGenesisHash)
}

func testTx() *elements.Transaction {
	tx := elements.NewTransaction(elements.TxVersion)
	tx.AddTxIn(elements.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x01}, 0)))
	tx.AddTxOut(elements.NewTxOut(elements.TestnetBitcoinAsset, 5_000, []byte{0x51}))
	return tx
}

func TestRPCBroadcastAndGet(t *testing.T) {
	tx := testTx()
	raw, err := tx.Hex()
	require.NoError(t, err)

	c, node := newTestRPC(t, map[string]interface{}{
		"sendrawtransaction": tx.TxHash().String(),
		"getrawtransaction":  raw,
	})
	ctx := context.Background()

	txid, err := c.Broadcast(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.TxHash(), txid)

	// gettransaction 不可用时退回 getrawtransaction
	got, err := c.GetTransaction(ctx, txid)
	require.NoError(t, err)
	assert.Equal(t, tx.TxHash(), got.TxHash())
	assert.Equal(t, []string{"sendrawtransaction", "gettransaction", "getrawtransaction"}, node.methods())
	assert.Equal(t, []interface{}{raw}, node.calls[0].Params)
}

func TestRPCWalletCalls(t *testing.T) {
	unconf, err := elements.NewWitnessAddress(0, make([]byte, 20), &elements.RegtestParams)
	require.NoError(t, err)
	txid := chainhash.Hash{0x0c}

	c, node := newTestRPC(t, map[string]interface{}{
		"getnewaddress":     "el1qqconfidentialaddressplaceholder",
		"getaddressinfo":    map[string]interface{}{"unconfidential": unconf.String()},
		"sendtoaddress":     txid.String(),
		"generatetoaddress": []string{chainhash.Hash{0x0d}.String(), chainhash.Hash{0x0e}.String()},
		"listunspent": []map[string]interface{}{{
			"txid":         txid.String(),
			"vout":         1,
			"amount":       1.5,
			"asset":        elements.TestnetBitcoinAsset.String(),
			"scriptPubKey": "0014" + "0000000000000000000000000000000000000000",
		}},
	})
	ctx := context.Background()

	addr, err := c.GetNewAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, unconf.String(), addr.String())

	sent, err := c.SendToAddress(ctx, addr, 150_000_000)
	require.NoError(t, err)
	assert.Equal(t, txid, sent)

	blocks, err := c.GenerateBlocks(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	utxos, err := c.ListUnspent(ctx, addr)
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	assert.Equal(t, uint64(150_000_000), utxos[0].Amount)
	assert.Equal(t, uint32(1), utxos[0].OutPoint.Index)
	assert.Equal(t, elements.TestnetBitcoinAsset, utxos[0].Asset)
	assert.Equal(t, addr.ScriptPubKey(), utxos[0].ScriptPubKey)

	node.mu.Lock()
	defer node.mu.Unlock()
	for _, call := range node.calls {
		if call.Method == "sendtoaddress" {
			assert.Equal(t, []interface{}{unconf.String(), 1.5}, call.Params)
		}
	}
}

func TestRPCErrors(t *testing.T) {
	c, _ := newTestRPC(t, map[string]interface{}{})

	_, err := c.Broadcast(context.Background(), testTx())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sendrawtransaction")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GenesisHash(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
