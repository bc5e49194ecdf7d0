package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	jsoniter "github.com/json-iterator/go"
	"github.com/qinglongcn/simfchain"
	"github.com/qinglongcn/simfchain/elements"
	"github.com/sirupsen/logrus"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

// RPCClient 通过 elementsd 的 JSON-RPC 接口访问节点和钱包
type RPCClient struct {
	cfg    *Config
	client *rpcclient.Client

	mu      sync.Mutex
	genesis *chainhash.Hash
}

var _ simfchain.FundingClient = (*RPCClient)(nil)

// NewRPCClient 按配置创建客户端。请求走 HTTP POST，不建立长连接。
func NewRPCClient(cfg *Config) (*RPCClient, error) {
	u, err := url.Parse(cfg.RPC.WalletURL())
	if err != nil {
		return nil, fmt.Errorf("invalid rpc url %q: %w", cfg.RPC.URL, err)
	}
	connCfg := &rpcclient.ConnConfig{
		Host:         u.Host + u.Path,
		User:         cfg.RPC.User,
		Pass:         cfg.RPC.Password,
		HTTPPostMode: true,
		DisableTLS:   u.Scheme != "https",
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		logrus.Errorf("[NewRPCClient] 创建 RPC 客户端失败:\t%v", err)
		return nil, err
	}

	c := &RPCClient{cfg: cfg, client: client}
	if h, err := cfg.GenesisHash(); err == nil {
		c.genesis = &h
	} else if cfg.Chain.GenesisHash != "" {
		return nil, err
	}
	return c, nil
}

// Shutdown 关闭底层客户端
func (c *RPCClient) Shutdown() {
	c.client.Shutdown()
}

// call 发送请求并把结果解码到 result
func (c *RPCClient) call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := jsonc.Marshal(p)
		if err != nil {
			return err
		}
		raw = append(raw, b)
	}

	type response struct {
		res json.RawMessage
		err error
	}
	done := make(chan response, 1)
	go func() {
		res, err := c.client.RawRequest(method, raw)
		done <- response{res, err}
	}()

	var resp response
	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp = <-done:
	}
	if resp.err != nil {
		logrus.Debugf("[RPCClient] %s 失败:\t%v", method, resp.err)
		return fmt.Errorf("%s: %w", method, resp.err)
	}
	if result == nil {
		return nil
	}
	if err := jsonc.Unmarshal(resp.res, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// GenesisHash 返回配置中的覆盖值，否则查询高度 0 的区块哈希并缓存
func (c *RPCClient) GenesisHash(ctx context.Context) (chainhash.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.genesis != nil {
		return *c.genesis, nil
	}

	var s string
	if err := c.call(ctx, &s, "getblockhash", 0); err != nil {
		return chainhash.Hash{}, err
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, err
	}
	c.genesis = h
	return *h, nil
}

// AddressParams 返回所配置网络的地址参数
func (c *RPCClient) AddressParams() *elements.AddressParams {
	return c.cfg.AddressParams()
}

// Broadcast 调用 sendrawtransaction
func (c *RPCClient) Broadcast(ctx context.Context, tx *elements.Transaction) (chainhash.Hash, error) {
	raw, err := tx.Hex()
	if err != nil {
		return chainhash.Hash{}, err
	}
	var s string
	if err := c.call(ctx, &s, "sendrawtransaction", raw); err != nil {
		logrus.Errorf("[Broadcast] 节点拒绝交易:\t%v", err)
		return chainhash.Hash{}, err
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *h, nil
}

// GetTransaction 先查钱包交易，失败时退回 getrawtransaction
func (c *RPCClient) GetTransaction(ctx context.Context, txid chainhash.Hash) (*elements.Transaction, error) {
	var wtx struct {
		Hex string `json:"hex"`
	}
	if err := c.call(ctx, &wtx, "gettransaction", txid.String()); err == nil && wtx.Hex != "" {
		return elements.NewTransactionFromHex(wtx.Hex)
	}

	var raw string
	if err := c.call(ctx, &raw, "getrawtransaction", txid.String()); err != nil {
		return nil, err
	}
	return elements.NewTransactionFromHex(raw)
}

// SendToAddress 从钱包向地址转账，amount 以 satoshi 计
func (c *RPCClient) SendToAddress(ctx context.Context, addr *elements.Address, amount uint64) (chainhash.Hash, error) {
	var s string
	btc := btcutil.Amount(amount).ToBTC()
	if err := c.call(ctx, &s, "sendtoaddress", addr.String(), btc); err != nil {
		return chainhash.Hash{}, err
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *h, nil
}

// GenerateBlocks 出块到钱包的新地址
func (c *RPCClient) GenerateBlocks(ctx context.Context, count uint32) ([]chainhash.Hash, error) {
	addr, err := c.GetNewAddress(ctx)
	if err != nil {
		return nil, err
	}
	var hashes []string
	if err := c.call(ctx, &hashes, "generatetoaddress", count, addr.String()); err != nil {
		return nil, err
	}
	out := make([]chainhash.Hash, 0, len(hashes))
	for _, s := range hashes {
		h, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, nil
}

// GetNewAddress 返回钱包的新地址。钱包默认给出机密地址，此时改用其非机密形式。
func (c *RPCClient) GetNewAddress(ctx context.Context) (*elements.Address, error) {
	var s string
	if err := c.call(ctx, &s, "getnewaddress"); err != nil {
		return nil, err
	}
	params := c.AddressParams()
	addr, err := elements.DecodeAddress(s, params)
	if err == nil {
		return addr, nil
	}

	var info struct {
		Unconfidential string `json:"unconfidential"`
	}
	if err := c.call(ctx, &info, "getaddressinfo", s); err != nil {
		return nil, err
	}
	if info.Unconfidential == "" {
		return nil, fmt.Errorf("no unconfidential form for %s", s)
	}
	return elements.DecodeAddress(info.Unconfidential, params)
}

// listUnspentEntry 是 listunspent 返回的一项
type listUnspentEntry struct {
	TxID         string  `json:"txid"`
	Vout         uint32  `json:"vout"`
	Amount       float64 `json:"amount"`
	Asset        string  `json:"asset"`
	ScriptPubKey string  `json:"scriptPubKey"`
}

// ListUnspent 列出钱包中支付给 addr 的未花费输出
func (c *RPCClient) ListUnspent(ctx context.Context, addr *elements.Address) ([]simfchain.Utxo, error) {
	var entries []listUnspentEntry
	if err := c.call(ctx, &entries, "listunspent", 0, 9999999, []string{addr.String()}); err != nil {
		return nil, err
	}
	return entries2utxos(entries)
}

func entries2utxos(entries []listUnspentEntry) ([]simfchain.Utxo, error) {
	utxos := make([]simfchain.Utxo, 0, len(entries))
	for _, e := range entries {
		txid, err := chainhash.NewHashFromStr(e.TxID)
		if err != nil {
			return nil, err
		}
		asset, err := elements.NewAssetIDFromStr(e.Asset)
		if err != nil {
			return nil, err
		}
		amount, err := btcutil.NewAmount(e.Amount)
		if err != nil {
			return nil, err
		}
		u := simfchain.NewUtxo(*txid, e.Vout, uint64(amount), asset)
		if e.ScriptPubKey != "" {
			script, err := hex.DecodeString(e.ScriptPubKey)
			if err != nil {
				return nil, err
			}
			u.ScriptPubKey = script
		}
		utxos = append(utxos, u)
	}
	return utxos, nil
}
