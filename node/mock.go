package node

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/qinglongcn/simfchain"
	"github.com/qinglongcn/simfchain/elements"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTxNotFound 表示模拟链上没有该交易
	ErrTxNotFound = errors.New("node: transaction not found")

	// ErrDoubleSpend 表示交易花费了已花费或不存在的输出
	ErrDoubleSpend = errors.New("node: input already spent")
)

// MockGenesisHash 是模拟链默认的创世哈希
var MockGenesisHash = chainhash.Hash{
	0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01,
	0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01,
	0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01,
	0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01,
}

// MockOption 配置 MockClient
type MockOption func(*MockClient)

// WithMockGenesis 设置创世哈希
func WithMockGenesis(h chainhash.Hash) MockOption {
	return func(m *MockClient) { m.genesis = h }
}

// WithMockParams 设置地址参数
func WithMockParams(params *elements.AddressParams) MockOption {
	return func(m *MockClient) { m.params = params }
}

// WithPolicyAsset 设置钱包转账使用的资产
func WithPolicyAsset(asset elements.AssetID) MockOption {
	return func(m *MockClient) { m.asset = asset }
}

// MockClient 是内存中的模拟链，用于测试。
// 广播的交易必须只花费未花费的输出；钱包的注资交易凭空产生输入。
type MockClient struct {
	mu sync.Mutex

	genesis chainhash.Hash
	params  *elements.AddressParams
	asset   elements.AssetID

	txs     map[chainhash.Hash]*elements.Transaction
	order   []chainhash.Hash
	unspent map[wire.OutPoint]simfchain.Utxo
	blocks  []chainhash.Hash
	nonce   uint32
}

var _ simfchain.FundingClient = (*MockClient)(nil)

// NewMockClient 创建模拟链
func NewMockClient(opts ...MockOption) *MockClient {
	m := &MockClient{
		genesis: MockGenesisHash,
		params:  &elements.RegtestParams,
		asset:   elements.TestnetBitcoinAsset,
		txs:     make(map[chainhash.Hash]*elements.Transaction),
		unspent: make(map[wire.OutPoint]simfchain.Utxo),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetGenesisHash 修改创世哈希
func (m *MockClient) SetGenesisHash(h chainhash.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genesis = h
}

// PolicyAsset 返回钱包转账使用的资产
func (m *MockClient) PolicyAsset() elements.AssetID { return m.asset }

func (m *MockClient) GenesisHash(ctx context.Context) (chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.genesis, nil
}

func (m *MockClient) AddressParams() *elements.AddressParams { return m.params }

// Broadcast 检查输入均未花费后接受交易
func (m *MockClient) Broadcast(ctx context.Context, tx *elements.Transaction) (chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, err
	}
	if tx == nil || len(tx.TxIn) == 0 {
		return chainhash.Hash{}, fmt.Errorf("%w: transaction has no inputs", elements.ErrMalformedTx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	txid := tx.TxHash()
	if _, ok := m.txs[txid]; ok {
		return txid, nil
	}
	seen := make(map[wire.OutPoint]struct{}, len(tx.TxIn))
	for _, in := range tx.TxIn {
		op := in.PreviousOutPoint
		if _, ok := m.unspent[op]; !ok {
			logrus.Errorf("[MockClient] 输入 %s 不可花费", op)
			return chainhash.Hash{}, fmt.Errorf("%w: %s", ErrDoubleSpend, op)
		}
		if _, ok := seen[op]; ok {
			return chainhash.Hash{}, fmt.Errorf("%w: %s spent twice", ErrDoubleSpend, op)
		}
		seen[op] = struct{}{}
	}
	for op := range seen {
		delete(m.unspent, op)
	}
	m.accept(tx)
	return txid, nil
}

// accept 记录交易并登记其显式输出。调用方持有锁。
func (m *MockClient) accept(tx *elements.Transaction) {
	txid := tx.TxHash()
	m.txs[txid] = tx.Copy()
	m.order = append(m.order, txid)
	for i, out := range tx.TxOut {
		if out.IsFee() {
			continue
		}
		u, err := simfchain.UtxoFromTransaction(tx, uint32(i))
		if err != nil {
			continue
		}
		m.unspent[u.OutPoint] = u
	}
}

func (m *MockClient) GetTransaction(ctx context.Context, txid chainhash.Hash) (*elements.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
	}
	return tx.Copy(), nil
}

// SendToAddress 生成一笔从钱包到 addr 的注资交易：输出 0 为找零，输出 1 付给 addr
func (m *MockClient) SendToAddress(ctx context.Context, addr *elements.Address, amount uint64) (chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, err
	}
	if amount == 0 || amount > simfchain.MaxMoney {
		return chainhash.Hash{}, fmt.Errorf("invalid amount %d", amount)
	}
	change, err := m.GetNewAddress(ctx)
	if err != nil {
		return chainhash.Hash{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonce++
	coinbase := chainhash.HashH(m.nonceBytes())
	tx := elements.NewTransaction(elements.TxVersion)
	tx.AddTxIn(elements.NewTxIn(wire.NewOutPoint(&coinbase, 0)))
	tx.AddTxOut(elements.NewTxOut(m.asset, 1_000, change.ScriptPubKey()))
	tx.AddTxOut(elements.NewTxOut(m.asset, amount, addr.ScriptPubKey()))
	m.accept(tx)
	logrus.Debugf("[MockClient] 向 %s 转账 %d", addr, amount)
	return tx.TxHash(), nil
}

func (m *MockClient) nonceBytes() []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], m.nonce)
	return b[:]
}

// GenerateBlocks 追加 count 个区块哈希。模拟链没有内存池，交易广播后即确认。
func (m *MockClient) GenerateBlocks(ctx context.Context, count uint32) ([]chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chainhash.Hash, 0, count)
	for i := uint32(0); i < count; i++ {
		var height [4]byte
		binary.BigEndian.PutUint32(height[:], uint32(len(m.blocks)+1))
		h := chainhash.DoubleHashH(append(m.genesis[:], height[:]...))
		m.blocks = append(m.blocks, h)
		out = append(out, h)
	}
	return out, nil
}

// BlockCount 返回已生成的区块数
func (m *MockClient) BlockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

// GetNewAddress 返回一个新的 P2WPKH 地址
func (m *MockClient) GetNewAddress(ctx context.Context) (*elements.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.nonce++
	program := btcutil.Hash160(m.nonceBytes())
	m.mu.Unlock()
	return elements.NewWitnessAddress(0, program, m.params)
}

// ListUnspent 按 outpoint 排序返回支付给 addr 的未花费输出
func (m *MockClient) ListUnspent(ctx context.Context, addr *elements.Address) ([]simfchain.Utxo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	script := addr.ScriptPubKey()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []simfchain.Utxo
	for _, u := range m.unspent {
		if string(u.ScriptPubKey) == string(script) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].OutPoint, out[j].OutPoint
		if a.Hash != b.Hash {
			return string(a.Hash[:]) < string(b.Hash[:])
		}
		return a.Index < b.Index
	})
	return out, nil
}

// Transactions 按接受顺序返回全部交易的 txid
func (m *MockClient) Transactions() []chainhash.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chainhash.Hash(nil), m.order...)
}
