package simfchain

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/simfchain/elements"
	"github.com/sirupsen/logrus"
)

// NodeClient 是核心流程对节点的全部依赖：链参数、广播和查询
type NodeClient interface {
	// GenesisHash 返回参与签名哈希的创世区块哈希
	GenesisHash(ctx context.Context) (chainhash.Hash, error)

	// AddressParams 返回网络的地址参数
	AddressParams() *elements.AddressParams

	// Broadcast 广播交易并返回 txid
	Broadcast(ctx context.Context, tx *elements.Transaction) (chainhash.Hash, error)

	// GetTransaction 按 txid 查询交易
	GetTransaction(ctx context.Context, txid chainhash.Hash) (*elements.Transaction, error)
}

// FundingClient 是带钱包的节点，用于 regtest 和测试中为合约注资
type FundingClient interface {
	NodeClient

	SendToAddress(ctx context.Context, addr *elements.Address, amount uint64) (chainhash.Hash, error)
	GenerateBlocks(ctx context.Context, count uint32) ([]chainhash.Hash, error)
	GetNewAddress(ctx context.Context) (*elements.Address, error)
	ListUnspent(ctx context.Context, addr *elements.Address) ([]Utxo, error)
}

// NewSpendBuilderFor 从节点取得创世哈希后创建构造器
func NewSpendBuilderFor(ctx context.Context, client NodeClient, cc *CompiledContract, utxo Utxo) (*SpendBuilder, error) {
	genesis, err := client.GenesisHash(ctx)
	if err != nil {
		logrus.Errorf("[NewSpendBuilderFor] 获取创世哈希失败:\t%v", err)
		return nil, err
	}
	return NewSpendBuilder(cc, utxo).GenesisHash(genesis), nil
}

// FundContract 向合约地址转账 amount，返回新输出对应的 Utxo
func FundContract(ctx context.Context, client FundingClient, cc *CompiledContract, amount uint64) (Utxo, error) {
	addr, err := cc.Address(client.AddressParams())
	if err != nil {
		return Utxo{}, err
	}
	txid, err := client.SendToAddress(ctx, addr, amount)
	if err != nil {
		logrus.Errorf("[FundContract] 转账失败:\t%v", err)
		return Utxo{}, fmt.Errorf("send to %s: %w", addr, err)
	}
	tx, err := client.GetTransaction(ctx, txid)
	if err != nil {
		logrus.Errorf("[FundContract] 查询注资交易失败:\t%v", err)
		return Utxo{}, fmt.Errorf("get transaction %s: %w", txid, err)
	}
	utxo, err := FindContractOutput(tx, cc)
	if err != nil {
		return Utxo{}, err
	}
	logrus.Debugf("[FundContract] %s:%d 金额 %d", utxo.OutPoint.Hash, utxo.OutPoint.Index, utxo.Amount)
	return utxo, nil
}

// Broadcast 广播交易，并检查节点返回的 txid
func Broadcast(ctx context.Context, client NodeClient, tx *elements.Transaction) (chainhash.Hash, error) {
	txid, err := client.Broadcast(ctx, tx)
	if err != nil {
		logrus.Errorf("[Broadcast] 广播失败:\t%v", err)
		return chainhash.Hash{}, err
	}
	if want := tx.TxHash(); txid != want {
		return txid, fmt.Errorf("node returned txid %s, expected %s", txid, want)
	}
	return txid, nil
}
