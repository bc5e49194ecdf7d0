// simfchain 是编译、注资和花费 Simplicity 合约的命令行工具。
//
// 用法:
//
//	simfchain address  --contract p2pk.simf --args args.json
//	simfchain fund     --contract p2pk.simf --args args.json --amount 100000
//	simfchain sighash  --contract p2pk.simf --args args.json --utxo TXID:VOUT --to ADDR --fee 1000
//	simfchain spend    --contract p2pk.simf --args args.json --utxo TXID:VOUT --to ADDR --fee 1000 --witness witness.json
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	appName    = "simfchain"
	appVersion = "0.1.0"
)

func newCLI() *cli.App {
	contractFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "contract",
			Aliases:  []string{"c"},
			Usage:    "合约源码文件（.simf）",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "args",
			Aliases: []string{"a"},
			Usage:   "参数 JSON 文件",
		},
	}
	spendFlags := append(append([]cli.Flag(nil), contractFlags...),
		&cli.StringFlag{
			Name:     "utxo",
			Usage:    "要花费的合约输出，TXID:VOUT",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "to",
			Usage:    "收款地址",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:  "amount",
			Usage: "支付金额，0 表示扣除手续费后的全部金额",
		},
		&cli.Uint64Flag{
			Name:  "fee",
			Usage: "手续费",
			Value: 1_000,
		},
		&cli.UintFlag{
			Name:  "lock-time",
			Usage: "交易锁定时间",
		},
	)

	return &cli.App{
		Name:    appName,
		Usage:   "编译并花费 Elements/Liquid 上的 Simplicity 合约",
		Version: appVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "root",
				Usage: "日志和缓存所在的根目录",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "节点配置文件（TOML）",
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "覆盖配置中的网络：regtest、testnet 或 liquidv1",
			},
			&cli.StringFlag{
				Name:  "instance",
				Usage: "实例ID",
				Value: "default",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "打印完整的交易结构",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "不缓存编译结果",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "address",
				Usage:  "实例化合约并打印 CMR、地址和输出脚本",
				Flags:  contractFlags,
				Action: addressAction,
			},
			{
				Name:  "fund",
				Usage: "从钱包向合约地址转账",
				Flags: append(append([]cli.Flag(nil), contractFlags...),
					&cli.Uint64Flag{
						Name:     "amount",
						Usage:    "转账金额",
						Required: true,
					},
					&cli.UintFlag{
						Name:  "generate",
						Usage: "转账后生成的区块数",
						Value: 1,
					},
				),
				Action: fundAction,
			},
			{
				Name:   "sighash",
				Usage:  "打印花费交易的签名哈希",
				Flags:  spendFlags,
				Action: sighashAction,
			},
			{
				Name:  "spend",
				Usage: "完成花费交易并广播",
				Flags: append(append([]cli.Flag(nil), spendFlags...),
					&cli.StringFlag{
						Name:     "witness",
						Aliases:  []string{"w"},
						Usage:    "见证 JSON 文件",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "no-broadcast",
						Usage: "只打印交易，不广播",
					},
				),
				Action: spendAction,
			},
			{
				Name:   "contracts",
				Usage:  "列出缓存中的合约",
				Action: contractsAction,
			},
		},
	}
}

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
