package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	jsoniter "github.com/json-iterator/go"
	"github.com/qinglongcn/simfchain"
	"github.com/qinglongcn/simfchain/simplicity"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// withApp 打开服务、执行 fn 后关闭
func withApp(c *cli.Context, fn func(a *App) error) error {
	a, err := Open(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// readArguments 读取参数文件；path 为空时返回空参数
func readArguments(fs afero.Fs, path string) (simplicity.Arguments, error) {
	args := simplicity.Arguments{}
	if path == "" {
		return args, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("parse arguments %s: %w", path, err)
	}
	return args, nil
}

// readWitness 读取见证文件
func readWitness(fs afero.Fs, path string) (simplicity.WitnessValues, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	witness := simplicity.WitnessValues{}
	if err := json.Unmarshal(data, &witness); err != nil {
		return nil, fmt.Errorf("parse witness %s: %w", path, err)
	}
	return witness, nil
}

// instantiate 编译 --contract 并以 --args 实例化
func instantiate(c *cli.Context, a *App) (*simfchain.CompiledContract, error) {
	contract, err := simfchain.FromFile(c.String("contract"), simfchain.WithFs(a.opt.Fs))
	if err != nil {
		return nil, err
	}
	args, err := readArguments(a.opt.Fs, c.String("args"))
	if err != nil {
		return nil, err
	}
	if !a.opt.CacheContracts {
		return contract.Instantiate(args)
	}
	return a.cache.Instantiate(contract, args)
}

// parseOutPoint 解析 TXID:VOUT
func parseOutPoint(s string) (*wire.OutPoint, error) {
	txid, vout, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("invalid outpoint %q, want TXID:VOUT", s)
	}
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, err
	}
	index, err := strconv.ParseUint(vout, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid output index %q: %w", vout, err)
	}
	return wire.NewOutPoint(hash, uint32(index)), nil
}

func addressAction(c *cli.Context) error {
	return withApp(c, func(a *App) error {
		cc, err := instantiate(c, a)
		if err != nil {
			return err
		}
		addr, err := cc.Address(a.client.AddressParams())
		if err != nil {
			return err
		}
		cmr := cc.CMR()
		w := c.App.Writer
		fmt.Fprintf(w, "cmr: %x\n", cmr[:])
		fmt.Fprintf(w, "address: %s\n", addr)
		fmt.Fprintf(w, "script_pubkey: %x\n", cc.ScriptPubKey())
		return nil
	})
}

func fundAction(c *cli.Context) error {
	return withApp(c, func(a *App) error {
		cc, err := instantiate(c, a)
		if err != nil {
			return err
		}
		utxo, err := simfchain.FundContract(c.Context, a.client, cc, c.Uint64("amount"))
		if err != nil {
			return err
		}
		if n := c.Uint("generate"); n > 0 {
			if _, err := a.client.GenerateBlocks(c.Context, uint32(n)); err != nil {
				return err
			}
		}
		w := c.App.Writer
		fmt.Fprintf(w, "utxo: %s:%d\n", utxo.OutPoint.Hash, utxo.OutPoint.Index)
		fmt.Fprintf(w, "amount: %d\n", utxo.Amount)
		fmt.Fprintf(w, "asset: %s\n", utxo.Asset)
		return nil
	})
}

// spendBuilder 按 --utxo/--to/--amount/--fee 构造花费交易
func spendBuilder(c *cli.Context, a *App, cc *simfchain.CompiledContract) (*simfchain.SpendBuilder, error) {
	op, err := parseOutPoint(c.String("utxo"))
	if err != nil {
		return nil, err
	}
	prev, err := a.client.GetTransaction(c.Context, op.Hash)
	if err != nil {
		return nil, err
	}
	utxo, err := simfchain.UtxoFromTransaction(prev, op.Index)
	if err != nil {
		return nil, err
	}

	fee := c.Uint64("fee")
	amount := c.Uint64("amount")
	if amount == 0 {
		if fee >= utxo.Amount {
			return nil, fmt.Errorf("fee %d exceeds utxo amount %d", fee, utxo.Amount)
		}
		amount = utxo.Amount - fee
	}

	b, err := simfchain.NewSpendBuilderFor(c.Context, a.client, cc, utxo)
	if err != nil {
		return nil, err
	}
	b.AddOutputToAddress(c.String("to"), a.client.AddressParams(), amount, utxo.Asset).
		AddFee(fee, utxo.Asset).
		LockTime(uint32(c.Uint("lock-time")))
	return b, b.Err()
}

func sighashAction(c *cli.Context) error {
	return withApp(c, func(a *App) error {
		cc, err := instantiate(c, a)
		if err != nil {
			return err
		}
		b, err := spendBuilder(c, a, cc)
		if err != nil {
			return err
		}
		hash, err := b.SighashAll()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, hex.EncodeToString(hash[:]))
		return nil
	})
}

func spendAction(c *cli.Context) error {
	return withApp(c, func(a *App) error {
		cc, err := instantiate(c, a)
		if err != nil {
			return err
		}
		witness, err := readWitness(a.opt.Fs, c.String("witness"))
		if err != nil {
			return err
		}
		b, err := spendBuilder(c, a, cc)
		if err != nil {
			return err
		}
		tx, err := b.Finalize(witness)
		if err != nil {
			return err
		}

		w := c.App.Writer
		if a.opt.Debug {
			spew.Fdump(w, tx)
		}
		if c.Bool("no-broadcast") {
			raw, err := tx.Hex()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, raw)
			return nil
		}
		txid, err := simfchain.Broadcast(c.Context, a.client, tx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "txid: %s\n", txid)
		return nil
	})
}

func contractsAction(c *cli.Context) error {
	return withApp(c, func(a *App) error {
		entries, err := a.cache.List()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(c.App.Writer, "%s %s %s\n", e.CMR, e.ScriptPubKey, e.Path)
		}
		return nil
	})
}
