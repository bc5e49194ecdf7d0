package simfchain

import (
	"fmt"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/qinglongcn/simfchain/elements"
	"github.com/qinglongcn/simfchain/simplicity"
	"github.com/qinglongcn/simfchain/taproot"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// SourceExt 是合约源码文件的后缀
const SourceExt = ".simf"

// ContractOption 配置合约的编译方式
type ContractOption func(*contractConfig)

type contractConfig struct {
	compiler Compiler
	fs       afero.Fs
}

func defaultContractConfig() *contractConfig {
	return &contractConfig{
		compiler: DefaultCompiler(),
		fs:       afero.NewOsFs(),
	}
}

// WithCompiler 替换默认编译器
func WithCompiler(c Compiler) ContractOption {
	return func(cfg *contractConfig) {
		if c != nil {
			cfg.compiler = c
		}
	}
}

// WithFs 指定 FromFile 读取源码的文件系统
func WithFs(fs afero.Fs) ContractOption {
	return func(cfg *contractConfig) {
		if fs != nil {
			cfg.fs = fs
		}
	}
}

// Contract 是解析并类型检查过的合约模板，创建后不可变
type Contract struct {
	source   string
	path     string
	digest   chainhash.Hash
	template Template
}

// FromString 编译源码文本
func FromString(source string, opts ...ContractOption) (*Contract, error) {
	cfg := defaultContractConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return compileContract(cfg.compiler, source, "")
}

// FromFile 读取并编译 .simf 文件
func FromFile(path string, opts ...ContractOption) (*Contract, error) {
	cfg := defaultContractConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if filepath.Ext(path) != SourceExt {
		logrus.Warnf("[FromFile] %s 不是 %s 文件", path, SourceExt)
	}
	raw, err := afero.ReadFile(cfg.fs, path)
	if err != nil {
		logrus.Errorf("[FromFile] 读取合约失败:\t%v", err)
		return nil, &CompilationError{Kind: CompileIO, Path: path, Err: err}
	}
	return compileContract(cfg.compiler, string(raw), path)
}

func compileContract(c Compiler, source, path string) (*Contract, error) {
	template, err := c.Compile(source)
	if err != nil {
		return nil, &CompilationError{Kind: compilationKind(err), Path: path, Err: err}
	}

	contract := &Contract{
		source:   source,
		path:     path,
		digest:   chainhash.HashH([]byte(source)),
		template: template,
	}
	logrus.Debugf("[Compile] 合约 %s: %d 个参数, %d 个见证",
		contract.digest, len(template.Parameters()), len(template.Witnesses()))
	return contract, nil
}

// Parameters 返回实例化时需要的参数声明
func (c *Contract) Parameters() simplicity.Declarations { return c.template.Parameters() }

// Witnesses 返回花费时需要的见证声明
func (c *Contract) Witnesses() simplicity.Declarations { return c.template.Witnesses() }

// Source 返回源码文本
func (c *Contract) Source() string { return c.source }

// Path 返回源码路径，由 FromString 创建时为空
func (c *Contract) Path() string { return c.path }

// Digest 返回源码的 SHA-256
func (c *Contract) Digest() chainhash.Hash { return c.digest }

// Instantiate 校验并绑定参数，得到可派生地址的合约。相同的参数总是得到相同的 CMR 和地址。
func (c *Contract) Instantiate(args simplicity.Arguments) (*CompiledContract, error) {
	if err := checkArguments(c.template.Parameters(), args); err != nil {
		return nil, err
	}

	program, err := c.template.Bind(args)
	if err != nil {
		return nil, &InstantiationError{Kind: BindFailed, Err: err}
	}

	cmr := program.CMR()
	leaf := taproot.NewSimplicityLeaf(cmr)
	info, err := taproot.NewSpendInfo(taproot.UnspendableInternalKey(), leaf)
	if err != nil {
		return nil, &InstantiationError{Kind: BindFailed, Err: err}
	}
	cb, err := info.ControlBlock(leaf)
	if err != nil {
		return nil, &InstantiationError{Kind: BindFailed, Err: err}
	}

	logrus.Debugf("[Instantiate] 合约 %s cmr %x", c.digest, cmr)
	return &CompiledContract{
		contract:     c,
		args:         args.Clone(),
		program:      program,
		cmr:          cmr,
		leaf:         leaf,
		info:         info,
		controlBlock: cb,
	}, nil
}

// checkArguments 先按声明顺序报告缺失和类型不符，再按名称顺序报告多余参数
func checkArguments(decls simplicity.Declarations, args simplicity.Arguments) error {
	for _, decl := range decls {
		v, ok := args.Get(decl.Name)
		if !ok {
			return &InstantiationError{Kind: MissingArgument, Name: decl.Name}
		}
		if v.CheckType(decl.Type) != nil {
			return &InstantiationError{
				Kind:     ArgumentTypeMismatch,
				Name:     decl.Name,
				Expected: decl.Type.String(),
				Actual:   v.Type().String(),
			}
		}
	}
	for _, name := range args.Names() {
		if _, ok := decls.Lookup(name); !ok {
			return &InstantiationError{Kind: UnexpectedArgument, Name: name}
		}
	}
	return nil
}

// CompiledContract 是绑定参数后的合约及其 taproot 承诺，创建后不可变
type CompiledContract struct {
	contract     *Contract
	args         simplicity.Arguments
	program      Program
	cmr          [32]byte
	leaf         taproot.TapLeaf
	info         *taproot.SpendInfo
	controlBlock *taproot.ControlBlock
}

// Contract 返回来源合约
func (cc *CompiledContract) Contract() *Contract { return cc.contract }

// Arguments 返回绑定参数的副本
func (cc *CompiledContract) Arguments() simplicity.Arguments { return cc.args.Clone() }

// CMR 返回程序的承诺根
func (cc *CompiledContract) CMR() [32]byte { return cc.cmr }

// Script 返回叶子脚本，即 32 字节 CMR
func (cc *CompiledContract) Script() []byte {
	return append([]byte(nil), cc.cmr[:]...)
}

// LeafVersion 返回 Simplicity 叶子版本
func (cc *CompiledContract) LeafVersion() taproot.LeafVersion { return cc.leaf.LeafVersion }

// TaprootInfo 返回 taproot 承诺数据
func (cc *CompiledContract) TaprootInfo() *taproot.SpendInfo { return cc.info }

// ControlBlock 返回花费唯一叶子时的控制块副本
func (cc *CompiledContract) ControlBlock() *taproot.ControlBlock {
	cb := *cc.controlBlock
	cb.InclusionProof = append([]byte(nil), cc.controlBlock.InclusionProof...)
	return &cb
}

// Witnesses 返回花费时需要的见证声明
func (cc *CompiledContract) Witnesses() simplicity.Declarations { return cc.contract.Witnesses() }

// OutputKey 返回 x-only 输出公钥
func (cc *CompiledContract) OutputKey() [32]byte { return cc.info.XOnlyOutputKey() }

// ScriptPubKey 返回 OP_1 <输出公钥>
func (cc *CompiledContract) ScriptPubKey() []byte { return cc.info.ScriptPubKey() }

// Address 按网络参数派生 segwit v1 地址
func (cc *CompiledContract) Address(params *elements.AddressParams) (*elements.Address, error) {
	addr, err := elements.NewTaprootAddress(cc.OutputKey(), params)
	if err != nil {
		return nil, &AddressError{Err: err}
	}
	return addr, nil
}

// Satisfy 校验见证值并编码程序与见证
func (cc *CompiledContract) Satisfy(witness simplicity.WitnessValues) (*SatisfiedContract, error) {
	if err := checkWitness(cc.Witnesses(), witness); err != nil {
		return nil, err
	}
	program, witnessBytes, err := cc.program.Encode(witness)
	if err != nil {
		return nil, &BuilderError{Kind: EncodeFailed, Err: err}
	}
	return &SatisfiedContract{
		compiled:     cc,
		witness:      witness.Clone(),
		program:      program,
		witnessBytes: witnessBytes,
	}, nil
}

func checkWitness(decls simplicity.Declarations, witness simplicity.WitnessValues) error {
	for _, decl := range decls {
		v, ok := witness.Get(decl.Name)
		if !ok {
			return &BuilderError{Kind: MissingWitness, Name: decl.Name}
		}
		if err := v.CheckType(decl.Type); err != nil {
			return &BuilderError{Kind: WitnessTypeMismatch, Name: decl.Name, Err: err}
		}
	}
	for _, name := range witness.Names() {
		if _, ok := decls.Lookup(name); !ok {
			return &BuilderError{Kind: UnexpectedWitness, Name: name}
		}
	}
	return nil
}

// SatisfiedContract 是带有完整见证的程序
type SatisfiedContract struct {
	compiled     *CompiledContract
	witness      simplicity.WitnessValues
	program      []byte
	witnessBytes []byte
}

// Compiled 返回来源合约
func (s *SatisfiedContract) Compiled() *CompiledContract { return s.compiled }

// WitnessValues 返回见证值副本
func (s *SatisfiedContract) WitnessValues() simplicity.WitnessValues { return s.witness.Clone() }

// Encode 返回程序字节和见证字节
func (s *SatisfiedContract) Encode() (program []byte, witness []byte) {
	return append([]byte(nil), s.program...), append([]byte(nil), s.witnessBytes...)
}

// WitnessStack 返回输入见证：见证字节、程序字节、CMR 脚本、控制块
func (s *SatisfiedContract) WitnessStack() ([][]byte, error) {
	cb, err := s.compiled.controlBlock.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("control block: %w", err)
	}
	program, witness := s.Encode()
	return [][]byte{witness, program, s.compiled.Script(), cb}, nil
}
