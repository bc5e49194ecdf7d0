// Package node 提供节点客户端：TOML 配置、elementsd JSON-RPC 客户端和内存中的模拟链。
package node

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pelletier/go-toml/v2"
	"github.com/qinglongcn/simfchain/elements"
	"github.com/spf13/afero"
)

var (
	// ErrUnknownNetwork 表示无法识别的网络名称
	ErrUnknownNetwork = errors.New("node: unknown network")

	// ErrMissingGenesisHash 表示配置没有给出创世哈希
	ErrMissingGenesisHash = errors.New("node: missing genesis hash in config")

	// ErrInvalidGenesisHash 表示配置中的创世哈希无法解析
	ErrInvalidGenesisHash = errors.New("node: invalid genesis hash")
)

// Network 是节点所在的网络
type Network string

const (
	Regtest Network = "regtest"
	Testnet Network = "testnet"
	Liquid  Network = "liquidv1"
)

// DefaultWallet 是默认的钱包名称
const DefaultWallet = "simfchain"

// ParseNetwork 解析网络名称
func ParseNetwork(s string) (Network, error) {
	switch n := Network(strings.ToLower(s)); n {
	case Regtest, Testnet, Liquid:
		return n, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
}

// DefaultRPCPort 返回 elementsd 的默认 RPC 端口
func (n Network) DefaultRPCPort() uint16 {
	switch n {
	case Testnet:
		return 18892
	case Liquid:
		return 7041
	default:
		return 18884
	}
}

// DefaultRPCURL 返回本机的默认 RPC 地址
func (n Network) DefaultRPCURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", n.DefaultRPCPort())
}

// AddressParams 返回网络的地址参数
func (n Network) AddressParams() *elements.AddressParams {
	switch n {
	case Testnet:
		return &elements.TestnetParams
	case Liquid:
		return &elements.LiquidParams
	default:
		return &elements.RegtestParams
	}
}

func (n Network) String() string { return string(n) }

// NetworkConfig 是 [network] 段
type NetworkConfig struct {
	Network Network `toml:"network"`
}

// RPCConfig 是 [rpc] 段
type RPCConfig struct {
	URL      string `toml:"url"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Wallet   string `toml:"wallet"`
}

// WalletURL 返回钱包的 RPC 地址
func (c RPCConfig) WalletURL() string {
	return fmt.Sprintf("%s/wallet/%s", strings.TrimRight(c.URL, "/"), c.Wallet)
}

// ChainConfig 是 [chain] 段
type ChainConfig struct {
	// GenesisHash 为空时从节点查询
	GenesisHash string `toml:"genesis_hash,omitempty"`
}

// Config 是节点客户端的配置文件
type Config struct {
	Network NetworkConfig `toml:"network"`
	RPC     RPCConfig     `toml:"rpc"`
	Chain   ChainConfig   `toml:"chain"`
}

// DefaultConfig 返回 regtest 的默认配置
func DefaultConfig() *Config {
	return ConfigFor(Regtest)
}

// ConfigFor 返回指定网络的默认配置
func ConfigFor(network Network) *Config {
	return &Config{
		Network: NetworkConfig{Network: network},
		RPC: RPCConfig{
			URL:      network.DefaultRPCURL(),
			User:     "user",
			Password: "password",
			Wallet:   DefaultWallet,
		},
	}
}

// ParseConfig 解析 TOML 文本，缺省的字段按所选网络补全
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Network.Network == "" {
		cfg.Network.Network = Regtest
	}
	network, err := ParseNetwork(string(cfg.Network.Network))
	if err != nil {
		return nil, err
	}
	cfg.Network.Network = network

	def := ConfigFor(network)
	if cfg.RPC.URL == "" {
		cfg.RPC.URL = def.RPC.URL
	}
	if cfg.RPC.User == "" {
		cfg.RPC.User = def.RPC.User
	}
	if cfg.RPC.Password == "" {
		cfg.RPC.Password = def.RPC.Password
	}
	if cfg.RPC.Wallet == "" {
		cfg.RPC.Wallet = def.RPC.Wallet
	}
	return &cfg, nil
}

// LoadConfig 从文件系统读取配置
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// Marshal 返回 TOML 文本
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save 把配置写入文件
func (c *Config) Save(fs afero.Fs, path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0600)
}

// NetworkName 返回所选网络
func (c *Config) NetworkName() Network { return c.Network.Network }

// AddressParams 返回所选网络的地址参数
func (c *Config) AddressParams() *elements.AddressParams {
	return c.Network.Network.AddressParams()
}

// GenesisHash 返回配置中覆盖的创世哈希
func (c *Config) GenesisHash() (chainhash.Hash, error) {
	if c.Chain.GenesisHash == "" {
		return chainhash.Hash{}, ErrMissingGenesisHash
	}
	h, err := chainhash.NewHashFromStr(c.Chain.GenesisHash)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: %v", ErrInvalidGenesisHash, err)
	}
	return *h, nil
}

// WithNetwork 返回切换到 network 的副本。凭据、钱包和创世哈希保持不变；
// RPC 地址仍是原网络的默认值时改为新网络的默认端口，否则原样保留。
func (c *Config) WithNetwork(network Network) *Config {
	out := *c
	if c.RPC.URL == "" || c.RPC.URL == c.Network.Network.DefaultRPCURL() {
		out.RPC.URL = network.DefaultRPCURL()
	}
	out.Network.Network = network
	return &out
}

// WithRPC 设置 RPC 地址和凭据
func (c *Config) WithRPC(url, user, password string) *Config {
	c.RPC.URL, c.RPC.User, c.RPC.Password = url, user, password
	return c
}

// WithWallet 设置钱包名称
func (c *Config) WithWallet(wallet string) *Config {
	c.RPC.Wallet = wallet
	return c
}

// WithGenesisHash 设置创世哈希覆盖值
func (c *Config) WithGenesisHash(hash string) *Config {
	c.Chain.GenesisHash = hash
	return c
}
