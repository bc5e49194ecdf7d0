package main

import (
	"context"
	"fmt"

	"github.com/qinglongcn/simfchain"
	"github.com/qinglongcn/simfchain/node"
	"github.com/qinglongcn/simfchain/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

// App 持有一次命令执行所需的服务
type App struct {
	ctx    context.Context
	opt    *simfchain.Options
	cfg    *node.Config
	client simfchain.FundingClient
	cache  *store.Cache

	app *fx.App
}

// newClient 创建节点客户端，测试中替换为模拟链
var newClient = func(lc fx.Lifecycle, cfg *node.Config) (simfchain.FundingClient, error) {
	client, err := node.NewRPCClient(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			client.Shutdown()
			return nil
		},
	})
	return client, nil
}

// Open 按命令行选项装配服务并启动
func Open(c *cli.Context) (*App, error) {
	opt, err := optionsFromCLI(c)
	if err != nil {
		return nil, err
	}

	a := &App{ctx: c.Context, opt: opt}
	if a.ctx == nil {
		a.ctx = context.Background()
	}

	// fx 配置项
	opts := []fx.Option{
		fx.NopLogger,
		a.globalInit(),
		fx.Provide(
			newConfig, // 节点配置
			newClient, // 节点客户端
			newCache,  // 合约缓存
		),
		fx.Populate(
			&a.cfg,
			&a.client,
			&a.cache,
		),
	}
	if network := c.String("network"); network != "" {
		opts = append(opts, fx.Decorate(func(cfg *node.Config) (*node.Config, error) {
			n, err := node.ParseNetwork(network)
			if err != nil {
				return nil, err
			}
			return cfg.WithNetwork(n), nil
		}))
	}

	a.app = fx.New(opts...)
	if err := a.app.Err(); err != nil {
		logrus.Errorf("[Open] 装配失败:\t%v", err)
		return nil, err
	}
	return a, a.app.Start(a.ctx)
}

// globalInit 提供上下文和选项
func (a *App) globalInit() fx.Option {
	return fx.Provide(
		func() context.Context {
			return a.ctx
		},
		func() *simfchain.Options {
			return a.opt
		},
	)
}

// Close 停止全部服务
func (a *App) Close() error {
	return a.app.Stop(context.Background())
}

type newConfigInput struct {
	fx.In

	Opt *simfchain.Options
}

// newConfig 读取节点配置文件；未指定时使用 regtest 默认值
func newConfig(input newConfigInput) (*node.Config, error) {
	if input.Opt.ConfigPath == "" {
		return node.DefaultConfig(), nil
	}
	cfg, err := node.LoadConfig(input.Opt.Fs, input.Opt.ConfigPath)
	if err != nil {
		logrus.Errorf("[newConfig] 读取配置失败:\t%v", err)
		return nil, fmt.Errorf("load config %s: %w", input.Opt.ConfigPath, err)
	}
	return cfg, nil
}

// newCache 打开合约缓存，进程退出时关闭
func newCache(lc fx.Lifecycle, opt *simfchain.Options) (*store.Cache, error) {
	cache, err := store.Open(opt.CacheDir())
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return cache.Close()
		},
	})
	return cache, nil
}

// optionsFromCLI 把全局标志转换为 Options
func optionsFromCLI(c *cli.Context) (*simfchain.Options, error) {
	opt := simfchain.DefaultOptions()
	opt.Fs = afero.NewOsFs()
	opt.BuildInstanceId(c.String("instance"))
	opt.ConfigPath = c.String("config")
	opt.Debug = c.Bool("debug")
	opt.CacheContracts = !c.Bool("no-cache")

	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	opt.LogLevel = level

	if err := opt.BuildRootPath(c.String("root")); err != nil {
		return nil, err
	}
	if err := opt.CheckAndSetOptions(); err != nil {
		return nil, err
	}
	if err := simfchain.SetLog(opt.LogDir(), opt.InstanceId, opt.LogLevel); err != nil {
		return nil, err
	}
	return opt, nil
}
