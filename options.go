package simfchain

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Options 是命令行和长期运行进程共用的选项
type Options struct {
	InstanceId string // 实例标识，用于区分日志文件

	RootPath   string // 根目录，日志和缓存都放在其下；为空时不落盘
	ConfigPath string // 节点配置文件
	LogLevel   logrus.Level

	// CacheContracts 为 true 时把编译结果缓存到 RootPath/cache
	CacheContracts bool
	Debug          bool // 打印交易的完整结构

	Fs afero.Fs
}

// DefaultOptions 返回默认选项
func DefaultOptions() *Options {
	return &Options{
		InstanceId:     "default",
		LogLevel:       logrus.InfoLevel,
		CacheContracts: true,
		Fs:             afero.NewOsFs(),
	}
}

// LogDir 返回日志目录
func (opt *Options) LogDir() string {
	if opt.RootPath == "" {
		return ""
	}
	return filepath.Join(opt.RootPath, "logs")
}

// CacheDir 返回编译缓存目录，为空表示使用内存缓存
func (opt *Options) CacheDir() string {
	if opt.RootPath == "" || !opt.CacheContracts {
		return ""
	}
	return filepath.Join(opt.RootPath, "cache")
}

// BuildInstanceId 设置实例ID
func (opt *Options) BuildInstanceId(instanceId string) {
	if instanceId != "" {
		opt.InstanceId = instanceId
	}
}

// BuildRootPath 设置根路径并创建子目录
func (opt *Options) BuildRootPath(path string) error {
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		path = abs
	}
	opt.RootPath = path
	return opt.initDirectories()
}

// initDirectories 确保所有预定义的文件夹都存在
func (opt *Options) initDirectories() error {
	for _, dir := range []string{opt.LogDir(), opt.CacheDir()} {
		if dir == "" {
			continue
		}
		if err := opt.Fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// CheckAndSetOptions 检查选项并补全缺省值
func (opt *Options) CheckAndSetOptions() error {
	if opt.Fs == nil {
		opt.Fs = afero.NewOsFs()
	}
	if opt.InstanceId == "" {
		return fmt.Errorf("实例ID不能为空")
	}
	if opt.LogLevel > logrus.TraceLevel {
		return fmt.Errorf("无效的日志级别 %d", opt.LogLevel)
	}
	return nil
}
