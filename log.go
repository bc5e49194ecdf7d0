package simfchain

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"github.com/snowzach/rotatefilehook"
)

const (
	logName = "simfchain"
)

// SetLog 配置全局日志：彩色终端输出，同时以 JSON 格式写入可轮转的日志文件。
// dir 为空时只输出到终端。
func SetLog(dir, instanceID string, level logrus.Level) error {
	logrus.SetLevel(level)
	logrus.SetOutput(colorable.NewColorableStdout())
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC822,
	})
	if dir == "" {
		return nil
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", logName))
	if instanceID != "" {
		filename = filepath.Join(dir, fmt.Sprintf("%s_%s.log", logName, instanceID))
	}
	// logrus 的回调钩子
	rotateFileHook, err := rotatefilehook.NewRotateFileHook(rotatefilehook.RotateFileConfig{
		Filename:   filename,
		MaxSize:    50, // 文件最大50M
		MaxBackups: 3,
		MaxAge:     28, // 存储28天
		Level:      level,
		Formatter: &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		},
	})
	if err != nil {
		return fmt.Errorf("初始化文件回调钩子失败: %w", err)
	}
	logrus.AddHook(rotateFileHook)
	return nil
}
