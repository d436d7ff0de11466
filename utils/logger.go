package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 全局日志，InitLogger 之前为 no-op，便于测试直接调用服务代码
var Logger = zap.NewNop()

func InitLogger(mode string) error {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}

	Logger = logger.Named("mattekit")
	return nil
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
