package main

import (
	"context"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/service"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
)

// newProcessor 初始化模型实例与缓存，返回的清理函数释放全部资源
func newProcessor(ctx context.Context, cfg *config.Config, withCache bool) (*service.Processor, func(), error) {
	masks, err := service.NewMaskSource(&cfg.Segmentation)
	if err != nil {
		return nil, nil, err
	}

	var landmarker service.FaceLandmarker
	if lm, err := service.NewDNNFaceLandmarker(&cfg.FaceMesh); err != nil {
		utils.Logger.Warn("face mesh disabled", zap.Error(err))
	} else {
		landmarker = lm
	}

	var cache service.ResultCache
	var redisService *service.RedisService
	if withCache && cfg.Redis.Enabled {
		redisService = service.NewRedisService(&cfg.Redis)
		if err := redisService.Ping(ctx); err != nil {
			utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
			_ = redisService.Close()
			redisService = nil
		} else {
			utils.Logger.Info("redis connected successfully", zap.String("addr", cfg.Redis.Addr))
			cache = redisService
		}
	}

	processor := service.NewProcessor(cfg, masks, landmarker, cache)
	cleanup := func() {
		if err := processor.Close(); err != nil {
			utils.Logger.Warn("failed to release models", zap.Error(err))
		}
		if redisService != nil {
			_ = redisService.Close()
		}
	}
	return processor, cleanup, nil
}
