package handler

import (
	"os"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/middleware"
	"github.com/gin-gonic/gin"
)

// RouterOption 在业务路由注册之前对引擎做额外配置（指标、pprof 等）
type RouterOption func(r *gin.Engine)

// NewRouter 注册中间件与路由
func NewRouter(cfg *config.Config, process *ProcessHandler, system *SystemHandler, opts ...RouterOption) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxSize
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger("/health", "/metrics"))
	r.Use(middleware.CORS())
	for _, opt := range opts {
		opt(r)
	}

	// 前端静态页面，目录不存在时跳过
	if info, err := os.Stat(cfg.Server.StaticDir); err == nil && info.IsDir() {
		r.Static("/static", cfg.Server.StaticDir)
		r.StaticFile("/", cfg.Server.StaticDir+"/index.html")
	}

	r.GET("/health", system.Health)
	r.GET("/version", system.Version)

	api := r.Group("/api")
	{
		api.POST("/process-image", process.ProcessImage)
	}

	return r
}
