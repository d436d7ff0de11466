package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Depado/ginprom"
	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/handler"
	"github.com/TIANLI0/MatteKit/utils"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func runServer(ctx context.Context, configPath string) error {
	// 加载配置
	cfg := config.New(configPath)

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.Sync()

	build := buildInfo()
	utils.Logger.Info("starting MatteKit server",
		zap.String("version", build.Version),
		zap.String("build_time", build.BuildTime),
		zap.String("git_commit", build.GitCommit),
		zap.String("git_branch", build.GitBranch))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor, cleanup, err := newProcessor(ctx, cfg, true)
	if err != nil {
		utils.Logger.Error("failed to initialize processor", zap.Error(err))
		return err
	}
	defer cleanup()

	gin.SetMode(cfg.Server.Mode)

	opts := []handler.RouterOption{metrics}
	if cfg.Server.Debug {
		utils.Logger.Warn("pprof endpoints are enabled and exposed, do not run with debug in production")
		opts = append(opts, func(r *gin.Engine) { pprof.Register(r) })
	}

	r := handler.NewRouter(cfg,
		handler.NewProcessHandler(cfg, processor),
		handler.NewSystemHandler(build),
		opts...)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Error("failed to start server", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	utils.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// metrics 注册 Prometheus 指标
func metrics(r *gin.Engine) {
	p := ginprom.New(
		ginprom.Engine(r),
		ginprom.Path("/metrics"),
		ginprom.Ignore("/health"),
	)
	r.Use(p.Instrument())
}
