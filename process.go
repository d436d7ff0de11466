package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/service"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
)

type processOptions struct {
	Action          string
	Input           string
	Background      string
	BackgroundMode  string
	BackgroundColor string
	Output          string
}

func runProcess(ctx context.Context, configPath string, opts processOptions) error {
	cfg := config.New(configPath)
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.Sync()

	req := &service.ProcessRequest{
		Action:          opts.Action,
		BackgroundMode:  opts.BackgroundMode,
		BackgroundColor: opts.BackgroundColor,
	}

	var err error
	if req.Image, err = os.ReadFile(opts.Input); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if opts.Background != "" {
		if req.Background, err = os.ReadFile(opts.Background); err != nil {
			return fmt.Errorf("read background: %w", err)
		}
	}

	processor, cleanup, err := newProcessor(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := processor.Process(ctx, req)
	if err != nil {
		return err
	}

	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	utils.Logger.Info("image written",
		zap.String("action", result.Action),
		zap.String("output", opts.Output),
		zap.String("execution_time", result.ExecutionTime()),
		zap.Int("width", result.Width),
		zap.Int("height", result.Height))
	return nil
}
