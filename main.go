package main

import (
	"fmt"
	"os"

	"github.com/TIANLI0/MatteKit/handler"
	"github.com/earthboundkid/versioninfo/v2"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func buildInfo() handler.BuildInfo {
	info := handler.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
	}
	// 未通过 ldflags 注入时使用 go 构建信息
	if info.Version == "dev" {
		info.Version = versioninfo.Short()
	}
	if info.GitCommit == "unknown" {
		info.GitCommit = versioninfo.Revision
	}
	return info
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mattekit",
		Short: "Image filters, face mesh overlay and background matting over HTTP",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve [--config <path>]",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), configPath)
		},
	}

	var opts processOptions
	processCmd := &cobra.Command{
		Use:   "process --action <action> --in <file> --out <file>",
		Short: "Process a single local image and write the PNG result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProcess(cmd.Context(), configPath, opts)
		},
	}
	processCmd.Flags().StringVar(&opts.Action, "action", "", "Action to apply (grayscale, blur, sepia, edge_detection, face_mesh, threshold, remove_bg, replace_bg)")
	processCmd.Flags().StringVar(&opts.Input, "in", "", "Foreground image path")
	processCmd.Flags().StringVar(&opts.Background, "bg", "", "Background image path for replace_bg")
	processCmd.Flags().StringVar(&opts.BackgroundMode, "bg-mode", "", "Background mode for replace_bg (image or color)")
	processCmd.Flags().StringVar(&opts.BackgroundColor, "bg-color", "", "Background hex color for color mode, e.g. #00FF00")
	processCmd.Flags().StringVar(&opts.Output, "out", "output.png", "Output PNG path")
	_ = processCmd.MarkFlagRequired("action")
	_ = processCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(serveCmd, processCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
