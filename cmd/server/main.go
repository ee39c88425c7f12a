package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gowvp/tams/internal/app"
	"github.com/gowvp/tams/internal/conf"
)

var buildVersion = "dev"

func main() {
	var configPath string
	flag.StringVar(&configPath, "conf", "configs/config.toml", "配置文件路径")
	flag.Parse()

	bc, err := conf.SetupConfig(configPath)
	if err != nil {
		slog.Error("load config", "path", configPath, "err", err)
		os.Exit(1)
	}
	bc.BuildVersion = buildVersion

	level := slog.LevelInfo
	if bc.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, bc, log); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}
