package main

import (
	"context"
	"os"

	"alcyxob/attachment-offload/internal/app"
	"alcyxob/attachment-offload/internal/config"
	"alcyxob/attachment-offload/internal/logging"
)

func main() {
	if err := newRootCommand(openApp).Execute(); err != nil {
		os.Exit(1)
	}
}

func openApp(ctx context.Context, configPath string) (*deps, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "console"}); err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		_ = a.Close()
		_ = logging.Sync()
	}
	return &deps{Registry: a.Registry, Migrator: a.Migrator, Status: a.Status}, closeFn, nil
}
