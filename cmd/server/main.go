package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cliffyan/go-research-assistant/internal/app"
	"github.com/cliffyan/go-research-assistant/internal/config"
	"github.com/cliffyan/go-research-assistant/internal/logging"
	"github.com/cliffyan/go-research-assistant/internal/mcp"
	"github.com/cliffyan/go-research-assistant/internal/server"
)

func main() {
	// 加载配置
	cfg := config.Load()

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("🔍 Starting go-research-assistant MCP Server...")
	cfg.Print(logger)

	client, err := app.ResearchClient(cfg, app.ServerTokenSource(cfg), logger)
	if err != nil {
		logger.Fatal("❌ Invalid backend configuration", zap.Error(err))
	}

	pageFetcher, closeBrowser := app.Fetcher(cfg, logger)
	defer closeBrowser()

	srv := server.New(cfg, mcp.NewHandler(cfg.MCP, client, pageFetcher, logger), logger)

	// 优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("❌ Server failed", zap.Error(err))
			closeBrowser()
			logger.Sync()
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("🛑 Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("❌ Shutdown failed", zap.Error(err))
		}
	}
}
