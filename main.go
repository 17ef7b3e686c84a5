package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"irodori/internal/app"
	"irodori/internal/config"
)

func main() {
	_ = godotenv.Load()

	// 設定を読み込む
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	logger, err := app.NewLogger(cfg, os.Stdout)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	slog.SetDefault(logger)

	// サーバーを起動
	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.Error("サーバーが異常終了しました", "error", err)
		os.Exit(1)
	}
}
