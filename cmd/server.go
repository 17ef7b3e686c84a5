// Package main はirodoriサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"irodori/internal/app"
	"irodori/internal/config"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath = flag.String("config", "", "設定ファイルのパス (デフォルト: $"+config.ConfigPathEnv+")")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("irodori - リアルタイム主要色検出サーバー")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// .envがあれば環境変数として読み込む
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf(".envの読み込みに失敗しました: %v", err)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
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
