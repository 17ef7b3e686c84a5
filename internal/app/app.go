// Package app は設定から各コンポーネントを組み立ててサーバーを動かす
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"irodori/internal/camera"
	"irodori/internal/config"
	"irodori/internal/detector"
	"irodori/internal/emitter"
	"irodori/internal/palette"
	"irodori/internal/server"
)

// NewLogger はログ設定からslogのロガーを作る
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("サポートされていないログ形式: %q", cfg.Log.Format)
	}
}

// ProcessorOptions は検出設定をフレーム処理の設定に変換する
func ProcessorOptions(cfg config.DetectionConfig) detector.Options {
	opts := detector.DefaultOptions()
	opts.RegionRatio = cfg.RegionRatio
	opts.Extractor = palette.ExtractorOptions{
		KMeans: palette.KMeansOptions{
			K:             cfg.Clusters,
			Restarts:      cfg.Restarts,
			MaxIterations: cfg.MaxIterations,
			Tolerance:     palette.DefaultTolerance,
			Seed:          cfg.Seed,
		},
		SampleWidth:  cfg.SampleSize,
		SampleHeight: cfg.SampleSize,
	}
	return opts
}

// SessionConfig はカメラ設定をセッションの設定に変換する
func SessionConfig(cfg config.CameraConfig) camera.SessionConfig {
	return camera.SessionConfig{
		Driver: camera.DriverType(cfg.Driver),
		Source: camera.Source{
			Index:  cfg.Index,
			Path:   cfg.Path,
			Width:  cfg.Width,
			Height: cfg.Height,
			FPS:    cfg.FPS,
		},
		OpenTimeout: cfg.OpenTimeout,
		ReadTimeout: cfg.ReadTimeout,
		JPEGQuality: cfg.JPEGQuality,
	}
}

// Run はサーバーを組み立てて起動し、停止するまでブロックする
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	processor, err := detector.NewProcessor(ProcessorOptions(cfg.Detection))
	if err != nil {
		return fmt.Errorf("フレーム処理の初期化に失敗: %w", err)
	}

	sessionOpts := []camera.SessionOption{camera.WithLogger(logger)}
	serverOpts := server.Options{Logger: logger}

	if cfg.MQTT.Enabled {
		format, err := emitter.ParseFormat(cfg.MQTT.Format)
		if err != nil {
			return err
		}

		mqttEmitter := emitter.NewMQTTEmitter(emitter.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Format:   format,
			ClientID: cfg.MQTT.ClientID,
		})
		// 接続できなくても検出は続け、再接続に任せる
		if err := mqttEmitter.Connect(ctx); err != nil {
			logger.Warn("MQTTブローカーに接続できません", "broker", cfg.MQTT.Broker, "error", err)
		}
		defer mqttEmitter.Disconnect()

		sessionOpts = append(sessionOpts, camera.WithPublisher(mqttEmitter))
		serverOpts.Emitter = mqttEmitter
	}

	session := camera.NewSession(SessionConfig(cfg.Camera), processor, sessionOpts...)
	serverOpts.Session = session

	srv, err := server.New(cfg, serverOpts)
	if err != nil {
		return fmt.Errorf("サーバーの作成に失敗: %w", err)
	}

	logger.Info("irodori サーバーを起動します",
		"address", cfg.ServerAddress(),
		"driver", cfg.Camera.Driver,
		"mqtt", cfg.MQTT.Enabled,
	)
	return srv.Start(ctx)
}
