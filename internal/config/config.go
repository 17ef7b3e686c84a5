package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv は設定ファイルのパスを指定する環境変数
const ConfigPathEnv = "IRODORI_CONFIG"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Detection DetectionConfig `yaml:"detection"`
	Stream    StreamConfig    `yaml:"stream"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // グレースフルシャットダウンの待ち時間

	// ValidateRequests はOpenAPI定義によるリクエスト検証を有効にする
	ValidateRequests bool `yaml:"validate_requests"`
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Driver string `yaml:"driver"` // v4l2, image, gocv, x11
	Index  int    `yaml:"index"`  // デバイス番号
	Path   string `yaml:"path"`   // デバイスパスまたは画像ファイル

	FPS    int `yaml:"fps"`    // フレームレート (fps)
	Width  int `yaml:"width"`  // 画像幅
	Height int `yaml:"height"` // 画像高さ

	OpenTimeout time.Duration `yaml:"open_timeout"` // デバイスを開く待ち時間
	ReadTimeout time.Duration `yaml:"read_timeout"` // 1フレームの読み取り待ち時間
	JPEGQuality int           `yaml:"jpeg_quality"` // 転送用JPEGの品質 (1-100)
}

// DetectionConfig は支配色検出の設定
type DetectionConfig struct {
	RegionRatio   float64 `yaml:"region_ratio"`   // 注目領域の割合 (0, 1]
	Clusters      int     `yaml:"clusters"`       // k-meansのクラスタ数
	SampleSize    int     `yaml:"sample_size"`    // 縮小後の一辺の画素数
	Restarts      int     `yaml:"restarts"`       // k-meansの初期化回数
	MaxIterations int     `yaml:"max_iterations"` // k-meansの最大反復回数
	Seed          uint64  `yaml:"seed"`           // 乱数シード
}

// StreamConfig はWebSocket配信の設定
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"` // 既定の配信間隔
}

// MQTTConfig はMQTT送信の設定
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`    // host:port
	Topic    string `yaml:"topic"`     // 送信先トピック
	QoS      byte   `yaml:"qos"`       // 0, 1, 2
	Format   string `yaml:"format"`    // json, msgpack
	ClientID string `yaml:"client_id"` // 空なら自動生成
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ストリーム配信間隔の範囲
const (
	MinStreamInterval = 50 * time.Millisecond
	MaxStreamInterval = 5 * time.Second
)

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     0, // WebSocket配信用にタイムアウト無効化
			ShutdownTimeout:  30 * time.Second,
			ValidateRequests: true,
		},
		Camera: CameraConfig{
			Driver:      "v4l2",
			Index:       0,
			FPS:         15,
			Width:       640,
			Height:      480,
			OpenTimeout: 5 * time.Second,
			ReadTimeout: 2 * time.Second,
			JPEGQuality: 80,
		},
		Detection: DetectionConfig{
			RegionRatio:   0.5,
			Clusters:      3,
			SampleSize:    100,
			Restarts:      10,
			MaxIterations: 300,
			Seed:          42,
		},
		Stream: StreamConfig{
			Interval: 100 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker:  "localhost:1883",
			Topic:   "irodori/color",
			QoS:     0,
			Format:  "json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は設定を読み込む
//
// デフォルト値、設定ファイル（pathが空ならIRODORI_CONFIG）、環境変数の順に上書きし、
// 最後に検証する。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile はYAMLファイルの値で設定を上書きする
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
	}
	return nil
}

// applyEnv は環境変数の値で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)

	c.Camera.Driver = getEnvOrDefault("CAMERA_DRIVER", c.Camera.Driver)
	c.Camera.Index = getEnvAsIntOrDefault("CAMERA_INDEX", c.Camera.Index)
	c.Camera.Path = getEnvOrDefault("CAMERA_PATH", c.Camera.Path)

	// ブローカーが指定されたら送信を有効にする
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
		c.MQTT.Enabled = true
	}

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("タイムアウトに負の値は指定できません")
	}

	// カメラ設定の検証
	switch c.Camera.Driver {
	case "v4l2", "gocv":
		if c.Camera.Index < 0 {
			return fmt.Errorf("無効なデバイス番号: %d", c.Camera.Index)
		}
	case "image":
		if c.Camera.Path == "" {
			return fmt.Errorf("imageドライバには camera.path が必要です")
		}
	case "x11":
		// pathが空ならDISPLAYを使う
	default:
		return fmt.Errorf("サポートされていないドライバ: %q", c.Camera.Driver)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 {
		return fmt.Errorf("無効な解像度またはフレームレート: %dx%d@%d", c.Camera.Width, c.Camera.Height, c.Camera.FPS)
	}
	if c.Camera.OpenTimeout <= 0 || c.Camera.ReadTimeout <= 0 {
		return fmt.Errorf("カメラのタイムアウトは正の値が必要です")
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		return fmt.Errorf("無効なJPEG品質: %d", c.Camera.JPEGQuality)
	}

	// 検出設定の検証
	d := c.Detection
	if d.RegionRatio <= 0 || d.RegionRatio > 1 {
		return fmt.Errorf("無効な領域比率: %v", d.RegionRatio)
	}
	if d.Clusters < 1 {
		return fmt.Errorf("クラスタ数は1以上が必要です: %d", d.Clusters)
	}
	if d.SampleSize < 1 || d.Restarts < 1 || d.MaxIterations < 1 {
		return fmt.Errorf("無効なクラスタリング設定: sample_size=%d restarts=%d max_iterations=%d", d.SampleSize, d.Restarts, d.MaxIterations)
	}

	// 配信設定の検証
	if c.Stream.Interval < MinStreamInterval || c.Stream.Interval > MaxStreamInterval {
		return fmt.Errorf("無効な配信間隔: %s (%s から %s)", c.Stream.Interval, MinStreamInterval, MaxStreamInterval)
	}

	// MQTT設定の検証
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" || c.MQTT.Topic == "" {
			return fmt.Errorf("MQTTにはブローカーとトピックが必要です")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("無効なQoS: %d", c.MQTT.QoS)
		}
		if c.MQTT.Format != "json" && c.MQTT.Format != "msgpack" {
			return fmt.Errorf("サポートされていないペイロード形式: %q", c.MQTT.Format)
		}
	}

	// ログ設定の検証
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("サポートされていないログ形式: %q", c.Log.Format)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LogLevel はログレベルをslog.Levelに変換する
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("無効なログレベル: %q", c.Log.Level)
	}
	return level, nil
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
