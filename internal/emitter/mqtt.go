package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"irodori/internal/detector"
)

// ErrNotConnected はブローカーに接続していないことを表す
var ErrNotConnected = errors.New("MQTTブローカーに接続していません")

// Config はMQTT送信の設定
type Config struct {
	Broker         string        // host:port または tcp://host:port
	Topic          string        // 送信先トピック
	QoS            byte          // 0, 1, 2
	Format         Format        // ペイロード形式
	ClientID       string        // 空ならUUIDから作る
	ConnectTimeout time.Duration // 接続待ちの上限
	PublishTimeout time.Duration // 1件の送信待ちの上限
}

// Stats は送信の統計
type Stats struct {
	Connected bool              `json:"connected"`
	Broker    string            `json:"broker"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// MQTTEmitter は検出結果をMQTTブローカーへ送信する
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client
	logger *slog.Logger

	mu        sync.RWMutex
	published map[string]uint64 // トピックごとの送信数
	errors    uint64
	connected bool
}

// NewMQTTEmitter は新しいMQTTEmitterを作成する
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	if cfg.ClientID == "" {
		cfg.ClientID = "irodori-" + uuid.NewString()
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	return &MQTTEmitter{
		cfg:       cfg,
		logger:    slog.Default().With("component", "mqtt"),
		published: make(map[string]uint64),
	}
}

// brokerURL はスキームのないブローカー指定にtcp://を付ける
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect はブローカーに接続する。切断後は自動で再接続する
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("MQTTブローカーに接続しました", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("MQTT接続が切れました。自動で再接続します", "broker", e.cfg.Broker, "error", err)
	}

	e.client = mqtt.NewClient(opts)

	e.logger.Info("MQTTブローカーに接続中", "broker", e.cfg.Broker)

	token := e.client.Connect()
	if err := waitToken(ctx, token, e.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("MQTT接続に失敗: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Publish は検出結果を1件送信する
func (e *MQTTEmitter) Publish(ctx context.Context, sessionID string, result detector.Result, at time.Time) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := e.cfg.Format.Marshal(NewMessage(sessionID, result, at))
	if err != nil {
		e.countError()
		return fmt.Errorf("ペイロードのエンコードに失敗: %w", err)
	}

	token := e.client.Publish(e.cfg.Topic, e.cfg.QoS, false, payload)
	if err := waitToken(ctx, token, e.cfg.PublishTimeout); err != nil {
		e.countError()
		return fmt.Errorf("送信に失敗: %w", err)
	}

	e.mu.Lock()
	e.published[e.cfg.Topic]++
	e.mu.Unlock()

	e.logger.Debug("検出結果を送信しました",
		"topic", e.cfg.Topic,
		"qos", e.cfg.QoS,
		"size", len(payload),
	)
	return nil
}

// waitToken はトークンの完了をtimeoutかctxの終了まで待つ
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("タイムアウト (%s)", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect は接続を閉じる
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("MQTTブローカーから切断しました")
	}
	e.setConnected(false)
}

// Stats は送信の統計を返す
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Broker:    e.cfg.Broker,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = connected
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors++
}
