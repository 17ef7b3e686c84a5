package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"irodori/internal/detector"
	"irodori/internal/frame"
	"irodori/internal/palette"
)

// 既定のタイムアウト
const (
	DefaultOpenTimeout    = 5 * time.Second
	DefaultReadTimeout    = 2 * time.Second
	defaultPublishTimeout = 2 * time.Second
)

// Publisher は検出結果を外部へ送る
type Publisher interface {
	Publish(ctx context.Context, sessionID string, result detector.Result, at time.Time) error
}

// PollStatus はポーリング結果の種別
type PollStatus string

const (
	PollSuccess  PollStatus = "success"
	PollInactive PollStatus = "inactive"
	PollError    PollStatus = "error"
)

// ErrorCode はポーリングが失敗した理由
type ErrorCode string

const (
	CodeDeviceUnavailable ErrorCode = "device_unavailable"
	CodeNoFrame           ErrorCode = "no_frame"
	CodeEmptyRegion       ErrorCode = "empty_region"
	CodeEncodingFailed    ErrorCode = "encoding_failed"
	CodeInternal          ErrorCode = "internal"
)

// ErrorCodeOf はエラーを対応するコードに変換する
func ErrorCodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrDeviceUnavailable), errors.Is(err, ErrNotRunning):
		return CodeDeviceUnavailable
	case errors.Is(err, ErrNoFrame):
		return CodeNoFrame
	case errors.Is(err, palette.ErrEmptyRegion):
		return CodeEmptyRegion
	case errors.Is(err, frame.ErrEncoding):
		return CodeEncodingFailed
	default:
		return CodeInternal
	}
}

// PollResult は1回のポーリング結果
type PollResult struct {
	Status    PollStatus
	Frame     string // data:image/jpeg;base64,... 形式
	Color     *detector.Result
	Code      ErrorCode
	Message   string
	Timestamp time.Time
}

// SessionStatus はセッションの状態のスナップショット
type SessionStatus struct {
	ID          string           `json:"id"`
	State       State            `json:"state"`
	Running     bool             `json:"running"`
	Driver      DriverType       `json:"driver"`
	Device      string           `json:"device"`
	LastResult  *detector.Result `json:"last_result,omitempty"`
	LastUpdated time.Time        `json:"last_updated"`
}

// SessionConfig はセッションの設定
type SessionConfig struct {
	Driver      DriverType
	Source      Source
	OpenTimeout time.Duration
	ReadTimeout time.Duration
	JPEGQuality int
}

// SessionOption はセッションの任意設定
type SessionOption func(*Session)

// WithDeviceFactory はデバイスを開くファクトリーを差し替える
func WithDeviceFactory(factory DeviceFactory) SessionOption {
	return func(s *Session) { s.factory = factory }
}

// WithClaims はデバイスの排他制御に使うレジストリを差し替える
func WithClaims(claims *ClaimRegistry) SessionOption {
	return func(s *Session) { s.claims = claims }
}

// WithPublisher は検出結果の送信先を設定する
func WithPublisher(publisher Publisher) SessionOption {
	return func(s *Session) { s.publisher = publisher }
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// Session はカメラデバイスの保持と取得、処理、エンコードの1サイクルを管理する
//
// サイクルはmuで直列化される。Stopは実行中のサイクルのコンテキストを
// キャンセルしてから muを取るため、読み取り待ちのポーリングはすぐに戻る。
type Session struct {
	id        string
	cfg       SessionConfig
	key       string
	processor *detector.Processor
	factory   DeviceFactory
	claims    *ClaimRegistry
	publisher Publisher
	logger    *slog.Logger

	mu     sync.Mutex
	device Device

	stateMu sync.RWMutex
	state   State

	running atomic.Bool
	stopGen atomic.Uint64 // Stop/Releaseのたびに増える

	cancelMu    sync.Mutex
	cancelCycle context.CancelFunc

	lastMu sync.RWMutex
	last   *detector.Result
	lastAt time.Time
}

// NewSession は新しいセッションを作成する。デバイスはまだ開かない
func NewSession(cfg SessionConfig, processor *detector.Processor, opts ...SessionOption) *Session {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = frame.DefaultJPEGQuality
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		key:       DeviceKey(cfg.Driver, cfg.Source),
		processor: processor,
		state:     StateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factory == nil {
		s.factory = NewDeviceFactory()
	}
	if s.claims == nil {
		s.claims = DefaultClaims
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session_id", s.id)

	return s
}

// ID はセッションIDを返す
func (s *Session) ID() string {
	return s.id
}

// State は現在の状態を返す
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Running は検出中かどうかを返す
func (s *Session) Running() bool {
	return s.running.Load()
}

func (s *Session) setState(state State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

// Initialize はデバイスを確保して開く。既に開いていれば何もしない
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Session) initializeLocked(ctx context.Context) error {
	if s.State() == StateOpen {
		return nil
	}

	if err := s.claims.Claim(s.key, s.id); err != nil {
		return err
	}

	openCtx, cancel := context.WithTimeout(ctx, s.cfg.OpenTimeout)
	defer cancel()

	device, err := s.factory.Open(openCtx, s.cfg.Driver, s.cfg.Source)
	if err != nil {
		s.claims.Release(s.key, s.id)
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		s.logger.Warn("デバイスを開けませんでした", "device", s.key, "error", err)
		return err
	}

	s.device = device
	s.setState(StateOpen)
	s.logger.Info("デバイスを開きました", "driver", s.cfg.Driver, "device", s.key)
	return nil
}

// AcquireFrame は開いているデバイスから1フレームを読む
func (s *Session) AcquireFrame(ctx context.Context) (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquireLocked(ctx)
}

func (s *Session) acquireLocked(ctx context.Context) (*frame.Frame, error) {
	if s.State() != StateOpen || !s.running.Load() {
		return nil, ErrNotRunning
	}

	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	f, err := s.device.Read(readCtx)
	if err != nil {
		if !errors.Is(err, ErrNoFrame) {
			err = fmt.Errorf("%w: %v", ErrNoFrame, err)
		}
		return nil, err
	}
	if f.Empty() {
		return nil, fmt.Errorf("%w: 空のフレーム", ErrNoFrame)
	}
	return f, nil
}

// Release はデバイスを閉じる。既に閉じていれば何もしない
func (s *Session) Release(_ context.Context) error {
	s.halt()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running.Store(false)
	return s.releaseLocked()
}

// halt は検出を止め、実行中のサイクルや開始処理をキャンセルする
func (s *Session) halt() {
	s.stopGen.Add(1)
	s.running.Store(false)

	s.cancelMu.Lock()
	if s.cancelCycle != nil {
		s.cancelCycle()
	}
	s.cancelMu.Unlock()
}

// beginCycle はStopでキャンセルされるコンテキストを登録する。muを保持して呼ぶ
func (s *Session) beginCycle(ctx context.Context) (context.Context, func()) {
	cycleCtx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancelCycle = cancel
	s.cancelMu.Unlock()

	return cycleCtx, func() {
		s.cancelMu.Lock()
		s.cancelCycle = nil
		s.cancelMu.Unlock()
		cancel()
	}
}

func (s *Session) releaseLocked() error {
	if s.State() != StateOpen {
		return nil
	}

	err := s.device.Close()
	s.device = nil
	s.claims.Release(s.key, s.id)
	s.setState(StateClosed)

	if err != nil {
		return fmt.Errorf("デバイスの解放に失敗: %w", err)
	}
	s.logger.Info("デバイスを解放しました", "device", s.key)
	return nil
}

// Start はデバイスを開いて検出を開始する。既に開始していれば何もしない
//
// 開始中にStopが呼ばれた場合は停止を優先し、開いたデバイスを解放してnilを返す。
func (s *Session) Start(ctx context.Context) error {
	gen := s.stopGen.Load()

	s.mu.Lock()
	defer s.mu.Unlock()

	startCtx, done := s.beginCycle(ctx)
	defer done()

	stopped := func() bool { return s.stopGen.Load() != gen }
	if stopped() {
		return nil
	}

	err := s.initializeLocked(startCtx)
	if stopped() {
		if releaseErr := s.releaseLocked(); releaseErr != nil {
			s.logger.Warn("停止時のデバイス解放に失敗", "error", releaseErr)
		}
		s.logger.Info("開始中に停止されました")
		return nil
	}
	if err != nil {
		return err
	}
	s.running.Store(true)
	return nil
}

// Stop は検出を停止してデバイスを解放する。何度呼んでもよい
func (s *Session) Stop(_ context.Context) error {
	// 読み取り待ちのサイクルを先に終わらせる
	s.halt()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running.Store(false)

	if err := s.releaseLocked(); err != nil {
		// 停止自体は成功として扱う
		s.logger.Warn("停止時のデバイス解放に失敗", "error", err)
	}
	return nil
}

// Poll は1回分の取得、処理、エンコードを行う
//
// qualityが0の場合は設定のJPEG品質を使う。
// 検出中でない場合はデバイスに触れずにPollInactiveを返す。
func (s *Session) Poll(ctx context.Context, quality int) PollResult {
	if !s.running.Load() {
		return s.inactive()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cycleCtx, done := s.beginCycle(ctx)
	defer done()

	// キャンセル関数を登録する前に停止された
	if !s.running.Load() || s.State() != StateOpen {
		return s.inactive()
	}

	if quality == 0 {
		quality = s.cfg.JPEGQuality
	}

	f, err := s.acquireLocked(cycleCtx)
	if err != nil {
		if !s.running.Load() || errors.Is(err, ErrNotRunning) {
			return s.inactive()
		}
		return s.failed(err)
	}

	annotated, result, err := s.processor.Process(f)
	if err != nil {
		return s.failed(err)
	}

	payload, err := frame.EncodeBase64(annotated, quality)
	if err != nil {
		return s.failed(err)
	}

	now := time.Now()
	s.lastMu.Lock()
	s.last = &result
	s.lastAt = now
	s.lastMu.Unlock()

	s.publish(ctx, result, now)

	return PollResult{
		Status:    PollSuccess,
		Frame:     frame.DataURI(payload),
		Color:     &result,
		Timestamp: now,
	}
}

func (s *Session) publish(ctx context.Context, result detector.Result, at time.Time) {
	if s.publisher == nil {
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(publishCtx, s.id, result, at); err != nil {
		s.logger.Warn("検出結果の送信に失敗", "error", err)
	}
}

func (s *Session) inactive() PollResult {
	return PollResult{
		Status:    PollInactive,
		Message:   "検出は停止中です",
		Timestamp: time.Now(),
	}
}

func (s *Session) failed(err error) PollResult {
	code := ErrorCodeOf(err)
	s.logger.Debug("ポーリングに失敗", "code", code, "error", err)
	return PollResult{
		Status:    PollError,
		Code:      code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
}

// LastResult は最後に成功した検出結果を返す
func (s *Session) LastResult() (detector.Result, time.Time, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()

	if s.last == nil {
		return detector.Result{}, time.Time{}, false
	}
	return *s.last, s.lastAt, true
}

// Status はセッションの状態を返す
func (s *Session) Status() SessionStatus {
	status := SessionStatus{
		ID:      s.id,
		State:   s.State(),
		Running: s.running.Load(),
		Driver:  s.cfg.Driver,
		Device:  s.key,
	}
	if result, at, ok := s.LastResult(); ok {
		status.LastResult = &result
		status.LastUpdated = at
	}
	return status
}
