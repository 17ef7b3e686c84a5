package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"irodori/internal/camera"
	"irodori/internal/config"
	"irodori/internal/emitter"
	"irodori/internal/generated"
)

// DetectionSession はHTTP層から操作する検出セッション
type DetectionSession interface {
	ID() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Poll(ctx context.Context, quality int) camera.PollResult
	Status() camera.SessionStatus
}

// StatsProvider はMQTT送信の統計を返す
type StatsProvider interface {
	Stats() emitter.Stats
}

// Options はサーバーが使う依存関係
type Options struct {
	Session   DetectionSession
	Discovery camera.Discovery
	Emitter   StatsProvider // MQTTが無効ならnil
	Logger    *slog.Logger
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	engine     *gin.Engine
	handler    *IrodoriHandler
	logger     *slog.Logger
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, opts Options) (*Server, error) {
	if opts.Session == nil {
		return nil, errors.New("検出セッションが指定されていません")
	}
	if opts.Discovery == nil {
		opts.Discovery = camera.NewLinuxDiscovery()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	handler := &IrodoriHandler{
		config:    cfg,
		session:   opts.Session,
		discovery: opts.Discovery,
		emitter:   opts.Emitter,
		logger:    opts.Logger,
		closing:   make(chan struct{}),
	}

	s := &Server{
		config:  cfg,
		handler: handler,
		logger:  opts.Logger,
	}

	engine, err := s.setupRoutes()
	if err != nil {
		return nil, err
	}
	s.engine = engine

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// setupRoutes はginのルートを設定する
func (s *Server) setupRoutes() (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))

	if s.config.Server.ValidateRequests {
		validator, err := newRequestValidator()
		if err != nil {
			return nil, err
		}
		engine.Use(validator)
	}

	generated.RegisterHandlersWithOptions(engine, s.handler, generated.GinServerOptions{
		ErrorHandler: parameterErrorHandler,
	})

	// ビューア
	engine.GET("/", serveIndex)
	engine.GET("/index.html", serveIndex)

	return engine, nil
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", "address", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", "signal", sig.String())
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// WebSocket配信を終わらせ、カメラを解放する
	s.handler.close()
	if err := s.handler.session.Stop(ctx); err != nil {
		s.logger.Warn("検出セッションの停止に失敗", "error", err)
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
