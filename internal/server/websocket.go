package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"irodori/internal/config"
	"irodori/internal/generated"
)

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// ビューアは同一オリジンから配信されるが、ローカル検証用に他オリジンも許可する
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamDetection はWebSocketで検出結果を配信するエンドポイントの実装
//
// 接続中はintervalごとにポーリングし、PollResponseをJSONで送り続ける。
// クライアントからのメッセージは読み捨て、切断の検知にだけ使う。
func (h *IrodoriHandler) StreamDetection(c *gin.Context, params generated.StreamDetectionParams) {
	interval := h.config.Stream.Interval
	if params.IntervalMs != nil {
		interval = time.Duration(*params.IntervalMs) * time.Millisecond
		if interval < config.MinStreamInterval || interval > config.MaxStreamInterval {
			c.JSON(http.StatusBadRequest, newErrorResponse(
				"invalid_request",
				"interval_msは50から5000の範囲で指定してください",
				"",
			))
			return
		}
	}

	quality, ok := qualityParam(c, params.Quality)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgraderがエラーレスポンスを書き込み済み
		h.logger.Debug("WebSocketへの切り替えに失敗", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	h.logger.Info("WebSocket配信を開始", "remote", c.ClientIP(), "interval", interval)

	// 切断検知
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		response := convertPollResult(h.session.Poll(ctx, quality))

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(response); err != nil {
			h.logger.Debug("WebSocketへの書き込みに失敗", "error", err)
			return
		}

		select {
		case <-gone:
			h.logger.Info("WebSocket配信を終了", "remote", c.ClientIP())
			return
		case <-h.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(time.Second))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
