package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"irodori/internal/camera"
	"irodori/internal/config"
	"irodori/internal/detector"
	"irodori/internal/generated"
)

// discoveryTimeout はステータス取得時のデバイス検出の上限
const discoveryTimeout = 3 * time.Second

// IrodoriHandler は生成されたServerInterfaceを実装する
type IrodoriHandler struct {
	config    *config.Config
	session   DetectionSession
	discovery camera.Discovery
	emitter   StatsProvider
	logger    *slog.Logger

	closeOnce sync.Once
	closing   chan struct{}
}

// close は実行中のWebSocket配信に終了を知らせる
func (h *IrodoriHandler) close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *IrodoriHandler) HealthCheck(c *gin.Context) {
	response := generated.HealthResponse{
		Status:    generated.HealthResponseStatusHealthy,
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *IrodoriHandler) GetStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), discoveryTimeout)
	defer cancel()

	devices := []generated.DeviceInfo{}
	found, err := h.discovery.ListDevices(ctx)
	if err != nil {
		h.logger.Warn("デバイスの検出に失敗", "error", err)
	}
	for _, d := range found {
		devices = append(devices, generated.DeviceInfo{Device: d.Device, Name: d.Name})
	}

	response := generated.StatusResponse{
		Status: generated.StatusResponseStatusRunning,
		Server: generated.ServerInfo{
			Host: h.config.Server.Host,
			Port: h.config.Server.Port,
		},
		Session:   convertSessionStatus(h.session.Status()),
		Devices:   devices,
		Timestamp: time.Now(),
	}

	if h.emitter != nil {
		stats := h.emitter.Stats()
		var published uint64
		for _, n := range stats.Published {
			published += n
		}
		response.Mqtt = &generated.MqttStats{
			Broker:    stats.Broker,
			Connected: stats.Connected,
			Errors:    int64(stats.Errors),
			Published: int64(published),
		}
	}

	c.JSON(http.StatusOK, response)
}

// StartDetection は検出開始エンドポイントの実装
func (h *IrodoriHandler) StartDetection(c *gin.Context) {
	if err := h.session.Start(c.Request.Context()); err != nil {
		if errors.Is(err, camera.ErrDeviceUnavailable) {
			c.JSON(http.StatusServiceUnavailable, newErrorResponse(
				string(camera.CodeDeviceUnavailable),
				"カメラデバイスを開けませんでした",
				err.Error(),
			))
			return
		}

		h.logger.Error("検出の開始に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, newErrorResponse(
			string(camera.CodeInternal),
			"検出の開始に失敗しました",
			err.Error(),
		))
		return
	}

	sessionID := h.session.ID()
	c.JSON(http.StatusOK, generated.ActionResponse{
		Status:    generated.ActionResponseStatusSuccess,
		Message:   "検出を開始しました",
		SessionId: &sessionID,
	})
}

// StopDetection は検出停止エンドポイントの実装。停止済みでも成功を返す
func (h *IrodoriHandler) StopDetection(c *gin.Context) {
	if err := h.session.Stop(c.Request.Context()); err != nil {
		h.logger.Warn("検出の停止でエラーが発生", "error", err)
	}

	sessionID := h.session.ID()
	c.JSON(http.StatusOK, generated.ActionResponse{
		Status:    generated.ActionResponseStatusSuccess,
		Message:   "検出を停止しました",
		SessionId: &sessionID,
	})
}

// GetDetectionFrame は1フレーム分の検出結果エンドポイントの実装
//
// 検出の成否はHTTPステータスではなくレスポンスのstatusで表す。
func (h *IrodoriHandler) GetDetectionFrame(c *gin.Context, params generated.GetDetectionFrameParams) {
	quality, ok := qualityParam(c, params.Quality)
	if !ok {
		return
	}

	result := h.session.Poll(c.Request.Context(), quality)
	c.JSON(http.StatusOK, convertPollResult(result))
}

// qualityParam はJPEG品質を検証する。0は設定値を使う
func qualityParam(c *gin.Context, quality *int) (int, bool) {
	if quality == nil {
		return 0, true
	}
	if *quality < 1 || *quality > 100 {
		c.JSON(http.StatusBadRequest, newErrorResponse(
			"invalid_request",
			"qualityは1から100の範囲で指定してください",
			"",
		))
		return 0, false
	}
	return *quality, true
}

// ヘルパー関数

// newErrorResponse はエラーレスポンスを作成する
func newErrorResponse(code, message, details string) generated.ErrorResponse {
	response := generated.ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if details != "" {
		response.Details = stringPtr(details)
	}
	return response
}

// parameterErrorHandler はクエリパラメータの変換エラーを返す
func parameterErrorHandler(c *gin.Context, err error, statusCode int) {
	c.JSON(statusCode, newErrorResponse("invalid_request", "パラメータが不正です", err.Error()))
}

// convertColor は検出結果をスキーマに変換する
func convertColor(result detector.Result) *generated.ColorResult {
	rgb := result.RGB.Array()
	region := result.Region.Coords()
	return &generated.ColorResult{
		Hex:          result.Hex,
		Name:         result.Name,
		Rgb:          rgb[:],
		RegionCoords: region[:],
	}
}

// convertPollResult はポーリング結果をスキーマに変換する
func convertPollResult(result camera.PollResult) generated.PollResponse {
	response := generated.PollResponse{
		Timestamp: result.Timestamp,
	}

	switch result.Status {
	case camera.PollSuccess:
		response.Status = generated.PollResponseStatusSuccess
		response.Frame = stringPtr(result.Frame)
		if result.Color != nil {
			response.Color = convertColor(*result.Color)
		}
	case camera.PollInactive:
		response.Status = generated.PollResponseStatusInactive
	default:
		response.Status = generated.PollResponseStatusError
		code := generated.PollResponseError(result.Code)
		response.Error = &code
	}

	if result.Message != "" {
		response.Message = stringPtr(result.Message)
	}
	return response
}

// convertSessionStatus はセッションの状態をスキーマに変換する
func convertSessionStatus(status camera.SessionStatus) generated.SessionInfo {
	info := generated.SessionInfo{
		Id:      status.ID,
		State:   generated.SessionInfoState(status.State),
		Running: status.Running,
		Driver:  string(status.Driver),
		Device:  status.Device,
	}
	if status.LastResult != nil {
		info.LastResult = convertColor(*status.LastResult)
		updated := status.LastUpdated
		info.LastUpdated = &updated
	}
	return info
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}
