package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"

	"irodori/internal/generated"
)

// requestLogger はリクエストをslogに記録するginミドルウェア
//
// フレームのポーリングは高頻度なのでDebugで記録する。
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		case strings.HasPrefix(c.Request.URL.Path, "/api/detection/frame"):
			level = slog.LevelDebug
		}

		logger.LogAttrs(c.Request.Context(), level, "HTTPリクエスト",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// newRequestValidator はOpenAPI定義でリクエストを検証するginミドルウェアを作る
//
// 定義にないパス（ビューアなど）は検証せずに通す。
func newRequestValidator() (gin.HandlerFunc, error) {
	doc, err := generated.GetSwagger()
	if err != nil {
		return nil, err
	}
	// ホスト名に関係なくパスだけで照合する
	doc.Servers = nil

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("OpenAPIルーターの作成に失敗: %w", err)
	}

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         false,
	}

	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    options,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, newErrorResponse(
				"invalid_request",
				"リクエストが不正です",
				err.Error(),
			))
			return
		}

		c.Next()
	}, nil
}
