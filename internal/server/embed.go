package server

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed all:dist
var embedFS embed.FS

// serveIndex はビューアのindex.htmlを返す
func serveIndex(c *gin.Context) {
	data, err := embedFS.ReadFile("dist/index.html")
	if err != nil {
		c.JSON(http.StatusInternalServerError, newErrorResponse(
			"internal",
			"ビューアの読み込みに失敗しました",
			err.Error(),
		))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}
