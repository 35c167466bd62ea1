package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Index 处理 GET /，返回服务描述
func Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":   "together-stream",
		"status": "running",
		"endpoints": gin.H{
			"health":     "GET /health",
			"createRoom": "POST /api/rooms",
			"getRoom":    "GET /api/rooms/:roomId",
			"websocket":  "GET /ws",
		},
	})
}

// Health 处理 GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
