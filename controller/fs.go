package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"

	"remotefs/websocket"
)

type FSController struct {
	handler *websocket.Handler
}

func NewFSController(handler *websocket.Handler) *FSController {
	return &FSController{handler: handler}
}

// Serve upgrades the request and runs the file protocol until the connection closes.
func (fc *FSController) Serve(c *gin.Context) {
	if !ws.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "websocket upgrade required"})
		return
	}
	fc.handler.ServeHTTP(c.Writer, c.Request)
}

func (fc *FSController) Health(c *gin.Context) {
	caps := fc.handler.Capabilities()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"sessions":    fc.handler.SessionCount(),
		"allowWrite":  caps.AllowWrite,
		"allowDelete": caps.AllowDelete,
	})
}
