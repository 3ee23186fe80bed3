package controller

import (
	"github.com/gin-gonic/gin"

	"remotefs/metrics"
	"remotefs/websocket"
)

func SetupRoutes(r *gin.Engine, handler *websocket.Handler, withMetrics bool) {
	fsController := NewFSController(handler)

	r.GET("/fs", fsController.Serve)
	r.GET("/healthz", fsController.Health)

	if withMetrics {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
}
