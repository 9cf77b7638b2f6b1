// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter wires the HTTP routes. debug keeps gin in its verbose mode.
func SetupRouter(handler *Handler, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", handler.Health)

		apiGroup.POST("/sessions", handler.CreateSession)
		apiGroup.GET("/sessions/:id", handler.GetState)
		apiGroup.POST("/sessions/:id/turns", handler.RunTurn)
		apiGroup.GET("/sessions/:id/history", handler.GetHistory)
		apiGroup.DELETE("/sessions/:id", handler.EndSession)

		apiGroup.POST("/index/rebuild", handler.RebuildIndex)
	}

	r.GET("/ws/sessions/:id", handler.WebSocket.Serve)

	return r
}
