package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/peer-signaling/internal/registry"
)

// NewRouter wires the relay endpoints onto a gin engine.
func NewRouter(reg *registry.Registry, allowedOrigins []string, iceServers []webrtc.ICEServer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(allowedOrigins))

	router.GET("/health", Health(reg))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/peers", ListPeers(reg.Presence()))
		apiGroup.GET("/ice-servers", ICEServers(iceServers))
	}

	// Browser clients connect to the bare root.
	signal := HandleSignaling(reg)
	router.GET("/", signal)
	router.GET("/ws", signal)

	return router
}
