package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/peer-signaling/internal/models"
	"github.com/mossy-p/peer-signaling/internal/registry"
)

const listTimeout = 3 * time.Second

// Health reports liveness and the number of connected clients
func Health(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status: "ok",
			Peers:  reg.Len(),
		})
	}
}

// ListPeers returns the identities currently mirrored in the presence store
func ListPeers(presence registry.Presence) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), listTimeout)
		defer cancel()

		peers, err := presence.List(ctx)
		if err != nil {
			logrus.WithError(err).Error("failed to list peers")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Presence store unavailable"})
			return
		}

		c.JSON(http.StatusOK, peers)
	}
}

// ICEServers returns the static STUN/TURN list clients should use
func ICEServers(servers []webrtc.ICEServer) gin.HandlerFunc {
	body := make([]models.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := models.ICEServer{
			URLs:     s.URLs,
			Username: s.Username,
		}
		if s.Credential != nil {
			server.Credential = fmt.Sprint(s.Credential)
		}
		body = append(body, server)
	}

	return func(c *gin.Context) {
		c.JSON(http.StatusOK, body)
	}
}
