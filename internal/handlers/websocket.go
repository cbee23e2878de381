package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/peer-signaling/internal/log"
	"github.com/mossy-p/peer-signaling/internal/models"
	"github.com/mossy-p/peer-signaling/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// connection couples a registered client with its websocket.
type connection struct {
	client *registry.Client
	conn   *websocket.Conn
	reg    *registry.Registry
	log    *logrus.Entry
}

// HandleSignaling upgrades the request and runs the relay protocol on it
func HandleSignaling(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logrus.WithError(err).Warn("failed to upgrade connection")
			return
		}

		client := registry.NewClient(uuid.New().String())
		cc := &connection{
			client: client,
			conn:   conn,
			reg:    reg,
			log:    log.Conn(client.ID),
		}

		if err := reg.Register(client); err != nil {
			cc.log.WithError(err).Error("failed to register client")
			_ = conn.Close()
			return
		}

		cc.log.WithField("remote", conn.RemoteAddr().String()).Info("client connected")

		go cc.writePump()
		go cc.readPump()
	}
}

func (c *connection) readPump() {
	defer func() {
		c.reg.Unregister(c.client.ID)
		_ = c.conn.Close()
		c.log.Info("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("websocket error")
			}
			return
		}

		c.route(message)
	}
}

// route applies the relay rules to one inbound frame. Frames are forwarded
// byte for byte; the relay never inspects descriptions or candidates.
func (c *connection) route(message []byte) {
	var msg models.SignalMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.WithError(err).Warn("failed to parse message")
		return
	}

	switch {
	case msg.Event == models.EventSetPeerInfo:
		name := ""
		if msg.Name != nil {
			name = *msg.Name
		}
		c.reg.SetName(c.client.ID, name)
		c.reg.BroadcastExcept(message, c.client.ID)

	case msg.Event.IsRouted():
		if !c.reg.SendTo(msg.ToPeerUUID, message) {
			c.log.WithFields(logrus.Fields{
				"event": msg.Event,
				"to":    msg.ToPeerUUID,
			}).Debug("dropping frame for unknown peer")
		}

	default:
		c.log.WithField("event", msg.Event).Debug("ignoring message")
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.client.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("failed to write message")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.reg.Touch(c.client.ID)
		}
	}
}
