// Package signalling is the peer side of the relay: one websocket to the relay
// and one PeerProxy per remote identity.
package signalling

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/peer-signaling/internal/models"
	"github.com/mossy-p/peer-signaling/internal/rtc"
	"github.com/mossy-p/peer-signaling/internal/state"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	sendBuffer = 256
	// Capability callbacks may post from inside the loop itself.
	taskBuffer = 1024
)

// Config holds what Dial needs to join a relay.
type Config struct {
	// URL of the relay websocket, e.g. ws://localhost:9898/.
	URL        string
	Factory    rtc.Factory
	Dispatcher Dispatcher
	Dialer     *websocket.Dialer
	Header     http.Header
}

// Client owns the relay connection and the PeerProxy map. Everything except
// the socket pumps runs on the goroutine executing Run.
type Client struct {
	cfg  Config
	conn *websocket.Conn
	log  *logrus.Entry

	send         chan []byte
	tasks        chan func()
	ready        chan struct{}
	readDone     chan struct{}
	disconnected chan struct{}
	quit         chan struct{}
	done         chan struct{}

	readyOnce sync.Once
	closeOnce sync.Once
	runOnce   sync.Once

	// Loop owned.
	ownID   string
	proxies map[string]*PeerProxy
}

// Dial opens the relay websocket. The client is usable once Run is started
// and Ready is closed.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Factory == nil {
		return nil, errors.New("signalling: nil rtc factory")
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = state.NewStore()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial relay %s", cfg.URL)
	}

	return &Client{
		cfg:      cfg,
		conn:     conn,
		log:      logrus.WithField("relay", cfg.URL),
		send:     make(chan []byte, sendBuffer),
		tasks:    make(chan func(), taskBuffer),
		ready:    make(chan struct{}),
		readDone:     make(chan struct{}),
		disconnected: make(chan struct{}),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		proxies:      make(map[string]*PeerProxy),
	}, nil
}

// Ready is closed once the relay has assigned this client an identity.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Disconnected is closed once the relay socket is gone. Peer connections
// that are already up keep running until Close.
func (c *Client) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Done is closed after Close or context cancellation has torn the client down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Run drives the client until Close is called or ctx ends. Losing the relay
// does not stop it: peer sessions only need the relay to negotiate.
func (c *Client) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("signalling: Run called twice")
	}

	go c.writePump()
	go c.readPump()

	var runErr error
	ctxDone := ctx.Done()
	quit := c.quit
	readDone := c.readDone
	closing := false
	for {
		select {
		case fn := <-c.tasks:
			fn()

		case <-ctxDone:
			runErr = ctx.Err()
			ctxDone = nil
			c.Close()

		case <-quit:
			quit = nil
			closing = true

		case <-readDone:
			readDone = nil
			c.relayLost()
		}

		if closing && readDone == nil {
			c.drain()
			c.teardown()
			return runErr
		}
	}
}

// Close shuts the relay socket and every peer connection; Run returns once
// reading has stopped.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
	})
}

// SetName names this client and announces it to every other peer.
func (c *Client) SetName(ctx context.Context, name string) error {
	return c.do(ctx, func() error {
		if c.ownID == "" {
			return ErrNoIdentity
		}
		if err := c.sendFrame(models.SignalMessage{
			Event: models.EventSetPeerInfo,
			UUID:  c.ownID,
			Name:  &name,
		}); err != nil {
			return err
		}
		c.cfg.Dispatcher.Dispatch(state.SetName{Name: name})
		return nil
	})
}

// ConnectTo starts negotiation with peer as the offerer.
func (c *Client) ConnectTo(ctx context.Context, peer string) error {
	return c.do(ctx, func() error {
		if c.ownID == "" {
			return ErrNoIdentity
		}
		if peer == c.ownID {
			return ErrSelfConnect
		}
		if _, ok := c.proxies[peer]; ok {
			return ErrAlreadyConnected
		}

		p, err := c.newProxy(peer, true)
		if err != nil {
			return err
		}
		c.cfg.Dispatcher.Dispatch(state.AddPeer{UUID: peer})

		if err := p.Offer(); err != nil {
			p.Close()
			return errors.Wrapf(err, "offer to %s", peer)
		}
		c.proxies[peer] = p
		return nil
	})
}

// SendData writes text to peer over its data channel and logs it as sent.
// It keeps working after the relay is lost.
func (c *Client) SendData(ctx context.Context, peer, text string) error {
	return c.do(ctx, func() error {
		p, ok := c.proxies[peer]
		if !ok {
			if c.ownID == "" {
				return ErrNoIdentity
			}
			return ErrUnknownPeer
		}
		if err := p.SendText(text); err != nil {
			return err
		}
		c.cfg.Dispatcher.Dispatch(state.SentMessage{UUID: peer, Text: text})
		return nil
	})
}

// OwnID returns the identity assigned by the relay, or "" before connected.
func (c *Client) OwnID(ctx context.Context) (string, error) {
	var id string
	err := c.do(ctx, func() error {
		id = c.ownID
		return nil
	})
	return id, err
}

// PeerState reports the negotiation state of the proxy for peer.
func (c *Client) PeerState(ctx context.Context, peer string) (NegotiationState, error) {
	var s NegotiationState
	err := c.do(ctx, func() error {
		p, ok := c.proxies[peer]
		if !ok {
			return ErrUnknownPeer
		}
		s = p.State()
		return nil
	})
	return s, err
}

// do runs fn on the loop and waits for its result.
func (c *Client) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.tasks <- func() { errc <- fn() }:
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-c.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClientClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) post(fn func()) {
	select {
	case c.tasks <- fn:
	case <-c.done:
	}
}

func (c *Client) drain() {
	for {
		select {
		case fn := <-c.tasks:
			fn()
		default:
			return
		}
	}
}

// relayLost runs on the loop once the socket stops reading. The identity is
// gone but proxies stay, so established data channels keep working.
func (c *Client) relayLost() {
	c.ownID = ""
	c.cfg.Dispatcher.Dispatch(state.SetOwnIdentity{UUID: ""})
	c.cfg.Dispatcher.Dispatch(state.SetConnectionStatus{Status: state.StatusClosed})
	close(c.disconnected)
	_ = c.conn.Close()
	c.log.WithField("peers", len(c.proxies)).Info("disconnected from relay")
}

// teardown runs on the loop after Close, once the socket is gone.
func (c *Client) teardown() {
	for id, p := range c.proxies {
		p.Close()
		delete(c.proxies, id)
	}

	close(c.done)
	c.log.Info("client closed")
}

func (c *Client) newProxy(remote string, offerer bool) (*PeerProxy, error) {
	return newPeerProxy(proxyConfig{
		OwnID:    c.ownID,
		RemoteID: remote,
		Offerer:  offerer,
		Factory:  c.cfg.Factory,
		Send:     c.sendFrame,
		Dispatch: c.cfg.Dispatcher,
		Post:     c.post,
	})
}

func (c *Client) sendFrame(msg models.SignalMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}

	select {
	case <-c.done:
		return ErrClientClosed
	case <-c.disconnected:
		return ErrRelayClosed
	default:
	}

	select {
	case c.send <- raw:
		return nil
	default:
		return errors.New("relay send queue full")
	}
}

func (c *Client) handleFrame(raw []byte) {
	var msg models.SignalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.WithError(err).Warn("failed to parse relay frame")
		return
	}

	switch msg.Event {
	case models.EventConnected:
		c.handleConnected(msg.UUID)

	case models.EventPeerAdded:
		if msg.UUID == "" || msg.UUID == c.ownID {
			return
		}
		c.cfg.Dispatcher.Dispatch(state.AddPeer{UUID: msg.UUID, Name: derefName(msg.Name)})

	case models.EventPeerRemoved:
		c.cfg.Dispatcher.Dispatch(state.RemovePeer{UUID: msg.UUID})
		if p, ok := c.proxies[msg.UUID]; ok {
			p.Close()
			delete(c.proxies, msg.UUID)
		}

	case models.EventSetPeerInfo:
		if msg.UUID == "" {
			return
		}
		c.cfg.Dispatcher.Dispatch(state.SetPeerName{UUID: msg.UUID, Name: derefName(msg.Name)})

	case models.EventRTCOffer, models.EventRTCAnswer, models.EventNewICECandidate:
		c.handleRouted(msg)

	default:
		c.log.WithField("event", msg.Event).Debug("ignoring relay frame")
	}
}

func (c *Client) handleConnected(id string) {
	if id == "" {
		c.log.Warn("connected frame without identity")
		return
	}
	if c.ownID != "" && c.ownID != id {
		c.log.WithFields(logrus.Fields{"old": c.ownID, "new": id}).Warn("relay reassigned identity")
	}
	c.ownID = id
	c.log = c.log.WithField("self", id)
	c.cfg.Dispatcher.Dispatch(state.SetOwnIdentity{UUID: id})
	c.cfg.Dispatcher.Dispatch(state.SetConnectionStatus{Status: state.StatusConnected})
	c.readyOnce.Do(func() { close(c.ready) })
	c.log.Info("connected to relay")
}

func (c *Client) handleRouted(msg models.SignalMessage) {
	entry := c.log.WithFields(logrus.Fields{"event": msg.Event, "from": msg.FromPeerUUID})

	if c.ownID == "" {
		entry.Warn("negotiation frame before identity assigned")
		return
	}
	if msg.FromPeerUUID == "" {
		entry.Warn("negotiation frame without sender")
		return
	}
	if msg.ToPeerUUID != "" && msg.ToPeerUUID != c.ownID {
		entry.WithField("to", msg.ToPeerUUID).Warn("negotiation frame addressed elsewhere")
		return
	}

	switch msg.Event {
	case models.EventRTCOffer:
		desc, err := rtc.DecodeDescription(msg.Description)
		if err != nil {
			entry.WithError(err).Warn("bad offer")
			return
		}
		c.acceptOffer(msg.FromPeerUUID, desc)

	case models.EventRTCAnswer:
		p, ok := c.proxies[msg.FromPeerUUID]
		if !ok {
			entry.Warn("answer for unknown peer connection")
			return
		}
		desc, err := rtc.DecodeDescription(msg.Description)
		if err != nil {
			entry.WithError(err).Warn("bad answer")
			return
		}
		p.HandleAnswer(desc)

	case models.EventNewICECandidate:
		p, ok := c.proxies[msg.FromPeerUUID]
		if !ok {
			entry.Debug("candidate for unknown peer connection")
			return
		}
		cand, err := rtc.DecodeCandidate(msg.Candidate)
		if err != nil {
			entry.WithError(err).Warn("bad candidate")
			return
		}
		p.HandleRemoteCandidate(cand)
	}
}

// acceptOffer answers an inbound offer. When both sides offered at once the
// smaller identity keeps its offer and the larger one switches to answering.
func (c *Client) acceptOffer(from string, desc webrtc.SessionDescription) {
	p, ok := c.proxies[from]
	if ok && p.awaitingAnswer() {
		if c.ownID < from {
			c.log.WithField("peer", from).Info("offer collision, keeping our offer")
			return
		}
		c.log.WithField("peer", from).Info("offer collision, answering theirs")
		p.Close()
		delete(c.proxies, from)
		ok = false
	}

	if !ok {
		np, err := c.newProxy(from, false)
		if err != nil {
			c.log.WithError(err).WithField("peer", from).Error("failed to create peer connection")
			return
		}
		p = np
		c.proxies[from] = p
		c.cfg.Dispatcher.Dispatch(state.AddPeer{UUID: from})
	}

	p.HandleOffer(desc)
}

func derefName(name *string) string {
	if name == nil {
		return ""
	}
	return *name
}

func (c *Client) readPump() {
	defer close(c.readDone)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("relay connection error")
			}
			return
		}
		c.post(func() { c.handleFrame(raw) })
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.WithError(err).Warn("failed to write frame")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.disconnected:
			return
		}
	}
}
