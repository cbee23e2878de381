package signalling

import (
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/peer-signaling/internal/log"
	"github.com/mossy-p/peer-signaling/internal/models"
	"github.com/mossy-p/peer-signaling/internal/rtc"
	"github.com/mossy-p/peer-signaling/internal/state"
)

// Dispatcher receives the events a PeerProxy or Client produce for the
// application state.
type Dispatcher interface {
	Dispatch(ev state.Event)
}

type proxyConfig struct {
	OwnID    string
	RemoteID string
	Offerer  bool
	Factory  rtc.Factory
	Send     func(models.SignalMessage) error
	Dispatch Dispatcher
	// Post schedules fn on the goroutine that owns the proxy. Capability
	// callbacks never touch proxy state directly.
	Post func(fn func())
}

// PeerProxy drives one peer connection through negotiation with one remote
// identity. It is owned by a single goroutine (the Client loop); only the
// capability callbacks run elsewhere and they hop back through Post.
type PeerProxy struct {
	cfg proxyConfig
	pc  rtc.PeerConnection
	log *logrus.Entry

	state       NegotiationState
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	pending     []webrtc.ICECandidateInit
	channel     rtc.DataChannel
	channelOpen bool
	closed      bool
}

func newPeerProxy(cfg proxyConfig) (*PeerProxy, error) {
	pc, err := cfg.Factory.NewPeerConnection()
	if err != nil {
		return nil, errors.Wrap(err, "create peer connection")
	}

	p := &PeerProxy{
		cfg:   cfg,
		pc:    pc,
		log:   log.Peer(cfg.RemoteID),
		state: StateNew,
	}

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		cfg.Post(func() { p.handleLocalCandidate(c) })
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		cfg.Post(func() { p.handleICEState(s) })
	})

	if cfg.Offerer {
		ch, err := pc.CreateDataChannel(rtc.DataChannelLabel)
		if err != nil {
			_ = pc.Close()
			return nil, errors.Wrap(err, "create data channel")
		}
		p.wireChannel(ch)
		p.channel = ch
	} else {
		pc.OnDataChannel(func(ch rtc.DataChannel) {
			// Handlers are wired here, before the channel can open; adoption
			// is posted so it runs ahead of the open notification.
			p.wireChannel(ch)
			cfg.Post(func() { p.adoptChannel(ch) })
		})
	}

	return p, nil
}

// RemoteID returns the identity of the remote peer.
func (p *PeerProxy) RemoteID() string {
	return p.cfg.RemoteID
}

// Offerer reports whether this side created the offer.
func (p *PeerProxy) Offerer() bool {
	return p.cfg.Offerer
}

// State returns the current negotiation state.
func (p *PeerProxy) State() NegotiationState {
	return p.state
}

// DataChannelReady reports whether the data channel is open.
func (p *PeerProxy) DataChannelReady() bool {
	return p.channelOpen
}

// LocalDescription returns the applied local description, or nil.
func (p *PeerProxy) LocalDescription() *webrtc.SessionDescription {
	return p.local
}

// RemoteDescription returns the applied remote description, or nil.
func (p *PeerProxy) RemoteDescription() *webrtc.SessionDescription {
	return p.remote
}

// awaitingAnswer reports whether our offer is outstanding, the window in
// which an inbound offer is glare.
func (p *PeerProxy) awaitingAnswer() bool {
	return p.cfg.Offerer && p.state == StateOfferSent && p.remote == nil
}

// Offer runs the offerer half: create offer, set it locally, send rtc_offer.
func (p *PeerProxy) Offer() error {
	offer, err := p.pc.CreateOffer()
	if err != nil {
		return errors.Wrap(err, "create offer")
	}
	applied, err := p.SetLocalDescription(offer)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	raw, err := rtc.EncodeDescription(offer)
	if err != nil {
		return errors.Wrap(err, "encode offer")
	}
	if err := p.cfg.Send(models.SignalMessage{
		Event:        models.EventRTCOffer,
		FromPeerUUID: p.cfg.OwnID,
		ToPeerUUID:   p.cfg.RemoteID,
		Description:  raw,
	}); err != nil {
		return errors.Wrap(err, "send offer")
	}

	p.advance(evOfferSent)
	return nil
}

// HandleOffer runs the answerer half. Duplicate offers are no-ops.
func (p *PeerProxy) HandleOffer(desc webrtc.SessionDescription) {
	if p.closed {
		return
	}
	if desc.Type != webrtc.SDPTypeOffer {
		p.log.WithField("type", desc.Type.String()).Warn("ignoring non-offer description")
		return
	}

	applied, err := p.SetRemoteDescription(desc)
	if err != nil {
		p.log.WithError(err).Warn("failed to set remote offer")
		return
	}
	if !applied {
		return
	}
	if p.local != nil {
		p.log.Debug("already have local description")
		return
	}

	answer, err := p.pc.CreateAnswer()
	if err != nil {
		p.log.WithError(err).Warn("failed to create answer")
		return
	}
	if _, err := p.SetLocalDescription(answer); err != nil {
		p.log.WithError(err).Warn("failed to set local answer")
		return
	}

	raw, err := rtc.EncodeDescription(answer)
	if err != nil {
		p.log.WithError(err).Error("failed to encode answer")
		return
	}
	if err := p.cfg.Send(models.SignalMessage{
		Event:        models.EventRTCAnswer,
		FromPeerUUID: p.cfg.OwnID,
		ToPeerUUID:   p.cfg.RemoteID,
		Description:  raw,
	}); err != nil {
		p.log.WithError(err).Warn("failed to send answer")
		return
	}

	p.advance(evAnswerSent)
	p.flushPending()
}

// HandleAnswer completes the offerer half. An answer arriving after a remote
// description is already set is ignored.
func (p *PeerProxy) HandleAnswer(desc webrtc.SessionDescription) {
	if p.closed {
		return
	}
	if desc.Type != webrtc.SDPTypeAnswer {
		p.log.WithField("type", desc.Type.String()).Warn("ignoring non-answer description")
		return
	}
	if p.local == nil {
		p.log.Warn("answer received before any offer was sent")
		return
	}

	applied, err := p.SetRemoteDescription(desc)
	if err != nil {
		p.log.WithError(err).Warn("failed to set remote answer")
		return
	}
	if !applied {
		return
	}

	p.advance(evAnswerReceived)
	p.flushPending()
}

// HandleRemoteCandidate adds a candidate from the remote peer. Once ICE is
// established the candidate only confirms connectivity; before a remote
// description exists it is queued.
func (p *PeerProxy) HandleRemoteCandidate(c webrtc.ICECandidateInit) {
	if p.closed {
		return
	}
	if rtc.IsEstablished(p.pc.ICEConnectionState()) {
		p.log.Debug("ICE already established, not adding candidate")
		p.cfg.Dispatch.Dispatch(state.IceConnected{UUID: p.cfg.RemoteID})
		return
	}
	if p.remote == nil {
		p.pending = append(p.pending, c)
		p.log.WithField("queued", len(p.pending)).Debug("queued early ICE candidate")
		return
	}
	p.addCandidate(c)
}

// SetLocalDescription applies desc at most once per proxy lifetime. It returns
// false without error when a local description is already set.
func (p *PeerProxy) SetLocalDescription(desc webrtc.SessionDescription) (bool, error) {
	if p.local != nil {
		p.log.WithField("type", desc.Type.String()).Debug("already have local description")
		return false, nil
	}
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return false, errors.Wrap(err, "set local description")
	}
	p.local = &desc
	return true, nil
}

// SetRemoteDescription applies desc at most once per proxy lifetime.
func (p *PeerProxy) SetRemoteDescription(desc webrtc.SessionDescription) (bool, error) {
	if p.remote != nil {
		p.log.WithField("type", desc.Type.String()).Debug("already have remote description")
		return false, nil
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return false, errors.Wrap(err, "set remote description")
	}
	p.remote = &desc
	return true, nil
}

// SendText writes text on the data channel once it has opened.
func (p *PeerProxy) SendText(text string) error {
	if p.closed || p.channel == nil || !p.channelOpen {
		return ErrDataChannelNotReady
	}
	return errors.Wrap(p.channel.SendText(text), "send on data channel")
}

// Close releases the capability. Later callbacks are ignored.
func (p *PeerProxy) Close() {
	if p.closed {
		return
	}
	p.closed = true
	if err := p.pc.Close(); err != nil {
		p.log.WithError(err).Debug("closing peer connection")
	}
}

func (p *PeerProxy) advance(ev negotiationEvent) {
	next, ok := transition(p.state, ev)
	if !ok {
		p.log.WithFields(logrus.Fields{"state": p.state, "event": ev}).Debug("no transition")
		return
	}
	if next != p.state {
		p.log.WithFields(logrus.Fields{"from": p.state, "to": next}).Info("negotiation state changed")
	}
	p.state = next
}

func (p *PeerProxy) addCandidate(c webrtc.ICECandidateInit) {
	if err := p.pc.AddICECandidate(c); err != nil {
		p.log.WithError(err).Warn("ICE candidate rejected")
		return
	}
	p.advance(evCandidateAdded)
}

func (p *PeerProxy) flushPending() {
	pending := p.pending
	p.pending = nil
	for _, c := range pending {
		p.addCandidate(c)
	}
}

func (p *PeerProxy) handleLocalCandidate(c webrtc.ICECandidateInit) {
	if p.closed {
		return
	}
	raw, err := rtc.EncodeCandidate(c)
	if err != nil {
		p.log.WithError(err).Error("failed to encode candidate")
		return
	}
	if err := p.cfg.Send(models.SignalMessage{
		Event:        models.EventNewICECandidate,
		FromPeerUUID: p.cfg.OwnID,
		ToPeerUUID:   p.cfg.RemoteID,
		Candidate:    raw,
	}); err != nil {
		p.log.WithError(err).Warn("failed to send candidate")
	}
}

func (p *PeerProxy) handleICEState(s webrtc.ICEConnectionState) {
	if p.closed {
		return
	}
	p.log.WithField("ice", s.String()).Debug("ICE connection state changed")

	if !rtc.IsEstablished(s) {
		return
	}
	p.advance(evICEConnected)
	p.cfg.Dispatch.Dispatch(state.IceConnected{UUID: p.cfg.RemoteID})
	if p.channelOpen {
		p.cfg.Dispatch.Dispatch(state.DataChannelStatusChange{UUID: p.cfg.RemoteID, Status: state.DataChannelReady})
	}
}

// wireChannel registers the channel callbacks. It only touches ch, so it is
// safe from any goroutine.
func (p *PeerProxy) wireChannel(ch rtc.DataChannel) {
	ch.OnOpen(func() {
		p.cfg.Post(func() { p.handleChannelOpen(ch) })
	})
	ch.OnMessage(func(text string) {
		p.cfg.Post(func() { p.handleDataMessage(text) })
	})
}

func (p *PeerProxy) adoptChannel(ch rtc.DataChannel) {
	if p.closed {
		return
	}
	if p.channel != nil && p.channel != ch {
		p.log.WithField("label", ch.Label()).Debug("replacing data channel")
	}
	p.channel = ch
	p.channelOpen = false
}

func (p *PeerProxy) handleChannelOpen(ch rtc.DataChannel) {
	if p.closed || ch != p.channel {
		return
	}
	p.channelOpen = true
	p.log.WithField("label", ch.Label()).Info("data channel open")
	p.cfg.Dispatch.Dispatch(state.DataChannelStatusChange{UUID: p.cfg.RemoteID, Status: state.DataChannelReady})
}

func (p *PeerProxy) handleDataMessage(text string) {
	if p.closed {
		return
	}
	p.cfg.Dispatch.Dispatch(state.ReceivedMessage{UUID: p.cfg.RemoteID, Text: text})
}
