package rtc

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// Compile-time interface checks.
var (
	_ Factory        = (*PionFactory)(nil)
	_ PeerConnection = (*pionPeerConnection)(nil)
	_ DataChannel    = (*pionDataChannel)(nil)
)

const (
	iceDisconnectedTimeout = 10 * time.Second
	iceFailedTimeout       = 25 * time.Second
	iceKeepaliveInterval   = 2 * time.Second
)

// PionFactory builds pion PeerConnections sharing one API and ICE server list.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewPionFactory creates a factory whose connections use iceServers.
func NewPionFactory(iceServers []webrtc.ICEServer) *PionFactory {
	settings := webrtc.SettingEngine{}
	settings.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepaliveInterval)

	return &PionFactory{
		api: webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
		config: webrtc.Configuration{
			ICEServers:           iceServers,
			ICECandidatePoolSize: 10,
		},
	}
}

// NewPeerConnection creates a pion peer connection.
func (f *PionFactory) NewPeerConnection() (PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, errors.Wrap(err, "new peer connection")
	}
	return &pionPeerConnection{pc: pc}, nil
}

type pionPeerConnection struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionPeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionPeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *pionPeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *pionPeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *pionPeerConnection) ICEConnectionState() webrtc.ICEConnectionState {
	return p.pc.ICEConnectionState()
}

func (p *pionPeerConnection) CreateDataChannel(label string) (DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return &pionDataChannel{dc: dc}, nil
}

func (p *pionPeerConnection) OnDataChannel(h func(DataChannel)) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		h(&pionDataChannel{dc: dc})
	})
}

func (p *pionPeerConnection) OnICECandidate(h func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if candidate == nil {
			return
		}
		h(candidate.ToJSON())
	})
}

func (p *pionPeerConnection) OnICEConnectionStateChange(h func(webrtc.ICEConnectionState)) {
	p.pc.OnICEConnectionStateChange(h)
}

func (p *pionPeerConnection) Close() error {
	return p.pc.Close()
}

type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (d *pionDataChannel) Label() string {
	return d.dc.Label()
}

func (d *pionDataChannel) SendText(text string) error {
	return d.dc.SendText(text)
}

func (d *pionDataChannel) OnOpen(h func()) {
	d.dc.OnOpen(h)
}

func (d *pionDataChannel) OnMessage(h func(text string)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		h(string(msg.Data))
	})
}

func (d *pionDataChannel) Close() error {
	return d.dc.Close()
}
