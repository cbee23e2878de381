// Package rtctest provides an in-memory rtc.PeerConnection for exercising the
// negotiation state machine without a network.
package rtctest

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/mossy-p/peer-signaling/internal/rtc"
)

var (
	_ rtc.Factory        = (*Factory)(nil)
	_ rtc.PeerConnection = (*PeerConnection)(nil)
	_ rtc.DataChannel    = (*DataChannel)(nil)
)

// Factory records every PeerConnection it creates.
type Factory struct {
	mu    sync.Mutex
	conns []*PeerConnection
	Err   error
}

// NewPeerConnection records and returns a new fake connection.
func (f *Factory) NewPeerConnection() (rtc.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	pc := &PeerConnection{id: len(f.conns), state: webrtc.ICEConnectionStateNew}
	f.conns = append(f.conns, pc)
	return pc, nil
}

// Conns returns every connection created so far, oldest first.
func (f *Factory) Conns() []*PeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*PeerConnection(nil), f.conns...)
}

// Last returns the most recently created connection, or nil.
func (f *Factory) Last() *PeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

// PeerConnection is an in-memory rtc.PeerConnection that records calls.
type PeerConnection struct {
	mu sync.Mutex
	id int

	local, remote  *webrtc.SessionDescription
	setLocalCalls  int
	setRemoteCalls int
	candidates     []webrtc.ICECandidateInit
	state          webrtc.ICEConnectionState
	channels       []*DataChannel
	closed         bool

	// Injected failures.
	SetRemoteErr    error
	AddCandidateErr error
	CreateOfferErr  error

	onDataChannel func(rtc.DataChannel)
	onCandidate   func(webrtc.ICECandidateInit)
	onState       func(webrtc.ICEConnectionState)
}

func (p *PeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateOfferErr != nil {
		return webrtc.SessionDescription{}, p.CreateOfferErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", p.id)}, nil
}

func (p *PeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil || p.remote.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", p.id)}, nil
}

func (p *PeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocalCalls++
	p.local = &desc
	return nil
}

func (p *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setRemoteCalls++
	if p.SetRemoteErr != nil {
		return p.SetRemoteErr
	}
	p.remote = &desc
	return nil
}

func (p *PeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AddCandidateErr != nil {
		return p.AddCandidateErr
	}
	if p.remote == nil {
		return errors.New("remote description not set")
	}
	p.candidates = append(p.candidates, candidate)
	return nil
}

func (p *PeerConnection) ICEConnectionState() webrtc.ICEConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PeerConnection) CreateDataChannel(label string) (rtc.DataChannel, error) {
	dc := &DataChannel{label: label}
	p.mu.Lock()
	p.channels = append(p.channels, dc)
	p.mu.Unlock()
	return dc, nil
}

func (p *PeerConnection) OnDataChannel(h func(rtc.DataChannel)) {
	p.mu.Lock()
	p.onDataChannel = h
	p.mu.Unlock()
}

func (p *PeerConnection) OnICECandidate(h func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onCandidate = h
	p.mu.Unlock()
}

func (p *PeerConnection) OnICEConnectionStateChange(h func(webrtc.ICEConnectionState)) {
	p.mu.Lock()
	p.onState = h
	p.mu.Unlock()
}

func (p *PeerConnection) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Test controls.

func (p *PeerConnection) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *PeerConnection) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// SetLocalCalls counts SetLocalDescription calls.
func (p *PeerConnection) SetLocalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLocalCalls
}

// SetRemoteCalls counts SetRemoteDescription calls.
func (p *PeerConnection) SetRemoteCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setRemoteCalls
}

// Candidates returns the remote candidates added so far.
func (p *PeerConnection) Candidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

// Channels returns the data channels created or accepted.
func (p *PeerConnection) Channels() []*DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*DataChannel(nil), p.channels...)
}

// Closed reports whether Close was called.
func (p *PeerConnection) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// EmitCandidate simulates local ICE gathering.
func (p *PeerConnection) EmitCandidate(candidate string) {
	p.mu.Lock()
	h := p.onCandidate
	p.mu.Unlock()
	if h != nil {
		h(webrtc.ICECandidateInit{Candidate: candidate})
	}
}

// SetICEState changes the ICE state and fires the change handler.
func (p *PeerConnection) SetICEState(state webrtc.ICEConnectionState) {
	p.mu.Lock()
	p.state = state
	h := p.onState
	p.mu.Unlock()
	if h != nil {
		h(state)
	}
}

// AcceptChannel simulates the remote side opening a data channel.
func (p *PeerConnection) AcceptChannel(label string) *DataChannel {
	dc := &DataChannel{label: label}
	p.mu.Lock()
	p.channels = append(p.channels, dc)
	h := p.onDataChannel
	p.mu.Unlock()
	if h != nil {
		h(dc)
	}
	return dc
}

// DataChannel is an in-memory rtc.DataChannel that records sent text.
type DataChannel struct {
	mu        sync.Mutex
	label     string
	sent      []string
	closed    bool
	onOpen    func()
	onMessage func(string)
}

func (d *DataChannel) Label() string {
	return d.label
}

func (d *DataChannel) SendText(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("data channel closed")
	}
	d.sent = append(d.sent, text)
	return nil
}

func (d *DataChannel) OnOpen(h func()) {
	d.mu.Lock()
	d.onOpen = h
	d.mu.Unlock()
}

func (d *DataChannel) OnMessage(h func(string)) {
	d.mu.Lock()
	d.onMessage = h
	d.mu.Unlock()
}

func (d *DataChannel) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Sent returns the texts passed to SendText.
func (d *DataChannel) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

// Open fires the open handler.
func (d *DataChannel) Open() {
	d.mu.Lock()
	h := d.onOpen
	d.mu.Unlock()
	if h != nil {
		h()
	}
}

// Deliver fires the message handler as if text arrived from the remote.
func (d *DataChannel) Deliver(text string) {
	d.mu.Lock()
	h := d.onMessage
	d.mu.Unlock()
	if h != nil {
		h(text)
	}
}
