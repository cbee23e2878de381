// Package rtc describes the peer connection capability driven by the
// negotiation state machine and provides its pion/webrtc implementation.
//
// The state machine only ever calls the small operation set below; SDP, ICE,
// DTLS and SCTP internals stay inside pion.
package rtc

import (
	"github.com/pion/webrtc/v4"
)

// DataChannelLabel is the label of the text channel opened by the offerer.
const DataChannelLabel = "msgChannel"

// DataChannel is a bidirectional text pipe on top of a peer connection.
type DataChannel interface {
	Label() string
	SendText(text string) error
	OnOpen(func())
	OnMessage(func(text string))
	Close() error
}

// PeerConnection is the operation set a PeerProxy drives. Callbacks may be
// invoked from any goroutine.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	ICEConnectionState() webrtc.ICEConnectionState
	CreateDataChannel(label string) (DataChannel, error)

	OnDataChannel(func(DataChannel))
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnICEConnectionStateChange(func(webrtc.ICEConnectionState))

	Close() error
}

// Factory creates one PeerConnection per remote peer.
type Factory interface {
	NewPeerConnection() (PeerConnection, error)
}

// IsEstablished reports whether ICE has found a working candidate pair.
func IsEstablished(state webrtc.ICEConnectionState) bool {
	return state == webrtc.ICEConnectionStateConnected || state == webrtc.ICEConnectionStateCompleted
}
