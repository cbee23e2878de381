package models

import "encoding/json"

// EventType names a signalling frame
type EventType string

const (
	EventConnected       EventType = "connected"
	EventSetPeerInfo     EventType = "set_peer_info"
	EventPeerAdded       EventType = "peer_added"
	EventPeerRemoved     EventType = "peer_removed"
	EventRTCOffer        EventType = "rtc_offer"
	EventRTCAnswer       EventType = "rtc_answer"
	EventNewICECandidate EventType = "new_ice_candidate"
)

// IsRouted reports whether frames of this type are forwarded to toPeerUUID.
func (e EventType) IsRouted() bool {
	switch e {
	case EventRTCOffer, EventRTCAnswer, EventNewICECandidate:
		return true
	}
	return false
}

// SignalMessage is the union of every frame exchanged with the relay.
// Description and Candidate stay raw so the relay never reinterprets them.
type SignalMessage struct {
	Event        EventType       `json:"event"`
	UUID         string          `json:"uuid,omitempty"`
	Name         *string         `json:"name,omitempty"`
	FromPeerUUID string          `json:"fromPeerUUID,omitempty"`
	ToPeerUUID   string          `json:"toPeerUUID,omitempty"`
	Description  json.RawMessage `json:"description,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// PeerNotice is the peer_added / peer_removed frame. Name is always present
// and is null until the peer has named itself.
type PeerNotice struct {
	Event EventType `json:"event"`
	UUID  string    `json:"uuid"`
	Name  *string   `json:"name"`
}

// SessionDescription is the browser-compatible {type, sdp} payload.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is the browser-compatible RTCIceCandidateInit payload.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// ConnectedFrame tells a newcomer its identity.
func ConnectedFrame(id string) ([]byte, error) {
	return json.Marshal(SignalMessage{Event: EventConnected, UUID: id})
}

// PeerAddedFrame announces a peer. A nil name is sent as null.
func PeerAddedFrame(id string, name *string) ([]byte, error) {
	return json.Marshal(PeerNotice{Event: EventPeerAdded, UUID: id, Name: name})
}

// PeerRemovedFrame announces that a peer left.
func PeerRemovedFrame(id string, name *string) ([]byte, error) {
	return json.Marshal(PeerNotice{Event: EventPeerRemoved, UUID: id, Name: name})
}

// StringPtr returns nil for an empty name so it encodes as null.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
