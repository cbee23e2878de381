// Package state holds the client's view model and the pure reducer that
// folds signalling events into it.
package state

// ConnectionStatus is the relay connection status.
type ConnectionStatus string

const (
	StatusClosed    ConnectionStatus = "CLOSED"
	StatusConnected ConnectionStatus = "CONNECTED"
)

// DataChannelStatus is the data channel status of one peer.
type DataChannelStatus string

const (
	DataChannelNotReady DataChannelStatus = "NOT_READY"
	DataChannelReady    DataChannelStatus = "READY"
)

// Direction tells sent and received messages apart.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Message is one data channel text in a peer conversation.
type Message struct {
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
}

// Peer is a remote client as the UI sees it.
type Peer struct {
	UUID              string            `json:"uuid"`
	Name              string            `json:"name,omitempty"`
	ICEConnected      bool              `json:"iceConnected"`
	DataChannelStatus DataChannelStatus `json:"dataChannelStatus"`
	Messages          []Message         `json:"messages,omitempty"`
}

// MediaDevice describes a capture device.
type MediaDevice struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
}

// State is never mutated in place; Reduce always returns a fresh value and
// copies every slice it changes.
type State struct {
	Name             string           `json:"name,omitempty"`
	OwnUUID          string           `json:"ownUUID,omitempty"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	Peers            []Peer           `json:"peers"`
	Devices          []MediaDevice    `json:"devices"`
	// Capture is an opaque handle of the local capture stream, if any.
	Capture string `json:"capture,omitempty"`
}

// Initial returns the state before the relay is reached.
func Initial() State {
	return State{
		ConnectionStatus: StatusClosed,
		Peers:            []Peer{},
		Devices:          []MediaDevice{},
	}
}

// Peer looks up a peer by identity.
func (s State) Peer(id string) (Peer, bool) {
	if i := s.peerIndex(id); i >= 0 {
		return s.Peers[i], true
	}
	return Peer{}, false
}

func (s State) peerIndex(id string) int {
	for i, p := range s.Peers {
		if p.UUID == id {
			return i
		}
	}
	return -1
}
