package state

// Event is anything the reducer understands.
type Event interface {
	isEvent()
}

// SetName sets the own display name.
type SetName struct{ Name string }

// SetOwnIdentity stores the identity assigned by the relay.
type SetOwnIdentity struct{ UUID string }

// SetConnectionStatus records a relay status change.
type SetConnectionStatus struct{ Status ConnectionStatus }

// AddPeer adds a peer or updates the name of a known one.
type AddPeer struct {
	UUID string
	Name string
}

// RemovePeer drops a peer.
type RemovePeer struct{ UUID string }

// SetPeerName renames a known peer.
type SetPeerName struct {
	UUID string
	Name string
}

// IceConnected marks the ICE link to a peer as up.
type IceConnected struct{ UUID string }

// DataChannelStatusChange records a data channel status of a peer.
type DataChannelStatusChange struct {
	UUID   string
	Status DataChannelStatus
}

// SentMessage appends an outgoing message to a conversation.
type SentMessage struct {
	UUID string
	Text string
}

// ReceivedMessage appends an incoming message to a conversation.
type ReceivedMessage struct {
	UUID string
	Text string
}

// SetDevices replaces the known capture devices.
type SetDevices struct{ Devices []MediaDevice }

// SetCapture stores the active capture handle.
type SetCapture struct{ Handle string }

func (SetName) isEvent()                 {}
func (SetOwnIdentity) isEvent()          {}
func (SetConnectionStatus) isEvent()     {}
func (AddPeer) isEvent()                 {}
func (RemovePeer) isEvent()              {}
func (SetPeerName) isEvent()             {}
func (IceConnected) isEvent()            {}
func (DataChannelStatusChange) isEvent() {}
func (SentMessage) isEvent()             {}
func (ReceivedMessage) isEvent()         {}
func (SetDevices) isEvent()              {}
func (SetCapture) isEvent()              {}
