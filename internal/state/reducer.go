package state

// Reduce folds ev into s. Events about unknown peers leave s unchanged.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case SetName:
		s.Name = e.Name
		return s

	case SetOwnIdentity:
		s.OwnUUID = e.UUID
		return s

	case SetConnectionStatus:
		s.ConnectionStatus = e.Status
		return s

	case AddPeer:
		if s.peerIndex(e.UUID) >= 0 {
			if e.Name == "" {
				return s
			}
			return updatePeer(s, e.UUID, func(p Peer) Peer {
				p.Name = e.Name
				return p
			})
		}
		peers := make([]Peer, len(s.Peers), len(s.Peers)+1)
		copy(peers, s.Peers)
		s.Peers = append(peers, Peer{
			UUID:              e.UUID,
			Name:              e.Name,
			DataChannelStatus: DataChannelNotReady,
		})
		return s

	case RemovePeer:
		if s.peerIndex(e.UUID) < 0 {
			return s
		}
		peers := make([]Peer, 0, len(s.Peers)-1)
		for _, p := range s.Peers {
			if p.UUID != e.UUID {
				peers = append(peers, p)
			}
		}
		s.Peers = peers
		return s

	case SetPeerName:
		return updatePeer(s, e.UUID, func(p Peer) Peer {
			p.Name = e.Name
			return p
		})

	case IceConnected:
		return updatePeer(s, e.UUID, func(p Peer) Peer {
			p.ICEConnected = true
			return p
		})

	case DataChannelStatusChange:
		return updatePeer(s, e.UUID, func(p Peer) Peer {
			p.DataChannelStatus = e.Status
			return p
		})

	case SentMessage:
		return appendMessage(s, e.UUID, Message{Direction: DirectionOut, Text: e.Text})

	case ReceivedMessage:
		return appendMessage(s, e.UUID, Message{Direction: DirectionIn, Text: e.Text})

	case SetDevices:
		devices := make([]MediaDevice, len(e.Devices))
		copy(devices, e.Devices)
		s.Devices = devices
		return s

	case SetCapture:
		s.Capture = e.Handle
		return s

	default:
		return s
	}
}

func updatePeer(s State, id string, fn func(Peer) Peer) State {
	i := s.peerIndex(id)
	if i < 0 {
		return s
	}
	peers := make([]Peer, len(s.Peers))
	copy(peers, s.Peers)
	peers[i] = fn(peers[i])
	s.Peers = peers
	return s
}

// appendMessage never deduplicates: a message delivered twice is logged twice.
func appendMessage(s State, id string, m Message) State {
	return updatePeer(s, id, func(p Peer) Peer {
		messages := make([]Message, len(p.Messages), len(p.Messages)+1)
		copy(messages, p.Messages)
		p.Messages = append(messages, m)
		return p
	})
}
