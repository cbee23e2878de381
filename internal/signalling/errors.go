package signalling

import "github.com/pkg/errors"

var (
	ErrNoIdentity          = errors.New("relay has not assigned an identity yet")
	ErrAlreadyConnected    = errors.New("peer already has a connection")
	ErrDataChannelNotReady = errors.New("data channel not ready")
	ErrClientClosed        = errors.New("signalling client closed")
	ErrRelayClosed         = errors.New("relay connection closed")
	ErrUnknownPeer         = errors.New("unknown peer")
	ErrSelfConnect         = errors.New("cannot connect to own identity")
)
