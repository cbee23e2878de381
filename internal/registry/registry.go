package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/peer-signaling/internal/log"
	"github.com/mossy-p/peer-signaling/internal/models"
)

// DefaultSendBuffer is the number of frames queued per client before
// deliveries to it start being dropped.
const DefaultSendBuffer = 256

const presenceTimeout = 2 * time.Second

// ErrDuplicateID is returned by Register for an identity already in use.
var ErrDuplicateID = errors.New("identity already registered")

// Client is a connected relay client. Send is drained by the connection's
// write pump and is closed by the registry when the client is unregistered.
// Register may replace an empty Send with a larger one, so readers must pick
// it up only after Register returns.
type Client struct {
	ID   string
	Send chan []byte

	// guarded by Registry.mu
	name   string
	closed bool
}

// NewClient creates an unregistered client with a DefaultSendBuffer queue.
func NewClient(id string) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, DefaultSendBuffer),
	}
}

// Registry is the relay's view of who is reachable right now. Every mutation
// and every delivery happens under mu, so a frame is never queued on a client
// that has already been removed.
type Registry struct {
	mu       sync.Mutex
	clients  map[string]*Client
	presence Presence
}

// New creates an empty registry. A nil presence keeps presence in memory.
func New(presence Presence) *Registry {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	return &Registry{
		clients:  make(map[string]*Client),
		presence: presence,
	}
}

// Register records c, acknowledges it with connected{uuid}, announces it to
// everyone else and replays the existing peers to it.
func (r *Registry) Register(c *Client) error {
	connected, err := models.ConnectedFrame(c.ID)
	if err != nil {
		return errors.Wrap(err, "encode connected")
	}
	added, err := models.PeerAddedFrame(c.ID, nil)
	if err != nil {
		return errors.Wrap(err, "encode peer_added")
	}

	r.mu.Lock()
	if _, exists := r.clients[c.ID]; exists {
		r.mu.Unlock()
		return errors.Wrap(ErrDuplicateID, c.ID)
	}

	r.clients[c.ID] = c
	// The replay goes out before the write pump runs, so the newcomer's queue
	// must hold every existing peer on top of the usual headroom.
	if need := len(r.clients) + DefaultSendBuffer; cap(c.Send) < need && len(c.Send) == 0 {
		c.Send = make(chan []byte, need)
	}
	r.deliver(c, connected)

	for id, other := range r.clients {
		if id == c.ID {
			continue
		}
		r.deliver(other, added)

		replay, err := models.PeerAddedFrame(other.ID, models.StringPtr(other.name))
		if err != nil {
			log.Conn(c.ID).WithError(err).Error("failed to encode peer replay")
			continue
		}
		r.deliver(c, replay)
	}
	count := len(r.clients)
	r.mu.Unlock()

	log.Conn(c.ID).WithField("clients", count).Info("client registered")

	r.mirror(func(ctx context.Context) error { return r.presence.Add(ctx, c.ID) })
	return nil
}

// Unregister removes id, closes its send handle and broadcasts peer_removed.
// Unknown ids are ignored.
func (r *Registry) Unregister(id string) bool {
	removed, err := models.PeerRemovedFrame(id, nil)
	if err != nil {
		logrus.WithError(err).Error("failed to encode peer_removed")
		return false
	}

	r.mu.Lock()
	c, ok := r.clients[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, id)
	c.closed = true
	close(c.Send)

	for _, other := range r.clients {
		r.deliver(other, removed)
	}
	count := len(r.clients)
	r.mu.Unlock()

	log.Conn(id).WithField("clients", count).Info("client unregistered")

	r.mirror(func(ctx context.Context) error { return r.presence.Remove(ctx, id) })
	return true
}

// Lookup returns the registered client for id.
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	return c, ok
}

// SendTo queues frame for id. A missing target is a routing miss, not an error.
func (r *Registry) SendTo(id string, frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		log.Conn(id).Debug("routing miss, target not registered")
		return false
	}
	return r.deliver(c, frame)
}

// BroadcastExcept queues frame for every client but exceptID and returns the
// number of clients it was queued for.
func (r *Registry) BroadcastExcept(frame []byte, exceptID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for id, c := range r.clients {
		if id == exceptID {
			continue
		}
		if r.deliver(c, frame) {
			delivered++
		}
	}
	return delivered
}

// SetName records the display name of id and mirrors it to presence.
// It reports false for unknown ids.
func (r *Registry) SetName(id, name string) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		c.name = name
	}
	r.mu.Unlock()

	if ok {
		r.mirror(func(ctx context.Context) error { return r.presence.SetName(ctx, id, name) })
	}
	return ok
}

// Touch refreshes the presence entry of a registered client. The connection
// calls it once per ping period.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	_, ok := r.clients[id]
	r.mu.Unlock()

	if ok {
		r.mirror(func(ctx context.Context) error { return r.presence.Touch(ctx, id) })
	}
	return ok
}

// Peers returns a snapshot of registered clients ordered by identity.
func (r *Registry) Peers() []models.PeerInfo {
	r.mu.Lock()
	peers := make([]models.PeerInfo, 0, len(r.clients))
	for id, c := range r.clients {
		peers = append(peers, models.PeerInfo{UUID: id, Name: c.name})
	}
	r.mu.Unlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].UUID < peers[j].UUID })
	return peers
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Presence returns the presence store the registry mirrors into.
func (r *Registry) Presence() Presence {
	return r.presence
}

// deliver must be called with mu held. It never blocks.
func (r *Registry) deliver(c *Client, frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		log.Conn(c.ID).Warn("send buffer full, dropping frame")
		return false
	}
}

func (r *Registry) mirror(op func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	if err := op(ctx); err != nil {
		logrus.WithError(err).Warn("presence mirror update failed")
	}
}
