package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/mossy-p/peer-signaling/internal/models"
)

// Presence mirrors registry membership somewhere other processes can read it.
type Presence interface {
	Add(ctx context.Context, id string) error
	SetName(ctx context.Context, id, name string) error
	Remove(ctx context.Context, id string) error
	// Touch marks id as still connected so an expiring store keeps it.
	Touch(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.PeerInfo, error)
}

// MemoryPresence is the in-process Presence used when Redis is not configured.
type MemoryPresence struct {
	mu    sync.RWMutex
	peers map[string]string
}

// NewMemoryPresence creates an empty in-process presence store.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{peers: make(map[string]string)}
}

// Add records id with an empty name.
func (p *MemoryPresence) Add(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.peers[id]; !ok {
		p.peers[id] = ""
	}
	return nil
}

// SetName names a present peer; unknown ids are ignored.
func (p *MemoryPresence) SetName(_ context.Context, id, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.peers[id]; ok {
		p.peers[id] = name
	}
	return nil
}

// Remove forgets id.
func (p *MemoryPresence) Remove(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.peers, id)
	return nil
}

// Touch is a no-op: in-process entries never expire.
func (p *MemoryPresence) Touch(_ context.Context, _ string) error {
	return nil
}

// List returns the present peers ordered by identity.
func (p *MemoryPresence) List(_ context.Context) ([]models.PeerInfo, error) {
	p.mu.RLock()
	peers := make([]models.PeerInfo, 0, len(p.peers))
	for id, name := range p.peers {
		peers = append(peers, models.PeerInfo{UUID: id, Name: name})
	}
	p.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].UUID < peers[j].UUID })
	return peers, nil
}
