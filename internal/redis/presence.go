package redis

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/peer-signaling/internal/models"
	"github.com/mossy-p/peer-signaling/internal/registry"
)

var _ registry.Presence = (*Presence)(nil)

// Presence mirrors the relay registry into Redis:
//
//	<prefix>:peers        set of connected identities
//	<prefix>:peer:<uuid>  hash with the peer's name
//
// Both expire after ttl so a crashed relay does not leave ghosts behind. Live
// connections refresh their entry through Touch once per ping period.
type Presence struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// MinTTL keeps a positive ttl above the websocket ping period, otherwise an
// idle but connected peer would expire between two touches.
const MinTTL = 2 * time.Minute

// NewPresence creates a presence store under prefix. A zero ttl disables
// expiry.
func NewPresence(client *redis.Client, prefix string, ttl time.Duration) *Presence {
	if prefix == "" {
		prefix = "signaling"
	}
	if ttl > 0 && ttl < MinTTL {
		ttl = MinTTL
	}
	return &Presence{client: client, prefix: prefix, ttl: ttl}
}

func (p *Presence) peersKey() string {
	return p.prefix + ":peers"
}

func (p *Presence) peerKey(id string) string {
	return p.prefix + ":peer:" + id
}

// Add records id with an empty name.
func (p *Presence) Add(ctx context.Context, id string) error {
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, p.peersKey(), id)
	pipe.HSet(ctx, p.peerKey(id), "name", "")
	if p.ttl > 0 {
		pipe.Expire(ctx, p.peersKey(), p.ttl)
		pipe.Expire(ctx, p.peerKey(id), p.ttl)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "presence add")
}

// SetName stores the display name of id.
func (p *Presence) SetName(ctx context.Context, id, name string) error {
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.peerKey(id), "name", name)
	if p.ttl > 0 {
		pipe.Expire(ctx, p.peerKey(id), p.ttl)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "presence set name")
}

// Remove deletes id and its name.
func (p *Presence) Remove(ctx context.Context, id string) error {
	pipe := p.client.TxPipeline()
	pipe.SRem(ctx, p.peersKey(), id)
	pipe.Del(ctx, p.peerKey(id))
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "presence remove")
}

// Touch pushes the expiry of id and of the peer set forward by ttl.
func (p *Presence) Touch(ctx context.Context, id string) error {
	if p.ttl <= 0 {
		return nil
	}
	pipe := p.client.TxPipeline()
	pipe.Expire(ctx, p.peersKey(), p.ttl)
	pipe.Expire(ctx, p.peerKey(id), p.ttl)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "presence touch")
}

// List returns the present peers ordered by identity.
func (p *Presence) List(ctx context.Context) ([]models.PeerInfo, error) {
	ids, err := p.client.SMembers(ctx, p.peersKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "presence list")
	}

	pipe := p.client.Pipeline()
	names := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		names[i] = pipe.HGet(ctx, p.peerKey(id), "name")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "presence names")
	}

	peers := make([]models.PeerInfo, 0, len(ids))
	for i, id := range ids {
		name, _ := names[i].Result()
		peers = append(peers, models.PeerInfo{UUID: id, Name: name})
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].UUID < peers[j].UUID })
	return peers, nil
}
