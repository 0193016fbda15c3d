package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dashif-labs/ssaigw/internal/config"
)

// l1Entry is one Channel-Config Cache L1 value: the channel plus the
// time it was cached, so an L1 hit can still expire on its own instead
// of only ever being evicted by Invalidate or LRU pressure.
type l1Entry struct {
	channel  *config.Channel
	cachedAt time.Time
}

// ChannelCache is the read-through, write-invalidate Channel-Config
// Cache from spec.md section 4.4: an in-process LRU (L1) in front of a
// shared redis instance (L2), both falling through to the Channel
// repository on a full miss. L1 entries carry the same TTL as L2, so a
// process that never observes an Invalidate (e.g. a peer in a
// multi-process placement that didn't handle the admin mutation) still
// bounds its staleness by ttl (spec.md section 8).
type ChannelCache struct {
	l1      *lru.Cache[string, l1Entry]
	l2      *redis.Client
	ttl     time.Duration
	backing ChannelStore
}

// NewChannelCache builds a ChannelCache. l1Size bounds the in-process
// LRU; ttl is the L1 and L2 entry lifetime (60s per spec.md).
func NewChannelCache(l1Size int, redisClient *redis.Client, ttl time.Duration, backing ChannelStore) (*ChannelCache, error) {
	l1, err := lru.New[string, l1Entry](l1Size)
	if err != nil {
		return nil, err
	}
	return &ChannelCache{l1: l1, l2: redisClient, ttl: ttl, backing: backing}, nil
}

// idKey and slugKey match the KV layout spec.md section 6 names exactly:
// "config:id:{channel_id}" for the canonical record, "config:{org}:{slug}"
// as a pointer to it so a slug lookup costs one extra redis round trip
// instead of a full ChannelStore query on every miss.
func (c *ChannelCache) idKey(channelID string) string {
	return "config:id:" + channelID
}

func (c *ChannelCache) slugKey(orgSlug, channelSlug string) string {
	return "config:" + orgSlug + ":" + channelSlug
}

// l1Get returns the channel cached under key if present and not past
// ttl, evicting it if it has expired.
func (c *ChannelCache) l1Get(key string) (*config.Channel, bool) {
	entry, ok := c.l1.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(entry.cachedAt) >= c.ttl {
		c.l1.Remove(key)
		return nil, false
	}
	return entry.channel, true
}

func (c *ChannelCache) l1Add(key string, ch *config.Channel) {
	c.l1.Add(key, l1Entry{channel: ch, cachedAt: time.Now()})
}

// Get returns a channel's config, consulting L1, then L2, then the
// backing store, populating each faster tier as it resolves.
func (c *ChannelCache) Get(ctx context.Context, channelID string) (*config.Channel, error) {
	if ch, ok := c.l1Get(channelID); ok {
		return ch, nil
	}

	l2ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	raw, err := c.l2.Get(l2ctx, c.idKey(channelID)).Bytes()
	cancel()
	if err == nil {
		var ch config.Channel
		if jsonErr := json.Unmarshal(raw, &ch); jsonErr == nil {
			c.l1Add(channelID, &ch)
			return &ch, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// L2 unreachable: fall through to the backing store rather than fail the request.
	}

	ch, err := c.backing.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	c.l1Add(channelID, ch)
	c.Warm(ctx, ch)
	return ch, nil
}

// slugL1Key namespaces the L1 LRU so a bare channel_id and an
// "org/slug" pair never collide in the same single-keyspace cache.
func slugL1Key(orgSlug, channelSlug string) string {
	return orgSlug + "/" + channelSlug
}

// GetBySlug resolves a channel by (org_slug, channel_slug), the identity
// viewer requests carry. It consults L1 and the redis slug pointer
// before falling through to the backing store's slug lookup.
func (c *ChannelCache) GetBySlug(ctx context.Context, orgSlug, channelSlug string) (*config.Channel, error) {
	l1k := slugL1Key(orgSlug, channelSlug)
	if ch, ok := c.l1Get(l1k); ok {
		return ch, nil
	}

	l2ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	channelID, err := c.l2.Get(l2ctx, c.slugKey(orgSlug, channelSlug)).Result()
	cancel()
	if err == nil {
		if ch, getErr := c.Get(ctx, channelID); getErr == nil {
			c.l1Add(l1k, ch)
			return ch, nil
		}
	}

	ch, err := c.backing.GetBySlug(ctx, orgSlug, channelSlug)
	if err != nil {
		return nil, err
	}
	c.l1Add(l1k, ch)
	c.l1Add(ch.ChannelID, ch)
	c.Warm(ctx, ch)
	return ch, nil
}

// Warm writes ch to L2 fire-and-forget under both the id and slug keys:
// the synchronous path already has what it needs, so a failed warm is
// ignored (neither logged nor surfaced as a request error). Exported so callers can fire a standalone prefetch
// after an invalidate, absorbing the cache-stampede spec.md section 4.4
// calls out.
func (c *ChannelCache) Warm(ctx context.Context, ch *config.Channel) {
	raw, err := json.Marshal(ch)
	if err != nil {
		return
	}
	go func() {
		wctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		c.l2.Set(wctx, c.idKey(ch.ChannelID), raw, c.ttl)
		c.l2.Set(wctx, c.slugKey(ch.OrgSlug, ch.ChannelSlug), ch.ChannelID, c.ttl)
	}()
	_ = ctx
}

// Invalidate synchronously evicts a channel from both L1 keys and both
// L2 keys. Only this process's L1 is cleared: another process's L1 entry
// for the same channel can still be served until it ages past ttl.
func (c *ChannelCache) Invalidate(ctx context.Context, orgSlug, channelSlug, channelID string) error {
	c.l1.Remove(channelID)
	c.l1.Remove(slugL1Key(orgSlug, channelSlug))
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := c.l2.Del(ctx, c.idKey(channelID), c.slugKey(orgSlug, channelSlug)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
