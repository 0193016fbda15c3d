package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/store"
)

func testChannel(id string) *config.Channel {
	return &config.Channel{
		ChannelID:            id,
		OrgSlug:              "acme",
		ChannelSlug:          "news",
		OriginURL:            "https://origin.example/live.m3u8",
		Mode:                 config.ModeAuto,
		Tier:                 1,
		BitrateLadder:        []int{800, 1600},
		DefaultAdDurationS:   30,
		VastTimeoutMs:        2000,
		SegmentCacheMaxAgeS:  6,
		ManifestCacheMaxAgeS: 2,
	}
}

func TestSQLiteChannelStoreRoundTrip(t *testing.T) {
	s, err := store.OpenSQLiteChannelStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	ch := testChannel("ch1")
	require.NoError(t, s.Put(ctx, ch))

	got, err := s.Get(ctx, "ch1")
	require.NoError(t, err)
	require.Equal(t, ch.OriginURL, got.OriginURL)

	list, err := s.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.Delete(ctx, "ch1"))
	_, err = s.Get(ctx, "ch1")
	require.Error(t, err)
}

func TestSQLiteChannelStoreRejectsInvalidChannel(t *testing.T) {
	s, err := store.OpenSQLiteChannelStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ch := testChannel("ch1")
	ch.BitrateLadder = []int{1600, 800}
	require.Error(t, s.Put(context.Background(), ch))
}

type countingStore struct {
	store.ChannelStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, channelID string) (*config.Channel, error) {
	c.gets++
	return testChannel(channelID), nil
}

func TestChannelCacheL1HitAvoidsBackingStore(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	backing := &countingStore{}
	cache, err := store.NewChannelCache(16, redisClient, time.Minute, backing)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cache.Get(ctx, "ch1")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "ch1")
	require.NoError(t, err)
	require.Equal(t, 1, backing.gets)
}

func TestChannelCacheL1EntryExpiresPastTTL(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	backing := &countingStore{}
	cache, err := store.NewChannelCache(16, redisClient, 10*time.Millisecond, backing)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cache.Get(ctx, "ch1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = cache.Get(ctx, "ch1")
	require.NoError(t, err)
	require.Equal(t, 2, backing.gets, "L1 entry past ttl must be treated as a miss")
}
