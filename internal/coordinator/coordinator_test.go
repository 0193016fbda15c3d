package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/coordinator"
	"github.com/dashif-labs/ssaigw/internal/store"
)

type memStateStore struct {
	byChannel map[string]*store.ChannelRecord
}

func newMemStateStore() *memStateStore {
	return &memStateStore{byChannel: make(map[string]*store.ChannelRecord)}
}

func (m *memStateStore) Load(channelID string) (*store.ChannelRecord, error) {
	if r, ok := m.byChannel[channelID]; ok {
		return r, nil
	}
	return nil, store.ErrNoState
}

func (m *memStateStore) Save(record *store.ChannelRecord) error {
	m.byChannel[record.ChannelID] = record
	return nil
}

func (m *memStateStore) Close() error { return nil }

func noopDecide(ctx context.Context, ch *config.Channel, eventID string, durationS float64) *config.AdDecision {
	return &config.AdDecision{PodID: "pod-" + eventID}
}

func TestStartThenDuplicateIsNoOp(t *testing.T) {
	c, err := coordinator.New("ch1", newMemStateStore())
	require.NoError(t, err)
	ch := &config.Channel{ChannelID: "ch1"}
	now := time.Now()

	state, started, err := c.Start(context.Background(), ch, coordinator.StartParams{
		EventID:      "evt1",
		Source:       config.SourceScte35,
		DurationS:    30,
		Now:          now,
		RequireDedup: true,
		TierGuard:    true,
	}, noopDecide)
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, uint64(1), state.Version)

	_, started, err = c.Start(context.Background(), ch, coordinator.StartParams{
		EventID:      "evt1",
		Source:       config.SourceScte35,
		DurationS:    30,
		Now:          now.Add(time.Second),
		RequireDedup: true,
		TierGuard:    true,
	}, noopDecide)
	require.NoError(t, err)
	require.False(t, started)
}

func TestStartReplacesEndedBreak(t *testing.T) {
	c, err := coordinator.New("ch1", newMemStateStore())
	require.NoError(t, err)
	ch := &config.Channel{ChannelID: "ch1"}
	now := time.Now()

	_, started, err := c.Start(context.Background(), ch, coordinator.StartParams{
		EventID: "evt1", Source: config.SourceManual, DurationS: 10, Now: now,
	}, noopDecide)
	require.NoError(t, err)
	require.True(t, started)

	later := now.Add(time.Minute)
	state2, started, err := c.Start(context.Background(), ch, coordinator.StartParams{
		EventID: "evt2", Source: config.SourceManual, DurationS: 10, Now: later,
	}, noopDecide)
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, uint64(2), state2.Version)
}

func TestStopClearsActiveBreak(t *testing.T) {
	c, err := coordinator.New("ch1", newMemStateStore())
	require.NoError(t, err)
	ch := &config.Channel{ChannelID: "ch1"}
	now := time.Now()

	_, _, err = c.Start(context.Background(), ch, coordinator.StartParams{
		EventID: "evt1", Source: config.SourceManual, DurationS: 10, Now: now,
	}, noopDecide)
	require.NoError(t, err)

	stopped, err := c.Stop(context.Background())
	require.NoError(t, err)
	require.True(t, stopped)

	snap, err := c.Read(context.Background())
	require.NoError(t, err)
	require.Nil(t, snap.Active)
}

func TestModePinIsStableAcrossReads(t *testing.T) {
	c, err := coordinator.New("ch1", newMemStateStore())
	require.NoError(t, err)
	ch := &config.Channel{ChannelID: "ch1"}
	now := time.Now()

	_, _, err = c.Start(context.Background(), ch, coordinator.StartParams{
		EventID: "evt1", Source: config.SourceManual, DurationS: 30, Now: now,
	}, noopDecide)
	require.NoError(t, err)

	require.NoError(t, c.PinMode(context.Background(), "evt1", coordinator.ModeSSAI))
	require.NoError(t, c.PinMode(context.Background(), "evt1", coordinator.ModeSGAI)) // should not override

	snap, err := c.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, coordinator.ModeSSAI, snap.Mode)
}

func TestExpireIfDueClearsPastBreak(t *testing.T) {
	c, err := coordinator.New("ch1", newMemStateStore())
	require.NoError(t, err)
	ch := &config.Channel{ChannelID: "ch1"}
	now := time.Now()

	_, _, err = c.Start(context.Background(), ch, coordinator.StartParams{
		EventID: "evt1", Source: config.SourceManual, DurationS: 5, Now: now,
	}, noopDecide)
	require.NoError(t, err)

	require.NoError(t, c.ExpireIfDue(context.Background(), now.Add(6*time.Second), 2*time.Second))
	snap, err := c.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Active, "grace period has not elapsed yet")

	require.NoError(t, c.ExpireIfDue(context.Background(), now.Add(8*time.Second), 2*time.Second))
	snap, err = c.Read(context.Background())
	require.NoError(t, err)
	require.Nil(t, snap.Active)
}
