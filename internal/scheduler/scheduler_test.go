package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/scheduler"
)

func TestChannelSchedulerDefaultIntervalDoesNotFireEarly(t *testing.T) {
	// ScheduleIntervalS of 0 falls back to a one-minute default, too slow
	// to fire within this test's short-lived context.
	ch := &config.Channel{ChannelID: "ch1", ScheduleIntervalS: 0}

	ticks := make(chan time.Time, 4)
	s := scheduler.NewChannelScheduler(ch, func(ctx context.Context, got *config.Channel, now time.Time) {
		require.Equal(t, "ch1", got.ChannelID)
		select {
		case ticks <- now:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_ = s.Serve(ctx)

	select {
	case <-ticks:
		t.Fatal("unexpected tick before the default interval elapsed")
	default:
	}
}

func TestChannelSchedulerRespectsConfiguredInterval(t *testing.T) {
	ch := &config.Channel{ChannelID: "ch1", ScheduleIntervalS: 1}

	done := make(chan struct{})
	s := scheduler.NewChannelScheduler(ch, func(ctx context.Context, got *config.Channel, now time.Time) {
		select {
		case <-done:
		default:
			close(done)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Serve(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduled tick")
	}
}
