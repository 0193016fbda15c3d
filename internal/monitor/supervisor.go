package monitor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/dashif-labs/ssaigw/internal/config"
)

// Supervisor owns one ChannelPoller per monitored channel under a
// suture tree, so a poller panic or permanent error is restarted
// without taking down the rest of the gateway.
type Supervisor struct {
	tree *suture.Supervisor
}

// NewSupervisor builds a Supervisor.
func NewSupervisor() *Supervisor {
	tree := suture.New("scte35-monitor", suture.Spec{
		FailureThreshold: 5,
		FailureBackoff:   30 * time.Second,
	})
	return &Supervisor{tree: tree}
}

// Watch adds a poller for ch to the supervision tree. Call before Serve.
func (s *Supervisor) Watch(ch *config.Channel, onCue CueHandler) {
	s.tree.Add(NewChannelPoller(ch, onCue))
}

// Serve runs the supervision tree until ctx is canceled.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.tree.Serve(ctx)
}
