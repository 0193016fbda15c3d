package scheduler

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/dashif-labs/ssaigw/internal/config"
)

// Supervisor owns one ChannelScheduler per scheduled channel under a
// suture tree, so a scheduler panic or permanent error is restarted
// without taking down the rest of the gateway.
type Supervisor struct {
	tree *suture.Supervisor
}

// NewSupervisor builds a Supervisor.
func NewSupervisor() *Supervisor {
	tree := suture.New("scheduler", suture.Spec{
		FailureThreshold: 5,
		FailureBackoff:   30 * time.Second,
	})
	return &Supervisor{tree: tree}
}

// Watch adds a scheduler for ch to the supervision tree. Call before Serve.
func (s *Supervisor) Watch(ch *config.Channel, onTick TickHandler) {
	s.tree.Add(NewChannelScheduler(ch, onTick))
}

// Serve runs the supervision tree until ctx is canceled.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.tree.Serve(ctx)
}
