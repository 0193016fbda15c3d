// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package coordinator implements the Channel Coordinator: the one
// logical actor per channel that owns active-break state, the event-id
// dedup set, and the pinned serving mode per break (spec.md section
// 4.6). All state mutations are serialised on a per-channel lock; state
// is durably persisted before the lock releases.
package coordinator

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/internal/store"
	"github.com/dashif-labs/ssaigw/pkg/apperr"
)

// ServingMode is the pinned per-break decision of how a break is
// delivered to a given viewer: spliced into the media playlist (SSAI)
// or signaled via EXT-X-DATERANGE for the player to fetch (SGAI).
type ServingMode string

const (
	ModeSGAI ServingMode = "sgai"
	ModeSSAI ServingMode = "ssai"
)

const dedupCapacity = 256

// lockAcquireTimeout bounds how long a write trigger waits for the
// per-channel lock before giving up with a 503 (spec.md section 4.6).
const lockAcquireTimeout = 50 * time.Millisecond

// Decider resolves ads for a new break. It is called with the lock
// held, so it must honor ctx's deadline; spec.md treats a decision
// timeout as an empty decision, not a failed transition.
type Decider func(ctx context.Context, ch *config.Channel, eventID string, durationS float64) *config.AdDecision

// Coordinator is the single-writer actor for one channel. sem is a
// size-1 buffered channel acting as a mutex that supports a bounded
// acquisition wait, which sync.Mutex alone cannot express.
//
// version is the Coordinator Version: a strictly monotonic counter
// that survives the active break being cleared, so every Idle<->Active
// transition — including a Stop or an expiry, which carry no break of
// their own to stamp a version onto — still advances it (spec.md
// section 8, ordering guarantee (a)). It is a Coordinator field, not
// an AdBreakState one, precisely so clearing state doesn't reset it.
type Coordinator struct {
	channelID string
	sem       chan struct{}
	state     *config.AdBreakState
	version   uint64
	dedup     *lru.Cache[string, struct{}]
	modePins  map[string]ServingMode
	store     store.StateStore
}

// New builds a Coordinator for channelID, recovering any durably
// persisted record from st: the active break (if still present), the
// version counter, the dedup set, and the mode pins.
func New(channelID string, st store.StateStore) (*Coordinator, error) {
	dedup, err := lru.New[string, struct{}](dedupCapacity)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		channelID: channelID,
		sem:       make(chan struct{}, 1),
		dedup:     dedup,
		modePins:  make(map[string]ServingMode),
		store:     st,
	}
	c.sem <- struct{}{}

	if record, err := st.Load(channelID); err == nil {
		c.state = record.ActiveBreak
		c.version = record.Version
		for _, eventID := range record.DedupSet {
			c.dedup.Add(eventID, struct{}{})
		}
		for eventID, mode := range record.LastServedModes {
			c.modePins[eventID] = ServingMode(mode)
		}
	}
	return c, nil
}

func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case <-c.sem:
		return nil
	case <-time.After(lockAcquireTimeout):
		return apperr.New(apperr.KindLockTimeout, "timed out acquiring channel lock")
	case <-ctx.Done():
		return apperr.Wrap(apperr.KindLockTimeout, "context canceled acquiring channel lock", ctx.Err())
	}
}

func (c *Coordinator) release() {
	c.sem <- struct{}{}
}

// Snapshot is the read path's atomic view of channel state.
type Snapshot struct {
	Active *config.AdBreakState
	Mode   ServingMode // zero value if this event has no pinned mode yet.
}

// Read returns a consistent snapshot of the channel's current break and
// that break's pinned serving mode, if any. Reads are short and never
// block behind a write longer than the write itself takes.
func (c *Coordinator) Read(ctx context.Context) (Snapshot, error) {
	if err := c.acquire(ctx); err != nil {
		return Snapshot{}, err
	}
	defer c.release()

	snap := Snapshot{Active: c.state}
	if c.state != nil {
		snap.Mode = c.modePins[c.state.EventID]
	}
	return snap, nil
}

// record snapshots the Coordinator's full persisted shape under lock.
func (c *Coordinator) record() *store.ChannelRecord {
	modes := make(map[string]string, len(c.modePins))
	for eventID, mode := range c.modePins {
		modes[eventID] = string(mode)
	}
	return &store.ChannelRecord{
		ChannelID:       c.channelID,
		ActiveBreak:     c.state,
		Version:         c.version,
		DedupSet:        c.dedup.Keys(),
		LastServedModes: modes,
	}
}

// PinMode records the serving mode chosen for eventID the first time it
// is served, so later variant requests for the same break never
// silently switch modes (spec.md section 4.2 closing note).
func (c *Coordinator) PinMode(ctx context.Context, eventID string, mode ServingMode) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	if _, ok := c.modePins[eventID]; ok {
		return nil
	}
	c.modePins[eventID] = mode
	if err := c.store.Save(c.record()); err != nil {
		delete(c.modePins, eventID)
		return err
	}
	return nil
}

// StartParams describes a request to open a new break.
type StartParams struct {
	EventID   string
	Source    config.AdBreakSource
	DurationS float64
	Now       time.Time
	Scte35    *config.Scte35Ref
	// RequireDedup routes the request through the SCTE-35 dedup set;
	// manual/scheduled triggers set this false since they carry their
	// own unique event ids by construction.
	RequireDedup bool
	// TierGuard, when set, must pass for an SCTE-35-triggered start to
	// be accepted (channel.tier == 0 or cue.tier <= channel.tier).
	TierGuard bool
}

// Start attempts an Idle→Active or Active→Active' transition. It
// returns (nil, false, nil) for a recognized no-op (duplicate event),
// so callers don't treat a dedup hit as an error.
func (c *Coordinator) Start(ctx context.Context, ch *config.Channel, p StartParams, decide Decider) (*config.AdBreakState, bool, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, false, err
	}
	defer c.release()

	if p.RequireDedup {
		if !p.TierGuard {
			return nil, false, nil
		}
		if _, ok := c.dedup.Get(p.EventID); ok {
			return nil, false, nil
		}
	}

	if c.state != nil && c.state.EndTime.After(p.Now) {
		// Active break still running and this isn't a dedup no-op: per
		// the transition table only an ended break may be replaced.
		return nil, false, nil
	}

	decision := decide(ctx, ch, p.EventID, p.DurationS)
	newVersion := c.version + 1
	state := &config.AdBreakState{
		ChannelID: ch.ChannelID,
		EventID:   p.EventID,
		Source:    p.Source,
		StartTime: p.Now,
		EndTime:   p.Now.Add(durationFromSeconds(p.DurationS)),
		DurationS: p.DurationS,
		Decision:  decision,
		CreatedAt: p.Now,
		Scte35:    p.Scte35,
		Version:   newVersion,
	}

	prevState, prevVersion := c.state, c.version
	c.state = state
	c.version = newVersion
	if p.RequireDedup {
		c.dedup.Add(p.EventID, struct{}{})
	}
	delete(c.modePins, p.EventID) // clean slate for the new break's mode pin.

	if err := c.store.Save(c.record()); err != nil {
		// Write-through failed: roll back the in-memory mutation too.
		c.state, c.version = prevState, prevVersion
		if p.RequireDedup {
			c.dedup.Remove(p.EventID)
		}
		return nil, false, err
	}

	return state, true, nil
}

// Stop attempts an Active→Idle transition triggered by `/cue stop`.
// The coordinator version is incremented even though no new break is
// recorded: clearing an active break is itself a state transition
// (spec.md section 4.6).
func (c *Coordinator) Stop(ctx context.Context) (bool, error) {
	if err := c.acquire(ctx); err != nil {
		return false, err
	}
	defer c.release()

	if c.state == nil {
		return false, nil
	}
	return true, c.clearLocked()
}

// ExpireIfDue performs the Active→Idle transition when now has passed
// end_time + grace. It is safe to call from both the read path and a
// background sweep; it is a no-op unless the break has actually ended.
func (c *Coordinator) ExpireIfDue(ctx context.Context, now time.Time, grace time.Duration) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if c.state == nil || now.Before(c.state.EndTime.Add(grace)) {
		return nil
	}
	return c.clearLocked()
}

// clearLocked clears the active break, bumps the version, persists the
// result, and rolls back the in-memory mutation on a write-through
// failure. Callers must hold the per-channel lock.
func (c *Coordinator) clearLocked() error {
	eventID := c.state.EventID
	prevState, prevVersion := c.state, c.version
	prevMode, hadMode := c.modePins[eventID]

	c.state = nil
	c.version++
	delete(c.modePins, eventID)

	if err := c.store.Save(c.record()); err != nil {
		c.state, c.version = prevState, prevVersion
		if hadMode {
			c.modePins[eventID] = prevMode
		}
		return err
	}
	return nil
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
