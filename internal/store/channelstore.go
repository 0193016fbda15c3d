// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package store holds the gateway's three persistence layers: the
// Channel repository (sqlite), the Channel Coordinator's durable
// per-channel state (badger), and the Channel-Config Cache's shared KV
// tier (redis) fronted by an in-process LRU.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/pkg/apperr"
)

// ChannelStore is the Channel repository: the system of record for
// channel configuration, queried by the Channel-Config Cache on a miss
// and mutated by admin operations.
type ChannelStore interface {
	Get(ctx context.Context, channelID string) (*config.Channel, error)
	GetBySlug(ctx context.Context, orgSlug, channelSlug string) (*config.Channel, error)
	Put(ctx context.Context, ch *config.Channel) error
	Delete(ctx context.Context, channelID string) error
	List(ctx context.Context, orgSlug string) ([]*config.Channel, error)
	// ListAll returns every channel across every organization, used by the
	// SCTE-35 Monitor to discover the active set at startup.
	ListAll(ctx context.Context) ([]*config.Channel, error)
}

// SQLiteChannelStore is a ChannelStore backed by a single-file sqlite
// database via the pure-Go modernc.org/sqlite driver, avoiding a cgo
// dependency in the gateway's build.
type SQLiteChannelStore struct {
	db *sql.DB
}

// OpenSQLiteChannelStore opens (and migrates, if needed) the channel
// store at path. Use ":memory:" for tests.
func OpenSQLiteChannelStore(path string) (*SQLiteChannelStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite serializes writers; avoid SQLITE_BUSY under our own load.
	s := &SQLiteChannelStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteChannelStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS channels (
	channel_id   TEXT PRIMARY KEY,
	org_slug     TEXT NOT NULL,
	channel_slug TEXT NOT NULL,
	data         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_channels_org ON channels(org_slug);
CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_org_slug ON channels(org_slug, channel_slug);
CREATE TABLE IF NOT EXISTS ad_pods (
	channel_id TEXT NOT NULL,
	pod_id     TEXT NOT NULL,
	priority   INTEGER NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	PRIMARY KEY (channel_id, pod_id)
);
CREATE INDEX IF NOT EXISTS idx_ad_pods_channel_priority ON ad_pods(channel_id, priority);
`
	_, err := s.db.Exec(ddl)
	return err
}

func (s *SQLiteChannelStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteChannelStore) Get(ctx context.Context, channelID string) (*config.Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM channels WHERE channel_id = ?`, channelID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "channel not found")
		}
		return nil, apperr.Wrap(apperr.KindStorageFailure, "query channel", err)
	}
	var ch config.Channel
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailure, "decode channel", err)
	}
	return &ch, nil
}

// GetBySlug resolves a channel by its (organization_slug, channel_slug)
// pair, the identity viewer and admin requests actually carry; channel_id
// is the opaque key everything downstream (cache, coordinator, durable
// state) addresses by.
func (s *SQLiteChannelStore) GetBySlug(ctx context.Context, orgSlug, channelSlug string) (*config.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM channels WHERE org_slug = ? AND channel_slug = ?`, orgSlug, channelSlug)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "channel not found")
		}
		return nil, apperr.Wrap(apperr.KindStorageFailure, "query channel", err)
	}
	var ch config.Channel
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailure, "decode channel", err)
	}
	return &ch, nil
}

func (s *SQLiteChannelStore) Put(ctx context.Context, ch *config.Channel) error {
	if err := config.ValidateChannel(ch); err != nil {
		return err
	}
	raw, err := json.Marshal(ch)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageFailure, "encode channel", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO channels (channel_id, org_slug, channel_slug, data) VALUES (?, ?, ?, ?)
ON CONFLICT(channel_id) DO UPDATE SET org_slug = excluded.org_slug, channel_slug = excluded.channel_slug, data = excluded.data`,
		ch.ChannelID, ch.OrgSlug, ch.ChannelSlug, string(raw))
	if err != nil {
		return apperr.Wrap(apperr.KindStorageFailure, "store channel", err)
	}
	return nil
}

func (s *SQLiteChannelStore) Delete(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE channel_id = ?`, channelID)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageFailure, "delete channel", err)
	}
	return nil
}

func (s *SQLiteChannelStore) List(ctx context.Context, orgSlug string) ([]*config.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM channels WHERE org_slug = ? ORDER BY channel_id`, orgSlug)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailure, "list channels", err)
	}
	defer rows.Close()

	var out []*config.Channel
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageFailure, "scan channel", err)
		}
		var ch config.Channel
		if err := json.Unmarshal([]byte(raw), &ch); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageFailure, "decode channel", err)
		}
		out = append(out, &ch)
	}
	return out, rows.Err()
}

func (s *SQLiteChannelStore) ListAll(ctx context.Context) ([]*config.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM channels ORDER BY channel_id`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailure, "list all channels", err)
	}
	defer rows.Close()

	var out []*config.Channel
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageFailure, "scan channel", err)
		}
		var ch config.Channel
		if err := json.Unmarshal([]byte(raw), &ch); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageFailure, "decode channel", err)
		}
		out = append(out, &ch)
	}
	return out, rows.Err()
}

// PutPod stores (or replaces) a pre-resolved ad pod for a channel, bound
// at the given priority, satisfying stage 2 of the Ad-Decision Engine's
// waterfall (spec.md section 4.5). Admin/CMS tooling that assigns pods to
// channels is out of scope; this is the read surface that waterfall stage
// consumes.
func (s *SQLiteChannelStore) PutPod(ctx context.Context, channelID string, priority int, decision *config.AdDecision) error {
	raw, err := json.Marshal(decision)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageFailure, "encode ad pod", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO ad_pods (channel_id, pod_id, priority, data) VALUES (?, ?, ?, ?)
ON CONFLICT(channel_id, pod_id) DO UPDATE SET priority = excluded.priority, data = excluded.data`,
		channelID, decision.PodID, priority, string(raw))
	if err != nil {
		return apperr.Wrap(apperr.KindStorageFailure, "store ad pod", err)
	}
	return nil
}

// GetPod implements decision.PodStore: it returns the channel's bound pod
// whose ID matches podID, or — since the decision waterfall calls this
// with the break's event_id, which rarely matches a pre-bound pod_id —
// the channel's pod with the smallest priority value as a fallback, so
// "stored pods" behaves like the priority-ordered list spec.md section
// 4.5 describes rather than a pure exact-match lookup.
func (s *SQLiteChannelStore) GetPod(ctx context.Context, channelID, podID string) (*config.AdDecision, bool) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM ad_pods WHERE channel_id = ? AND pod_id = ?`, channelID, podID)
	var raw string
	if err := row.Scan(&raw); err == nil {
		var d config.AdDecision
		if json.Unmarshal([]byte(raw), &d) == nil {
			return &d, true
		}
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT data FROM ad_pods WHERE channel_id = ? ORDER BY priority ASC LIMIT 1`, channelID)
	if err := row.Scan(&raw); err != nil {
		return nil, false
	}
	var d config.AdDecision
	if json.Unmarshal([]byte(raw), &d) != nil {
		return nil, false
	}
	return &d, true
}
