package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dashif-labs/ssaigw/internal/config"
	"github.com/dashif-labs/ssaigw/pkg/apperr"
)

// ChannelRecord is the Channel Coordinator's full durable unit: the
// active break, if any, plus the state that must survive the break
// being cleared — the monotonic version counter, the SCTE-35 dedup
// set, and the pinned serving mode per event (spec.md section 6,
// "Persisted state layout").
type ChannelRecord struct {
	ChannelID       string               `json:"channel_id"`
	ActiveBreak     *config.AdBreakState `json:"active_break,omitempty"`
	Version         uint64               `json:"version"`
	DedupSet        []string             `json:"dedup_set,omitempty"`
	LastServedModes map[string]string    `json:"last_served_modes,omitempty"`
}

// StateStore durably persists each channel's ChannelRecord, so a
// Channel Coordinator restart recovers in-flight breaks, its version
// counter, its dedup set and its mode pins instead of losing them. The
// Coordinator writes through this store before releasing its
// per-channel lock (spec.md section 4.6).
type StateStore interface {
	Load(channelID string) (*ChannelRecord, error)
	Save(record *ChannelRecord) error
	Close() error
}

// ErrNoState is returned by Load when a channel has no persisted record.
var ErrNoState = errors.New("store: no persisted state for channel")

// BadgerStateStore is a StateStore backed by an embedded badger LSM-tree
// database: one key per channel, JSON-encoded ChannelRecord as the value.
type BadgerStateStore struct {
	db *badger.DB
}

// OpenBadgerStateStore opens (or creates) the badger database at dir.
func OpenBadgerStateStore(dir string) (*BadgerStateStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &BadgerStateStore{db: db}, nil
}

func stateKey(channelID string) []byte {
	return []byte("state:" + channelID)
}

func (s *BadgerStateStore) Load(channelID string) (*ChannelRecord, error) {
	var record ChannelRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(channelID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoState
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNoState) {
			return nil, ErrNoState
		}
		return nil, apperr.Wrap(apperr.KindStorageFailure, "load channel record", err)
	}
	return &record, nil
}

func (s *BadgerStateStore) Save(record *ChannelRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageFailure, "encode channel record", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(record.ChannelID), raw)
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStorageFailure, "save channel record", err)
	}
	return nil
}

func (s *BadgerStateStore) Close() error {
	return s.db.Close()
}
