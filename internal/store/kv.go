// Package store implements the durable KV component: a typed wrapper over
// a string-keyed persistent store with atomic get/set per key and JSON
// encoding, plus a secure slot for auth secrets kept separate from
// general settings.
package store

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"
)

// Slot names for the general KV, matching the persisted state layout.
const (
	SlotNotesCache      = "notes_cache"
	SlotSyncQueue       = "sync_queue"
	SlotLastSync        = "last_sync"
	SlotPendingCount    = "pending_count"
	SlotThemePreference = "theme_preference"
)

// KV is the interface both the Badger-backed store and the in-memory test
// double implement. Reads of an absent key return ok=false and no error;
// writes are atomic per key and never panic past the caller.
type KV interface {
	Get(slot string, out any) (ok bool, err error)
	Set(slot string, value any) error
	Close() error
}

const keyPrefix = "slot:"

// BadgerKV is the production KV, backed by an embedded Badger database
// opened against a single on-disk directory. Every Set is one
// badger.Update transaction; per-slot atomicity is sufficient since no
// caller needs a cross-slot transaction.
type BadgerKV struct {
	db  *badger.DB
	log zerolog.Logger
}

// OpenBadgerKV opens (creating if absent) the Badger database at dir.
func OpenBadgerKV(dir string, log zerolog.Logger) (*BadgerKV, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger at %q: %w", dir, err)
	}
	return &BadgerKV{db: db, log: log.With().Str("component", "store.kv").Logger()}, nil
}

// Get reads slot and JSON-decodes it into out. A missing slot is not an
// error: it reports ok=false and leaves out untouched, treating a read
// failure as "empty" rather than propagating an error to the caller.
func (k *BadgerKV) Get(slot string, out any) (bool, error) {
	var raw []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + slot))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			raw = append([]byte(nil), v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		k.log.Error().Err(err).Str("slot", slot).Msg("kv read failed, treating slot as empty")
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("store: decode slot %q: %w", slot, err)
	}
	return true, nil
}

// Set JSON-encodes value and writes it as the entire contents of slot.
// Writes replace the whole slot.
func (k *BadgerKV) Set(slot string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode slot %q: %w", slot, err)
	}
	err = k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+slot), raw)
	})
	if err != nil {
		k.log.Error().Err(err).Str("slot", slot).Msg("kv write failed")
		return fmt.Errorf("store: write slot %q: %w", slot, err)
	}
	return nil
}

// Close releases the underlying Badger database.
func (k *BadgerKV) Close() error {
	return k.db.Close()
}
