package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/inkwell-sys/inkwell/internal/fingerprint"
)

// entryKeyPrefix namespaces generation entries inside the shared BadgerDB.
const entryKeyPrefix = "gen:"

// Store is the durable tier behind the in-memory cache. Implementations
// return errors; the Layered cache absorbs them (fail-open).
type Store interface {
	Get(ctx context.Context, fp fingerprint.Fingerprint) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	Invalidate(ctx context.Context, fp fingerprint.Fingerprint) error
}

// BadgerStore persists generation entries in BadgerDB. Expiry is enforced
// twice: Badger's native TTL reclaims the key, and Get re-checks ExpiresAt
// so an entry is never served past its expiry even before reclamation.
type BadgerStore struct {
	db *badger.DB

	// now is replaceable for expiry tests.
	now func() time.Time
}

// NewBadgerStore creates a durable store on an open BadgerDB handle.
// The handle is shared with other subsystems (audit spill) and is not
// closed by the store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

func entryKey(fp fingerprint.Fingerprint) []byte {
	return []byte(entryKeyPrefix + fp.String())
}

// Get retrieves a live entry by fingerprint.
func (s *BadgerStore) Get(ctx context.Context, fp fingerprint.Fingerprint) (Entry, bool, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(fp))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get entry: %w", err)
	}

	if entry.Expired(s.now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put persists an entry with a Badger TTL matching its expiry.
func (s *BadgerStore) Put(ctx context.Context, entry Entry) error {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(entryKey(entry.Fingerprint), data).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Invalidate removes the entry for a fingerprint.
func (s *BadgerStore) Invalidate(ctx context.Context, fp fingerprint.Fingerprint) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(entryKey(fp))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
