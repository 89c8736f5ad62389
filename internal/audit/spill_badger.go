package audit

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// spillKeyPrefix namespaces spilled audit records inside the shared BadgerDB.
const spillKeyPrefix = "audit:"

// BadgerSpill persists undeliverable audit records in BadgerDB. Records are
// keyed by timestamp then ID so Pending returns them in submission order.
type BadgerSpill struct {
	db *badger.DB
}

// NewBadgerSpill creates a spill store on an open BadgerDB handle. The
// handle is shared with other subsystems and is not closed by the store.
func NewBadgerSpill(db *badger.DB) *BadgerSpill {
	return &BadgerSpill{db: db}
}

func spillKey(rec Record) []byte {
	return []byte(spillKeyPrefix + rec.Timestamp.UTC().Format("20060102150405.000000000") + ":" + rec.ID)
}

// Save implements Spill.
func (s *BadgerSpill) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(spillKey(rec), data)
	})
}

// Pending returns up to limit spilled records, oldest first.
func (s *BadgerSpill) Pending(ctx context.Context, limit int) ([]Record, error) {
	var records []Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(spillKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(records) < limit; it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan spilled records: %w", err)
	}

	return records, nil
}

// Remove deletes a previously spilled record, typically after redelivery.
func (s *BadgerSpill) Remove(ctx context.Context, rec Record) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(spillKey(rec))
	})
}
