package throttle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	badgerKeyPrefix  = "throttle/"
	badgerMaxRetries = 16
)

// OpenBadger opens a Badger database for counters. An empty path opens an
// in-memory database.
func OpenBadger(path string) (*badger.DB, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create throttle store directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open throttle store: %w", err)
	}
	return db, nil
}

// BadgerStorage keeps counters in Badger. Each increment is a serializable
// read-modify-write transaction retried on conflict, and every record carries
// a Badger TTL so expired windows disappear on their own.
type BadgerStorage struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerStorage wraps an open database. The caller owns db.
func NewBadgerStorage(db *badger.DB) *BadgerStorage {
	return &BadgerStorage{db: db, now: time.Now}
}

// Increment implements Storage.
func (b *BadgerStorage) Increment(ctx context.Context, key string, ttl time.Duration, limit int, blockDuration time.Duration, _ string) (Record, error) {
	k := []byte(badgerKeyPrefix + key)
	for attempt := 0; attempt < badgerMaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		var rec Record
		err := b.db.Update(func(txn *badger.Txn) error {
			var w window
			item, err := txn.Get(k)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &w) }); err != nil {
					return err
				}
			}

			now := b.now()
			rec = w.hit(now, ttl, limit, blockDuration)
			val, err := json.Marshal(&w)
			if err != nil {
				return err
			}
			// Badger TTLs have second granularity; pad so the record never
			// vanishes before its window does.
			life := w.deadline().Sub(now) + time.Second
			return txn.SetEntry(badger.NewEntry(k, val).WithTTL(life))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return Record{}, fmt.Errorf("throttle increment %s: %w", key, err)
		}
		return rec, nil
	}
	return Record{}, fmt.Errorf("throttle increment %s: %w", key, badger.ErrConflict)
}
