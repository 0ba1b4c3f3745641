package reconcile

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/eduvpn/eduvpn-core/internal/util"
	"github.com/go-errors/errors"
	bolt "go.etcd.io/bbolt"
)

// BoltStore is a store that persists the records in a bbolt database
// Every group is a bucket, the keys are the local storage paths
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database "servers.db" in directory
func OpenBoltStore(directory string) (*BoltStore, error) {
	if err := util.EnsureDirectory(directory); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(directory, "servers.db"), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed opening server database", 0)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// Records returns the records of a group sorted by ID
func (b *BoltStore) Records(group string) ([]Record, error) {
	var records []Record
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(group))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed decoding record: '%s': %w", k, err)
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// Commit applies the diff in a single transaction
// An error anywhere rolls back the whole transaction
func (b *BoltStore) Commit(group string, d Diff) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(group))
		if err != nil {
			return err
		}
		for _, r := range d.Deleted {
			if err := bkt.Delete([]byte(r.LocalStoragePath)); err != nil {
				return err
			}
		}
		put := func(r Record, exists bool) error {
			if r.Group != group {
				return fmt.Errorf("record: '%s' belongs to group: '%s', not: '%s'", r.ID, r.Group, group)
			}
			if (bkt.Get([]byte(r.LocalStoragePath)) != nil) != exists {
				return fmt.Errorf("record: '%s' has an unexpected state in the database", r.ID)
			}
			v, err := json.Marshal(r)
			if err != nil {
				return err
			}
			return bkt.Put([]byte(r.LocalStoragePath), v)
		}
		for _, r := range d.Updated {
			if err := put(r, true); err != nil {
				return err
			}
		}
		for _, r := range d.Inserted {
			if err := put(r, false); err != nil {
				return err
			}
		}
		return nil
	})
}
