package blockchain

import (
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dynamiccoin/dmcd/pkg/config"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

var (
	bucketRecords = []byte("records_by_hash")
	bucketMeta    = []byte("meta")
)

// BoltStore implements ChainStore on a single bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt store: path required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(rec *ChainRecord) error {
	val, err := rec.CompactBytes()
	if err != nil {
		return err
	}
	hash := rec.Hash()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).Put(hash[:], val)
	})
}

func (s *BoltStore) Get(hash types.Hash) (*ChainRecord, error) {
	var rec *ChainRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucketRecords).Get(hash[:])
		if val == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, hash)
		}
		// val is only valid for the life of the transaction; decoding copies.
		var err error
		rec, err = RecordFromCompact(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BoltStore) SetHead(hash types.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(headKey, hash[:])
	})
}

func (s *BoltStore) Head() (*ChainRecord, error) {
	var hash types.Hash
	err := s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucketMeta).Get(headKey)
		if val == nil {
			return ErrRecordNotFound
		}
		copy(hash[:], val)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(hash)
}

// OpenStore opens the store selected by engine under dir.
// An empty dir opens an in-memory badger store.
func OpenStore(engine, dir string) (ChainStore, error) {
	switch engine {
	case "", config.EngineBadger:
		if dir == "" {
			return NewBadgerStore("")
		}
		return NewBadgerStore(filepath.Join(dir, "chaindata"))
	case config.EngineBolt:
		if dir == "" {
			return nil, fmt.Errorf("bolt store needs a data directory")
		}
		return NewBoltStore(filepath.Join(dir, "chain.db"))
	default:
		return nil, fmt.Errorf("unknown store engine %q", engine)
	}
}
