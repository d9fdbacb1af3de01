package blockchain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

var ErrRecordNotFound = errors.New("chain record not found")

// ChainStore persists chain records keyed by block hash, plus the hash of the
// current best tip. Implementations must be safe for concurrent use.
type ChainStore interface {
	Put(rec *ChainRecord) error
	Get(hash types.Hash) (*ChainRecord, error)
	SetHead(hash types.Hash) error
	Head() (*ChainRecord, error)
	Close() error
}

// Keys:
// Record by hash: "record:hash:<hash>" -> compact record
// Head:           "chain:head" -> hash
var headKey = []byte("chain:head")

func recordKey(hash types.Hash) []byte {
	return []byte(fmt.Sprintf("record:hash:%x", hash[:]))
}

// BadgerStore implements ChainStore using BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates or opens a BadgerDB store at the given path.
// If path is empty, it opens an in-memory store.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = badgerLogger{log.New("store", "badger")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Put(rec *ChainRecord) error {
	val, err := rec.CompactBytes()
	if err != nil {
		return err
	}
	hash := rec.Hash()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(hash), val)
	})
}

func (s *BadgerStore) Get(hash types.Hash) (*ChainRecord, error) {
	var rec *ChainRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, hash)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = RecordFromCompact(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BadgerStore) SetHead(hash types.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(headKey, hash[:])
	})
}

func (s *BadgerStore) Head() (*ChainRecord, error) {
	var hash types.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(headKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			copy(hash[:], val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(hash)
}

// badgerLogger routes badger's printf-style output into the node log.
type badgerLogger struct {
	l log.Logger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error(trimf(f, v)) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn(trimf(f, v)) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Debug(trimf(f, v)) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Trace(trimf(f, v)) }

func trimf(f string, v []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(f, v...))
}
