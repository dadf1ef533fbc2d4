package storage

import (
	"fmt"
	"sync"
)

// Store is the node's transactional access point (spec §6's Store
// interface): plain key/value operations outside a transaction via the
// embedded DB, plus Transaction for operations that must commit atomically
// as a group (e.g. sealing a block and writing its tx associations).
type Store interface {
	DB
	// Transaction runs fn against a scoped Txn. If fn returns a non-nil
	// error, every write made through the Txn is rolled back and the error
	// is returned to the caller; otherwise the writes commit atomically.
	Transaction(fn func(Txn) error) error
}

// NewStore wraps db with transactional semantics appropriate to its kind:
// BadgerDB gets Badger's native ACID transactions, anything else
// (MemoryDB, PrefixDB, a test fake) gets a best-effort transaction that
// buffers writes and applies them only if fn succeeds, guarded by a single
// mutex so concurrent Transaction calls serialize.
func NewStore(db DB) Store {
	if bdb, ok := db.(*BadgerDB); ok {
		return &badgerStore{BadgerDB: bdb}
	}
	return &genericStore{DB: db}
}

type badgerStore struct {
	*BadgerDB
}

func (s *badgerStore) Transaction(fn func(Txn) error) error {
	return s.BadgerDB.runTxn(fn)
}

// genericStore adds buffered-write transactions on top of any DB that
// isn't a *BadgerDB. Writes made through the Txn are staged in memory and
// flushed to the underlying DB only when fn returns nil.
type genericStore struct {
	DB
	mu sync.Mutex
}

func (s *genericStore) Transaction(fn func(Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := &bufferedTxn{base: s.DB, writes: map[string][]byte{}, deletes: map[string]bool{}}
	if err := fn(txn); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	for k := range txn.deletes {
		if err := s.DB.Delete([]byte(k)); err != nil {
			return fmt.Errorf("transaction commit: %w", err)
		}
	}
	for k, v := range txn.writes {
		if err := s.DB.Put([]byte(k), v); err != nil {
			return fmt.Errorf("transaction commit: %w", err)
		}
	}
	return nil
}

// bufferedTxn stages writes/deletes in memory, reading through to base for
// keys it hasn't touched yet so fn observes its own in-flight writes.
type bufferedTxn struct {
	base    DB
	writes  map[string][]byte
	deletes map[string]bool
}

func (t *bufferedTxn) Get(key []byte) ([]byte, error) {
	k := string(key)
	if t.deletes[k] {
		return nil, ErrKeyNotFound
	}
	if v, ok := t.writes[k]; ok {
		return v, nil
	}
	return t.base.Get(key)
}

func (t *bufferedTxn) Put(key, value []byte) error {
	k := string(key)
	delete(t.deletes, k)
	cp := make([]byte, len(value))
	copy(cp, value)
	t.writes[k] = cp
	return nil
}

func (t *bufferedTxn) Delete(key []byte) error {
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = true
	return nil
}

func (t *bufferedTxn) Has(key []byte) (bool, error) {
	k := string(key)
	if t.deletes[k] {
		return false, nil
	}
	if _, ok := t.writes[k]; ok {
		return true, nil
	}
	return t.base.Has(key)
}

func (t *bufferedTxn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	seen := map[string]bool{}
	p := string(prefix)
	for k, v := range t.writes {
		if len(k) >= len(p) && k[:len(p)] == p {
			seen[k] = true
			if err := fn([]byte(k), v); err != nil {
				return err
			}
		}
	}
	return t.base.ForEach(prefix, func(key, value []byte) error {
		k := string(key)
		if seen[k] || t.deletes[k] {
			return nil
		}
		return fn(key, value)
	})
}
