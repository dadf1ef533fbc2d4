package utxo

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/klingon-tech/cbrledger/internal/storage"
)

// Key prefixes for the UTXO store.
var (
	prefixUTXO  = []byte("u/") // u/<id> -> UTXO JSON
	prefixOwner = []byte("o/") // o/<owner>/<seq(8)><id> -> empty (creation-order index)
)

// Store is the persistence layer for UTXOs, keyed by id with a secondary
// per-owner index ordered by creation sequence so Select can walk
// unspent outputs oldest-first without a full scan.
type Store struct {
	db storage.DB
}

// NewStore creates a UTXO store backed by db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func utxoKey(id string) []byte {
	return append(append([]byte{}, prefixUTXO...), id...)
}

func ownerPrefix(owner string) []byte {
	return append(append(append([]byte{}, prefixOwner...), owner...), '/')
}

func ownerKey(owner string, seq uint64, id string) []byte {
	key := ownerPrefix(owner)
	key = binary.BigEndian.AppendUint64(key, seq)
	return append(key, id...)
}

// Get retrieves a UTXO by id.
func (s *Store) Get(id string) (*UTXO, error) {
	data, err := s.db.Get(utxoKey(id))
	if err != nil {
		return nil, fmt.Errorf("utxo get %s: %w", id, err)
	}
	var u UTXO
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal %s: %w", id, err)
	}
	return &u, nil
}

// Put stores a UTXO and refreshes its owner-index entry.
func (s *Store) Put(u *UTXO) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal %s: %w", u.ID, err)
	}
	if err := s.db.Put(utxoKey(u.ID), data); err != nil {
		return fmt.Errorf("utxo put %s: %w", u.ID, err)
	}
	if err := s.db.Put(ownerKey(u.Owner, u.Seq, u.ID), []byte{}); err != nil {
		return fmt.Errorf("utxo owner index put %s: %w", u.ID, err)
	}
	return nil
}

// Has reports whether a UTXO with the given id exists.
func (s *Store) Has(id string) (bool, error) {
	return s.db.Has(utxoKey(id))
}

// ForOwnerAscending iterates the UTXO ids owned by owner in ascending
// creation order, loading each one, and calls fn. Iteration stops early
// if fn returns an error.
func (s *Store) ForOwnerAscending(owner string, fn func(*UTXO) error) error {
	prefix := ownerPrefix(owner)
	off := len(prefix) + 8
	return s.db.ForEach(prefix, func(key, _ []byte) error {
		if len(key) < off {
			return nil
		}
		id := string(key[off:])
		u, err := s.Get(id)
		if err != nil {
			return nil // index entry outlived its UTXO (shouldn't happen); skip
		}
		return fn(u)
	})
}
