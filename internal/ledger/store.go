// Package ledger implements the block store and chain operations of spec
// §4.2: append-only block storage keyed by hash and height, chain-tip
// tracking, and the read operations the consensus, fork and node layers
// build on.
package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klingon-tech/cbrledger/internal/storage"
	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/txn"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// Key prefixes for the block store.
var (
	prefixBlock  = []byte("b/") // b/<hash32> -> block JSON
	prefixHeight = []byte("h/") // h/<height8> -> hash32
	prefixPrev   = []byte("p/") // p/<prevhash32> -> hash32 (child lookup)
	prefixTx     = []byte("x/") // x/<txhash32> -> blockhash32 (block-to-tx association)
	prefixTxBody = []byte("t/") // t/<txhash32> -> Transaction JSON
)

// Flat state keys.
var (
	keyTipHash   = []byte("s/tip_hash")
	keyTipHeight = []byte("s/tip_height")
)

// ErrNotFound is returned when a requested block does not exist.
var ErrNotFound = errors.New("block not found")

func blockKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixBlock...), hash[:]...)
}

func heightKey(height uint64) []byte {
	k := append([]byte{}, prefixHeight...)
	return binary.BigEndian.AppendUint64(k, height)
}

func prevKey(prev types.Hash) []byte {
	return append(append([]byte{}, prefixPrev...), prev[:]...)
}

func txKey(txHash types.Hash) []byte {
	return append(append([]byte{}, prefixTx...), txHash[:]...)
}

func txBodyKey(txHash types.Hash) []byte {
	return append(append([]byte{}, prefixTxBody...), txHash[:]...)
}

// kv is the minimal read/write surface shared by storage.DB and the
// storage.Txn handed to a Store.Transaction callback, letting Store's
// helpers run identically inside or outside a transaction.
type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	ForEach(prefix []byte, fn func(key, value []byte) error) error
}

// Store is the persistence layer for blocks, keyed by content hash with
// secondary indexes by height, previous-hash and transaction hash.
type Store struct {
	db storage.Store
}

// NewStore creates a block store backed by db.
func NewStore(db storage.Store) *Store {
	return &Store{db: db}
}

func getBlock(r kv, hash types.Hash) (*block.Block, error) {
	data, err := r.Get(blockKey(hash))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger get %s: %w", hash, err)
	}
	var b block.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("ledger unmarshal %s: %w", hash, err)
	}
	return &b, nil
}

func putBlock(w kv, b *block.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("ledger marshal %s: %w", b.Hash, err)
	}
	if err := w.Put(blockKey(b.Hash), data); err != nil {
		return fmt.Errorf("ledger put block %s: %w", b.Hash, err)
	}
	if err := w.Put(heightKey(b.Height), b.Hash.Bytes()); err != nil {
		return fmt.Errorf("ledger put height index %d: %w", b.Height, err)
	}
	if err := w.Put(prevKey(b.PreviousHash), b.Hash.Bytes()); err != nil {
		return fmt.Errorf("ledger put prev index %s: %w", b.PreviousHash, err)
	}
	for _, h := range b.TxHashes {
		if err := w.Put(txKey(h), b.Hash.Bytes()); err != nil {
			return fmt.Errorf("ledger put tx index %s: %w", h, err)
		}
	}
	return nil
}

func deleteBlock(w kv, b *block.Block) error {
	if err := w.Delete(blockKey(b.Hash)); err != nil {
		return fmt.Errorf("ledger delete block %s: %w", b.Hash, err)
	}
	if err := w.Delete(heightKey(b.Height)); err != nil {
		return fmt.Errorf("ledger delete height index %d: %w", b.Height, err)
	}
	if err := w.Delete(prevKey(b.PreviousHash)); err != nil {
		return fmt.Errorf("ledger delete prev index %s: %w", b.PreviousHash, err)
	}
	for _, h := range b.TxHashes {
		if err := w.Delete(txKey(h)); err != nil {
			return fmt.Errorf("ledger delete tx index %s: %w", h, err)
		}
	}
	return nil
}

func getTransaction(r kv, hash types.Hash) (*txn.Transaction, error) {
	data, err := r.Get(txBodyKey(hash))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger get tx %s: %w", hash, err)
	}
	var t txn.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("ledger unmarshal tx %s: %w", hash, err)
	}
	return &t, nil
}

func putTransaction(w kv, t *txn.Transaction) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("ledger marshal tx %s: %w", t.Hash, err)
	}
	if err := w.Put(txBodyKey(t.Hash), data); err != nil {
		return fmt.Errorf("ledger put tx %s: %w", t.Hash, err)
	}
	return nil
}

func getHashAtHeight(r kv, height uint64) (types.Hash, bool, error) {
	data, err := r.Get(heightKey(height))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return types.Hash{}, false, nil
		}
		return types.Hash{}, false, fmt.Errorf("ledger height lookup %d: %w", height, err)
	}
	var h types.Hash
	copy(h[:], data)
	return h, true, nil
}

func getHashByPrev(r kv, prev types.Hash) (types.Hash, bool, error) {
	data, err := r.Get(prevKey(prev))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return types.Hash{}, false, nil
		}
		return types.Hash{}, false, fmt.Errorf("ledger prev lookup %s: %w", prev, err)
	}
	var h types.Hash
	copy(h[:], data)
	return h, true, nil
}

func getTip(r kv) (types.Hash, uint64, bool, error) {
	hashData, err := r.Get(keyTipHash)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return types.Hash{}, 0, false, nil
		}
		return types.Hash{}, 0, false, fmt.Errorf("ledger get tip hash: %w", err)
	}
	heightData, err := r.Get(keyTipHeight)
	if err != nil {
		return types.Hash{}, 0, false, fmt.Errorf("ledger get tip height: %w", err)
	}
	var h types.Hash
	copy(h[:], hashData)
	return h, binary.BigEndian.Uint64(heightData), true, nil
}

func setTip(w kv, hash types.Hash, height uint64) error {
	if err := w.Put(keyTipHash, hash.Bytes()); err != nil {
		return fmt.Errorf("ledger set tip hash: %w", err)
	}
	heightBuf := binary.BigEndian.AppendUint64(nil, height)
	if err := w.Put(keyTipHeight, heightBuf); err != nil {
		return fmt.Errorf("ledger set tip height: %w", err)
	}
	return nil
}
