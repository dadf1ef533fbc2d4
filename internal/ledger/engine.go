package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/klingon-tech/cbrledger/internal/storage"
	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/clock"
	"github.com/klingon-tech/cbrledger/pkg/txn"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// ErrEmptyTransactionList is returned by AppendBlock when given no
// transactions; only the genesis block may be empty, and only via
// GenesisIfEmpty.
var ErrEmptyTransactionList = errors.New("append_block requires a non-empty transaction list")

// Engine implements the block-engine operations of spec §4.2 against a
// Store, sealing new blocks with the current tip and Clock.
type Engine struct {
	store *Store
	clock clock.Clock
}

// NewEngine creates an Engine backed by store, using clk for block
// timestamps.
func NewEngine(store *Store, clk clock.Clock) *Engine {
	return &Engine{store: store, clock: clk}
}

// GenesisIfEmpty seals and appends the height-0 block with previous_hash
// = zero and no transactions, if and only if the block store is empty.
// It is idempotent: calling it again once a genesis block exists returns
// the existing genesis block without modifying the store.
func (e *Engine) GenesisIfEmpty(signer string) (*block.Block, error) {
	if existing, ok, err := e.getBlockAtHeight(0); err != nil {
		return nil, err
	} else if ok {
		return existing, nil
	}

	b := &block.Block{
		Height:       0,
		Timestamp:    e.clock.Now().Unix(),
		Signer:       signer,
		PreviousHash: types.ZeroHash,
		TxHashes:     nil,
	}
	block.Seal(b)

	err := e.store.db.Transaction(func(t storage.Txn) error {
		if err := putBlock(t, b); err != nil {
			return err
		}
		return setTip(t, b.Hash, b.Height)
	})
	if err != nil {
		return nil, fmt.Errorf("genesis_if_empty: %w", err)
	}
	return b, nil
}

// AppendBlock requires a non-empty ordered transaction list, computes
// height and previous_hash from the current tip, seals a new block over
// their hashes, and writes it and its block-to-tx associations
// atomically.
func (e *Engine) AppendBlock(txs []*txn.Transaction, signer string) (*block.Block, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyTransactionList
	}

	tipHash, tipHeight, ok, err := e.ChainTipHashHeight()
	if err != nil {
		return nil, fmt.Errorf("append_block: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("append_block: chain has no genesis block")
	}

	txHashes := make([]types.Hash, len(txs))
	for i, t := range txs {
		txHashes[i] = t.Hash
	}

	b := &block.Block{
		Height:       tipHeight + 1,
		Timestamp:    e.clock.Now().Unix(),
		Signer:       signer,
		PreviousHash: tipHash,
		TxHashes:     txHashes,
	}
	block.Seal(b)

	err = e.store.db.Transaction(func(t storage.Txn) error {
		if err := putBlock(t, b); err != nil {
			return err
		}
		for _, tx := range txs {
			if err := putTransaction(t, tx); err != nil {
				return err
			}
		}
		return setTip(t, b.Hash, b.Height)
	})
	if err != nil {
		return nil, fmt.Errorf("append_block: %w", err)
	}
	return b, nil
}

// ErrBlockHeightConflict is returned by InsertBlock when a different
// block already occupies the given height.
var ErrBlockHeightConflict = errors.New("ledger: a different block already exists at this height")

// InsertBlock accepts an already-sealed block (and its transaction
// bodies) originating from a peer — via broadcast or sync — rather than
// building one locally. It re-validates the block's own structural
// invariants (tx count, Merkle root, hash) and its linkage to the current
// tip before writing. It does not check the block's authority signature,
// even when one is present. If a block with the same hash already
// exists at the same height, the insert is a no-op (idempotent
// re-broadcast); a different block at that height is a conflict.
func (e *Engine) InsertBlock(b *block.Block, txs []*txn.Transaction) error {
	if err := block.ValidateSelfConsistent(b); err != nil {
		return fmt.Errorf("insert_block: %w", err)
	}

	if existing, ok, err := e.getBlockAtHeight(b.Height); err != nil {
		return fmt.Errorf("insert_block: %w", err)
	} else if ok {
		if existing.Hash == b.Hash {
			return nil
		}
		return ErrBlockHeightConflict
	}

	tipHash, tipHeight, ok, err := e.ChainTipHashHeight()
	if err != nil {
		return fmt.Errorf("insert_block: %w", err)
	}
	if b.Height == 0 {
		if ok {
			return ErrBlockHeightConflict
		}
	} else {
		if !ok || b.Height != tipHeight+1 || b.PreviousHash != tipHash {
			return fmt.Errorf("insert_block: height %d does not chain from current tip", b.Height)
		}
	}

	return e.store.db.Transaction(func(t storage.Txn) error {
		if err := putBlock(t, b); err != nil {
			return err
		}
		for _, tx := range txs {
			if err := putTransaction(t, tx); err != nil {
				return err
			}
		}
		return setTip(t, b.Hash, b.Height)
	})
}

// GetTransaction retrieves a transaction body by content hash, from
// whichever block included it.
func (e *Engine) GetTransaction(hash types.Hash) (*txn.Transaction, error) {
	return getTransaction(e.store.db, hash)
}

// GetTransactionBlockHash returns the hash of the block a transaction was
// included in.
func (e *Engine) GetTransactionBlockHash(hash types.Hash) (types.Hash, error) {
	data, err := e.store.db.Get(txKey(hash))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return types.Hash{}, ErrNotFound
		}
		return types.Hash{}, fmt.Errorf("get_transaction_block_hash %s: %w", hash, err)
	}
	var h types.Hash
	copy(h[:], data)
	return h, nil
}

// GetTransactionsForBlock returns the bodies of every transaction
// included in the block with the given hash, in the block's own order.
func (e *Engine) GetTransactionsForBlock(blockHash types.Hash) ([]*txn.Transaction, error) {
	b, err := e.GetByHash(blockHash)
	if err != nil {
		return nil, fmt.Errorf("get_transactions_for_block: %w", err)
	}
	txs := make([]*txn.Transaction, 0, len(b.TxHashes))
	for _, h := range b.TxHashes {
		t, err := e.GetTransaction(h)
		if err != nil {
			return nil, fmt.Errorf("get_transactions_for_block: tx %s: %w", h, err)
		}
		txs = append(txs, t)
	}
	return txs, nil
}

// Switch atomically replaces the chain's tail above divergencePoint:
// every block at height >= divergencePoint (and its transaction
// associations) is deleted, then each block in newBlocksByHeight is
// inserted along with the transactions attributed to it in
// txsByHeight, and the tip is advanced to the highest height among the
// new blocks. It implements the atomic-replacement half of spec §4.6's
// switch operation; fork.Resolver computes the height map and
// attribution and calls this to perform the storage mutation.
func (e *Engine) Switch(divergencePoint uint64, newBlocksByHeight map[uint64]*block.Block, txsByHeight map[uint64][]*txn.Transaction) (removed, added int, err error) {
	_, tipHeight, ok, err := e.ChainTipHashHeight()
	if err != nil {
		return 0, 0, fmt.Errorf("switch: %w", err)
	}
	if !ok {
		return 0, 0, fmt.Errorf("switch: chain has no genesis block")
	}

	var newTipHash types.Hash
	var newTipHeight uint64
	haveNewTip := false

	txErr := e.store.db.Transaction(func(t storage.Txn) error {
		for h := divergencePoint; h <= tipHeight; h++ {
			hash, ok, err := getHashAtHeight(t, h)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			old, err := getBlock(t, hash)
			if err != nil {
				return err
			}
			if err := deleteBlock(t, old); err != nil {
				return err
			}
			for _, txHash := range old.TxHashes {
				if err := t.Delete(txBodyKey(txHash)); err != nil {
					return fmt.Errorf("switch: delete tx body %s: %w", txHash, err)
				}
			}
			removed++
		}

		heights := make([]uint64, 0, len(newBlocksByHeight))
		for h := range newBlocksByHeight {
			heights = append(heights, h)
		}
		sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

		for _, h := range heights {
			b := newBlocksByHeight[h]
			if err := putBlock(t, b); err != nil {
				return err
			}
			for _, tx := range txsByHeight[h] {
				if err := putTransaction(t, tx); err != nil {
					return err
				}
			}
			added++
			if !haveNewTip || h > newTipHeight {
				newTipHash, newTipHeight, haveNewTip = b.Hash, h, true
			}
		}

		if haveNewTip {
			return setTip(t, newTipHash, newTipHeight)
		}
		return nil
	})
	if txErr != nil {
		return 0, 0, fmt.Errorf("switch: %w", txErr)
	}
	return removed, added, nil
}

// ValidateChain walks blocks in ascending height, recomputing each
// block's hash and Merkle root from its stored fields and verifying
// previous_hash linkage. It returns every height whose hash mismatches
// or whose linkage to the prior block breaks.
func (e *Engine) ValidateChain() (bool, []uint64, error) {
	length, err := e.ChainLength()
	if err != nil {
		return false, nil, err
	}

	var bad []uint64
	var prev *block.Block
	for h := uint64(0); h < length; h++ {
		b, err := e.GetByHeight(h)
		if err != nil {
			bad = append(bad, h)
			continue
		}
		if err := block.ValidateSelfConsistent(b); err != nil {
			bad = append(bad, h)
			continue
		}
		if h > 0 {
			if prev == nil || b.PreviousHash != prev.Hash {
				bad = append(bad, h)
			}
		}
		prev = b
	}
	return len(bad) == 0, bad, nil
}

// GetByHash retrieves a block by its content hash.
func (e *Engine) GetByHash(hash types.Hash) (*block.Block, error) {
	return getBlock(e.store.db, hash)
}

// GetByPreviousHash retrieves the block whose previous_hash equals prev,
// if one has been appended.
func (e *Engine) GetByPreviousHash(prev types.Hash) (*block.Block, error) {
	hash, ok, err := getHashByPrev(e.store.db, prev)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return e.GetByHash(hash)
}

// GetByHeight retrieves the block at the given height.
func (e *Engine) GetByHeight(height uint64) (*block.Block, error) {
	b, ok, err := e.getBlockAtHeight(height)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (e *Engine) getBlockAtHeight(height uint64) (*block.Block, bool, error) {
	hash, ok, err := getHashAtHeight(e.store.db, height)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	b, err := getBlock(e.store.db, hash)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// GetBlocksFrom returns blocks in ascending height order starting at
// height, up to and including height to if to is non-nil, or through the
// current tip otherwise.
func (e *Engine) GetBlocksFrom(height uint64, to *uint64) ([]*block.Block, error) {
	length, err := e.ChainLength()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	end := length - 1
	if to != nil && *to < end {
		end = *to
	}

	var blocks []*block.Block
	for h := height; h <= end; h++ {
		b, err := e.GetByHeight(h)
		if err != nil {
			return nil, fmt.Errorf("get_blocks_from: height %d: %w", h, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// ChainTip returns the block at the current tip height, or ErrNotFound
// if the chain has no genesis block yet.
func (e *Engine) ChainTip() (*block.Block, error) {
	hash, _, ok, err := getTip(e.store.db)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return e.GetByHash(hash)
}

// ChainTipHashHeight returns the tip's hash and height without loading
// the full block.
func (e *Engine) ChainTipHashHeight() (types.Hash, uint64, bool, error) {
	return getTip(e.store.db)
}

// ChainLength returns the number of blocks in the chain (tip height + 1,
// or 0 if no genesis block has been appended).
func (e *Engine) ChainLength() (uint64, error) {
	_, height, ok, err := getTip(e.store.db)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return height + 1, nil
}

// HasBlock reports whether a block with the given hash has been
// appended.
func (e *Engine) HasBlock(hash types.Hash) (bool, error) {
	ok, err := e.store.db.Has(blockKey(hash))
	if err != nil {
		return false, fmt.Errorf("has_block %s: %w", hash, err)
	}
	return ok, nil
}

// ChainReader is the read surface a foreign (peer) chain must expose for
// FindCommonAncestor to walk it without depending on the full Engine.
type ChainReader interface {
	GetByHash(hash types.Hash) (*block.Block, error)
}

// FindCommonAncestor walks our chain from the tip into a hash set, then
// walks the foreign chain from otherTipHash via previous_hash lookups
// until a match is found or the foreign genesis is reached. It returns
// the matching block, or ErrNotFound if no common ancestor exists.
func (e *Engine) FindCommonAncestor(otherTipHash types.Hash, foreign ChainReader) (*block.Block, error) {
	ours := make(map[types.Hash]bool)
	tip, err := e.ChainTip()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find_common_ancestor: %w", err)
	}
	for b := tip; ; {
		ours[b.Hash] = true
		if b.Height == 0 {
			break
		}
		b, err = e.GetByHash(b.PreviousHash)
		if err != nil {
			return nil, fmt.Errorf("find_common_ancestor: walk own chain: %w", err)
		}
	}

	hash := otherTipHash
	for {
		b, err := foreign.GetByHash(hash)
		if err != nil {
			return nil, fmt.Errorf("find_common_ancestor: walk foreign chain: %w", err)
		}
		if ours[b.Hash] {
			return b, nil
		}
		if b.Height == 0 {
			return nil, ErrNotFound
		}
		hash = b.PreviousHash
	}
}

// RestoreChainFrom walks forward from startHash by repeatedly fetching
// the block whose previous_hash equals the current hash, and returns the
// ordered list (startHash's block first).
func (e *Engine) RestoreChainFrom(startHash types.Hash) ([]*block.Block, error) {
	start, err := e.GetByHash(startHash)
	if err != nil {
		return nil, fmt.Errorf("restore_chain_from: %w", err)
	}
	blocks := []*block.Block{start}

	cur := start
	for {
		next, err := e.GetByPreviousHash(cur.Hash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("restore_chain_from: %w", err)
		}
		blocks = append(blocks, next)
		cur = next
	}
	return blocks, nil
}
