// Package fork implements the chain-selection and atomic-switch logic of
// spec §4.6: detecting a divergent peer chain, deciding whether to adopt
// it, and replacing the local tail with the remote one in a single
// storage transaction.
package fork

import (
	"errors"
	"fmt"

	"github.com/klingon-tech/cbrledger/internal/ledger"
	"github.com/klingon-tech/cbrledger/internal/storage"
	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/txn"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// attributionWindowSeconds bounds how far a transaction's timestamp may
// drift from a candidate block's timestamp when Switch attributes
// incoming transactions to the new blocks that contain them.
const attributionWindowSeconds = 3600

// ForkInfo describes a detected divergence between the local chain and a
// peer's chain.
type ForkInfo struct {
	AncestorHeight  uint64
	AncestorHash    types.Hash
	OurLength       uint64 // blocks on our side, above the ancestor
	OtherLength     uint64 // blocks on the peer's side, above the ancestor
	DivergencePoint uint64 // ancestor height + 1
}

// Resolver detects and resolves forks against the local ledger.
type Resolver struct {
	ledger *ledger.Engine
}

// NewResolver creates a Resolver operating on l.
func NewResolver(l *ledger.Engine) *Resolver {
	return &Resolver{ledger: l}
}

// Detect returns a ForkInfo when the local tip differs from otherTipHash
// and both chains trace back to a common ancestor, or (nil, nil) when
// the chains agree on the tip.
func (r *Resolver) Detect(otherTipHash types.Hash, other ledger.ChainReader) (*ForkInfo, error) {
	ourTip, err := r.ledger.ChainTip()
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if ourTip.Hash == otherTipHash {
		return nil, nil
	}

	ancestor, err := r.ledger.FindCommonAncestor(otherTipHash, other)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	otherTip, err := other.GetByHash(otherTipHash)
	if err != nil {
		return nil, fmt.Errorf("detect: load other tip: %w", err)
	}

	return &ForkInfo{
		AncestorHeight:  ancestor.Height,
		AncestorHash:    ancestor.Hash,
		OurLength:       ourTip.Height - ancestor.Height,
		OtherLength:     otherTip.Height - ancestor.Height,
		DivergencePoint: ancestor.Height + 1,
	}, nil
}

// Resolve applies the chain-selection rule: the longer chain wins, ties
// broken by an earlier tip timestamp. It returns whether the node should
// switch to the other branch and how many of its own blocks that switch
// would remove.
func (r *Resolver) Resolve(fork *ForkInfo, otherBlocks []*block.Block) (bool, uint64, error) {
	if len(otherBlocks) == 0 {
		return false, 0, fmt.Errorf("resolve: otherBlocks is empty")
	}
	otherTip := otherBlocks[len(otherBlocks)-1]

	if fork.OtherLength > fork.OurLength {
		return true, fork.OurLength, nil
	}
	if fork.OtherLength < fork.OurLength {
		return false, 0, nil
	}

	ourTip, err := r.ledger.ChainTip()
	if err != nil {
		return false, 0, fmt.Errorf("resolve: %w", err)
	}
	if otherTip.Timestamp < ourTip.Timestamp {
		return true, fork.OurLength, nil
	}
	return false, 0, nil
}

// ValidateChainSwitch verifies that newBlocks form a contiguous chain
// rooted at ancestorHash: each block is internally self-consistent, the
// first block's previous_hash equals ancestorHash, and each subsequent
// block's previous_hash equals the prior block's hash.
func ValidateChainSwitch(ancestorHash types.Hash, newBlocks []*block.Block) error {
	if len(newBlocks) == 0 {
		return errors.New("validate_chain_switch: no blocks to switch to")
	}
	prevHash := ancestorHash
	for i, b := range newBlocks {
		if err := block.ValidateSelfConsistent(b); err != nil {
			return fmt.Errorf("validate_chain_switch: block at height %d: %w", b.Height, err)
		}
		if b.PreviousHash != prevHash {
			return fmt.Errorf("validate_chain_switch: block %d previous_hash mismatch", i)
		}
		prevHash = b.Hash
	}
	return nil
}

// Switch atomically replaces the local chain's tail above
// fork.DivergencePoint with newBlocks, attributing each of newTxs to the
// new block whose timestamp is closest to its own (within
// attributionWindowSeconds). It returns the number of blocks removed
// and added.
func (r *Resolver) Switch(fork *ForkInfo, newBlocks []*block.Block, newTxs []*txn.Transaction) (removed, added int, err error) {
	if err := ValidateChainSwitch(fork.AncestorHash, newBlocks); err != nil {
		return 0, 0, fmt.Errorf("switch: %w", err)
	}

	byHeight := make(map[uint64]*block.Block, len(newBlocks))
	for _, b := range newBlocks {
		if existing, ok := byHeight[b.Height]; !ok || b.Hash != existing.Hash {
			byHeight[b.Height] = b
		}
	}

	txByBlock := attributeTransactions(byHeight, newTxs)

	removedCount, addedCount, err := r.ledger.Switch(fork.DivergencePoint, byHeight, txByBlock)
	if err != nil {
		return 0, 0, fmt.Errorf("switch: %w", err)
	}
	return removedCount, addedCount, nil
}

// attributeTransactions assigns each transaction to the block (by
// height) whose timestamp is closest to the transaction's own,
// restricted to candidates within attributionWindowSeconds.
func attributeTransactions(byHeight map[uint64]*block.Block, txs []*txn.Transaction) map[uint64][]*txn.Transaction {
	result := make(map[uint64][]*txn.Transaction, len(byHeight))
	for _, t := range txs {
		var bestHeight uint64
		var bestDiff int64 = -1
		found := false
		for h, b := range byHeight {
			diff := t.Timestamp - b.Timestamp
			if diff < 0 {
				diff = -diff
			}
			if diff > attributionWindowSeconds {
				continue
			}
			if !found || diff < bestDiff {
				bestHeight, bestDiff, found = h, diff, true
			}
		}
		if found {
			result[bestHeight] = append(result[bestHeight], t)
		}
	}
	return result
}
