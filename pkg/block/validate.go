package block

import (
	"errors"
	"fmt"

	"github.com/klingon-tech/cbrledger/pkg/types"
)

// Structural validation errors.
var (
	ErrMerkleMismatch    = errors.New("merkle root does not match transaction hashes")
	ErrHashMismatch      = errors.New("stored hash does not match recomputed content hash")
	ErrTxCountMismatch   = errors.New("tx_count does not match number of tx hashes")
	ErrBadGenesisPrev    = errors.New("genesis block must have zero previous_hash")
	ErrNonGenesisHasZero = errors.New("non-genesis block must not have zero previous_hash")
)

// ValidateSelfConsistent checks a single block's internally-derivable
// invariants: its stored hash and Merkle root both recompute correctly from
// its own fields, and tx_count agrees with the transaction hash list.
// It does not check chain linkage — that is the ledger engine's job, since
// it requires the previous block.
func ValidateSelfConsistent(b *Block) error {
	if b.TxCount != len(b.TxHashes) {
		return fmt.Errorf("%w: tx_count=%d, len(tx_hashes)=%d", ErrTxCountMismatch, b.TxCount, len(b.TxHashes))
	}

	wantRoot := ComputeMerkleRoot(b.TxHashes)
	if wantRoot != b.MerkleRoot {
		return fmt.Errorf("%w: height %d", ErrMerkleMismatch, b.Height)
	}

	wantHash := b.ComputeHash()
	if wantHash != b.Hash {
		return fmt.Errorf("%w: height %d", ErrHashMismatch, b.Height)
	}

	if b.Height == 0 {
		if !b.PreviousHash.IsZero() {
			return fmt.Errorf("%w", ErrBadGenesisPrev)
		}
	} else if b.PreviousHash.IsZero() {
		return fmt.Errorf("%w: height %d", ErrNonGenesisHasZero, b.Height)
	}

	return nil
}

// Seal fills in Nonce, MerkleRoot and Hash from the block's other fields.
// Height, Timestamp, Signer, PreviousHash and TxHashes must already be set.
func Seal(b *Block) {
	b.TxCount = len(b.TxHashes)
	b.Nonce = ComputeNonce(b.Height, b.PreviousHash)
	b.MerkleRoot = ComputeMerkleRoot(b.TxHashes)
	b.Hash = b.ComputeHash()
}

// ZeroPreviousHash is the sentinel previous_hash for the genesis block.
var ZeroPreviousHash = types.ZeroHash
