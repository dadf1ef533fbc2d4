// Package block defines the sealed block type, its content-hash rule, and
// the Merkle tree builder used to summarise a block's transactions.
package block

import (
	"github.com/klingon-tech/cbrledger/pkg/cryptoutil"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// emptyMerkleToken is hashed to produce the Merkle root of a block with no
// transactions.
const emptyMerkleToken = "EMPTY"

// ComputeMerkleRoot calculates the Merkle root of an ordered list of
// transaction hashes.
//
// Rule:
//   - 0 hashes: hash of the fixed token "EMPTY".
//   - 1 hash: returns that hash.
//   - Otherwise: pair adjacent hashes at each level, duplicating the last
//     element if the level has odd length, hash by concatenation, and
//     repeat until one hash remains.
func ComputeMerkleRoot(txHashes []types.Hash) types.Hash {
	if len(txHashes) == 0 {
		return cryptoutil.Hash([]byte(emptyMerkleToken))
	}
	if len(txHashes) == 1 {
		return txHashes[0]
	}

	level := make([]types.Hash, len(txHashes))
	copy(level, txHashes)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = cryptoutil.HashConcat(level[i], level[i+1])
		}
		level = next
	}

	return level[0]
}
