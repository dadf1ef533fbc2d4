package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/klingon-tech/cbrledger/pkg/cryptoutil"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// Block is a sealed, immutable unit of the replicated chain (spec §3).
//
// Hash is the block's own content hash, computed by ComputeHash over the
// height, timestamp, previous hash, signer, nonce, Merkle root and the
// ordered transaction hashes (not TxCount or AuthoritySig), and stored rather
// than recomputed on every read so that a storage round trip can assert
// equality against it.
type Block struct {
	Height       uint64     `json:"height"`
	Timestamp    int64      `json:"timestamp"` // unix seconds, UTC
	Signer       string     `json:"signer"`    // node id of the sealing node
	Nonce        uint64     `json:"nonce"`
	MerkleRoot   types.Hash `json:"merkle_root"`
	PreviousHash types.Hash `json:"previous_hash"`
	TxHashes     []types.Hash `json:"tx_hashes"`
	TxCount      int        `json:"tx_count"`
	Hash         types.Hash `json:"hash"`
	AuthoritySig []byte     `json:"authority_sig,omitempty"`
}

// blockJSON mirrors Block with a hex-encoded AuthoritySig.
type blockJSON struct {
	Height       uint64       `json:"height"`
	Timestamp    int64        `json:"timestamp"`
	Signer       string       `json:"signer"`
	Nonce        uint64       `json:"nonce"`
	MerkleRoot   types.Hash   `json:"merkle_root"`
	PreviousHash types.Hash   `json:"previous_hash"`
	TxHashes     []types.Hash `json:"tx_hashes"`
	TxCount      int          `json:"tx_count"`
	Hash         types.Hash   `json:"hash"`
	AuthoritySig string       `json:"authority_sig,omitempty"`
}

// MarshalJSON hex-encodes the authority signature.
func (b *Block) MarshalJSON() ([]byte, error) {
	j := blockJSON{
		Height: b.Height, Timestamp: b.Timestamp, Signer: b.Signer, Nonce: b.Nonce,
		MerkleRoot: b.MerkleRoot, PreviousHash: b.PreviousHash, TxHashes: b.TxHashes,
		TxCount: b.TxCount, Hash: b.Hash,
	}
	if b.AuthoritySig != nil {
		j.AuthoritySig = hex.EncodeToString(b.AuthoritySig)
	}
	return json.Marshal(j)
}

// UnmarshalJSON hex-decodes the authority signature.
func (b *Block) UnmarshalJSON(data []byte) error {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	b.Height, b.Timestamp, b.Signer, b.Nonce = j.Height, j.Timestamp, j.Signer, j.Nonce
	b.MerkleRoot, b.PreviousHash, b.TxHashes, b.TxCount, b.Hash = j.MerkleRoot, j.PreviousHash, j.TxHashes, j.TxCount, j.Hash
	if j.AuthoritySig != "" {
		sig, err := hex.DecodeString(j.AuthoritySig)
		if err != nil {
			return err
		}
		b.AuthoritySig = sig
	}
	return nil
}

// SigningBytes returns the canonical byte encoding hashed to produce Hash.
// Format: height(8) | timestamp(8) | previous_hash(32) | signer_len(4) |
// signer | nonce(8) | merkle_root(32) | [tx_hash(32)]...
//
// This matches the spec's content-hash formula
// H(height‖timestamp‖previous_hash‖signer‖nonce‖merkle_root‖[tx_hashes]),
// including every transaction hash directly in addition to the Merkle
// root — a stronger binding than the teacher's header hash, which covers
// only the Merkle root.
func (b *Block) SigningBytes() []byte {
	buf := make([]byte, 0, 8+8+32+4+len(b.Signer)+8+32+len(b.TxHashes)*types.HashSize)
	buf = binary.BigEndian.AppendUint64(buf, b.Height)
	buf = binary.BigEndian.AppendUint64(buf, uint64(b.Timestamp))
	buf = append(buf, b.PreviousHash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.Signer)))
	buf = append(buf, b.Signer...)
	buf = binary.BigEndian.AppendUint64(buf, b.Nonce)
	buf = append(buf, b.MerkleRoot[:]...)
	for _, h := range b.TxHashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

// ComputeHash computes the block's content hash from its fields, excluding
// AuthoritySig (which is computed over Hash itself, so including it would
// be circular).
func (b *Block) ComputeHash() types.Hash {
	return cryptoutil.Hash(b.SigningBytes())
}

// ComputeNonce derives the deterministic proof-of-authority nonce from a
// block's height and previous hash, per spec §4.2's "deterministic function
// of (height, previous hash)" placeholder rule.
func ComputeNonce(height uint64, previousHash types.Hash) uint64 {
	buf := make([]byte, 0, 8+types.HashSize)
	buf = binary.BigEndian.AppendUint64(buf, height)
	buf = append(buf, previousHash[:]...)
	h := cryptoutil.Hash(buf)
	return binary.BigEndian.Uint64(h[:8])
}
