// Package oracle defines the cryptographic oracle boundary the ledger core
// depends on (spec §4.1, §6): a hash function plus a keyed sign/verify pair.
// The core only ever round-trips signatures through Verify; it never
// inspects signature bytes directly.
package oracle

import "github.com/klingon-tech/cbrledger/pkg/types"

// OwnerKind identifies which class of identity a signature belongs to.
type OwnerKind string

const (
	OwnerUser      OwnerKind = "USER"
	OwnerBank      OwnerKind = "BANK"
	OwnerAuthority OwnerKind = "AUTHORITY"
)

// Oracle is the signing/verification boundary consumed by the ledger core.
// Implementations must satisfy three properties:
//   - Hash is deterministic: Hash(x) == Hash(x) always.
//   - Sign is deterministic given identical inputs, or is randomized but
//     always produces a signature that Verify accepts.
//   - Verify is transitive: a signature produced by Sign(k, id, d) always
//     satisfies Verify(k, id, d, sig) == true.
type Oracle interface {
	// Hash computes a deterministic content digest.
	Hash(data []byte) types.Hash

	// Sign produces a signature over digest, attributed to (ownerKind, ownerID).
	// Implementations may lazily provision a keypair for an owner seen for
	// the first time.
	Sign(ownerKind OwnerKind, ownerID string, digest types.Hash) ([]byte, error)

	// Verify checks a signature over digest, attributed to (ownerKind, ownerID).
	Verify(ownerKind OwnerKind, ownerID string, digest types.Hash, signature []byte) bool
}
