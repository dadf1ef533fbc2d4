package oracle

import (
	"fmt"
	"sync"

	"github.com/klingon-tech/cbrledger/pkg/cryptoutil"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// ownerKey uniquely identifies a signing identity.
type ownerKey struct {
	kind OwnerKind
	id   string
}

// Default is the production Oracle: BLAKE3 hashing and Schnorr-over-secp256k1
// signing, grounded on pkg/cryptoutil. Keys are provisioned lazily in an
// in-memory keyring — real deployments would back this with an HSM or a
// bank-side key-management service, which is out of the core's scope
// (spec §1).
type Default struct {
	mu   sync.Mutex
	keys map[ownerKey]*cryptoutil.PrivateKey
}

// NewDefault creates a production oracle with an empty keyring.
func NewDefault() *Default {
	return &Default{keys: make(map[ownerKey]*cryptoutil.PrivateKey)}
}

// Hash computes a BLAKE3-256 digest.
func (d *Default) Hash(data []byte) types.Hash {
	return cryptoutil.Hash(data)
}

// Sign produces a Schnorr signature, provisioning a key for the owner on
// first use.
func (d *Default) Sign(ownerKind OwnerKind, ownerID string, digest types.Hash) ([]byte, error) {
	key, err := d.keyFor(ownerKind, ownerID)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("oracle sign: %w", err)
	}
	return sig, nil
}

// Verify checks a Schnorr signature against the owner's known public key.
// Returns false (never an error) for an owner never seen by Sign, since a
// signature from an unknown owner can never verify.
func (d *Default) Verify(ownerKind OwnerKind, ownerID string, digest types.Hash, signature []byte) bool {
	d.mu.Lock()
	key, ok := d.keys[ownerKey{ownerKind, ownerID}]
	d.mu.Unlock()
	if !ok {
		return false
	}
	return cryptoutil.VerifySignature(digest[:], signature, key.PublicKey())
}

func (d *Default) keyFor(kind OwnerKind, id string) (*cryptoutil.PrivateKey, error) {
	ok := ownerKey{kind, id}

	d.mu.Lock()
	defer d.mu.Unlock()

	if key, exists := d.keys[ok]; exists {
		return key, nil
	}

	key, err := cryptoutil.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("provision key for %s %q: %w", kind, id, err)
	}
	d.keys[ok] = key
	return key, nil
}
