package oracle

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"sync"

	"github.com/klingon-tech/cbrledger/pkg/cryptoutil"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// Fake is a deterministic HMAC-based Oracle for tests: no asymmetric
// cryptography, no key generation cost, and signatures are verifiable only
// by an oracle instance that shares the same per-owner secret. It satisfies
// the same Oracle contract as Default (hash determinism, sign-then-verify
// transitivity) without depending on real key material.
type Fake struct {
	mu      sync.Mutex
	secrets map[ownerKey][]byte
}

// NewFake creates a fake oracle with an empty secret keyring.
func NewFake() *Fake {
	return &Fake{secrets: make(map[ownerKey][]byte)}
}

// Hash computes a BLAKE3-256 digest, identical to Default.
func (f *Fake) Hash(data []byte) types.Hash {
	return cryptoutil.Hash(data)
}

// Sign computes HMAC-SHA256(secret, digest), provisioning a random secret
// for the owner on first use.
func (f *Fake) Sign(ownerKind OwnerKind, ownerID string, digest types.Hash) ([]byte, error) {
	secret := f.secretFor(ownerKind, ownerID)
	mac := hmac.New(sha256.New, secret)
	mac.Write(digest[:])
	return mac.Sum(nil), nil
}

// Verify recomputes the HMAC and compares in constant time.
func (f *Fake) Verify(ownerKind OwnerKind, ownerID string, digest types.Hash, signature []byte) bool {
	f.mu.Lock()
	secret, ok := f.secrets[ownerKey{ownerKind, ownerID}]
	f.mu.Unlock()
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(digest[:])
	return hmac.Equal(mac.Sum(nil), signature)
}

func (f *Fake) secretFor(kind OwnerKind, id string) []byte {
	ok := ownerKey{kind, id}

	f.mu.Lock()
	defer f.mu.Unlock()

	if s, exists := f.secrets[ok]; exists {
		return s
	}

	s := make([]byte, 32)
	_, _ = rand.Read(s)
	f.secrets[ok] = s
	return s
}
