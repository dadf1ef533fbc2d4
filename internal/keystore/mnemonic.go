// Package keystore implements client-side HD wallet key management: BIP-39
// mnemonics, BIP-32 derivation and an encrypted on-disk keystore file per
// wallet. It is explicitly a client concern, not a ledger one — nothing
// under internal/ledger, internal/utxo or internal/node imports it; a node
// holds balances and validates signatures, it never custodies a user's
// private key.
package keystore

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size for a wallet's 24-word recovery
// phrase. 256 bits rather than BIP-39's minimum 128 because a CBR wallet
// custodies central-bank-issued balances directly (no recovery service to
// fall back to), so the recovery phrase is sized for the strongest
// standard word count rather than the shortest one BIP-39 permits.
const MnemonicEntropyBits = 256

// GenerateMnemonic creates a new 24-word recovery phrase for a wallet's
// master seed. Keystore.Create does not call it: the caller turns the
// phrase into a seed with SeedFromMnemonic and passes that seed in.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks whether a recovery phrase a wallet owner types
// back in is well-formed per BIP-39 (correct word count, valid words,
// valid checksum) before it is trusted to re-derive that wallet's signing
// keys.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}
