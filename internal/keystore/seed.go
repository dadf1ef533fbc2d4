package keystore

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// SeedSize is the length in bytes of the master seed NewMasterKey derives
// a wallet's whole HDKey tree from (512 bits).
const SeedSize = 64

// SeedFromMnemonic turns a wallet's recovery phrase back into the 512-bit
// master seed that HDKey.DeriveAddress derives every account's signing
// key from, using PBKDF2-SHA512 per BIP-39. The optional passphrase acts
// as a second factor: the same recovery phrase with a different
// passphrase reconstructs a different wallet entirely.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}
