package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"
)

// Account holds the derived key material for the first (index 0) account of
// an HD wallet. The mnemonic is returned to the caller once and must never be
// persisted in plaintext.
type Account struct {
	Mnemonic      string `json:"mnemonic,omitempty"`
	PrivateKeyHex string `json:"privateKey"`
	PublicKeyHex  string `json:"publicKey"`
	Address       string `json:"address"`
}

// Generator derives wallet accounts from entropy or a mnemonic.
type Generator interface {
	Generate() (*Account, error)
	Restore(mnemonic string) (*Account, error)
}

type hdGenerator struct{}

// NewHDGenerator returns a BIP-39/BIP-32 backed Generator.
func NewHDGenerator() Generator {
	return hdGenerator{}
}

// Generate draws 256 bits of entropy, encodes it as a 24 word mnemonic and
// derives the index 0 account.
func (hdGenerator) Generate() (*Account, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("encode mnemonic: %w", err)
	}
	return deriveAccount(mnemonic, entropy)
}

// Restore re-derives the index 0 account from a mnemonic. The resulting
// address matches the one produced at generation time.
func (hdGenerator) Restore(mnemonic string) (*Account, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("decode mnemonic: %w", err)
	}
	return deriveAccount(mnemonic, entropy)
}

// deriveAccount seeds the HD root key directly with the mnemonic's entropy
// and derives child 0. The ethereum address is the last 20 bytes of the
// keccak256 hash of the uncompressed public key without its 0x04 prefix.
func deriveAccount(mnemonic string, entropy []byte) (*Account, error) {
	root, err := hdkeychain.NewMaster(entropy, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive hd root key: %w", err)
	}
	child, err := root.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("derive child key: %w", err)
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}

	pub := priv.PubKey().SerializeUncompressed()

	hash := sha3.NewLegacyKeccak256()
	hash.Write(pub[1:])
	sum := hash.Sum(nil)

	return &Account{
		Mnemonic:      mnemonic,
		PrivateKeyHex: hex.EncodeToString(priv.Serialize()),
		PublicKeyHex:  hex.EncodeToString(pub),
		Address:       "0x" + hex.EncodeToString(sum[12:]),
	}, nil
}
