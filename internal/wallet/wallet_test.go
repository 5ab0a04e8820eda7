package wallet

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

func TestGenerate(t *testing.T) {
	t.Parallel()

	gen := NewHDGenerator()
	acct, err := gen.Generate()
	require.NoError(t, err)

	assert.Len(t, strings.Fields(acct.Mnemonic), 24, "256 bit entropy yields a 24 word mnemonic")
	assert.Regexp(t, addressPattern, acct.Address)
	assert.Len(t, acct.PrivateKeyHex, 64)
	assert.Len(t, acct.PublicKeyHex, 130, "uncompressed secp256k1 public key")
}

func TestGenerateUniqueAccounts(t *testing.T) {
	t.Parallel()

	gen := NewHDGenerator()
	first, err := gen.Generate()
	require.NoError(t, err)
	second, err := gen.Generate()
	require.NoError(t, err)

	assert.NotEqual(t, first.Mnemonic, second.Mnemonic)
	assert.NotEqual(t, first.Address, second.Address)
}

func TestRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	gen := NewHDGenerator()
	acct, err := gen.Generate()
	require.NoError(t, err)

	restored, err := gen.Restore(acct.Mnemonic)
	require.NoError(t, err)

	assert.Equal(t, acct.Address, restored.Address)
	assert.Equal(t, acct.PrivateKeyHex, restored.PrivateKeyHex)
	assert.Equal(t, acct.PublicKeyHex, restored.PublicKeyHex)
}

func TestRestoreTrimsWhitespace(t *testing.T) {
	t.Parallel()

	gen := NewHDGenerator()
	acct, err := gen.Generate()
	require.NoError(t, err)

	restored, err := gen.Restore("  " + acct.Mnemonic + "\n")
	require.NoError(t, err)
	assert.Equal(t, acct.Address, restored.Address)
}

func TestRestoreInvalidMnemonic(t *testing.T) {
	t.Parallel()

	gen := NewHDGenerator()
	_, err := gen.Restore("definitely not a valid seed phrase")
	assert.Error(t, err)
}
