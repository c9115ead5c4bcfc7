package vault

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelsoc/sentinel/pkg/crypto"
)

// fastParams keeps Argon2 cheap in tests.
func fastParams() Option {
	return WithArgon2Parameters(crypto.Argon2Parameters{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32})
}

func newTestCrypto(t *testing.T) *Crypto {
	t.Helper()
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	c, err := NewCrypto(key, fastParams())
	require.NoError(t, err)
	return c
}

func TestNewCryptoDerivesSalt(t *testing.T) {
	master, err := hex.DecodeString("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	vaultCrypto, err := NewCrypto(master, fastParams())
	require.NoError(t, err)

	require.Equal(t, deriveSalt(master), vaultCrypto.Salt())
	require.Len(t, vaultCrypto.Fingerprint(), 16)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCrypto(t)

	for _, plaintext := range []string{
		"",
		"a",
		"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		"ключ-🔑-clé",
	} {
		ciphertext, err := c.EncryptString(plaintext)
		require.NoError(t, err)
		if len(plaintext) >= 16 {
			require.NotContains(t, ciphertext, plaintext)
			require.NotContains(t, ciphertext, base64.StdEncoding.EncodeToString([]byte(plaintext)))
		}

		decrypted, err := c.DecryptString(ciphertext)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	c := newTestCrypto(t)

	first, err := c.EncryptString("same-secret")
	require.NoError(t, err)
	second, err := c.EncryptString("same-secret")
	require.NoError(t, err)

	require.NotEqual(t, first, second)

	for _, ciphertext := range []string{first, second} {
		plaintext, err := c.DecryptString(ciphertext)
		require.NoError(t, err)
		require.Equal(t, "same-secret", plaintext)
	}
}

func TestDecryptTamperingDetected(t *testing.T) {
	c := newTestCrypto(t)

	ciphertext, err := c.EncryptString("vault data")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = c.DecryptString(base64.StdEncoding.EncodeToString(raw))
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptMalformedInput(t *testing.T) {
	c := newTestCrypto(t)

	for _, input := range []string{"", "not base64!", "AAAA"} {
		plaintext, err := c.DecryptString(input)
		require.ErrorIs(t, err, ErrDecrypt)
		require.Empty(t, plaintext)
	}
}

func TestDecryptWithOtherKeyFails(t *testing.T) {
	sealer := newTestCrypto(t)
	other := newTestCrypto(t)

	ciphertext, err := sealer.EncryptString("api-key")
	require.NoError(t, err)

	_, err = other.DecryptString(ciphertext)
	require.ErrorIs(t, err, ErrDecrypt)
	require.NotEqual(t, sealer.Fingerprint(), other.Fingerprint())
}

func TestNewCryptoWithCustomSalt(t *testing.T) {
	master := []byte("master-secret")
	customSalt := bytes.Repeat([]byte{0x5A}, 32)

	vaultCrypto, err := NewCrypto(master, WithSalt(customSalt), fastParams())
	require.NoError(t, err)
	require.Equal(t, customSalt, vaultCrypto.Salt())
}

func TestNewCryptoValidatesArgs(t *testing.T) {
	_, err := NewCrypto(nil)
	require.Error(t, err)

	master := []byte("master")
	_, err = NewCrypto(master, WithSalt([]byte("short")))
	require.Error(t, err)

	params := crypto.DefaultArgon2Params()
	params.KeyLength = 20
	_, err = NewCrypto(master, WithArgon2Parameters(params))
	require.Error(t, err)
}
