package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKeyArgon2id(t *testing.T) {
	secret := []byte("vault-master-key")
	saltA := bytes.Repeat([]byte{0x01}, MinSaltLength)
	saltB := bytes.Repeat([]byte{0x02}, MinSaltLength)

	first, err := DeriveKeyArgon2id(secret, saltA, cheapParams())
	require.NoError(t, err)
	require.Len(t, first, 32)

	again, err := DeriveKeyArgon2id(secret, saltA, cheapParams())
	require.NoError(t, err)
	require.Equal(t, first, again)

	other, err := DeriveKeyArgon2id(secret, saltB, cheapParams())
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestDeriveKeyArgon2idRejectsInput(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, MinSaltLength)

	_, err := DeriveKeyArgon2id(nil, salt, cheapParams())
	require.ErrorIs(t, err, ErrEmptySecret)

	_, err = DeriveKeyArgon2id([]byte("k"), salt[:8], cheapParams())
	require.ErrorIs(t, err, ErrShortSalt)

	bad := cheapParams()
	bad.KeyLength = 20
	_, err = DeriveKeyArgon2id([]byte("k"), salt, bad)
	require.ErrorIs(t, err, ErrBadParams)
}

func TestArgon2ParametersValidate(t *testing.T) {
	require.NoError(t, DefaultArgon2Params().Validate())
	require.NoError(t, DefaultPasswordParams().Validate())

	for name, p := range map[string]Argon2Parameters{
		"zero time":      {Memory: 64 << 10, Threads: 4, KeyLength: 32},
		"zero threads":   {Time: 2, Memory: 64 << 10, KeyLength: 32},
		"starved memory": {Time: 2, Memory: 16, Threads: 4, KeyLength: 32},
		"no key length":  {Time: 2, Memory: 64 << 10, Threads: 4},
		"oversized key":  {Time: 2, Memory: 64 << 10, Threads: 4, KeyLength: 48},
	} {
		require.ErrorIs(t, p.Validate(), ErrBadParams, name)
	}

	require.True(t, Argon2Parameters{}.IsZero())
	require.False(t, DefaultPasswordParams().IsZero())
}
