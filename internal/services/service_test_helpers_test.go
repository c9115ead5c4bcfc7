package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelsoc/sentinel/internal/database/testutil"
	"github.com/sentinelsoc/sentinel/internal/repository"
	"github.com/sentinelsoc/sentinel/internal/vault"
	"github.com/sentinelsoc/sentinel/pkg/crypto"
)

var (
	testPasswordParams = crypto.Argon2Parameters{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32}
	testServices       = []string{"abuseipdb", "shodan", "virustotal"}
)

func newTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	key, err := vault.GenerateMasterKey()
	require.NoError(t, err)
	cipher, err := vault.NewCrypto(key, vault.WithArgon2Parameters(testPasswordParams))
	require.NoError(t, err)

	repo, err := repository.New(db, cipher, repository.Config{PasswordParams: testPasswordParams})
	require.NoError(t, err)
	return repo
}
