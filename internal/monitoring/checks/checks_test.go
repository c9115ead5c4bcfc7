package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelsoc/sentinel/internal/database"
	"github.com/sentinelsoc/sentinel/internal/database/testutil"
	"github.com/sentinelsoc/sentinel/internal/monitoring"
)

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	ctx := context.Background()

	require.Equal(t, monitoring.StatusUp, Database(db, 0).Run(ctx).Status)
	require.Equal(t, monitoring.StatusDown, Database(nil, 0).Run(ctx).Status)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	require.Equal(t, monitoring.StatusDown, Database(db, 0).Run(ctx).Status)
}

func TestKeyFingerprintCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	ctx := context.Background()

	// Nothing recorded yet.
	require.Equal(t, monitoring.StatusUp, KeyFingerprint(db, "aaaa").Run(ctx).Status)

	mismatch, err := database.EnsureKeyFingerprint(ctx, db, "aaaa")
	require.NoError(t, err)
	require.False(t, mismatch)

	require.Equal(t, monitoring.StatusUp, KeyFingerprint(db, "aaaa").Run(ctx).Status)

	res := KeyFingerprint(db, "bbbb").Run(ctx)
	require.Equal(t, monitoring.StatusDegraded, res.Status)
	require.Contains(t, res.Details, "does not match")

	require.Equal(t, monitoring.StatusDown, KeyFingerprint(db, "").Run(ctx).Status)
}
