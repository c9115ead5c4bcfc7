package checks

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/internal/database"
	"github.com/sentinelsoc/sentinel/internal/monitoring"
)

// KeyFingerprint reports degraded when the loaded master key is not the one
// recorded in the database. Stored API keys cannot be decrypted in that state.
func KeyFingerprint(db *gorm.DB, fingerprint string) monitoring.Check {
	return monitoring.NewCheck("vault", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if strings.TrimSpace(fingerprint) == "" {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "master key not loaded"}
		}

		stored, err := database.GetSystemSetting(ctx, db, database.KeyFingerprintSetting)
		if err != nil {
			return monitoring.ResultFromError(err, time.Since(start))
		}
		if stored != "" && stored != fingerprint {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "master key does not match stored credentials",
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}
