package database

import (
	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.AuthLog{},
		&models.APICredential{},
		&models.Setting{},
	); err != nil {
		return err
	}
	return backfillUsernameKeys(db)
}

// backfillUsernameKeys fills username_key for rows created before the
// column existed.
func backfillUsernameKeys(db *gorm.DB) error {
	return db.Model(&models.User{}).
		Where("username_key IS NULL OR username_key = ''").
		UpdateColumn("username_key", gorm.Expr("LOWER(username)")).Error
}

// SeedData populates default settings. Existing rows are left untouched.
func SeedData(db *gorm.DB) error {
	for _, setting := range DefaultSettings() {
		if err := db.Where(models.Setting{Key: setting.Key}).Attrs(setting).FirstOrCreate(&models.Setting{}).Error; err != nil {
			return err
		}
	}
	return nil
}
