package db

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/oauth-mail-sync/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.LinkState{},
		&models.LinkedAccount{},
		&models.Config{},
	); err != nil {
		return nil, err
	}

	// Ensure admin API key exists (generated on first run)
	ensureAPIKey(gdb)

	return gdb, nil
}

// ensureAPIKey generates the admin API key if not present
func ensureAPIKey(gdb *gorm.DB) {
	var config models.Config
	result := gdb.Where("key = ?", "api_key").First(&config)

	if result.Error != nil {
		// Generate new API key: ms-<32 hex chars>
		keyBytes := make([]byte, 16)
		rand.Read(keyBytes)
		apiKey := "ms-" + hex.EncodeToString(keyBytes)

		gdb.Create(&models.Config{
			Key:   "api_key",
			Value: apiKey,
		})
		log.Printf("🔑 Generated new admin API key: %s", apiKey)
	}
}

// GetAPIKey retrieves the admin API key from the database
func GetAPIKey(gdb *gorm.DB) string {
	var config models.Config
	gdb.Where("key = ?", "api_key").First(&config)
	return config.Value
}

// RegenerateAPIKey creates a new admin API key
func RegenerateAPIKey(gdb *gorm.DB) string {
	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)
	apiKey := "ms-" + hex.EncodeToString(keyBytes)

	gdb.Model(&models.Config{}).Where("key = ?", "api_key").Update("value", apiKey)
	log.Printf("🔑 Regenerated admin API key: %s", apiKey)
	return apiKey
}
