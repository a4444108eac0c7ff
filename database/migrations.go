package database

import (
	"log"

	"taskpost/models"

	"gorm.io/gorm"
)

// Migrate runs AutoMigrate for every model in dependency order. Intended for
// development and tests; production schema changes are reviewed SQL.
func Migrate(db *gorm.DB) error {
	log.Println("[db] running auto-migration")
	return db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Service{},
		&models.Task{},
		&models.Bid{},
		&models.Payment{},
		&models.Transaction{},
		&models.Review{},
	)
}
