package db

import (
	types "github.com/veritext/veritext-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Material{},
		&types.Chunk{},
	)
}
