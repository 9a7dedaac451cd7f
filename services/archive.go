package services

import (
	"gorm.io/gorm"

	"github.com/arthurkowalsky/timetune/models"
)

// GormArchive persists finished games to Postgres.
type GormArchive struct {
	db *gorm.DB
}

func NewGormArchive(db *gorm.DB) *GormArchive {
	return &GormArchive{db: db}
}

func (a *GormArchive) SaveResult(result *models.GameResult) error {
	return a.db.Create(result).Error
}
