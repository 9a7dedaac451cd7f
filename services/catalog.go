package services

import (
	"encoding/json"
	"errors"
	"log"
	"os"

	"gorm.io/gorm"

	"github.com/arthurkowalsky/timetune/models"
)

// FilterByCategory keeps songs matching category; "all" or empty passes
// everything through.
func FilterByCategory(songs []models.Song, category string) []models.Song {
	if category == "" || category == "all" {
		return songs
	}
	var out []models.Song
	for _, s := range songs {
		if s.Category == category {
			out = append(out, s)
		}
	}
	return out
}

// FilterByEra keeps songs from the given era; "all" or empty passes
// everything through.
func FilterByEra(songs []models.Song, era string) []models.Song {
	if era == "" || era == "all" {
		return songs
	}
	var out []models.Song
	for _, s := range songs {
		if s.Era() == era {
			out = append(out, s)
		}
	}
	return out
}

// CatalogService serves the song catalog the lobby builds decks from.
type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// List returns the catalog filtered by category and era, both optional.
func (s *CatalogService) List(category, era string) ([]models.Song, error) {
	query := s.db.Model(&models.Song{})

	if category != "" && category != "all" {
		query = query.Where("category = ?", category)
	}
	switch era {
	case "oldSchool":
		query = query.Where("year < ?", models.NewSchoolStartYear)
	case "newSchool":
		query = query.Where("year >= ?", models.NewSchoolStartYear)
	}

	var songs []models.Song
	if err := query.Order("year asc, title asc").Find(&songs).Error; err != nil {
		return nil, err
	}
	return songs, nil
}

// CatalogCounts backs the lobby's selector badges.
type CatalogCounts struct {
	Total         int64 `json:"total"`
	Polish        int64 `json:"polish"`
	International int64 `json:"international"`
	OldSchool     int64 `json:"oldSchool"`
	NewSchool     int64 `json:"newSchool"`
}

func (s *CatalogService) Counts() (*CatalogCounts, error) {
	var counts CatalogCounts

	type countQuery struct {
		dest  *int64
		apply func(*gorm.DB) *gorm.DB
	}
	queries := []countQuery{
		{&counts.Total, func(q *gorm.DB) *gorm.DB { return q }},
		{&counts.Polish, func(q *gorm.DB) *gorm.DB { return q.Where("category = ?", "polish") }},
		{&counts.International, func(q *gorm.DB) *gorm.DB { return q.Where("category = ?", "international") }},
		{&counts.OldSchool, func(q *gorm.DB) *gorm.DB { return q.Where("year < ?", models.NewSchoolStartYear) }},
		{&counts.NewSchool, func(q *gorm.DB) *gorm.DB { return q.Where("year >= ?", models.NewSchoolStartYear) }},
	}

	for _, cq := range queries {
		if err := cq.apply(s.db.Model(&models.Song{})).Count(cq.dest).Error; err != nil {
			return nil, err
		}
	}
	return &counts, nil
}

// SeedFromFile loads songs from a JSON file into an empty catalog. A catalog
// that already has rows is left alone so restarts don't duplicate it.
func (s *CatalogService) SeedFromFile(path string) error {
	if path == "" {
		return nil
	}

	var existing int64
	if err := s.db.Model(&models.Song{}).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		log.Printf("Song catalog already has %d entries, skipping seed", existing)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("Seed file %s not found, starting with empty catalog", path)
			return nil
		}
		return err
	}

	var songs []models.Song
	if err := json.Unmarshal(data, &songs); err != nil {
		return err
	}

	if err := s.db.CreateInBatches(songs, 100).Error; err != nil {
		return err
	}
	log.Printf("Seeded %d songs from %s", len(songs), path)
	return nil
}
