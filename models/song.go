package models

// Song is immutable reference data. The coordinator only moves songs between
// the deck, the current draw and player timelines; it never edits them.
type Song struct {
	ID        string `json:"id" gorm:"primaryKey"`
	Title     string `json:"title" gorm:"not null"`
	Artist    string `json:"artist" gorm:"not null"`
	Year      int    `json:"year" gorm:"not null;index"`
	YoutubeID string `json:"youtubeId" gorm:"not null"`
	Category  string `json:"category" gorm:"not null;default:'all';index"` // all, polish, international
}

// Era boundary: everything up to 1989 is old school, 1990 onwards is new school.
const NewSchoolStartYear = 1990

func (s Song) Era() string {
	if s.Year < NewSchoolStartYear {
		return "oldSchool"
	}
	return "newSchool"
}
