package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arthurkowalsky/timetune/models"
)

func catalogFixture() []models.Song {
	polish89 := song("p89", 1989)
	polish89.Category = "polish"
	polish90 := song("p90", 1990)
	polish90.Category = "polish"
	intl75 := song("i75", 1975)
	intl75.Category = "international"
	intl05 := song("i05", 2005)
	intl05.Category = "international"
	return []models.Song{polish89, polish90, intl75, intl05}
}

func TestFilterByCategory(t *testing.T) {
	songs := catalogFixture()

	assert.Len(t, FilterByCategory(songs, "all"), 4)
	assert.Len(t, FilterByCategory(songs, ""), 4)
	assert.Len(t, FilterByCategory(songs, "polish"), 2)
	assert.Len(t, FilterByCategory(songs, "international"), 2)
	assert.Empty(t, FilterByCategory(songs, "klingon"))
}

// 1989 is the last oldSchool year; 1990 opens newSchool.
func TestFilterByEraBoundary(t *testing.T) {
	songs := catalogFixture()

	old := FilterByEra(songs, "oldSchool")
	assert.Len(t, old, 2)
	for _, s := range old {
		assert.Less(t, s.Year, models.NewSchoolStartYear)
	}

	fresh := FilterByEra(songs, "newSchool")
	assert.Len(t, fresh, 2)
	for _, s := range fresh {
		assert.GreaterOrEqual(t, s.Year, models.NewSchoolStartYear)
	}

	assert.Len(t, FilterByEra(songs, "all"), 4)
}

func TestSongEra(t *testing.T) {
	assert.Equal(t, "oldSchool", song("a", 1989).Era())
	assert.Equal(t, "newSchool", song("b", 1990).Era())
}
