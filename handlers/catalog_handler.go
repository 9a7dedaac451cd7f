package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arthurkowalsky/timetune/services"
)

type CatalogHandler struct {
	catalog *services.CatalogService
}

func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// GetSongs returns the catalog, optionally filtered by category and era.
func (h *CatalogHandler) GetSongs(c *gin.Context) {
	category := c.Query("category")
	era := c.Query("era")

	songs, err := h.catalog.List(category, era)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch songs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"songs": songs, "count": len(songs)})
}

// GetCounts returns per-category and per-era totals for the lobby selectors.
func (h *CatalogHandler) GetCounts(c *gin.Context) {
	counts, err := h.catalog.Counts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count songs"})
		return
	}

	c.JSON(http.StatusOK, counts)
}
