package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arthurkowalsky/timetune/handlers"
	"github.com/arthurkowalsky/timetune/services"
)

func SetupRoutes(router *gin.Engine, catalogHandler *handlers.CatalogHandler, wsHandler *handlers.WSHandler, manager *services.RoomManager) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"rooms":  manager.Count(),
		})
	})

	api := router.Group("/api")
	{
		api.GET("/songs", catalogHandler.GetSongs)
		api.GET("/songs/counts", catalogHandler.GetCounts)
	}

	router.GET("/ws/:roomCode", wsHandler.HandleConnection)
}
