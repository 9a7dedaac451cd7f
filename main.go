package main

import (
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/arthurkowalsky/timetune/config"
	"github.com/arthurkowalsky/timetune/handlers"
	"github.com/arthurkowalsky/timetune/models"
	"github.com/arthurkowalsky/timetune/routes"
	"github.com/arthurkowalsky/timetune/services"
)

func main() {
	cfg := config.Load()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(&models.Song{}, &models.GameResult{}, &models.GameStanding{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	redisClient := config.InitRedis(cfg)

	catalog := services.NewCatalogService(db)
	if err := catalog.SeedFromFile(cfg.SongSeed); err != nil {
		log.Printf("Failed to seed song catalog: %v", err)
	}

	manager := services.NewRoomManager(
		services.NewScheduler(),
		services.NewRedisSnapshotStore(redisClient),
		services.NewGormArchive(db),
		cfg.MaxPlayers,
	)

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	routes.SetupRoutes(
		router,
		handlers.NewCatalogHandler(catalog),
		handlers.NewWSHandler(manager),
		manager,
	)

	addr := fmt.Sprintf("%s:%s", cfg.BindAddress, cfg.Port)
	log.Printf("Server starting on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
