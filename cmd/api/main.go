package main

import (
	"fmt"
	"log"
	"os"

	"gridsweep/internal/api/handlers"
	"gridsweep/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())

	sweepHandler := handlers.NewSweepHandler()
	gridHandler := handlers.NewGridHandler()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/sweeps", sweepHandler.StartSweep)
		api.GET("/sweeps", sweepHandler.ListSweeps)
		api.GET("/sweeps/:id", sweepHandler.GetSweep)
		api.DELETE("/sweeps/:id", sweepHandler.CancelSweep)

		api.POST("/grid/preview", gridHandler.Preview)
	}

	addr := fmt.Sprintf(":%s", port)
	log.Printf("Starting sweep API server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
