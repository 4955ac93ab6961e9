package server

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"cam-station/pkg/auth"
	"cam-station/pkg/config"
	"cam-station/pkg/handlers"
)

func SetupRouter() *gin.Engine {
	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	// "Authorization" must be allowed so the frontend can send the JWT
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// Login API endpoint - handles login logic and JWT issuance
	r.POST("/api/login", auth.LoginHandler)

	// --- Authenticated Route Group ---
	authorized := r.Group("/")
	authorized.Use(auth.AuthMiddleware())
	{
		// HLS playlist and segments written by the transcoder
		authorized.Static("/streams", config.AppConfig.StreamDir)
		// Finished recordings for playback and download
		authorized.Static("/recordings", config.AppConfig.RecordingsDir)

		// Live view
		authorized.POST("/api/stream/start", handlers.HandleStartStream)
		authorized.POST("/api/stream/stop", handlers.HandleStopStream)
		authorized.GET("/api/stream/status", handlers.HandleStreamStatus)
		authorized.GET("/api/stream/proxy", handlers.HandleStreamProxy)
		authorized.GET("/api/stream/audio", handlers.HandleStreamAudio)

		// Recording
		authorized.POST("/api/record/start", handlers.HandleStartRecording)
		authorized.POST("/api/record/stop", handlers.HandleStopRecording)
		authorized.GET("/api/record/status", handlers.HandleRecordStatus)
		authorized.GET("/api/recordings", handlers.HandleListRecordings)
		authorized.DELETE("/api/recordings/:name", handlers.HandleDeleteRecording)

		// Schedules
		authorized.GET("/api/schedules", handlers.HandleListSchedules)
		authorized.POST("/api/schedules", handlers.HandleAddSchedule)
		authorized.PUT("/api/schedules/:id", handlers.HandleUpdateSchedule)
		authorized.DELETE("/api/schedules/:id", handlers.HandleDeleteSchedule)

		// Saved cameras
		authorized.GET("/api/cameras", handlers.HandleListCameras)
		authorized.POST("/api/cameras", handlers.HandleCreateCamera)
		authorized.GET("/api/cameras/:id", handlers.HandleGetCamera)
		authorized.PUT("/api/cameras/:id", handlers.HandleUpdateCamera)
		authorized.DELETE("/api/cameras/:id", handlers.HandleDeleteCamera)

		authorized.GET("/api/system-stats", handlers.HandleSystemStatsJSON)
		authorized.GET("/api/events", handlers.HandleEvents)

		// Logout endpoint (authenticated)
		authorized.GET("/logout", auth.LogoutHandler)
	}

	return r
}

func StartServer() {
	r := SetupRouter()
	log.Printf("Gin server starting on %s...", config.AppConfig.ListenAddr)

	if err := r.Run(config.AppConfig.ListenAddr); err != nil {
		log.Fatalf("Gin server failed to start: %v", err)
	}
}
