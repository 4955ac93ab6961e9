package main

import (
	"log"
	"os"
	"time"

	"cam-station/pkg/config"
	"cam-station/pkg/database"
	"cam-station/pkg/events"
	"cam-station/pkg/handlers"
	"cam-station/pkg/record"
	"cam-station/pkg/schedule"
	"cam-station/pkg/server"
	"cam-station/pkg/stats"
	"cam-station/pkg/stream"
)

func main() {
	config.LoadConfig()

	// Ensure data directories exist
	if err := os.MkdirAll(config.AppConfig.StreamDir, 0755); err != nil {
		log.Fatalf("Failed to create stream directory: %v", err)
	}
	if err := os.MkdirAll(config.AppConfig.RecordingsDir, 0755); err != nil {
		log.Fatalf("Failed to create recordings directory: %v", err)
	}

	// Initialize Database
	database.InitDB()

	// Create initial admin user if it doesn't exist
	// Can probably make a nicer GUI and set this up and remove a cleartext password in env var
	adminUserExists, err := database.UserExists("admin")
	if err != nil {
		log.Fatalf("Failed to check if admin user exists: %v", err)
	}
	if !adminUserExists {
		if config.AppConfig.AdminPassword == "" {
			log.Fatal("FATAL: ADMIN_PASSWORD environment variable must be set to create the initial admin user.")
		}
		if err := database.CreateUser("admin", config.AppConfig.AdminPassword, true); err != nil {
			log.Fatalf("Failed to create initial admin user: %v", err)
		}
	}

	// Wire the session core
	bus := events.NewBroadcaster()
	streamManager := stream.NewManager(stream.Config{
		StreamDir:      config.AppConfig.StreamDir,
		FFmpegPath:     config.AppConfig.FFmpegPath,
		HealthInterval: time.Duration(config.AppConfig.HealthCheckIntervalSec) * time.Second,
		ProbeTimeout:   time.Duration(config.AppConfig.HealthCheckTimeoutSec) * time.Second,
		RTSPTimeout:    time.Duration(config.AppConfig.RTSPTimeoutSec) * time.Second,
	}, bus)
	recorder := record.NewRecorder(record.Config{
		RecordingsDir: config.AppConfig.RecordingsDir,
		FFmpegPath:    config.AppConfig.FFmpegPath,
		RTSPTimeout:   time.Duration(config.AppConfig.RTSPTimeoutSec) * time.Second,
	}, bus)

	engine, err := schedule.NewEngine(config.AppConfig.SchedulesFile, recorder, bus, schedule.RealClock{})
	if err != nil {
		log.Fatalf("Failed to load schedules: %v", err)
	}
	defer engine.Destroy()

	handlers.Init(streamManager, recorder, engine, bus)

	// Start background stat sampling
	stats.Cache.RunUpdater()
	log.Printf("✅ Session core ready, health check interval: %d seconds", config.AppConfig.HealthCheckIntervalSec)

	server.StartServer()
}
