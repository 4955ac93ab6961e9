package config

import (
	"encoding/base64"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the application configuration.
type Config struct {
	DataDir                string
	StreamDir              string
	RecordingsDir          string
	SchedulesFile          string
	FFmpegPath             string
	ListenAddr             string
	HealthCheckIntervalSec int
	HealthCheckTimeoutSec  int
	RTSPTimeoutSec         int
	AppKey                 string
	AdminPassword          string
}

// AppConfig is the global application configuration.
var AppConfig Config

// LoadConfig loads the configuration from environment variables.
func LoadConfig() {
	AppConfig = Config{
		DataDir:                getEnv("DATA_DIR", "data"),
		StreamDir:              getEnv("STREAM_DIR", "streams"),
		RecordingsDir:          getEnv("RECORDINGS_DIR", "recordings"),
		SchedulesFile:          getEnv("SCHEDULES_FILE", "schedules.json"),
		FFmpegPath:             getEnv("FFMPEG_PATH", "ffmpeg"),
		ListenAddr:             getEnv("LISTEN_ADDR", ":8080"),
		HealthCheckIntervalSec: getEnvAsInt("HEALTH_CHECK_INTERVAL", 30),
		HealthCheckTimeoutSec:  getEnvAsInt("HEALTH_CHECK_TIMEOUT", 5),
		RTSPTimeoutSec:         getEnvAsInt("RTSP_TIMEOUT", 10),
		AppKey:                 getEnv("APP_KEY", ""),
		AdminPassword:          getEnv("ADMIN_PASSWORD", ""),
	}

	// Validate APP_KEY
	if AppConfig.AppKey == "" {
		log.Fatal("FATAL: APP_KEY environment variable must be set.")
	}
	if _, err := base64.StdEncoding.DecodeString(AppConfig.AppKey); err != nil {
		log.Fatalf("FATAL: APP_KEY is not a valid base64 encoded string: %v", err)
	}

	AppConfig.StreamDir = filepath.Join(AppConfig.DataDir, AppConfig.StreamDir)
	AppConfig.RecordingsDir = filepath.Join(AppConfig.DataDir, AppConfig.RecordingsDir)
	AppConfig.SchedulesFile = filepath.Join(AppConfig.DataDir, AppConfig.SchedulesFile)

	log.Printf("Data directory set to: %s", AppConfig.DataDir)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
