package config

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	// Unset all env vars
	os.Clearenv()

	// Set environment variables for testing
	os.Setenv("DATA_DIR", "/test/data")
	os.Setenv("STREAM_DIR", "test_streams")
	os.Setenv("RECORDINGS_DIR", "test_recordings")
	os.Setenv("SCHEDULES_FILE", "test_schedules.json")
	os.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	os.Setenv("LISTEN_ADDR", ":9090")
	os.Setenv("HEALTH_CHECK_INTERVAL", "15")
	os.Setenv("HEALTH_CHECK_TIMEOUT", "3")
	os.Setenv("RTSP_TIMEOUT", "20")
	os.Setenv("APP_KEY", base64.StdEncoding.EncodeToString([]byte("test_app_key")))
	os.Setenv("ADMIN_PASSWORD", "test_admin_password")

	LoadConfig()

	assert.Equal(t, "/test/data", AppConfig.DataDir)
	assert.True(t, strings.HasSuffix(AppConfig.StreamDir, "test_streams"))
	assert.True(t, strings.HasSuffix(AppConfig.RecordingsDir, "test_recordings"))
	assert.True(t, strings.HasSuffix(AppConfig.SchedulesFile, "test_schedules.json"))
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", AppConfig.FFmpegPath)
	assert.Equal(t, ":9090", AppConfig.ListenAddr)
	assert.Equal(t, 15, AppConfig.HealthCheckIntervalSec)
	assert.Equal(t, 3, AppConfig.HealthCheckTimeoutSec)
	assert.Equal(t, 20, AppConfig.RTSPTimeoutSec)
	assert.Equal(t, "test_admin_password", AppConfig.AdminPassword)

	// Test default values
	os.Clearenv()
	os.Setenv("APP_KEY", base64.StdEncoding.EncodeToString([]byte("test_app_key")))
	LoadConfig()
	assert.Equal(t, "data", AppConfig.DataDir)
	assert.Equal(t, "ffmpeg", AppConfig.FFmpegPath)
	assert.Equal(t, ":8080", AppConfig.ListenAddr)
	assert.Equal(t, 30, AppConfig.HealthCheckIntervalSec)
	assert.Equal(t, 5, AppConfig.HealthCheckTimeoutSec)
	assert.True(t, strings.HasSuffix(AppConfig.StreamDir, "streams"))
	assert.True(t, strings.HasSuffix(AppConfig.RecordingsDir, "recordings"))
}

func TestGetEnvAsInt(t *testing.T) {
	os.Setenv("TEST_INT", "123")
	val := getEnvAsInt("TEST_INT", 456)
	assert.Equal(t, 123, val)

	os.Unsetenv("TEST_INT")
	val = getEnvAsInt("TEST_INT", 456)
	assert.Equal(t, 456, val)

	os.Setenv("TEST_INT", "abc")
	val = getEnvAsInt("TEST_INT", 456)
	assert.Equal(t, 456, val)
}
