package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"cam-station/pkg/config"
	"cam-station/pkg/database"
	"cam-station/pkg/events"
	"cam-station/pkg/models"
	"cam-station/pkg/record"
	"cam-station/pkg/schedule"
	"cam-station/pkg/stream"
)

func setupHandlers(t *testing.T) (string, func()) {
	gin.SetMode(gin.TestMode)

	tempDir, err := os.MkdirTemp("", "handlers-test")
	assert.NoError(t, err)

	config.AppConfig.DataDir = tempDir
	config.AppConfig.RecordingsDir = filepath.Join(tempDir, "recordings")
	database.InitDB()

	b := events.NewBroadcaster()
	m := stream.NewManager(stream.Config{
		StreamDir:      filepath.Join(tempDir, "streams"),
		FFmpegPath:     "ffmpeg",
		HealthInterval: time.Minute,
		ProbeTimeout:   time.Second,
		RTSPTimeout:    time.Second,
	}, b)
	r := record.NewRecorder(record.Config{
		RecordingsDir: config.AppConfig.RecordingsDir,
		FFmpegPath:    "ffmpeg",
		RTSPTimeout:   time.Second,
	}, b)
	e, err := schedule.NewEngine(filepath.Join(tempDir, "schedules.json"), r, b, schedule.RealClock{})
	assert.NoError(t, err)

	Init(m, r, e, b)

	return tempDir, func() {
		e.Destroy()
		database.GetDB().Close()
		os.RemoveAll(tempDir)
	}
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleStreamStatusIdle(t *testing.T) {
	_, cleanup := setupHandlers(t)
	defer cleanup()

	r := gin.New()
	r.GET("/api/stream/status", HandleStreamStatus)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("GET", "/api/stream/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var status models.StreamStatus
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.StatusIdle, status.Status)
}

func TestHandleStartStreamRejectsEmptyURL(t *testing.T) {
	_, cleanup := setupHandlers(t)
	defer cleanup()

	r := gin.New()
	r.POST("/api/stream/start", HandleStartStream)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("POST", "/api/stream/start", gin.H{"url": ""}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStopStreamIdleIsNoOp(t *testing.T) {
	_, cleanup := setupHandlers(t)
	defer cleanup()

	r := gin.New()
	r.POST("/api/stream/stop", HandleStopStream)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("POST", "/api/stream/stop", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]bool
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp["stopped"])
}

func TestHandleStreamProxyWithoutActiveStream(t *testing.T) {
	_, cleanup := setupHandlers(t)
	defer cleanup()

	r := gin.New()
	r.GET("/api/stream/proxy", HandleStreamProxy)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("GET", "/api/stream/proxy", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStartRecordingRejectsEmptyURL(t *testing.T) {
	_, cleanup := setupHandlers(t)
	defer cleanup()

	r := gin.New()
	r.POST("/api/record/start", HandleStartRecording)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("POST", "/api/record/start", gin.H{"url": ""}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListRecordings(t *testing.T) {
	tempDir, cleanup := setupHandlers(t)
	defer cleanup()

	recDir := filepath.Join(tempDir, "recordings")
	assert.NoError(t, os.MkdirAll(recDir, 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(recDir, "recording_2026-03-14_09-00-00.mp4"), []byte("x"), 0644))

	r := gin.New()
	r.GET("/api/recordings", HandleListRecordings)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("GET", "/api/recordings", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Recordings []models.RecordingFile `json:"recordings"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Recordings, 1)
	assert.Equal(t, "recording_2026-03-14_09-00-00.mp4", resp.Recordings[0].Name)
}

func TestHandleDeleteRecording(t *testing.T) {
	tempDir, cleanup := setupHandlers(t)
	defer cleanup()

	recDir := filepath.Join(tempDir, "recordings")
	assert.NoError(t, os.MkdirAll(recDir, 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(recDir, "clip.mp4"), []byte("x"), 0644))

	r := gin.New()
	r.DELETE("/api/recordings/:name", HandleDeleteRecording)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("DELETE", "/api/recordings/clip.mp4", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoFileExists(t, filepath.Join(recDir, "clip.mp4"))

	// Missing file
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("DELETE", "/api/recordings/clip.mp4", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Path traversal is a 400, not a 404
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("DELETE", "/api/recordings/..", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleCRUDOverHTTP(t *testing.T) {
	_, cleanup := setupHandlers(t)
	defer cleanup()

	r := gin.New()
	r.GET("/api/schedules", HandleListSchedules)
	r.POST("/api/schedules", HandleAddSchedule)
	r.PUT("/api/schedules/:id", HandleUpdateSchedule)
	r.DELETE("/api/schedules/:id", HandleDeleteSchedule)

	// Create
	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("POST", "/api/schedules", gin.H{
		"cameraUrl": "rtsp://cam.local/h264",
		"startTime": "10:00",
	}))
	assert.Equal(t, http.StatusCreated, w.Code)

	var created models.Schedule
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Schedule", created.Name)

	// Missing cameraUrl
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("POST", "/api/schedules", gin.H{"startTime": "10:00"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Update
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("PUT", "/api/schedules/"+created.ID, gin.H{"name": "Night watch"}))
	assert.Equal(t, http.StatusOK, w.Code)

	var updated models.Schedule
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Night watch", updated.Name)
	assert.Equal(t, "10:00", updated.StartTime)

	// List
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("GET", "/api/schedules", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Schedules []models.Schedule `json:"schedules"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Schedules, 1)

	// Delete
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("DELETE", "/api/schedules/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("DELETE", "/api/schedules/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCameraCRUDOverHTTP(t *testing.T) {
	_, cleanup := setupHandlers(t)
	defer cleanup()

	r := gin.New()
	r.GET("/api/cameras", HandleListCameras)
	r.POST("/api/cameras", HandleCreateCamera)
	r.GET("/api/cameras/:id", HandleGetCamera)
	r.PUT("/api/cameras/:id", HandleUpdateCamera)
	r.DELETE("/api/cameras/:id", HandleDeleteCamera)

	// Create
	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("POST", "/api/cameras", gin.H{
		"name": "Front door",
		"url":  "rtsp://cam.local/h264",
	}))
	assert.Equal(t, http.StatusCreated, w.Code)

	var cam models.Camera
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &cam))
	assert.NotEmpty(t, cam.ID)

	// Name is required
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("POST", "/api/cameras", gin.H{"url": "rtsp://x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Get
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("GET", "/api/cameras/"+cam.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Partial update
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("PUT", "/api/cameras/"+cam.ID, gin.H{"name": "Porch"}))
	assert.Equal(t, http.StatusOK, w.Code)

	var updated models.Camera
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Porch", updated.Name)
	assert.Equal(t, "rtsp://cam.local/h264", updated.URL)

	// Delete
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("DELETE", "/api/cameras/"+cam.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest("GET", "/api/cameras/"+cam.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
