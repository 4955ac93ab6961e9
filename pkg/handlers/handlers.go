package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"cam-station/pkg/database"
	"cam-station/pkg/events"
	"cam-station/pkg/models"
	"cam-station/pkg/record"
	"cam-station/pkg/schedule"
	"cam-station/pkg/stats"
	"cam-station/pkg/stream"
)

var (
	streamManager *stream.Manager
	recorder      *record.Recorder
	engine        *schedule.Engine
	bus           *events.Broadcaster

	// proxyClient fetches upstream MJPEG/audio streams. No timeout: these
	// are long-lived connections torn down by request context cancellation.
	proxyClient = &http.Client{}
)

// Init wires the handler package to the live session objects.
func Init(m *stream.Manager, r *record.Recorder, e *schedule.Engine, b *events.Broadcaster) {
	streamManager = m
	recorder = r
	engine = e
	bus = b
}

// respondError maps the session error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidArgument), errors.Is(err, models.ErrPathTraversal):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// --- STREAM ---

func HandleStartStream(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := streamManager.StartStream(req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func HandleStopStream(c *gin.Context) {
	stopped, err := streamManager.StopStream()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": stopped})
}

func HandleStreamStatus(c *gin.Context) {
	c.JSON(http.StatusOK, streamManager.Status())
}

// HandleStreamProxy passes the camera's MJPEG stream straight through to
// the client. The upstream request is bound to the client's request
// context, so a viewer disconnecting tears down the camera connection
// instead of leaking it.
func HandleStreamProxy(c *gin.Context) {
	proxyUpstream(c, streamManager.SourceURL())
}

// HandleStreamAudio passes the companion audio stream through, same
// lifetime rules as the video proxy.
func HandleStreamAudio(c *gin.Context) {
	proxyUpstream(c, streamManager.AudioSourceURL())
}

func proxyUpstream(c *gin.Context, upstreamURL string) {
	if upstreamURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active stream"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, upstreamURL, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := proxyClient.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	c.Status(resp.StatusCode)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Header("Content-Type", ct)
	}

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// Expected when the viewer disconnects.
		log.Printf("Stream proxy ended: %v", err)
	}
}

// --- RECORDING ---

func HandleStartRecording(c *gin.Context) {
	var req struct {
		URL          string `json:"url"`
		IncludeAudio *bool  `json:"includeAudio"`
		AudioURL     string `json:"audioUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := recorder.StartRecording(req.URL, record.Options{
		IncludeAudio: req.IncludeAudio,
		AudioURL:     req.AudioURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func HandleStopRecording(c *gin.Context) {
	file, err := recorder.StopRecording()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": file})
}

func HandleRecordStatus(c *gin.Context) {
	c.JSON(http.StatusOK, recorder.Status())
}

func HandleListRecordings(c *gin.Context) {
	files, err := recorder.ListRecordings()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": files})
}

func HandleDeleteRecording(c *gin.Context) {
	if err := recorder.DeleteRecording(c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("name")})
}

// --- SCHEDULES ---

func HandleListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schedules": engine.ListSchedules()})
}

func HandleAddSchedule(c *gin.Context) {
	var spec schedule.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := engine.AddSchedule(spec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func HandleUpdateSchedule(c *gin.Context) {
	var spec schedule.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := engine.UpdateSchedule(c.Param("id"), spec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func HandleDeleteSchedule(c *gin.Context) {
	if err := engine.DeleteSchedule(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// --- CAMERAS ---

func HandleListCameras(c *gin.Context) {
	cameras, err := database.GetAllCameras()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cameras": cameras})
}

func HandleCreateCamera(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		URL      string `json:"url" binding:"required"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cam, err := database.CreateCamera(req.Name, req.URL, req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cam)
}

func HandleGetCamera(c *gin.Context) {
	cam, err := database.GetCamera(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
		return
	}
	c.JSON(http.StatusOK, cam)
}

func HandleUpdateCamera(c *gin.Context) {
	existing, err := database.GetCamera(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
		return
	}

	var req struct {
		Name     *string `json:"name"`
		URL      *string `json:"url"`
		Username *string `json:"username"`
		Password *string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.URL != nil {
		existing.URL = *req.URL
	}
	if req.Username != nil {
		existing.Username = *req.Username
	}
	if req.Password != nil {
		existing.Password = *req.Password
	}

	if err := database.UpdateCamera(*existing); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, existing)
}

func HandleDeleteCamera(c *gin.Context) {
	if err := database.DeleteCamera(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// --- STATS & EVENTS ---

func HandleSystemStatsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, stats.Cache.GetData())
}

// HandleEvents streams session, health, and schedule events over SSE.
func HandleEvents(c *gin.Context) {
	ch := make(chan models.Event, 16)
	unsubscribe := bus.Subscribe(func(e models.Event) {
		select {
		case ch <- e:
		default:
			// Slow consumer, drop rather than block the publisher.
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case e := <-ch:
			c.SSEvent(e.Type, e.Payload)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
