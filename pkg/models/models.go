package models

import "time"

// SessionStatus is the lifecycle state shared by the stream and record sessions.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusConnecting SessionStatus = "connecting"
	StatusStreaming  SessionStatus = "streaming"
	StatusRecording  SessionStatus = "recording"
	StatusError      SessionStatus = "error"
)

// StreamType tags the delivery path of the active stream.
type StreamType string

const (
	StreamTypeNone  StreamType = ""
	StreamTypeMJPEG StreamType = "mjpeg"
	StreamTypeHLS   StreamType = "hls"
)

// StreamStatus is a point-in-time projection of the camera session.
type StreamStatus struct {
	Status   SessionStatus `json:"status"`
	URL      string        `json:"url"`
	Type     StreamType    `json:"type"`
	Endpoint string        `json:"endpoint"`
	AudioURL string        `json:"audioUrl"`
}

// RecordStatus is a point-in-time projection of the recording session.
type RecordStatus struct {
	Status    SessionStatus `json:"status"`
	URL       string        `json:"url"`
	File      string        `json:"file"`
	ElapsedMS int64         `json:"elapsedMs"`
}

// RecordingFile describes one finished recording on disk.
type RecordingFile struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"sizeBytes"`
	Size       string    `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Schedule is a persisted recurring recording rule. The JSON shape is the
// on-disk contract and must not change field names.
type Schedule struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CameraURL       string    `json:"cameraUrl"`
	StartTime       string    `json:"startTime"` // "HH:MM"
	DurationMinutes int       `json:"durationMinutes"`
	Days            []string  `json:"days"` // 3-letter lowercase weekday tags
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Camera is a saved camera credential record.
type Camera struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Username  string    `json:"username"`
	Password  string    `json:"password,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// User represents a user account in the database.
type User struct {
	ID       int64
	Username string
	IsAdmin  bool
}

// Event types pushed to subscribers.
const (
	EventStreamStatus     = "streamStatus"
	EventRecordStatus     = "recordStatus"
	EventHealthCheck      = "healthCheckFailed"
	EventScheduleStarting = "scheduleStarting"
	EventScheduleComplete = "scheduleComplete"
	EventScheduleError    = "scheduleError"
)

// Event is the envelope fanned out to every subscriber.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusEvent reports a session status change.
type StatusEvent struct {
	Status SessionStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
	URL    string        `json:"url,omitempty"`
	File   string        `json:"file,omitempty"`
}

// HealthEvent reports a failed reachability probe.
type HealthEvent struct {
	Reachable bool   `json:"reachable"`
	Reason    string `json:"reason"`
}

// ScheduleEvent reports schedule lifecycle transitions.
type ScheduleEvent struct {
	ScheduleID string `json:"scheduleId"`
	Name       string `json:"name"`
	File       string `json:"file,omitempty"`
	Error      string `json:"error,omitempty"`
}
