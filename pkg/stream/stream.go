package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cam-station/pkg/events"
	"cam-station/pkg/ffmpeg"
	"cam-station/pkg/models"
	"cam-station/pkg/urlutil"
)

const (
	// PlaylistName is the HLS playlist the transcode path writes.
	PlaylistName = "stream.m3u8"

	// HLSEndpoint is where the transport layer serves the playlist.
	HLSEndpoint = "/streams/" + PlaylistName

	// ProxyEndpoint is the fixed MJPEG passthrough endpoint.
	ProxyEndpoint = "/api/stream/proxy"

	// AudioEndpoint is the audio passthrough endpoint exposed while a
	// stream with derived audio is active.
	AudioEndpoint = "/api/stream/audio"

	connectTimeout = 30 * time.Second
)

// Config carries the stream manager's tunables, filled from the
// application configuration at startup.
type Config struct {
	StreamDir      string
	FFmpegPath     string
	HealthInterval time.Duration
	ProbeTimeout   time.Duration
	RTSPTimeout    time.Duration
}

// StartResult tells the caller which path the stream took and where to
// play it from.
type StartResult struct {
	Type     models.StreamType `json:"type"`
	Endpoint string            `json:"endpoint"`
	AudioURL string            `json:"audioUrl,omitempty"`
}

// Manager owns the single active live-view session. It decides between the
// direct MJPEG proxy path and the HLS transcode path, runs periodic
// reachability checks against the source, and emits lifecycle events. One
// instance exists process-wide.
type Manager struct {
	cfg Config
	bus *events.Broadcaster

	// probe is swapped out in tests.
	probe func(sourceURL string, timeout time.Duration) error

	mu         sync.Mutex
	status     models.SessionStatus
	url        string
	audioURL   string
	proc       ffmpeg.Handle
	healthStop chan struct{}
}

func NewManager(cfg Config, bus *events.Broadcaster) *Manager {
	return &Manager{
		cfg:    cfg,
		bus:    bus,
		probe:  probeSource,
		status: models.StatusIdle,
	}
}

// StartStream begins a live view of the given camera URL. MJPEG-classified
// sources are proxied directly with no subprocess; everything else is
// transcoded into HLS segments.
func (m *Manager) StartStream(sourceURL string) (StartResult, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return StartResult{}, fmt.Errorf("%w: url is required", models.ErrInvalidArgument)
	}

	m.mu.Lock()
	if m.status == models.StatusStreaming || m.status == models.StatusConnecting {
		m.mu.Unlock()
		return StartResult{}, fmt.Errorf("%w: a stream is already running, stop it first", models.ErrAlreadyActive)
	}

	audioURL := urlutil.DeriveAudioURL(sourceURL)

	if urlutil.IsMJPEG(sourceURL) {
		m.url = sourceURL
		m.audioURL = audioURL
		m.setStatusLocked(models.StatusStreaming, "")
		m.startHealthLocked()
		m.mu.Unlock()

		log.Printf("Streaming %s via MJPEG proxy", sourceURL)
		return StartResult{Type: models.StreamTypeMJPEG, Endpoint: ProxyEndpoint, AudioURL: audioURL}, nil
	}

	// Transcode path: drop stale segment artifacts before ffmpeg rewrites
	// the playlist.
	m.clearSegments()

	m.url = sourceURL
	m.audioURL = audioURL
	m.setStatusLocked(models.StatusConnecting, "")

	p := ffmpeg.NewPipeline(m.cfg.FFmpegPath).
		InputOptions(ffmpeg.InputOptionsFor(sourceURL, m.cfg.RTSPTimeout)...).
		Input(sourceURL).
		OutputOptions(ffmpeg.HLSOutputOptions(filepath.Join(m.cfg.StreamDir, "segment_%03d.ts"))...).
		Output(filepath.Join(m.cfg.StreamDir, PlaylistName))
	p.OnExit(func(crashed bool) { m.handleExit(p, crashed) })
	m.proc = p
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := p.Start(ctx); err != nil {
		m.mu.Lock()
		if m.proc == p {
			m.failLocked(err.Error())
		}
		m.mu.Unlock()
		return StartResult{}, err
	}

	m.mu.Lock()
	if m.proc == p {
		m.setStatusLocked(models.StatusStreaming, "")
		m.startHealthLocked()
	}
	m.mu.Unlock()

	log.Printf("Streaming %s via HLS transcode", sourceURL)
	return StartResult{Type: models.StreamTypeHLS, Endpoint: HLSEndpoint, AudioURL: audioURL}, nil
}

// StopStream tears the active session down. Calling it while idle is a
// successful no-op; the returned flag reports whether anything was active.
func (m *Manager) StopStream() (bool, error) {
	m.mu.Lock()
	if m.status == models.StatusIdle && m.proc == nil {
		m.mu.Unlock()
		return false, nil
	}

	proc := m.proc
	m.proc = nil
	m.stopHealthLocked()
	m.url = ""
	m.audioURL = ""
	m.setStatusLocked(models.StatusIdle, "")
	m.mu.Unlock()

	if proc != nil {
		if err := proc.Stop(); err != nil {
			return true, err
		}
	}
	log.Println("Stream stopped")
	return true, nil
}

// Status is a pure projection of the current session fields.
func (m *Manager) Status() models.StreamStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := models.StreamStatus{Status: m.status, URL: m.url}
	if m.url == "" {
		return st
	}
	if urlutil.IsMJPEG(m.url) {
		st.Type = models.StreamTypeMJPEG
		st.Endpoint = ProxyEndpoint
	} else {
		st.Type = models.StreamTypeHLS
		st.Endpoint = HLSEndpoint
	}
	if m.status == models.StatusStreaming && m.audioURL != "" {
		st.AudioURL = AudioEndpoint
	}
	return st
}

// SourceURL returns the upstream URL the proxy handlers should dial.
func (m *Manager) SourceURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// AudioSourceURL returns the derived upstream audio URL, if any.
func (m *Manager) AudioSourceURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioURL
}

// handleExit is the terminal-exit callback shared by every spawned
// pipeline. Stale processes (already stopped or replaced) are ignored so
// the teardown runs exactly once.
func (m *Manager) handleExit(p ffmpeg.Handle, crashed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc != p {
		return
	}
	if crashed {
		m.failLocked("transcoder exited unexpectedly")
		return
	}
	m.proc = nil
	m.stopHealthLocked()
	m.url = ""
	m.audioURL = ""
	m.setStatusLocked(models.StatusIdle, "")
}

// failLocked resets the session after a hard process failure: emits the
// error status, clears every field, and auto-resets to idle.
func (m *Manager) failLocked(reason string) {
	m.proc = nil
	m.stopHealthLocked()
	url := m.url
	m.url = ""
	m.audioURL = ""
	m.status = models.StatusError
	m.bus.Publish(models.Event{Type: models.EventStreamStatus, Payload: models.StatusEvent{
		Status: models.StatusError,
		Error:  reason,
		URL:    url,
	}})
	m.status = models.StatusIdle
}

func (m *Manager) setStatusLocked(status models.SessionStatus, errMsg string) {
	m.status = status
	m.bus.Publish(models.Event{Type: models.EventStreamStatus, Payload: models.StatusEvent{
		Status: status,
		Error:  errMsg,
		URL:    m.url,
	}})
}

// handleUnreachable tears the session down after a failed health probe.
// Unreachability is an expected external-world condition, so the session
// lands on idle, never error. Idempotent: a second call is a no-op.
func (m *Manager) handleUnreachable(reason string) {
	m.mu.Lock()
	if m.status == models.StatusIdle {
		m.mu.Unlock()
		return
	}

	proc := m.proc
	m.proc = nil
	m.stopHealthLocked()
	m.url = ""
	m.audioURL = ""
	m.setStatusLocked(models.StatusIdle, "")
	m.bus.Publish(models.Event{Type: models.EventHealthCheck, Payload: models.HealthEvent{
		Reachable: false,
		Reason:    reason,
	}})
	m.mu.Unlock()

	if proc != nil {
		proc.Stop()
	}
	log.Printf("Camera unreachable, stream torn down: %s", reason)
}

func (m *Manager) startHealthLocked() {
	if m.healthStop != nil || m.cfg.HealthInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	m.healthStop = stop
	go m.healthLoop(m.url, stop)
}

func (m *Manager) stopHealthLocked() {
	if m.healthStop != nil {
		close(m.healthStop)
		m.healthStop = nil
	}
}

func (m *Manager) healthLoop(sourceURL string, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.probe(sourceURL, m.cfg.ProbeTimeout); err != nil {
				m.handleUnreachable(err.Error())
				return
			}
		}
	}
}

// probeSource checks that the camera is still reachable. HTTP(S) sources
// get a GET whose body is discarded immediately; other schemes get a bare
// TCP dial, since only reachability matters.
func probeSource(sourceURL string, timeout time.Duration) error {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return fmt.Errorf("unparseable source url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" || scheme == "https" {
		client := &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
		resp, err := client.Get(sourceURL)
		if err != nil {
			return err
		}
		// Only reachability matters; do not hold the socket open.
		resp.Body.Close()
		return nil
	}

	host := u.Host
	if u.Port() == "" {
		switch scheme {
		case "rtsp":
			host = net.JoinHostPort(u.Hostname(), "554")
		case "rtmp":
			host = net.JoinHostPort(u.Hostname(), "1935")
		}
	}
	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// clearSegments removes stale playlist and segment files from the stream
// directory. Only the extensions this format writes are touched.
func (m *Manager) clearSegments() {
	if err := os.MkdirAll(m.cfg.StreamDir, 0755); err != nil {
		log.Printf("Error creating stream directory %s: %v", m.cfg.StreamDir, err)
		return
	}
	entries, err := os.ReadDir(m.cfg.StreamDir)
	if err != nil {
		log.Printf("Error reading stream directory: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".ts" || ext == ".m3u8" {
			if err := os.Remove(filepath.Join(m.cfg.StreamDir, entry.Name())); err != nil {
				log.Printf("Error removing stale segment %s: %v", entry.Name(), err)
			}
		}
	}
}
