package record

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cam-station/pkg/events"
	"cam-station/pkg/ffmpeg"
	"cam-station/pkg/models"
	"cam-station/pkg/urlutil"
	"cam-station/pkg/util"
)

const (
	recordingExt   = ".mp4"
	connectTimeout = 30 * time.Second
)

// Config carries the recorder's tunables.
type Config struct {
	RecordingsDir string
	FFmpegPath    string
	RTSPTimeout   time.Duration
}

// Options tune a single recording. IncludeAudio defaults to true when nil;
// AudioURL overrides the derived companion audio URL.
type Options struct {
	IncludeAudio *bool  `json:"includeAudio"`
	AudioURL     string `json:"audioUrl"`
}

// StartResult reports the output file and whether audio was actually
// included, so the caller can display accurate state.
type StartResult struct {
	File  string `json:"file"`
	Audio bool   `json:"audio"`
}

// Recorder owns the single active recording session. Recording always
// needs a subprocess; the only decision is single-input video-only versus
// dual-input video plus denoised audio. One instance exists process-wide.
type Recorder struct {
	cfg Config
	bus *events.Broadcaster

	// now is swapped out in tests for deterministic filenames.
	now func() time.Time

	mu        sync.Mutex
	status    models.SessionStatus
	url       string
	file      string
	startedAt time.Time
	proc      ffmpeg.Handle
}

func NewRecorder(cfg Config, bus *events.Broadcaster) *Recorder {
	return &Recorder{
		cfg:    cfg,
		bus:    bus,
		now:    time.Now,
		status: models.StatusIdle,
	}
}

// StartRecording begins writing the camera stream to disk.
func (r *Recorder) StartRecording(sourceURL string, opts Options) (StartResult, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return StartResult{}, fmt.Errorf("%w: url is required", models.ErrInvalidArgument)
	}

	r.mu.Lock()
	if r.status == models.StatusRecording || r.status == models.StatusConnecting {
		r.mu.Unlock()
		return StartResult{}, fmt.Errorf("%w: a recording is already in progress, stop it first", models.ErrAlreadyActive)
	}

	if err := util.EnsureDir(r.cfg.RecordingsDir); err != nil {
		r.mu.Unlock()
		return StartResult{}, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	fileName := "recording_" + r.now().Format("2006-01-02_15-04-05") + recordingExt
	outPath := filepath.Join(r.cfg.RecordingsDir, fileName)

	audioURL := opts.AudioURL
	if audioURL == "" {
		audioURL = urlutil.DeriveAudioURL(sourceURL)
	}
	includeAudio := opts.IncludeAudio == nil || *opts.IncludeAudio
	withAudio := includeAudio && audioURL != ""

	r.url = sourceURL
	r.setStatusLocked(models.StatusConnecting, "")

	var proc ffmpeg.Handle
	if withAudio {
		m := &ffmpeg.MonitoredCmd{
			Bin:    r.cfg.FFmpegPath,
			Args:   ffmpeg.DualInputArgs(sourceURL, audioURL, outPath, r.cfg.RTSPTimeout),
			Marker: ffmpeg.ReadyMarker,
		}
		m.OnExit = func(crashed bool) { r.handleExit(m, crashed) }
		proc = m
	} else {
		p := ffmpeg.NewPipeline(r.cfg.FFmpegPath).
			InputOptions(ffmpeg.InputOptionsFor(sourceURL, r.cfg.RTSPTimeout)...).
			Input(sourceURL).
			OutputOptions("-an").
			OutputOptions(ffmpeg.RecordOutputOptions()...).
			Output(outPath)
		p.OnExit(func(crashed bool) { r.handleExit(p, crashed) })
		proc = p
	}
	r.proc = proc
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := proc.Start(ctx); err != nil {
		r.mu.Lock()
		if r.proc == proc {
			r.failLocked(err.Error())
		}
		r.mu.Unlock()
		return StartResult{}, err
	}

	r.mu.Lock()
	if r.proc == proc {
		// Filename and start timestamp are set together with the
		// transition into recording.
		r.file = fileName
		r.startedAt = r.now()
		r.setStatusLocked(models.StatusRecording, "")
	}
	r.mu.Unlock()

	log.Printf("Recording %s to %s (audio=%v)", sourceURL, fileName, withAudio)
	return StartResult{File: fileName, Audio: withAudio}, nil
}

// StopRecording ends the active recording and returns the filename that
// was being written. A stop while idle is a successful no-op returning "".
func (r *Recorder) StopRecording() (string, error) {
	r.mu.Lock()
	if r.status == models.StatusIdle && r.proc == nil {
		r.mu.Unlock()
		return "", nil
	}

	proc := r.proc
	file := r.file
	r.proc = nil
	r.clearLocked()
	r.setStatusLocked(models.StatusIdle, "")
	r.mu.Unlock()

	if proc != nil {
		if err := proc.Stop(); err != nil {
			return file, err
		}
	}
	log.Printf("Recording saved: %s", file)
	return file, nil
}

// Status is a pure projection of the current session fields.
func (r *Recorder) Status() models.RecordStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := models.RecordStatus{Status: r.status, URL: r.url, File: r.file}
	if r.status == models.StatusRecording && !r.startedAt.IsZero() {
		st.ElapsedMS = r.now().Sub(r.startedAt).Milliseconds()
	}
	return st
}

// ListRecordings returns finished recordings, newest first. A missing
// directory is created and yields an empty list, never an error.
func (r *Recorder) ListRecordings() ([]models.RecordingFile, error) {
	if err := util.EnsureDir(r.cfg.RecordingsDir); err != nil {
		log.Printf("Error ensuring recordings directory: %v", err)
		return []models.RecordingFile{}, nil
	}

	entries, err := os.ReadDir(r.cfg.RecordingsDir)
	if err != nil {
		log.Printf("Error reading recordings directory: %v", err)
		return []models.RecordingFile{}, nil
	}

	recordings := make([]models.RecordingFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), recordingExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		recordings = append(recordings, models.RecordingFile{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			Size:       util.HumanSizeMB(info.Size()),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].ModifiedAt.After(recordings[j].ModifiedAt)
	})
	return recordings, nil
}

// DeleteRecording removes a finished recording by name. Any path that
// escapes the recordings directory is rejected before the filesystem is
// touched.
func (r *Recorder) DeleteRecording(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: filename is required", models.ErrInvalidArgument)
	}

	if filepath.IsAbs(name) {
		return fmt.Errorf("%w: %s", models.ErrPathTraversal, name)
	}

	baseDir, err := filepath.Abs(r.cfg.RecordingsDir)
	if err != nil {
		return fmt.Errorf("failed to resolve recordings directory: %w", err)
	}
	resolved, err := filepath.Abs(filepath.Join(baseDir, name))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved != baseDir && !strings.HasPrefix(resolved, baseDir+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s", models.ErrPathTraversal, name)
	}
	if resolved == baseDir {
		return fmt.Errorf("%w: filename is required", models.ErrInvalidArgument)
	}

	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	if err := os.Remove(resolved); err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	log.Printf("Recording deleted: %s", name)
	return nil
}

// handleExit is the terminal-exit callback for the spawned transcoder.
// Stale processes are ignored so teardown runs exactly once.
func (r *Recorder) handleExit(p ffmpeg.Handle, crashed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc != p {
		return
	}
	if crashed {
		r.failLocked("transcoder exited unexpectedly")
		return
	}
	r.proc = nil
	r.clearLocked()
	r.setStatusLocked(models.StatusIdle, "")
}

// failLocked resets the session after a hard process failure: emits the
// error status, clears every field, and auto-resets to idle.
func (r *Recorder) failLocked(reason string) {
	r.proc = nil
	url := r.url
	file := r.file
	r.clearLocked()
	r.status = models.StatusError
	r.bus.Publish(models.Event{Type: models.EventRecordStatus, Payload: models.StatusEvent{
		Status: models.StatusError,
		Error:  reason,
		URL:    url,
		File:   file,
	}})
	r.status = models.StatusIdle
}

// clearLocked drops the per-recording fields together, mirroring how they
// were set together on the way in.
func (r *Recorder) clearLocked() {
	r.url = ""
	r.file = ""
	r.startedAt = time.Time{}
}

func (r *Recorder) setStatusLocked(status models.SessionStatus, errMsg string) {
	r.status = status
	r.bus.Publish(models.Event{Type: models.EventRecordStatus, Payload: models.StatusEvent{
		Status: status,
		Error:  errMsg,
		URL:    r.url,
		File:   r.file,
	}})
}
