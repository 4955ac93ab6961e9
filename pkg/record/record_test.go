package record

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cam-station/pkg/events"
	"cam-station/pkg/models"
)

func boolPtr(v bool) *bool { return &v }

// setupTest wires a recorder against a fake ffmpeg that records its
// arguments and emits the ready marker.
func setupTest(t *testing.T) (*Recorder, string, func()) {
	tempDir, err := os.MkdirTemp("", "record-test")
	assert.NoError(t, err)

	argsFile := filepath.Join(tempDir, "args.txt")
	script := fmt.Sprintf("#!/bin/sh\necho \"$@\" > %s\necho \"Output #0, mp4\" >&2\nsleep 30\n", argsFile)
	binPath := filepath.Join(tempDir, "ffmpeg")
	assert.NoError(t, os.WriteFile(binPath, []byte(script), 0755))

	r := NewRecorder(Config{
		RecordingsDir: filepath.Join(tempDir, "recordings"),
		FFmpegPath:    binPath,
		RTSPTimeout:   time.Second,
	}, events.NewBroadcaster())
	r.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	return r, tempDir, func() {
		r.StopRecording()
		os.RemoveAll(tempDir)
	}
}

func spawnedArgs(t *testing.T, tempDir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(tempDir, "args.txt"))
	assert.NoError(t, err)
	return string(data)
}

func TestStartRecordingEmptyURL(t *testing.T) {
	r, _, cleanup := setupTest(t)
	defer cleanup()

	_, err := r.StartRecording("", Options{})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Equal(t, models.StatusIdle, r.Status().Status)
}

func TestStartRecordingDefaultsToAudio(t *testing.T) {
	r, tempDir, cleanup := setupTest(t)
	defer cleanup()

	res, err := r.StartRecording("rtsp://cam.local/h264", Options{})
	assert.NoError(t, err)
	assert.True(t, res.Audio)
	assert.Equal(t, "recording_2026-03-14_09-26-53.mp4", res.File)

	args := spawnedArgs(t, tempDir)
	assert.Contains(t, args, "rtsp://cam.local/audio")
	assert.Contains(t, args, "highpass=f=200")

	st := r.Status()
	assert.Equal(t, models.StatusRecording, st.Status)
	assert.Equal(t, res.File, st.File)
}

func TestStartRecordingWithoutAudio(t *testing.T) {
	r, tempDir, cleanup := setupTest(t)
	defer cleanup()

	res, err := r.StartRecording("rtsp://cam.local/h264", Options{IncludeAudio: boolPtr(false)})
	assert.NoError(t, err)
	assert.False(t, res.Audio)

	args := spawnedArgs(t, tempDir)
	assert.NotContains(t, args, "rtsp://cam.local/audio")
	assert.Contains(t, args, "-an")
}

func TestStartRecordingAudioURLOverride(t *testing.T) {
	r, tempDir, cleanup := setupTest(t)
	defer cleanup()

	res, err := r.StartRecording("rtsp://cam.local/h264", Options{AudioURL: "rtsp://mic.local/line-in"})
	assert.NoError(t, err)
	assert.True(t, res.Audio)

	args := spawnedArgs(t, tempDir)
	assert.Contains(t, args, "rtsp://mic.local/line-in")
}

func TestStartRecordingUnderivableAudioFallsBackToVideoOnly(t *testing.T) {
	r, _, cleanup := setupTest(t)
	defer cleanup()

	// Not a parseable absolute URL, so no audio companion can be derived;
	// our fake binary still accepts whatever arguments come its way.
	res, err := r.StartRecording("weird-local-device-0", Options{})
	assert.NoError(t, err)
	assert.False(t, res.Audio)
}

func TestStartRecordingAlreadyActive(t *testing.T) {
	r, _, cleanup := setupTest(t)
	defer cleanup()

	first, err := r.StartRecording("rtsp://cam.local/h264", Options{})
	assert.NoError(t, err)

	_, err = r.StartRecording("rtsp://other.local/h264", Options{})
	assert.ErrorIs(t, err, models.ErrAlreadyActive)

	st := r.Status()
	assert.Equal(t, models.StatusRecording, st.Status)
	assert.Equal(t, first.File, st.File)
}

func TestStopRecordingReturnsFilename(t *testing.T) {
	r, _, cleanup := setupTest(t)
	defer cleanup()

	res, err := r.StartRecording("rtsp://cam.local/h264", Options{})
	assert.NoError(t, err)

	file, err := r.StopRecording()
	assert.NoError(t, err)
	assert.Equal(t, res.File, file)

	st := r.Status()
	assert.Equal(t, models.StatusIdle, st.Status)
	assert.Equal(t, "", st.File)
	assert.Equal(t, int64(0), st.ElapsedMS)
}

func TestStopRecordingIdleIsNoOp(t *testing.T) {
	r, _, cleanup := setupTest(t)
	defer cleanup()

	file, err := r.StopRecording()
	assert.NoError(t, err)
	assert.Equal(t, "", file)
}

func TestStartRecordingSpawnFailure(t *testing.T) {
	r, _, cleanup := setupTest(t)
	defer cleanup()
	r.cfg.FFmpegPath = "/nonexistent/ffmpeg"

	_, err := r.StartRecording("rtsp://cam.local/h264", Options{})
	assert.Error(t, err)

	st := r.Status()
	assert.Equal(t, models.StatusIdle, st.Status)
	assert.Equal(t, "", st.File)
}

func TestListRecordings(t *testing.T) {
	r, tempDir, cleanup := setupTest(t)
	defer cleanup()

	dir := filepath.Join(tempDir, "recordings")
	assert.NoError(t, os.MkdirAll(dir, 0755))

	older := filepath.Join(dir, "recording_2026-03-13_10-00-00.mp4")
	newer := filepath.Join(dir, "recording_2026-03-14_08-00-00.mp4")
	os.WriteFile(older, make([]byte, 2*1024*1024), 0644)
	os.WriteFile(newer, make([]byte, 1024*1024), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644)
	os.Chtimes(older, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour))

	recordings, err := r.ListRecordings()
	assert.NoError(t, err)
	assert.Len(t, recordings, 2)
	assert.Equal(t, "recording_2026-03-14_08-00-00.mp4", recordings[0].Name)
	assert.Equal(t, "recording_2026-03-13_10-00-00.mp4", recordings[1].Name)
	assert.Equal(t, int64(1024*1024), recordings[0].SizeBytes)
	assert.Equal(t, "1.00 MB", recordings[0].Size)
}

func TestListRecordingsMissingDir(t *testing.T) {
	r, _, cleanup := setupTest(t)
	defer cleanup()

	recordings, err := r.ListRecordings()
	assert.NoError(t, err)
	assert.Empty(t, recordings)
}

func TestDeleteRecording(t *testing.T) {
	r, tempDir, cleanup := setupTest(t)
	defer cleanup()

	dir := filepath.Join(tempDir, "recordings")
	assert.NoError(t, os.MkdirAll(dir, 0755))
	target := filepath.Join(dir, "recording_2026-03-14_08-00-00.mp4")
	os.WriteFile(target, []byte("video"), 0644)

	assert.NoError(t, r.DeleteRecording("recording_2026-03-14_08-00-00.mp4"))
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteRecordingNotFound(t *testing.T) {
	r, _, cleanup := setupTest(t)
	defer cleanup()

	err := r.DeleteRecording("recording_1999-01-01_00-00-00.mp4")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteRecordingRejectsTraversal(t *testing.T) {
	r, tempDir, cleanup := setupTest(t)
	defer cleanup()

	// A file outside the recordings dir that must never be reachable.
	victim := filepath.Join(tempDir, "victim.mp4")
	os.WriteFile(victim, []byte("precious"), 0644)

	for _, name := range []string{
		"../victim.mp4",
		"../../etc/passwd",
		"..",
		"/etc/passwd",
		"sub/../../victim.mp4",
	} {
		err := r.DeleteRecording(name)
		assert.Error(t, err, "expected rejection for %q", name)
		assert.NotErrorIs(t, err, models.ErrNotFound, "traversal must be rejected before any stat for %q", name)
	}

	_, err := os.Stat(victim)
	assert.NoError(t, err, "file outside the recordings dir must be untouched")
}

func TestStatusElapsed(t *testing.T) {
	r, _, cleanup := setupTest(t)
	defer cleanup()

	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	current := base
	r.now = func() time.Time { return current }

	_, err := r.StartRecording("rtsp://cam.local/h264", Options{})
	assert.NoError(t, err)

	current = base.Add(42 * time.Second)
	assert.Equal(t, int64(42000), r.Status().ElapsedMS)
}
