package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	tailLimit = 2048
	stopGrace = 3 * time.Second
)

// Handle is the uniform contract the sessions hold over a transcoder
// process: block until ready evidence, then kill on demand. Stop is
// idempotent and safe to call with no active process.
type Handle interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// StartError is returned when the transcoder exits or errors before
// signaling ready. Tail carries the last bytes of its diagnostic output so
// the caller can surface what ffmpeg actually complained about.
type StartError struct {
	Stage string // "connect" or "transcode"
	Tail  string
	Err   error
}

func (e *StartError) Error() string {
	if e.Tail != "" {
		return fmt.Sprintf("ffmpeg %s failed: %v: %s", e.Stage, e.Err, strings.TrimSpace(e.Tail))
	}
	return fmt.Sprintf("ffmpeg %s failed: %v", e.Stage, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// tailBuffer retains the last tailLimit bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailLimit {
		t.buf = t.buf[len(t.buf)-tailLimit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// MonitoredCmd runs a raw ffmpeg invocation and treats the appearance of a
// marker substring on stderr as the ready signal. The recorder uses this
// surface for dual-input spawns, where it needs full control over the
// argument list.
type MonitoredCmd struct {
	Bin    string
	Args   []string
	Marker string // ready evidence, e.g. "Output #0"
	// OnExit fires exactly once per process lifetime, after the process
	// has terminated. crashed is true when it died without Stop being
	// requested.
	OnExit func(crashed bool)

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	waitErr error
	tail    *tailBuffer
	done    chan struct{}
}

// Start spawns the process and blocks until the marker appears on stderr,
// the process dies, or ctx expires.
func (m *MonitoredCmd) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cmd != nil {
		m.mu.Unlock()
		return fmt.Errorf("process already started")
	}
	m.tail = &tailBuffer{}
	m.done = make(chan struct{})

	cmd := exec.Command(m.Bin, m.Args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		m.mu.Unlock()
		return &StartError{Stage: "connect", Err: err}
	}
	m.cmd = cmd
	m.mu.Unlock()

	ready := make(chan struct{})
	scanDone := make(chan struct{})
	go m.scanStderr(stderr, ready, scanDone)
	go m.waitExit(cmd, scanDone)

	select {
	case <-ready:
		return nil
	case <-m.done:
		m.mu.Lock()
		waitErr := m.waitErr
		m.mu.Unlock()
		if waitErr == nil {
			waitErr = fmt.Errorf("process exited before producing output")
		}
		return &StartError{Stage: "transcode", Tail: m.tail.String(), Err: waitErr}
	case <-ctx.Done():
		m.Stop()
		return &StartError{Stage: "connect", Tail: m.tail.String(), Err: ctx.Err()}
	}
}

func (m *MonitoredCmd) scanStderr(r io.Reader, ready, scanDone chan struct{}) {
	defer close(scanDone)
	scanner := bufio.NewScanner(r)
	signaled := false
	for scanner.Scan() {
		line := scanner.Text()
		m.tail.Write([]byte(line + "\n"))
		if !signaled && strings.Contains(line, m.Marker) {
			signaled = true
			close(ready)
		}
	}
}

func (m *MonitoredCmd) waitExit(cmd *exec.Cmd, scanDone chan struct{}) {
	// Drain stderr fully before reaping, so the diagnostic tail is intact.
	<-scanDone
	err := cmd.Wait()

	m.mu.Lock()
	m.waitErr = err
	crashed := err != nil && !m.stopped
	onExit := m.OnExit
	m.cmd = nil
	m.mu.Unlock()

	close(m.done)
	if onExit != nil {
		onExit(crashed)
	}
}

// Stop sends a graceful termination signal. Calling it with no active
// process is a no-op.
func (m *MonitoredCmd) Stop() error {
	m.mu.Lock()
	m.stopped = true
	cmd := m.cmd
	done := m.done
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		cmd.Process.Kill()
	}

	select {
	case <-done:
	case <-time.After(stopGrace):
		log.Printf("ffmpeg did not exit within %s, killing", stopGrace)
		cmd.Process.Kill()
		<-done
	}
	return nil
}

func (m *MonitoredCmd) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd != nil
}
