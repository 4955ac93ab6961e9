package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Pipeline is the fluent single-input invocation builder. Unlike
// MonitoredCmd it signals ready as soon as the process is spawned, the way
// a builder's start callback would; a later crash still reaches the owner
// through OnExit exactly once.
type Pipeline struct {
	bin        string
	inputOpts  []string
	input      string
	outputOpts []string
	output     string
	onExit     func(crashed bool)

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	tail    *tailBuffer
	done    chan struct{}
}

func NewPipeline(bin string) *Pipeline {
	return &Pipeline{bin: bin}
}

// Input sets the source URL.
func (p *Pipeline) Input(url string) *Pipeline {
	p.input = url
	return p
}

// InputOptions appends options placed before the -i flag.
func (p *Pipeline) InputOptions(opts ...string) *Pipeline {
	p.inputOpts = append(p.inputOpts, opts...)
	return p
}

// Output sets the destination path.
func (p *Pipeline) Output(path string) *Pipeline {
	p.output = path
	return p
}

// OutputOptions appends options placed after the -i flag.
func (p *Pipeline) OutputOptions(opts ...string) *Pipeline {
	p.outputOpts = append(p.outputOpts, opts...)
	return p
}

// OnExit registers the owner's terminal-exit callback.
func (p *Pipeline) OnExit(fn func(crashed bool)) *Pipeline {
	p.onExit = fn
	return p
}

// Args assembles the full argument list in ffmpeg order:
// input options, -i input, output options, -y output.
func (p *Pipeline) Args() []string {
	args := make([]string, 0, len(p.inputOpts)+len(p.outputOpts)+4)
	args = append(args, p.inputOpts...)
	args = append(args, "-i", p.input)
	args = append(args, p.outputOpts...)
	args = append(args, "-y", p.output)
	return args
}

// Start spawns the process. A spawn failure is rejected immediately; once
// spawned the pipeline is considered ready.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("pipeline already started")
	}
	if p.input == "" || p.output == "" {
		return fmt.Errorf("pipeline needs both an input and an output")
	}

	p.tail = &tailBuffer{}
	p.done = make(chan struct{})

	// The process outlives the Start call, so it is deliberately not bound
	// to ctx; teardown goes through Stop.
	cmd := exec.Command(p.bin, p.Args()...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return &StartError{Stage: "connect", Err: err}
	}
	p.cmd = cmd

	go p.waitExit(cmd, stderr)
	return nil
}

func (p *Pipeline) waitExit(cmd *exec.Cmd, stderr io.Reader) {
	io.Copy(p.tail, stderr)
	err := cmd.Wait()

	p.mu.Lock()
	crashed := err != nil && !p.stopped
	onExit := p.onExit
	tail := p.tail.String()
	p.cmd = nil
	p.mu.Unlock()

	if crashed {
		log.Printf("ffmpeg pipeline crashed: %v: %s", err, tail)
	}
	close(p.done)
	if onExit != nil {
		onExit(crashed)
	}
}

// Stop terminates the pipeline gracefully. A no-op when nothing runs.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	p.stopped = true
	cmd := p.cmd
	done := p.done
	p.mu.Unlock()

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

func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}
