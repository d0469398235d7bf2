package transport

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// StartConfig describes how to launch the external agent binary.
type StartConfig struct {
	Path   string
	Args   []string
	Env    []string
	Dir    string
	Stderr io.Writer // drained stderr lines are written here; nil discards them

	// StdoutCompression decompresses the process's stdout stream before it
	// is line-framed: "" (none, the default), "flate", or "zstd". See
	// SPEC_FULL.md DOMAIN STACK — off by default, for agent configurations
	// that wrap stream-json output in a compressed transport.
	StdoutCompression string
}

// wrapStdout applies the configured decompressor, if any, to the process's
// raw stdout pipe.
func wrapStdout(r io.Reader, kind string) (io.Reader, error) {
	switch kind {
	case "":
		return r, nil
	case "flate":
		return flate.NewReader(r), nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("transport: opening zstd stdout decoder: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("transport: unknown stdout compression %q", kind)
	}
}

// Process supervises exactly one spawned external agent process: its
// standard input/output/error and its lifecycle (start, graceful-then-
// forceful teardown, reaping).
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	Writer *LineWriter
	Reader *LineReader

	stderrDone chan struct{}

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}
}

// Start launches the binary named by cfg.Path. It fails with a
// transport-unavailable-flavored error (the caller wraps it) when the binary
// cannot be resolved or the process cannot be spawned.
func Start(cfg StartConfig) (*Process, error) {
	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	stdoutReader, err := wrapStdout(stdout, cfg.StdoutCompression)
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{
		cmd:        cmd,
		stdin:      stdin,
		Writer:     NewLineWriter(stdin),
		Reader:     NewLineReader(stdoutReader),
		stderrDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}

	go p.drainStderr(stderr, cfg.Stderr)
	go p.awaitExit()

	return p, nil
}

// drainStderr never blocks the caller on stderr; it only ever surfaces
// diagnostic lines to the configured sink.
func (p *Process) drainStderr(r io.Reader, sink io.Writer) {
	defer close(p.stderrDone)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, initialScanBuf), scannerMaxBuf)
	for sc.Scan() {
		if sink != nil {
			fmt.Fprintln(sink, sc.Text())
		}
	}
}

func (p *Process) awaitExit() {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	})
}

// Done returns a channel closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.exited }

// ExitErr returns the error from Wait (nil on a clean exit). Only valid
// after Done() is closed.
func (p *Process) ExitErr() error { return p.waitErr }

// Close implements the teardown ordering from spec §9: (i) signal
// termination, (ii) close stdin so the process can drain, (iii) wait
// briefly, (iv) forcibly terminate if still alive, (v) await exit. Idempotent.
//
// When Close tears down a running process it returns nil: the exit status
// produced by its own signal or kill is available from ExitErr. When the
// process had already exited before Close was called, Close returns that
// exit's error.
func (p *Process) Close(grace time.Duration) error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
	}

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(os.Interrupt)
	}
	_ = p.stdin.Close()

	select {
	case <-p.exited:
	case <-time.After(grace):
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-p.exited
	}

	<-p.stderrDone
	return nil
}
