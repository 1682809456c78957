package transcoder

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"clip-splitter/internal/logging"
)

var (
	// ErrKilled is returned by Start and Wait once the process was killed.
	ErrKilled = errors.New("process killed")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("process already started")
)

const stderrTailLines = 20

// ProcessError describes a failed ffmpeg or ffprobe invocation.
type ProcessError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		last := e.Stderr
		if i := strings.LastIndexByte(last, '\n'); i >= 0 {
			last = last[i+1:]
		}
		msg += ": " + last
	}
	return msg
}

// Unwrap exposes the underlying exec error.
func (e *ProcessError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Process is one ffmpeg invocation that can be killed from another
// goroutine at any time, including before it has started: a Kill that
// arrives first makes Start refuse to run.
type Process struct {
	cmd      *exec.Cmd
	label    string
	duration float64

	mu      sync.Mutex
	started bool
	killed  bool

	stderr   *lineWriter
	tailMu   sync.Mutex
	tailBuf  []string
	progress *lineWriter
	lastPct  int
	log      logging.Prefixed
}

func newProcess(cmd *exec.Cmd, label string, duration float64) *Process {
	p := &Process{
		cmd:      cmd,
		label:    label,
		duration: duration,
		lastPct:  -1,
		log:      logging.WithPrefix("ffmpeg " + label),
	}
	p.stderr = newLineWriter(p.handleStderr)
	p.progress = newLineWriter(p.handleProgress)
	cmd.Stderr = p.stderr
	cmd.Stdout = p.progress
	return p
}

// Args returns the full command line.
func (p *Process) Args() []string {
	return p.cmd.Args
}

// Start launches the process unless it has already been killed.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.killed {
		return ErrKilled
	}
	if p.started {
		return ErrAlreadyStarted
	}
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.label, err)
	}
	p.started = true
	p.log.Debug("started: %s", strings.Join(p.cmd.Args, " "))
	return nil
}

// Wait blocks until the process exits. A killed process returns ErrKilled;
// a non-zero exit returns a *ProcessError.
func (p *Process) Wait() error {
	err := p.cmd.Wait()
	p.stderr.Flush()
	p.progress.Flush()

	p.mu.Lock()
	killed := p.killed
	p.mu.Unlock()

	if killed {
		return ErrKilled
	}
	if err != nil {
		return &ProcessError{
			Command:  p.cmd.Path,
			ExitCode: exitCode(err),
			Stderr:   p.stderrTail(),
			Err:      err,
		}
	}
	return nil
}

// Run is Start followed by Wait.
func (p *Process) Run() error {
	if err := p.Start(); err != nil {
		return err
	}
	return p.Wait()
}

// Kill terminates the process with SIGKILL. Killing a process that has not
// started yet prevents it from starting.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.killed = true
	if !p.started || p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *Process) handleStderr(line string) {
	p.log.Debug("%s", line)

	p.tailMu.Lock()
	p.tailBuf = append(p.tailBuf, line)
	if len(p.tailBuf) > stderrTailLines {
		p.tailBuf = p.tailBuf[len(p.tailBuf)-stderrTailLines:]
	}
	p.tailMu.Unlock()
}

func (p *Process) stderrTail() string {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	return strings.Join(p.tailBuf, "\n")
}

// handleProgress parses "-progress pipe:1" key=value lines and logs every
// 10% of the segment.
func (p *Process) handleProgress(line string) {
	key, value, ok := strings.Cut(line, "=")
	if !ok || p.duration <= 0 {
		return
	}
	switch key {
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		pct := ProgressPercent(float64(us)/1e6, p.duration)
		if bucket := int(pct) / 10; bucket > p.lastPct {
			p.lastPct = bucket
			p.log.Debug("Processing %s: %.2f%% done", p.label, pct)
		}
	case "progress":
		if value == "end" {
			p.log.Debug("Processing %s: 100.00%% done", p.label)
		}
	}
}

// ProgressPercent converts an encoded position into a percentage of total,
// clamped to [0, 100].
func ProgressPercent(position, total float64) float64 {
	if total <= 0 || position <= 0 {
		return 0
	}
	pct := position / total * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// lineWriter splits written bytes into lines and hands each complete line
// to fn. Exec copies a pipe into it from a single goroutine.
type lineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	fn  func(string)
}

func newLineWriter(fn func(string)) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(b)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(data[:i]))
		w.buf.Next(i + 1)
		if line != "" {
			w.fn(line)
		}
	}
	return len(b), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if line := strings.TrimSpace(w.buf.String()); line != "" {
		w.fn(line)
	}
	w.buf.Reset()
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
