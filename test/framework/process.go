package framework

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// gracePeriod is how long Stop waits after SIGTERM before killing. A
// shutting-down server may still be draining container runs.
const gracePeriod = 30 * time.Second

// Process drives one server binary under test and captures its
// combined output for log assertions.
type Process struct {
	Binary string
	Args   []string
	// Env entries are appended to the inherited environment.
	Env []string
	PID int

	mu     sync.Mutex
	cmd    *exec.Cmd
	output *LogBuffer
	waitCh chan error
}

// NewProcess creates a process for the given binary. Nothing runs
// until Start.
func NewProcess(binary string) *Process {
	return &Process{
		Binary: binary,
		output: &LogBuffer{},
	}
}

// Start launches the process. Stdout and stderr are merged into the
// log buffer.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("process already started (pid %d)", p.PID)
	}

	cmd := exec.Command(p.Binary, p.Args...)
	cmd.Env = append(os.Environ(), p.Env...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return fmt.Errorf("failed to start %s: %w", p.Binary, err)
	}

	p.cmd = cmd
	p.PID = cmd.Process.Pid
	p.waitCh = make(chan error, 1)

	go p.consume(pr)
	go func(waitCh chan error) {
		err := cmd.Wait()
		pw.Close()
		waitCh <- err
	}(p.waitCh)

	return nil
}

func (p *Process) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	// JSON log lines can get long.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.output.Append(scanner.Text())
	}
}

// Stop asks the process to shut down with SIGTERM and escalates to
// SIGKILL after the grace period. It returns nil once the process has
// been reaped, however it exited.
func (p *Process) Stop() error {
	cmd, waitCh := p.current()
	if cmd == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Signal failed, the process is most likely already gone.
		return p.reap(waitCh, time.Second)
	}
	if err := p.reap(waitCh, gracePeriod); err == nil {
		return nil
	}

	_ = cmd.Process.Kill()
	return p.reap(waitCh, 10*time.Second)
}

// Kill force-kills the process without a grace period.
func (p *Process) Kill() error {
	cmd, waitCh := p.current()
	if cmd == nil {
		return nil
	}
	_ = cmd.Process.Kill()
	return p.reap(waitCh, 10*time.Second)
}

func (p *Process) current() (*exec.Cmd, chan error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return nil, nil
	}
	return p.cmd, p.waitCh
}

// reap waits for the single Wait goroutine to observe the exit, then
// clears the slot so the process can be started again.
func (p *Process) reap(waitCh chan error, timeout time.Duration) error {
	select {
	case <-waitCh:
	case <-time.After(timeout):
		return fmt.Errorf("process %d did not exit within %v", p.PID, timeout)
	}

	p.mu.Lock()
	p.cmd = nil
	p.mu.Unlock()
	return nil
}

// IsRunning reports whether the process is alive.
func (p *Process) IsRunning() bool {
	cmd, _ := p.current()
	if cmd == nil {
		return false
	}
	return cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Logs returns everything the process has written so far.
func (p *Process) Logs() string {
	return p.output.String()
}

// WaitForLog blocks until the output contains pattern or the timeout
// expires.
func (p *Process) WaitForLog(pattern string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.output.Contains(pattern) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("log pattern %q not seen within %v; logs:\n%s", pattern, timeout, p.Logs())
}

// LogBuffer accumulates output lines under a lock.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
}

// Append adds one line.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()
}

// String returns the buffered output as one newline-joined string.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

// Contains reports whether any buffered line contains substr.
func (b *LogBuffer) Contains(substr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range b.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// Lines returns a copy of the buffered lines.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
