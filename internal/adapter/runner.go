// internal/adapter/runner.go
package adapter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Proc is one live subprocess.
type Proc interface {
	// Write sends bytes to the process's stdin.
	Write(p []byte) error

	// CloseInput closes stdin. Vendors that read the prompt from
	// stdin need the EOF to start working. Safe to call twice.
	CloseInput() error

	// Kill terminates the process.
	Kill() error
}

// ProcSpec describes one subprocess launch. OnStdout and OnStderr
// receive raw chunks as they arrive, each on its own reader goroutine.
// OnExit fires exactly once, after both streams are drained and their
// callbacks have returned.
type ProcSpec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string

	OnStdout func(p []byte)
	OnStderr func(p []byte)
	OnExit   func(code int)
}

// Runner launches subprocesses. ExecRunner is the production default;
// tests substitute scripted fakes.
type Runner interface {
	Start(spec ProcSpec) (Proc, error)
}

// ExecRunner runs real subprocesses via os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Start(spec ProcSpec) (Proc, error) {
	cmd := exec.Command(spec.Binary, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pump(stdout, spec.OnStdout)
	}()
	go func() {
		defer wg.Done()
		pump(stderr, spec.OnStderr)
	}()
	go func() {
		wg.Wait()
		err := cmd.Wait()
		if spec.OnExit != nil {
			spec.OnExit(exitCode(err))
		}
	}()

	return &execProc{cmd: cmd, stdin: stdin}, nil
}

// pump copies a stream into fn chunk by chunk. Chunks are copied out of
// the read buffer before delivery since the buffer is reused.
func pump(r io.Reader, fn func([]byte)) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 && fn != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			fn(chunk)
		}
		if err != nil {
			return
		}
	}
}

// exitCode maps a Wait error to the conventional shell exit code,
// including the 128+signal form for signal deaths (137 for SIGKILL,
// 143 for SIGTERM) that the retry policy matches on.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return ee.ExitCode()
	}
	return -1
}

type execProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu     sync.Mutex
	closed bool
}

func (p *execProc) Write(b []byte) error {
	_, err := p.stdin.Write(b)
	return err
}

func (p *execProc) CloseInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.stdin.Close()
}

func (p *execProc) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
