package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	gprocess "github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/anima-builder/engine/core"
)

type State int

const (
	NotRunning State = iota
	Starting
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case NotRunning:
		return "NotRunning"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Finished:
		return "Finished"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type ProcessError int

const (
	// The program could not be spawned. Reported once, no monitor is started.
	FailedToStart ProcessError = iota
	// Reading one of the output pipes failed.
	ReadError
)

// SignalExitBase is added to the signal number of a process that was
// terminated by a signal, so SIGKILL is reported as exit code 137.
const SignalExitBase = 128

// Process wraps one spawned OS process. Output is collected by a monitor
// goroutine which raises exactly one finished notification per run.
type Process struct {
	mu sync.Mutex

	state    State
	exitCode int
	signaled bool

	stdout bytes.Buffer
	stderr bytes.Buffer

	dir string
	env *Environment
	cmd *exec.Cmd

	started  chan struct{}
	finished chan struct{}

	onFinished []func(exitCode int)
	onError    []func(kind ProcessError, err error)
	onStdout   []func()
	onStderr   []func()
}

func New() *Process {
	return &Process{
		state:    NotRunning,
		exitCode: -1,
	}
}

func (p *Process) SetWorkingDirectory(dir string) {
	p.mu.Lock()
	p.dir = dir
	p.mu.Unlock()
}

func (p *Process) WorkingDirectory() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dir
}

func (p *Process) SetEnvironment(env *Environment) {
	p.mu.Lock()
	p.env = env
	p.mu.Unlock()
}

func (p *Process) OnFinished(fn func(exitCode int)) {
	p.mu.Lock()
	p.onFinished = append(p.onFinished, fn)
	p.mu.Unlock()
}

func (p *Process) OnError(fn func(kind ProcessError, err error)) {
	p.mu.Lock()
	p.onError = append(p.onError, fn)
	p.mu.Unlock()
}

func (p *Process) OnReadyReadStandardOutput(fn func()) {
	p.mu.Lock()
	p.onStdout = append(p.onStdout, fn)
	p.mu.Unlock()
}

func (p *Process) OnReadyReadStandardError(fn func()) {
	p.mu.Lock()
	p.onStderr = append(p.onStderr, fn)
	p.mu.Unlock()
}

// Start spawns program. It returns core.ErrAlreadyRunning while a previous run
// is alive and an error wrapping core.ErrFailedToStart when the program cannot
// be spawned.
func (p *Process) Start(program string, args ...string) error {
	p.mu.Lock()
	if p.state == Starting || p.state == Running {
		p.mu.Unlock()
		return core.ErrAlreadyRunning
	}

	p.state = Starting
	p.exitCode = -1
	p.signaled = false
	p.stdout.Reset()
	p.stderr.Reset()
	p.started = make(chan struct{})
	p.finished = make(chan struct{})

	cmd := exec.Command(program, args...)
	cmd.Dir = p.dir
	if !p.env.IsEmpty() {
		cmd.Env = p.env.List()
	}

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		var stderr io.ReadCloser
		stderr, err = cmd.StderrPipe()
		if err == nil {
			err = cmd.Start()
			if err == nil {
				p.cmd = cmd
				p.state = Running
				close(p.started)
				finished := p.finished
				p.mu.Unlock()

				go p.monitor(cmd, stdout, stderr, finished)
				return nil
			}
		}
	}

	p.state = NotRunning
	p.cmd = nil
	handlers := append([]func(ProcessError, error){}, p.onError...)
	p.mu.Unlock()

	startErr := fmt.Errorf("%w: %s: %v", core.ErrFailedToStart, program, err)
	for _, h := range handlers {
		h(FailedToStart, startErr)
	}
	return startErr
}

func (p *Process) monitor(cmd *exec.Cmd, stdout, stderr io.ReadCloser, finished chan struct{}) {
	// Pipes must be drained before Wait closes them.
	var g errgroup.Group
	g.Go(func() error { return p.pump(stdout, &p.stdout, func() []func() { return p.onStdout }) })
	g.Go(func() error { return p.pump(stderr, &p.stderr, func() []func() { return p.onStderr }) })
	readErr := g.Wait()

	waitErr := cmd.Wait()
	code, signaled := exitStatus(cmd.ProcessState)
	if code < 0 && waitErr != nil {
		code = 1
	}

	p.mu.Lock()
	p.exitCode = code
	p.signaled = signaled
	p.state = Finished
	p.cmd = nil
	finishedHandlers := append([]func(int){}, p.onFinished...)
	errorHandlers := append([]func(ProcessError, error){}, p.onError...)
	p.mu.Unlock()

	close(finished)

	if readErr != nil {
		for _, h := range errorHandlers {
			h(ReadError, readErr)
		}
	}
	for _, h := range finishedHandlers {
		h(code)
	}
}

func (p *Process) pump(r io.Reader, target *bytes.Buffer, handlers func() []func()) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.mu.Lock()
			target.Write(buf[:n])
			notify := append([]func(){}, handlers()...)
			p.mu.Unlock()

			for _, h := range notify {
				h()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func exitStatus(state *os.ProcessState) (int, bool) {
	if state == nil {
		return -1, false
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return SignalExitBase + int(ws.Signal()), true
	}
	return state.ExitCode(), false
}

// WaitForStarted blocks until the process runs or timeout expires. A negative
// timeout waits forever.
func (p *Process) WaitForStarted(timeout time.Duration) bool {
	p.mu.Lock()
	state, started := p.state, p.started
	p.mu.Unlock()

	switch state {
	case Running, Finished:
		return true
	case NotRunning:
		return false
	}
	return waitChannel(started, timeout)
}

// WaitForFinished blocks until the process exits or timeout expires. The
// process is left running on timeout. A negative timeout waits forever.
func (p *Process) WaitForFinished(timeout time.Duration) bool {
	p.mu.Lock()
	state, finished := p.state, p.finished
	p.mu.Unlock()

	switch state {
	case Finished:
		return true
	case NotRunning:
		return false
	}
	return waitChannel(finished, timeout)
}

func waitChannel(ch chan struct{}, timeout time.Duration) bool {
	if ch == nil {
		return false
	}
	if timeout < 0 {
		<-ch
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// ReadAllStandardOutput returns the output gathered since the previous call.
func (p *Process) ReadAllStandardOutput() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return drain(&p.stdout)
}

// ReadAllStandardError returns the error output gathered since the previous call.
func (p *Process) ReadAllStandardError() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return drain(&p.stderr)
}

func drain(b *bytes.Buffer) []byte {
	if b.Len() == 0 {
		return nil
	}
	out := append([]byte(nil), b.Bytes()...)
	b.Reset()
	return out
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitCode is authoritative once State is Finished; -1 before that.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Signaled reports whether the last run was ended by a signal.
func (p *Process) Signaled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaled
}

func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Terminate asks the process and its children to exit.
func (p *Process) Terminate() {
	p.signalTree(func(proc *gprocess.Process) error { return proc.Terminate() }, syscall.SIGTERM)
}

// Kill forcibly ends the process and its children.
func (p *Process) Kill() {
	p.signalTree(func(proc *gprocess.Process) error { return proc.Kill() }, syscall.SIGKILL)
}

func (p *Process) signalTree(fn func(*gprocess.Process) error, fallback syscall.Signal) {
	p.mu.Lock()
	if p.state != Running || p.cmd == nil || p.cmd.Process == nil {
		p.mu.Unlock()
		return
	}
	osProc := p.cmd.Process
	p.mu.Unlock()

	if err := visitTree(int32(osProc.Pid), fn); err != nil {
		_ = osProc.Signal(fallback)
	}
}

func visitTree(pid int32, fn func(*gprocess.Process) error) error {
	proc, err := gprocess.NewProcess(pid)
	if err != nil {
		return err
	}
	if children, err := proc.Children(); err == nil {
		for _, child := range children {
			_ = visitTree(child.Pid, fn)
		}
	}
	return fn(proc)
}
