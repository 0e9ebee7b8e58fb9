package process

import (
	"context"
	"time"
)

type Result struct {
	ExitCode int
	Signaled bool
	Stdout   []byte
	Stderr   []byte
}

// Run starts program synchronously and blocks until it exits or ctx is done.
// On cancellation the process tree is killed and ctx.Err() is returned.
func Run(ctx context.Context, dir string, env *Environment, program string, args ...string) (Result, error) {
	p := New()
	p.SetWorkingDirectory(dir)
	p.SetEnvironment(env)
	if err := p.Start(program, args...); err != nil {
		return Result{ExitCode: -1}, err
	}

	p.mu.Lock()
	finished := p.finished
	p.mu.Unlock()

	select {
	case <-finished:
	case <-ctx.Done():
		p.Kill()
		p.WaitForFinished(5 * time.Second)
		return Result{ExitCode: p.ExitCode(), Signaled: p.Signaled()}, ctx.Err()
	}

	return Result{
		ExitCode: p.ExitCode(),
		Signaled: p.Signaled(),
		Stdout:   p.ReadAllStandardOutput(),
		Stderr:   p.ReadAllStandardError(),
	}, nil
}
