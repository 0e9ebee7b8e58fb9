package systems

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidation(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestSingleWorkerKeepsOrder(t *testing.T) {
	js, err := NewJobSystem(1, 4)
	require.NoError(t, err)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, js.Submit(JobTask{Name: "append", OnStart: func() error {
			got = append(got, i)
			return nil
		}}))
	}
	require.NoError(t, js.Shutdown())

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestPostKeepsOrderWithinCapacity(t *testing.T) {
	js, err := NewJobSystem(1, 64)
	require.NoError(t, err)

	block := make(chan struct{})
	js.Post("block", func() { <-block })
	var got []int
	for i := 0; i < 32; i++ {
		i := i
		js.Post("append", func() { got = append(got, i) })
	}
	close(block)
	require.NoError(t, js.Shutdown())

	require.Len(t, got, 32)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestCallbacks(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)

	var mu sync.Mutex
	var completed, failed []string
	boom := errors.New("boom")

	require.NoError(t, js.Submit(JobTask{
		Name:       "ok",
		OnStart:    func() error { return nil },
		OnComplete: func() { mu.Lock(); completed = append(completed, "ok"); mu.Unlock() },
	}))
	require.NoError(t, js.Submit(JobTask{
		Name:      "fail",
		OnStart:   func() error { return boom },
		OnFailure: func(err error) { mu.Lock(); failed = append(failed, err.Error()); mu.Unlock() },
	}))
	require.NoError(t, js.Submit(JobTask{
		Name:    "panic",
		OnStart: func() error { panic("broken job") },
	}))
	require.NoError(t, js.Submit(JobTask{Name: "empty"}))
	require.NoError(t, js.Shutdown())

	assert.Equal(t, []string{"ok"}, completed)
	assert.Equal(t, []string{"boom"}, failed)
}

func TestJobsCanPostFollowUps(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)

	done := make(chan int, 1)
	var step func(n int)
	step = func(n int) {
		if n == 10 {
			done <- n
			return
		}
		// more follow-ups than the queue holds
		js.Post("step", func() { step(n + 1) })
		js.Post("noop", func() {})
	}
	js.Post("step", func() { step(0) })

	assert.Equal(t, 10, <-done)
	require.NoError(t, js.Shutdown())
}

func TestShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())

	assert.ErrorIs(t, js.Shutdown(), ErrJobSystemClosed)
	assert.ErrorIs(t, js.Submit(JobTask{Name: "late"}), ErrJobSystemClosed)
	js.Post("late", func() { t.Error("job ran after shutdown") })
}
