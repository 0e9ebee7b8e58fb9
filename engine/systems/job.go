package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-builder/engine/core"
)

// JobTask describes one unit of work. OnStart runs on a worker; OnComplete
// or OnFailure follow on the same worker depending on its result.
type JobTask struct {
	Name       string
	OnStart    func() error
	OnComplete func()
	OnFailure  func(err error)
}

// JobSystem runs submitted jobs on a fixed set of workers. With a single
// worker jobs run strictly one after the other in submission order, which
// is how the pipeline serializes everything that touches shared state.
type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	defer func() {
		if r := recover(); r != nil {
			core.LogCritical("job %q panicked: %v", job.Name, r)
		}
	}()

	if job.OnStart == nil {
		return
	}
	if err := job.OnStart(); err != nil {
		core.LogError("job %q failed: %s", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete()
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run before it returns.
 * Must not be called from a job.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return ErrJobSystemClosed
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}

// AddWorkNonBlocking queues the job and returns immediately. Jobs may use
// it to schedule follow-up work without deadlocking: when the queue is full
// the job is handed over from a new goroutine, and only then may it run out
// of order.
func (js *JobSystem) AddWorkNonBlocking(jt JobTask) {
	js.mu.RLock()
	if js.closed {
		js.mu.RUnlock()
		core.LogDebug("dropped job %q: %s", jt.Name, ErrJobSystemClosed)
		return
	}
	select {
	case js.jobQueue <- jt:
		js.mu.RUnlock()
		return
	default:
	}
	js.mu.RUnlock()

	go func() {
		if err := js.Submit(jt); err != nil {
			core.LogDebug("dropped job %q: %s", jt.Name, err)
		}
	}()
}

// Post queues fn as a job without blocking.
func (js *JobSystem) Post(name string, fn func()) {
	js.AddWorkNonBlocking(JobTask{Name: name, OnStart: func() error {
		fn()
		return nil
	}})
}
