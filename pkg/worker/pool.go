package worker

import (
	"errors"
	"sync"
)

var (
	ErrPoolStarted    = errors.New("worker pool has already been started")
	ErrPoolNotStarted = errors.New("worker pool has not been started")
)

// WorkerPool owns a fixed set of workers. The WaitGroup is
// automatically controlled by the WorkerPool and is released once
// every worker has returned from Start.
type WorkerPool struct {
	sync.Mutex
	workers []Worker
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewWorkerPool creates a new WorkerPool struct
// and initialises the 'workers' slice.
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{workers: make([]Worker, 0)}
}

// Start cycles through all the workers
// currently inside the WorkerPool and creates
// a goroutine for each.
//
// Start does NOT block, use Close to stop and wait
// for the workers.
func (pool *WorkerPool) Start() error {
	pool.Lock()
	defer pool.Unlock()
	if pool.started {
		return ErrPoolStarted
	}

	pool.started = true
	for _, worker := range pool.workers {
		pool.wg.Add(1)
		go func(w Worker) {
			defer pool.wg.Done()
			w.Start()
		}(worker)
	}

	return nil
}

// PushWorker inserts the workers provided in to the worker pool. Workers
// can only be pushed before the pool is started.
func (pool *WorkerPool) PushWorker(workers ...Worker) error {
	pool.Lock()
	defer pool.Unlock()
	if pool.started {
		return ErrPoolStarted
	}

	pool.workers = append(pool.workers, workers...)
	return nil
}

// Size returns the number of workers in this pool
func (pool *WorkerPool) Size() int {
	pool.Lock()
	defer pool.Unlock()
	return len(pool.workers)
}

// WakeupWorkers signals every worker in the pool. The send
// is non-blocking: a worker that already has a pending wakeup
// will see it once its current task completes.
func (pool *WorkerPool) WakeupWorkers() error {
	pool.Lock()
	defer pool.Unlock()
	if !pool.started || pool.closed {
		return ErrPoolNotStarted
	}

	for _, w := range pool.workers {
		select {
		case w.WakeupChan() <- 1:
		default:
		}
	}

	return nil
}

// Close will cycle through all the workers inside this
// worker pool and close their wakeup channels, then waits for
// all workers to exit. In-flight tasks are allowed to finish.
func (pool *WorkerPool) Close() {
	pool.Lock()
	if !pool.started || pool.closed {
		pool.Unlock()
		return
	}

	pool.closed = true
	for _, w := range pool.workers {
		w.Close()
	}
	pool.Unlock()

	pool.wg.Wait()
}
