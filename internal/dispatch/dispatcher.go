// Package dispatch feeds video tasks to a fixed-size pool of workers through a
// single shared FIFO queue.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ankit-pn/video-ocr-service/internal/event"
	"github.com/ankit-pn/video-ocr-service/internal/task"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
	"github.com/ankit-pn/video-ocr-service/pkg/worker"
)

var log = logger.Get("Dispatch")

var ErrDispatcherClosed = errors.New("dispatcher has been closed")

type (
	Config struct {
		Workers int `yaml:"workers" env:"OCR_THREADS" env-default:"4" validate:"gt=0"`

		// QueueCapacity bounds the number of queued (not yet running)
		// tasks. Zero means unbounded, in which case Submit never blocks
		// and the backlog is only limited by memory.
		QueueCapacity int `yaml:"queue_capacity" env:"QUEUE_CAPACITY" env-default:"0" validate:"gte=0"`
	}

	TaskProcessor interface {
		Process(ctx context.Context, d task.Descriptor) task.Outcome
	}

	// Dispatcher owns the task queue and the worker pool consuming it.
	Dispatcher struct {
		sync.Mutex
		config    Config
		processor TaskProcessor
		eventBus  event.EventDispatcher
		pool      *worker.WorkerPool
		ctx       context.Context

		queue   []task.Descriptor
		running int
		space   chan struct{}
		done    chan struct{}
		started bool
		closed  bool
	}
)

func New(config Config, processor TaskProcessor, eventBus event.EventDispatcher) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = 1
	}

	return &Dispatcher{
		config:    config,
		processor: processor,
		eventBus:  eventBus,
		pool:      worker.NewWorkerPool(),
		queue:     make([]task.Descriptor, 0),
		space:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start spawns the workers. The context given is passed to every task
// processed by this dispatcher.
func (dispatcher *Dispatcher) Start(ctx context.Context) error {
	dispatcher.Lock()
	defer dispatcher.Unlock()
	if dispatcher.closed {
		return ErrDispatcherClosed
	}
	if dispatcher.started {
		return worker.ErrPoolStarted
	}

	dispatcher.ctx = ctx
	for i := 0; i < dispatcher.config.Workers; i++ {
		label := fmt.Sprintf("OCR:%d", i)
		if err := dispatcher.pool.PushWorker(worker.NewWorker(label, dispatcher.work)); err != nil {
			return err
		}
	}

	if err := dispatcher.pool.Start(); err != nil {
		return err
	}

	dispatcher.started = true
	log.Emit(logger.INFO, "Started %d workers\n", dispatcher.config.Workers)
	return nil
}

// Submit enqueues the descriptor. When the queue is bounded and full, Submit
// blocks until space is available, the context is cancelled or the
// dispatcher is closed.
func (dispatcher *Dispatcher) Submit(ctx context.Context, d task.Descriptor) error {
	for {
		dispatcher.Lock()
		if dispatcher.closed {
			dispatcher.Unlock()
			return ErrDispatcherClosed
		}

		capacity := dispatcher.config.QueueCapacity
		if capacity <= 0 || len(dispatcher.queue) < capacity {
			dispatcher.queue = append(dispatcher.queue, d)
			if capacity > 0 && len(dispatcher.queue) < capacity {
				dispatcher.signalSpace()
			}
			started := dispatcher.started
			dispatcher.Unlock()

			dispatcher.dispatch(event.TASK_QUEUED, d, task.Outcome{})
			if started {
				if err := dispatcher.pool.WakeupWorkers(); err != nil {
					log.Emit(logger.WARNING, "Failed to wake workers for %s: %v\n", d, err)
				}
			}

			return nil
		}
		dispatcher.Unlock()

		select {
		case <-dispatcher.space:
		case <-dispatcher.done:
			return ErrDispatcherClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the number of tasks waiting in the queue, excluding those
// currently being processed.
func (dispatcher *Dispatcher) Pending() int {
	dispatcher.Lock()
	defer dispatcher.Unlock()
	return len(dispatcher.queue)
}

// Running returns the number of tasks currently being processed.
func (dispatcher *Dispatcher) Running() int {
	dispatcher.Lock()
	defer dispatcher.Unlock()
	return dispatcher.running
}

// Close stops accepting new tasks, abandons every queued task and waits for
// in-flight tasks to finish. The number of abandoned tasks is returned.
func (dispatcher *Dispatcher) Close() int {
	dispatcher.Lock()
	if dispatcher.closed {
		dispatcher.Unlock()
		return 0
	}

	dispatcher.closed = true
	abandoned := len(dispatcher.queue)
	dispatcher.queue = nil
	close(dispatcher.done)
	dispatcher.Unlock()

	if abandoned > 0 {
		log.Emit(logger.WARNING, "Abandoning %d queued tasks\n", abandoned)
	}

	dispatcher.pool.Close()
	log.Emit(logger.STOP, "Dispatcher closed\n")
	return abandoned
}

// work is the task executed by every worker in the pool. It claims the task
// at the head of the queue and processes it.
func (dispatcher *Dispatcher) work(w worker.Worker) (bool, error) {
	d, ok := dispatcher.claim()
	if !ok {
		return false, nil
	}
	defer dispatcher.release()

	log.Emit(logger.DEBUG, "Worker %s claimed %s\n", w.Label(), d)
	outcome := dispatcher.processor.Process(dispatcher.ctx, d)
	dispatcher.dispatch(outcome.Event(), d, outcome)

	return true, nil
}

func (dispatcher *Dispatcher) claim() (task.Descriptor, bool) {
	dispatcher.Lock()
	defer dispatcher.Unlock()
	if dispatcher.closed || len(dispatcher.queue) == 0 {
		return task.Descriptor{}, false
	}

	d := dispatcher.queue[0]
	dispatcher.queue[0] = task.Descriptor{}
	dispatcher.queue = dispatcher.queue[1:]
	dispatcher.running++
	dispatcher.signalSpace()

	return d, true
}

func (dispatcher *Dispatcher) release() {
	dispatcher.Lock()
	defer dispatcher.Unlock()
	dispatcher.running--
}

// signalSpace wakes a single Submit caller blocked on a full queue. Must be
// called with the lock held.
func (dispatcher *Dispatcher) signalSpace() {
	select {
	case dispatcher.space <- struct{}{}:
	default:
	}
}

func (dispatcher *Dispatcher) dispatch(ev event.Event, d task.Descriptor, outcome task.Outcome) {
	if dispatcher.eventBus == nil {
		return
	}

	dispatcher.eventBus.Dispatch(ev, event.TaskPayload{
		ID:     d.ID,
		Path:   d.Path,
		Key:    d.Key,
		Frames: outcome.Frames,
		Reason: outcome.Reason,
	})
}
