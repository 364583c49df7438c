package worker

import (
	"sync"

	"github.com/ankit-pn/video-ocr-service/pkg/logger"
)

var workerLogger = logger.Get("Worker")

type WorkerWakeupChan chan int
type WorkerStatus int

// WorkerTaskFn is the function a worker executes each time it
// is woken. The boolean return indicates whether work was
// performed; the worker keeps calling the function until it
// reports no work was found, at which point it goes back to sleep.
type WorkerTaskFn func(Worker) (bool, error)

const (
	Sleeping WorkerStatus = iota
	Working
	Finished
)

type Worker interface {
	Start()
	Status() WorkerStatus
	WakeupChan() WorkerWakeupChan
	Label() string
	Close()
}

type taskWorker struct {
	sync.Mutex
	label         string
	task          WorkerTaskFn
	wakeupChan    WorkerWakeupChan
	currentStatus WorkerStatus
}

// NewWorker creates a worker which executes the task provided
// whenever it is woken up. The wakeup channel is buffered by one
// so that a wakeup sent while the worker is busy is not lost.
func NewWorker(label string, task WorkerTaskFn) *taskWorker {
	return &taskWorker{
		label:         label,
		task:          task,
		wakeupChan:    make(WorkerWakeupChan, 1),
		currentStatus: Sleeping,
	}
}

// Start runs the worker loop. It returns once the wakeup channel
// has been closed and any task in flight has returned.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker with label %v\n", worker.label)
	for {
		worker.setStatus(Working)
		for {
			workDone, err := worker.task(worker)
			if err != nil {
				workerLogger.Emit(logger.ERROR, "Worker with label %v has reported an error(%T): %v\n", worker.label, err, err.Error())
			}

			if !workDone {
				break
			}
		}

		if !worker.sleep() {
			break
		}
	}

	worker.setStatus(Finished)
	workerLogger.Emit(logger.STOP, "Worker with label %v has stopped\n", worker.label)
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	worker.Lock()
	defer worker.Unlock()
	return worker.currentStatus
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

// Close closes the Worker by closing the wakeup channel.
// Note that this does not interupt a task that is currently running.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}

// sleep puts a worker to sleep until it's wakeupChan is
// signalled from another goroutine. Returns a boolean that
// is 'false' if the wakeup channel was closed - indicating
// the worker should quit.
func (worker *taskWorker) sleep() (isAlive bool) {
	worker.setStatus(Sleeping)

	if _, isAlive = <-worker.wakeupChan; !isAlive {
		workerLogger.Emit(logger.DEBUG, "Wakeup channel for worker '%v' has been closed - worker is exiting\n", worker.label)
	}

	return isAlive
}

func (worker *taskWorker) setStatus(status WorkerStatus) {
	worker.Lock()
	defer worker.Unlock()
	worker.currentStatus = status
}
