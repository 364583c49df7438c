package internal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ankit-pn/video-ocr-service/internal/event"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
)

const (
	DEBOUNCE_DURATION  time.Duration = time.Second * 2
	MAX_TIMER_DURATION time.Duration = time.Second * 10

	// The initial scan queues one task per video in a single burst.
	activityBufferSize = 1024
)

type (
	// activityTally counts the task outcomes observed since startup.
	activityTally struct {
		Queued  int
		Stored  int
		Skipped int
		Failed  int
	}

	// activityService logs the outcome of every task and notification, and
	// periodically summarises the overall progress. Summaries are debounced
	// so that a burst of tasks (such as the initial scan) produces a single
	// summary line.
	activityService struct {
		*sync.Mutex
		eventBus      event.EventHandler
		tally         activityTally
		debounceTimer *time.Timer
		maxTimer      *time.Timer
		debounce      time.Duration
		maxWait       time.Duration
		summarise     func(activityTally)
	}
)

func newActivityService(eventBus event.EventHandler) *activityService {
	return &activityService{
		Mutex:     &sync.Mutex{},
		eventBus:  eventBus,
		debounce:  DEBOUNCE_DURATION,
		maxWait:   MAX_TIMER_DURATION,
		summarise: logSummary,
	}
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(event.HandlerChannel, activityBufferSize)
	service.eventBus.RegisterHandlerChannel(messageChan,
		event.TASK_QUEUED, event.TASK_STORED, event.TASK_SKIPPED,
		event.TASK_FAILED, event.NOTIFICATION_SENT)
	defer service.eventBus.UnregisterHandlerChannel(messageChan)

	log.Emit(logger.NEW, "Activity service started\n")
	defer service.stopTimers()
	for {
		select {
		case ev := <-messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev.Event, err)
			}
		case <-ctx.Done():
			log.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	if ev.Event == event.NOTIFICATION_SENT {
		payload, ok := ev.Payload.(event.NotificationPayload)
		if !ok {
			return errors.New("illegal payload (expected NotificationPayload)")
		}

		log.Emit(logger.INFO, "Notification cycle: %d processed, %d eligible, %d stored (delivered=%v)\n",
			payload.Processed, payload.Eligible, payload.StoreTotal, payload.Delivered)
		return nil
	}

	payload, ok := ev.Payload.(event.TaskPayload)
	if !ok {
		return errors.New("illegal payload (expected TaskPayload)")
	}

	service.Lock()
	switch ev.Event {
	case event.TASK_QUEUED:
		service.tally.Queued++
	case event.TASK_STORED:
		service.tally.Stored++
	case event.TASK_SKIPPED:
		service.tally.Skipped++
	case event.TASK_FAILED:
		service.tally.Failed++
		log.Emit(logger.WARNING, "Task for %s failed: %v\n", payload.Path, payload.Reason)
	default:
		service.Unlock()
		return errors.New("unknown event type")
	}
	service.Unlock()

	service.scheduleSummary()
	return nil
}

// scheduleSummary (re)starts the debounce timer for the progress summary,
// and starts a max timer if one is not already running so that a constant
// stream of events still produces a summary periodically.
func (service *activityService) scheduleSummary() {
	service.Lock()
	defer service.Unlock()

	if service.debounceTimer != nil {
		service.debounceTimer.Stop()
	}
	service.debounceTimer = time.AfterFunc(service.debounce, service.emitSummary)

	if service.maxTimer == nil {
		service.maxTimer = time.AfterFunc(service.maxWait, service.emitSummary)
	}
}

func (service *activityService) emitSummary() {
	service.Lock()
	service.stopTimersLocked()
	tally := service.tally
	service.Unlock()

	service.summarise(tally)
}

func (service *activityService) stopTimers() {
	service.Lock()
	defer service.Unlock()
	service.stopTimersLocked()
}

func (service *activityService) stopTimersLocked() {
	if service.debounceTimer != nil {
		service.debounceTimer.Stop()
		service.debounceTimer = nil
	}
	if service.maxTimer != nil {
		service.maxTimer.Stop()
		service.maxTimer = nil
	}
}

func logSummary(tally activityTally) {
	log.Emit(logger.INFO, "Progress: %d queued, %d stored, %d skipped, %d failed\n",
		tally.Queued, tally.Stored, tally.Skipped, tally.Failed)
}
