// A collection of event names and common methods used to handle the events, typically
// redirecting the handling to a service method or other method via the `Handler` interface.
package event

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/ankit-pn/video-ocr-service/pkg/logger"
	"github.com/google/uuid"
)

var log = logger.Get("Activity")

// Events emitted by the task and notification services. Other parts of the
// service (metrics, activity logging) subscribe to these rather than being
// called directly by the producers.
type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
		UnregisterHandlerChannel(HandlerChannel)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
		Dropped() uint64
	}

	// TaskPayload accompanies every TASK_* event.
	TaskPayload struct {
		ID     uuid.UUID
		Path   string
		Key    string
		Frames int
		Reason error
	}

	// NotificationPayload accompanies NOTIFICATION_* events.
	NotificationPayload struct {
		Processed   int64
		Eligible    int64
		StoreTotal  int64
		Delivered   bool
		DeliveryErr error
	}

	eventHandler struct {
		sync.RWMutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
		dropped      atomic.Uint64
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	TASK_QUEUED  Event = "task:queued"
	TASK_STORED  Event = "task:stored"
	TASK_SKIPPED Event = "task:skipped"
	TASK_FAILED  Event = "task:failed"

	NOTIFICATION_SENT Event = "notification:sent"
)

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send Event messages on
// the channel any time a Dispatch for the provided event occurs.
// This method can be used multiple times for different events on the same channel.
//
// Sends to handler channels never block the dispatching thread: if the channel is FULL when the
// event bus attempts to send the message, the message is dropped for that channel (see Dropped).
// Handler channels should be buffered to absorb bursts, and must be unregistered once their
// reader stops.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.Lock()
	defer handler.Unlock()
	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// UnregisterHandlerChannel removes the channel from every event it was registered against. The
// channel is not closed.
func (handler *eventHandler) UnregisterHandlerChannel(handle HandlerChannel) {
	handler.Lock()
	defer handler.Unlock()
	for event, chans := range handler.chanHandlers {
		kept := make([]HandlerChannel, 0, len(chans))
		for _, ch := range chans {
			if ch != handle {
				kept = append(kept, ch)
			}
		}

		if len(kept) == 0 {
			delete(handler.chanHandlers, event)
		} else {
			handler.chanHandlers[event] = kept
		}
	}
}

// Dropped returns the number of messages discarded because a handler channel was full.
func (handler *eventHandler) Dropped() uint64 {
	return handler.dropped.Load()
}

// RegisterHandlerFunction takes an event type and a handler method which will be stored
// and called with the payload for the event whenever it is dispatched.
// The handle provided should be guaranteed to return quickly, else other threads calling
// Dispatch on this event bus will be blocked.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction accepts an Event and a HandlerMethod which will be stored and
// called inside of a goroutine when the event is handled.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.Lock()
	defer handler.Unlock()
	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch takes an event type and a payload and dispatches the payload to the handlers
// registered for the event type provided.
// Note that this method WILL block if a synchronous handler function is blocking. Channel handlers
// which are full miss the event instead.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := handler.validatePayload(event, payload); err != nil {
		log.Emit(logger.FATAL, "Dispatch for event %v FAILED validation: %v\n", event, err)
		return
	}

	handler.RLock()
	fns := handler.fnHandlers[event]
	chans := handler.chanHandlers[event]
	handler.RUnlock()

	for _, handle := range fns {
		if handle.async {
			go handle.handle(event, payload)
		} else {
			handle.handle(event, payload)
		}
	}

	if len(chans) > 0 {
		payload := HandlerEvent{event, payload}
		for _, handle := range chans {
			select {
			case handle <- payload:
			default:
				handler.dropped.Add(1)
				log.Emit(logger.WARNING, "Handler channel for event %v is full, message dropped\n", event)
			}
		}
	}
}

// validatePayload ensures that the payload provided is valid for the event specified. An error
// will be returned if the payload is not valid, and the event should not be sent to the registered
// handlers in this case.
func (handler *eventHandler) validatePayload(event Event, payload Payload) error {
	var payloadTypeName string
	if t := reflect.TypeOf(payload); t != nil {
		payloadTypeName = t.Name()
	} else {
		payloadTypeName = "Nil"
	}

	switch event {
	case TASK_QUEUED, TASK_STORED, TASK_SKIPPED, TASK_FAILED:
		if _, ok := payload.(TaskPayload); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected TaskPayload payload", payloadTypeName, event)
		}

		return nil
	case NOTIFICATION_SENT:
		if _, ok := payload.(NotificationPayload); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected NotificationPayload payload", payloadTypeName, event)
		}

		return nil
	}

	return errors.New("event type not recognized for validation")
}
