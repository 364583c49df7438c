// Package feed streams task and notification events to websocket clients,
// allowing the progress of the service to be watched live.
package feed

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/ankit-pn/video-ocr-service/internal/event"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var log = logger.Get("Feed")

// eventBufferSize absorbs the burst of events produced by the initial scan.
const eventBufferSize = 1024

// Hub is responsible for upgrading incoming HTTP requests to websockets,
// tracking the connected clients, and broadcasting events from the bus to
// every one of them. The hub never writes to a socket itself: each client
// owns a queue drained by its own writer, and a client which falls too far
// behind is disconnected.
type Hub struct {
	eventBus           event.EventHandler
	upgrader           *websocket.Upgrader
	clients            map[uuid.UUID]*client
	registerCh         chan *client
	deregisterCh       chan *client
	doneCh             chan struct{}
	connectionCallback func() map[string]any
	connected          atomic.Int32
}

func New(eventBus event.EventHandler) *Hub {
	return &Hub{
		eventBus: eventBus,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:      make(map[uuid.UUID]*client),
		registerCh:   make(chan *client),
		deregisterCh: make(chan *client),
		doneCh:       make(chan struct{}),
	}
}

// WithConnectionCallback sets a callback which is executed each time a new
// client connects. The map returned forms the body of the welcome message, so
// the client has the current state without waiting for the next event.
func (hub *Hub) WithConnectionCallback(callback func() map[string]any) {
	hub.connectionCallback = callback
}

// Run subscribes to the event bus and broadcasts every task and notification
// event to the connected clients until the context is cancelled, at which
// point every client is disconnected and the subscription is removed.
func (hub *Hub) Run(ctx context.Context) error {
	events := make(event.HandlerChannel, eventBufferSize)
	hub.eventBus.RegisterHandlerChannel(events,
		event.TASK_QUEUED, event.TASK_STORED, event.TASK_SKIPPED,
		event.TASK_FAILED, event.NOTIFICATION_SENT)
	defer hub.eventBus.UnregisterHandlerChannel(events)

	defer hub.close()
	for {
		select {
		case ev := <-events:
			hub.broadcast(MessageFromEvent(ev.Event, ev.Payload))
		case client := <-hub.registerCh:
			hub.clients[client.id] = client
			hub.connected.Store(int32(len(hub.clients)))
			log.Emit(logger.NEW, "Registered new client {%v}\n", client.id)
		case client := <-hub.deregisterCh:
			hub.remove(client)
		case <-ctx.Done():
			log.Emit(logger.STOP, "Shutting down feed! Closing all clients.\n")
			return nil
		}
	}
}

// UpgradeToSocket upgrades the request to a websocket and registers the
// new client with the hub. The call returns once the client disconnects.
func (hub *Hub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-hub.doneCh:
		http.Error(w, "feed is closed", http.StatusServiceUnavailable)
		return
	default:
	}

	sock, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Emit(logger.ERROR, "Failed to upgrade incoming HTTP request to a websocket: %v\n", err)
		return
	}

	client := newClient(sock)
	defer client.Close()

	body := make(map[string]any)
	if hub.connectionCallback != nil {
		body = hub.connectionCallback()
	}
	body["client"] = client.id

	// Queued before registering so that it is always the first message the
	// client receives.
	client.Enqueue(&Message{Title: "CONNECTION_ESTABLISHED", Body: body, Type: Welcome})
	go client.writeLoop()

	select {
	case hub.registerCh <- client:
	case <-hub.doneCh:
		return
	}

	defer func() {
		select {
		case hub.deregisterCh <- client:
		case <-hub.doneCh:
		}
	}()

	if err := client.Wait(); err != nil {
		log.Emit(logger.DEBUG, "Client {%v} closed: %v\n", client.id, err)
	}
}

// Connected returns the number of clients currently registered.
func (hub *Hub) Connected() int { return int(hub.connected.Load()) }

func (hub *Hub) broadcast(message *Message) {
	for id, client := range hub.clients {
		if !client.Enqueue(message) {
			log.Emit(logger.WARNING, "Client {%v} is not keeping up with the feed, disconnecting\n", id)
			hub.remove(client)
		}
	}
}

// remove deregisters and closes the client. Closing the socket also ends
// the client's read loop, returning its UpgradeToSocket call.
func (hub *Hub) remove(client *client) {
	if _, ok := hub.clients[client.id]; !ok {
		return
	}

	delete(hub.clients, client.id)
	hub.connected.Store(int32(len(hub.clients)))
	client.Close()
	log.Emit(logger.REMOVE, "Deregistered client {%v}\n", client.id)
}

func (hub *Hub) close() {
	close(hub.doneCh)
	for _, client := range hub.clients {
		client.Close()
	}

	hub.clients = nil
	hub.connected.Store(0)
	log.Emit(logger.STOP, "Feed is now closed!\n")
}
