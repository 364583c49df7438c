package feed

import (
	"sync"
	"time"

	"github.com/ankit-pn/video-ocr-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeTimeout bounds a single write to a client's socket.
	writeTimeout = 5 * time.Second

	// sendQueueSize is the number of messages a client may fall behind by
	// before it is disconnected.
	sendQueueSize = 64
)

type client struct {
	id     uuid.UUID
	socket *websocket.Conn
	send   chan *Message

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(socket *websocket.Conn) *client {
	return &client{
		id:     uuid.New(),
		socket: socket,
		send:   make(chan *Message, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// Enqueue queues the message for delivery without blocking. False is
// returned if the client's queue is full or the client has been closed.
func (client *client) Enqueue(message *Message) bool {
	select {
	case <-client.closed:
		return false
	default:
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// writeLoop delivers queued messages to the socket until the client is
// closed or a write fails. It is the only goroutine which writes to the
// socket.
func (client *client) writeLoop() {
	defer client.Close()
	for {
		select {
		case message := <-client.send:
			if err := client.write(message); err != nil {
				log.Emit(logger.DEBUG, "Write to client {%v} failed: %v\n", client.id, err)
				return
			}
		case <-client.closed:
			return
		}
	}
}

func (client *client) write(message *Message) error {
	if err := client.socket.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	return client.socket.WriteJSON(message)
}

// Wait runs a read-loop on the client's connection, discarding anything
// received, until the connection fails or is closed by the peer. The feed
// is one-way, but reading is required for control frames to be handled.
func (client *client) Wait() error {
	for {
		if _, _, err := client.socket.NextReader(); err != nil {
			return err
		}
	}
}

func (client *client) Close() {
	client.closeOnce.Do(func() {
		close(client.closed)
		client.socket.Close()
	})
}
