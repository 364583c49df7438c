package feed

import "github.com/ankit-pn/video-ocr-service/internal/event"

type messageType int

const (
	Update messageType = iota
	Welcome
)

// Message is a single frame pushed to feed clients. Title is the name of
// the event which caused the message (or CONNECTION_ESTABLISHED for the
// welcome message), and Body carries the event's details.
type Message struct {
	Title string         `json:"title"`
	Body  map[string]any `json:"body"`
	Type  messageType    `json:"type"`
}

// MessageFromEvent converts an event from the bus in to a feed message. Errors
// held by the payload are flattened to strings so they survive marshalling.
func MessageFromEvent(ev event.Event, payload event.Payload) *Message {
	body := make(map[string]any)
	switch p := payload.(type) {
	case event.TaskPayload:
		body["id"] = p.ID
		body["path"] = p.Path
		body["key"] = p.Key
		body["frames"] = p.Frames
		if p.Reason != nil {
			body["reason"] = p.Reason.Error()
		}
	case event.NotificationPayload:
		body["processed_videos_count"] = p.Processed
		body["total_videos_count"] = p.Eligible
		body["total_processed_videos"] = p.StoreTotal
		body["delivered"] = p.Delivered
		if p.DeliveryErr != nil {
			body["error"] = p.DeliveryErr.Error()
		}
	}

	return &Message{Title: string(ev), Body: body, Type: Update}
}
