package websocket

import (
	"encoding/json"
	"time"

	"pairchat/internal/domain"
)

// InboundMessage is the frame a connected user sends to the server. The
// sender identity is implicit: it comes from the session that authenticated
// the socket, never from the frame itself.
type InboundMessage struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// OutboundMessage is the frame broadcast to every member of a room after a
// message has been persisted.
type OutboundMessage struct {
	Type        string     `json:"type"`
	Sender      string     `json:"sender"`
	Recipient   string     `json:"recipient"`
	Message     string     `json:"message"`
	ContentType string     `json:"content_type"`
	ImageWidth  *int       `json:"image_width,omitempty"`
	ImageHeight *int       `json:"image_height,omitempty"`
	VideoLength *int       `json:"video_length,omitempty"`
	VideoSource *string    `json:"video_source,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// EncodeOutbound builds the broadcast frame for a persisted message.
func EncodeOutbound(msg *domain.Message, recipient string) ([]byte, error) {
	sentAt := msg.SentAt
	frame := OutboundMessage{
		Type:        "chat_message",
		Sender:      msg.Sender,
		Recipient:   recipient,
		Message:     msg.Content,
		ContentType: string(msg.ContentType),
		ImageWidth:  msg.ImageWidth,
		ImageHeight: msg.ImageHeight,
		VideoLength: msg.VideoLength,
		VideoSource: msg.VideoSource,
		SentAt:      &sentAt,
	}
	return json.Marshal(frame)
}

// EncodeError builds an error frame delivered only to the failing sender.
func EncodeError(message string) []byte {
	data, err := json.Marshal(OutboundMessage{
		Type:  "error",
		Error: message,
	})
	if err != nil {
		return []byte(`{"type":"error"}`)
	}
	return data
}
