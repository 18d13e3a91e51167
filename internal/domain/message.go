package domain

import (
	"context"
	"time"
)

// ContentType classifies what a message body carries.
type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeImage ContentType = "IMAGE"
	ContentTypeVideo ContentType = "VIDEO"
	ContentTypeLink  ContentType = "LINK"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeVideo, ContentTypeLink:
		return true
	}
	return false
}

// Message is a single direct message inside a pairwise room. Messages are
// append-only: once persisted they are never mutated or deleted.
type Message struct {
	ID          string      `json:"id"`
	RoomKey     string      `json:"room_key"`
	Sender      string      `json:"sender"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	ImageWidth  *int        `json:"image_width,omitempty"`
	ImageHeight *int        `json:"image_height,omitempty"`
	VideoLength *int        `json:"video_length,omitempty"`
	VideoSource *string     `json:"video_source,omitempty"`
	SentAt      time.Time   `json:"sent_at"`
}

// HistoryPage bounds a history query. Before and BeforeID together form an
// exclusive keyset cursor: the SentAt and ID of the oldest message already
// held by the caller. BeforeID breaks ties between messages stored with the
// same timestamp; without it the cursor excludes the whole timestamp. The
// zero value means "from the beginning of time until now".
type HistoryPage struct {
	Before   time.Time
	BeforeID int64
	Limit    int
}

// MessageRepository defines the interface for message persistence.
type MessageRepository interface {
	// Append durably stores the message under its room key and fills in
	// ID and SentAt. I/O failures surface as ErrStoreUnavailable.
	Append(ctx context.Context, message *Message) error
	// History returns messages for a room ordered by SentAt ascending.
	History(ctx context.Context, roomKey string, page HistoryPage) ([]*Message, error)
}
