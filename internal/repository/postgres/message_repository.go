package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pairchat/internal/domain"
	"pairchat/internal/observability"
)

// MessageRepository implements domain.MessageRepository for PostgreSQL.
// Appends to different rooms run on independent pooled connections and never
// block each other; serializing appends within one room is the dispatcher's
// job, not the store's.
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts a message row. Rows are append-only: nothing in this
// repository updates or deletes them. Storage I/O failures are reported as
// domain.ErrStoreUnavailable so the dispatcher can abort before publishing.
func (r *MessageRepository) Append(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (room_key, sender, content, content_type, image_width, image_height, video_length, video_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, sent_at
	`
	start := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		message.RoomKey,
		message.Sender,
		message.Content,
		string(message.ContentType),
		message.ImageWidth,
		message.ImageHeight,
		message.VideoLength,
		message.VideoSource,
	).Scan(&message.ID, &message.SentAt)
	observability.DBQueryDuration.WithLabelValues("append", "messages").Observe(time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("%w: append message: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// History retrieves messages for a room ordered by (sent_at, id) ascending;
// id is a BIGSERIAL, so insertion order holds even when two rows share a
// timestamp. The page cursor restarts the scan below a previously seen
// (sent_at, id) pair, newest page first; each returned page is itself in
// ascending order. A cursor without BeforeID falls back to the timestamp
// alone.
func (r *MessageRepository) History(ctx context.Context, roomKey string, page domain.HistoryPage) ([]*domain.Message, error) {
	query := `
		SELECT id, room_key, sender, content, content_type, image_width, image_height, video_length, video_source, sent_at
		FROM messages
		WHERE room_key = $1
		  AND ($2::timestamp IS NULL
		       OR sent_at < $2
		       OR ($3::bigint IS NOT NULL AND sent_at = $2 AND id < $3))
		ORDER BY sent_at DESC, id DESC
		LIMIT $4
	`

	var before sql.NullTime
	if !page.Before.IsZero() {
		before = sql.NullTime{Time: page.Before, Valid: true}
	}
	var beforeID sql.NullInt64
	if page.BeforeID > 0 {
		beforeID = sql.NullInt64{Int64: page.BeforeID, Valid: true}
	}

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, roomKey, before, beforeID, page.Limit)
	observability.DBQueryDuration.WithLabelValues("history", "messages").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: query history: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, page.Limit)
	for rows.Next() {
		msg := &domain.Message{}
		var contentType string
		err := rows.Scan(
			&msg.ID,
			&msg.RoomKey,
			&msg.Sender,
			&msg.Content,
			&contentType,
			&msg.ImageWidth,
			&msg.ImageHeight,
			&msg.VideoLength,
			&msg.VideoSource,
			&msg.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ContentType = domain.ContentType(contentType)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate history: %v", domain.ErrStoreUnavailable, err)
	}

	// Reverse the slice to get oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
