// Package events queues committed circulation changes on a Redis list for
// downstream consumers (reminder mailers, reporting).
package events

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/models"
)

// QueueKey is the Redis list events are appended to
const QueueKey = "circulation_events"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is the wire form of a circulation event
type Message struct {
	ID            string                `json:"id"`
	Type          circulation.EventType `json:"type"`
	UserID        int64                 `json:"userId"`
	BookID        int64                 `json:"bookId"`
	TransactionID int64                 `json:"transactionId"`
	DueDate       time.Time             `json:"dueDate"`
	Fine          models.Money          `json:"fine"`
	OccurredAt    time.Time             `json:"occurredAt"`
}

type RedisPublisher struct {
	redis *redis.Client
	newID func() string
}

// NewRedisPublisher returns a publisher that drops events when rdb is nil
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{
		redis: rdb,
		newID: func() string { return uuid.New().String() },
	}
}

var _ circulation.Publisher = (*RedisPublisher)(nil)

func (p *RedisPublisher) Publish(ctx context.Context, event circulation.Event) error {
	if p.redis == nil {
		return nil
	}

	data, err := Encode(p.newID(), event)
	if err != nil {
		return err
	}
	return p.redis.RPush(ctx, QueueKey, data).Err()
}

// Encode renders event as a queue message with the given id
func Encode(id string, event circulation.Event) ([]byte, error) {
	return json.Marshal(Message{
		ID:            id,
		Type:          event.Type,
		UserID:        event.UserID,
		BookID:        event.BookID,
		TransactionID: event.TransactionID,
		DueDate:       event.DueDate,
		Fine:          event.Fine,
		OccurredAt:    event.OccurredAt,
	})
}

// Decode parses a queue message
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
