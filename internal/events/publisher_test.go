package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() circulation.Event {
	return circulation.Event{
		Type:          circulation.EventReturned,
		UserID:        7,
		BookID:        1,
		TransactionID: 42,
		DueDate:       time.Date(2025, time.March, 17, 10, 0, 0, 0, time.UTC),
		Fine:          1000,
		OccurredAt:    time.Date(2025, time.March, 19, 10, 0, 0, 0, time.UTC),
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes the encoded event", func(t *testing.T) {
		redisClient, mock := redismock.NewClientMock()
		publisher := NewRedisPublisher(redisClient)
		publisher.newID = func() string { return "evt-1" }

		payload, err := Encode("evt-1", sampleEvent())
		require.NoError(t, err)
		mock.ExpectRPush(QueueKey, payload).SetVal(1)

		assert.NoError(t, publisher.Publish(ctx, sampleEvent()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis errors are returned", func(t *testing.T) {
		redisClient, mock := redismock.NewClientMock()
		publisher := NewRedisPublisher(redisClient)
		publisher.newID = func() string { return "evt-2" }

		payload, err := Encode("evt-2", sampleEvent())
		require.NoError(t, err)
		mock.ExpectRPush(QueueKey, payload).SetErr(errors.New("READONLY"))

		assert.Error(t, publisher.Publish(ctx, sampleEvent()))
	})

	t.Run("no redis is a no-op", func(t *testing.T) {
		assert.NoError(t, NewRedisPublisher(nil).Publish(ctx, sampleEvent()))
	})

	t.Run("ids are unique", func(t *testing.T) {
		publisher := NewRedisPublisher(nil)
		assert.NotEqual(t, publisher.newID(), publisher.newID())
	})
}

func TestEncodeDecode(t *testing.T) {
	data, err := Encode("evt-1", sampleEvent())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"fine":10.00`)
	assert.Contains(t, string(data), `"type":"BOOK_RETURNED"`)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", msg.ID)
	assert.Equal(t, models.Money(1000), msg.Fine)
	assert.Equal(t, int64(42), msg.TransactionID)
	assert.True(t, msg.DueDate.Equal(sampleEvent().DueDate))

	_, err = Decode([]byte("not json"))
	assert.Error(t, err)
}
