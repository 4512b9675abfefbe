package circulation

import (
	"context"
	"time"

	"github.com/libraryhub/backend/internal/models"
)

// EventType names a committed circulation change
type EventType string

const (
	EventBorrowed EventType = "BOOK_BORROWED"
	EventReturned EventType = "BOOK_RETURNED"
)

// Event describes a committed borrow or return
type Event struct {
	Type          EventType
	UserID        int64
	BookID        int64
	TransactionID int64
	DueDate       time.Time
	Fine          models.Money
	OccurredAt    time.Time
}

// Publisher is notified after a borrow or return has been committed
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Auditor records the outcome of every circulation request
type Auditor interface {
	LogBorrow(userID, bookID, transactionID int64, dueDate time.Time)
	LogReturn(userID, bookID, transactionID int64, fine models.Money)
	LogRejection(op string, userID, bookID int64, reason Reason)
	LogError(op string, userID, bookID int64, err error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopAuditor struct{}

func (nopAuditor) LogBorrow(int64, int64, int64, time.Time) {}
func (nopAuditor) LogReturn(int64, int64, int64, models.Money) {}
func (nopAuditor) LogRejection(string, int64, int64, Reason) {}
func (nopAuditor) LogError(string, int64, int64, error) {}
