package circulation_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/store/memory"
	"github.com/stretchr/testify/mock"
)

type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) LogBorrow(userID, bookID, transactionID int64, dueDate time.Time) {
	m.Called(userID, bookID, transactionID, dueDate)
}

func (m *MockAuditor) LogReturn(userID, bookID, transactionID int64, fine models.Money) {
	m.Called(userID, bookID, transactionID, fine)
}

func (m *MockAuditor) LogRejection(op string, userID, bookID int64, reason circulation.Reason) {
	m.Called(op, userID, bookID, reason)
}

func (m *MockAuditor) LogError(op string, userID, bookID int64, err error) {
	m.Called(op, userID, bookID, err)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event circulation.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// clock is a settable time source shared by the engine under test
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock {
	return &clock{now: t}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errDiskFull = errors.New("disk full")

// failingStore injects a fault into one Tx method after the preceding writes
type failingStore struct {
	*memory.Store
	failOn string
}

func (f *failingStore) Atomically(ctx context.Context, fn func(tx circulation.Tx) error) error {
	return f.Store.Atomically(ctx, func(tx circulation.Tx) error {
		return fn(&failingTx{Tx: tx, failOn: f.failOn})
	})
}

type failingTx struct {
	circulation.Tx
	failOn string
}

func (f *failingTx) Insert(ctx context.Context, t *models.Transaction) error {
	if f.failOn == "insert" {
		return errDiskFull
	}
	return f.Tx.Insert(ctx, t)
}

func (f *failingTx) AdjustQuantity(ctx context.Context, bookID int64, delta int) error {
	if f.failOn == "restock" && delta > 0 {
		return errDiskFull
	}
	return f.Tx.AdjustQuantity(ctx, bookID, delta)
}
