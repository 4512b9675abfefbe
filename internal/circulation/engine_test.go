package circulation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var opening = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func seededStore(books map[int64]int, users ...int64) *memory.Store {
	store := memory.NewStore()
	for id, qty := range books {
		store.AddBook(models.Book{ID: id, Title: fmt.Sprintf("Book %d", id), Author: "Author", Quantity: qty})
	}
	for _, id := range users {
		store.AddUser(models.User{ID: id, Username: fmt.Sprintf("member%d", id), Role: models.RoleUser})
	}
	return store
}

func quantity(t *testing.T, store *memory.Store, bookID int64) int {
	t.Helper()
	b, ok := store.Book(bookID)
	require.True(t, ok)
	return b.Quantity
}

func TestEngine_Borrow(t *testing.T) {
	ctx := context.Background()

	t.Run("successful borrow", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 2}, 7)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig(), circulation.WithClock(newClock(opening).Now))

		result, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, opening.AddDate(0, 0, 14), result.DueDate)
		assert.Equal(t, "Success. Due Date: 2025-03-17", result.Message)
		assert.Empty(t, result.Reason)

		assert.Equal(t, 1, quantity(t, store, 1))
		txs := store.Transactions()
		require.Len(t, txs, 1)
		assert.Equal(t, result.TransactionID, txs[0].ID)
		assert.Equal(t, int64(7), txs[0].UserID)
		assert.Equal(t, int64(1), txs[0].BookID)
		assert.Equal(t, models.StatusBorrowed, txs[0].Status)
		assert.Equal(t, models.Money(0), txs[0].Fine)
		assert.Nil(t, txs[0].ReturnDate)
	})

	t.Run("out of stock leaves no trace", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 0}, 7)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig())

		result, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, circulation.ReasonOutOfStock, result.Reason)
		assert.Equal(t, "Item currently out of stock.", result.Message)
		assert.Equal(t, 0, quantity(t, store, 1))
		assert.Empty(t, store.Transactions())
	})

	t.Run("limit reached leaves no trace", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 1, 2: 1, 3: 1, 4: 1}, 7)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig())

		for _, bookID := range []int64{1, 2, 3} {
			result, err := engine.Borrow(ctx, 7, bookID)
			require.NoError(t, err)
			require.True(t, result.Success)
		}

		result, err := engine.Borrow(ctx, 7, 4)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, circulation.ReasonLimitExceeded, result.Reason)
		assert.Equal(t, "Borrow limit reached (3 books max).", result.Message)
		assert.Equal(t, 1, quantity(t, store, 4))
		assert.Len(t, store.Transactions(), 3)
	})

	t.Run("limit is checked before stock", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 1, 2: 0}, 7)
		cfg := config.DefaultCirculationConfig()
		cfg.BorrowLimit = 1
		engine := circulation.NewEngine(store, cfg)

		_, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)

		result, err := engine.Borrow(ctx, 7, 2)
		require.NoError(t, err)
		assert.Equal(t, circulation.ReasonLimitExceeded, result.Reason)
	})

	t.Run("unknown book and user", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 1}, 7)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig())

		result, err := engine.Borrow(ctx, 7, 99)
		require.NoError(t, err)
		assert.Equal(t, circulation.ReasonBookNotFound, result.Reason)

		result, err = engine.Borrow(ctx, 99, 1)
		require.NoError(t, err)
		assert.Equal(t, circulation.ReasonUserNotFound, result.Reason)
		assert.Equal(t, 1, quantity(t, store, 1))
	})

	t.Run("duplicate loan guard", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 3}, 7)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig())

		_, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)

		result, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, circulation.ReasonAlreadyBorrowed, result.Reason)
		assert.Equal(t, 2, quantity(t, store, 1))
	})

	t.Run("duplicate loans allowed when guard is off", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 3}, 7)
		cfg := config.DefaultCirculationConfig()
		cfg.PreventDuplicateLoans = false
		clk := newClock(opening)
		engine := circulation.NewEngine(store, cfg, circulation.WithClock(clk.Now))

		first, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)
		clk.Advance(24 * time.Hour)
		second, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)
		assert.True(t, second.Success)
		assert.Equal(t, 1, quantity(t, store, 1))

		// the earliest-due copy is settled first
		returned, err := engine.Return(ctx, 7, 1)
		require.NoError(t, err)
		assert.Equal(t, first.TransactionID, returned.TransactionID)
	})
}

func TestEngine_Return(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip restores stock without fine", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 2}, 7)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig(), circulation.WithClock(newClock(opening).Now))

		_, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)

		result, err := engine.Return(ctx, 7, 1)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, models.Money(0), result.Fine)
		assert.False(t, result.Late)
		assert.Equal(t, "Returned successfully.", result.Message)
		assert.Equal(t, 2, quantity(t, store, 1))

		txs := store.Transactions()
		require.Len(t, txs, 1)
		assert.Equal(t, models.StatusReturned, txs[0].Status)
		require.NotNil(t, txs[0].ReturnDate)
		assert.Equal(t, opening, *txs[0].ReturnDate)
	})

	t.Run("late return is fined per started day", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 1}, 7)
		clk := newClock(opening)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig(), circulation.WithClock(clk.Now))

		_, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)

		clk.Advance(16 * 24 * time.Hour)
		result, err := engine.Return(ctx, 7, 1)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, models.Money(1000), result.Fine)
		assert.Equal(t, int64(2), result.OverdueDays)
		assert.True(t, result.Late)
		assert.Equal(t, "Returned LATE. Fine: $10.00.", result.Message)
		assert.Equal(t, models.Money(1000), store.Transactions()[0].Fine)
		assert.Equal(t, 1, quantity(t, store, 1))
	})

	t.Run("due date boundary", func(t *testing.T) {
		cases := []struct {
			name  string
			after time.Duration
			fine  models.Money
		}{
			{"exactly at due date", 14 * 24 * time.Hour, 0},
			{"one second late", 14*24*time.Hour + time.Second, 500},
			{"one day late", 15 * 24 * time.Hour, 500},
			{"a day and a second late", 15*24*time.Hour + time.Second, 1000},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				store := seededStore(map[int64]int{1: 1}, 7)
				clk := newClock(opening)
				engine := circulation.NewEngine(store, config.DefaultCirculationConfig(), circulation.WithClock(clk.Now))

				_, err := engine.Borrow(ctx, 7, 1)
				require.NoError(t, err)

				clk.Advance(tc.after)
				result, err := engine.Return(ctx, 7, 1)
				require.NoError(t, err)
				assert.Equal(t, tc.fine, result.Fine)
				assert.Equal(t, tc.fine > 0, result.Late)
			})
		}
	})

	t.Run("no active loan mutates nothing", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 1, 2: 1}, 7, 8)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig())

		_, err := engine.Borrow(ctx, 8, 1)
		require.NoError(t, err)
		before := store.Transactions()

		for _, pair := range [][2]int64{{7, 1}, {7, 2}, {8, 2}, {99, 1}} {
			result, err := engine.Return(ctx, pair[0], pair[1])
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, circulation.ReasonNoActiveLoan, result.Reason)
			assert.Equal(t, "No active transaction found.", result.Message)
		}

		assert.Equal(t, before, store.Transactions())
		assert.Equal(t, 0, quantity(t, store, 1))
		assert.Equal(t, 1, quantity(t, store, 2))
	})

	t.Run("second return of the same loan is refused", func(t *testing.T) {
		store := seededStore(map[int64]int{1: 1}, 7)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig())

		_, err := engine.Borrow(ctx, 7, 1)
		require.NoError(t, err)
		_, err = engine.Return(ctx, 7, 1)
		require.NoError(t, err)

		result, err := engine.Return(ctx, 7, 1)
		require.NoError(t, err)
		assert.Equal(t, circulation.ReasonNoActiveLoan, result.Reason)
		assert.Equal(t, 1, quantity(t, store, 1))
	})
}

func TestEngine_StoreFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	t.Run("failed insert keeps the copy on the shelf", func(t *testing.T) {
		base := seededStore(map[int64]int{1: 1}, 7)
		auditor := &MockAuditor{}
		auditor.On("LogError", "borrow", int64(7), int64(1), errDiskFull).Return()
		engine := circulation.NewEngine(&failingStore{Store: base, failOn: "insert"}, config.DefaultCirculationConfig(),
			circulation.WithAuditor(auditor))

		result, err := engine.Borrow(ctx, 7, 1)
		assert.Nil(t, result)
		require.Error(t, err)
		assert.True(t, errors.Is(err, circulation.ErrStoreFailure))
		assert.True(t, errors.Is(err, errDiskFull))

		var failure *circulation.StoreFailure
		require.True(t, errors.As(err, &failure))
		assert.Equal(t, "borrow", failure.Op)

		assert.Equal(t, 1, quantity(t, base, 1))
		assert.Empty(t, base.Transactions())
		auditor.AssertExpectations(t)
	})

	t.Run("failed restock keeps the loan open", func(t *testing.T) {
		base := seededStore(map[int64]int{1: 1}, 7)
		_, err := circulation.NewEngine(base, config.DefaultCirculationConfig()).Borrow(ctx, 7, 1)
		require.NoError(t, err)

		engine := circulation.NewEngine(&failingStore{Store: base, failOn: "restock"}, config.DefaultCirculationConfig())
		result, err := engine.Return(ctx, 7, 1)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, circulation.ErrStoreFailure))

		assert.Equal(t, 0, quantity(t, base, 1))
		txs := base.Transactions()
		require.Len(t, txs, 1)
		assert.Equal(t, models.StatusBorrowed, txs[0].Status)
		assert.Nil(t, txs[0].ReturnDate)
	})
}

func TestEngine_AuditAndEvents(t *testing.T) {
	ctx := context.Background()
	store := seededStore(map[int64]int{1: 1}, 7)
	clk := newClock(opening)
	due := opening.AddDate(0, 0, 14)

	auditor := &MockAuditor{}
	publisher := &MockPublisher{}
	engine := circulation.NewEngine(store, config.DefaultCirculationConfig(),
		circulation.WithClock(clk.Now), circulation.WithAuditor(auditor), circulation.WithPublisher(publisher))

	auditor.On("LogBorrow", int64(7), int64(1), int64(1), due).Return()
	auditor.On("LogRejection", "borrow", int64(7), int64(1), circulation.ReasonOutOfStock).Return()
	auditor.On("LogReturn", int64(7), int64(1), int64(1), models.Money(500)).Return()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e circulation.Event) bool {
		return e.Type == circulation.EventBorrowed && e.TransactionID == 1 && e.DueDate.Equal(due)
	})).Return(nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e circulation.Event) bool {
		return e.Type == circulation.EventReturned && e.Fine == 500
	})).Return(errors.New("redis down")).Once()

	_, err := engine.Borrow(ctx, 7, 1)
	require.NoError(t, err)
	_, err = engine.Borrow(ctx, 7, 1)
	require.NoError(t, err)

	clk.Advance(14*24*time.Hour + time.Hour)
	result, err := engine.Return(ctx, 7, 1)
	require.NoError(t, err, "a failed publish must not fail a committed return")
	assert.True(t, result.Success)

	auditor.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestEngine_ActiveLoansAndDueSoon(t *testing.T) {
	ctx := context.Background()
	store := seededStore(map[int64]int{1: 1, 2: 1, 3: 1, 4: 1}, 7, 8)
	clk := newClock(opening)
	engine := circulation.NewEngine(store, config.DefaultCirculationConfig(), circulation.WithClock(clk.Now))

	var ids []int64
	for _, bookID := range []int64{1, 2, 3} {
		result, err := engine.Borrow(ctx, 7, bookID)
		require.NoError(t, err)
		ids = append(ids, result.TransactionID)
	}
	_, err := engine.Borrow(ctx, 8, 4)
	require.NoError(t, err)

	// book 1 overdue, book 2 due in two days, book 3 due in ten days
	require.NoError(t, store.SetDueDate(ids[0], opening.Add(-48*time.Hour)))
	require.NoError(t, store.SetDueDate(ids[1], opening.Add(48*time.Hour)))
	require.NoError(t, store.SetDueDate(ids[2], opening.Add(240*time.Hour)))

	count, err := engine.DueSoonCount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	loans, err := engine.ActiveLoans(ctx, 7)
	require.NoError(t, err)
	require.Len(t, loans, 3)
	assert.Equal(t, int64(1), loans[0].BookID)
	assert.Equal(t, "Book 1", loans[0].Title)
	assert.Equal(t, int64(3), loans[2].BookID)

	_, err = engine.Return(ctx, 7, 1)
	require.NoError(t, err)
	count, err = engine.DueSoonCount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = engine.DueSoonCount(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEngine_Concurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("last copies are never oversold", func(t *testing.T) {
		const members = 40
		users := make([]int64, members)
		for i := range users {
			users[i] = int64(i + 1)
		}
		store := seededStore(map[int64]int{1: 5}, users...)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig())

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for _, userID := range users {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				result, err := engine.Borrow(ctx, userID, 1)
				assert.NoError(t, err)
				if result != nil && result.Success {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}(userID)
		}
		wg.Wait()

		assert.Equal(t, 5, successes)
		assert.Equal(t, 0, quantity(t, store, 1))
		assert.Len(t, store.Transactions(), 5)
	})

	t.Run("one member cannot exceed the limit", func(t *testing.T) {
		books := map[int64]int{}
		for id := int64(1); id <= 12; id++ {
			books[id] = 1
		}
		store := seededStore(books, 7)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig())

		var wg sync.WaitGroup
		for bookID := range books {
			wg.Add(1)
			go func(bookID int64) {
				defer wg.Done()
				_, err := engine.Borrow(ctx, 7, bookID)
				assert.NoError(t, err)
			}(bookID)
		}
		wg.Wait()

		active := 0
		for _, tx := range store.Transactions() {
			if tx.Active() {
				active++
			}
		}
		assert.Equal(t, 3, active)
	})

	t.Run("mixed borrows and returns keep stock consistent", func(t *testing.T) {
		users := []int64{1, 2, 3, 4, 5, 6}
		store := seededStore(map[int64]int{1: 2}, users...)
		engine := circulation.NewEngine(store, config.DefaultCirculationConfig())

		var wg sync.WaitGroup
		for _, userID := range users {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					_, err := engine.Borrow(ctx, userID, 1)
					assert.NoError(t, err)
					_, err = engine.Return(ctx, userID, 1)
					assert.NoError(t, err)
				}
			}(userID)
		}
		wg.Wait()

		assert.Equal(t, 2, quantity(t, store, 1))
		for _, tx := range store.Transactions() {
			assert.Equal(t, models.StatusReturned, tx.Status)
		}
	})
}
