package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var due = time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	s := NewStore()
	s.AddUser(models.User{ID: 1, Username: "alice", Role: models.RoleUser})
	s.AddBook(models.Book{ID: 10, Title: "Dune", Quantity: 2})
	s.AddBook(models.Book{ID: 11, Title: "Emma", Quantity: 1})
	return s
}

func TestAtomically_CommitsOnSuccess(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	loan := &models.Transaction{UserID: 1, BookID: 10, DueDate: due, Status: models.StatusBorrowed}
	err := s.Atomically(ctx, func(tx circulation.Tx) error {
		require.NoError(t, tx.LockMember(ctx, 1))
		require.NoError(t, tx.AdjustQuantity(ctx, 10, -1))
		return tx.Insert(ctx, loan)
	})
	require.NoError(t, err)

	book, _ := s.Book(10)
	assert.Equal(t, 1, book.Quantity)
	assert.Equal(t, int64(1), loan.ID)
	require.Len(t, s.Transactions(), 1)
}

func TestAtomically_DiscardsOnError(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomically(ctx, func(tx circulation.Tx) error {
		require.NoError(t, tx.AdjustQuantity(ctx, 10, -1))
		require.NoError(t, tx.Insert(ctx, &models.Transaction{UserID: 1, BookID: 10, Status: models.StatusBorrowed}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	book, _ := s.Book(10)
	assert.Equal(t, 2, book.Quantity)
	assert.Empty(t, s.Transactions())
}

func TestAtomically_CancelledContext(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Atomically(ctx, func(circulation.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestUnit_Errors(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	s.Atomically(ctx, func(tx circulation.Tx) error {
		assert.ErrorIs(t, tx.LockMember(ctx, 99), circulation.ErrUserNotFound)

		_, err := tx.GetQuantity(ctx, 99)
		assert.ErrorIs(t, err, circulation.ErrBookNotFound)

		assert.ErrorIs(t, tx.AdjustQuantity(ctx, 11, -2), circulation.ErrInsufficientStock)

		_, err = tx.FindActive(ctx, 1, 10)
		assert.ErrorIs(t, err, circulation.ErrNoActiveLoan)

		assert.Error(t, tx.MarkReturned(ctx, 42, due, 0))
		return nil
	})
}

func TestFindActive_EarliestDue(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	err := s.Atomically(ctx, func(tx circulation.Tx) error {
		for _, d := range []time.Time{due.Add(48 * time.Hour), due, due.Add(24 * time.Hour)} {
			if err := tx.Insert(ctx, &models.Transaction{UserID: 1, BookID: 10, DueDate: d, Status: models.StatusBorrowed}); err != nil {
				return err
			}
		}

		found, err := tx.FindActive(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(2), found.ID)

		require.NoError(t, tx.MarkReturned(ctx, found.ID, due, 0))
		found, err = tx.FindActive(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(3), found.ID)

		count, err := tx.CountActive(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		return nil
	})
	require.NoError(t, err)
}

func TestReads(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Atomically(ctx, func(tx circulation.Tx) error {
		tx.Insert(ctx, &models.Transaction{UserID: 1, BookID: 11, DueDate: due.Add(24 * time.Hour), Status: models.StatusBorrowed})
		tx.Insert(ctx, &models.Transaction{UserID: 1, BookID: 10, DueDate: due, Status: models.StatusBorrowed})
		return nil
	}))

	loans, err := s.ActiveLoans(ctx, 1)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "Dune", loans[0].Title)
	assert.Equal(t, "Emma", loans[1].Title)

	count, err := s.CountDueBefore(ctx, 1, due.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.CountDueBefore(ctx, 1, due)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, s.SetDueDate(2, due.Add(-time.Hour)))
	assert.Error(t, s.SetDueDate(99, due))
}
