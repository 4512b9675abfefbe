// Package postgres backs the circulation engines with PostgreSQL. Every unit
// is one database transaction; the member row and the book row are locked
// with SELECT ... FOR UPDATE, always in that order.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/models"
)

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Atomically(ctx context.Context, fn func(tx circulation.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&unit{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) ActiveLoans(ctx context.Context, userID int64) ([]models.ActiveLoan, error) {
	loans := []models.ActiveLoan{}
	err := s.db.SelectContext(ctx, &loans, `
		SELECT t.book_id, b.title, t.due_date
		FROM transactions t
		JOIN books b ON b.id = t.book_id
		WHERE t.user_id = $1 AND t.status = 'borrowed'
		ORDER BY t.due_date ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select active loans: %w", err)
	}
	return loans, nil
}

func (s *Store) CountDueBefore(ctx context.Context, userID int64, cutoff time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = $1 AND status = 'borrowed' AND due_date < $2`, userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("count loans due before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return count, nil
}

// OverdueLoans lists every borrowed book whose due date is before asOf,
// oldest first
func (s *Store) OverdueLoans(ctx context.Context, asOf time.Time) ([]models.OverdueLoan, error) {
	loans := []models.OverdueLoan{}
	err := s.db.SelectContext(ctx, &loans, `
		SELECT t.id, t.user_id, u.username, t.book_id, b.title, t.due_date
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		JOIN books b ON b.id = t.book_id
		WHERE t.status = 'borrowed' AND t.due_date < $1
		ORDER BY t.due_date ASC`, asOf)
	if err != nil {
		return nil, fmt.Errorf("select overdue loans: %w", err)
	}
	return loans, nil
}

type unit struct {
	tx *sqlx.Tx
}

func (u *unit) LockMember(ctx context.Context, userID int64) error {
	var id int64
	err := u.tx.GetContext(ctx, &id, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return circulation.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user %d: %w", userID, err)
	}
	return nil
}

func (u *unit) GetQuantity(ctx context.Context, bookID int64) (int, error) {
	var quantity int
	err := u.tx.GetContext(ctx, &quantity, `SELECT quantity FROM books WHERE id = $1 FOR UPDATE`, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, circulation.ErrBookNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock book %d: %w", bookID, err)
	}
	return quantity, nil
}

func (u *unit) AdjustQuantity(ctx context.Context, bookID int64, delta int) error {
	result, err := u.tx.ExecContext(ctx, `
		UPDATE books SET quantity = quantity + $1, updated_at = NOW()
		WHERE id = $2 AND quantity + $1 >= 0`, delta, bookID)
	if err != nil {
		return fmt.Errorf("adjust quantity of book %d: %w", bookID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if delta < 0 {
			return circulation.ErrInsufficientStock
		}
		return circulation.ErrBookNotFound
	}
	return nil
}

func (u *unit) CountActive(ctx context.Context, userID int64) (int, error) {
	var count int
	err := u.tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND status = 'borrowed'`, userID)
	if err != nil {
		return 0, fmt.Errorf("count active loans of user %d: %w", userID, err)
	}
	return count, nil
}

func (u *unit) FindActive(ctx context.Context, userID, bookID int64) (*models.Transaction, error) {
	var t models.Transaction
	err := u.tx.GetContext(ctx, &t, `
		SELECT id, user_id, book_id, borrowed_at, due_date, return_date, status, fine
		FROM transactions
		WHERE user_id = $1 AND book_id = $2 AND status = 'borrowed'
		ORDER BY due_date ASC
		LIMIT 1
		FOR UPDATE`, userID, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circulation.ErrNoActiveLoan
	}
	if err != nil {
		return nil, fmt.Errorf("find active loan: %w", err)
	}
	return &t, nil
}

func (u *unit) Insert(ctx context.Context, t *models.Transaction) error {
	err := u.tx.QueryRowxContext(ctx, `
		INSERT INTO transactions (user_id, book_id, borrowed_at, due_date, status, fine)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		t.UserID, t.BookID, t.BorrowedAt, t.DueDate, t.Status, int64(t.Fine),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (u *unit) MarkReturned(ctx context.Context, transactionID int64, returnDate time.Time, fine models.Money) error {
	result, err := u.tx.ExecContext(ctx, `
		UPDATE transactions SET status = 'returned', return_date = $1, fine = $2
		WHERE id = $3 AND status = 'borrowed'`, returnDate, int64(fine), transactionID)
	if err != nil {
		return fmt.Errorf("mark transaction %d returned: %w", transactionID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("transaction %d is no longer active", transactionID)
	}
	return nil
}
