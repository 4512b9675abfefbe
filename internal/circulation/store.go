package circulation

import (
	"context"
	"errors"
	"time"

	"github.com/libraryhub/backend/internal/models"
)

var (
	ErrBookNotFound      = errors.New("book not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrNoActiveLoan      = errors.New("no active loan")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Inventory reads and adjusts the shelf count of a book
type Inventory interface {
	// GetQuantity returns the available copies and locks the book row for the
	// rest of the unit. Returns ErrBookNotFound for unknown books.
	GetQuantity(ctx context.Context, bookID int64) (int, error)
	// AdjustQuantity adds delta to the available copies. Returns
	// ErrInsufficientStock instead of going below zero.
	AdjustQuantity(ctx context.Context, bookID int64, delta int) error
}

// Ledger reads and writes loan transactions
type Ledger interface {
	CountActive(ctx context.Context, userID int64) (int, error)
	// FindActive returns the earliest-due borrowed transaction for the pair
	// and locks it. Returns ErrNoActiveLoan when there is none.
	FindActive(ctx context.Context, userID, bookID int64) (*models.Transaction, error)
	// Insert stores t and sets t.ID
	Insert(ctx context.Context, t *models.Transaction) error
	MarkReturned(ctx context.Context, transactionID int64, returnDate time.Time, fine models.Money) error
}

// Tx is one atomic unit of work against the backing store
type Tx interface {
	Inventory
	Ledger
	// LockMember serializes all units touching the member's loans.
	// Returns ErrUserNotFound for unknown users.
	LockMember(ctx context.Context, userID int64) error
}

// Store is the backing store the engines run against
type Store interface {
	// Atomically runs fn in a single unit. Any error returned by fn discards
	// every write made through the Tx.
	Atomically(ctx context.Context, fn func(tx Tx) error) error
	ActiveLoans(ctx context.Context, userID int64) ([]models.ActiveLoan, error)
	CountDueBefore(ctx context.Context, userID int64, cutoff time.Time) (int, error)
}
