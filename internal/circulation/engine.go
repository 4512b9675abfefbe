package circulation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/models"
)

// Engine enforces the borrowing policy on top of a Store
type Engine struct {
	store     Store
	cfg       config.CirculationConfig
	now       func() time.Time
	audit     Auditor
	publisher Publisher
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithAuditor records every outcome to a
func WithAuditor(a Auditor) Option {
	return func(e *Engine) {
		e.audit = a
	}
}

// WithPublisher announces committed borrows and returns to p
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

func NewEngine(store Store, cfg config.CirculationConfig, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		cfg:       cfg,
		now:       time.Now,
		audit:     nopAuditor{},
		publisher: nopPublisher{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the policy the engine enforces
func (e *Engine) Config() config.CirculationConfig {
	return e.cfg
}

// Borrow lends one copy of bookID to userID.
//
// The limit check, the stock check, the decrement and the ledger insert run
// in one unit: either all of them take effect or none do. Policy refusals
// come back as a result with Success=false and a nil error; only store faults
// return an error, always a *StoreFailure.
func (e *Engine) Borrow(ctx context.Context, userID, bookID int64) (*BorrowResult, error) {
	now := e.now()
	loan := &models.Transaction{
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: now,
		DueDate:    now.AddDate(0, 0, e.cfg.LoanPeriodDays),
		Status:     models.StatusBorrowed,
		Fine:       0,
	}

	err := e.store.Atomically(ctx, func(tx Tx) error {
		if err := tx.LockMember(ctx, userID); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return reject(ReasonUserNotFound)
			}
			return err
		}

		active, err := tx.CountActive(ctx, userID)
		if err != nil {
			return err
		}
		if active >= e.cfg.BorrowLimit {
			return reject(ReasonLimitExceeded)
		}

		quantity, err := tx.GetQuantity(ctx, bookID)
		if err != nil {
			if errors.Is(err, ErrBookNotFound) {
				return reject(ReasonBookNotFound)
			}
			return err
		}
		if quantity <= 0 {
			return reject(ReasonOutOfStock)
		}

		if e.cfg.PreventDuplicateLoans {
			existing, err := tx.FindActive(ctx, userID, bookID)
			if err != nil && !errors.Is(err, ErrNoActiveLoan) {
				return err
			}
			if existing != nil {
				return reject(ReasonAlreadyBorrowed)
			}
		}

		if err := tx.AdjustQuantity(ctx, bookID, -1); err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				return reject(ReasonOutOfStock)
			}
			return err
		}

		return tx.Insert(ctx, loan)
	})

	var rej *rejection
	if errors.As(err, &rej) {
		e.audit.LogRejection("borrow", userID, bookID, rej.reason)
		return &BorrowResult{
			Success: false,
			Reason:  rej.reason,
			Message: e.message(rej.reason),
		}, nil
	}
	if err != nil {
		e.audit.LogError("borrow", userID, bookID, err)
		return nil, &StoreFailure{Op: "borrow", Err: err}
	}

	e.audit.LogBorrow(userID, bookID, loan.ID, loan.DueDate)
	e.publish(ctx, Event{
		Type:          EventBorrowed,
		UserID:        userID,
		BookID:        bookID,
		TransactionID: loan.ID,
		DueDate:       loan.DueDate,
		OccurredAt:    now,
	})

	return &BorrowResult{
		Success:       true,
		TransactionID: loan.ID,
		DueDate:       loan.DueDate,
		Message:       fmt.Sprintf("Success. Due Date: %s", loan.DueDate.Format("2006-01-02")),
	}, nil
}

// Return settles the member's active loan of bookID, charging a fine for
// every started day past the due date, and puts the copy back on the shelf.
// Errors follow the same contract as Borrow.
func (e *Engine) Return(ctx context.Context, userID, bookID int64) (*ReturnResult, error) {
	now := e.now()
	var (
		loan        *models.Transaction
		overdueDays int64
		fine        models.Money
	)

	err := e.store.Atomically(ctx, func(tx Tx) error {
		if err := tx.LockMember(ctx, userID); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return reject(ReasonNoActiveLoan)
			}
			return err
		}

		var err error
		loan, err = tx.FindActive(ctx, userID, bookID)
		if err != nil {
			if errors.Is(err, ErrNoActiveLoan) {
				return reject(ReasonNoActiveLoan)
			}
			return err
		}

		overdueDays = OverdueDays(loan.DueDate, now)
		fine = e.cfg.FineRate.Times(overdueDays)

		if err := tx.MarkReturned(ctx, loan.ID, now, fine); err != nil {
			return err
		}
		return tx.AdjustQuantity(ctx, bookID, 1)
	})

	var rej *rejection
	if errors.As(err, &rej) {
		e.audit.LogRejection("return", userID, bookID, rej.reason)
		return &ReturnResult{
			Success: false,
			Reason:  rej.reason,
			Message: e.message(rej.reason),
		}, nil
	}
	if err != nil {
		e.audit.LogError("return", userID, bookID, err)
		return nil, &StoreFailure{Op: "return", Err: err}
	}

	e.audit.LogReturn(userID, bookID, loan.ID, fine)
	e.publish(ctx, Event{
		Type:          EventReturned,
		UserID:        userID,
		BookID:        bookID,
		TransactionID: loan.ID,
		DueDate:       loan.DueDate,
		Fine:          fine,
		OccurredAt:    now,
	})

	result := &ReturnResult{
		Success:       true,
		TransactionID: loan.ID,
		Fine:          fine,
		OverdueDays:   overdueDays,
		Late:          fine > 0,
		Message:       "Returned successfully.",
	}
	if result.Late {
		result.Message = fmt.Sprintf("Returned LATE. Fine: $%s.", fine)
	}
	return result, nil
}

// ActiveLoans lists the books the member currently holds
func (e *Engine) ActiveLoans(ctx context.Context, userID int64) ([]models.ActiveLoan, error) {
	loans, err := e.store.ActiveLoans(ctx, userID)
	if err != nil {
		return nil, &StoreFailure{Op: "activeLoans", Err: err}
	}
	return loans, nil
}

// DueSoonCount counts the member's loans due within the warning window.
// Loans that are already overdue are included.
func (e *Engine) DueSoonCount(ctx context.Context, userID int64) (int, error) {
	cutoff := e.now().Add(e.cfg.DueSoonWindow())
	count, err := e.store.CountDueBefore(ctx, userID, cutoff)
	if err != nil {
		return 0, &StoreFailure{Op: "dueSoonCount", Err: err}
	}
	return count, nil
}

func (e *Engine) message(reason Reason) string {
	switch reason {
	case ReasonLimitExceeded:
		return fmt.Sprintf("Borrow limit reached (%d books max).", e.cfg.BorrowLimit)
	case ReasonOutOfStock:
		return "Item currently out of stock."
	case ReasonAlreadyBorrowed:
		return "You already have this book on loan."
	case ReasonBookNotFound:
		return "Book not found."
	case ReasonUserNotFound:
		return "User not found."
	case ReasonNoActiveLoan:
		return "No active transaction found."
	}
	return string(reason)
}

func (e *Engine) publish(ctx context.Context, event Event) {
	// the unit is already committed; a lost event must not fail the request
	if err := e.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("[CIRCULATION] Failed to publish %s event for transaction %d: %v", event.Type, event.TransactionID, err)
	}
}
