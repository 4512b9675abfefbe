package circulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/libraryhub/backend/internal/models"
)

// Reason explains why a borrow or return was refused
type Reason string

const (
	ReasonLimitExceeded   Reason = "LimitExceeded"
	ReasonOutOfStock      Reason = "OutOfStock"
	ReasonNoActiveLoan    Reason = "NoActiveLoan"
	ReasonAlreadyBorrowed Reason = "AlreadyBorrowed"
	ReasonBookNotFound    Reason = "BookNotFound"
	ReasonUserNotFound    Reason = "UserNotFound"
)

// BorrowResult is the outcome of a borrow request
type BorrowResult struct {
	Success       bool      `json:"success"`
	TransactionID int64     `json:"transactionId,omitempty"`
	DueDate       time.Time `json:"dueDate,omitzero"`
	Reason        Reason    `json:"reason,omitempty"`
	Message       string    `json:"message"`
}

// ReturnResult is the outcome of a return request
type ReturnResult struct {
	Success       bool         `json:"success"`
	TransactionID int64        `json:"transactionId,omitempty"`
	Fine          models.Money `json:"fine"`
	OverdueDays   int64        `json:"overdueDays"`
	Late          bool         `json:"late"`
	Reason        Reason       `json:"reason,omitempty"`
	Message       string       `json:"message"`
}

// ErrStoreFailure matches every StoreFailure via errors.Is
var ErrStoreFailure = errors.New("store failure")

// StoreFailure is a backing store fault. The unit it happened in was rolled
// back; borrow and return must not be retried blindly.
type StoreFailure struct {
	Op  string
	Err error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("%s: store failure: %v", e.Op, e.Err)
}

func (e *StoreFailure) Unwrap() error { return e.Err }

func (e *StoreFailure) Is(target error) bool { return target == ErrStoreFailure }

// rejection aborts a unit with a policy outcome rather than a fault
type rejection struct {
	reason Reason
}

func (r *rejection) Error() string { return string(r.reason) }

func reject(reason Reason) error {
	return &rejection{reason: reason}
}
