package models

import (
	"time"
)

// Transaction statuses
const (
	StatusBorrowed = "borrowed"
	StatusReturned = "returned"
)

// Transaction represents a single loan of one book to one user
type Transaction struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"userId" db:"user_id"`
	BookID     int64      `json:"bookId" db:"book_id"`
	BorrowedAt time.Time  `json:"borrowedAt" db:"borrowed_at"`
	DueDate    time.Time  `json:"dueDate" db:"due_date"`
	ReturnDate *time.Time `json:"returnDate" db:"return_date"`
	Status     string     `json:"status" db:"status"`
	Fine       Money      `json:"fine" db:"fine"` // in cents
}

// Active reports whether the book is still out on this loan
func (t *Transaction) Active() bool {
	return t.Status == StatusBorrowed
}

// ActiveLoan is the member-facing view of a borrowed book
type ActiveLoan struct {
	BookID  int64     `json:"bookId" db:"book_id"`
	Title   string    `json:"title" db:"title"`
	DueDate time.Time `json:"dueDate" db:"due_date"`
}

// OverdueLoan is a borrowed book past its due date, used by reports
type OverdueLoan struct {
	TransactionID int64     `json:"transactionId" db:"id"`
	UserID        int64     `json:"userId" db:"user_id"`
	Username      string    `json:"username" db:"username"`
	BookID        int64     `json:"bookId" db:"book_id"`
	Title         string    `json:"title" db:"title"`
	DueDate       time.Time `json:"dueDate" db:"due_date"`
}

// CirculationStats is the admin dashboard summary
type CirculationStats struct {
	Borrowed  int64 `json:"borrowed" db:"borrowed"`
	Returned  int64 `json:"returned" db:"returned"`
	Overdue   int64 `json:"overdue" db:"overdue"`
	FinesOwed Money `json:"fines" db:"fines"`
}
