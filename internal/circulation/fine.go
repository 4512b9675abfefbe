package circulation

import (
	"time"

	"github.com/libraryhub/backend/internal/models"
)

const day = 24 * time.Hour

// OverdueDays counts started days between dueDate and returnedAt. Any
// positive lateness, however small, is at least one day.
func OverdueDays(dueDate, returnedAt time.Time) int64 {
	late := returnedAt.Sub(dueDate)
	if late <= 0 {
		return 0
	}

	days := late / day
	if late%day != 0 {
		days++
	}
	return int64(days)
}

// FineFor is the fine owed for returning a loan due at dueDate at returnedAt
func FineFor(dueDate, returnedAt time.Time, ratePerDay models.Money) models.Money {
	return ratePerDay.Times(OverdueDays(dueDate, returnedAt))
}

// OverdueItem is an unreturned loan with the fine it would incur at AsOf
type OverdueItem struct {
	models.OverdueLoan
	OverdueDays int64        `json:"overdueDays"`
	FineAccrued models.Money `json:"fineAccrued"`
}

// Accrue prices each overdue loan as if it were returned at asOf
func Accrue(loans []models.OverdueLoan, asOf time.Time, ratePerDay models.Money) []OverdueItem {
	items := make([]OverdueItem, 0, len(loans))
	for _, loan := range loans {
		days := OverdueDays(loan.DueDate, asOf)
		items = append(items, OverdueItem{
			OverdueLoan: loan,
			OverdueDays: days,
			FineAccrued: ratePerDay.Times(days),
		})
	}
	return items
}
