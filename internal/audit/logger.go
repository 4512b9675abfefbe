package audit

import (
	"log"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	UserID        int64     `json:"user_id"`
	BookID        int64     `json:"book_id"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// Logger writes one JSON line per circulation outcome
type Logger struct {
	out *log.Logger
	now func() time.Time
}

func NewLogger() *Logger {
	return &Logger{out: log.Default(), now: time.Now}
}

// NewLoggerTo writes audit lines to out instead of the standard logger
func NewLoggerTo(out *log.Logger) *Logger {
	return &Logger{out: out, now: time.Now}
}

var _ circulation.Auditor = (*Logger)(nil)

func (a *Logger) LogBorrow(userID, bookID, transactionID int64, dueDate time.Time) {
	a.log(Event{
		EventType:     "BORROW",
		TransactionID: transactionID,
		UserID:        userID,
		BookID:        bookID,
		Status:        "SUCCESS",
		Details:       map[string]string{"due_date": dueDate.Format(time.RFC3339)},
	})
}

func (a *Logger) LogReturn(userID, bookID, transactionID int64, fine models.Money) {
	a.log(Event{
		EventType:     "RETURN",
		TransactionID: transactionID,
		UserID:        userID,
		BookID:        bookID,
		Status:        "SUCCESS",
		Details:       map[string]string{"fine": fine.String()},
	})
}

func (a *Logger) LogRejection(op string, userID, bookID int64, reason circulation.Reason) {
	a.log(Event{
		EventType: opEventType(op),
		UserID:    userID,
		BookID:    bookID,
		Status:    "REJECTED",
		Details:   map[string]string{"reason": string(reason)},
	})
}

func (a *Logger) LogError(op string, userID, bookID int64, err error) {
	a.log(Event{
		EventType: opEventType(op),
		UserID:    userID,
		BookID:    bookID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func opEventType(op string) string {
	switch op {
	case "borrow":
		return "BORROW"
	case "return":
		return "RETURN"
	}
	return op
}

func (a *Logger) log(event Event) {
	event.Timestamp = a.now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		a.out.Printf("AUDIT: failed to encode %s event: %v", event.EventType, err)
		return
	}
	a.out.Printf("AUDIT: %s", data)
}
