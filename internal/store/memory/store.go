// Package memory is a process-local circulation store. Units run one at a
// time under a mutex against a copy of the state, and the copy replaces the
// state only when the unit succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/models"
)

type state struct {
	books  map[int64]models.Book
	users  map[int64]models.User
	loans  map[int64]models.Transaction
	nextID int64
}

func (s *state) clone() *state {
	c := &state{
		books:  make(map[int64]models.Book, len(s.books)),
		users:  s.users,
		loans:  make(map[int64]models.Transaction, len(s.loans)),
		nextID: s.nextID,
	}
	for id, b := range s.books {
		c.books[id] = b
	}
	for id, t := range s.loans {
		c.loans[id] = t
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{
		state: &state{
			books:  make(map[int64]models.Book),
			users:  make(map[int64]models.User),
			loans:  make(map[int64]models.Transaction),
			nextID: 1,
		},
	}
}

// AddBook puts a book on the shelf, replacing any book with the same id
func (s *Store) AddBook(b models.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.books[b.ID] = b
}

// AddUser registers a member, replacing any member with the same id.
// Users are never mutated by units, so the map is shared across snapshots
// and must be copied on write.
func (s *Store) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make(map[int64]models.User, len(s.state.users)+1)
	for id, existing := range s.state.users {
		users[id] = existing
	}
	users[u.ID] = u
	s.state.users = users
}

// Book returns the current record of a book
func (s *Store) Book(id int64) (models.Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state.books[id]
	return b, ok
}

// Transactions returns every ledger row ordered by id
func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, 0, len(s.state.loans))
	for _, t := range s.state.loans {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetDueDate moves a loan's due date, for simulating elapsed time
func (s *Store) SetDueDate(transactionID int64, due time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.loans[transactionID]
	if !ok {
		return fmt.Errorf("transaction %d not found", transactionID)
	}
	t.DueDate = due
	s.state.loans[transactionID] = t
	return nil
}

func (s *Store) Atomically(ctx context.Context, fn func(tx circulation.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.state.clone()
	if err := fn(&unit{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) ActiveLoans(ctx context.Context, userID int64) ([]models.ActiveLoan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans := []models.ActiveLoan{}
	for _, t := range s.state.loans {
		if t.UserID != userID || !t.Active() {
			continue
		}
		loans = append(loans, models.ActiveLoan{
			BookID:  t.BookID,
			Title:   s.state.books[t.BookID].Title,
			DueDate: t.DueDate,
		})
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].DueDate.Before(loans[j].DueDate) })
	return loans, nil
}

func (s *Store) CountDueBefore(ctx context.Context, userID int64, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, t := range s.state.loans {
		if t.UserID == userID && t.Active() && t.DueDate.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

type unit struct {
	state *state
}

func (u *unit) LockMember(ctx context.Context, userID int64) error {
	if _, ok := u.state.users[userID]; !ok {
		return circulation.ErrUserNotFound
	}
	return nil
}

func (u *unit) GetQuantity(ctx context.Context, bookID int64) (int, error) {
	b, ok := u.state.books[bookID]
	if !ok {
		return 0, circulation.ErrBookNotFound
	}
	return b.Quantity, nil
}

func (u *unit) AdjustQuantity(ctx context.Context, bookID int64, delta int) error {
	b, ok := u.state.books[bookID]
	if !ok {
		return circulation.ErrBookNotFound
	}
	if b.Quantity+delta < 0 {
		return circulation.ErrInsufficientStock
	}
	b.Quantity += delta
	b.UpdatedAt = time.Now()
	u.state.books[bookID] = b
	return nil
}

func (u *unit) CountActive(ctx context.Context, userID int64) (int, error) {
	count := 0
	for _, t := range u.state.loans {
		if t.UserID == userID && t.Active() {
			count++
		}
	}
	return count, nil
}

func (u *unit) FindActive(ctx context.Context, userID, bookID int64) (*models.Transaction, error) {
	var found *models.Transaction
	for _, t := range u.state.loans {
		if t.UserID != userID || t.BookID != bookID || !t.Active() {
			continue
		}
		if found == nil || t.DueDate.Before(found.DueDate) {
			t := t
			found = &t
		}
	}
	if found == nil {
		return nil, circulation.ErrNoActiveLoan
	}
	return found, nil
}

func (u *unit) Insert(ctx context.Context, t *models.Transaction) error {
	t.ID = u.state.nextID
	u.state.nextID++
	u.state.loans[t.ID] = *t
	return nil
}

func (u *unit) MarkReturned(ctx context.Context, transactionID int64, returnDate time.Time, fine models.Money) error {
	t, ok := u.state.loans[transactionID]
	if !ok || !t.Active() {
		return fmt.Errorf("transaction %d is not active", transactionID)
	}
	t.Status = models.StatusReturned
	t.ReturnDate = &returnDate
	t.Fine = fine
	u.state.loans[transactionID] = t
	return nil
}
