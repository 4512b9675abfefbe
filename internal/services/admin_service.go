package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/database"
	"github.com/libraryhub/backend/internal/middleware"
	"github.com/libraryhub/backend/internal/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserHasHistory = errors.New("user has loan history")
)

// OverdueReporter lists loans past their due date
type OverdueReporter interface {
	OverdueLoans(ctx context.Context, asOf time.Time) ([]models.OverdueLoan, error)
}

type AdminService struct {
	db       *sqlx.DB
	overdue  OverdueReporter
	fineRate models.Money
	now      func() time.Time
}

func NewAdminService(db *sqlx.DB, overdue OverdueReporter, fineRate models.Money) *AdminService {
	return &AdminService{
		db:       db,
		overdue:  overdue,
		fineRate: fineRate,
		now:      time.Now,
	}
}

// Stats summarizes the ledger
func (s *AdminService) Stats(ctx context.Context) (*models.CirculationStats, error) {
	query, args, err := dialect.From("transactions").Select(
		goqu.L("COUNT(*) FILTER (WHERE status = 'borrowed')").As("borrowed"),
		goqu.L("COUNT(*) FILTER (WHERE status = 'returned')").As("returned"),
		goqu.L("COUNT(*) FILTER (WHERE status = 'borrowed' AND due_date < ?)", s.now()).As("overdue"),
		goqu.L("COALESCE(SUM(fine), 0)::BIGINT").As("fines"),
	).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	var stats models.CirculationStats
	if err := s.db.GetContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	return &stats, nil
}

// Users lists accounts, optionally only those with the given role
func (s *AdminService) Users(ctx context.Context, role string) ([]models.User, error) {
	ds := dialect.From("users").Select("id", "username", "role", "created_at").Order(goqu.I("id").Asc())
	if role != "" {
		ds = ds.Where(goqu.Ex{"role": role})
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	users := []models.User{}
	if err := s.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	return users, nil
}

// DeleteUser removes an account that never borrowed anything
func (s *AdminService) DeleteUser(ctx context.Context, id int64) error {
	query, args, err := dialect.Delete("users").Where(goqu.Ex{"id": id}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if database.IsForeignKeyViolation(err) {
		return ErrUserHasHistory
	}
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetStats handles the dashboard metrics
// @Summary Circulation statistics
// @Description Borrowed, returned and overdue loan counts and total fines
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.CirculationStats
// @Failure 403 {string} string "Admin access required"
// @Router /admin/stats [get]
func (s *AdminService) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Stats(r.Context())
	if err != nil {
		log.Printf("[ADMIN] Stats query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch statistics", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// GetOverdue handles the overdue report
// @Summary Overdue loans
// @Description Unreturned loans past their due date with the fine accrued so far
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} circulation.OverdueItem
// @Failure 403 {string} string "Admin access required"
// @Router /admin/overdue [get]
func (s *AdminService) GetOverdue(w http.ResponseWriter, r *http.Request) {
	asOf := s.now()
	loans, err := s.overdue.OverdueLoans(r.Context(), asOf)
	if err != nil {
		log.Printf("[ADMIN] Overdue query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch overdue loans", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, circulation.Accrue(loans, asOf, s.fineRate))
}

// ListUsers handles user management listing
// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param role query string false "admin or user"
// @Success 200 {array} models.User
// @Failure 403 {string} string "Admin access required"
// @Router /users [get]
func (s *AdminService) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role != "" && role != models.RoleAdmin && role != models.RoleUser {
		SendErrorResponse(w, "Invalid role", http.StatusBadRequest, nil)
		return
	}

	users, err := s.Users(r.Context(), role)
	if err != nil {
		log.Printf("[ADMIN] User listing failed: %v", err)
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, users)
}

// RemoveUser handles deleting an account
// @Summary Delete a user
// @Description Accounts with loan history are kept for the ledger
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /users/{id} [delete]
func (s *AdminService) RemoveUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		SendErrorResponse(w, "Invalid user ID", http.StatusBadRequest, nil)
		return
	}
	if self, _ := middleware.UserID(r.Context()); self == id {
		SendErrorResponse(w, "You cannot delete your own account", http.StatusBadRequest, nil)
		return
	}

	err := s.DeleteUser(r.Context(), id)
	switch {
	case errors.Is(err, ErrUserNotFound):
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, ErrUserHasHistory):
		SendErrorResponse(w, "User has loan history and cannot be deleted", http.StatusConflict, nil)
		return
	case err != nil:
		log.Printf("[ADMIN] Deleting user %d failed: %v", id, err)
		SendErrorResponse(w, "Failed to delete user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ADMIN] User %d deleted", id)
	WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "User deleted."})
}
