package handlers

import (
	"log"
	"net/http"

	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/middleware"
	"github.com/libraryhub/backend/internal/services"
)

// LoanRequest names the book to borrow or return
// @Description Borrow or return request structure
type LoanRequest struct {
	BookID int64 `json:"bookId" validate:"required,gt=0" example:"1"`
}

// NotificationResponse carries the due-soon reminder count
type NotificationResponse struct {
	Count int `json:"count" example:"1"`
}

type CirculationHandler struct {
	engine    *circulation.Engine
	validator *services.ValidationHelper
}

func NewCirculationHandler(engine *circulation.Engine) *CirculationHandler {
	return &CirculationHandler{
		engine:    engine,
		validator: services.NewValidationHelper(),
	}
}

func (h *CirculationHandler) decodeLoan(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return 0, 0, false
	}

	var req LoanRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return 0, 0, false
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return 0, 0, false
	}
	return userID, req.BookID, true
}

// Borrow lends a book to the authenticated member
// @Summary Borrow a book
// @Description Refusals (limit reached, out of stock, already on loan, unknown book) answer 200 with success=false and a reason
// @Tags circulation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body LoanRequest true "Book to borrow"
// @Success 200 {object} circulation.BorrowResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {object} services.ErrorResponse
// @Router /borrow [post]
func (h *CirculationHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.decodeLoan(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Borrow(r.Context(), userID, bookID)
	if err != nil {
		log.Printf("[CIRCULATION] Borrow of book %d by user %d failed: %v", bookID, userID, err)
		services.SendErrorResponse(w, "Borrow failed", http.StatusInternalServerError, nil)
		return
	}
	services.WriteJSON(w, http.StatusOK, result)
}

// Return takes a book back from the authenticated member
// @Summary Return a book
// @Description Closes the member's earliest-due open loan of the book and charges the overdue fine
// @Tags circulation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body LoanRequest true "Book to return"
// @Success 200 {object} circulation.ReturnResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {object} services.ErrorResponse
// @Router /return [post]
func (h *CirculationHandler) Return(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.decodeLoan(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Return(r.Context(), userID, bookID)
	if err != nil {
		log.Printf("[CIRCULATION] Return of book %d by user %d failed: %v", bookID, userID, err)
		services.SendErrorResponse(w, "Return failed", http.StatusInternalServerError, nil)
		return
	}
	services.WriteJSON(w, http.StatusOK, result)
}

// MyBooks lists the member's open loans
// @Summary My borrowed books
// @Tags circulation
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ActiveLoan
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {object} services.ErrorResponse
// @Router /mybooks [get]
func (h *CirculationHandler) MyBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	loans, err := h.engine.ActiveLoans(r.Context(), userID)
	if err != nil {
		log.Printf("[CIRCULATION] Listing loans of user %d failed: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch borrowed books", http.StatusInternalServerError, nil)
		return
	}
	services.WriteJSON(w, http.StatusOK, loans)
}

// Notifications counts loans that are due soon or overdue
// @Summary Due-soon reminders
// @Tags circulation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} NotificationResponse
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {object} services.ErrorResponse
// @Router /notifications [get]
func (h *CirculationHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	count, err := h.engine.DueSoonCount(r.Context(), userID)
	if err != nil {
		log.Printf("[CIRCULATION] Notification count for user %d failed: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch notifications", http.StatusInternalServerError, nil)
		return
	}
	services.WriteJSON(w, http.StatusOK, NotificationResponse{Count: count})
}
