package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/libraryhub/backend/internal/database"
	"github.com/libraryhub/backend/internal/models"
)

// AllCategories disables the category filter
const AllCategories = "All"

var (
	ErrBookNotFound   = errors.New("book not found")
	ErrBookHasHistory = errors.New("book has loan history")

	dialect     = goqu.Dialect("postgres")
	bookColumns = []any{"id", "title", "author", "category", "quantity", "created_at", "updated_at"}
)

// BookFilter narrows a catalog listing
type BookFilter struct {
	Search   string // case-insensitive substring of title or author
	Category string
}

type CatalogService struct {
	db         *sqlx.DB
	validation *ValidationHelper
}

func NewCatalogService(db *sqlx.DB) *CatalogService {
	return &CatalogService{
		db:         db,
		validation: NewValidationHelper(),
	}
}

// escapeLike quotes the ILIKE wildcards in user input
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *CatalogService) booksQuery(filter BookFilter) (string, []any, error) {
	ds := dialect.From("books").Select(bookColumns...).Order(goqu.I("title").Asc(), goqu.I("id").Asc())

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		ds = ds.Where(goqu.Or(
			goqu.I("title").ILike(pattern),
			goqu.I("author").ILike(pattern),
		))
	}
	if filter.Category != "" && filter.Category != AllCategories {
		ds = ds.Where(goqu.Ex{"category": filter.Category})
	}

	return ds.Prepared(true).ToSQL()
}

// Books lists the catalog ordered by title
func (s *CatalogService) Books(ctx context.Context, filter BookFilter) ([]models.Book, error) {
	query, args, err := s.booksQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("build books query: %w", err)
	}

	books := []models.Book{}
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("select books: %w", err)
	}
	return books, nil
}

// Book returns one catalog entry
func (s *CatalogService) Book(ctx context.Context, id int64) (*models.Book, error) {
	query, args, err := dialect.From("books").Select(bookColumns...).Where(goqu.Ex{"id": id}).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	var book models.Book
	err = s.db.GetContext(ctx, &book, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select book %d: %w", id, err)
	}
	return &book, nil
}

// Categories lists the distinct categories in use
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	query, args, err := dialect.From("books").
		Select("category").
		Distinct().
		Where(goqu.I("category").Neq("")).
		Order(goqu.I("category").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	categories := []string{}
	if err := s.db.SelectContext(ctx, &categories, query, args...); err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	return categories, nil
}

func (s *CatalogService) CreateBook(ctx context.Context, req models.BookRequest) (*models.Book, error) {
	book := models.Book{Title: req.Title, Author: req.Author, Category: req.Category, Quantity: *req.Quantity}
	query, args, err := dialect.Insert("books").Rows(goqu.Record{
		"title":    book.Title,
		"author":   book.Author,
		"category": book.Category,
		"quantity": book.Quantity,
	}).Returning("id", "created_at", "updated_at").Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}
	return &book, nil
}

// UpdateBook replaces the descriptive fields and the shelf count
func (s *CatalogService) UpdateBook(ctx context.Context, id int64, req models.BookRequest) error {
	query, args, err := dialect.Update("books").Set(goqu.Record{
		"title":      req.Title,
		"author":     req.Author,
		"category":   req.Category,
		"quantity":   *req.Quantity,
		"updated_at": goqu.L("NOW()"),
	}).Where(goqu.Ex{"id": id}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update book %d: %w", id, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrBookNotFound
	}
	return nil
}

// DeleteBook removes a book that has never been lent out
func (s *CatalogService) DeleteBook(ctx context.Context, id int64) error {
	query, args, err := dialect.Delete("books").Where(goqu.Ex{"id": id}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if database.IsForeignKeyViolation(err) {
		return ErrBookHasHistory
	}
	if err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrBookNotFound
	}
	return nil
}

func parseID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// ListBooks handles catalog browsing
// @Summary List books
// @Description Search by title or author and filter by category, ordered by title
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param search query string false "Title or author substring"
// @Param category query string false "Category, All for no filter"
// @Success 200 {array} models.Book
// @Failure 500 {object} ErrorResponse
// @Router /books [get]
func (s *CatalogService) ListBooks(w http.ResponseWriter, r *http.Request) {
	filter := BookFilter{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
	}

	books, err := s.Books(r.Context(), filter)
	if err != nil {
		log.Printf("[CATALOG] Listing failed (search=%q, category=%q): %v", filter.Search, filter.Category, err)
		SendErrorResponse(w, "Failed to fetch books", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, books)
}

// GetBook handles a single catalog lookup
// @Summary Get a book
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path int true "Book ID"
// @Success 200 {object} models.Book
// @Failure 404 {object} ErrorResponse
// @Router /books/{id} [get]
func (s *CatalogService) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		SendErrorResponse(w, "Invalid book ID", http.StatusBadRequest, nil)
		return
	}

	book, err := s.Book(r.Context(), id)
	if errors.Is(err, ErrBookNotFound) {
		SendErrorResponse(w, "Book not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[CATALOG] Lookup of book %d failed: %v", id, err)
		SendErrorResponse(w, "Failed to fetch book", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, book)
}

// ListCategories handles the category filter options
// @Summary List categories
// @Tags books
// @Produce json
// @Security BearerAuth
// @Success 200 {array} string
// @Router /books/categories [get]
func (s *CatalogService) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.Categories(r.Context())
	if err != nil {
		log.Printf("[CATALOG] Category listing failed: %v", err)
		SendErrorResponse(w, "Failed to fetch categories", http.StatusInternalServerError, nil)
		return
	}
	WriteJSON(w, http.StatusOK, categories)
}

// AddBook handles adding a book to the inventory
// @Summary Add a book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.BookRequest true "Book"
// @Success 201 {object} models.Book
// @Failure 400 {object} ErrorResponse
// @Failure 403 {string} string "Admin access required"
// @Router /books [post]
func (s *CatalogService) AddBook(w http.ResponseWriter, r *http.Request) {
	var req models.BookRequest
	if !s.validation.decodeAndValidate(w, r, &req, "CATALOG") {
		return
	}

	book, err := s.CreateBook(r.Context(), req)
	if err != nil {
		log.Printf("[CATALOG] Adding %q failed: %v", req.Title, err)
		SendErrorResponse(w, "Failed to add book", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CATALOG] Book added to inventory - ID: %d, Title: %s, Quantity: %d", book.ID, book.Title, book.Quantity)
	WriteJSON(w, http.StatusCreated, book)
}

// EditBook handles editing a book
// @Summary Update a book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Book ID"
// @Param request body models.BookRequest true "Book"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /books/{id} [put]
func (s *CatalogService) EditBook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		SendErrorResponse(w, "Invalid book ID", http.StatusBadRequest, nil)
		return
	}

	var req models.BookRequest
	if !s.validation.decodeAndValidate(w, r, &req, "CATALOG") {
		return
	}

	err := s.UpdateBook(r.Context(), id, req)
	if errors.Is(err, ErrBookNotFound) {
		SendErrorResponse(w, "Book not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[CATALOG] Updating book %d failed: %v", id, err)
		SendErrorResponse(w, "Failed to update book", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CATALOG] Book %d updated", id)
	WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Book details updated"})
}

// RemoveBook handles deleting a book
// @Summary Delete a book
// @Description Books that were ever lent out are kept for the ledger
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path int true "Book ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /books/{id} [delete]
func (s *CatalogService) RemoveBook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		SendErrorResponse(w, "Invalid book ID", http.StatusBadRequest, nil)
		return
	}

	err := s.DeleteBook(r.Context(), id)
	switch {
	case errors.Is(err, ErrBookNotFound):
		SendErrorResponse(w, "Book not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, ErrBookHasHistory):
		SendErrorResponse(w, "Book has loan history and cannot be removed", http.StatusConflict, nil)
		return
	case err != nil:
		log.Printf("[CATALOG] Deleting book %d failed: %v", id, err)
		SendErrorResponse(w, "Failed to remove book", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CATALOG] Book %d removed from inventory", id)
	WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Book removed from inventory"})
}
