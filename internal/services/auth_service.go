package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/libraryhub/backend/internal/auth"
	"github.com/libraryhub/backend/internal/database"
	"github.com/libraryhub/backend/internal/middleware"
	"github.com/libraryhub/backend/internal/models"
)

var ErrUsernameTaken = errors.New("username already taken")

type AuthService struct {
	db         *sqlx.DB
	redis      *redis.Client
	validation *ValidationHelper
	now        func() time.Time
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Username string `json:"username" validate:"required" example:"alice"`            // Login name
	Password string `json:"password" validate:"required" example:"correct-horse-42"` // Password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum" example:"alice"`  // Login name
	Password string `json:"password" validate:"required,min=8,max=72" example:"correct-horse-42"` // Password
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token     string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

func NewAuthService(db *sqlx.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:         db,
		redis:      redisClient,
		validation: NewValidationHelper(),
		now:        time.Now,
	}
}

// CreateUser stores a member with a hashed password
func (s *AuthService) CreateUser(ctx context.Context, username, password, role string) (*models.User, error) {
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{Username: strings.ToLower(username), Role: role}
	err = s.db.QueryRowxContext(ctx,
		"INSERT INTO users (username, password, role) VALUES ($1, $2, $3) RETURNING id, created_at",
		user.Username, hashedPassword, role).Scan(&user.ID, &user.CreatedAt)
	if database.IsUniqueViolation(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &user, nil
}

// Register handles member registration
// @Summary Register a new member
// @Description Create a member account. Administrators are created with the librarian CLI.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} AuthResponse "Account created successfully"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Username taken"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if !s.validation.decodeAndValidate(w, r, &req, "AUTH") {
		return
	}

	user, err := s.CreateUser(r.Context(), req.Username, req.Password, models.RoleUser)
	if errors.Is(err, ErrUsernameTaken) {
		log.Printf("[AUTH] Registration refused, username taken: %s", req.Username)
		SendErrorResponse(w, "Username taken", http.StatusConflict, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] User creation failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	token, expiresAt, err := auth.GenerateToken(user.ID, user.Role)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Registration successful - ID: %d, Username: %s", user.ID, user.Username)
	WriteJSON(w, http.StatusCreated, AuthResponse{Token: token, ExpiresAt: expiresAt, User: *user})
}

// Login handles member authentication
// @Summary Login
// @Description Authenticate with username and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !s.validation.decodeAndValidate(w, r, &req, "AUTH") {
		return
	}

	var user models.User
	err := s.db.GetContext(r.Context(), &user,
		"SELECT id, username, password, role, created_at FROM users WHERE username = $1",
		strings.ToLower(req.Username))
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[AUTH] User not found: %s", req.Username)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] User lookup failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Username)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, expiresAt, err := auth.GenerateToken(user.ID, user.Role)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	WriteJSON(w, http.StatusOK, AuthResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// Logout handles member logout
// @Summary Logout
// @Description Blacklist the bearer token until it expires
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MessageResponse "Logout successful"
// @Failure 401 {string} string "Unauthorized"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.Token(r.Context())
	if ok && s.redis != nil {
		ttl := time.Second
		if claims, err := auth.ParseToken(token); err == nil {
			ttl = claims.RemainingTTL(s.now())
		}
		if err := s.redis.Set(r.Context(), auth.BlacklistKey(token), "1", ttl).Err(); err != nil {
			log.Printf("[AUTH] Failed to blacklist token: %v", err)
		}
	}

	WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Logout successful"})
}
