package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/libraryhub/backend/docs"
	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/database"
	"github.com/libraryhub/backend/internal/events"
	"github.com/libraryhub/backend/internal/handlers"
	mW "github.com/libraryhub/backend/internal/middleware"
	"github.com/libraryhub/backend/internal/services"
	"github.com/libraryhub/backend/internal/store/postgres"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Library Circulation API
// @version 1.0
// @description Catalog, borrowing and returns for a lending library
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	config.Load()

	circulationConfig, err := config.LoadCirculationConfig()
	if err != nil {
		log.Fatalf("Invalid circulation config: %v", err)
	}

	port := viper.GetString("server.port")
	docs.SwaggerInfo.Host = "localhost:" + port
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	store := postgres.NewStore(db)
	engine := circulation.NewEngine(store, circulationConfig,
		circulation.WithAuditor(audit.NewLogger()),
		circulation.WithPublisher(events.NewRedisPublisher(redisClient)),
	)
	log.Printf("[CIRCULATION] Policy: limit=%d, loan period=%dd, fine=%s/day, due-soon=%dd, duplicate guard=%t",
		circulationConfig.BorrowLimit, circulationConfig.LoanPeriodDays, circulationConfig.FineRate,
		circulationConfig.DueSoonDays, circulationConfig.PreventDuplicateLoans)

	authService := services.NewAuthService(db, redisClient)
	catalogService := services.NewCatalogService(db)
	adminService := services.NewAdminService(db, store, circulationConfig.FineRate)
	circulationHandler := handlers.NewCirculationHandler(engine)
	authenticator := mW.NewAuthenticator(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "database": "up", "redis": "disabled"}
		if err := db.PingContext(r.Context()); err != nil {
			status["status"], status["database"] = "degraded", "down"
		}
		if redisClient != nil {
			status["redis"] = "up"
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				status["redis"] = "down"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(authenticator.Middleware)

			r.Post("/auth/logout", authService.Logout)

			r.Get("/books", catalogService.ListBooks)
			r.Get("/books/categories", catalogService.ListCategories)
			r.Get("/books/{id}", catalogService.GetBook)

			r.Post("/borrow", circulationHandler.Borrow)
			r.Post("/return", circulationHandler.Return)
			r.Get("/mybooks", circulationHandler.MyBooks)
			r.Get("/notifications", circulationHandler.Notifications)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Post("/books", catalogService.AddBook)
				r.Put("/books/{id}", catalogService.EditBook)
				r.Delete("/books/{id}", catalogService.RemoveBook)

				r.Get("/admin/stats", adminService.GetStats)
				r.Get("/admin/overdue", adminService.GetOverdue)
				r.Get("/users", adminService.ListUsers)
				r.Delete("/users/{id}", adminService.RemoveUser)
			})
		})
	})

	// Web client
	r.Handle("/*", mW.StaticFileServer(viper.GetString("server.static_dir")))

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
