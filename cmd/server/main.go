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
	"github.com/raspadita/backend/docs"
	"github.com/raspadita/backend/internal/database"
	"github.com/raspadita/backend/internal/handlers"
	mW "github.com/raspadita/backend/internal/middleware"
	"github.com/raspadita/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Raspadita Wallet API
// @version 1.0
// @description Ledger-backed coin wallet and scratch-ticket game backend
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("site.url", "SITE_URL")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	docs.SwaggerInfo.Title = "Raspadita Wallet API"
	docs.SwaggerInfo.Description = "Ledger-backed coin wallet and scratch-ticket game backend"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize stores
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Core services: registry and wallet store feed the transfer engine,
	// which is the only writer of balances and ledger rows.
	registryService := services.NewRegistryService(db, redisClient)
	walletService := services.NewWalletService(db)
	ledgerService := services.NewLedgerService(db)
	transferService := services.NewTransferService(db, registryService, walletService, ledgerService)
	drawService := services.NewDrawService(redisClient)
	authService := services.NewAuthService(db, redisClient, registryService, walletService)

	walletHandler := handlers.NewWalletHandler(transferService, walletService, registryService)
	accountHandler := handlers.NewAccountHandler(registryService, walletService, transferService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	playHandler := handlers.NewPlayHandler(drawService, transferService)

	auth := mW.NewAuth(redisClient)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Prize artwork for the game client
	r.Handle("/static/prizes/*", http.StripPrefix("/static/prizes/",
		mW.StaticFileServer("./static/prizes")))

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Post("/auth/accept-invite", authService.AcceptInvite)

		// Ledger reads degrade to empty for anonymous callers instead of 401
		r.Group(func(r chi.Router) {
			r.Use(auth.Optional)
			r.Get("/ledger", ledgerHandler.GetLedger)
		})

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(auth.Require)

			r.Post("/admin/mint", walletHandler.Mint)
			r.Post("/admin/distribute", walletHandler.Distribute)
			r.Post("/admin/promote", accountHandler.Promote)
			r.Post("/invite-player", accountHandler.InvitePlayer)
			r.Post("/transfer", walletHandler.Transfer)

			r.Get("/wallet", walletHandler.GetWallet)
			r.Put("/wallet/baseline", walletHandler.SetBaseline)
			r.Get("/accounts", accountHandler.ListAccounts)

			r.Post("/play", playHandler.Play)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

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
