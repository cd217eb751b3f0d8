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
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vpnvault/backend/docs"
	"github.com/vpnvault/backend/internal/config"
	"github.com/vpnvault/backend/internal/database"
	"github.com/vpnvault/backend/internal/handlers"
	mW "github.com/vpnvault/backend/internal/middleware"
	"github.com/vpnvault/backend/internal/services"
)

// @title VPN Vault Backend API
// @version 1.0
// @description API for VPN subscription entitlements and prepaid balance management
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

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
	viper.BindEnv("admin.token_hash", "ADMIN_TOKEN_HASH")
	viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "VPN Vault Backend API"
	docs.SwaggerInfo.Description = "API for VPN subscription entitlements and prepaid balance management"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize services
	catalog := config.LoadTariffCatalog()

	ledgerService := services.NewLedgerService(db)
	providerClient := services.NewHTTPPaymentProvider(config.LoadProviderConfig())
	paymentService := services.NewPaymentService(db, redisClient, providerClient, ledgerService)

	outlineCfg := config.LoadOutlineConfig()
	outlineClient := services.NewOutlineClient(outlineCfg)
	provisionerService := services.NewProvisionerService(db, outlineClient, outlineCfg, catalog)
	entitlementService := services.NewEntitlementService(db, ledgerService, provisionerService, catalog)
	keyQRService := services.NewKeyQRService(db, redisClient)

	notifier := services.NewTelegramNotifier()
	sweeperService := services.NewSweeperService(db, redisClient, provisionerService, notifier)

	entitlementHandler := handlers.NewEntitlementHandler(entitlementService, ledgerService, paymentService, keyQRService, catalog)
	paymentHandler := handlers.NewPaymentHandler(paymentService, ledgerService)
	adminHandler := handlers.NewAdminHandler(sweeperService, ledgerService, provisionerService)

	// Background expiry sweep
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeperService.Start(sweepCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Get("/tariffs", entitlementHandler.ListTariffs)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/account", entitlementHandler.GetAccount)

			r.Post("/deposits", paymentHandler.CreateDeposit)
			r.Post("/deposits/reconcile", paymentHandler.ReconcileDeposit)

			r.Post("/purchases", entitlementHandler.Purchase)

			r.Get("/keys", entitlementHandler.ListKeys)
			r.Get("/keys/{keyId}/qr", entitlementHandler.KeyQR)
		})

		// Operator endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.AdminMiddleware)

			r.Post("/admin/sweep", adminHandler.RunSweep)
			r.Post("/admin/credit", adminHandler.Credit)
			r.Post("/admin/keys/sync", adminHandler.SyncKeys)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

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
	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
