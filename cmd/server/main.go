package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/tapshop/backend/docs"
	"github.com/tapshop/backend/internal/config"
	"github.com/tapshop/backend/internal/database"
	"github.com/tapshop/backend/internal/handlers"
	mW "github.com/tapshop/backend/internal/middleware"
	"github.com/tapshop/backend/internal/notifier"
	"github.com/tapshop/backend/internal/services"
)

// @title Tap Shop Backend API
// @version 1.0
// @description API for the card-tap campus shop
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func initLogger() {
	level, err := zerolog.ParseLevel(viper.GetString("log.level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if viper.GetString("log.format") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func initConfig() {
	// Production runs on real environment variables, so a missing .env is fine
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not found, using environment")
	}

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

	viper.BindEnv("mongo.uri", "MONGO_URI")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")
	viper.SetDefault("log.level", "info")

	viper.BindEnv("server.port", "PORT")
	viper.SetDefault("server.port", "8080")
}

func main() {
	initConfig()
	initLogger()

	shopCfg := config.LoadShopConfig()

	if viper.GetString("jwt.secret_key") == "" {
		log.Fatal().Msg("JWT_SECRET_KEY must be set")
	}

	docs.SwaggerInfo.Host = "localhost:" + viper.GetString("server.port")

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var sink services.AuditSink = services.NewPostgresAuditSink(db)
	if shopCfg.AuditSink == "mongo" {
		if mongoClient := database.InitMongo(); mongoClient != nil {
			defer mongoClient.Disconnect(context.Background())
			sink = services.NewMongoAuditSink(mongoClient, shopCfg.MongoDatabase)
			log.Info().Str("database", shopCfg.MongoDatabase).Msg("Audit log stored in MongoDB")
		} else {
			log.Warn().Msg("MongoDB unavailable, audit log stored in PostgreSQL")
		}
	}
	audit := services.NewAuditEmitter(sink, shopCfg.AuditTimeout)

	display := notifier.New(shopCfg.DisplayWriteWait)

	authService := services.NewAuthService(db, redisClient)
	if err := authService.EnsureBootstrapAdmin(context.Background(), shopCfg.BootstrapAdminUser, shopCfg.BootstrapAdminPass); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap admin")
	}

	ledgerService := services.NewLedgerService(db)
	cardService := services.NewCardRegistryService(db, audit)
	accountService := services.NewAccountService(db, audit)
	shelfService := services.NewShelfService(db, audit, shopCfg)
	settingsService := services.NewSettingsService(db, audit, shopCfg.DefaultDebtLimit)
	scanService := services.NewScanService(db, shopCfg, cardService, ledgerService, shelfService, settingsService, display)
	paymentService := services.NewPaymentService(db, ledgerService,
		services.NewIdempotencyGuard(redisClient, shopCfg.IdempotencyTTL), audit)
	qrHandler := handlers.NewQRHandler(services.NewQRService(db, redisClient, ledgerService, shopCfg.PaybackQRTTL))
	displayHandler := handlers.NewDisplayHandler(display)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.RequestLogger(log.Logger))
	r.Use(middleware.Recoverer)
	r.Use(mW.SecurityHeaders)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Idempotent-Replay"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":            "healthy",
			"display_connected": display.Connected(),
		})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Long-lived, so it stays outside the request timeout
	r.Handle("/ws/display", displayHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Device endpoints: scanner and payment tablet
		r.Post("/scans", scanService.HandleScan)
		r.Post("/payments", paymentService.CreatePayment)
		r.Get("/payments/{reference}", paymentService.GetPayment)

		r.Post("/admin/login", authService.Login)

		r.Group(func(r chi.Router) {
			r.Use(mW.AdminAuth(authService))

			r.Post("/admin/logout", authService.Logout)

			r.Get("/cards", cardService.ListCards)
			r.Get("/cards/captured", cardService.GetCapturedCard)
			r.Post("/cards/{uid}/link", cardService.LinkCard)
			r.Post("/cards/{uid}/unlink", cardService.UnlinkCard)
			r.Post("/cards/{uid}/deactivate", cardService.DeactivateCard)
			r.Post("/cards/{uid}/reactivate", cardService.ReactivateCard)

			r.Get("/accounts", accountService.ListAccounts)
			r.Post("/accounts", accountService.CreateAccount)
			r.Get("/accounts/{id}", accountService.GetAccount)
			r.Get("/accounts/{id}/payback-qr", qrHandler.GeneratePaybackQR)
			r.Get("/payback-qr/{code}", qrHandler.ResolvePaybackQR)

			r.Get("/shelves", shelfService.ListShelves)
			r.Put("/shelves/{port}", shelfService.PutShelf)

			r.Get("/settings/max_debt_limit", settingsService.GetMaxDebtLimit)
			r.Put("/settings/max_debt_limit", settingsService.UpdateMaxDebtLimit)
		})
	})

	server := &http.Server{
		Addr:        ":" + viper.GetString("server.port"),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	audit.Wait()

	log.Info().Msg("Server stopped")
}
