package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"channelPassAPI/bot"
	"channelPassAPI/handlers"
	"channelPassAPI/internal/config"
	"channelPassAPI/internal/notification"
	"channelPassAPI/internal/storage"
	"channelPassAPI/internal/telegram"
	"channelPassAPI/middleware"
	"channelPassAPI/services"

	_ "net/http/pprof"
)

var (
	cfg                 *config.Config
	dbPool              *pgxpool.Pool
	botAPI              *tgbotapi.BotAPI
	subscriptionService *services.SubscriptionService
	sweeper             *services.ExpirySweeper
	channelBot          *bot.Bot
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Println("Warning: CLERK_SECRET_KEY is not set, admin API requests will be rejected")
	} else {
		clerk.SetKey(clerkSecretKey)
		log.Println("Clerk initialized successfully")
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}
	log.Println("Successfully connected to Postgres")

	store := storage.NewPostgres(dbPool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure schema:", err)
	}

	botAPI, err = telegram.NewBot(cfg.BotToken)
	if err != nil {
		log.Fatal("Failed to connect to Telegram:", err)
	}

	gateway := telegram.NewGateway(botAPI, cfg.ChannelID, cfg.AdminIDs)
	subscriptionService = services.NewSubscriptionService(cfg, store, gateway)

	fcmService, err := notification.NewFCMService("./serviceAccountKey.json", cfg.AdminDeviceTokens)
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		subscriptionService.SetAdminAlerter(fcmService)
		log.Println("FCM admin alerts initialized successfully")
	}

	sweeper = services.NewExpirySweeper(subscriptionService, cfg.SweepInterval)
	channelBot = bot.New(botAPI, cfg, subscriptionService)

	middleware.InitPrometheus()
	services.InitMetrics()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	subscriptionHandler := handlers.NewSubscriptionHandler(cfg, subscriptionService)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "channelPass-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// ADMIN API (REQUIRES CLERK AUTH)
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.ClerkAuthMiddleware)

	api.HandleFunc("/subscriptions", subscriptionHandler.ListSubscriptions).Methods("GET")
	api.HandleFunc("/subscriptions/{userID}", subscriptionHandler.GetSubscription).Methods("GET")
	api.HandleFunc("/subscriptions/{userID}/approve", subscriptionHandler.ApproveSubscription).Methods("POST")
	api.HandleFunc("/subscriptions/{userID}/decline", subscriptionHandler.DeclineSubscription).Methods("POST")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	botCtx, stopBot := context.WithCancel(context.Background())

	sweeper.Start()
	go channelBot.Run(botCtx)

	go func() {
		log.Printf("Starting admin API on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	stopBot()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
