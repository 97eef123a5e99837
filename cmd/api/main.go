package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/homex/internal/config"
	"github.com/joshua-takyi/homex/internal/connect"
	"github.com/joshua-takyi/homex/internal/container"
	"github.com/joshua-takyi/homex/internal/events"
	"github.com/joshua-takyi/homex/internal/helpers"
	"github.com/joshua-takyi/homex/internal/models"
	"github.com/joshua-takyi/homex/internal/routes"
	"go.mongodb.org/mongo-driver/mongo"
)

const serviceName = "homex-api"

func main() {
	// Load environment variables
	_ = godotenv.Load(".env.local")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	logger.Info("Starting Homex API server", "environment", cfg.Environment, "storage", cfg.Storage)

	ctx := context.Background()

	shutdownTracer := func(context.Context) error { return nil }
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err = connect.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.Environment)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		logger.Info("Tracing enabled", "endpoint", cfg.OTLPEndpoint)
	}

	backends := container.Backends{}

	// Initialize the operational store
	var mongoClient *mongo.Client
	switch cfg.Storage {
	case config.StorageMemory:
		backends.Store = models.NewMemoryRepo()
		logger.Warn("Using in-memory storage; data is lost on restart")
	default:
		mongoClient, err = connect.MongoDBConnect(ctx, cfg)
		if err != nil {
			logger.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		repo := models.MongodbNewRepo(mongoClient, cfg.MongoDBDatabase, cfg.MongoDBTransactions)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Error("Failed to create MongoDB indexes", "error", err)
			os.Exit(1)
		}
		backends.Store = repo
		logger.Info("Connected to MongoDB successfully", "database", cfg.MongoDBDatabase, "transactions", cfg.MongoDBTransactions)
	}

	// Reference data
	if cfg.HasSupabase() {
		supaClient, err := connect.InitSupabase(cfg)
		if err != nil {
			logger.Error("Failed to connect to Supabase", "error", err)
			os.Exit(1)
		}
		backends.Reference = models.SupabaseNewRepo(supaClient)
		logger.Info("Connected to Supabase successfully")
	} else {
		backends.Reference = models.NewMemoryReference()
		logger.Warn("Supabase is not configured; using an empty in-memory reference store")
	}

	// Domain events
	if cfg.RabbitMQURL != "" {
		publisher, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.EventsExchange)
		if err != nil {
			logger.Error("Failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		backends.Publisher = publisher
		logger.Info("Publishing events", "exchange", cfg.EventsExchange)
	}

	// Attachments
	if cfg.HasCloudinary() {
		cld, err := connect.CloudinaryCredentials(cfg)
		if err != nil {
			logger.Error("Failed to connect to Cloudinary", "error", err)
			os.Exit(1)
		}
		backends.Uploader = helpers.NewCloudinaryUploader(cld, helpers.AttachmentFolder)
	}

	tokens, err := helpers.NewTokenValidator(cfg.JWTSecret, cfg.JWKSURL)
	if err != nil {
		logger.Error("Failed to initialize token validation", "error", err)
		os.Exit(1)
	}
	backends.Tokens = tokens

	// Initialize dependency container
	appContainer, err := container.NewContainer(cfg, logger, backends)
	if err != nil {
		logger.Error("Failed to build container", "error", err)
		os.Exit(1)
	}

	// Setup routes
	router := routes.SetupRoutes(appContainer)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	if err := appContainer.Publisher.Close(); err != nil {
		logger.Error("Error closing event publisher", "error", err)
	}
	tokens.Close()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("Error flushing traces", "error", err)
	}
	if err := connect.MongoDBDisconnect(mongoClient); err != nil {
		logger.Error("Error disconnecting from MongoDB", "error", err)
	}

	logger.Info("Server exited")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		// JSON logging for production
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		// Human-readable logging for development
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}
