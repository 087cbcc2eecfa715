package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyhub/portal/internal/api"
	"studyhub/portal/internal/config"
	"studyhub/portal/internal/generate"
	"studyhub/portal/internal/platform/logger"
	"studyhub/portal/internal/repository/mongo"
	"studyhub/portal/internal/service"
	"studyhub/portal/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const presignExpiry = 15 * time.Minute

func newServeCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configDir)
		},
	}
}

func runServer(ctx context.Context, configDir string) error {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	if ctx == nil {
		ctx = context.Background()
	}

	// --- Database ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		log.Info("Disconnecting MongoDB")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Error("Failed to disconnect MongoDB", "error", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Info("Database connection established", "database", cfg.Database.Name)

	go func() {
		idxCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := mongo.EnsureIndexes(idxCtx, appDB); err != nil {
			log.Error("Index creation failed", "error", err)
			return
		}
		log.Info("Index creation completed")
	}()

	// --- Storage ---
	fileStorage, err := storage.NewS3Storage(ctx, cfg.S3, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// --- Generation ---
	provider, err := generate.NewProvider(ctx, cfg.Generation)
	if err != nil {
		return fmt.Errorf("init generation provider: %w", err)
	}
	if closer, ok := provider.(io.Closer); ok {
		defer closer.Close()
	}

	var cache generate.Cache
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		cache = generate.NewRedisCache(redisClient, cfg.Redis.TTL)
		log.Info("Generation cache enabled", "addr", cfg.Redis.Addr)
	}
	generator := generate.NewGenerator(provider, cache, generate.Options{
		ChunkSize: cfg.Generation.ChunkSize,
		Timeout:   cfg.Generation.Timeout,
		Model:     cfg.Generation.Model,
	}, log.With("component", "generate", "provider", provider.Name()))

	// --- Services ---
	activityService := service.NewActivityService(mongo.NewMongoActivityRepository(appDB))
	contentService := service.NewContentService(
		mongo.NewMongoContainerRepository(appDB),
		fileStorage,
		generator,
		activityService,
		log.With("component", "content"),
		service.ContentOptions{MaxPageSize: cfg.Content.MaxPageSize, PresignExpiry: presignExpiry},
	)

	// --- HTTP ---
	if cfg.Log.Mode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	api.SetupRoutes(router, api.RouterConfig{
		JWTSecret:    cfg.Auth.JWTSecret,
		AdminKeyHash: cfg.Auth.AdminKeyHash,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Handler: api.HandlerOptions{
			MaxUploadBytes:     cfg.Server.MaxUploadBytes,
			TrustQueryIdentity: cfg.Auth.TrustQueryIdentity,
		},
	}, contentService, activityService)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("Server exiting")
	return nil
}
