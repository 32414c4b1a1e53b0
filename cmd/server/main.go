package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cuappdev/clicker-backend/internal/api"
	"github.com/cuappdev/clicker-backend/internal/config"
	"github.com/cuappdev/clicker-backend/internal/events"
	"github.com/cuappdev/clicker-backend/internal/jobs"
	"github.com/cuappdev/clicker-backend/internal/models"
	"github.com/cuappdev/clicker-backend/internal/repositories"
	"github.com/cuappdev/clicker-backend/internal/routers"
	"github.com/cuappdev/clicker-backend/internal/session"
	"github.com/cuappdev/clicker-backend/internal/utils"
)

// initDatabase opens the configured database and migrates the schema.
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&models.Group{}, &models.Poll{}, &models.Draft{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// initRedis returns nil when Redis is unreachable; the server then runs as a
// single instance.
func initRedis(cfg *config.Config, logger *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, cross-instance events disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("dbDriver", cfg.DBDriver))

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	polls, err := repositories.NewCachedPollRepository(&repositories.PollRepository{DB: db}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize poll cache", zap.Error(err))
	}

	opts := []session.Option{session.WithPersistTimeout(cfg.PersistTimeout)}
	deps := api.Deps{
		Log:    logger,
		Secret: cfg.JWTSecret,
		Groups: &repositories.GroupRepository{DB: db},
		Drafts: &repositories.DraftRepository{DB: db},
		Polls:  polls,
	}

	rootCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()

	var publisher *events.Publisher
	if rdb := initRedis(cfg, logger); rdb != nil {
		defer rdb.Close()
		publisher = events.NewPublisher(rdb, cfg.EventsChannel, logger)
		opts = append(opts, session.WithNotifier(publisher))
		deps.Relay = publisher
	}

	registry := session.NewRegistry(polls, logger, opts...)
	deps.Registry = registry

	if publisher != nil {
		go publisher.Listen(rootCtx, func(ev models.SessionEvent) {
			if ev.Type != events.EndRequested {
				return
			}
			if _, ok := registry.Get(ev.GroupID); !ok {
				return
			}
			ctx, cancel := context.WithTimeout(rootCtx, cfg.PersistTimeout)
			defer cancel()
			if err := registry.EndSession(ctx, ev.GroupID, ev.Save); err != nil {
				logger.Error("failed to end session on request", zap.String("groupId", ev.GroupID), zap.Error(err))
			}
		})
	}

	reaper := jobs.NewIdleReaper(registry, cfg.ReaperSchedule, cfg.IdleTimeout, cfg.PersistTimeout, logger)
	if err := reaper.Start(); err != nil {
		logger.Fatal("Failed to start idle session reaper", zap.Error(err))
	}

	router := routers.New(api.NewHandlers(deps), routers.Options{
		Secret:         cfg.JWTSecret,
		CORSOrigins:    cfg.CORSOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	serverAddr := ":" + cfg.Port

	// websocket upgrades clear the connection deadlines these set
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Clicker server starting", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("Clicker server shutting down...")

	reaper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Store running polls and disconnect clients before the listener stops.
	if err := registry.Shutdown(ctx); err != nil {
		logger.Error("some sessions did not shut down cleanly", zap.Error(err))
	}
	stopEvents()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("Clicker server exited")
}
