package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"signaldrop/internal/auth"
	"signaldrop/internal/cache"
	"signaldrop/internal/config"
	cronrunner "signaldrop/internal/cron"
	"signaldrop/internal/db"
	"signaldrop/internal/dropper"
	"signaldrop/internal/gate"
	"signaldrop/internal/handler"
	"signaldrop/internal/logger"
	"signaldrop/internal/notify"
	"signaldrop/internal/pool"
	gormrepository "signaldrop/internal/repository/gorm"
	"signaldrop/internal/service"
	signalhub "signaldrop/internal/signal"

	_ "signaldrop/docs"
)

func main() {
	cfgPath := os.Getenv("SD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SD_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer dbConn.Close()

	if err := dbConn.SetTimezone(cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, push fan-out and cache disabled", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		}
	}

	signalPool := pool.New(cfg.Pool, cfg.Tiers, logger)
	drops := dropper.New(signalPool, cfg.Dropper, cfg.Tiers, logger)

	hub := notify.NewHub(16, logger)
	var notifier notify.Notifier = hub
	var redisNotifier *notify.RedisNotifier
	if redisClient != nil {
		redisNotifier = notify.NewRedisNotifier(redisClient, cfg.Redis.ChannelPrefix, logger)
		notifier = redisNotifier
	}

	deliveryGate := gate.New(store, notifier, cfg.Distribution, cfg.Tiers, logger)
	drops.OnDrop("gate", deliveryGate.HandleDrop)

	intake := signalhub.NewHub(signalPool, cfg.Intake, logger)
	if cfg.Feed.Enabled && cfg.Feed.URL != "" {
		intake.Register(signalhub.NewWSFeed(cfg.Feed, logger))
	}

	var signalCache *cache.SignalCache
	if redisClient != nil {
		signalCache = cache.NewSignalCache(redisClient, cfg.Redis.ChannelPrefix, cfg.Redis.CacheTTL, logger)
	}
	queryService := &service.SignalQueryService{Repo: store, Cache: signalCache, Cfg: cfg.Query, Logger: logger}
	sweeper := &service.OutcomeSweeper{Repo: store, Cfg: cfg.Sweeper, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.WriteAuditMiddleware(logger))

	authMW := &auth.Middleware{Repo: store, Cfg: cfg.Auth, Logger: logger}

	healthHandler := &handler.HealthHandler{DB: dbConn, Redis: redisClient}
	healthHandler.Register(engine)
	signalsHandler := &handler.SignalsHandler{Query: queryService, Auth: authMW, Logger: logger}
	signalsHandler.Register(engine)
	usersHandler := &handler.UsersHandler{Repo: store, Tiers: cfg.Tiers, Auth: authMW, Logger: logger}
	usersHandler.Register(engine)
	pipelineHandler := &handler.PipelineHandler{
		Intake:  intake,
		Pool:    signalPool,
		Dropper: drops,
		Repo:    store,
		Auth:    authMW,
		Logger:  logger,
	}
	pipelineHandler.Register(engine)
	streamHandler := &handler.StreamHandler{Hub: hub, Auth: authMW, Logger: logger}
	streamHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if redisNotifier != nil {
		go func() {
			if err := redisNotifier.Bridge(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("redis bridge stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		if err := intake.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("intake hub stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := drops.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("dropper stopped", zap.Error(err))
		}
	}()

	if cfg.Sweeper.Enabled {
		go func() {
			if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("outcome sweeper stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		_, err = cronRunner.AddNamed("pool janitor", cfg.Cron.Janitor, func(ctx context.Context) {
			if n := signalPool.PruneExpired(); n > 0 {
				logger.Info("pruned expired candidates", zap.Int("count", n))
			}
		})
		if err != nil {
			logger.Warn("cron register pool janitor failed", zap.Error(err))
		}
		_, err = cronRunner.AddNamed("pipeline stats", cfg.Cron.StatsLog, func(ctx context.Context) {
			published, dropped := hub.Stats()
			logger.Info("pipeline stats",
				zap.Int("pool_size", signalPool.Size()),
				zap.Int("stream_subscribers", hub.Subscribers("")),
				zap.Int64("push_published", published),
				zap.Int64("push_dropped", dropped),
			)
		})
		if err != nil {
			logger.Warn("cron register pipeline stats failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key,X-User-ID,X-Admin-Token")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
