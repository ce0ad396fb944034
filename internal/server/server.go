package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/contentsync/internal/config"
	"github.com/ifuryst/contentsync/internal/content"
	"github.com/ifuryst/contentsync/internal/distributor"
	"github.com/ifuryst/contentsync/internal/metrics"
	"github.com/ifuryst/contentsync/internal/notify"
	"github.com/ifuryst/contentsync/internal/processor"
	"github.com/ifuryst/contentsync/internal/queue"
	"github.com/ifuryst/contentsync/internal/runner"
	"github.com/ifuryst/contentsync/internal/service"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	Queue     QueueStore
	Processor runner.ItemProcessor
	Runs      *service.RunService
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer

	Scheduler    *service.Scheduler
	StatsUpdater *service.StatsUpdater
	Redis        *redis.Client

	cancelRuns context.CancelFunc
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	gin.SetMode(cfg.Server.Mode)

	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	repo := queue.NewRepository(db)
	store := content.NewStore(db)

	manager := distributor.NewManager(logger)
	if err := manager.Register(distributor.NewLocalDistributor(store, logger)); err != nil {
		return nil, err
	}
	remote := distributor.NewRemoteDistributor(distributor.RemoteOptions{
		ImportPath: cfg.Remote.ImportPath,
		Timeout:    config.Duration(cfg.Remote.Timeout),
		MaxRetries: *cfg.Remote.MaxRetries,
		RateLimit:  cfg.Remote.RateLimit,
	}, store, cfg.Remote.Token, logger)
	if err := manager.Register(remote); err != nil {
		return nil, err
	}

	proc := processor.NewProcessor(repo, manager, m, config.Duration(cfg.Queue.LeaseDuration), logger)

	observers := []runner.Observer{m.RunObserver()}
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		observers = append(observers, notify.NewRedisObserver(redisClient, cfg.Redis.Channel, logger))
	}

	runCtx, cancelRuns := context.WithCancel(context.Background())
	r := runner.New(proc, config.Duration(cfg.Queue.ItemTimeout), logger, observers...)
	runs := service.NewRunService(runCtx, r, repo, m, cfg.Queue.StuckLimit, logger)

	srv := &Server{
		Config:       cfg,
		DB:           db,
		Router:       gin.New(),
		Logger:       logger,
		Queue:        repo,
		Processor:    proc,
		Runs:         runs,
		Metrics:      m,
		Gatherer:     reg,
		Scheduler:    service.NewScheduler(&cfg.Scheduler, logger, runs),
		StatsUpdater: service.NewStatsUpdater(repo, m, config.Duration(cfg.Queue.Retention), logger, config.Duration(cfg.Queue.StatsInterval)),
		Redis:        redisClient,
		cancelRuns:   cancelRuns,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	s.Router.Use(gin.Recovery())

	s.Router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.Logger.Info("HTTP request",
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()))
	})

	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.StatsUpdater.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

// Shutdown stops scheduling, lets an active run finish its current item and
// then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Scheduler.Stop()
	s.StatsUpdater.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if s.Runs.Runner().Guarded() {
		s.Logger.Warn("Stopping active run", zap.String("progress", s.Runs.Runner().Progress().Label))
	}
	if err := s.Runs.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("Run did not finish in time", zap.Error(err))
	}
	s.cancelRuns()

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}

	if s.Server == nil {
		return nil
	}
	return s.Server.Shutdown(shutdownCtx)
}
