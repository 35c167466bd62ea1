package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	httpHandler "github.com/amanhasank/together-stream/internal/handler/http"
	wsHandler "github.com/amanhasank/together-stream/internal/handler/websocket"
	"github.com/amanhasank/together-stream/internal/hub"
	mempersistence "github.com/amanhasank/together-stream/internal/infra/persistence/memory"
	"github.com/amanhasank/together-stream/internal/infra/setup"
	redisstate "github.com/amanhasank/together-stream/internal/infra/state/redis"
	"github.com/amanhasank/together-stream/internal/middleware"
	"github.com/amanhasank/together-stream/internal/service"
	"github.com/amanhasank/together-stream/internal/tasks"
	"github.com/amanhasank/together-stream/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	RedisClient *redis.Client // 未配置 Redis 时为 nil
	Scheduler   *asynq.Scheduler
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	Rooms       *service.RoomService
	HttpServer  *http.Server

	stopSweep chan struct{}
	wg        sync.WaitGroup
}

// NewLogger 按配置创建 logger，并同步到 logrus 的全局 logger (各组件通过 logrus.WithFields 记录日志)
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.StandardLogger()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	// 1. Logger
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Env: %s)", log.GetLevel().String(), cfg.AppEnv)

	// 2. 基础设施 (Redis 可选)
	var (
		redisClient *redis.Client
		redisOpt    asynq.RedisClientOpt
		err         error
	)
	if cfg.RedisEnabled() {
		redisClient, err = setup.InitRedis(context.Background(), setup.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		redisOpt = asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	} else {
		log.Warn("REDIS_ADDR not set: REST rate limiting disabled, idle rooms swept by local ticker")
	}

	// 3. Repositories
	roomRepo := mempersistence.NewMemoryRoomRepository()

	// 4. Services
	roomService := service.NewRoomService(roomRepo, cfg.HistoryCapacity)
	members := service.NewMembershipService(roomRepo)
	playback := service.NewPlaybackService(roomRepo, members)
	chat := service.NewChatService(roomRepo, members, cfg.ChatMaxLength)
	log.Info("Services initialized")

	// 5. Hub
	hubInstance := hub.NewHub(members, playback, chat, hub.Options{
		RejectionNotices: cfg.RejectionNotices,
		EventsPerSecond:  cfg.WSEventsPerSecond,
		MaxMessageSize:   cfg.WSMaxMessageSize,
	})

	// 6. Router
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	roomHandler := httpHandler.NewRoomHandler(roomService)
	router.GET("/", httpHandler.Index)
	router.GET("/health", httpHandler.Health)
	api := router.Group("/api")
	if redisClient != nil {
		limiter := redisstate.NewRedisRateLimiter(redisClient, cfg.KeyPrefix)
		api.Use(middleware.RateLimit(limiter, cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	{
		api.POST("/rooms", roomHandler.CreateRoom)
		api.GET("/rooms/:roomId", roomHandler.GetRoom)
	}
	router.GET("/ws", wsHandler.NewWebSocketHandler(hubInstance, cfg.CORSAllowedOrigin).HandleConnection)

	app := &App{
		Config:      cfg,
		Log:         log,
		RedisClient: redisClient,
		Hub:         hubInstance,
		Rooms:       roomService,
		HttpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		stopSweep: make(chan struct{}),
	}

	// 7. 空闲房间回收
	if cfg.RoomIdleTTL > 0 && redisClient != nil {
		app.AsynqServer = worker.NewWorkerServer(redisOpt, roomService, log)
		app.Scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	}

	log.Info("Application assembled successfully")
	return app, nil
}

// Start 启动后台 goroutine 和 HTTP 服务器
func (a *App) Start() {
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	if a.Config.RoomIdleTTL > 0 {
		if a.AsynqServer != nil {
			if err := a.AsynqServer.Start(); err != nil {
				a.Log.WithError(err).Error("Asynq worker server not started")
			}
			a.registerPeriodicTasks()
		} else {
			a.startLocalSweeper()
		}
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

func (a *App) registerPeriodicTasks() {
	payload, err := tasks.NewRoomSweepTask(a.Config.RoomIdleTTL)
	if err != nil {
		a.Log.Errorf("Failed to create room sweep task payload: %v", err)
		return
	}
	task := asynq.NewTask(tasks.TypeRoomSweep, payload)

	schedule := a.Config.RoomSweepSchedule
	entryID, err := a.Scheduler.Register(schedule, task, asynq.Queue("default"))
	if err != nil {
		a.Log.Errorf("Could not register periodic room sweep task: %v", err)
		return
	}
	a.Log.Infof("Periodic room sweep task registered with schedule '%s' (EntryID: %s)", schedule, entryID)

	// Start 不阻塞，也不接管进程信号
	if err := a.Scheduler.Start(); err != nil {
		a.Log.Errorf("Asynq scheduler Start() failed: %v", err)
		return
	}
	a.Log.Info("Asynq scheduler started")
}

// startLocalSweeper 没有 Redis 时用本地 ticker 回收空闲房间
func (a *App) startLocalSweeper() {
	interval, err := sweepInterval(a.Config.RoomSweepSchedule)
	if err != nil {
		a.Log.WithError(err).Error("Local room sweeper not started")
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				removed, err := a.Rooms.SweepIdle(ctx, a.Config.RoomIdleTTL)
				cancel()
				if err != nil {
					a.Log.WithError(err).Warn("Local room sweep failed")
				} else if removed > 0 {
					a.Log.WithField("removed", removed).Info("Idle rooms reclaimed")
				}
			case <-a.stopSweep:
				return
			}
		}
	}()
	a.Log.Infof("Local room sweeper started (every %s)", interval)
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 先停止接收新请求
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 关闭所有 WebSocket 连接 (hijack 的连接不受 HttpServer.Shutdown 影响)
	a.Hub.Stop()

	// 3. 回收任务
	close(a.stopSweep)
	a.wg.Wait()
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. Redis
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// CORSMiddleware 允许单一来源访问 REST 接口，"*" 表示任意来源
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		if allowedOrigin != "*" {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
