package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"parallel-quest/internal/domain"
	httpHandler "parallel-quest/internal/handler/http"
	wsHandler "parallel-quest/internal/handler/websocket"
	"parallel-quest/internal/hub"
	gormpersistence "parallel-quest/internal/infra/persistence/gorm"
	"parallel-quest/internal/infra/persistence/memory"
	"parallel-quest/internal/infra/setup"
	redisstate "parallel-quest/internal/infra/state/redis"
	"parallel-quest/internal/repository"
	"parallel-quest/internal/service"
	"parallel-quest/internal/tasks"
	"parallel-quest/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB   // STORAGE_DRIVER=mysql
	Memory      *memory.DB // STORAGE_DRIVER=memory
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	Router      *gin.Engine
	HttpServer  *http.Server

	RoomService *service.RoomService

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
	stopRelay      context.CancelFunc
}

type repositories struct {
	rooms    repository.RoomRepository
	users    repository.UserRepository
	members  repository.MembershipRepository
	progress repository.ProgressRepository
}

// NewApp 加载配置并创建应用
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		// logrus 还未配置，直接写 stderr
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}
	return New(cfg, NewLogger(cfg))
}

// NewLogger 按运行环境创建 logger
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	// 服务层使用全局 logger，保持同样的格式和级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	return log
}

// New 根据配置组装所有组件，并确保 demo 房间存在
func New(cfg *Config, log *logrus.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log}

	// 1. 存储
	log.WithField("driver", cfg.StorageDriver).Info("Initializing storage...")
	repos, err := app.initStorage()
	if err != nil {
		return nil, err
	}

	// 2. Redis 和 Asynq (可选)
	var (
		stateRepo *redisstate.RedisStateRepository
		jobs      repository.ComputeJobRepository
		enqueuer  service.TaskEnqueuer
	)
	if cfg.RedisEnabled() {
		app.RedisClient, err = setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		app.redisClientOpt = asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		app.AsynqClient = asynq.NewClient(app.redisClientOpt)
		stateRepo = redisstate.NewRedisStateRepository(app.RedisClient, cfg.KeyPrefix)
		jobs, enqueuer = stateRepo, app.AsynqClient
		log.Info("Redis and Asynq client initialized")
	} else {
		log.Warn("REDIS_ADDR not set: async compute jobs, rate limiting and cross-instance events are disabled")
	}

	// 3. Hub 和 Services
	// Hub 需要房间统计，RoomService 需要事件发布者，用闭包打破循环依赖
	var roomService *service.RoomService
	app.Hub = hub.NewHub(func(ctx context.Context, roomID uint) (*domain.RoomStats, error) {
		return roomService.Stats(ctx, roomID)
	})
	var publisher repository.EventPublisher = app.Hub
	if stateRepo != nil {
		publisher = stateRepo // 经 Redis 转发，所有实例的 Hub 都能收到
	}

	lifecycle := service.NewLifecycleService(repos.rooms, repos.members, repos.users, repos.progress, publisher)
	progressService := service.NewProgressService(repos.users, repos.members, repos.progress, lifecycle, publisher)
	roomService = service.NewRoomService(repos.rooms, repos.members, repos.users, repos.progress, lifecycle, publisher)
	computeService := service.NewComputeService(jobs, enqueuer, service.ComputeConfig{
		MaxTimeLimitMs: cfg.ComputeMaxTimeLimitMs,
		MaxPixels:      cfg.ComputeMaxPixels,
		JobTTL:         cfg.ComputeJobTTL,
	}, log)
	app.RoomService = roomService
	log.Info("Services initialized")

	// 4. Worker
	if cfg.RedisEnabled() {
		app.AsynqServer = worker.NewWorkerServer(app.redisClientOpt, cfg.WorkerConcurrency, computeService, roomService, log)
	}

	// 5. 路由
	app.Router = app.buildRouter(routerDeps{
		rooms:      httpHandler.NewRoomHandler(roomService, lifecycle),
		progress:   httpHandler.NewProgressHandler(progressService),
		compute:    httpHandler.NewComputeHandler(computeService),
		roomEvents: wsHandler.NewRoomEventsHandler(app.Hub, roomService),
		stream:     wsHandler.NewComputeStreamHandler(computeService),
	})
	app.HttpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. demo 房间
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	demo, err := roomService.EnsureDemoRoom(ctx, cfg.DemoRoomCode, cfg.DemoRoomName)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure demo room: %w", err)
	}
	log.WithFields(logrus.Fields{"room_id": demo.ID, "room_code": demo.Code}).Info("Demo room ready")

	log.Info("Application assembled successfully")
	return app, nil
}

func (a *App) initStorage() (*repositories, error) {
	if a.Config.StorageDriver == StorageMemory {
		a.Memory = memory.Open()
		for _, u := range a.Config.MemorySeedUsers {
			a.Memory.PutUser(u)
		}
		a.Log.WithField("seed_users", len(a.Config.MemorySeedUsers)).Warn("Using in-memory storage, data is lost on restart")
		return &repositories{
			rooms:    memory.NewRoomRepository(a.Memory),
			users:    memory.NewUserRepository(a.Memory),
			members:  memory.NewMembershipRepository(a.Memory),
			progress: memory.NewProgressRepository(a.Memory),
		}, nil
	}

	cfg := a.Config
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	a.DB = db
	a.Log.Info("Database initialized and migrated")
	return &repositories{
		rooms:    gormpersistence.NewGormRoomRepository(db),
		users:    gormpersistence.NewGormUserRepository(db),
		members:  gormpersistence.NewGormMembershipRepository(db),
		progress: gormpersistence.NewGormProgressRepository(db),
	}, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	if a.RedisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.stopRelay = cancel
		go a.Hub.RelayRedis(ctx, a.RedisClient, a.Config.KeyPrefix+"room:*:events")
	}
	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
		a.registerPeriodicTasks()
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// registerPeriodicTasks 周期性清理悬挂的当前房间指针
func (a *App) registerPeriodicTasks() {
	a.scheduler = asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	schedule := a.Config.RoomSyncSchedule
	entryID, err := a.scheduler.Register(schedule, tasks.NewRoomSyncCleanupTask(), asynq.Queue("low"))
	if err != nil {
		a.Log.Errorf("Could not register periodic room sync task: %v", err)
		return
	}
	a.Log.Infof("Periodic room sync task registered with schedule '%s' (EntryID: %s)", schedule, entryID)

	go func() {
		if err := a.scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			return
		}
		a.Log.Info("Asynq scheduler stopped.")
	}()
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

	// 2. 周期任务和 Worker
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 3. 事件转发和 Hub
	if a.stopRelay != nil {
		a.stopRelay()
	}
	a.Hub.Stop()

	// 4. 客户端连接
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}
