package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"parallel-quest/internal/domain"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	StorageDriver string
	DBUser        string
	DBPassword    string
	DBHost        string
	DBPort        string
	DBName        string

	// RedisAddr 为空时不启用 Redis：没有异步任务和限流，房间事件只在本进程内广播
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	JWTSecret         string
	ServerPort        string
	LogLevel          string
	AppEnv            string
	CORSAllowedOrigin string

	DemoRoomCode     string
	DemoRoomName     string
	RoomSyncSchedule string

	ComputeMaxTimeLimitMs int64
	ComputeMaxPixels      int
	ComputeJobTTL         time.Duration
	WorkerConcurrency     int

	RateLimitMax    int
	RateLimitWindow time.Duration

	// MemorySeedUsers 内存模式下预置的用户，格式 "1:alice:admin,2:bob"
	MemorySeedUsers []domain.User
}

// RedisEnabled 是否配置了 Redis
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	cfg := &Config{
		StorageDriver:     strings.ToLower(os.Getenv("STORAGE_DRIVER")),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBHost:            os.Getenv("DB_HOST"),
		DBPort:            os.Getenv("DB_PORT"),
		DBName:            os.Getenv("DB_NAME"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:         os.Getenv("REDIS_KEY_PREFIX"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ServerPort:        os.Getenv("SERVER_PORT"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		AppEnv:            os.Getenv("APP_ENV"),
		CORSAllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
		DemoRoomCode:      domain.NormalizeRoomCode(os.Getenv("DEMO_ROOM_CODE")),
		DemoRoomName:      os.Getenv("DEMO_ROOM_NAME"),
		RoomSyncSchedule:  os.Getenv("ROOM_SYNC_SCHEDULE"),
	}

	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB")) // 忽略错误，默认为 0

	var err error
	if cfg.ComputeMaxTimeLimitMs, err = envInt64("COMPUTE_MAX_TIME_LIMIT_MS", 30_000); err != nil {
		return nil, err
	}
	maxPixels, err := envInt64("COMPUTE_MAX_PIXELS", 4096*4096)
	if err != nil {
		return nil, err
	}
	cfg.ComputeMaxPixels = int(maxPixels)
	if cfg.ComputeJobTTL, err = envDuration("COMPUTE_JOB_TTL", time.Hour); err != nil {
		return nil, err
	}
	workers, err := envInt64("WORKER_CONCURRENCY", 2)
	if err != nil {
		return nil, err
	}
	cfg.WorkerConcurrency = int(workers)
	rateMax, err := envInt64("RATE_LIMIT_MAX", 30)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitMax = int(rateMax)
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}

	if cfg.StorageDriver == "" {
		cfg.StorageDriver = StorageMySQL
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "pq:"
	}
	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = "http://localhost:3000" // 开发默认
	}
	if cfg.DemoRoomCode == "" {
		cfg.DemoRoomCode = "DEMO01"
	}
	if cfg.DemoRoomName == "" {
		cfg.DemoRoomName = "Demo Room"
	}
	if cfg.RoomSyncSchedule == "" {
		cfg.RoomSyncSchedule = "@every 5m"
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	switch cfg.StorageDriver {
	case StorageMySQL, StorageMemory:
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q (want %s or %s)", cfg.StorageDriver, StorageMySQL, StorageMemory)
	}
	if err := domain.ValidateRoomCode(cfg.DemoRoomCode); err != nil {
		return nil, fmt.Errorf("invalid DEMO_ROOM_CODE: %w", err)
	}
	if cfg.MemorySeedUsers, err = parseSeedUsers(os.Getenv("MEMORY_SEED_USERS")); err != nil {
		return nil, err
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func envInt64(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("environment variable %s must be a positive integer, got %q", key, raw)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("environment variable %s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

// parseSeedUsers 解析 "id:username[:role]" 列表
func parseSeedUsers(raw string) ([]domain.User, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var users []domain.User
	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid MEMORY_SEED_USERS entry %q", item)
		}
		id, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid user id in MEMORY_SEED_USERS entry %q", item)
		}
		role := domain.RoleStudent
		if len(parts) == 3 && parts[2] != "" {
			role = parts[2]
		}
		users = append(users, domain.User{ID: uint(id), Username: parts[1], Role: role})
	}
	return users, nil
}
