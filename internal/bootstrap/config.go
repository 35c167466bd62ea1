package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/service"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	ServerPort        string
	AppEnv            string // development/production
	LogLevel          string
	CORSAllowedOrigin string

	RedisAddr     string // 为空时不启用限流和 asynq
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	RateLimitMax    int
	RateLimitWindow time.Duration

	HistoryCapacity   int
	RoomIdleTTL       time.Duration // 0 表示不回收
	RoomSweepSchedule string

	RejectionNotices  bool
	WSMaxMessageSize  int64
	WSEventsPerSecond int
	ChatMaxLength     int
}

// RedisEnabled 是否配置了 Redis
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// LoadConfig 从环境变量加载配置，.env 文件 (如果存在) 会先被加载
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg := &Config{
		ServerPort:        envString("SERVER_PORT", "5000"),
		AppEnv:            envString("APP_ENV", "development"),
		LogLevel:          envString("LOG_LEVEL", "info"),
		CORSAllowedOrigin: envString("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:         envString("REDIS_KEY_PREFIX", "ts:"),
		RoomSweepSchedule: envString("ROOM_SWEEP_SCHEDULE", "@every 5m"),
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Second); err != nil {
		return nil, err
	}
	if cfg.HistoryCapacity, err = envInt("HISTORY_CAPACITY", domain.DefaultHistoryCapacity); err != nil {
		return nil, err
	}
	if cfg.RoomIdleTTL, err = envDuration("ROOM_IDLE_TTL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RejectionNotices, err = envBool("REJECTION_NOTICES", true); err != nil {
		return nil, err
	}
	maxMessageSize, err := envInt("WS_MAX_MESSAGE_SIZE", 64*1024)
	if err != nil {
		return nil, err
	}
	cfg.WSMaxMessageSize = int64(maxMessageSize)
	if cfg.WSEventsPerSecond, err = envInt("WS_EVENTS_PER_SECOND", 50); err != nil {
		return nil, err
	}
	if cfg.ChatMaxLength, err = envInt("CHAT_MAX_LENGTH", service.DefaultChatMaxLength); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.RateLimitMax <= 0:
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	case c.RateLimitWindow <= 0:
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	case c.HistoryCapacity <= 0:
		return fmt.Errorf("HISTORY_CAPACITY must be positive, got %d", c.HistoryCapacity)
	case c.RoomIdleTTL < 0:
		return fmt.Errorf("ROOM_IDLE_TTL must not be negative, got %s", c.RoomIdleTTL)
	case c.WSMaxMessageSize <= 0:
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be positive, got %d", c.WSMaxMessageSize)
	case c.ChatMaxLength <= 0:
		return fmt.Errorf("CHAT_MAX_LENGTH must be positive, got %d", c.ChatMaxLength)
	}
	// 没有 Redis 时用本地 ticker，只支持 "@every <duration>"
	if !c.RedisEnabled() && c.RoomIdleTTL > 0 {
		if _, err := sweepInterval(c.RoomSweepSchedule); err != nil {
			return err
		}
	}
	return nil
}

// sweepInterval 解析 "@every <duration>" 形式的计划
func sweepInterval(schedule string) (time.Duration, error) {
	const prefix = "@every "
	if !strings.HasPrefix(schedule, prefix) {
		return 0, fmt.Errorf("ROOM_SWEEP_SCHEDULE %q: only '@every <duration>' is supported without Redis", schedule)
	}
	d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(schedule, prefix)))
	if err != nil {
		return 0, fmt.Errorf("ROOM_SWEEP_SCHEDULE %q: %w", schedule, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("ROOM_SWEEP_SCHEDULE %q: interval must be positive", schedule)
	}
	return d, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
