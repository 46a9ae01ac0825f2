package config

import (
	"errors"
	"os"
	"strconv"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port        string
	DatabaseDSN string
	JWTSecret   string
	Env         string
	LogLevel    string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	PresenceTTLSeconds int

	LowStockThreshold int
	MaxMessageLength  int

	WSIdleTimeoutSeconds int
	WSSendBuffer         int
	WSEventsPerSecond    int
	WSEventBurst         int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getint 读取整数环境变量，非法或非正数时回退到默认值。
func getint(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	// REDIS_DB 允许为 0，单独解析。
	redisDB, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		redisDB = 0
	}
	// 库存阈值允许为 0（关闭低库存告警），同样单独解析。
	lowStock, err := strconv.Atoi(getenv("LOW_STOCK_THRESHOLD", "10"))
	if err != nil || lowStock < 0 {
		lowStock = 10
	}
	return Config{
		Port:                 getenv("APP_PORT", "8080"),
		DatabaseDSN:          getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=store port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:            getenv("JWT_SECRET", defaultJWTSecret),
		Env:                  getenv("APP_ENV", "dev"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		RedisAddr:            getenv("REDIS_ADDR", ""),
		RedisPassword:        getenv("REDIS_PASSWORD", ""),
		RedisDB:              redisDB,
		PresenceTTLSeconds:   getint("PRESENCE_TTL_SECONDS", 120),
		LowStockThreshold:    lowStock,
		MaxMessageLength:     getint("MAX_MESSAGE_LENGTH", 4000),
		WSIdleTimeoutSeconds: getint("WS_IDLE_TIMEOUT_SECONDS", 60),
		WSSendBuffer:         getint("WS_SEND_BUFFER", 256),
		WSEventsPerSecond:    getint("WS_EVENTS_PER_SECOND", 20),
		WSEventBurst:         getint("WS_EVENT_BURST", 40),
	}
}

// Validate 检查启动所需的关键配置，非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be changed outside dev")
	}
	if cfg.WSIdleTimeoutSeconds <= 0 || cfg.WSSendBuffer <= 0 {
		return errors.New("websocket settings must be positive")
	}
	return nil
}
