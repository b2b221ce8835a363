package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 永続化先の種類
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config はアプリケーション設定を表す
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Auth     AuthConfig
	Trip     TripConfig
	Worker   WorkerConfig
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsToken string
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MigrationsPath string
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// AMQPConfig は予約確定イベントの送信先
// URL が空の場合は送信しない
type AMQPConfig struct {
	URL      string
	Exchange string
}

// AuthConfig は呼び出し元の認証設定
// JWTSecret が空の場合は X-User-ID ヘッダーを信頼する
type AuthConfig struct {
	JWTSecret string
}

// TripConfig は管理対象の運行
type TripConfig struct {
	ID          string
	Route       string
	TotalSeats  int
	DepartureAt time.Time
}

// WorkerConfig は保留中取引の整理ジョブ設定
type WorkerConfig struct {
	ReconcileInterval time.Duration
	PendingTimeout    time.Duration
}

// Load は環境変数から設定を読み込む
// カレントディレクトリに .env があれば先に読み込む（既存の環境変数は上書きしない）
func Load() *Config {
	// .env がなければ環境変数のみを使う
	_ = godotenv.Load()

	return &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			MetricsToken: getEnv("METRICS_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "bus_reservation"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			CacheTTL: getDurationEnv("REDIS_CACHE_TTL", 30*time.Second),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "reservations"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Trip: TripConfig{
			ID:          getEnv("TRIP_ID", "trip-001"),
			Route:       getEnv("TRIP_ROUTE", "Dhaka - Chittagong"),
			TotalSeats:  getIntEnv("TRIP_TOTAL_SEATS", 40),
			DepartureAt: getTimeEnv("TRIP_DEPARTURE_AT", time.Now().Add(24*time.Hour).Truncate(time.Hour)),
		},
		Worker: WorkerConfig{
			ReconcileInterval: getDurationEnv("RECONCILE_INTERVAL", 30*time.Second),
			PendingTimeout:    getDurationEnv("PENDING_TIMEOUT", 2*time.Minute),
		},
	}
}

// UsePostgres は PostgreSQL を永続化先に使うかを返す
func (c *DatabaseConfig) UsePostgres() bool {
	return c.Driver == StorePostgres
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getTimeEnv(key string, defaultValue time.Time) time.Time {
	if value := os.Getenv(key); value != "" {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t
		}
	}
	return defaultValue
}
