package config

import (
	"fmt"
	"log"
	"time"

	"story-draft-server/shared/utils"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию Draft Service.
type Config struct {
	// Настройки сервера
	Port     string `envconfig:"DRAFT_SERVER_PORT" default:"8086"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Миграции
	RunMigrations  bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"file://shared/database/migrations"`

	// Настройки Redis (кэш черновиков + счетчики rate limiter'а)
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL      time.Duration `envconfig:"DRAFT_CACHE_TTL" default:"10m"`

	// Настройки RabbitMQ. Пустой URL отключает публикацию событий.
	RabbitMQURL string `envconfig:"RABBITMQ_URL" default:""`

	// Rate limiting на запись черновиков
	RateLimitRequests uint          `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"10s"`

	// Настройки JWT (для проверки токена пользователя в middleware)
	// Секретное поле БЕЗ envconfig тега
	JWTSecret string
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации draft-service: %w", err)
	}

	// Загружаем ОБЯЗАТЕЛЬНЫЕ секреты
	var loadErr error
	cfg.DBPassword, loadErr = utils.ReadSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.JWTSecret, loadErr = utils.ReadSecret("jwt_secret")
	if loadErr != nil {
		return nil, loadErr
	}

	log.Printf("Конфигурация Draft Service загружена (секреты из файлов):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  Redis Addr: %s", cfg.RedisAddr)
	log.Printf("  Cache TTL: %v", cfg.CacheTTL)
	if cfg.RabbitMQURL != "" {
		log.Printf("  RabbitMQ: enabled")
	} else {
		log.Printf("  RabbitMQ: disabled")
	}
	log.Printf("  Rate Limit: %d req / %v", cfg.RateLimitRequests, cfg.RateLimitWindow)
	log.Println("  JWT Secret: [ЗАГРУЖЕН]")

	return &cfg, nil
}
