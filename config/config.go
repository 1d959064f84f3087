package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	RedisAddr    string
	JWTSecretKey string
	ServerPort   int

	// Пул соединений с БД.
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Параметры жизненного цикла броней.
	ConfirmationWindow  time.Duration
	DailyReservationCap int

	// Периодичность фоновых задач.
	ReservationExpiryInterval time.Duration
	SlotPruningInterval       time.Duration
	MatchAutoCancelInterval   time.Duration
	MatchAutoConfirmInterval  time.Duration
	MatchRebalanceInterval    time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	dbMaxOpen, err := intEnv("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}
	dbMaxIdle, err := intEnv("DB_MAX_IDLE_CONNS", dbMaxOpen)
	if err != nil {
		return nil, err
	}
	dbConnLifetime, err := durationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	confirmationWindow, err := durationEnv("RESERVATION_CONFIRMATION_WINDOW", 2*time.Hour)
	if err != nil {
		return nil, err
	}
	dailyCap, err := intEnv("RESERVATION_DAILY_CAP", 3)
	if err != nil {
		return nil, err
	}

	expiryInterval, err := durationEnv("SCHEDULER_RESERVATION_EXPIRY_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	pruningInterval, err := durationEnv("SCHEDULER_SLOT_PRUNING_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	autoCancelInterval, err := durationEnv("SCHEDULER_MATCH_AUTO_CANCEL_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	autoConfirmInterval, err := durationEnv("SCHEDULER_MATCH_AUTO_CONFIRM_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	rebalanceInterval, err := durationEnv("SCHEDULER_MATCH_REBALANCE_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:               dbURL,
		RedisAddr:                 redisAddr,
		JWTSecretKey:              jwtKey,
		ServerPort:                port,
		DBMaxOpenConns:            dbMaxOpen,
		DBMaxIdleConns:            dbMaxIdle,
		DBConnMaxLifetime:         dbConnLifetime,
		ConfirmationWindow:        confirmationWindow,
		DailyReservationCap:       dailyCap,
		ReservationExpiryInterval: expiryInterval,
		SlotPruningInterval:       pruningInterval,
		MatchAutoCancelInterval:   autoCancelInterval,
		MatchAutoConfirmInterval:  autoConfirmInterval,
		MatchRebalanceInterval:    rebalanceInterval,
	}

	return cfg, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return value, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return value, nil
}
