package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN         string `mapstructure:"DB_DSN"`
	Environment   string `mapstructure:"ENV"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`
	ReminderInterval time.Duration `mapstructure:"REMINDER_INTERVAL"`
	CleanupInterval  time.Duration `mapstructure:"CLEANUP_INTERVAL"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Читаем напрямую из переменных окружения (после godotenv.Load они там)
	cfg := &Config{
		DBDSN:         os.Getenv("DB_DSN"),
		Environment:   os.Getenv("ENV"),
		MigrationsDir: os.Getenv("MIGRATIONS_DIR"),
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}

	var err error
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReminderInterval, err = durationEnv("REMINDER_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = durationEnv("CLEANUP_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	return cfg, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive, got %q", key, raw)
	}
	return d, nil
}
