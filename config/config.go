package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Eursukkul/showpass/internal/pricing"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	ServerPort string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// RabbitURL is optional; messaging is disabled when it is empty.
	RabbitURL     string
	StorageDriver string
	SigningKeyDir string

	PaymentAuthorityURL string
	PaymentTimeout      time.Duration
	ReservationTTL      time.Duration
	SweepInterval       time.Duration

	LogLevel  string
	LogFormat string

	Policy pricing.Policy
}

// Load reads an optional .env file (envFile, or ./.env when empty) and
// then the process environment. Variables already set in the environment
// win over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
		logrus.WithField("file", envFile).Debug("no env file, using process environment")
	}

	cfg := &Config{
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "postgres"),
		DBPassword:          getEnv("DB_PASSWORD", "postgres"),
		DBName:              getEnv("DB_NAME", "showpass"),
		DBSSLMode:           getEnv("DB_SSLMODE", "disable"),
		RabbitURL:           getEnv("RABBITMQ_URL", ""),
		StorageDriver:       strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres)),
		SigningKeyDir:       getEnv("SIGNING_KEY_DIR", "./keys"),
		PaymentAuthorityURL: getEnv("PAYMENT_AUTHORITY_URL", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		Policy:              pricing.DefaultPolicy(),
	}

	var err error
	if cfg.PaymentTimeout, err = getDuration("PAYMENT_TIMEOUT", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReservationTTL, err = getDuration("RESERVATION_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	switch cfg.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDriverPostgres, StorageDriverMemory, cfg.StorageDriver)
	}
	// the approve-everything authority is for local runs only
	if cfg.PaymentAuthorityURL == "" && cfg.StorageDriver != StorageDriverMemory {
		return nil, fmt.Errorf("PAYMENT_AUTHORITY_URL is required with STORAGE_DRIVER=%s", cfg.StorageDriver)
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// LoadPolicy overlays the YAML policy file at path on c.Policy. Keys
// missing from the file keep their defaults.
func (c *Config) LoadPolicy(path string) error {
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy %s: %w", path, err)
	}

	policy := c.Policy
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return fmt.Errorf("parse policy %s: %w", path, err)
	}

	switch {
	case policy.PlatformFeeBps < 0 || policy.VATBps < 0:
		return fmt.Errorf("policy %s: basis points must not be negative", path)
	case policy.MaxQuantity < 1:
		return fmt.Errorf("policy %s: max_quantity must be at least 1", path)
	case policy.Currency == "":
		return fmt.Errorf("policy %s: currency is required", path)
	}

	c.Policy = policy
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration such as 30s, got %q", key, v)
	}
	return d, nil
}
