package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"fieldtrial/internal/errors"

	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config represents the complete application configuration
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Redis  RedisConfig  `yaml:"redis"`
	Stats  StatsConfig  `yaml:"stats"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// StoreConfig selects and addresses the document store
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	DatabaseURL   string `yaml:"database_url"`
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// RedisConfig enables the shared variable cache when Addr is set
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	Namespace string        `yaml:"namespace"`
}

// StatsConfig holds statistics run settings
type StatsConfig struct {
	AccumulatorCapacity int           `yaml:"accumulator_capacity"`
	Timeout             time.Duration `yaml:"timeout"`
	BatchConcurrency    int           `yaml:"batch_concurrency"`
	LockDir             string        `yaml:"lock_dir"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port string `yaml:"port"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `yaml:"level"`
	Mode  string `yaml:"mode"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:        DriverSQLite,
			SQLitePath:    "fieldtrial.db",
			MongoDatabase: "fieldtrial",
		},
		Redis: RedisConfig{
			TTL:       10 * time.Minute,
			Namespace: "fieldtrial",
		},
		Stats: StatsConfig{
			AccumulatorCapacity: 100000,
			Timeout:             5 * time.Minute,
			BatchConcurrency:    4,
		},
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "INFO", Mode: "dev"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path and the
// environment, in that order of increasing precedence, and validates it
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, errors.Wrap(err, "failed to load configuration file")
		}
	}

	if err := loadEnv(config); err != nil {
		return nil, errors.Wrap(err, "failed to load environment configuration")
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadFile(path string, config *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("%s: %v", path, err))
	}
	return nil
}

func loadEnv(config *Config) error {
	config.Store.Driver = getEnvOrDefault("STORE_DRIVER", config.Store.Driver)
	config.Store.DatabaseURL = getEnvOrDefault("DATABASE_URL", config.Store.DatabaseURL)
	config.Store.SQLitePath = getEnvOrDefault("SQLITE_PATH", config.Store.SQLitePath)
	config.Store.MongoURI = getEnvOrDefault("MONGO_URI", config.Store.MongoURI)
	config.Store.MongoDatabase = getEnvOrDefault("MONGO_DATABASE", config.Store.MongoDatabase)

	config.Redis.Addr = getEnvOrDefault("REDIS_ADDR", config.Redis.Addr)
	config.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", config.Redis.Password)
	config.Redis.DB = getEnvIntOrDefault("REDIS_DB", config.Redis.DB)

	var err error
	if config.Redis.TTL, err = getEnvDurationOrDefault("REDIS_TTL", config.Redis.TTL); err != nil {
		return err
	}
	if config.Stats.Timeout, err = getEnvDurationOrDefault("STATS_TIMEOUT", config.Stats.Timeout); err != nil {
		return err
	}
	config.Stats.AccumulatorCapacity = getEnvIntOrDefault("ACCUMULATOR_CAPACITY", config.Stats.AccumulatorCapacity)
	config.Stats.BatchConcurrency = getEnvIntOrDefault("BATCH_CONCURRENCY", config.Stats.BatchConcurrency)
	config.Stats.LockDir = getEnvOrDefault("LOCK_DIR", config.Stats.LockDir)

	config.Server.Port = getEnvOrDefault("PORT", config.Server.Port)
	config.Log.Level = getEnvOrDefault("LOG_LEVEL", config.Log.Level)
	config.Log.Mode = getEnvOrDefault("LOG_MODE", config.Log.Mode)
	return nil
}

func validateConfig(config *Config) error {
	switch config.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if config.Store.SQLitePath == "" {
			return errors.ConfigInvalid("SQLITE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if config.Store.DatabaseURL == "" {
			return errors.ConfigInvalid("DATABASE_URL is required for the postgres store")
		}
	case DriverMongo:
		if config.Store.MongoURI == "" || config.Store.MongoDatabase == "" {
			return errors.ConfigInvalid("MONGO_URI and MONGO_DATABASE are required for the mongo store")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown STORE_DRIVER %q", config.Store.Driver))
	}
	if config.Stats.AccumulatorCapacity <= 0 {
		return errors.ConfigInvalid("ACCUMULATOR_CAPACITY must be positive")
	}
	if config.Stats.BatchConcurrency <= 0 {
		return errors.ConfigInvalid("BATCH_CONCURRENCY must be positive")
	}
	if config.Stats.Timeout < 0 {
		return errors.ConfigInvalid("STATS_TIMEOUT must not be negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s: %v", key, err))
	}
	return d, nil
}
