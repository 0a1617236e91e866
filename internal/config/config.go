package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorePostgres = "postgres"
	StoreMySQL    = "mysql"
	StoreMemory   = "memory"
)

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LogLevel        string        `yaml:"log_level"`
}

type KafkaConfig struct {
	Enabled           bool   `yaml:"enabled"`
	BrokerURL         string `yaml:"broker_url"`
	LedgerEventsTopic string `yaml:"ledger_events_topic"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	BatchSize    int           `yaml:"batch_size"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
}

type LedgerConfig struct {
	CurrencyScale        int32 `yaml:"currency_scale"`
	CredentialMinLength  int   `yaml:"credential_min_length"`
	CredentialDigitsOnly bool  `yaml:"credential_digits_only"`
	BcryptCost           int   `yaml:"bcrypt_cost"`
}

type Config struct {
	Store              string   `yaml:"store"`
	HTTPPort           int      `yaml:"http_port"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	LogLevel           string   `yaml:"log_level"`
	MigrationsPath     string   `yaml:"migrations_path"`
	// AdminToken guards POST /accounts. Empty disables HTTP provisioning.
	AdminToken string `yaml:"admin_token"`

	DBConnectRetries int           `yaml:"db_connect_retries"`
	DBRetryDelay     time.Duration `yaml:"db_retry_delay"`

	Postgres   PostgresConfig   `yaml:"postgres"`
	MySQL      MySQLConfig      `yaml:"mysql"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Ledger     LedgerConfig     `yaml:"ledger"`
}

func defaults() *Config {
	return &Config{
		Store:              StorePostgres,
		HTTPPort:           8082,
		CORSAllowedOrigins: []string{"*"},
		LogLevel:           "info",
		MigrationsPath:     "file:///app/migrations",
		DBConnectRetries:   10,
		DBRetryDelay:       5 * time.Second,
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "password",
			Name:     "ledger_db",
			SSLMode:  "disable",
		},
		MySQL: MySQLConfig{
			Host:            "localhost",
			Port:            3306,
			User:            "root",
			Password:        "password",
			Name:            "ledger",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			LogLevel:        "error",
		},
		Kafka: KafkaConfig{
			Enabled:           true,
			BrokerURL:         "localhost:9092",
			LedgerEventsTopic: "ledger_events",
		},
		Outbox: OutboxConfig{
			PollInterval: 1 * time.Second,
			PollTimeout:  500 * time.Millisecond,
			BatchSize:    10,
		},
		Reconciler: ReconcilerConfig{
			Interval:   1 * time.Minute,
			StaleAfter: 5 * time.Minute,
			BatchSize:  100,
		},
		Ledger: LedgerConfig{
			CurrencyScale:        2,
			CredentialMinLength:  6,
			CredentialDigitsOnly: true,
			BcryptCost:           10,
		},
	}
}

// LoadConfig layers defaults, the YAML file named by LEDGER_CONFIG_FILE (if
// any) and environment variables, in that order, then validates the result.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := getEnvOrDefault("LEDGER_CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Store = getEnvOrDefault("LEDGER_STORE", c.Store)
	c.HTTPPort = getEnvAsInt("LEDGER_HTTP_PORT", c.HTTPPort)
	c.CORSAllowedOrigins = getEnvAsSlice("LEDGER_CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.LogLevel = getEnvOrDefault("LEDGER_LOG_LEVEL", c.LogLevel)
	c.MigrationsPath = getEnvOrDefault("LEDGER_MIGRATIONS_PATH", c.MigrationsPath)
	c.AdminToken = getEnvOrDefault("LEDGER_ADMIN_TOKEN", c.AdminToken)
	c.DBConnectRetries = getEnvAsInt("LEDGER_DB_CONNECT_RETRIES", c.DBConnectRetries)
	c.DBRetryDelay = getEnvAsDuration("LEDGER_DB_RETRY_DELAY", c.DBRetryDelay)

	c.Postgres.Host = getEnvOrDefault("LEDGER_DB_HOST", c.Postgres.Host)
	c.Postgres.Port = getEnvAsInt("LEDGER_DB_PORT", c.Postgres.Port)
	c.Postgres.User = getEnvOrDefault("LEDGER_DB_USER", c.Postgres.User)
	c.Postgres.Password = getEnvOrDefault("LEDGER_DB_PASSWORD", c.Postgres.Password)
	c.Postgres.Name = getEnvOrDefault("LEDGER_DB_NAME", c.Postgres.Name)
	c.Postgres.SSLMode = getEnvOrDefault("LEDGER_DB_SSLMODE", c.Postgres.SSLMode)

	c.MySQL.Host = getEnvOrDefault("LEDGER_MYSQL_HOST", c.MySQL.Host)
	c.MySQL.Port = getEnvAsInt("LEDGER_MYSQL_PORT", c.MySQL.Port)
	c.MySQL.User = getEnvOrDefault("LEDGER_MYSQL_USER", c.MySQL.User)
	c.MySQL.Password = getEnvOrDefault("LEDGER_MYSQL_PASSWORD", c.MySQL.Password)
	c.MySQL.Name = getEnvOrDefault("LEDGER_MYSQL_NAME", c.MySQL.Name)
	c.MySQL.MaxOpenConns = getEnvAsInt("LEDGER_MYSQL_MAX_OPEN_CONNS", c.MySQL.MaxOpenConns)
	c.MySQL.MaxIdleConns = getEnvAsInt("LEDGER_MYSQL_MAX_IDLE_CONNS", c.MySQL.MaxIdleConns)
	c.MySQL.ConnMaxLifetime = getEnvAsDuration("LEDGER_MYSQL_CONN_MAX_LIFETIME", c.MySQL.ConnMaxLifetime)
	c.MySQL.LogLevel = getEnvOrDefault("LEDGER_MYSQL_LOG_LEVEL", c.MySQL.LogLevel)

	c.Kafka.Enabled = getEnvAsBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.BrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", c.Kafka.BrokerURL)
	c.Kafka.LedgerEventsTopic = getEnvOrDefault("KAFKA_LEDGER_EVENTS_TOPIC", c.Kafka.LedgerEventsTopic)

	c.Outbox.PollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", c.Outbox.PollInterval)
	c.Outbox.PollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", c.Outbox.PollTimeout)
	c.Outbox.BatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", c.Outbox.BatchSize)

	c.Reconciler.Interval = getEnvAsDuration("RECONCILER_INTERVAL", c.Reconciler.Interval)
	c.Reconciler.StaleAfter = getEnvAsDuration("RECONCILER_STALE_AFTER", c.Reconciler.StaleAfter)
	c.Reconciler.BatchSize = getEnvAsInt("RECONCILER_BATCH_SIZE", c.Reconciler.BatchSize)

	c.Ledger.CurrencyScale = int32(getEnvAsInt("LEDGER_CURRENCY_SCALE", int(c.Ledger.CurrencyScale)))
	c.Ledger.CredentialMinLength = getEnvAsInt("LEDGER_CREDENTIAL_MIN_LENGTH", c.Ledger.CredentialMinLength)
	c.Ledger.CredentialDigitsOnly = getEnvAsBool("LEDGER_CREDENTIAL_DIGITS_ONLY", c.Ledger.CredentialDigitsOnly)
	c.Ledger.BcryptCost = getEnvAsInt("LEDGER_BCRYPT_COST", c.Ledger.BcryptCost)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StorePostgres, StoreMySQL, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store must be one of postgres, mysql, memory; got %q", c.Store))
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http port %d out of range", c.HTTPPort))
	}
	if c.DBConnectRetries < 1 {
		errs = append(errs, errors.New("db connect retries must be at least 1"))
	}
	if c.Kafka.Enabled && (c.Kafka.BrokerURL == "" || c.Kafka.LedgerEventsTopic == "") {
		errs = append(errs, errors.New("kafka broker url and topic are required when kafka is enabled"))
	}
	if c.Outbox.PollInterval <= 0 || c.Outbox.PollTimeout <= 0 || c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("outbox poll interval, timeout and batch size must be positive"))
	}
	if c.Reconciler.Interval <= 0 || c.Reconciler.StaleAfter <= 0 || c.Reconciler.BatchSize <= 0 {
		errs = append(errs, errors.New("reconciler interval, stale threshold and batch size must be positive"))
	}
	if c.Ledger.CurrencyScale < 0 || c.Ledger.CurrencyScale > 8 {
		errs = append(errs, fmt.Errorf("currency scale %d out of range 0..8", c.Ledger.CurrencyScale))
	}
	if c.Ledger.CredentialMinLength < 1 || c.Ledger.CredentialMinLength > 72 {
		errs = append(errs, fmt.Errorf("credential min length %d out of range 1..72", c.Ledger.CredentialMinLength))
	}
	if c.Ledger.BcryptCost < 4 || c.Ledger.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("bcrypt cost %d out of range 4..31", c.Ledger.BcryptCost))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.Kafka.BrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvOrDefault(key, strconv.FormatBool(defaultValue))
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
