package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendCouchDB  = "couchdb"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Push providers.
const (
	ProviderFCM  = "fcm"
	ProviderMQTT = "mqtt"
	ProviderLog  = "log"
)

// Config holds all configuration for the service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	CouchDB  CouchDBConfig  `yaml:"couchdb"`
	Database DatabaseConfig `yaml:"database"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Redis    RedisConfig    `yaml:"redis"`
	Push     PushConfig     `yaml:"push"`
	DID      DIDConfig      `yaml:"did"`
	Registry RegistryConfig `yaml:"registry"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StoreConfig selects the document store backing the device registry.
type StoreConfig struct {
	Backend string        `yaml:"backend"`
	Timeout time.Duration `yaml:"timeout"`
}

// CouchDBConfig holds CouchDB configuration.
type CouchDBConfig struct {
	Protocol           string `yaml:"protocol"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Database           string `yaml:"database"`
	RejectUnauthorized bool   `yaml:"reject_unauthorized"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SQLiteConfig holds the embedded store configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
}

// PushConfig holds push delivery configuration.
type PushConfig struct {
	Provider        string        `yaml:"provider"`
	CredentialsPath string        `yaml:"credentials_path"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	MaxInflight     int           `yaml:"max_inflight"`
	Async           bool          `yaml:"async"`
	MQTT            MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig holds the MQTT wake-up broker configuration.
type MQTTConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// DIDConfig holds DID resolution configuration.
type DIDConfig struct {
	ServerURL     string        `yaml:"server_url"`
	CacheDuration time.Duration `yaml:"cache_duration"`
	Timeout       time.Duration `yaml:"timeout"`
}

// RegistryConfig bounds the optimistic-concurrency retry loop.
type RegistryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
}

// MetricsConfig holds InfluxDB relay metrics configuration.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	// TrustedProxies lists the proxy addresses or CIDRs whose
	// X-Forwarded-For header is believed. Empty trusts none.
	TrustedProxies   []string `yaml:"trusted_proxies"`
	RateLimitEnabled bool     `yaml:"rate_limit_enabled"`
	RateLimitRPS     int      `yaml:"rate_limit_rps"`
	RateLimitBurst   int      `yaml:"rate_limit_burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5011,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Store: StoreConfig{
			Backend: BackendCouchDB,
			Timeout: 10 * time.Second,
		},
		CouchDB: CouchDBConfig{
			Protocol:           "http",
			Host:               "localhost",
			Port:               5984,
			User:               "admin",
			Database:           "notification_device_lookup",
			RejectUnauthorized: true,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "notification",
			Database:        "notification_service",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "./data/devices.db",
		},
		Redis: RedisConfig{
			Enabled:      true,
			Host:         "localhost",
			Port:         6379,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Push: PushConfig{
			Provider:        ProviderFCM,
			SendTimeout:     10 * time.Second,
			DispatchTimeout: 30 * time.Second,
			MaxConcurrency:  16,
			MaxInflight:     1024,
			Async:           true,
			MQTT: MQTTConfig{
				BrokerURL:   "tcp://localhost:1883",
				ClientID:    "notification-server",
				TopicPrefix: "notification/wake",
				QoS:         1,
			},
		},
		DID: DIDConfig{
			CacheDuration: 300 * time.Second,
			Timeout:       10 * time.Second,
		},
		Registry: RegistryConfig{
			MaxAttempts: 5,
			BaseBackoff: 20 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Bucket:        "notifications",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Environment: "development",
		},
		Security: SecurityConfig{
			AllowedOrigins:   []string{"*"},
			RateLimitEnabled: true,
			RateLimitRPS:     50,
			RateLimitBurst:   100,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence (env wins).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)

	cfg.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.Timeout = getEnvDuration("STORE_TIMEOUT", cfg.Store.Timeout)

	cfg.CouchDB.Protocol = getEnv("DB_PROTOCOL", cfg.CouchDB.Protocol)
	cfg.CouchDB.Host = getEnv("DB_HOST", cfg.CouchDB.Host)
	cfg.CouchDB.Port = getEnvInt("DB_PORT", cfg.CouchDB.Port)
	cfg.CouchDB.User = getEnv("DB_USER", cfg.CouchDB.User)
	cfg.CouchDB.Password = getEnv("DB_PASS", cfg.CouchDB.Password)
	cfg.CouchDB.Database = getEnv("DB_DEVICE_LOOKUP", cfg.CouchDB.Database)
	cfg.CouchDB.RejectUnauthorized = getEnvBool("DB_REJECT_UNAUTHORIZED_SSL", cfg.CouchDB.RejectUnauthorized)

	cfg.Database.Host = getEnv("PG_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("PG_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("PG_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("PG_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("PG_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("PG_SSL_MODE", cfg.Database.SSLMode)
	cfg.Database.MaxOpenConns = getEnvInt("PG_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("PG_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("PG_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)

	cfg.SQLite.Path = getEnv("SQLITE_PATH", cfg.SQLite.Path)

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnvInt("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize)
	cfg.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", cfg.Redis.MinIdleConns)

	cfg.Push.Provider = strings.ToLower(getEnv("PUSH_PROVIDER", cfg.Push.Provider))
	cfg.Push.CredentialsPath = getEnv("FB_CREDS_PATH", cfg.Push.CredentialsPath)
	cfg.Push.SendTimeout = getEnvDuration("PUSH_SEND_TIMEOUT", cfg.Push.SendTimeout)
	cfg.Push.DispatchTimeout = getEnvDuration("PUSH_DISPATCH_TIMEOUT", cfg.Push.DispatchTimeout)
	cfg.Push.MaxConcurrency = getEnvInt("PUSH_MAX_CONCURRENCY", cfg.Push.MaxConcurrency)
	cfg.Push.MaxInflight = getEnvInt("PUSH_MAX_INFLIGHT", cfg.Push.MaxInflight)
	cfg.Push.Async = getEnvBool("PUSH_ASYNC", cfg.Push.Async)
	cfg.Push.MQTT.BrokerURL = getEnv("MQTT_BROKER_URL", cfg.Push.MQTT.BrokerURL)
	cfg.Push.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", cfg.Push.MQTT.ClientID)
	cfg.Push.MQTT.Username = getEnv("MQTT_USERNAME", cfg.Push.MQTT.Username)
	cfg.Push.MQTT.Password = getEnv("MQTT_PASSWORD", cfg.Push.MQTT.Password)
	cfg.Push.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", cfg.Push.MQTT.TopicPrefix)

	cfg.DID.ServerURL = getEnv("DID_SERVER_URL", cfg.DID.ServerURL)
	cfg.DID.CacheDuration = getEnvSeconds("DID_CACHE_DURATION", cfg.DID.CacheDuration)
	cfg.DID.Timeout = getEnvDuration("DID_TIMEOUT", cfg.DID.Timeout)

	cfg.Registry.MaxAttempts = getEnvInt("REGISTRY_MAX_ATTEMPTS", cfg.Registry.MaxAttempts)
	cfg.Registry.BaseBackoff = getEnvDuration("REGISTRY_BASE_BACKOFF", cfg.Registry.BaseBackoff)

	cfg.Metrics.Enabled = getEnvBool("INFLUXDB_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.URL = getEnv("INFLUXDB_URL", cfg.Metrics.URL)
	cfg.Metrics.Token = getEnv("INFLUXDB_TOKEN", cfg.Metrics.Token)
	cfg.Metrics.Org = getEnv("INFLUXDB_ORG", cfg.Metrics.Org)
	cfg.Metrics.Bucket = getEnv("INFLUXDB_BUCKET", cfg.Metrics.Bucket)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Environment = getEnv("ENVIRONMENT", cfg.Logging.Environment)

	cfg.Security.AllowedOrigins = getEnvSlice("ALLOWED_ORIGINS", cfg.Security.AllowedOrigins)
	cfg.Security.TrustedProxies = getEnvSlice("TRUSTED_PROXIES", cfg.Security.TrustedProxies)
	cfg.Security.RateLimitEnabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.Security.RateLimitEnabled)
	cfg.Security.RateLimitRPS = getEnvInt("RATE_LIMIT_RPS", cfg.Security.RateLimitRPS)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", cfg.Security.RateLimitBurst)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendCouchDB, BackendPostgres, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Push.Provider {
	case ProviderFCM, ProviderMQTT, ProviderLog:
	default:
		return fmt.Errorf("unknown push provider %q", c.Push.Provider)
	}

	if c.Store.Backend == BackendCouchDB && c.CouchDB.Database == "" {
		return fmt.Errorf("couchdb database name is required")
	}
	if c.Push.Provider == ProviderFCM && c.Push.CredentialsPath == "" {
		return fmt.Errorf("push credentials path is required for provider %q", ProviderFCM)
	}
	if c.Registry.MaxAttempts < 1 {
		return fmt.Errorf("registry max attempts must be at least 1, got %d", c.Registry.MaxAttempts)
	}
	if c.Push.MaxConcurrency < 1 {
		return fmt.Errorf("push max concurrency must be at least 1, got %d", c.Push.MaxConcurrency)
	}
	if c.Push.Async && c.Push.MaxInflight < 1 {
		return fmt.Errorf("push max inflight must be at least 1, got %d", c.Push.MaxInflight)
	}
	if c.Push.SendTimeout <= 0 {
		return fmt.Errorf("push send timeout must be positive")
	}
	for _, p := range c.Security.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("trusted proxy %q is neither an IP nor a CIDR", p)
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// DSN returns the CouchDB server URL including credentials.
func (c *CouchDBConfig) DSN() string {
	u := url.URL{
		Scheme: c.Protocol,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// Addr returns the Redis host:port pair.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvSeconds accepts either a bare number of seconds or a Go duration.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
