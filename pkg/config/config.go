package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Chat struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"chat"`

	Storage struct {
		Driver string `yaml:"driver"` // memory | redis | postgres | sqlite
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	MediaServer struct {
		Host     string        `yaml:"host"`
		Username string        `yaml:"username"`
		Password string        `yaml:"password"`
		Timeout  time.Duration `yaml:"timeout"`
		Retry    struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`
		CircuitBreaker struct {
			FailureThreshold int           `yaml:"failure_threshold"`
			OpenTimeout      time.Duration `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"media_server"`

	Locking struct {
		TTL         time.Duration `yaml:"ttl"`
		WaitTimeout time.Duration `yaml:"wait_timeout"`
	} `yaml:"locking"`

	Cache struct {
		StreamTTL time.Duration `yaml:"stream_ttl"`
	} `yaml:"cache"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint"`
		SamplingRate   float64 `yaml:"sampling_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Chat
	if c.Chat.PingInterval <= 0 {
		return fmt.Errorf("chat.ping_interval must be > 0")
	}
	if c.Chat.PongTimeout <= c.Chat.PingInterval {
		return fmt.Errorf("chat.pong_timeout must be greater than chat.ping_interval")
	}
	if c.Chat.MaxMessageSize < 0 {
		return fmt.Errorf("chat.max_message_size must be >= 0")
	}

	// Storage
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when storage.driver=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when storage.driver=redis")
		}
	case StoragePostgres, StorageSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must not be empty when storage.driver=%s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}

	// Media server
	if c.MediaServer.Host == "" {
		return fmt.Errorf("media_server.host must not be empty")
	}
	if c.MediaServer.Timeout <= 0 {
		return fmt.Errorf("media_server.timeout must be > 0")
	}
	if c.MediaServer.Retry.MaxAttempts < 1 {
		return fmt.Errorf("media_server.retry.max_attempts must be >= 1")
	}
	if c.MediaServer.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("media_server.circuit_breaker.failure_threshold must be >= 1")
	}
	if c.MediaServer.CircuitBreaker.OpenTimeout <= 0 {
		return fmt.Errorf("media_server.circuit_breaker.open_timeout must be > 0")
	}

	// Locking
	if c.Locking.TTL <= 0 {
		return fmt.Errorf("locking.ttl must be > 0")
	}
	if c.Locking.WaitTimeout <= 0 {
		return fmt.Errorf("locking.wait_timeout must be > 0")
	}

	if c.Cache.StreamTTL < 0 {
		return fmt.Errorf("cache.stream_ttl must be >= 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			return fmt.Errorf("tracing.sampling_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// fall back to defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Chat.PingInterval = 30 * time.Second
	cfg.Chat.PongTimeout = 60 * time.Second
	cfg.Chat.MaxMessageSize = 64 * 1024
	cfg.Chat.AllowedOrigins = []string{"*"}

	cfg.Storage.Driver = StorageMemory

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.MediaServer.Host = "http://localhost:8087"
	cfg.MediaServer.Timeout = 5 * time.Second
	cfg.MediaServer.Retry.MaxAttempts = 3
	cfg.MediaServer.Retry.InitialDelay = 200 * time.Millisecond
	cfg.MediaServer.Retry.MaxDelay = 2 * time.Second
	cfg.MediaServer.CircuitBreaker.FailureThreshold = 5
	cfg.MediaServer.CircuitBreaker.OpenTimeout = 30 * time.Second

	cfg.Locking.TTL = 10 * time.Second
	cfg.Locking.WaitTimeout = 5 * time.Second

	cfg.Cache.StreamTTL = 5 * time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SamplingRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("LIVESTREAM_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("LIVESTREAM_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if driver := os.Getenv("LIVESTREAM_STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if dsn := os.Getenv("LIVESTREAM_STORAGE_DSN"); dsn != "" {
		c.Storage.DSN = dsn
	}
	if addr := os.Getenv("LIVESTREAM_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if pw := os.Getenv("LIVESTREAM_REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if host := os.Getenv("LIVESTREAM_MEDIA_HOST"); host != "" {
		c.MediaServer.Host = host
	}
	if user := os.Getenv("LIVESTREAM_MEDIA_USERNAME"); user != "" {
		c.MediaServer.Username = user
	}
	if pw := os.Getenv("LIVESTREAM_MEDIA_PASSWORD"); pw != "" {
		c.MediaServer.Password = pw
	}
	if v := os.Getenv("LIVESTREAM_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
}
