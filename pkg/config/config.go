package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Address         string        `yaml:"address"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		WriteBuffer     int           `yaml:"write_buffer"`
		HubBuffer       int           `yaml:"hub_buffer"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"signal"`

	Ingest struct {
		Address         string        `yaml:"address"`
		Secret          string        `yaml:"secret"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"ingest"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Address   string `yaml:"address"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		PoolSize  int    `yaml:"pool_size"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		Issuer         string        `yaml:"issuer"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Chat struct {
		MaxContentLength int           `yaml:"max_content_length"`
		JoinMarkerTTL    time.Duration `yaml:"join_marker_ttl"`
		Placeholder      string        `yaml:"placeholder"`
		SettingsCacheTTL time.Duration `yaml:"settings_cache_ttl"`
		Bot              struct {
			ID    string `yaml:"id"`
			Name  string `yaml:"name"`
			Image string `yaml:"image"`
		} `yaml:"bot"`
	} `yaml:"chat"`

	Lifecycle struct {
		LockTTL       time.Duration `yaml:"lock_ttl"`
		SampleTimeout time.Duration `yaml:"sample_timeout"`
		Breaker       struct {
			FailureThreshold    int           `yaml:"failure_threshold"`
			SuccessThreshold    int           `yaml:"success_threshold"`
			Timeout             time.Duration `yaml:"timeout"`
			MaxRequestsHalfOpen int           `yaml:"max_requests_half_open"`
		} `yaml:"breaker"`
	} `yaml:"lifecycle"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxConcurrent       int     `yaml:"max_concurrent_connections"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
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

	// Signal
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.WriteBuffer <= 0 {
		return fmt.Errorf("signal.write_buffer must be > 0")
	}
	if c.Signal.HubBuffer <= 0 {
		return fmt.Errorf("signal.hub_buffer must be > 0")
	}
	if c.Signal.ShutdownTimeout <= 0 {
		return fmt.Errorf("signal.shutdown_timeout must be > 0")
	}

	// Ingest
	if c.Ingest.Address == "" {
		return fmt.Errorf("ingest.address must not be empty")
	}
	if c.Ingest.ShutdownTimeout <= 0 {
		return fmt.Errorf("ingest.shutdown_timeout must be > 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.MetricsPath == "" {
		return fmt.Errorf("monitoring.metrics_path must not be empty when prometheus_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}

	// Chat
	if c.Chat.MaxContentLength <= 0 {
		return fmt.Errorf("chat.max_content_length must be > 0")
	}
	if c.Chat.JoinMarkerTTL <= 0 {
		return fmt.Errorf("chat.join_marker_ttl must be > 0")
	}
	if c.Chat.SettingsCacheTTL <= 0 {
		return fmt.Errorf("chat.settings_cache_ttl must be > 0")
	}
	if c.Chat.Bot.ID == "" {
		return fmt.Errorf("chat.bot.id must not be empty")
	}

	// Lifecycle
	if c.Lifecycle.LockTTL <= 0 {
		return fmt.Errorf("lifecycle.lock_ttl must be > 0")
	}
	if c.Lifecycle.SampleTimeout <= 0 {
		return fmt.Errorf("lifecycle.sample_timeout must be > 0")
	}
	if c.Lifecycle.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("lifecycle.breaker.failure_threshold must be > 0")
	}
	if c.Lifecycle.Breaker.SuccessThreshold <= 0 {
		return fmt.Errorf("lifecycle.breaker.success_threshold must be > 0")
	}
	if c.Lifecycle.Breaker.Timeout <= 0 {
		return fmt.Errorf("lifecycle.breaker.timeout must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error
	if configPath != "" {
		data, err = os.ReadFile(configPath)
	}
	switch {
	case configPath == "", os.IsNotExist(err):
		// fall back to defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Find returns the first of paths that exists, or "" when none does.
func Find(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Address = ":8081"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.WriteBuffer = 64
	cfg.Signal.HubBuffer = 256
	cfg.Signal.ShutdownTimeout = 30 * time.Second

	cfg.Ingest.Address = ":8082"
	cfg.Ingest.ShutdownTimeout = 10 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Chat.MaxContentLength = 500
	cfg.Chat.JoinMarkerTTL = 8 * time.Hour
	cfg.Chat.Placeholder = "This message was deleted by a moderator."
	cfg.Chat.SettingsCacheTTL = 5 * time.Second
	cfg.Chat.Bot.ID = "castline-bot"
	cfg.Chat.Bot.Name = "Castline"

	cfg.Lifecycle.LockTTL = 10 * time.Second
	cfg.Lifecycle.SampleTimeout = 250 * time.Millisecond
	cfg.Lifecycle.Breaker.FailureThreshold = 5
	cfg.Lifecycle.Breaker.SuccessThreshold = 2
	cfg.Lifecycle.Breaker.Timeout = 30 * time.Second
	cfg.Lifecycle.Breaker.MaxRequestsHalfOpen = 3

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 16 * 1024

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "castline"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	if addr := os.Getenv("CASTLINE_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("CASTLINE_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if addr := os.Getenv("CASTLINE_INGEST_ADDRESS"); addr != "" {
		c.Ingest.Address = addr
	}
	if secret := os.Getenv("CASTLINE_INGEST_SECRET"); secret != "" {
		c.Ingest.Secret = secret
	}
	if level := os.Getenv("CASTLINE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("CASTLINE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("CASTLINE_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if pw := os.Getenv("CASTLINE_REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if prefix := os.Getenv("CASTLINE_REDIS_KEY_PREFIX"); prefix != "" {
		c.Redis.KeyPrefix = prefix
	}
	if v := os.Getenv("CASTLINE_REDIS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CASTLINE_REDIS_ENABLED: %w", err)
		}
		c.Redis.Enabled = enabled
	}
	return nil
}
