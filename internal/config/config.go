package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
	Hub       *HubConfig       `json:"hub"`
}

// DatabaseConfig locates the sqlite message store.
type DatabaseConfig struct {
	Path           string `json:"path"`
	MaxConnections int    `json:"max_connections"`
	// MigrationsPath replaces the embedded migrations when set.
	MigrationsPath string `json:"migrations_path"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Port            int           `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
	MaxFrameSize int64         `json:"max_frame_size"`
}

// AuthConfig enables signed handshake tokens. An empty secret selects the
// development handshake that trusts user_id and role query parameters.
type AuthConfig struct {
	Secret string `json:"-"`
	Issuer string `json:"issuer"`
}

// HubConfig tunes the realtime hub and its maintenance loop.
type HubConfig struct {
	HealthInterval  time.Duration `json:"health_interval"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	HistoryLimit    int           `json:"history_limit"`
	RateLimit       int           `json:"rate_limit"`
	MemoryLimitMB   uint64        `json:"memory_limit_mb"`
}

// Addr returns the listen address for the HTTP server.
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// Database on local filesystem, HTTP on standard port, WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/classbridge.db",
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
			MaxFrameSize: 128 * 1024,
		},
		Auth: &AuthConfig{
			Issuer: "classbridge",
		},
		Hub: &HubConfig{
			HealthInterval:  time.Minute,
			CleanupInterval: time.Minute,
			HistoryLimit:    0,
			RateLimit:       100,
			MemoryLimitMB:   512,
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	// Pongs must be able to arrive before the read deadline expires.
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxFrameSize <= 0 {
		return fmt.Errorf("WebSocket max frame size must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	if c.Hub == nil {
		return fmt.Errorf("hub configuration is required")
	}
	if c.Hub.HealthInterval <= 0 || c.Hub.CleanupInterval <= 0 {
		return fmt.Errorf("hub intervals must be positive")
	}
	if c.Hub.HistoryLimit < 0 {
		return fmt.Errorf("hub history limit cannot be negative")
	}
	if c.Hub.RateLimit <= 0 {
		return fmt.Errorf("hub rate limit must be positive")
	}

	return nil
}

const envPrefix = "CLASSBRIDGE_"

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Unparseable values are ignored and the previous value is kept
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envString("DATABASE_PATH", &config.Database.Path)
	envInt("DATABASE_MAX_CONNECTIONS", &config.Database.MaxConnections)
	envString("DATABASE_MIGRATIONS_PATH", &config.Database.MigrationsPath)

	envInt("HTTP_PORT", &config.HTTP.Port)
	envString("HTTP_HOST", &config.HTTP.Host)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envDuration("HTTP_SHUTDOWN_TIMEOUT", &config.HTTP.ShutdownTimeout)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	envString("AUTH_SECRET", &config.Auth.Secret)
	envString("AUTH_ISSUER", &config.Auth.Issuer)

	envDuration("HUB_HEALTH_INTERVAL", &config.Hub.HealthInterval)
	envDuration("HUB_CLEANUP_INTERVAL", &config.Hub.CleanupInterval)
	envInt("HUB_HISTORY_LIMIT", &config.Hub.HistoryLimit)
	envInt("HUB_RATE_LIMIT", &config.Hub.RateLimit)
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database  *DatabaseConfig      `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Auth      *AuthConfigFile      `json:"auth"`
	Hub       *HubConfigFile       `json:"hub"`
}

type HTTPConfigFile struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	ReadTimeout     string `json:"read_timeout"`
	WriteTimeout    string `json:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
	MaxFrameSize int64  `json:"max_frame_size"`
}

// AuthConfigFile accepts the secret, unlike the runtime struct which never
// serializes it back out.
type AuthConfigFile struct {
	Secret string `json:"secret"`
	Issuer string `json:"issuer"`
}

type HubConfigFile struct {
	HealthInterval  string `json:"health_interval"`
	CleanupInterval string `json:"cleanup_interval"`
	HistoryLimit    *int   `json:"history_limit"`
	RateLimit       int    `json:"rate_limit"`
	MemoryLimitMB   uint64 `json:"memory_limit_mb"`
}

func parseDuration(field, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// FUNCTIONAL DISCOVERY: File-based configuration supports complex deployment scenarios
// JSON format chosen for readability and tooling support
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// applyFile overlays the fields present in the file onto config.
func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if f := file.Database; f != nil {
		if f.Path != "" {
			config.Database.Path = f.Path
		}
		if f.MaxConnections > 0 {
			config.Database.MaxConnections = f.MaxConnections
		}
		if f.MigrationsPath != "" {
			config.Database.MigrationsPath = f.MigrationsPath
		}
	}

	if f := file.HTTP; f != nil {
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		if err := parseDuration("http.read_timeout", f.ReadTimeout, &config.HTTP.ReadTimeout); err != nil {
			return err
		}
		if err := parseDuration("http.write_timeout", f.WriteTimeout, &config.HTTP.WriteTimeout); err != nil {
			return err
		}
		if err := parseDuration("http.shutdown_timeout", f.ShutdownTimeout, &config.HTTP.ShutdownTimeout); err != nil {
			return err
		}
	}

	if f := file.WebSocket; f != nil {
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		if f.MaxFrameSize > 0 {
			config.WebSocket.MaxFrameSize = f.MaxFrameSize
		}
		if err := parseDuration("websocket.ping_interval", f.PingInterval, &config.WebSocket.PingInterval); err != nil {
			return err
		}
		if err := parseDuration("websocket.read_timeout", f.ReadTimeout, &config.WebSocket.ReadTimeout); err != nil {
			return err
		}
		if err := parseDuration("websocket.write_timeout", f.WriteTimeout, &config.WebSocket.WriteTimeout); err != nil {
			return err
		}
	}

	if f := file.Auth; f != nil {
		if f.Secret != "" {
			config.Auth.Secret = f.Secret
		}
		if f.Issuer != "" {
			config.Auth.Issuer = f.Issuer
		}
	}

	if f := file.Hub; f != nil {
		// history_limit 0 is meaningful (join stays side effect only), hence the pointer.
		if f.HistoryLimit != nil {
			config.Hub.HistoryLimit = *f.HistoryLimit
		}
		if f.RateLimit > 0 {
			config.Hub.RateLimit = f.RateLimit
		}
		if f.MemoryLimitMB > 0 {
			config.Hub.MemoryLimitMB = f.MemoryLimitMB
		}
		if err := parseDuration("hub.health_interval", f.HealthInterval, &config.Hub.HealthInterval); err != nil {
			return err
		}
		if err := parseDuration("hub.cleanup_interval", f.CleanupInterval, &config.Hub.CleanupInterval); err != nil {
			return err
		}
	}

	return nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// Each layer only overrides the fields it sets
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config := LoadFromEnv()

	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
