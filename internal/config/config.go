package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Web         WebConfig         `yaml:"web"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	Vehicle     VehicleConfig     `yaml:"vehicle"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	Integration IntegrationConfig `yaml:"integration"`
}

// ServerConfig represents server identity configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WebConfig represents web UI configuration
type WebConfig struct {
	StaticDir string `yaml:"static_dir"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// VehicleConfig represents the vehicle link configuration. Addr and
// HeartbeatTimeout only take effect for a real transport driver; the
// "sim" driver is in-process and ignores both. HeartbeatTimeout still
// bounds Bridge.LivenessThreshold during validation.
type VehicleConfig struct {
	// Driver selects the provider implementation. Currently "sim".
	Driver string `yaml:"driver"`
	// Addr is the vehicle connection string, e.g. "udpout:10.1.1.10:14560"
	Addr string `yaml:"addr"`
	// HeartbeatTimeout is the provider-side connect timeout
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
}

// BridgeConfig represents the session/protocol layer configuration
type BridgeConfig struct {
	// SupervisorTick is the liveness check period
	SupervisorTick time.Duration `yaml:"supervisor_tick"`
	// LivenessThreshold is the maximum heartbeat age before the link is
	// declared down. Must stay strictly below Vehicle.HeartbeatTimeout.
	LivenessThreshold time.Duration `yaml:"liveness_threshold"`
	// ConnectTimeout bounds one background reconnect attempt
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// SaltBytes is the per-session salt size in bytes
	SaltBytes int `yaml:"salt_bytes"`
	// SendQueueSize is the per-session outbound message buffer
	SendQueueSize int `yaml:"send_queue_size"`
}

// IntegrationConfig represents event forwarding configuration
type IntegrationConfig struct {
	HTTP HTTPIntegrationConfig `yaml:"http"`
	MQTT MQTTIntegrationConfig `yaml:"mqtt"`
}

// HTTPIntegrationConfig represents the HTTP webhook output
type HTTPIntegrationConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// MQTTIntegrationConfig represents the MQTT output
type MQTTIntegrationConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Broker       string `yaml:"broker"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TopicPattern string `yaml:"topic_pattern"`
	QoS          byte   `yaml:"qos"`
	TLSEnabled   bool   `yaml:"tls_enabled"`
}

// Load loads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()

	if err := cfg.validateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if addr := os.Getenv("VEHICLE_ADDR"); addr != "" {
		c.Vehicle.Addr = addr
	}
}

// validateAndSetDefaults fills defaults and rejects inconsistent timing
func (c *Config) validateAndSetDefaults() error {
	if c.Vehicle.Driver == "" {
		c.Vehicle.Driver = "sim"
	}

	if c.Vehicle.HeartbeatTimeout == 0 {
		c.Vehicle.HeartbeatTimeout = 3 * time.Second
	}

	if c.Bridge.SupervisorTick == 0 {
		c.Bridge.SupervisorTick = time.Second
	}

	if c.Bridge.LivenessThreshold == 0 {
		c.Bridge.LivenessThreshold = 2 * time.Second
	}

	if c.Bridge.ConnectTimeout == 0 {
		c.Bridge.ConnectTimeout = 10 * time.Second
	}

	if c.Bridge.SaltBytes == 0 {
		c.Bridge.SaltBytes = 16
	}

	if c.Bridge.SendQueueSize == 0 {
		c.Bridge.SendQueueSize = 64
	}

	// The supervisor must notice a dead link before the provider itself
	// gives up, otherwise clients see stale Connected status.
	if c.Bridge.LivenessThreshold >= c.Vehicle.HeartbeatTimeout {
		return fmt.Errorf("liveness_threshold (%s) must be below vehicle heartbeat_timeout (%s)",
			c.Bridge.LivenessThreshold, c.Vehicle.HeartbeatTimeout)
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}

	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if c.Integration.HTTP.Timeout == 0 {
		c.Integration.HTTP.Timeout = 30 * time.Second
	}

	if c.Integration.MQTT.TopicPattern == "" {
		c.Integration.MQTT.TopicPattern = "drone-bridge/{subject}"
	}

	return nil
}

// PrintConfigSummary prints a human-readable configuration summary
func (c *Config) PrintConfigSummary() {
	fmt.Printf("Server:    %s %s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("API:       %s:%d\n", c.API.Host, c.API.Port)
	fmt.Printf("Vehicle:   driver=%s addr=%s\n", c.Vehicle.Driver, c.Vehicle.Addr)
	fmt.Printf("Bridge:    tick=%s liveness=%s connect_timeout=%s\n",
		c.Bridge.SupervisorTick, c.Bridge.LivenessThreshold, c.Bridge.ConnectTimeout)
	fmt.Printf("NATS:      %s\n", c.NATS.URL)
	fmt.Printf("Log:       level=%s\n", c.Log.Level)
	fmt.Printf("Forwarder: http=%v mqtt=%v\n", c.Integration.HTTP.Enabled, c.Integration.MQTT.Enabled)
}
