package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/lte-gateway/enodebd/pkg/crypto"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	JWT      JWTConfig      `yaml:"jwt"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Enodebd  EnodebdConfig  `yaml:"enodebd"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
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
	ClientID          string        `yaml:"client_id"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// MQTTConfig represents the status forwarder broker
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// AdminConfig holds the operator account
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig represents the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EnodebdConfig configures device sessions
type EnodebdConfig struct {
	// DefaultDevice is used when a device cannot be detected from its Inform
	DefaultDevice string `yaml:"default_device"`
	// MconfigPath points at the streamed gateway config file
	MconfigPath   string        `yaml:"mconfig_path"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Timeouts      TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig holds per-state timeouts
type TimeoutConfig struct {
	Response         time.Duration `yaml:"response"`
	Idle             time.Duration `yaml:"idle"`
	PostRebootInform time.Duration `yaml:"post_reboot_inform"`
	RebootDelay      time.Duration `yaml:"reboot_delay"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration and applies overrides and defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
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

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
		c.MQTT.Enabled = true
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if device := os.Getenv("ENODEBD_DEVICE"); device != "" {
		c.Enodebd.DefaultDevice = device
	}
}

func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "enodebd"
	}
	if c.API.Port == 0 {
		c.API.Port = 8090
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.ClientID == "" {
		c.NATS.ClientID = "enodebd"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "enodebd"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "enodebd"
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = time.Hour
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Enodebd.SweepInterval == 0 {
		c.Enodebd.SweepInterval = 5 * time.Second
	}
	if c.Enodebd.Timeouts.Response == 0 {
		c.Enodebd.Timeouts.Response = 60 * time.Second
	}
	if c.Enodebd.Timeouts.Idle == 0 {
		c.Enodebd.Timeouts.Idle = 15 * time.Minute
	}
	if c.Enodebd.Timeouts.PostRebootInform == 0 {
		c.Enodebd.Timeouts.PostRebootInform = 10 * time.Minute
	}
	if c.Enodebd.Timeouts.RebootDelay == 0 {
		c.Enodebd.Timeouts.RebootDelay = 10 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port: %d", c.API.Port)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt enabled without broker")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
	}
	if c.Admin.PasswordHash != "" {
		if err := crypto.CheckHash(c.Admin.PasswordHash); err != nil {
			return fmt.Errorf("admin password_hash: %w", err)
		}
	}
	if c.Enodebd.Timeouts.Response <= 0 || c.Enodebd.Timeouts.Idle <= 0 {
		return fmt.Errorf("state timeouts must be positive")
	}
	return nil
}

// SetupLogging configures the global zerolog logger
func (c *Config) SetupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if c.Log.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// PrintConfigSummary logs the effective configuration
func (c *Config) PrintConfigSummary() {
	log.Info().
		Str("name", c.Server.Name).
		Str("version", c.Server.Version).
		Int("api_port", c.API.Port).
		Str("nats", c.NATS.URL).
		Bool("mqtt", c.MQTT.Enabled).
		Bool("metrics", c.Metrics.Enabled).
		Str("default_device", c.Enodebd.DefaultDevice).
		Dur("response_timeout", c.Enodebd.Timeouts.Response).
		Dur("idle_timeout", c.Enodebd.Timeouts.Idle).
		Msg("Configuration loaded")
}
