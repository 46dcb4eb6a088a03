package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "POS"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Sync      SyncConfig      `yaml:"sync" envconfig:"SYNC"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Sales     SalesConfig     `yaml:"sales" envconfig:"SALES"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains the local status/API HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// StoreConfig contains local durable store configuration
type StoreConfig struct {
	Path string `yaml:"path" envconfig:"PATH"`
}

// SyncConfig controls the outbox drain loop
type SyncConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED"`
	RemoteURL       string        `yaml:"remote_url" envconfig:"REMOTE_URL"`
	Interval        time.Duration `yaml:"interval" envconfig:"INTERVAL"`
	MaxBackoff      time.Duration `yaml:"max_backoff" envconfig:"MAX_BACKOFF"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" envconfig:"DELIVERY_TIMEOUT"`
	PingTimeout     time.Duration `yaml:"ping_timeout" envconfig:"PING_TIMEOUT"`
	BatchSize       int           `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	Retention       time.Duration `yaml:"retention" envconfig:"RETENTION"`
}

// LicenseConfig contains licensing collaborator configuration
type LicenseConfig struct {
	ServerURL             string        `yaml:"server_url" envconfig:"SERVER_URL"`
	RequestTimeout        time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	ValidationInterval    time.Duration `yaml:"validation_interval" envconfig:"VALIDATION_INTERVAL"`
	DeveloperSecretSHA256 string        `yaml:"developer_secret_sha256" envconfig:"DEVELOPER_SECRET_SHA256"`
	ActivationRate        float64       `yaml:"activation_rate" envconfig:"ACTIVATION_RATE"`
	ActivationBurst       int           `yaml:"activation_burst" envconfig:"ACTIVATION_BURST"`
}

// SecurityConfig contains secrets used to protect data at rest and in transit
type SecurityConfig struct {
	StorageSecret string `yaml:"storage_secret" envconfig:"STORAGE_SECRET"`
	DeviceSecret  string `yaml:"device_secret" envconfig:"DEVICE_SECRET"`
	PINCost       int    `yaml:"pin_cost" envconfig:"PIN_COST"`
	ScryptN       int    `yaml:"scrypt_n" envconfig:"SCRYPT_N"`
}

// SalesConfig contains checkout rules
type SalesConfig struct {
	TaxRate float64 `yaml:"tax_rate" envconfig:"TAX_RATE"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Environment   string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8377,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/posd.log",
		},
		Store: StoreConfig{
			Path: "data/pos.db",
		},
		Sync: SyncConfig{
			Enabled:         true,
			Interval:        30 * time.Second,
			MaxBackoff:      10 * time.Minute,
			DeliveryTimeout: 15 * time.Second,
			PingTimeout:     5 * time.Second,
			BatchSize:       100,
			Retention:       7 * 24 * time.Hour,
		},
		License: LicenseConfig{
			RequestTimeout:     20 * time.Second,
			ValidationInterval: 6 * time.Hour,
			ActivationRate:     0.2,
			ActivationBurst:    3,
		},
		Security: SecurityConfig{
			PINCost: 10,
			ScryptN: 32768,
		},
		Sales: SalesConfig{
			TaxRate: 0,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Environment:   "production",
			EnableMetrics: true,
			TraceExporter: "none",
			SampleRatio:   1.0,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and POS_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML file onto cfg. A missing file is not an error.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// validate validates the configuration
func (c *Config) validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}
	if c.Store.Path == "" {
		problems = append(problems, "store path is required")
	}
	if c.Sync.Interval <= 0 {
		problems = append(problems, "sync interval must be positive")
	}
	if c.Sync.MaxBackoff < c.Sync.Interval {
		problems = append(problems, "sync max_backoff must not be shorter than interval")
	}
	if c.Sync.DeliveryTimeout <= 0 {
		problems = append(problems, "sync delivery_timeout must be positive")
	}
	if c.Sync.BatchSize < 1 {
		problems = append(problems, "sync batch_size must be at least 1")
	}
	if c.Sync.Retention < 0 {
		problems = append(problems, "sync retention must not be negative")
	}
	if c.Sync.Enabled && c.Sync.RemoteURL == "" {
		problems = append(problems, "sync remote_url is required when sync is enabled")
	}
	if c.License.ValidationInterval <= 0 {
		problems = append(problems, "license validation_interval must be positive")
	}
	if c.License.ActivationBurst < 1 {
		problems = append(problems, "license activation_burst must be at least 1")
	}
	if s := c.License.DeveloperSecretSHA256; s != "" && len(s) != 64 {
		problems = append(problems, "license developer_secret_sha256 must be a hex SHA-256 digest")
	}
	if c.Security.StorageSecret == "" {
		problems = append(problems, "security storage_secret is required")
	}
	if c.Security.ScryptN < 2 || c.Security.ScryptN&(c.Security.ScryptN-1) != 0 {
		problems = append(problems, "security scrypt_n must be a power of two greater than 1")
	}
	if c.Sales.TaxRate < 0 || c.Sales.TaxRate >= 1 {
		problems = append(problems, "sales tax_rate must be a fraction in [0, 1)")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format: %s", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
