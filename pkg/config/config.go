package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "DECERTIFY"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Storage      StorageConfig      `yaml:"storage" envconfig:"STORAGE"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	JWT          JWTConfig          `yaml:"jwt" envconfig:"JWT"`
	ContentStore ContentStoreConfig `yaml:"content_store" envconfig:"CONTENT_STORE"`
	Issuance     IssuanceConfig     `yaml:"issuance" envconfig:"ISSUANCE"`
	Security     SecurityConfig     `yaml:"security" envconfig:"SECURITY"`
	Metrics      MetricsConfig      `yaml:"metrics" envconfig:"METRICS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string   `yaml:"host" envconfig:"HOST"`
	Port           int      `yaml:"port" envconfig:"PORT"`
	AdminPort      int      `yaml:"admin_port" envconfig:"ADMIN_PORT"`   // Internal admin API port (0 to disable)
	AdminToken     string   `yaml:"admin_token" envconfig:"ADMIN_TOKEN"` // Bearer token for admin API (auto-generated if empty)
	BaseURL        string   `yaml:"base_url" envconfig:"BASE_URL"`
	MaxUploadMB    int      `yaml:"max_upload_mb" envconfig:"MAX_UPLOAD_MB"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// JWTConfig contains JWT configuration
type JWTConfig struct {
	Secret      string `yaml:"secret" envconfig:"SECRET"`
	ExpiryHours int    `yaml:"expiry_hours" envconfig:"EXPIRY_HOURS"`
	Issuer      string `yaml:"issuer" envconfig:"ISSUER"`
}

// ContentStoreConfig selects and configures the content-addressed document store
type ContentStoreConfig struct {
	Type       string       `yaml:"type" envconfig:"TYPE"` // memory, pinata
	Pinata     PinataConfig `yaml:"pinata" envconfig:"PINATA"`
	GatewayURL string       `yaml:"gateway_url" envconfig:"GATEWAY_URL"`
}

// PinataConfig contains Pinata pinning service credentials.
// Either JWT or the API key pair must be set.
type PinataConfig struct {
	APIKey    string `yaml:"api_key" envconfig:"API_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"SECRET_KEY"`
	JWT       string `yaml:"jwt" envconfig:"JWT"`
	APIURL    string `yaml:"api_url" envconfig:"API_URL"`
	Timeout   int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// IssuanceConfig controls the verification code stamped onto issued documents
// and the optional per-request issuance lock
type IssuanceConfig struct {
	QRLevel        string      `yaml:"qr_level" envconfig:"QR_LEVEL"`   // low, medium, high, highest
	QRScale        float64     `yaml:"qr_scale" envconfig:"QR_SCALE"`   // side length as a fraction of the page width
	QRMargin       float64     `yaml:"qr_margin" envconfig:"QR_MARGIN"` // points from the bottom-right corner
	QRPixels       int         `yaml:"qr_pixels" envconfig:"QR_PIXELS"` // rendered PNG size
	Lock           string      `yaml:"lock" envconfig:"LOCK"`           // none, memory, redis
	LockTTLSeconds int         `yaml:"lock_ttl_seconds" envconfig:"LOCK_TTL_SECONDS"`
	Redis          RedisConfig `yaml:"redis" envconfig:"REDIS"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// SecurityConfig contains security hardening configuration
type SecurityConfig struct {
	AuthRateLimit AuthRateLimitConfig `yaml:"auth_rate_limit" envconfig:"AUTH_RATE_LIMIT"`
}

// AuthRateLimitConfig limits failed login attempts per wallet address
type AuthRateLimitConfig struct {
	Enabled        bool `yaml:"enabled" envconfig:"ENABLED"`
	MaxAttempts    int  `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	WindowSeconds  int  `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
	LockoutSeconds int  `yaml:"lockout_seconds" envconfig:"LOCKOUT_SECONDS"`
}

// SetDefaults fills unset limits with conservative values
func (c *AuthRateLimitConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.LockoutSeconds <= 0 {
		c.LockoutSeconds = 300
	}
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Path    string `yaml:"path" envconfig:"HTTP_PATH"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// A local .env file feeds the environment; variables already set win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			AdminPort:      5001,
			MaxUploadMB:    10,
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "decertify",
				Timeout:  10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			ExpiryHours: 24,
			Issuer:      "decertify",
		},
		ContentStore: ContentStoreConfig{
			Type:       "memory",
			GatewayURL: "https://gateway.pinata.cloud",
			Pinata: PinataConfig{
				APIURL:  "https://api.pinata.cloud",
				Timeout: 60,
			},
		},
		Issuance: IssuanceConfig{
			QRLevel:        "highest",
			QRScale:        0.16,
			QRMargin:       30,
			QRPixels:       512,
			Lock:           "none",
			LockTTLSeconds: 120,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "decertify:issuance:",
			},
		},
		Security: SecurityConfig{
			AuthRateLimit: AuthRateLimitConfig{
				Enabled:        true,
				MaxAttempts:    10,
				WindowSeconds:  60,
				LockoutSeconds: 300,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.AdminPort < 0 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("invalid admin port: %d", c.Server.AdminPort)
	}

	if c.Server.MaxUploadMB < 0 {
		return fmt.Errorf("invalid max_upload_mb: %d", c.Server.MaxUploadMB)
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	switch c.ContentStore.Type {
	case "memory":
	case "pinata":
		p := c.ContentStore.Pinata
		if p.JWT == "" && (p.APIKey == "" || p.SecretKey == "") {
			return fmt.Errorf("pinata jwt or api_key and secret_key are required when using pinata")
		}
	default:
		return fmt.Errorf("invalid content store type: %s (must be memory or pinata)", c.ContentStore.Type)
	}

	switch c.Issuance.QRLevel {
	case "", "low", "medium", "high", "highest":
	default:
		return fmt.Errorf("invalid qr_level: %s (must be low, medium, high, or highest)", c.Issuance.QRLevel)
	}

	if c.Issuance.QRScale <= 0 || c.Issuance.QRScale > 1 {
		return fmt.Errorf("invalid qr_scale: %v (must be in (0, 1])", c.Issuance.QRScale)
	}

	switch c.Issuance.Lock {
	case "", "none", "memory":
	case "redis":
		if c.Issuance.Redis.Address == "" {
			return fmt.Errorf("redis address is required when using the redis issuance lock")
		}
	default:
		return fmt.Errorf("invalid issuance lock: %s (must be none, memory, or redis)", c.Issuance.Lock)
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AdminAddress returns the admin server address
func (c *ServerConfig) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.AdminPort)
}

// MaxUploadBytes returns the upload size limit in bytes
func (c *ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
