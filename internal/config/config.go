// Package config loads server settings from defaults, the environment and
// an optional JSON file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "GROUPCHAT_"

// MinSecretLength is the shortest accepted token signing secret, in bytes.
const MinSecretLength = 32

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Database  *DatabaseConfig  `json:"database" envPrefix:"DATABASE_" validate:"required"`
	HTTP      *HTTPConfig      `json:"http" envPrefix:"HTTP_" validate:"required"`
	WebSocket *WebSocketConfig `json:"websocket" envPrefix:"WEBSOCKET_" validate:"required"`
	Auth      *AuthConfig      `json:"auth" envPrefix:"AUTH_" validate:"required"`
	Chat      *ChatConfig      `json:"chat" envPrefix:"CHAT_" validate:"required"`
	Log       *LogConfig       `json:"log" envPrefix:"LOG_" validate:"required"`
}

type DatabaseConfig struct {
	Path           string        `json:"path" env:"PATH" validate:"required"`
	Timeout        time.Duration `json:"timeout" env:"TIMEOUT" validate:"gt=0"`
	MaxConnections int           `json:"max_connections" env:"MAX_CONNECTIONS" validate:"gt=0"`
}

type HTTPConfig struct {
	Host            string        `json:"host" env:"HOST" validate:"required"`
	Port            int           `json:"port" env:"PORT" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	// AllowedOrigins limits browser origins for CORS and the WebSocket
	// upgrade. Empty allows any origin.
	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type WebSocketConfig struct {
	PingInterval    time.Duration `json:"ping_interval" env:"PING_INTERVAL" validate:"gt=0"`
	PongWait        time.Duration `json:"pong_wait" env:"PONG_WAIT" validate:"gt=0,gtfield=PingInterval"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	DeliveryTimeout time.Duration `json:"delivery_timeout" env:"DELIVERY_TIMEOUT" validate:"gt=0"`
	BufferSize      int           `json:"buffer_size" env:"BUFFER_SIZE" validate:"gt=0"`
	MaxFrameBytes   int64         `json:"max_frame_bytes" env:"MAX_FRAME_BYTES" validate:"gt=0"`
}

type AuthConfig struct {
	Secret     string        `json:"secret" env:"SECRET" validate:"min=32"`
	TokenTTL   time.Duration `json:"token_ttl" env:"TOKEN_TTL" validate:"gt=0"`
	BcryptCost int           `json:"bcrypt_cost" env:"BCRYPT_COST" validate:"min=4,max=31"`
}

type ChatConfig struct {
	HistoryLimit  int `json:"history_limit" env:"HISTORY_LIMIT" validate:"min=0"`
	MaxTextLength int `json:"max_text_length" env:"MAX_TEXT_LENGTH" validate:"gt=0"`
	MaxImageBytes int `json:"max_image_bytes" env:"MAX_IMAGE_BYTES" validate:"gt=0"`
	// RateLimit is messages per minute per user; 0 disables limiting.
	RateLimit int `json:"rate_limit" env:"RATE_LIMIT" validate:"min=0"`
}

type LogConfig struct {
	Level  string `json:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `json:"format" env:"FORMAT" validate:"oneof=json console"`
}

// DefaultConfig returns the production defaults. The auth secret has no
// default and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/groupchat.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:    30 * time.Second,
			PongWait:        60 * time.Second,
			WriteTimeout:    5 * time.Second,
			DeliveryTimeout: 5 * time.Second,
			BufferSize:      100,
			MaxFrameBytes:   16 << 20,
		},
		Auth: &AuthConfig{
			TokenTTL:   24 * time.Hour,
			BcryptCost: 12,
		},
		Chat: &ChatConfig{
			HistoryLimit:  50,
			MaxTextLength: 1000,
			MaxImageBytes: 5 << 20,
			RateLimit:     100,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.StructField() == "Secret" {
			msgs = append(msgs, fmt.Sprintf("auth secret must be at least %d bytes (generate one with `groupchat keygen`)", MinSecretLength))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadDotEnv loads KEY=VALUE files into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// LoadFromEnv applies GROUPCHAT_* variables over the defaults. It does not
// validate, so a partial environment can still be layered on.
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// LoadConfigWithPrecedence resolves file > environment > defaults and
// validates the result. An empty path skips the file.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
