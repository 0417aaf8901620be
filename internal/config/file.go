package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// fileConfig mirrors Config for JSON files. Every field is optional and
// durations are written as strings such as "30s".
type fileConfig struct {
	Database *struct {
		Path           *string   `json:"path"`
		Timeout        *duration `json:"timeout"`
		MaxConnections *int      `json:"max_connections"`
	} `json:"database"`
	HTTP *struct {
		Host            *string   `json:"host"`
		Port            *int      `json:"port"`
		ReadTimeout     *duration `json:"read_timeout"`
		WriteTimeout    *duration `json:"write_timeout"`
		ShutdownTimeout *duration `json:"shutdown_timeout"`
		AllowedOrigins  []string  `json:"allowed_origins"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval    *duration `json:"ping_interval"`
		PongWait        *duration `json:"pong_wait"`
		WriteTimeout    *duration `json:"write_timeout"`
		DeliveryTimeout *duration `json:"delivery_timeout"`
		BufferSize      *int      `json:"buffer_size"`
		MaxFrameBytes   *int64    `json:"max_frame_bytes"`
	} `json:"websocket"`
	Auth *struct {
		Secret     *string   `json:"secret"`
		TokenTTL   *duration `json:"token_ttl"`
		BcryptCost *int      `json:"bcrypt_cost"`
	} `json:"auth"`
	Chat *struct {
		HistoryLimit  *int `json:"history_limit"`
		MaxTextLength *int `json:"max_text_length"`
		MaxImageBytes *int `json:"max_image_bytes"`
		RateLimit     *int `json:"rate_limit"`
	} `json:"chat"`
	Log *struct {
		Level  *string `json:"level"`
		Format *string `json:"format"`
	} `json:"log"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// LoadFromFile reads a JSON config file over the defaults and validates
// the result.
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

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var f fileConfig
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if d := f.Database; d != nil {
		set(&config.Database.Path, d.Path)
		setDuration(&config.Database.Timeout, d.Timeout)
		set(&config.Database.MaxConnections, d.MaxConnections)
	}
	if h := f.HTTP; h != nil {
		set(&config.HTTP.Host, h.Host)
		set(&config.HTTP.Port, h.Port)
		setDuration(&config.HTTP.ReadTimeout, h.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, h.WriteTimeout)
		setDuration(&config.HTTP.ShutdownTimeout, h.ShutdownTimeout)
		if h.AllowedOrigins != nil {
			config.HTTP.AllowedOrigins = h.AllowedOrigins
		}
	}
	if w := f.WebSocket; w != nil {
		setDuration(&config.WebSocket.PingInterval, w.PingInterval)
		setDuration(&config.WebSocket.PongWait, w.PongWait)
		setDuration(&config.WebSocket.WriteTimeout, w.WriteTimeout)
		setDuration(&config.WebSocket.DeliveryTimeout, w.DeliveryTimeout)
		set(&config.WebSocket.BufferSize, w.BufferSize)
		set(&config.WebSocket.MaxFrameBytes, w.MaxFrameBytes)
	}
	if a := f.Auth; a != nil {
		set(&config.Auth.Secret, a.Secret)
		setDuration(&config.Auth.TokenTTL, a.TokenTTL)
		set(&config.Auth.BcryptCost, a.BcryptCost)
	}
	if c := f.Chat; c != nil {
		set(&config.Chat.HistoryLimit, c.HistoryLimit)
		set(&config.Chat.MaxTextLength, c.MaxTextLength)
		set(&config.Chat.MaxImageBytes, c.MaxImageBytes)
		set(&config.Chat.RateLimit, c.RateLimit)
	}
	if l := f.Log; l != nil {
		set(&config.Log.Level, l.Level)
		set(&config.Log.Format, l.Format)
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *duration) {
	if v != nil {
		*dst = v.Duration
	}
}
