package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	WebSocket struct {
		Port int
	}
	JWT struct {
		SecretKey        string `yaml:"secret_key"`
		AccessTTLMinutes int    `yaml:"access_ttl_minutes"`
	}
	Dispatch struct {
		OfferTTLSeconds      int `yaml:"offer_ttl_seconds"`
		CountdownTickSeconds int `yaml:"countdown_tick_seconds"`
	}
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWT.AccessTTLMinutes) * time.Minute
}

// OfferTTL returns the configured mission-offer lifetime.
func (c *Config) OfferTTL() time.Duration {
	return time.Duration(c.Dispatch.OfferTTLSeconds) * time.Second
}

// CountdownTick returns how often open offers are re-broadcast with a fresh
// remaining-seconds figure.
func (c *Config) CountdownTick() time.Duration {
	return time.Duration(c.Dispatch.CountdownTickSeconds) * time.Second
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// WebSocket
	if cfg.WebSocket.Port == 0 {
		cfg.WebSocket.Port = 8080
	}

	// JWT
	if cfg.JWT.AccessTTLMinutes == 0 {
		cfg.JWT.AccessTTLMinutes = 120
	}
	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}

	// Dispatch
	if cfg.Dispatch.OfferTTLSeconds == 0 {
		cfg.Dispatch.OfferTTLSeconds = 30
	}
	if cfg.Dispatch.CountdownTickSeconds == 0 {
		cfg.Dispatch.CountdownTickSeconds = 5
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// WebSocket
	if c.WebSocket.Port <= 0 || c.WebSocket.Port > 65535 {
		problems = append(problems, "websocket.port must be in 1..65535")
	}

	// JWT
	if c.JWT.AccessTTLMinutes < 1 {
		problems = append(problems, "jwt.access_ttl_minutes must be >= 1")
	}

	// Dispatch
	if c.Dispatch.OfferTTLSeconds < 1 {
		problems = append(problems, "dispatch.offer_ttl_seconds must be >= 1")
	}
	if c.Dispatch.CountdownTickSeconds < 1 {
		problems = append(problems, "dispatch.countdown_tick_seconds must be >= 1")
	}
	if c.Dispatch.CountdownTickSeconds > c.Dispatch.OfferTTLSeconds {
		problems = append(problems, "dispatch.countdown_tick_seconds cannot exceed offer_ttl_seconds")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
