// Package config loads dashboard settings from config.yml, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// UpstreamConfig points at the telemetry and answering backend
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// PollConfig controls the main snapshot poll
type PollConfig struct {
	Source             string        `yaml:"source" validate:"oneof=http replay kafka"`
	Interval           time.Duration `yaml:"interval" validate:"gt=0"`
	EfficiencyInterval time.Duration `yaml:"efficiency_interval" validate:"gt=0"`
}

// ChartConfig controls the rolling CO2 buffer
type ChartConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	Capacity int           `yaml:"capacity" validate:"gt=0,lte=1000"`
}

// AnomalyConfig controls anomaly retention
type AnomalyConfig struct {
	Retention int `yaml:"retention" validate:"gt=0"`
}

// ServerConfig contains dashboard API settings
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0,lte=65535"`
}

// DatabaseConfig locates the replay database
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// KafkaConfig configures the push-based source. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" validate:"required_with=Brokers"`
	GroupID string   `yaml:"group_id" validate:"required_with=Brokers"`
	Version string   `yaml:"version"`
	// vehicles silent for longer than this are dropped from the snapshot; 0 keeps them
	StaleAfter time.Duration `yaml:"stale_after" validate:"gte=0"`
}

// AMQPConfig configures anomaly fan-out. An empty URL disables it.
type AMQPConfig struct {
	URL      string `yaml:"url" validate:"omitempty,url"`
	Exchange string `yaml:"exchange" validate:"required_with=URL"`
}

// Config is the root configuration structure
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream" validate:"required"`
	Poll     PollConfig     `yaml:"poll" validate:"required"`
	Chart    ChartConfig    `yaml:"chart" validate:"required"`
	Anomaly  AnomalyConfig  `yaml:"anomaly"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	LogLevel string         `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Upstream: UpstreamConfig{BaseURL: "http://localhost:8000", Timeout: 5 * time.Second},
		Poll:     PollConfig{Source: "http", Interval: 3 * time.Second, EfficiencyInterval: 2 * time.Second},
		Chart:    ChartConfig{Interval: 2 * time.Second, Capacity: 20},
		Anomaly:  AnomalyConfig{Retention: 50},
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "fleet_replay.db"},
		Kafka:    KafkaConfig{Topic: "fleet.telemetry", GroupID: "fleet-ops-dashboard", Version: "2.8.0", StaleAfter: 5 * time.Minute},
		AMQP:     AMQPConfig{Exchange: "fleet.anomalies"},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path over the defaults, then .env and
// environment overrides, and validates the result. A missing file is not an
// error when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("⚠️  .env not loaded: %v", err)
	}

	file := path
	if file == "" {
		file = "config.yml"
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", file, err)
		}
	case path != "" || !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("failed to read %s: %w", file, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks a configuration
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("FLEET_API_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("FLEET_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FLEET_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLEET_HTTP_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("FLEET_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = SplitList(v)
	}
	if v := os.Getenv("FLEET_AMQP_URL"); v != "" {
		cfg.AMQP.URL = v
	}
	return nil
}

// SplitList splits a comma separated list, dropping empty entries
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
